package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/user0608/eyetrack"
)

func newEcho(a analyzer, cfg config) *echo.Echo {
	e := echo.New()
	e.Logger.SetLevel(cfg.LogLevel)
	e.HideBanner = true
	e.Validator = &requestValidator{v: validator.New()}

	e.Use(middleware.Recover())
	e.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{Generator: uuid.NewString}))
	e.Use(middleware.CORS())
	e.Use(middleware.BodyLimit(cfg.BodyLimit))
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:    true,
		LogURI:       true,
		LogStatus:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			slog.Info("request",
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"latency", v.Latency,
				"request_id", v.RequestID)
			return nil
		},
	}))

	e.GET("/health", NewHealthHandle())
	e.POST("/api/detect-face", NewDetectFaceHandle(a))
	e.POST("/api/calibrate", NewCalibrateHandle())
	return e
}

func main() {
	cfg, err := loadConfig()
	if err != nil {
		slog.Error("config", "err", err)
		os.Exit(1)
	}

	det, err := eyetrack.NewMeshDetector(&cfg.Mesh)
	if err != nil {
		slog.Error("init detector", "err", err)
		os.Exit(1)
	}
	an, err := eyetrack.New(det, &eyetrack.Options{
		Profile:       cfg.Profile,
		Policy:        cfg.Policy,
		DetectTimeout: cfg.DetectTimeout,
		Logger:        slog.Default(),
	})
	if err != nil {
		det.Close()
		slog.Error("init analyzer", "err", err)
		os.Exit(1)
	}
	defer an.Close()

	e := newEcho(an, cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		addr := ":" + cfg.Port
		e.Logger.Infof("eyetrack listening on %s (profile=%s policy=%s)", addr, cfg.Profile.Name, cfg.Policy.Name)
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			e.Logger.Fatal("shutting down the server")
		}
	}()

	<-ctx.Done()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(ctx); err != nil {
		e.Logger.Fatal(err)
	}
}
