package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/user0608/eyetrack"
)

type analyzer interface {
	Analyze(ctx context.Context, encoded string) (*eyetrack.Result, error)
}

type requestValidator struct {
	v *validator.Validate
}

func (rv *requestValidator) Validate(i any) error {
	return rv.v.Struct(i)
}

type detectRequest struct {
	Image     *string `json:"image" validate:"required"`
	Timestamp any     `json:"timestamp"`
}

type calibrateRequest struct {
	CalibrationPoints []json.RawMessage `json:"calibration_points"`
}

type failure struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

type noFace struct {
	Success      bool   `json:"success"`
	FaceDetected bool   `json:"face_detected"`
	Message      string `json:"message"`
}

type detected struct {
	Success      bool               `json:"success"`
	FaceDetected bool               `json:"face_detected"`
	Timestamp    any                `json:"timestamp"`
	Analysis     *eyetrack.Analysis `json:"analysis"`
}

type calibrated struct {
	Success         bool   `json:"success"`
	Message         string `json:"message"`
	PointsCollected int    `json:"points_collected"`
	CalibrationID   string `json:"calibration_id"`
}

type health struct {
	Status       string   `json:"status"`
	Service      string   `json:"service"`
	Version      string   `json:"version"`
	Capabilities []string `json:"capabilities"`
}

const (
	serviceName    = "VisionCare AI"
	serviceVersion = "1.0.0"
)

var capabilities = []string{
	"face_detection",
	"eye_tracking",
	"blink_detection",
	"pupil_tracking",
	"glasses_detection",
	"iris_landmarks",
}

func NewHealthHandle() echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.JSON(http.StatusOK, health{
			Status:       "ok",
			Service:      serviceName,
			Version:      serviceVersion,
			Capabilities: capabilities,
		})
	}
}

func NewDetectFaceHandle(a analyzer) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req detectRequest
		if err := c.Bind(&req); err != nil {
			return c.JSON(http.StatusBadRequest, failure{Error: "Invalid request body"})
		}
		if err := c.Validate(&req); err != nil {
			return c.JSON(http.StatusBadRequest, failure{Error: "No image provided"})
		}

		res, err := a.Analyze(c.Request().Context(), *req.Image)
		if err != nil {
			c.Logger().Errorf("detect-face request %s: %v", c.Response().Header().Get(echo.HeaderXRequestID), err)
			return c.JSON(http.StatusInternalServerError, failure{
				Error:   err.Error(),
				Message: "Error processing image",
			})
		}
		if !res.FaceDetected {
			return c.JSON(http.StatusOK, noFace{Success: true, Message: res.Message})
		}
		return c.JSON(http.StatusOK, detected{
			Success:      true,
			FaceDetected: true,
			Timestamp:    req.Timestamp,
			Analysis:     res.Analysis,
		})
	}
}

func NewCalibrateHandle() echo.HandlerFunc {
	return func(c echo.Context) error {
		var req calibrateRequest
		if err := c.Bind(&req); err != nil {
			return c.JSON(http.StatusBadRequest, failure{Error: "Invalid request body"})
		}
		cal, err := eyetrack.Calibrate(req.CalibrationPoints)
		if errors.Is(err, eyetrack.ErrInsufficientPoints) {
			return c.JSON(http.StatusBadRequest, failure{
				Error: "Insufficient calibration points. Need at least 5 points.",
			})
		}
		if err != nil {
			return c.JSON(http.StatusInternalServerError, failure{Error: err.Error()})
		}
		return c.JSON(http.StatusOK, calibrated{
			Success:         true,
			Message:         "Calibration completed",
			PointsCollected: cal.PointsCollected,
			CalibrationID:   cal.ID,
		})
	}
}
