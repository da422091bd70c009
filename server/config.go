package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/gommon/log"
	"github.com/user0608/eyetrack"
)

type config struct {
	Port          string
	BodyLimit     string
	LogLevel      log.Lvl
	DetectTimeout time.Duration
	Profile       eyetrack.Profile
	Policy        eyetrack.Policy
	Mesh          eyetrack.MeshOptions
}

func getenv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func parseLevel(s string) (log.Lvl, error) {
	switch strings.ToLower(s) {
	case "debug":
		return log.DEBUG, nil
	case "info":
		return log.INFO, nil
	case "warn", "warning":
		return log.WARN, nil
	case "error":
		return log.ERROR, nil
	case "off":
		return log.OFF, nil
	}
	return 0, fmt.Errorf("unknown log level %q", s)
}

// loadConfig reads the environment, after loading .env when one exists.
func loadConfig() (config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return config{}, fmt.Errorf("load .env: %w", err)
	}

	cfg := config{
		Port:      getenv("PORT", "5000"),
		BodyLimit: getenv("BODY_LIMIT", "10M"),
		Mesh:      eyetrack.DefaultMeshOptions(),
	}
	if _, err := strconv.Atoi(cfg.Port); err != nil {
		return config{}, fmt.Errorf("invalid PORT %q", cfg.Port)
	}

	var err error
	if cfg.LogLevel, err = parseLevel(getenv("LOG_LEVEL", "info")); err != nil {
		return config{}, err
	}
	if cfg.DetectTimeout, err = time.ParseDuration(getenv("DETECT_TIMEOUT", "0s")); err != nil {
		return config{}, fmt.Errorf("invalid DETECT_TIMEOUT: %w", err)
	}
	if cfg.Profile, err = eyetrack.ProfileByName(getenv("EYETRACK_PROFILE", eyetrack.StandardProfile.Name)); err != nil {
		return config{}, err
	}
	if cfg.Policy, err = eyetrack.PolicyByName(getenv("EYETRACK_POLICY", eyetrack.DualThreshold.Name)); err != nil {
		return config{}, err
	}

	cfg.Mesh.FaceModel = getenv("FACE_DETECTOR_MODEL", cfg.Mesh.FaceModel)
	cfg.Mesh.MeshModel = getenv("FACE_MESH_MODEL", cfg.Mesh.MeshModel)
	cfg.Mesh.MeshMetadata = getenv("FACE_MESH_METADATA", cfg.Mesh.MeshMetadata)
	cfg.Mesh.SharedLibrary = getenv("ONNXRUNTIME_LIB", "")
	cfg.Mesh.DetectionConfidence = cfg.Profile.DetectionConfidence
	cfg.Mesh.TrackingConfidence = cfg.Profile.TrackingConfidence
	return cfg, nil
}
