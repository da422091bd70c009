// Package eyetrack measures eye openness, blinks, pupil position, gaze
// direction and eyewear from the face landmarks of a single image.
package eyetrack

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"gocv.io/x/gocv"
	"golang.org/x/sync/semaphore"
)

// Analyzer runs the full pipeline around one shared Detector. It is safe
// for concurrent use; detector calls go through one at a time.
type Analyzer struct {
	opts Options
	log  *slog.Logger

	det  Detector
	sem  *semaphore.Weighted
	mu   sync.RWMutex
	done bool
}

func New(det Detector, opts *Options) (*Analyzer, error) {
	if det == nil {
		return nil, errors.New("detector required")
	}
	if opts == nil {
		def := DefaultOptions()
		opts = &def
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Analyzer{
		opts: *opts,
		log:  logger,
		det:  det,
		sem:  semaphore.NewWeighted(1),
	}, nil
}

func (a *Analyzer) Options() Options { return a.opts }

// Close waits for the detector to be idle and releases it.
func (a *Analyzer) Close() error {
	a.mu.Lock()
	if a.done {
		a.mu.Unlock()
		return nil
	}
	a.done = true
	a.mu.Unlock()

	if err := a.sem.Acquire(context.Background(), 1); err != nil {
		return err
	}
	defer a.sem.Release(1)
	return a.det.Close()
}

// Analyze decodes a base64 image (optionally with a data URI header) and
// measures the first face in it.
func (a *Analyzer) Analyze(ctx context.Context, encoded string) (*Result, error) {
	img, err := DecodeImage(encoded)
	if err != nil {
		return nil, err
	}
	defer img.Close()
	return a.analyzeMat(ctx, img)
}

// AnalyzeBytes is Analyze for an already decoded payload (JPEG, PNG, ...).
func (a *Analyzer) AnalyzeBytes(ctx context.Context, raw []byte) (*Result, error) {
	img, err := DecodeBytes(raw)
	if err != nil {
		return nil, err
	}
	defer img.Close()
	return a.analyzeMat(ctx, img)
}

func (a *Analyzer) analyzeMat(ctx context.Context, bgr gocv.Mat) (*Result, error) {
	W, H := bgr.Cols(), bgr.Rows()
	frame := bgr
	if a.opts.Profile.EnhanceLowLight {
		enhanced, err := EnhanceLowLight(bgr)
		if err != nil {
			return nil, err
		}
		defer enhanced.Close()
		frame = enhanced
	}

	rgb := gocv.NewMat()
	defer rgb.Close()
	gocv.CvtColor(frame, &rgb, gocv.ColorBGRToRGB)

	lm, err := a.detect(ctx, rgb)
	if err != nil {
		return nil, err
	}
	if lm == nil {
		a.log.Debug("no face", "width", W, "height", H, "profile", a.opts.Profile.Name)
		return &Result{FaceDetected: false, Message: NoFaceMessage}, nil
	}

	analysis, err := Measure(lm, W, H, a.opts.Policy)
	if err != nil {
		return nil, err
	}
	a.log.Debug("face analyzed",
		"landmarks", lm.Len(),
		"gaze", analysis.Gaze.Direction,
		"blinking", analysis.Eyes.Blinking)
	return &Result{FaceDetected: true, Analysis: analysis}, nil
}

type detection struct {
	lm  *Landmarks
	err error
}

func (a *Analyzer) detect(ctx context.Context, rgb gocv.Mat) (*Landmarks, error) {
	a.mu.RLock()
	closed := a.done
	a.mu.RUnlock()
	if closed {
		return nil, ErrDetectorClosed
	}

	if a.opts.DetectTimeout <= 0 {
		if err := a.sem.Acquire(ctx, 1); err != nil {
			return nil, err
		}
		defer a.sem.Release(1)
		return a.det.Detect(rgb)
	}

	ctx, cancel := context.WithTimeout(ctx, a.opts.DetectTimeout)
	defer cancel()
	if err := a.sem.Acquire(ctx, 1); err != nil {
		return nil, a.ctxErr(ctx, "waiting for detector")
	}

	// The goroutine owns its copy of the frame and the semaphore slot, so a
	// timed out request can return while detection runs to completion.
	frame := rgb.Clone()
	out := make(chan detection, 1)
	go func() {
		defer a.sem.Release(1)
		defer frame.Close()
		lm, err := a.det.Detect(frame)
		out <- detection{lm: lm, err: err}
	}()

	select {
	case d := <-out:
		return d.lm, d.err
	case <-ctx.Done():
		return nil, a.ctxErr(ctx, "detecting")
	}
}

// ctxErr reports a deadline as ErrDetectTimeout and passes cancellation by
// the caller through unchanged.
func (a *Analyzer) ctxErr(ctx context.Context, stage string) error {
	err := ctx.Err()
	if !errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	a.log.Warn("face detection timed out", "stage", stage, "timeout", a.opts.DetectTimeout)
	return fmt.Errorf("%w: %s: %w", ErrDetectTimeout, stage, err)
}
