package eyetrack

import (
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// Profile selects one deployment variant of the pipeline. The two variants
// differ in the confidence thresholds handed to the detector and in whether
// frames go through low-light enhancement first.
type Profile struct {
	Name                string
	EnhanceLowLight     bool
	DetectionConfidence float32
	TrackingConfidence  float32
}

var (
	StandardProfile = Profile{
		Name:                "standard",
		DetectionConfidence: 0.5,
		TrackingConfidence:  0.5,
	}
	LowLightProfile = Profile{
		Name:                "low-light",
		EnhanceLowLight:     true,
		DetectionConfidence: 0.3,
		TrackingConfidence:  0.3,
	}
)

func ProfileByName(name string) (Profile, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", StandardProfile.Name:
		return StandardProfile, nil
	case LowLightProfile.Name, "lowlight", "low_light":
		return LowLightProfile, nil
	}
	return Profile{}, fmt.Errorf("unknown profile %q", name)
}

// Policy holds the EAR thresholds used to classify open and blinking eyes.
//
// With Averaged unset each eye is judged on its own EAR and a blink needs
// both eyes under BlinkThreshold. With Averaged set the combined both_open
// and blinking flags come from the mean EAR of the two eyes, while the
// per-eye open flags still use each eye's own value.
type Policy struct {
	Name           string
	OpenThreshold  float64
	BlinkThreshold float64
	Averaged       bool
}

var (
	DualThreshold = Policy{
		Name:           "dual",
		OpenThreshold:  0.21,
		BlinkThreshold: 0.13,
	}
	SingleThreshold = Policy{
		Name:           "single",
		OpenThreshold:  0.25,
		BlinkThreshold: 0.20,
		Averaged:       true,
	}
)

func PolicyByName(name string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", DualThreshold.Name:
		return DualThreshold, nil
	case SingleThreshold.Name:
		return SingleThreshold, nil
	}
	return Policy{}, fmt.Errorf("unknown eye policy %q", name)
}

// EyeState is the outcome of applying a Policy to a pair of EAR values.
type EyeState struct {
	LeftOpen  bool
	RightOpen bool
	BothOpen  bool
	Blinking  bool
}

func (p Policy) Classify(leftEAR, rightEAR float64) EyeState {
	st := EyeState{
		LeftOpen:  leftEAR > p.OpenThreshold,
		RightOpen: rightEAR > p.OpenThreshold,
	}
	if p.Averaged {
		avg := (leftEAR + rightEAR) / 2
		st.BothOpen = avg > p.OpenThreshold
		st.Blinking = avg < p.BlinkThreshold
		return st
	}
	st.BothOpen = st.LeftOpen && st.RightOpen
	st.Blinking = leftEAR < p.BlinkThreshold && rightEAR < p.BlinkThreshold
	return st
}

type Options struct {
	Profile Profile
	Policy  Policy
	// DetectTimeout bounds the wait for the shared detector plus the
	// detection call itself. Zero waits indefinitely.
	DetectTimeout time.Duration
	Logger        *slog.Logger
}

func DefaultOptions() Options {
	return Options{
		Profile: StandardProfile,
		Policy:  DualThreshold,
		Logger:  slog.Default(),
	}
}
