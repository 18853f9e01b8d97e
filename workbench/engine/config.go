package engine

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

var (
	ErrUnknownKind   = errors.New("unknown component kind")
	ErrInvalidTuning = errors.New("invalid tuning profile")
)

// Validation limits
const (
	MaxComponents   = 64
	MaxExtent       = 2000
	MaxDurationMs   = 10000
	MaxAnalysisWait = 30000
)

// KindTuning holds per-kind defaults applied on placement
type KindTuning struct {
	Extent float64 `json:"extent" yaml:"extent"`
	Mass   float64 `json:"mass" yaml:"mass"`
}

// Physics holds the abstract constants used for force readouts
type Physics struct {
	SpringConstant float64 `json:"spring_constant" yaml:"spring_constant"`
	Compression    float64 `json:"compression" yaml:"compression"`
	ContactFactor  float64 `json:"contact_factor" yaml:"contact_factor"`
}

// Timings are the fixed per-transition durations, in milliseconds
type Timings struct {
	EngageMs   int `json:"engage_ms" yaml:"engage_ms"`
	PreloadMs  int `json:"preload_ms" yaml:"preload_ms"`
	ReleaseMs  int `json:"release_ms" yaml:"release_ms"`
	SettleMs   int `json:"settle_ms" yaml:"settle_ms"`
	NudgeMs    int `json:"nudge_ms" yaml:"nudge_ms"`
	SlideMs    int `json:"slide_ms" yaml:"slide_ms"`
	AnalysisMs int `json:"analysis_ms" yaml:"analysis_ms"`
}

// ExamplePart is one entry of the canonical example layout, offset from the anchor
type ExamplePart struct {
	Kind   Kind `json:"kind" yaml:"kind"`
	Offset Vec2 `json:"offset" yaml:"offset"`
}

// Tuning is a named profile of design constants
type Tuning struct {
	Name         string              `json:"name" yaml:"name"`
	Description  string              `json:"description" yaml:"description"`
	EngageAngle  float64             `json:"engage_angle_deg" yaml:"engage_angle_deg"`
	PreloadAngle float64             `json:"preload_angle_deg" yaml:"preload_angle_deg"`
	Timings      Timings             `json:"timings" yaml:"timings"`
	Kinds        map[Kind]KindTuning `json:"kinds" yaml:"kinds"`
	Physics      Physics             `json:"physics" yaml:"physics"`
	Anchor       Vec2                `json:"anchor" yaml:"anchor"`
	Example      []ExamplePart       `json:"example" yaml:"example"`
}

func ms(n int) time.Duration {
	return time.Duration(n) * time.Millisecond
}

func (t *Tuning) engageDuration() time.Duration  { return ms(t.Timings.EngageMs) }
func (t *Tuning) preloadDuration() time.Duration { return ms(t.Timings.PreloadMs) }
func (t *Tuning) releaseDuration() time.Duration { return ms(t.Timings.ReleaseMs) }
func (t *Tuning) settleDelay() time.Duration     { return ms(t.Timings.SettleMs) }
func (t *Tuning) nudgeDuration() time.Duration   { return ms(t.Timings.NudgeMs) }
func (t *Tuning) slideDuration() time.Duration   { return ms(t.Timings.SlideMs) }

// AnalysisDelay is the display delay the service waits before running an analysis
func (t *Tuning) AnalysisDelay() time.Duration { return ms(t.Timings.AnalysisMs) }

func (t *Tuning) engageRadians() float64  { return t.EngageAngle * math.Pi / 180 }
func (t *Tuning) preloadRadians() float64 { return t.PreloadAngle * math.Pi / 180 }

// DefaultTuning returns the built-in profile
func DefaultTuning() *Tuning {
	return &Tuning{
		Name:         "default",
		Description:  "Built-in workbench profile",
		EngageAngle:  60,
		PreloadAngle: 30,
		Timings: Timings{
			EngageMs:   800,
			PreloadMs:  600,
			ReleaseMs:  300,
			SettleMs:   500,
			NudgeMs:    250,
			SlideMs:    500,
			AnalysisMs: 2000,
		},
		Kinds: map[Kind]KindTuning{
			Actuator:  {Extent: 200, Mass: 0.05},
			Retention: {Extent: 120, Mass: 0.02},
			Stop:      {Extent: 100, Mass: 0.1},
			Spring:    {Extent: 120, Mass: 0.008},
			Pivot:     {Extent: 40, Mass: 0.005},
		},
		Physics: Physics{
			SpringConstant: 500,
			Compression:    0.1,
			ContactFactor:  10,
		},
		Anchor: Vec2{X: 400, Y: 300},
		Example: []ExamplePart{
			{Kind: Pivot, Offset: Vec2{X: 0, Y: 0}},
			{Kind: Actuator, Offset: Vec2{X: 0, Y: 0}},
			{Kind: Retention, Offset: Vec2{X: -140, Y: 50}},
			{Kind: Spring, Offset: Vec2{X: -90, Y: -120}},
			{Kind: Stop, Offset: Vec2{X: 0, Y: 220}},
		},
	}
}

// ValidateTuning checks a profile for values the engine cannot work with
func ValidateTuning(t *Tuning) error {
	if t == nil {
		return fmt.Errorf("%w: profile is nil", ErrInvalidTuning)
	}
	if t.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidTuning)
	}
	if t.EngageAngle <= 0 || t.EngageAngle > 180 {
		return fmt.Errorf("%w: engage_angle_deg must be in (0,180], got %g", ErrInvalidTuning, t.EngageAngle)
	}
	if t.PreloadAngle <= 0 || t.PreloadAngle > t.EngageAngle {
		return fmt.Errorf("%w: preload_angle_deg must be in (0,engage_angle_deg], got %g", ErrInvalidTuning, t.PreloadAngle)
	}

	durations := map[string]int{
		"engage_ms":  t.Timings.EngageMs,
		"preload_ms": t.Timings.PreloadMs,
		"release_ms": t.Timings.ReleaseMs,
		"settle_ms":  t.Timings.SettleMs,
		"nudge_ms":   t.Timings.NudgeMs,
		"slide_ms":   t.Timings.SlideMs,
	}
	for name, v := range durations {
		if v < 0 || v > MaxDurationMs {
			return fmt.Errorf("%w: timings.%s must be between 0 and %d, got %d", ErrInvalidTuning, name, MaxDurationMs, v)
		}
	}
	if t.Timings.AnalysisMs < 0 || t.Timings.AnalysisMs > MaxAnalysisWait {
		return fmt.Errorf("%w: timings.analysis_ms must be between 0 and %d, got %d", ErrInvalidTuning, MaxAnalysisWait, t.Timings.AnalysisMs)
	}

	for _, k := range Kinds {
		kt, ok := t.Kinds[k]
		if !ok {
			return fmt.Errorf("%w: kinds.%s is required", ErrInvalidTuning, k)
		}
		if kt.Extent <= 0 || kt.Extent > MaxExtent {
			return fmt.Errorf("%w: kinds.%s.extent must be in (0,%d], got %g", ErrInvalidTuning, k, MaxExtent, kt.Extent)
		}
		if kt.Mass <= 0 {
			return fmt.Errorf("%w: kinds.%s.mass must be positive, got %g", ErrInvalidTuning, k, kt.Mass)
		}
	}
	for k := range t.Kinds {
		if !k.Valid() {
			return fmt.Errorf("%w: kinds contains unknown kind %q", ErrInvalidTuning, k)
		}
	}

	if t.Physics.SpringConstant <= 0 {
		return fmt.Errorf("%w: physics.spring_constant must be positive", ErrInvalidTuning)
	}
	if t.Physics.Compression <= 0 {
		return fmt.Errorf("%w: physics.compression must be positive", ErrInvalidTuning)
	}

	if len(t.Example) > MaxComponents {
		return fmt.Errorf("%w: example has %d parts, max %d", ErrInvalidTuning, len(t.Example), MaxComponents)
	}
	for i, p := range t.Example {
		if !p.Kind.Valid() {
			return fmt.Errorf("%w: example[%d] has unknown kind %q", ErrInvalidTuning, i, p.Kind)
		}
	}
	return nil
}

// LoadTuning reads a profile from a .json, .yaml or .yml file and validates it
func LoadTuning(path string) (*Tuning, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	t, err := DecodeTuning(filepath.Ext(path), data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", filepath.Base(path), err)
	}
	if err := ValidateTuning(t); err != nil {
		return nil, err
	}
	return t, nil
}

// DecodeTuning parses profile bytes. Fields missing from the document keep
// their built-in defaults.
func DecodeTuning(ext string, data []byte) (*Tuning, error) {
	t := DefaultTuning()
	// nil marks the example as absent from the document
	t.Example = nil
	var err error
	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, t)
	case ".json", "":
		err = json.Unmarshal(data, t)
	default:
		return nil, fmt.Errorf("unsupported profile format %q", ext)
	}
	if err != nil {
		return nil, err
	}
	if t.Example == nil {
		t.Example = DefaultTuning().Example
	}
	return t, nil
}
