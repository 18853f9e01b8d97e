package engine

import (
	"fmt"
	"math"
	"strings"
)

// Kind identifies the role a component plays in a mechanism
type Kind string

const (
	Actuator  Kind = "actuator"
	Retention Kind = "retention"
	Stop      Kind = "stop"
	Spring    Kind = "spring"
	Pivot     Kind = "pivot"
)

// Kinds lists every valid component kind in display order
var Kinds = []Kind{Actuator, Retention, Stop, Spring, Pivot}

// ParseKind converts user input into a Kind, rejecting anything outside the closed set
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	if !k.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
	}
	return k, nil
}

// Valid reports whether k is one of the known kinds
func (k Kind) Valid() bool {
	switch k {
	case Actuator, Retention, Stop, Spring, Pivot:
		return true
	}
	return false
}

// State is the interaction state of a single component or of the whole system
type State string

const (
	AtRest    State = "AT_REST"
	Preloaded State = "PRELOADED"
	Engaged   State = "ENGAGED"
	Blocked   State = "BLOCKED"
	Released  State = "RELEASED"
)

// ComponentID is a stable identifier; IDs are never reused within an engine
type ComponentID int

// Vec2 is a point on the workspace
type Vec2 struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
}

// Add returns v+o
func (v Vec2) Add(o Vec2) Vec2 {
	return Vec2{X: v.X + o.X, Y: v.Y + o.Y}
}

// Distance returns the Euclidean distance between two points
func Distance(a, b Vec2) float64 {
	return math.Hypot(a.X-b.X, a.Y-b.Y)
}

// Component is a placed mechanical part
type Component struct {
	ID       ComponentID `json:"id"`
	Kind     Kind        `json:"kind"`
	Position Vec2        `json:"position"`
	Rotation float64     `json:"rotation"`
	Extent   float64     `json:"extent"`
	Mass     float64     `json:"mass"`
	State    State       `json:"state"`
	Engaged  bool        `json:"engaged"`
	Blocked  bool        `json:"blocked"`
	Preload  float64     `json:"preload"`

	// Epoch is bumped on every state transition. Settle timers capture it
	// and do nothing if it moved on.
	Epoch uint64 `json:"epoch"`
}

// setState is the only writer of State and the derived flags
func (c *Component) setState(s State) {
	c.State = s
	c.Engaged = s == Engaged
	c.Blocked = s == Blocked
	c.Epoch++
}

// Engagement records an actuator captured by a retaining component
type Engagement struct {
	From ComponentID `json:"from"`
	To   ComponentID `json:"to"`
	Kind string      `json:"kind"`
}

// Constraint is a diagnostic overlap between two components; it is never enforced
type Constraint struct {
	Kind    string      `json:"kind"`
	A       ComponentID `json:"a"`
	B       ComponentID `json:"b"`
	Message string      `json:"message"`
}

// References reports whether the constraint names id
func (c Constraint) References(id ComponentID) bool {
	return c.A == id || c.B == id
}

// StatusLevel classifies the outcome of the last command
type StatusLevel string

const (
	StatusIdle   StatusLevel = "idle"
	StatusActive StatusLevel = "active"
	StatusError  StatusLevel = "error"
)

// Status is a non-fatal diagnostic describing the last command
type Status struct {
	Level   StatusLevel `json:"level"`
	Message string      `json:"message"`
}

// Failed reports whether the command was rejected
func (s Status) Failed() bool {
	return s.Level == StatusError
}

// Severity ranks failure report entries
type Severity string

const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

// Rank orders severities; higher is worse
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 4
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	}
	return 0
}

// FailureReport is one entry of the failure diagnosis
type FailureReport struct {
	Component   string      `json:"component"`
	ComponentID ComponentID `json:"component_id,omitempty"`
	Reason      string      `json:"reason"`
	Severity    Severity    `json:"severity"`
}

// Forces are the readouts derived from the physics constants of the profile
type Forces struct {
	SpringForce  float64 `json:"spring_force"`
	Velocity     float64 `json:"velocity"`
	ImpactEnergy float64 `json:"impact_energy"`
	ContactForce float64 `json:"contact_force"`
}

// Metrics are synthetic stress values in [0,100]
type Metrics struct {
	RotationStress float64 `json:"rotation_stress"`
	FrictionStress float64 `json:"friction_stress"`
	MassStress     float64 `json:"mass_stress"`
	ContactStress  float64 `json:"contact_stress"`
	SpringStress   float64 `json:"spring_stress"`
	Forces         Forces  `json:"forces"`
}

// Analysis is the result of a full analysis run
type Analysis struct {
	Metrics  Metrics         `json:"metrics"`
	Failures []FailureReport `json:"failures"`
}

// Snapshot is everything a renderer needs to draw the workspace
type Snapshot struct {
	Components  []Component     `json:"components"`
	Engagements []Engagement    `json:"engagements"`
	Constraints []Constraint    `json:"constraints"`
	SystemState State           `json:"system_state"`
	Metrics     Metrics         `json:"metrics"`
	Failures    []FailureReport `json:"failures"`
	Status      Status          `json:"status"`
	Dragging    ComponentID     `json:"dragging,omitempty"`
	Animating   bool            `json:"animating"`
}
