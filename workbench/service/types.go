package service

import (
	"time"

	"github.com/wricardo/mechanism-workbench/workbench/engine"
)

// SessionInfo provides information about a workbench session
type SessionInfo struct {
	ID             string           `json:"id"`
	Profile        string           `json:"profile"`
	CreatedAt      time.Time        `json:"created_at"`
	LastAccessedAt time.Time        `json:"last_accessed_at"`
	State          *engine.Snapshot `json:"state"`
}

// AddComponentRequest places a component. Extent and Rotation are optional
// overrides of the profile defaults.
type AddComponentRequest struct {
	Kind     string   `json:"kind" mapstructure:"kind"`
	X        float64  `json:"x" mapstructure:"x"`
	Y        float64  `json:"y" mapstructure:"y"`
	Extent   *float64 `json:"extent,omitempty" mapstructure:"extent"`
	Rotation *float64 `json:"rotation,omitempty" mapstructure:"rotation"`
}

// CommandResult contains the outcome of a command and the resulting state
type CommandResult struct {
	Success     bool               `json:"success"`
	Status      engine.Status      `json:"status"`
	ComponentID engine.ComponentID `json:"component_id,omitempty"`
	State       *engine.Snapshot   `json:"state"`
}

// AnalysisResult contains metrics and the ranked failure report
type AnalysisResult struct {
	Metrics  engine.Metrics         `json:"metrics"`
	Failures []engine.FailureReport `json:"failures"`
	Waited   time.Duration          `json:"waited_ns"`
	State    *engine.Snapshot       `json:"state"`
}

// ProfileInfo provides information about a tuning profile
type ProfileInfo struct {
	Filename     string  `json:"filename,omitempty"`
	ProfileID    string  `json:"profile_id"` // The identifier to use for session creation
	Name         string  `json:"name"`
	Description  string  `json:"description"`
	EngageAngle  float64 `json:"engage_angle_deg"`
	PreloadAngle float64 `json:"preload_angle_deg"`
}
