package service

import (
	"context"
	"errors"
	"time"

	"github.com/wricardo/mechanism-workbench/workbench/engine"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrProfileNotFound = errors.New("profile not found")
	ErrInvalidProfile  = errors.New("invalid profile")
	ErrCommandRejected = errors.New("command rejected")
)

// WorkbenchService defines all workbench operations
type WorkbenchService interface {
	// Session Management
	CreateSession(ctx context.Context, profileName string) (*SessionInfo, error)
	GetSession(ctx context.Context, sessionID string) (*SessionInfo, error)
	ListSessions(ctx context.Context) ([]*SessionInfo, error)
	DeleteSession(ctx context.Context, sessionID string) error

	// Components
	AddComponent(ctx context.Context, sessionID string, req AddComponentRequest) (*CommandResult, error)
	RemoveComponent(ctx context.Context, sessionID string, id engine.ComponentID) (*CommandResult, error)
	MoveComponent(ctx context.Context, sessionID string, id engine.ComponentID, pos engine.Vec2, animate bool) (*CommandResult, error)
	RotateComponent(ctx context.Context, sessionID string, id engine.ComponentID, delta float64) (*CommandResult, error)
	BeginDrag(ctx context.Context, sessionID string, id engine.ComponentID) (*CommandResult, error)
	DragTo(ctx context.Context, sessionID string, pos engine.Vec2) (*CommandResult, error)
	EndDrag(ctx context.Context, sessionID string) (*CommandResult, error)

	// Interaction
	ApplyInput(ctx context.Context, sessionID string) (*CommandResult, error)
	ReleaseInput(ctx context.Context, sessionID string) (*CommandResult, error)
	RunAnalysis(ctx context.Context, sessionID string) (*AnalysisResult, error)
	ResetStates(ctx context.Context, sessionID string) (*CommandResult, error)
	LoadExample(ctx context.Context, sessionID string) (*CommandResult, error)
	ClearAll(ctx context.Context, sessionID string, confirm bool) (*CommandResult, error)

	// Queries
	GetState(ctx context.Context, sessionID string) (*engine.Snapshot, error)
	ListComponents(ctx context.Context, sessionID string) ([]engine.Component, error)
	ListEngagements(ctx context.Context, sessionID string) ([]engine.Engagement, error)
	ListConstraints(ctx context.Context, sessionID string) ([]engine.Constraint, error)
	GetMetrics(ctx context.Context, sessionID string) (*engine.Metrics, error)
	GetFailureReport(ctx context.Context, sessionID string) ([]engine.FailureReport, error)

	// Profiles
	ListProfiles(ctx context.Context) ([]*ProfileInfo, error)
	LoadProfile(ctx context.Context, name string) (*engine.Tuning, error)
}

// SessionManager defines session storage operations
type SessionManager interface {
	Create(id string, tuning *engine.Tuning, opts ...engine.Option) (*Session, error)
	Get(id string) (*Session, error)
	List() []*Session
	Delete(id string) error
	UpdateLastAccessed(id string) error
	CleanupExpiredSessions(maxAge time.Duration) int
	Count() int
}

// ProfileManager handles tuning profile loading
type ProfileManager interface {
	LoadProfile(name string) (*engine.Tuning, error)
	ListProfiles() ([]*ProfileInfo, error)
	GetDefault() *engine.Tuning
}

// Session is one live workbench
type Session struct {
	ID             string
	Engine         *engine.Workbench
	Profile        string
	CreatedAt      time.Time
	LastAccessedAt time.Time
}
