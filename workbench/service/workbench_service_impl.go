package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/wricardo/mechanism-workbench/logging"
	"github.com/wricardo/mechanism-workbench/telemetry"
	"github.com/wricardo/mechanism-workbench/workbench/engine"
)

// DefaultFrameInterval is the tick period of the frame loop
const DefaultFrameInterval = 16 * time.Millisecond

// Service implements WorkbenchService. A single mutex serializes every
// engine call, including frame ticks.
type Service struct {
	sessions   SessionManager
	profiles   ProfileManager
	metrics    *telemetry.Metrics
	logger     *slog.Logger
	now        func() time.Time
	sessionTTL time.Duration
	mu         sync.Mutex
}

// Option configures a Service
type Option func(*Service)

// WithLogger configures the structured logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithMetrics records commands, transitions and analyses
func WithMetrics(m *telemetry.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithClock overrides the time source shared by the service and its engines
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// WithSessionTTL makes the frame loop drop sessions idle for longer than ttl
func WithSessionTTL(ttl time.Duration) Option {
	return func(s *Service) {
		s.sessionTTL = ttl
	}
}

// NewWorkbenchService creates a new workbench service instance
func NewWorkbenchService(sessions SessionManager, profiles ProfileManager, opts ...Option) *Service {
	s := &Service{
		sessions: sessions,
		profiles: profiles,
		logger:   logging.NewNop(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) engineOptions() []engine.Option {
	return []engine.Option{
		engine.WithClock(s.now),
		engine.WithLogger(s.logger),
		engine.WithHooks(s.metrics.Hooks()),
	}
}

// lookup fetches a session and marks it accessed. Callers hold s.mu.
func (s *Service) lookup(sessionID string) (*Session, error) {
	sess, err := s.sessions.Get(sessionID)
	if err != nil {
		return nil, fmt.Errorf("session %s: %w", sessionID, err)
	}
	s.sessions.UpdateLastAccessed(sessionID)
	return sess, nil
}

func (s *Service) sessionInfo(sess *Session) *SessionInfo {
	return &SessionInfo{
		ID:             sess.ID,
		Profile:        sess.Profile,
		CreatedAt:      sess.CreatedAt,
		LastAccessedAt: sess.LastAccessedAt,
		State:          sess.Engine.Snapshot(),
	}
}

// CreateSession creates a new workbench session
func (s *Service) CreateSession(ctx context.Context, profileName string) (*SessionInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var tuning *engine.Tuning
	profileID := profileName
	if profileName != "" {
		var err error
		tuning, err = s.profiles.LoadProfile(profileName)
		if err != nil {
			if errors.Is(err, ErrProfileNotFound) {
				// Provide helpful error message with available options
				if available, listErr := s.profiles.ListProfiles(); listErr == nil && len(available) > 0 {
					ids := make([]string, 0, len(available))
					for _, p := range available {
						ids = append(ids, p.ProfileID)
					}
					return nil, fmt.Errorf("%w: '%s'. Available profiles: %v", ErrProfileNotFound, profileName, ids)
				}
				return nil, fmt.Errorf("%w: '%s'. Use /api/profiles to list available profiles", ErrProfileNotFound, profileName)
			}
			return nil, fmt.Errorf("failed to load profile %s: %w", profileName, err)
		}
	} else {
		tuning = s.profiles.GetDefault()
		profileID = tuning.Name
	}

	sess, err := s.sessions.Create("", tuning, s.engineOptions()...)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	sess.Profile = profileID

	s.metrics.SetSessions(s.sessions.Count())
	logging.ForSession(s.logger, sess.ID).Info("session created", "profile", profileID)
	return s.sessionInfo(sess), nil
}

// GetSession retrieves session information
func (s *Service) GetSession(ctx context.Context, sessionID string) (*SessionInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.lookup(sessionID)
	if err != nil {
		return nil, err
	}
	return s.sessionInfo(sess), nil
}

// ListSessions returns all active sessions, most recently used first
func (s *Service) ListSessions(ctx context.Context) ([]*SessionInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sessions := s.sessions.List()
	result := make([]*SessionInfo, 0, len(sessions))
	for _, sess := range sessions {
		result = append(result, s.sessionInfo(sess))
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].LastAccessedAt.After(result[j].LastAccessedAt)
	})
	return result, nil
}

// DeleteSession removes a session
func (s *Service) DeleteSession(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.sessions.Delete(sessionID); err != nil {
		return fmt.Errorf("session %s: %w", sessionID, err)
	}
	s.metrics.SetSessions(s.sessions.Count())
	return nil
}

// command runs fn against a session's engine under the service lock
func (s *Service) command(sessionID, name string, fn func(wb *engine.Workbench) engine.Status) (*CommandResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.lookup(sessionID)
	if err != nil {
		return nil, err
	}

	st := fn(sess.Engine)
	s.metrics.ObserveCommand(name, st)
	logging.ForSession(s.logger, sessionID).Debug("command", "command", name, "level", st.Level, "msg", st.Message)

	return &CommandResult{
		Success: !st.Failed(),
		Status:  st,
		State:   sess.Engine.Snapshot(),
	}, nil
}

// AddComponent places a new component
func (s *Service) AddComponent(ctx context.Context, sessionID string, req AddComponentRequest) (*CommandResult, error) {
	kind, err := engine.ParseKind(req.Kind)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCommandRejected, err)
	}

	var opts []engine.ComponentOption
	if req.Extent != nil {
		if *req.Extent <= 0 || *req.Extent > engine.MaxExtent {
			return nil, fmt.Errorf("%w: extent must be in (0,%d]", ErrCommandRejected, engine.MaxExtent)
		}
		opts = append(opts, engine.WithExtent(*req.Extent))
	}
	if req.Rotation != nil {
		opts = append(opts, engine.WithRotation(*req.Rotation))
	}

	var id engine.ComponentID
	var addErr error
	result, err := s.command(sessionID, "add_component", func(wb *engine.Workbench) engine.Status {
		id, addErr = wb.AddComponent(kind, engine.Vec2{X: req.X, Y: req.Y}, opts...)
		return wb.Status()
	})
	if err != nil {
		return nil, err
	}
	if addErr != nil {
		return nil, fmt.Errorf("%w: %v", ErrCommandRejected, addErr)
	}
	result.ComponentID = id
	return result, nil
}

// RemoveComponent deletes a component; unknown IDs are a no-op
func (s *Service) RemoveComponent(ctx context.Context, sessionID string, id engine.ComponentID) (*CommandResult, error) {
	return s.command(sessionID, "remove_component", func(wb *engine.Workbench) engine.Status {
		return wb.RemoveComponent(id)
	})
}

// MoveComponent moves a component immediately, or slides it when animate is set
func (s *Service) MoveComponent(ctx context.Context, sessionID string, id engine.ComponentID, pos engine.Vec2, animate bool) (*CommandResult, error) {
	return s.command(sessionID, "move_component", func(wb *engine.Workbench) engine.Status {
		if animate {
			return wb.SlideComponent(id, pos)
		}
		return wb.MoveComponent(id, pos)
	})
}

// RotateComponent nudges a component by delta radians
func (s *Service) RotateComponent(ctx context.Context, sessionID string, id engine.ComponentID, delta float64) (*CommandResult, error) {
	return s.command(sessionID, "rotate_component", func(wb *engine.Workbench) engine.Status {
		return wb.RotateComponent(id, delta)
	})
}

// BeginDrag claims a component for dragging
func (s *Service) BeginDrag(ctx context.Context, sessionID string, id engine.ComponentID) (*CommandResult, error) {
	return s.command(sessionID, "begin_drag", func(wb *engine.Workbench) engine.Status {
		return wb.BeginDrag(id)
	})
}

// DragTo moves the claimed component
func (s *Service) DragTo(ctx context.Context, sessionID string, pos engine.Vec2) (*CommandResult, error) {
	return s.command(sessionID, "drag_to", func(wb *engine.Workbench) engine.Status {
		return wb.DragTo(pos)
	})
}

// EndDrag releases the drag claim
func (s *Service) EndDrag(ctx context.Context, sessionID string) (*CommandResult, error) {
	return s.command(sessionID, "end_drag", func(wb *engine.Workbench) engine.Status {
		return wb.EndDrag()
	})
}

// ApplyInput drives the actuator
func (s *Service) ApplyInput(ctx context.Context, sessionID string) (*CommandResult, error) {
	return s.command(sessionID, "apply", func(wb *engine.Workbench) engine.Status {
		return wb.ApplyInput()
	})
}

// ReleaseInput releases every loaded component
func (s *Service) ReleaseInput(ctx context.Context, sessionID string) (*CommandResult, error) {
	return s.command(sessionID, "release", func(wb *engine.Workbench) engine.Status {
		return wb.ReleaseInput()
	})
}

// ResetStates returns every component to rest
func (s *Service) ResetStates(ctx context.Context, sessionID string) (*CommandResult, error) {
	return s.command(sessionID, "reset", func(wb *engine.Workbench) engine.Status {
		return wb.ResetStates()
	})
}

// LoadExample seeds the profile's example layout
func (s *Service) LoadExample(ctx context.Context, sessionID string) (*CommandResult, error) {
	return s.command(sessionID, "example", func(wb *engine.Workbench) engine.Status {
		return wb.LoadExample()
	})
}

// ClearAll discards every component once confirmed
func (s *Service) ClearAll(ctx context.Context, sessionID string, confirm bool) (*CommandResult, error) {
	return s.command(sessionID, "clear", func(wb *engine.Workbench) engine.Status {
		return wb.ClearAll(confirm)
	})
}

// RunAnalysis waits for the profile's display delay, then analyzes the
// session. The lock is not held while waiting.
func (s *Service) RunAnalysis(ctx context.Context, sessionID string) (*AnalysisResult, error) {
	start := s.now()

	s.mu.Lock()
	sess, err := s.lookup(sessionID)
	var delay time.Duration
	if err == nil {
		delay = sess.Engine.Tuning().AnalysisDelay()
	}
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	if err := sleepCtx(ctx, delay); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// The session may have been deleted while waiting
	sess, err = s.lookup(sessionID)
	if err != nil {
		return nil, err
	}

	analysis := sess.Engine.RunAnalysis()
	s.metrics.ObserveCommand("analysis", sess.Engine.Status())
	s.metrics.ObserveAnalysis(s.now().Sub(start).Seconds(), analysis.Failures)
	logging.ForSession(s.logger, sessionID).Info("analysis complete", "failures", len(analysis.Failures))

	return &AnalysisResult{
		Metrics:  analysis.Metrics,
		Failures: analysis.Failures,
		Waited:   delay,
		State:    sess.Engine.Snapshot(),
	}, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// query runs fn against a session's engine under the service lock
func query[T any](s *Service, sessionID string, fn func(wb *engine.Workbench) T) (T, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.lookup(sessionID)
	if err != nil {
		var zero T
		return zero, err
	}
	return fn(sess.Engine), nil
}

// GetState returns the full snapshot of a session
func (s *Service) GetState(ctx context.Context, sessionID string) (*engine.Snapshot, error) {
	return query(s, sessionID, (*engine.Workbench).Snapshot)
}

// ListComponents returns the components of a session
func (s *Service) ListComponents(ctx context.Context, sessionID string) ([]engine.Component, error) {
	return query(s, sessionID, (*engine.Workbench).ListComponents)
}

// ListEngagements returns the engagements of a session
func (s *Service) ListEngagements(ctx context.Context, sessionID string) ([]engine.Engagement, error) {
	return query(s, sessionID, (*engine.Workbench).ListEngagements)
}

// ListConstraints returns the constraints of a session
func (s *Service) ListConstraints(ctx context.Context, sessionID string) ([]engine.Constraint, error) {
	return query(s, sessionID, (*engine.Workbench).ListConstraints)
}

// GetMetrics returns the current metrics of a session
func (s *Service) GetMetrics(ctx context.Context, sessionID string) (*engine.Metrics, error) {
	return query(s, sessionID, func(wb *engine.Workbench) *engine.Metrics {
		m := wb.CurrentMetrics()
		return &m
	})
}

// GetFailureReport returns the report of the last analysis
func (s *Service) GetFailureReport(ctx context.Context, sessionID string) ([]engine.FailureReport, error) {
	return query(s, sessionID, (*engine.Workbench).CurrentFailureReport)
}

// ListProfiles returns the available tuning profiles
func (s *Service) ListProfiles(ctx context.Context) ([]*ProfileInfo, error) {
	return s.profiles.ListProfiles()
}

// LoadProfile returns a tuning profile by name
func (s *Service) LoadProfile(ctx context.Context, name string) (*engine.Tuning, error) {
	return s.profiles.LoadProfile(name)
}

// Tick advances every session to now and returns snapshots of the sessions
// that changed
func (s *Service) Tick(now time.Time) map[string]*engine.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	var changed map[string]*engine.Snapshot
	for _, sess := range s.sessions.List() {
		if !sess.Engine.Tick(now) {
			continue
		}
		if changed == nil {
			changed = make(map[string]*engine.Snapshot)
		}
		changed[sess.ID] = sess.Engine.Snapshot()
	}
	return changed
}

// Run drives the frame loop until ctx is done. onChange receives every
// snapshot produced by a tick that changed something.
func (s *Service) Run(ctx context.Context, interval time.Duration, onChange func(sessionID string, snap *engine.Snapshot)) error {
	if interval <= 0 {
		interval = DefaultFrameInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var cleanup <-chan time.Time
	if s.sessionTTL > 0 {
		ct := time.NewTicker(time.Minute)
		defer ct.Stop()
		cleanup = ct.C
	}

	s.logger.Info("frame loop started", "interval", interval)
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("frame loop stopped")
			return ctx.Err()
		case <-ticker.C:
			for id, snap := range s.Tick(s.now()) {
				if onChange != nil {
					onChange(id, snap)
				}
			}
		case <-cleanup:
			s.CleanupExpired()
		}
	}
}

// CleanupExpired removes sessions idle for longer than the configured TTL
func (s *Service) CleanupExpired() int {
	if s.sessionTTL <= 0 {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := s.sessions.CleanupExpiredSessions(s.sessionTTL)
	if removed > 0 {
		s.logger.Info("expired sessions removed", "count", removed)
		s.metrics.SetSessions(s.sessions.Count())
	}
	return removed
}

var _ WorkbenchService = (*Service)(nil)
