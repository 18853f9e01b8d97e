package engine

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/wricardo/mechanism-workbench/logging"
)

var ErrTooManyComponents = errors.New("too many components")

// Engine is the command and query surface of a workbench
type Engine interface {
	// Commands
	AddComponent(kind Kind, pos Vec2, opts ...ComponentOption) (ComponentID, error)
	RemoveComponent(id ComponentID) Status
	MoveComponent(id ComponentID, pos Vec2) Status
	SlideComponent(id ComponentID, pos Vec2) Status
	RotateComponent(id ComponentID, delta float64) Status
	BeginDrag(id ComponentID) Status
	DragTo(pos Vec2) Status
	EndDrag() Status
	ApplyInput() Status
	ReleaseInput() Status
	RunAnalysis() Analysis
	ClearAll(confirm bool) Status
	ResetStates() Status
	LoadExample() Status
	Tick(now time.Time) bool

	// Queries
	ListComponents() []Component
	ListEngagements() []Engagement
	ListConstraints() []Constraint
	CurrentSystemState() State
	CurrentMetrics() Metrics
	CurrentFailureReport() []FailureReport
	Status() Status
	Snapshot() *Snapshot
	Tuning() *Tuning
}

// Hooks are optional callbacks fired on state changes
type Hooks struct {
	OnTransition  func(c Component, from State)
	OnSystemState func(from, to State)
}

// Option configures a Workbench
type Option func(*Workbench)

// WithClock overrides the time source used to stamp animations and timers
func WithClock(now func() time.Time) Option {
	return func(w *Workbench) {
		w.now = now
	}
}

// WithLogger configures the structured logger
func WithLogger(logger *slog.Logger) Option {
	return func(w *Workbench) {
		w.logger = logger
	}
}

// WithHooks installs transition callbacks
func WithHooks(h Hooks) Option {
	return func(w *Workbench) {
		w.hooks = h
	}
}

// ComponentOption overrides placement defaults
type ComponentOption func(*Component)

// WithExtent overrides the footprint taken from the profile
func WithExtent(extent float64) ComponentOption {
	return func(c *Component) {
		if extent > 0 {
			c.Extent = extent
		}
	}
}

// WithRotation places the component already rotated
func WithRotation(rad float64) ComponentOption {
	return func(c *Component) {
		c.Rotation = rad
	}
}

// Workbench implements Engine. It is not safe for concurrent use; callers
// serialize access.
type Workbench struct {
	tuning      *Tuning
	registry    *Registry
	animator    *Animator
	engagements []Engagement
	constraints []Constraint
	systemState State
	systemEpoch uint64
	metrics     Metrics
	failures    []FailureReport
	impact      Forces
	status      Status
	dragging    ComponentID

	now    func() time.Time
	logger *slog.Logger
	hooks  Hooks
}

// NewEngine creates a workbench using the given profile
func NewEngine(tuning *Tuning, opts ...Option) (*Workbench, error) {
	if err := ValidateTuning(tuning); err != nil {
		return nil, err
	}
	w := &Workbench{
		tuning:      tuning,
		registry:    NewRegistry(),
		animator:    NewAnimator(),
		engagements: []Engagement{},
		constraints: []Constraint{},
		systemState: AtRest,
		failures:    []FailureReport{},
		status:      Status{Level: StatusIdle, Message: "Ready"},
		now:         time.Now,
		logger:      logging.NewNop(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// NewEngineWithDefaults creates a workbench with the built-in profile
func NewEngineWithDefaults(opts ...Option) *Workbench {
	w, _ := NewEngine(DefaultTuning(), opts...)
	return w
}

// Tuning returns the active profile
func (w *Workbench) Tuning() *Tuning {
	return w.tuning
}

func (w *Workbench) report(level StatusLevel, format string, args ...any) Status {
	w.status = Status{Level: level, Message: fmt.Sprintf(format, args...)}
	if level == StatusError {
		w.logger.Warn("command rejected", "msg", w.status.Message)
	} else {
		w.logger.Debug("status", "level", level, "msg", w.status.Message)
	}
	return w.status
}

func (w *Workbench) transition(c *Component, s State) {
	from := c.State
	c.setState(s)
	if w.hooks.OnTransition != nil {
		w.hooks.OnTransition(*c, from)
	}
}

func (w *Workbench) setSystem(s State) {
	from := w.systemState
	w.systemState = s
	w.systemEpoch++
	if w.hooks.OnSystemState != nil && from != s {
		w.hooks.OnSystemState(from, s)
	}
}

func (w *Workbench) recomputeConstraints() {
	w.constraints = RecomputeConstraints(w.registry.All())
}

func (w *Workbench) recomputeMetrics() {
	w.metrics = ComputeMetrics(w.registry, w.tuning, w.impact)
}

func (w *Workbench) dropEngagementsFor(id ComponentID, fromOnly bool) {
	kept := w.engagements[:0]
	for _, e := range w.engagements {
		if e.From == id || (!fromOnly && e.To == id) {
			continue
		}
		kept = append(kept, e)
	}
	w.engagements = kept
}

// disengage drops the actuator's engagements and returns retentions no longer
// captured by anything to rest, except keep
func (w *Workbench) disengage(actuatorID, keep ComponentID) {
	var targets []ComponentID
	for _, e := range w.engagements {
		if e.From == actuatorID {
			targets = append(targets, e.To)
		}
	}
	w.dropEngagementsFor(actuatorID, true)

	for _, id := range targets {
		if id == keep || w.captured(id) {
			continue
		}
		if c := w.registry.Get(id); c != nil && c.State == Engaged {
			w.transition(c, AtRest)
		}
	}
}

func (w *Workbench) captured(id ComponentID) bool {
	for _, e := range w.engagements {
		if e.To == id {
			return true
		}
	}
	return false
}

// AddComponent places a new component at rest
func (w *Workbench) AddComponent(kind Kind, pos Vec2, opts ...ComponentOption) (ComponentID, error) {
	if !kind.Valid() {
		w.report(StatusError, "Unknown component kind %q", kind)
		return 0, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	if w.registry.Len() >= MaxComponents {
		w.report(StatusError, "Workspace is full (%d components)", MaxComponents)
		return 0, fmt.Errorf("%w: limit is %d", ErrTooManyComponents, MaxComponents)
	}

	kt := w.tuning.Kinds[kind]
	c := w.registry.Add(kind, pos, kt.Extent, kt.Mass)
	for _, opt := range opts {
		opt(c)
	}
	w.recomputeConstraints()
	w.report(StatusIdle, "Added %s component", kind)
	return c.ID, nil
}

// RemoveComponent deletes a component and everything that references it.
// Unknown IDs are a no-op.
func (w *Workbench) RemoveComponent(id ComponentID) Status {
	c := w.registry.Get(id)
	if c == nil {
		return w.report(StatusIdle, "Component #%d not found, nothing removed", id)
	}
	w.registry.Remove(id)
	w.animator.Cancel(id)
	w.dropEngagementsFor(id, false)
	if w.dragging == id {
		w.dragging = 0
	}
	w.recomputeConstraints()
	return w.report(StatusIdle, "Removed %s", label(c))
}

// MoveComponent sets a position immediately
func (w *Workbench) MoveComponent(id ComponentID, pos Vec2) Status {
	c := w.registry.Get(id)
	if c == nil {
		return w.report(StatusError, "Component #%d not found", id)
	}
	w.animator.Stop(id, PropPosition)
	c.Position = pos
	w.recomputeConstraints()
	return w.report(StatusIdle, "Moved %s to (%.1f, %.1f)", label(c), pos.X, pos.Y)
}

// SlideComponent animates a position change over the slide duration
func (w *Workbench) SlideComponent(id ComponentID, pos Vec2) Status {
	c := w.registry.Get(id)
	if c == nil {
		return w.report(StatusError, "Component #%d not found", id)
	}
	w.animator.Animate(id, PropPosition, c.Position, pos, w.now(), w.tuning.slideDuration(), nil)
	return w.report(StatusActive, "Sliding %s to (%.1f, %.1f)", label(c), pos.X, pos.Y)
}

// RotateComponent nudges a component's rotation by delta radians
func (w *Workbench) RotateComponent(id ComponentID, delta float64) Status {
	c := w.registry.Get(id)
	if c == nil {
		return w.report(StatusError, "Component #%d not found", id)
	}
	base := c.Rotation
	if target, ok := w.animator.Target(id, PropRotation); ok {
		base = target.X
	}
	w.rotate(c, base+delta, w.tuning.nudgeDuration())
	return w.report(StatusActive, "Rotating %s by %.1f°", label(c), delta*180/math.Pi)
}

func (w *Workbench) rotate(c *Component, target float64, d time.Duration) {
	w.animator.Animate(c.ID, PropRotation, Vec2{X: c.Rotation}, Vec2{X: target}, w.now(), d, nil)
}

// BeginDrag claims a component for a drag gesture. Only one claim may be held.
func (w *Workbench) BeginDrag(id ComponentID) Status {
	c := w.registry.Get(id)
	if c == nil {
		return w.report(StatusError, "Component #%d not found", id)
	}
	if w.dragging != 0 && w.dragging != id {
		return w.report(StatusError, "Component #%d is already being dragged", w.dragging)
	}
	w.dragging = id
	return w.report(StatusActive, "Dragging %s", label(c))
}

// DragTo moves the claimed component
func (w *Workbench) DragTo(pos Vec2) Status {
	if w.dragging == 0 {
		return w.report(StatusError, "No component is being dragged")
	}
	return w.MoveComponent(w.dragging, pos)
}

// EndDrag releases the drag claim
func (w *Workbench) EndDrag() Status {
	if w.dragging == 0 {
		return w.report(StatusIdle, "No drag in progress")
	}
	id := w.dragging
	w.dragging = 0
	return w.report(StatusIdle, "Dropped component #%d", id)
}

// Dragging returns the claimed component, or 0
func (w *Workbench) Dragging() ComponentID {
	return w.dragging
}

// ApplyInput drives the actuator and resolves blocking, engagement or preload
func (w *Workbench) ApplyInput() Status {
	actuator := w.registry.FindFirstOfKind(Actuator)
	if actuator == nil {
		return w.report(StatusError, "No actuator component found")
	}

	all := w.registry.All()
	var st Status

	if stop := OverlappingOfKind(actuator, all, Stop); stop != nil {
		w.setSystem(Blocked)
		w.transition(actuator, Blocked)
		w.disengage(actuator.ID, 0)
		st = w.report(StatusIdle, "Motion blocked by %s", label(stop))
	} else if retention := OverlappingOfKind(actuator, all, Retention); retention != nil {
		w.disengage(actuator.ID, retention.ID)
		w.setSystem(Engaged)
		w.transition(actuator, Engaged)
		w.transition(retention, Engaged)
		w.engagements = append(w.engagements, Engagement{
			From: actuator.ID,
			To:   retention.ID,
			Kind: string(Retention),
		})
		w.load(actuator, w.tuning.engageRadians(), w.tuning.engageDuration())
		st = w.report(StatusActive, "%s engaged by %s", label(actuator), label(retention))
	} else {
		w.setSystem(Preloaded)
		w.transition(actuator, Preloaded)
		w.disengage(actuator.ID, 0)
		w.load(actuator, w.tuning.preloadRadians(), w.tuning.preloadDuration())
		st = w.report(StatusActive, "%s preloaded, nothing captured it", label(actuator))
	}

	w.impact = Forces{}
	w.recomputeMetrics()
	return st
}

func (w *Workbench) load(actuator *Component, target float64, d time.Duration) {
	actuator.Preload += math.Abs(target - actuator.Rotation)
	w.rotate(actuator, target, d)
}

// ReleaseInput lets every loaded component return to rest. Engagements are
// cleared at once; component and system state settle after a fixed delay.
func (w *Workbench) ReleaseInput() Status {
	w.engagements = []Engagement{}

	var released []*Component
	for _, c := range w.registry.All() {
		if loaded(c) {
			released = append(released, c)
		}
	}
	if len(released) == 0 {
		return w.report(StatusError, "Nothing to release")
	}

	now := w.now()
	actuator := w.registry.FindFirstOfKind(Actuator)
	for _, c := range released {
		w.transition(c, Released)
		w.rotate(c, 0, w.tuning.releaseDuration())
		w.scheduleSettle(c, now)
		if c == actuator {
			w.impact = ComputeImpact(w.tuning, actuator)
		}
	}

	w.setSystem(Released)
	epoch := w.systemEpoch
	w.animator.After(now, w.tuning.settleDelay(), func() {
		if w.systemEpoch == epoch {
			w.setSystem(AtRest)
		}
	})

	w.recomputeMetrics()
	return w.report(StatusActive, "Released %d component(s)", len(released))
}

func (w *Workbench) scheduleSettle(c *Component, now time.Time) {
	id, epoch := c.ID, c.Epoch
	w.animator.After(now, w.tuning.settleDelay(), func() {
		cur := w.registry.Get(id)
		if cur == nil || cur.Epoch != epoch {
			return
		}
		w.transition(cur, AtRest)
		cur.Preload = 0
		w.recomputeMetrics()
	})
}

// ResetStates returns every component to rest and animates rotations back to zero
func (w *Workbench) ResetStates() Status {
	for _, c := range w.registry.All() {
		w.animator.Stop(c.ID, PropRotation)
		if c.State != AtRest {
			w.transition(c, AtRest)
		} else {
			c.Epoch++
		}
		c.Preload = 0
		if c.Rotation != 0 {
			w.rotate(c, 0, w.tuning.settleDelay())
		}
	}
	w.engagements = []Engagement{}
	w.setSystem(AtRest)
	w.impact = Forces{}
	w.recomputeMetrics()
	return w.report(StatusIdle, "System reset")
}

// ClearAll discards the workspace. It does nothing unless confirm is set.
func (w *Workbench) ClearAll(confirm bool) Status {
	if !confirm {
		return w.report(StatusError, "Clearing the workspace requires confirmation")
	}
	w.registry.Clear()
	w.animator.CancelAll()
	w.engagements = []Engagement{}
	w.constraints = []Constraint{}
	w.failures = []FailureReport{}
	w.dragging = 0
	w.impact = Forces{}
	w.setSystem(AtRest)
	w.metrics = Metrics{}
	return w.report(StatusIdle, "Workspace cleared")
}

// LoadExample replaces the workspace with the profile's canonical layout
func (w *Workbench) LoadExample() Status {
	w.ClearAll(true)
	for _, part := range w.tuning.Example {
		kt := w.tuning.Kinds[part.Kind]
		w.registry.Add(part.Kind, w.tuning.Anchor.Add(part.Offset), kt.Extent, kt.Mass)
	}
	w.recomputeConstraints()
	w.recomputeMetrics()
	return w.report(StatusIdle, "Example system loaded")
}

// RunAnalysis recomputes metrics and the failure report from the current components
func (w *Workbench) RunAnalysis() Analysis {
	w.recomputeMetrics()
	w.failures = AnalyzeFailures(w.registry)
	w.report(StatusIdle, "Analysis complete: %d finding(s)", len(w.failures))
	return Analysis{
		Metrics:  w.metrics,
		Failures: w.CurrentFailureReport(),
	}
}

// Tick advances animations and fires due settle timers. It reports whether
// anything changed.
func (w *Workbench) Tick(now time.Time) bool {
	moved := false
	changed := w.animator.Advance(now, func(id ComponentID, prop Property, v Vec2) {
		c := w.registry.Get(id)
		if c == nil {
			return
		}
		switch prop {
		case PropRotation:
			c.Rotation = v.X
		case PropPosition:
			c.Position = v
			moved = true
		}
	})
	if moved {
		w.recomputeConstraints()
	}
	return changed
}

// Animating reports whether tweens or timers are still pending
func (w *Workbench) Animating() bool {
	return w.animator.Active()
}

// ListComponents returns copies of the components in insertion order
func (w *Workbench) ListComponents() []Component {
	all := w.registry.All()
	out := make([]Component, len(all))
	for i, c := range all {
		out[i] = *c
	}
	return out
}

// GetComponent returns a copy of a component
func (w *Workbench) GetComponent(id ComponentID) (Component, bool) {
	c := w.registry.Get(id)
	if c == nil {
		return Component{}, false
	}
	return *c, true
}

// ListEngagements returns the current engagement set
func (w *Workbench) ListEngagements() []Engagement {
	return append([]Engagement{}, w.engagements...)
}

// ListConstraints returns the current constraint set
func (w *Workbench) ListConstraints() []Constraint {
	return append([]Constraint{}, w.constraints...)
}

// CurrentSystemState returns the aggregate system state
func (w *Workbench) CurrentSystemState() State {
	return w.systemState
}

// CurrentMetrics returns the metrics of the last apply, release or analysis
func (w *Workbench) CurrentMetrics() Metrics {
	return w.metrics
}

// CurrentFailureReport returns the report of the last analysis
func (w *Workbench) CurrentFailureReport() []FailureReport {
	return append([]FailureReport{}, w.failures...)
}

// Status returns the outcome of the last command
func (w *Workbench) Status() Status {
	return w.status
}

// Snapshot collects every query into one value for renderers
func (w *Workbench) Snapshot() *Snapshot {
	return &Snapshot{
		Components:  w.ListComponents(),
		Engagements: w.ListEngagements(),
		Constraints: w.ListConstraints(),
		SystemState: w.systemState,
		Metrics:     w.metrics,
		Failures:    w.CurrentFailureReport(),
		Status:      w.status,
		Dragging:    w.dragging,
		Animating:   w.animator.Active(),
	}
}
