package engine

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) advance(d time.Duration) time.Time {
	c.now = c.now.Add(d)
	return c.now
}

func newTestWorkbench(t *testing.T, opts ...Option) (*Workbench, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	wb, err := NewEngine(DefaultTuning(), append([]Option{WithClock(clock.Now)}, opts...)...)
	require.NoError(t, err)
	return wb, clock
}

func mustAdd(t *testing.T, wb *Workbench, kind Kind, x, y float64) ComponentID {
	t.Helper()
	id, err := wb.AddComponent(kind, Vec2{X: x, Y: y})
	require.NoError(t, err)
	return id
}

func component(t *testing.T, wb *Workbench, id ComponentID) Component {
	t.Helper()
	c, ok := wb.GetComponent(id)
	require.True(t, ok, "component #%d missing", id)
	return c
}

func TestNewEngine(t *testing.T) {
	wb, _ := newTestWorkbench(t)

	assert.Equal(t, AtRest, wb.CurrentSystemState())
	assert.Empty(t, wb.ListComponents())
	assert.NotNil(t, wb.ListEngagements())
	assert.NotNil(t, wb.ListConstraints())
	assert.Equal(t, StatusIdle, wb.Status().Level)
	assert.False(t, wb.Animating())
}

func TestNewEngineRejectsInvalidTuning(t *testing.T) {
	tuning := DefaultTuning()
	tuning.EngageAngle = 0

	_, err := NewEngine(tuning)
	assert.ErrorIs(t, err, ErrInvalidTuning)
}

func TestAddComponent(t *testing.T) {
	wb, _ := newTestWorkbench(t)

	id := mustAdd(t, wb, Actuator, 10, 20)
	c := component(t, wb, id)

	assert.Equal(t, ComponentID(1), id)
	assert.Equal(t, Actuator, c.Kind)
	assert.Equal(t, Vec2{X: 10, Y: 20}, c.Position)
	assert.Equal(t, AtRest, c.State)
	assert.Equal(t, 200.0, c.Extent)
	assert.Equal(t, 0.05, c.Mass)
	assert.Zero(t, c.Rotation)
}

func TestAddComponentOptions(t *testing.T) {
	wb, _ := newTestWorkbench(t)

	id, err := wb.AddComponent(Retention, Vec2{}, WithExtent(33), WithRotation(1.5))
	require.NoError(t, err)

	c := component(t, wb, id)
	assert.Equal(t, 33.0, c.Extent)
	assert.Equal(t, 1.5, c.Rotation)
}

func TestAddComponentRejectsUnknownKind(t *testing.T) {
	wb, _ := newTestWorkbench(t)

	_, err := wb.AddComponent(Kind("hammer"), Vec2{})
	assert.ErrorIs(t, err, ErrUnknownKind)
	assert.True(t, wb.Status().Failed())
	assert.Empty(t, wb.ListComponents())
}

func TestAddComponentLimit(t *testing.T) {
	wb, _ := newTestWorkbench(t)

	for i := 0; i < MaxComponents; i++ {
		mustAdd(t, wb, Pivot, float64(i*1000), 0)
	}
	_, err := wb.AddComponent(Pivot, Vec2{})
	assert.ErrorIs(t, err, ErrTooManyComponents)
	assert.Len(t, wb.ListComponents(), MaxComponents)
}

func TestIDsAreNeverReused(t *testing.T) {
	wb, _ := newTestWorkbench(t)

	a := mustAdd(t, wb, Pivot, 0, 0)
	wb.RemoveComponent(a)
	b := mustAdd(t, wb, Pivot, 0, 0)
	wb.ClearAll(true)
	c := mustAdd(t, wb, Pivot, 0, 0)

	assert.Equal(t, []ComponentID{1, 2, 3}, []ComponentID{a, b, c})
}

func TestAddThenRemove(t *testing.T) {
	wb, _ := newTestWorkbench(t)

	actuator := mustAdd(t, wb, Actuator, 300, 350)
	retention := mustAdd(t, wb, Retention, 450, 350)
	require.False(t, wb.ApplyInput().Failed())
	require.Len(t, wb.ListEngagements(), 1)
	require.Len(t, wb.ListConstraints(), 1)

	wb.RemoveComponent(retention)

	for _, c := range wb.ListComponents() {
		assert.NotEqual(t, retention, c.ID)
	}
	for _, e := range wb.ListEngagements() {
		assert.NotEqual(t, retention, e.From)
		assert.NotEqual(t, retention, e.To)
	}
	for _, c := range wb.ListConstraints() {
		assert.False(t, c.References(retention))
	}
	assert.Len(t, wb.ListComponents(), 1)
	assert.Equal(t, actuator, wb.ListComponents()[0].ID)
}

func TestRemoveUnknownIsNoop(t *testing.T) {
	wb, _ := newTestWorkbench(t)
	mustAdd(t, wb, Pivot, 0, 0)

	status := wb.RemoveComponent(99)

	assert.False(t, status.Failed())
	assert.Len(t, wb.ListComponents(), 1)
}

func TestApplyWithoutActuator(t *testing.T) {
	wb, _ := newTestWorkbench(t)
	mustAdd(t, wb, Retention, 0, 0)

	status := wb.ApplyInput()

	assert.True(t, status.Failed())
	assert.Contains(t, status.Message, "No actuator")
	assert.Equal(t, AtRest, wb.CurrentSystemState())
	assert.Empty(t, wb.ListEngagements())
}

func TestApplyBlockedByStop(t *testing.T) {
	wb, clock := newTestWorkbench(t)
	actuator := mustAdd(t, wb, Actuator, 300, 350)
	mustAdd(t, wb, Stop, 350, 350)
	mustAdd(t, wb, Retention, 420, 350)

	status := wb.ApplyInput()

	assert.False(t, status.Failed())
	assert.Contains(t, status.Message, "blocked")
	assert.Equal(t, Blocked, wb.CurrentSystemState())
	assert.Empty(t, wb.ListEngagements())

	c := component(t, wb, actuator)
	assert.Equal(t, Blocked, c.State)
	assert.True(t, c.Blocked)
	assert.False(t, c.Engaged)

	wb.Tick(clock.advance(time.Second))
	assert.Zero(t, component(t, wb, actuator).Rotation)
}

func TestApplyEngagesRetention(t *testing.T) {
	wb, clock := newTestWorkbench(t)
	actuator := mustAdd(t, wb, Actuator, 300, 350)
	retention := mustAdd(t, wb, Retention, 450, 350)

	wb.ApplyInput()

	assert.Equal(t, Engaged, wb.CurrentSystemState())
	assert.Equal(t, []Engagement{{From: actuator, To: retention, Kind: "retention"}}, wb.ListEngagements())
	assert.Equal(t, 75.0, wb.CurrentMetrics().ContactStress)

	a := component(t, wb, actuator)
	r := component(t, wb, retention)
	assert.Equal(t, Engaged, a.State)
	assert.True(t, a.Engaged)
	assert.Equal(t, Engaged, r.State)
	assert.True(t, r.Engaged)

	wb.Tick(clock.advance(400 * time.Millisecond))
	mid := component(t, wb, actuator).Rotation
	assert.Greater(t, mid, 0.0)
	assert.Less(t, mid, math.Pi/3)

	wb.Tick(clock.advance(400 * time.Millisecond))
	assert.InDelta(t, math.Pi/3, component(t, wb, actuator).Rotation, 1e-9)
}

func TestApplyReplacesActuatorEngagement(t *testing.T) {
	wb, _ := newTestWorkbench(t)
	mustAdd(t, wb, Actuator, 300, 350)
	mustAdd(t, wb, Retention, 450, 350)

	wb.ApplyInput()
	wb.ApplyInput()

	assert.Len(t, wb.ListEngagements(), 1)
}

func TestApplyPreloadsWhenNothingCaptures(t *testing.T) {
	wb, clock := newTestWorkbench(t)
	actuator := mustAdd(t, wb, Actuator, 300, 350)

	wb.ApplyInput()

	assert.Equal(t, Preloaded, wb.CurrentSystemState())
	assert.Equal(t, Preloaded, component(t, wb, actuator).State)
	assert.Empty(t, wb.ListEngagements())

	wb.Tick(clock.advance(600 * time.Millisecond))
	assert.InDelta(t, math.Pi/6, component(t, wb, actuator).Rotation, 1e-9)

	analysis := wb.RunAnalysis()
	require.Len(t, analysis.Failures, 2)
	assert.Equal(t, "excessive rotation stress on pivot", analysis.Failures[0].Reason)
	assert.Equal(t, "no retention element", analysis.Failures[1].Reason)
	for _, f := range analysis.Failures {
		assert.Equal(t, SeverityHigh, f.Severity)
		assert.Equal(t, actuator, f.ComponentID)
	}
}

func TestPreloadDropsStaleEngagement(t *testing.T) {
	wb, clock := newTestWorkbench(t)
	actuator := mustAdd(t, wb, Actuator, 300, 350)
	retention := mustAdd(t, wb, Retention, 450, 350)
	wb.ApplyInput()
	wb.Tick(clock.advance(800 * time.Millisecond))
	require.Len(t, wb.ListEngagements(), 1)

	wb.MoveComponent(retention, Vec2{X: 900, Y: 900})
	wb.ApplyInput()

	assert.Equal(t, Preloaded, wb.CurrentSystemState())
	assert.Equal(t, Preloaded, component(t, wb, actuator).State)
	assert.Empty(t, wb.ListEngagements())

	r := component(t, wb, retention)
	assert.Equal(t, AtRest, r.State)
	assert.False(t, r.Engaged)
}

func TestBlockRestsCapturedRetention(t *testing.T) {
	wb, _ := newTestWorkbench(t)
	actuator := mustAdd(t, wb, Actuator, 300, 350)
	retention := mustAdd(t, wb, Retention, 450, 350)
	wb.ApplyInput()
	require.Equal(t, Engaged, component(t, wb, retention).State)

	mustAdd(t, wb, Stop, 300, 400)
	wb.ApplyInput()

	assert.Equal(t, Blocked, component(t, wb, actuator).State)
	assert.Empty(t, wb.ListEngagements())
	r := component(t, wb, retention)
	assert.Equal(t, AtRest, r.State)
	assert.False(t, r.Engaged)
}

func TestReapplyKeepsRetentionEngaged(t *testing.T) {
	var transitions []State
	wb, _ := newTestWorkbench(t, WithHooks(Hooks{
		OnTransition: func(c Component, from State) {
			if c.Kind == Retention {
				transitions = append(transitions, c.State)
			}
		},
	}))
	mustAdd(t, wb, Actuator, 300, 350)
	retention := mustAdd(t, wb, Retention, 450, 350)

	wb.ApplyInput()
	wb.ApplyInput()

	assert.Equal(t, Engaged, component(t, wb, retention).State)
	assert.Equal(t, []State{Engaged, Engaged}, transitions)
}

func TestReleaseClearsEngagementsAndSettles(t *testing.T) {
	wb, clock := newTestWorkbench(t)
	actuator := mustAdd(t, wb, Actuator, 300, 350)
	retention := mustAdd(t, wb, Retention, 450, 350)
	wb.ApplyInput()
	wb.Tick(clock.advance(800 * time.Millisecond))

	status := wb.ReleaseInput()

	assert.False(t, status.Failed())
	assert.Empty(t, wb.ListEngagements())
	assert.Equal(t, Released, wb.CurrentSystemState())
	assert.Equal(t, Released, component(t, wb, actuator).State)
	assert.Equal(t, Released, component(t, wb, retention).State)
	assert.False(t, component(t, wb, actuator).Engaged)

	wb.Tick(clock.advance(300 * time.Millisecond))
	assert.InDelta(t, 0, component(t, wb, actuator).Rotation, 1e-9)
	assert.Equal(t, Released, wb.CurrentSystemState())

	wb.Tick(clock.advance(200 * time.Millisecond))
	assert.Equal(t, AtRest, wb.CurrentSystemState())
	assert.Equal(t, AtRest, component(t, wb, actuator).State)
	assert.Equal(t, AtRest, component(t, wb, retention).State)
	assert.Zero(t, component(t, wb, actuator).Preload)
	assert.False(t, wb.Animating())
}

func TestReleaseWithNothingLoaded(t *testing.T) {
	wb, _ := newTestWorkbench(t)
	mustAdd(t, wb, Actuator, 300, 350)
	mustAdd(t, wb, Stop, 350, 350)
	wb.ApplyInput()
	require.Equal(t, Blocked, wb.CurrentSystemState())

	status := wb.ReleaseInput()

	assert.True(t, status.Failed())
	assert.Empty(t, wb.ListEngagements())
	assert.Equal(t, Blocked, wb.CurrentSystemState())
}

func TestReleaseComputesImpact(t *testing.T) {
	wb, _ := newTestWorkbench(t)
	mustAdd(t, wb, Actuator, 300, 350)
	mustAdd(t, wb, Retention, 450, 350)
	mustAdd(t, wb, Spring, 300, 200)
	wb.ApplyInput()

	assert.Equal(t, 50.0, wb.CurrentMetrics().Forces.SpringForce)
	assert.InDelta(t, math.Pi/3*50, wb.CurrentMetrics().SpringStress, 1e-9)

	wb.ReleaseInput()

	f := wb.CurrentMetrics().Forces
	assert.InDelta(t, 10, f.Velocity, 1e-9)
	assert.InDelta(t, 2.5, f.ImpactEnergy, 1e-9)
	assert.InDelta(t, 25, f.ContactForce, 1e-9)
	assert.Zero(t, f.SpringForce)
}

func TestSettleTimerIgnoresReapply(t *testing.T) {
	wb, clock := newTestWorkbench(t)
	actuator := mustAdd(t, wb, Actuator, 300, 350)
	mustAdd(t, wb, Retention, 450, 350)
	wb.ApplyInput()
	wb.ReleaseInput()

	wb.Tick(clock.advance(100 * time.Millisecond))
	wb.ApplyInput()
	wb.Tick(clock.advance(500 * time.Millisecond))

	assert.Equal(t, Engaged, wb.CurrentSystemState())
	assert.Equal(t, Engaged, component(t, wb, actuator).State)
	assert.Len(t, wb.ListEngagements(), 1)
}

func TestSettleTimerIgnoresClearedWorkspace(t *testing.T) {
	wb, clock := newTestWorkbench(t)
	mustAdd(t, wb, Actuator, 300, 350)
	mustAdd(t, wb, Retention, 450, 350)
	wb.ApplyInput()
	wb.ReleaseInput()

	wb.ClearAll(true)
	fresh := mustAdd(t, wb, Actuator, 0, 0)
	wb.ApplyInput()
	wb.Tick(clock.advance(time.Second))

	assert.Equal(t, Preloaded, wb.CurrentSystemState())
	assert.Equal(t, Preloaded, component(t, wb, fresh).State)
}

func TestRunAnalysisIsPure(t *testing.T) {
	wb, _ := newTestWorkbench(t)
	wb.LoadExample()
	wb.ApplyInput()

	first := wb.RunAnalysis()
	second := wb.RunAnalysis()

	assert.Equal(t, first, second)
	assert.Equal(t, first.Failures, wb.CurrentFailureReport())
	assert.Equal(t, first.Metrics, wb.CurrentMetrics())
}

func TestLoadExample(t *testing.T) {
	wb, _ := newTestWorkbench(t)
	mustAdd(t, wb, Stop, 0, 0)

	wb.LoadExample()

	components := wb.ListComponents()
	require.Len(t, components, 5)
	kinds := make([]Kind, len(components))
	for i, c := range components {
		kinds[i] = c.Kind
	}
	assert.Equal(t, []Kind{Pivot, Actuator, Retention, Spring, Stop}, kinds)
	assert.Equal(t, Vec2{X: 400, Y: 300}, components[1].Position)
	assert.Equal(t, Vec2{X: 260, Y: 350}, components[2].Position)

	wb.ApplyInput()
	assert.Equal(t, Engaged, wb.CurrentSystemState())
}

func TestLoadExampleThenClear(t *testing.T) {
	wb, _ := newTestWorkbench(t)
	wb.LoadExample()
	wb.ApplyInput()

	status := wb.ClearAll(true)

	assert.False(t, status.Failed())
	assert.Empty(t, wb.ListComponents())
	assert.Empty(t, wb.ListEngagements())
	assert.Empty(t, wb.ListConstraints())
	assert.Equal(t, AtRest, wb.CurrentSystemState())
	assert.Empty(t, wb.CurrentFailureReport())
}

func TestClearAllRequiresConfirmation(t *testing.T) {
	wb, _ := newTestWorkbench(t)
	wb.LoadExample()

	status := wb.ClearAll(false)

	assert.True(t, status.Failed())
	assert.Len(t, wb.ListComponents(), 5)
}

func TestResetStates(t *testing.T) {
	wb, clock := newTestWorkbench(t)
	actuator := mustAdd(t, wb, Actuator, 300, 350)
	mustAdd(t, wb, Retention, 450, 350)
	wb.ApplyInput()
	wb.Tick(clock.advance(800 * time.Millisecond))

	wb.ResetStates()

	assert.Equal(t, AtRest, wb.CurrentSystemState())
	assert.Empty(t, wb.ListEngagements())
	for _, c := range wb.ListComponents() {
		assert.Equal(t, AtRest, c.State)
		assert.False(t, c.Engaged)
		assert.Zero(t, c.Preload)
	}

	wb.Tick(clock.advance(500 * time.Millisecond))
	assert.InDelta(t, 0, component(t, wb, actuator).Rotation, 1e-9)
}

func TestMoveComponentRecomputesConstraints(t *testing.T) {
	wb, _ := newTestWorkbench(t)
	a := mustAdd(t, wb, Actuator, 0, 0)
	mustAdd(t, wb, Retention, 1000, 0)
	require.Empty(t, wb.ListConstraints())

	wb.MoveComponent(a, Vec2{X: 900, Y: 0})

	constraints := wb.ListConstraints()
	require.Len(t, constraints, 1)
	assert.Equal(t, "collision", constraints[0].Kind)
	assert.Equal(t, "actuator #1 overlaps retention #2", constraints[0].Message)

	assert.True(t, wb.MoveComponent(42, Vec2{}).Failed())
}

func TestSlideComponent(t *testing.T) {
	wb, clock := newTestWorkbench(t)
	a := mustAdd(t, wb, Actuator, 0, 0)
	mustAdd(t, wb, Retention, 1000, 0)

	wb.SlideComponent(a, Vec2{X: 900, Y: 0})
	assert.Empty(t, wb.ListConstraints())

	wb.Tick(clock.advance(250 * time.Millisecond))
	pos := component(t, wb, a).Position
	assert.Greater(t, pos.X, 0.0)
	assert.Less(t, pos.X, 900.0)

	wb.Tick(clock.advance(250 * time.Millisecond))
	assert.Equal(t, Vec2{X: 900, Y: 0}, component(t, wb, a).Position)
	assert.Len(t, wb.ListConstraints(), 1)
}

func TestMoveStopsSlide(t *testing.T) {
	wb, clock := newTestWorkbench(t)
	a := mustAdd(t, wb, Pivot, 0, 0)

	wb.SlideComponent(a, Vec2{X: 500, Y: 0})
	wb.MoveComponent(a, Vec2{X: -10, Y: -10})
	wb.Tick(clock.advance(time.Second))

	assert.Equal(t, Vec2{X: -10, Y: -10}, component(t, wb, a).Position)
}

func TestRotateComponentAccumulates(t *testing.T) {
	wb, clock := newTestWorkbench(t)
	id := mustAdd(t, wb, Retention, 0, 0)

	wb.RotateComponent(id, 0.5)
	wb.Tick(clock.advance(100 * time.Millisecond))
	wb.RotateComponent(id, 0.5)
	wb.Tick(clock.advance(250 * time.Millisecond))

	assert.InDelta(t, 1.0, component(t, wb, id).Rotation, 1e-9)
	assert.True(t, wb.RotateComponent(99, 1).Failed())
}

func TestDragExclusivity(t *testing.T) {
	wb, _ := newTestWorkbench(t)
	a := mustAdd(t, wb, Pivot, 0, 0)
	b := mustAdd(t, wb, Pivot, 500, 0)

	assert.True(t, wb.DragTo(Vec2{}).Failed())
	assert.False(t, wb.BeginDrag(a).Failed())
	assert.True(t, wb.BeginDrag(b).Failed())
	assert.Equal(t, a, wb.Dragging())

	wb.DragTo(Vec2{X: 480, Y: 0})
	assert.Equal(t, Vec2{X: 480, Y: 0}, component(t, wb, a).Position)
	assert.Len(t, wb.ListConstraints(), 1)

	wb.EndDrag()
	assert.False(t, wb.BeginDrag(b).Failed())
	assert.Equal(t, b, wb.Snapshot().Dragging)
}

func TestRemoveReleasesDragClaim(t *testing.T) {
	wb, _ := newTestWorkbench(t)
	a := mustAdd(t, wb, Pivot, 0, 0)
	b := mustAdd(t, wb, Pivot, 500, 0)
	wb.BeginDrag(a)

	wb.RemoveComponent(a)

	assert.Zero(t, wb.Dragging())
	assert.False(t, wb.BeginDrag(b).Failed())
}

func TestHooks(t *testing.T) {
	var transitions []State
	var system [][2]State
	wb, clock := newTestWorkbench(t, WithHooks(Hooks{
		OnTransition: func(c Component, from State) {
			transitions = append(transitions, c.State)
		},
		OnSystemState: func(from, to State) {
			system = append(system, [2]State{from, to})
		},
	}))
	mustAdd(t, wb, Actuator, 0, 0)

	wb.ApplyInput()
	wb.ReleaseInput()
	wb.Tick(clock.advance(time.Second))

	assert.Equal(t, []State{Preloaded, Released, AtRest}, transitions)
	assert.Equal(t, [][2]State{
		{AtRest, Preloaded},
		{Preloaded, Released},
		{Released, AtRest},
	}, system)
}

func TestSnapshot(t *testing.T) {
	wb, _ := newTestWorkbench(t)
	wb.LoadExample()
	wb.ApplyInput()

	snap := wb.Snapshot()

	assert.Len(t, snap.Components, 5)
	assert.Len(t, snap.Engagements, 1)
	assert.Equal(t, Engaged, snap.SystemState)
	assert.True(t, snap.Animating)
	assert.Equal(t, wb.Status(), snap.Status)

	snap.Components[0].Position = Vec2{X: -1, Y: -1}
	assert.NotEqual(t, Vec2{X: -1, Y: -1}, wb.ListComponents()[0].Position)
}
