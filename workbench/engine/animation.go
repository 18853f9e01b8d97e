package engine

import (
	"math"
	"time"
)

// Property names an animatable field of a component
type Property string

const (
	PropRotation Property = "rotation"
	PropPosition Property = "position"
)

// EaseOutCubic maps linear progress t in [0,1] onto a decelerating curve
func EaseOutCubic(t float64) float64 {
	if t <= 0 {
		return 0
	}
	if t >= 1 {
		return 1
	}
	return 1 - math.Pow(1-t, 3)
}

type taskKey struct {
	id   ComponentID
	prop Property
}

// tween interpolates one property of one component from start to target
type tween struct {
	start    Vec2
	target   Vec2
	began    time.Time
	duration time.Duration
	onDone   func()
}

func (tw *tween) at(now time.Time) (Vec2, bool) {
	if tw.duration <= 0 {
		return tw.target, true
	}
	t := float64(now.Sub(tw.began)) / float64(tw.duration)
	done := t >= 1
	e := EaseOutCubic(t)
	return Vec2{
		X: tw.start.X + (tw.target.X-tw.start.X)*e,
		Y: tw.start.Y + (tw.target.Y-tw.start.Y)*e,
	}, done
}

// timer is a one-shot delayed effect
type timer struct {
	due  time.Time
	fire func()
}

// Animator holds the active interpolation tasks and pending settle timers.
// It has no goroutines; everything advances when Advance is called.
type Animator struct {
	tasks  map[taskKey]*tween
	timers []timer
}

// NewAnimator creates an idle animator
func NewAnimator() *Animator {
	return &Animator{tasks: make(map[taskKey]*tween)}
}

// Animate starts (or replaces) the task for (id, prop). A replaced task
// never runs its completion callback.
func (a *Animator) Animate(id ComponentID, prop Property, from, to Vec2, now time.Time, d time.Duration, onDone func()) {
	a.tasks[taskKey{id, prop}] = &tween{
		start:    from,
		target:   to,
		began:    now,
		duration: d,
		onDone:   onDone,
	}
}

// After schedules fire to run once the clock passes now+d
func (a *Animator) After(now time.Time, d time.Duration, fire func()) {
	a.timers = append(a.timers, timer{due: now.Add(d), fire: fire})
}

// Cancel drops every task for a component; pending timers are left alone
func (a *Animator) Cancel(id ComponentID) {
	for k := range a.tasks {
		if k.id == id {
			delete(a.tasks, k)
		}
	}
}

// Stop drops the task for one property of a component, leaving the value where it is
func (a *Animator) Stop(id ComponentID, prop Property) {
	delete(a.tasks, taskKey{id, prop})
}

// CancelAll drops every running task
func (a *Animator) CancelAll() {
	a.tasks = make(map[taskKey]*tween)
}

// Active reports whether any task or timer is pending
func (a *Animator) Active() bool {
	return len(a.tasks) > 0 || len(a.timers) > 0
}

// Target returns the destination of a running task
func (a *Animator) Target(id ComponentID, prop Property) (Vec2, bool) {
	tw, ok := a.tasks[taskKey{id, prop}]
	if !ok {
		return Vec2{}, false
	}
	return tw.target, true
}

// Advance steps every task to now, writing values through apply, and fires
// due timers in scheduling order. It returns true if anything ran.
func (a *Animator) Advance(now time.Time, apply func(id ComponentID, prop Property, v Vec2)) bool {
	changed := false
	var finished []func()

	for k, tw := range a.tasks {
		v, done := tw.at(now)
		apply(k.id, k.prop, v)
		changed = true
		if done {
			delete(a.tasks, k)
			if tw.onDone != nil {
				finished = append(finished, tw.onDone)
			}
		}
	}
	for _, f := range finished {
		f()
	}

	var due []timer
	pending := a.timers[:0]
	for _, t := range a.timers {
		if !now.Before(t.due) {
			due = append(due, t)
		} else {
			pending = append(pending, t)
		}
	}
	a.timers = pending
	for _, t := range due {
		t.fire()
		changed = true
	}
	return changed
}
