package session

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/wricardo/mechanism-workbench/workbench/engine"
)

func TestManager_Create(t *testing.T) {
	manager := NewManager()
	tuning := engine.DefaultTuning()

	t.Run("create with custom ID", func(t *testing.T) {
		session, err := manager.Create("test-session", tuning)
		if err != nil {
			t.Fatalf("Failed to create session: %v", err)
		}
		if session.ID != "test-session" {
			t.Errorf("Expected session ID 'test-session', got '%s'", session.ID)
		}
		if session.Engine == nil {
			t.Error("Expected engine to be initialized")
		}
		if session.Profile != "default" {
			t.Errorf("Expected profile 'default', got '%s'", session.Profile)
		}
	})

	t.Run("create with auto-generated ID", func(t *testing.T) {
		session, err := manager.Create("", tuning)
		if err != nil {
			t.Fatalf("Failed to create session: %v", err)
		}
		if len(session.ID) != 4 {
			t.Errorf("Expected 4-character session ID, got %q", session.ID)
		}
	})

	t.Run("duplicate session ID", func(t *testing.T) {
		_, err := manager.Create("test-session", tuning)
		if err != ErrSessionAlreadyExists {
			t.Errorf("Expected ErrSessionAlreadyExists, got %v", err)
		}
	})

	t.Run("case-insensitive duplicate check", func(t *testing.T) {
		_, err := manager.Create("TEST-SESSION", tuning)
		if err != ErrSessionAlreadyExists {
			t.Errorf("Expected ErrSessionAlreadyExists for case variant, got %v", err)
		}
	})

	t.Run("invalid ID", func(t *testing.T) {
		_, err := manager.Create("bad id!", tuning)
		if err != ErrInvalidSessionID {
			t.Errorf("Expected ErrInvalidSessionID, got %v", err)
		}
	})

	t.Run("invalid tuning", func(t *testing.T) {
		invalid := engine.DefaultTuning()
		invalid.Name = ""
		_, err := manager.Create("invalid-test", invalid)
		if !errors.Is(err, engine.ErrInvalidTuning) {
			t.Errorf("Expected ErrInvalidTuning, got %v", err)
		}
	})

	t.Run("engine options are applied", func(t *testing.T) {
		var transitions int
		session, err := manager.Create("hooked", tuning, engine.WithHooks(engine.Hooks{
			OnTransition: func(c engine.Component, from engine.State) { transitions++ },
		}))
		if err != nil {
			t.Fatalf("Failed to create session: %v", err)
		}
		session.Engine.AddComponent(engine.Actuator, engine.Vec2{})
		session.Engine.ApplyInput()
		if transitions != 1 {
			t.Errorf("Expected 1 transition, got %d", transitions)
		}
	})
}

func TestManager_Get(t *testing.T) {
	manager := NewManager()
	created, _ := manager.Create("get-test", engine.DefaultTuning())

	t.Run("get existing session", func(t *testing.T) {
		session, err := manager.Get("get-test")
		if err != nil {
			t.Fatalf("Failed to get session: %v", err)
		}
		if session != created {
			t.Error("Expected the created session")
		}
	})

	t.Run("case-insensitive get", func(t *testing.T) {
		if _, err := manager.Get("GET-TEST"); err != nil {
			t.Errorf("Expected case-insensitive lookup to succeed, got %v", err)
		}
	})

	t.Run("get missing session", func(t *testing.T) {
		_, err := manager.Get("nope")
		if !errors.Is(err, ErrSessionNotFound) {
			t.Errorf("Expected ErrSessionNotFound, got %v", err)
		}
	})
}

func TestManager_ListAndDelete(t *testing.T) {
	manager := NewManager()
	tuning := engine.DefaultTuning()
	manager.Create("one", tuning)
	manager.Create("two", tuning)

	if got := len(manager.List()); got != 2 {
		t.Fatalf("Expected 2 sessions, got %d", got)
	}

	if err := manager.Delete("ONE"); err != nil {
		t.Fatalf("Failed to delete session: %v", err)
	}
	if manager.Count() != 1 {
		t.Errorf("Expected 1 session after delete, got %d", manager.Count())
	}
	if err := manager.Delete("one"); err != ErrSessionNotFound {
		t.Errorf("Expected ErrSessionNotFound on second delete, got %v", err)
	}
}

func TestManager_UpdateLastAccessed(t *testing.T) {
	manager := NewManager()
	session, _ := manager.Create("touch", engine.DefaultTuning())
	before := session.LastAccessedAt

	time.Sleep(5 * time.Millisecond)
	if err := manager.UpdateLastAccessed("touch"); err != nil {
		t.Fatalf("Failed to update last accessed: %v", err)
	}
	if !session.LastAccessedAt.After(before) {
		t.Error("Expected LastAccessedAt to advance")
	}

	if err := manager.UpdateLastAccessed("missing"); err != ErrSessionNotFound {
		t.Errorf("Expected ErrSessionNotFound, got %v", err)
	}
}

func TestManager_CleanupExpiredSessions(t *testing.T) {
	manager := NewManager()
	tuning := engine.DefaultTuning()
	old, _ := manager.Create("old", tuning)
	manager.Create("fresh", tuning)
	old.LastAccessedAt = time.Now().Add(-2 * time.Hour)

	removed := manager.CleanupExpiredSessions(time.Hour)

	if removed != 1 {
		t.Errorf("Expected 1 session removed, got %d", removed)
	}
	if _, err := manager.Get("old"); err != ErrSessionNotFound {
		t.Error("Expected expired session to be gone")
	}
	if _, err := manager.Get("fresh"); err != nil {
		t.Error("Expected fresh session to remain")
	}
}

func TestManager_ConcurrentCreate(t *testing.T) {
	manager := NewManager()
	tuning := engine.DefaultTuning()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := manager.Create("", tuning); err != nil {
				t.Errorf("Failed to create session: %v", err)
			}
		}()
	}
	wg.Wait()

	if manager.Count() != 50 {
		t.Errorf("Expected 50 sessions, got %d", manager.Count())
	}
}

func TestManager_Limit(t *testing.T) {
	manager := NewManager()
	tuning := engine.DefaultTuning()
	for i := 0; i < MaxSessions; i++ {
		if _, err := manager.Create("", tuning); err != nil {
			t.Fatalf("Failed to create session %d: %v", i, err)
		}
	}

	if _, err := manager.Create("", tuning); err != ErrTooManySessions {
		t.Errorf("Expected ErrTooManySessions, got %v", err)
	}
}
