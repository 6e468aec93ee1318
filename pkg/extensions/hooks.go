// Package extensions provides registration points for deployment
// specific behavior around activity processing, without patching the
// engine itself.
package extensions

import (
	"context"
	"fmt"
	"sync"
)

// HookPoint represents a point in activity processing where hooks run
type HookPoint string

const (
	// HookActivityIngested fires after an activity was validated and
	// stored, before any side effects run.
	HookActivityIngested HookPoint = "activity_ingested"

	// HookActivityProcessed fires after side effects completed.
	HookActivityProcessed HookPoint = "activity_processed"

	// HookActivityFailed fires when carrying out side effects failed.
	HookActivityFailed HookPoint = "activity_failed"

	// HookDeliveryCompleted fires after a push run, successful or not.
	HookDeliveryCompleted HookPoint = "delivery_completed"
)

// ActivityEvent is the data passed to activity hooks.
type ActivityEvent struct {
	ActivityIRI string
	ActorIRI    string
	Kind        string
	Result      string
	Err         error
}

// Hook is a function executed at a hook point. Hook errors abort the
// chain but never the operation that triggered it.
type Hook func(ctx context.Context, event ActivityEvent) error

// HookManager manages hooks for extension points
type HookManager struct {
	hooks map[HookPoint][]Hook
	mu    sync.RWMutex
}

// NewHookManager creates a new hook manager
func NewHookManager() *HookManager {
	return &HookManager{
		hooks: make(map[HookPoint][]Hook),
	}
}

// Register registers a hook for a specific hook point
func (m *HookManager) Register(point HookPoint, hook Hook) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.hooks[point] = append(m.hooks[point], hook)
}

// Execute executes all hooks for a specific hook point
func (m *HookManager) Execute(ctx context.Context, point HookPoint, event ActivityEvent) error {
	m.mu.RLock()
	hooks := m.hooks[point]
	m.mu.RUnlock()

	for i, hook := range hooks {
		if err := hook(ctx, event); err != nil {
			return fmt.Errorf("hook %d at %s failed: %w", i, point, err)
		}
	}

	return nil
}

// Clear removes all hooks for a specific hook point
func (m *HookManager) Clear(point HookPoint) {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.hooks, point)
}

// ClearAll removes all registered hooks
func (m *HookManager) ClearAll() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.hooks = make(map[HookPoint][]Hook)
}
