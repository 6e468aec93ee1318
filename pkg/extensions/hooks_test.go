package extensions

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecuteRunsHooksInOrder(t *testing.T) {
	m := NewHookManager()
	var order []int

	m.Register(HookActivityIngested, func(ctx context.Context, e ActivityEvent) error {
		order = append(order, 1)
		return nil
	})
	m.Register(HookActivityIngested, func(ctx context.Context, e ActivityEvent) error {
		order = append(order, 2)
		return nil
	})

	err := m.Execute(context.Background(), HookActivityIngested, ActivityEvent{ActivityIRI: "x"})
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, order)
}

func TestExecuteStopsOnFirstFailure(t *testing.T) {
	m := NewHookManager()
	boom := errors.New("boom")
	ran := false

	m.Register(HookActivityFailed, func(ctx context.Context, e ActivityEvent) error {
		return boom
	})
	m.Register(HookActivityFailed, func(ctx context.Context, e ActivityEvent) error {
		ran = true
		return nil
	})

	err := m.Execute(context.Background(), HookActivityFailed, ActivityEvent{})
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.False(t, ran, "the chain aborts on the first failure")
}

func TestExecuteWithNoHooksIsNoop(t *testing.T) {
	m := NewHookManager()
	assert.NoError(t, m.Execute(context.Background(), HookDeliveryCompleted, ActivityEvent{}))
}

func TestClear(t *testing.T) {
	m := NewHookManager()
	calls := 0
	hook := func(ctx context.Context, e ActivityEvent) error {
		calls++
		return nil
	}
	m.Register(HookActivityIngested, hook)
	m.Register(HookActivityProcessed, hook)

	m.Clear(HookActivityIngested)
	require.NoError(t, m.Execute(context.Background(), HookActivityIngested, ActivityEvent{}))
	require.NoError(t, m.Execute(context.Background(), HookActivityProcessed, ActivityEvent{}))
	assert.Equal(t, 1, calls)

	m.ClearAll()
	require.NoError(t, m.Execute(context.Background(), HookActivityProcessed, ActivityEvent{}))
	assert.Equal(t, 1, calls)
}
