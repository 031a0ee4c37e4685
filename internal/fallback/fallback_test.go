package fallback

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func liveOK(ctx context.Context) (string, error)   { return "live", nil }
func mockOK(ctx context.Context) (string, error)   { return "mock", nil }
func liveDown(ctx context.Context) (string, error) { return "", errors.New("connection refused") }

func TestDoLive(t *testing.T) {
	res, err := Do(context.Background(), Policy{}, "company", "list", liveOK, mockOK)
	require.NoError(t, err)
	assert.Equal(t, "live", res.Value)
	assert.Equal(t, Live, res.Source)
	assert.False(t, res.Synthetic())
}

func TestDoDemoSkipsLive(t *testing.T) {
	called := false
	live := func(ctx context.Context) (string, error) { called = true; return "live", nil }
	res, err := Do(context.Background(), Policy{Demo: true}, "company", "list", live, mockOK)
	require.NoError(t, err)
	assert.False(t, called)
	assert.Equal(t, Demo, res.Source)
	assert.True(t, res.Synthetic())
}

func TestDoDegradesOnceWithWarning(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	calls := 0
	live := func(ctx context.Context) (string, error) { calls++; return liveDown(ctx) }

	start := time.Now()
	res, err := Do(context.Background(), Policy{Delay: 20 * time.Millisecond, Logger: zap.New(core)}, "deadline", "get", live, mockOK)
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, Degraded, res.Source)
	assert.Equal(t, "mock", res.Value)
	assert.EqualError(t, res.Reason, "connection refused")
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, "deadline", entry.ContextMap()["entity"])
}

func TestDoFailsWhenBothFail(t *testing.T) {
	mockErr := errors.New("not found")
	_, err := Do(context.Background(), Policy{}, "dvr", "get", liveDown, func(ctx context.Context) (string, error) { return "", mockErr })
	require.Error(t, err)
	assert.ErrorIs(t, err, mockErr)
	var fe *Error
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, "dvr", fe.Entity)
}

func TestDoDisabledReturnsLiveError(t *testing.T) {
	_, err := Do(context.Background(), Policy{Disabled: true}, "dvr", "list", liveDown, mockOK)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestDoHonoursCancellationDuringDelay(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	live := func(ctx context.Context) (string, error) { cancel(); return liveDown(ctx) }
	_, err := Do(ctx, Policy{Delay: time.Minute}, "risk", "list", live, mockOK)
	assert.Error(t, err)
}

func TestExec(t *testing.T) {
	res, err := Exec(context.Background(), Policy{Demo: true}, "company", "delete", nil, func(ctx context.Context) error { return nil })
	require.NoError(t, err)
	assert.Equal(t, Demo, res.Source)
}

func TestDoPermanentErrorsDoNotDegrade(t *testing.T) {
	rejected := errors.New("rejected")
	live := func(ctx context.Context) (string, error) { return "", rejected }
	p := Policy{Permanent: func(err error) bool { return errors.Is(err, rejected) }}
	_, err := Do(context.Background(), p, "company", "create", live, mockOK)
	assert.ErrorIs(t, err, rejected)

	res, err := Do(context.Background(), p, "company", "create", liveDown, mockOK)
	require.NoError(t, err)
	assert.Equal(t, Degraded, res.Source)
}
