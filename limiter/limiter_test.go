package limiter

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchpilot/couchpilot/core"
)

func fixedSize(n int) FamilySizer {
	return func(string) int { return n }
}

func TestAcquireRelease(t *testing.T) {
	l := New(2, 50*time.Millisecond, fixedSize(2))

	release, err := l.Acquire(context.Background(), "movies")
	require.NoError(t, err)
	release()

	release, err = l.Acquire(context.Background(), "movies")
	require.NoError(t, err)
	release()
}

func TestFamilyCapBlocksWithinFamily(t *testing.T) {
	l := New(8, 50*time.Millisecond, fixedSize(1))

	release, err := l.Acquire(context.Background(), "movies")
	require.NoError(t, err)
	defer release()

	_, err = l.Acquire(context.Background(), "movies")
	require.Error(t, err)
	assert.True(t, core.IsTimeout(err))

	// A different family still has permits.
	release2, err := l.Acquire(context.Background(), "library")
	require.NoError(t, err)
	release2()
}

func TestGlobalCapBlocksAcrossFamilies(t *testing.T) {
	l := New(1, 50*time.Millisecond, fixedSize(4))

	release, err := l.Acquire(context.Background(), "movies")
	require.NoError(t, err)

	_, err = l.Acquire(context.Background(), "library")
	require.Error(t, err)
	assert.True(t, core.IsTimeout(err))

	release()
	release2, err := l.Acquire(context.Background(), "library")
	require.NoError(t, err)
	release2()
}

func TestGlobalPermitReturnedOnFamilyTimeout(t *testing.T) {
	l := New(2, 50*time.Millisecond, fixedSize(1))

	hold, err := l.Acquire(context.Background(), "movies")
	require.NoError(t, err)
	defer hold()

	_, err = l.Acquire(context.Background(), "movies")
	require.Error(t, err, "family saturated")

	// The failed family acquire must not leak its global permit.
	other, err := l.Acquire(context.Background(), "library")
	require.NoError(t, err)
	other()
}

func TestReleaseIdempotent(t *testing.T) {
	l := New(1, 50*time.Millisecond, fixedSize(1))

	release, err := l.Acquire(context.Background(), "movies")
	require.NoError(t, err)
	release()
	release()

	release2, err := l.Acquire(context.Background(), "movies")
	require.NoError(t, err)
	release2()
}

func TestAcquireHonorsCallerContext(t *testing.T) {
	l := New(1, time.Minute, fixedSize(1))

	release, err := l.Acquire(context.Background(), "movies")
	require.NoError(t, err)
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err = l.Acquire(ctx, "movies")
	require.Error(t, err)
}

func TestAcquireReportsCancellationNotSaturation(t *testing.T) {
	l := New(1, time.Minute, fixedSize(1))

	release, err := l.Acquire(context.Background(), "movies")
	require.NoError(t, err)
	defer release()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = l.Acquire(ctx, "movies")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, core.IsTimeout(err), "a caller giving up is not pool saturation")
}
