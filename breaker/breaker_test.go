package breaker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func newTestBreaker(openAfter int, openFor time.Duration) (*Breaker, *time.Time) {
	b := New(openAfter, openFor)
	now := time.Now()
	b.now = func() time.Time { return now }
	return b, &now
}

func TestOpensAfterConsecutiveFailures(t *testing.T) {
	b, _ := newTestBreaker(3, time.Second)

	b.RecordFailure()
	b.RecordFailure()
	assert.Equal(t, Closed, b.State())
	assert.Equal(t, Permitted, b.TryAcquire())

	b.RecordFailure()
	assert.Equal(t, Open, b.State())
	assert.Equal(t, Rejected, b.TryAcquire())
}

func TestSuccessResetsFailureCount(t *testing.T) {
	b, _ := newTestBreaker(3, time.Second)

	b.RecordFailure()
	b.RecordFailure()
	b.RecordSuccess()
	b.RecordFailure()
	b.RecordFailure()
	assert.Equal(t, Closed, b.State(), "non-consecutive failures do not open")
}

func TestHalfOpenSingleTrial(t *testing.T) {
	b, now := newTestBreaker(1, time.Second)

	b.RecordFailure()
	assert.Equal(t, Rejected, b.TryAcquire(), "still cooling down")

	*now = now.Add(2 * time.Second)
	assert.Equal(t, Trial, b.TryAcquire(), "first caller after cooldown probes")
	assert.Equal(t, HalfOpen, b.State())
	assert.Equal(t, Rejected, b.TryAcquire(), "only one probe at a time")
}

func TestTrialSuccessCloses(t *testing.T) {
	b, now := newTestBreaker(1, time.Second)

	b.RecordFailure()
	*now = now.Add(2 * time.Second)
	assert.Equal(t, Trial, b.TryAcquire())

	b.RecordSuccess()
	assert.Equal(t, Closed, b.State())
	assert.Equal(t, Permitted, b.TryAcquire())
}

func TestTrialFailureReopens(t *testing.T) {
	b, now := newTestBreaker(1, time.Second)

	b.RecordFailure()
	*now = now.Add(2 * time.Second)
	assert.Equal(t, Trial, b.TryAcquire())

	b.RecordFailure()
	assert.Equal(t, Open, b.State())
	assert.Equal(t, Rejected, b.TryAcquire(), "cooldown restarts")

	*now = now.Add(2 * time.Second)
	assert.Equal(t, Trial, b.TryAcquire(), "probes again after second cooldown")
}

func TestRegistryIsolatesFamilies(t *testing.T) {
	r := NewRegistry(1, time.Minute)

	r.Get("movies").RecordFailure()

	assert.Equal(t, Open, r.Get("movies").State())
	assert.Equal(t, Closed, r.Get("library").State())
	assert.Equal(t, Permitted, r.Get("library").TryAcquire())
}

func TestRegistryReturnsSameBreaker(t *testing.T) {
	r := NewRegistry(3, time.Minute)
	assert.Same(t, r.Get("movies"), r.Get("movies"))
}
