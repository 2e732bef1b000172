package progress

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchpilot/couchpilot/config"
	"github.com/couchpilot/couchpilot/core"
)

func newTestBroadcaster(suppressMs, intervalMs int) (*Broadcaster, *time.Time) {
	now := time.Now()
	b := New(config.UXConfig{SuppressForMs: suppressMs, UpdateIntervalMs: intervalMs}, func(o *Options) {
		o.Clock = func() time.Time { return now }
	})
	return b, &now
}

func event(kind, detail string) core.ProgressEvent {
	return core.ProgressEvent{Kind: kind, Detail: detail}
}

func TestSuppressionWindowSilencesFastTasks(t *testing.T) {
	b, now := newTestBroadcaster(3000, 900)

	assert.False(t, b.Notify(event("tool_started", "plex_search")))

	*now = now.Add(time.Second)
	assert.False(t, b.Notify(event("tool_started", "plex_search")), "still inside window")

	*now = now.Add(3 * time.Second)
	assert.True(t, b.Notify(event("tool_started", "plex_search")), "window elapsed")
}

func TestIntervalThrottle(t *testing.T) {
	b, now := newTestBroadcaster(0, 900)

	assert.True(t, b.Notify(event("tool_started", "plex_search")))
	assert.False(t, b.Notify(event("tool_started", "tmdb_search")), "inside interval")

	*now = now.Add(time.Second)
	assert.True(t, b.Notify(event("tool_started", "tmdb_search")))
}

func TestUpdatesDeliveredOnChannel(t *testing.T) {
	b, _ := newTestBroadcaster(0, 0)

	require.True(t, b.Notify(event("tool_started", "plex_search")))
	b.Close()

	var updates []Update
	for u := range b.Updates() {
		updates = append(updates, u)
	}
	require.Len(t, updates, 1)
	assert.NotEmpty(t, updates[0].Message)
	assert.Equal(t, "plex_search", updates[0].Event.Detail)
}

func TestFullChannelDropsInsteadOfBlocking(t *testing.T) {
	now := time.Now()
	b := New(config.UXConfig{}, func(o *Options) {
		o.Buffer = 1
		o.Clock = func() time.Time { return now }
	})

	assert.True(t, b.Notify(event("tool_started", "plex_search")))
	assert.False(t, b.Notify(event("tool_started", "tmdb_search")), "buffer full")
}

func TestNotifyAfterClose(t *testing.T) {
	b, _ := newTestBroadcaster(0, 0)
	b.Close()
	assert.False(t, b.Notify(event("tool_started", "plex_search")))
	b.Close()
}

func TestPhraseDeterministic(t *testing.T) {
	ev := event("tool_started", "plex_search")
	assert.Equal(t, Phrase(ev), Phrase(ev))
}

func TestPhraseMapsToolFamilies(t *testing.T) {
	assert.Contains(t, []string{
		"Checking your library...",
		"Looking through Plex...",
		"Scanning what you have...",
	}, Phrase(event("tool_started", "plex_search")))

	assert.Contains(t, []string{
		"Checking the series manager...",
		"Working on shows...",
	}, Phrase(event("tool_started", "sonarr_lookup")))

	assert.Contains(t, defaultPhrases, Phrase(event("iteration", "2")))
	assert.Equal(t, "Done.", Phrase(event("task_finished", "")))
}
