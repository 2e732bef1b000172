// Package progress turns engine events into paced, human-readable status
// updates. Fast tasks stay silent: nothing is emitted until a suppression
// window has elapsed, and after that updates are throttled to one per
// interval. Subscribers read a buffered channel; a slow subscriber drops
// updates instead of stalling the engine.
package progress

import (
	"hash/fnv"
	"strings"
	"sync"
	"time"

	"github.com/couchpilot/couchpilot/config"
	"github.com/couchpilot/couchpilot/core"
)

// Update is one user-facing status line.
type Update struct {
	Message   string
	Event     core.ProgressEvent
	Timestamp time.Time
}

// Broadcaster paces progress events for one task.
type Broadcaster struct {
	suppressFor time.Duration
	interval    time.Duration
	now         func() time.Time

	mu       sync.Mutex
	started  time.Time
	lastEmit time.Time
	closed   bool
	updates  chan Update
}

// Options configure a Broadcaster.
type Options struct {
	// Buffer sizes the subscriber channel.
	Buffer int
	// Clock substitutes the time source in tests.
	Clock func() time.Time
}

// New returns a Broadcaster paced by the UX configuration. The suppression
// window starts now.
func New(cfg config.UXConfig, optFns ...func(o *Options)) *Broadcaster {
	opts := Options{
		Buffer: 16,
		Clock:  time.Now,
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	b := &Broadcaster{
		suppressFor: time.Duration(cfg.SuppressForMs) * time.Millisecond,
		interval:    time.Duration(cfg.UpdateIntervalMs) * time.Millisecond,
		now:         opts.Clock,
		updates:     make(chan Update, opts.Buffer),
	}
	b.started = b.now()
	return b
}

// Updates returns the subscriber channel. It is closed by Close.
func (b *Broadcaster) Updates() <-chan Update { return b.updates }

// Notify applies the pacing rules to an event and, when it passes, pushes a
// phrased update to the subscriber channel. It never blocks; with a full
// channel the update is dropped. The return reports whether the update was
// emitted.
func (b *Broadcaster) Notify(event core.ProgressEvent) bool {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return false
	}
	now := b.now()
	if now.Sub(b.started) < b.suppressFor {
		b.mu.Unlock()
		return false
	}
	if !b.lastEmit.IsZero() && now.Sub(b.lastEmit) < b.interval {
		b.mu.Unlock()
		return false
	}
	b.lastEmit = now
	b.mu.Unlock()

	update := Update{
		Message:   Phrase(event),
		Event:     event,
		Timestamp: now,
	}
	select {
	case b.updates <- update:
		return true
	default:
		return false
	}
}

// Close ends the stream. Further Notify calls are ignored.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	close(b.updates)
}

// phrase variants keyed by tool name prefix. The same event always maps to
// the same phrase so repeated updates read consistently.
var phraseTable = []struct {
	prefix   string
	variants []string
}{
	{"plex_", []string{
		"Checking your library...",
		"Looking through Plex...",
		"Scanning what you have...",
	}},
	{"tmdb_", []string{
		"Searching the catalog...",
		"Checking movie listings...",
		"Looking that up...",
	}},
	{"radarr_", []string{
		"Checking the movie manager...",
		"Working on movies...",
	}},
	{"sonarr_", []string{
		"Checking the series manager...",
		"Working on shows...",
	}},
	{"fetch_cached_result", []string{
		"Going through earlier results...",
	}},
}

var defaultPhrases = []string{
	"Working on it...",
	"Still on it...",
	"Almost there...",
}

// Phrase renders a deterministic human phrase for an event. Tool events map
// through the prefix table on the tool name; everything else uses generic
// wording. Selection hashes the event so identical events repeat the same
// phrase rather than flickering.
func Phrase(event core.ProgressEvent) string {
	if event.Kind == "task_finished" {
		return "Done."
	}

	variants := defaultPhrases
	for _, row := range phraseTable {
		if strings.HasPrefix(event.Detail, row.prefix) {
			variants = row.variants
			break
		}
	}

	h := fnv.New32a()
	h.Write([]byte(event.Kind))
	h.Write([]byte{0})
	h.Write([]byte(event.Detail))
	return variants[h.Sum32()%uint32(len(variants))]
}
