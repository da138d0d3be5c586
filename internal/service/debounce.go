package service

import (
	"strings"
	"sync"
	"time"

	"github.com/tiendademo/whatsapp-agent/pkg/metrics"
)

// DefaultBufferWindow is the quiet period before buffered fragments flush
const DefaultBufferWindow = 10 * time.Second

// Timer is the handle returned by a Scheduler
type Timer interface {
	Stop() bool
}

// Scheduler runs f once after d. Tests inject a manual scheduler.
type Scheduler func(d time.Duration, f func()) Timer

func realScheduler(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// FlushFunc receives the joined fragments of one batch
type FlushFunc func(key, text string)

type pendingBatch struct {
	parts []string
	timer Timer
	gen   uint64
}

// Debouncer keeps one cancellable timer per key. Pushing to a key restarts
// its window; when the window elapses the fragments are joined and flushed once.
type Debouncer struct {
	window   time.Duration
	schedule Scheduler
	onFlush  FlushFunc

	mu      sync.Mutex
	pending map[string]*pendingBatch
	gen     uint64
}

// NewDebouncer creates a debouncer; a nil scheduler uses time.AfterFunc
func NewDebouncer(window time.Duration, schedule Scheduler, onFlush FlushFunc) *Debouncer {
	if window <= 0 {
		window = DefaultBufferWindow
	}
	if schedule == nil {
		schedule = realScheduler
	}
	return &Debouncer{
		window:   window,
		schedule: schedule,
		onFlush:  onFlush,
		pending:  make(map[string]*pendingBatch),
	}
}

// Window returns the debounce window
func (d *Debouncer) Window() time.Duration {
	return d.window
}

// Push appends text to key's batch and restarts its timer
func (d *Debouncer) Push(key, text string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	b, ok := d.pending[key]
	if !ok {
		b = &pendingBatch{}
		d.pending[key] = b
	}
	b.parts = append(b.parts, text)

	if b.timer != nil {
		b.timer.Stop()
	}
	d.gen++
	gen := d.gen
	b.gen = gen
	b.timer = d.schedule(d.window, func() { d.fire(key, gen) })

	metrics.PendingBuffers.Set(float64(len(d.pending)))
}

// Cancel discards key's batch and stops its timer. It reports whether a
// batch was pending.
func (d *Debouncer) Cancel(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	b, ok := d.pending[key]
	if !ok {
		return false
	}
	if b.timer != nil {
		b.timer.Stop()
	}
	delete(d.pending, key)
	metrics.PendingBuffers.Set(float64(len(d.pending)))
	return true
}

// Pending reports whether key has a batch waiting
func (d *Debouncer) Pending(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.pending[key]
	return ok
}

// Stop cancels every pending batch
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for key, b := range d.pending {
		if b.timer != nil {
			b.timer.Stop()
		}
		delete(d.pending, key)
	}
	metrics.PendingBuffers.Set(0)
}

// fire flushes key's batch if gen is still its current generation.
// A timer that lost the race with Push or Cancel is a no-op.
func (d *Debouncer) fire(key string, gen uint64) {
	d.mu.Lock()
	b, ok := d.pending[key]
	if !ok || b.gen != gen {
		d.mu.Unlock()
		return
	}
	delete(d.pending, key)
	metrics.PendingBuffers.Set(float64(len(d.pending)))
	d.mu.Unlock()

	text := joinFragments(b.parts)
	if text == "" || d.onFlush == nil {
		return
	}
	d.onFlush(key, text)
}

// joinFragments joins non-empty fragments with newlines, in arrival order
func joinFragments(parts []string) string {
	kept := make([]string, 0, len(parts))
	for _, p := range parts {
		if strings.TrimSpace(p) == "" {
			continue
		}
		kept = append(kept, p)
	}
	return strings.Join(kept, "\n")
}
