// Package progress renders the live load indicator on the diagnostic stream.
package progress

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/schollz/progressbar/v3"
)

// Update carries the running totals after a chunk completes.
type Update struct {
	NQuads uint64
	Txns   uint64
	Docs   uint64
	Aborts uint64
}

// Message renders the totals the way the indicator shows them.
func (u Update) Message() string {
	return fmt.Sprintf("Txns:%d Docs:%d Aborts:%d", u.Txns, u.Docs, u.Aborts)
}

type Reporter interface {
	Report(Update)
	Finish()
}

// Noop discards every update.
type Noop struct{}

var _ Reporter = Noop{}

func (Noop) Report(Update) {}
func (Noop) Finish()       {}

// Bar is a spinner showing elapsed time, N-Quads loaded, the rate and the totals message.
type Bar struct {
	mu     sync.Mutex
	w      io.Writer
	bar    *progressbar.ProgressBar
	last   uint64
	latest Update
}

var _ Reporter = (*Bar)(nil)

type BarOption func(*barConfig)

type barConfig struct {
	throttle time.Duration
}

// WithThrottle sets the minimum delay between two renders. Non interactive outputs
// should use a long one to keep logs readable.
func WithThrottle(d time.Duration) BarOption {
	return func(c *barConfig) {
		c.throttle = d
	}
}

// NewBar returns a Bar writing to w. When quiet is set nothing is rendered.
func NewBar(w io.Writer, quiet bool, opts ...BarOption) *Bar {
	cfg := &barConfig{throttle: 100 * time.Millisecond}
	for _, opt := range opts {
		opt(cfg)
	}

	if quiet {
		w = io.Discard
	}

	bar := progressbar.NewOptions64(-1,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription(Update{}.Message()),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("nquads"),
		progressbar.OptionSetElapsedTime(true),
		progressbar.OptionThrottle(cfg.throttle),
	)

	return &Bar{w: w, bar: bar}
}

// Report moves the indicator to the given totals. Updates that arrive late with
// smaller counts only refresh the message.
func (b *Bar) Report(u Update) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.latest = u
	b.bar.Describe(u.Message())
	if u.NQuads > b.last {
		b.last = u.NQuads
		_ = b.bar.Set64(int64(u.NQuads))
	}
}

// Finish renders the last totals once more and leaves the indicator at its current
// position.
func (b *Bar) Finish() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.bar.Describe(b.latest.Message())
	_ = b.bar.Set64(int64(b.last))
	_, _ = fmt.Fprintln(b.w)
}

// Current returns the N-Quads count the indicator shows.
func (b *Bar) Current() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.last
}
