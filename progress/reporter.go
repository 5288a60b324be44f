// Package progress renders throttled download status lines.
package progress

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/dustin/go-humanize"
)

// DefaultInterval is the minimum time between two status lines.
const DefaultInterval = 5 * time.Second

// Format returns the status line for name after received bytes. The total
// and percentage are shown only when the total size is known.
func Format(name string, received, total int64, known bool) string {
	if !known || total <= 0 {
		return fmt.Sprintf("%s: %s", name, humanize.Bytes(uint64(received)))
	}

	pct := float64(received) * 100 / float64(total)
	return fmt.Sprintf("%s: %s / %s (%.1f%%)",
		name,
		humanize.Bytes(uint64(received)),
		humanize.Bytes(uint64(total)),
		pct,
	)
}

// Reporter writes the status line of one download, at most once per interval.
// A Reporter is not safe for concurrent use.
type Reporter struct {
	out      io.Writer
	name     string
	total    int64
	known    bool
	interval time.Duration

	now        func() time.Time
	lastReport time.Time
	lineOpen   bool
}

// NewReporter creates a reporter for the file name. A nil out writes to stderr,
// a non-positive interval uses DefaultInterval.
func NewReporter(out io.Writer, name string, total int64, known bool, interval time.Duration) *Reporter {
	if out == nil {
		out = os.Stderr
	}
	if interval <= 0 {
		interval = DefaultInterval
	}

	return &Reporter{
		out:      out,
		name:     name,
		total:    total,
		known:    known,
		interval: interval,
		now:      time.Now,
	}
}

// Update prints the status line for received unless one was printed less than
// an interval ago. It reports whether a line was printed.
func (r *Reporter) Update(received int64) bool {
	now := r.now()
	if !r.lastReport.IsZero() && now.Sub(r.lastReport) < r.interval {
		return false
	}

	fmt.Fprintf(r.out, "\r%s", Format(r.name, received, r.total, r.known))
	r.lastReport = now
	r.lineOpen = true
	return true
}

// Break ends the current status line so the next output starts on a fresh line.
func (r *Reporter) Break() {
	if r.lineOpen {
		fmt.Fprintln(r.out)
		r.lineOpen = false
	}
}

// Finish prints the final status line, regardless of throttling.
func (r *Reporter) Finish(received int64) {
	fmt.Fprintf(r.out, "\r%s\n", Format(r.name, received, r.total, r.known))
	r.lineOpen = false
}
