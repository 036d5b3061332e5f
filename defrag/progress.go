package defrag

import (
	"fmt"
	"io"
	"strings"
	"time"
)

// minRefreshRate throttles progress-bar redraws. Grounded on
// ostafen-digler's pkg/pbar.ProgressBarState, which gates its own Render
// calls the same way rather than redrawing on every processed unit — the
// original tool's print_bar redraws once per cluster, which floods a real
// terminal; this tool follows the pack's idiom instead.
const minRefreshRate = 200 * time.Millisecond

const barWidth = 30

// progressBar renders a `[===>   ] NN%` line to an io.Writer, throttled to
// at most one redraw per minRefreshRate. A nil writer disables rendering
// entirely — tick and finish become no-ops.
type progressBar struct {
	w       io.Writer
	total   int
	lastAt  time.Time
	started bool
}

func newProgressBar(w io.Writer, total int) *progressBar {
	return &progressBar{w: w, total: total}
}

// tick reports that processed units (out of total) have been handled.
func (p *progressBar) tick(processed int) {
	if p.w == nil || p.total <= 0 {
		return
	}
	if p.started && time.Since(p.lastAt) < minRefreshRate {
		return
	}
	p.started = true
	p.lastAt = time.Now()
	p.render(processed)
}

func (p *progressBar) render(processed int) {
	percent := float64(processed) / float64(p.total) * 100
	if percent > 100 {
		percent = 100
	}

	filled := int(float64(barWidth) * percent / 100)
	var bar string
	switch {
	case filled >= barWidth:
		bar = strings.Repeat("=", barWidth)
	case filled <= 0:
		bar = strings.Repeat(" ", barWidth)
	default:
		bar = strings.Repeat("=", filled) + ">" + strings.Repeat(" ", barWidth-filled-1)
	}

	fmt.Fprintf(p.w, "\r[%s] %3.0f%%", bar, percent)
}

// finish prints a trailing newline so later output doesn't collide with
// the in-progress bar line.
func (p *progressBar) finish() {
	if p.w == nil || !p.started {
		return
	}
	fmt.Fprintln(p.w)
}
