package progress

import (
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Options configures the progress reporter.
type Options struct {
	// Output is where to write progress output.
	// Default: os.Stdout
	Output io.Writer

	// UpdateInterval is how often to update the progress display.
	// Default: 500ms
	UpdateInterval time.Duration
}

// Task describes one phase being reported, for example the range downloads
// of one file or the uploads of one tree.
type Task struct {
	// Action is the verb shown in the header, e.g. "Downloading".
	Action string

	// Name is the file or prefix being transferred (for display).
	Name string

	// TotalSize is the total size in bytes of the task.
	TotalSize int64

	// TotalItems is the number of parts or objects.
	TotalItems int

	// ItemSize is the nominal size of one item (for display, 0 to omit).
	ItemSize int64

	// Workers is the number of parallel workers.
	Workers int
}

// Reporter outputs human-readable progress information.
//
// A Reporter runs for the whole transfer between Start and Stop. Each phase
// is bracketed by Begin and End; the item counters are reset by Begin.
type Reporter struct {
	opts Options

	mu             sync.Mutex
	task           Task
	active         bool
	completedBytes atomic.Int64
	completedItems atomic.Int32
	inProgress     atomic.Int32
	failedItems    atomic.Int32
	taskStart      time.Time
	lastUpdate     time.Time
	lastBytes      int64
	stopCh         chan struct{}
	doneCh         chan struct{}
	stopped        bool
}

// NewReporter creates a new progress reporter.
func NewReporter(opts Options) *Reporter {
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.UpdateInterval == 0 {
		opts.UpdateInterval = 500 * time.Millisecond
	}

	return &Reporter{
		opts:   opts,
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
}

// Start begins outputting progress information.
func (r *Reporter) Start() {
	go r.updateLoop()
}

// Stop stops the progress reporter and waits for the display loop to exit.
func (r *Reporter) Stop() {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return
	}
	r.stopped = true
	r.mu.Unlock()

	close(r.stopCh)
	<-r.doneCh
}

// Begin starts reporting task and prints its header.
func (r *Reporter) Begin(task Task) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.task = task
	r.active = true
	r.completedBytes.Store(0)
	r.completedItems.Store(0)
	r.inProgress.Store(0)
	r.failedItems.Store(0)
	r.taskStart = time.Now()
	r.lastUpdate = r.taskStart
	r.lastBytes = 0

	fmt.Fprintf(r.opts.Output, "[haul] %s: %s\n", task.Action, task.Name)
	header := fmt.Sprintf("[haul] Total size: %s | Items: %d", FormatBytes(task.TotalSize), task.TotalItems)
	if task.ItemSize > 0 {
		header += " x " + FormatBytes(task.ItemSize)
	}
	if task.Workers > 0 {
		header += fmt.Sprintf(" | Workers: %d", task.Workers)
	}
	fmt.Fprintln(r.opts.Output, header)
}

// End prints the final status of the current task.
func (r *Reporter) End() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.active {
		return
	}
	r.active = false
	r.printFinalStatus()
}

// ItemStarted marks a part or object as in progress.
func (r *Reporter) ItemStarted() {
	r.inProgress.Add(1)
}

// BytesWritten records bytes transferred for an in-progress item.
func (r *Reporter) BytesWritten(n int64) {
	r.completedBytes.Add(n)
}

// ItemCompleted marks an item as completed.
func (r *Reporter) ItemCompleted() {
	r.completedItems.Add(1)
	r.inProgress.Add(-1)
}

// ItemFailed marks an item as failed and discards the written bytes
// already reported for it.
func (r *Reporter) ItemFailed(written int64) {
	r.completedBytes.Add(-written)
	r.failedItems.Add(1)
	r.inProgress.Add(-1)
}

// updateLoop periodically updates the progress display.
func (r *Reporter) updateLoop() {
	defer close(r.doneCh)

	ticker := time.NewTicker(r.opts.UpdateInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stopCh:
			return
		case <-ticker.C:
			r.mu.Lock()
			if r.active {
				r.printProgress()
			}
			r.mu.Unlock()
		}
	}
}

// printProgress outputs the current progress. Called with r.mu held.
func (r *Reporter) printProgress() {
	now := time.Now()
	completed := r.completedBytes.Load()
	completedItems := int(r.completedItems.Load())
	inProgress := int(r.inProgress.Load())

	// Calculate speed
	elapsed := now.Sub(r.lastUpdate).Seconds()
	if elapsed < 0.1 {
		elapsed = 0.1
	}
	bytesThisPeriod := completed - r.lastBytes
	speed := float64(bytesThisPeriod) / elapsed

	r.lastUpdate = now
	r.lastBytes = completed

	// Calculate percentage and ETA
	var percent float64
	eta := "calculating..."
	if r.task.TotalSize > 0 {
		percent = float64(completed) / float64(r.task.TotalSize) * 100
		if speed > 0 {
			remaining := float64(r.task.TotalSize - completed)
			eta = formatDuration(time.Duration(remaining / speed * float64(time.Second)))
		}
	}

	pending := r.task.TotalItems - completedItems - inProgress - int(r.failedItems.Load())
	if pending < 0 {
		pending = 0
	}

	fmt.Fprintf(r.opts.Output, "\r[haul] Progress: %.1f%% | %s / %s | Speed: %s/s | ETA: %s    ",
		percent,
		FormatBytes(completed),
		FormatBytes(r.task.TotalSize),
		FormatBytes(int64(speed)),
		eta,
	)
	fmt.Fprintf(r.opts.Output, "\n[haul] Items: %d completed | %d in-progress | %d pending    \033[A",
		completedItems,
		inProgress,
		pending,
	)
}

// printFinalStatus outputs the final status. Called with r.mu held.
func (r *Reporter) printFinalStatus() {
	completed := r.completedBytes.Load()
	completedItems := int(r.completedItems.Load())
	failed := int(r.failedItems.Load())
	duration := time.Since(r.taskStart)
	avgSpeed := float64(completed) / math.Max(duration.Seconds(), 0.001)

	status := "Complete!"
	if failed > 0 {
		status = fmt.Sprintf("%d failed", failed)
	}

	fmt.Fprintf(r.opts.Output, "\r[haul] Progress: %s / %s | %s    \n",
		FormatBytes(completed),
		FormatBytes(r.task.TotalSize),
		status,
	)
	fmt.Fprintf(r.opts.Output, "[haul] Items: %d completed | %d failed    \n", completedItems, failed)
	fmt.Fprintf(r.opts.Output, "[haul] Total time: %s | Average speed: %s/s\n",
		formatDuration(duration),
		FormatBytes(int64(avgSpeed)),
	)
}

// formatDuration formats a duration as a human-readable string.
func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%.0fs", d.Seconds())
	}
	if d < time.Hour {
		m := int(d.Minutes())
		s := int(d.Seconds()) % 60
		return fmt.Sprintf("%dm %ds", m, s)
	}
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	return fmt.Sprintf("%dh %dm %ds", h, m, s)
}

var binaryUnits = []string{"KiB", "MiB", "GiB", "TiB", "PiB"}

// FormatBytes formats bytes with binary units, e.g. "1.5 KiB" or "256 MiB".
func FormatBytes(b int64) string {
	if b < 1024 && b > -1024 {
		return fmt.Sprintf("%d B", b)
	}

	value := float64(b)
	unit := ""
	for _, u := range binaryUnits {
		value /= 1024
		unit = u
		if math.Abs(value) < 1024 {
			break
		}
	}

	if math.Abs(value) >= 100 {
		return fmt.Sprintf("%.0f %s", value, unit)
	}
	return fmt.Sprintf("%.1f %s", value, unit)
}

var byteSuffixes = []struct {
	suffix     string
	multiplier float64
}{
	// Longest first so "KiB" is not read as "B".
	{"KiB", 1 << 10},
	{"MiB", 1 << 20},
	{"GiB", 1 << 30},
	{"TiB", 1 << 40},
	{"KB", 1e3},
	{"MB", 1e6},
	{"GB", 1e9},
	{"TB", 1e12},
	{"B", 1},
}

// ParseBytes parses a human-readable byte string such as "256MiB", "1GB" or
// "100". KB, MB, GB and TB are decimal units; KiB, MiB, GiB and TiB are
// binary. A bare number is bytes.
func ParseBytes(s string) (int64, error) {
	str := strings.TrimSpace(s)
	multiplier := 1.0

	for _, u := range byteSuffixes {
		if len(str) > len(u.suffix) && strings.EqualFold(str[len(str)-len(u.suffix):], u.suffix) {
			multiplier = u.multiplier
			str = strings.TrimSpace(str[:len(str)-len(u.suffix)])
			break
		}
	}

	value, err := strconv.ParseFloat(str, 64)
	if err != nil || value < 0 || math.IsInf(value, 0) || math.IsNaN(value) {
		return 0, fmt.Errorf("invalid byte string: %q", s)
	}

	return int64(value * multiplier), nil
}
