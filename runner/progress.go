package runner

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/log"

	"github.com/ethereum-optimism/infra/op-suite/workitem"
)

var _ workitem.Observer = (*Progress)(nil)

// Progress follows a running work item tree. Gates and suites are logged as they start
// and complete; leaves are counted, and every interval a progress update lists how far
// the run got and which tests have been running the longest.
type Progress struct {
	logger   log.Logger
	interval time.Duration

	mu        sync.Mutex
	total     int
	completed int
	failed    int
	running   map[string]time.Time
	startedAt time.Time

	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// ProgressSnapshot is a point-in-time copy of a Progress
type ProgressSnapshot struct {
	Total     int
	Completed int
	Failed    int
	Running   []string
}

// NewProgress creates a progress observer. The number of tests is taken from the root
// work item when it starts. An interval of 0 disables the periodic updates; start and
// completion logs are still written.
func NewProgress(logger log.Logger, interval time.Duration) *Progress {
	return &Progress{
		logger:   logger,
		interval: interval,
		running:  make(map[string]time.Time),
		stopCh:   make(chan struct{}),
	}
}

// Start begins the periodic updates
func (p *Progress) Start() {
	p.mu.Lock()
	p.startedAt = time.Now()
	p.mu.Unlock()

	if p.interval <= 0 {
		return
	}
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				p.report()
			case <-p.stopCh:
				return
			}
		}
	}()
}

// Stop ends the periodic updates. It is safe to call more than once.
func (p *Progress) Stop() {
	p.stopOnce.Do(func() {
		close(p.stopCh)
	})
	p.wg.Wait()
}

func (p *Progress) Started(wi workitem.WorkItem) {
	node := wi.Node()
	if node.Parent() == nil {
		total := leafCount(wi)
		p.mu.Lock()
		p.total = total
		p.mu.Unlock()
		p.logger.Info("Starting run", "tests", total)
	}
	switch {
	case node.IsLeaf():
		p.mu.Lock()
		p.running[node.FullName()] = time.Now()
		n := len(p.running)
		p.mu.Unlock()
		p.logger.Debug("Test started", "test", node.FullName(), "runningTests", n)
	case node.Kind == workitem.KindGate:
		p.logger.Info("Starting gate", "gate", node.Name, "tests", leafCount(wi))
	case node.Kind == workitem.KindSuite, node.Kind == workitem.KindPackage:
		p.logger.Info("Starting suite", "suite", node.FullName(), "tests", leafCount(wi))
	}
}

func (p *Progress) Completed(wi workitem.WorkItem) {
	node := wi.Node()
	res := wi.Result()
	duration := res.Duration().Truncate(time.Millisecond)
	switch {
	case node.IsLeaf():
		p.mu.Lock()
		delete(p.running, node.FullName())
		p.completed++
		if res.Status().IsFailing() {
			p.failed++
		}
		completed, total := p.completed, p.total
		p.mu.Unlock()
		p.logger.Debug("Test completed", "test", node.FullName(), "status", res.Status(),
			"completed", completed, "total", total)
	case node.Kind == workitem.KindGate:
		p.logger.Info("Completed gate", "gate", node.Name, "status", res.Status(), "duration", duration)
	case node.Kind == workitem.KindSuite, node.Kind == workitem.KindPackage:
		p.logger.Info("Completed suite", "suite", node.FullName(), "status", res.Status(), "duration", duration)
	}
}

// Snapshot returns the current counters and the running tests, longest running first
func (p *Progress) Snapshot() ProgressSnapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return ProgressSnapshot{
		Total:     p.total,
		Completed: p.completed,
		Failed:    p.failed,
		Running:   longestRunning(p.running, time.Now()),
	}
}

func (p *Progress) report() {
	snap := p.Snapshot()
	p.mu.Lock()
	elapsed := time.Since(p.startedAt).Truncate(time.Second)
	p.mu.Unlock()

	var percent float64
	if snap.Total > 0 {
		percent = float64(snap.Completed) * 100.0 / float64(snap.Total)
	}
	p.logger.Info("Progress update",
		"completed", snap.Completed,
		"total", snap.Total,
		"percent", fmt.Sprintf("%.1f%%", percent),
		"failed", snap.Failed,
		"numRunning", len(snap.Running),
		"longestRunning", formatRunning(snap.Running, maxRunningShown),
		"elapsed", elapsed)
}

// longestRunning renders the running tests as "name (duration)", longest first
func longestRunning(running map[string]time.Time, now time.Time) []string {
	type entry struct {
		name     string
		duration time.Duration
	}
	entries := make([]entry, 0, len(running))
	for name, started := range running {
		entries = append(entries, entry{name: name, duration: now.Sub(started)})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].duration == entries[j].duration {
			return entries[i].name < entries[j].name
		}
		return entries[i].duration > entries[j].duration
	})

	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = fmt.Sprintf("%s (%v)", e.name, e.duration.Truncate(time.Second))
	}
	return out
}

func formatRunning(running []string, maxShow int) string {
	if len(running) <= maxShow {
		return strings.Join(running, ", ")
	}
	shown := append(running[:maxShow:maxShow], fmt.Sprintf("+%d more", len(running)-maxShow))
	return strings.Join(shown, ", ")
}

// leafCount counts the leaves that were built below wi, which excludes filtered nodes
func leafCount(wi workitem.WorkItem) int {
	c, ok := wi.(*workitem.Composite)
	if !ok {
		return 1
	}
	total := 0
	for _, child := range c.Children() {
		total += leafCount(child)
	}
	return total
}
