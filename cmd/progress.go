package cmd

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/khanhnv2901/seca-gap/internal/domain/assessment"
	"github.com/khanhnv2901/seca-gap/internal/orchestrator"
)

// progressPrinter renders a single status line fed by orchestrator events.
type progressPrinter struct {
	out      io.Writer
	name     string
	mu       sync.Mutex
	total    int
	ok       int
	fail     int
	started  map[int]time.Time
	duration time.Duration
	updates  chan struct{}
	done     chan struct{}
	exited   chan struct{}
	runOnce  sync.Once
	stopOnce sync.Once
	now      func() time.Time
}

func newProgressPrinter(out io.Writer, total int, name string) *progressPrinter {
	if total <= 0 {
		total = 1
	}
	return &progressPrinter{
		out:     out,
		total:   total,
		name:    name,
		started: make(map[int]time.Time),
		updates: make(chan struct{}, 1),
		done:    make(chan struct{}),
		exited:  make(chan struct{}),
		now:     time.Now,
	}
}

func (p *progressPrinter) Start() {
	p.runOnce.Do(func() { go p.loop() })
}

// Handle consumes one orchestrator event.
func (p *progressPrinter) Handle(ev orchestrator.Event) {
	p.mu.Lock()
	if ev.Total > 0 {
		p.total = ev.Total
	}
	switch ev.Type {
	case orchestrator.UnitStarted:
		p.started[ev.Index] = p.now()
	case orchestrator.UnitFinished:
		if ev.State == assessment.RunCompleted {
			p.ok++
		} else {
			p.fail++
		}
		if at, ok := p.started[ev.Index]; ok {
			p.duration += p.now().Sub(at)
			delete(p.started, ev.Index)
		}
	}
	p.mu.Unlock()

	select {
	case p.updates <- struct{}{}:
	default:
	}
}

// Stop prints the final line. Safe to call more than once.
func (p *progressPrinter) Stop() {
	p.runOnce.Do(func() { close(p.exited) })
	p.stopOnce.Do(func() {
		close(p.done)
		<-p.exited
		fmt.Fprintf(p.out, "\r%s\r", strings.Repeat(" ", 80))
		p.print()
		fmt.Fprintln(p.out)
	})
}

func (p *progressPrinter) loop() {
	defer close(p.exited)
	ticker := time.NewTicker(300 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-p.updates:
			p.print()
		case <-ticker.C:
			p.print()
		case <-p.done:
			return
		}
	}
}

func (p *progressPrinter) print() {
	p.mu.Lock()
	ok, fail, dur, total := p.ok, p.fail, p.duration, p.total
	p.mu.Unlock()

	completed := ok + fail
	if completed > total {
		total = completed
	}

	percent := (float64(completed) / float64(total)) * 100
	avg := 0.0
	if completed > 0 {
		avg = dur.Seconds() / float64(completed)
	}

	fmt.Fprintf(p.out, "\r[%s] Progress: %d/%d (%.1f%%) OK:%d Fail:%d Avg:%.2fs",
		p.name, completed, total, percent, ok, fail, avg)
}
