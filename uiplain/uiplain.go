// Package uiplain is a line-oriented driver.MessageBus subscriber, printing
// one throttled progress line per target transition and a final summary to
// stdout, driven by BuildingTargetProgressMessage / CompilerMessage /
// DoneSomethingNotification.
package uiplain

import (
	"fmt"
	"sync"
	"time"

	"forge/driver"
)

// Subscriber renders bus messages as plain stdout lines.
type Subscriber struct {
	mu        sync.Mutex
	total     int
	done      int
	failed    int
	lastPrint time.Time
}

// NewSubscriber returns a Subscriber tracking total targets out of totalTargets.
func NewSubscriber(totalTargets int) *Subscriber {
	return &Subscriber{total: totalTargets}
}

// Subscribe registers the subscriber's Handle method on bus.
func (s *Subscriber) Subscribe(bus *driver.MessageBus) {
	bus.Subscribe(s.Handle)
}

// Handle processes one bus message, updating counters and printing a
// throttled progress line.
func (s *Subscriber) Handle(m driver.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch msg := m.(type) {
	case driver.BuildingTargetProgressMessage:
		if msg.Stage == driver.TargetFinished {
			s.done += len(msg.Targets)
		}
	case driver.CompilerMessage:
		if msg.Kind == driver.Error {
			s.failed++
			fmt.Printf("\r%-80s\n", fmt.Sprintf("[%s] ERROR: %s", msg.Source, msg.Text))
		}
	case driver.ProgressMessage:
		fmt.Printf("\r%-80s\n", msg.Text)
	}

	now := time.Now()
	if now.Sub(s.lastPrint) < 250*time.Millisecond && s.done < s.total {
		return
	}
	s.lastPrint = now

	line := fmt.Sprintf("Progress: %d/%d (failed: %d)", s.done, s.total, s.failed)
	fmt.Printf("\r%-80s", line)
}

// Finish prints a trailing newline so the final progress line isn't left
// dangling on the terminal's cursor row.
func (s *Subscriber) Finish() {
	fmt.Println()
}
