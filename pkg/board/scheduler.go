package board

import (
	"sync"
	"time"

	v1 "github.com/byxorna/stageboard/pkg/types/v1"
	tea "github.com/charmbracelet/bubbletea"
)

// DefaultDebounce is how long filter input must stay unchanged before it is
// applied
var DefaultDebounce = 500 * time.Millisecond

// Scheduler debounces filter changes into one settled re-fetch. Each
// Schedule stops the previous timer; the command of a superseded call
// returns nil instead of a message.
type Scheduler struct {
	mu     sync.Mutex
	kind   string
	delay  time.Duration
	timer  *time.Timer
	cancel chan struct{}
	seq    uint64
}

func NewScheduler(kind string, delay time.Duration) *Scheduler {
	if delay <= 0 {
		delay = DefaultDebounce
	}
	return &Scheduler{kind: kind, delay: delay}
}

// Schedule (re)starts the debounce window for filter. The returned command
// blocks until the window expires or the call is superseded.
func (s *Scheduler) Schedule(filter v1.Filter) tea.Cmd {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopLocked()
	s.seq++
	msg := FilterSettledMsg{Kind: s.kind, Filter: filter, seq: s.seq}

	fire := make(chan struct{})
	cancel := make(chan struct{})
	s.cancel = cancel
	s.timer = time.AfterFunc(s.delay, func() { close(fire) })

	return func() tea.Msg {
		select {
		case <-cancel:
			return nil
		case <-fire:
			// a Stop racing the timer may leave both ready
			select {
			case <-cancel:
				return nil
			default:
				return msg
			}
		}
	}
}

// Current reports whether msg came from the latest Schedule call
func (s *Scheduler) Current(msg FilterSettledMsg) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return msg.seq == s.seq
}

// Stop cancels the pending window, if any
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
	// a message already delivered by the last window is stale from now on
	s.seq++
}

func (s *Scheduler) stopLocked() {
	if s.timer == nil {
		return
	}
	s.timer.Stop()
	close(s.cancel)
	s.timer = nil
	s.cancel = nil
}
