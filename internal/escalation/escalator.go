//go:build linux

package escalation

import (
	"container/heap"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

// op is a control message sent to the escalator's single owning goroutine;
// the heap itself is never touched from any other goroutine, so no mutex is
// needed around it (unlike the reaper's map, which genuinely is touched from
// both the SIGCHLD dispatch and caller goroutines).
type op struct {
	pid    int
	when   time.Time
	cancel bool
}

// escalator is the process-wide singleton owning the kill-deadline heap: one
// instantiated object (installer, command channel, logger) rather than a
// set of loose package vars.
type escalator struct {
	once sync.Once
	ops  chan op
	log  *zap.Logger
}

var proc = &escalator{log: zap.NewNop()}

// SetLogger wires a logger into the escalator loop, best called before the
// first Schedule.
func SetLogger(l *zap.Logger) {
	if l != nil {
		proc.log = l.Named("escalation")
	}
}

func (e *escalator) ensure() {
	e.once.Do(func() {
		e.ops = make(chan op, 64)
		go e.run()
	})
}

// Schedule arranges for pid's process group to receive SIGKILL after grace
// elapses, unless Cancel(pid) is called first. One goroutine owns every
// outstanding Execution's deadline rather than one timer per teardown.
func Schedule(pid int, grace time.Duration) {
	proc.ensure()
	proc.ops <- op{pid: pid, when: time.Now().Add(grace)}
}

// Cancel removes pid's pending escalation, called once the child is observed
// to have exited gracefully within the window.
func Cancel(pid int) {
	proc.ensure()
	proc.ops <- op{pid: pid, cancel: true}
}

func (e *escalator) run() {
	h := deadlineHeap{}
	heap.Init(&h)
	index := make(map[int]*deadline)

	timer := time.NewTimer(time.Hour)
	defer timer.Stop()

	resetTimer := func() {
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		if len(h) == 0 {
			timer.Reset(time.Hour)
			return
		}
		d := time.Until(h[0].when)
		if d < 0 {
			d = 0
		}
		timer.Reset(d)
	}

	for {
		select {
		case o := <-e.ops:
			if o.cancel {
				if d, ok := index[o.pid]; ok {
					heap.Remove(&h, d.index)
					delete(index, o.pid)
				}
				resetTimer()
				continue
			}
			if d, ok := index[o.pid]; ok {
				heap.Remove(&h, d.index)
				delete(index, o.pid)
			}
			d := &deadline{pid: o.pid, when: o.when}
			index[o.pid] = d
			heap.Push(&h, d)
			resetTimer()

		case <-timer.C:
			now := time.Now()
			for len(h) > 0 && !h[0].when.After(now) {
				d := heap.Pop(&h).(*deadline)
				delete(index, d.pid)
				e.log.Warn("grace window expired; sending SIGKILL", zap.Int("pid", d.pid))
				if err := unix.Kill(-d.pid, unix.SIGKILL); err != nil {
					e.log.Warn("SIGKILL failed", zap.Int("pid", d.pid), zap.Error(err))
				}
			}
			resetTimer()
		}
	}
}
