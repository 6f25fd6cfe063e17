package engine

import (
	"context"
	"os"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/shirou/gopsutil/v4/process"
)

// samplePeriod bounds how far past the memory ceiling a run can get before
// the watchdog reacts.
const samplePeriod = 50 * time.Millisecond

// watchdog samples the process RSS while a snippet runs, tracking the peak
// and cancelling the evaluation context when the ceiling is breached.
type watchdog struct {
	cancel     context.CancelFunc
	proc       *process.Process
	limitBytes uint64
	base       uint64
	peak       atomic.Uint64
	breached   atomic.Bool
	stop       chan struct{}
	done       chan struct{}
}

func startWatchdog(cancel context.CancelFunc, limitMB int) *watchdog {
	w := &watchdog{
		cancel: cancel,
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	if limitMB > 0 {
		w.limitBytes = uint64(limitMB) << 20
	}
	if proc, err := process.NewProcess(int32(os.Getpid())); err == nil {
		w.proc = proc
	}
	w.base = w.sample()
	w.peak.Store(w.base)
	go w.loop()
	return w
}

func (w *watchdog) loop() {
	defer close(w.done)
	ticker := time.NewTicker(samplePeriod)
	defer ticker.Stop()
	for {
		select {
		case <-w.stop:
			return
		case <-ticker.C:
			s := w.sample()
			if s > w.peak.Load() {
				w.peak.Store(s)
			}
			if w.limitBytes > 0 && s > w.base+w.limitBytes {
				w.breached.Store(true)
				w.cancel()
				return
			}
		}
	}
}

// sample reads the process RSS, falling back to heap accounting when
// process introspection is unavailable on the platform.
func (w *watchdog) sample() uint64 {
	if w.proc != nil {
		if mi, err := w.proc.MemoryInfo(); err == nil {
			return mi.RSS
		}
	}
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	return ms.HeapAlloc
}

// halt stops sampling and returns the peak memory delta in MB plus whether
// the ceiling was breached.
func (w *watchdog) halt() (float64, bool) {
	select {
	case <-w.done:
	default:
		close(w.stop)
		<-w.done
	}
	peak := w.peak.Load()
	if peak < w.base {
		return 0, w.breached.Load()
	}
	return float64(peak-w.base) / float64(1<<20), w.breached.Load()
}
