package sandbox

import (
	"context"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v4/process"
)

// Usage is the peak resource consumption observed while a child ran.
// Sampling is best-effort: a child that exits before the first sample
// reports zero values.
type Usage struct {
	PeakRSSBytes uint64 `json:"peak_rss_bytes"`
	PeakFDs      int32  `json:"peak_fds"`
	Samples      int    `json:"samples"`
}

type usageSampler struct {
	cancel context.CancelFunc
	done   chan struct{}

	mu    sync.Mutex
	usage Usage
}

func startSampler(pid int, interval time.Duration) *usageSampler {
	ctx, cancel := context.WithCancel(context.Background())
	s := &usageSampler{cancel: cancel, done: make(chan struct{})}
	go s.loop(ctx, int32(pid), interval)
	return s
}

func (s *usageSampler) loop(ctx context.Context, pid int32, interval time.Duration) {
	defer close(s.done)

	proc, err := process.NewProcessWithContext(ctx, pid)
	if err != nil {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		s.sample(ctx, proc)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *usageSampler) sample(ctx context.Context, proc *process.Process) {
	var rss uint64
	if mem, err := proc.MemoryInfoWithContext(ctx); err == nil && mem != nil {
		rss = mem.RSS
	}
	fds, fdErr := proc.NumFDsWithContext(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	if rss > s.usage.PeakRSSBytes {
		s.usage.PeakRSSBytes = rss
	}
	if fdErr == nil && fds > s.usage.PeakFDs {
		s.usage.PeakFDs = fds
	}
	s.usage.Samples++
}

// stop ends sampling and returns the peaks observed.
func (s *usageSampler) stop() Usage {
	s.cancel()
	<-s.done
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.usage
}
