// Package monitor runs the periodic free-disk/memory sampling described
// in spec.md §2.11: a ticker goroutine with no locks shared with the
// Orchestrator, logging only, using github.com/shirou/gopsutil's
// disk.Usage and mem.VirtualMemory the way the teacher's go.mod already
// pulls in gopsutil for this purpose.
package monitor

import (
	"context"
	"time"

	"github.com/shirou/gopsutil/disk"
	"github.com/shirou/gopsutil/mem"

	"github.com/torrents3/torrents3/internal/logging"
)

const defaultInterval = 30 * time.Second

// Monitor samples the scratch directory's filesystem and system memory
// on a fixed interval and warns when free disk space drops below the
// configured scratch budget.
type Monitor struct {
	path        string
	budgetBytes int64
	interval    time.Duration
	logger      *logging.Logger

	onLowSpace func(freeBytes, budgetBytes int64)
}

// New builds a Monitor for path, warning once free space on that
// filesystem drops below budgetBytes. budgetBytes of 0 disables the
// low-space warning (an unlimited scratch budget has nothing to
// compare against).
func New(path string, budgetBytes int64, logger *logging.Logger) *Monitor {
	return &Monitor{path: path, budgetBytes: budgetBytes, interval: defaultInterval, logger: logger}
}

// OnLowSpace registers a callback invoked whenever a sample finds free
// disk space under the budget, used to drive the Notifier's
// LowFreeSpace hook without this package depending on notify directly.
func (m *Monitor) OnLowSpace(fn func(freeBytes, budgetBytes int64)) {
	m.onLowSpace = fn
}

// Run samples until ctx is cancelled. It is meant to be launched in its
// own goroutine; it never returns an error, matching spec.md §5's
// "publishing log lines only" contract.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.sample()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.sample()
		}
	}
}

func (m *Monitor) sample() {
	usage, err := disk.Usage(m.path)
	if err != nil {
		m.logger.Warn("resource monitor: failed to read disk usage for", m.path, ":", err)
	} else {
		m.logger.Info("resource monitor: disk free", usage.Free, "bytes of", usage.Total, "total at", m.path)
		if m.budgetBytes > 0 && int64(usage.Free) < m.budgetBytes {
			m.logger.Warn("resource monitor: free disk space", usage.Free, "is below scratch budget", m.budgetBytes)
			if m.onLowSpace != nil {
				m.onLowSpace(int64(usage.Free), m.budgetBytes)
			}
		}
	}

	vm, err := mem.VirtualMemory()
	if err != nil {
		m.logger.Warn("resource monitor: failed to read memory stats:", err)
		return
	}
	m.logger.Info("resource monitor: memory free", vm.Free, "bytes of", vm.Total, "total")
}
