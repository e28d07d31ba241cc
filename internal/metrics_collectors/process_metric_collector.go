package metrics_collectors

import (
	"context"
	"os"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/process"
)

// ProcessMetricCollector reports the resident memory of the running process.
type ProcessMetricCollector struct {
	Logger zerolog.Logger
	pid    int32
}

// NewProcessMetricCollector creates a collector for the current process.
func NewProcessMetricCollector(logger zerolog.Logger) *ProcessMetricCollector {
	return &ProcessMetricCollector{Logger: logger, pid: int32(os.Getpid())}
}

func (p *ProcessMetricCollector) Name() string {
	return "process_memory"
}

func (p *ProcessMetricCollector) Collect(ctx context.Context) interface{} {
	proc, err := process.NewProcess(p.pid)
	if err != nil {
		p.Logger.Error().Err(err).Int32("pid", p.pid).Msg("Failed to open process")
		return nil
	}
	memInfo, err := proc.MemoryInfoWithContext(ctx)
	if err != nil {
		p.Logger.Warn().Err(err).Int32("pid", p.pid).Msg("Failed to get memory information")
		return nil
	}
	rss := memInfo.RSS
	return &rss
}

func (p *ProcessMetricCollector) Unit() string {
	return "bytes"
}
