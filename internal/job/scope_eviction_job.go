package job

import (
	"context"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
)

type ScopeEvictor interface {
	EvictIdle(ctx context.Context, idle time.Duration) int
}

// ScopeEvictionJob unloads memory scopes nobody touched for idle. Their
// snapshots stay in storage and are reloaded on next access.
type ScopeEvictionJob struct {
	evictor ScopeEvictor
	idle    time.Duration
}

func NewScopeEvictionJob(evictor ScopeEvictor, idle time.Duration) *ScopeEvictionJob {
	return &ScopeEvictionJob{evictor: evictor, idle: idle}
}

func (j *ScopeEvictionJob) Name() string {
	return "scope_eviction"
}

func (j *ScopeEvictionJob) Run(ctx context.Context) error {
	if j.evictor == nil {
		return nil
	}
	idle := j.idle
	if idle <= 0 {
		idle = 30 * time.Minute
	}
	if n := j.evictor.EvictIdle(ctx, idle); n > 0 {
		logutil.GetLogger(ctx).Info("idle scopes evicted", zap.Int("count", n), zap.Duration("idle", idle))
	}
	return nil
}
