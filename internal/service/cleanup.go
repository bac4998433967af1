package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/HusseinTALL/GARBAKING-POS-sub001/internal/repository"
)

// CleanupJob is the best-effort storage hygiene sweep. Expiry enforcement
// never depends on it: tokens are checked against the clock at call time.
// It deletes never-consumed tokens whose expiry is long past and audit
// entries beyond the retention window.
type CleanupJob struct {
	tokens         repository.PaymentTokenRepository
	audit          repository.ScanAuditRepository
	logger         *slog.Logger
	sweepInterval  time.Duration
	tokenSweepAge  time.Duration
	auditRetention time.Duration
	cron           *cron.Cron
	now            func() time.Time
}

func NewCleanupJob(
	tokens repository.PaymentTokenRepository,
	audit repository.ScanAuditRepository,
	logger *slog.Logger,
	sweepInterval, tokenSweepAge, auditRetention time.Duration,
) *CleanupJob {
	return &CleanupJob{
		tokens:         tokens,
		audit:          audit,
		logger:         logger,
		sweepInterval:  sweepInterval,
		tokenSweepAge:  tokenSweepAge,
		auditRetention: auditRetention,
		now:            time.Now,
	}
}

func (j *CleanupJob) Start() error {
	j.cron = cron.New()
	spec := fmt.Sprintf("@every %s", j.sweepInterval)
	if _, err := j.cron.AddFunc(spec, j.Run); err != nil {
		return fmt.Errorf("schedule cleanup job: %w", err)
	}
	j.cron.Start()
	j.logger.Info("cleanup job scheduled", "interval", j.sweepInterval.String())
	return nil
}

func (j *CleanupJob) Stop() {
	if j.cron != nil {
		<-j.cron.Stop().Done()
	}
}

// Run executes one sweep. Exported so operators can trigger it out of band.
func (j *CleanupJob) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	now := j.now().UTC()

	swept, err := j.tokens.DeleteExpiredUnconsumed(ctx, now.Add(-j.tokenSweepAge))
	if err != nil {
		j.logger.Error("token sweep failed", "error", err.Error())
	} else if swept > 0 {
		j.logger.Info("token sweep completed", "deleted", swept)
	}

	purged, err := j.audit.DeleteOlderThan(ctx, now.Add(-j.auditRetention))
	if err != nil {
		j.logger.Error("audit retention sweep failed", "error", err.Error())
	} else if purged > 0 {
		j.logger.Info("audit retention sweep completed", "deleted", purged)
	}
}
