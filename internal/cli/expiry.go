package cli

import (
	"context"
	"log/slog"
	"time"

	"github.com/aretw0/flujos/pkg/domain"
	"github.com/robfig/cron/v3"
)

// Expirer closes idle conversations. *flujos.Engine implements it.
type Expirer interface {
	ExpireIdle(ctx context.Context, maxIdle time.Duration, policy domain.InstanceEstado) (int, error)
}

// ExpiryJob runs one idle sweep per cron tick.
type ExpiryJob struct {
	Expirer  Expirer
	MaxIdle  time.Duration
	Policy   domain.InstanceEstado
	Logger   *slog.Logger
	// OnExpired receives the number of instances closed by each sweep.
	OnExpired func(n int)
	// Timeout bounds one sweep. Zero means one minute.
	Timeout time.Duration
}

// Run performs one sweep. It satisfies cron.Job.
func (j *ExpiryJob) Run() {
	timeout := j.Timeout
	if timeout == 0 {
		timeout = time.Minute
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	n, err := j.Expirer.ExpireIdle(ctx, j.MaxIdle, j.Policy)
	if n > 0 && j.OnExpired != nil {
		j.OnExpired(n)
	}
	if err != nil {
		j.Logger.Error("idle sweep failed", "err", err, "expired", n)
		return
	}
	if n > 0 {
		j.Logger.Info("idle instances expired", "count", n, "max_idle", j.MaxIdle, "policy", j.Policy)
	}
}

// StartExpiry schedules job on schedule, a standard cron expression or @every descriptor.
// The returned function stops the scheduler and waits for a running sweep.
func StartExpiry(schedule string, job *ExpiryJob) (stop func(), err error) {
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := c.AddJob(schedule, job); err != nil {
		return nil, err
	}
	c.Start()
	return func() {
		<-c.Stop().Done()
	}, nil
}
