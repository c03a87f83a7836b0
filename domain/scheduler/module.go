package scheduler

import (
	"context"
	"log/slog"

	"go.uber.org/fx"

	"github.com/markus-michalski/osticket-subticket-manager/domain/gate"
	"github.com/markus-michalski/osticket-subticket-manager/internal/config"
	"github.com/markus-michalski/osticket-subticket-manager/pkg/session"
)

var Module = fx.Module("scheduler",
	fx.Provide(NewScheduler),
	fx.Invoke(RegisterSweeps, RegisterLifecycle),
)

// Sweeper drops state that has outlived its use.
type Sweeper interface {
	Sweep() int
}

type SweepParams struct {
	fx.In

	Scheduler *Scheduler
	Store     session.Store
	Throttle  *gate.Throttle
	Cfg       *config.Config
	Log       *slog.Logger
}

// RegisterSweeps schedules eviction for the in-process session store and
// the per-IP throttle. Redis expires its own keys.
func RegisterSweeps(p SweepParams) error {
	interval := p.Cfg.Session.SweepInterval
	if interval <= 0 {
		return nil
	}

	if sw, ok := p.Store.(Sweeper); ok {
		if err := p.Scheduler.AddIntervalTask("session_sweep", interval, sweepTask(sw, "sessions", p.Log)); err != nil {
			return err
		}
	}
	if p.Throttle != nil {
		if err := p.Scheduler.AddIntervalTask("throttle_sweep", interval, sweepTask(p.Throttle, "throttle", p.Log)); err != nil {
			return err
		}
	}
	return nil
}

func sweepTask(sw Sweeper, what string, log *slog.Logger) TaskFunc {
	return func(context.Context) error {
		if n := sw.Sweep(); n > 0 {
			log.Debug("swept expired entries", slog.String("store", what), slog.Int("removed", n))
		}
		return nil
	}
}

func RegisterLifecycle(lc fx.Lifecycle, s *Scheduler) {
	lc.Append(fx.Hook{
		OnStart: s.Start,
		OnStop:  s.Stop,
	})
}
