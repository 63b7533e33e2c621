package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/quii/guardedcounter/config"
	"github.com/quii/guardedcounter/sink"
	"github.com/quii/guardedcounter/sync/joinset"
	"github.com/quii/guardedcounter/sync/monitor"
)

// monitorBuffer is the monitor's event intake size. Workers block on a full
// intake, so it is large enough that a typical run never waits on output.
const monitorBuffer = 256

// RunOption configures [Run].
type RunOption func(*runOptions)

type runOptions struct {
	sink    sink.Sink
	svcOpts []Option
	mutate  Mutation
}

// WithSink sets where transition, progress and result lines go. Defaults
// to [sink.Discard].
func WithSink(s sink.Sink) RunOption {
	return func(o *runOptions) {
		o.sink = s
	}
}

// WithServiceOptions passes opts to the [Service] the run creates.
func WithServiceOptions(opts ...Option) RunOption {
	return func(o *runOptions) {
		o.svcOpts = append(o.svcOpts, opts...)
	}
}

// errInjected is the panic value of workers listed in [config.Run.Fail].
type errInjected struct{ worker int }

func (e errInjected) Error() string {
	return fmt.Sprintf("injected failure in worker %d", e.worker)
}

// Run executes one coordinator run as described by cfg: create the counter,
// spawn cfg.Workers increment workers, join them all and read the result.
//
// Every worker transition and a periodic progress line are written to the
// sink while the run is in flight; a "Result: N" line is written once every
// worker has been joined.
func Run(ctx context.Context, cfg config.Run, opts ...RunOption) (Summary, error) {
	if err := cfg.Validate(); err != nil {
		return Summary{}, err
	}

	o := runOptions{sink: sink.Discard, mutate: Increment}
	for _, opt := range opts {
		opt(&o)
	}

	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}

	mon := monitor.New(monitorBuffer)
	mon.SetInterval(cfg.SampleInterval)

	svcOpts := append([]Option{WithObserver(mon.Notify)}, o.svcOpts...)
	svc := Create(ctx, cfg.Initial, svcOpts...)

	// Lines written after a timeout still have to reach the sink.
	sinkCtx := context.WithoutCancel(ctx)

	write := func(line string) {
		if err := o.sink.WriteLine(sinkCtx, line); err != nil {
			svc.log.Debug("sink write failed", slog.Any("err", err))
		}
	}

	mon.ProcessNotification = func(ev joinset.Event) {
		write(ev.String())
	}
	mon.SetCheckFunc(func(ctx context.Context) {
		stats := svc.Stats()

		v, err := svc.Read(ctx)
		if err != nil {
			return
		}

		write(fmt.Sprintf("progress: value=%d completed=%d/%d failed=%d",
			v, stats.Completed, stats.Spawned, stats.Failed))
	})

	go mon.Run()

	for id := 1; id <= cfg.Workers; id++ {
		if cfg.Fails(id) {
			svc.Spawn(func(*int64) error {
				panic(errInjected{worker: id})
			})

			continue
		}

		svc.Spawn(o.mutate)
	}

	summary, err := svc.JoinAll(ctx)

	// Every event has been queued by now, so Close flushes them in order
	// before the result line.
	mon.Close()

	if summary.Workers == nil {
		write(fmt.Sprintf("run %s aborted: %v", svc.ID(), err))

		return summary, err
	}

	write(fmt.Sprintf("Result: %d", summary.Final))

	if !summary.Trustworthy {
		write(fmt.Sprintf("%d of %d worker(s) failed; the result is not trustworthy",
			summary.Failed, summary.Spawned))
	}

	return summary, err
}
