// Package worker runs a fixed number of goroutines, each repeatedly
// claiming and executing one open experiment at a time until none are
// left (or, optionally, polling for more). Each worker owns a dedicated
// *sql.DB configured for a single connection, mirroring the original
// project's "every worker opens and closes its own connections" model,
// translated to Go's pooled-connection idiom instead of an explicit
// open/close per statement.
package worker

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/expgrid/expgrid/internal/config"
	"github.com/expgrid/expgrid/internal/dialect"
	"github.com/expgrid/expgrid/internal/dispatch"
	"github.com/expgrid/expgrid/internal/result"
	"github.com/expgrid/expgrid/internal/status"
	"github.com/expgrid/expgrid/internal/xlog"
)

// RoutineFunc is the user-supplied experiment routine: given the claimed
// experiment and a Processor scoped to it, it runs the experiment and
// reports how it finished.
type RoutineFunc func(ctx context.Context, exp *dispatch.Experiment, proc *result.Processor) Outcome

// Options configures a Pool run.
type Options struct {
	// Workers is the number of concurrent goroutines to run.
	Workers int
	// Bound caps the total number of experiments executed across all
	// workers; zero means unbounded (run until no experiments are left).
	Bound int
	// RandomOrder claims experiments in random order instead of id order.
	RandomOrder bool
	// WaitForWork, when true, makes a worker back off and re-poll instead
	// of exiting as soon as it observes no open experiments.
	WaitForWork bool
	// PollInterval bounds how often a waiting worker re-polls.
	PollInterval time.Duration
}

// Pool runs RoutineFunc against the experiment table described by table,
// opening one dedicated *sql.DB per worker via open.
type Pool struct {
	dialect dialect.Dialect
	table   *config.Table
	open    func() (*sql.DB, error)
	log     *slog.Logger
}

// New returns a Pool bound to table, opening a connection pool per
// worker via open.
func New(d dialect.Dialect, table *config.Table, open func() (*sql.DB, error)) *Pool {
	return &Pool{dialect: d, table: table, open: open, log: xlog.New("worker")}
}

// Run launches opts.Workers goroutines and blocks until every worker has
// exited, returning the first non-nil error any worker observed.
func (p *Pool) Run(ctx context.Context, opts Options, fn RoutineFunc) error {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 2 * time.Second
	}

	var (
		wg        sync.WaitGroup
		completed int64
		firstErr  error
		mu        sync.Mutex
	)

	hostname, _ := os.Hostname()

	for i := 0; i < opts.Workers; i++ {
		wg.Add(1)
		workerID := i
		go func() {
			defer wg.Done()
			tag := uuid.NewString()
			log := xlog.Sub(p.log, fmt.Sprintf("w%d-%s", workerID, tag[:8]))

			if err := p.runWorker(ctx, opts, fn, hostname, log, &completed); err != nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				mu.Unlock()
			}
		}()
	}

	wg.Wait()
	return firstErr
}

func (p *Pool) runWorker(ctx context.Context, opts Options, fn RoutineFunc, hostname string, log *slog.Logger, completed *int64) error {
	db, err := p.open()
	if err != nil {
		return fmt.Errorf("worker: opening connection: %w", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(1)

	var limiter *rate.Limiter
	if opts.WaitForWork {
		limiter = rate.NewLimiter(rate.Every(opts.PollInterval), 1)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		// A bounded run reserves its slot before claiming, so concurrent
		// workers together never execute more than opts.Bound experiments.
		if opts.Bound > 0 && atomic.AddInt64(completed, 1) > int64(opts.Bound) {
			atomic.AddInt64(completed, -1)
			return nil
		}

		exp, err := dispatch.Claim(ctx, db, p.dialect, p.table, dispatch.ClaimOptions{RandomOrder: opts.RandomOrder})
		if err != nil && opts.Bound > 0 {
			atomic.AddInt64(completed, -1)
		}
		if errors.Is(err, dispatch.ErrNoExperimentsLeft) {
			if !opts.WaitForWork {
				return nil
			}
			if werr := limiter.Wait(ctx); werr != nil {
				return nil
			}
			continue
		}
		if err != nil {
			log.Error("claim failed", "err", err)
			return err
		}

		log.Info("claimed experiment", "id", exp.ID)
		p.execute(ctx, exp, db, hostname, log, fn)
	}
}

func (p *Pool) execute(ctx context.Context, exp *dispatch.Experiment, db *sql.DB, hostname string, log *slog.Logger, fn RoutineFunc) {
	proc := result.New(db, p.dialect, p.table, exp.ID)
	if err := proc.SetMachine(ctx, hostname); err != nil {
		log.Error("failed to record machine", "err", err)
	}

	outcome := p.runRoutine(ctx, exp, proc, fn, log)

	switch outcome.Kind {
	case KindDone:
		if err := proc.ChangeStatus(ctx, status.Done); err != nil {
			log.Error("failed to mark experiment done", "err", err)
		}
	case KindError:
		if outcome.Err != nil {
			if err := proc.WriteError(ctx, outcome.Err.Error()); err != nil {
				log.Error("failed to write error", "err", err)
			}
		}
		if err := proc.ChangeStatus(ctx, status.Error); err != nil {
			log.Error("failed to mark experiment errored", "err", err)
		}
	case KindPaused:
		if err := proc.ChangeStatus(ctx, status.Paused); err != nil {
			log.Error("failed to mark experiment paused", "err", err)
		}
	}
}

func (p *Pool) runRoutine(ctx context.Context, exp *dispatch.Experiment, proc *result.Processor, fn RoutineFunc, log *slog.Logger) (outcome Outcome) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("routine panicked", "recovered", r)
			outcome = Error(fmt.Errorf("worker: routine panicked: %v", r))
		}
	}()
	return fn(ctx, exp, proc)
}
