// Package engine is the single entry point embedding applications use:
// it wires configuration, credentials, backend dialect, an optional SSH
// tunnel, and the schema/dispatch/result/worker packages into the
// operations a caller needs (fill, execute, reset). It is the Go
// counterpart of the PyExperimenter façade class in the original
// project.
package engine

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/expgrid/expgrid/internal/config"
	"github.com/expgrid/expgrid/internal/credentials"
	"github.com/expgrid/expgrid/internal/dialect"
	"github.com/expgrid/expgrid/internal/dispatch"
	"github.com/expgrid/expgrid/internal/result"
	"github.com/expgrid/expgrid/internal/schema"
	"github.com/expgrid/expgrid/internal/status"
	"github.com/expgrid/expgrid/internal/tunnel"
	"github.com/expgrid/expgrid/internal/worker"
	"github.com/expgrid/expgrid/internal/xlog"
)

// Engine owns one experiment table's full lifecycle.
type Engine struct {
	cfg     *config.Config
	creds   *credentials.Credentials
	dialect dialect.Dialect
	db      *sql.DB
	tunnel  *tunnel.Tunnel
	manager *schema.Manager
	log     *slog.Logger
}

// New validates cfg, opens the backend (establishing an SSH tunnel
// first if creds carries one), and ensures the experiment table exists.
func New(ctx context.Context, cfg *config.Config, creds *credentials.Credentials) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	d, err := dialect.ByProvider(cfg.Database.Provider)
	if err != nil {
		return nil, err
	}

	var tun *tunnel.Tunnel
	dsn := dsnFor(cfg, creds)
	if creds != nil && creds.SSH.Enabled() {
		tun, err = tunnel.Start(creds.SSH, "")
		if err != nil {
			return nil, fmt.Errorf("engine: starting ssh tunnel: %w", err)
		}
	}

	db, err := d.Open(ctx, dsn)
	if err != nil {
		if tun != nil {
			_ = tun.Stop()
		}
		return nil, err
	}

	manager := schema.New(db, d, &cfg.Database.Table, cfg.CodeCarbon != nil)
	if err := manager.EnsureSchema(ctx); err != nil {
		db.Close()
		if tun != nil {
			_ = tun.Stop()
		}
		return nil, err
	}

	return &Engine{
		cfg:     cfg,
		creds:   creds,
		dialect: d,
		db:      db,
		tunnel:  tun,
		manager: manager,
		log:     xlog.New("engine"),
	}, nil
}

func dsnFor(cfg *config.Config, creds *credentials.Credentials) string {
	switch cfg.Database.Provider {
	case "sqlite":
		// _txlock=immediate upgrades every BeginTx to BEGIN IMMEDIATE, so a
		// claim transaction takes its write lock at the first statement
		// instead of only once it issues its first write — closing the
		// window where two workers could both read the same "created" row
		// before either flips it to "running". busy_timeout makes the
		// second worker's BEGIN IMMEDIATE wait for that lock instead of
		// failing immediately with SQLITE_BUSY.
		return "file:" + cfg.Database.Database + ".db?_txlock=immediate&_pragma=busy_timeout(5000)"
	case "mysql":
		host, port := "127.0.0.1", 3306
		user, password := "", ""
		if creds != nil {
			host, port, user, password = creds.Host, creds.Port, creds.User, creds.Password
			if creds.SSH.Enabled() {
				host = "127.0.0.1"
			}
		}
		return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true", user, password, host, port, cfg.Database.Database)
	default:
		return ""
	}
}

// Close releases the backend connection pool and, if one was opened,
// the SSH tunnel.
func (e *Engine) Close() error {
	err := e.db.Close()
	if e.tunnel != nil {
		if terr := e.tunnel.Stop(); err == nil {
			err = terr
		}
	}
	return err
}

// FillFromConfig inserts the full Cartesian product of the configured
// keyfield domains (fill_table_from_config in the original project).
func (e *Engine) FillFromConfig(ctx context.Context) (inserted, skipped int, err error) {
	domains := make(map[string][]any, len(e.cfg.Database.Table.Keyfields))
	for _, k := range e.cfg.Database.Table.Keyfields {
		domains[k.Name] = k.Values
	}
	return e.manager.FillFromProduct(ctx, domains, nil)
}

// FillFromCombination cross-joins parameters' Cartesian product with
// fixed (predefined combinations covering whatever keyfields parameters
// does not), inserting every resulting row not already present
// (fill_table_from_combination in the original project).
func (e *Engine) FillFromCombination(ctx context.Context, parameters map[string][]any, fixed []map[string]any) (inserted, skipped int, err error) {
	return e.manager.FillFromProduct(ctx, parameters, fixed)
}

// FillWithRows inserts the given fully specified rows, with no product
// expansion, skipping any already present (fill_table_with_rows in the
// original project).
func (e *Engine) FillWithRows(ctx context.Context, rows []map[string]any) (inserted, skipped int, err error) {
	return e.manager.FillFromRows(ctx, rows)
}

// AddExperiment inserts one experiment directly in
// created_for_execution status, for ad hoc single-run submission.
func (e *Engine) AddExperiment(ctx context.Context, combination map[string]any) (id int64, created bool, err error) {
	return e.manager.InsertSingle(ctx, combination)
}

// Execute runs opts.Workers worker goroutines, each repeatedly claiming
// and running an open experiment via fn until none are left.
func (e *Engine) Execute(ctx context.Context, opts worker.Options, fn worker.RoutineFunc) error {
	pool := worker.New(e.dialect, &e.cfg.Database.Table, e.openWorkerDB)
	return pool.Run(ctx, opts, fn)
}

func (e *Engine) openWorkerDB() (*sql.DB, error) {
	return e.dialect.Open(context.Background(), dsnFor(e.cfg, e.creds))
}

// Unpause resumes one specific paused experiment and runs it via fn on
// the caller's goroutine.
func (e *Engine) Unpause(ctx context.Context, id int64, fn worker.RoutineFunc) error {
	exp, err := dispatch.Resume(ctx, e.db, e.dialect, &e.cfg.Database.Table, id)
	if err != nil {
		return err
	}

	proc := result.New(e.db, e.dialect, &e.cfg.Database.Table, exp.ID)
	outcome := fn(ctx, exp, proc)
	switch outcome.Kind {
	case worker.KindDone:
		return proc.ChangeStatus(ctx, status.Done)
	case worker.KindError:
		if outcome.Err != nil {
			if err := proc.WriteError(ctx, outcome.Err.Error()); err != nil {
				return err
			}
		}
		return proc.ChangeStatus(ctx, status.Error)
	case worker.KindPaused:
		return proc.ChangeStatus(ctx, status.Paused)
	}
	return nil
}

// ResetExperiments requeues every row whose status is in states (or
// every row, for status.All) back to "created".
func (e *Engine) ResetExperiments(ctx context.Context, states ...status.Status) (int, error) {
	return e.manager.Reset(ctx, states...)
}

// Table returns the bound experiment table description.
func (e *Engine) Table() *config.Table { return &e.cfg.Database.Table }

// DB exposes the underlying connection pool for callers building their
// own read-only reporting queries (e.g. the show CLI command).
func (e *Engine) DB() *sql.DB { return e.db }
