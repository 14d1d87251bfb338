package database

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrPoolExhausted is returned when no connection became free within the
// configured acquisition timeout.
var ErrPoolExhausted = errors.New("database connection pool exhausted")

// Options tunes the connection pool.
type Options struct {
	MaxConns          int32
	MinConns          int32
	HealthCheckPeriod time.Duration
	AcquireTimeout    time.Duration
}

// Conn is a dedicated connection checked out of the pool. Release must be
// called exactly once.
type Conn interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Release()
}

// ConnPool hands out dedicated connections for transactional work.
type ConnPool interface {
	Acquire(ctx context.Context) (Conn, error)
}

// Pool wraps a pgxpool.Pool and bounds how long Acquire may wait.
type Pool struct {
	*pgxpool.Pool
	acquireTimeout time.Duration
}

func NewPool(ctx context.Context, dsn string, opts Options) (*Pool, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	if opts.MaxConns > 0 {
		config.MaxConns = opts.MaxConns
	}
	if opts.MinConns > 0 {
		config.MinConns = opts.MinConns
	}
	if opts.HealthCheckPeriod > 0 {
		config.HealthCheckPeriod = opts.HealthCheckPeriod
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	slog.Info("Database connected successfully", "max_conns", config.MaxConns)

	return &Pool{Pool: pool, acquireTimeout: opts.AcquireTimeout}, nil
}

// Acquire checks out a connection. With a positive acquire timeout, a wait
// that outlives it fails with ErrPoolExhausted; cancellation of ctx itself is
// reported as is.
func (p *Pool) Acquire(ctx context.Context) (Conn, error) {
	acquireCtx := ctx
	if p.acquireTimeout > 0 {
		var cancel context.CancelFunc
		acquireCtx, cancel = context.WithTimeout(ctx, p.acquireTimeout)
		defer cancel()
	}

	conn, err := p.Pool.Acquire(acquireCtx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, ErrPoolExhausted
		}
		return nil, err
	}
	return conn, nil
}

// Stats is a point-in-time view of pool usage.
type Stats struct {
	AcquiredConns     int32         `json:"acquired_conns"`
	IdleConns         int32         `json:"idle_conns"`
	TotalConns        int32         `json:"total_conns"`
	MaxConns          int32         `json:"max_conns"`
	EmptyAcquireCount int64         `json:"empty_acquire_count"`
	AcquireDuration   time.Duration `json:"acquire_duration_ns"`
}

func (p *Pool) Stats() Stats {
	s := p.Pool.Stat()
	return Stats{
		AcquiredConns:     s.AcquiredConns(),
		IdleConns:         s.IdleConns(),
		TotalConns:        s.TotalConns(),
		MaxConns:          s.MaxConns(),
		EmptyAcquireCount: s.EmptyAcquireCount(),
		AcquireDuration:   s.AcquireDuration(),
	}
}

func (p *Pool) Close() {
	p.Pool.Close()
	slog.Info("Database disconnected")
}
