package repositories

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Querier is the query surface shared by pgxpool.Pool, pgx.Tx and pgxmock.
// Write paths take a Querier argument so the caller decides which
// transaction the statement runs in.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// ErrorKind is the closed set of storage failure classes.
type ErrorKind int

const (
	KindQuery ErrorKind = iota
	KindConstraint
	KindConnection
	KindCanceled
)

func (k ErrorKind) String() string {
	switch k {
	case KindConstraint:
		return "constraint"
	case KindConnection:
		return "connection"
	case KindCanceled:
		return "canceled"
	default:
		return "query"
	}
}

// StoreError is returned by every repository method that talks to the
// database.
type StoreError struct {
	Kind ErrorKind
	Op   string
	Code string
	Err  error
}

func (e *StoreError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s: %s (%s): %v", e.Op, e.Kind, e.Code, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// storeError classifies err. pgx.ErrNoRows is passed through untouched
// because callers treat it as an outcome, not a failure.
func storeError(op string, err error) error {
	if err == nil || errors.Is(err, pgx.ErrNoRows) {
		return err
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		kind := KindQuery
		switch {
		// class 23: integrity constraint violation
		case len(pgErr.Code) == 5 && pgErr.Code[:2] == "23":
			kind = KindConstraint
		// class 08: connection exception, 57P01..03: admin/crash shutdown
		case len(pgErr.Code) == 5 && (pgErr.Code[:2] == "08" || pgErr.Code[:3] == "57P"):
			kind = KindConnection
		case pgErr.Code == "57014":
			kind = KindCanceled
		}
		return &StoreError{Kind: kind, Op: op, Code: pgErr.Code, Err: err}
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return &StoreError{Kind: KindCanceled, Op: op, Err: err}
	}

	var netErr net.Error
	var connectErr *pgconn.ConnectError
	if errors.As(err, &netErr) || errors.As(err, &connectErr) || pgconn.SafeToRetry(err) {
		return &StoreError{Kind: KindConnection, Op: op, Err: err}
	}

	return &StoreError{Kind: KindQuery, Op: op, Err: err}
}

// IsKind reports whether err is a StoreError of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var se *StoreError
	return errors.As(err, &se) && se.Kind == kind
}
