package client

import (
	"context"
	"database/sql"
	"time"

	"github.com/singlefetch/singlefetch/batch"
	"github.com/singlefetch/singlefetch/internal/debug"
)

// QueryEvent describes one executed batch statement.
type QueryEvent struct {
	Query    string
	Duration time.Duration
	Error    error
	Start    time.Time
	End      time.Time
}

// Middleware intercepts batch statements on their way to the database.
// Calling next runs the rest of the chain and, last, the statement itself;
// timing and error fields of the event are populated after next returns.
type Middleware func(ctx context.Context, event *QueryEvent, next func() error) error

// Instrument wraps a database handle so every statement passes through the
// middleware chain, in the order given. The result satisfies batch.Querier
// and plugs into batch.NewFetch.
func Instrument(q batch.Querier, middlewares ...Middleware) batch.Querier {
	if len(middlewares) == 0 {
		return q
	}
	return &instrumentedQuerier{q: q, middlewares: middlewares}
}

type instrumentedQuerier struct {
	q           batch.Querier
	middlewares []Middleware
}

func (iq *instrumentedQuerier) QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	var rows *sql.Rows
	err := iq.run(ctx, query, func() error {
		var err error
		rows, err = iq.q.QueryContext(ctx, query, args...)
		return err
	})
	return rows, err
}

func (iq *instrumentedQuerier) QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row {
	var row *sql.Row
	_ = iq.run(ctx, query, func() error {
		row = iq.q.QueryRowContext(ctx, query, args...)
		return nil
	})
	return row
}

func (iq *instrumentedQuerier) run(ctx context.Context, query string, exec func() error) error {
	event := &QueryEvent{Query: query, Start: time.Now()}

	var next func() error
	index := 0
	next = func() error {
		if index >= len(iq.middlewares) {
			err := exec()
			event.End = time.Now()
			event.Duration = event.End.Sub(event.Start)
			event.Error = err
			return err
		}
		middleware := iq.middlewares[index]
		index++
		return middleware(ctx, event, next)
	}
	return next()
}

// LoggingMiddleware logs each statement and its outcome through the debug
// logger.
func LoggingMiddleware() Middleware {
	return func(ctx context.Context, event *QueryEvent, next func() error) error {
		err := next()
		if err != nil {
			debug.Error("statement failed", "sql", event.Query, "err", err)
		} else {
			debug.Debug("statement completed", "sql", event.Query, "duration", event.Duration)
		}
		return err
	}
}

// TimingMiddleware reports each statement's execution time.
func TimingMiddleware(onTiming func(query string, duration time.Duration)) Middleware {
	return func(ctx context.Context, event *QueryEvent, next func() error) error {
		err := next()
		if onTiming != nil {
			onTiming(event.Query, event.Duration)
		}
		return err
	}
}

// ErrorMiddleware reports failed statements.
func ErrorMiddleware(onError func(query string, err error)) Middleware {
	return func(ctx context.Context, event *QueryEvent, next func() error) error {
		err := next()
		if err != nil && onError != nil {
			onError(event.Query, err)
		}
		return err
	}
}
