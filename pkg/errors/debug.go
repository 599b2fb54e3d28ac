package errors

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker/v2"
)

// Backend names used in ErrorDump.
const (
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
	BackendMail     = "mail"
)

// maxChainLinks caps Dump output for deeply wrapped errors.
const maxChainLinks = 16

// PGDetails is the subset of a Postgres error worth logging.
type PGDetails struct {
	Code       string `json:"code,omitempty"`
	Constraint string `json:"constraint,omitempty"`
	Table      string `json:"table,omitempty"`
	Column     string `json:"column,omitempty"`
	Detail     string `json:"detail,omitempty"`
	Message    string `json:"message,omitempty"`
}

// ErrorDump is a log-friendly view of an error tree.
type ErrorDump struct {
	TopMessage string     `json:"top_message"`
	Code       Code       `json:"code,omitempty"`
	Chain      []string   `json:"chain,omitempty"`
	Backend    string     `json:"backend,omitempty"`
	PG         *PGDetails `json:"pg,omitempty"`
}

// Dump walks err, including joined errors, and records the storefront code,
// the wrapped chain, and which backend produced the root cause.
func Dump(err error) ErrorDump {
	if err == nil {
		return ErrorDump{}
	}

	d := ErrorDump{TopMessage: err.Error()}
	if te := As(err); te != nil {
		d.Code = te.Code()
	}
	walk(err, func(e error) bool {
		d.Chain = append(d.Chain, fmt.Sprintf("%T: %v", e, e))
		return len(d.Chain) < maxChainLinks
	})

	if pg := postgresDetails(err); pg != nil {
		d.PG = pg
		d.Backend = BackendPostgres
		return d
	}

	var redisErr redis.Error
	switch {
	case errors.As(err, &redisErr), errors.Is(err, redis.ErrClosed):
		d.Backend = BackendRedis
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		d.Backend = BackendMail
	}
	return d
}

// walk visits err and its wrapped errors depth first until visit returns false.
func walk(err error, visit func(error) bool) bool {
	for err != nil {
		if !visit(err) {
			return false
		}
		if joined, ok := err.(interface{ Unwrap() []error }); ok {
			for _, inner := range joined.Unwrap() {
				if !walk(inner, visit) {
					return false
				}
			}
			return true
		}
		err = errors.Unwrap(err)
	}
	return true
}

func postgresDetails(err error) *PGDetails {
	var pgxErr *pgconn.PgError
	if errors.As(err, &pgxErr) {
		return &PGDetails{
			Code:       pgxErr.Code,
			Constraint: pgxErr.ConstraintName,
			Table:      pgxErr.TableName,
			Column:     pgxErr.ColumnName,
			Detail:     pgxErr.Detail,
			Message:    pgxErr.Message,
		}
	}
	return nil
}
