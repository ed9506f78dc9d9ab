package errors

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

// ErrorDump is the log-only view of an error: its code, every wrapped layer,
// and the Postgres diagnostics when a driver error sits in the chain.
type ErrorDump struct {
	TopMessage   string   `json:"top_message"`
	Code         Code     `json:"code,omitempty"`
	Chain        []string `json:"chain,omitempty"`
	PGCode       string   `json:"pg_code,omitempty"`
	PGConstraint string   `json:"pg_constraint,omitempty"`
	PGTable      string   `json:"pg_table,omitempty"`
	PGDetail     string   `json:"pg_detail,omitempty"`
}

// Dump never goes into a response body.
func Dump(err error) ErrorDump {
	if err == nil {
		return ErrorDump{}
	}
	d := ErrorDump{TopMessage: err.Error()}
	if typed := As(err); typed != nil {
		d.Code = typed.Code()
	}
	for e := err; e != nil; e = errors.Unwrap(e) {
		d.Chain = append(d.Chain, fmt.Sprintf("%T: %v", e, e))
	}

	// pgx backs the gorm postgres driver; pq errors come from goose.
	var pgxErr *pgconn.PgError
	var pqErr *pq.Error
	switch {
	case errors.As(err, &pgxErr):
		d.PGCode, d.PGConstraint, d.PGTable, d.PGDetail = pgxErr.Code, pgxErr.ConstraintName, pgxErr.TableName, pgxErr.Detail
	case errors.As(err, &pqErr):
		d.PGCode, d.PGConstraint, d.PGTable, d.PGDetail = string(pqErr.Code), pqErr.Constraint, pqErr.Table, pqErr.Detail
	}
	return d
}
