package errors

import (
	stdErrors "errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

// ErrorDump is the log-friendly shape of an error chain. Postgres fields are
// filled from either driver when a server error is somewhere in the chain.
type ErrorDump struct {
	TopMessage string   `json:"top_message"`
	Code       Code     `json:"code,omitempty"`
	Retryable  bool     `json:"retryable,omitempty"`
	Chain      []string `json:"chain,omitempty"`

	PGCode       string `json:"pg_code,omitempty"`
	PGConstraint string `json:"pg_constraint,omitempty"`
	PGTable      string `json:"pg_table,omitempty"`
	PGColumn     string `json:"pg_column,omitempty"`
	PGDetail     string `json:"pg_detail,omitempty"`
	PGMessage    string `json:"pg_message,omitempty"`
}

func Dump(err error) ErrorDump {
	if err == nil {
		return ErrorDump{}
	}
	d := ErrorDump{TopMessage: err.Error()}
	if typed := As(err); typed != nil {
		d.Code, d.Retryable = typed.Code(), typed.Retryable()
	}
	for link := err; link != nil; link = stdErrors.Unwrap(link) {
		d.Chain = append(d.Chain, fmt.Sprintf("%T: %v", link, link))
	}
	d.fillPostgres(err)
	return d
}

func (d *ErrorDump) fillPostgres(err error) {
	if pgx := (*pgconn.PgError)(nil); stdErrors.As(err, &pgx) {
		d.PGCode, d.PGMessage, d.PGDetail = pgx.Code, pgx.Message, pgx.Detail
		d.PGTable, d.PGColumn, d.PGConstraint = pgx.TableName, pgx.ColumnName, pgx.ConstraintName
		return
	}
	if pqe := (*pq.Error)(nil); stdErrors.As(err, &pqe) {
		d.PGCode, d.PGMessage, d.PGDetail = string(pqe.Code), pqe.Message, pqe.Detail
		d.PGTable, d.PGColumn, d.PGConstraint = pqe.Table, pqe.Column, pqe.Constraint
	}
}
