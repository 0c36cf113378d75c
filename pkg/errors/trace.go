package errors

import (
	stdErrors "errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

// Trace is the log-side view of an error: its chain plus any postgres
// diagnostics found on the way down.
type Trace struct {
	Message string
	Code    Code
	Chain   []string
	PG      *PGDiagnostics
}

// PGDiagnostics holds the server fields common to pgx and lib/pq errors.
type PGDiagnostics struct {
	SQLState   string
	Constraint string
	Table      string
	Column     string
	Detail     string
	Message    string
}

// Describe walks err and collects what is useful for an error log line.
func Describe(err error) Trace {
	if err == nil {
		return Trace{}
	}
	trace := Trace{Message: err.Error()}
	if typed := As(err); typed != nil {
		trace.Code = typed.Code()
	}
	for cur := err; cur != nil; cur = stdErrors.Unwrap(cur) {
		trace.Chain = append(trace.Chain, fmt.Sprintf("%T: %v", cur, cur))
	}
	trace.PG = pgDiagnostics(err)
	return trace
}

func pgDiagnostics(err error) *PGDiagnostics {
	var pgxErr *pgconn.PgError
	if stdErrors.As(err, &pgxErr) {
		return &PGDiagnostics{
			SQLState:   pgxErr.Code,
			Constraint: pgxErr.ConstraintName,
			Table:      pgxErr.TableName,
			Column:     pgxErr.ColumnName,
			Detail:     pgxErr.Detail,
			Message:    pgxErr.Message,
		}
	}
	var pqErr *pq.Error
	if stdErrors.As(err, &pqErr) {
		return &PGDiagnostics{
			SQLState:   string(pqErr.Code),
			Constraint: pqErr.Constraint,
			Table:      pqErr.Table,
			Column:     pqErr.Column,
			Detail:     pqErr.Detail,
			Message:    pqErr.Message,
		}
	}
	return nil
}

// Fields flattens the trace into structured log fields, skipping empties.
func (t Trace) Fields() map[string]any {
	fields := map[string]any{"error": t.Message}
	if t.Code != "" {
		fields["error_code"] = string(t.Code)
	}
	if len(t.Chain) > 1 {
		fields["error_chain"] = t.Chain
	}
	if t.PG == nil {
		return fields
	}
	for key, value := range map[string]string{
		"pg_code":       t.PG.SQLState,
		"pg_constraint": t.PG.Constraint,
		"pg_table":      t.PG.Table,
		"pg_column":     t.PG.Column,
		"pg_detail":     t.PG.Detail,
		"pg_message":    t.PG.Message,
	} {
		if value != "" {
			fields[key] = value
		}
	}
	return fields
}
