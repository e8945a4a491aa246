package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
)

// Upsert builds an INSERT ... ON CONFLICT DO UPDATE statement understood by
// both postgres and sqlite.
type Upsert struct {
	table      string
	conflict   []string
	cols       []string
	args       []any
	insertOnly map[string]bool
}

// NewUpsert starts a statement on table keyed by the conflict columns. The
// conflict columns must be given values with Set like any other column.
func NewUpsert(table string, conflict ...string) *Upsert {
	return &Upsert{
		table:      table,
		conflict:   conflict,
		insertOnly: make(map[string]bool),
	}
}

// Set writes col on insert and on update.
func (u *Upsert) Set(col string, v any) *Upsert {
	u.cols = append(u.cols, col)
	u.args = append(u.args, v)
	return u
}

// SetOnInsert writes col only when the row is created.
func (u *Upsert) SetOnInsert(col string, v any) *Upsert {
	u.insertOnly[col] = true
	return u.Set(col, v)
}

func (u *Upsert) Query() (string, []any) {
	key := make(map[string]bool, len(u.conflict))
	for _, c := range u.conflict {
		key[c] = true
	}

	var updates []string
	for _, c := range u.cols {
		if key[c] || u.insertOnly[c] {
			continue
		}
		updates = append(updates, c+" = excluded."+c)
	}

	action := "DO NOTHING"
	if len(updates) > 0 {
		action = "DO UPDATE SET " + strings.Join(updates, ", ")
	}

	q := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (%s) %s",
		u.table,
		strings.Join(u.cols, ", "),
		strings.TrimSuffix(strings.Repeat("?, ", len(u.cols)), ", "),
		strings.Join(u.conflict, ", "),
		action,
	)
	return q, u.args
}

func (u *Upsert) Exec(ctx context.Context, db sqlx.ExtContext) (sql.Result, error) {
	q, args := u.Query()
	return db.ExecContext(ctx, db.Rebind(q), args...)
}
