// Package sqlstore implements analysis.Repository on database/sql. The MySQL,
// PostgreSQL and SQLite adapters differ only in their Dialect.
package sqlstore

import (
	"context"
	"database/sql"
	"strconv"
	"strings"
)

// Dialect carries what varies between drivers
type Dialect struct {
	Name     string
	// Numbered placeholders ($1, $2, ...) instead of ?
	Numbered bool
	Schema   []string
}

// Rebind rewrites ? placeholders for the dialect. Queries here never contain a
// literal question mark.
func (d Dialect) Rebind(q string) string {
	if !d.Numbered {
		return q
	}
	var b strings.Builder
	b.Grow(len(q) + 16)
	n := 0
	for _, r := range q {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Migrate creates the tables when they are missing
func Migrate(ctx context.Context, db *sql.DB, d Dialect) error {
	for _, stmt := range d.Schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
