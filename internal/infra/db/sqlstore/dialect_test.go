package sqlstore

import (
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRebind(t *testing.T) {
	q := `UPDATE t SET a=?, b=? WHERE id=? AND s IN (?,?)`
	assert.Equal(t, q, Dialect{Name: "mysql"}.Rebind(q))
	assert.Equal(t, `UPDATE t SET a=$1, b=$2 WHERE id=$3 AND s IN ($4,$5)`, Dialect{Name: "postgres", Numbered: true}.Rebind(q))
}

func TestGetReadsOneSnapshot(t *testing.T) {
	assert.Equal(t, sql.LevelRepeatableRead, snapshot.Isolation)
	assert.True(t, snapshot.ReadOnly)
}
