package dbutil

import (
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
)

// Rebind rewrites the ? placeholders produced by the sql builder into the
// bind style of driver.
func Rebind(driver, query string) string {
	return sqlx.Rebind(sqlx.BindType(driver), query)
}

func IsNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
