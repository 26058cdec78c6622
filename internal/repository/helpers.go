package repository

import (
	"database/sql"
	"fmt"
)

// requireAffected maps zero affected rows to sql.ErrNoRows.
func requireAffected(result sql.Result, op string) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: rows affected: %w", op, err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
