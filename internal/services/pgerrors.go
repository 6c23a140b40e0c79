package services

import (
	"errors"
	"fmt"

	"vergeside/internal/kml"

	"github.com/uptrace/bun/driver/pgdriver"
)

const (
	sqlStateUniqueViolation = "23505"
	sqlStateUndefinedTable  = "42P01"
)

func sqlState(err error) string {
	var pgErr pgdriver.Error
	if errors.As(err, &pgErr) {
		return pgErr.Field('C')
	}
	return ""
}

func isUniqueViolation(err error) bool { return sqlState(err) == sqlStateUniqueViolation }

func isUndefinedTable(err error) bool { return sqlState(err) == sqlStateUndefinedTable }

// classify marks undefined-table failures with kml.ErrTableMissing.
func classify(err error) error {
	if err == nil || !isUndefinedTable(err) {
		return err
	}
	return fmt.Errorf("%w: %w", kml.ErrTableMissing, err)
}
