package postgres

import (
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/phrazzld/genqueue/internal/store"
)

// SQLSTATE codes with a store meaning.
const (
	uniqueViolationCode  = "23505"
	checkViolationCode   = "23514"
	notNullViolationCode = "23502"
	adminShutdownCode    = "57P01"
	cannotConnectNowCode = "57P03"

	// connectionExceptionClass prefixes every connection failure code (08xxx)
	connectionExceptionClass = "08"
)

// MapError translates a database error into the matching store error. The
// original error stays in the chain. Errors without a store meaning are
// returned unchanged.
func MapError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %w", store.ErrJobNotFound, err)
	}

	var connectErr *pgconn.ConnectError
	if errors.As(err, &connectErr) || errors.Is(err, driver.ErrBadConn) {
		return fmt.Errorf("%w: %w", store.ErrUnavailable, err)
	}

	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}

	switch {
	case pgErr.Code == uniqueViolationCode:
		return fmt.Errorf("%w: %w", store.ErrJobExists, err)
	case pgErr.Code == checkViolationCode:
		return fmt.Errorf("%w: constraint %s: %w", store.ErrInvalidEntity, pgErr.ConstraintName, err)
	case pgErr.Code == notNullViolationCode:
		return fmt.Errorf("%w: column %s is required: %w", store.ErrInvalidEntity, pgErr.ColumnName, err)
	case isUnavailableCode(pgErr.Code):
		return fmt.Errorf("%w: %w", store.ErrUnavailable, err)
	}
	return err
}

// IsUniqueViolation reports whether err is a unique constraint violation.
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode
}

func isUnavailableCode(code string) bool {
	return strings.HasPrefix(code, connectionExceptionClass) ||
		code == adminShutdownCode ||
		code == cannotConnectNowCode
}
