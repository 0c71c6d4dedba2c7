package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"

	mysqlDriver "github.com/go-sql-driver/mysql"
)

const (
	KindOrders        = "orders"
	KindNotifications = "notifications"
)

var (
	ErrInvalidRecord       = errors.New("invalid record")
	ErrStoreNotInitialized = errors.New("record store is not initialized")
)

// Store is an append-only collection of JSON records grouped by kind.
type Store interface {
	Init(ctx context.Context) error
	SaveRecord(ctx context.Context, kind, id string, record interface{}) error
	LoadRecords(ctx context.Context, kind string) ([]json.RawMessage, error)
}

type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

func isTableMissingError(err error) bool {
	var mysqlErr *mysqlDriver.MySQLError
	return errors.As(err, &mysqlErr) && mysqlErr.Number == 1146
}

func validKind(kind string) bool {
	if kind == "" {
		return false
	}
	for _, r := range kind {
		if (r < 'a' || r > 'z') && r != '_' {
			return false
		}
	}
	return true
}

func validateRecordKey(kind, id string) error {
	if !validKind(kind) {
		return ErrInvalidRecord
	}
	if strings.TrimSpace(id) == "" {
		return ErrInvalidRecord
	}
	return nil
}

func optionalString(v string) *string {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	return &v
}
