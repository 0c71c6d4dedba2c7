package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

const createRecordsTable = `
CREATE TABLE IF NOT EXISTS payment_records (
	seq BIGINT UNSIGNED NOT NULL AUTO_INCREMENT,
	kind VARCHAR(64) NOT NULL,
	record_id VARCHAR(128) NOT NULL,
	payload_json JSON NOT NULL,
	created_at DATETIME(6) NOT NULL,
	PRIMARY KEY (seq),
	KEY idx_payment_records_kind_record (kind, record_id)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`

// MySQLStore keeps every record as a row; insertion order is the auto-increment sequence.
type MySQLStore struct {
	db DBTX
}

func NewMySQLStore(db DBTX) *MySQLStore {
	return &MySQLStore{db: db}
}

func (s *MySQLStore) Init(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, createRecordsTable); err != nil {
		return fmt.Errorf("create payment_records table: %w", err)
	}
	return nil
}

func (s *MySQLStore) SaveRecord(ctx context.Context, kind, id string, record interface{}) error {
	if err := validateRecordKey(kind, id); err != nil {
		return err
	}
	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encode %s record: %w", kind, err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO payment_records (kind, record_id, payload_json, created_at)
		VALUES (?, ?, ?, ?)
	`, kind, id, string(payload), time.Now().UTC())
	if isTableMissingError(err) {
		return ErrStoreNotInitialized
	}
	return err
}

func (s *MySQLStore) LoadRecords(ctx context.Context, kind string) ([]json.RawMessage, error) {
	if !validKind(kind) {
		return nil, ErrInvalidRecord
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT payload_json FROM payment_records
		WHERE kind = ?
		ORDER BY seq ASC
	`, kind)
	if err != nil {
		if isTableMissingError(err) {
			return nil, ErrStoreNotInitialized
		}
		return nil, err
	}
	defer rows.Close()

	records := make([]json.RawMessage, 0)
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		records = append(records, json.RawMessage(payload))
	}
	return records, rows.Err()
}
