package verification

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"crosslink/internal/trust/models"
	id "crosslink/pkg/domain"
)

// PostgresStore persists verification records in PostgreSQL. Append-only;
// the sequence number is assigned inside the insert so concurrent appends
// for one attribute never collide.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed verification trail store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Append(ctx context.Context, record *models.VerificationRecord) error {
	evidence, err := marshalEvidence(record.Evidence)
	if err != nil {
		return err
	}
	query := `
		INSERT INTO verification_log (id, attribute_id, sequence, status, source, notes, requested_by, evidence, occurred_at)
		SELECT $1, $2, COALESCE(MAX(sequence), 0) + 1, $3, $4, $5, $6, $7, $8
		FROM verification_log
		WHERE attribute_id = $2
		RETURNING sequence
	`
	err = s.db.QueryRowContext(ctx, query,
		uuid.UUID(record.ID),
		uuid.UUID(record.AttributeID),
		record.Status,
		record.Source,
		record.Notes,
		uuid.UUID(record.RequestedBy),
		evidence,
		record.Timestamp,
	).Scan(&record.Sequence)
	if err != nil {
		return fmt.Errorf("append verification record: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListByAttribute(ctx context.Context, attributeID id.AttributeID) ([]*models.VerificationRecord, error) {
	query := `
		SELECT id, attribute_id, sequence, status, source, notes, requested_by, evidence, occurred_at
		FROM verification_log
		WHERE attribute_id = $1
		ORDER BY sequence
	`
	rows, err := s.db.QueryContext(ctx, query, uuid.UUID(attributeID))
	if err != nil {
		return nil, fmt.Errorf("list verification records: %w", err)
	}
	defer rows.Close()

	var records []*models.VerificationRecord
	for rows.Next() {
		var (
			record        models.VerificationRecord
			recordUUID    uuid.UUID
			attributeUUID uuid.UUID
			requestedBy   uuid.UUID
			evidence      []byte
		)
		err := rows.Scan(&recordUUID, &attributeUUID, &record.Sequence, &record.Status, &record.Source, &record.Notes, &requestedBy, &evidence, &record.Timestamp)
		if err != nil {
			return nil, fmt.Errorf("scan verification record: %w", err)
		}
		record.ID = id.HistoryID(recordUUID)
		record.AttributeID = id.AttributeID(attributeUUID)
		record.RequestedBy = id.UserID(requestedBy)
		if len(evidence) > 0 {
			if err := json.Unmarshal(evidence, &record.Evidence); err != nil {
				return nil, fmt.Errorf("unmarshal verification evidence: %w", err)
			}
		}
		records = append(records, &record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate verification records: %w", err)
	}
	return records, nil
}

func marshalEvidence(evidence map[string]string) ([]byte, error) {
	if len(evidence) == 0 {
		return []byte("{}"), nil
	}
	raw, err := json.Marshal(evidence)
	if err != nil {
		return nil, fmt.Errorf("marshal verification evidence: %w", err)
	}
	return raw, nil
}
