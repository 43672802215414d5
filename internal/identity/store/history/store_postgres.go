package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"crosslink/internal/identity/models"
	id "crosslink/pkg/domain"
)

// PostgresStore persists context history entries in PostgreSQL. Append-only:
// there is no update or delete path.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed history store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Append(ctx context.Context, entry *models.HistoryEntry) error {
	changedFields, err := json.Marshal(entry.ChangedFields)
	if err != nil {
		return fmt.Errorf("marshal changed fields: %w", err)
	}
	previousValues, err := marshalValues(entry.PreviousValues)
	if err != nil {
		return err
	}
	newValues, err := marshalValues(entry.NewValues)
	if err != nil {
		return err
	}
	query := `
		INSERT INTO context_history (id, context_id, change_type, changed_fields, previous_values, new_values, changed_by, occurred_at, reason)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err = s.db.ExecContext(ctx, query,
		uuid.UUID(entry.ID),
		uuid.UUID(entry.ContextID),
		string(entry.ChangeType),
		changedFields,
		previousValues,
		newValues,
		uuid.UUID(entry.ChangedBy),
		entry.Timestamp,
		entry.Reason,
	)
	if err != nil {
		return fmt.Errorf("insert history entry: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListByContext(ctx context.Context, contextID id.ContextID) ([]*models.HistoryEntry, error) {
	query := `
		SELECT id, context_id, change_type, changed_fields, previous_values, new_values, changed_by, occurred_at, reason
		FROM context_history
		WHERE context_id = $1
		ORDER BY occurred_at, id
	`
	rows, err := s.db.QueryContext(ctx, query, uuid.UUID(contextID))
	if err != nil {
		return nil, fmt.Errorf("list history entries: %w", err)
	}
	defer rows.Close()

	var entries []*models.HistoryEntry
	for rows.Next() {
		var (
			entry          models.HistoryEntry
			entryUUID      uuid.UUID
			contextUUID    uuid.UUID
			changedByUUID  uuid.UUID
			changeType     string
			changedFields  []byte
			previousValues []byte
			newValues      []byte
		)
		err := rows.Scan(&entryUUID, &contextUUID, &changeType, &changedFields, &previousValues, &newValues, &changedByUUID, &entry.Timestamp, &entry.Reason)
		if err != nil {
			return nil, fmt.Errorf("scan history entry: %w", err)
		}
		entry.ID = id.HistoryID(entryUUID)
		entry.ContextID = id.ContextID(contextUUID)
		entry.ChangeType = models.ChangeType(changeType)
		entry.ChangedBy = id.UserID(changedByUUID)
		if err := json.Unmarshal(changedFields, &entry.ChangedFields); err != nil {
			return nil, fmt.Errorf("unmarshal changed fields: %w", err)
		}
		if len(previousValues) > 0 {
			if err := json.Unmarshal(previousValues, &entry.PreviousValues); err != nil {
				return nil, fmt.Errorf("unmarshal previous values: %w", err)
			}
		}
		if len(newValues) > 0 {
			if err := json.Unmarshal(newValues, &entry.NewValues); err != nil {
				return nil, fmt.Errorf("unmarshal new values: %w", err)
			}
		}
		entries = append(entries, &entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history entries: %w", err)
	}
	return entries, nil
}

func marshalValues(values map[string]string) ([]byte, error) {
	if len(values) == 0 {
		return []byte("{}"), nil
	}
	raw, err := json.Marshal(values)
	if err != nil {
		return nil, fmt.Errorf("marshal history values: %w", err)
	}
	return raw, nil
}
