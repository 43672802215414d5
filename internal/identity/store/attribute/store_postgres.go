package attribute

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"crosslink/internal/identity/models"
	id "crosslink/pkg/domain"
	"crosslink/pkg/platform/sentinel"
)

// PostgresStore persists context attributes in PostgreSQL. The active-key
// uniqueness invariant is backed by a partial unique index on (context_id,
// key) WHERE active.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed attribute store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const attributeColumns = `id, context_id, key, value, sensitivity_level, verification_status, verification_source, metadata, active, created_at, updated_at`

func (s *PostgresStore) Create(ctx context.Context, attr *models.ContextAttribute) error {
	metadata, err := marshalMetadata(attr.Metadata)
	if err != nil {
		return err
	}
	query := `
		INSERT INTO context_attributes (` + attributeColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err = s.db.ExecContext(ctx, query,
		uuid.UUID(attr.ID),
		uuid.UUID(attr.ContextID),
		attr.Key,
		attr.Value,
		string(attr.Sensitivity),
		string(attr.VerificationStatus),
		attr.VerificationSource,
		metadata,
		attr.Active,
		attr.CreatedAt,
		attr.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert attribute: %w", err)
	}
	return nil
}

func (s *PostgresStore) Update(ctx context.Context, attr *models.ContextAttribute) error {
	metadata, err := marshalMetadata(attr.Metadata)
	if err != nil {
		return err
	}
	query := `
		UPDATE context_attributes
		SET value = $2, sensitivity_level = $3, verification_status = $4, verification_source = $5, metadata = $6, active = $7, updated_at = $8
		WHERE id = $1
	`
	result, err := s.db.ExecContext(ctx, query,
		uuid.UUID(attr.ID),
		attr.Value,
		string(attr.Sensitivity),
		string(attr.VerificationStatus),
		attr.VerificationSource,
		metadata,
		attr.Active,
		attr.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update attribute: %w", err)
	}
	return requireRow(result)
}

func (s *PostgresStore) FindByID(ctx context.Context, attributeID id.AttributeID) (*models.ContextAttribute, error) {
	query := `SELECT ` + attributeColumns + ` FROM context_attributes WHERE id = $1`
	attr, err := scanAttribute(s.db.QueryRowContext(ctx, query, uuid.UUID(attributeID)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find attribute by id: %w", err)
	}
	return attr, nil
}

func (s *PostgresStore) FindByKey(ctx context.Context, contextID id.ContextID, key string) (*models.ContextAttribute, error) {
	query := `SELECT ` + attributeColumns + ` FROM context_attributes WHERE context_id = $1 AND key = $2 AND active`
	attr, err := scanAttribute(s.db.QueryRowContext(ctx, query, uuid.UUID(contextID), key))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find attribute by key: %w", err)
	}
	return attr, nil
}

func (s *PostgresStore) Snapshot(ctx context.Context, contextID id.ContextID) (map[string]*models.ContextAttribute, error) {
	query := `SELECT ` + attributeColumns + ` FROM context_attributes WHERE context_id = $1 AND active`
	rows, err := s.db.QueryContext(ctx, query, uuid.UUID(contextID))
	if err != nil {
		return nil, fmt.Errorf("snapshot attributes: %w", err)
	}
	defer rows.Close()

	snapshot := make(map[string]*models.ContextAttribute)
	for rows.Next() {
		attr, err := scanAttribute(rows)
		if err != nil {
			return nil, fmt.Errorf("scan attribute: %w", err)
		}
		snapshot[attr.Key] = attr
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate attributes: %w", err)
	}
	return snapshot, nil
}

// SetValue updates the active attribute for (context, key) in place, or
// inserts a fresh active attribute when none exists. Synchronized values
// arrive unverified.
func (s *PostgresStore) SetValue(ctx context.Context, contextID id.ContextID, key, value string, sensitivity models.SensitivityLevel, now time.Time) error {
	update := `
		UPDATE context_attributes
		SET value = $3, updated_at = $4
		WHERE context_id = $1 AND key = $2 AND active
	`
	result, err := s.db.ExecContext(ctx, update, uuid.UUID(contextID), key, value, now)
	if err != nil {
		return fmt.Errorf("set attribute value: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("set attribute value: %w", err)
	}
	if affected > 0 {
		return nil
	}

	attr, err := models.NewContextAttribute(id.AttributeID(uuid.New()), contextID, key, value, sensitivity, now)
	if err != nil {
		return err
	}
	return s.Create(ctx, attr)
}

func (s *PostgresStore) Deactivate(ctx context.Context, contextID id.ContextID, key string, now time.Time) error {
	query := `
		UPDATE context_attributes
		SET active = FALSE, updated_at = $3
		WHERE context_id = $1 AND key = $2 AND active
	`
	result, err := s.db.ExecContext(ctx, query, uuid.UUID(contextID), key, now)
	if err != nil {
		return fmt.Errorf("deactivate attribute: %w", err)
	}
	return requireRow(result)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAttribute(row rowScanner) (*models.ContextAttribute, error) {
	var (
		attr          models.ContextAttribute
		attributeUUID uuid.UUID
		contextUUID   uuid.UUID
		sensitivity   string
		status        string
		metadata      []byte
	)
	err := row.Scan(&attributeUUID, &contextUUID, &attr.Key, &attr.Value, &sensitivity, &status, &attr.VerificationSource, &metadata, &attr.Active, &attr.CreatedAt, &attr.UpdatedAt)
	if err != nil {
		return nil, err
	}
	attr.ID = id.AttributeID(attributeUUID)
	attr.ContextID = id.ContextID(contextUUID)
	attr.Sensitivity = models.SensitivityLevel(sensitivity)
	attr.VerificationStatus = models.VerificationStatus(status)
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &attr.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal attribute metadata: %w", err)
		}
	}
	return &attr, nil
}

func marshalMetadata(metadata map[string]string) ([]byte, error) {
	if len(metadata) == 0 {
		return []byte("{}"), nil
	}
	raw, err := json.Marshal(metadata)
	if err != nil {
		return nil, fmt.Errorf("marshal attribute metadata: %w", err)
	}
	return raw, nil
}

func requireRow(result sql.Result) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
