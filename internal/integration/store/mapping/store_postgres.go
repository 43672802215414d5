package mapping

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"crosslink/internal/integration/models"
	id "crosslink/pkg/domain"
	"crosslink/pkg/platform/sentinel"
)

// PostgresStore persists attribute mappings in PostgreSQL. Per-direction
// source-key uniqueness is backed by a partial unique index on
// (source_context_id, target_context_id, source_attribute_key) WHERE is_active.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed mapping store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const mappingColumns = `id, source_context_id, target_context_id, source_attribute_key, target_attribute_key, mapping_type, transformation_rule, is_active, created_at, created_by`

func (s *PostgresStore) Create(ctx context.Context, mapping *models.AttributeMapping) error {
	query := `
		INSERT INTO attribute_mappings (` + mappingColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := s.db.ExecContext(ctx, query,
		uuid.UUID(mapping.ID),
		uuid.UUID(mapping.SourceContextID),
		uuid.UUID(mapping.TargetContextID),
		mapping.SourceAttributeKey,
		mapping.TargetAttributeKey,
		string(mapping.MappingType),
		mapping.TransformationRule,
		mapping.IsActive,
		mapping.CreatedAt,
		uuid.UUID(mapping.CreatedBy),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert mapping: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, mappingID id.MappingID) (*models.AttributeMapping, error) {
	query := `SELECT ` + mappingColumns + ` FROM attribute_mappings WHERE id = $1`
	mapping, err := scanMapping(s.db.QueryRowContext(ctx, query, uuid.UUID(mappingID)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find mapping: %w", err)
	}
	return mapping, nil
}

func (s *PostgresStore) Delete(ctx context.Context, mappingID id.MappingID) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM attribute_mappings WHERE id = $1`, uuid.UUID(mappingID))
	if err != nil {
		return fmt.Errorf("delete mapping: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) ListActiveForPass(ctx context.Context, source, target id.ContextID) ([]*models.AttributeMapping, error) {
	query := `
		SELECT ` + mappingColumns + `
		FROM attribute_mappings
		WHERE source_context_id = $1 AND target_context_id = $2 AND is_active
		ORDER BY id
	`
	rows, err := s.db.QueryContext(ctx, query, uuid.UUID(source), uuid.UUID(target))
	if err != nil {
		return nil, fmt.Errorf("list mappings: %w", err)
	}
	defer rows.Close()

	var mappings []*models.AttributeMapping
	for rows.Next() {
		mapping, err := scanMapping(rows)
		if err != nil {
			return nil, fmt.Errorf("scan mapping: %w", err)
		}
		mappings = append(mappings, mapping)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate mappings: %w", err)
	}
	return mappings, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMapping(row rowScanner) (*models.AttributeMapping, error) {
	var (
		mapping     models.AttributeMapping
		mappingUUID uuid.UUID
		sourceUUID  uuid.UUID
		targetUUID  uuid.UUID
		createdBy   uuid.UUID
		mappingType string
	)
	err := row.Scan(&mappingUUID, &sourceUUID, &targetUUID, &mapping.SourceAttributeKey, &mapping.TargetAttributeKey, &mappingType, &mapping.TransformationRule, &mapping.IsActive, &mapping.CreatedAt, &createdBy)
	if err != nil {
		return nil, err
	}
	mapping.ID = id.MappingID(mappingUUID)
	mapping.SourceContextID = id.ContextID(sourceUUID)
	mapping.TargetContextID = id.ContextID(targetUUID)
	mapping.MappingType = models.MappingType(mappingType)
	mapping.CreatedBy = id.UserID(createdBy)
	return &mapping, nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
