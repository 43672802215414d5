package integration

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

// PostgresStore persists integrations in PostgreSQL. Unordered pair
// uniqueness is backed by a unique index on (LEAST(source, target),
// GREATEST(source, target)).
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed integration store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const integrationColumns = `id, source_context_id, target_context_id, integration_type, sync_direction, sync_mode, is_active, created_at, updated_at, created_by`

func (s *PostgresStore) Create(ctx context.Context, integration *models.Integration) error {
	query := `
		INSERT INTO context_integrations (` + integrationColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := s.db.ExecContext(ctx, query,
		uuid.UUID(integration.ID),
		uuid.UUID(integration.SourceContextID),
		uuid.UUID(integration.TargetContextID),
		integration.IntegrationType,
		string(integration.SyncDirection),
		string(integration.SyncMode),
		integration.IsActive,
		integration.CreatedAt,
		integration.UpdatedAt,
		uuid.UUID(integration.CreatedBy),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert integration: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, integrationID id.IntegrationID) (*models.Integration, error) {
	query := `SELECT ` + integrationColumns + ` FROM context_integrations WHERE id = $1`
	row := s.db.QueryRowContext(ctx, query, uuid.UUID(integrationID))

	var (
		integration     models.Integration
		integrationUUID uuid.UUID
		sourceUUID      uuid.UUID
		targetUUID      uuid.UUID
		createdByUUID   uuid.UUID
		direction, mode string
	)
	err := row.Scan(&integrationUUID, &sourceUUID, &targetUUID, &integration.IntegrationType, &direction, &mode, &integration.IsActive, &integration.CreatedAt, &integration.UpdatedAt, &createdByUUID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find integration: %w", err)
	}
	integration.ID = id.IntegrationID(integrationUUID)
	integration.SourceContextID = id.ContextID(sourceUUID)
	integration.TargetContextID = id.ContextID(targetUUID)
	integration.SyncDirection = models.SyncDirection(direction)
	integration.SyncMode = models.SyncMode(mode)
	integration.CreatedBy = id.UserID(createdByUUID)
	return &integration, nil
}

func (s *PostgresStore) Update(ctx context.Context, integration *models.Integration) error {
	query := `
		UPDATE context_integrations
		SET integration_type = $2, sync_direction = $3, sync_mode = $4, is_active = $5, updated_at = $6
		WHERE id = $1
	`
	result, err := s.db.ExecContext(ctx, query,
		uuid.UUID(integration.ID),
		integration.IntegrationType,
		string(integration.SyncDirection),
		string(integration.SyncMode),
		integration.IsActive,
		integration.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update integration: %w", err)
	}
	return requireRow(result)
}

func (s *PostgresStore) Delete(ctx context.Context, integrationID id.IntegrationID) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM context_integrations WHERE id = $1`, uuid.UUID(integrationID))
	if err != nil {
		return fmt.Errorf("delete integration: %w", err)
	}
	return requireRow(result)
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
