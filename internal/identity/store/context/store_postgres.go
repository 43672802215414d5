package identitycontext

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"crosslink/internal/identity/models"
	id "crosslink/pkg/domain"
	"crosslink/pkg/platform/sentinel"
)

// PostgresStore persists identity contexts in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed context store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const contextColumns = `id, identity_id, tenant_id, context_type, verification_level, trust_score, status, created_at, updated_at, created_by, updated_by`

func (s *PostgresStore) Create(ctx context.Context, ic *models.IdentityContext) error {
	query := `
		INSERT INTO identity_contexts (` + contextColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err := s.db.ExecContext(ctx, query,
		uuid.UUID(ic.ID),
		uuid.UUID(ic.IdentityID),
		uuid.UUID(ic.TenantID),
		ic.ContextType,
		string(ic.VerificationLevel),
		nullFloat(ic.TrustScore),
		string(ic.Status),
		ic.CreatedAt,
		ic.UpdatedAt,
		uuid.UUID(ic.CreatedBy),
		uuid.UUID(ic.UpdatedBy),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert identity context: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, contextID id.ContextID) (*models.IdentityContext, error) {
	query := `SELECT ` + contextColumns + ` FROM identity_contexts WHERE id = $1`
	ic, err := scanContext(s.db.QueryRowContext(ctx, query, uuid.UUID(contextID)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find identity context: %w", err)
	}
	return ic, nil
}

// Execute loads the context FOR UPDATE, runs the callback, and writes the
// mutated row back, all inside one transaction.
func (s *PostgresStore) Execute(ctx context.Context, contextID id.ContextID, fn func(ic *models.IdentityContext) error) (*models.IdentityContext, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin context update: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	query := `SELECT ` + contextColumns + ` FROM identity_contexts WHERE id = $1 FOR UPDATE`
	ic, err := scanContext(tx.QueryRowContext(ctx, query, uuid.UUID(contextID)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("lock identity context: %w", err)
	}

	if err := fn(ic); err != nil {
		return nil, err
	}

	update := `
		UPDATE identity_contexts
		SET verification_level = $2, trust_score = $3, status = $4, updated_at = $5, updated_by = $6
		WHERE id = $1
	`
	_, err = tx.ExecContext(ctx, update,
		uuid.UUID(ic.ID),
		string(ic.VerificationLevel),
		nullFloat(ic.TrustScore),
		string(ic.Status),
		ic.UpdatedAt,
		uuid.UUID(ic.UpdatedBy),
	)
	if err != nil {
		return nil, fmt.Errorf("update identity context: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit context update: %w", err)
	}
	return ic, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanContext(row rowScanner) (*models.IdentityContext, error) {
	var (
		ic            models.IdentityContext
		contextUUID   uuid.UUID
		identityUUID  uuid.UUID
		tenantUUID    uuid.UUID
		createdByUUID uuid.UUID
		updatedByUUID uuid.UUID
		trustScore    sql.NullFloat64
		level, status string
	)
	err := row.Scan(&contextUUID, &identityUUID, &tenantUUID, &ic.ContextType, &level, &trustScore, &status, &ic.CreatedAt, &ic.UpdatedAt, &createdByUUID, &updatedByUUID)
	if err != nil {
		return nil, err
	}
	ic.ID = id.ContextID(contextUUID)
	ic.IdentityID = id.IdentityID(identityUUID)
	ic.TenantID = id.TenantID(tenantUUID)
	ic.VerificationLevel = models.VerificationLevel(level)
	ic.Status = models.ContextStatus(status)
	ic.CreatedBy = id.UserID(createdByUUID)
	ic.UpdatedBy = id.UserID(updatedByUUID)
	if trustScore.Valid {
		score := trustScore.Float64
		ic.TrustScore = &score
	}
	return &ic, nil
}

func nullFloat(value *float64) sql.NullFloat64 {
	if value == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *value, Valid: true}
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
