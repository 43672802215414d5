package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"crosslink/internal/sync/models"
	id "crosslink/pkg/domain"
	"crosslink/pkg/platform/sentinel"
)

// PostgresStore persists sync operations in PostgreSQL. Attribute lists and
// conflicts are stored as JSONB; the PENDING_APPROVAL guard on update is the
// compare-and-set backing the at-most-one-approval invariant.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed ledger store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const operationColumns = `id, integration_id, initiated_by, started_at, completed_at, status, synced_attributes, failed_attributes, conflicted_attributes, approved_by, approved_at`

func (s *PostgresStore) Create(ctx context.Context, op *models.Operation) error {
	synced, failed, conflicted, err := marshalAttributeSets(op)
	if err != nil {
		return err
	}
	query := `
		INSERT INTO sync_operations (` + operationColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err = s.db.ExecContext(ctx, query,
		uuid.UUID(op.ID),
		uuid.UUID(op.IntegrationID),
		uuid.UUID(op.InitiatedBy),
		op.StartedAt,
		nullTime(op.CompletedAt),
		string(op.Status),
		synced,
		failed,
		conflicted,
		nullUser(op.ApprovedBy),
		nullTime(op.ApprovedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert sync operation: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, syncID id.SyncID) (*models.Operation, error) {
	query := `SELECT ` + operationColumns + ` FROM sync_operations WHERE id = $1`
	op, err := scanOperation(s.db.QueryRowContext(ctx, query, uuid.UUID(syncID)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find sync operation: %w", err)
	}
	return op, nil
}

func (s *PostgresStore) ListByIntegration(ctx context.Context, integrationID id.IntegrationID) ([]*models.Operation, error) {
	query := `
		SELECT ` + operationColumns + `
		FROM sync_operations
		WHERE integration_id = $1
		ORDER BY started_at, id
	`
	rows, err := s.db.QueryContext(ctx, query, uuid.UUID(integrationID))
	if err != nil {
		return nil, fmt.Errorf("list sync operations: %w", err)
	}
	defer rows.Close()

	var ops []*models.Operation
	for rows.Next() {
		op, err := scanOperation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan sync operation: %w", err)
		}
		ops = append(ops, op)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sync operations: %w", err)
	}
	return ops, nil
}

// TransitionFromPending rewrites the operation only while its stored status
// is still PENDING_APPROVAL. Zero rows affected means another approval won
// the race and the operation is already terminal.
func (s *PostgresStore) TransitionFromPending(ctx context.Context, op *models.Operation) error {
	synced, failed, conflicted, err := marshalAttributeSets(op)
	if err != nil {
		return err
	}
	query := `
		UPDATE sync_operations
		SET status = $2, completed_at = $3, synced_attributes = $4, failed_attributes = $5, conflicted_attributes = $6, approved_by = $7, approved_at = $8
		WHERE id = $1 AND status = 'PENDING_APPROVAL'
	`
	result, err := s.db.ExecContext(ctx, query,
		uuid.UUID(op.ID),
		string(op.Status),
		nullTime(op.CompletedAt),
		synced,
		failed,
		conflicted,
		nullUser(op.ApprovedBy),
		nullTime(op.ApprovedAt),
	)
	if err != nil {
		return fmt.Errorf("transition sync operation: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		if _, findErr := s.FindByID(ctx, op.ID); errors.Is(findErr, sentinel.ErrNotFound) {
			return sentinel.ErrNotFound
		}
		return sentinel.ErrInvalidState
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOperation(row rowScanner) (*models.Operation, error) {
	var (
		op          models.Operation
		syncUUID    uuid.UUID
		intUUID     uuid.UUID
		initiatedBy uuid.UUID
		completedAt sql.NullTime
		status      string
		synced      []byte
		failed      []byte
		conflicted  []byte
		approvedBy  uuid.NullUUID
		approvedAt  sql.NullTime
	)
	err := row.Scan(&syncUUID, &intUUID, &initiatedBy, &op.StartedAt, &completedAt, &status, &synced, &failed, &conflicted, &approvedBy, &approvedAt)
	if err != nil {
		return nil, err
	}
	op.ID = id.SyncID(syncUUID)
	op.IntegrationID = id.IntegrationID(intUUID)
	op.InitiatedBy = id.UserID(initiatedBy)
	op.Status = models.SyncStatus(status)
	if completedAt.Valid {
		t := completedAt.Time
		op.CompletedAt = &t
	}
	if approvedBy.Valid {
		u := id.UserID(approvedBy.UUID)
		op.ApprovedBy = &u
	}
	if approvedAt.Valid {
		t := approvedAt.Time
		op.ApprovedAt = &t
	}
	if err := json.Unmarshal(synced, &op.SyncedAttributes); err != nil {
		return nil, fmt.Errorf("unmarshal synced attributes: %w", err)
	}
	if len(failed) > 0 {
		if err := json.Unmarshal(failed, &op.FailedAttributes); err != nil {
			return nil, fmt.Errorf("unmarshal failed attributes: %w", err)
		}
	}
	if len(conflicted) > 0 {
		if err := json.Unmarshal(conflicted, &op.ConflictedAttributes); err != nil {
			return nil, fmt.Errorf("unmarshal conflicted attributes: %w", err)
		}
	}
	return &op, nil
}

func marshalAttributeSets(op *models.Operation) (synced, failed, conflicted []byte, err error) {
	syncedList := op.SyncedAttributes
	if syncedList == nil {
		syncedList = []string{}
	}
	if synced, err = json.Marshal(syncedList); err != nil {
		return nil, nil, nil, fmt.Errorf("marshal synced attributes: %w", err)
	}
	failedList := op.FailedAttributes
	if failedList == nil {
		failedList = []string{}
	}
	if failed, err = json.Marshal(failedList); err != nil {
		return nil, nil, nil, fmt.Errorf("marshal failed attributes: %w", err)
	}
	conflictMap := op.ConflictedAttributes
	if conflictMap == nil {
		conflictMap = map[string]models.Conflict{}
	}
	if conflicted, err = json.Marshal(conflictMap); err != nil {
		return nil, nil, nil, fmt.Errorf("marshal conflicted attributes: %w", err)
	}
	return synced, failed, conflicted, nil
}

func nullTime(value *time.Time) sql.NullTime {
	if value == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *value, Valid: true}
}

func nullUser(value *id.UserID) uuid.NullUUID {
	if value == nil {
		return uuid.NullUUID{}
	}
	return uuid.NullUUID{UUID: uuid.UUID(*value), Valid: true}
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
