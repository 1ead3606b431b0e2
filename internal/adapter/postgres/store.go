package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Strob0t/ReviewMesh/internal/domain/approval"
)

// Store implements approvalstore.Store using PostgreSQL. Votes, metadata and
// audit detail ride as JSONB; everything queried on gets its own column.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a Store backed by the given connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

const requestColumns = `id, operation, requester, severity, status, required_approvers,
	approvals, rejections, metadata, created_at, expires_at, updated_at`

// SaveRequest inserts a new approval request.
func (s *Store) SaveRequest(ctx context.Context, r *approval.Request) error {
	approvals, rejections, metadata, err := marshalRequestJSON(r)
	if err != nil {
		return err
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO approval_requests (`+requestColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		r.ID, r.Operation, r.Requester, r.Severity, r.Status, r.RequiredApprovers,
		approvals, rejections, metadata, r.CreatedAt, r.ExpiresAt, r.UpdatedAt)
	if err != nil {
		return fmt.Errorf("save approval request %s: %w", r.ID, err)
	}
	return nil
}

// UpdateRequest persists the current state of an existing request.
func (s *Store) UpdateRequest(ctx context.Context, r *approval.Request) error {
	approvals, rejections, metadata, err := marshalRequestJSON(r)
	if err != nil {
		return err
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE approval_requests
		 SET status = $2, approvals = $3, rejections = $4, metadata = $5, updated_at = $6
		 WHERE id = $1`,
		r.ID, r.Status, approvals, rejections, metadata, r.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update approval request %s: %w", r.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update approval request %s: %w", r.ID, approval.ErrNotFound)
	}
	return nil
}

// GetRequest returns a request by ID.
func (s *Store) GetRequest(ctx context.Context, id string) (*approval.Request, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+requestColumns+` FROM approval_requests WHERE id = $1`, id)

	r, err := scanRequest(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("get approval request %s: %w", id, approval.ErrNotFound)
		}
		return nil, fmt.Errorf("get approval request %s: %w", id, err)
	}
	return r, nil
}

// ListByStatus returns all requests in the given status, oldest first.
func (s *Store) ListByStatus(ctx context.Context, status approval.Status) ([]approval.Request, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+requestColumns+` FROM approval_requests WHERE status = $1 ORDER BY created_at`, status)
	if err != nil {
		return nil, fmt.Errorf("list approval requests by status %s: %w", status, err)
	}
	defer rows.Close()

	var out []approval.Request
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("scan approval request: %w", err)
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

// AppendAudit persists one audit entry.
func (s *Store) AppendAudit(ctx context.Context, e approval.AuditEntry) error {
	detail, err := json.Marshal(orEmptyMap(e.Detail))
	if err != nil {
		return fmt.Errorf("marshal audit detail: %w", err)
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO approval_audit (id, request_id, at, action, actor, detail)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		e.ID, e.RequestID, e.At, e.Action, e.Actor, detail)
	if err != nil {
		return fmt.Errorf("append audit entry %s: %w", e.ID, err)
	}
	return nil
}

// ListAuditByRequest returns the persisted audit entries for a request,
// oldest first.
func (s *Store) ListAuditByRequest(ctx context.Context, requestID string) ([]approval.AuditEntry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, request_id, at, action, actor, detail
		 FROM approval_audit WHERE request_id = $1 ORDER BY at`, requestID)
	if err != nil {
		return nil, fmt.Errorf("list audit for request %s: %w", requestID, err)
	}
	defer rows.Close()

	var out []approval.AuditEntry
	for rows.Next() {
		var e approval.AuditEntry
		var detail []byte
		if err := rows.Scan(&e.ID, &e.RequestID, &e.At, &e.Action, &e.Actor, &detail); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		if err := json.Unmarshal(detail, &e.Detail); err != nil {
			return nil, fmt.Errorf("unmarshal audit detail: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func marshalRequestJSON(r *approval.Request) (approvals, rejections, metadata []byte, err error) {
	if approvals, err = json.Marshal(orEmptyVotes(r.Approvals)); err != nil {
		return nil, nil, nil, fmt.Errorf("marshal approvals: %w", err)
	}
	if rejections, err = json.Marshal(orEmptyVotes(r.Rejections)); err != nil {
		return nil, nil, nil, fmt.Errorf("marshal rejections: %w", err)
	}
	if metadata, err = json.Marshal(orEmptyMap(r.Metadata)); err != nil {
		return nil, nil, nil, fmt.Errorf("marshal metadata: %w", err)
	}
	return approvals, rejections, metadata, nil
}

func scanRequest(row pgx.Row) (*approval.Request, error) {
	var r approval.Request
	var approvals, rejections, metadata []byte
	err := row.Scan(&r.ID, &r.Operation, &r.Requester, &r.Severity, &r.Status, &r.RequiredApprovers,
		&approvals, &rejections, &metadata, &r.CreatedAt, &r.ExpiresAt, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(approvals, &r.Approvals); err != nil {
		return nil, fmt.Errorf("unmarshal approvals: %w", err)
	}
	if err := json.Unmarshal(rejections, &r.Rejections); err != nil {
		return nil, fmt.Errorf("unmarshal rejections: %w", err)
	}
	if err := json.Unmarshal(metadata, &r.Metadata); err != nil {
		return nil, fmt.Errorf("unmarshal metadata: %w", err)
	}
	return &r, nil
}

func orEmptyVotes(v []approval.Vote) []approval.Vote {
	if v == nil {
		return []approval.Vote{}
	}
	return v
}

func orEmptyMap(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}
