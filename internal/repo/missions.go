package repo

import (
	"context"
	"database/sql"
	"errors"

	"guildline/internal/domain"
)

const missionColumns = `m.id,m.description,m.details,m.payment_type,m.coins_amount,m.status,m.created_by,m.assigned_to,m.evidence_id,m.created_at,m.published_at,m.rejected_at,m.assigned_at,m.completed_at,m.paid_at`

func scanMission(row rowScanner, extra ...any) (domain.Mission, error) {
	var m domain.Mission
	var coins sql.NullInt64
	var assignedTo, evidenceID, publishedAt, rejectedAt, assignedAt, completedAt, paidAt sql.NullString
	dest := []any{&m.ID, &m.Description, &m.Details, &m.PaymentType, &coins, &m.Status, &m.CreatedBy, &assignedTo, &evidenceID,
		&m.CreatedAt, &publishedAt, &rejectedAt, &assignedAt, &completedAt, &paidAt}
	err := row.Scan(append(dest, extra...)...)
	if errors.Is(err, sql.ErrNoRows) {
		return m, ErrNotFound
	}
	if err != nil {
		return m, err
	}
	if coins.Valid {
		v := coins.Int64
		m.CoinsAmount = &v
	}
	m.AssignedTo = strPtr(assignedTo)
	m.EvidenceID = strPtr(evidenceID)
	m.PublishedAt = strPtr(publishedAt)
	m.RejectedAt = strPtr(rejectedAt)
	m.AssignedAt = strPtr(assignedAt)
	m.CompletedAt = strPtr(completedAt)
	m.PaidAt = strPtr(paidAt)
	return m, nil
}

func (r Repo) InsertMission(ctx context.Context, tx *sql.Tx, m domain.Mission) error {
	_, err := r.q(tx).ExecContext(ctx, `INSERT INTO missions(id,description,details,payment_type,coins_amount,status,created_by,assigned_to,evidence_id,created_at,published_at,rejected_at,assigned_at,completed_at,paid_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		m.ID, m.Description, m.Details, m.PaymentType, nullableInt64Ptr(m.CoinsAmount), m.Status, m.CreatedBy,
		nullableStringPtr(m.AssignedTo), nullableStringPtr(m.EvidenceID), m.CreatedAt, nullableStringPtr(m.PublishedAt),
		nullableStringPtr(m.RejectedAt), nullableStringPtr(m.AssignedAt), nullableStringPtr(m.CompletedAt), nullableStringPtr(m.PaidAt))
	return err
}

func (r Repo) GetMission(ctx context.Context, id string) (domain.Mission, error) {
	return r.GetMissionTx(ctx, nil, id)
}

func (r Repo) GetMissionTx(ctx context.Context, tx *sql.Tx, id string) (domain.Mission, error) {
	return scanMission(r.q(tx).QueryRowContext(ctx, `SELECT `+missionColumns+` FROM missions m WHERE m.id=?`, id))
}

// UpdateMissionIf writes every mutable column of m provided the stored status
// still equals expected. ErrConflict is returned otherwise.
func (r Repo) UpdateMissionIf(ctx context.Context, tx *sql.Tx, m domain.Mission, expected domain.MissionStatus) error {
	res, err := r.q(tx).ExecContext(ctx, `UPDATE missions SET status=?,assigned_to=?,evidence_id=?,published_at=?,rejected_at=?,assigned_at=?,completed_at=?,paid_at=?
WHERE id=? AND status=?`,
		m.Status, nullableStringPtr(m.AssignedTo), nullableStringPtr(m.EvidenceID), nullableStringPtr(m.PublishedAt),
		nullableStringPtr(m.RejectedAt), nullableStringPtr(m.AssignedAt), nullableStringPtr(m.CompletedAt), nullableStringPtr(m.PaidAt),
		m.ID, expected)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrConflict
	}
	return nil
}

const missionViewFrom = ` FROM missions m
JOIN actors c ON c.id = m.created_by
LEFT JOIN actors a ON a.id = m.assigned_to`

func scanMissionView(row rowScanner) (domain.MissionView, error) {
	var v domain.MissionView
	m, err := scanMission(row, &v.CreatedByName, &v.AssignedToName)
	v.Mission = m
	return v, err
}

func (r Repo) GetMissionView(ctx context.Context, id string) (domain.MissionView, error) {
	return scanMissionView(r.DB.QueryRowContext(ctx, `SELECT `+missionColumns+`,c.name,COALESCE(a.name,'')`+missionViewFrom+` WHERE m.id=?`, id))
}

type MissionFilters struct {
	Status      domain.MissionStatus
	PaymentType domain.PaymentType
	CreatedBy   string
	AssignedTo  string
	// ExcludeCreatedBy drops missions created by the actor.
	ExcludeCreatedBy string
	// VisibleTo limits results to published missions plus those the actor
	// created or holds.
	VisibleTo string
	Page
}

func (r Repo) ListMissions(ctx context.Context, f MissionFilters) ([]domain.MissionView, error) {
	var clauses []string
	var args []any
	if f.Status != "" {
		clauses = append(clauses, "m.status=?")
		args = append(args, f.Status)
	}
	if f.PaymentType != "" {
		clauses = append(clauses, "m.payment_type=?")
		args = append(args, f.PaymentType)
	}
	if f.CreatedBy != "" {
		clauses = append(clauses, "m.created_by=?")
		args = append(args, f.CreatedBy)
	}
	if f.AssignedTo != "" {
		clauses = append(clauses, "m.assigned_to=?")
		args = append(args, f.AssignedTo)
	}
	if f.ExcludeCreatedBy != "" {
		clauses = append(clauses, "m.created_by<>?")
		args = append(args, f.ExcludeCreatedBy)
	}
	if f.VisibleTo != "" {
		clauses = append(clauses, "(m.status=? OR m.created_by=? OR m.assigned_to=?)")
		args = append(args, domain.MissionPublished, f.VisibleTo, f.VisibleTo)
	}
	if f.CursorCreatedAt != "" && f.CursorID != "" {
		clauses = append(clauses, "(m.created_at < ? OR (m.created_at = ? AND m.id < ?))")
		args = append(args, f.CursorCreatedAt, f.CursorCreatedAt, f.CursorID)
	}
	query := `SELECT ` + missionColumns + `,c.name,COALESCE(a.name,'')` + missionViewFrom + where(clauses) + ` ORDER BY m.created_at DESC, m.id DESC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.MissionView
	for rows.Next() {
		v, err := scanMissionView(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, v)
	}
	return res, rows.Err()
}
