package repo

import (
	"context"
	"database/sql"
	"errors"

	"guildline/internal/domain"
)

const debtColumns = `id,status,created_by,paid_to,created_mission,paid_mission,created_at,updated_at`

func scanDebt(row rowScanner) (domain.BloodDebt, error) {
	var d domain.BloodDebt
	var paidTo, paidMission sql.NullString
	err := row.Scan(&d.ID, &d.Status, &d.CreatedBy, &paidTo, &d.CreatedMission, &paidMission, &d.CreatedAt, &d.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return d, ErrNotFound
	}
	if err != nil {
		return d, err
	}
	d.PaidTo = strPtr(paidTo)
	d.PaidMission = strPtr(paidMission)
	return d, nil
}

func (r Repo) InsertDebt(ctx context.Context, tx *sql.Tx, d domain.BloodDebt) error {
	_, err := r.q(tx).ExecContext(ctx, `INSERT INTO blood_debts(id,status,created_by,paid_to,created_mission,paid_mission,created_at,updated_at) VALUES (?,?,?,?,?,?,?,?)`,
		d.ID, d.Status, d.CreatedBy, nullableStringPtr(d.PaidTo), d.CreatedMission, nullableStringPtr(d.PaidMission), d.CreatedAt, d.UpdatedAt)
	return err
}

func (r Repo) GetDebt(ctx context.Context, id string) (domain.BloodDebt, error) {
	return scanDebt(r.DB.QueryRowContext(ctx, `SELECT `+debtColumns+` FROM blood_debts WHERE id=?`, id))
}

// DebtByCreatedMissionTx returns the debt a BLOOD_DEBT mission generated.
func (r Repo) DebtByCreatedMissionTx(ctx context.Context, tx *sql.Tx, missionID string) (domain.BloodDebt, error) {
	return scanDebt(r.q(tx).QueryRowContext(ctx, `SELECT `+debtColumns+` FROM blood_debts WHERE created_mission=?`, missionID))
}

// DebtByPaidMissionTx returns the debt a collection mission settles.
func (r Repo) DebtByPaidMissionTx(ctx context.Context, tx *sql.Tx, missionID string) (domain.BloodDebt, error) {
	return scanDebt(r.q(tx).QueryRowContext(ctx, `SELECT `+debtColumns+` FROM blood_debts WHERE paid_mission=?`, missionID))
}

// CollectableDebtTx returns the oldest debt owed by debtor to creditor that
// has not yet been claimed by a collection mission.
func (r Repo) CollectableDebtTx(ctx context.Context, tx *sql.Tx, debtorID, creditorID string) (domain.BloodDebt, error) {
	return scanDebt(r.q(tx).QueryRowContext(ctx, `SELECT `+debtColumns+` FROM blood_debts
WHERE created_by=? AND paid_to=? AND status=? ORDER BY created_at ASC, id ASC LIMIT 1`, debtorID, creditorID, domain.DebtPaidInitialMission))
}

// UpdateDebtIf writes status, paid_to and paid_mission provided the stored
// status still equals expected.
func (r Repo) UpdateDebtIf(ctx context.Context, tx *sql.Tx, d domain.BloodDebt, expected domain.DebtStatus) error {
	res, err := r.q(tx).ExecContext(ctx, `UPDATE blood_debts SET status=?,paid_to=?,paid_mission=?,updated_at=? WHERE id=? AND status=?`,
		d.Status, nullableStringPtr(d.PaidTo), nullableStringPtr(d.PaidMission), d.UpdatedAt, d.ID, expected)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrConflict
	}
	return nil
}

type DebtFilters struct {
	// ActorID matches debts the actor owes or is owed.
	ActorID   string
	CreatedBy string
	PaidTo    string
	Status    domain.DebtStatus
	Page
}

func (r Repo) ListDebts(ctx context.Context, f DebtFilters) ([]domain.BloodDebt, error) {
	var clauses []string
	var args []any
	if f.ActorID != "" {
		clauses = append(clauses, "(created_by=? OR paid_to=?)")
		args = append(args, f.ActorID, f.ActorID)
	}
	if f.CreatedBy != "" {
		clauses = append(clauses, "created_by=?")
		args = append(args, f.CreatedBy)
	}
	if f.PaidTo != "" {
		clauses = append(clauses, "paid_to=?")
		args = append(args, f.PaidTo)
	}
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, f.Status)
	}
	clauses, args = f.Page.apply(clauses, args, "created_at")
	query, args := f.Page.tail(`SELECT `+debtColumns+` FROM blood_debts`+where(clauses), args, "created_at")
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.BloodDebt
	for rows.Next() {
		d, err := scanDebt(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, d)
	}
	return res, rows.Err()
}

// Debtors groups debts owed to creditorID in the given status by debtor.
func (r Repo) Debtors(ctx context.Context, creditorID string, status domain.DebtStatus) ([]domain.DebtCounterparty, error) {
	return r.counterparties(ctx, `SELECT d.created_by, COALESCE(a.alias,''), COUNT(1) FROM blood_debts d JOIN actors a ON a.id = d.created_by
WHERE d.paid_to=? AND d.status=? GROUP BY d.created_by, a.alias ORDER BY a.alias, d.created_by`, creditorID, status)
}

// Creditors groups debts debtorID owes in the given status by creditor.
func (r Repo) Creditors(ctx context.Context, debtorID string, status domain.DebtStatus) ([]domain.DebtCounterparty, error) {
	return r.counterparties(ctx, `SELECT d.paid_to, COALESCE(a.alias,''), COUNT(1) FROM blood_debts d JOIN actors a ON a.id = d.paid_to
WHERE d.created_by=? AND d.status=? GROUP BY d.paid_to, a.alias ORDER BY a.alias, d.paid_to`, debtorID, status)
}

func (r Repo) counterparties(ctx context.Context, query string, args ...any) ([]domain.DebtCounterparty, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.DebtCounterparty
	for rows.Next() {
		var c domain.DebtCounterparty
		if err := rows.Scan(&c.ActorID, &c.Alias, &c.Debts); err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, rows.Err()
}
