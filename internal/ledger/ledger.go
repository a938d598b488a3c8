// Package ledger owns coin balances: every balance change is paired with an
// append-only transaction row written in the same SQL transaction.
package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"guildline/internal/domain"
	"guildline/internal/repo"
)

type Writer struct {
	Repo  repo.Repo
	Now   func() time.Time
	NewID func() string
}

func (w Writer) now() time.Time {
	if w.Now != nil {
		return w.Now()
	}
	return time.Now()
}

func (w Writer) newID() string {
	if w.NewID != nil {
		return w.NewID()
	}
	return uuid.NewString()
}

// TypeOf derives the transaction type from the sign of amount.
func TypeOf(amount int64) domain.TransactionType {
	if amount < 0 {
		return domain.TransactionOutcome
	}
	return domain.TransactionIncome
}

// Apply moves amount coins (negative for a debit) on actorID's balance and
// appends the matching transaction. A debit that would overdraw the balance
// fails with domain.ErrInsufficientFunds and leaves both untouched.
func (w Writer) Apply(ctx context.Context, tx *sql.Tx, actorID string, amount int64, desc domain.TransactionDescription) (domain.Transaction, error) {
	if tx == nil {
		return domain.Transaction{}, errors.New("ledger: transaction required")
	}
	if amount == 0 {
		return domain.Transaction{}, domain.Validation("amount must be non-zero")
	}
	ok, err := w.Repo.AdjustCoins(ctx, tx, actorID, amount)
	if err != nil {
		return domain.Transaction{}, fmt.Errorf("adjust balance: %w", err)
	}
	if !ok {
		actor, err := w.Repo.GetActorTx(ctx, tx, actorID)
		if errors.Is(err, repo.ErrNotFound) {
			return domain.Transaction{}, domain.NotFound("actor", actorID)
		}
		if err != nil {
			return domain.Transaction{}, err
		}
		return domain.Transaction{}, domain.Errorf(domain.CodeInsufficientFund, "insufficient coins: balance %d, required %d", actor.Coins, -amount).
			WithDetails(map[string]any{"balance": actor.Coins, "required": -amount})
	}
	t := domain.Transaction{
		ID:          w.newID(),
		UserID:      actorID,
		Amount:      amount,
		Description: desc,
		Type:        TypeOf(amount),
		Date:        w.now().UTC().Format(time.RFC3339Nano),
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO transactions(id,user_id,amount,description,type,date) VALUES (?,?,?,?,?,?)`,
		t.ID, t.UserID, t.Amount, t.Description, t.Type, t.Date); err != nil {
		return domain.Transaction{}, fmt.Errorf("insert transaction: %w", err)
	}
	return t, nil
}

type Filters struct {
	UserID      string
	Description domain.TransactionDescription
	repo.Page
}

// List returns transactions newest first.
func (w Writer) List(ctx context.Context, f Filters) ([]domain.Transaction, error) {
	query := `SELECT id,user_id,amount,description,type,date FROM transactions WHERE 1=1`
	var args []any
	if f.UserID != "" {
		query += " AND user_id=?"
		args = append(args, f.UserID)
	}
	if f.Description != "" {
		query += " AND description=?"
		args = append(args, f.Description)
	}
	if f.CursorCreatedAt != "" && f.CursorID != "" {
		query += " AND (date < ? OR (date = ? AND id < ?))"
		args = append(args, f.CursorCreatedAt, f.CursorCreatedAt, f.CursorID)
	}
	query += " ORDER BY date DESC, id DESC"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := w.Repo.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Transaction
	for rows.Next() {
		var t domain.Transaction
		if err := rows.Scan(&t.ID, &t.UserID, &t.Amount, &t.Description, &t.Type, &t.Date); err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, rows.Err()
}
