package engine

import (
	"context"

	"guildline/internal/domain"
	"guildline/internal/ledger"
	"guildline/internal/repo"
)

// DebtSide selects debts by the requester's role in them.
type DebtSide string

const (
	DebtsAll    DebtSide = ""
	DebtsOwing  DebtSide = "owing"
	DebtsOwedTo DebtSide = "owed"
)

type DebtQuery struct {
	Side   DebtSide
	Status domain.DebtStatus
	// ActorID lets administrators inspect another actor's debts.
	ActorID string
	repo.Page
}

func (e Engine) ListDebts(ctx context.Context, req Requester, q DebtQuery) ([]domain.BloodDebt, error) {
	actor := req.ActorID
	if q.ActorID != "" {
		if !req.IsAdmin() && q.ActorID != req.ActorID {
			return nil, domain.Forbidden("cannot list debts of another actor")
		}
		actor = q.ActorID
	}
	f := repo.DebtFilters{Status: q.Status, Page: q.Page}
	switch q.Side {
	case DebtsAll:
		if !req.IsAdmin() || q.ActorID != "" {
			f.ActorID = actor
		}
	case DebtsOwing:
		f.CreatedBy = actor
	case DebtsOwedTo:
		f.PaidTo = actor
	default:
		return nil, domain.Validation("unknown side %q", q.Side)
	}
	return e.Repo.ListDebts(ctx, f)
}

// DebtorsOf groups the actors whose settled missions left them owing the
// requester a debt that can now be collected.
func (e Engine) DebtorsOf(ctx context.Context, req Requester) ([]domain.DebtCounterparty, error) {
	return e.Repo.Debtors(ctx, req.ActorID, domain.DebtPaidInitialMission)
}

// CreditorsOf groups the actors the requester still owes a debt to.
func (e Engine) CreditorsOf(ctx context.Context, req Requester) ([]domain.DebtCounterparty, error) {
	return e.Repo.Creditors(ctx, req.ActorID, domain.DebtPaidInitialMission)
}

type TransactionQuery struct {
	Description domain.TransactionDescription
	// UserID lets administrators read another actor's ledger.
	UserID string
	repo.Page
}

// ListTransactions returns ledger entries newest first.
func (e Engine) ListTransactions(ctx context.Context, req Requester, q TransactionQuery) ([]domain.Transaction, error) {
	user := req.ActorID
	if q.UserID != "" && q.UserID != req.ActorID {
		if !req.IsAdmin() {
			return nil, domain.Forbidden("cannot read another actor's transactions")
		}
		user = q.UserID
	}
	return e.ledger().List(ctx, ledger.Filters{UserID: user, Description: q.Description, Page: q.Page})
}

// ListEvents returns the audit log to administrators.
func (e Engine) ListEvents(ctx context.Context, req Requester, f repo.EventFilters) ([]domain.Event, error) {
	if !req.IsAdmin() {
		return nil, domain.Forbidden("only administrators may read the audit log")
	}
	return e.Repo.LatestEvents(ctx, f)
}
