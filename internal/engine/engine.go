package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"guildline/internal/config"
	"guildline/internal/domain"
	"guildline/internal/engine/lifecycle"
	"guildline/internal/events"
	"guildline/internal/filestore"
	"guildline/internal/ledger"
	"guildline/internal/notify"
	"guildline/internal/observability"
	"guildline/internal/repo"
)

// Requester identifies who is asking. It is passed explicitly into every
// operation; the engine re-reads the role from the actor directory.
type Requester = lifecycle.Requester

type Engine struct {
	DB       *sql.DB
	Repo     repo.Repo
	Config   *config.Config
	Files    filestore.Store
	Notifier notify.Notifier
	Logger   zerolog.Logger
	Now      func() time.Time
	NewID    func() string
}

func New(db *sql.DB, cfg *config.Config, files filestore.Store, notifier notify.Notifier, logger zerolog.Logger) Engine {
	if cfg == nil {
		cfg = config.Default()
	}
	if notifier == nil {
		notifier = notify.Nop{}
	}
	return Engine{
		DB:       db,
		Repo:     repo.Repo{DB: db},
		Config:   cfg,
		Files:    files,
		Notifier: notifier,
		Logger:   logger,
		Now:      time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) stamp() string { return e.now().UTC().Format(time.RFC3339Nano) }

func (e Engine) newID() string {
	if e.NewID != nil {
		return e.NewID()
	}
	return uuid.NewString()
}

func (e Engine) events() events.Writer { return events.Writer{Now: e.now} }

func (e Engine) ledger() ledger.Writer {
	return ledger.Writer{Repo: e.Repo, Now: e.now, NewID: e.newID}
}

// requireActive resolves the requester against the directory. Unknown and
// inactive actors are refused; the stored role wins over the claimed one.
func (e Engine) requireActive(ctx context.Context, tx *sql.Tx, req Requester) (domain.Actor, Requester, error) {
	if req.ActorID == "" {
		return domain.Actor{}, req, domain.Forbidden("requester is not identified")
	}
	a, err := e.Repo.GetActorTx(ctx, tx, req.ActorID)
	if errors.Is(err, repo.ErrNotFound) {
		return a, req, domain.Forbidden("actor %s is not a guild member", req.ActorID)
	}
	if err != nil {
		return a, req, err
	}
	if a.Status != domain.ActorActive {
		return a, req, domain.Forbidden("actor %s is inactive", req.ActorID)
	}
	req.Role = a.Role
	return a, req, nil
}

// effects is what a committed operation still owes the outside world.
type effects struct {
	transactions   []domain.Transaction
	notices        []lifecycle.Notice
	removeEvidence string
}

func (e Engine) finish(ctx context.Context, fx effects) {
	for _, t := range fx.transactions {
		observability.RecordLedger(string(t.Description), string(t.Type), t.Amount)
	}
	if fx.removeEvidence != "" && e.Files != nil {
		if err := e.Files.Delete(ctx, fx.removeEvidence); err != nil && !errors.Is(err, filestore.ErrNotFound) {
			e.Logger.Error().Err(err).Str("evidence_id", fx.removeEvidence).Msg("delete evidence")
		}
	}
	for _, n := range fx.notices {
		if err := e.Notifier.Notify(ctx, n.ActorID, n.Subject, n.Body); err != nil {
			e.Logger.Warn().Err(err).Str("actor_id", n.ActorID).Str("subject", n.Subject).Msg("notify")
		}
	}
}

// decideFunc produces a transition outcome inside the write transaction.
type decideFunc func(ctx context.Context, tx *sql.Tx, req Requester, actor domain.Actor, now string) (lifecycle.Outcome, error)

// apply runs one mission operation atomically: resolve the requester,
// decide, persist every write, then commit. Side effects run after commit.
func (e Engine) apply(ctx context.Context, op string, req Requester, decide decideFunc) (domain.Mission, error) {
	out, fx, err := e.applyTx(ctx, req, decide)
	paymentType := string(out.Mission.PaymentType)
	if paymentType == "" {
		paymentType = "unknown"
	}
	if err != nil {
		result := string(domain.CodeOf(err))
		if result == "" {
			result = "internal"
		}
		observability.RecordTransition(op, paymentType, result)
		return domain.Mission{}, err
	}
	observability.RecordTransition(op, paymentType, "ok")
	e.finish(ctx, fx)
	return out.Mission, nil
}

func (e Engine) applyTx(ctx context.Context, req Requester, decide decideFunc) (lifecycle.Outcome, effects, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return lifecycle.Outcome{}, effects{}, err
	}
	defer tx.Rollback()

	actor, req, err := e.requireActive(ctx, tx, req)
	if err != nil {
		return lifecycle.Outcome{}, effects{}, err
	}
	out, err := decide(ctx, tx, req, actor, e.stamp())
	if err != nil {
		return out, effects{}, err
	}
	txs, err := e.persist(ctx, tx, req, out)
	if err != nil {
		return out, effects{}, err
	}
	if err := tx.Commit(); err != nil {
		return out, effects{}, err
	}
	return out, effects{transactions: txs, notices: out.Notices, removeEvidence: out.RemoveEvidence}, nil
}

func (e Engine) persist(ctx context.Context, tx *sql.Tx, req Requester, out lifecycle.Outcome) ([]domain.Transaction, error) {
	m := out.Mission
	if out.Expected == "" {
		if err := e.Repo.InsertMission(ctx, tx, m); err != nil {
			return nil, fmt.Errorf("insert mission: %w", err)
		}
	} else if err := e.Repo.UpdateMissionIf(ctx, tx, m, out.Expected); err != nil {
		if errors.Is(err, repo.ErrConflict) {
			return nil, domain.InvalidState("mission %s changed concurrently", m.ID)
		}
		return nil, fmt.Errorf("update mission: %w", err)
	}
	if out.NewDebt != nil {
		if err := e.Repo.InsertDebt(ctx, tx, *out.NewDebt); err != nil {
			return nil, fmt.Errorf("insert blood debt: %w", err)
		}
	}
	if out.Debt != nil {
		if err := e.Repo.UpdateDebtIf(ctx, tx, out.Debt.Debt, out.Debt.Expected); err != nil {
			if errors.Is(err, repo.ErrConflict) {
				return nil, domain.InvalidState("blood debt %s changed concurrently", out.Debt.Debt.ID)
			}
			return nil, fmt.Errorf("update blood debt: %w", err)
		}
	}
	var txs []domain.Transaction
	for _, entry := range out.Ledger {
		t, err := e.ledger().Apply(ctx, tx, entry.ActorID, entry.Amount, entry.Description)
		if err != nil {
			return nil, err
		}
		txs = append(txs, t)
	}
	if err := e.events().Append(ctx, tx, out.Event.Type, "mission", m.ID, req.ActorID, out.Event.Payload); err != nil {
		return nil, fmt.Errorf("append event: %w", err)
	}
	return txs, nil
}

// loadSubject reads a mission and the blood debt it is paired with.
func (e Engine) loadSubject(ctx context.Context, tx *sql.Tx, missionID string) (lifecycle.Subject, error) {
	m, err := e.Repo.GetMissionTx(ctx, tx, missionID)
	if errors.Is(err, repo.ErrNotFound) {
		return lifecycle.Subject{}, domain.NotFound("mission", missionID)
	}
	if err != nil {
		return lifecycle.Subject{}, err
	}
	s := lifecycle.Subject{Mission: m}
	var d domain.BloodDebt
	switch m.PaymentType {
	case domain.PaymentBloodDebt:
		d, err = e.Repo.DebtByCreatedMissionTx(ctx, tx, m.ID)
	case domain.PaymentBloodDebtCollection:
		d, err = e.Repo.DebtByPaidMissionTx(ctx, tx, m.ID)
	default:
		return s, nil
	}
	if errors.Is(err, repo.ErrNotFound) {
		return s, nil
	}
	if err != nil {
		return s, err
	}
	s.Debt = &d
	return s, nil
}

// onMission adapts a lifecycle transition on an existing mission.
func (e Engine) onMission(missionID string, step func(req Requester, s lifecycle.Subject, now string) (lifecycle.Outcome, error)) decideFunc {
	return func(ctx context.Context, tx *sql.Tx, req Requester, _ domain.Actor, now string) (lifecycle.Outcome, error) {
		s, err := e.loadSubject(ctx, tx, missionID)
		if err != nil {
			return lifecycle.Outcome{}, err
		}
		out, err := step(req, s, now)
		if err != nil {
			out.Mission = s.Mission
		}
		return out, err
	}
}
