package engine

import (
	"context"
	"database/sql"
	"errors"
	"net/mail"
	"strings"

	"guildline/internal/domain"
	"guildline/internal/engine/lifecycle"
	"guildline/internal/events"
	"guildline/internal/repo"
)

type ActorInput struct {
	Name    string
	Alias   string
	Email   string
	Country string
	Address string
	Role    domain.Role
	Coins   int64
}

func (in *ActorInput) normalize() error {
	in.Name = strings.TrimSpace(in.Name)
	in.Alias = strings.TrimSpace(in.Alias)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	if in.Name == "" {
		return domain.Validation("name is required").WithDetails(map[string]any{"field": "name"})
	}
	if _, err := mail.ParseAddress(in.Email); err != nil {
		return domain.Validation("email %q is not valid", in.Email).WithDetails(map[string]any{"field": "email"})
	}
	if in.Role == "" {
		in.Role = domain.RoleAssassin
	}
	if !in.Role.Valid() {
		return domain.Validation("role %q is not supported", in.Role).WithDetails(map[string]any{"field": "role"})
	}
	if in.Coins < 0 {
		return domain.Validation("coins must not be negative").WithDetails(map[string]any{"field": "coins"})
	}
	return nil
}

// RegisterActor adds a guild member on behalf of an administrator.
func (e Engine) RegisterActor(ctx context.Context, req Requester, in ActorInput) (domain.Actor, error) {
	var out domain.Actor
	err := e.inTx(ctx, req, func(tx *sql.Tx, req Requester, _ domain.Actor, now string) (effects, error) {
		if !req.IsAdmin() {
			return effects{}, domain.Forbidden("only administrators may register actors")
		}
		a, fx, err := e.insertActor(ctx, tx, req.ActorID, in, now)
		out = a
		return fx, err
	})
	return out, err
}

// SeedActor registers an actor without a requester. It backs local
// workspace administration where the operator owns the database file.
func (e Engine) SeedActor(ctx context.Context, in ActorInput) (domain.Actor, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Actor{}, err
	}
	defer tx.Rollback()
	a, fx, err := e.insertActor(ctx, tx, "system", in, e.stamp())
	if err != nil {
		return domain.Actor{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Actor{}, err
	}
	e.finish(ctx, fx)
	return a, nil
}

func (e Engine) insertActor(ctx context.Context, tx *sql.Tx, by string, in ActorInput, now string) (domain.Actor, effects, error) {
	if err := in.normalize(); err != nil {
		return domain.Actor{}, effects{}, err
	}
	if existing, err := e.Repo.GetActorByEmailTx(ctx, tx, in.Email); err == nil {
		return domain.Actor{}, effects{}, domain.Validation("email %s is already registered", in.Email).
			WithDetails(map[string]any{"field": "email", "actor_id": existing.ID})
	} else if !errors.Is(err, repo.ErrNotFound) {
		return domain.Actor{}, effects{}, err
	}
	a := domain.Actor{
		ID:        e.newID(),
		Name:      in.Name,
		Alias:     in.Alias,
		Email:     in.Email,
		Country:   strings.TrimSpace(in.Country),
		Address:   strings.TrimSpace(in.Address),
		Role:      in.Role,
		Status:    domain.ActorActive,
		CreatedAt: now,
	}
	if err := e.Repo.InsertActor(ctx, tx, a); err != nil {
		return domain.Actor{}, effects{}, err
	}
	var fx effects
	if in.Coins > 0 {
		t, err := e.ledger().Apply(ctx, tx, a.ID, in.Coins, domain.TxCoinPurchase)
		if err != nil {
			return domain.Actor{}, effects{}, err
		}
		a.Coins = in.Coins
		fx.transactions = append(fx.transactions, t)
	}
	if err := e.events().Append(ctx, tx, "actor.register", "actor", a.ID, by, events.EventPayload{"role": a.Role, "alias": a.Alias}); err != nil {
		return domain.Actor{}, effects{}, err
	}
	fx.notices = []lifecycle.Notice{{
		ActorID: a.ID,
		Subject: "Welcome to the guild",
		Body:    "Hello " + a.Name + ", your guild account is ready.",
	}}
	return a, fx, nil
}

func (e Engine) SetActorStatus(ctx context.Context, req Requester, actorID string, status domain.ActorStatus) (domain.Actor, error) {
	if status != domain.ActorActive && status != domain.ActorInactive {
		return domain.Actor{}, domain.Validation("status %q is not supported", status).WithDetails(map[string]any{"field": "status"})
	}
	var out domain.Actor
	err := e.inTx(ctx, req, func(tx *sql.Tx, req Requester, _ domain.Actor, _ string) (effects, error) {
		if !req.IsAdmin() {
			return effects{}, domain.Forbidden("only administrators may change actor status")
		}
		if err := e.Repo.SetActorStatus(ctx, tx, actorID, status); errors.Is(err, repo.ErrNotFound) {
			return effects{}, domain.NotFound("actor", actorID)
		} else if err != nil {
			return effects{}, err
		}
		a, err := e.Repo.GetActorTx(ctx, tx, actorID)
		if err != nil {
			return effects{}, err
		}
		out = a
		return effects{}, e.events().Append(ctx, tx, "actor.status", "actor", actorID, req.ActorID, events.EventPayload{"status": status})
	})
	return out, err
}

func (e Engine) GetActor(ctx context.Context, actorID string) (domain.Actor, error) {
	a, err := e.Repo.GetActor(ctx, actorID)
	if errors.Is(err, repo.ErrNotFound) {
		return a, domain.NotFound("actor", actorID)
	}
	return a, err
}

// Resolve checks that the requester is an active guild member and returns
// it with the role stored in the directory.
func (e Engine) Resolve(ctx context.Context, req Requester) (Requester, error) {
	_, req, err := e.requireActive(ctx, nil, req)
	return req, err
}
