package repo

import (
	"context"
	"database/sql"
	"errors"

	"guildline/internal/domain"
)

const actorColumns = `id,name,COALESCE(alias,''),email,COALESCE(country,''),COALESCE(address,''),role,status,coins,created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanActor(row rowScanner) (domain.Actor, error) {
	var a domain.Actor
	err := row.Scan(&a.ID, &a.Name, &a.Alias, &a.Email, &a.Country, &a.Address, &a.Role, &a.Status, &a.Coins, &a.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return a, ErrNotFound
	}
	return a, err
}

func (r Repo) InsertActor(ctx context.Context, tx *sql.Tx, a domain.Actor) error {
	_, err := r.q(tx).ExecContext(ctx, `INSERT INTO actors(id,name,alias,email,country,address,role,status,coins,created_at) VALUES (?,?,?,?,?,?,?,?,?,?)`,
		a.ID, a.Name, nullable(a.Alias), a.Email, nullable(a.Country), nullable(a.Address), a.Role, a.Status, a.Coins, a.CreatedAt)
	return err
}

func (r Repo) GetActor(ctx context.Context, id string) (domain.Actor, error) {
	return r.GetActorTx(ctx, nil, id)
}

func (r Repo) GetActorTx(ctx context.Context, tx *sql.Tx, id string) (domain.Actor, error) {
	return scanActor(r.q(tx).QueryRowContext(ctx, `SELECT `+actorColumns+` FROM actors WHERE id=?`, id))
}

func (r Repo) GetActorByEmail(ctx context.Context, email string) (domain.Actor, error) {
	return r.GetActorByEmailTx(ctx, nil, email)
}

func (r Repo) GetActorByEmailTx(ctx context.Context, tx *sql.Tx, email string) (domain.Actor, error) {
	return scanActor(r.q(tx).QueryRowContext(ctx, `SELECT `+actorColumns+` FROM actors WHERE email=?`, email))
}

func (r Repo) SetActorStatus(ctx context.Context, tx *sql.Tx, id string, status domain.ActorStatus) error {
	res, err := r.q(tx).ExecContext(ctx, `UPDATE actors SET status=? WHERE id=?`, status, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// AdjustCoins adds delta to the balance unless the result would be negative.
// It reports false when the guard rejected the update.
func (r Repo) AdjustCoins(ctx context.Context, tx *sql.Tx, id string, delta int64) (bool, error) {
	res, err := r.q(tx).ExecContext(ctx, `UPDATE actors SET coins=coins+? WHERE id=? AND coins+?>=0`, delta, id, delta)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

type ActorFilters struct {
	Role      domain.Role
	Status    domain.ActorStatus
	Name      string
	Alias     string
	Email     string
	Country   string
	Address   string
	ExcludeID string
	Page
}

func (r Repo) ListActors(ctx context.Context, f ActorFilters) ([]domain.Actor, error) {
	var clauses []string
	var args []any
	if f.Role != "" {
		clauses = append(clauses, "role=?")
		args = append(args, f.Role)
	}
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, f.Status)
	}
	for _, like := range []struct{ col, val string }{
		{"name", f.Name}, {"alias", f.Alias}, {"email", f.Email}, {"country", f.Country}, {"address", f.Address},
	} {
		if like.val == "" {
			continue
		}
		clauses = append(clauses, like.col+" LIKE ? ESCAPE '\\'")
		args = append(args, "%"+escapeLike(like.val)+"%")
	}
	if f.ExcludeID != "" {
		clauses = append(clauses, "id<>?")
		args = append(args, f.ExcludeID)
	}
	clauses, args = f.Page.apply(clauses, args, "created_at")
	query, args := f.Page.tail(`SELECT `+actorColumns+` FROM actors`+where(clauses), args, "created_at")
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Actor
	for rows.Next() {
		a, err := scanActor(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, a)
	}
	return res, rows.Err()
}

func escapeLike(s string) string {
	out := make([]rune, 0, len(s))
	for _, c := range s {
		if c == '%' || c == '_' || c == '\\' {
			out = append(out, '\\')
		}
		out = append(out, c)
	}
	return string(out)
}

func (r Repo) HasPurchased(ctx context.Context, tx *sql.Tx, buyerID, targetID string) (bool, error) {
	var n int
	err := r.q(tx).QueryRowContext(ctx, `SELECT COUNT(1) FROM purchased_information WHERE buyer_id=? AND target_id=?`, buyerID, targetID).Scan(&n)
	return n > 0, err
}

// AddPurchased records the reveal. It reports false when the pair already
// existed.
func (r Repo) AddPurchased(ctx context.Context, tx *sql.Tx, buyerID, targetID, at string) (bool, error) {
	res, err := r.q(tx).ExecContext(ctx, `INSERT INTO purchased_information(buyer_id,target_id,purchased_at) VALUES (?,?,?) ON CONFLICT DO NOTHING`, buyerID, targetID, at)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

func (r Repo) PurchasedSet(ctx context.Context, buyerID string) (map[string]bool, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT target_id FROM purchased_information WHERE buyer_id=?`, buyerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	set := map[string]bool{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		set[id] = true
	}
	return set, rows.Err()
}
