package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"guildline/internal/domain"
	"guildline/internal/events"
	"guildline/internal/repo"
)

// MaskedName replaces the name of an assassin whose identity the viewer has
// not bought.
const MaskedName = "???"

// inTx runs fn for an active requester inside one write transaction and
// performs the returned side effects after commit.
func (e Engine) inTx(ctx context.Context, req Requester, fn func(tx *sql.Tx, req Requester, actor domain.Actor, now string) (effects, error)) error {
	fx, err := func() (effects, error) {
		tx, err := e.DB.BeginTx(ctx, nil)
		if err != nil {
			return effects{}, err
		}
		defer tx.Rollback()
		actor, req, err := e.requireActive(ctx, tx, req)
		if err != nil {
			return effects{}, err
		}
		fx, err := fn(tx, req, actor, e.stamp())
		if err != nil {
			return effects{}, err
		}
		return fx, tx.Commit()
	}()
	if err != nil {
		return err
	}
	e.finish(ctx, fx)
	return nil
}

// PurchaseInformation reveals targetID's identity to the requester for the
// configured information price.
func (e Engine) PurchaseInformation(ctx context.Context, req Requester, targetID string) (domain.Transaction, error) {
	var out domain.Transaction
	err := e.inTx(ctx, req, func(tx *sql.Tx, req Requester, _ domain.Actor, now string) (effects, error) {
		if targetID == req.ActorID {
			return effects{}, domain.Errorf(domain.CodeSelfPurchase, "cannot buy information about yourself")
		}
		if _, err := e.Repo.GetActorTx(ctx, tx, targetID); errors.Is(err, repo.ErrNotFound) {
			return effects{}, domain.NotFound("actor", targetID)
		} else if err != nil {
			return effects{}, err
		}
		owned, err := e.Repo.HasPurchased(ctx, tx, req.ActorID, targetID)
		if err != nil {
			return effects{}, err
		}
		if owned {
			return effects{}, domain.Errorf(domain.CodeAlreadyPurchased, "information about %s already purchased", targetID)
		}
		t, err := e.ledger().Apply(ctx, tx, req.ActorID, -e.Config.Economy.InformationPrice, domain.TxInformationPurchase)
		if err != nil {
			return effects{}, err
		}
		added, err := e.Repo.AddPurchased(ctx, tx, req.ActorID, targetID, now)
		if err != nil {
			return effects{}, fmt.Errorf("record purchase: %w", err)
		}
		if !added {
			return effects{}, domain.Errorf(domain.CodeAlreadyPurchased, "information about %s already purchased", targetID)
		}
		if err := e.events().Append(ctx, tx, "information.purchase", "actor", targetID, req.ActorID, events.EventPayload{"price": e.Config.Economy.InformationPrice}); err != nil {
			return effects{}, err
		}
		out = t
		return effects{transactions: []domain.Transaction{t}}, nil
	})
	return out, err
}

type AssassinQuery struct {
	Name    string
	Alias   string
	Email   string
	Country string
	Address string
	Status  domain.ActorStatus
	repo.Page
}

// ListAssassins returns the directory as the requester may see it.
// Administrators get full records and every filter. Assassins see other
// active assassins, filtered by alias only, with unpurchased names masked.
func (e Engine) ListAssassins(ctx context.Context, req Requester, q AssassinQuery) ([]domain.AssassinListing, error) {
	if req.IsAdmin() {
		actors, err := e.Repo.ListActors(ctx, repo.ActorFilters{
			Role: domain.RoleAssassin, Status: q.Status, Name: q.Name, Alias: q.Alias,
			Email: q.Email, Country: q.Country, Address: q.Address, Page: q.Page,
		})
		if err != nil {
			return nil, err
		}
		res := make([]domain.AssassinListing, 0, len(actors))
		for _, a := range actors {
			res = append(res, domain.AssassinListing{
				ID: a.ID, Name: a.Name, Alias: a.Alias, Country: a.Country,
				Email: a.Email, Address: a.Address, Status: a.Status,
			})
		}
		return res, nil
	}
	actors, err := e.Repo.ListActors(ctx, repo.ActorFilters{
		Role: domain.RoleAssassin, Status: domain.ActorActive, Alias: q.Alias, ExcludeID: req.ActorID, Page: q.Page,
	})
	if err != nil {
		return nil, err
	}
	bought, err := e.Repo.PurchasedSet(ctx, req.ActorID)
	if err != nil {
		return nil, err
	}
	res := make([]domain.AssassinListing, 0, len(actors))
	for _, a := range actors {
		purchased := bought[a.ID]
		l := domain.AssassinListing{ID: a.ID, Name: MaskedName, Alias: a.Alias, Country: a.Country, IsPurchased: &purchased}
		if purchased {
			l.Name = a.Name
		}
		res = append(res, l)
	}
	return res, nil
}

// CoinTrade is the result of buying or selling coins.
type CoinTrade struct {
	Transaction domain.Transaction `json:"transaction"`
	Balance     int64              `json:"balance"`
	Money       int64              `json:"money"`
}

func (e Engine) BuyCoins(ctx context.Context, req Requester, coins int64) (CoinTrade, error) {
	if coins <= 0 {
		return CoinTrade{}, domain.Validation("coins must be a positive integer").WithDetails(map[string]any{"field": "coins"})
	}
	if limit := e.Config.Economy.MaxCoinPurchase; limit > 0 && coins > limit {
		return CoinTrade{}, domain.Validation("cannot buy more than %d coins at once", limit).WithDetails(map[string]any{"field": "coins"})
	}
	return e.tradeCoins(ctx, req, coins, domain.TxCoinPurchase)
}

// SellCoins converts coins back into money at the configured rate.
func (e Engine) SellCoins(ctx context.Context, req Requester, coins int64) (CoinTrade, error) {
	if coins <= 0 {
		return CoinTrade{}, domain.Validation("coins must be a positive integer").WithDetails(map[string]any{"field": "coins"})
	}
	return e.tradeCoins(ctx, req, -coins, domain.TxCoinSell)
}

func (e Engine) tradeCoins(ctx context.Context, req Requester, amount int64, desc domain.TransactionDescription) (CoinTrade, error) {
	var out CoinTrade
	err := e.inTx(ctx, req, func(tx *sql.Tx, req Requester, _ domain.Actor, _ string) (effects, error) {
		t, err := e.ledger().Apply(ctx, tx, req.ActorID, amount, desc)
		if err != nil {
			return effects{}, err
		}
		a, err := e.Repo.GetActorTx(ctx, tx, req.ActorID)
		if err != nil {
			return effects{}, err
		}
		coins := amount
		if coins < 0 {
			coins = -coins
		}
		out = CoinTrade{Transaction: t, Balance: a.Coins, Money: coins * e.Config.Economy.MoneyPerCoin}
		evt := "coins.buy"
		if amount < 0 {
			evt = "coins.sell"
		}
		if err := e.events().Append(ctx, tx, evt, "actor", req.ActorID, req.ActorID, events.EventPayload{"coins": coins, "money": out.Money}); err != nil {
			return effects{}, err
		}
		return effects{transactions: []domain.Transaction{t}}, nil
	})
	return out, err
}
