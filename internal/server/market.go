package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"guildline/internal/domain"
	"guildline/internal/engine"
)

func registerAssassins(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-assassins",
		Method:      http.MethodGet,
		Path:        "/assassins",
		Summary:     "Browse the assassin directory",
		Description: "Assassins see other active assassins with names masked until purchased; only the alias filter applies to them.",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Name    string `query:"name"`
		Alias   string `query:"alias"`
		Email   string `query:"email"`
		Country string `query:"country"`
		Address string `query:"address"`
		Status  string `query:"status" enum:"ACTIVE,INACTIVE"`
		Limit   int    `query:"limit" default:"50"`
		Cursor  string `query:"cursor"`
	}) (*struct {
		Body paginatedAssassins `json:"body"`
	}, error) {
		req, err := requester(ctx, e)
		if err != nil {
			return nil, err
		}
		p, limit, perr := page(input.Limit, input.Cursor)
		if perr != nil {
			return nil, perr
		}
		items, err := e.ListAssassins(ctx, req, engine.AssassinQuery{
			Name: input.Name, Alias: input.Alias, Email: input.Email,
			Country: input.Country, Address: input.Address,
			Status: domain.ActorStatus(input.Status), Page: p,
		})
		if err != nil {
			return nil, handleError(ctx, err)
		}
		resp := paginatedAssassins{Items: []domain.AssassinListing{}}
		if len(items) > limit {
			// Listings carry no timestamp; page on the actor row instead.
			last, err := e.GetActor(ctx, items[limit-1].ID)
			if err != nil {
				return nil, handleError(ctx, err)
			}
			resp.NextCursor = composeCursor(last.CreatedAt, last.ID)
			items = items[:limit]
		}
		resp.Items = append(resp.Items, items...)
		return &struct {
			Body paginatedAssassins `json:"body"`
		}{Body: resp}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "purchase-information",
		Method:      http.MethodPost,
		Path:        "/assassins/{id}/information",
		Summary:     "Buy the identity of an assassin",
		Errors:      mutationErrors,
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body domain.Transaction `json:"body"`
	}, error) {
		req, err := requester(ctx, e)
		if err != nil {
			return nil, err
		}
		t, err := e.PurchaseInformation(ctx, req, input.ID)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return &struct {
			Body domain.Transaction `json:"body"`
		}{Body: t}, nil
	})
}

func registerBloodDebts(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-blood-debts",
		Method:      http.MethodGet,
		Path:        "/blood-debts",
		Summary:     "List blood debts",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		Side    string `query:"side" enum:"owing,owed"`
		Status  string `query:"status" enum:"PENDING,REJECTED,ASSIGNED,PAID_INITIAL_MISSION,PENDING_COLLECTION_APPROVAL,COMPLETED,PAID"`
		ActorID string `query:"actor_id"`
		Limit   int    `query:"limit" default:"50"`
		Cursor  string `query:"cursor"`
	}) (*struct {
		Body paginatedDebts `json:"body"`
	}, error) {
		req, err := requester(ctx, e)
		if err != nil {
			return nil, err
		}
		p, limit, perr := page(input.Limit, input.Cursor)
		if perr != nil {
			return nil, perr
		}
		items, err := e.ListDebts(ctx, req, engine.DebtQuery{
			Side:    engine.DebtSide(input.Side),
			Status:  domain.DebtStatus(input.Status),
			ActorID: input.ActorID,
			Page:    p,
		})
		if err != nil {
			return nil, handleError(ctx, err)
		}
		resp := paginatedDebts{Items: []domain.BloodDebt{}}
		if len(items) > limit {
			resp.NextCursor = composeCursor(items[limit-1].CreatedAt, items[limit-1].ID)
			items = items[:limit]
		}
		resp.Items = append(resp.Items, items...)
		return &struct {
			Body paginatedDebts `json:"body"`
		}{Body: resp}, nil
	})

	for _, route := range []struct {
		id, path, summary string
		list              func(engine.Engine, context.Context, engine.Requester) ([]domain.DebtCounterparty, error)
	}{
		{"list-debtors", "/blood-debts/debtors", "Actors owing the requester a collectable debt", engine.Engine.DebtorsOf},
		{"list-creditors", "/blood-debts/creditors", "Actors the requester owes a debt to", engine.Engine.CreditorsOf},
	} {
		list := route.list
		huma.Register(api, huma.Operation{
			OperationID: route.id,
			Method:      http.MethodGet,
			Path:        route.path,
			Summary:     route.summary,
		}, func(ctx context.Context, _ *struct{}) (*struct {
			Body counterparties `json:"body"`
		}, error) {
			req, err := requester(ctx, e)
			if err != nil {
				return nil, err
			}
			items, err := list(e, ctx, req)
			if err != nil {
				return nil, handleError(ctx, err)
			}
			resp := counterparties{Items: []domain.DebtCounterparty{}}
			resp.Items = append(resp.Items, items...)
			return &struct {
				Body counterparties `json:"body"`
			}{Body: resp}, nil
		})
	}
}

func registerTransactions(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-transactions",
		Method:      http.MethodGet,
		Path:        "/transactions",
		Summary:     "List ledger transactions, newest first",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		Description string `query:"description" enum:"COIN_PURCHASE,COIN_SELL,INFORMATION_PURCHASE,MISSION_REWARD,MISSION_REJECTION,MISSION_CREATION"`
		UserID      string `query:"user_id"`
		Limit       int    `query:"limit" default:"50"`
		Cursor      string `query:"cursor"`
	}) (*struct {
		Body paginatedTransactions `json:"body"`
	}, error) {
		req, err := requester(ctx, e)
		if err != nil {
			return nil, err
		}
		p, limit, perr := page(input.Limit, input.Cursor)
		if perr != nil {
			return nil, perr
		}
		items, err := e.ListTransactions(ctx, req, engine.TransactionQuery{
			Description: domain.TransactionDescription(input.Description),
			UserID:      input.UserID,
			Page:        p,
		})
		if err != nil {
			return nil, handleError(ctx, err)
		}
		resp := paginatedTransactions{Items: []domain.Transaction{}}
		if len(items) > limit {
			resp.NextCursor = composeCursor(items[limit-1].Date, items[limit-1].ID)
			items = items[:limit]
		}
		resp.Items = append(resp.Items, items...)
		return &struct {
			Body paginatedTransactions `json:"body"`
		}{Body: resp}, nil
	})

	for _, route := range []struct {
		id, path, summary string
		trade             func(engine.Engine, context.Context, engine.Requester, int64) (engine.CoinTrade, error)
	}{
		{"buy-coins", "/transactions/buy-coins", "Buy coins", engine.Engine.BuyCoins},
		{"sell-coins", "/transactions/sell-coins", "Sell coins", engine.Engine.SellCoins},
	} {
		trade := route.trade
		huma.Register(api, huma.Operation{
			OperationID:   route.id,
			Method:        http.MethodPost,
			Path:          route.path,
			Summary:       route.summary,
			DefaultStatus: http.StatusCreated,
			Errors:        mutationErrors,
		}, func(ctx context.Context, input *struct {
			Body CoinsRequest `json:"body"`
		}) (*struct {
			Body engine.CoinTrade `json:"body"`
		}, error) {
			req, err := requester(ctx, e)
			if err != nil {
				return nil, err
			}
			out, err := trade(e, ctx, req, input.Body.Coins)
			if err != nil {
				return nil, handleError(ctx, err)
			}
			return &struct {
				Body engine.CoinTrade `json:"body"`
			}{Body: out}, nil
		})
	}
}
