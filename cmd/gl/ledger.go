package main

import (
	"context"
	"strconv"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"guildline/internal/app"
	"guildline/internal/domain"
	"guildline/internal/engine"
)

func debtCmd() *cobra.Command {
	debt := &cobra.Command{
		Use:   "debt",
		Short: "Blood debts",
	}
	var q engine.DebtQuery
	var side, status string
	list := &cobra.Command{
		Use:   "list",
		Short: "List blood debts the actor is part of",
		RunE: func(cmd *cobra.Command, args []string) error {
			q.Side = engine.DebtSide(side)
			q.Status = domain.DebtStatus(strings.ToUpper(status))
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				req, err := a.Engine.Resolve(ctx, requester())
				if err != nil {
					return err
				}
				debts, err := a.Engine.ListDebts(ctx, req, q)
				if err != nil {
					return err
				}
				return printJSONOrTable(debts, table.Row{"ID", "Status", "Owed By", "Owed To", "Mission", "Collection"}, func(t table.Writer) {
					for _, d := range debts {
						t.AppendRow(table.Row{d.ID, d.Status, d.CreatedBy, deref(d.PaidTo), d.CreatedMission, deref(d.PaidMission)})
					}
				})
			})
		},
	}
	list.Flags().StringVar(&side, "side", "", "owing or owed")
	list.Flags().StringVar(&status, "status", "", "status filter")
	list.Flags().StringVar(&q.ActorID, "of", "", "another actor (administrators)")
	list.Flags().IntVar(&q.Limit, "limit", 50, "max results")
	debt.AddCommand(list)
	debt.AddCommand(counterpartyCmd("debtors", "Actors who owe the actor a collectable debt", engine.Engine.DebtorsOf))
	debt.AddCommand(counterpartyCmd("creditors", "Actors the actor owes a debt to", engine.Engine.CreditorsOf))
	return debt
}

func counterpartyCmd(use, short string, query func(engine.Engine, context.Context, engine.Requester) ([]domain.DebtCounterparty, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				req, err := a.Engine.Resolve(ctx, requester())
				if err != nil {
					return err
				}
				parties, err := query(a.Engine, ctx, req)
				if err != nil {
					return err
				}
				return printJSONOrTable(parties, table.Row{"Actor", "Alias", "Debts"}, func(t table.Writer) {
					for _, p := range parties {
						t.AppendRow(table.Row{p.ActorID, p.Alias, p.Debts})
					}
				})
			})
		},
	}
}

func coinsCmd() *cobra.Command {
	coins := &cobra.Command{
		Use:   "coins",
		Short: "Buy, sell and audit coins",
	}
	coins.AddCommand(coinTradeCmd("buy", "Buy coins with money", engine.Engine.BuyCoins))
	coins.AddCommand(coinTradeCmd("sell", "Sell coins for money", engine.Engine.SellCoins))

	var q engine.TransactionQuery
	var description string
	history := &cobra.Command{
		Use:   "history",
		Short: "Ledger transactions, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			q.Description = domain.TransactionDescription(strings.ToUpper(description))
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				req, err := a.Engine.Resolve(ctx, requester())
				if err != nil {
					return err
				}
				txs, err := a.Engine.ListTransactions(ctx, req, q)
				if err != nil {
					return err
				}
				return printTransactions(txs)
			})
		},
	}
	history.Flags().StringVar(&description, "description", "", "description filter, e.g. MISSION_REWARD")
	history.Flags().StringVar(&q.UserID, "of", "", "another actor (administrators)")
	history.Flags().IntVar(&q.Limit, "limit", 50, "max results")
	coins.AddCommand(history)
	return coins
}

func coinTradeCmd(use, short string, trade func(engine.Engine, context.Context, engine.Requester, int64) (engine.CoinTrade, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <coins>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return domain.Validation("coins must be an integer")
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				res, err := trade(a.Engine, ctx, requester(), n)
				if err != nil {
					return err
				}
				return printJSONOrTable(res, table.Row{"Transaction", "Coins", "Money", "Balance"}, func(t table.Writer) {
					t.AppendRow(table.Row{res.Transaction.ID, res.Transaction.Amount, res.Money, res.Balance})
				})
			})
		},
	}
}

func printTransactions(txs []domain.Transaction) error {
	return printJSONOrTable(txs, table.Row{"ID", "Date", "Type", "Description", "Amount"}, func(t table.Writer) {
		for _, tx := range txs {
			t.AppendRow(table.Row{tx.ID, tx.Date, tx.Type, tx.Description, tx.Amount})
		}
	})
}
