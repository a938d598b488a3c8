package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"guildline/internal/app"
	"guildline/internal/domain"
	"guildline/internal/engine"
	"guildline/internal/repo"
)

func actorCmd() *cobra.Command {
	actor := &cobra.Command{
		Use:   "actor",
		Short: "Manage guild members",
	}
	actor.AddCommand(actorAddCmd())
	actor.AddCommand(actorListCmd())
	actor.AddCommand(actorShowCmd())
	actor.AddCommand(actorStatusCmd())
	return actor
}

func actorAddCmd() *cobra.Command {
	var in engine.ActorInput
	var role string
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Register a member",
		Long: `Register a member. With --actor-id the request is made by that administrator.
Without it the member is seeded directly, which is how the first administrator is created.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			in.Role = domain.Role(strings.ToUpper(role))
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				var (
					created domain.Actor
					err     error
				)
				if req := requester(); req.ActorID != "" {
					created, err = a.Engine.RegisterActor(ctx, req, in)
				} else {
					created, err = a.Engine.SeedActor(ctx, in)
				}
				if err != nil {
					return err
				}
				return printActors([]domain.Actor{created})
			})
		},
	}
	cmd.Flags().StringVar(&in.Name, "name", "", "full name")
	cmd.Flags().StringVar(&in.Alias, "alias", "", "guild alias")
	cmd.Flags().StringVar(&in.Email, "email", "", "contact email")
	cmd.Flags().StringVar(&in.Country, "country", "", "country")
	cmd.Flags().StringVar(&in.Address, "address", "", "address")
	cmd.Flags().StringVar(&role, "role", string(domain.RoleAssassin), "ADMIN or ASSASSIN")
	cmd.Flags().Int64Var(&in.Coins, "coins", 0, "starting coins")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func actorListCmd() *cobra.Command {
	var f repo.ActorFilters
	var role, status string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List members of every role",
		RunE: func(cmd *cobra.Command, args []string) error {
			f.Role = domain.Role(strings.ToUpper(role))
			f.Status = domain.ActorStatus(strings.ToUpper(status))
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				req, err := a.Engine.Resolve(ctx, requester())
				if err != nil {
					return err
				}
				if !req.IsAdmin() {
					return domain.Forbidden("only administrators can list members")
				}
				actors, err := a.Engine.Repo.ListActors(ctx, f)
				if err != nil {
					return err
				}
				return printActors(actors)
			})
		},
	}
	cmd.Flags().StringVar(&role, "role", "", "role filter")
	cmd.Flags().StringVar(&status, "status", "", "status filter")
	cmd.Flags().StringVar(&f.Alias, "alias", "", "alias contains")
	cmd.Flags().IntVar(&f.Limit, "limit", 50, "max results")
	return cmd
}

func actorShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show [actor-id]",
		Short: "Show a member (defaults to --actor-id)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := requester().ActorID
			if len(args) == 1 {
				id = args[0]
			}
			if id == "" {
				return fmt.Errorf("actor id required")
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				actor, err := a.Engine.GetActor(ctx, id)
				if err != nil {
					return err
				}
				return printActors([]domain.Actor{actor})
			})
		},
	}
}

func actorStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <actor-id> <ACTIVE|INACTIVE>",
		Short: "Activate or deactivate a member",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			status := domain.ActorStatus(strings.ToUpper(args[1]))
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				actor, err := a.Engine.SetActorStatus(ctx, requester(), args[0], status)
				if err != nil {
					return err
				}
				return printActors([]domain.Actor{actor})
			})
		},
	}
}

func assassinsCmd() *cobra.Command {
	assassins := &cobra.Command{
		Use:   "assassins",
		Short: "Assassin directory",
	}
	var q engine.AssassinQuery
	list := &cobra.Command{
		Use:   "list",
		Short: "List assassins; names stay hidden until their information is bought",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				req, err := a.Engine.Resolve(ctx, requester())
				if err != nil {
					return err
				}
				listing, err := a.Engine.ListAssassins(ctx, req, q)
				if err != nil {
					return err
				}
				return printJSONOrTable(listing, table.Row{"ID", "Name", "Alias", "Country", "Email", "Purchased"}, func(t table.Writer) {
					for _, l := range listing {
						t.AppendRow(table.Row{l.ID, l.Name, l.Alias, l.Country, l.Email, deref(l.IsPurchased)})
					}
				})
			})
		},
	}
	list.Flags().StringVar(&q.Alias, "alias", "", "alias contains")
	list.Flags().StringVar(&q.Name, "name", "", "name contains (administrators)")
	list.Flags().StringVar(&q.Country, "country", "", "country (administrators)")
	list.Flags().IntVar(&q.Limit, "limit", 50, "max results")
	assassins.AddCommand(list)
	return assassins
}

func infoCmd() *cobra.Command {
	info := &cobra.Command{
		Use:   "info",
		Short: "Information marketplace",
	}
	info.AddCommand(&cobra.Command{
		Use:   "buy <assassin-id>",
		Short: "Buy the identity behind an assassin's alias",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				tx, err := a.Engine.PurchaseInformation(ctx, requester(), args[0])
				if err != nil {
					return err
				}
				return printTransactions([]domain.Transaction{tx})
			})
		},
	})
	return info
}

func printActors(actors []domain.Actor) error {
	return printJSONOrTable(actors, table.Row{"ID", "Name", "Alias", "Email", "Role", "Status", "Coins"}, func(t table.Writer) {
		for _, a := range actors {
			t.AppendRow(table.Row{a.ID, a.Name, a.Alias, a.Email, a.Role, a.Status, a.Coins})
		}
	})
}
