package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"guildline/internal/app"
	"guildline/internal/domain"
	"guildline/internal/engine"
)

func missionCmd() *cobra.Command {
	mission := &cobra.Command{
		Use:   "mission",
		Short: "Manage missions",
		Long: `Missions move CREATED -> PUBLISHED -> ASSIGNED -> COMPLETED -> PAID.
An administrator publishes or rejects a new mission, and pays or rejects the evidence of a completed one.`,
	}
	mission.AddCommand(missionCreateCmd())
	mission.AddCommand(missionListCmd())
	mission.AddCommand(missionShowCmd())
	mission.AddCommand(missionTransitionCmd("publish", "Approve a created mission (administrators)", engine.Engine.PublishMission))
	mission.AddCommand(missionTransitionCmd("reject", "Reject a created mission and refund its creator (administrators)", engine.Engine.RejectMission))
	mission.AddCommand(missionTransitionCmd("assign", "Take a published mission", engine.Engine.AssignMission))
	mission.AddCommand(missionCompleteCmd())
	mission.AddCommand(missionTransitionCmd("reject-evidence", "Send a completed mission back to its assassin", engine.Engine.RejectEvidence))
	mission.AddCommand(missionTransitionCmd("pay", "Pay a completed mission (administrators)", engine.Engine.PayMission))
	return mission
}

func missionCreateCmd() *cobra.Command {
	var in engine.MissionInput
	var paymentType string
	var coins int64
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a mission",
		RunE: func(cmd *cobra.Command, args []string) error {
			in.PaymentType = domain.PaymentType(strings.ToUpper(paymentType))
			if cmd.Flags().Changed("coins") {
				in.CoinsAmount = &coins
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				m, err := a.Engine.CreateMission(ctx, requester(), in)
				if err != nil {
					return err
				}
				return printMissions([]domain.MissionView{{Mission: m}})
			})
		},
	}
	cmd.Flags().StringVar(&in.Description, "description", "", "short description")
	cmd.Flags().StringVar(&in.Details, "details", "", "mission details")
	cmd.Flags().StringVar(&paymentType, "payment", string(domain.PaymentCoins), "COINS, BLOOD_DEBT or BLOOD_DEBT_COLLECTION")
	cmd.Flags().Int64Var(&coins, "coins", 0, "reward for COINS missions")
	cmd.Flags().StringVar(&in.AssignedTo, "debtor", "", "debtor who must carry out a BLOOD_DEBT_COLLECTION mission")
	_ = cmd.MarkFlagRequired("description")
	_ = cmd.MarkFlagRequired("details")
	return cmd
}

func missionListCmd() *cobra.Command {
	var q engine.MissionQuery
	var status, paymentType, scope string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List missions visible to the actor",
		RunE: func(cmd *cobra.Command, args []string) error {
			q.Status = domain.MissionStatus(strings.ToUpper(status))
			q.PaymentType = domain.PaymentType(strings.ToUpper(paymentType))
			q.Scope = engine.MissionScope(scope)
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				req, err := a.Engine.Resolve(ctx, requester())
				if err != nil {
					return err
				}
				missions, err := a.Engine.ListMissions(ctx, req, q)
				if err != nil {
					return err
				}
				return printMissions(missions)
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "status filter")
	cmd.Flags().StringVar(&paymentType, "payment", "", "payment type filter")
	cmd.Flags().StringVar(&scope, "scope", "", "created, assigned or available")
	cmd.Flags().IntVar(&q.Limit, "limit", 50, "max results")
	return cmd
}

func missionShowCmd() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "show <mission-id>",
		Short: "Show a mission",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				req, err := a.Engine.Resolve(ctx, requester())
				if err != nil {
					return err
				}
				m, err := a.Engine.GetMission(ctx, req, args[0])
				if err != nil {
					return err
				}
				if out != "" {
					return saveEvidence(ctx, a, req, m.ID, out)
				}
				if err := printMissions([]domain.MissionView{m}); err != nil {
					return err
				}
				if !isJSON() {
					fmt.Println(m.Details)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&out, "evidence-out", "", "write the mission evidence to this file")
	return cmd
}

func saveEvidence(ctx context.Context, a *app.App, req engine.Requester, missionID, path string) error {
	rc, meta, err := a.Engine.OpenEvidence(ctx, req, missionID)
	if err != nil {
		return err
	}
	defer rc.Close()
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if _, err := f.ReadFrom(rc); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	fmt.Printf("Saved %s (%s, %d bytes) to %s\n", meta.Filename, meta.ContentType, meta.Size, path)
	return nil
}

type transition func(engine.Engine, context.Context, engine.Requester, string) (domain.Mission, error)

func missionTransitionCmd(use, short string, apply transition) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <mission-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				m, err := apply(a.Engine, ctx, requester(), args[0])
				if err != nil {
					return err
				}
				return printMissions([]domain.MissionView{{Mission: m}})
			})
		},
	}
}

func missionCompleteCmd() *cobra.Command {
	var file, contentType string
	cmd := &cobra.Command{
		Use:   "complete <mission-id>",
		Short: "Complete an assigned mission with evidence",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(file)
			if err != nil {
				return err
			}
			ev := engine.Evidence{Filename: filepath.Base(file), ContentType: contentType, Data: data}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				m, err := a.Engine.CompleteMission(ctx, requester(), args[0], ev)
				if err != nil {
					return err
				}
				return printMissions([]domain.MissionView{{Mission: m}})
			})
		},
	}
	cmd.Flags().StringVar(&file, "evidence", "", "evidence image file")
	cmd.Flags().StringVar(&contentType, "content-type", "", "evidence content type (sniffed when empty)")
	_ = cmd.MarkFlagRequired("evidence")
	return cmd
}

func printMissions(missions []domain.MissionView) error {
	return printJSONOrTable(missions, table.Row{"ID", "Status", "Payment", "Coins", "Description", "Created By", "Assigned To"}, func(t table.Writer) {
		for _, m := range missions {
			createdBy := m.CreatedBy
			if m.CreatedByName != "" {
				createdBy = m.CreatedByName
			}
			assignedTo := deref(m.AssignedTo)
			if m.AssignedToName != "" {
				assignedTo = m.AssignedToName
			}
			t.AppendRow(table.Row{m.ID, m.Status, m.PaymentType, deref(m.CoinsAmount), m.Description, createdBy, assignedTo})
		}
	})
}
