package main

import (
	"context"
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"hseb5/internal/app"
	"hseb5/internal/domain"
	"hseb5/internal/export"
	"hseb5/internal/repo"
)

func deadlineCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "deadline", Aliases: []string{"scadenze"}, Short: "Visit deadlines"}
	cmd.AddCommand(deadlineListCmd())
	cmd.AddCommand(deadlineCreateCmd())
	cmd.AddCommand(deadlineCompleteCmd())
	cmd.AddCommand(deadlineDeleteCmd())
	cmd.AddCommand(deadlineExportCmd())
	return cmd
}

func deadlineListCmd() *cobra.Command {
	var companyID int64
	var status string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List deadlines; status is recomputed against today",
		RunE: func(cmd *cobra.Command, args []string) error {
			f := repo.DeadlineFilter{CompanyID: companyID, Status: domain.DeadlineStatus(status)}
			return withApp(cmd.Context(), true, func(ctx context.Context, a *app.App) error {
				res, err := a.Engine.ListDeadlines(ctx, f)
				if err != nil {
					return err
				}
				note(res)
				return printJSONOrTable(res.Value, table.Row{"ID", "Titolo", "Azienda", "Ultima", "Prossima", "Periodicità", "Stato"}, func(tw table.Writer) {
					for _, d := range res.Value {
						tw.AppendRow(table.Row{d.ID, d.Title, d.CompanyName, d.LastVisitDate, d.NextVisitDate, d.NextVisitInterval, d.Status})
					}
				})
			})
		},
	}
	cmd.Flags().Int64Var(&companyID, "company", 0, "only deadlines of this company")
	cmd.Flags().StringVar(&status, "status", "", "pending, overdue or completed")
	return cmd
}

func deadlineCreateCmd() *cobra.Command {
	var (
		d        domain.Deadline
		interval string
		riskID   int64
	)
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Schedule a visit",
		Long: `Schedule a visit. With a month interval the next visit is computed from the
last one; with --interval custom pass --next-visit; on_request has no date.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			d.NextVisitInterval = domain.Interval(interval)
			d.RiskID = optionalID(riskID)
			return withApp(cmd.Context(), true, func(ctx context.Context, a *app.App) error {
				res, err := a.Engine.CreateDeadline(ctx, d)
				if err != nil {
					return err
				}
				note(res)
				if viper.GetBool("json") {
					return printJSON(res.Value)
				}
				fmt.Printf("Scadenza %d creata, prossima visita %s (%s)\n", res.Value.ID, orDash(res.Value.NextVisitDate), res.Value.Status)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&d.Title, "title", "", "title")
	cmd.Flags().StringVar(&d.Description, "description", "", "description")
	cmd.Flags().Int64Var(&d.CompanyID, "company", 0, "company id")
	cmd.Flags().Int64Var(&riskID, "risk", 0, "risk type id")
	cmd.Flags().StringVar(&d.LastVisitDate, "last-visit", "", "last visit date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&d.NextVisitDate, "next-visit", "", "next visit date for custom intervals")
	cmd.Flags().StringVar(&interval, "interval", "12", "months (1,3,6,12,24,36,60), on_request or custom")
	return cmd
}

func deadlineCompleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "complete <id>",
		Short: "Record a visit today and schedule the next one",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), true, func(ctx context.Context, a *app.App) error {
				res, err := a.Engine.CompleteDeadline(ctx, id)
				if err != nil {
					return err
				}
				note(res)
				fmt.Printf("Visita registrata il %s, prossima %s\n", res.Value.LastVisitDate, orDash(res.Value.NextVisitDate))
				return nil
			})
		},
	}
}

func deadlineDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete deadline",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), true, func(ctx context.Context, a *app.App) error {
				res, err := a.Engine.DeleteDeadline(ctx, id)
				if err != nil {
					return err
				}
				note(res)
				fmt.Printf("Scadenza %d eliminata\n", id)
				return nil
			})
		},
	}
}

func deadlineExportCmd() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the visit schedule as xlsx",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), true, func(ctx context.Context, a *app.App) error {
				deadlines, err := a.Engine.ListDeadlines(ctx, repo.DeadlineFilter{})
				if err != nil {
					return err
				}
				companies, err := a.Engine.ListCompanies(ctx)
				if err != nil {
					return err
				}
				note(deadlines)
				wb, err := export.DeadlineWorkbook(deadlines.Value, companies.Value)
				if err != nil {
					return err
				}
				defer wb.Close()
				if err := wb.SaveAs(out); err != nil {
					return err
				}
				fmt.Printf("%d scadenze esportate in %s\n", len(deadlines.Value), out)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "scadenze.xlsx", "output file")
	return cmd
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
