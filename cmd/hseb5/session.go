package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"hseb5/internal/app"
	"hseb5/internal/config"
	"hseb5/internal/events"
)

func loginCmd() *cobra.Command {
	var email, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in and keep the session in the workspace",
		RunE: func(cmd *cobra.Command, args []string) error {
			if password == "" {
				fmt.Fprint(os.Stderr, "Password: ")
				line, err := bufio.NewReader(os.Stdin).ReadString('\n')
				if err != nil && line == "" {
					return fmt.Errorf("read password: %w", err)
				}
				password = strings.TrimRight(line, "\r\n")
			}
			return withApp(cmd.Context(), false, func(ctx context.Context, a *app.App) error {
				res, err := a.Engine.Login(ctx, email, password)
				if err != nil {
					return err
				}
				note(res)
				if err := a.Session.Save(ctx, res.Value); err != nil {
					return err
				}
				a.Record(ctx, events.Event{
					Type: events.TypeLogin, Entity: "user", EntityID: res.Value.User.ID,
					Actor: res.Value.User.Email, Source: string(res.Source),
				})
				if viper.GetBool("json") {
					return printJSON(res.Value.User)
				}
				fmt.Printf("Benvenuto %s (%s)\n", res.Value.User.Name, res.Value.User.Role)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().StringVar(&password, "password", "", "password (prompted when empty)")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored session",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), false, func(ctx context.Context, a *app.App) error {
				actor := a.Actor()
				if err := a.Session.Clear(ctx); err != nil {
					return err
				}
				a.Record(ctx, events.Event{Type: events.TypeLogout, Entity: "user", Actor: actor})
				fmt.Println("Sessione chiusa")
				return nil
			})
		},
	}
}

func whoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the logged-in user",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), true, func(ctx context.Context, a *app.App) error {
				res, err := a.Engine.Me(ctx, a.Session.Token())
				if err != nil {
					return err
				}
				note(res)
				u := res.Value
				return printFields(u, [][2]any{
					{"ID", u.ID}, {"Nome", u.Name}, {"Email", u.Email}, {"Ruolo", u.Role}, {"Attivo", u.Active},
				})
			})
		},
	}
}

func dashboardCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "dashboard",
		Short: "Counts, DVR status breakdown and upcoming visits",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), true, func(ctx context.Context, a *app.App) error {
				d, err := a.Engine.Dashboard(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(d)
				}
				fmt.Printf("Aziende: %d  DVR: %d  Elaborazioni: %d\n", d.Companies, d.DVRs, d.Elaborations)
				fmt.Printf("Scadenze: %d in attesa, %d scadute\n", d.DeadlinesPending, d.DeadlinesOverdue)
				for status, n := range d.DVRByStatus {
					fmt.Printf("  %-18s %d\n", status, n)
				}
				for entity, src := range d.Sources {
					if src != "live" {
						fmt.Fprintf(os.Stderr, "%s: %s\n", entity, src)
					}
				}
				if len(d.Upcoming) == 0 {
					return nil
				}
				fmt.Println("Prossime visite:")
				return printJSONOrTable(d.Upcoming, table.Row{"ID", "Titolo", "Azienda", "Data"}, func(tw table.Writer) {
					for _, dl := range d.Upcoming {
						tw.AppendRow(table.Row{dl.ID, dl.Title, dl.CompanyName, dl.NextVisitDate})
					}
				})
			})
		},
	}
}

func activityCmd() *cobra.Command {
	var n int
	var evtType string
	cmd := &cobra.Command{
		Use:   "activity",
		Short: "Recent activity recorded in this workspace",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), false, func(ctx context.Context, a *app.App) error {
				items, err := a.Events.Latest(ctx, n, evtType)
				if err != nil {
					return err
				}
				return printJSONOrTable(items, table.Row{"Quando", "Tipo", "Entità", "Utente", "Fonte"}, func(tw table.Writer) {
					for _, e := range items {
						entity := e.Entity
						if e.EntityID != 0 {
							entity = fmt.Sprintf("%s %d", e.Entity, e.EntityID)
						}
						tw.AppendRow(table.Row{e.TS, e.Type, entity, e.Actor, e.Source})
					}
				})
			})
		},
	}
	cmd.Flags().IntVarP(&n, "limit", "n", 20, "number of events")
	cmd.Flags().StringVar(&evtType, "type", "", "only events of this type")
	return cmd
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{
		Use:   "config",
		Short: "Inspect or create hseb5.yml",
	}
	cfg.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show the effective config",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := loadConfig()
			if err != nil {
				return err
			}
			if c.OpenAI.APIKey != "" {
				c.OpenAI.APIKey = "***"
			}
			if c.Server.JWTSecret != "" {
				c.Server.JWTSecret = "***"
			}
			return printJSON(c)
		},
	})
	cfg.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Write a default hseb5.yml in the workspace",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.Path(viper.GetString("workspace"))
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%s already exists", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
				return err
			}
			fmt.Println("Creato", path)
			return nil
		},
	})
	return cfg
}
