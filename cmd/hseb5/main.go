package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"hseb5/internal/app"
	"hseb5/internal/config"
	"hseb5/internal/fallback"
	"hseb5/internal/logging"
	"hseb5/internal/session"
)

var rootCmd = &cobra.Command{
	Use:   "hseb5",
	Short: "HSE B5 workplace safety CLI",
	Long: `hseb5 manages companies, visit deadlines, risk types, DVRs (risk assessment
documents) and safety data sheet elaborations against the HSE backend.

When the backend cannot be reached every command answers from the demo data
set and says so on stderr. --demo skips the backend entirely.`,
	SilenceUsage: true,
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("HSEB5")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().Bool("demo", false, "use the demo data set only")
	rootCmd.PersistentFlags().String("api-url", "", "backend base url (overrides api.base_url)")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("demo.enabled", rootCmd.PersistentFlags().Lookup("demo"))
	_ = viper.BindPFlag("api.base_url", rootCmd.PersistentFlags().Lookup("api-url"))
}

func registerCommands() {
	rootCmd.AddCommand(loginCmd())
	rootCmd.AddCommand(logoutCmd())
	rootCmd.AddCommand(whoamiCmd())
	rootCmd.AddCommand(dashboardCmd())
	rootCmd.AddCommand(companyCmd())
	rootCmd.AddCommand(deadlineCmd())
	rootCmd.AddCommand(riskCmd())
	rootCmd.AddCommand(dvrCmd())
	rootCmd.AddCommand(elaborationCmd())
	rootCmd.AddCommand(userCmd())
	rootCmd.AddCommand(activityCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(serveCmd())
}

// loadConfig resolves flags, environment, .env and hseb5.yml. Unchanged
// flags fall through to the config defaults.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Resolve(viper.GetViper())
	if err != nil {
		return nil, err
	}
	return cfg, cfg.Validate()
}

// withApp opens the workspace. Protected commands first pass the session
// guard, the CLI counterpart of the protected routes.
func withApp(ctx context.Context, protected bool, fn func(context.Context, *app.App) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, err := logging.New(logging.Options{Level: cfg.Log.Level, Format: cfg.Log.Format, File: cfg.Log.File})
	if err != nil {
		return err
	}
	a, err := app.Open(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()
	if protected {
		if _, err := a.Session.Guard(ctx); err != nil {
			if errors.Is(err, session.ErrUnauthenticated) {
				return fmt.Errorf("%w; run 'hseb5 login' first", err)
			}
			return err
		}
	}
	return fn(ctx, a)
}

// note tells the user on stderr when a value was not served by the backend.
func note[T any](r fallback.Result[T]) {
	switch r.Source {
	case fallback.Degraded:
		fmt.Fprintf(os.Stderr, "backend non raggiungibile, dati demo (%v)\n", r.Reason)
	case fallback.Demo:
		fmt.Fprintln(os.Stderr, "modalità demo")
	}
}

func printJSONOrTable(v any, header table.Row, rows func(table.Writer)) error {
	if viper.GetBool("json") || rows == nil {
		return printJSON(v)
	}
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.SetStyle(table.StyleLight)
	tw.AppendHeader(header)
	rows(tw)
	tw.Render()
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// printFields renders one record as a two-column table.
func printFields(v any, fields [][2]any) error {
	return printJSONOrTable(v, table.Row{"Campo", "Valore"}, func(tw table.Writer) {
		for _, f := range fields {
			tw.AppendRow(table.Row{f[0], f[1]})
		}
	})
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", s)
	}
	return id, nil
}

func optionalID(v int64) *int64 {
	if v == 0 {
		return nil
	}
	return &v
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
