package main

import (
	"context"
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"hseb5/internal/app"
	"hseb5/internal/auth"
	"hseb5/internal/domain"
	"hseb5/internal/repo"
)

func userCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "user", Aliases: []string{"utenti"}, Short: "User accounts"}
	cmd.AddCommand(userListCmd())
	cmd.AddCommand(userCreateCmd())
	cmd.AddCommand(userUpdateCmd())
	cmd.AddCommand(userDeleteCmd())
	return cmd
}

// requireAdmin checks the logged-in user before account changes.
func requireAdmin(a *app.App) (domain.User, error) {
	sess, _ := a.Session.Current()
	return sess.User, auth.RequireRole(sess.User, domain.RoleAdmin)
}

func userListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List users",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), true, func(ctx context.Context, a *app.App) error {
				res, err := a.Engine.ListUsers(ctx)
				if err != nil {
					return err
				}
				note(res)
				return printJSONOrTable(res.Value, table.Row{"ID", "Nome", "Email", "Ruolo", "Attivo"}, func(tw table.Writer) {
					for _, u := range res.Value {
						tw.AppendRow(table.Row{u.ID, u.Name, u.Email, u.Role, u.Active})
					}
				})
			})
		},
	}
}

func userCreateCmd() *cobra.Command {
	var (
		u    repo.NewUser
		role string
	)
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a user (admin only)",
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := domain.ParseRole(role)
			if err != nil {
				return err
			}
			u.Role, u.Active = r, true
			return withApp(cmd.Context(), true, func(ctx context.Context, a *app.App) error {
				if _, err := requireAdmin(a); err != nil {
					return err
				}
				res, err := a.Engine.CreateUser(ctx, u)
				if err != nil {
					return err
				}
				note(res)
				fmt.Printf("Utente %d creato (%s)\n", res.Value.ID, res.Value.Email)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&u.Name, "name", "", "full name")
	cmd.Flags().StringVar(&u.Email, "email", "", "email")
	cmd.Flags().StringVar(&u.Password, "password", "", "initial password")
	cmd.Flags().StringVar(&role, "role", "user", "admin or user")
	return cmd
}

func userUpdateCmd() *cobra.Command {
	var (
		patch  domain.User
		role   string
		active bool
	)
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Change name, email, role or active flag (admin only)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), true, func(ctx context.Context, a *app.App) error {
				if _, err := requireAdmin(a); err != nil {
					return err
				}
				list, err := a.Engine.ListUsers(ctx)
				if err != nil {
					return err
				}
				var (
					u     domain.User
					found bool
				)
				for _, cur := range list.Value {
					if cur.ID == id {
						u, found = cur, true
					}
				}
				if !found {
					return repo.NotFound("user", id)
				}
				if cmd.Flags().Changed("name") {
					u.Name = patch.Name
				}
				if cmd.Flags().Changed("email") {
					u.Email = patch.Email
				}
				if cmd.Flags().Changed("role") {
					if u.Role, err = domain.ParseRole(role); err != nil {
						return err
					}
				}
				if cmd.Flags().Changed("active") {
					u.Active = active
				}
				res, err := a.Engine.UpdateUser(ctx, id, u)
				if err != nil {
					return err
				}
				note(res)
				fmt.Printf("Utente %d aggiornato\n", id)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&patch.Name, "name", "", "full name")
	cmd.Flags().StringVar(&patch.Email, "email", "", "email")
	cmd.Flags().StringVar(&role, "role", "", "admin or user")
	cmd.Flags().BoolVar(&active, "active", true, "account enabled")
	return cmd
}

func userDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a user (admin only)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), true, func(ctx context.Context, a *app.App) error {
				me, err := requireAdmin(a)
				if err != nil {
					return err
				}
				if me.ID == id {
					return repo.ValidationError{Field: "id", Message: "non puoi eliminare il tuo account"}
				}
				res, err := a.Engine.DeleteUser(ctx, id)
				if err != nil {
					return err
				}
				note(res)
				fmt.Printf("Utente %d eliminato\n", id)
				return nil
			})
		},
	}
}
