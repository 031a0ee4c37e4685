package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"hseb5/internal/app"
	"hseb5/internal/domain"
)

func companyCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "company", Aliases: []string{"aziende"}, Short: "Manage companies"}
	cmd.AddCommand(companyListCmd())
	cmd.AddCommand(companyShowCmd())
	cmd.AddCommand(companyCreateCmd())
	cmd.AddCommand(companyUpdateCmd())
	cmd.AddCommand(companyDeleteCmd())
	return cmd
}

func companyListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List companies",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), true, func(ctx context.Context, a *app.App) error {
				res, err := a.Engine.ListCompanies(ctx)
				if err != nil {
					return err
				}
				note(res)
				return printJSONOrTable(res.Value, table.Row{"ID", "Ragione sociale", "P.IVA", "Città", "Dipendenti"}, func(tw table.Writer) {
					for _, c := range res.Value {
						tw.AppendRow(table.Row{c.ID, c.Name, c.VATNumber, c.City, c.EmployeesCount})
					}
				})
			})
		},
	}
}

func companyShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show company details",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), true, func(ctx context.Context, a *app.App) error {
				res, err := a.Engine.GetCompany(ctx, id)
				if err != nil {
					return err
				}
				note(res)
				c := res.Value
				return printFields(c, [][2]any{
					{"ID", c.ID}, {"Ragione sociale", c.Name}, {"P.IVA", c.VATNumber}, {"Codice fiscale", c.TaxCode},
					{"Indirizzo", strings.TrimSpace(fmt.Sprintf("%s %s %s %s", c.Address, c.ZipCode, c.City, c.Province))},
					{"Email", c.Email}, {"PEC", c.PEC}, {"Telefono", c.Phone},
					{"RSPP", c.RSPP}, {"Medico competente", c.CompetentDoctor}, {"RLS", c.RLS},
					{"ATECO", c.ATECOCode}, {"Dipendenti", c.EmployeesCount},
					{"Mansioni", strings.Join(c.Mansioni, ", ")}, {"Reparti", strings.Join(c.Reparti, ", ")},
				})
			})
		},
	}
}

func bindCompanyFlags(cmd *cobra.Command, c *domain.Company) {
	cmd.Flags().StringVar(&c.Name, "name", "", "company name")
	cmd.Flags().StringVar(&c.VATNumber, "vat", "", "VAT number")
	cmd.Flags().StringVar(&c.TaxCode, "tax-code", "", "tax code")
	cmd.Flags().StringVar(&c.Address, "address", "", "street address")
	cmd.Flags().StringVar(&c.City, "city", "", "city")
	cmd.Flags().StringVar(&c.Province, "province", "", "province")
	cmd.Flags().StringVar(&c.ZipCode, "zip", "", "postal code")
	cmd.Flags().StringVar(&c.Email, "email", "", "email")
	cmd.Flags().StringVar(&c.PEC, "pec", "", "certified email")
	cmd.Flags().StringVar(&c.Phone, "phone", "", "phone")
	cmd.Flags().StringVar(&c.RSPP, "rspp", "", "RSPP")
	cmd.Flags().StringVar(&c.CompetentDoctor, "doctor", "", "competent doctor")
	cmd.Flags().StringVar(&c.RLS, "rls", "", "RLS")
	cmd.Flags().StringVar(&c.ATECOCode, "ateco", "", "ATECO code")
	cmd.Flags().IntVar(&c.EmployeesCount, "employees", 0, "number of employees")
	cmd.Flags().StringSliceVar(&c.Mansioni, "mansione", nil, "job position (repeatable)")
	cmd.Flags().StringSliceVar(&c.Reparti, "reparto", nil, "department (repeatable)")
	cmd.Flags().StringSliceVar(&c.Ruoli, "ruolo", nil, "role (repeatable)")
}

func companyCreateCmd() *cobra.Command {
	var c domain.Company
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create company",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), true, func(ctx context.Context, a *app.App) error {
				res, err := a.Engine.CreateCompany(ctx, c)
				if err != nil {
					return err
				}
				note(res)
				fmt.Printf("Azienda %d creata\n", res.Value.ID)
				return nil
			})
		},
	}
	bindCompanyFlags(cmd, &c)
	return cmd
}

// companyUpdateCmd reads the company and overwrites only the flags given.
func companyUpdateCmd() *cobra.Command {
	var patch domain.Company
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Update company",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), true, func(ctx context.Context, a *app.App) error {
				cur, err := a.Engine.GetCompany(ctx, id)
				if err != nil {
					return err
				}
				c := cur.Value
				set := func(flag string, dst *string, v string) {
					if cmd.Flags().Changed(flag) {
						*dst = v
					}
				}
				set("name", &c.Name, patch.Name)
				set("vat", &c.VATNumber, patch.VATNumber)
				set("tax-code", &c.TaxCode, patch.TaxCode)
				set("address", &c.Address, patch.Address)
				set("city", &c.City, patch.City)
				set("province", &c.Province, patch.Province)
				set("zip", &c.ZipCode, patch.ZipCode)
				set("email", &c.Email, patch.Email)
				set("pec", &c.PEC, patch.PEC)
				set("phone", &c.Phone, patch.Phone)
				set("rspp", &c.RSPP, patch.RSPP)
				set("doctor", &c.CompetentDoctor, patch.CompetentDoctor)
				set("rls", &c.RLS, patch.RLS)
				set("ateco", &c.ATECOCode, patch.ATECOCode)
				if cmd.Flags().Changed("employees") {
					c.EmployeesCount = patch.EmployeesCount
				}
				if cmd.Flags().Changed("mansione") {
					c.Mansioni = patch.Mansioni
				}
				if cmd.Flags().Changed("reparto") {
					c.Reparti = patch.Reparti
				}
				if cmd.Flags().Changed("ruolo") {
					c.Ruoli = patch.Ruoli
				}
				res, err := a.Engine.UpdateCompany(ctx, id, c)
				if err != nil {
					return err
				}
				note(res)
				fmt.Printf("Azienda %d aggiornata\n", id)
				return nil
			})
		},
	}
	bindCompanyFlags(cmd, &patch)
	return cmd
}

func companyDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete company",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), true, func(ctx context.Context, a *app.App) error {
				res, err := a.Engine.DeleteCompany(ctx, id)
				if err != nil {
					return err
				}
				note(res)
				fmt.Printf("Azienda %d eliminata\n", id)
				return nil
			})
		},
	}
}
