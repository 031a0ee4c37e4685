package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"hseb5/internal/app"
	"hseb5/internal/domain"
	"hseb5/internal/events"
	"hseb5/internal/schema"
)

func riskCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "risk", Aliases: []string{"rischi"}, Short: "Risk types and their extraction schema"}
	cmd.AddCommand(riskListCmd())
	cmd.AddCommand(riskShowCmd())
	cmd.AddCommand(riskCreateCmd())
	cmd.AddCommand(riskUpdateCmd())
	cmd.AddCommand(riskDeleteCmd())
	cmd.AddCommand(riskVersionsCmd())
	cmd.AddCommand(riskRevertCmd())
	cmd.AddCommand(riskPromptCmd())
	cmd.AddCommand(riskImportCmd())
	cmd.AddCommand(riskFieldCmd())
	return cmd
}

// riskDoc is the yaml shape of a risk type in import and structure files.
type riskDoc struct {
	Name              string               `yaml:"name"`
	Description       string               `yaml:"description,omitempty"`
	Status            string               `yaml:"status,omitempty"`
	InputExpectations string               `yaml:"input_expectations,omitempty"`
	AIPrompt          string               `yaml:"ai_prompt,omitempty"`
	OutputStructure   []domain.OutputField `yaml:"output_structure,omitempty"`
}

func (d riskDoc) risk() domain.RiskType {
	return domain.RiskType{
		Name:              d.Name,
		Description:       d.Description,
		Status:            domain.RiskStatus(d.Status),
		InputExpectations: d.InputExpectations,
		AIPrompt:          d.AIPrompt,
		OutputStructure:   d.OutputStructure,
	}
}

func readStructure(path string) ([]domain.OutputField, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var fields []domain.OutputField
	if err := yaml.Unmarshal(data, &fields); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return fields, schema.Validate(fields)
}

func riskListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List risk types",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), true, func(ctx context.Context, a *app.App) error {
				res, err := a.Engine.ListRisks(ctx)
				if err != nil {
					return err
				}
				note(res)
				return printJSONOrTable(res.Value, table.Row{"ID", "Nome", "Stato", "Campi", "Versione"}, func(tw table.Writer) {
					for _, rt := range res.Value {
						tw.AppendRow(table.Row{rt.ID, rt.Name, rt.Status, len(rt.OutputStructure), rt.Version})
					}
				})
			})
		},
	}
}

func riskShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show a risk type with its output structure",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), true, func(ctx context.Context, a *app.App) error {
				res, err := a.Engine.GetRisk(ctx, id)
				if err != nil {
					return err
				}
				note(res)
				rt := res.Value
				return printJSONOrTable(rt, table.Row{"Campo", "Tipo", "Obbligatorio", "Descrizione"}, func(tw table.Writer) {
					fmt.Printf("%s (%s, v%d)\n", rt.Name, rt.Status, rt.Version)
					if rt.Description != "" {
						fmt.Println(rt.Description)
					}
					appendFields(tw, rt.OutputStructure, "")
				})
			})
		},
	}
}

func appendFields(tw table.Writer, fields []domain.OutputField, prefix string) {
	for _, f := range fields {
		name := prefix + f.Name
		tw.AppendRow(table.Row{name, f.Type, f.Required, f.Description})
		appendFields(tw, f.Children, name+".")
	}
}

func bindRiskFlags(cmd *cobra.Command, rt *domain.RiskType, status, structure *string) {
	cmd.Flags().StringVar(&rt.Name, "name", "", "name")
	cmd.Flags().StringVar(&rt.Description, "description", "", "description")
	cmd.Flags().StringVar(status, "status", "", "draft, validated or active")
	cmd.Flags().StringVar(&rt.InputExpectations, "expectations", "", "what the input documents contain")
	cmd.Flags().StringVar(&rt.AIPrompt, "prompt", "", "custom extraction prompt")
	cmd.Flags().StringVar(structure, "structure", "", "yaml file with the output fields")
}

func riskCreateCmd() *cobra.Command {
	var (
		rt                domain.RiskType
		status, structure string
	)
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create risk type",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt.Status = domain.RiskStatus(status)
			if structure != "" {
				fields, err := readStructure(structure)
				if err != nil {
					return err
				}
				rt.OutputStructure = fields
			}
			return withApp(cmd.Context(), true, func(ctx context.Context, a *app.App) error {
				res, err := a.Engine.CreateRisk(ctx, rt)
				if err != nil {
					return err
				}
				note(res)
				fmt.Printf("Rischio %d creato\n", res.Value.ID)
				return nil
			})
		},
	}
	bindRiskFlags(cmd, &rt, &status, &structure)
	return cmd
}

func riskUpdateCmd() *cobra.Command {
	var (
		patch             domain.RiskType
		status, structure string
	)
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Update risk type; every save is a new version",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			var fields []domain.OutputField
			if structure != "" {
				if fields, err = readStructure(structure); err != nil {
					return err
				}
			}
			return withApp(cmd.Context(), true, func(ctx context.Context, a *app.App) error {
				cur, err := a.Engine.GetRisk(ctx, id)
				if err != nil {
					return err
				}
				rt := cur.Value
				changed := cmd.Flags().Changed
				if changed("name") {
					rt.Name = patch.Name
				}
				if changed("description") {
					rt.Description = patch.Description
				}
				if changed("status") {
					rt.Status = domain.RiskStatus(status)
				}
				if changed("expectations") {
					rt.InputExpectations = patch.InputExpectations
				}
				if changed("prompt") {
					rt.AIPrompt = patch.AIPrompt
				}
				if fields != nil {
					rt.OutputStructure = fields
				}
				res, err := a.Engine.UpdateRisk(ctx, id, rt)
				if err != nil {
					return err
				}
				note(res)
				fmt.Printf("Rischio %d aggiornato (v%d)\n", id, res.Value.Version)
				return nil
			})
		},
	}
	bindRiskFlags(cmd, &patch, &status, &structure)
	return cmd
}

func riskDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete risk type",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), true, func(ctx context.Context, a *app.App) error {
				res, err := a.Engine.DeleteRisk(ctx, id)
				if err != nil {
					return err
				}
				note(res)
				fmt.Printf("Rischio %d eliminato\n", id)
				return nil
			})
		},
	}
}

func riskVersionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "versions <id>",
		Short: "Version history of a risk type",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), true, func(ctx context.Context, a *app.App) error {
				res, err := a.Engine.RiskVersions(ctx, id)
				if err != nil {
					return err
				}
				note(res)
				return printJSONOrTable(res.Value, table.Row{"ID", "Versione", "Nome", "Stato", "Campi", "Data"}, func(tw table.Writer) {
					for _, v := range res.Value {
						tw.AppendRow(table.Row{v.ID, v.Version, v.Name, v.Status, len(v.OutputStructure), v.CreatedAt})
					}
				})
			})
		},
	}
}

func riskRevertCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "revert <id> <version-id>",
		Short: "Restore a previous version as a new one",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			versionID, err := parseID(args[1])
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), true, func(ctx context.Context, a *app.App) error {
				res, err := a.Engine.RevertRisk(ctx, id, versionID)
				if err != nil {
					return err
				}
				note(res)
				fmt.Printf("Rischio %d ripristinato (v%d)\n", id, res.Value.Version)
				return nil
			})
		},
	}
}

func riskPromptCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "prompt <id>",
		Short: "Print the extraction prompt of a risk type",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), true, func(ctx context.Context, a *app.App) error {
				res, err := a.Engine.RiskPrompt(ctx, id)
				if err != nil {
					return err
				}
				note(res)
				fmt.Println(res.Value)
				return nil
			})
		},
	}
}

func riskImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <file.yaml>",
		Short: "Create the risk types listed in a yaml file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			var docs []riskDoc
			if err := yaml.Unmarshal(data, &docs); err != nil {
				return fmt.Errorf("parse %s: %w", args[0], err)
			}
			for i, d := range docs {
				if err := schema.Validate(d.OutputStructure); err != nil {
					return fmt.Errorf("risk %d (%s): %w", i+1, d.Name, err)
				}
			}
			return withApp(cmd.Context(), true, func(ctx context.Context, a *app.App) error {
				for _, d := range docs {
					res, err := a.Engine.CreateRisk(ctx, d.risk())
					if err != nil {
						return fmt.Errorf("import %s: %w", d.Name, err)
					}
					note(res)
					a.Record(ctx, events.Event{
						Type: events.TypeRiskImport, Entity: "risk", EntityID: res.Value.ID,
						Source: string(res.Source), Payload: events.Payload{"name": res.Value.Name, "file": args[0]},
					})
					fmt.Printf("Rischio %d creato: %s\n", res.Value.ID, res.Value.Name)
				}
				return nil
			})
		},
	}
}

func riskFieldCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "field", Short: "Edit the output structure of a risk type"}
	var (
		parent, typ, desc string
		required          bool
	)
	add := &cobra.Command{
		Use:   "add <risk-id> <name>",
		Short: "Add a field, nested under --parent when given",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			field := domain.OutputField{Name: args[1], Type: domain.FieldType(typ), Description: desc, Required: required}
			return editStructure(cmd.Context(), args[0], func(fields []domain.OutputField) ([]domain.OutputField, error) {
				return schema.AddField(fields, splitPath(parent), field)
			})
		},
	}
	add.Flags().StringVar(&parent, "parent", "", "dotted path of the parent object or array")
	add.Flags().StringVar(&typ, "type", "string", "string, number, boolean, array or object")
	add.Flags().StringVar(&desc, "description", "", "field description")
	add.Flags().BoolVar(&required, "required", false, "mark the field as required")

	remove := &cobra.Command{
		Use:   "remove <risk-id> <path>",
		Short: "Remove a field by dotted path",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return editStructure(cmd.Context(), args[0], func(fields []domain.OutputField) ([]domain.OutputField, error) {
				return schema.RemoveField(fields, splitPath(args[1]))
			})
		},
	}
	cmd.AddCommand(add, remove)
	return cmd
}

func editStructure(ctx context.Context, rawID string, edit func([]domain.OutputField) ([]domain.OutputField, error)) error {
	id, err := parseID(rawID)
	if err != nil {
		return err
	}
	return withApp(ctx, true, func(ctx context.Context, a *app.App) error {
		cur, err := a.Engine.GetRisk(ctx, id)
		if err != nil {
			return err
		}
		rt := cur.Value
		fields, err := edit(rt.OutputStructure)
		if err != nil {
			return err
		}
		rt.OutputStructure = fields
		res, err := a.Engine.UpdateRisk(ctx, id, rt)
		if err != nil {
			return err
		}
		note(res)
		fmt.Printf("Struttura aggiornata (v%d, %d campi)\n", res.Value.Version, len(res.Value.OutputStructure))
		return nil
	})
}

func splitPath(p string) schema.Path {
	if strings.TrimSpace(p) == "" {
		return nil
	}
	return schema.Path(strings.Split(p, "."))
}
