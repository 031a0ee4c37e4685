package main

import (
	"context"
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"hseb5/internal/app"
	"hseb5/internal/domain"
	"hseb5/internal/export"
	"hseb5/internal/extract"
	"hseb5/internal/repo"
)

func elaborationCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "elaboration", Aliases: []string{"elaborazioni"}, Short: "Safety data sheet elaborations"}
	cmd.AddCommand(elaborationListCmd())
	cmd.AddCommand(elaborationShowCmd())
	cmd.AddCommand(elaborationCreateCmd())
	cmd.AddCommand(elaborationUploadCmd())
	cmd.AddCommand(elaborationUnuploadCmd())
	cmd.AddCommand(elaborationGenerateCmd())
	cmd.AddCommand(elaborationDeleteCmd())
	cmd.AddCommand(elaborationExportCmd())
	return cmd
}

func elaborationListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List elaborations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), true, func(ctx context.Context, a *app.App) error {
				res, err := a.Engine.ListElaborations(ctx)
				if err != nil {
					return err
				}
				note(res)
				return printJSONOrTable(res.Value, table.Row{"ID", "Titolo", "Azienda", "Stato", "Caricamenti", "File"}, func(tw table.Writer) {
					for _, e := range res.Value {
						tw.AppendRow(table.Row{e.ID, truncate(e.Title, 40), orDash(e.CompanyName), e.Status, e.UploadsCount, e.FilesCount})
					}
				})
			})
		},
	}
}

func elaborationShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show an elaboration with its uploads",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), true, func(ctx context.Context, a *app.App) error {
				var (
					el      domain.Elaboration
					uploads []domain.ElaborationUpload
				)
				g, gctx := errgroup.WithContext(ctx)
				g.Go(func() error {
					res, err := a.Engine.GetElaboration(gctx, id)
					note(res)
					el = res.Value
					return err
				})
				g.Go(func() error {
					res, err := a.Engine.ElaborationUploads(gctx, id)
					uploads = res.Value
					return err
				})
				if err := g.Wait(); err != nil {
					return err
				}
				view := struct {
					domain.Elaboration
					Uploads []domain.ElaborationUpload `json:"uploads"`
				}{el, uploads}
				return printJSONOrTable(view, table.Row{"ID", "Mansione", "Reparto", "Ruolo", "File", "Stato"}, func(tw table.Writer) {
					fmt.Printf("%s [%s]", el.Title, el.Status)
					if el.ErrorMessage != "" {
						fmt.Printf(" %s", el.ErrorMessage)
					}
					fmt.Println()
					for _, u := range uploads {
						tw.AppendRow(table.Row{u.ID, u.Mansione, u.Reparto, u.Ruolo, len(u.Files), u.Status})
					}
				})
			})
		},
	}
}

func elaborationCreateCmd() *cobra.Command {
	var el domain.Elaboration
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create elaboration",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), true, func(ctx context.Context, a *app.App) error {
				res, err := a.Engine.CreateElaboration(ctx, el)
				if err != nil {
					return err
				}
				note(res)
				fmt.Printf("Elaborazione %d creata\n", res.Value.ID)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&el.Title, "title", "", "title")
	cmd.Flags().Int64Var(&el.CompanyID, "company", 0, "company id")
	return cmd
}

func elaborationUploadCmd() *cobra.Command {
	var in repo.UploadInput
	cmd := &cobra.Command{
		Use:   "upload <id> <file>...",
		Short: "Upload safety data sheets for a job position",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			files, err := readFiles(args[1:])
			if err != nil {
				return err
			}
			for _, f := range files {
				if err := extract.ValidateUpload(f.FileName, int64(len(f.Data))); err != nil {
					return fmt.Errorf("%s: %w", f.FileName, err)
				}
			}
			in.Files = files
			return withApp(cmd.Context(), true, func(ctx context.Context, a *app.App) error {
				res, err := a.Engine.CreateElaborationUpload(ctx, id, in)
				if err != nil {
					return err
				}
				note(res)
				fmt.Printf("Caricamento %d: %d file\n", res.Value.ID, len(res.Value.Files))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&in.Mansione, "mansione", "", "job position")
	cmd.Flags().StringVar(&in.Reparto, "reparto", "", "department")
	cmd.Flags().StringVar(&in.Ruolo, "ruolo", "", "role")
	return cmd
}

func elaborationUnuploadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove-upload <id> <upload-id>",
		Short: "Delete one upload batch",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			uploadID, err := parseID(args[1])
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), true, func(ctx context.Context, a *app.App) error {
				res, err := a.Engine.DeleteElaborationUpload(ctx, id, uploadID)
				if err != nil {
					return err
				}
				note(res)
				fmt.Printf("Caricamento %d eliminato\n", uploadID)
				return nil
			})
		},
	}
}

func elaborationGenerateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "generate <id>",
		Short: "Start the extraction of the uploaded sheets",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), true, func(ctx context.Context, a *app.App) error {
				res, err := a.Engine.GenerateElaboration(ctx, id)
				if err != nil {
					return err
				}
				note(res)
				fmt.Printf("Elaborazione %d: %s\n", id, res.Value.Status)
				return nil
			})
		},
	}
}

func elaborationDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete elaboration",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), true, func(ctx context.Context, a *app.App) error {
				res, err := a.Engine.DeleteElaboration(ctx, id)
				if err != nil {
					return err
				}
				note(res)
				fmt.Printf("Elaborazione %d eliminata\n", id)
				return nil
			})
		},
	}
}

func elaborationExportCmd() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "export <id>",
		Short: "Write the extracted rows as xlsx",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			if out == "" {
				out = fmt.Sprintf("elaborazione-%d.xlsx", id)
			}
			return withApp(cmd.Context(), true, func(ctx context.Context, a *app.App) error {
				el, err := a.Engine.GetElaboration(ctx, id)
				if err != nil {
					return err
				}
				uploads, err := a.Engine.ElaborationUploads(ctx, id)
				if err != nil {
					return err
				}
				note(el)
				wb, err := export.ElaborationWorkbook(el.Value, uploads.Value)
				if err != nil {
					return err
				}
				defer wb.Close()
				if err := wb.SaveAs(out); err != nil {
					return err
				}
				fmt.Println("Esportato in", out)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "output file (default elaborazione-<id>.xlsx)")
	return cmd
}
