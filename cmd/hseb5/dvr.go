package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"hseb5/internal/app"
	"hseb5/internal/domain"
	"hseb5/internal/engine"
	"hseb5/internal/events"
	"hseb5/internal/repo"
	"hseb5/internal/wizard"
)

func dvrCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "dvr", Short: "Risk assessment documents"}
	cmd.AddCommand(dvrListCmd())
	cmd.AddCommand(dvrShowCmd())
	cmd.AddCommand(dvrUpdateCmd())
	cmd.AddCommand(dvrStatusCmd())
	cmd.AddCommand(dvrDeleteCmd())
	cmd.AddCommand(dvrFilesCmd())
	cmd.AddCommand(dvrUploadCmd())
	cmd.AddCommand(dvrRevisionCmd())
	cmd.AddCommand(dvrDocumentCmd())
	cmd.AddCommand(dvrWizardCmd())
	return cmd
}

func dvrListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List DVRs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), true, func(ctx context.Context, a *app.App) error {
				res, err := a.Engine.ListDVRs(ctx)
				if err != nil {
					return err
				}
				note(res)
				return printJSONOrTable(res.Value, table.Row{"ID", "Nome", "Stato", "Rev.", "File", "Aggiornato"}, func(tw table.Writer) {
					for _, d := range res.Value {
						tw.AppendRow(table.Row{d.ID, truncate(d.Nome, 40), d.Stato, d.NumeroRevisione, len(d.Files), d.UpdatedAt})
					}
				})
			})
		},
	}
}

func dvrShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show a DVR",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), true, func(ctx context.Context, a *app.App) error {
				res, err := a.Engine.GetDVR(ctx, id)
				if err != nil {
					return err
				}
				note(res)
				d := res.Value
				company := "-"
				if d.Company != nil {
					company = d.Company.Name
				} else if d.CompanyID != nil {
					company = strconv.FormatInt(*d.CompanyID, 10)
				}
				return printFields(d, [][2]any{
					{"ID", d.ID}, {"Nome", d.Nome}, {"Descrizione", d.Descrizione}, {"Stato", d.Stato},
					{"Revisione", d.NumeroRevisione}, {"Azienda", company}, {"File", len(d.Files)},
					{"Creato da", d.CreatedBy}, {"Aggiornato da", d.UpdatedBy}, {"Aggiornato", d.UpdatedAt},
				})
			})
		},
	}
}

func dvrUpdateCmd() *cobra.Command {
	var info struct{ nome, descrizione string }
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Edit name and description",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), true, func(ctx context.Context, a *app.App) error {
				cur, err := a.Engine.GetDVR(ctx, id)
				if err != nil {
					return err
				}
				d := cur.Value
				in := engine.DVRInfo{Nome: d.Nome, Descrizione: d.Descrizione, Stato: string(d.Stato)}
				if cmd.Flags().Changed("name") {
					in.Nome = info.nome
				}
				if cmd.Flags().Changed("description") {
					in.Descrizione = info.descrizione
				}
				res, err := a.Engine.UpdateDVRInfo(ctx, id, in)
				if err != nil {
					return err
				}
				note(res)
				fmt.Printf("DVR %d aggiornato\n", id)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&info.nome, "name", "", "name")
	cmd.Flags().StringVar(&info.descrizione, "description", "", "description")
	return cmd
}

func dvrStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <id> <stato>",
		Short: "Change the DVR status",
		Long:  `Change the DVR status. Accepted: bozza, in_lavorazione, in_revisione, completato, archiviato.`,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), true, func(ctx context.Context, a *app.App) error {
				res, err := a.Engine.SetDVRStatus(ctx, id, args[1])
				if err != nil {
					return err
				}
				note(res)
				a.Record(ctx, events.Event{
					Type: events.TypeDVRStatus, Entity: "dvr", EntityID: id,
					Source: string(res.Source), Payload: events.Payload{"stato": res.Value.Stato},
				})
				fmt.Printf("DVR %d: %s\n", id, res.Value.Stato)
				return nil
			})
		},
	}
}

func dvrDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete DVR",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), true, func(ctx context.Context, a *app.App) error {
				res, err := a.Engine.DeleteDVR(ctx, id)
				if err != nil {
					return err
				}
				note(res)
				fmt.Printf("DVR %d eliminato\n", id)
				return nil
			})
		},
	}
}

func printFiles(files []domain.FileMetadata) error {
	return printJSONOrTable(files, table.Row{"ID", "File", "Rischio", "Incluso", "Esito", "Note"}, func(tw table.Writer) {
		for _, f := range files {
			tw.AppendRow(table.Row{f.ID, f.FileName, orDash(f.Risk.Name), f.Include, orDash(string(f.ClassificationResult)), truncate(f.Notes, 30)})
		}
	})
}

func dvrFilesCmd() *cobra.Command {
	var (
		include bool
		riskID  int64
		notes   string
	)
	cmd := &cobra.Command{
		Use:   "files <id> [file-id]",
		Short: "List the files of a DVR, or edit one file's metadata",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), true, func(ctx context.Context, a *app.App) error {
				if len(args) == 1 {
					res, err := a.Engine.DVRFiles(ctx, id)
					if err != nil {
						return err
					}
					note(res)
					return printFiles(res.Value)
				}
				fileID, err := parseID(args[1])
				if err != nil {
					return err
				}
				var p domain.FileMetadataPatch
				if cmd.Flags().Changed("include") {
					p.Include = &include
				}
				if cmd.Flags().Changed("risk") {
					p.RiskID = &riskID
				}
				if cmd.Flags().Changed("notes") {
					p.Notes = &notes
				}
				res, err := a.Engine.UpdateDVRFile(ctx, id, fileID, p)
				if err != nil {
					return err
				}
				note(res)
				return printFiles([]domain.FileMetadata{res.Value})
			})
		},
	}
	cmd.Flags().BoolVar(&include, "include", true, "include the file in the document")
	cmd.Flags().Int64Var(&riskID, "risk", 0, "risk type id")
	cmd.Flags().StringVar(&notes, "notes", "", "reviewer notes")
	return cmd
}

func readFiles(paths []string) ([]repo.UploadFile, error) {
	files := make([]repo.UploadFile, 0, len(paths))
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, err
		}
		files = append(files, repo.UploadFile{FileName: filepath.Base(p), Data: data})
	}
	return files, nil
}

func dvrUploadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "upload <id> <file>...",
		Short: "Attach files to an existing DVR",
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
			return withApp(cmd.Context(), true, func(ctx context.Context, a *app.App) error {
				res, err := a.Engine.UploadDVRFiles(ctx, id, files)
				if err != nil {
					return err
				}
				note(res)
				return printFiles(res.Value)
			})
		},
	}
}

func dvrRevisionCmd() *cobra.Command {
	var text string
	cmd := &cobra.Command{
		Use:   "revision <id>",
		Short: "Save a revision snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), true, func(ctx context.Context, a *app.App) error {
				res, err := a.Engine.SaveDVRRevision(ctx, id, text)
				if err != nil {
					return err
				}
				note(res)
				a.Record(ctx, events.Event{
					Type: events.TypeDVRRevision, Entity: "dvr", EntityID: id,
					Source: string(res.Source), Payload: events.Payload{"version": res.Value.Version, "note": text},
				})
				fmt.Printf("Revisione %d salvata\n", res.Value.Version)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&text, "note", "", "revision note")
	cmd.AddCommand(&cobra.Command{
		Use:   "list <id>",
		Short: "List saved revisions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), true, func(ctx context.Context, a *app.App) error {
				res, err := a.Engine.DVRRevisions(ctx, id)
				if err != nil {
					return err
				}
				note(res)
				return printJSONOrTable(res.Value, table.Row{"ID", "Versione", "Stato", "File", "Nota", "Autore", "Data"}, func(tw table.Writer) {
					for _, v := range res.Value {
						tw.AppendRow(table.Row{v.ID, v.Version, v.Stato, len(v.Files), truncate(v.Note, 30), v.CreatedBy, v.CreatedAt})
					}
				})
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "revert <id> <version-id>",
		Short: "Restore a revision; the current state is saved first",
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
				res, err := a.Engine.RevertDVR(ctx, id, versionID)
				if err != nil {
					return err
				}
				note(res)
				fmt.Printf("DVR %d ripristinato, revisione %d\n", id, res.Value.NumeroRevisione)
				return nil
			})
		},
	})
	return cmd
}

func dvrDocumentCmd() *cobra.Command {
	var out, set string
	cmd := &cobra.Command{
		Use:   "document <id>",
		Short: "Print the HTML document, or replace it with --set",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), true, func(ctx context.Context, a *app.App) error {
				if set != "" {
					html, err := os.ReadFile(set)
					if err != nil {
						return err
					}
					res, err := a.Engine.SaveDVRDocument(ctx, id, string(html))
					if err != nil {
						return err
					}
					note(res)
					fmt.Printf("Documento del DVR %d salvato\n", id)
					return nil
				}
				res, err := a.Engine.DVRDocument(ctx, id)
				if err != nil {
					return err
				}
				note(res)
				var w io.Writer = os.Stdout
				if out != "" {
					f, err := os.Create(out)
					if err != nil {
						return err
					}
					defer f.Close()
					w = f
				}
				_, err = io.WriteString(w, res.Value)
				return err
			})
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "write to file instead of stdout")
	cmd.Flags().StringVar(&set, "set", "", "html file to save as the document")
	return cmd
}

// dvrWizardCmd drives the four step wizard non-interactively: upload the
// given files, classify them, extract and confirm.
func dvrWizardCmd() *cobra.Command {
	var (
		name, description string
		companyID, riskID int64
		assign            []string
		exclude           []string
		dryRun            bool
	)
	cmd := &cobra.Command{
		Use:   "wizard <file>...",
		Short: "Create a DVR from documents with AI extraction",
		Long: `Create a DVR from documents with AI extraction.

Every file needs a risk type: --risk applies one to all files and
--assign file.pdf=ID sets one per file. Extraction uses the configured
OpenAI model, or a simulated result when no key is set. --dry-run stops
after the review table.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			perFile, err := parseAssign(assign)
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), true, func(ctx context.Context, a *app.App) error {
				run := wizard.New(wizard.Options{
					Backend:   a.Engine,
					Completer: a.Completer,
					Observer:  progress(),
					Logger:    a.Logger,
					Metrics:   a.Metrics,
				})
				ids := map[string]string{}
				for _, p := range args {
					data, err := os.ReadFile(p)
					if err != nil {
						return err
					}
					id, err := run.AddFile(filepath.Base(p), data)
					if err != nil {
						return err
					}
					ids[filepath.Base(p)] = id
				}
				if err := run.SetName(name); err != nil {
					return err
				}
				if err := run.SetDescription(description); err != nil {
					return err
				}
				if err := run.SetCompany(optionalID(companyID)); err != nil {
					return err
				}
				if err := run.Next(); err != nil {
					return err
				}
				if riskID != 0 {
					if err := run.ClassifyAll(riskID); err != nil {
						return err
					}
				}
				for file, rid := range perFile {
					id, ok := ids[file]
					if !ok {
						return fmt.Errorf("--assign: %s is not among the files", file)
					}
					if err := run.Classify(id, rid); err != nil {
						return err
					}
				}
				if err := run.Next(); err != nil {
					return err
				}
				if err := run.Process(ctx); err != nil {
					return err
				}
				for _, file := range exclude {
					id, ok := ids[file]
					if !ok {
						return fmt.Errorf("--exclude: %s is not among the files", file)
					}
					if err := run.SetInclude(id, false); err != nil {
						return err
					}
				}
				if err := printReview(run.Snapshot()); err != nil {
					return err
				}
				if dryRun {
					return nil
				}
				report, err := run.Confirm(ctx)
				if err != nil {
					return err
				}
				a.Record(ctx, events.Event{
					Type: events.TypeWizardConfirm, Entity: "dvr", EntityID: report.DVR.ID, Source: string(report.Source),
					Payload: events.Payload{"files": len(report.DVR.Files), "updated": report.Updated, "failed": len(report.Failures)},
				})
				return printReport(report)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "DVR name")
	cmd.Flags().StringVar(&description, "description", "", "DVR description")
	cmd.Flags().Int64Var(&companyID, "company", 0, "company id")
	cmd.Flags().Int64Var(&riskID, "risk", 0, "risk type for every file")
	cmd.Flags().StringArrayVar(&assign, "assign", nil, "file=riskID (repeatable)")
	cmd.Flags().StringSliceVar(&exclude, "exclude", nil, "file names to leave out of the document")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "stop before saving")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func parseAssign(pairs []string) (map[string]int64, error) {
	out := make(map[string]int64, len(pairs))
	for _, p := range pairs {
		file, raw, ok := strings.Cut(p, "=")
		if !ok {
			return nil, fmt.Errorf("--assign %q: want file=riskID", p)
		}
		id, err := parseID(raw)
		if err != nil {
			return nil, fmt.Errorf("--assign %q: %w", p, err)
		}
		out[file] = id
	}
	return out, nil
}

// progress prints one stderr line per file status change.
func progress() wizard.Observer {
	seen := map[string]wizard.FileStatus{}
	return func(s wizard.State) {
		if s.Step != wizard.StepProcessing {
			return
		}
		for _, f := range s.Files {
			if seen[f.ID] == f.Status {
				continue
			}
			seen[f.ID] = f.Status
			switch f.Status {
			case wizard.FileProcessing:
				fmt.Fprintf(os.Stderr, "  %s ...\n", f.Name)
			case wizard.FileError:
				fmt.Fprintf(os.Stderr, "  %s: errore: %s\n", f.Name, f.Message)
			}
		}
	}
}

func printReview(s wizard.State) error {
	if viper.GetBool("json") {
		return printJSON(s)
	}
	return printJSONOrTable(s, table.Row{"File", "Rischio", "Stato", "JSON", "Esito", "Incluso"}, func(tw table.Writer) {
		for _, f := range s.Files {
			tw.AppendRow(table.Row{f.Name, orDash(f.RiskName), f.Status, f.Parsed, orDash(string(f.Classification)), f.Include})
		}
	})
}

func printReport(r wizard.ConfirmReport) error {
	if viper.GetBool("json") {
		return printJSON(r)
	}
	fmt.Printf("DVR %d creato con %d file (%d metadati aggiornati, %s)\n",
		r.DVR.ID, len(r.DVR.Files), r.Updated, r.Duration.Round(1e6))
	for _, f := range r.Failures {
		fmt.Fprintf(os.Stderr, "  %s: %s\n", f.FileName, f.Error)
	}
	if len(r.Failures) > 0 {
		return errors.New("some file metadata could not be saved")
	}
	return nil
}
