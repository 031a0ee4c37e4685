// Package export renders elaborations and deadline schedules as xlsx
// workbooks and DVRs as html documents.
package export

import (
	"bytes"
	"fmt"
	"html/template"
	"slices"
	"sort"

	"github.com/xuri/excelize/v2"

	"hseb5/internal/domain"
)

const (
	summarySheet  = "Riepilogo"
	sheetsSheet   = "Schede"
	deadlineSheet = "Scadenze"
)

var sheetColumns = []string{"mansione", "reparto", "ruolo", "file", "prodotto"}

// ElaborationWorkbook lists every extracted row of the elaboration's safety
// data sheets, one line per sheet row, after a summary sheet.
func ElaborationWorkbook(e domain.Elaboration, uploads []domain.ElaborationUpload) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		return nil, err
	}
	summary := [][]any{
		{"Elaborazione", e.Title},
		{"Azienda", e.CompanyName},
		{"Stato", string(e.Status)},
		{"Caricamenti", e.UploadsCount},
		{"File", e.FilesCount},
		{"Inizio", deref(e.BeginAt)},
		{"Fine", deref(e.EndAt)},
	}
	if err := writeRows(f, summarySheet, summary); err != nil {
		return nil, err
	}

	if _, err := f.NewSheet(sheetsSheet); err != nil {
		return nil, err
	}
	extra := map[string]bool{}
	for _, u := range uploads {
		for _, file := range u.Files {
			for _, row := range file.Rows {
				for k := range row {
					if !slices.Contains(sheetColumns, k) {
						extra[k] = true
					}
				}
			}
		}
	}
	columns := append(slices.Clone(sheetColumns), sortedKeys(extra)...)
	header := make([]any, 0, len(columns)+1)
	for _, c := range columns {
		header = append(header, c)
	}
	header = append(header, "stato")
	rows := [][]any{header}
	for _, u := range uploads {
		for _, file := range u.Files {
			if len(file.Rows) == 0 {
				line := make([]any, len(columns)+1)
				copy(line, []any{u.Mansione, u.Reparto, u.Ruolo, file.FileName})
				for i := 4; i < len(columns); i++ {
					line[i] = ""
				}
				line[len(columns)] = string(file.Status)
				rows = append(rows, line)
				continue
			}
			for _, r := range file.Rows {
				line := make([]any, 0, len(columns)+1)
				for _, c := range columns {
					line = append(line, r[c])
				}
				rows = append(rows, append(line, string(file.Status)))
			}
		}
	}
	if err := writeRows(f, sheetsSheet, rows); err != nil {
		return nil, err
	}
	if err := boldHeader(f, sheetsSheet, len(header)); err != nil {
		return nil, err
	}
	return f, nil
}

// DeadlineWorkbook is the visit schedule, one row per deadline.
func DeadlineWorkbook(deadlines []domain.Deadline, companies []domain.Company) (*excelize.File, error) {
	names := map[int64]string{}
	for _, c := range companies {
		names[c.ID] = c.Name
	}
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", deadlineSheet); err != nil {
		return nil, err
	}
	rows := [][]any{{"Titolo", "Azienda", "Ultima visita", "Prossima visita", "Periodicità", "Stato"}}
	for _, d := range deadlines {
		company := d.CompanyName
		if n, ok := names[d.CompanyID]; ok {
			company = n
		}
		rows = append(rows, []any{d.Title, company, d.LastVisitDate, d.NextVisitDate, intervalLabel(d.NextVisitInterval), string(d.Status)})
	}
	if err := writeRows(f, deadlineSheet, rows); err != nil {
		return nil, err
	}
	if err := boldHeader(f, deadlineSheet, 6); err != nil {
		return nil, err
	}
	return f, nil
}

func intervalLabel(i domain.Interval) string {
	if m, ok := i.Months(); ok {
		return fmt.Sprintf("%d mesi", m)
	}
	switch i {
	case domain.IntervalOnRequest:
		return "su richiesta"
	case domain.IntervalCustom:
		return "personalizzata"
	}
	return string(i)
}

func writeRows(f *excelize.File, sheet string, rows [][]any) error {
	for r, row := range rows {
		for c, v := range row {
			cell, err := excelize.CoordinatesToCellName(c+1, r+1)
			if err != nil {
				return err
			}
			if err := f.SetCellValue(sheet, cell, v); err != nil {
				return err
			}
		}
	}
	return nil
}

func boldHeader(f *excelize.File, sheet string, cols int) error {
	style, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return err
	}
	last, err := excelize.CoordinatesToCellName(cols, 1)
	if err != nil {
		return err
	}
	return f.SetCellStyle(sheet, "A1", last, style)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

var documentTmpl = template.Must(template.New("dvr").Parse(`<article class="dvr">
<h1>{{.Nome}}</h1>
{{if .Company}}<p class="company">{{.Company.Name}}</p>{{end}}
<p>Stato: {{.Stato}} &middot; Revisione {{.NumeroRevisione}}</p>
{{if .Descrizione}}<p>{{.Descrizione}}</p>{{end}}
<h2>Documenti valutati</h2>
<ul>
{{range .Files}}{{if .Include}}<li>{{.FileName}} ({{.Risk.Name}}){{if .ClassificationResult}} - {{.ClassificationResult}}{{end}}{{if .Notes}}: {{.Notes}}{{end}}</li>
{{end}}{{end}}</ul>
</article>
`))

// DVRDocument renders the draft html body of a DVR.
func DVRDocument(d domain.DVR) (string, error) {
	var buf bytes.Buffer
	if err := documentTmpl.Execute(&buf, d); err != nil {
		return "", err
	}
	return buf.String(), nil
}
