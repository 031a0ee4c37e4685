package export

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hseb5/internal/domain"
)

func TestElaborationWorkbook(t *testing.T) {
	begin := "2025-01-10T08:00:00Z"
	e := domain.Elaboration{Title: "SDS", CompanyName: "Acme", Status: domain.ElaborationCompleted, UploadsCount: 1, FilesCount: 2, BeginAt: &begin}
	uploads := []domain.ElaborationUpload{{
		Mansione: "Saldatore", Reparto: "Produzione",
		Files: []domain.ElaborationFile{
			{FileName: "a.pdf", Status: domain.ElaborationCompleted, Rows: []map[string]string{{"prodotto": "a", "mansione": "Saldatore", "frasi_h": "H225"}}},
			{FileName: "b.pdf", Status: domain.ElaborationPending},
		},
	}}
	f, err := ElaborationWorkbook(e, uploads)
	require.NoError(t, err)
	defer f.Close()

	v, err := f.GetCellValue(summarySheet, "B1")
	require.NoError(t, err)
	assert.Equal(t, "SDS", v)

	rows, err := f.GetRows(sheetsSheet)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"mansione", "reparto", "ruolo", "file", "prodotto", "frasi_h", "stato"}, rows[0])
	assert.Equal(t, "H225", rows[1][5])
	assert.Equal(t, "b.pdf", rows[2][3])
}

func TestDeadlineWorkbook(t *testing.T) {
	f, err := DeadlineWorkbook([]domain.Deadline{
		{Title: "Visita", CompanyID: 1, LastVisitDate: "2024-06-15", NextVisitDate: "2025-06-15", NextVisitInterval: "12", Status: domain.DeadlinePending},
		{Title: "Sopralluogo", CompanyID: 9, CompanyName: "Altra", NextVisitInterval: domain.IntervalOnRequest},
	}, []domain.Company{{ID: 1, Name: "Acme"}})
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(deadlineSheet)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "Acme", rows[1][1])
	assert.Equal(t, "12 mesi", rows[1][4])
	assert.Equal(t, "Altra", rows[2][1])
	assert.Equal(t, "su richiesta", rows[2][4])
}

func TestDVRDocumentEscapes(t *testing.T) {
	html, err := DVRDocument(domain.DVR{
		Nome:  "DVR <script>",
		Stato: domain.DVRBozza,
		Files: []domain.FileMetadata{
			{FileName: "a.pdf", Include: true, Risk: domain.FileRisk{Name: "Rumore"}, ClassificationResult: domain.Positivo},
			{FileName: "escluso.pdf", Include: false},
		},
	})
	require.NoError(t, err)
	assert.Contains(t, html, "DVR &lt;script&gt;")
	assert.Contains(t, html, "a.pdf (Rumore) - POSITIVO")
	assert.False(t, strings.Contains(html, "escluso.pdf"))
}
