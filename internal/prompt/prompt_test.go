package prompt

import (
	"strings"
	"testing"

	"hseb5/internal/domain"
)

func TestGenerateListsFieldsRecursively(t *testing.T) {
	fields := []domain.OutputField{
		{Name: "livello_rumore", Type: domain.FieldNumber, Required: true, Description: "LEX,8h in dB(A)"},
		{Name: "misure", Type: domain.FieldArray, Children: []domain.OutputField{
			{Name: "descrizione", Type: domain.FieldString, Required: true},
		}},
	}
	out := Generate("Rumore", "Relazioni fonometriche", fields)

	for _, want := range []string{
		`valutazione del rischio "Rumore"`,
		"Relazioni fonometriche\n",
		"- livello_rumore (number, obbligatorio): LEX,8h in dB(A)\n",
		"- misure (array, opzionale)\n",
		"  - descrizione (string, obbligatorio)\n",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("prompt missing %q:\n%s", want, out)
		}
	}
}

func TestGenerateDeterministic(t *testing.T) {
	fields := []domain.OutputField{{Name: "x", Type: domain.FieldString}}
	if Generate("A", "", fields) != Generate("A", "", fields) {
		t.Fatalf("expected identical output for identical input")
	}
	if !strings.Contains(Generate("A", "", nil), "(nessun campo definito)") {
		t.Fatalf("expected placeholder for empty schema")
	}
}
