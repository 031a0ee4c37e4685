// Package prompt renders the system prompt sent to the completion service for
// a risk type.
package prompt

import (
	"fmt"
	"strings"

	"hseb5/internal/domain"
)

// Generate renders the fixed instruction template for a risk, embedding an
// indented description of every output field.
func Generate(riskName, inputExpectations string, fields []domain.OutputField) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Sei un esperto di salute e sicurezza sul lavoro (D.Lgs. 81/2008) incaricato di analizzare documenti per la valutazione del rischio \"%s\".\n\n", strings.TrimSpace(riskName))

	sb.WriteString("## Documenti in ingresso\n")
	if exp := strings.TrimSpace(inputExpectations); exp != "" {
		sb.WriteString(exp)
		sb.WriteString("\n\n")
	} else {
		sb.WriteString("Documentazione tecnica relativa al rischio indicato.\n\n")
	}

	sb.WriteString("## Struttura dell'output\n")
	sb.WriteString("Restituisci esclusivamente un oggetto JSON con i seguenti campi:\n")
	if len(fields) == 0 {
		sb.WriteString("- (nessun campo definito)\n")
	}
	writeFields(&sb, fields, 0)

	sb.WriteString("\n## Regole\n")
	sb.WriteString("- Rispondi solo con JSON valido, senza testo aggiuntivo.\n")
	sb.WriteString("- I campi obbligatori devono essere sempre presenti; usa null solo se l'informazione non compare nel documento.\n")
	sb.WriteString("- Non inventare dati: riporta solo informazioni presenti nel documento.\n")
	sb.WriteString("- Usa numeri per i campi di tipo number e true/false per i campi boolean.\n")
	return sb.String()
}

func writeFields(sb *strings.Builder, fields []domain.OutputField, depth int) {
	indent := strings.Repeat("  ", depth)
	for _, f := range fields {
		req := "opzionale"
		if f.Required {
			req = "obbligatorio"
		}
		fmt.Fprintf(sb, "%s- %s (%s, %s)", indent, f.Name, f.Type, req)
		if d := strings.TrimSpace(f.Description); d != "" {
			fmt.Fprintf(sb, ": %s", d)
		}
		sb.WriteString("\n")
		writeFields(sb, f.Children, depth+1)
	}
}
