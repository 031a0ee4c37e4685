package schema

import (
	"hseb5/internal/domain"
)

// MissingRequired lists the paths of required fields absent or null in data.
// Required children are checked only when their parent object is present;
// array items are checked individually when they are objects.
func MissingRequired(fields []domain.OutputField, data map[string]any) []Path {
	return missing(fields, data, nil)
}

func missing(fields []domain.OutputField, data map[string]any, prefix Path) []Path {
	var out []Path
	for _, f := range fields {
		at := append(append(Path{}, prefix...), f.Name)
		v, ok := data[f.Name]
		if !ok || v == nil {
			if f.Required {
				out = append(out, at)
			}
			continue
		}
		if len(f.Children) == 0 {
			continue
		}
		switch t := v.(type) {
		case map[string]any:
			out = append(out, missing(f.Children, t, at)...)
		case []any:
			for _, item := range t {
				if obj, ok := item.(map[string]any); ok {
					out = append(out, missing(f.Children, obj, at)...)
				}
			}
		}
	}
	return out
}

// Classify returns POSITIVO iff no required field is missing.
func Classify(fields []domain.OutputField, data map[string]any) domain.Classification {
	if len(MissingRequired(fields, data)) == 0 {
		return domain.Positivo
	}
	return domain.Negativo
}
