package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hseb5/internal/domain"
)

func sampleFields() []domain.OutputField {
	return []domain.OutputField{
		{Name: "livello", Type: domain.FieldString, Required: true},
		{Name: "esposizione", Type: domain.FieldObject, Children: []domain.OutputField{
			{Name: "valore", Type: domain.FieldNumber, Required: true},
			{Name: "unita", Type: domain.FieldString},
		}},
		{Name: "note", Type: domain.FieldString},
	}
}

func TestClassifyScenario(t *testing.T) {
	fields := []domain.OutputField{{Name: "x", Type: domain.FieldString, Required: true}}
	assert.Equal(t, domain.Negativo, Classify(fields, map[string]any{}))
	assert.Equal(t, domain.Positivo, Classify(fields, map[string]any{"x": "v"}))
	assert.Equal(t, domain.Negativo, Classify(fields, map[string]any{"x": nil}))
}

func TestMissingRequiredNested(t *testing.T) {
	fields := sampleFields()
	// optional parent absent: nested required field is not demanded
	assert.Empty(t, MissingRequired(fields, map[string]any{"livello": "alto"}))

	got := MissingRequired(fields, map[string]any{"livello": "alto", "esposizione": map[string]any{"unita": "dB"}})
	require.Len(t, got, 1)
	assert.Equal(t, "esposizione.valore", got[0].String())

	got = MissingRequired(fields, map[string]any{})
	require.Len(t, got, 1)
	assert.Equal(t, "livello", got[0].String())
}

func TestValidate(t *testing.T) {
	require.NoError(t, Validate(sampleFields()))
	assert.Error(t, Validate([]domain.OutputField{{Name: "", Type: domain.FieldString}}))
	assert.Error(t, Validate([]domain.OutputField{{Name: "a", Type: "date"}}))
	assert.Error(t, Validate([]domain.OutputField{{Name: "a", Type: domain.FieldString}, {Name: "a", Type: domain.FieldNumber}}))
	assert.Error(t, Validate([]domain.OutputField{{Name: "a", Type: domain.FieldString, Children: []domain.OutputField{{Name: "b", Type: domain.FieldString}}}}))
}

func TestStructuralUpdatesDoNotMutateInput(t *testing.T) {
	fields := sampleFields()

	added, err := AddField(fields, Path{"esposizione"}, domain.OutputField{Name: "durata", Type: domain.FieldNumber})
	require.NoError(t, err)
	assert.Len(t, added[1].Children, 3)
	assert.Len(t, fields[1].Children, 2)

	removed, err := RemoveField(added, Path{"esposizione", "unita"})
	require.NoError(t, err)
	_, err = FieldAt(removed, Path{"esposizione", "unita"})
	assert.ErrorIs(t, err, ErrPathNotFound)
	_, err = FieldAt(added, Path{"esposizione", "unita"})
	assert.NoError(t, err)

	replaced, err := ReplaceField(fields, Path{"note"}, domain.OutputField{Name: "note", Type: domain.FieldString, Required: true})
	require.NoError(t, err)
	f, err := FieldAt(replaced, Path{"note"})
	require.NoError(t, err)
	assert.True(t, f.Required)
	assert.False(t, fields[2].Required)

	_, err = AddField(fields, Path{"livello"}, domain.OutputField{Name: "x", Type: domain.FieldString})
	assert.Error(t, err)
	_, err = AddField(fields, nil, domain.OutputField{Name: "livello", Type: domain.FieldString})
	assert.Error(t, err)
	_, err = RemoveField(fields, Path{"missing"})
	assert.ErrorIs(t, err, ErrPathNotFound)
}

func TestValueTree(t *testing.T) {
	root := FromJSON(map[string]any{"a": map[string]any{"b": "c"}, "n": 3.0})
	v, ok := Get(root, Path{"a", "b"})
	require.True(t, ok)
	assert.Equal(t, Leaf{Type: domain.FieldString, Value: "c"}, v)

	updated, err := SetAt(root, Path{"a", "d", "e"}, Leaf{Type: domain.FieldBoolean, Value: true})
	require.NoError(t, err)
	_, ok = Get(root, Path{"a", "d"})
	assert.False(t, ok)
	assert.Equal(t, map[string]any{"a": map[string]any{"b": "c", "d": map[string]any{"e": true}}, "n": 3.0}, ToJSON(updated))

	_, err = SetAt(root, Path{"n", "x"}, Leaf{Value: 1.0})
	assert.Error(t, err)

	deleted, err := DeleteAt(updated, Path{"a", "b"})
	require.NoError(t, err)
	_, ok = Get(deleted, Path{"a", "b"})
	assert.False(t, ok)
	_, ok = Get(updated, Path{"a", "b"})
	assert.True(t, ok)
	assert.Equal(t, []string{"a", "n"}, Keys(deleted.(Node)))
}

func TestApplyPatch(t *testing.T) {
	data := map[string]any{"livello": "medio"}
	out, err := ApplyPatch(data, []byte(`[{"op":"replace","path":"/livello","value":"alto"},{"op":"add","path":"/note","value":"verificato"}]`))
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"livello": "alto", "note": "verificato"}, out)
	assert.Equal(t, "medio", data["livello"])

	_, err = ApplyPatch(data, []byte(`[{"op":"remove","path":"/missing"}]`))
	assert.Error(t, err)
}
