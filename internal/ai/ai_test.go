package ai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hseb5/internal/domain"
	"hseb5/internal/schema"
)

func TestParseJSON(t *testing.T) {
	got, ok := ParseJSON(`{"livello": 85, "dpi": true}`)
	assert.True(t, ok)
	assert.Equal(t, 85.0, got["livello"])

	got, ok = ParseJSON("Ecco il risultato:\n```json\n{\"a\": {\"b\": 1}}\n```\nFine.")
	assert.True(t, ok)
	assert.Equal(t, map[string]any{"b": 1.0}, got["a"])

	got, ok = ParseJSON("nessun json qui")
	assert.False(t, ok)
	assert.Equal(t, "nessun json qui", got["raw_text"])

	got, ok = ParseJSON("{ rotto ")
	assert.False(t, ok)
	assert.Equal(t, "{ rotto ", got["raw_text"])

	// arrays are not objects
	_, ok = ParseJSON(`[1,2]`)
	assert.False(t, ok)
}

func TestNewOpenAIRequiresKey(t *testing.T) {
	_, err := NewOpenAI(Options{})
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestOpenAIComplete(t *testing.T) {
	var req map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"x","object":"chat.completion","created":1,"model":"gpt-4o-mini",` +
			`"choices":[{"index":0,"message":{"role":"assistant","content":"{\"livello\":80}"},"finish_reason":"stop"}],` +
			`"usage":{"prompt_tokens":1,"completion_tokens":1,"total_tokens":2}}`))
	}))
	defer srv.Close()

	c, err := NewOpenAI(Options{APIKey: "sk-test", BaseURL: srv.URL})
	require.NoError(t, err)
	out, err := c.Complete(context.Background(), "system", "user")
	require.NoError(t, err)
	assert.Equal(t, `{"livello":80}`, out)
	assert.Equal(t, "gpt-4o-mini", req["model"])
	msgs, _ := req["messages"].([]any)
	assert.Len(t, msgs, 2)
}

func TestSampleSatisfiesRequiredFields(t *testing.T) {
	fields := []domain.OutputField{
		{Name: "livello", Type: domain.FieldNumber, Required: true},
		{Name: "misure", Type: domain.FieldArray, Required: true, Children: []domain.OutputField{
			{Name: "tipo", Type: domain.FieldString, Required: true},
		}},
		{Name: "dpi", Type: domain.FieldObject, Children: []domain.OutputField{
			{Name: "obbligatori", Type: domain.FieldBoolean, Required: true},
		}},
	}
	got := Sample(fields)
	assert.Equal(t, domain.Positivo, schema.Classify(fields, got))
	assert.Equal(t, false, got["dpi"].(map[string]any)["obbligatori"])
}
