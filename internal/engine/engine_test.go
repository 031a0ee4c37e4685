package engine_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"hseb5/internal/domain"
	"hseb5/internal/engine"
	"hseb5/internal/fallback"
	"hseb5/internal/repo"
	"hseb5/internal/repo/httprepo"
	"hseb5/internal/repo/memory"
	hsesdk "hseb5/sdk/go"
)

var fixedNow = time.Date(2025, 1, 10, 9, 0, 0, 0, time.UTC)

type testEnv struct {
	Engine *engine.Engine
	Hits   *atomic.Int64
}

// newTestEnv builds an engine over the seeded demo store. handler, when not
// nil, serves the live backend.
func newTestEnv(t *testing.T, handler http.HandlerFunc) testEnv {
	t.Helper()
	store := memory.New(memory.Options{Now: func() time.Time { return fixedNow }, PasswordCost: bcrypt.MinCost})
	hits := new(atomic.Int64)
	var live *repo.Repositories
	if handler != nil {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			hits.Add(1)
			handler(w, r)
		}))
		t.Cleanup(srv.Close)
		r := httprepo.New(hsesdk.New(srv.URL, time.Second))
		live = &r
	}
	e := engine.New(live, store.Repositories(), fallback.Policy{}, nil)
	e.Now = func() time.Time { return fixedNow }
	return testEnv{Engine: e, Hits: hits}
}

func backendDown(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusBadGateway)
}

func TestWithoutBackendEverythingIsDemo(t *testing.T) {
	env := newTestEnv(t, nil)
	res, err := env.Engine.ListCompanies(context.Background())
	require.NoError(t, err)
	assert.Equal(t, fallback.Demo, res.Source)
	assert.Len(t, res.Value, 2)
}

func TestLiveFailureDegradesToDemoData(t *testing.T) {
	env := newTestEnv(t, backendDown)
	res, err := env.Engine.ListRisks(context.Background())
	require.NoError(t, err)
	assert.Equal(t, fallback.Degraded, res.Source)
	assert.Error(t, res.Reason)
	assert.NotEmpty(t, res.Value)
	assert.Equal(t, int64(1), env.Hits.Load())
}

func TestLiveAnswerIsUsed(t *testing.T) {
	env := newTestEnv(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"id":7,"name":"Live Srl","mansioni":[],"reparti":[],"ruoli":[]}]`))
	})
	res, err := env.Engine.ListCompanies(context.Background())
	require.NoError(t, err)
	assert.Equal(t, fallback.Live, res.Source)
	require.Len(t, res.Value, 1)
	assert.Equal(t, "Live Srl", res.Value[0].Name)
}

func TestBackendRejectionDegradesToDemoData(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":{"code":"not_found","message":"company 1 not found"}}`))
	})
	got, err := env.Engine.GetCompany(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, fallback.Degraded, got.Source)
	assert.ErrorIs(t, got.Reason, repo.ErrNotFound)
	assert.Equal(t, int64(1), got.Value.ID)

	list, err := env.Engine.ListCompanies(ctx)
	require.NoError(t, err)
	assert.Equal(t, fallback.Degraded, list.Source)
	assert.Len(t, list.Value, 2)

	env = newTestEnv(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"error":{"code":"validation_failed","message":"partita iva non valida","details":{"field":"partita_iva"}}}`))
	})
	created, err := env.Engine.CreateCompany(ctx, domain.Company{Name: "Acme"})
	require.NoError(t, err)
	assert.Equal(t, fallback.Degraded, created.Source)
	assert.ErrorIs(t, created.Reason, repo.ErrValidation)
	assert.Equal(t, "Acme", created.Value.Name)
}

func TestPartialCreateIsNotRepeatedOnDemoData(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost && r.URL.Path == "/dvr" {
			_, _ = w.Write([]byte(`{"id":42,"nome":"DVR Officina","stato":"BOZZA","numero_revisione":0,"files":[]}`))
			return
		}
		w.WriteHeader(http.StatusInternalServerError)
	})
	before, err := env.Engine.Mock.DVRs.List(ctx)
	require.NoError(t, err)

	_, err = env.Engine.CreateDVRWithFiles(ctx, engine.CreateInput{
		Title: "DVR Officina",
		Files: []repo.UploadFile{{FileName: "scheda.pdf", Data: []byte("%PDF")}},
	})
	var partial *repo.PartialCreateError
	require.ErrorAs(t, err, &partial)
	assert.Equal(t, int64(42), partial.DVRID)
	assert.Equal(t, int64(2), env.Hits.Load())

	after, err := env.Engine.Mock.DVRs.List(ctx)
	require.NoError(t, err)
	assert.Len(t, after, len(before))
}

func TestValidationRunsBeforeAnyCall(t *testing.T) {
	env := newTestEnv(t, backendDown)
	ctx := context.Background()

	_, err := env.Engine.CreateCompany(ctx, domain.Company{Name: "   "})
	var ve repo.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "name", ve.Field)

	_, err = env.Engine.CreateCompany(ctx, domain.Company{Name: "Acme", Email: "not-an-email"})
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "email", ve.Field)

	_, err = env.Engine.CreateDeadline(ctx, domain.Deadline{Title: "Visita", CompanyID: 1, NextVisitInterval: "7"})
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "next_visit_interval", ve.Field)

	_, err = env.Engine.CreateUser(ctx, repo.NewUser{User: domain.User{Name: "A", Email: "a@b.it"}, Password: "123"})
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "password", ve.Field)

	assert.Equal(t, int64(0), env.Hits.Load())
}

func TestDVRInfoEditorAndStatus(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	_, err := env.Engine.UpdateDVRInfo(ctx, 1, engine.DVRInfo{Nome: "DVR", Stato: "PUBBLICATO"})
	assert.ErrorIs(t, err, repo.ErrValidation)

	res, err := env.Engine.UpdateDVRInfo(ctx, 1, engine.DVRInfo{Nome: " DVR 2025 ", Descrizione: "Aggiornato", Stato: "in_revisione"})
	require.NoError(t, err)
	assert.Equal(t, "DVR 2025", res.Value.Nome)
	assert.Equal(t, domain.DVRInRevisione, res.Value.Stato)

	res, err = env.Engine.SetDVRStatus(ctx, 1, "in approvazione")
	require.NoError(t, err)
	assert.Equal(t, domain.DVRInApprovazione, res.Value.Stato)
	assert.Equal(t, "DVR 2025", res.Value.Nome)
}

func TestRiskPromptIsGeneratedWhenMissing(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	created, err := env.Engine.CreateRisk(ctx, domain.RiskType{
		Name:            "Vibrazioni",
		OutputStructure: []domain.OutputField{{Name: "livello", Type: domain.FieldNumber, Required: true}},
	})
	require.NoError(t, err)

	p, err := env.Engine.RiskPrompt(ctx, created.Value.ID)
	require.NoError(t, err)
	assert.Contains(t, p.Value, "Vibrazioni")
	assert.Contains(t, p.Value, "livello")
	assert.Equal(t, fallback.Demo, p.Source)
}

func TestCreateDVRWithFilesAndRevision(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	_, err := env.Engine.CreateDVRWithFiles(ctx, engine.CreateInput{Title: ""})
	assert.ErrorIs(t, err, repo.ErrValidation)

	res, err := env.Engine.CreateDVRWithFiles(ctx, engine.CreateInput{
		Title: "DVR Magazzino",
		Files: []repo.UploadFile{{FileName: "scheda.pdf", Data: []byte("%PDF")}},
	})
	require.NoError(t, err)
	d := res.Value
	assert.Equal(t, domain.DVRBozza, d.Stato)
	require.Len(t, d.Files, 1)

	rev, err := env.Engine.SaveDVRRevision(ctx, d.ID, " prima emissione ")
	require.NoError(t, err)
	assert.Equal(t, "prima emissione", rev.Value.Note)

	revs, err := env.Engine.DVRRevisions(ctx, d.ID)
	require.NoError(t, err)
	assert.Len(t, revs.Value, 1)
}

func TestDashboardAggregatesAllLists(t *testing.T) {
	env := newTestEnv(t, backendDown)
	dash, err := env.Engine.Dashboard(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, dash.Companies)
	assert.Equal(t, 1, dash.DVRs)
	assert.Equal(t, 1, dash.DVRByStatus[domain.DVRInLavorazione])
	assert.Equal(t, 1, dash.Elaborations)
	for name, src := range dash.Sources {
		assert.Equal(t, fallback.Degraded, src, name)
	}
	for i := 1; i < len(dash.Upcoming); i++ {
		assert.LessOrEqual(t, dash.Upcoming[i-1].NextVisitDate, dash.Upcoming[i].NextVisitDate)
	}
}
