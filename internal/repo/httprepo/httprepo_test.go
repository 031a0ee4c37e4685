package httprepo

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hseb5/internal/domain"
	"hseb5/internal/repo"
	hsesdk "hseb5/sdk/go"
)

func newRepos(t *testing.T, h http.HandlerFunc) repo.Repositories {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return New(hsesdk.New(srv.URL, time.Second))
}

func TestDVRStatusAndFieldMapping(t *testing.T) {
	var posted map[string]any
	repos := newRepos(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/dvr":
			_, _ = w.Write([]byte(`[{"id":1,"title":"A","status":"In-Progress","revision":2},{"id":2,"title":"B","status":"finalized"},{"id":3,"title":"C","status":"???"}]`))
		case r.Method == http.MethodPost && r.URL.Path == "/dvr":
			require.NoError(t, json.NewDecoder(r.Body).Decode(&posted))
			_, _ = w.Write([]byte(`{"id":9,"title":"Nuovo","status":"approved"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})
	ctx := context.Background()

	list, err := repos.DVRs.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, domain.DVRInLavorazione, list[0].Stato)
	assert.Equal(t, "A", list[0].Nome)
	assert.Equal(t, 2, list[0].NumeroRevisione)
	assert.Equal(t, domain.DVRApprovato, list[1].Stato)
	assert.Equal(t, domain.DVRBozza, list[2].Stato)

	d, err := repos.DVRs.Create(ctx, domain.DVR{Nome: "Nuovo", Stato: domain.DVRFinalizzato})
	require.NoError(t, err)
	assert.Equal(t, "approved", posted["status"])
	assert.Equal(t, "Nuovo", posted["title"])
	// FINALIZZATO does not survive the backend round trip
	assert.Equal(t, domain.DVRApprovato, d.Stato)
}

func TestNotFoundAndValidationMapping(t *testing.T) {
	repos := newRepos(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			w.WriteHeader(http.StatusUnprocessableEntity)
			_, _ = w.Write([]byte(`{"error":{"code":"validation","message":"name: obbligatorio"}}`))
			return
		}
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":{"code":"not_found","message":"company 5 not found"}}`))
	})
	ctx := context.Background()

	_, err := repos.Companies.Get(ctx, 5)
	assert.ErrorIs(t, err, repo.ErrNotFound)
	var apiErr *hsesdk.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "company 5 not found", apiErr.Message)

	_, err = repos.Companies.Create(ctx, domain.Company{})
	assert.ErrorIs(t, err, repo.ErrValidation)

	_, err = repos.Risks.Versions(ctx, 1)
	assert.ErrorIs(t, err, repo.ErrNotSupported)
}

func TestCreateWithFilesDoesNotRollBack(t *testing.T) {
	deleted := false
	repos := newRepos(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/dvr":
			_, _ = w.Write([]byte(`{"id":4,"title":"DVR","status":"draft"}`))
		case r.URL.Path == "/dvr/4/files":
			_, _ = io.Copy(io.Discard, r.Body)
			w.WriteHeader(http.StatusInternalServerError)
		case r.Method == http.MethodDelete:
			deleted = true
		}
	})

	d, err := repos.DVRs.CreateWithFiles(context.Background(), repo.CreateDVRInput{Title: "DVR", Files: []repo.UploadFile{{FileName: "a.pdf", Data: []byte("x")}}})
	var partial *repo.PartialCreateError
	require.ErrorAs(t, err, &partial)
	assert.Equal(t, int64(4), partial.DVRID)
	assert.Equal(t, int64(4), d.ID)
	assert.False(t, deleted)
}

func TestDeadlineListQueryAndLogin(t *testing.T) {
	repos := newRepos(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/deadlines":
			assert.Equal(t, "3", r.URL.Query().Get("company_id"))
			assert.Equal(t, "overdue", r.URL.Query().Get("status"))
			_, _ = w.Write([]byte(`[]`))
		case "/auth/login":
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"detail":"Invalid credentials"}`))
		case "/auth/me":
			assert.Equal(t, "Bearer abc", r.Header.Get("Authorization"))
			_, _ = w.Write([]byte(`{"id":1,"name":"A","email":"a@b.it","role":"admin"}`))
		}
	})
	ctx := context.Background()

	list, err := repos.Deadlines.List(ctx, repo.DeadlineFilter{CompanyID: 3, Status: domain.DeadlineOverdue})
	require.NoError(t, err)
	assert.Empty(t, list)

	_, err = repos.Auth.Login(ctx, "a@b.it", "x")
	assert.ErrorIs(t, err, repo.ErrInvalidLogin)

	u, err := repos.Auth.Me(ctx, "abc")
	require.NoError(t, err)
	assert.Equal(t, domain.RoleAdmin, u.Role)
}
