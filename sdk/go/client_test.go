package hsesdk

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientSendsBearerAndDecodes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok-1", r.Header.Get("Authorization"))
		assert.Equal(t, "/api/companies", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"id":1,"name":"Acme"}]`))
	}))
	defer srv.Close()

	c := New(srv.URL+"/api/", time.Second)
	c.Tokens = TokenFunc(func() string { return "tok-1" })
	var out []map[string]any
	require.NoError(t, c.Get(context.Background(), "/companies", &out))
	require.Len(t, out, 1)
	assert.Equal(t, "Acme", out[0]["name"])
}

func TestClientErrorMessageExtraction(t *testing.T) {
	cases := []struct {
		body string
		want string
	}{
		{`{"message":"nome obbligatorio"}`, "nome obbligatorio"},
		{`{"detail":"Not found"}`, "Not found"},
		{`{"error":{"code":"not_found","message":"dvr not found"}}`, "dvr not found"},
		{`{"error":"boom"}`, "boom"},
		{`<html>oops</html>`, "HTTP 404: Not Found"},
	}
	for _, tc := range cases {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(tc.body))
		}))
		err := New(srv.URL, time.Second).Get(context.Background(), "/x", nil)
		srv.Close()

		var apiErr *APIError
		require.True(t, errors.As(err, &apiErr), tc.body)
		assert.True(t, apiErr.IsNotFound())
		assert.Equal(t, tc.want, apiErr.Message)
		assert.Equal(t, http.StatusNotFound, StatusCode(err))
	}
}

func TestClientTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	err := New(srv.URL, 50*time.Millisecond).Get(context.Background(), "/slow", nil)
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestClientUploadUsesMultipart(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data; boundary="))
		require.NoError(t, r.ParseMultipartForm(1<<20))
		files := r.MultipartForm.File["files"]
		require.Len(t, files, 2)
		f, err := files[1].Open()
		require.NoError(t, err)
		data, _ := io.ReadAll(f)
		assert.Equal(t, "second", string(data))
		assert.Equal(t, "Reparto A", r.FormValue("reparto"))
		_, _ = w.Write([]byte(`{"uploaded":2}`))
	}))
	defer srv.Close()

	var out struct {
		Uploaded int `json:"uploaded"`
	}
	err := New(srv.URL, time.Second).Upload(context.Background(), "/dvr/1/files",
		[]UploadFile{{FileName: "a.pdf", Data: []byte("first")}, {FileName: "b.txt", Data: []byte("second")}},
		map[string]string{"reparto": "Reparto A"}, &out)
	require.NoError(t, err)
	assert.Equal(t, 2, out.Uploaded)
}

func TestClientRawAndDownload(t *testing.T) {
	var stored string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPut:
			assert.Equal(t, "text/html", r.Header.Get("Content-Type"))
			b, _ := io.ReadAll(r.Body)
			stored = string(b)
			w.WriteHeader(http.StatusNoContent)
		default:
			w.Header().Set("Content-Type", "text/html")
			w.Header().Set("Content-Disposition", `attachment; filename="dvr-1.html"`)
			_, _ = w.Write([]byte(stored))
		}
	}))
	defer srv.Close()

	c := New(srv.URL, time.Second)
	require.NoError(t, c.PutRaw(context.Background(), "/dvr/1/document", "text/html", []byte("<p>ok</p>"), nil))
	body, err := c.GetRaw(context.Background(), "/dvr/1/document", "text/html")
	require.NoError(t, err)
	assert.Equal(t, "<p>ok</p>", string(body))

	d, err := c.Download(context.Background(), "/storage/dvr-1.html")
	require.NoError(t, err)
	assert.Equal(t, "dvr-1.html", d.FileName)
	assert.Equal(t, "text/html", d.ContentType)
}
