package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"hseb5/internal/domain"
	"hseb5/internal/export"
	"hseb5/internal/extract"
	"hseb5/internal/repo"
)

// documentPolicy is built once and shared by every handler.
var documentPolicy = newDocumentPolicy()

func newDocumentPolicy() *bluemonday.Policy {
	p := bluemonday.UGCPolicy()
	p.AllowElements("article", "section", "header", "footer")
	p.AllowTables()
	p.AllowAttrs("class").Globally()
	return p
}

// SanitizeDocument strips scripts, handlers and unknown markup from a DVR
// html body.
func SanitizeDocument(html string) string {
	return documentPolicy.Sanitize(html)
}

const (
	maxUploadMemory = 32 << 20
	// maxUploadBody caps a whole multipart request when Config leaves it unset.
	maxUploadBody = 100 << 20
)

func (s *server) registerDVRs(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "list-dvrs",
		Method:      http.MethodGet,
		Path:        "/dvr",
		Summary:     "List DVRs",
	}, func(ctx context.Context, _ *struct{}) (*body[[]domain.DVRRecord], error) {
		items, err := s.repos.DVRs.List(ctx)
		if err != nil {
			return nil, s.handleError(err)
		}
		return &body[[]domain.DVRRecord]{Body: records(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-dvr",
		Method:      http.MethodGet,
		Path:        "/dvr/{id}",
		Summary:     "Get DVR with its files",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *idPath) (*body[domain.DVRRecord], error) {
		d, err := s.repos.DVRs.Get(ctx, input.ID)
		if err != nil {
			return nil, s.handleError(err)
		}
		return &body[domain.DVRRecord]{Body: d.Record()}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-dvr",
		Method:        http.MethodPost,
		Path:          "/dvr",
		Summary:       "Create DVR",
		DefaultStatus: http.StatusCreated,
		Errors:        writeErrors,
	}, func(ctx context.Context, input *body[domain.DVRRecord]) (*body[domain.DVRRecord], error) {
		if serr := requireBody(ctx); serr != nil {
			return nil, serr
		}
		d := input.Body.DVR()
		if u, ok := userFromContext(ctx); ok {
			d.CreatedBy = u.Email
		}
		created, err := s.repos.DVRs.Create(ctx, d)
		if err != nil {
			return nil, s.handleError(err)
		}
		return &body[domain.DVRRecord]{Body: created.Record()}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-dvr",
		Method:      http.MethodPut,
		Path:        "/dvr/{id}",
		Summary:     "Update DVR",
		Errors:      writeErrors,
	}, func(ctx context.Context, input *struct {
		ID   int64            `path:"id"`
		Body domain.DVRRecord `json:"body"`
	}) (*body[domain.DVRRecord], error) {
		d := input.Body.DVR()
		if u, ok := userFromContext(ctx); ok {
			d.UpdatedBy = u.Email
		}
		updated, err := s.repos.DVRs.Update(ctx, input.ID, d)
		if err != nil {
			return nil, s.handleError(err)
		}
		return &body[domain.DVRRecord]{Body: updated.Record()}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-dvr",
		Method:        http.MethodDelete,
		Path:          "/dvr/{id}",
		Summary:       "Delete DVR",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusNotFound},
	}, func(ctx context.Context, input *idPath) (*struct{}, error) {
		if err := s.repos.DVRs.Delete(ctx, input.ID); err != nil {
			return nil, s.handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-dvr-files",
		Method:      http.MethodGet,
		Path:        "/dvr/{id}/files",
		Summary:     "List the files of a DVR",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *idPath) (*body[[]domain.FileMetadata], error) {
		files, err := s.repos.DVRs.ListFiles(ctx, input.ID)
		if err != nil {
			return nil, s.handleError(err)
		}
		return &body[[]domain.FileMetadata]{Body: files}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-dvr-file",
		Method:      http.MethodPatch,
		Path:        "/dvr/{id}/files/{file_id}",
		Summary:     "Update review metadata of a file",
		Errors:      writeErrors,
	}, func(ctx context.Context, input *struct {
		ID     int64                    `path:"id"`
		FileID int64                    `path:"file_id"`
		Body   domain.FileMetadataPatch `json:"body"`
	}) (*body[domain.FileMetadata], error) {
		f, err := s.repos.DVRs.UpdateFile(ctx, input.ID, input.FileID, input.Body)
		if err != nil {
			return nil, s.handleError(err)
		}
		return &body[domain.FileMetadata]{Body: f}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "save-dvr-revision",
		Method:        http.MethodPost,
		Path:          "/dvr/{id}/revisions",
		Summary:       "Snapshot the DVR as a new revision",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID   int64           `path:"id"`
		Body RevisionRequest `json:"body" required:"false"`
	}) (*body[domain.DVRVersion], error) {
		v, err := s.repos.DVRs.SaveRevision(ctx, input.ID, strings.TrimSpace(input.Body.Note))
		if err != nil {
			return nil, s.handleError(err)
		}
		return &body[domain.DVRVersion]{Body: v}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-dvr-revisions",
		Method:      http.MethodGet,
		Path:        "/dvr/{id}/revisions",
		Summary:     "Revision history, newest first",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *idPath) (*body[[]domain.DVRVersion], error) {
		vs, err := s.repos.DVRs.Revisions(ctx, input.ID)
		if err != nil {
			return nil, s.handleError(err)
		}
		return &body[[]domain.DVRVersion]{Body: vs}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "revert-dvr",
		Method:      http.MethodPost,
		Path:        "/dvr/{id}/revisions/{version_id}/revert",
		Summary:     "Restore a revision",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID        int64 `path:"id"`
		VersionID int64 `path:"version_id"`
	}) (*body[domain.DVRRecord], error) {
		d, err := s.repos.DVRs.RevertToRevision(ctx, input.ID, input.VersionID)
		if err != nil {
			return nil, s.handleError(err)
		}
		return &body[domain.DVRRecord]{Body: d.Record()}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-dvr-document",
		Method:      http.MethodGet,
		Path:        "/dvr/{id}/document",
		Summary:     "Editable html body of the DVR",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *idPath) (*download, error) {
		html, err := s.repos.DVRs.GetDocument(ctx, input.ID)
		if err != nil {
			return nil, s.handleError(err)
		}
		return &download{ContentType: "text/html; charset=utf-8", Body: []byte(SanitizeDocument(html))}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "publish-dvr-document",
		Method:      http.MethodPost,
		Path:        "/dvr/{id}/document/publish",
		Summary:     "Publish the document as a static html file",
		Errors:      []int{http.StatusNotFound, http.StatusNotImplemented},
	}, func(ctx context.Context, input *idPath) (*body[PublishedDocument], error) {
		doc, err := s.publishDocument(ctx, input.ID)
		if err != nil {
			return nil, s.handleError(err)
		}
		return &body[PublishedDocument]{Body: doc}, nil
	})

	// The document body is html, not JSON, so it bypasses huma.
	s.router.Put(s.basePath+"/dvr/{id}/document", s.saveDocument)
}

func (s *server) publishDocument(ctx context.Context, id int64) (PublishedDocument, error) {
	if s.storageDir == "" {
		return PublishedDocument{}, fmt.Errorf("document storage: %w", repo.ErrNotSupported)
	}
	d, err := s.repos.DVRs.Get(ctx, id)
	if err != nil {
		return PublishedDocument{}, err
	}
	html, err := s.repos.DVRs.GetDocument(ctx, id)
	if err != nil {
		return PublishedDocument{}, err
	}
	name := fmt.Sprintf("dvr-%d-%s.html", id, uuid.NewString())
	page := fmt.Sprintf("<!doctype html>\n<html><head><meta charset=\"utf-8\"><title>%s</title></head><body>\n%s\n</body></html>\n",
		documentPolicy.Sanitize(d.Nome), SanitizeDocument(html))
	if err := os.WriteFile(filepath.Join(s.storageDir, name), []byte(page), 0o644); err != nil {
		return PublishedDocument{}, err
	}
	s.logger.Info("document published", zap.Int64("dvr_id", id), zap.String("file", name))
	return PublishedDocument{URL: "/storage/" + name, FileName: name}, nil
}

func (s *server) saveDocument(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		respondStatusError(w, newAPIError(http.StatusBadRequest, "bad_request", "invalid id", nil))
		return
	}
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		respondStatusError(w, newAPIError(http.StatusBadRequest, "bad_request", "unreadable body", nil))
		return
	}
	if err := s.repos.DVRs.SaveDocument(r.Context(), id, SanitizeDocument(string(raw))); err != nil {
		respondStatusError(w, s.handleError(err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) deadlineExport(ctx context.Context) (*download, error) {
	var (
		deadlines []domain.Deadline
		companies []domain.Company
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		deadlines, err = s.repos.Deadlines.List(gctx, repo.DeadlineFilter{})
		return err
	})
	g.Go(func() error {
		var err error
		companies, err = s.repos.Companies.List(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, s.handleError(err)
	}
	wb, err := export.DeadlineWorkbook(deadlines, companies)
	if err != nil {
		return nil, s.handleError(err)
	}
	defer wb.Close()
	buf, err := wb.WriteToBuffer()
	if err != nil {
		return nil, s.handleError(err)
	}
	return &download{
		ContentType:        xlsxType,
		ContentDisposition: `attachment; filename="scadenze.xlsx"`,
		Body:               buf.Bytes(),
	}, nil
}

func (s *server) elaborationExport(ctx context.Context, id int64) (*download, error) {
	e, err := s.repos.Elaborations.Get(ctx, id)
	if err != nil {
		return nil, s.handleError(err)
	}
	uploads, err := s.repos.Elaborations.ListUploads(ctx, id)
	if err != nil {
		return nil, s.handleError(err)
	}
	wb, err := export.ElaborationWorkbook(e, uploads)
	if err != nil {
		return nil, s.handleError(err)
	}
	defer wb.Close()
	buf, err := wb.WriteToBuffer()
	if err != nil {
		return nil, s.handleError(err)
	}
	return &download{
		ContentType:        xlsxType,
		ContentDisposition: fmt.Sprintf(`attachment; filename="elaborazione-%d.xlsx"`, id),
		Body:               buf.Bytes(),
	}, nil
}

// readUploads parses a multipart request and returns the "files" parts,
// each checked for type and size. The body is capped before parsing.
func (s *server) readUploads(w http.ResponseWriter, r *http.Request) ([]repo.UploadFile, error) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload)
	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, tooLarge
		}
		return nil, repo.ValidationError{Field: "files", Message: "multipart non valido"}
	}
	headers := r.MultipartForm.File["files"]
	if len(headers) == 0 {
		return nil, repo.Required("files")
	}
	out := make([]repo.UploadFile, 0, len(headers))
	for _, h := range headers {
		if err := extract.ValidateUpload(h.Filename, h.Size); err != nil {
			return nil, repo.ValidationError{Field: "files", Message: err.Error()}
		}
		f, err := h.Open()
		if err != nil {
			return nil, err
		}
		data, err := io.ReadAll(f)
		_ = f.Close()
		if err != nil {
			return nil, err
		}
		out = append(out, repo.UploadFile{FileName: h.Filename, Data: data})
	}
	return out, nil
}

func (s *server) uploadDVRFiles(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		respondStatusError(w, newAPIError(http.StatusBadRequest, "bad_request", "invalid id", nil))
		return
	}
	files, err := s.readUploads(w, r)
	if err != nil {
		respondStatusError(w, s.handleError(err))
		return
	}
	created, err := s.repos.DVRs.UploadFiles(r.Context(), id, files)
	if err != nil {
		respondStatusError(w, s.handleError(err))
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *server) uploadElaborationFiles(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		respondStatusError(w, newAPIError(http.StatusBadRequest, "bad_request", "invalid id", nil))
		return
	}
	files, err := s.readUploads(w, r)
	if err != nil {
		respondStatusError(w, s.handleError(err))
		return
	}
	up, err := s.repos.Elaborations.CreateUpload(r.Context(), id, repo.UploadInput{
		Mansione: strings.TrimSpace(r.FormValue("mansione")),
		Reparto:  strings.TrimSpace(r.FormValue("reparto")),
		Ruolo:    strings.TrimSpace(r.FormValue("ruolo")),
		Files:    files,
	})
	if err != nil {
		respondStatusError(w, s.handleError(err))
		return
	}
	writeJSON(w, http.StatusCreated, up)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
