package memory

import (
	"context"
	"path/filepath"
	"slices"
	"strings"

	"hseb5/internal/domain"
	"hseb5/internal/repo"
)

type Elaborations struct{ s *Store }

func cloneUpload(u domain.ElaborationUpload) domain.ElaborationUpload {
	files := make([]domain.ElaborationFile, len(u.Files))
	for i, f := range u.Files {
		files[i] = f
		files[i].Rows = slices.Clone(f.Rows)
	}
	u.Files = files
	return u
}

func (s *Store) elaborationIndex(id int64) int {
	return indexOf(s.elaborations, func(e domain.Elaboration) bool { return e.ID == id })
}

// List hides soft-deleted elaborations.
func (r Elaborations) List(ctx context.Context) ([]domain.Elaboration, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := []domain.Elaboration{}
	for _, e := range r.s.elaborations {
		if e.DeletedAt != nil {
			continue
		}
		out = append(out, r.present(e))
	}
	return out, nil
}

func (r Elaborations) Get(ctx context.Context, id int64) (domain.Elaboration, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	i := r.s.elaborationIndex(id)
	if i < 0 {
		return domain.Elaboration{}, repo.NotFound("elaboration", id)
	}
	return r.present(r.s.elaborations[i]), nil
}

func (r Elaborations) present(e domain.Elaboration) domain.Elaboration {
	if name := r.s.companyName(e.CompanyID); name != "" {
		e.CompanyName = name
	}
	return e
}

func (r Elaborations) Create(ctx context.Context, e domain.Elaboration) (domain.Elaboration, error) {
	if blank(e.Title) {
		return domain.Elaboration{}, repo.Required("title")
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	now := r.s.stamp()
	e.ID = r.s.nextID("elaboration")
	e.Title = strings.TrimSpace(e.Title)
	e.Status = domain.ElaborationBozza
	e.UploadsCount, e.FilesCount = 0, 0
	e.BeginAt, e.EndAt, e.DeletedAt = nil, nil, nil
	e.CreatedAt, e.UpdatedAt = now, now
	r.s.elaborations = append(r.s.elaborations, e)
	return r.present(e), nil
}

func (r Elaborations) Update(ctx context.Context, id int64, e domain.Elaboration) (domain.Elaboration, error) {
	if blank(e.Title) {
		return domain.Elaboration{}, repo.Required("title")
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	i := r.s.elaborationIndex(id)
	if i < 0 || r.s.elaborations[i].DeletedAt != nil {
		return domain.Elaboration{}, repo.NotFound("elaboration", id)
	}
	cur := r.s.elaborations[i]
	cur.Title = strings.TrimSpace(e.Title)
	cur.CompanyID = e.CompanyID
	if e.Status != "" {
		cur.Status = e.Status
	}
	cur.UpdatedAt = r.s.stamp()
	r.s.elaborations[i] = cur
	return r.present(cur), nil
}

func (r Elaborations) Delete(ctx context.Context, id int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	i := r.s.elaborationIndex(id)
	if i < 0 || r.s.elaborations[i].DeletedAt != nil {
		return repo.NotFound("elaboration", id)
	}
	now := r.s.stamp()
	r.s.elaborations[i].DeletedAt = &now
	r.s.elaborations[i].UpdatedAt = now
	return nil
}

func (r Elaborations) ListUploads(ctx context.Context, id int64) ([]domain.ElaborationUpload, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.elaborationIndex(id) < 0 {
		return nil, repo.NotFound("elaboration", id)
	}
	out := []domain.ElaborationUpload{}
	for _, u := range r.s.uploads {
		if u.ElaborationID == id {
			out = append(out, cloneUpload(u))
		}
	}
	return out, nil
}

// CreateUpload records a batch of sheets and bumps the parent counters. A
// draft elaboration becomes pending once it has something to process.
func (r Elaborations) CreateUpload(ctx context.Context, id int64, in repo.UploadInput) (domain.ElaborationUpload, error) {
	if len(in.Files) == 0 {
		return domain.ElaborationUpload{}, repo.Required("files")
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	i := r.s.elaborationIndex(id)
	if i < 0 || r.s.elaborations[i].DeletedAt != nil {
		return domain.ElaborationUpload{}, repo.NotFound("elaboration", id)
	}
	now := r.s.stamp()
	u := domain.ElaborationUpload{
		ID:            r.s.nextID("elaboration_upload"),
		ElaborationID: id,
		Mansione:      strings.TrimSpace(in.Mansione),
		Reparto:       strings.TrimSpace(in.Reparto),
		Ruolo:         strings.TrimSpace(in.Ruolo),
		Status:        domain.ElaborationPending,
		CreatedAt:     now,
	}
	for _, f := range in.Files {
		u.Files = append(u.Files, domain.ElaborationFile{
			ID:        r.s.nextID("elaboration_file"),
			UploadID:  u.ID,
			FileName:  f.FileName,
			Size:      int64(len(f.Data)),
			Status:    domain.ElaborationPending,
			CreatedAt: now,
		})
	}
	r.s.uploads = append(r.s.uploads, u)

	e := &r.s.elaborations[i]
	e.UploadsCount++
	e.FilesCount += len(u.Files)
	if e.Status == domain.ElaborationBozza {
		e.Status = domain.ElaborationPending
	}
	e.UpdatedAt = now
	return cloneUpload(u), nil
}

func (r Elaborations) DeleteUpload(ctx context.Context, id, uploadID int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	i := r.s.elaborationIndex(id)
	if i < 0 {
		return repo.NotFound("elaboration", id)
	}
	j := indexOf(r.s.uploads, func(u domain.ElaborationUpload) bool { return u.ID == uploadID && u.ElaborationID == id })
	if j < 0 {
		return repo.NotFound("elaboration upload", uploadID)
	}
	removed := r.s.uploads[j]
	r.s.uploads = append(r.s.uploads[:j], r.s.uploads[j+1:]...)

	e := &r.s.elaborations[i]
	e.UploadsCount = max(0, e.UploadsCount-1)
	e.FilesCount = max(0, e.FilesCount-len(removed.Files))
	e.UpdatedAt = r.s.stamp()
	return nil
}

// Generate runs the extraction for every uploaded sheet. The elaboration
// passes through elaborating and ends completed with begin/end timestamps.
func (r Elaborations) Generate(ctx context.Context, id int64) (domain.Elaboration, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	i := r.s.elaborationIndex(id)
	if i < 0 || r.s.elaborations[i].DeletedAt != nil {
		return domain.Elaboration{}, repo.NotFound("elaboration", id)
	}
	e := &r.s.elaborations[i]
	if e.UploadsCount == 0 {
		return domain.Elaboration{}, repo.ValidationError{Field: "uploads", Message: "nessun file da elaborare"}
	}
	begin := r.s.stamp()
	e.Status = domain.ElaborationElaborating
	e.BeginAt = &begin
	e.EndAt = nil
	e.ErrorMessage = ""

	for k := range r.s.uploads {
		u := &r.s.uploads[k]
		if u.ElaborationID != id {
			continue
		}
		for f := range u.Files {
			file := &u.Files[f]
			file.Rows = []map[string]string{sheetRow(*u, file.FileName)}
			file.Status = domain.ElaborationCompleted
		}
		u.Status = domain.ElaborationCompleted
	}

	end := r.s.stamp()
	e.Status = domain.ElaborationCompleted
	e.EndAt = &end
	e.UpdatedAt = end
	return r.present(*e), nil
}

// sheetRow is the tabular summary of one safety data sheet.
func sheetRow(u domain.ElaborationUpload, fileName string) map[string]string {
	product := strings.TrimSuffix(filepath.Base(fileName), filepath.Ext(fileName))
	return map[string]string{
		"prodotto": product,
		"mansione": u.Mansione,
		"reparto":  u.Reparto,
		"ruolo":    u.Ruolo,
		"file":     fileName,
	}
}
