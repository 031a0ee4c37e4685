package memory

import (
	"context"
	"maps"
	"slices"
	"strings"

	"hseb5/internal/domain"
	"hseb5/internal/export"
	"hseb5/internal/repo"
)

// PlaceholderRisk is attached to files that have not been classified yet.
var PlaceholderRisk = domain.FileRisk{ID: 0, Name: "Da classificare"}

type DVRs struct{ s *Store }

func cloneFiles(files []domain.FileMetadata) []domain.FileMetadata {
	out := make([]domain.FileMetadata, len(files))
	for i, f := range files {
		out[i] = f
		if f.ExtractionData != nil {
			out[i].ExtractionData = maps.Clone(f.ExtractionData)
		}
	}
	return out
}

func (s *Store) presentDVR(d domain.DVR) domain.DVR {
	d.Files = cloneFiles(d.Files)
	d.Company = nil
	if d.CompanyID != nil {
		if i := indexOf(s.companies, func(c domain.Company) bool { return c.ID == *d.CompanyID }); i >= 0 {
			c := cloneCompany(s.companies[i])
			d.Company = &c
		}
	}
	return d
}

func (s *Store) dvrIndex(id int64) int {
	return indexOf(s.dvrs, func(d domain.DVR) bool { return d.ID == id })
}

func (r DVRs) List(ctx context.Context) ([]domain.DVR, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]domain.DVR, 0, len(r.s.dvrs))
	for _, d := range r.s.dvrs {
		out = append(out, r.s.presentDVR(d))
	}
	return out, nil
}

func (r DVRs) Get(ctx context.Context, id int64) (domain.DVR, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	i := r.s.dvrIndex(id)
	if i < 0 {
		return domain.DVR{}, repo.NotFound("dvr", id)
	}
	return r.s.presentDVR(r.s.dvrs[i]), nil
}

func checkDVR(d *domain.DVR) error {
	if blank(d.Nome) {
		return repo.Required("nome")
	}
	d.Nome = strings.TrimSpace(d.Nome)
	if d.Stato == "" {
		d.Stato = domain.DVRBozza
	}
	if _, err := domain.ParseDVRStatus(string(d.Stato)); err != nil {
		return repo.ValidationError{Field: "stato", Message: err.Error()}
	}
	return nil
}

func (r DVRs) Create(ctx context.Context, d domain.DVR) (domain.DVR, error) {
	if err := checkDVR(&d); err != nil {
		return domain.DVR{}, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.s.presentDVR(r.s.insertDVR(d, nil)), nil
}

func (s *Store) insertDVR(d domain.DVR, files []repo.UploadFile) domain.DVR {
	now := s.stamp()
	d.ID = s.nextID("dvr")
	d.CreatedAt, d.UpdatedAt = now, now
	d.Files = []domain.FileMetadata{}
	for _, f := range files {
		d.Files = append(d.Files, s.newFile(d.ID, f.FileName, now))
	}
	s.dvrs = append(s.dvrs, d)
	return d
}

func (s *Store) newFile(dvrID int64, name, now string) domain.FileMetadata {
	return domain.FileMetadata{
		ID:        s.nextID("dvr_file"),
		DVRID:     dvrID,
		FileName:  name,
		Include:   true,
		Risk:      PlaceholderRisk,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Update changes the descriptive fields and status; files and the revision
// counter are managed by their own operations.
func (r DVRs) Update(ctx context.Context, id int64, d domain.DVR) (domain.DVR, error) {
	if err := checkDVR(&d); err != nil {
		return domain.DVR{}, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	i := r.s.dvrIndex(id)
	if i < 0 {
		return domain.DVR{}, repo.NotFound("dvr", id)
	}
	cur := r.s.dvrs[i]
	cur.Nome = d.Nome
	cur.Descrizione = d.Descrizione
	cur.Stato = d.Stato
	cur.CompanyID = d.CompanyID
	cur.UpdatedBy = d.UpdatedBy
	cur.UpdatedAt = r.s.stamp()
	r.s.dvrs[i] = cur
	return r.s.presentDVR(cur), nil
}

func (r DVRs) Delete(ctx context.Context, id int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	i := r.s.dvrIndex(id)
	if i < 0 {
		return repo.NotFound("dvr", id)
	}
	r.s.dvrs = append(r.s.dvrs[:i], r.s.dvrs[i+1:]...)
	delete(r.s.documents, id)
	return nil
}

// CreateWithFiles creates the DVR and one unclassified file record per file.
func (r DVRs) CreateWithFiles(ctx context.Context, in repo.CreateDVRInput) (domain.DVR, error) {
	d := domain.DVR{Nome: in.Title, Descrizione: in.Description, CompanyID: in.CompanyID}
	if err := checkDVR(&d); err != nil {
		return domain.DVR{}, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.s.presentDVR(r.s.insertDVR(d, in.Files)), nil
}

func (r DVRs) ListFiles(ctx context.Context, id int64) ([]domain.FileMetadata, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	i := r.s.dvrIndex(id)
	if i < 0 {
		return nil, repo.NotFound("dvr", id)
	}
	return cloneFiles(r.s.dvrs[i].Files), nil
}

func (r DVRs) UploadFiles(ctx context.Context, id int64, files []repo.UploadFile) ([]domain.FileMetadata, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	i := r.s.dvrIndex(id)
	if i < 0 {
		return nil, repo.NotFound("dvr", id)
	}
	now := r.s.stamp()
	var added []domain.FileMetadata
	for _, f := range files {
		fm := r.s.newFile(id, f.FileName, now)
		r.s.dvrs[i].Files = append(r.s.dvrs[i].Files, fm)
		added = append(added, fm)
	}
	r.s.dvrs[i].UpdatedAt = now
	return cloneFiles(added), nil
}

func (r DVRs) UpdateFile(ctx context.Context, id, fileID int64, p domain.FileMetadataPatch) (domain.FileMetadata, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	i := r.s.dvrIndex(id)
	if i < 0 {
		return domain.FileMetadata{}, repo.NotFound("dvr", id)
	}
	files := r.s.dvrs[i].Files
	j := indexOf(files, func(f domain.FileMetadata) bool { return f.ID == fileID })
	if j < 0 {
		return domain.FileMetadata{}, repo.NotFound("dvr file", fileID)
	}
	f := files[j]
	if p.Include != nil {
		f.Include = *p.Include
	}
	if p.Notes != nil {
		f.Notes = *p.Notes
	}
	if p.ClassificationResult != nil {
		f.ClassificationResult = *p.ClassificationResult
	}
	if p.ExtractionData != nil {
		f.ExtractionData = maps.Clone(p.ExtractionData)
	}
	if p.RiskID != nil {
		rid := *p.RiskID
		name, ok := r.s.riskName(rid)
		if !ok {
			return domain.FileMetadata{}, repo.ValidationError{Field: "risk_id", Message: "rischio inesistente"}
		}
		f.RiskID = &rid
		f.Risk = domain.FileRisk{ID: rid, Name: name}
	}
	f.UpdatedAt = r.s.stamp()
	files[j] = f
	r.s.dvrs[i].UpdatedAt = f.UpdatedAt
	return cloneFiles([]domain.FileMetadata{f})[0], nil
}

// SaveRevision appends an immutable snapshot and bumps numero_revisione.
func (r DVRs) SaveRevision(ctx context.Context, id int64, note string) (domain.DVRVersion, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	i := r.s.dvrIndex(id)
	if i < 0 {
		return domain.DVRVersion{}, repo.NotFound("dvr", id)
	}
	d := r.s.dvrs[i]
	d.NumeroRevisione++
	d.UpdatedAt = r.s.stamp()
	r.s.dvrs[i] = d
	v := domain.DVRVersion{
		ID:          r.s.nextID("dvr_version"),
		DVRID:       id,
		Version:     d.NumeroRevisione,
		Nome:        d.Nome,
		Descrizione: d.Descrizione,
		Stato:       d.Stato,
		Files:       cloneFiles(d.Files),
		Note:        note,
		CreatedBy:   d.UpdatedBy,
		CreatedAt:   d.UpdatedAt,
	}
	r.s.dvrVersions = append(r.s.dvrVersions, v)
	v.Files = cloneFiles(v.Files)
	return v, nil
}

func (r DVRs) Revisions(ctx context.Context, id int64) ([]domain.DVRVersion, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.dvrIndex(id) < 0 {
		return nil, repo.NotFound("dvr", id)
	}
	out := []domain.DVRVersion{}
	for _, v := range r.s.dvrVersions {
		if v.DVRID == id {
			v.Files = cloneFiles(v.Files)
			out = append(out, v)
		}
	}
	slices.Reverse(out)
	return out, nil
}

// RevertToRevision restores the snapshot content; the revision counter is
// left alone so the next saved revision still gets a fresh number.
func (r DVRs) RevertToRevision(ctx context.Context, id, versionID int64) (domain.DVR, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	i := r.s.dvrIndex(id)
	if i < 0 {
		return domain.DVR{}, repo.NotFound("dvr", id)
	}
	j := indexOf(r.s.dvrVersions, func(v domain.DVRVersion) bool { return v.ID == versionID && v.DVRID == id })
	if j < 0 {
		return domain.DVR{}, repo.NotFound("dvr revision", versionID)
	}
	v := r.s.dvrVersions[j]
	d := r.s.dvrs[i]
	d.Nome = v.Nome
	d.Descrizione = v.Descrizione
	d.Stato = v.Stato
	d.Files = cloneFiles(v.Files)
	d.UpdatedAt = r.s.stamp()
	r.s.dvrs[i] = d
	return r.s.presentDVR(d), nil
}

// GetDocument returns the saved html body, or a rendered draft when none was
// saved yet.
func (r DVRs) GetDocument(ctx context.Context, id int64) (string, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	i := r.s.dvrIndex(id)
	if i < 0 {
		return "", repo.NotFound("dvr", id)
	}
	if html, ok := r.s.documents[id]; ok {
		return html, nil
	}
	return export.DVRDocument(r.s.presentDVR(r.s.dvrs[i]))
}

func (r DVRs) SaveDocument(ctx context.Context, id int64, html string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	i := r.s.dvrIndex(id)
	if i < 0 {
		return repo.NotFound("dvr", id)
	}
	r.s.documents[id] = html
	r.s.dvrs[i].UpdatedAt = r.s.stamp()
	return nil
}
