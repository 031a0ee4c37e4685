package httprepo

import (
	"context"

	"hseb5/internal/domain"
	"hseb5/internal/repo"
	hsesdk "hseb5/sdk/go"
)

// DVRs converts between the backend record and the DVR on every call.
type DVRs struct{ C *hsesdk.Client }

func (r DVRs) List(ctx context.Context) ([]domain.DVR, error) {
	recs, err := get[[]domain.DVRRecord](ctx, r.C, "/dvr")
	if err != nil {
		return nil, err
	}
	out := make([]domain.DVR, len(recs))
	for i, rec := range recs {
		out[i] = rec.DVR()
	}
	return out, nil
}

func (r DVRs) Get(ctx context.Context, id int64) (domain.DVR, error) {
	rec, err := get[domain.DVRRecord](ctx, r.C, path("dvr", id))
	return rec.DVR(), err
}

func (r DVRs) Create(ctx context.Context, d domain.DVR) (domain.DVR, error) {
	rec, err := send[domain.DVRRecord](ctx, r.C, "POST", "/dvr", d.Record())
	if err != nil {
		return domain.DVR{}, err
	}
	return rec.DVR(), nil
}

func (r DVRs) Update(ctx context.Context, id int64, d domain.DVR) (domain.DVR, error) {
	rec, err := send[domain.DVRRecord](ctx, r.C, "PUT", path("dvr", id), d.Record())
	if err != nil {
		return domain.DVR{}, err
	}
	return rec.DVR(), nil
}

func (r DVRs) Delete(ctx context.Context, id int64) error {
	return del(ctx, r.C, path("dvr", id))
}

// CreateWithFiles posts the DVR and then uploads the files. When the upload
// fails the created DVR is returned with a PartialCreateError.
func (r DVRs) CreateWithFiles(ctx context.Context, in repo.CreateDVRInput) (domain.DVR, error) {
	d, err := r.Create(ctx, domain.DVR{Nome: in.Title, Descrizione: in.Description, CompanyID: in.CompanyID, Stato: domain.DVRBozza})
	if err != nil {
		return domain.DVR{}, err
	}
	if len(in.Files) == 0 {
		return d, nil
	}
	if _, err := r.UploadFiles(ctx, d.ID, in.Files); err != nil {
		return d, &repo.PartialCreateError{DVRID: d.ID, Err: err}
	}
	return r.Get(ctx, d.ID)
}

func (r DVRs) ListFiles(ctx context.Context, id int64) ([]domain.FileMetadata, error) {
	return get[[]domain.FileMetadata](ctx, r.C, path("dvr", id, "files"))
}

func (r DVRs) UploadFiles(ctx context.Context, id int64, files []repo.UploadFile) ([]domain.FileMetadata, error) {
	var out []domain.FileMetadata
	err := r.C.Upload(ctx, path("dvr", id, "files"), uploads(files), nil, &out)
	return out, mapErr(err)
}

func (r DVRs) UpdateFile(ctx context.Context, id, fileID int64, p domain.FileMetadataPatch) (domain.FileMetadata, error) {
	return send[domain.FileMetadata](ctx, r.C, "PATCH", path("dvr", id, "files", fileID), p)
}

type revisionRequest struct {
	Note string `json:"note,omitempty"`
}

func (r DVRs) SaveRevision(ctx context.Context, id int64, note string) (domain.DVRVersion, error) {
	return send[domain.DVRVersion](ctx, r.C, "POST", path("dvr", id, "revisions"), revisionRequest{Note: note})
}

func (r DVRs) Revisions(ctx context.Context, id int64) ([]domain.DVRVersion, error) {
	return get[[]domain.DVRVersion](ctx, r.C, path("dvr", id, "revisions"))
}

func (r DVRs) RevertToRevision(ctx context.Context, id, versionID int64) (domain.DVR, error) {
	rec, err := send[domain.DVRRecord](ctx, r.C, "POST", path("dvr", id, "revisions", versionID, "revert"), nil)
	if err != nil {
		return domain.DVR{}, err
	}
	return rec.DVR(), nil
}

func (r DVRs) GetDocument(ctx context.Context, id int64) (string, error) {
	body, err := r.C.GetRaw(ctx, path("dvr", id, "document"), "text/html")
	return string(body), mapErr(err)
}

func (r DVRs) SaveDocument(ctx context.Context, id int64, html string) error {
	return mapErr(r.C.PutRaw(ctx, path("dvr", id, "document"), "text/html", []byte(html), nil))
}
