package httprepo

import (
	"context"

	"hseb5/internal/domain"
	"hseb5/internal/repo"
	hsesdk "hseb5/sdk/go"
)

type Elaborations struct{ C *hsesdk.Client }

func (r Elaborations) List(ctx context.Context) ([]domain.Elaboration, error) {
	return get[[]domain.Elaboration](ctx, r.C, "/elaborations")
}

func (r Elaborations) Get(ctx context.Context, id int64) (domain.Elaboration, error) {
	return get[domain.Elaboration](ctx, r.C, path("elaborations", id))
}

func (r Elaborations) Create(ctx context.Context, e domain.Elaboration) (domain.Elaboration, error) {
	return send[domain.Elaboration](ctx, r.C, "POST", "/elaborations", e)
}

func (r Elaborations) Update(ctx context.Context, id int64, e domain.Elaboration) (domain.Elaboration, error) {
	return send[domain.Elaboration](ctx, r.C, "PUT", path("elaborations", id), e)
}

func (r Elaborations) Delete(ctx context.Context, id int64) error {
	return del(ctx, r.C, path("elaborations", id))
}

func (r Elaborations) ListUploads(ctx context.Context, id int64) ([]domain.ElaborationUpload, error) {
	return get[[]domain.ElaborationUpload](ctx, r.C, path("elaborations", id, "uploads"))
}

// CreateUpload sends the sheets as multipart "files" with the job position
// as plain form fields.
func (r Elaborations) CreateUpload(ctx context.Context, id int64, in repo.UploadInput) (domain.ElaborationUpload, error) {
	var out domain.ElaborationUpload
	fields := map[string]string{"mansione": in.Mansione, "reparto": in.Reparto, "ruolo": in.Ruolo}
	err := r.C.Upload(ctx, path("elaborations", id, "uploads"), uploads(in.Files), fields, &out)
	return out, mapErr(err)
}

func (r Elaborations) DeleteUpload(ctx context.Context, id, uploadID int64) error {
	return del(ctx, r.C, path("elaborations", id, "uploads", uploadID))
}

func (r Elaborations) Generate(ctx context.Context, id int64) (domain.Elaboration, error) {
	return send[domain.Elaboration](ctx, r.C, "POST", path("elaborations", id, "generate"), nil)
}
