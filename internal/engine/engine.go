// Package engine is the domain facade used by the CLI and the wizard. Every
// operation runs against the live repositories and falls back to the demo
// data set according to the fallback policy.
package engine

import (
	"context"
	"errors"
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"hseb5/internal/domain"
	"hseb5/internal/fallback"
	"hseb5/internal/prompt"
	"hseb5/internal/repo"
)

type Engine struct {
	// Live is nil when no backend is configured; every call then uses Mock.
	Live   *repo.Repositories
	Mock   repo.Repositories
	Policy fallback.Policy
	Logger *zap.Logger
	Now    func() time.Time

	validate *validator.Validate
}

func New(live *repo.Repositories, mock repo.Repositories, policy fallback.Policy, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if policy.Logger == nil {
		policy.Logger = logger
	}
	if policy.Permanent == nil {
		policy.Permanent = Permanent
	}
	return &Engine{
		Live:     live,
		Mock:     mock,
		Policy:   policy,
		Logger:   logger.With(zap.String("component", "engine")),
		Now:      time.Now,
		validate: newValidator(),
	}
}

func (e *Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

// Permanent reports a DVR that the backend created before a file upload
// failed. It is returned to the caller so no second DVR appears in the demo
// data. Every other live error degrades.
func Permanent(err error) bool {
	var partial *repo.PartialCreateError
	return errors.As(err, &partial)
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// check validates v and returns the first failure as a repo.ValidationError.
func (e *Engine) check(v any) error {
	if e.validate == nil {
		e.validate = newValidator()
	}
	err := e.validate.Struct(v)
	var fields validator.ValidationErrors
	if !errors.As(err, &fields) || len(fields) == 0 {
		return err
	}
	fe := fields[0]
	msg := "non valido"
	switch fe.Tag() {
	case "required":
		msg = "obbligatorio"
	case "email":
		msg = "email non valida"
	case "max":
		msg = "troppo lungo (max " + fe.Param() + ")"
	case "min":
		msg = "troppo corto (min " + fe.Param() + ")"
	case "oneof":
		msg = "valore non ammesso"
	}
	return repo.ValidationError{Field: fe.Field(), Message: msg}
}

func do[T any](ctx context.Context, e *Engine, entity, op string, call func(context.Context, repo.Repositories) (T, error)) (fallback.Result[T], error) {
	var live func(context.Context) (T, error)
	if e.Live != nil {
		r := *e.Live
		live = func(ctx context.Context) (T, error) { return call(ctx, r) }
	}
	mock := func(ctx context.Context) (T, error) { return call(ctx, e.Mock) }
	return fallback.Do(ctx, e.Policy, entity, op, live, mock)
}

func exec(ctx context.Context, e *Engine, entity, op string, call func(context.Context, repo.Repositories) error) (fallback.Result[struct{}], error) {
	return do(ctx, e, entity, op, func(ctx context.Context, r repo.Repositories) (struct{}, error) {
		return struct{}{}, call(ctx, r)
	})
}

func trimAll(ss ...*string) {
	for _, s := range ss {
		*s = strings.TrimSpace(*s)
	}
}

// Companies

func (e *Engine) ListCompanies(ctx context.Context) (fallback.Result[[]domain.Company], error) {
	return do(ctx, e, "company", "list", func(ctx context.Context, r repo.Repositories) ([]domain.Company, error) {
		return r.Companies.List(ctx)
	})
}

func (e *Engine) GetCompany(ctx context.Context, id int64) (fallback.Result[domain.Company], error) {
	return do(ctx, e, "company", "get", func(ctx context.Context, r repo.Repositories) (domain.Company, error) {
		return r.Companies.Get(ctx, id)
	})
}

func (e *Engine) CreateCompany(ctx context.Context, c domain.Company) (fallback.Result[domain.Company], error) {
	trimAll(&c.Name, &c.Email, &c.PEC)
	if err := e.check(c); err != nil {
		return fallback.Result[domain.Company]{}, err
	}
	return do(ctx, e, "company", "create", func(ctx context.Context, r repo.Repositories) (domain.Company, error) {
		return r.Companies.Create(ctx, c)
	})
}

func (e *Engine) UpdateCompany(ctx context.Context, id int64, c domain.Company) (fallback.Result[domain.Company], error) {
	trimAll(&c.Name, &c.Email, &c.PEC)
	if err := e.check(c); err != nil {
		return fallback.Result[domain.Company]{}, err
	}
	return do(ctx, e, "company", "update", func(ctx context.Context, r repo.Repositories) (domain.Company, error) {
		return r.Companies.Update(ctx, id, c)
	})
}

func (e *Engine) DeleteCompany(ctx context.Context, id int64) (fallback.Result[struct{}], error) {
	return exec(ctx, e, "company", "delete", func(ctx context.Context, r repo.Repositories) error {
		return r.Companies.Delete(ctx, id)
	})
}

// Deadlines

func (e *Engine) ListDeadlines(ctx context.Context, f repo.DeadlineFilter) (fallback.Result[[]domain.Deadline], error) {
	return do(ctx, e, "deadline", "list", func(ctx context.Context, r repo.Repositories) ([]domain.Deadline, error) {
		return r.Deadlines.List(ctx, f)
	})
}

func (e *Engine) GetDeadline(ctx context.Context, id int64) (fallback.Result[domain.Deadline], error) {
	return do(ctx, e, "deadline", "get", func(ctx context.Context, r repo.Repositories) (domain.Deadline, error) {
		return r.Deadlines.Get(ctx, id)
	})
}

func (e *Engine) checkDeadline(d *domain.Deadline) error {
	trimAll(&d.Title, &d.LastVisitDate, &d.NextVisitDate)
	if err := e.check(*d); err != nil {
		return err
	}
	if d.NextVisitInterval == "" {
		return nil
	}
	iv, err := domain.ParseInterval(string(d.NextVisitInterval))
	if err != nil {
		return repo.ValidationError{Field: "next_visit_interval", Message: err.Error()}
	}
	d.NextVisitInterval = iv
	return nil
}

func (e *Engine) CreateDeadline(ctx context.Context, d domain.Deadline) (fallback.Result[domain.Deadline], error) {
	if err := e.checkDeadline(&d); err != nil {
		return fallback.Result[domain.Deadline]{}, err
	}
	return do(ctx, e, "deadline", "create", func(ctx context.Context, r repo.Repositories) (domain.Deadline, error) {
		return r.Deadlines.Create(ctx, d)
	})
}

func (e *Engine) UpdateDeadline(ctx context.Context, id int64, d domain.Deadline) (fallback.Result[domain.Deadline], error) {
	if err := e.checkDeadline(&d); err != nil {
		return fallback.Result[domain.Deadline]{}, err
	}
	return do(ctx, e, "deadline", "update", func(ctx context.Context, r repo.Repositories) (domain.Deadline, error) {
		return r.Deadlines.Update(ctx, id, d)
	})
}

func (e *Engine) DeleteDeadline(ctx context.Context, id int64) (fallback.Result[struct{}], error) {
	return exec(ctx, e, "deadline", "delete", func(ctx context.Context, r repo.Repositories) error {
		return r.Deadlines.Delete(ctx, id)
	})
}

func (e *Engine) CompleteDeadline(ctx context.Context, id int64) (fallback.Result[domain.Deadline], error) {
	return do(ctx, e, "deadline", "complete", func(ctx context.Context, r repo.Repositories) (domain.Deadline, error) {
		return r.Deadlines.MarkCompleted(ctx, id)
	})
}

// Risks

func (e *Engine) ListRisks(ctx context.Context) (fallback.Result[[]domain.RiskType], error) {
	return do(ctx, e, "risk", "list", func(ctx context.Context, r repo.Repositories) ([]domain.RiskType, error) {
		return r.Risks.List(ctx)
	})
}

func (e *Engine) GetRisk(ctx context.Context, id int64) (fallback.Result[domain.RiskType], error) {
	return do(ctx, e, "risk", "get", func(ctx context.Context, r repo.Repositories) (domain.RiskType, error) {
		return r.Risks.Get(ctx, id)
	})
}

func (e *Engine) checkRisk(rt *domain.RiskType) error {
	trimAll(&rt.Name, &rt.AIPrompt)
	if err := e.check(*rt); err != nil {
		return err
	}
	if rt.Status != "" {
		st, err := domain.ParseRiskStatus(string(rt.Status))
		if err != nil {
			return repo.ValidationError{Field: "status", Message: err.Error()}
		}
		rt.Status = st
	}
	return nil
}

func (e *Engine) CreateRisk(ctx context.Context, rt domain.RiskType) (fallback.Result[domain.RiskType], error) {
	if err := e.checkRisk(&rt); err != nil {
		return fallback.Result[domain.RiskType]{}, err
	}
	return do(ctx, e, "risk", "create", func(ctx context.Context, r repo.Repositories) (domain.RiskType, error) {
		return r.Risks.Create(ctx, rt)
	})
}

func (e *Engine) UpdateRisk(ctx context.Context, id int64, rt domain.RiskType) (fallback.Result[domain.RiskType], error) {
	if err := e.checkRisk(&rt); err != nil {
		return fallback.Result[domain.RiskType]{}, err
	}
	return do(ctx, e, "risk", "update", func(ctx context.Context, r repo.Repositories) (domain.RiskType, error) {
		return r.Risks.Update(ctx, id, rt)
	})
}

func (e *Engine) DeleteRisk(ctx context.Context, id int64) (fallback.Result[struct{}], error) {
	return exec(ctx, e, "risk", "delete", func(ctx context.Context, r repo.Repositories) error {
		return r.Risks.Delete(ctx, id)
	})
}

func (e *Engine) RiskVersions(ctx context.Context, id int64) (fallback.Result[[]domain.RiskVersion], error) {
	return do(ctx, e, "risk", "versions", func(ctx context.Context, r repo.Repositories) ([]domain.RiskVersion, error) {
		return r.Risks.Versions(ctx, id)
	})
}

func (e *Engine) RevertRisk(ctx context.Context, id, versionID int64) (fallback.Result[domain.RiskType], error) {
	return do(ctx, e, "risk", "revert", func(ctx context.Context, r repo.Repositories) (domain.RiskType, error) {
		return r.Risks.RevertToVersion(ctx, id, versionID)
	})
}

// RiskPrompt returns the risk's own prompt, or one generated from its
// expectations and output structure when none is stored.
func (e *Engine) RiskPrompt(ctx context.Context, id int64) (fallback.Result[string], error) {
	res, err := e.GetRisk(ctx, id)
	if err != nil {
		return fallback.Result[string]{}, err
	}
	rt := res.Value
	p := rt.AIPrompt
	if strings.TrimSpace(p) == "" {
		p = prompt.Generate(rt.Name, rt.InputExpectations, rt.OutputStructure)
	}
	return fallback.Result[string]{Value: p, Source: res.Source, Reason: res.Reason}, nil
}

// DVRs

func (e *Engine) ListDVRs(ctx context.Context) (fallback.Result[[]domain.DVR], error) {
	return do(ctx, e, "dvr", "list", func(ctx context.Context, r repo.Repositories) ([]domain.DVR, error) {
		return r.DVRs.List(ctx)
	})
}

func (e *Engine) GetDVR(ctx context.Context, id int64) (fallback.Result[domain.DVR], error) {
	return do(ctx, e, "dvr", "get", func(ctx context.Context, r repo.Repositories) (domain.DVR, error) {
		return r.DVRs.Get(ctx, id)
	})
}

func (e *Engine) CreateDVR(ctx context.Context, d domain.DVR) (fallback.Result[domain.DVR], error) {
	trimAll(&d.Nome, &d.Descrizione)
	if err := e.check(d); err != nil {
		return fallback.Result[domain.DVR]{}, err
	}
	if d.Stato == "" {
		d.Stato = domain.DVRBozza
	}
	return do(ctx, e, "dvr", "create", func(ctx context.Context, r repo.Repositories) (domain.DVR, error) {
		return r.DVRs.Create(ctx, d)
	})
}

// CreateInput carries the wizard's confirmed upload step.
type CreateInput struct {
	Title       string `json:"title" validate:"required,max=200"`
	Description string `json:"description" validate:"max=2000"`
	CompanyID   *int64 `json:"company_id"`
	Files       []repo.UploadFile
}

func (e *Engine) CreateDVRWithFiles(ctx context.Context, in CreateInput) (fallback.Result[domain.DVR], error) {
	trimAll(&in.Title, &in.Description)
	if err := e.check(in); err != nil {
		return fallback.Result[domain.DVR]{}, err
	}
	return do(ctx, e, "dvr", "create_with_files", func(ctx context.Context, r repo.Repositories) (domain.DVR, error) {
		return r.DVRs.CreateWithFiles(ctx, repo.CreateDVRInput{
			Title:       in.Title,
			Description: in.Description,
			CompanyID:   in.CompanyID,
			Files:       in.Files,
		})
	})
}

// DVRInfo is the editable header of a DVR.
type DVRInfo struct {
	Nome        string `json:"nome" validate:"required,max=200"`
	Descrizione string `json:"descrizione" validate:"max=2000"`
	Stato       string `json:"stato" validate:"required"`
}

// UpdateDVRInfo validates the info form, then reads and rewrites the DVR
// on the same repository set.
func (e *Engine) UpdateDVRInfo(ctx context.Context, id int64, info DVRInfo) (fallback.Result[domain.DVR], error) {
	trimAll(&info.Nome, &info.Descrizione, &info.Stato)
	if err := e.check(info); err != nil {
		return fallback.Result[domain.DVR]{}, err
	}
	st, err := domain.ParseDVRStatus(info.Stato)
	if err != nil {
		return fallback.Result[domain.DVR]{}, repo.ValidationError{Field: "stato", Message: err.Error()}
	}
	return do(ctx, e, "dvr", "update", func(ctx context.Context, r repo.Repositories) (domain.DVR, error) {
		d, err := r.DVRs.Get(ctx, id)
		if err != nil {
			return domain.DVR{}, err
		}
		d.Nome, d.Descrizione, d.Stato = info.Nome, info.Descrizione, st
		return r.DVRs.Update(ctx, id, d)
	})
}

// SetDVRStatus changes only the status. Input is parsed leniently, so
// "in lavorazione" and "IN_LAVORAZIONE" are the same.
func (e *Engine) SetDVRStatus(ctx context.Context, id int64, status string) (fallback.Result[domain.DVR], error) {
	st, err := domain.ParseDVRStatus(strings.ReplaceAll(strings.TrimSpace(status), " ", "_"))
	if err != nil {
		return fallback.Result[domain.DVR]{}, repo.ValidationError{Field: "stato", Message: err.Error()}
	}
	return do(ctx, e, "dvr", "status", func(ctx context.Context, r repo.Repositories) (domain.DVR, error) {
		d, err := r.DVRs.Get(ctx, id)
		if err != nil {
			return domain.DVR{}, err
		}
		d.Stato = st
		return r.DVRs.Update(ctx, id, d)
	})
}

func (e *Engine) DeleteDVR(ctx context.Context, id int64) (fallback.Result[struct{}], error) {
	return exec(ctx, e, "dvr", "delete", func(ctx context.Context, r repo.Repositories) error {
		return r.DVRs.Delete(ctx, id)
	})
}

func (e *Engine) DVRFiles(ctx context.Context, id int64) (fallback.Result[[]domain.FileMetadata], error) {
	return do(ctx, e, "dvr", "files", func(ctx context.Context, r repo.Repositories) ([]domain.FileMetadata, error) {
		return r.DVRs.ListFiles(ctx, id)
	})
}

func (e *Engine) UploadDVRFiles(ctx context.Context, id int64, files []repo.UploadFile) (fallback.Result[[]domain.FileMetadata], error) {
	if len(files) == 0 {
		return fallback.Result[[]domain.FileMetadata]{}, repo.Required("files")
	}
	return do(ctx, e, "dvr", "upload_files", func(ctx context.Context, r repo.Repositories) ([]domain.FileMetadata, error) {
		return r.DVRs.UploadFiles(ctx, id, files)
	})
}

func (e *Engine) UpdateDVRFile(ctx context.Context, id, fileID int64, p domain.FileMetadataPatch) (fallback.Result[domain.FileMetadata], error) {
	return do(ctx, e, "dvr", "update_file", func(ctx context.Context, r repo.Repositories) (domain.FileMetadata, error) {
		return r.DVRs.UpdateFile(ctx, id, fileID, p)
	})
}

func (e *Engine) SaveDVRRevision(ctx context.Context, id int64, note string) (fallback.Result[domain.DVRVersion], error) {
	return do(ctx, e, "dvr", "save_revision", func(ctx context.Context, r repo.Repositories) (domain.DVRVersion, error) {
		return r.DVRs.SaveRevision(ctx, id, strings.TrimSpace(note))
	})
}

func (e *Engine) DVRRevisions(ctx context.Context, id int64) (fallback.Result[[]domain.DVRVersion], error) {
	return do(ctx, e, "dvr", "revisions", func(ctx context.Context, r repo.Repositories) ([]domain.DVRVersion, error) {
		return r.DVRs.Revisions(ctx, id)
	})
}

func (e *Engine) RevertDVR(ctx context.Context, id, versionID int64) (fallback.Result[domain.DVR], error) {
	return do(ctx, e, "dvr", "revert", func(ctx context.Context, r repo.Repositories) (domain.DVR, error) {
		return r.DVRs.RevertToRevision(ctx, id, versionID)
	})
}

func (e *Engine) DVRDocument(ctx context.Context, id int64) (fallback.Result[string], error) {
	return do(ctx, e, "dvr", "document", func(ctx context.Context, r repo.Repositories) (string, error) {
		return r.DVRs.GetDocument(ctx, id)
	})
}

func (e *Engine) SaveDVRDocument(ctx context.Context, id int64, html string) (fallback.Result[struct{}], error) {
	if strings.TrimSpace(html) == "" {
		return fallback.Result[struct{}]{}, repo.Required("document")
	}
	return exec(ctx, e, "dvr", "save_document", func(ctx context.Context, r repo.Repositories) error {
		return r.DVRs.SaveDocument(ctx, id, html)
	})
}

// Elaborations

func (e *Engine) ListElaborations(ctx context.Context) (fallback.Result[[]domain.Elaboration], error) {
	return do(ctx, e, "elaboration", "list", func(ctx context.Context, r repo.Repositories) ([]domain.Elaboration, error) {
		return r.Elaborations.List(ctx)
	})
}

func (e *Engine) GetElaboration(ctx context.Context, id int64) (fallback.Result[domain.Elaboration], error) {
	return do(ctx, e, "elaboration", "get", func(ctx context.Context, r repo.Repositories) (domain.Elaboration, error) {
		return r.Elaborations.Get(ctx, id)
	})
}

func (e *Engine) CreateElaboration(ctx context.Context, el domain.Elaboration) (fallback.Result[domain.Elaboration], error) {
	trimAll(&el.Title)
	if err := e.check(el); err != nil {
		return fallback.Result[domain.Elaboration]{}, err
	}
	return do(ctx, e, "elaboration", "create", func(ctx context.Context, r repo.Repositories) (domain.Elaboration, error) {
		return r.Elaborations.Create(ctx, el)
	})
}

func (e *Engine) UpdateElaboration(ctx context.Context, id int64, el domain.Elaboration) (fallback.Result[domain.Elaboration], error) {
	trimAll(&el.Title)
	if err := e.check(el); err != nil {
		return fallback.Result[domain.Elaboration]{}, err
	}
	return do(ctx, e, "elaboration", "update", func(ctx context.Context, r repo.Repositories) (domain.Elaboration, error) {
		return r.Elaborations.Update(ctx, id, el)
	})
}

func (e *Engine) DeleteElaboration(ctx context.Context, id int64) (fallback.Result[struct{}], error) {
	return exec(ctx, e, "elaboration", "delete", func(ctx context.Context, r repo.Repositories) error {
		return r.Elaborations.Delete(ctx, id)
	})
}

func (e *Engine) ElaborationUploads(ctx context.Context, id int64) (fallback.Result[[]domain.ElaborationUpload], error) {
	return do(ctx, e, "elaboration", "uploads", func(ctx context.Context, r repo.Repositories) ([]domain.ElaborationUpload, error) {
		return r.Elaborations.ListUploads(ctx, id)
	})
}

func (e *Engine) CreateElaborationUpload(ctx context.Context, id int64, in repo.UploadInput) (fallback.Result[domain.ElaborationUpload], error) {
	trimAll(&in.Mansione, &in.Reparto, &in.Ruolo)
	if in.Mansione == "" {
		return fallback.Result[domain.ElaborationUpload]{}, repo.Required("mansione")
	}
	if len(in.Files) == 0 {
		return fallback.Result[domain.ElaborationUpload]{}, repo.Required("files")
	}
	return do(ctx, e, "elaboration", "upload", func(ctx context.Context, r repo.Repositories) (domain.ElaborationUpload, error) {
		return r.Elaborations.CreateUpload(ctx, id, in)
	})
}

func (e *Engine) DeleteElaborationUpload(ctx context.Context, id, uploadID int64) (fallback.Result[struct{}], error) {
	return exec(ctx, e, "elaboration", "delete_upload", func(ctx context.Context, r repo.Repositories) error {
		return r.Elaborations.DeleteUpload(ctx, id, uploadID)
	})
}

func (e *Engine) GenerateElaboration(ctx context.Context, id int64) (fallback.Result[domain.Elaboration], error) {
	return do(ctx, e, "elaboration", "generate", func(ctx context.Context, r repo.Repositories) (domain.Elaboration, error) {
		return r.Elaborations.Generate(ctx, id)
	})
}

// Users

func (e *Engine) ListUsers(ctx context.Context) (fallback.Result[[]domain.User], error) {
	return do(ctx, e, "user", "list", func(ctx context.Context, r repo.Repositories) ([]domain.User, error) {
		return r.Users.List(ctx)
	})
}

func (e *Engine) CreateUser(ctx context.Context, u repo.NewUser) (fallback.Result[domain.User], error) {
	trimAll(&u.Name, &u.Email)
	if err := e.check(u.User); err != nil {
		return fallback.Result[domain.User]{}, err
	}
	if len(u.Password) < 6 {
		return fallback.Result[domain.User]{}, repo.ValidationError{Field: "password", Message: "troppo corto (min 6)"}
	}
	return do(ctx, e, "user", "create", func(ctx context.Context, r repo.Repositories) (domain.User, error) {
		return r.Users.Create(ctx, u)
	})
}

func (e *Engine) UpdateUser(ctx context.Context, id int64, u domain.User) (fallback.Result[domain.User], error) {
	trimAll(&u.Name, &u.Email)
	if err := e.check(u); err != nil {
		return fallback.Result[domain.User]{}, err
	}
	return do(ctx, e, "user", "update", func(ctx context.Context, r repo.Repositories) (domain.User, error) {
		return r.Users.Update(ctx, id, u)
	})
}

func (e *Engine) DeleteUser(ctx context.Context, id int64) (fallback.Result[struct{}], error) {
	return exec(ctx, e, "user", "delete", func(ctx context.Context, r repo.Repositories) error {
		return r.Users.Delete(ctx, id)
	})
}

// Auth

type credentials struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

func (e *Engine) Login(ctx context.Context, email, password string) (fallback.Result[domain.Session], error) {
	c := credentials{Email: strings.TrimSpace(email), Password: password}
	if err := e.check(c); err != nil {
		return fallback.Result[domain.Session]{}, err
	}
	res, err := do(ctx, e, "auth", "login", func(ctx context.Context, r repo.Repositories) (domain.Session, error) {
		return r.Auth.Login(ctx, c.Email, c.Password)
	})
	if err == nil {
		e.Logger.Info("login", zap.String("email", c.Email), zap.String("source", string(res.Source)))
	}
	return res, err
}

func (e *Engine) Me(ctx context.Context, token string) (fallback.Result[domain.User], error) {
	return do(ctx, e, "auth", "me", func(ctx context.Context, r repo.Repositories) (domain.User, error) {
		return r.Auth.Me(ctx, token)
	})
}

// Dashboard

type Dashboard struct {
	Companies        int                        `json:"companies"`
	DVRs             int                        `json:"dvrs"`
	DVRByStatus      map[domain.DVRStatus]int   `json:"dvr_by_status"`
	DeadlinesPending int                        `json:"deadlines_pending"`
	DeadlinesOverdue int                        `json:"deadlines_overdue"`
	Upcoming         []domain.Deadline          `json:"upcoming"`
	Elaborations     int                        `json:"elaborations"`
	Sources          map[string]fallback.Source `json:"sources"`
}

// UpcomingWindow bounds the deadlines listed on the dashboard.
const UpcomingWindow = 30 * 24 * time.Hour

// Dashboard loads the four lists concurrently. Each list degrades on its
// own; Sources reports where each one came from.
func (e *Engine) Dashboard(ctx context.Context) (Dashboard, error) {
	var (
		companies    fallback.Result[[]domain.Company]
		deadlines    fallback.Result[[]domain.Deadline]
		dvrs         fallback.Result[[]domain.DVR]
		elaborations fallback.Result[[]domain.Elaboration]
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) { companies, err = e.ListCompanies(gctx); return err })
	g.Go(func() (err error) { deadlines, err = e.ListDeadlines(gctx, repo.DeadlineFilter{}); return err })
	g.Go(func() (err error) { dvrs, err = e.ListDVRs(gctx); return err })
	g.Go(func() (err error) { elaborations, err = e.ListElaborations(gctx); return err })
	if err := g.Wait(); err != nil {
		return Dashboard{}, err
	}

	out := Dashboard{
		Companies:    len(companies.Value),
		DVRs:         len(dvrs.Value),
		DVRByStatus:  map[domain.DVRStatus]int{},
		Elaborations: len(elaborations.Value),
		Sources: map[string]fallback.Source{
			"companies":    companies.Source,
			"deadlines":    deadlines.Source,
			"dvrs":         dvrs.Source,
			"elaborations": elaborations.Source,
		},
	}
	for _, d := range dvrs.Value {
		out.DVRByStatus[d.Stato]++
	}
	today := e.now()
	limit := today.Add(UpcomingWindow).Format(domain.DateLayout)
	for _, d := range deadlines.Value {
		switch d.Status {
		case domain.DeadlineOverdue:
			out.DeadlinesOverdue++
		case domain.DeadlinePending:
			out.DeadlinesPending++
			if d.NextVisitDate != "" && d.NextVisitDate <= limit {
				out.Upcoming = append(out.Upcoming, d)
			}
		}
	}
	sort.Slice(out.Upcoming, func(i, j int) bool {
		return out.Upcoming[i].NextVisitDate < out.Upcoming[j].NextVisitDate
	})
	return out, nil
}
