package server

import (
	"context"
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	"go.uber.org/zap"

	"hseb5/internal/domain"
	"hseb5/internal/repo"
)

var writeErrors = []int{
	http.StatusBadRequest,
	http.StatusNotFound,
	http.StatusUnprocessableEntity,
	http.StatusInternalServerError,
}

func requireBody(ctx context.Context) huma.StatusError {
	if len(bodyBytes(ctx)) == 0 {
		return newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
	}
	return nil
}

func (s *server) registerAuth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "login",
		Method:      http.MethodPost,
		Path:        "/auth/login",
		Summary:     "Exchange credentials for a bearer token",
		Errors:      []int{http.StatusBadRequest, http.StatusUnauthorized},
	}, func(ctx context.Context, input *body[LoginRequest]) (*body[domain.Session], error) {
		sess, err := s.repos.Auth.Login(ctx, strings.TrimSpace(input.Body.Email), input.Body.Password)
		if err != nil {
			return nil, s.handleError(err)
		}
		s.logger.Info("login", zap.String("email", sess.User.Email))
		return &body[domain.Session]{Body: sess}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "me",
		Method:      http.MethodGet,
		Path:        "/auth/me",
		Summary:     "Current user",
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, _ *struct{}) (*body[domain.User], error) {
		u, serr := currentUser(ctx)
		if serr != nil {
			return nil, serr
		}
		return &body[domain.User]{Body: u}, nil
	})
}

func (s *server) registerCompanies(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "list-companies",
		Method:      http.MethodGet,
		Path:        "/companies",
		Summary:     "List companies",
	}, func(ctx context.Context, _ *struct{}) (*body[[]domain.Company], error) {
		items, err := s.repos.Companies.List(ctx)
		if err != nil {
			return nil, s.handleError(err)
		}
		return &body[[]domain.Company]{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-company",
		Method:      http.MethodGet,
		Path:        "/companies/{id}",
		Summary:     "Get company",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *idPath) (*body[domain.Company], error) {
		c, err := s.repos.Companies.Get(ctx, input.ID)
		if err != nil {
			return nil, s.handleError(err)
		}
		return &body[domain.Company]{Body: c}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-company",
		Method:        http.MethodPost,
		Path:          "/companies",
		Summary:       "Create company",
		DefaultStatus: http.StatusCreated,
		Errors:        writeErrors,
	}, func(ctx context.Context, input *body[domain.Company]) (*body[domain.Company], error) {
		if serr := requireBody(ctx); serr != nil {
			return nil, serr
		}
		c, err := s.repos.Companies.Create(ctx, input.Body)
		if err != nil {
			return nil, s.handleError(err)
		}
		return &body[domain.Company]{Body: c}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-company",
		Method:      http.MethodPut,
		Path:        "/companies/{id}",
		Summary:     "Update company",
		Errors:      writeErrors,
	}, func(ctx context.Context, input *struct {
		ID   int64          `path:"id"`
		Body domain.Company `json:"body"`
	}) (*body[domain.Company], error) {
		c, err := s.repos.Companies.Update(ctx, input.ID, input.Body)
		if err != nil {
			return nil, s.handleError(err)
		}
		return &body[domain.Company]{Body: c}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-company",
		Method:        http.MethodDelete,
		Path:          "/companies/{id}",
		Summary:       "Delete company",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusNotFound},
	}, func(ctx context.Context, input *idPath) (*struct{}, error) {
		if err := s.repos.Companies.Delete(ctx, input.ID); err != nil {
			return nil, s.handleError(err)
		}
		return &struct{}{}, nil
	})
}

func (s *server) registerDeadlines(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "list-deadlines",
		Method:      http.MethodGet,
		Path:        "/deadlines",
		Summary:     "List deadlines",
		Description: "Status is recomputed against today on every read.",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		CompanyID int64  `query:"company_id"`
		Status    string `query:"status"`
	}) (*body[[]domain.Deadline], error) {
		f := repo.DeadlineFilter{CompanyID: input.CompanyID, Status: domain.DeadlineStatus(input.Status)}
		switch f.Status {
		case "", domain.DeadlinePending, domain.DeadlineOverdue, domain.DeadlineCompleted:
		default:
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid status filter", map[string]any{"status": input.Status})
		}
		items, err := s.repos.Deadlines.List(ctx, f)
		if err != nil {
			return nil, s.handleError(err)
		}
		return &body[[]domain.Deadline]{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "export-deadlines",
		Method:      http.MethodGet,
		Path:        "/deadlines/export",
		Summary:     "Deadline schedule as xlsx",
	}, func(ctx context.Context, _ *struct{}) (*download, error) {
		return s.deadlineExport(ctx)
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-deadline",
		Method:      http.MethodGet,
		Path:        "/deadlines/{id}",
		Summary:     "Get deadline",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *idPath) (*body[domain.Deadline], error) {
		d, err := s.repos.Deadlines.Get(ctx, input.ID)
		if err != nil {
			return nil, s.handleError(err)
		}
		return &body[domain.Deadline]{Body: d}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-deadline",
		Method:        http.MethodPost,
		Path:          "/deadlines",
		Summary:       "Create deadline",
		DefaultStatus: http.StatusCreated,
		Errors:        writeErrors,
	}, func(ctx context.Context, input *body[domain.Deadline]) (*body[domain.Deadline], error) {
		if serr := requireBody(ctx); serr != nil {
			return nil, serr
		}
		d, err := s.repos.Deadlines.Create(ctx, input.Body)
		if err != nil {
			return nil, s.handleError(err)
		}
		return &body[domain.Deadline]{Body: d}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-deadline",
		Method:      http.MethodPut,
		Path:        "/deadlines/{id}",
		Summary:     "Update deadline",
		Errors:      writeErrors,
	}, func(ctx context.Context, input *struct {
		ID   int64           `path:"id"`
		Body domain.Deadline `json:"body"`
	}) (*body[domain.Deadline], error) {
		d, err := s.repos.Deadlines.Update(ctx, input.ID, input.Body)
		if err != nil {
			return nil, s.handleError(err)
		}
		return &body[domain.Deadline]{Body: d}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "complete-deadline",
		Method:      http.MethodPost,
		Path:        "/deadlines/{id}/complete",
		Summary:     "Record a visit today and schedule the next one",
		Errors:      []int{http.StatusNotFound, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *idPath) (*body[domain.Deadline], error) {
		d, err := s.repos.Deadlines.MarkCompleted(ctx, input.ID)
		if err != nil {
			return nil, s.handleError(err)
		}
		return &body[domain.Deadline]{Body: d}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-deadline",
		Method:        http.MethodDelete,
		Path:          "/deadlines/{id}",
		Summary:       "Delete deadline",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusNotFound},
	}, func(ctx context.Context, input *idPath) (*struct{}, error) {
		if err := s.repos.Deadlines.Delete(ctx, input.ID); err != nil {
			return nil, s.handleError(err)
		}
		return &struct{}{}, nil
	})
}

func (s *server) registerRisks(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "list-risks",
		Method:      http.MethodGet,
		Path:        "/risks",
		Summary:     "List risk types",
	}, func(ctx context.Context, _ *struct{}) (*body[[]domain.RiskType], error) {
		items, err := s.repos.Risks.List(ctx)
		if err != nil {
			return nil, s.handleError(err)
		}
		return &body[[]domain.RiskType]{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-risk",
		Method:      http.MethodGet,
		Path:        "/risks/{id}",
		Summary:     "Get risk type",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *idPath) (*body[domain.RiskType], error) {
		rt, err := s.repos.Risks.Get(ctx, input.ID)
		if err != nil {
			return nil, s.handleError(err)
		}
		return &body[domain.RiskType]{Body: rt}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-risk",
		Method:        http.MethodPost,
		Path:          "/risks",
		Summary:       "Create risk type",
		DefaultStatus: http.StatusCreated,
		Errors:        writeErrors,
	}, func(ctx context.Context, input *body[domain.RiskType]) (*body[domain.RiskType], error) {
		if serr := requireBody(ctx); serr != nil {
			return nil, serr
		}
		rt, err := s.repos.Risks.Create(ctx, input.Body)
		if err != nil {
			return nil, s.handleError(err)
		}
		return &body[domain.RiskType]{Body: rt}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-risk",
		Method:      http.MethodPut,
		Path:        "/risks/{id}",
		Summary:     "Update risk type",
		Errors:      writeErrors,
	}, func(ctx context.Context, input *struct {
		ID   int64           `path:"id"`
		Body domain.RiskType `json:"body"`
	}) (*body[domain.RiskType], error) {
		rt, err := s.repos.Risks.Update(ctx, input.ID, input.Body)
		if err != nil {
			return nil, s.handleError(err)
		}
		return &body[domain.RiskType]{Body: rt}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-risk",
		Method:        http.MethodDelete,
		Path:          "/risks/{id}",
		Summary:       "Delete risk type",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusNotFound},
	}, func(ctx context.Context, input *idPath) (*struct{}, error) {
		if err := s.repos.Risks.Delete(ctx, input.ID); err != nil {
			return nil, s.handleError(err)
		}
		return &struct{}{}, nil
	})
}

func (s *server) registerElaborations(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "list-elaborations",
		Method:      http.MethodGet,
		Path:        "/elaborations",
		Summary:     "List elaborations",
	}, func(ctx context.Context, _ *struct{}) (*body[[]domain.Elaboration], error) {
		items, err := s.repos.Elaborations.List(ctx)
		if err != nil {
			return nil, s.handleError(err)
		}
		return &body[[]domain.Elaboration]{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-elaboration",
		Method:      http.MethodGet,
		Path:        "/elaborations/{id}",
		Summary:     "Get elaboration",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *idPath) (*body[domain.Elaboration], error) {
		e, err := s.repos.Elaborations.Get(ctx, input.ID)
		if err != nil {
			return nil, s.handleError(err)
		}
		return &body[domain.Elaboration]{Body: e}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-elaboration",
		Method:        http.MethodPost,
		Path:          "/elaborations",
		Summary:       "Create elaboration",
		DefaultStatus: http.StatusCreated,
		Errors:        writeErrors,
	}, func(ctx context.Context, input *body[domain.Elaboration]) (*body[domain.Elaboration], error) {
		if serr := requireBody(ctx); serr != nil {
			return nil, serr
		}
		e, err := s.repos.Elaborations.Create(ctx, input.Body)
		if err != nil {
			return nil, s.handleError(err)
		}
		return &body[domain.Elaboration]{Body: e}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-elaboration",
		Method:      http.MethodPut,
		Path:        "/elaborations/{id}",
		Summary:     "Update elaboration",
		Errors:      writeErrors,
	}, func(ctx context.Context, input *struct {
		ID   int64              `path:"id"`
		Body domain.Elaboration `json:"body"`
	}) (*body[domain.Elaboration], error) {
		e, err := s.repos.Elaborations.Update(ctx, input.ID, input.Body)
		if err != nil {
			return nil, s.handleError(err)
		}
		return &body[domain.Elaboration]{Body: e}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-elaboration",
		Method:        http.MethodDelete,
		Path:          "/elaborations/{id}",
		Summary:       "Soft-delete elaboration",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusNotFound},
	}, func(ctx context.Context, input *idPath) (*struct{}, error) {
		if err := s.repos.Elaborations.Delete(ctx, input.ID); err != nil {
			return nil, s.handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-elaboration-uploads",
		Method:      http.MethodGet,
		Path:        "/elaborations/{id}/uploads",
		Summary:     "List uploads of an elaboration",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *idPath) (*body[[]domain.ElaborationUpload], error) {
		items, err := s.repos.Elaborations.ListUploads(ctx, input.ID)
		if err != nil {
			return nil, s.handleError(err)
		}
		return &body[[]domain.ElaborationUpload]{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-elaboration-upload",
		Method:        http.MethodDelete,
		Path:          "/elaborations/{id}/uploads/{upload_id}",
		Summary:       "Delete an upload",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID       int64 `path:"id"`
		UploadID int64 `path:"upload_id"`
	}) (*struct{}, error) {
		if err := s.repos.Elaborations.DeleteUpload(ctx, input.ID, input.UploadID); err != nil {
			return nil, s.handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "generate-elaboration",
		Method:      http.MethodPost,
		Path:        "/elaborations/{id}/generate",
		Summary:     "Extract the rows of every uploaded sheet",
		Errors:      []int{http.StatusNotFound, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *idPath) (*body[domain.Elaboration], error) {
		e, err := s.repos.Elaborations.Generate(ctx, input.ID)
		if err != nil {
			return nil, s.handleError(err)
		}
		return &body[domain.Elaboration]{Body: e}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "export-elaboration",
		Method:      http.MethodGet,
		Path:        "/elaborations/{id}/export",
		Summary:     "Elaboration rows as xlsx",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *idPath) (*download, error) {
		return s.elaborationExport(ctx, input.ID)
	})
}

func (s *server) registerUsers(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "list-users",
		Method:      http.MethodGet,
		Path:        "/users",
		Summary:     "List users",
	}, func(ctx context.Context, _ *struct{}) (*body[[]domain.User], error) {
		items, err := s.repos.Users.List(ctx)
		if err != nil {
			return nil, s.handleError(err)
		}
		return &body[[]domain.User]{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-user",
		Method:      http.MethodGet,
		Path:        "/users/{id}",
		Summary:     "Get user",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *idPath) (*body[domain.User], error) {
		u, err := s.repos.Users.Get(ctx, input.ID)
		if err != nil {
			return nil, s.handleError(err)
		}
		return &body[domain.User]{Body: u}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-user",
		Method:        http.MethodPost,
		Path:          "/users",
		Summary:       "Create user",
		DefaultStatus: http.StatusCreated,
		Errors:        append([]int{http.StatusForbidden}, writeErrors...),
	}, func(ctx context.Context, input *body[CreateUserRequest]) (*body[domain.User], error) {
		if serr := s.requireAdmin(ctx); serr != nil {
			return nil, serr
		}
		in := input.Body
		u, err := s.repos.Users.Create(ctx, repo.NewUser{
			User:     domain.User{Name: in.Name, Email: in.Email, Role: in.Role, Active: true},
			Password: in.Password,
		})
		if err != nil {
			return nil, s.handleError(err)
		}
		return &body[domain.User]{Body: u}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-user",
		Method:      http.MethodPut,
		Path:        "/users/{id}",
		Summary:     "Update user",
		Errors:      append([]int{http.StatusForbidden}, writeErrors...),
	}, func(ctx context.Context, input *struct {
		ID   int64       `path:"id"`
		Body domain.User `json:"body"`
	}) (*body[domain.User], error) {
		if serr := s.requireAdmin(ctx); serr != nil {
			return nil, serr
		}
		u, err := s.repos.Users.Update(ctx, input.ID, input.Body)
		if err != nil {
			return nil, s.handleError(err)
		}
		return &body[domain.User]{Body: u}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-user",
		Method:        http.MethodDelete,
		Path:          "/users/{id}",
		Summary:       "Delete user",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *idPath) (*struct{}, error) {
		if serr := s.requireAdmin(ctx); serr != nil {
			return nil, serr
		}
		if u, _ := userFromContext(ctx); u.ID == input.ID {
			return nil, newAPIError(http.StatusUnprocessableEntity, "validation_failed", "cannot delete the current user", nil)
		}
		if err := s.repos.Users.Delete(ctx, input.ID); err != nil {
			return nil, s.handleError(err)
		}
		return &struct{}{}, nil
	})
}
