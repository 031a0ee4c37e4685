// Package httprepo implements the repositories over the backend REST API.
package httprepo

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"

	"hseb5/internal/domain"
	"hseb5/internal/repo"
	hsesdk "hseb5/sdk/go"
)

// New returns the HTTP-backed repository set.
func New(c *hsesdk.Client) repo.Repositories {
	return repo.Repositories{
		Companies:    Companies{c},
		Deadlines:    Deadlines{c},
		Risks:        Risks{c},
		DVRs:         DVRs{c},
		Elaborations: Elaborations{c},
		Users:        Users{c},
		Auth:         Auth{c},
	}
}

// mapErr turns HTTP statuses into the repository sentinels, keeping the
// APIError in the chain.
func mapErr(err error) error {
	var apiErr *hsesdk.APIError
	if !errors.As(err, &apiErr) {
		return err
	}
	switch {
	case apiErr.IsNotFound():
		return fmt.Errorf("%w: %w", repo.ErrNotFound, err)
	case apiErr.IsUnprocessable(), apiErr.StatusCode == 400:
		return fmt.Errorf("%w: %w", repo.ErrValidation, err)
	}
	return err
}

func path(parts ...any) string {
	out := ""
	for _, p := range parts {
		switch v := p.(type) {
		case int64:
			out += "/" + strconv.FormatInt(v, 10)
		case string:
			out += "/" + url.PathEscape(v)
		}
	}
	return out
}

func get[T any](ctx context.Context, c *hsesdk.Client, p string) (T, error) {
	var out T
	err := c.Get(ctx, p, &out)
	return out, mapErr(err)
}

func send[T any](ctx context.Context, c *hsesdk.Client, method, p string, body any) (T, error) {
	var out T
	var err error
	switch method {
	case "POST":
		err = c.Post(ctx, p, body, &out)
	case "PUT":
		err = c.Put(ctx, p, body, &out)
	case "PATCH":
		err = c.Patch(ctx, p, body, &out)
	default:
		return out, fmt.Errorf("unsupported method %s", method)
	}
	return out, mapErr(err)
}

func del(ctx context.Context, c *hsesdk.Client, p string) error {
	return mapErr(c.Delete(ctx, p, nil))
}

func uploads(files []repo.UploadFile) []hsesdk.UploadFile {
	out := make([]hsesdk.UploadFile, len(files))
	for i, f := range files {
		out[i] = hsesdk.UploadFile{Field: "files", FileName: f.FileName, Data: f.Data}
	}
	return out
}

type Companies struct{ C *hsesdk.Client }

func (r Companies) List(ctx context.Context) ([]domain.Company, error) {
	return get[[]domain.Company](ctx, r.C, "/companies")
}

func (r Companies) Get(ctx context.Context, id int64) (domain.Company, error) {
	return get[domain.Company](ctx, r.C, path("companies", id))
}

func (r Companies) Create(ctx context.Context, c domain.Company) (domain.Company, error) {
	return send[domain.Company](ctx, r.C, "POST", "/companies", c)
}

func (r Companies) Update(ctx context.Context, id int64, c domain.Company) (domain.Company, error) {
	return send[domain.Company](ctx, r.C, "PUT", path("companies", id), c)
}

func (r Companies) Delete(ctx context.Context, id int64) error {
	return del(ctx, r.C, path("companies", id))
}

type Deadlines struct{ C *hsesdk.Client }

func (r Deadlines) List(ctx context.Context, f repo.DeadlineFilter) ([]domain.Deadline, error) {
	q := url.Values{}
	if f.CompanyID != 0 {
		q.Set("company_id", strconv.FormatInt(f.CompanyID, 10))
	}
	if f.Status != "" {
		q.Set("status", string(f.Status))
	}
	p := "/deadlines"
	if len(q) > 0 {
		p += "?" + q.Encode()
	}
	return get[[]domain.Deadline](ctx, r.C, p)
}

func (r Deadlines) Get(ctx context.Context, id int64) (domain.Deadline, error) {
	return get[domain.Deadline](ctx, r.C, path("deadlines", id))
}

func (r Deadlines) Create(ctx context.Context, d domain.Deadline) (domain.Deadline, error) {
	return send[domain.Deadline](ctx, r.C, "POST", "/deadlines", d)
}

func (r Deadlines) Update(ctx context.Context, id int64, d domain.Deadline) (domain.Deadline, error) {
	return send[domain.Deadline](ctx, r.C, "PUT", path("deadlines", id), d)
}

func (r Deadlines) Delete(ctx context.Context, id int64) error {
	return del(ctx, r.C, path("deadlines", id))
}

func (r Deadlines) MarkCompleted(ctx context.Context, id int64) (domain.Deadline, error) {
	return send[domain.Deadline](ctx, r.C, "POST", path("deadlines", id, "complete"), nil)
}

// Risks: the backend has no version history endpoints.
type Risks struct{ C *hsesdk.Client }

func (r Risks) List(ctx context.Context) ([]domain.RiskType, error) {
	return get[[]domain.RiskType](ctx, r.C, "/risks")
}

func (r Risks) Get(ctx context.Context, id int64) (domain.RiskType, error) {
	return get[domain.RiskType](ctx, r.C, path("risks", id))
}

func (r Risks) Create(ctx context.Context, rt domain.RiskType) (domain.RiskType, error) {
	return send[domain.RiskType](ctx, r.C, "POST", "/risks", rt)
}

func (r Risks) Update(ctx context.Context, id int64, rt domain.RiskType) (domain.RiskType, error) {
	return send[domain.RiskType](ctx, r.C, "PUT", path("risks", id), rt)
}

func (r Risks) Delete(ctx context.Context, id int64) error {
	return del(ctx, r.C, path("risks", id))
}

func (r Risks) Versions(ctx context.Context, id int64) ([]domain.RiskVersion, error) {
	return nil, repo.ErrNotSupported
}

func (r Risks) RevertToVersion(ctx context.Context, id, versionID int64) (domain.RiskType, error) {
	return domain.RiskType{}, repo.ErrNotSupported
}

type Users struct{ C *hsesdk.Client }

func (r Users) List(ctx context.Context) ([]domain.User, error) {
	return get[[]domain.User](ctx, r.C, "/users")
}

func (r Users) Get(ctx context.Context, id int64) (domain.User, error) {
	return get[domain.User](ctx, r.C, path("users", id))
}

func (r Users) Create(ctx context.Context, u repo.NewUser) (domain.User, error) {
	return send[domain.User](ctx, r.C, "POST", "/users", u)
}

func (r Users) Update(ctx context.Context, id int64, u domain.User) (domain.User, error) {
	return send[domain.User](ctx, r.C, "PUT", path("users", id), u)
}

func (r Users) Delete(ctx context.Context, id int64) error {
	return del(ctx, r.C, path("users", id))
}

type Auth struct{ C *hsesdk.Client }

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (a Auth) Login(ctx context.Context, email, password string) (domain.Session, error) {
	var sess domain.Session
	err := a.C.Post(ctx, "/auth/login", loginRequest{Email: email, Password: password}, &sess)
	var apiErr *hsesdk.APIError
	if errors.As(err, &apiErr) && apiErr.IsUnauthorized() {
		return domain.Session{}, fmt.Errorf("%w: %w", repo.ErrInvalidLogin, err)
	}
	return sess, mapErr(err)
}

// Me asks the backend who owns token. An empty token uses the client's own
// token source.
func (a Auth) Me(ctx context.Context, token string) (domain.User, error) {
	c := a.C
	if token != "" {
		cp := *a.C
		cp.Tokens = hsesdk.TokenFunc(func() string { return token })
		c = &cp
	}
	return get[domain.User](ctx, c, "/auth/me")
}
