package memory

import (
	"context"
	"strings"

	"hseb5/internal/domain"
	"hseb5/internal/repo"
)

type Companies struct{ s *Store }

func cloneCompany(c domain.Company) domain.Company {
	c.Mansioni = tags(c.Mansioni)
	c.Reparti = tags(c.Reparti)
	c.Ruoli = tags(c.Ruoli)
	return c
}

func (r Companies) List(ctx context.Context) ([]domain.Company, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]domain.Company, 0, len(r.s.companies))
	for _, c := range r.s.companies {
		out = append(out, cloneCompany(c))
	}
	return out, nil
}

func (r Companies) Get(ctx context.Context, id int64) (domain.Company, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	i := indexOf(r.s.companies, func(c domain.Company) bool { return c.ID == id })
	if i < 0 {
		return domain.Company{}, repo.NotFound("company", id)
	}
	return cloneCompany(r.s.companies[i]), nil
}

func (r Companies) Create(ctx context.Context, c domain.Company) (domain.Company, error) {
	if blank(c.Name) {
		return domain.Company{}, repo.Required("name")
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	now := r.s.stamp()
	c = cloneCompany(c)
	c.Name = strings.TrimSpace(c.Name)
	c.ID = r.s.nextID("company")
	c.CreatedAt, c.UpdatedAt = now, now
	r.s.companies = append(r.s.companies, c)
	return cloneCompany(c), nil
}

func (r Companies) Update(ctx context.Context, id int64, c domain.Company) (domain.Company, error) {
	if blank(c.Name) {
		return domain.Company{}, repo.Required("name")
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	i := indexOf(r.s.companies, func(c domain.Company) bool { return c.ID == id })
	if i < 0 {
		return domain.Company{}, repo.NotFound("company", id)
	}
	c = cloneCompany(c)
	c.ID = id
	c.Name = strings.TrimSpace(c.Name)
	c.CreatedAt = r.s.companies[i].CreatedAt
	c.UpdatedAt = r.s.stamp()
	r.s.companies[i] = c
	return cloneCompany(c), nil
}

// Delete removes the company only. Deadlines, DVRs and elaborations that
// reference it keep the dangling id.
func (r Companies) Delete(ctx context.Context, id int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	i := indexOf(r.s.companies, func(c domain.Company) bool { return c.ID == id })
	if i < 0 {
		return repo.NotFound("company", id)
	}
	r.s.companies = append(r.s.companies[:i], r.s.companies[i+1:]...)
	return nil
}
