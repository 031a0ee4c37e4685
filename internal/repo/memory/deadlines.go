package memory

import (
	"context"
	"strings"

	"hseb5/internal/domain"
	"hseb5/internal/repo"
)

type Deadlines struct{ s *Store }

func (r Deadlines) List(ctx context.Context, f repo.DeadlineFilter) ([]domain.Deadline, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	today := r.s.today()
	out := []domain.Deadline{}
	for _, d := range r.s.deadlines {
		if f.CompanyID != 0 && d.CompanyID != f.CompanyID {
			continue
		}
		d = r.present(d)
		if d.Status != domain.DeadlineCompleted {
			d.Status = domain.StatusAt(d.NextVisitDate, today)
		}
		if f.Status != "" && d.Status != f.Status {
			continue
		}
		out = append(out, d)
	}
	return out, nil
}

func (r Deadlines) Get(ctx context.Context, id int64) (domain.Deadline, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	i := indexOf(r.s.deadlines, func(d domain.Deadline) bool { return d.ID == id })
	if i < 0 {
		return domain.Deadline{}, repo.NotFound("deadline", id)
	}
	d := r.present(r.s.deadlines[i])
	if d.Status != domain.DeadlineCompleted {
		d.Status = domain.StatusAt(d.NextVisitDate, r.s.today())
	}
	return d, nil
}

func (r Deadlines) Create(ctx context.Context, d domain.Deadline) (domain.Deadline, error) {
	if err := checkDeadline(&d); err != nil {
		return domain.Deadline{}, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := d.Recompute(r.s.today()); err != nil {
		return domain.Deadline{}, repo.ValidationError{Field: "last_visit_date", Message: err.Error()}
	}
	now := r.s.stamp()
	d.ID = r.s.nextID("deadline")
	d.CreatedAt, d.UpdatedAt = now, now
	r.s.deadlines = append(r.s.deadlines, d)
	return r.present(d), nil
}

func (r Deadlines) Update(ctx context.Context, id int64, d domain.Deadline) (domain.Deadline, error) {
	if err := checkDeadline(&d); err != nil {
		return domain.Deadline{}, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	i := indexOf(r.s.deadlines, func(d domain.Deadline) bool { return d.ID == id })
	if i < 0 {
		return domain.Deadline{}, repo.NotFound("deadline", id)
	}
	if err := d.Recompute(r.s.today()); err != nil {
		return domain.Deadline{}, repo.ValidationError{Field: "last_visit_date", Message: err.Error()}
	}
	d.ID = id
	d.CreatedAt = r.s.deadlines[i].CreatedAt
	d.UpdatedAt = r.s.stamp()
	r.s.deadlines[i] = d
	return r.present(d), nil
}

func (r Deadlines) Delete(ctx context.Context, id int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	i := indexOf(r.s.deadlines, func(d domain.Deadline) bool { return d.ID == id })
	if i < 0 {
		return repo.NotFound("deadline", id)
	}
	r.s.deadlines = append(r.s.deadlines[:i], r.s.deadlines[i+1:]...)
	return nil
}

func (r Deadlines) MarkCompleted(ctx context.Context, id int64) (domain.Deadline, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	i := indexOf(r.s.deadlines, func(d domain.Deadline) bool { return d.ID == id })
	if i < 0 {
		return domain.Deadline{}, repo.NotFound("deadline", id)
	}
	d := r.s.deadlines[i]
	if err := d.MarkCompleted(r.s.today()); err != nil {
		return domain.Deadline{}, err
	}
	d.UpdatedAt = r.s.stamp()
	r.s.deadlines[i] = d
	return r.present(d), nil
}

func (r Deadlines) present(d domain.Deadline) domain.Deadline {
	if name := r.s.companyName(d.CompanyID); name != "" {
		d.CompanyName = name
	}
	return d
}

func checkDeadline(d *domain.Deadline) error {
	if blank(d.Title) {
		return repo.Required("title")
	}
	if d.CompanyID == 0 {
		return repo.Required("company_id")
	}
	d.Title = strings.TrimSpace(d.Title)
	if d.NextVisitInterval == "" {
		d.NextVisitInterval = "12"
	}
	if _, err := domain.ParseInterval(string(d.NextVisitInterval)); err != nil {
		return repo.ValidationError{Field: "next_visit_interval", Message: err.Error()}
	}
	if d.Status != domain.DeadlineCompleted {
		d.Status = ""
	}
	return nil
}
