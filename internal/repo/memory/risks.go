package memory

import (
	"context"
	"slices"
	"strings"

	"hseb5/internal/domain"
	"hseb5/internal/repo"
	"hseb5/internal/schema"
)

type Risks struct{ s *Store }

func cloneRisk(r domain.RiskType) domain.RiskType {
	r.OutputStructure = schema.Clone(r.OutputStructure)
	return r
}

func (r Risks) List(ctx context.Context) ([]domain.RiskType, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]domain.RiskType, 0, len(r.s.risks))
	for _, rt := range r.s.risks {
		out = append(out, cloneRisk(rt))
	}
	return out, nil
}

func (r Risks) Get(ctx context.Context, id int64) (domain.RiskType, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	i := indexOf(r.s.risks, func(rt domain.RiskType) bool { return rt.ID == id })
	if i < 0 {
		return domain.RiskType{}, repo.NotFound("risk", id)
	}
	return cloneRisk(r.s.risks[i]), nil
}

func checkRisk(rt *domain.RiskType) error {
	if blank(rt.Name) {
		return repo.Required("name")
	}
	rt.Name = strings.TrimSpace(rt.Name)
	if rt.Status == "" {
		rt.Status = domain.RiskDraft
	}
	if _, err := domain.ParseRiskStatus(string(rt.Status)); err != nil {
		return repo.ValidationError{Field: "status", Message: err.Error()}
	}
	if err := schema.Validate(rt.OutputStructure); err != nil {
		return repo.ValidationError{Field: "outputStructure", Message: err.Error()}
	}
	if rt.OutputStructure == nil {
		rt.OutputStructure = []domain.OutputField{}
	}
	return nil
}

func (r Risks) Create(ctx context.Context, rt domain.RiskType) (domain.RiskType, error) {
	if err := checkRisk(&rt); err != nil {
		return domain.RiskType{}, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	now := r.s.stamp()
	rt = cloneRisk(rt)
	rt.ID = r.s.nextID("risk")
	rt.Version = 1
	rt.CreatedAt, rt.UpdatedAt = now, now
	r.s.risks = append(r.s.risks, rt)
	r.s.snapshotRisk(rt)
	return cloneRisk(rt), nil
}

// Update saves a new version and records its snapshot.
func (r Risks) Update(ctx context.Context, id int64, rt domain.RiskType) (domain.RiskType, error) {
	if err := checkRisk(&rt); err != nil {
		return domain.RiskType{}, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	i := indexOf(r.s.risks, func(rt domain.RiskType) bool { return rt.ID == id })
	if i < 0 {
		return domain.RiskType{}, repo.NotFound("risk", id)
	}
	prev := r.s.risks[i]
	rt = cloneRisk(rt)
	rt.ID = id
	rt.Version = prev.Version + 1
	rt.CreatedAt = prev.CreatedAt
	rt.UpdatedAt = r.s.stamp()
	r.s.risks[i] = rt
	r.s.snapshotRisk(rt)
	return cloneRisk(rt), nil
}

func (r Risks) Delete(ctx context.Context, id int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	i := indexOf(r.s.risks, func(rt domain.RiskType) bool { return rt.ID == id })
	if i < 0 {
		return repo.NotFound("risk", id)
	}
	r.s.risks = append(r.s.risks[:i], r.s.risks[i+1:]...)
	return nil
}

// Versions lists the snapshots of a risk, newest first.
func (r Risks) Versions(ctx context.Context, id int64) ([]domain.RiskVersion, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if indexOf(r.s.risks, func(rt domain.RiskType) bool { return rt.ID == id }) < 0 {
		return nil, repo.NotFound("risk", id)
	}
	out := []domain.RiskVersion{}
	for _, v := range r.s.riskVersions {
		if v.RiskID == id {
			v.OutputStructure = schema.Clone(v.OutputStructure)
			out = append(out, v)
		}
	}
	slices.Reverse(out)
	return out, nil
}

// RevertToVersion restores a snapshot as a new version; history is kept.
func (r Risks) RevertToVersion(ctx context.Context, id, versionID int64) (domain.RiskType, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	i := indexOf(r.s.risks, func(rt domain.RiskType) bool { return rt.ID == id })
	if i < 0 {
		return domain.RiskType{}, repo.NotFound("risk", id)
	}
	j := indexOf(r.s.riskVersions, func(v domain.RiskVersion) bool { return v.ID == versionID && v.RiskID == id })
	if j < 0 {
		return domain.RiskType{}, repo.NotFound("risk version", versionID)
	}
	v := r.s.riskVersions[j]
	rt := r.s.risks[i]
	rt.Name = v.Name
	rt.Description = v.Description
	rt.Status = v.Status
	rt.InputExpectations = v.InputExpectations
	rt.OutputStructure = schema.Clone(v.OutputStructure)
	rt.AIPrompt = v.AIPrompt
	rt.Version++
	rt.UpdatedAt = r.s.stamp()
	r.s.risks[i] = rt
	r.s.snapshotRisk(rt)
	return cloneRisk(rt), nil
}

func (s *Store) snapshotRisk(rt domain.RiskType) {
	s.riskVersions = append(s.riskVersions, domain.RiskVersion{
		ID:                s.nextID("risk_version"),
		RiskID:            rt.ID,
		Version:           rt.Version,
		Name:              rt.Name,
		Description:       rt.Description,
		Status:            rt.Status,
		InputExpectations: rt.InputExpectations,
		OutputStructure:   schema.Clone(rt.OutputStructure),
		AIPrompt:          rt.AIPrompt,
		CreatedAt:         rt.UpdatedAt,
	})
}
