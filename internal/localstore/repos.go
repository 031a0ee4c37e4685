package localstore

import (
	"context"
	"errors"
	"slices"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"hseb5/internal/auth"
	"hseb5/internal/domain"
	"hseb5/internal/export"
	"hseb5/internal/repo"
	"hseb5/internal/schema"
)

// Risks is the local-store RiskRepository.
type Risks struct{ S *Store }

func (r Risks) List(ctx context.Context) ([]domain.RiskType, error) {
	return r.S.RiskTypes(ctx)
}

func (r Risks) Get(ctx context.Context, id int64) (domain.RiskType, error) {
	all, err := r.S.RiskTypes(ctx)
	if err != nil {
		return domain.RiskType{}, err
	}
	i := slices.IndexFunc(all, func(rt domain.RiskType) bool { return rt.ID == id })
	if i < 0 {
		return domain.RiskType{}, repo.NotFound("risk", id)
	}
	return all[i], nil
}

func validRisk(rt *domain.RiskType) error {
	if strings.TrimSpace(rt.Name) == "" {
		return repo.Required("name")
	}
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
	if err := validRisk(&rt); err != nil {
		return domain.RiskType{}, err
	}
	rt.ID = 0
	rt.Version = 1
	saved, err := r.S.SaveRiskType(ctx, rt)
	if err != nil {
		return domain.RiskType{}, err
	}
	return saved, r.S.AppendRiskVersion(ctx, saved)
}

func (r Risks) Update(ctx context.Context, id int64, rt domain.RiskType) (domain.RiskType, error) {
	if err := validRisk(&rt); err != nil {
		return domain.RiskType{}, err
	}
	prev, err := r.Get(ctx, id)
	if err != nil {
		return domain.RiskType{}, err
	}
	rt.ID = id
	rt.Version = prev.Version + 1
	rt.CreatedAt = prev.CreatedAt
	saved, err := r.S.SaveRiskType(ctx, rt)
	if err != nil {
		return domain.RiskType{}, err
	}
	return saved, r.S.AppendRiskVersion(ctx, saved)
}

func (r Risks) Delete(ctx context.Context, id int64) error {
	return r.S.DeleteRiskType(ctx, id)
}

func (r Risks) Versions(ctx context.Context, id int64) ([]domain.RiskVersion, error) {
	if _, err := r.Get(ctx, id); err != nil {
		return nil, err
	}
	return r.S.RiskVersions(ctx, id)
}

func (r Risks) RevertToVersion(ctx context.Context, id, versionID int64) (domain.RiskType, error) {
	versions, err := r.Versions(ctx, id)
	if err != nil {
		return domain.RiskType{}, err
	}
	i := slices.IndexFunc(versions, func(v domain.RiskVersion) bool { return v.ID == versionID })
	if i < 0 {
		return domain.RiskType{}, repo.NotFound("risk version", versionID)
	}
	v := versions[i]
	return r.Update(ctx, id, domain.RiskType{
		Name:              v.Name,
		Description:       v.Description,
		Status:            v.Status,
		InputExpectations: v.InputExpectations,
		OutputStructure:   v.OutputStructure,
		AIPrompt:          v.AIPrompt,
	})
}

// DVRs is the local-store DVRRepository. Risk names for file
// classification are resolved through Risks.
type DVRs struct {
	S     *Store
	Risks repo.RiskRepository
}

var placeholderRisk = domain.FileRisk{ID: 0, Name: "Da classificare"}

func (r DVRs) withFiles(ctx context.Context, d domain.DVR) (domain.DVR, error) {
	files, err := r.S.DVRFiles(ctx, d.ID)
	if err != nil {
		return domain.DVR{}, err
	}
	d.Files = files
	return d, nil
}

func (r DVRs) List(ctx context.Context) ([]domain.DVR, error) {
	all, err := r.S.DVRs(ctx)
	if err != nil {
		return nil, err
	}
	for i := range all {
		if all[i], err = r.withFiles(ctx, all[i]); err != nil {
			return nil, err
		}
	}
	return all, nil
}

func (r DVRs) Get(ctx context.Context, id int64) (domain.DVR, error) {
	all, err := r.S.DVRs(ctx)
	if err != nil {
		return domain.DVR{}, err
	}
	i := slices.IndexFunc(all, func(d domain.DVR) bool { return d.ID == id })
	if i < 0 {
		return domain.DVR{}, repo.NotFound("dvr", id)
	}
	return r.withFiles(ctx, all[i])
}

func validDVR(d *domain.DVR) error {
	if strings.TrimSpace(d.Nome) == "" {
		return repo.Required("nome")
	}
	if d.Stato == "" {
		d.Stato = domain.DVRBozza
	}
	if _, err := domain.ParseDVRStatus(string(d.Stato)); err != nil {
		return repo.ValidationError{Field: "stato", Message: err.Error()}
	}
	return nil
}

func (r DVRs) Create(ctx context.Context, d domain.DVR) (domain.DVR, error) {
	if err := validDVR(&d); err != nil {
		return domain.DVR{}, err
	}
	d.ID = 0
	saved, err := r.S.SaveDVR(ctx, d)
	if err != nil {
		return domain.DVR{}, err
	}
	saved.Files = []domain.FileMetadata{}
	return saved, nil
}

func (r DVRs) Update(ctx context.Context, id int64, d domain.DVR) (domain.DVR, error) {
	if err := validDVR(&d); err != nil {
		return domain.DVR{}, err
	}
	cur, err := r.Get(ctx, id)
	if err != nil {
		return domain.DVR{}, err
	}
	cur.Nome, cur.Descrizione, cur.Stato, cur.CompanyID, cur.UpdatedBy = d.Nome, d.Descrizione, d.Stato, d.CompanyID, d.UpdatedBy
	if _, err := r.S.SaveDVR(ctx, cur); err != nil {
		return domain.DVR{}, err
	}
	return r.Get(ctx, id)
}

func (r DVRs) Delete(ctx context.Context, id int64) error {
	return r.S.DeleteDVR(ctx, id)
}

func (r DVRs) CreateWithFiles(ctx context.Context, in repo.CreateDVRInput) (domain.DVR, error) {
	d, err := r.Create(ctx, domain.DVR{Nome: in.Title, Descrizione: in.Description, CompanyID: in.CompanyID})
	if err != nil {
		return domain.DVR{}, err
	}
	if _, err := r.UploadFiles(ctx, d.ID, in.Files); err != nil {
		return d, err
	}
	return r.Get(ctx, d.ID)
}

func (r DVRs) ListFiles(ctx context.Context, id int64) ([]domain.FileMetadata, error) {
	if _, err := r.Get(ctx, id); err != nil {
		return nil, err
	}
	return r.S.DVRFiles(ctx, id)
}

func (r DVRs) UploadFiles(ctx context.Context, id int64, files []repo.UploadFile) ([]domain.FileMetadata, error) {
	existing, err := r.ListFiles(ctx, id)
	if err != nil {
		return nil, err
	}
	for _, f := range files {
		existing = append(existing, domain.FileMetadata{FileName: f.FileName, Include: true, Risk: placeholderRisk})
	}
	saved, err := r.S.SaveDVRFiles(ctx, id, existing)
	if err != nil {
		return nil, err
	}
	return saved[len(saved)-len(files):], nil
}

func (r DVRs) UpdateFile(ctx context.Context, id, fileID int64, p domain.FileMetadataPatch) (domain.FileMetadata, error) {
	files, err := r.ListFiles(ctx, id)
	if err != nil {
		return domain.FileMetadata{}, err
	}
	i := slices.IndexFunc(files, func(f domain.FileMetadata) bool { return f.ID == fileID })
	if i < 0 {
		return domain.FileMetadata{}, repo.NotFound("dvr file", fileID)
	}
	f := files[i]
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
		f.ExtractionData = p.ExtractionData
	}
	if p.RiskID != nil {
		rt, err := r.Risks.Get(ctx, *p.RiskID)
		if errors.Is(err, repo.ErrNotFound) {
			return domain.FileMetadata{}, repo.ValidationError{Field: "risk_id", Message: "rischio inesistente"}
		}
		if err != nil {
			return domain.FileMetadata{}, err
		}
		rid := rt.ID
		f.RiskID = &rid
		f.Risk = domain.FileRisk{ID: rt.ID, Name: rt.Name}
	}
	f.UpdatedAt = r.S.stamp()
	files[i] = f
	if _, err := r.S.SaveDVRFiles(ctx, id, files); err != nil {
		return domain.FileMetadata{}, err
	}
	return f, nil
}

func (r DVRs) SaveRevision(ctx context.Context, id int64, note string) (domain.DVRVersion, error) {
	return r.S.CreateNewRevision(ctx, id, note)
}

func (r DVRs) Revisions(ctx context.Context, id int64) ([]domain.DVRVersion, error) {
	if _, err := r.Get(ctx, id); err != nil {
		return nil, err
	}
	return r.S.DVRRevisions(ctx, id)
}

func (r DVRs) RevertToRevision(ctx context.Context, id, versionID int64) (domain.DVR, error) {
	revs, err := r.Revisions(ctx, id)
	if err != nil {
		return domain.DVR{}, err
	}
	i := slices.IndexFunc(revs, func(v domain.DVRVersion) bool { return v.ID == versionID })
	if i < 0 {
		return domain.DVR{}, repo.NotFound("dvr revision", versionID)
	}
	v := revs[i]
	cur, err := r.Get(ctx, id)
	if err != nil {
		return domain.DVR{}, err
	}
	cur.Nome, cur.Descrizione, cur.Stato = v.Nome, v.Descrizione, v.Stato
	if _, err := r.S.SaveDVR(ctx, cur); err != nil {
		return domain.DVR{}, err
	}
	if _, err := r.S.SaveDVRFiles(ctx, id, v.Files); err != nil {
		return domain.DVR{}, err
	}
	return r.Get(ctx, id)
}

func (r DVRs) GetDocument(ctx context.Context, id int64) (string, error) {
	d, err := r.Get(ctx, id)
	if err != nil {
		return "", err
	}
	html, ok, err := r.S.Document(ctx, id)
	if err != nil || ok {
		return html, err
	}
	return export.DVRDocument(d)
}

func (r DVRs) SaveDocument(ctx context.Context, id int64, html string) error {
	if _, err := r.Get(ctx, id); err != nil {
		return err
	}
	return r.S.SaveDocument(ctx, id, html)
}

// Users is the local-store UserRepository.
type Users struct {
	S    *Store
	Cost int
}

func (r Users) List(ctx context.Context) ([]domain.User, error) {
	return r.S.Users(ctx)
}

func (r Users) Get(ctx context.Context, id int64) (domain.User, error) {
	all, err := r.S.Users(ctx)
	if err != nil {
		return domain.User{}, err
	}
	i := slices.IndexFunc(all, func(u domain.User) bool { return u.ID == id })
	if i < 0 {
		return domain.User{}, repo.NotFound("user", id)
	}
	return all[i], nil
}

func (r Users) normalise(ctx context.Context, u *domain.User, self int64) error {
	if strings.TrimSpace(u.Name) == "" {
		return repo.Required("name")
	}
	if !strings.Contains(u.Email, "@") {
		return repo.ValidationError{Field: "email", Message: "indirizzo non valido"}
	}
	role, err := domain.ParseRole(string(u.Role))
	if err != nil {
		return repo.ValidationError{Field: "role", Message: err.Error()}
	}
	u.Role = role
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	all, err := r.S.Users(ctx)
	if err != nil {
		return err
	}
	if slices.ContainsFunc(all, func(x domain.User) bool { return x.ID != self && x.Email == u.Email }) {
		return repo.ValidationError{Field: "email", Message: "già registrata"}
	}
	return nil
}

func (r Users) Create(ctx context.Context, nu repo.NewUser) (domain.User, error) {
	u := nu.User
	if err := r.normalise(ctx, &u, 0); err != nil {
		return domain.User{}, err
	}
	if len(nu.Password) < 6 {
		return domain.User{}, repo.ValidationError{Field: "password", Message: "almeno 6 caratteri"}
	}
	cost := r.Cost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(nu.Password), cost)
	if err != nil {
		return domain.User{}, err
	}
	u.ID = 0
	u.Active = true
	u.PasswordHash = string(hash)
	return r.S.SaveUser(ctx, u)
}

func (r Users) Update(ctx context.Context, id int64, u domain.User) (domain.User, error) {
	cur, err := r.Get(ctx, id)
	if err != nil {
		return domain.User{}, err
	}
	if err := r.normalise(ctx, &u, id); err != nil {
		return domain.User{}, err
	}
	cur.Name, cur.Email, cur.Role, cur.Active = strings.TrimSpace(u.Name), u.Email, u.Role, u.Active
	return r.S.SaveUser(ctx, cur)
}

func (r Users) Delete(ctx context.Context, id int64) error {
	return r.S.DeleteUser(ctx, id)
}

// Auth logs in against the local users and persists the session as the
// current user.
type Auth struct {
	S      *Store
	Secret string
	TTL    time.Duration
}

func (a Auth) now() time.Time {
	if a.S.Now != nil {
		return a.S.Now()
	}
	return time.Now()
}

func (a Auth) Login(ctx context.Context, email, password string) (domain.Session, error) {
	users, err := a.S.Users(ctx)
	if err != nil {
		return domain.Session{}, err
	}
	i := slices.IndexFunc(users, func(u domain.User) bool { return strings.EqualFold(u.Email, strings.TrimSpace(email)) })
	if i < 0 || !users[i].Active {
		return domain.Session{}, repo.ErrInvalidLogin
	}
	u := users[i]
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return domain.Session{}, repo.ErrInvalidLogin
	}
	tok, exp, err := auth.Issue(a.Secret, u, a.now(), a.TTL)
	if err != nil {
		return domain.Session{}, err
	}
	sess := domain.Session{User: u, Token: tok, ExpiresAt: exp.Format(time.RFC3339)}
	return sess, a.S.SetCurrentUser(ctx, sess)
}

func (a Auth) Me(ctx context.Context, token string) (domain.User, error) {
	claims, err := auth.Parse(a.Secret, token, a.now())
	if err != nil {
		return domain.User{}, err
	}
	id, err := claims.UserID()
	if err != nil {
		return domain.User{}, auth.ErrInvalidToken
	}
	u, err := Users{S: a.S}.Get(ctx, id)
	if errors.Is(err, repo.ErrNotFound) {
		return domain.User{}, auth.ErrInvalidToken
	}
	return u, err
}

// Bootstrap copies risks, DVRs and users from src into the keys that are
// still unset, so a fresh workspace starts from the demo data set.
func (s *Store) Bootstrap(ctx context.Context, src repo.Repositories) error {
	var probe []any
	if ok, err := s.Load(ctx, KeyRiskTypes, &probe); err != nil {
		return err
	} else if !ok && src.Risks != nil {
		risks, err := src.Risks.List(ctx)
		if err != nil {
			return err
		}
		if err := s.Save(ctx, KeyRiskTypes, risks); err != nil {
			return err
		}
		for _, rt := range risks {
			if err := s.AppendRiskVersion(ctx, rt); err != nil {
				return err
			}
		}
	}
	if ok, err := s.Load(ctx, KeyDVRList, &probe); err != nil {
		return err
	} else if !ok && src.DVRs != nil {
		dvrs, err := src.DVRs.List(ctx)
		if err != nil {
			return err
		}
		rows := make([]domain.DVR, 0, len(dvrs))
		for _, d := range dvrs {
			if _, err := s.SaveDVRFiles(ctx, d.ID, d.Files); err != nil {
				return err
			}
			d.Files, d.Company = nil, nil
			rows = append(rows, d)
		}
		if err := s.Save(ctx, KeyDVRList, rows); err != nil {
			return err
		}
	}
	if ok, err := s.Load(ctx, KeyUsers, &probe); err != nil {
		return err
	} else if !ok && src.Users != nil {
		users, err := src.Users.List(ctx)
		if err != nil {
			return err
		}
		stored := make([]storedUser, len(users))
		for i, u := range users {
			stored[i] = storedUser{User: u, PasswordHash: u.PasswordHash}
		}
		if err := s.Save(ctx, KeyUsers, stored); err != nil {
			return err
		}
	}
	return nil
}
