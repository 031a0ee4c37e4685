// Package localstore keeps keyed JSON blobs in the workspace sqlite file, the
// same layout the browser client kept in localStorage. Read-modify-write is
// serialised within a process only; two processes sharing a workspace can
// lose updates.
package localstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"sync"
	"time"

	"hseb5/internal/db"
	"hseb5/internal/domain"
	"hseb5/internal/migrate"
	"hseb5/internal/repo"
)

const (
	KeyCurrentUser  = "hseb5_current_user"
	KeyUsers        = "hseb5_users"
	KeyRiskTypes    = "hseb5_risk_types"
	KeyRiskVersions = "hseb5_risk_versions"
	KeyDVRList      = "hseb5_dvr_list"
	KeyDVRFiles     = "hseb5_dvr_files"
	KeyDVRRevisions = "hseb5_dvr_revisions"
)

type Store struct {
	DB  *sql.DB
	Now func() time.Time

	mu sync.Mutex
}

// Open opens and migrates the store of a workspace.
func Open(ctx context.Context, workspace string) (*Store, error) {
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return nil, err
	}
	if err := migrate.Migrate(ctx, conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate local store: %w", err)
	}
	return &Store{DB: conn, Now: time.Now}, nil
}

func (s *Store) Close() error { return s.DB.Close() }

func (s *Store) stamp() string {
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	return now().UTC().Format(time.RFC3339)
}

// Load decodes the blob under key into out. ok is false when the key is unset.
func (s *Store) Load(ctx context.Context, key string, out any) (bool, error) {
	var raw string
	err := s.DB.QueryRowContext(ctx, `SELECT value_json FROM storage_items WHERE key=?`, key).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return false, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}

func (s *Store) Save(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = s.DB.ExecContext(ctx, `INSERT INTO storage_items(key,value_json,updated_at) VALUES (?,?,?)
ON CONFLICT(key) DO UPDATE SET value_json=excluded.value_json, updated_at=excluded.updated_at`,
		key, string(data), s.stamp())
	return err
}

func (s *Store) Remove(ctx context.Context, key string) error {
	_, err := s.DB.ExecContext(ctx, `DELETE FROM storage_items WHERE key=?`, key)
	return err
}

// Keys lists the stored keys in order.
func (s *Store) Keys(ctx context.Context) ([]string, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT key FROM storage_items ORDER BY key`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// update loads key into a T, applies fn and saves the result under the
// in-process lock.
func update[T any](ctx context.Context, s *Store, key string, fn func(*T) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var v T
	if _, err := s.Load(ctx, key, &v); err != nil {
		return err
	}
	if err := fn(&v); err != nil {
		return err
	}
	return s.Save(ctx, key, v)
}

func list[T any](ctx context.Context, s *Store, key string) ([]T, error) {
	var v []T
	if _, err := s.Load(ctx, key, &v); err != nil {
		return nil, err
	}
	if v == nil {
		v = []T{}
	}
	return v, nil
}

func nextID[T any](items []T, id func(T) int64) int64 {
	var n int64
	for _, it := range items {
		n = max(n, id(it))
	}
	return n + 1
}

// Risk types.

func (s *Store) RiskTypes(ctx context.Context) ([]domain.RiskType, error) {
	return list[domain.RiskType](ctx, s, KeyRiskTypes)
}

// SaveRiskType inserts rt (id 0) or replaces the stored entry with its id.
func (s *Store) SaveRiskType(ctx context.Context, rt domain.RiskType) (domain.RiskType, error) {
	err := update(ctx, s, KeyRiskTypes, func(items *[]domain.RiskType) error {
		rt.UpdatedAt = s.stamp()
		if rt.ID == 0 {
			rt.ID = nextID(*items, func(r domain.RiskType) int64 { return r.ID })
			rt.CreatedAt = rt.UpdatedAt
			*items = append(*items, rt)
			return nil
		}
		i := slices.IndexFunc(*items, func(r domain.RiskType) bool { return r.ID == rt.ID })
		if i < 0 {
			return repo.NotFound("risk", rt.ID)
		}
		(*items)[i] = rt
		return nil
	})
	return rt, err
}

func (s *Store) DeleteRiskType(ctx context.Context, id int64) error {
	return update(ctx, s, KeyRiskTypes, func(items *[]domain.RiskType) error {
		i := slices.IndexFunc(*items, func(r domain.RiskType) bool { return r.ID == id })
		if i < 0 {
			return repo.NotFound("risk", id)
		}
		*items = slices.Delete(*items, i, i+1)
		return nil
	})
}

func (s *Store) RiskVersions(ctx context.Context, riskID int64) ([]domain.RiskVersion, error) {
	all, err := list[domain.RiskVersion](ctx, s, KeyRiskVersions)
	if err != nil {
		return nil, err
	}
	out := []domain.RiskVersion{}
	for _, v := range all {
		if v.RiskID == riskID {
			out = append(out, v)
		}
	}
	slices.Reverse(out)
	return out, nil
}

func (s *Store) AppendRiskVersion(ctx context.Context, rt domain.RiskType) error {
	return update(ctx, s, KeyRiskVersions, func(items *[]domain.RiskVersion) error {
		*items = append(*items, domain.RiskVersion{
			ID:                nextID(*items, func(v domain.RiskVersion) int64 { return v.ID }),
			RiskID:            rt.ID,
			Version:           rt.Version,
			Name:              rt.Name,
			Description:       rt.Description,
			Status:            rt.Status,
			InputExpectations: rt.InputExpectations,
			OutputStructure:   rt.OutputStructure,
			AIPrompt:          rt.AIPrompt,
			CreatedAt:         rt.UpdatedAt,
		})
		return nil
	})
}

// DVRs. The list key holds the DVR rows; files live under their own key,
// indexed by DVR id.

func (s *Store) DVRs(ctx context.Context) ([]domain.DVR, error) {
	return list[domain.DVR](ctx, s, KeyDVRList)
}

func (s *Store) SaveDVR(ctx context.Context, d domain.DVR) (domain.DVR, error) {
	d.Files = nil
	d.Company = nil
	err := update(ctx, s, KeyDVRList, func(items *[]domain.DVR) error {
		d.UpdatedAt = s.stamp()
		if d.ID == 0 {
			d.ID = nextID(*items, func(x domain.DVR) int64 { return x.ID })
			d.CreatedAt = d.UpdatedAt
			*items = append(*items, d)
			return nil
		}
		i := slices.IndexFunc(*items, func(x domain.DVR) bool { return x.ID == d.ID })
		if i < 0 {
			return repo.NotFound("dvr", d.ID)
		}
		(*items)[i] = d
		return nil
	})
	return d, err
}

func (s *Store) DeleteDVR(ctx context.Context, id int64) error {
	err := update(ctx, s, KeyDVRList, func(items *[]domain.DVR) error {
		i := slices.IndexFunc(*items, func(x domain.DVR) bool { return x.ID == id })
		if i < 0 {
			return repo.NotFound("dvr", id)
		}
		*items = slices.Delete(*items, i, i+1)
		return nil
	})
	if err != nil {
		return err
	}
	return update(ctx, s, KeyDVRFiles, func(m *map[string][]domain.FileMetadata) error {
		delete(*m, strconv.FormatInt(id, 10))
		return nil
	})
}

func (s *Store) DVRFiles(ctx context.Context, dvrID int64) ([]domain.FileMetadata, error) {
	var m map[string][]domain.FileMetadata
	if _, err := s.Load(ctx, KeyDVRFiles, &m); err != nil {
		return nil, err
	}
	files := m[strconv.FormatInt(dvrID, 10)]
	if files == nil {
		files = []domain.FileMetadata{}
	}
	return files, nil
}

// SaveDVRFiles replaces the file list of a DVR, assigning ids to new files.
func (s *Store) SaveDVRFiles(ctx context.Context, dvrID int64, files []domain.FileMetadata) ([]domain.FileMetadata, error) {
	files = slices.Clone(files)
	err := update(ctx, s, KeyDVRFiles, func(m *map[string][]domain.FileMetadata) error {
		if *m == nil {
			*m = map[string][]domain.FileMetadata{}
		}
		var top int64
		for _, fs := range *m {
			for _, f := range fs {
				top = max(top, f.ID)
			}
		}
		for _, f := range files {
			top = max(top, f.ID)
		}
		now := s.stamp()
		for i := range files {
			files[i].DVRID = dvrID
			if files[i].ID == 0 {
				top++
				files[i].ID = top
				files[i].CreatedAt = now
			}
			if files[i].UpdatedAt == "" {
				files[i].UpdatedAt = now
			}
		}
		(*m)[strconv.FormatInt(dvrID, 10)] = files
		return nil
	})
	return files, err
}

func (s *Store) DVRRevisions(ctx context.Context, dvrID int64) ([]domain.DVRVersion, error) {
	all, err := list[domain.DVRVersion](ctx, s, KeyDVRRevisions)
	if err != nil {
		return nil, err
	}
	out := []domain.DVRVersion{}
	for _, v := range all {
		if v.DVRID == dvrID {
			out = append(out, v)
		}
	}
	slices.Reverse(out)
	return out, nil
}

// SaveDVRRevision appends an immutable revision record. The log is unbounded.
func (s *Store) SaveDVRRevision(ctx context.Context, v domain.DVRVersion) (domain.DVRVersion, error) {
	err := update(ctx, s, KeyDVRRevisions, func(items *[]domain.DVRVersion) error {
		v.ID = nextID(*items, func(x domain.DVRVersion) int64 { return x.ID })
		if v.CreatedAt == "" {
			v.CreatedAt = s.stamp()
		}
		*items = append(*items, v)
		return nil
	})
	return v, err
}

// CreateNewRevision bumps numero_revisione of the DVR and appends the
// matching snapshot.
func (s *Store) CreateNewRevision(ctx context.Context, dvrID int64, note string) (domain.DVRVersion, error) {
	dvrs, err := s.DVRs(ctx)
	if err != nil {
		return domain.DVRVersion{}, err
	}
	i := slices.IndexFunc(dvrs, func(x domain.DVR) bool { return x.ID == dvrID })
	if i < 0 {
		return domain.DVRVersion{}, repo.NotFound("dvr", dvrID)
	}
	d := dvrs[i]
	d.NumeroRevisione++
	if d, err = s.SaveDVR(ctx, d); err != nil {
		return domain.DVRVersion{}, err
	}
	files, err := s.DVRFiles(ctx, dvrID)
	if err != nil {
		return domain.DVRVersion{}, err
	}
	return s.SaveDVRRevision(ctx, domain.DVRVersion{
		DVRID:       dvrID,
		Version:     d.NumeroRevisione,
		Nome:        d.Nome,
		Descrizione: d.Descrizione,
		Stato:       d.Stato,
		Files:       files,
		Note:        note,
		CreatedBy:   d.UpdatedBy,
		CreatedAt:   d.UpdatedAt,
	})
}

func (s *Store) Document(ctx context.Context, dvrID int64) (string, bool, error) {
	var html string
	err := s.DB.QueryRowContext(ctx, `SELECT html FROM dvr_documents WHERE dvr_id=?`, dvrID).Scan(&html)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	return html, err == nil, err
}

func (s *Store) SaveDocument(ctx context.Context, dvrID int64, html string) error {
	_, err := s.DB.ExecContext(ctx, `INSERT INTO dvr_documents(dvr_id,html,updated_at) VALUES (?,?,?)
ON CONFLICT(dvr_id) DO UPDATE SET html=excluded.html, updated_at=excluded.updated_at`, dvrID, html, s.stamp())
	return err
}

// Users. Hashes are persisted, unlike the API representation.

type storedUser struct {
	domain.User
	PasswordHash string `json:"password_hash"`
}

func (s *Store) Users(ctx context.Context) ([]domain.User, error) {
	stored, err := list[storedUser](ctx, s, KeyUsers)
	if err != nil {
		return nil, err
	}
	out := make([]domain.User, len(stored))
	for i, su := range stored {
		out[i] = su.User
		out[i].PasswordHash = su.PasswordHash
	}
	return out, nil
}

// SaveUser inserts (id 0) or replaces a user, keeping the stored hash when u
// carries none.
func (s *Store) SaveUser(ctx context.Context, u domain.User) (domain.User, error) {
	err := update(ctx, s, KeyUsers, func(items *[]storedUser) error {
		if u.ID == 0 {
			u.ID = nextID(*items, func(x storedUser) int64 { return x.ID })
			if u.CreatedAt == "" {
				u.CreatedAt = s.stamp()
			}
			*items = append(*items, storedUser{User: u, PasswordHash: u.PasswordHash})
			return nil
		}
		i := slices.IndexFunc(*items, func(x storedUser) bool { return x.ID == u.ID })
		if i < 0 {
			return repo.NotFound("user", u.ID)
		}
		hash := u.PasswordHash
		if hash == "" {
			hash = (*items)[i].PasswordHash
		}
		u.PasswordHash = hash
		(*items)[i] = storedUser{User: u, PasswordHash: hash}
		return nil
	})
	return u, err
}

func (s *Store) DeleteUser(ctx context.Context, id int64) error {
	return update(ctx, s, KeyUsers, func(items *[]storedUser) error {
		i := slices.IndexFunc(*items, func(x storedUser) bool { return x.ID == id })
		if i < 0 {
			return repo.NotFound("user", id)
		}
		*items = slices.Delete(*items, i, i+1)
		return nil
	})
}

// CurrentUser returns the persisted session, if any.
func (s *Store) CurrentUser(ctx context.Context) (domain.Session, bool, error) {
	var sess domain.Session
	ok, err := s.Load(ctx, KeyCurrentUser, &sess)
	return sess, ok, err
}

func (s *Store) SetCurrentUser(ctx context.Context, sess domain.Session) error {
	return s.Save(ctx, KeyCurrentUser, sess)
}

func (s *Store) ClearCurrentUser(ctx context.Context) error {
	return s.Remove(ctx, KeyCurrentUser)
}
