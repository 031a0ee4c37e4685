// Package memory implements the repositories over in-process slices. It is
// the demo backend: every Store starts from the seeded data set unless
// created with Empty.
package memory

import (
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"hseb5/internal/domain"
	"hseb5/internal/repo"
)

// DefaultSecret signs demo tokens when no secret is configured.
const DefaultSecret = "hseb5-demo-secret"

type Options struct {
	Now          func() time.Time
	Secret       string
	PasswordCost int
	TokenTTL     time.Duration
	// Empty skips the demo data set.
	Empty bool
}

// Store holds every entity behind one mutex so cross-entity lookups
// (company names, risk names) see a consistent view.
type Store struct {
	mu     sync.Mutex
	now    func() time.Time
	secret string
	cost   int
	ttl    time.Duration
	ids    map[string]int64

	companies    []domain.Company
	deadlines    []domain.Deadline
	risks        []domain.RiskType
	riskVersions []domain.RiskVersion
	dvrs         []domain.DVR
	dvrVersions  []domain.DVRVersion
	documents    map[int64]string
	elaborations []domain.Elaboration
	uploads      []domain.ElaborationUpload
	users        []domain.User
}

func New(opts Options) *Store {
	s := &Store{
		now:       opts.Now,
		secret:    opts.Secret,
		cost:      opts.PasswordCost,
		ttl:       opts.TokenTTL,
		ids:       map[string]int64{},
		documents: map[int64]string{},
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.cost == 0 {
		s.cost = bcrypt.DefaultCost
	}
	if s.secret == "" {
		s.secret = DefaultSecret
	}
	if !opts.Empty {
		s.seed()
	}
	return s
}

// Repositories exposes the store through the repository interfaces.
func (s *Store) Repositories() repo.Repositories {
	return repo.Repositories{
		Companies:    Companies{s},
		Deadlines:    Deadlines{s},
		Risks:        Risks{s},
		DVRs:         DVRs{s},
		Elaborations: Elaborations{s},
		Users:        Users{s},
		Auth:         Auth{s},
	}
}

func (s *Store) nextID(entity string) int64 {
	s.ids[entity]++
	return s.ids[entity]
}

func (s *Store) stamp() string {
	return s.now().UTC().Format(time.RFC3339)
}

func (s *Store) today() time.Time {
	return s.now().UTC()
}

func (s *Store) companyName(id int64) string {
	for _, c := range s.companies {
		if c.ID == id {
			return c.Name
		}
	}
	return ""
}

func (s *Store) riskName(id int64) (string, bool) {
	for _, r := range s.risks {
		if r.ID == id {
			return r.Name, true
		}
	}
	return "", false
}

func indexOf[T any](items []T, match func(T) bool) int {
	return slices.IndexFunc(items, match)
}

func blank(s string) bool {
	return strings.TrimSpace(s) == ""
}

func tags(in []string) []string {
	if in == nil {
		return []string{}
	}
	return slices.Clone(in)
}
