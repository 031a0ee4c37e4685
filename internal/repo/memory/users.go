package memory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"hseb5/internal/auth"
	"hseb5/internal/domain"
	"hseb5/internal/repo"
)

const minPasswordLen = 6

type Users struct{ s *Store }

func (r Users) List(ctx context.Context) ([]domain.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return append([]domain.User{}, r.s.users...), nil
}

func (r Users) Get(ctx context.Context, id int64) (domain.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	i := indexOf(r.s.users, func(u domain.User) bool { return u.ID == id })
	if i < 0 {
		return domain.User{}, repo.NotFound("user", id)
	}
	return r.s.users[i], nil
}

func checkUser(u *domain.User) error {
	if blank(u.Name) {
		return repo.Required("name")
	}
	if blank(u.Email) {
		return repo.Required("email")
	}
	if !strings.Contains(u.Email, "@") {
		return repo.ValidationError{Field: "email", Message: "indirizzo non valido"}
	}
	role, err := domain.ParseRole(string(u.Role))
	if err != nil {
		return repo.ValidationError{Field: "role", Message: err.Error()}
	}
	u.Name = strings.TrimSpace(u.Name)
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	u.Role = role
	return nil
}

func (s *Store) emailTaken(email string, except int64) bool {
	return indexOf(s.users, func(u domain.User) bool {
		return u.ID != except && strings.EqualFold(u.Email, email)
	}) >= 0
}

func (r Users) Create(ctx context.Context, nu repo.NewUser) (domain.User, error) {
	u := nu.User
	if err := checkUser(&u); err != nil {
		return domain.User{}, err
	}
	if len(nu.Password) < minPasswordLen {
		return domain.User{}, repo.ValidationError{Field: "password", Message: fmt.Sprintf("almeno %d caratteri", minPasswordLen)}
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(nu.Password), r.s.cost)
	if err != nil {
		return domain.User{}, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.emailTaken(u.Email, 0) {
		return domain.User{}, repo.ValidationError{Field: "email", Message: "già registrata"}
	}
	u.ID = r.s.nextID("user")
	u.Active = true
	u.PasswordHash = string(hash)
	u.CreatedAt = r.s.stamp()
	r.s.users = append(r.s.users, u)
	return u, nil
}

func (r Users) Update(ctx context.Context, id int64, u domain.User) (domain.User, error) {
	if err := checkUser(&u); err != nil {
		return domain.User{}, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	i := indexOf(r.s.users, func(u domain.User) bool { return u.ID == id })
	if i < 0 {
		return domain.User{}, repo.NotFound("user", id)
	}
	if r.s.emailTaken(u.Email, id) {
		return domain.User{}, repo.ValidationError{Field: "email", Message: "già registrata"}
	}
	cur := r.s.users[i]
	cur.Name, cur.Email, cur.Role, cur.Active = u.Name, u.Email, u.Role, u.Active
	r.s.users[i] = cur
	return cur, nil
}

func (r Users) Delete(ctx context.Context, id int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	i := indexOf(r.s.users, func(u domain.User) bool { return u.ID == id })
	if i < 0 {
		return repo.NotFound("user", id)
	}
	r.s.users = append(r.s.users[:i], r.s.users[i+1:]...)
	return nil
}

type Auth struct{ s *Store }

// Login checks the bcrypt hash and signs a session token.
func (a Auth) Login(ctx context.Context, email, password string) (domain.Session, error) {
	a.s.mu.Lock()
	i := indexOf(a.s.users, func(u domain.User) bool { return strings.EqualFold(u.Email, strings.TrimSpace(email)) })
	var u domain.User
	if i >= 0 {
		u = a.s.users[i]
	}
	a.s.mu.Unlock()
	if i < 0 || !u.Active {
		return domain.Session{}, repo.ErrInvalidLogin
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return domain.Session{}, repo.ErrInvalidLogin
	}
	tok, exp, err := auth.Issue(a.s.secret, u, a.s.now(), a.s.ttl)
	if err != nil {
		return domain.Session{}, err
	}
	return domain.Session{User: u, Token: tok, ExpiresAt: exp.Format(time.RFC3339)}, nil
}

func (a Auth) Me(ctx context.Context, token string) (domain.User, error) {
	claims, err := auth.Parse(a.s.secret, token, a.s.now())
	if err != nil {
		return domain.User{}, err
	}
	id, err := claims.UserID()
	if err != nil {
		return domain.User{}, auth.ErrInvalidToken
	}
	u, err := Users(a).Get(ctx, id)
	if errors.Is(err, repo.ErrNotFound) {
		return domain.User{}, auth.ErrInvalidToken
	}
	return u, err
}
