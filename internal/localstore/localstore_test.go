package localstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"hseb5/internal/domain"
	"hseb5/internal/repo"
	"hseb5/internal/repo/memory"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), t.TempDir())
	require.NoError(t, err)
	s.Now = func() time.Time { return time.Date(2025, 2, 3, 10, 0, 0, 0, time.UTC) }
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestLoadSaveRemove(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	var v map[string]int
	ok, err := s.Load(ctx, "missing", &v)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Save(ctx, "k", map[string]int{"a": 1}))
	require.NoError(t, s.Save(ctx, "k", map[string]int{"a": 2}))
	ok, err = s.Load(ctx, "k", &v)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 2, v["a"])

	keys, err := s.Keys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"k"}, keys)

	require.NoError(t, s.Remove(ctx, "k"))
	ok, _ = s.Load(ctx, "k", &v)
	assert.False(t, ok)
}

func TestReopenKeepsData(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s, err := Open(ctx, dir)
	require.NoError(t, err)
	_, err = s.SaveRiskType(ctx, domain.RiskType{Name: "Rumore"})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = Open(ctx, dir)
	require.NoError(t, err)
	defer s.Close()
	risks, err := s.RiskTypes(ctx)
	require.NoError(t, err)
	require.Len(t, risks, 1)
	assert.Equal(t, int64(1), risks[0].ID)
}

func TestCreateNewRevisionBumpsCounter(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	d, err := s.SaveDVR(ctx, domain.DVR{Nome: "DVR", Stato: domain.DVRBozza})
	require.NoError(t, err)
	_, err = s.SaveDVRFiles(ctx, d.ID, []domain.FileMetadata{{FileName: "a.pdf", Include: true}})
	require.NoError(t, err)

	for i := 1; i <= 3; i++ {
		v, err := s.CreateNewRevision(ctx, d.ID, "")
		require.NoError(t, err)
		assert.Equal(t, i, v.Version)
		require.Len(t, v.Files, 1)
	}
	revs, err := s.DVRRevisions(ctx, d.ID)
	require.NoError(t, err)
	require.Len(t, revs, 3)
	assert.Equal(t, 3, revs[0].Version)

	dvrs, err := s.DVRs(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, dvrs[0].NumeroRevisione)

	_, err = s.CreateNewRevision(ctx, 99, "")
	assert.ErrorIs(t, err, repo.ErrNotFound)
}

func TestDVRRepositoryOverLocalStore(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	risks := Risks{S: s}
	dvrs := DVRs{S: s, Risks: risks}

	rt, err := risks.Create(ctx, domain.RiskType{Name: "Rumore"})
	require.NoError(t, err)

	d, err := dvrs.CreateWithFiles(ctx, repo.CreateDVRInput{Title: "DVR", Files: []repo.UploadFile{{FileName: "a.pdf"}, {FileName: "b.pdf"}}})
	require.NoError(t, err)
	require.Len(t, d.Files, 2)
	assert.Equal(t, "Da classificare", d.Files[0].Risk.Name)

	f, err := dvrs.UpdateFile(ctx, d.ID, d.Files[1].ID, domain.FileMetadataPatch{RiskID: &rt.ID})
	require.NoError(t, err)
	assert.Equal(t, "Rumore", f.Risk.Name)

	missing := int64(42)
	_, err = dvrs.UpdateFile(ctx, d.ID, d.Files[1].ID, domain.FileMetadataPatch{RiskID: &missing})
	assert.ErrorIs(t, err, repo.ErrValidation)

	html, err := dvrs.GetDocument(ctx, d.ID)
	require.NoError(t, err)
	assert.Contains(t, html, "<h1>DVR</h1>")
	require.NoError(t, dvrs.SaveDocument(ctx, d.ID, "<p>x</p>"))
	html, err = dvrs.GetDocument(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, "<p>x</p>", html)

	v, err := dvrs.SaveRevision(ctx, d.ID, "")
	require.NoError(t, err)
	d.Nome = "DVR modificato"
	_, err = dvrs.Update(ctx, d.ID, d)
	require.NoError(t, err)
	back, err := dvrs.RevertToRevision(ctx, d.ID, v.ID)
	require.NoError(t, err)
	assert.Equal(t, "DVR", back.Nome)
	assert.Equal(t, "Rumore", back.Files[1].Risk.Name)

	require.NoError(t, dvrs.Delete(ctx, d.ID))
	_, err = dvrs.Get(ctx, d.ID)
	assert.ErrorIs(t, err, repo.ErrNotFound)
}

func TestRiskVersionsOverLocalStore(t *testing.T) {
	ctx := context.Background()
	risks := Risks{S: openTestStore(t)}
	rt, err := risks.Create(ctx, domain.RiskType{Name: "Chimico", Description: "v1"})
	require.NoError(t, err)
	rt.Description = "v2"
	_, err = risks.Update(ctx, rt.ID, rt)
	require.NoError(t, err)

	versions, err := risks.Versions(ctx, rt.ID)
	require.NoError(t, err)
	require.Len(t, versions, 2)
	reverted, err := risks.RevertToVersion(ctx, rt.ID, versions[1].ID)
	require.NoError(t, err)
	assert.Equal(t, "v1", reverted.Description)
	assert.Equal(t, 3, reverted.Version)
}

func TestUsersAuthAndCurrentUser(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	users := Users{S: s, Cost: bcrypt.MinCost}
	a := Auth{S: s, Secret: "k"}

	u, err := users.Create(ctx, repo.NewUser{User: domain.User{Name: "Anna", Email: "Anna@Example.it", Role: "Admin"}, Password: "password"})
	require.NoError(t, err)
	assert.Equal(t, domain.RoleAdmin, u.Role)

	// hashes survive the JSON round trip through the store
	u2, err := users.Update(ctx, u.ID, domain.User{Name: "Anna B", Email: "anna@example.it", Role: domain.RoleAdmin, Active: true})
	require.NoError(t, err)
	assert.Equal(t, "Anna B", u2.Name)

	sess, err := a.Login(ctx, "anna@example.it", "password")
	require.NoError(t, err)
	cur, ok, err := s.CurrentUser(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, sess.Token, cur.Token)

	me, err := a.Me(ctx, sess.Token)
	require.NoError(t, err)
	assert.Equal(t, u.ID, me.ID)

	require.NoError(t, s.ClearCurrentUser(ctx))
	_, ok, err = s.CurrentUser(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = a.Login(ctx, "anna@example.it", "nope")
	assert.ErrorIs(t, err, repo.ErrInvalidLogin)
}

func TestBootstrapFromDemoData(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	src := memory.New(memory.Options{PasswordCost: bcrypt.MinCost}).Repositories()
	require.NoError(t, s.Bootstrap(ctx, src))

	risks, err := s.RiskTypes(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, risks)
	dvrs, err := (DVRs{S: s}).List(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, dvrs)
	assert.NotEmpty(t, dvrs[0].Files)

	_, err = Auth{S: s, Secret: "k"}.Login(ctx, memory.DemoAdminEmail, memory.DemoAdminPassword)
	require.NoError(t, err)

	// a second bootstrap leaves existing keys alone
	require.NoError(t, s.DeleteRiskType(ctx, risks[0].ID))
	require.NoError(t, s.Bootstrap(ctx, src))
	after, err := s.RiskTypes(ctx)
	require.NoError(t, err)
	assert.Len(t, after, len(risks)-1)
}
