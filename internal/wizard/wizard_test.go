package wizard_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"hseb5/internal/domain"
	"hseb5/internal/engine"
	"hseb5/internal/fallback"
	"hseb5/internal/repo"
	"hseb5/internal/repo/memory"
	"hseb5/internal/wizard"
)

type completerFunc func(ctx context.Context, system, user string) (string, error)

func (f completerFunc) Complete(ctx context.Context, system, user string) (string, error) {
	return f(ctx, system, user)
}

type env struct {
	Engine *engine.Engine
	RiskID int64
}

func newEnv(t *testing.T) env {
	t.Helper()
	now := time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)
	store := memory.New(memory.Options{Now: func() time.Time { return now }, PasswordCost: bcrypt.MinCost})
	e := engine.New(nil, store.Repositories(), fallback.Policy{}, nil)
	res, err := e.CreateRisk(context.Background(), domain.RiskType{
		Name: "Rumore officina",
		OutputStructure: []domain.OutputField{
			{Name: "livello", Type: domain.FieldNumber, Required: true},
			{Name: "note", Type: domain.FieldString},
		},
	})
	require.NoError(t, err)
	return env{Engine: e, RiskID: res.Value.ID}
}

// toReview drives a run with the given files up to the review step.
func toReview(t *testing.T, run *wizard.Run, riskID int64, files map[string]string) {
	t.Helper()
	require.NoError(t, run.SetName("DVR Officina"))
	for _, name := range sortedKeys(files) {
		_, err := run.AddFile(name, []byte(files[name]))
		require.NoError(t, err)
	}
	require.NoError(t, run.Next())
	require.NoError(t, run.ClassifyAll(riskID))
	require.NoError(t, run.Next())
	require.NoError(t, run.Process(context.Background()))
	require.Equal(t, wizard.StepReview, run.Snapshot().Step)
}

func sortedKeys(m map[string]string) []string {
	var out []string
	for k := range m {
		out = append(out, k)
	}
	for i := range out {
		for j := i + 1; j < len(out); j++ {
			if out[j] < out[i] {
				out[i], out[j] = out[j], out[i]
			}
		}
	}
	return out
}

func fileByName(t *testing.T, s wizard.State, name string) wizard.File {
	t.Helper()
	for _, f := range s.Files {
		if f.Name == name {
			return f
		}
	}
	t.Fatalf("file %s not in run", name)
	return wizard.File{}
}

func TestUploadStepValidation(t *testing.T) {
	e := newEnv(t)
	run := wizard.New(wizard.Options{Backend: e.Engine})

	_, err := run.AddFile("foto.png", []byte("x"))
	assert.Error(t, err)
	assert.ErrorIs(t, run.Next(), wizard.ErrNoFiles)

	_, err = run.AddFile("a.txt", []byte("testo"))
	require.NoError(t, err)
	assert.ErrorIs(t, run.Next(), repo.ErrValidation)

	assert.ErrorIs(t, run.Back(), wizard.ErrWrongStep)
	assert.ErrorIs(t, run.Classify("x", 1), wizard.ErrWrongStep)
}

func TestClassificationGateListsFiles(t *testing.T) {
	e := newEnv(t)
	run := wizard.New(wizard.Options{Backend: e.Engine})
	require.NoError(t, run.SetName("DVR"))
	a, _ := run.AddFile("a.txt", []byte("a"))
	_, _ = run.AddFile("b.md", []byte("b"))
	require.NoError(t, run.Next())

	require.NoError(t, run.Classify(a, e.RiskID))
	err := run.Next()
	var unclassified *wizard.UnclassifiedError
	require.ErrorAs(t, err, &unclassified)
	assert.Equal(t, []string{"b.md"}, unclassified.Files)
	assert.ErrorIs(t, err, wizard.ErrUnclassified)

	// no skipping ahead, but going back is allowed
	assert.ErrorIs(t, run.Process(context.Background()), wizard.ErrWrongStep)
	require.NoError(t, run.Back())
	assert.Equal(t, wizard.StepUpload, run.Snapshot().Step)
}

func TestProcessIsolatesFailuresAndReportsProgress(t *testing.T) {
	e := newEnv(t)
	var (
		mu     sync.Mutex
		events []string
	)
	observer := func(s wizard.State) {
		mu.Lock()
		defer mu.Unlock()
		for _, f := range s.Files {
			if f.Status == wizard.FileProcessing {
				events = append(events, f.Name)
			}
		}
	}
	completer := completerFunc(func(ctx context.Context, system, user string) (string, error) {
		assert.Contains(t, system, "Rumore officina")
		switch {
		case strings.Contains(user, "a.txt"):
			return "Risultato: {\"livello\": 85}", nil
		case strings.Contains(user, "b.txt"):
			return "non so", nil
		default:
			return "", errors.New("quota exceeded")
		}
	})
	run := wizard.New(wizard.Options{Backend: e.Engine, Completer: completer, Observer: observer})
	toReview(t, run, e.RiskID, map[string]string{"a.txt": "85 dB", "b.txt": "?", "c.txt": "x"})

	s := run.Snapshot()
	a := fileByName(t, s, "a.txt")
	assert.Equal(t, wizard.FileDone, a.Status)
	assert.True(t, a.Parsed)
	assert.Equal(t, domain.Positivo, a.Classification)
	assert.Equal(t, "Rumore officina", a.RiskName)

	b := fileByName(t, s, "b.txt")
	assert.Equal(t, wizard.FileDone, b.Status)
	assert.False(t, b.Parsed)
	assert.Equal(t, "non so", b.Extraction["raw_text"])
	assert.Equal(t, domain.Negativo, b.Classification)

	c := fileByName(t, s, "c.txt")
	assert.Equal(t, wizard.FileError, c.Status)
	assert.Contains(t, c.Message, "quota exceeded")

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"a.txt", "b.txt", "c.txt"}, events)
}

func TestPatchExtractionReclassifies(t *testing.T) {
	e := newEnv(t)
	completer := completerFunc(func(ctx context.Context, system, user string) (string, error) {
		return `{"note": "manca il livello"}`, nil
	})
	run := wizard.New(wizard.Options{Backend: e.Engine, Completer: completer})
	toReview(t, run, e.RiskID, map[string]string{"a.txt": "x"})
	id := run.Snapshot().Files[0].ID
	assert.Equal(t, domain.Negativo, run.Snapshot().Files[0].Classification)

	require.NoError(t, run.PatchExtraction(id, []byte(`[{"op":"add","path":"/livello","value":90}]`)))
	f := run.Snapshot().Files[0]
	assert.Equal(t, domain.Positivo, f.Classification)
	assert.Equal(t, 90.0, f.Extraction["livello"])

	assert.Error(t, run.PatchExtraction(id, []byte(`not a patch`)))
}

func TestSnapshotIsACopy(t *testing.T) {
	e := newEnv(t)
	run := wizard.New(wizard.Options{Backend: e.Engine})
	toReview(t, run, e.RiskID, map[string]string{"a.txt": "x"})

	s := run.Snapshot()
	s.Files[0].Extraction["livello"] = "cambiato"
	*s.Files[0].RiskID = 999
	again := run.Snapshot()
	assert.Equal(t, 0.0, again.Files[0].Extraction["livello"])
	assert.Equal(t, e.RiskID, *again.Files[0].RiskID)
}

func TestConfirmPersistsReview(t *testing.T) {
	e := newEnv(t)
	run := wizard.New(wizard.Options{Backend: e.Engine})
	toReview(t, run, e.RiskID, map[string]string{"a.txt": "x", "b.txt": "y"})
	b := fileByName(t, run.Snapshot(), "b.txt")
	require.NoError(t, run.SetInclude(b.ID, false))
	require.NoError(t, run.SetNotes(b.ID, "  non pertinente "))

	report, err := run.Confirm(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, report.Updated)
	assert.Empty(t, report.Failures)
	assert.Equal(t, fallback.Demo, report.Source)
	assert.Equal(t, wizard.StepDone, run.Snapshot().Step)
	assert.ErrorIs(t, run.Back(), wizard.ErrWrongStep)

	files, err := e.Engine.DVRFiles(context.Background(), report.DVR.ID)
	require.NoError(t, err)
	require.Len(t, files.Value, 2)
	for _, f := range files.Value {
		assert.Equal(t, "Rumore officina", f.Risk.Name)
		assert.Equal(t, domain.Positivo, f.ClassificationResult)
		if f.FileName == "b.txt" {
			assert.False(t, f.Include)
			assert.Equal(t, "non pertinente", f.Notes)
		} else {
			assert.True(t, f.Include)
		}
	}
}

type flakyBackend struct {
	*engine.Engine
	failFile int64
}

func (b flakyBackend) UpdateDVRFile(ctx context.Context, id, fileID int64, p domain.FileMetadataPatch) (fallback.Result[domain.FileMetadata], error) {
	if fileID == b.failFile {
		return fallback.Result[domain.FileMetadata]{}, errors.New("patch rejected")
	}
	return b.Engine.UpdateDVRFile(ctx, id, fileID, p)
}

func TestConfirmCollectsFileFailures(t *testing.T) {
	e := newEnv(t)
	// the demo store numbers files after the two seeded ones
	run := wizard.New(wizard.Options{Backend: flakyBackend{Engine: e.Engine, failFile: 3}})
	toReview(t, run, e.RiskID, map[string]string{"a.txt": "x", "b.txt": "y"})

	report, err := run.Confirm(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Updated)
	require.Len(t, report.Failures, 1)
	assert.Equal(t, "patch rejected", report.Failures[0].Error)
	assert.NotZero(t, report.DVR.ID)
}

// liveCreateBackend answers the create as the live backend while every
// metadata update only reaches demo data.
type liveCreateBackend struct {
	*engine.Engine
}

func (b liveCreateBackend) CreateDVRWithFiles(ctx context.Context, in engine.CreateInput) (fallback.Result[domain.DVR], error) {
	res, err := b.Engine.CreateDVRWithFiles(ctx, in)
	res.Source = fallback.Live
	return res, err
}

func (b liveCreateBackend) UpdateDVRFile(ctx context.Context, id, fileID int64, p domain.FileMetadataPatch) (fallback.Result[domain.FileMetadata], error) {
	res, err := b.Engine.UpdateDVRFile(ctx, id, fileID, p)
	res.Source, res.Reason = fallback.Degraded, errors.New("backend unavailable")
	return res, err
}

func TestConfirmRejectsMetadataSavedOnlyToDemoData(t *testing.T) {
	e := newEnv(t)
	run := wizard.New(wizard.Options{Backend: liveCreateBackend{Engine: e.Engine}})
	toReview(t, run, e.RiskID, map[string]string{"a.txt": "x", "b.txt": "y"})

	report, err := run.Confirm(context.Background())
	require.NoError(t, err)
	assert.Equal(t, fallback.Live, report.Source)
	assert.Zero(t, report.Updated)
	require.Len(t, report.Failures, 2)
	for _, f := range report.Failures {
		assert.Equal(t, fallback.Degraded, f.Source)
		assert.Contains(t, f.Error, "demo data only")
		assert.Contains(t, f.Error, "backend unavailable")
	}
	assert.Equal(t, fallback.Degraded, report.FileSources["a.txt"])
	assert.Equal(t, fallback.Degraded, report.FileSources["b.txt"])
}

func TestConfirmRecordsFileSources(t *testing.T) {
	e := newEnv(t)
	run := wizard.New(wizard.Options{Backend: e.Engine})
	toReview(t, run, e.RiskID, map[string]string{"a.txt": "x"})

	report, err := run.Confirm(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Updated)
	assert.Equal(t, map[string]fallback.Source{"a.txt": fallback.Demo}, report.FileSources)
}
