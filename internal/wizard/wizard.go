// Package wizard runs the DVR creation pipeline: files are uploaded, each
// one is classified against a risk type, processed through the completion
// service, reviewed and finally persisted as a new DVR.
//
// A Run is a coordinator over a single mutable state. Every change is
// published to the Observer as an immutable snapshot.
package wizard

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"hseb5/internal/ai"
	"hseb5/internal/domain"
	"hseb5/internal/engine"
	"hseb5/internal/extract"
	"hseb5/internal/fallback"
	"hseb5/internal/metrics"
	"hseb5/internal/prompt"
	"hseb5/internal/repo"
	"hseb5/internal/schema"
)

type Step string

const (
	StepUpload         Step = "upload"
	StepClassification Step = "classification"
	StepProcessing     Step = "processing"
	StepReview         Step = "review"
	StepDone           Step = "done"
)

var order = []Step{StepUpload, StepClassification, StepProcessing, StepReview, StepDone}

func (s Step) index() int {
	for i, st := range order {
		if st == s {
			return i
		}
	}
	return -1
}

type FileStatus string

const (
	FilePending    FileStatus = "pending"
	FileProcessing FileStatus = "processing"
	FileDone       FileStatus = "done"
	FileError      FileStatus = "error"
)

// MaxPromptText bounds the document text sent with each completion.
const MaxPromptText = 60000

// ConfirmConcurrency bounds the metadata updates issued on confirmation.
const ConfirmConcurrency = 4

var (
	ErrWrongStep    = errors.New("wizard: operation not allowed in this step")
	ErrUnclassified = errors.New("wizard: files without a risk type")
	ErrNoFiles      = errors.New("wizard: no files uploaded")
	ErrUnknownFile  = errors.New("wizard: unknown file")
)

// UnclassifiedError lists the files blocking the classification step.
type UnclassifiedError struct {
	Files []string
}

func (e *UnclassifiedError) Error() string {
	return fmt.Sprintf("%v: %s", ErrUnclassified, strings.Join(e.Files, ", "))
}

func (e *UnclassifiedError) Is(target error) bool { return target == ErrUnclassified }

// File is one uploaded document and its progress through the pipeline.
type File struct {
	ID             string                `json:"id"`
	Name           string                `json:"name"`
	Size           int64                 `json:"size"`
	RiskID         *int64                `json:"risk_id,omitempty"`
	RiskName       string                `json:"risk_name,omitempty"`
	Status         FileStatus            `json:"status"`
	Message        string                `json:"message,omitempty"`
	Extraction     map[string]any        `json:"extraction,omitempty"`
	Parsed         bool                  `json:"parsed"`
	Classification domain.Classification `json:"classification,omitempty"`
	Include        bool                  `json:"include"`
	Notes          string                `json:"notes,omitempty"`

	data   []byte
	fields []domain.OutputField
}

// State is a snapshot of a run.
type State struct {
	RunID       string      `json:"run_id"`
	Step        Step        `json:"step"`
	Name        string      `json:"name"`
	Description string      `json:"description,omitempty"`
	CompanyID   *int64      `json:"company_id,omitempty"`
	Files       []File      `json:"files"`
	DVR         *domain.DVR `json:"dvr,omitempty"`
}

// Observer receives a snapshot after every state change.
type Observer func(State)

// Backend is the slice of the engine the wizard needs.
type Backend interface {
	GetRisk(ctx context.Context, id int64) (fallback.Result[domain.RiskType], error)
	CreateDVRWithFiles(ctx context.Context, in engine.CreateInput) (fallback.Result[domain.DVR], error)
	UpdateDVRFile(ctx context.Context, id, fileID int64, p domain.FileMetadataPatch) (fallback.Result[domain.FileMetadata], error)
}

type Options struct {
	Backend Backend
	// Completer may be nil; extractions are then simulated from the risk's
	// output structure.
	Completer ai.Completer
	Observer  Observer
	Logger    *zap.Logger
	Metrics   *metrics.Metrics
}

type Run struct {
	backend   Backend
	completer ai.Completer
	observer  Observer
	logger    *zap.Logger
	metrics   *metrics.Metrics

	mu    sync.Mutex
	state State
}

func New(opts Options) *Run {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	id := uuid.NewString()
	return &Run{
		backend:   opts.Backend,
		completer: opts.Completer,
		observer:  opts.Observer,
		logger:    logger.With(zap.String("component", "wizard"), zap.String("run", id)),
		metrics:   opts.Metrics,
		state:     State{RunID: id, Step: StepUpload},
	}
}

// Snapshot returns a deep copy of the current state.
func (r *Run) Snapshot() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshotLocked()
}

func (r *Run) snapshotLocked() State {
	s := r.state
	if s.CompanyID != nil {
		id := *s.CompanyID
		s.CompanyID = &id
	}
	if s.DVR != nil {
		d := *s.DVR
		d.Files = append([]domain.FileMetadata(nil), d.Files...)
		s.DVR = &d
	}
	s.Files = make([]File, len(r.state.Files))
	for i, f := range r.state.Files {
		if f.RiskID != nil {
			id := *f.RiskID
			f.RiskID = &id
		}
		f.Extraction = cloneMap(f.Extraction)
		f.data, f.fields = nil, nil
		s.Files[i] = f
	}
	return s
}

// mutate applies fn under the lock and publishes the result when fn
// succeeds.
func (r *Run) mutate(fn func(s *State) error) error {
	r.mu.Lock()
	err := fn(&r.state)
	var snap State
	if err == nil && r.observer != nil {
		snap = r.snapshotLocked()
	}
	r.mu.Unlock()
	if err == nil && r.observer != nil {
		r.observer(snap)
	}
	return err
}

func (s *State) require(step Step) error {
	if s.Step != step {
		return fmt.Errorf("%w: %s (current %s)", ErrWrongStep, step, s.Step)
	}
	return nil
}

func (s *State) file(id string) (*File, error) {
	for i := range s.Files {
		if s.Files[i].ID == id {
			return &s.Files[i], nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownFile, id)
}

// Upload step

func (r *Run) AddFile(name string, data []byte) (string, error) {
	name = strings.TrimSpace(name)
	if err := extract.ValidateUpload(name, int64(len(data))); err != nil {
		return "", err
	}
	id := uuid.NewString()
	err := r.mutate(func(s *State) error {
		if err := s.require(StepUpload); err != nil {
			return err
		}
		s.Files = append(s.Files, File{ID: id, Name: name, Size: int64(len(data)), Status: FilePending, Include: true, data: data})
		return nil
	})
	return id, err
}

func (r *Run) RemoveFile(id string) error {
	return r.mutate(func(s *State) error {
		if err := s.require(StepUpload); err != nil {
			return err
		}
		for i := range s.Files {
			if s.Files[i].ID == id {
				s.Files = append(s.Files[:i], s.Files[i+1:]...)
				return nil
			}
		}
		return fmt.Errorf("%w: %s", ErrUnknownFile, id)
	})
}

func (r *Run) SetName(name string) error {
	return r.mutate(func(s *State) error {
		if err := s.require(StepUpload); err != nil {
			return err
		}
		s.Name = strings.TrimSpace(name)
		return nil
	})
}

func (r *Run) SetDescription(desc string) error {
	return r.mutate(func(s *State) error {
		if err := s.require(StepUpload); err != nil {
			return err
		}
		s.Description = strings.TrimSpace(desc)
		return nil
	})
}

// SetCompany links the DVR to a company; nil clears it.
func (r *Run) SetCompany(id *int64) error {
	return r.mutate(func(s *State) error {
		if err := s.require(StepUpload); err != nil {
			return err
		}
		s.CompanyID = id
		return nil
	})
}

// Classification step

func (r *Run) Classify(fileID string, riskID int64) error {
	return r.mutate(func(s *State) error {
		if err := s.require(StepClassification); err != nil {
			return err
		}
		f, err := s.file(fileID)
		if err != nil {
			return err
		}
		f.RiskID = &riskID
		f.RiskName = ""
		f.Status, f.Message = FilePending, ""
		f.Extraction, f.Parsed, f.Classification = nil, false, ""
		return nil
	})
}

// ClassifyAll assigns one risk type to every file.
func (r *Run) ClassifyAll(riskID int64) error {
	for _, f := range r.Snapshot().Files {
		if err := r.Classify(f.ID, riskID); err != nil {
			return err
		}
	}
	return nil
}

// Navigation

// Next advances one step. Leaving processing requires Process; leaving review
// requires Confirm.
func (r *Run) Next() error {
	return r.mutate(func(s *State) error {
		switch s.Step {
		case StepUpload:
			if len(s.Files) == 0 {
				return ErrNoFiles
			}
			if s.Name == "" {
				return repo.Required("name")
			}
			s.Step = StepClassification
		case StepClassification:
			var missing []string
			for _, f := range s.Files {
				if f.RiskID == nil {
					missing = append(missing, f.Name)
				}
			}
			if len(missing) > 0 {
				return &UnclassifiedError{Files: missing}
			}
			s.Step = StepProcessing
		default:
			return fmt.Errorf("%w: next from %s", ErrWrongStep, s.Step)
		}
		return nil
	})
}

// Back returns to the previous step. There is no way back from upload or
// from a confirmed run.
func (r *Run) Back() error {
	return r.mutate(func(s *State) error {
		i := s.Step.index()
		if i <= 0 || s.Step == StepDone {
			return fmt.Errorf("%w: back from %s", ErrWrongStep, s.Step)
		}
		s.Step = order[i-1]
		return nil
	})
}

// Processing step

type riskInfo struct {
	name   string
	prompt string
	fields []domain.OutputField
}

// Process handles every file in order. A failing file is marked as an error
// and the next one is processed. When all files are handled the run moves to
// review. A cancelled context stops processing and leaves the step unchanged.
func (r *Run) Process(ctx context.Context) error {
	snap := r.Snapshot()
	if snap.Step != StepProcessing {
		return fmt.Errorf("%w: processing (current %s)", ErrWrongStep, snap.Step)
	}
	risks := map[int64]riskInfo{}
	for _, f := range snap.Files {
		if err := ctx.Err(); err != nil {
			return err
		}
		r.setFile(f.ID, func(ff *File) { ff.Status, ff.Message = FileProcessing, "" })

		res, err := r.processFile(ctx, f.ID, risks)
		if err != nil {
			r.logger.Warn("file processing failed", zap.String("file", f.Name), zap.Error(err))
			r.metrics.WizardFile(string(FileError))
			r.setFile(f.ID, func(ff *File) { ff.Status, ff.Message = FileError, err.Error() })
			continue
		}
		r.metrics.WizardFile(string(FileDone))
		r.setFile(f.ID, func(ff *File) {
			ff.Status = FileDone
			ff.RiskName = res.risk.name
			ff.Extraction, ff.Parsed = res.data, res.parsed
			ff.Classification = schema.Classify(res.risk.fields, res.data)
			ff.fields = res.risk.fields
		})
	}
	return r.mutate(func(s *State) error {
		if err := s.require(StepProcessing); err != nil {
			return err
		}
		s.Step = StepReview
		return nil
	})
}

type fileResult struct {
	risk   riskInfo
	data   map[string]any
	parsed bool
}

func (r *Run) processFile(ctx context.Context, id string, risks map[int64]riskInfo) (fileResult, error) {
	r.mu.Lock()
	f, err := r.state.file(id)
	var (
		name   string
		data   []byte
		riskID int64
	)
	if err == nil {
		name, data = f.Name, f.data
		if f.RiskID != nil {
			riskID = *f.RiskID
		}
	}
	r.mu.Unlock()
	if err != nil {
		return fileResult{}, err
	}

	text, err := extract.Text(name, data)
	if err != nil {
		return fileResult{}, err
	}
	risk, ok := risks[riskID]
	if !ok {
		res, err := r.backend.GetRisk(ctx, riskID)
		if err != nil {
			return fileResult{}, fmt.Errorf("load risk %d: %w", riskID, err)
		}
		rt := res.Value
		risk = riskInfo{name: rt.Name, prompt: rt.AIPrompt, fields: rt.OutputStructure}
		if strings.TrimSpace(risk.prompt) == "" {
			risk.prompt = prompt.Generate(rt.Name, rt.InputExpectations, rt.OutputStructure)
		}
		risks[riskID] = risk
	}

	if r.completer == nil {
		return fileResult{risk: risk, data: ai.Sample(risk.fields), parsed: true}, nil
	}
	text = truncateText(text, MaxPromptText)
	reply, err := r.completer.Complete(ctx, risk.prompt, ai.UserMessage(name, text))
	if err != nil {
		return fileResult{}, err
	}
	out, parsed := ai.ParseJSON(reply)
	return fileResult{risk: risk, data: out, parsed: parsed}, nil
}

// truncateText cuts s to at most n bytes without splitting a character.
func truncateText(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

func (r *Run) setFile(id string, fn func(*File)) {
	_ = r.mutate(func(s *State) error {
		f, err := s.file(id)
		if err != nil {
			return err
		}
		fn(f)
		return nil
	})
}

// Review step

func (r *Run) reviewFile(id string, fn func(*File) error) error {
	return r.mutate(func(s *State) error {
		if err := s.require(StepReview); err != nil {
			return err
		}
		f, err := s.file(id)
		if err != nil {
			return err
		}
		return fn(f)
	})
}

func (r *Run) SetInclude(id string, include bool) error {
	return r.reviewFile(id, func(f *File) error { f.Include = include; return nil })
}

func (r *Run) SetNotes(id, notes string) error {
	return r.reviewFile(id, func(f *File) error { f.Notes = strings.TrimSpace(notes); return nil })
}

// PatchExtraction applies an RFC 6902 patch to a file's extraction and
// classifies the result again.
func (r *Run) PatchExtraction(id string, patch []byte) error {
	return r.reviewFile(id, func(f *File) error {
		out, err := schema.ApplyPatch(f.Extraction, patch)
		if err != nil {
			return err
		}
		f.Extraction, f.Parsed = out, true
		f.Classification = schema.Classify(f.fields, out)
		return nil
	})
}

type FileFailure struct {
	FileName string          `json:"file_name"`
	Error    string          `json:"error"`
	Source   fallback.Source `json:"source,omitempty"`
}

// ConfirmReport describes the persisted DVR. Failed metadata updates do not
// undo the DVR or the other files. FileSources holds where each metadata
// update landed, by file name.
type ConfirmReport struct {
	DVR         domain.DVR                 `json:"dvr"`
	Source      fallback.Source            `json:"source"`
	Updated     int                        `json:"updated"`
	FileSources map[string]fallback.Source `json:"file_sources,omitempty"`
	Failures    []FileFailure              `json:"failures,omitempty"`
	Duration    time.Duration              `json:"duration"`
}

// Confirm creates the DVR with its files and then updates every file's
// metadata concurrently.
func (r *Run) Confirm(ctx context.Context) (ConfirmReport, error) {
	start := time.Now()
	r.mu.Lock()
	if err := r.state.require(StepReview); err != nil {
		r.mu.Unlock()
		return ConfirmReport{}, err
	}
	in := engine.CreateInput{Title: r.state.Name, Description: r.state.Description, CompanyID: r.state.CompanyID}
	files := make([]File, len(r.state.Files))
	copy(files, r.state.Files)
	for _, f := range files {
		in.Files = append(in.Files, repo.UploadFile{FileName: f.Name, Data: f.data})
	}
	r.mu.Unlock()

	res, err := r.backend.CreateDVRWithFiles(ctx, in)
	if err != nil {
		return ConfirmReport{}, fmt.Errorf("create dvr: %w", err)
	}
	d := res.Value
	report := ConfirmReport{DVR: d, Source: res.Source, FileSources: map[string]fallback.Source{}}
	created := matchFiles(files, d.Files)

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	g.SetLimit(ConfirmConcurrency)
	for i, f := range files {
		meta, ok := created[i]
		if !ok {
			report.Failures = append(report.Failures, FileFailure{FileName: f.Name, Error: "file not found on the created DVR"})
			continue
		}
		patch := filePatch(f)
		g.Go(func() error {
			up, err := r.backend.UpdateDVRFile(ctx, d.ID, meta.ID, patch)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				report.Failures = append(report.Failures, FileFailure{FileName: f.Name, Error: err.Error()})
				return nil
			}
			report.FileSources[f.Name] = up.Source
			// A live DVR whose metadata only reached demo data is not updated.
			if res.Source == fallback.Live && up.Source != fallback.Live {
				msg := "metadata saved to demo data only"
				if up.Reason != nil {
					msg += ": " + up.Reason.Error()
				}
				report.Failures = append(report.Failures, FileFailure{FileName: f.Name, Error: msg, Source: up.Source})
				return nil
			}
			report.Updated++
			return nil
		})
	}
	_ = g.Wait()
	report.Duration = time.Since(start)

	r.logger.Info("dvr confirmed",
		zap.Int64("dvr", d.ID), zap.Int("updated", report.Updated), zap.Int("failed", len(report.Failures)),
		zap.String("source", string(res.Source)))
	err = r.mutate(func(s *State) error {
		s.Step = StepDone
		s.DVR = &d
		return nil
	})
	return report, err
}

// matchFiles pairs wizard files with the created metadata by file name, in
// upload order, falling back to position.
func matchFiles(files []File, metas []domain.FileMetadata) map[int]domain.FileMetadata {
	out := map[int]domain.FileMetadata{}
	used := make([]bool, len(metas))
	for i, f := range files {
		for j, m := range metas {
			if !used[j] && m.FileName == f.Name {
				out[i], used[j] = m, true
				break
			}
		}
	}
	for i := range files {
		if _, ok := out[i]; ok || i >= len(metas) || used[i] {
			continue
		}
		out[i], used[i] = metas[i], true
	}
	return out
}

func filePatch(f File) domain.FileMetadataPatch {
	include := f.Include
	notes := f.Notes
	p := domain.FileMetadataPatch{Include: &include, Notes: &notes, RiskID: f.RiskID, ExtractionData: f.Extraction}
	if f.Classification != "" {
		c := f.Classification
		p.ClassificationResult = &c
	}
	return p
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return cloneMap(t)
	case []any:
		out := make([]any, len(t))
		for i, x := range t {
			out[i] = cloneValue(x)
		}
		return out
	default:
		return v
	}
}
