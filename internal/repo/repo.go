// Package repo defines one repository interface per entity. The composition
// root picks an implementation (HTTP, in-memory or local store) once.
package repo

import (
	"context"
	"errors"
	"fmt"

	"hseb5/internal/domain"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrValidation   = errors.New("validation failed")
	ErrNotSupported = errors.New("operation not supported by this backend")
	ErrInvalidLogin = errors.New("invalid email or password")
)

// ValidationError reports a rejected input field. It matches ErrValidation.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e ValidationError) Is(target error) bool { return target == ErrValidation }

// Required returns a ValidationError for an empty mandatory field.
func Required(field string) error {
	return ValidationError{Field: field, Message: "obbligatorio"}
}

// NotFound wraps ErrNotFound with the entity and id.
func NotFound(entity string, id int64) error {
	return fmt.Errorf("%s %d: %w", entity, id, ErrNotFound)
}

// UploadFile is a file selected for upload.
type UploadFile struct {
	FileName string
	Data     []byte
}

type CompanyRepository interface {
	List(ctx context.Context) ([]domain.Company, error)
	Get(ctx context.Context, id int64) (domain.Company, error)
	Create(ctx context.Context, c domain.Company) (domain.Company, error)
	Update(ctx context.Context, id int64, c domain.Company) (domain.Company, error)
	Delete(ctx context.Context, id int64) error
}

type DeadlineFilter struct {
	CompanyID int64
	Status    domain.DeadlineStatus
}

type DeadlineRepository interface {
	List(ctx context.Context, f DeadlineFilter) ([]domain.Deadline, error)
	Get(ctx context.Context, id int64) (domain.Deadline, error)
	Create(ctx context.Context, d domain.Deadline) (domain.Deadline, error)
	Update(ctx context.Context, id int64, d domain.Deadline) (domain.Deadline, error)
	Delete(ctx context.Context, id int64) error
	MarkCompleted(ctx context.Context, id int64) (domain.Deadline, error)
}

type RiskRepository interface {
	List(ctx context.Context) ([]domain.RiskType, error)
	Get(ctx context.Context, id int64) (domain.RiskType, error)
	Create(ctx context.Context, r domain.RiskType) (domain.RiskType, error)
	Update(ctx context.Context, id int64, r domain.RiskType) (domain.RiskType, error)
	Delete(ctx context.Context, id int64) error
	Versions(ctx context.Context, id int64) ([]domain.RiskVersion, error)
	RevertToVersion(ctx context.Context, id, versionID int64) (domain.RiskType, error)
}

// CreateDVRInput is what the wizard persists on confirmation.
type CreateDVRInput struct {
	Title       string
	Description string
	CompanyID   *int64
	Files       []UploadFile
}

// PartialCreateError reports a DVR whose record was created but whose file
// upload failed. The DVR is not rolled back.
type PartialCreateError struct {
	DVRID int64
	Err   error
}

func (e *PartialCreateError) Error() string {
	return fmt.Sprintf("dvr %d created but file upload failed: %v", e.DVRID, e.Err)
}

func (e *PartialCreateError) Unwrap() error { return e.Err }

type DVRRepository interface {
	List(ctx context.Context) ([]domain.DVR, error)
	Get(ctx context.Context, id int64) (domain.DVR, error)
	Create(ctx context.Context, d domain.DVR) (domain.DVR, error)
	Update(ctx context.Context, id int64, d domain.DVR) (domain.DVR, error)
	Delete(ctx context.Context, id int64) error
	CreateWithFiles(ctx context.Context, in CreateDVRInput) (domain.DVR, error)
	ListFiles(ctx context.Context, id int64) ([]domain.FileMetadata, error)
	UploadFiles(ctx context.Context, id int64, files []UploadFile) ([]domain.FileMetadata, error)
	UpdateFile(ctx context.Context, id, fileID int64, p domain.FileMetadataPatch) (domain.FileMetadata, error)
	SaveRevision(ctx context.Context, id int64, note string) (domain.DVRVersion, error)
	Revisions(ctx context.Context, id int64) ([]domain.DVRVersion, error)
	RevertToRevision(ctx context.Context, id, versionID int64) (domain.DVR, error)
	GetDocument(ctx context.Context, id int64) (string, error)
	SaveDocument(ctx context.Context, id int64, html string) error
}

// UploadInput is one batch of safety data sheets for a job position.
type UploadInput struct {
	Mansione string
	Reparto  string
	Ruolo    string
	Files    []UploadFile
}

type ElaborationRepository interface {
	List(ctx context.Context) ([]domain.Elaboration, error)
	Get(ctx context.Context, id int64) (domain.Elaboration, error)
	Create(ctx context.Context, e domain.Elaboration) (domain.Elaboration, error)
	Update(ctx context.Context, id int64, e domain.Elaboration) (domain.Elaboration, error)
	// Delete is a soft delete: the record gets deleted_at and leaves List.
	Delete(ctx context.Context, id int64) error
	ListUploads(ctx context.Context, id int64) ([]domain.ElaborationUpload, error)
	CreateUpload(ctx context.Context, id int64, in UploadInput) (domain.ElaborationUpload, error)
	DeleteUpload(ctx context.Context, id, uploadID int64) error
	Generate(ctx context.Context, id int64) (domain.Elaboration, error)
}

// NewUser carries the clear-text password of a user being created.
type NewUser struct {
	domain.User
	Password string `json:"password"`
}

type UserRepository interface {
	List(ctx context.Context) ([]domain.User, error)
	Get(ctx context.Context, id int64) (domain.User, error)
	Create(ctx context.Context, u NewUser) (domain.User, error)
	Update(ctx context.Context, id int64, u domain.User) (domain.User, error)
	Delete(ctx context.Context, id int64) error
}

type AuthRepository interface {
	Login(ctx context.Context, email, password string) (domain.Session, error)
	// Me resolves the user owning token.
	Me(ctx context.Context, token string) (domain.User, error)
}

// Repositories is the set selected at the composition root.
type Repositories struct {
	Companies    CompanyRepository
	Deadlines    DeadlineRepository
	Risks        RiskRepository
	DVRs         DVRRepository
	Elaborations ElaborationRepository
	Users        UserRepository
	Auth         AuthRepository
}
