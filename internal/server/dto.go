package server

import (
	"hseb5/internal/domain"
)

// Request payloads

type LoginRequest struct {
	Email    string `json:"email" format:"email"`
	Password string `json:"password" minLength:"1"`
}

type RevisionRequest struct {
	Note string `json:"note,omitempty" maxLength:"500"`
}

// CreateUserRequest mirrors repo.NewUser on the wire.
type CreateUserRequest struct {
	Name      string      `json:"name"`
	Email     string      `json:"email"`
	Role      domain.Role `json:"role,omitempty" enum:"admin,user"`
	Password  string      `json:"password"`
	ID        int64       `json:"id,omitempty"`
	CreatedAt string      `json:"created_at,omitempty"`
}

// Response payloads

type PublishedDocument struct {
	URL      string `json:"url"`
	FileName string `json:"file_name"`
}

// Shared inputs and outputs

type idPath struct {
	ID int64 `path:"id"`
}

type body[T any] struct {
	Body T `json:"body"`
}

// download is a binary response sent with its own content type.
type download struct {
	ContentType        string `header:"Content-Type"`
	ContentDisposition string `header:"Content-Disposition"`
	Body               []byte
}

const xlsxType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

func records(items []domain.DVR) []domain.DVRRecord {
	out := make([]domain.DVRRecord, len(items))
	for i, d := range items {
		out[i] = d.Record()
	}
	return out
}
