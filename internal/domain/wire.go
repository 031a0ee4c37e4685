package domain

// DVRRecord is the DVR as the backend stores it: English field names and
// the backend status vocabulary.
type DVRRecord struct {
	ID          int64          `json:"id"`
	Title       string         `json:"title"`
	Description string         `json:"description,omitempty"`
	Status      string         `json:"status"`
	Revision    int            `json:"revision"`
	CompanyID   *int64         `json:"company_id,omitempty"`
	Company     *Company       `json:"company,omitempty"`
	Files       []FileMetadata `json:"files,omitempty"`
	CreatedBy   string         `json:"created_by,omitempty"`
	UpdatedBy   string         `json:"updated_by,omitempty"`
	CreatedAt   string         `json:"created_at,omitempty"`
	UpdatedAt   string         `json:"updated_at,omitempty"`
}

// Record converts to the backend shape.
func (d DVR) Record() DVRRecord {
	return DVRRecord{
		ID:          d.ID,
		Title:       d.Nome,
		Description: d.Descrizione,
		Status:      ToBackendStatus(d.Stato),
		Revision:    d.NumeroRevisione,
		CompanyID:   d.CompanyID,
		Company:     d.Company,
		Files:       d.Files,
		CreatedBy:   d.CreatedBy,
		UpdatedBy:   d.UpdatedBy,
		CreatedAt:   d.CreatedAt,
		UpdatedAt:   d.UpdatedAt,
	}
}

// DVR converts from the backend shape.
func (r DVRRecord) DVR() DVR {
	files := r.Files
	if files == nil {
		files = []FileMetadata{}
	}
	return DVR{
		ID:              r.ID,
		Nome:            r.Title,
		Descrizione:     r.Description,
		Stato:           FromBackendStatus(r.Status),
		NumeroRevisione: r.Revision,
		CompanyID:       r.CompanyID,
		Company:         r.Company,
		Files:           files,
		CreatedBy:       r.CreatedBy,
		UpdatedBy:       r.UpdatedBy,
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       r.UpdatedAt,
	}
}
