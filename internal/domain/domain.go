package domain

type Company struct {
	ID              int64    `json:"id"`
	Name            string   `json:"name" validate:"required"`
	VATNumber       string   `json:"vat_number,omitempty"`
	TaxCode         string   `json:"tax_code,omitempty"`
	Address         string   `json:"address,omitempty"`
	City            string   `json:"city,omitempty"`
	Province        string   `json:"province,omitempty"`
	ZipCode         string   `json:"zip_code,omitempty"`
	Country         string   `json:"country,omitempty"`
	Email           string   `json:"email,omitempty" validate:"omitempty,email"`
	PEC             string   `json:"pec,omitempty" validate:"omitempty,email"`
	Phone           string   `json:"phone,omitempty"`
	ContactPerson   string   `json:"contact_person,omitempty"`
	LegalRepresent  string   `json:"legal_representative,omitempty"`
	RSPP            string   `json:"rspp,omitempty"`
	CompetentDoctor string   `json:"medico_competente,omitempty"`
	RLS             string   `json:"rls,omitempty"`
	ATECOCode       string   `json:"ateco_code,omitempty"`
	EmployeesCount  int      `json:"employees_count,omitempty"`
	Mansioni        []string `json:"mansioni,omitempty"`
	Reparti         []string `json:"reparti,omitempty"`
	Ruoli           []string `json:"ruoli,omitempty"`
	Notes           string   `json:"notes,omitempty"`
	CreatedAt       string   `json:"created_at,omitempty" format:"date-time"`
	UpdatedAt       string   `json:"updated_at,omitempty" format:"date-time"`
}

type Deadline struct {
	ID                int64          `json:"id"`
	Title             string         `json:"title" validate:"required"`
	Description       string         `json:"description,omitempty"`
	CompanyID         int64          `json:"company_id" validate:"required"`
	CompanyName       string         `json:"company_name,omitempty"`
	RiskID            *int64         `json:"risk_id,omitempty"`
	LastVisitDate     string         `json:"last_visit_date,omitempty" format:"date"`
	NextVisitDate     string         `json:"next_visit_date,omitempty" format:"date"`
	NextVisitInterval Interval       `json:"next_visit_interval"`
	Status            DeadlineStatus `json:"status,omitempty" enum:"pending,overdue,completed"`
	CreatedAt         string         `json:"created_at,omitempty" format:"date-time"`
	UpdatedAt         string         `json:"updated_at,omitempty" format:"date-time"`
}

type RiskType struct {
	ID                int64         `json:"id"`
	Name              string        `json:"name" validate:"required"`
	Description       string        `json:"description,omitempty"`
	Status            RiskStatus    `json:"status,omitempty" enum:"draft,validated,active"`
	InputExpectations string        `json:"inputExpectations,omitempty"`
	OutputStructure   []OutputField `json:"outputStructure,omitempty"`
	AIPrompt          string        `json:"aiPrompt,omitempty"`
	Version           int           `json:"version"`
	CreatedAt         string        `json:"created_at,omitempty" format:"date-time"`
	UpdatedAt         string        `json:"updated_at,omitempty" format:"date-time"`
}

// OutputField describes one field of the JSON object the AI must return.
// Children are only meaningful for object and array fields.
type OutputField struct {
	Name        string        `json:"name" yaml:"name"`
	Type        FieldType     `json:"type" yaml:"type" enum:"string,number,boolean,array,object"`
	Description string        `json:"description,omitempty" yaml:"description,omitempty"`
	Required    bool          `json:"required" yaml:"required"`
	Children    []OutputField `json:"children,omitempty" yaml:"children,omitempty"`
}

type RiskVersion struct {
	ID                int64         `json:"id"`
	RiskID            int64         `json:"risk_id"`
	Version           int           `json:"version"`
	Name              string        `json:"name"`
	Description       string        `json:"description,omitempty"`
	Status            RiskStatus    `json:"status"`
	InputExpectations string        `json:"inputExpectations,omitempty"`
	OutputStructure   []OutputField `json:"outputStructure,omitempty"`
	AIPrompt          string        `json:"aiPrompt,omitempty"`
	CreatedAt         string        `json:"created_at,omitempty" format:"date-time"`
}

type Elaboration struct {
	ID           int64             `json:"id"`
	Title        string            `json:"title" validate:"required"`
	CompanyID    int64             `json:"company_id"`
	CompanyName  string            `json:"company_name,omitempty"`
	Status       ElaborationStatus `json:"status,omitempty" enum:"bozza,pending,elaborating,completed,error"`
	UploadsCount int               `json:"uploads_count"`
	FilesCount   int               `json:"files_count"`
	BeginAt      *string           `json:"begin_at,omitempty" format:"date-time"`
	EndAt        *string           `json:"end_at,omitempty" format:"date-time"`
	ErrorMessage string            `json:"error_message,omitempty"`
	CreatedAt    string            `json:"created_at,omitempty" format:"date-time"`
	UpdatedAt    string            `json:"updated_at,omitempty" format:"date-time"`
	DeletedAt    *string           `json:"deleted_at,omitempty" format:"date-time"`
}

type ElaborationUpload struct {
	ID            int64             `json:"id"`
	ElaborationID int64             `json:"elaboration_id"`
	Mansione      string            `json:"mansione"`
	Reparto       string            `json:"reparto"`
	Ruolo         string            `json:"ruolo"`
	Files         []ElaborationFile `json:"files"`
	Status        ElaborationStatus `json:"status"`
	CreatedAt     string            `json:"created_at,omitempty" format:"date-time"`
}

// ElaborationFile is one safety data sheet. Rows holds the tabular values
// extracted from it once the elaboration completes.
type ElaborationFile struct {
	ID        int64               `json:"id"`
	UploadID  int64               `json:"upload_id"`
	FileName  string              `json:"file_name"`
	Size      int64               `json:"size"`
	Status    ElaborationStatus   `json:"status"`
	Rows      []map[string]string `json:"rows,omitempty"`
	CreatedAt string              `json:"created_at,omitempty" format:"date-time"`
}

type DVR struct {
	ID              int64          `json:"id"`
	Nome            string         `json:"nome" validate:"required"`
	Descrizione     string         `json:"descrizione,omitempty"`
	Stato           DVRStatus      `json:"stato"`
	NumeroRevisione int            `json:"numero_revisione"`
	CompanyID       *int64         `json:"company_id,omitempty"`
	Company         *Company       `json:"company,omitempty"`
	Files           []FileMetadata `json:"files"`
	CreatedBy       string         `json:"created_by,omitempty"`
	UpdatedBy       string         `json:"updated_by,omitempty"`
	CreatedAt       string         `json:"created_at,omitempty" format:"date-time"`
	UpdatedAt       string         `json:"updated_at,omitempty" format:"date-time"`
}

// FileRisk is the denormalised risk reference carried by each DVR file.
type FileRisk struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type FileMetadata struct {
	ID                   int64          `json:"id"`
	DVRID                int64          `json:"dvr_id"`
	FileName             string         `json:"file_name"`
	Include              bool           `json:"include"`
	RiskID               *int64         `json:"risk_id,omitempty"`
	Notes                string         `json:"notes,omitempty"`
	ClassificationResult Classification `json:"classification_result,omitempty"`
	ExtractionData       map[string]any `json:"extraction_data,omitempty"`
	Risk                 FileRisk       `json:"risk"`
	CreatedAt            string         `json:"created_at,omitempty" format:"date-time"`
	UpdatedAt            string         `json:"updated_at,omitempty" format:"date-time"`
}

// FileMetadataPatch carries the review-step fields; nil means unchanged.
type FileMetadataPatch struct {
	Include              *bool           `json:"include,omitempty"`
	RiskID               *int64          `json:"risk_id,omitempty"`
	Notes                *string         `json:"notes,omitempty"`
	ClassificationResult *Classification `json:"classification_result,omitempty"`
	ExtractionData       map[string]any  `json:"extraction_data,omitempty"`
}

type DVRVersion struct {
	ID          int64          `json:"id"`
	DVRID       int64          `json:"dvr_id"`
	Version     int            `json:"version"`
	Nome        string         `json:"nome"`
	Descrizione string         `json:"descrizione,omitempty"`
	Stato       DVRStatus      `json:"stato"`
	Files       []FileMetadata `json:"files"`
	Note        string         `json:"note,omitempty"`
	CreatedBy   string         `json:"created_by,omitempty"`
	CreatedAt   string         `json:"created_at,omitempty" format:"date-time"`
}

type User struct {
	ID           int64  `json:"id"`
	Name         string `json:"name" validate:"required"`
	Email        string `json:"email" validate:"required,email"`
	Role         Role   `json:"role,omitempty" enum:"admin,user"`
	Active       bool   `json:"active"`
	PasswordHash string `json:"-"`
	CreatedAt    string `json:"created_at,omitempty" format:"date-time"`
}

// Session is the authenticated user plus the bearer token sent to the API.
type Session struct {
	User      User   `json:"user"`
	Token     string `json:"token"`
	ExpiresAt string `json:"expires_at,omitempty" format:"date-time"`
}
