package directory

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/bitacora/core"
)

// Profile kinds, used to exclude a record from its own uniqueness check.
const (
	KindLearner       = "learner"
	KindInstructor    = "instructor"
	KindAdministrator = "administrator"
	KindCompany       = "company"
)

var DocumentTypes = []string{"CC", "TI", "CE", "PEP", "PPT"}

type (
	Learner struct {
		ID             string    `json:"id"`
		UserID         string    `json:"user_id,omitempty"`
		FullName       string    `json:"full_name"`
		DocumentType   string    `json:"document_type"`
		DocumentNumber string    `json:"document_number"`
		Email          string    `json:"email"`
		Phone          string    `json:"phone"`
		ProgramID      string    `json:"program_id,omitempty"`
		InstructorID   string    `json:"instructor_id,omitempty"`
		ContractID     string    `json:"contract_id,omitempty"`
		CreatedAt      time.Time `json:"created_at"`
		UpdatedAt      time.Time `json:"updated_at"`
	}

	Instructor struct {
		ID             string    `json:"id"`
		UserID         string    `json:"user_id,omitempty"`
		FullName       string    `json:"full_name"`
		DocumentNumber string    `json:"document_number"`
		Email          string    `json:"email"`
		Phone          string    `json:"phone"`
		Specialty      string    `json:"specialty"`
		CreatedAt      time.Time `json:"created_at"`
	}

	Administrator struct {
		ID             string    `json:"id"`
		UserID         string    `json:"user_id,omitempty"`
		FullName       string    `json:"full_name"`
		DocumentNumber string    `json:"document_number"`
		Email          string    `json:"email"`
		Phone          string    `json:"phone"`
		CreatedAt      time.Time `json:"created_at"`
	}

	Company struct {
		ID        string    `json:"id"`
		NIT       string    `json:"nit"`
		Name      string    `json:"name"`
		Email     string    `json:"email"`
		Phone     string    `json:"phone"`
		Address   string    `json:"address"`
		CreatedAt time.Time `json:"created_at"`
	}

	Contract struct {
		ID        string    `json:"id"`
		CompanyID string    `json:"company_id"`
		Kind      string    `json:"kind"`
		StartDate time.Time `json:"start_date"`
		EndDate   time.Time `json:"end_date"`
		CreatedAt time.Time `json:"created_at"`
	}

	Program struct {
		ID        string    `json:"id"`
		Code      string    `json:"code"`
		Name      string    `json:"name"`
		CohortID  string    `json:"cohort_id,omitempty"`
		CreatedAt time.Time `json:"created_at"`
	}

	Cohort struct {
		ID        string    `json:"id"`
		Code      string    `json:"code"`
		StartDate time.Time `json:"start_date"`
		EndDate   time.Time `json:"end_date"`
		CreatedAt time.Time `json:"created_at"`
	}
)

// UniqueFields are the identifiers that must be unique across users, learners, instructors,
// administrators & companies. Empty fields are not checked.
type UniqueFields struct {
	DocumentNumber string
	Email          string
	Phone          string
}

// Exclusion identifies the records a uniqueness check must ignore: the profile being updated
// and the user account it is linked to.
type Exclusion struct {
	Kind   string
	ID     string
	UserID string
}

// GetFilter selects a single profile by ID or by linked user account.
type GetFilter struct {
	ID     string
	UserID string
}

type LearnerFilter struct {
	Search       string `query:"search"`
	ProgramID    string `query:"program_id"`
	InstructorID string `query:"instructor_id"`
	ContractID   string `query:"contract_id"`
}

func (f *LearnerFilter) Clean() {
	f.Search = core.CleanString(f.Search)
}

// NewLearner contains information needed to register a Learner.
type NewLearner struct {
	UserID         string `json:"user_id" validate:"omitempty,uuid"`
	FullName       string `json:"full_name" validate:"required"`
	DocumentType   string `json:"document_type" validate:"required,oneof=CC TI CE PEP PPT"`
	DocumentNumber string `json:"document_number" validate:"required,document"`
	Email          string `json:"email" validate:"required,email"`
	Phone          string `json:"phone" validate:"omitempty,phone"`
	ProgramID      string `json:"program_id" validate:"omitempty,uuid"`
	InstructorID   string `json:"instructor_id" validate:"omitempty,uuid"`
	ContractID     string `json:"contract_id" validate:"omitempty,uuid"`
}

func (nl *NewLearner) Validate(ctx context.Context, validate *validator.Validate, svc Service) error {
	nl.FullName = core.CleanString(nl.FullName)
	nl.DocumentType = core.CleanString(nl.DocumentType)
	nl.DocumentNumber = core.CleanString(nl.DocumentNumber)
	nl.Email = core.CleanString(nl.Email, true /* lower */)
	nl.Phone = core.CleanString(nl.Phone)

	if err := validate.Struct(nl); err != nil {
		return err
	}
	return svc.CheckUniqueness(
		ctx,
		UniqueFields{DocumentNumber: nl.DocumentNumber, Email: nl.Email, Phone: nl.Phone},
		Exclusion{Kind: KindLearner, UserID: nl.UserID},
	)
}

// UpdateLearner defines what information may be provided to modify an existing Learner.
// Empty fields keep their current values.
type UpdateLearner struct {
	FullName       string `json:"full_name"`
	DocumentType   string `json:"document_type" validate:"omitempty,oneof=CC TI CE PEP PPT"`
	DocumentNumber string `json:"document_number" validate:"omitempty,document"`
	Email          string `json:"email" validate:"omitempty,email"`
	Phone          string `json:"phone" validate:"omitempty,phone"`
	ProgramID      string `json:"program_id" validate:"omitempty,uuid"`
	ContractID     string `json:"contract_id" validate:"omitempty,uuid"`
}

func (ul *UpdateLearner) Validate(ctx context.Context, orig Learner, validate *validator.Validate, svc Service) error {
	keep := func(val *string, origVal string, lower bool) {
		if v := core.CleanString(*val, lower); v != "" {
			*val = v
		} else {
			*val = origVal
		}
	}
	keep(&ul.FullName, orig.FullName, false)
	keep(&ul.DocumentType, orig.DocumentType, false)
	keep(&ul.DocumentNumber, orig.DocumentNumber, false)
	keep(&ul.Email, orig.Email, true)
	keep(&ul.Phone, orig.Phone, false)
	keep(&ul.ProgramID, orig.ProgramID, false)
	keep(&ul.ContractID, orig.ContractID, false)

	if err := validate.Struct(ul); err != nil {
		return err
	}
	return svc.CheckUniqueness(
		ctx,
		UniqueFields{DocumentNumber: ul.DocumentNumber, Email: ul.Email, Phone: ul.Phone},
		Exclusion{Kind: KindLearner, ID: orig.ID, UserID: orig.UserID},
	)
}

type NewInstructor struct {
	UserID         string `json:"user_id" validate:"omitempty,uuid"`
	FullName       string `json:"full_name" validate:"required"`
	DocumentNumber string `json:"document_number" validate:"required,document"`
	Email          string `json:"email" validate:"required,email"`
	Phone          string `json:"phone" validate:"omitempty,phone"`
	Specialty      string `json:"specialty"`
}

func (ni *NewInstructor) Validate(ctx context.Context, validate *validator.Validate, svc Service) error {
	ni.FullName = core.CleanString(ni.FullName)
	ni.DocumentNumber = core.CleanString(ni.DocumentNumber)
	ni.Email = core.CleanString(ni.Email, true /* lower */)
	ni.Phone = core.CleanString(ni.Phone)
	ni.Specialty = core.CleanString(ni.Specialty)

	if err := validate.Struct(ni); err != nil {
		return err
	}
	return svc.CheckUniqueness(
		ctx,
		UniqueFields{DocumentNumber: ni.DocumentNumber, Email: ni.Email, Phone: ni.Phone},
		Exclusion{Kind: KindInstructor, UserID: ni.UserID},
	)
}

type NewAdministrator struct {
	UserID         string `json:"user_id" validate:"omitempty,uuid"`
	FullName       string `json:"full_name" validate:"required"`
	DocumentNumber string `json:"document_number" validate:"required,document"`
	Email          string `json:"email" validate:"required,email"`
	Phone          string `json:"phone" validate:"omitempty,phone"`
}

func (na *NewAdministrator) Validate(ctx context.Context, validate *validator.Validate, svc Service) error {
	na.FullName = core.CleanString(na.FullName)
	na.DocumentNumber = core.CleanString(na.DocumentNumber)
	na.Email = core.CleanString(na.Email, true /* lower */)
	na.Phone = core.CleanString(na.Phone)

	if err := validate.Struct(na); err != nil {
		return err
	}
	return svc.CheckUniqueness(
		ctx,
		UniqueFields{DocumentNumber: na.DocumentNumber, Email: na.Email, Phone: na.Phone},
		Exclusion{Kind: KindAdministrator, UserID: na.UserID},
	)
}

type NewCompany struct {
	NIT     string `json:"nit" validate:"required,nit"`
	Name    string `json:"name" validate:"required"`
	Email   string `json:"email" validate:"omitempty,email"`
	Phone   string `json:"phone" validate:"omitempty,phone"`
	Address string `json:"address"`
}

func (nc *NewCompany) Validate(ctx context.Context, validate *validator.Validate, svc Service) error {
	nc.NIT = core.CleanString(nc.NIT)
	nc.Name = core.CleanString(nc.Name)
	nc.Email = core.CleanString(nc.Email, true /* lower */)
	nc.Phone = core.CleanString(nc.Phone)
	nc.Address = core.CleanString(nc.Address)

	if err := validate.Struct(nc); err != nil {
		return err
	}
	return svc.CheckUniqueness(
		ctx,
		UniqueFields{DocumentNumber: nc.NIT, Email: nc.Email, Phone: nc.Phone},
		Exclusion{Kind: KindCompany},
	)
}

type NewContract struct {
	CompanyID string    `json:"company_id" validate:"required,uuid"`
	Kind      string    `json:"kind" validate:"required"`
	StartDate time.Time `json:"start_date" validate:"required"`
	EndDate   time.Time `json:"end_date" validate:"required,gtefield=StartDate"`
}

func (nc *NewContract) Validate(validate *validator.Validate) error {
	nc.Kind = core.CleanString(nc.Kind)
	return validate.Struct(nc)
}

type NewProgram struct {
	Code     string `json:"code" validate:"required,alphanum_"`
	Name     string `json:"name" validate:"required"`
	CohortID string `json:"cohort_id" validate:"omitempty,uuid"`
}

func (np *NewProgram) Validate(validate *validator.Validate) error {
	np.Code = core.CleanString(np.Code)
	np.Name = core.CleanString(np.Name)
	return validate.Struct(np)
}

type NewCohort struct {
	Code      string    `json:"code" validate:"required,alphanum_"`
	StartDate time.Time `json:"start_date" validate:"required"`
	EndDate   time.Time `json:"end_date" validate:"required,gtefield=StartDate"`
}

func (nc *NewCohort) Validate(validate *validator.Validate) error {
	nc.Code = core.CleanString(nc.Code)
	return validate.Struct(nc)
}
