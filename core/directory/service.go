package directory

import (
	"context"
	"time"

	"github.com/kat-co/vala"
	"github.com/pkg/errors"

	"github.com/trezcool/bitacora/core"
)

var (
	// errors
	ErrLearnerNotFound       = errors.New("learner not found")
	ErrInstructorNotFound    = errors.New("instructor not found")
	ErrAdministratorNotFound = errors.New("administrator not found")
	ErrCompanyNotFound       = errors.New("company not found")
	ErrContractNotFound      = errors.New("contract not found")
	ErrProgramNotFound       = errors.New("program not found")
	ErrCohortNotFound        = errors.New("cohort not found")
	ErrAlreadyRegistered     = errors.New("already registered")
	ErrAccountLinked         = errors.New("already linked to an account")
)

// IsNotFound reports whether the cause of `err` is one of the directory "not found" errors.
func IsNotFound(err error) bool {
	switch errors.Cause(err) {
	case ErrLearnerNotFound, ErrInstructorNotFound, ErrAdministratorNotFound, ErrCompanyNotFound,
		ErrContractNotFound, ErrProgramNotFound, ErrCohortNotFound:
		return true
	}
	return false
}

type (
	Repository interface {
		// FindTakenFields returns the names ("document_number", "email", "phone") of the `fields`
		// already used by a user, learner, instructor, administrator or company other than `excl`.
		FindTakenFields(ctx context.Context, fields UniqueFields, excl Exclusion, exec ...core.DBExecutor) ([]string, error)

		CreateLearner(ctx context.Context, lrn Learner, exec ...core.DBExecutor) (Learner, error)
		GetLearner(ctx context.Context, filter GetFilter, exec ...core.DBExecutor) (Learner, error)
		QueryLearners(ctx context.Context, filter *LearnerFilter, exec ...core.DBExecutor) ([]Learner, error)
		UpdateLearner(ctx context.Context, lrn Learner, exec ...core.DBExecutor) (Learner, error)
		// DeleteLearner deletes a learner and, by cascade, their evidence records.
		DeleteLearner(ctx context.Context, id string, exec ...core.DBExecutor) error

		CreateInstructor(ctx context.Context, ins Instructor, exec ...core.DBExecutor) (Instructor, error)
		GetInstructor(ctx context.Context, filter GetFilter, exec ...core.DBExecutor) (Instructor, error)
		QueryInstructors(ctx context.Context, search string, exec ...core.DBExecutor) ([]Instructor, error)

		CreateAdministrator(ctx context.Context, adm Administrator, exec ...core.DBExecutor) (Administrator, error)
		GetAdministrator(ctx context.Context, filter GetFilter, exec ...core.DBExecutor) (Administrator, error)
		QueryAdministrators(ctx context.Context, search string, exec ...core.DBExecutor) ([]Administrator, error)

		CreateCompany(ctx context.Context, cmp Company, exec ...core.DBExecutor) (Company, error)
		GetCompany(ctx context.Context, id string, exec ...core.DBExecutor) (Company, error)
		QueryCompanies(ctx context.Context, search string, exec ...core.DBExecutor) ([]Company, error)

		CreateContract(ctx context.Context, cnt Contract, exec ...core.DBExecutor) (Contract, error)
		GetContract(ctx context.Context, id string, exec ...core.DBExecutor) (Contract, error)
		QueryContracts(ctx context.Context, companyID string, exec ...core.DBExecutor) ([]Contract, error)

		CreateProgram(ctx context.Context, prg Program, exec ...core.DBExecutor) (Program, error)
		GetProgram(ctx context.Context, id string, exec ...core.DBExecutor) (Program, error)
		QueryPrograms(ctx context.Context, cohortID string, exec ...core.DBExecutor) ([]Program, error)

		CreateCohort(ctx context.Context, chr Cohort, exec ...core.DBExecutor) (Cohort, error)
		GetCohort(ctx context.Context, id string, exec ...core.DBExecutor) (Cohort, error)
		QueryCohorts(ctx context.Context, exec ...core.DBExecutor) ([]Cohort, error)

		// LinkAccount sets the user account of the `kind` profile `id`.
		LinkAccount(ctx context.Context, kind, id, userID string, exec ...core.DBExecutor) error
	}

	Service interface {
		CheckUniqueness(ctx context.Context, fields UniqueFields, excl Exclusion) error

		CreateLearner(ctx context.Context, nl NewLearner) (Learner, error)
		GetLearner(ctx context.Context, id string) (Learner, error)
		GetLearnerByUserID(ctx context.Context, userID string) (Learner, error)
		QueryLearners(ctx context.Context, filter *LearnerFilter) ([]Learner, error)
		UpdateLearner(ctx context.Context, lrn Learner, ul UpdateLearner) (Learner, error)
		DeleteLearner(ctx context.Context, id string) error
		AssignInstructor(ctx context.Context, learnerID, instructorID string) (Learner, error)

		CreateInstructor(ctx context.Context, ni NewInstructor) (Instructor, error)
		GetInstructor(ctx context.Context, id string) (Instructor, error)
		GetInstructorByUserID(ctx context.Context, userID string) (Instructor, error)
		QueryInstructors(ctx context.Context, search string) ([]Instructor, error)

		CreateAdministrator(ctx context.Context, na NewAdministrator) (Administrator, error)
		GetAdministrator(ctx context.Context, id string) (Administrator, error)
		QueryAdministrators(ctx context.Context, search string) ([]Administrator, error)

		CreateCompany(ctx context.Context, nc NewCompany) (Company, error)
		GetCompany(ctx context.Context, id string) (Company, error)
		QueryCompanies(ctx context.Context, search string) ([]Company, error)

		CreateContract(ctx context.Context, nc NewContract) (Contract, error)
		GetContract(ctx context.Context, id string) (Contract, error)
		QueryContracts(ctx context.Context, companyID string) ([]Contract, error)

		CreateProgram(ctx context.Context, np NewProgram) (Program, error)
		GetProgram(ctx context.Context, id string) (Program, error)
		QueryPrograms(ctx context.Context, cohortID string) ([]Program, error)

		CreateCohort(ctx context.Context, nc NewCohort) (Cohort, error)
		GetCohort(ctx context.Context, id string) (Cohort, error)
		QueryCohorts(ctx context.Context) ([]Cohort, error)

		// CheckAccountLink tells, as a ValidationError, why the `kind` profile `id` cannot get an account.
		CheckAccountLink(ctx context.Context, kind, id string) error
		LinkAccount(ctx context.Context, kind, id, userID string) error
	}

	service struct {
		repo    Repository
		nowFunc func() time.Time
	}
)

var _ Service = (*service)(nil)

func NewService(repo Repository) Service {
	vala.BeginValidation().Validate(
		vala.IsNotNil(repo, "repo"),
	).CheckAndPanic()

	return &service{repo: repo, nowFunc: time.Now}
}

func (svc *service) now() time.Time { return svc.nowFunc().UTC() }

func (svc *service) CheckUniqueness(ctx context.Context, fields UniqueFields, excl Exclusion) error {
	taken, err := svc.repo.FindTakenFields(ctx, fields, excl)
	if err != nil {
		return errors.Wrap(err, "checking uniqueness")
	}
	if len(taken) == 0 {
		return nil
	}

	flds := make([]core.FieldError, 0, len(taken))
	for _, name := range taken {
		if name == "document_number" && excl.Kind == KindCompany {
			name = "nit"
		}
		flds = append(flds, core.FieldError{Field: name, Error: takenText})
	}
	return core.NewValidationError(ErrAlreadyRegistered, flds...)
}

// checkRef returns a ValidationError on `field` when the referenced record does not exist.
func checkRef(field, id string, get func() error) error {
	if id == "" {
		return nil
	}
	if err := get(); err != nil {
		if IsNotFound(err) {
			return core.NewValidationError(err, core.FieldError{Field: field, Error: errors.Cause(err).Error()})
		}
		return err
	}
	return nil
}

func (svc *service) checkLearnerRefs(ctx context.Context, programID, instructorID, contractID string) error {
	if err := checkRef("program_id", programID, func() error {
		_, err := svc.repo.GetProgram(ctx, programID)
		return err
	}); err != nil {
		return err
	}
	if err := checkRef("instructor_id", instructorID, func() error {
		_, err := svc.repo.GetInstructor(ctx, GetFilter{ID: instructorID})
		return err
	}); err != nil {
		return err
	}
	return checkRef("contract_id", contractID, func() error {
		_, err := svc.repo.GetContract(ctx, contractID)
		return err
	})
}

// Learners

func (svc *service) CreateLearner(ctx context.Context, nl NewLearner) (Learner, error) {
	if err := svc.checkLearnerRefs(ctx, nl.ProgramID, nl.InstructorID, nl.ContractID); err != nil {
		return Learner{}, err
	}

	now := svc.now()
	return svc.repo.CreateLearner(ctx, Learner{
		UserID:         nl.UserID,
		FullName:       nl.FullName,
		DocumentType:   nl.DocumentType,
		DocumentNumber: nl.DocumentNumber,
		Email:          nl.Email,
		Phone:          nl.Phone,
		ProgramID:      nl.ProgramID,
		InstructorID:   nl.InstructorID,
		ContractID:     nl.ContractID,
		CreatedAt:      now,
		UpdatedAt:      now,
	})
}

func (svc *service) GetLearner(ctx context.Context, id string) (Learner, error) {
	return svc.repo.GetLearner(ctx, GetFilter{ID: id})
}

func (svc *service) GetLearnerByUserID(ctx context.Context, userID string) (Learner, error) {
	return svc.repo.GetLearner(ctx, GetFilter{UserID: userID})
}

func (svc *service) QueryLearners(ctx context.Context, filter *LearnerFilter) ([]Learner, error) {
	return svc.repo.QueryLearners(ctx, filter)
}

func (svc *service) UpdateLearner(ctx context.Context, lrn Learner, ul UpdateLearner) (Learner, error) {
	if err := svc.checkLearnerRefs(ctx, ul.ProgramID, "", ul.ContractID); err != nil {
		return Learner{}, err
	}

	lrn.FullName = ul.FullName
	lrn.DocumentType = ul.DocumentType
	lrn.DocumentNumber = ul.DocumentNumber
	lrn.Email = ul.Email
	lrn.Phone = ul.Phone
	lrn.ProgramID = ul.ProgramID
	lrn.ContractID = ul.ContractID
	lrn.UpdatedAt = svc.now()
	return svc.repo.UpdateLearner(ctx, lrn)
}

func (svc *service) DeleteLearner(ctx context.Context, id string) error {
	return svc.repo.DeleteLearner(ctx, id)
}

func (svc *service) AssignInstructor(ctx context.Context, learnerID, instructorID string) (Learner, error) {
	lrn, err := svc.GetLearner(ctx, learnerID)
	if err != nil {
		return Learner{}, err
	}
	if err = checkRef("instructor_id", instructorID, func() error {
		_, err := svc.repo.GetInstructor(ctx, GetFilter{ID: instructorID})
		return err
	}); err != nil {
		return Learner{}, err
	}

	lrn.InstructorID = instructorID
	lrn.UpdatedAt = svc.now()
	return svc.repo.UpdateLearner(ctx, lrn)
}

// Instructors

func (svc *service) CreateInstructor(ctx context.Context, ni NewInstructor) (Instructor, error) {
	return svc.repo.CreateInstructor(ctx, Instructor{
		UserID:         ni.UserID,
		FullName:       ni.FullName,
		DocumentNumber: ni.DocumentNumber,
		Email:          ni.Email,
		Phone:          ni.Phone,
		Specialty:      ni.Specialty,
		CreatedAt:      svc.now(),
	})
}

func (svc *service) GetInstructor(ctx context.Context, id string) (Instructor, error) {
	return svc.repo.GetInstructor(ctx, GetFilter{ID: id})
}

func (svc *service) GetInstructorByUserID(ctx context.Context, userID string) (Instructor, error) {
	return svc.repo.GetInstructor(ctx, GetFilter{UserID: userID})
}

func (svc *service) QueryInstructors(ctx context.Context, search string) ([]Instructor, error) {
	return svc.repo.QueryInstructors(ctx, core.CleanString(search))
}

// Administrators

func (svc *service) CreateAdministrator(ctx context.Context, na NewAdministrator) (Administrator, error) {
	return svc.repo.CreateAdministrator(ctx, Administrator{
		UserID:         na.UserID,
		FullName:       na.FullName,
		DocumentNumber: na.DocumentNumber,
		Email:          na.Email,
		Phone:          na.Phone,
		CreatedAt:      svc.now(),
	})
}

func (svc *service) GetAdministrator(ctx context.Context, id string) (Administrator, error) {
	return svc.repo.GetAdministrator(ctx, GetFilter{ID: id})
}

func (svc *service) QueryAdministrators(ctx context.Context, search string) ([]Administrator, error) {
	return svc.repo.QueryAdministrators(ctx, core.CleanString(search))
}

// Companies & contracts

func (svc *service) CreateCompany(ctx context.Context, nc NewCompany) (Company, error) {
	return svc.repo.CreateCompany(ctx, Company{
		NIT:       nc.NIT,
		Name:      nc.Name,
		Email:     nc.Email,
		Phone:     nc.Phone,
		Address:   nc.Address,
		CreatedAt: svc.now(),
	})
}

func (svc *service) GetCompany(ctx context.Context, id string) (Company, error) {
	return svc.repo.GetCompany(ctx, id)
}

func (svc *service) QueryCompanies(ctx context.Context, search string) ([]Company, error) {
	return svc.repo.QueryCompanies(ctx, core.CleanString(search))
}

func (svc *service) CreateContract(ctx context.Context, nc NewContract) (Contract, error) {
	if err := checkRef("company_id", nc.CompanyID, func() error {
		_, err := svc.repo.GetCompany(ctx, nc.CompanyID)
		return err
	}); err != nil {
		return Contract{}, err
	}
	return svc.repo.CreateContract(ctx, Contract{
		CompanyID: nc.CompanyID,
		Kind:      nc.Kind,
		StartDate: nc.StartDate.UTC(),
		EndDate:   nc.EndDate.UTC(),
		CreatedAt: svc.now(),
	})
}

func (svc *service) GetContract(ctx context.Context, id string) (Contract, error) {
	return svc.repo.GetContract(ctx, id)
}

func (svc *service) QueryContracts(ctx context.Context, companyID string) ([]Contract, error) {
	return svc.repo.QueryContracts(ctx, companyID)
}

// Programs & cohorts

func (svc *service) CreateProgram(ctx context.Context, np NewProgram) (Program, error) {
	if err := checkRef("cohort_id", np.CohortID, func() error {
		_, err := svc.repo.GetCohort(ctx, np.CohortID)
		return err
	}); err != nil {
		return Program{}, err
	}
	return svc.repo.CreateProgram(ctx, Program{
		Code:      np.Code,
		Name:      np.Name,
		CohortID:  np.CohortID,
		CreatedAt: svc.now(),
	})
}

func (svc *service) GetProgram(ctx context.Context, id string) (Program, error) {
	return svc.repo.GetProgram(ctx, id)
}

func (svc *service) QueryPrograms(ctx context.Context, cohortID string) ([]Program, error) {
	return svc.repo.QueryPrograms(ctx, cohortID)
}

func (svc *service) CreateCohort(ctx context.Context, nc NewCohort) (Cohort, error) {
	return svc.repo.CreateCohort(ctx, Cohort{
		Code:      nc.Code,
		StartDate: nc.StartDate.UTC(),
		EndDate:   nc.EndDate.UTC(),
		CreatedAt: svc.now(),
	})
}

func (svc *service) GetCohort(ctx context.Context, id string) (Cohort, error) {
	return svc.repo.GetCohort(ctx, id)
}

func (svc *service) QueryCohorts(ctx context.Context) ([]Cohort, error) {
	return svc.repo.QueryCohorts(ctx)
}

// Accounts

func (svc *service) accountOwner(ctx context.Context, kind, id string) (string, error) {
	filter := GetFilter{ID: id}
	switch kind {
	case KindLearner:
		lrn, err := svc.repo.GetLearner(ctx, filter)
		return lrn.UserID, err
	case KindInstructor:
		ins, err := svc.repo.GetInstructor(ctx, filter)
		return ins.UserID, err
	case KindAdministrator:
		adm, err := svc.repo.GetAdministrator(ctx, filter)
		return adm.UserID, err
	}
	return "", errors.Errorf("%s profiles have no user account", kind)
}

func (svc *service) CheckAccountLink(ctx context.Context, kind, id string) error {
	field := kind + "_id"
	var owner string
	if err := checkRef(field, id, func() (err error) {
		owner, err = svc.accountOwner(ctx, kind, id)
		return err
	}); err != nil {
		return err
	}
	if owner != "" {
		return core.NewValidationError(ErrAccountLinked, core.FieldError{Field: field, Error: ErrAccountLinked.Error()})
	}
	return nil
}

func (svc *service) LinkAccount(ctx context.Context, kind, id, userID string) error {
	if err := svc.CheckAccountLink(ctx, kind, id); err != nil {
		return err
	}
	return svc.repo.LinkAccount(ctx, kind, id, userID)
}
