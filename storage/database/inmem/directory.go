package inmemdb

import (
	"context"
	"strings"

	"github.com/pkg/errors"

	"github.com/trezcool/bitacora/core"
	"github.com/trezcool/bitacora/core/directory"
)

type directoryRepository struct {
	db *DB
}

var _ directory.Repository = (*directoryRepository)(nil)

func NewDirectoryRepository(db *DB) directory.Repository {
	return &directoryRepository{db: db}
}

func contains(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

func (repo *directoryRepository) FindTakenFields(ctx context.Context, fields directory.UniqueFields, excl directory.Exclusion, exec ...core.DBExecutor) ([]string, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	taken := make(map[string]bool, 3)
	check := func(docNum, email, phone string) {
		if fields.DocumentNumber != "" && docNum == fields.DocumentNumber {
			taken["document_number"] = true
		}
		if fields.Email != "" && strings.EqualFold(email, fields.Email) {
			taken["email"] = true
		}
		if fields.Phone != "" && phone == fields.Phone {
			taken["phone"] = true
		}
	}
	isExcluded := func(kind, id string) bool {
		return excl.Kind == kind && excl.ID != "" && excl.ID == id
	}

	for _, usr := range repo.db.users {
		if usr.ID != excl.UserID {
			check("", usr.Email, "")
		}
	}
	for _, lrn := range repo.db.learners {
		if !isExcluded(directory.KindLearner, lrn.ID) {
			check(lrn.DocumentNumber, lrn.Email, lrn.Phone)
		}
	}
	for _, ins := range repo.db.instructors {
		if !isExcluded(directory.KindInstructor, ins.ID) {
			check(ins.DocumentNumber, ins.Email, ins.Phone)
		}
	}
	for _, adm := range repo.db.administrators {
		if !isExcluded(directory.KindAdministrator, adm.ID) {
			check(adm.DocumentNumber, adm.Email, adm.Phone)
		}
	}
	for _, cmp := range repo.db.companies {
		if !isExcluded(directory.KindCompany, cmp.ID) {
			check(cmp.NIT, cmp.Email, cmp.Phone)
		}
	}

	var names []string
	for _, name := range []string{"document_number", "email", "phone"} {
		if taken[name] {
			names = append(names, name)
		}
	}
	return names, nil
}

// Learners

func (repo *directoryRepository) CreateLearner(ctx context.Context, lrn directory.Learner, exec ...core.DBExecutor) (directory.Learner, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	lrn.ID = repo.db.newID()
	repo.db.learners[lrn.ID] = &lrn
	return lrn, nil
}

func (repo *directoryRepository) GetLearner(ctx context.Context, filter directory.GetFilter, exec ...core.DBExecutor) (directory.Learner, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if filter.ID != "" {
		if lrn, ok := repo.db.learners[filter.ID]; ok {
			return *lrn, nil
		}
		return directory.Learner{}, directory.ErrLearnerNotFound
	}
	if filter.UserID != "" {
		for _, lrn := range repo.db.learners {
			if lrn.UserID == filter.UserID {
				return *lrn, nil
			}
		}
	}
	return directory.Learner{}, directory.ErrLearnerNotFound
}

func (repo *directoryRepository) QueryLearners(ctx context.Context, filter *directory.LearnerFilter, exec ...core.DBExecutor) ([]directory.Learner, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	ids := make([]string, 0, len(repo.db.learners))
	for id := range repo.db.learners {
		ids = append(ids, id)
	}
	repo.db.sortIDs(ids, false)

	learners := make([]directory.Learner, 0, len(ids))
	for _, id := range ids {
		lrn := *repo.db.learners[id]
		if filter != nil {
			if filter.Search != "" &&
				!contains(lrn.FullName, filter.Search) &&
				!contains(lrn.Email, filter.Search) &&
				!contains(lrn.DocumentNumber, filter.Search) {
				continue
			}
			if filter.ProgramID != "" && lrn.ProgramID != filter.ProgramID {
				continue
			}
			if filter.InstructorID != "" && lrn.InstructorID != filter.InstructorID {
				continue
			}
			if filter.ContractID != "" && lrn.ContractID != filter.ContractID {
				continue
			}
		}
		learners = append(learners, lrn)
	}
	return learners, nil
}

func (repo *directoryRepository) UpdateLearner(ctx context.Context, lrn directory.Learner, exec ...core.DBExecutor) (directory.Learner, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.learners[lrn.ID]; !ok {
		return directory.Learner{}, directory.ErrLearnerNotFound
	}
	repo.db.learners[lrn.ID] = &lrn
	return lrn, nil
}

func (repo *directoryRepository) DeleteLearner(ctx context.Context, id string, exec ...core.DBExecutor) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.learners[id]; !ok {
		return directory.ErrLearnerNotFound
	}
	delete(repo.db.learners, id)

	// ON DELETE CASCADE
	for recID, rec := range repo.db.evidence {
		if rec.LearnerID == id {
			delete(repo.db.evidence, recID)
		}
	}
	for key := range repo.db.tracks {
		if key.learnerID == id {
			delete(repo.db.tracks, key)
		}
	}
	return nil
}

// Instructors

func (repo *directoryRepository) CreateInstructor(ctx context.Context, ins directory.Instructor, exec ...core.DBExecutor) (directory.Instructor, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	ins.ID = repo.db.newID()
	repo.db.instructors[ins.ID] = &ins
	return ins, nil
}

func (repo *directoryRepository) GetInstructor(ctx context.Context, filter directory.GetFilter, exec ...core.DBExecutor) (directory.Instructor, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if filter.ID != "" {
		if ins, ok := repo.db.instructors[filter.ID]; ok {
			return *ins, nil
		}
		return directory.Instructor{}, directory.ErrInstructorNotFound
	}
	if filter.UserID != "" {
		for _, ins := range repo.db.instructors {
			if ins.UserID == filter.UserID {
				return *ins, nil
			}
		}
	}
	return directory.Instructor{}, directory.ErrInstructorNotFound
}

func (repo *directoryRepository) QueryInstructors(ctx context.Context, search string, exec ...core.DBExecutor) ([]directory.Instructor, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	ids := make([]string, 0, len(repo.db.instructors))
	for id, ins := range repo.db.instructors {
		if search == "" || contains(ins.FullName, search) || contains(ins.Email, search) {
			ids = append(ids, id)
		}
	}
	repo.db.sortIDs(ids, false)

	instructors := make([]directory.Instructor, 0, len(ids))
	for _, id := range ids {
		instructors = append(instructors, *repo.db.instructors[id])
	}
	return instructors, nil
}

// Administrators

func (repo *directoryRepository) CreateAdministrator(ctx context.Context, adm directory.Administrator, exec ...core.DBExecutor) (directory.Administrator, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	adm.ID = repo.db.newID()
	repo.db.administrators[adm.ID] = &adm
	return adm, nil
}

func (repo *directoryRepository) GetAdministrator(ctx context.Context, filter directory.GetFilter, exec ...core.DBExecutor) (directory.Administrator, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	for _, adm := range repo.db.administrators {
		if (filter.ID != "" && adm.ID == filter.ID) || (filter.ID == "" && filter.UserID != "" && adm.UserID == filter.UserID) {
			return *adm, nil
		}
	}
	return directory.Administrator{}, directory.ErrAdministratorNotFound
}

func (repo *directoryRepository) QueryAdministrators(ctx context.Context, search string, exec ...core.DBExecutor) ([]directory.Administrator, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	ids := make([]string, 0, len(repo.db.administrators))
	for id, adm := range repo.db.administrators {
		if search == "" || contains(adm.FullName, search) || contains(adm.Email, search) {
			ids = append(ids, id)
		}
	}
	repo.db.sortIDs(ids, false)

	admins := make([]directory.Administrator, 0, len(ids))
	for _, id := range ids {
		admins = append(admins, *repo.db.administrators[id])
	}
	return admins, nil
}

// Companies & contracts

func (repo *directoryRepository) CreateCompany(ctx context.Context, cmp directory.Company, exec ...core.DBExecutor) (directory.Company, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	cmp.ID = repo.db.newID()
	repo.db.companies[cmp.ID] = &cmp
	return cmp, nil
}

func (repo *directoryRepository) GetCompany(ctx context.Context, id string, exec ...core.DBExecutor) (directory.Company, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if cmp, ok := repo.db.companies[id]; ok {
		return *cmp, nil
	}
	return directory.Company{}, directory.ErrCompanyNotFound
}

func (repo *directoryRepository) QueryCompanies(ctx context.Context, search string, exec ...core.DBExecutor) ([]directory.Company, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	ids := make([]string, 0, len(repo.db.companies))
	for id, cmp := range repo.db.companies {
		if search == "" || contains(cmp.Name, search) || contains(cmp.NIT, search) {
			ids = append(ids, id)
		}
	}
	repo.db.sortIDs(ids, false)

	companies := make([]directory.Company, 0, len(ids))
	for _, id := range ids {
		companies = append(companies, *repo.db.companies[id])
	}
	return companies, nil
}

func (repo *directoryRepository) CreateContract(ctx context.Context, cnt directory.Contract, exec ...core.DBExecutor) (directory.Contract, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	cnt.ID = repo.db.newID()
	repo.db.contracts[cnt.ID] = &cnt
	return cnt, nil
}

func (repo *directoryRepository) GetContract(ctx context.Context, id string, exec ...core.DBExecutor) (directory.Contract, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if cnt, ok := repo.db.contracts[id]; ok {
		return *cnt, nil
	}
	return directory.Contract{}, directory.ErrContractNotFound
}

func (repo *directoryRepository) QueryContracts(ctx context.Context, companyID string, exec ...core.DBExecutor) ([]directory.Contract, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	ids := make([]string, 0, len(repo.db.contracts))
	for id, cnt := range repo.db.contracts {
		if companyID == "" || cnt.CompanyID == companyID {
			ids = append(ids, id)
		}
	}
	repo.db.sortIDs(ids, false)

	contracts := make([]directory.Contract, 0, len(ids))
	for _, id := range ids {
		contracts = append(contracts, *repo.db.contracts[id])
	}
	return contracts, nil
}

// Programs & cohorts

func (repo *directoryRepository) CreateProgram(ctx context.Context, prg directory.Program, exec ...core.DBExecutor) (directory.Program, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	prg.ID = repo.db.newID()
	repo.db.programs[prg.ID] = &prg
	return prg, nil
}

func (repo *directoryRepository) GetProgram(ctx context.Context, id string, exec ...core.DBExecutor) (directory.Program, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if prg, ok := repo.db.programs[id]; ok {
		return *prg, nil
	}
	return directory.Program{}, directory.ErrProgramNotFound
}

func (repo *directoryRepository) QueryPrograms(ctx context.Context, cohortID string, exec ...core.DBExecutor) ([]directory.Program, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	ids := make([]string, 0, len(repo.db.programs))
	for id, prg := range repo.db.programs {
		if cohortID == "" || prg.CohortID == cohortID {
			ids = append(ids, id)
		}
	}
	repo.db.sortIDs(ids, false)

	programs := make([]directory.Program, 0, len(ids))
	for _, id := range ids {
		programs = append(programs, *repo.db.programs[id])
	}
	return programs, nil
}

func (repo *directoryRepository) CreateCohort(ctx context.Context, chr directory.Cohort, exec ...core.DBExecutor) (directory.Cohort, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	chr.ID = repo.db.newID()
	repo.db.cohorts[chr.ID] = &chr
	return chr, nil
}

func (repo *directoryRepository) GetCohort(ctx context.Context, id string, exec ...core.DBExecutor) (directory.Cohort, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if chr, ok := repo.db.cohorts[id]; ok {
		return *chr, nil
	}
	return directory.Cohort{}, directory.ErrCohortNotFound
}

func (repo *directoryRepository) QueryCohorts(ctx context.Context, exec ...core.DBExecutor) ([]directory.Cohort, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	ids := make([]string, 0, len(repo.db.cohorts))
	for id := range repo.db.cohorts {
		ids = append(ids, id)
	}
	repo.db.sortIDs(ids, false)

	cohorts := make([]directory.Cohort, 0, len(ids))
	for _, id := range ids {
		cohorts = append(cohorts, *repo.db.cohorts[id])
	}
	return cohorts, nil
}

// Accounts

func (repo *directoryRepository) LinkAccount(ctx context.Context, kind, id, userID string, exec ...core.DBExecutor) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	switch kind {
	case directory.KindLearner:
		lrn, ok := repo.db.learners[id]
		if !ok {
			return directory.ErrLearnerNotFound
		}
		lrn.UserID = userID
	case directory.KindInstructor:
		ins, ok := repo.db.instructors[id]
		if !ok {
			return directory.ErrInstructorNotFound
		}
		ins.UserID = userID
	case directory.KindAdministrator:
		adm, ok := repo.db.administrators[id]
		if !ok {
			return directory.ErrAdministratorNotFound
		}
		adm.UserID = userID
	default:
		return errors.Errorf("%s profiles have no user account", kind)
	}
	return nil
}
