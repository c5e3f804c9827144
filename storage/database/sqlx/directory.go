package sqlxrepos

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/bitacora/core"
	"github.com/trezcool/bitacora/core/directory"
)

func nullString(s string) null.String { return null.NewString(s, s != "") }

func nullTime(t time.Time) null.Time { return null.NewTime(t.UTC(), !t.IsZero()) }

type (
	learnerRow struct {
		ID             string      `db:"id"`
		UserID         null.String `db:"user_id"`
		FullName       string      `db:"full_name"`
		DocumentType   string      `db:"document_type"`
		DocumentNumber string      `db:"document_number"`
		Email          null.String `db:"email"`
		Phone          null.String `db:"phone"`
		ProgramID      null.String `db:"program_id"`
		InstructorID   null.String `db:"instructor_id"`
		ContractID     null.String `db:"contract_id"`
		CreatedAt      time.Time   `db:"created_at"`
		UpdatedAt      time.Time   `db:"updated_at"`
	}

	instructorRow struct {
		ID             string      `db:"id"`
		UserID         null.String `db:"user_id"`
		FullName       string      `db:"full_name"`
		DocumentNumber string      `db:"document_number"`
		Email          null.String `db:"email"`
		Phone          null.String `db:"phone"`
		Specialty      null.String `db:"specialty"`
		CreatedAt      time.Time   `db:"created_at"`
	}

	administratorRow struct {
		ID             string      `db:"id"`
		UserID         null.String `db:"user_id"`
		FullName       string      `db:"full_name"`
		DocumentNumber string      `db:"document_number"`
		Email          null.String `db:"email"`
		Phone          null.String `db:"phone"`
		CreatedAt      time.Time   `db:"created_at"`
	}

	companyRow struct {
		ID        string      `db:"id"`
		NIT       string      `db:"nit"`
		Name      string      `db:"name"`
		Email     null.String `db:"email"`
		Phone     null.String `db:"phone"`
		Address   null.String `db:"address"`
		CreatedAt time.Time   `db:"created_at"`
	}

	contractRow struct {
		ID        string    `db:"id"`
		CompanyID string    `db:"company_id"`
		Kind      string    `db:"kind"`
		StartDate time.Time `db:"start_date"`
		EndDate   null.Time `db:"end_date"`
		CreatedAt time.Time `db:"created_at"`
	}

	programRow struct {
		ID        string      `db:"id"`
		Code      string      `db:"code"`
		Name      string      `db:"name"`
		CohortID  null.String `db:"cohort_id"`
		CreatedAt time.Time   `db:"created_at"`
	}

	cohortRow struct {
		ID        string    `db:"id"`
		Code      string    `db:"code"`
		StartDate time.Time `db:"start_date"`
		EndDate   null.Time `db:"end_date"`
		CreatedAt time.Time `db:"created_at"`
	}
)

func (r learnerRow) learner() directory.Learner {
	return directory.Learner{
		ID:             r.ID,
		UserID:         r.UserID.String,
		FullName:       r.FullName,
		DocumentType:   r.DocumentType,
		DocumentNumber: r.DocumentNumber,
		Email:          r.Email.String,
		Phone:          r.Phone.String,
		ProgramID:      r.ProgramID.String,
		InstructorID:   r.InstructorID.String,
		ContractID:     r.ContractID.String,
		CreatedAt:      r.CreatedAt.UTC(),
		UpdatedAt:      r.UpdatedAt.UTC(),
	}
}

func (r instructorRow) instructor() directory.Instructor {
	return directory.Instructor{
		ID:             r.ID,
		UserID:         r.UserID.String,
		FullName:       r.FullName,
		DocumentNumber: r.DocumentNumber,
		Email:          r.Email.String,
		Phone:          r.Phone.String,
		Specialty:      r.Specialty.String,
		CreatedAt:      r.CreatedAt.UTC(),
	}
}

func (r administratorRow) administrator() directory.Administrator {
	return directory.Administrator{
		ID:             r.ID,
		UserID:         r.UserID.String,
		FullName:       r.FullName,
		DocumentNumber: r.DocumentNumber,
		Email:          r.Email.String,
		Phone:          r.Phone.String,
		CreatedAt:      r.CreatedAt.UTC(),
	}
}

func (r companyRow) company() directory.Company {
	return directory.Company{
		ID:        r.ID,
		NIT:       r.NIT,
		Name:      r.Name,
		Email:     r.Email.String,
		Phone:     r.Phone.String,
		Address:   r.Address.String,
		CreatedAt: r.CreatedAt.UTC(),
	}
}

func (r contractRow) contract() directory.Contract {
	return directory.Contract{
		ID:        r.ID,
		CompanyID: r.CompanyID,
		Kind:      r.Kind,
		StartDate: r.StartDate.UTC(),
		EndDate:   r.EndDate.Time.UTC(),
		CreatedAt: r.CreatedAt.UTC(),
	}
}

func (r programRow) program() directory.Program {
	return directory.Program{
		ID:        r.ID,
		Code:      r.Code,
		Name:      r.Name,
		CohortID:  r.CohortID.String,
		CreatedAt: r.CreatedAt.UTC(),
	}
}

func (r cohortRow) cohort() directory.Cohort {
	return directory.Cohort{
		ID:        r.ID,
		Code:      r.Code,
		StartDate: r.StartDate.UTC(),
		EndDate:   r.EndDate.Time.UTC(),
		CreatedAt: r.CreatedAt.UTC(),
	}
}

const (
	learnerColumns       = `id, user_id, full_name, document_type, document_number, email, phone, program_id, instructor_id, contract_id, created_at, updated_at`
	instructorColumns    = `id, user_id, full_name, document_number, email, phone, specialty, created_at`
	administratorColumns = `id, user_id, full_name, document_number, email, phone, created_at`
	companyColumns       = `id, nit, name, email, phone, address, created_at`
	contractColumns      = `id, company_id, kind, start_date, end_date, created_at`
	programColumns       = `id, code, name, cohort_id, created_at`
	cohortColumns        = `id, code, start_date, end_date, created_at`
)

type directoryRepository struct {
	db core.DBExecutor
}

var _ directory.Repository = (*directoryRepository)(nil) // interface compliance check

func NewDirectoryRepository(db core.DBExecutor) directory.Repository {
	return &directoryRepository{db: db}
}

// get runs a single-row query, mapping "no rows" & malformed ids to `notFound`.
func (repo *directoryRepository) get(ctx context.Context, exec []core.DBExecutor, dest interface{}, notFound error, q, id string) error {
	if !isUUID(id) {
		return notFound
	}
	if err := sqlx.GetContext(ctx, core.GetExec(repo.db, exec), dest, q, id); err != nil {
		if err == sql.ErrNoRows {
			return notFound
		}
		return errors.Wrap(err, "querying "+strings.TrimSuffix(notFound.Error(), " not found"))
	}
	return nil
}

// uniqueTables lists the tables sharing the document/email/phone namespace, with their document column.
var uniqueTables = []struct{ kind, table, docCol string }{
	{directory.KindLearner, "learner", "document_number"},
	{directory.KindInstructor, "instructor", "document_number"},
	{directory.KindAdministrator, "administrator", "document_number"},
	{directory.KindCompany, "company", "nit"},
}

func (repo *directoryRepository) FindTakenFields(ctx context.Context, fields directory.UniqueFields, excl directory.Exclusion, exec ...core.DBExecutor) ([]string, error) {
	subQueries := []string{
		`SELECT 'email' AS field FROM "user" WHERE :email <> '' AND lower(email) = lower(:email) AND CAST(id AS text) <> :user_id`,
	}
	for _, t := range uniqueTables {
		notExcluded := "NOT (:kind = '" + t.kind + "' AND CAST(id AS text) = :id)"
		subQueries = append(subQueries,
			"SELECT 'document_number' FROM "+t.table+" WHERE :doc <> '' AND "+t.docCol+" = :doc AND "+notExcluded,
			"SELECT 'email' FROM "+t.table+" WHERE :email <> '' AND lower(email) = lower(:email) AND "+notExcluded,
			"SELECT 'phone' FROM "+t.table+" WHERE :phone <> '' AND phone = :phone AND "+notExcluded,
		)
	}
	q, args, err := sqlx.Named(
		"SELECT DISTINCT field FROM ("+strings.Join(subQueries, " UNION ALL ")+") taken",
		map[string]interface{}{
			"doc":     fields.DocumentNumber,
			"email":   fields.Email,
			"phone":   fields.Phone,
			"kind":    excl.Kind,
			"id":      excl.ID,
			"user_id": excl.UserID,
		},
	)
	if err != nil {
		return nil, errors.Wrap(err, "building uniqueness query")
	}

	exe := core.GetExec(repo.db, exec)
	var found []string
	if err = sqlx.SelectContext(ctx, exe, &found, exe.Rebind(q), args...); err != nil {
		return nil, errors.Wrap(err, "checking uniqueness")
	}

	taken := make(map[string]bool, len(found))
	for _, name := range found {
		taken[name] = true
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
	lrn.ID = uuid.New().String()
	_, err := core.GetExec(repo.db, exec).ExecContext(
		ctx,
		`INSERT INTO learner (`+learnerColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		lrn.ID, nullString(lrn.UserID), lrn.FullName, lrn.DocumentType, lrn.DocumentNumber, nullString(lrn.Email),
		nullString(lrn.Phone), nullString(lrn.ProgramID), nullString(lrn.InstructorID), nullString(lrn.ContractID),
		lrn.CreatedAt.UTC(), lrn.UpdatedAt.UTC(),
	)
	if err != nil {
		return directory.Learner{}, errors.Wrap(err, "inserting learner")
	}
	return lrn, nil
}

func (repo *directoryRepository) GetLearner(ctx context.Context, filter directory.GetFilter, exec ...core.DBExecutor) (directory.Learner, error) {
	var row learnerRow
	q, id := `SELECT `+learnerColumns+` FROM learner WHERE id = $1`, filter.ID
	if filter.ID == "" {
		q, id = `SELECT `+learnerColumns+` FROM learner WHERE user_id = $1`, filter.UserID
	}
	if err := repo.get(ctx, exec, &row, directory.ErrLearnerNotFound, q, id); err != nil {
		return directory.Learner{}, err
	}
	return row.learner(), nil
}

func (repo *directoryRepository) QueryLearners(ctx context.Context, filter *directory.LearnerFilter, exec ...core.DBExecutor) ([]directory.Learner, error) {
	var (
		where []string
		args  []interface{}
	)
	if filter != nil {
		if filter.Search != "" {
			val := "%" + filter.Search + "%"
			where = append(where, "(full_name ILIKE ? OR email ILIKE ? OR document_number ILIKE ?)")
			args = append(args, val, val, val)
		}
		for col, val := range map[string]string{
			"program_id":    filter.ProgramID,
			"instructor_id": filter.InstructorID,
			"contract_id":   filter.ContractID,
		} {
			if val == "" {
				continue
			}
			if !isUUID(val) {
				return []directory.Learner{}, nil
			}
			where = append(where, col+" = ?")
			args = append(args, val)
		}
	}

	q := `SELECT ` + learnerColumns + ` FROM learner`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY created_at, full_name"

	exe := core.GetExec(repo.db, exec)
	var rows []learnerRow
	if err := sqlx.SelectContext(ctx, exe, &rows, exe.Rebind(q), args...); err != nil {
		return nil, errors.Wrap(err, "querying learners")
	}
	learners := make([]directory.Learner, 0, len(rows))
	for _, r := range rows {
		learners = append(learners, r.learner())
	}
	return learners, nil
}

func (repo *directoryRepository) UpdateLearner(ctx context.Context, lrn directory.Learner, exec ...core.DBExecutor) (directory.Learner, error) {
	res, err := core.GetExec(repo.db, exec).ExecContext(
		ctx,
		`UPDATE learner SET user_id = $2, full_name = $3, document_type = $4, document_number = $5, email = $6,
			phone = $7, program_id = $8, instructor_id = $9, contract_id = $10, updated_at = $11
		WHERE id = $1`,
		lrn.ID, nullString(lrn.UserID), lrn.FullName, lrn.DocumentType, lrn.DocumentNumber, nullString(lrn.Email),
		nullString(lrn.Phone), nullString(lrn.ProgramID), nullString(lrn.InstructorID), nullString(lrn.ContractID),
		lrn.UpdatedAt.UTC(),
	)
	if err != nil {
		return directory.Learner{}, errors.Wrap(err, "updating learner")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return directory.Learner{}, directory.ErrLearnerNotFound
	}
	return lrn, nil
}

// DeleteLearner removes a learner; their evidence goes with them (ON DELETE CASCADE).
func (repo *directoryRepository) DeleteLearner(ctx context.Context, id string, exec ...core.DBExecutor) error {
	if !isUUID(id) {
		return directory.ErrLearnerNotFound
	}
	res, err := core.GetExec(repo.db, exec).ExecContext(ctx, `DELETE FROM learner WHERE id = $1`, id)
	if err != nil {
		return errors.Wrap(err, "deleting learner")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return directory.ErrLearnerNotFound
	}
	return nil
}

// Instructors

func (repo *directoryRepository) CreateInstructor(ctx context.Context, ins directory.Instructor, exec ...core.DBExecutor) (directory.Instructor, error) {
	ins.ID = uuid.New().String()
	_, err := core.GetExec(repo.db, exec).ExecContext(
		ctx,
		`INSERT INTO instructor (`+instructorColumns+`, updated_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)`,
		ins.ID, nullString(ins.UserID), ins.FullName, ins.DocumentNumber, nullString(ins.Email),
		nullString(ins.Phone), nullString(ins.Specialty), ins.CreatedAt.UTC(),
	)
	if err != nil {
		return directory.Instructor{}, errors.Wrap(err, "inserting instructor")
	}
	return ins, nil
}

func (repo *directoryRepository) GetInstructor(ctx context.Context, filter directory.GetFilter, exec ...core.DBExecutor) (directory.Instructor, error) {
	var row instructorRow
	q, id := `SELECT `+instructorColumns+` FROM instructor WHERE id = $1`, filter.ID
	if filter.ID == "" {
		q, id = `SELECT `+instructorColumns+` FROM instructor WHERE user_id = $1`, filter.UserID
	}
	if err := repo.get(ctx, exec, &row, directory.ErrInstructorNotFound, q, id); err != nil {
		return directory.Instructor{}, err
	}
	return row.instructor(), nil
}

func (repo *directoryRepository) QueryInstructors(ctx context.Context, search string, exec ...core.DBExecutor) ([]directory.Instructor, error) {
	var rows []instructorRow
	q := `SELECT ` + instructorColumns + ` FROM instructor
		WHERE $1 = '' OR full_name ILIKE '%' || $1 || '%' OR email ILIKE '%' || $1 || '%'
		ORDER BY created_at, full_name`
	if err := sqlx.SelectContext(ctx, core.GetExec(repo.db, exec), &rows, q, search); err != nil {
		return nil, errors.Wrap(err, "querying instructors")
	}
	instructors := make([]directory.Instructor, 0, len(rows))
	for _, r := range rows {
		instructors = append(instructors, r.instructor())
	}
	return instructors, nil
}

// Administrators

func (repo *directoryRepository) CreateAdministrator(ctx context.Context, adm directory.Administrator, exec ...core.DBExecutor) (directory.Administrator, error) {
	adm.ID = uuid.New().String()
	_, err := core.GetExec(repo.db, exec).ExecContext(
		ctx,
		`INSERT INTO administrator (`+administratorColumns+`, updated_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $7)`,
		adm.ID, nullString(adm.UserID), adm.FullName, adm.DocumentNumber, nullString(adm.Email),
		nullString(adm.Phone), adm.CreatedAt.UTC(),
	)
	if err != nil {
		return directory.Administrator{}, errors.Wrap(err, "inserting administrator")
	}
	return adm, nil
}

func (repo *directoryRepository) GetAdministrator(ctx context.Context, filter directory.GetFilter, exec ...core.DBExecutor) (directory.Administrator, error) {
	var row administratorRow
	q, id := `SELECT `+administratorColumns+` FROM administrator WHERE id = $1`, filter.ID
	if filter.ID == "" {
		q, id = `SELECT `+administratorColumns+` FROM administrator WHERE user_id = $1`, filter.UserID
	}
	if err := repo.get(ctx, exec, &row, directory.ErrAdministratorNotFound, q, id); err != nil {
		return directory.Administrator{}, err
	}
	return row.administrator(), nil
}

func (repo *directoryRepository) QueryAdministrators(ctx context.Context, search string, exec ...core.DBExecutor) ([]directory.Administrator, error) {
	var rows []administratorRow
	q := `SELECT ` + administratorColumns + ` FROM administrator
		WHERE $1 = '' OR full_name ILIKE '%' || $1 || '%' OR email ILIKE '%' || $1 || '%'
		ORDER BY created_at, full_name`
	if err := sqlx.SelectContext(ctx, core.GetExec(repo.db, exec), &rows, q, search); err != nil {
		return nil, errors.Wrap(err, "querying administrators")
	}
	admins := make([]directory.Administrator, 0, len(rows))
	for _, r := range rows {
		admins = append(admins, r.administrator())
	}
	return admins, nil
}

// Companies & contracts

func (repo *directoryRepository) CreateCompany(ctx context.Context, cmp directory.Company, exec ...core.DBExecutor) (directory.Company, error) {
	cmp.ID = uuid.New().String()
	_, err := core.GetExec(repo.db, exec).ExecContext(
		ctx,
		`INSERT INTO company (`+companyColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		cmp.ID, cmp.NIT, cmp.Name, nullString(cmp.Email), nullString(cmp.Phone), nullString(cmp.Address), cmp.CreatedAt.UTC(),
	)
	if err != nil {
		return directory.Company{}, errors.Wrap(err, "inserting company")
	}
	return cmp, nil
}

func (repo *directoryRepository) GetCompany(ctx context.Context, id string, exec ...core.DBExecutor) (directory.Company, error) {
	var row companyRow
	q := `SELECT ` + companyColumns + ` FROM company WHERE id = $1`
	if err := repo.get(ctx, exec, &row, directory.ErrCompanyNotFound, q, id); err != nil {
		return directory.Company{}, err
	}
	return row.company(), nil
}

func (repo *directoryRepository) QueryCompanies(ctx context.Context, search string, exec ...core.DBExecutor) ([]directory.Company, error) {
	var rows []companyRow
	q := `SELECT ` + companyColumns + ` FROM company
		WHERE $1 = '' OR name ILIKE '%' || $1 || '%' OR nit ILIKE '%' || $1 || '%'
		ORDER BY name`
	if err := sqlx.SelectContext(ctx, core.GetExec(repo.db, exec), &rows, q, search); err != nil {
		return nil, errors.Wrap(err, "querying companies")
	}
	companies := make([]directory.Company, 0, len(rows))
	for _, r := range rows {
		companies = append(companies, r.company())
	}
	return companies, nil
}

func (repo *directoryRepository) CreateContract(ctx context.Context, cnt directory.Contract, exec ...core.DBExecutor) (directory.Contract, error) {
	cnt.ID = uuid.New().String()
	_, err := core.GetExec(repo.db, exec).ExecContext(
		ctx,
		`INSERT INTO contract (`+contractColumns+`) VALUES ($1, $2, $3, $4, $5, $6)`,
		cnt.ID, cnt.CompanyID, cnt.Kind, cnt.StartDate.UTC(), nullTime(cnt.EndDate), cnt.CreatedAt.UTC(),
	)
	if err != nil {
		return directory.Contract{}, errors.Wrap(err, "inserting contract")
	}
	return cnt, nil
}

func (repo *directoryRepository) GetContract(ctx context.Context, id string, exec ...core.DBExecutor) (directory.Contract, error) {
	var row contractRow
	q := `SELECT ` + contractColumns + ` FROM contract WHERE id = $1`
	if err := repo.get(ctx, exec, &row, directory.ErrContractNotFound, q, id); err != nil {
		return directory.Contract{}, err
	}
	return row.contract(), nil
}

func (repo *directoryRepository) QueryContracts(ctx context.Context, companyID string, exec ...core.DBExecutor) ([]directory.Contract, error) {
	if companyID != "" && !isUUID(companyID) {
		return []directory.Contract{}, nil
	}
	var rows []contractRow
	q := `SELECT ` + contractColumns + ` FROM contract WHERE $1 = '' OR company_id::text = $1 ORDER BY start_date`
	if err := sqlx.SelectContext(ctx, core.GetExec(repo.db, exec), &rows, q, companyID); err != nil {
		return nil, errors.Wrap(err, "querying contracts")
	}
	contracts := make([]directory.Contract, 0, len(rows))
	for _, r := range rows {
		contracts = append(contracts, r.contract())
	}
	return contracts, nil
}

// Programs & cohorts

func (repo *directoryRepository) CreateProgram(ctx context.Context, prg directory.Program, exec ...core.DBExecutor) (directory.Program, error) {
	prg.ID = uuid.New().String()
	_, err := core.GetExec(repo.db, exec).ExecContext(
		ctx,
		`INSERT INTO program (`+programColumns+`) VALUES ($1, $2, $3, $4, $5)`,
		prg.ID, prg.Code, prg.Name, nullString(prg.CohortID), prg.CreatedAt.UTC(),
	)
	if err != nil {
		return directory.Program{}, errors.Wrap(err, "inserting program")
	}
	return prg, nil
}

func (repo *directoryRepository) GetProgram(ctx context.Context, id string, exec ...core.DBExecutor) (directory.Program, error) {
	var row programRow
	q := `SELECT ` + programColumns + ` FROM program WHERE id = $1`
	if err := repo.get(ctx, exec, &row, directory.ErrProgramNotFound, q, id); err != nil {
		return directory.Program{}, err
	}
	return row.program(), nil
}

func (repo *directoryRepository) QueryPrograms(ctx context.Context, cohortID string, exec ...core.DBExecutor) ([]directory.Program, error) {
	if cohortID != "" && !isUUID(cohortID) {
		return []directory.Program{}, nil
	}
	var rows []programRow
	q := `SELECT ` + programColumns + ` FROM program WHERE $1 = '' OR cohort_id::text = $1 ORDER BY code`
	if err := sqlx.SelectContext(ctx, core.GetExec(repo.db, exec), &rows, q, cohortID); err != nil {
		return nil, errors.Wrap(err, "querying programs")
	}
	programs := make([]directory.Program, 0, len(rows))
	for _, r := range rows {
		programs = append(programs, r.program())
	}
	return programs, nil
}

func (repo *directoryRepository) CreateCohort(ctx context.Context, chr directory.Cohort, exec ...core.DBExecutor) (directory.Cohort, error) {
	chr.ID = uuid.New().String()
	_, err := core.GetExec(repo.db, exec).ExecContext(
		ctx,
		`INSERT INTO cohort (`+cohortColumns+`) VALUES ($1, $2, $3, $4, $5)`,
		chr.ID, chr.Code, chr.StartDate.UTC(), nullTime(chr.EndDate), chr.CreatedAt.UTC(),
	)
	if err != nil {
		return directory.Cohort{}, errors.Wrap(err, "inserting cohort")
	}
	return chr, nil
}

func (repo *directoryRepository) GetCohort(ctx context.Context, id string, exec ...core.DBExecutor) (directory.Cohort, error) {
	var row cohortRow
	q := `SELECT ` + cohortColumns + ` FROM cohort WHERE id = $1`
	if err := repo.get(ctx, exec, &row, directory.ErrCohortNotFound, q, id); err != nil {
		return directory.Cohort{}, err
	}
	return row.cohort(), nil
}

func (repo *directoryRepository) QueryCohorts(ctx context.Context, exec ...core.DBExecutor) ([]directory.Cohort, error) {
	var rows []cohortRow
	q := `SELECT ` + cohortColumns + ` FROM cohort ORDER BY start_date DESC`
	if err := sqlx.SelectContext(ctx, core.GetExec(repo.db, exec), &rows, q); err != nil {
		return nil, errors.Wrap(err, "querying cohorts")
	}
	cohorts := make([]directory.Cohort, 0, len(rows))
	for _, r := range rows {
		cohorts = append(cohorts, r.cohort())
	}
	return cohorts, nil
}

// Accounts

var accountTables = map[string]struct {
	table    string
	notFound error
}{
	directory.KindLearner:       {table: "learner", notFound: directory.ErrLearnerNotFound},
	directory.KindInstructor:    {table: "instructor", notFound: directory.ErrInstructorNotFound},
	directory.KindAdministrator: {table: "administrator", notFound: directory.ErrAdministratorNotFound},
}

func (repo *directoryRepository) LinkAccount(ctx context.Context, kind, id, userID string, exec ...core.DBExecutor) error {
	t, ok := accountTables[kind]
	if !ok {
		return errors.Errorf("%s profiles have no user account", kind)
	}
	if !isUUID(id) {
		return t.notFound
	}
	res, err := core.GetExec(repo.db, exec).ExecContext(
		ctx,
		`UPDATE `+t.table+` SET user_id = $2, updated_at = $3 WHERE id = $1`,
		id, nullString(userID), time.Now().UTC(),
	)
	if err != nil {
		return errors.Wrapf(err, "linking %s account", kind)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return t.notFound
	}
	return nil
}
