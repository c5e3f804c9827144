package directory_test

import (
	"context"
	"testing"
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/bitacora/core"
	"github.com/trezcool/bitacora/core/directory"
	inmemdb "github.com/trezcool/bitacora/storage/database/inmem"
)

func setup(t *testing.T) (directory.Service, *validator.Validate, ut.Translator) {
	t.Helper()
	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	directory.InitValidators(validate, translator)
	return directory.NewService(inmemdb.NewDirectoryRepository(inmemdb.Open())), validate, translator
}

func fieldErrors(t *testing.T, err error) map[string]string {
	t.Helper()
	require.Error(t, err)
	verr, ok := errors.Cause(err).(*core.ValidationError)
	require.True(t, ok, "expected a validation error, got %v", err)
	flds := make(map[string]string, len(verr.Fields))
	for _, f := range verr.Fields {
		flds[f.Field] = f.Error
	}
	return flds
}

func TestCreateLearner(t *testing.T) {
	svc, validate, _ := setup(t)
	ctx := context.Background()

	nl := directory.NewLearner{
		FullName:       "  Ana María  ",
		DocumentType:   "CC",
		DocumentNumber: "1020304050",
		Email:          "Ana@Test.test",
		Phone:          "+573001234567",
	}
	require.NoError(t, nl.Validate(ctx, validate, svc))
	assert.Equal(t, "Ana María", nl.FullName)
	assert.Equal(t, "ana@test.test", nl.Email)

	lrn, err := svc.CreateLearner(ctx, nl)
	require.NoError(t, err)
	assert.NotEmpty(t, lrn.ID)
	assert.False(t, lrn.CreatedAt.IsZero())

	got, err := svc.GetLearner(ctx, lrn.ID)
	require.NoError(t, err)
	assert.Equal(t, lrn.ID, got.ID)

	_, err = svc.GetLearner(ctx, "a3bb189e-8bf9-3888-9912-ace4e6543002")
	assert.True(t, directory.IsNotFound(err))
}

func TestUniquenessSpansEveryTable(t *testing.T) {
	svc, validate, _ := setup(t)
	ctx := context.Background()

	_, err := svc.CreateInstructor(ctx, directory.NewInstructor{
		FullName:       "Instructor",
		DocumentNumber: "900123456",
		Email:          "shared@test.test",
		Phone:          "3001112233",
	})
	require.NoError(t, err)

	nl := directory.NewLearner{
		FullName:       "Aprendiz",
		DocumentType:   "CC",
		DocumentNumber: "900123456",
		Email:          "SHARED@test.test",
		Phone:          "3001112233",
	}
	flds := fieldErrors(t, nl.Validate(ctx, validate, svc))
	assert.Equal(t, map[string]string{
		"document_number": "already registered",
		"email":           "already registered",
		"phone":           "already registered",
	}, flds)

	// a company NIT collides with an instructor document
	nc := directory.NewCompany{NIT: "900123456", Name: "ACME"}
	flds = fieldErrors(t, nc.Validate(ctx, validate, svc))
	assert.Contains(t, flds, "nit")
}

func TestUpdateLearner(t *testing.T) {
	svc, validate, _ := setup(t)
	ctx := context.Background()

	lrn, err := svc.CreateLearner(ctx, directory.NewLearner{
		FullName:       "Aprendiz",
		DocumentType:   "CC",
		DocumentNumber: "100200300",
		Email:          "aprendiz@test.test",
	})
	require.NoError(t, err)
	other, err := svc.CreateLearner(ctx, directory.NewLearner{
		FullName:       "Otro",
		DocumentType:   "TI",
		DocumentNumber: "400500600",
		Email:          "otro@test.test",
	})
	require.NoError(t, err)

	// keeping its own values is not a collision
	ul := directory.UpdateLearner{FullName: "Aprendiz Dos"}
	require.NoError(t, ul.Validate(ctx, lrn, validate, svc))
	assert.Equal(t, lrn.Email, ul.Email)
	assert.Equal(t, lrn.DocumentNumber, ul.DocumentNumber)

	updated, err := svc.UpdateLearner(ctx, lrn, ul)
	require.NoError(t, err)
	assert.Equal(t, "Aprendiz Dos", updated.FullName)
	assert.Equal(t, "aprendiz@test.test", updated.Email)

	ul = directory.UpdateLearner{Email: other.Email}
	flds := fieldErrors(t, ul.Validate(ctx, updated, validate, svc))
	assert.Contains(t, flds, "email")
}

func TestLearnerReferences(t *testing.T) {
	svc, _, _ := setup(t)
	ctx := context.Background()

	_, err := svc.CreateLearner(ctx, directory.NewLearner{
		FullName:       "Aprendiz",
		DocumentType:   "CC",
		DocumentNumber: "100200300",
		Email:          "aprendiz@test.test",
		InstructorID:   "a3bb189e-8bf9-3888-9912-ace4e6543002",
	})
	assert.Contains(t, fieldErrors(t, err), "instructor_id")

	_, err = svc.CreateProgram(ctx, directory.NewProgram{
		Code:     "ADSO",
		Name:     "Análisis y desarrollo de software",
		CohortID: "a3bb189e-8bf9-3888-9912-ace4e6543002",
	})
	assert.Contains(t, fieldErrors(t, err), "cohort_id")
}

func TestAssignInstructor(t *testing.T) {
	svc, _, _ := setup(t)
	ctx := context.Background()

	ins, err := svc.CreateInstructor(ctx, directory.NewInstructor{
		UserID:         "0f8fad5b-d9cb-469f-a165-70867728950e",
		FullName:       "Instructor",
		DocumentNumber: "800100",
		Email:          "instructor@test.test",
	})
	require.NoError(t, err)
	lrn, err := svc.CreateLearner(ctx, directory.NewLearner{
		UserID:         "7c9e6679-7425-40de-944b-e07fc1f90ae7",
		FullName:       "Aprendiz",
		DocumentType:   "CC",
		DocumentNumber: "100200300",
		Email:          "aprendiz@test.test",
	})
	require.NoError(t, err)

	lrn, err = svc.AssignInstructor(ctx, lrn.ID, ins.ID)
	require.NoError(t, err)
	assert.Equal(t, ins.ID, lrn.InstructorID)

	byUser, err := svc.GetLearnerByUserID(ctx, "7c9e6679-7425-40de-944b-e07fc1f90ae7")
	require.NoError(t, err)
	assert.Equal(t, ins.ID, byUser.InstructorID)

	insByUser, err := svc.GetInstructorByUserID(ctx, ins.UserID)
	require.NoError(t, err)
	assert.Equal(t, ins.ID, insByUser.ID)

	_, err = svc.AssignInstructor(ctx, lrn.ID, "a3bb189e-8bf9-3888-9912-ace4e6543002")
	assert.Contains(t, fieldErrors(t, err), "instructor_id")

	lrn, err = svc.AssignInstructor(ctx, lrn.ID, "")
	require.NoError(t, err)
	assert.Empty(t, lrn.InstructorID)

	found, err := svc.QueryInstructors(ctx, "INSTRUC")
	require.NoError(t, err)
	assert.Len(t, found, 1)
}

func TestContracts(t *testing.T) {
	svc, validate, translator := setup(t)
	ctx := context.Background()

	cmp, err := svc.CreateCompany(ctx, directory.NewCompany{NIT: "900123456-7", Name: "ACME"})
	require.NoError(t, err)

	start := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	nc := directory.NewContract{
		CompanyID: cmp.ID,
		Kind:      "aprendizaje",
		StartDate: start,
		EndDate:   start.AddDate(0, 0, -1),
	}
	err = nc.Validate(validate)
	require.Error(t, err)
	verrs, ok := err.(validator.ValidationErrors)
	require.True(t, ok)
	require.Len(t, verrs, 1)
	assert.Equal(t, "end_date", verrs[0].Field())
	assert.Equal(t, "end date must not precede start date", verrs[0].Translate(translator))

	nc.EndDate = start.AddDate(1, 0, 0)
	require.NoError(t, nc.Validate(validate))
	cnt, err := svc.CreateContract(ctx, nc)
	require.NoError(t, err)

	contracts, err := svc.QueryContracts(ctx, cmp.ID)
	require.NoError(t, err)
	require.Len(t, contracts, 1)
	assert.Equal(t, cnt.ID, contracts[0].ID)

	nc.CompanyID = "a3bb189e-8bf9-3888-9912-ace4e6543002"
	_, err = svc.CreateContract(ctx, nc)
	assert.Contains(t, fieldErrors(t, err), "company_id")
}

func TestCompanyNITValidation(t *testing.T) {
	svc, validate, translator := setup(t)
	ctx := context.Background()

	for nit, valid := range map[string]bool{
		"900123456-7": true,
		"900123456":   true,
		"90012":       false,
		"9001234567a": false,
	} {
		nc := directory.NewCompany{NIT: nit, Name: "ACME"}
		err := nc.Validate(ctx, validate, svc)
		if valid {
			assert.NoError(t, err, nit)
			continue
		}
		verrs, ok := err.(validator.ValidationErrors)
		require.True(t, ok, nit)
		assert.Equal(t, "enter a valid NIT, eg. 900123456-7", verrs[0].Translate(translator))
	}
}

func TestCohortsAndPrograms(t *testing.T) {
	svc, validate, _ := setup(t)
	ctx := context.Background()

	nch := directory.NewCohort{
		Code:      "2024_1",
		StartDate: time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC),
	}
	require.NoError(t, nch.Validate(validate), "same-day range is valid")
	chr, err := svc.CreateCohort(ctx, nch)
	require.NoError(t, err)

	np := directory.NewProgram{Code: "ADSO", Name: "Software", CohortID: chr.ID}
	require.NoError(t, np.Validate(validate))
	_, err = svc.CreateProgram(ctx, np)
	require.NoError(t, err)

	programs, err := svc.QueryPrograms(ctx, chr.ID)
	require.NoError(t, err)
	assert.Len(t, programs, 1)

	cohorts, err := svc.QueryCohorts(ctx)
	require.NoError(t, err)
	assert.Len(t, cohorts, 1)
}

func TestLinkAccount(t *testing.T) {
	svc, _, _ := setup(t)
	ctx := context.Background()
	userID := "5b0c3f8e-7a1d-4c2e-9f4b-6d8e2a1c3b57"

	lrn, err := svc.CreateLearner(ctx, directory.NewLearner{
		FullName:       "Ana",
		DocumentType:   "CC",
		DocumentNumber: "1020304050",
		Email:          "ana@test.test",
	})
	require.NoError(t, err)
	ins, err := svc.CreateInstructor(ctx, directory.NewInstructor{
		FullName:       "Iván",
		DocumentNumber: "80010020",
		Email:          "ivan@test.test",
	})
	require.NoError(t, err)

	tests := []struct {
		name      string
		kind      string
		id        string
		wantField string
		wantErr   string
	}{
		{name: "unknown learner", kind: directory.KindLearner, id: "a3bb189e-8bf9-3888-9912-ace4e6543002", wantField: "learner_id", wantErr: directory.ErrLearnerNotFound.Error()},
		{name: "learner", kind: directory.KindLearner, id: lrn.ID},
		{name: "learner twice", kind: directory.KindLearner, id: lrn.ID, wantField: "learner_id", wantErr: directory.ErrAccountLinked.Error()},
		{name: "instructor", kind: directory.KindInstructor, id: ins.ID},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := svc.LinkAccount(ctx, tt.kind, tt.id, userID)
			if tt.wantField != "" {
				assert.Equal(t, tt.wantErr, fieldErrors(t, err)[tt.wantField])
				return
			}
			require.NoError(t, err)
		})
	}

	got, err := svc.GetLearnerByUserID(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, lrn.ID, got.ID)
	gotIns, err := svc.GetInstructorByUserID(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, ins.ID, gotIns.ID)

	fe := fieldErrors(t, svc.CheckAccountLink(ctx, directory.KindInstructor, ins.ID))
	assert.Equal(t, directory.ErrAccountLinked.Error(), fe["instructor_id"])
	assert.Error(t, svc.CheckAccountLink(ctx, directory.KindCompany, ins.ID))
}
