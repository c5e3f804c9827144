package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/bitacora/core"
	"github.com/trezcool/bitacora/core/directory"
	"github.com/trezcool/bitacora/core/evidence"
)

type directoryApi struct {
	svc      directory.Service
	evidence evidence.Service
	validate *validator.Validate
}

func registerDirectoryAPI(
	g *echo.Group,
	jwt echo.MiddlewareFunc,
	svc directory.Service,
	evidenceSvc evidence.Service,
	validate *validator.Validate,
) {
	api := directoryApi{svc: svc, evidence: evidenceSvc, validate: validate}
	admin := adminMiddleware()

	lg := g.Group("/learners", jwt)
	lg.GET("", api.queryLearners, staffMiddleware)
	lg.POST("", api.createLearner, admin)
	lg.GET("/me", api.myLearnerProfile, learnerMiddleware)
	lg.GET("/:id", api.retrieveLearner, staffMiddleware)
	lg.PUT("/:id", api.updateLearner, admin)
	lg.DELETE("/:id", api.destroyLearner, admin)
	lg.PUT("/:id/instructor", api.assignInstructor, admin)

	ig := g.Group("/instructors", jwt, staffMiddleware)
	ig.GET("", api.queryInstructors)
	ig.POST("", api.createInstructor, admin)
	ig.GET("/:id", api.retrieveInstructor)

	ag := g.Group("/administrators", jwt, admin)
	ag.GET("", api.queryAdministrators)
	ag.POST("", api.createAdministrator)
	ag.GET("/:id", api.retrieveAdministrator)

	cg := g.Group("/companies", jwt, staffMiddleware)
	cg.GET("", api.queryCompanies)
	cg.POST("", api.createCompany, admin)
	cg.GET("/:id", api.retrieveCompany)

	ctg := g.Group("/contracts", jwt, staffMiddleware)
	ctg.GET("", api.queryContracts)
	ctg.POST("", api.createContract, admin)
	ctg.GET("/:id", api.retrieveContract)

	pg := g.Group("/programs", jwt)
	pg.GET("", api.queryPrograms)
	pg.POST("", api.createProgram, admin)
	pg.GET("/:id", api.retrieveProgram)

	chg := g.Group("/cohorts", jwt)
	chg.GET("", api.queryCohorts)
	chg.POST("", api.createCohort, admin)
	chg.GET("/:id", api.retrieveCohort)
}

// Learners

// visibleLearner returns the learner `id` if the requester may see them:
// admins see everyone, instructors their assigned learners.
func (api *directoryApi) visibleLearner(ctx echo.Context, id string) (directory.Learner, error) {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return directory.Learner{}, errors.Wrap(err, "getting context claims")
	}
	lrn, err := api.svc.GetLearner(ctx.Request().Context(), id)
	if err != nil {
		return directory.Learner{}, err
	}
	if !claims.IsAdmin && (claims.InstructorID == "" || lrn.InstructorID != claims.InstructorID) {
		return directory.Learner{}, directory.ErrLearnerNotFound
	}
	return lrn, nil
}

func (api *directoryApi) queryLearners(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}
	filter := new(directory.LearnerFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []directory.Learner{})
	}
	filter.Clean()
	if !claims.IsAdmin {
		if claims.InstructorID == "" {
			return ctx.JSON(http.StatusOK, []directory.Learner{})
		}
		filter.InstructorID = claims.InstructorID
	}

	learners, err := api.svc.QueryLearners(ctx.Request().Context(), filter)
	if err != nil {
		return errors.Wrap(err, "querying learners")
	}
	return ctx.JSON(http.StatusOK, learners)
}

func (api *directoryApi) createLearner(ctx echo.Context) error {
	var data directory.NewLearner
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewLearner")
	}
	rctx := ctx.Request().Context()
	if err := data.Validate(rctx, api.validate, api.svc); err != nil {
		return err
	}
	lrn, err := api.svc.CreateLearner(rctx, data)
	if err != nil {
		return errors.Wrap(err, "creating learner")
	}
	return ctx.JSON(http.StatusCreated, lrn)
}

func (api *directoryApi) myLearnerProfile(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}
	lrn, err := api.svc.GetLearner(ctx.Request().Context(), claims.LearnerID)
	if err != nil {
		return errors.Wrap(err, "finding learner")
	}
	return ctx.JSON(http.StatusOK, lrn)
}

func (api *directoryApi) retrieveLearner(ctx echo.Context) error {
	lrn, err := api.visibleLearner(ctx, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "finding learner")
	}
	return ctx.JSON(http.StatusOK, lrn)
}

func (api *directoryApi) updateLearner(ctx echo.Context) error {
	rctx := ctx.Request().Context()
	lrn, err := api.svc.GetLearner(rctx, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "finding learner")
	}

	var data directory.UpdateLearner
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateLearner")
	}
	if err := data.Validate(rctx, lrn, api.validate, api.svc); err != nil {
		return err
	}
	if lrn, err = api.svc.UpdateLearner(rctx, lrn, data); err != nil {
		return errors.Wrap(err, "updating learner")
	}
	return ctx.JSON(http.StatusOK, lrn)
}

// destroyLearner removes the learner's documents before the learner & their records.
func (api *directoryApi) destroyLearner(ctx echo.Context) error {
	rctx := ctx.Request().Context()
	lrn, err := api.svc.GetLearner(rctx, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "finding learner")
	}

	records, err := api.evidence.List(rctx, lrn.ID)
	if err != nil {
		return errors.Wrap(err, "listing evidence")
	}
	for _, rec := range records {
		if err := api.evidence.Delete(rctx, rec.ID, ""); err != nil && !evidence.IsNotFound(err) {
			return errors.Wrap(err, "deleting evidence")
		}
	}

	if err := api.svc.DeleteLearner(rctx, lrn.ID); err != nil {
		return errors.Wrap(err, "deleting learner")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *directoryApi) assignInstructor(ctx echo.Context) error {
	var data AssignInstructorRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to AssignInstructorRequest")
	}
	if err := api.validate.Struct(data); err != nil {
		return err
	}
	lrn, err := api.svc.AssignInstructor(ctx.Request().Context(), ctx.Param("id"), data.InstructorID)
	if err != nil {
		return errors.Wrap(err, "assigning instructor")
	}
	return ctx.JSON(http.StatusOK, lrn)
}

// Instructors

func (api *directoryApi) queryInstructors(ctx echo.Context) error {
	instructors, err := api.svc.QueryInstructors(ctx.Request().Context(), core.CleanString(ctx.QueryParam("search")))
	if err != nil {
		return errors.Wrap(err, "querying instructors")
	}
	return ctx.JSON(http.StatusOK, instructors)
}

func (api *directoryApi) createInstructor(ctx echo.Context) error {
	var data directory.NewInstructor
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewInstructor")
	}
	rctx := ctx.Request().Context()
	if err := data.Validate(rctx, api.validate, api.svc); err != nil {
		return err
	}
	ins, err := api.svc.CreateInstructor(rctx, data)
	if err != nil {
		return errors.Wrap(err, "creating instructor")
	}
	return ctx.JSON(http.StatusCreated, ins)
}

func (api *directoryApi) retrieveInstructor(ctx echo.Context) error {
	ins, err := api.svc.GetInstructor(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "finding instructor")
	}
	return ctx.JSON(http.StatusOK, ins)
}

// Administrators

func (api *directoryApi) queryAdministrators(ctx echo.Context) error {
	admins, err := api.svc.QueryAdministrators(ctx.Request().Context(), core.CleanString(ctx.QueryParam("search")))
	if err != nil {
		return errors.Wrap(err, "querying administrators")
	}
	return ctx.JSON(http.StatusOK, admins)
}

func (api *directoryApi) createAdministrator(ctx echo.Context) error {
	var data directory.NewAdministrator
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewAdministrator")
	}
	rctx := ctx.Request().Context()
	if err := data.Validate(rctx, api.validate, api.svc); err != nil {
		return err
	}
	adm, err := api.svc.CreateAdministrator(rctx, data)
	if err != nil {
		return errors.Wrap(err, "creating administrator")
	}
	return ctx.JSON(http.StatusCreated, adm)
}

func (api *directoryApi) retrieveAdministrator(ctx echo.Context) error {
	adm, err := api.svc.GetAdministrator(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "finding administrator")
	}
	return ctx.JSON(http.StatusOK, adm)
}

// Companies

func (api *directoryApi) queryCompanies(ctx echo.Context) error {
	companies, err := api.svc.QueryCompanies(ctx.Request().Context(), core.CleanString(ctx.QueryParam("search")))
	if err != nil {
		return errors.Wrap(err, "querying companies")
	}
	return ctx.JSON(http.StatusOK, companies)
}

func (api *directoryApi) createCompany(ctx echo.Context) error {
	var data directory.NewCompany
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewCompany")
	}
	rctx := ctx.Request().Context()
	if err := data.Validate(rctx, api.validate, api.svc); err != nil {
		return err
	}
	cmp, err := api.svc.CreateCompany(rctx, data)
	if err != nil {
		return errors.Wrap(err, "creating company")
	}
	return ctx.JSON(http.StatusCreated, cmp)
}

func (api *directoryApi) retrieveCompany(ctx echo.Context) error {
	cmp, err := api.svc.GetCompany(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "finding company")
	}
	return ctx.JSON(http.StatusOK, cmp)
}

// Contracts

func (api *directoryApi) queryContracts(ctx echo.Context) error {
	contracts, err := api.svc.QueryContracts(ctx.Request().Context(), core.CleanString(ctx.QueryParam("company_id")))
	if err != nil {
		return errors.Wrap(err, "querying contracts")
	}
	return ctx.JSON(http.StatusOK, contracts)
}

func (api *directoryApi) createContract(ctx echo.Context) error {
	var data directory.NewContract
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewContract")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	cnt, err := api.svc.CreateContract(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating contract")
	}
	return ctx.JSON(http.StatusCreated, cnt)
}

func (api *directoryApi) retrieveContract(ctx echo.Context) error {
	cnt, err := api.svc.GetContract(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "finding contract")
	}
	return ctx.JSON(http.StatusOK, cnt)
}

// Programs

func (api *directoryApi) queryPrograms(ctx echo.Context) error {
	programs, err := api.svc.QueryPrograms(ctx.Request().Context(), core.CleanString(ctx.QueryParam("cohort_id")))
	if err != nil {
		return errors.Wrap(err, "querying programs")
	}
	return ctx.JSON(http.StatusOK, programs)
}

func (api *directoryApi) createProgram(ctx echo.Context) error {
	var data directory.NewProgram
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewProgram")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	prg, err := api.svc.CreateProgram(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating program")
	}
	return ctx.JSON(http.StatusCreated, prg)
}

func (api *directoryApi) retrieveProgram(ctx echo.Context) error {
	prg, err := api.svc.GetProgram(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "finding program")
	}
	return ctx.JSON(http.StatusOK, prg)
}

// Cohorts

func (api *directoryApi) queryCohorts(ctx echo.Context) error {
	cohorts, err := api.svc.QueryCohorts(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "querying cohorts")
	}
	return ctx.JSON(http.StatusOK, cohorts)
}

func (api *directoryApi) createCohort(ctx echo.Context) error {
	var data directory.NewCohort
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewCohort")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	chr, err := api.svc.CreateCohort(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating cohort")
	}
	return ctx.JSON(http.StatusCreated, chr)
}

func (api *directoryApi) retrieveCohort(ctx echo.Context) error {
	chr, err := api.svc.GetCohort(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "finding cohort")
	}
	return ctx.JSON(http.StatusOK, chr)
}

type AssignInstructorRequest struct {
	InstructorID string `json:"instructor_id" validate:"omitempty,uuid"`
}
