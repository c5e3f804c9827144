package echoapi

import (
	"context"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/bitacora/core"
	"github.com/trezcool/bitacora/core/directory"
	"github.com/trezcool/bitacora/core/user"
)

var (
	errUsrNotFoundInCtx  = errors.New("user object not found in echo.Context")
	errNoPermsToSetRoles = "not enough rights to set these roles"
)

const passwordResetSent = "If the email address supplied is associated with an active account on this system, " +
	"an email will arrive in your inbox shortly with instructions to reset your password."

// accountsApi serves the user accounts, and the directory profiles they sign in as.
type accountsApi struct {
	auth     *Authenticator
	svc      user.Service
	dirSvc   directory.Service
	validate *validator.Validate
	logger   core.Logger
}

func registerUserAPI(
	g *echo.Group,
	jwt echo.MiddlewareFunc,
	auth *Authenticator,
	svc user.Service,
	dirSvc directory.Service,
	validate *validator.Validate,
	logger core.Logger,
) {
	api := accountsApi{
		auth:     auth,
		svc:      svc,
		dirSvc:   dirSvc,
		validate: validate,
		logger:   logger,
	}
	admin := adminMiddleware()

	ug := g.Group("/users")
	ug.POST("/login", api.login)
	ug.POST("/password-reset", api.requestPasswordReset)
	ug.POST("/password-reset-confirm", api.resetPassword)

	ag := ug.Group("", jwt)
	ag.POST("/token-refresh", api.refreshToken)
	ag.GET("/me", api.me)
	ag.POST("/register", api.register, admin)
	ag.GET("", api.query, admin)
	ag.DELETE("", api.destroyMultiple, admin)
	ag.GET("/roles", api.queryRoles, admin)

	dg := ag.Group("/:id", ctxUserOrAdminMiddleware(api.svc))
	dg.GET("", api.retrieve)
	dg.PUT("", api.update)
	dg.DELETE("", api.destroy, admin)
	dg.PUT("/profiles", api.linkProfiles, admin)
}

// account returns `usr` along with the learner & instructor profiles linked to it.
func (api *accountsApi) account(ctx context.Context, usr user.User) (AccountResponse, error) {
	resp := AccountResponse{User: usr}
	if lrn, err := api.dirSvc.GetLearnerByUserID(ctx, usr.ID); err == nil {
		resp.Learner = &lrn
	} else if !directory.IsNotFound(err) {
		return AccountResponse{}, errors.Wrap(err, "getting learner profile")
	}
	if ins, err := api.dirSvc.GetInstructorByUserID(ctx, usr.ID); err == nil {
		resp.Instructor = &ins
	} else if !directory.IsNotFound(err) {
		return AccountResponse{}, errors.Wrap(err, "getting instructor profile")
	}
	return resp, nil
}

// checkRoles refuses roles above the context user's own.
func checkRoles(ctxUsr user.User, roles []string) error {
	if user.MaxRolePriority(roles) > user.MaxRolePriority(ctxUsr.Roles) {
		return core.NewValidationError(nil, core.FieldError{Field: "roles", Error: errNoPermsToSetRoles})
	}
	return nil
}

func objectUser(ctx echo.Context) (user.User, error) {
	usr, ok := ctx.Get("object").(user.User)
	if !ok {
		return user.User{}, errors.Wrap(errUsrNotFoundInCtx, "retrieving object from context")
	}
	return usr, nil
}

// linkProfiles links `usr` to the profiles in `links`, checked beforehand with links.Check.
func (api *accountsApi) linkProfiles(ctx echo.Context) error {
	usr, err := objectUser(ctx)
	if err != nil {
		return err
	}
	var links AccountLinks
	if err := ctx.Bind(&links); err != nil {
		return errors.Wrap(err, "binding to AccountLinks")
	}
	rctx := ctx.Request().Context()
	if err := links.Check(rctx, api.validate, api.dirSvc); err != nil {
		return err
	}

	if roles := links.AddRoles(usr.Roles); len(roles) != len(usr.Roles) {
		if usr, err = api.svc.Update(rctx, usr, user.UpdateUser{Name: usr.Name, Email: usr.Email, Roles: roles}); err != nil {
			return errors.Wrap(err, "adding profile roles")
		}
	}
	if err := links.Link(rctx, api.dirSvc, usr.ID); err != nil {
		return err
	}

	resp, err := api.account(rctx, usr)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, resp)
}

func (api *accountsApi) register(ctx echo.Context) error {
	var data RegisterRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to RegisterRequest")
	}
	rctx := ctx.Request().Context()
	if err := data.NewUser.Validate(rctx, api.validate, api.svc); err != nil {
		return err
	}
	if err := data.AccountLinks.Check(rctx, api.validate, api.dirSvc); err != nil {
		return err
	}
	data.Roles = data.AccountLinks.AddRoles(data.Roles)

	ctxUsr, err := getContextUser(ctx, api.svc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	if err := checkRoles(ctxUsr, data.Roles); err != nil {
		return err
	}

	usr, err := api.svc.Create(rctx, data.NewUser)
	if err != nil {
		return errors.Wrap(err, "creating user")
	}
	if err := data.AccountLinks.Link(rctx, api.dirSvc, usr.ID); err != nil {
		return err
	}

	resp, err := api.account(rctx, usr)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, resp)
}

func (api *accountsApi) login(ctx echo.Context) error {
	var data LoginRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to LoginRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	claims, err := api.auth.authenticate(ctx.Request().Context(), data.Email, data.Password, api.svc)
	if err != nil {
		return errors.Wrap(err, "authenticating")
	}
	token, err := api.auth.GenerateToken(claims)
	if err != nil {
		return errors.Wrap(err, "generating token")
	}
	return ctx.JSON(http.StatusOK, LoginResponse{Token: token})
}

func (api *accountsApi) refreshToken(ctx echo.Context) error {
	token, err := api.auth.refreshToken(ctx, api.svc)
	if err != nil {
		return errors.Wrap(err, "refreshing token")
	}
	return ctx.JSON(http.StatusOK, LoginResponse{Token: token})
}

func (api *accountsApi) requestPasswordReset(ctx echo.Context) error {
	var data PasswordResetRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to PasswordResetRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	// unknown emails get the same answer
	err := api.svc.RequestPasswordReset(ctx.Request().Context(), data.Email)
	if err != nil && errors.Cause(err) != user.ErrNotFound {
		api.logger.Error(fmt.Sprintf("requesting password reset: %v", err), err)
	}
	return ctx.JSON(http.StatusOK, SuccessResponse{Success: passwordResetSent})
}

func (api *accountsApi) resetPassword(ctx echo.Context) error {
	var data user.ResetUserPassword
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to ResetUserPassword")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	if err := api.svc.ResetPassword(ctx.Request().Context(), data); err != nil {
		return errors.Wrap(err, "resetting password")
	}
	return ctx.JSON(http.StatusOK, SuccessResponse{Success: "Password has been reset with the new password."})
}

func (api *accountsApi) query(ctx echo.Context) error {
	filter := new(user.QueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []user.User{})
	}
	filter.Clean()
	ordering := new(Ordering)
	ordering.Bind(ctx)

	users, err := api.svc.Query(ctx.Request().Context(), filter, ordering.Orderings)
	if err != nil {
		return errors.Wrap(err, "querying users")
	}
	if users == nil {
		users = []user.User{}
	}
	return ctx.JSON(http.StatusOK, users)
}

func (api *accountsApi) me(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.svc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	resp, err := api.account(ctx.Request().Context(), usr)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, resp)
}

func (api *accountsApi) retrieve(ctx echo.Context) error {
	usr, err := objectUser(ctx)
	if err != nil {
		return err
	}
	resp, err := api.account(ctx.Request().Context(), usr)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, resp)
}

func (api *accountsApi) update(ctx echo.Context) error {
	usr, err := objectUser(ctx)
	if err != nil {
		return err
	}
	var data user.UpdateUser
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateUser")
	}

	ctxUsr, err := getContextUser(ctx, api.svc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	// only admins manage activation, roles & emails
	if !ctxUsr.IsAdmin() && (data.IsActive != nil || data.Roles != nil || data.Email != "") {
		return errHttpForbidden
	}

	rctx := ctx.Request().Context()
	if err := data.Validate(rctx, usr, api.validate, api.svc); err != nil {
		return err
	}
	if err := checkRoles(ctxUsr, data.Roles); err != nil {
		return err
	}

	if usr, err = api.svc.Update(rctx, usr, data); err != nil {
		return errors.Wrap(err, "updating user")
	}
	return ctx.JSON(http.StatusOK, usr)
}

// destroy deletes an account; the profiles it was linked to stay, without account.
func (api *accountsApi) destroy(ctx echo.Context) error {
	usr, err := objectUser(ctx)
	if err != nil {
		return err
	}
	return api.deleteUsers(ctx, usr.ID)
}

func (api *accountsApi) destroyMultiple(ctx echo.Context) error {
	var query DestroyMultipleRequest
	if err := ctx.Bind(&query); err != nil {
		return errors.Wrap(err, "binding to DestroyMultipleRequest")
	}
	if len(query.IDs) == 0 {
		return ctx.NoContent(http.StatusNoContent)
	}
	return api.deleteUsers(ctx, query.IDs...)
}

// deleteUsers deletes accounts, never the context user's own.
func (api *accountsApi) deleteUsers(ctx echo.Context, ids ...string) error {
	ctxUsr, err := getContextUser(ctx, api.svc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	for _, id := range ids {
		if id == ctxUsr.ID {
			return errHttpForbidden
		}
	}

	if _, err := api.svc.Delete(ctx.Request().Context(), ids...); err != nil {
		return errors.Wrap(err, "deleting users")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *accountsApi) queryRoles(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, user.Roles)
}

func ctxUserOrAdminMiddleware(svc user.Service) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			ctxUsr, err := getContextUser(ctx, svc)
			if err != nil {
				return errors.Wrap(err, "getting context user")
			}

			if ctx.Param("id") == ctxUsr.ID || ctxUsr.IsAdmin() {
				if usr, err := svc.GetByID(ctx.Request().Context(), ctx.Param("id")); err == nil {
					ctx.Set("object", usr)
					return next(ctx)
				} else if errors.Cause(err) != user.ErrNotFound {
					return errors.Wrap(err, "finding user by ID")
				}
			}
			return errHttpNotFound
		}
	}
}

type (
	LoginRequest struct {
		Email    string `json:"email" validate:"required,email"`
		Password string `json:"password" validate:"required"`
	}

	LoginResponse struct {
		Token string `json:"token"`
	}

	PasswordResetRequest struct {
		Email string `json:"email" validate:"required,email"`
	}

	SuccessResponse struct {
		Success string `json:"success"`
	}

	DestroyMultipleRequest struct {
		IDs []string `query:"id"`
	}

	// AccountLinks names existing profiles an account signs in as.
	AccountLinks struct {
		LearnerID    string `json:"learner_id" validate:"omitempty,uuid"`
		InstructorID string `json:"instructor_id" validate:"omitempty,uuid"`
	}

	RegisterRequest struct {
		user.NewUser
		AccountLinks
	}

	AccountResponse struct {
		user.User
		Learner    *directory.Learner    `json:"learner,omitempty"`
		Instructor *directory.Instructor `json:"instructor,omitempty"`
	}
)

func (lr *LoginRequest) Validate(validate *validator.Validate) error {
	lr.Email = core.CleanString(lr.Email, true /* lower */)
	return validate.Struct(lr)
}

func (pr *PasswordResetRequest) Validate(validate *validator.Validate) error {
	pr.Email = core.CleanString(pr.Email, true /* lower */)
	return validate.Struct(pr)
}

func (al AccountLinks) each(fn func(kind, id string) error) error {
	for _, link := range [...]struct{ kind, id string }{
		{directory.KindLearner, al.LearnerID},
		{directory.KindInstructor, al.InstructorID},
	} {
		if link.id == "" {
			continue
		}
		if err := fn(link.kind, link.id); err != nil {
			return err
		}
	}
	return nil
}

// Check validates the IDs and makes sure none of the profiles has an account yet.
func (al *AccountLinks) Check(ctx context.Context, validate *validator.Validate, svc directory.Service) error {
	al.LearnerID = core.CleanString(al.LearnerID)
	al.InstructorID = core.CleanString(al.InstructorID)
	if err := validate.Struct(al); err != nil {
		return err
	}
	return al.each(func(kind, id string) error {
		return svc.CheckAccountLink(ctx, kind, id)
	})
}

func (al AccountLinks) Link(ctx context.Context, svc directory.Service, userID string) error {
	return al.each(func(kind, id string) error {
		return errors.Wrapf(svc.LinkAccount(ctx, kind, id, userID), "linking %s profile", kind)
	})
}

// AddRoles adds to `roles` the ones the linked profiles need.
func (al AccountLinks) AddRoles(roles []string) []string {
	need := map[string]string{
		directory.KindLearner:    user.RoleLearner,
		directory.KindInstructor: user.RoleInstructor,
	}
	out := append([]string(nil), roles...)
	_ = al.each(func(kind, _ string) error {
		role := need[kind]
		for _, r := range out {
			if r == role {
				return nil
			}
		}
		out = append(out, role)
		return nil
	})
	return out
}
