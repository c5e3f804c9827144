package echoapi

import (
	"context"
	"sort"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/trezcool/bitacora/core"
	"github.com/trezcool/bitacora/core/directory"
	"github.com/trezcool/bitacora/core/user"
)

const (
	tokenContextKey = "userToken"
	contextUserKey  = "user"
	audience        = "Bitacora"
)

// Claims represents the authorization claims transmitted via a JWT.
type Claims struct {
	jwt.StandardClaims
	OrigIssuedAt int64    `json:"oriat,omitempty"`
	Name         string   `json:"name,omitempty"`
	Email        string   `json:"email,omitempty"`
	IsAdmin      bool     `json:"is_admin,omitempty"`      // -> ADMIN PORTAL
	IsInstructor bool     `json:"is_instructor,omitempty"` // -> INSTRUCTOR PORTAL
	IsLearner    bool     `json:"is_learner,omitempty"`    // -> LEARNER PORTAL
	LearnerID    string   `json:"learner_id,omitempty"`
	InstructorID string   `json:"instructor_id,omitempty"`
	Roles        []string `json:"roles,omitempty"`
}

// profiles resolves the directory profiles linked to user accounts.
type profiles interface {
	GetLearnerByUserID(ctx context.Context, userID string) (directory.Learner, error)
	GetInstructorByUserID(ctx context.Context, userID string) (directory.Instructor, error)
}

// Authenticator issues & checks the API tokens.
type Authenticator struct {
	signingKey   []byte
	issuer       string
	expiration   time.Duration
	refreshDelta time.Duration
	profiles     profiles
	nowFunc      func() time.Time
}

func NewAuthenticator(conf *core.Config, profiles profiles) *Authenticator {
	return &Authenticator{
		signingKey:   []byte(conf.SecretKey),
		issuer:       conf.AppName,
		expiration:   conf.Server.JWTExpirationDelta,
		refreshDelta: conf.Server.JWTRefreshExpirationDelta,
		profiles:     profiles,
		nowFunc:      time.Now,
	}
}

func (a *Authenticator) middleware() echo.MiddlewareFunc {
	return middleware.JWTWithConfig(middleware.JWTConfig{
		SigningKey:    a.signingKey,
		SigningMethod: middleware.AlgorithmHS256,
		ContextKey:    tokenContextKey,
		Claims:        new(Claims),
	})
}

// UserClaims builds the claims of `usr`, with the IDs of their learner & instructor profiles.
func (a *Authenticator) UserClaims(ctx context.Context, usr user.User, origIat ...int64) (*Claims, error) {
	now := a.nowFunc()
	nownix := now.Unix()

	oriat := nownix
	if len(origIat) > 0 {
		oriat = origIat[0]
	}

	claims := &Claims{
		StandardClaims: jwt.StandardClaims{
			Issuer:    a.issuer,
			Subject:   usr.ID,
			Audience:  audience,
			ExpiresAt: now.Add(a.expiration).Unix(),
			IssuedAt:  nownix,
		},
		OrigIssuedAt: oriat,
		Name:         usr.Name,
		Email:        usr.Email,
		IsAdmin:      usr.IsAdmin(),
		IsInstructor: usr.IsInstructor(),
		IsLearner:    usr.IsLearner(),
		Roles:        usr.Roles,
	}

	if claims.IsLearner {
		lrn, err := a.profiles.GetLearnerByUserID(ctx, usr.ID)
		if err == nil {
			claims.LearnerID = lrn.ID
		} else if !directory.IsNotFound(err) {
			return nil, errors.Wrap(err, "finding learner profile")
		}
	}
	if claims.IsInstructor {
		ins, err := a.profiles.GetInstructorByUserID(ctx, usr.ID)
		if err == nil {
			claims.InstructorID = ins.ID
		} else if !directory.IsNotFound(err) {
			return nil, errors.Wrap(err, "finding instructor profile")
		}
	}
	return claims, nil
}

// GenerateToken generates a signed JWT token string representing the user Claims.
func (a *Authenticator) GenerateToken(claims *Claims) (string, error) {
	token := jwt.NewWithClaims(jwt.GetSigningMethod(middleware.AlgorithmHS256), claims)
	ss, err := token.SignedString(a.signingKey)
	if err != nil {
		return "", errors.Wrap(err, "signing token")
	}
	return ss, nil
}

func (a *Authenticator) authenticate(ctx context.Context, email, pwd string, svc user.Service) (*Claims, error) {
	usr, err := svc.GetByEmail(ctx, email)
	if err != nil {
		if errors.Cause(err) == user.ErrNotFound {
			return nil, errAuthenticationFailed
		}
		return nil, errors.Wrap(err, "finding user by email")
	}
	if err = usr.CheckPassword(pwd); err != nil {
		return nil, errAuthenticationFailed
	}
	if !usr.IsActive {
		return nil, errAccountDeactivated
	}
	if usr, err = svc.SetLastLogin(ctx, usr); err != nil {
		return nil, errors.Wrap(err, "setting lastLogin")
	}
	return a.UserClaims(ctx, usr)
}

func (a *Authenticator) refreshToken(ctx echo.Context, svc user.Service) (string, error) {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return "", errors.Wrap(err, "getting context claims")
	}

	usr, err := getContextUser(ctx, svc, claims)
	if err != nil {
		return "", errors.Wrap(err, "getting context user")
	}

	// check if user is still active
	if !usr.IsActive {
		return "", errAccountDeactivated
	}

	// check if refresh has not expired
	expTime := time.Unix(claims.OrigIssuedAt, 0).Add(a.refreshDelta)
	if a.nowFunc().After(expTime) {
		return "", errRefreshExpired
	}

	newClaims, err := a.UserClaims(ctx.Request().Context(), usr, claims.OrigIssuedAt)
	if err != nil {
		return "", err
	}
	token, err := a.GenerateToken(newClaims)
	return token, errors.Wrap(err, "generating token")
}

func getContextClaims(ctx echo.Context) (Claims, error) {
	if token, ok := ctx.Get(tokenContextKey).(*jwt.Token); ok {
		if claims, ok := token.Claims.(*Claims); ok {
			return *claims, nil
		}
	}
	return Claims{}, errUnauthorized
}

func getContextUser(ctx echo.Context, svc user.Service, clms ...Claims) (user.User, error) {
	if usr, ok := ctx.Get(contextUserKey).(user.User); ok {
		return usr, nil
	}

	var (
		claims Claims
		err    error
	)
	if len(clms) > 0 {
		claims = clms[0]
	} else if claims, err = getContextClaims(ctx); err != nil {
		return user.User{}, errors.Wrap(err, "getting context claims")
	}

	usr, err := svc.GetByID(ctx.Request().Context(), claims.Subject)
	if err != nil {
		if errors.Cause(err) == user.ErrNotFound {
			return user.User{}, errUnauthorized
		}
		return user.User{}, errors.Wrap(err, "finding user by ID")
	}
	ctx.Set(contextUserKey, usr)
	return usr, nil
}

func contextHasAnyRole(ctx echo.Context, roles []string) bool {
	if len(roles) == 0 {
		return true
	}
	if claims, err := getContextClaims(ctx); err == nil {
		sort.Strings(claims.Roles)
		for _, role := range roles {
			if i := sort.SearchStrings(claims.Roles, role); i < len(claims.Roles) && claims.Roles[i] == role {
				return true
			}
		}
	}
	return false
}
