package echoapi_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	echoapi "github.com/trezcool/bitacora/apps/api/echo"
	"github.com/trezcool/bitacora/core/user"
	testutil "github.com/trezcool/bitacora/tests"
)

func TestUserAPI_Login(t *testing.T) {
	env := newTestEnv(t)
	usr := env.createUser(t, "Ana", "ana@test.test", user.RoleLearner)
	testutil.CreateUser(t, env.usrRepo, "Inactive", "inactive@test.test", password, []string{user.RoleLearner}, false)

	tests := []struct {
		name     string
		data     echoapi.LoginRequest
		wantCode int
	}{
		{name: "missing password", data: echoapi.LoginRequest{Email: "ana@test.test"}, wantCode: http.StatusBadRequest},
		{name: "unknown email", data: echoapi.LoginRequest{Email: "bob@test.test", Password: password}, wantCode: http.StatusBadRequest},
		{name: "wrong password", data: echoapi.LoginRequest{Email: "ana@test.test", Password: "nope"}, wantCode: http.StatusBadRequest},
		{name: "inactive", data: echoapi.LoginRequest{Email: "inactive@test.test", Password: password}, wantCode: http.StatusForbidden},
		{name: "ok", data: echoapi.LoginRequest{Email: "ANA@test.test", Password: password}, wantCode: http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.request(t, http.MethodPost, "/v1/users/login", "", tt.data)
			require.Equal(t, tt.wantCode, rec.Code, rec.Body.String())
			if tt.wantCode != http.StatusOK {
				return
			}

			var resp echoapi.LoginResponse
			decode(t, rec, &resp)
			require.NotEmpty(t, resp.Token)

			rec = env.request(t, http.MethodGet, "/v1/users/me", resp.Token, nil)
			require.Equal(t, http.StatusOK, rec.Code)
			var me user.User
			decode(t, rec, &me)
			assert.Equal(t, usr.ID, me.ID)
			assert.False(t, me.LastLogin.IsZero())
		})
	}
}

func TestUserAPI_Permissions(t *testing.T) {
	env := newTestEnv(t)
	admin := env.createUser(t, "Admin", "admin@test.test", user.RoleAdmin)
	learner := env.createUser(t, "Ana", "ana@test.test", user.RoleLearner)

	tests := []struct {
		name     string
		method   string
		path     string
		token    string
		wantCode int
	}{
		{name: "no token", method: http.MethodGet, path: "/v1/users/me", wantCode: http.StatusUnauthorized},
		{name: "bad token", method: http.MethodGet, path: "/v1/users/me", token: "not.a.token", wantCode: http.StatusUnauthorized},
		{name: "learner queries users", method: http.MethodGet, path: "/v1/users", token: env.token(t, learner), wantCode: http.StatusForbidden},
		{name: "admin queries users", method: http.MethodGet, path: "/v1/users", token: env.token(t, admin), wantCode: http.StatusOK},
		{name: "learner reads admin", method: http.MethodGet, path: "/v1/users/" + admin.ID, token: env.token(t, learner), wantCode: http.StatusNotFound},
		{name: "learner reads self", method: http.MethodGet, path: "/v1/users/" + learner.ID, token: env.token(t, learner), wantCode: http.StatusOK},
		{name: "admin reads learner", method: http.MethodGet, path: "/v1/users/" + learner.ID, token: env.token(t, admin), wantCode: http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.request(t, tt.method, tt.path, tt.token, nil)
			assert.Equal(t, tt.wantCode, rec.Code, rec.Body.String())
		})
	}
}

func TestUserAPI_TokenRefresh(t *testing.T) {
	env := newTestEnv(t)
	usr := env.createUser(t, "Ana", "ana@test.test", user.RoleLearner)

	rec := env.request(t, http.MethodPost, "/v1/users/token-refresh", env.token(t, usr), nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp echoapi.LoginResponse
	decode(t, rec, &resp)
	assert.NotEmpty(t, resp.Token)
}

func TestUserAPI_RegisterWithProfiles(t *testing.T) {
	env := newTestEnv(t)
	admin := env.createUser(t, "Admin", "admin@test.test", user.RoleAdmin)
	lrn := testutil.CreateLearner(t, env.dirSvc, user.User{Name: "Ana", Email: "ana@test.test"}, "100200", "")
	ins := testutil.CreateInstructor(t, env.dirSvc, user.User{Name: "Iván", Email: "ivan@test.test"}, "800100")

	newUser := func(email string) user.NewUser {
		return user.NewUser{Name: "Someone", Email: email, Password: password, PasswordConfirm: password}
	}

	tests := []struct {
		name     string
		data     echoapi.RegisterRequest
		wantCode int
		wantRole string
	}{
		{
			name:     "malformed learner id",
			data:     echoapi.RegisterRequest{NewUser: newUser("a@test.test"), AccountLinks: echoapi.AccountLinks{LearnerID: "nope"}},
			wantCode: http.StatusBadRequest,
		},
		{
			name: "unknown learner",
			data: echoapi.RegisterRequest{
				NewUser:      newUser("b@test.test"),
				AccountLinks: echoapi.AccountLinks{LearnerID: "6f1f6f3e-2c4a-4b8e-9a55-0d1c5e7b9a10"},
			},
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "learner",
			data:     echoapi.RegisterRequest{NewUser: newUser("ana@test.test"), AccountLinks: echoapi.AccountLinks{LearnerID: lrn.ID}},
			wantCode: http.StatusCreated,
			wantRole: user.RoleLearner,
		},
		{
			name:     "learner already linked",
			data:     echoapi.RegisterRequest{NewUser: newUser("c@test.test"), AccountLinks: echoapi.AccountLinks{LearnerID: lrn.ID}},
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "instructor",
			data:     echoapi.RegisterRequest{NewUser: newUser("ivan@test.test"), AccountLinks: echoapi.AccountLinks{InstructorID: ins.ID}},
			wantCode: http.StatusCreated,
			wantRole: user.RoleInstructor,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.request(t, http.MethodPost, "/v1/users/register", env.token(t, admin), tt.data)
			require.Equal(t, tt.wantCode, rec.Code, rec.Body.String())
			if tt.wantCode != http.StatusCreated {
				return
			}

			var resp echoapi.AccountResponse
			decode(t, rec, &resp)
			assert.Contains(t, resp.Roles, tt.wantRole)

			// the new account signs in as its profile
			rec = env.request(t, http.MethodGet, "/v1/users/me", env.token(t, resp.User), nil)
			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
			var me echoapi.AccountResponse
			decode(t, rec, &me)
			assert.Equal(t, resp.ID, me.ID)
			if tt.data.LearnerID != "" {
				require.NotNil(t, me.Learner)
				assert.Equal(t, lrn.ID, me.Learner.ID)
				assert.Nil(t, me.Instructor)
			} else {
				require.NotNil(t, me.Instructor)
				assert.Equal(t, ins.ID, me.Instructor.ID)
				assert.Nil(t, me.Learner)
			}
		})
	}
}

func TestUserAPI_LinkProfiles(t *testing.T) {
	env := newTestEnv(t)
	admin := env.createUser(t, "Admin", "admin@test.test", user.RoleAdmin)
	usr := env.createUser(t, "Iván", "ivan@test.test")
	ins := testutil.CreateInstructor(t, env.dirSvc, user.User{Name: "Iván", Email: "ivan@test.test"}, "800100")
	path := "/v1/users/" + usr.ID + "/profiles"
	links := echoapi.AccountLinks{InstructorID: ins.ID}

	rec := env.request(t, http.MethodPut, path, env.token(t, usr), links)
	require.Equal(t, http.StatusForbidden, rec.Code, rec.Body.String())

	rec = env.request(t, http.MethodPut, path, env.token(t, admin), links)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp echoapi.AccountResponse
	decode(t, rec, &resp)
	assert.Equal(t, usr.ID, resp.ID)
	assert.Equal(t, usr.Name, resp.Name)
	assert.Equal(t, []string{user.RoleInstructor}, resp.Roles)
	require.NotNil(t, resp.Instructor)
	assert.Equal(t, ins.ID, resp.Instructor.ID)

	// retrieving the account shows the profile too
	rec = env.request(t, http.MethodGet, "/v1/users/"+usr.ID, env.token(t, admin), nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var got echoapi.AccountResponse
	decode(t, rec, &got)
	require.NotNil(t, got.Instructor)
	assert.Equal(t, ins.ID, got.Instructor.ID)

	rec = env.request(t, http.MethodPut, path, env.token(t, admin), links)
	assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
}
