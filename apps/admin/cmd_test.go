package main

import (
	"context"
	"fmt"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/bitacora/core/user"
	inmemdb "github.com/trezcool/bitacora/storage/database/inmem"
	testutil "github.com/trezcool/bitacora/tests"
)

func setup(t *testing.T) (*commandLine, user.Repository) {
	t.Helper()
	usrRepo := inmemdb.NewUserRepository(inmemdb.Open())
	return &commandLine{usrRepo: usrRepo}, usrRepo
}

type cliTest struct {
	name    string
	args    []string // without program name
	pwd     string
	wantErr error
}

func mockPassword(t *testing.T, pwd *string) {
	t.Helper()
	orig := readPasswordFunc
	readPasswordFunc = func(int) ([]byte, error) { return []byte(*pwd), nil }
	t.Cleanup(func() { readPasswordFunc = orig })
}

func Test_commandLine_migrate(t *testing.T) {
	cli, _ := setup(t)

	var gotCmd string
	var gotArgs []string
	orig := migrateFunc
	migrateFunc = func(db *sqlx.DB, command string, args ...string) error {
		switch command {
		case "up", "down", "redo", "status", "version", "up-to":
			gotCmd, gotArgs = command, args
			return nil
		}
		return fmt.Errorf("%q: no such command", command)
	}
	t.Cleanup(func() { migrateFunc = orig })

	tests := []struct {
		name     string
		args     []string
		wantErr  string
		wantArgs []string
	}{
		{name: "no subcommand", args: []string{"migrate"}, wantErr: errHelp.Error()},
		{name: "unknown subcommand", args: []string{"migrate", "lol"}, wantErr: `"lol": no such command`},
		{name: "up", args: []string{"migrate", "up"}, wantArgs: []string{}},
		{name: "up-to", args: []string{"migrate", "up-to", "2"}, wantArgs: []string{"2"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := cli.run(append([]string{"admin"}, tt.args...))
			if tt.wantErr != "" {
				require.EqualError(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.args[1], gotCmd)
			assert.Equal(t, tt.wantArgs, gotArgs)
		})
	}
}

func Test_commandLine_addUser(t *testing.T) {
	cli, usrRepo := setup(t)
	var pwd string
	mockPassword(t, &pwd)

	tests := []cliTest{
		{name: "no command", wantErr: errHelp},
		{name: "unknown command", args: []string{"lol"}, wantErr: errHelp},
		{name: "no email", args: []string{"adduser", "-name", "Ana"}, pwd: "pwd", wantErr: errHelp},
		{name: "no password", args: []string{"adduser", "-name", "Ana", "-email", "ana@test.test"}, wantErr: errHelp},
		{name: "unknown flag", args: []string{"adduser", "-lol"}, pwd: "pwd", wantErr: errHelp},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pwd = tt.pwd
			assert.Equal(t, tt.wantErr, cli.run(append([]string{"admin"}, tt.args...)))
		})
	}

	t.Run("unknown role", func(t *testing.T) {
		pwd = "pwd"
		err := cli.run([]string{"admin", "adduser", "-name", "Ana", "-email", "ana@test.test", "-role", "parent:"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unknown role")
	})

	t.Run("create instructor", func(t *testing.T) {
		pwd = "s3cr3t-Instructor"
		require.NoError(t, cli.run([]string{"admin", "adduser", "-name", " Ana ", "-email", "ANA@test.test", "-role", "instructor:"}))

		usr, err := usrRepo.GetUser(context.Background(), user.GetFilter{Email: "ana@test.test"})
		require.NoError(t, err)
		assert.Equal(t, "Ana", usr.Name)
		assert.True(t, usr.IsActive)
		assert.Equal(t, []string{user.RoleInstructor}, usr.Roles)
		assert.NoError(t, usr.CheckPassword(pwd))
	})

	t.Run("promote to admin", func(t *testing.T) {
		pwd = "s3cr3t-Admin"
		require.NoError(t, cli.run([]string{"admin", "adduser", "-name", "Ana", "-email", "ana@test.test", "-admin"}))

		usr, err := usrRepo.GetUser(context.Background(), user.GetFilter{Email: "ana@test.test"})
		require.NoError(t, err)
		assert.Equal(t, user.AllRoles, usr.Roles)
		assert.NoError(t, usr.CheckPassword(pwd))

		users, err := usrRepo.QueryUsers(context.Background(), nil, nil)
		require.NoError(t, err)
		assert.Len(t, users, 1)
	})
}

func Test_commandLine_resetPassword(t *testing.T) {
	cli, usrRepo := setup(t)
	usr := testutil.CreateUser(t, usrRepo, "Ana", "ana@test.test", "old-Passw0rd", []string{user.RoleLearner}, true)
	var pwd string
	mockPassword(t, &pwd)

	tests := []cliTest{
		{name: "no args", args: []string{"resetpassword"}, wantErr: errHelp},
		{name: "email but no password", args: []string{"resetpassword", "-email", "ana@test.test"}, wantErr: errHelp},
		{name: "user not found", args: []string{"resetpassword", "-email", "bob@test.test"}, pwd: "lol", wantErr: user.ErrNotFound},
		{name: "reset", args: []string{"resetpassword", "-email", "ANA@test.test"}, pwd: "n3w-Passw0rd"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pwd = tt.pwd
			err := cli.run(append([]string{"admin"}, tt.args...))
			if tt.wantErr != nil {
				assert.Equal(t, tt.wantErr, errors.Cause(err))
				return
			}
			require.NoError(t, err)

			refreshed, err := usrRepo.GetUser(context.Background(), user.GetFilter{ID: usr.ID})
			require.NoError(t, err)
			assert.NoError(t, refreshed.CheckPassword(tt.pwd))
		})
	}
}
