package logsvc

import (
	"fmt"
	"sync"

	"github.com/rollbar/rollbar-go"
	"github.com/rollbar/rollbar-go/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/trezcool/bitacora/core"
	"github.com/trezcool/bitacora/core/user"
)

// Logger names
const (
	API   = "API"
	DB    = "DB"
	QUEUE = "QUEUE"
	ADMIN = "ADMIN"
)

// rollbar keeps the person in a global; reports are serialized to attach the right one.
var rollbarMu sync.Mutex

// Logger writes structured logs with zap and reports warnings & errors to rollbar.
type Logger struct {
	zl      *zap.Logger
	rollbar bool
}

var _ core.Logger = (*Logger)(nil)

// New builds the root logger: development encoding in debug, JSON otherwise.
// Rollbar is enabled when a token is configured and not in debug/test mode.
func New(conf *core.Config) (*Logger, error) {
	var (
		zl  *zap.Logger
		err error
	)
	if conf.Debug || conf.TestMode {
		zc := zap.NewDevelopmentConfig()
		if conf.TestMode {
			zc.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
		}
		zl, err = zc.Build(zap.AddCallerSkip(1))
	} else {
		zl, err = zap.NewProduction(zap.AddCallerSkip(1))
	}
	if err != nil {
		return nil, err
	}
	zl = zl.With(zap.String("env", conf.Env), zap.String("build", conf.Build))

	enabled := conf.RollbarToken != "" && !conf.Debug && !conf.TestMode
	if enabled {
		rollbar.SetToken(conf.RollbarToken)
		rollbar.SetEnvironment(conf.Env)
		rollbar.SetServerHost(conf.Server.Host)
		rollbar.SetCodeVersion(conf.Build)
		rollbar.SetStackTracer(errors.StackTracer)
	}
	rollbar.SetEnabled(enabled)

	return &Logger{zl: zl, rollbar: enabled}, nil
}

// NewNop discards everything.
func NewNop() *Logger {
	return &Logger{zl: zap.NewNop()}
}

// Named returns a child logger, eg. logger.Named(logsvc.API).
func (l *Logger) Named(name string) *Logger {
	return &Logger{zl: l.zl.Named(name), rollbar: l.rollbar}
}

// Zap exposes the underlying zap logger to libraries that take one.
func (l *Logger) Zap() *zap.Logger { return l.zl }

// Sync flushes buffered logs & pending rollbar reports.
func (l *Logger) Sync() error {
	if l.rollbar {
		rollbar.Wait()
	}
	return l.zl.Sync()
}

// fields converts args (error, map[string]interface{}, user.User, anything else) into zap fields.
func fields(args []interface{}) ([]zap.Field, *user.User) {
	var usr *user.User
	flds := make([]zap.Field, 0, len(args))
	for i, arg := range args {
		switch a := arg.(type) {
		case error:
			flds = append(flds, zap.Error(a))
		case map[string]interface{}:
			for k, v := range a {
				flds = append(flds, zap.Any(k, v))
			}
		case user.User:
			if usr == nil {
				u := a
				usr = &u
				flds = append(flds, zap.String("user_id", a.ID), zap.String("user_email", a.Email))
			}
		default:
			flds = append(flds, zap.Any(fmt.Sprintf("arg%d", i), a))
		}
	}
	return flds, usr
}

// report sends msg & args to rollbar, the user.User arg (if any) being the person.
func (l *Logger) report(level string, msg string, args []interface{}, usr *user.User) {
	if !l.rollbar {
		return
	}
	rbArgs := make([]interface{}, 0, len(args)+1)
	rbArgs = append(rbArgs, msg)
	for _, arg := range args {
		if _, ok := arg.(user.User); !ok {
			rbArgs = append(rbArgs, arg)
		}
	}

	rollbarMu.Lock()
	defer rollbarMu.Unlock()
	if usr != nil {
		rollbar.SetPerson(usr.ID, usr.Name, usr.Email)
	} else {
		rollbar.ClearPerson()
	}
	rollbar.Log(level, rbArgs...)
}

func (l *Logger) Debug(msg string, args ...interface{}) {
	flds, _ := fields(args)
	l.zl.Debug(msg, flds...)
}

func (l *Logger) Info(msg string, args ...interface{}) {
	flds, _ := fields(args)
	l.zl.Info(msg, flds...)
}

func (l *Logger) Warn(msg string, args ...interface{}) {
	flds, usr := fields(args)
	l.zl.Warn(msg, flds...)
	l.report(rollbar.WARN, msg, args, usr)
}

func (l *Logger) Error(msg string, args ...interface{}) {
	flds, usr := fields(args)
	l.zl.Error(msg, flds...)
	l.report(rollbar.ERR, msg, args, usr)
}

func (l *Logger) Fatal(msg string, args ...interface{}) {
	flds, usr := fields(args)
	l.report(rollbar.CRIT, msg, args, usr)
	if l.rollbar {
		rollbar.Wait()
	}
	l.zl.Fatal(msg, flds...)
}
