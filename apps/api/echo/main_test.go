package echoapi_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/require"

	echoapi "github.com/trezcool/bitacora/apps/api/echo"
	"github.com/trezcool/bitacora/core"
	"github.com/trezcool/bitacora/core/directory"
	"github.com/trezcool/bitacora/core/evidence"
	"github.com/trezcool/bitacora/core/notification"
	"github.com/trezcool/bitacora/core/user"
	appfs "github.com/trezcool/bitacora/fs"
	emailsvc "github.com/trezcool/bitacora/services/email"
	logsvc "github.com/trezcool/bitacora/services/logger"
	metricsvc "github.com/trezcool/bitacora/services/metrics"
	inmemdb "github.com/trezcool/bitacora/storage/database/inmem"
	filestore "github.com/trezcool/bitacora/storage/files"
	testutil "github.com/trezcool/bitacora/tests"
)

const password = "Tr1cky-Bus!n3ss"

var (
	pdfContent  = append([]byte("%PDF-1.4\n"), bytes.Repeat([]byte("x"), 64)...)
	docxContent = append([]byte("PK\x03\x04"), bytes.Repeat([]byte{0}, 64)...)
)

// syncDispatcher delivers notifications before Dispatch returns.
type syncDispatcher struct {
	handler notification.Handler
	logger  core.Logger
}

func (d syncDispatcher) Dispatch(nn notification.NewNotification) {
	notification.Deliver(d.handler, d.logger, nn)
}

type testEnv struct {
	srv      *echoapi.Server
	conf     *core.Config
	usrRepo  user.Repository
	dirSvc   directory.Service
	evSvc    evidence.Service
	notifSvc notification.Service
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	conf := core.NewTestConfig()
	conf.Uploads.Dir = t.TempDir()
	logger := logsvc.NewNop()

	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)
	directory.InitValidators(validate, translator)
	core.ParseEmailTemplates(appfs.FS, appfs.EmailTemplatesDir, true, logger)

	db := inmemdb.Open()
	usrRepo := inmemdb.NewUserRepository(db)
	mailSvc := emailsvc.NewConsoleServiceMock(conf, logger)
	usrSvc := user.NewService(usrRepo, mailSvc, conf)
	dirSvc := directory.NewService(inmemdb.NewDirectoryRepository(db))
	notifSvc := notification.NewService(inmemdb.NewNotificationRepository(db), usrSvc, mailSvc, validate, logger, conf)

	store, err := filestore.NewLocalStore(conf.Uploads.Dir)
	require.NoError(t, err)
	evSvc := evidence.NewService(
		evidence.OptionsFromConfig(conf),
		inmemdb.NewEvidenceRepository(db),
		db,
		store,
		dirSvc,
		&syncDispatcher{handler: notifSvc, logger: logger},
		logger,
	)

	srv := echoapi.NewServer(echoapi.Deps{
		Conf:            conf,
		Logger:          logger,
		Validate:        validate,
		Translator:      translator,
		UserSvc:         usrSvc,
		DirectorySvc:    dirSvc,
		EvidenceSvc:     evSvc,
		NotificationSvc: notifSvc,
		Metrics:         metricsvc.New(),
		DisableReqLogs:  true,
	})

	return &testEnv{
		srv:      srv,
		conf:     conf,
		usrRepo:  usrRepo,
		dirSvc:   dirSvc,
		evSvc:    evSvc,
		notifSvc: notifSvc,
	}
}

func (env *testEnv) createUser(t *testing.T, name, email string, roles ...string) user.User {
	t.Helper()
	return testutil.CreateUser(t, env.usrRepo, name, email, password, roles, true)
}

func (env *testEnv) token(t *testing.T, usr user.User) string {
	t.Helper()
	auth := env.srv.Authenticator()
	claims, err := auth.UserClaims(context.Background(), usr)
	require.NoError(t, err)
	token, err := auth.GenerateToken(claims)
	require.NoError(t, err)
	return token
}

func (env *testEnv) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	env.srv.ServeHTTP(rec, req)
	return rec
}

// request sends `body` JSON encoded, unless it is nil.
func (env *testEnv) request(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return env.do(req)
}

type formFile struct {
	name    string
	content []byte
}

// multipartRequest sends `fields` & the optional `file` as the "archivo" part.
func (env *testEnv) multipartRequest(
	t *testing.T,
	method, path, token string,
	fields map[string]string,
	file *formFile,
) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	if file != nil {
		fw, err := w.CreateFormFile("archivo", file.name)
		require.NoError(t, err)
		_, err = io.Copy(fw, bytes.NewReader(file.content))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return env.do(req)
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v), rec.Body.String())
}
