package main

import (
	"context"
	"expvar"
	"fmt"
	"log"
	"net/http"
	_ "net/http/pprof"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

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
	queuesvc "github.com/trezcool/bitacora/services/queue"
	"github.com/trezcool/bitacora/storage/database"
	inmemdb "github.com/trezcool/bitacora/storage/database/inmem"
	boiledrepos "github.com/trezcool/bitacora/storage/database/sqlboiler"
	sqlxrepos "github.com/trezcool/bitacora/storage/database/sqlx"
	filestore "github.com/trezcool/bitacora/storage/files"
)

// dedupTTL is how long a delivered notification message is remembered.
const dedupTTL = 24 * time.Hour

type repositories struct {
	users         user.Repository
	directory     directory.Repository
	evidence      evidence.Repository
	notifications notification.Repository
	tx            core.Transactor
	close         func() error
}

func main() {
	// =========================================================================
	// Set up Dependencies

	conf := core.NewConfig()

	// set up loggers
	rootLogger, err := logsvc.New(conf)
	if err != nil {
		log.Fatalf("setting up logger: %v", err)
	}
	defer func() { _ = rootLogger.Sync() }()
	logger := rootLogger.Named(logsvc.API)
	dbLogger := rootLogger.Named(logsvc.DB)
	queueLogger := rootLogger.Named(logsvc.QUEUE)

	// set up storage
	repos, err := setUpStorage(conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up storage: %v", err), err)
	}
	defer func() {
		if err := repos.close(); err != nil {
			dbLogger.Error(fmt.Sprintf("closing storage: %v", err), err)
		}
	}()

	files, err := filestore.NewLocalStore(conf.Uploads.Dir)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up uploads dir: %v", err), err)
	}

	// set up services
	var mailSvc core.EmailService
	switch {
	case conf.Debug:
		mailSvc = emailsvc.NewConsoleService(conf, logger)
	case conf.SMTP.Host != "":
		mailSvc = emailsvc.NewSMTPService(conf, logger)
	default:
		mailSvc = emailsvc.NewSendgridService(conf, logger)
	}

	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)
	directory.InitValidators(validate, translator)

	metrics := metricsvc.New()
	usrSvc := user.NewService(repos.users, mailSvc, conf)
	dirSvc := directory.NewService(repos.directory)
	notifSvc := notification.NewService(repos.notifications, usrSvc, mailSvc, validate, logger, conf)

	localDispatcher := notification.NewLocalDispatcher(notifSvc, logger, conf.NotificationQueueSize)
	defer localDispatcher.Close()

	var dispatcher notification.Dispatcher = localDispatcher
	consumerCtx, stopConsumer := context.WithCancel(context.Background())
	defer stopConsumer()
	if conf.AMQPURL != "" {
		publisher, err := queuesvc.NewPublisher(conf.AMQPURL, localDispatcher, queueLogger)
		if err != nil {
			logger.Fatal(fmt.Sprintf("setting up publisher: %v", err), err)
		}
		defer publisher.Close()
		dispatcher = publisher

		consumer, err := setUpConsumer(conf, notifSvc, queueLogger)
		if err != nil {
			logger.Fatal(fmt.Sprintf("setting up consumer: %v", err), err)
		}
		defer consumer.Close()
		go func() {
			if err := consumer.Run(consumerCtx); err != nil {
				queueLogger.Error(fmt.Sprintf("consumer stopped: %v", err), err)
			}
		}()
	}

	evOpts := evidence.OptionsFromConfig(conf)
	evOpts.Observer = metrics
	evSvc := evidence.NewService(evOpts, repos.evidence, repos.tx, files, dirSvc, dispatcher, logger)

	// =========================================================================
	// Initialize App

	logger.Info(fmt.Sprintf("Application initializing : version %q", conf.Build))
	defer logger.Info("Application stopped")

	core.ParseEmailTemplates(appfs.FS, appfs.EmailTemplatesDir, conf.Debug, logger)
	user.LoadCommonPasswords(appfs.FS, appfs.CommonPasswords, logger)

	// =========================================================================
	// Start Debug Service
	//
	// /debug/pprof - Added to the default mux by importing the net/http/pprof package.
	// /debug/vars - Added to the default mux by importing the expvar package.

	expvar.NewString("build").Set(conf.Build)
	expvar.NewString("env").Set(conf.Env)
	expvar.NewString("storage").Set(conf.Storage)

	if conf.Server.DebugHost != "" {
		go func() {
			if err := http.ListenAndServe(conf.Server.DebugHost, http.DefaultServeMux); err != nil {
				logger.Error(fmt.Sprintf("debug server closed: %v", err), err)
			}
		}()
	}

	// =========================================================================
	// Start API Service

	server := echoapi.NewServer(echoapi.Deps{
		Conf:            conf,
		Logger:          logger,
		Validate:        validate,
		Translator:      translator,
		UserSvc:         usrSvc,
		DirectorySvc:    dirSvc,
		EvidenceSvc:     evSvc,
		NotificationSvc: notifSvc,
		Metrics:         metrics,
	})

	go server.Start()

	// =========================================================================
	// Shutdown

	select {
	case err = <-server.Errors():
		logger.Fatal(fmt.Sprintf("server error: %v", err), err)

	case sig := <-server.ShutdownSignal():
		logger.Info(fmt.Sprintf("%v: Start shutdown...", sig))

		// give outstanding requests a deadline for completion
		ctx, cancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
		defer cancel()

		// asking listener to shutdown and shed load
		if err = server.Shutdown(ctx); err != nil {
			logger.Error(fmt.Sprintf("could not stop server gracefully: %v", err), err)

			if err = server.Close(); err != nil {
				logger.Fatal(fmt.Sprintf("could not force stop server: %v", err), err)
			}
		}
	}
}

// setUpStorage opens the repositories selected by conf.Storage.
func setUpStorage(conf *core.Config) (*repositories, error) {
	if conf.Storage == "inmem" {
		db := inmemdb.Open()
		return &repositories{
			users:         inmemdb.NewUserRepository(db),
			directory:     inmemdb.NewDirectoryRepository(db),
			evidence:      inmemdb.NewEvidenceRepository(db),
			notifications: inmemdb.NewNotificationRepository(db),
			tx:            db,
			close:         func() error { return nil },
		}, nil
	}

	if err := database.CreateIfNotExist(conf); err != nil {
		return nil, err
	}
	db, err := database.Open(conf)
	if err != nil {
		return nil, err
	}
	if err = database.Migrate(db, "up"); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &repositories{
		users:         sqlxrepos.NewUserRepository(db),
		directory:     sqlxrepos.NewDirectoryRepository(db),
		evidence:      boiledrepos.NewEvidenceRepository(db),
		notifications: boiledrepos.NewNotificationRepository(db),
		tx:            database.NewTransactor(db),
		close:         db.Close,
	}, nil
}

func setUpConsumer(conf *core.Config, handler notification.Handler, logger core.Logger) (*queuesvc.Consumer, error) {
	var dedup queuesvc.Deduper
	if rdb := queuesvc.NewRedisClient(conf.Redis); rdb != nil {
		dedup = queuesvc.NewRedisDeduper(rdb, dedupTTL, logger)
	}
	consumer, err := queuesvc.NewConsumer(conf.AMQPURL, handler, dedup, logger)
	return consumer, errors.Wrap(err, "connecting consumer")
}
