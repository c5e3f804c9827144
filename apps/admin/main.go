package main

import (
	"fmt"
	"log"
	"os"

	"github.com/trezcool/bitacora/core"
	logsvc "github.com/trezcool/bitacora/services/logger"
	"github.com/trezcool/bitacora/storage/database"
	sqlxrepos "github.com/trezcool/bitacora/storage/database/sqlx"
)

func main() {
	conf := core.NewConfig()

	rootLogger, err := logsvc.New(conf)
	if err != nil {
		log.Fatalf("setting up logger: %v", err)
	}
	logger := rootLogger.Named(logsvc.ADMIN)

	// set up DB
	if err = database.CreateIfNotExist(conf); err != nil {
		logger.Fatal(fmt.Sprintf("creating database: %v", err), err)
	}
	db, err := database.Open(conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("opening database: %v", err), err)
	}

	// start CLI
	cli := commandLine{
		db:      db,
		usrRepo: sqlxrepos.NewUserRepository(db),
	}
	err = cli.run(os.Args)
	_ = db.Close()
	_ = rootLogger.Sync()
	if err != nil {
		if err != errHelp {
			logger.Error(fmt.Sprintf("admin: %v", err), err)
		}
		os.Exit(1)
	}
}
