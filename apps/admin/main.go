package main

import (
	"context"
	"log"
	"os"

	"github.com/trezcool/drowsiness/core"
	"github.com/trezcool/drowsiness/core/drowsiness"
	"github.com/trezcool/drowsiness/core/landmark"
	"github.com/trezcool/drowsiness/storage/database"
	sqlxrepos "github.com/trezcool/drowsiness/storage/database/sqlx"
)

var logger *log.Logger

func main() {
	logger = log.New(os.Stdout, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)
	conf := core.NewConfig()
	ctx := context.Background()

	// set up DB
	errAndDie(database.CreateIfNotExist(ctx, conf))
	db, err := database.Open(ctx, conf)
	errAndDie(err)

	// start CLI
	cli := commandLine{
		conf: conf,
		db:   db.DB,
		svc: drowsiness.NewService(conf.Drowsiness, drowsiness.Deps{
			Sessions:  sqlxrepos.NewSessionRepository(db),
			Scores:    sqlxrepos.NewScoreRepository(db),
			Landmarks: landmark.NewStore(conf.Drowsiness),
		}),
		out: os.Stdout,
	}
	err = cli.run(os.Args)
	_ = db.Close()
	if err != nil {
		if err != errHelp {
			logger.Printf("\nerror: %s\n", err)
		}
		os.Exit(1)
	}
}

func errAndDie(err error) {
	if err != nil {
		logger.Fatal(err)
	}
}
