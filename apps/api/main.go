package main

import (
	"context"
	"expvar"
	"fmt"
	"log"
	"net/http"
	_ "net/http/pprof"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/jonboulle/clockwork"

	echoapi "github.com/trezcool/drowsiness/apps/api/echo"
	"github.com/trezcool/drowsiness/core"
	"github.com/trezcool/drowsiness/core/drowsiness"
	"github.com/trezcool/drowsiness/core/inference"
	"github.com/trezcool/drowsiness/core/landmark"
	"github.com/trezcool/drowsiness/core/metrics"
	archivesvc "github.com/trezcool/drowsiness/services/archive"
	eventsvc "github.com/trezcool/drowsiness/services/events"
	inferencesvc "github.com/trezcool/drowsiness/services/inference"
	logsvc "github.com/trezcool/drowsiness/services/logger"
	realtimesvc "github.com/trezcool/drowsiness/services/realtime"
	"github.com/trezcool/drowsiness/storage/database"
	sqlxrepos "github.com/trezcool/drowsiness/storage/database/sqlx"
)

func main() {
	// =========================================================================
	// Set up Dependencies

	conf := core.NewConfig()
	ctx := context.Background()

	// set up loggers
	logger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "API : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)
	logger.Enable(!conf.Debug)

	dbLogger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "DB : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)
	dbLogger.Enable(!conf.Debug)

	// set up DB
	db, err := setUpDB(ctx, conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
	}
	defer func() {
		if err = db.Close(); err != nil {
			dbLogger.Fatal("Failed to close", err)
		}
	}()

	// set up the real-time store
	var realtime drowsiness.RealtimeStore
	if conf.Redis.Address != "" {
		client, err := realtimesvc.NewRedisClient(ctx, conf.Redis)
		if err != nil {
			logger.Fatal(fmt.Sprintf("setting up redis: %v", err), err)
		}
		defer func() { _ = client.Close() }()
		realtime = realtimesvc.NewRedis(client, conf.Redis.SessionTTL)
	} else {
		logger.Warn("no redis address configured, using the in-memory real-time store")
		mem := realtimesvc.NewInmem(conf.Redis.SessionTTL)
		go mem.Start()
		defer mem.Stop()
		realtime = mem
	}

	// set up the fatigue model
	var model inference.Predictor
	if conf.Model.Address != "" {
		predictor, err := inferencesvc.NewGRPCPredictor(conf.Model)
		if err != nil {
			logger.Fatal(fmt.Sprintf("setting up model client: %v", err), err)
		}
		defer func() { _ = predictor.Close() }()
		model = predictor
	} else {
		logger.Warn("no model address configured, every window scores the constant stub value")
		model = inferencesvc.ConstantPredictor(1)
	}

	// set up events & archive
	var events drowsiness.EventPublisher = eventsvc.NopPublisher{Log: logger}
	if conf.AMQP.URL != "" {
		publisher, err := eventsvc.NewAMQPPublisher(ctx, conf.AMQP)
		if err != nil {
			logger.Fatal(fmt.Sprintf("setting up event publisher: %v", err), err)
		}
		defer func() { _ = publisher.Close() }()
		events = publisher
	}

	var archiver drowsiness.Archiver
	if conf.Archive.Endpoint != "" {
		archive, err := archivesvc.NewMinioArchiver(ctx, conf.Archive)
		if err != nil {
			logger.Fatal(fmt.Sprintf("setting up archive: %v", err), err)
		}
		archiver = archive
	}

	// set up services
	clock := clockwork.NewRealClock()
	drowsinessSvc := drowsiness.NewService(conf.Drowsiness, drowsiness.Deps{
		Sessions:  sqlxrepos.NewSessionRepository(db),
		Scores:    sqlxrepos.NewScoreRepository(db),
		Realtime:  realtime,
		Landmarks: landmark.NewStore(conf.Drowsiness),
		Ingestors: landmark.NewRegistry(),
		Model:     inference.NewService(model, inference.ShapeFromConfig(conf.Drowsiness), clock),
		Events:    events,
		Archiver:  archiver,
		Logger:    logger,
		Clock:     clock,
	})

	// =========================================================================
	// Initialize App

	logger.Info(fmt.Sprintf("Application initializing : version %q", conf.Build))
	defer logger.Info("Application stopped")

	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)

	metrics.BuildInfo.WithLabelValues(conf.Build, conf.Env).Set(1)

	// =========================================================================
	// Start Debug Service
	//
	// /debug/pprof - Added to the default mux by importing the net/http/pprof package.
	// /debug/vars - Added to the default mux by importing the expvar package.

	// Expose important info under /debug/vars.
	expvar.NewString("build").Set(conf.Build)
	expvar.NewString("env").Set(conf.Env)

	go func() {
		if err := http.ListenAndServe(conf.Server.DebugAddress, http.DefaultServeMux); err != nil {
			logger.Error(fmt.Sprintf("debug server closed: %v", err), err)
		}
	}()

	// =========================================================================
	// Start API Service

	server := echoapi.NewServer(
		echoapi.ServerDeps{
			Conf:          conf,
			Logger:        logger,
			DrowsinessSvc: drowsinessSvc,
			Validate:      validate,
			Translator:    translator,
		},
	)

	go func() {
		server.Start()
	}()

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

func setUpDB(ctx context.Context, conf *core.Config) (*sqlx.DB, error) {
	if err := database.CreateIfNotExist(ctx, conf); err != nil {
		return nil, err
	}

	db, err := database.Open(ctx, conf)
	if err != nil {
		return nil, err
	}

	if err = database.Migrate(ctx, db.DB); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}
