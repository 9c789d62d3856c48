package main

import (
	"context"
	"database/sql"
	"expvar"
	"fmt"
	"log"
	"net/http"
	_ "net/http/pprof"
	"os"
	"time"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"

	echoapi "github.com/tmkamba/kanisa/apps/api/echo"
	"github.com/tmkamba/kanisa/core"
	"github.com/tmkamba/kanisa/core/conversion"
	"github.com/tmkamba/kanisa/core/followup"
	"github.com/tmkamba/kanisa/core/goal"
	"github.com/tmkamba/kanisa/core/prospect"
	"github.com/tmkamba/kanisa/core/report"
	"github.com/tmkamba/kanisa/core/weekly"
	directorysvc "github.com/tmkamba/kanisa/services/directory"
	emailsvc "github.com/tmkamba/kanisa/services/email"
	logsvc "github.com/tmkamba/kanisa/services/logger"
	"github.com/tmkamba/kanisa/storage/database"
	pgrepos "github.com/tmkamba/kanisa/storage/database/postgres"
)

func main() {
	// =========================================================================
	// Set up Dependencies

	conf := core.NewConfig()

	// set up loggers
	logger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "API : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)
	logger.Enable(!conf.Debug)

	// set up DB
	sdb, err := setUpDB(conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
	}
	defer func() {
		if err = sdb.Close(); err != nil {
			logger.Error("closing database", err)
		}
	}()
	db := sqlx.NewDb(sdb, "postgres")

	// set up repositories
	prospectRepo := pgrepos.NewProspectRepository(db)
	taskRepo := pgrepos.NewTaskRepository(db)
	convRepo := pgrepos.NewConversionRepository(db)
	goalRepo := pgrepos.NewGoalRepository(db)
	weeklyRepo := pgrepos.NewWeeklyReportRepository(db)

	// set up services
	var mailSvc core.EmailService
	if conf.Debug {
		mailSvc = emailsvc.NewConsoleService(conf)
	} else {
		mailSvc = emailsvc.NewSendgridService(conf, logger)
	}
	directory := directorysvc.NewClient(conf, logger)

	prospectSvc := prospect.NewService(prospectRepo, directory, conf, logger)
	taskSvc := followup.NewService(taskRepo, directory, mailSvc, conf, logger)
	goalSvc := goal.NewService(goalRepo, convRepo)
	convSvc := conversion.NewService(convRepo, goalSvc, logger)
	weeklySvc := weekly.NewService(weeklyRepo)
	reportSvc := report.NewService(prospectRepo, convRepo, weeklyRepo, goalRepo, logger)

	prospectSvc.SetConversionRecorder(convSvc)
	prospectSvc.SetFollowUpScheduler(taskSvc)

	// =========================================================================
	// Initialize App

	logger.Info(fmt.Sprintf("Application initializing : version %q", conf.Build))
	defer logger.Info("Application stopped")

	validate := validator.New()
	translator := newTranslator()
	core.InitValidators(validate, translator)
	prospect.InitValidators(validate, translator)
	followup.InitValidators(validate, translator)
	weekly.InitValidators(validate, translator)

	// =========================================================================
	// Start Debug Service
	//
	// /debug/pprof - Added to the default mux by importing the net/http/pprof package.
	// /debug/vars - Added to the default mux by importing the expvar package.

	// Expose important info under /debug/vars.
	expvar.NewString("build").Set(conf.Build)
	expvar.NewString("env").Set(conf.Env)

	go func() {
		if err = http.ListenAndServe(conf.Server.DebugHost, http.DefaultServeMux); err != nil {
			logger.Error(fmt.Sprintf("debug server closed: %v", err), err)
		}
	}()

	// =========================================================================
	// Start Drop-Off Detector

	detectorCtx, stopDetector := context.WithCancel(context.Background())
	defer stopDetector()
	go runDetector(detectorCtx, prospectSvc, conf, logger)

	// =========================================================================
	// Start API Service

	server := echoapi.NewServer(
		echoapi.ServerDeps{
			Conf:          conf,
			Logger:        logger,
			ProspectSvc:   prospectSvc,
			TaskSvc:       taskSvc,
			ConversionSvc: convSvc,
			GoalSvc:       goalSvc,
			WeeklySvc:     weeklySvc,
			ReportSvc:     reportSvc,
			Validate:      validate,
			Translator:    translator,
			HealthCheck:   db.PingContext,
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
		stopDetector()

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

// runDetector periodically scans the pipeline for stalled prospects.
func runDetector(ctx context.Context, svc *prospect.Service, conf *core.Config, logger core.Logger) {
	if conf.Detector.ScanInterval <= 0 {
		return
	}
	ticker := time.NewTicker(conf.Detector.ScanInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			flagged, err := svc.DetectDropOffs(ctx, prospect.Thresholds(conf.Detector), time.Now().UTC())
			if err != nil {
				logger.Error(fmt.Sprintf("drop-off scan failed: %v", err), err)
				continue
			}
			if len(flagged) > 0 {
				logger.Info(fmt.Sprintf("drop-off scan flagged %d prospect(s)", len(flagged)))
			}
		}
	}
}

func setUpDB(conf *core.Config) (*sql.DB, error) {
	if err := database.CreateIfNotExist(conf); err != nil {
		return nil, err
	}

	db, err := database.Open(conf)
	if err != nil {
		return nil, err
	}

	if err = database.Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

func newTranslator() ut.Translator {
	_en := en.New()
	uni := ut.New(_en, _en)
	translator, _ := uni.GetTranslator("en")
	return translator
}
