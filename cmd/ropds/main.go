package main

import (
	"context"
	"net/http"
	"os"

	"github.com/dshein-alt/ropds/pkg/config"
	"github.com/dshein-alt/ropds/pkg/database"
	"github.com/dshein-alt/ropds/pkg/exttools"
	"github.com/dshein-alt/ropds/pkg/migrations"
	"github.com/dshein-alt/ropds/pkg/scanner"
	"github.com/dshein-alt/ropds/pkg/scheduler"
	"github.com/dshein-alt/ropds/pkg/server"
	"github.com/dshein-alt/ropds/pkg/users"
	"github.com/dshein-alt/ropds/pkg/version"
	"github.com/jessevdk/go-flags"
	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
	"github.com/robinjoseph08/golib/signals"
)

type options struct {
	Config   string `long:"config" description:"Path to the TOML config file" default:"config.toml"`
	Scan     bool   `long:"scan" description:"Run one library scan and exit"`
	SetAdmin string `long:"set-admin" description:"Create or reset the admin user with the given password and exit" value-name:"PASSWORD"`
}

// Exit codes: 1 config, 2 database, 3 scan or admin failure.
const (
	exitConfig = 1
	exitDB     = 2
	exitTask   = 3
)

func main() {
	ctx := context.Background()
	log := logger.New()
	ctx = log.WithContext(ctx)

	opts := &options{}
	if _, err := flags.Parse(opts); err != nil {
		// go-flags already printed the message (or the help screen).
		if flags.WroteHelp(err) {
			return
		}
		os.Exit(exitConfig)
	}

	log.Info("starting ropds", logger.Data{"version": version.Version})

	cfg, err := config.Load(opts.Config)
	if err != nil {
		log.Err(err).Error("config error")
		os.Exit(exitConfig)
	}

	db, err := database.Open(cfg.Database.URL, cfg.Server.LogLevel == "debug")
	if err != nil {
		log.Err(err).Error("database error")
		os.Exit(exitDB)
	}
	defer db.Close()

	group, err := migrations.BringUpToDate(ctx, db.DB)
	if err != nil {
		log.Err(err).Error("migrations error")
		os.Exit(exitDB)
	}
	if group.ID == 0 {
		log.Info("no new migrations to run")
	} else {
		log.Info("migrated to new group", logger.Data{"group_id": group.ID})
	}

	if opts.SetAdmin != "" {
		if err := users.NewService(db).EnsureAdmin(ctx, opts.SetAdmin); err != nil {
			log.Err(err).Error("set-admin error")
			os.Exit(exitTask)
		}
		log.Info("admin password set")
		return
	}

	sc := scanner.New(db, cfg)

	if opts.Scan {
		stats, err := sc.Run(ctx)
		if err != nil {
			log.Err(err).Error("scan error")
			os.Exit(exitTask)
		}
		log.Info("scan complete", logger.Data{
			"books_added":   stats.BooksAdded,
			"books_skipped": stats.BooksSkipped,
			"books_deleted": stats.BooksDeleted,
		})
		return
	}

	tools := exttools.Detect(ctx)
	srv := server.New(cfg, db, tools)

	graceful := signals.Setup()

	schedCtx, cancelSched := context.WithCancel(ctx)
	go scheduler.New(cfg, sc).Start(schedCtx)

	go func() {
		log.Info("server started", logger.Data{"addr": srv.Addr})
		err := srv.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Err(err).Fatal("server stopped")
		}
	}()

	<-graceful
	log.Info("starting graceful shutdown")

	cancelSched()

	if err := srv.Shutdown(ctx); err != nil {
		log.Err(err).Error("server shutdown error")
	}
	log.Info("server shutdown")
}
