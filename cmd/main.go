package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"gitlab.com/TitanInd/minerwatch/internal/config"
	"gitlab.com/TitanInd/minerwatch/internal/handlers/httphandlers"
	"gitlab.com/TitanInd/minerwatch/internal/lib"
	"gitlab.com/TitanInd/minerwatch/internal/minerapi"
	"gitlab.com/TitanInd/minerwatch/internal/poller"
	"gitlab.com/TitanInd/minerwatch/internal/repositories/store"
	"gitlab.com/TitanInd/minerwatch/internal/scanner"
	"gitlab.com/TitanInd/minerwatch/internal/system"
)

func main() {
	_ = godotenv.Load(".env")

	var cfg config.Config
	err := config.LoadConfig(&cfg, &os.Args)
	if err != nil {
		panic(err)
	}
	cfg.SetDefaults()

	log, err := lib.NewLogger(cfg.Log.LevelApp, cfg.Log.Color, cfg.Log.IsProd, cfg.Log.JSON, cfg.Log.FolderPath)
	if err != nil {
		panic(err)
	}

	scannerLog, err := lib.NewLogger(cfg.Log.LevelScanner, cfg.Log.Color, cfg.Log.IsProd, cfg.Log.JSON, cfg.Log.FolderPath)
	if err != nil {
		panic(err)
	}

	pollerLog, err := lib.NewLogger(cfg.Log.LevelPoller, cfg.Log.Color, cfg.Log.IsProd, cfg.Log.JSON, cfg.Log.FolderPath)
	if err != nil {
		panic(err)
	}

	defer func() {
		_ = log.Sync()
	}()

	ctx, cancel := context.WithCancel(context.Background())

	shutdownChan := make(chan os.Signal, 1)
	signal.Notify(shutdownChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		s := <-shutdownChan
		log.Warnf("received signal: %s", s)
		cancel()

		s = <-shutdownChan
		log.Warnf("received signal: %s. forcing exit...", s)
		os.Exit(1)
	}()

	// the sweep holds one socket per in-flight probe plus the server's own
	fdLimit, err := system.RaiseFDLimit(uint64(cfg.Scan.ConnectConcurrency)*2 + 256)
	if err != nil {
		log.Warnf("cannot raise fd limit: %s", err)
	} else {
		log.Debugf("fd limit: %d", fdLimit)
	}

	db, err := store.New(cfg.Store.DBPath)
	if err != nil {
		log.Fatalf("opening store: %s", err)
	}
	defer db.Close()

	client := minerapi.NewClient(log.Named("CLIENT"))
	dispatcher := minerapi.NewDispatcher(client, cfg.Command.Timeout, log.Named("DISPATCH"))

	scan := scanner.NewScanner(scanner.Config{
		Port:               cfg.Scan.Port,
		ProbeTimeout:       cfg.Scan.ProbeTimeout,
		ConnectTimeout:     cfg.Scan.ConnectTimeout,
		ProbeConcurrency:   cfg.Scan.ProbeConcurrency,
		ConnectConcurrency: cfg.Scan.ConnectConcurrency,
	}, client, scannerLog.Named("SCANNER"))

	bulk := scanner.NewBulkScanner(scan, db, scannerLog.Named("BULK"))

	pollr := poller.NewPoller(poller.Config{
		Interval:     cfg.Poller.Interval,
		BatchSize:    cfg.Poller.BatchSize,
		ProbeTimeout: cfg.Poller.ProbeTimeout,
		HistorySize:  cfg.Poller.HistorySize,
	}, client, db, db, db, pollerLog.Named("POLLER"))

	pollerTask := lib.NewTask(pollr, "telemetry-poller")
	pollerTask.Start(ctx)

	router := httphandlers.NewHTTPHandler(scan, bulk, dispatcher, pollr, db, &cfg, log.Named("HTTP"))

	server := &http.Server{
		Addr:    cfg.Web.Address,
		Handler: router,
	}

	go func() {
		<-ctx.Done()
		_ = server.Shutdown(context.Background())
	}()

	log.Infof("http server is listening: %s", cfg.Web.Address)
	err = server.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		log.Errorf("http server exited: %s", err)
	}

	<-pollerTask.Stop()
	log.Infof("app exited")
}
