package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/hieudm/groupledger/audit"
	"github.com/hieudm/groupledger/cache"
	"github.com/hieudm/groupledger/config"
	"github.com/hieudm/groupledger/ledger"
	"github.com/hieudm/groupledger/operator"
	"github.com/hieudm/groupledger/store"
	"github.com/hieudm/groupledger/telegram"
	"github.com/hieudm/groupledger/web"
)

func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		printErrorAndExit("loading configuration", err)
	}

	db, err := store.Open(store.Driver(cfg.StoreDriver), cfg.StoreDSN)
	if err != nil {
		printErrorAndExit("database connection", err)
	}
	if err := db.Bootstrap(context.Background()); err != nil {
		printErrorAndExit("creating schema", err)
	}

	sink := audit.NewSqlSink(db)
	worker := audit.NewWorker(sink, 100)
	worker.Start()
	defer worker.Shutdown()

	ledgerRepo := ledger.NewRepository(db)
	operatorRepo := operator.NewRepository(db)
	engine := ledger.NewEngine(ledgerRepo)

	if cfg.BotToken == "" {
		slog.Warn("TELEGRAM_BOT_TOKEN not set, running report server only")
	} else {
		fileURLs := cache.New(30*time.Minute, 512)
		bot, err := telegram.New(cfg.BotToken, engine, operatorRepo, worker, fileURLs, telegram.CaptionExtractor{})
		if err != nil {
			printErrorAndExit("telegram bot", err)
		}
		go bot.Start()
		defer bot.Stop()
	}

	router := web.NewRouter(engine, cfg.APITokenHash, worker)

	slog.Info("report server starting", "addr", cfg.ListenAddr)
	if err := http.ListenAndServe(cfg.ListenAddr, router); err != nil {
		printErrorAndExit("report server", err)
	}
}

func printErrorAndExit(msg string, e error) {
	slog.Error(msg, "error", e)
	os.Exit(1)
}
