package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/agave/factoring-ledger/internal/config"
	"github.com/agave/factoring-ledger/internal/database"
	"github.com/agave/factoring-ledger/internal/event"
	ledgerHttp "github.com/agave/factoring-ledger/internal/http"
	ledgerHandler "github.com/agave/factoring-ledger/internal/http/ledger"
	"github.com/agave/factoring-ledger/internal/ledger"
	"github.com/agave/factoring-ledger/internal/ledger/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	db, err := database.New(cfg.ConnectionString())
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	rdb := database.NewRedis(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	defer rdb.Close()

	var (
		publisher     = event.NewPublisher(rdb, cfg.Redis.EventQueue)
		ledgerStore   = store.NewWithLockTimeout(db, cfg.Ledger.LockTimeout)
		ledgerService = ledger.NewService(ledgerStore, publisher)
	)

	ledgerH := ledgerHandler.NewHandler(ledgerService)

	router := ledgerHttp.New(ledgerH, cfg.Auth.JWTSecret)

	port := fmt.Sprintf(":%d", cfg.App.Port)
	slog.Info("starting server", "port", port)

	if err := http.ListenAndServe(port, router); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}
