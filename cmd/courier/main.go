package main

import (
	"log"
	"net/http"
	"os"

	"github.com/seantiz/courier/internal/agent"
	"github.com/seantiz/courier/internal/api"
	"github.com/seantiz/courier/internal/config"
	"github.com/seantiz/courier/internal/dispatch"
	"github.com/seantiz/courier/internal/engine/httpeng"
	"github.com/seantiz/courier/internal/store"
)

func main() {
	cfg := config.Load()
	logger := config.NewLogger(os.Stdout, cfg.LogLevel)

	logger.Info("courier: starting",
		"listen_addr", cfg.ListenAddr,
		"db_path", cfg.DBPath,
		"request_timeout", cfg.RequestTimeout.String(),
	)

	db, err := store.NewSQLiteStore(cfg.DBPath)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()

	eng, err := httpeng.New(&http.Client{Timeout: cfg.RequestTimeout})
	if err != nil {
		log.Fatalf("failed to create transfer engine: %v", err)
	}

	handle, err := agent.Start(eng, logger)
	if err != nil {
		log.Fatalf("failed to start transfer worker: %v", err)
	}

	d := dispatch.New(handle, db, logger)
	srv := api.NewServer(cfg.ListenAddr, db, d, logger)

	if err := srv.Run(); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
