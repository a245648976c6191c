package main

import (
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/exp/slog"

	"github.com/velopay/cardledger/ledger"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout))

	config := ledger.DefaultConfig()
	if v := os.Getenv("HTTP_ADDR"); v != "" {
		config.HTTPAddr = v
	}
	if v := os.Getenv("ISO8583_ADDR"); v != "" {
		config.ISO8583Addr = v
	}
	if v := os.Getenv("BIN_PREFIX"); v != "" {
		config.BINPrefix = v
	}
	if os.Getenv("SEED_DEMO_CARD") == "false" {
		config.SeedDemoCard = false
	}

	app := ledger.NewApp(logger, config)
	if err := app.Start(); err != nil {
		logger.Error("starting app", "err", err)
		os.Exit(1)
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)
	<-done

	app.Shutdown()
}
