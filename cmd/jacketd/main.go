package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pagebound/jacket/asset"
	"github.com/pagebound/jacket/config"
	"github.com/pagebound/jacket/pkg/api"
	"github.com/pagebound/jacket/pkg/cover"
	"github.com/pagebound/jacket/pkg/events"
	"github.com/pagebound/jacket/util/log"

	// Cover sources register themselves at init time.
	_ "github.com/pagebound/jacket/pkg/cover/sources/google"
	_ "github.com/pagebound/jacket/pkg/cover/sources/longitood"
	_ "github.com/pagebound/jacket/pkg/cover/sources/openlibrary"
)

func main() {
	configPath := flag.String("config", "jacket.toml", "path to the TOML config file")
	addr := flag.String("addr", "127.0.0.1:8480", "listen address for the admin API")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Loading config: %v", err)
	}

	assets := asset.NewManager()
	broker := events.NewBroker()
	hub := events.NewHub(broker)

	svc, err := cover.NewService(cfg, assets, broker, nil)
	if err != nil {
		log.Fatalf("Building cover service: %v", err)
	}

	svc.Start()
	hub.Start()

	stopWatch, err := cfg.Watch(*configPath, nil)
	if err != nil {
		log.Printf("Config watcher unavailable: %v", err)
		stopWatch = func() {}
	}

	server := api.NewServer(*addr, svc, hub, assets)
	go func() {
		log.Printf("%s %s listening on %s", config.AppName, config.AppVersion, *addr)
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("API server: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh
	log.Print("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Stop(shutdownCtx); err != nil {
		log.Printf("API server shutdown: %v", err)
	}
	stopWatch()
	svc.Stop()
	hub.Stop()
	log.Print("Goodbye.")
}
