// Package main runs a config-driven watcher over every configured chain and
// serves its Prometheus metrics.
//
// Usage:
//
//	FATHOM_CONFIG=./fathom.yaml WATCH_ADDRESS=0x... go run ./example
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/hedeqiang/fathom"
	"github.com/hedeqiang/fathom/event"
	"github.com/hedeqiang/fathom/filter"
	mw "github.com/hedeqiang/fathom/middleware"
	"github.com/hedeqiang/fathom/subscriber"
)

func main() {
	// 1. Load configuration
	cfg, err := fathom.LoadConfig(os.Getenv("FATHOM_CONFIG"))
	if err != nil {
		log.Fatal(err)
	}
	logger := zerolog.New(os.Stderr).With().Timestamp().Logger()

	// 2. Create the SDK with every configured chain
	f, err := fathom.NewFromConfig(cfg, fathom.WithLogger(logger))
	if err != nil {
		log.Fatal(err)
	}

	// 3. Add middleware
	metrics := mw.NewMetrics()
	f.Use(mw.NewLogger(logger), metrics, mw.NewRateLimit(50, 100))

	// 4. Watch the contract on all chains; a slow printer drops logs
	// instead of stalling delivery
	logs := subscriber.NewChannel(256)
	q := filter.NewQuery(filter.WithAddresses(event.MustHexToAddress(os.Getenv("WATCH_ADDRESS"))))
	stop, err := f.WatchAll(q, logs.Send)
	if err != nil {
		log.Fatal(err)
	}
	printed := make(chan struct{})
	go func() {
		defer close(printed)
		for l := range logs.Logs() {
			fmt.Printf("[%s] block=%d tx=%s topic0=%s\n",
				l.Chain, l.BlockNumber, l.TxHash.Hex(), l.EventSignature().Hex())
		}
	}()

	// 5. Serve metrics
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	server := &http.Server{Addr: ":9090", Handler: mux}
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("metrics server: %v", err)
		}
	}()

	fmt.Printf("Watching %v... Press Ctrl+C to stop.\n", f.Chains())

	// 6. Graceful shutdown on signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	fmt.Println("\nShutting down...")
	stop()
	logs.Close()
	<-printed
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := f.Shutdown(ctx); err != nil {
		log.Printf("Shutdown error: %v", err)
	}
	_ = server.Shutdown(ctx)

	fmt.Printf("Done. processed=%d dropped=%d unprinted=%d\n", metrics.Processed(), metrics.Dropped(), logs.Dropped())
}
