// Command timelineserver runs a local introspection surface over a
// permission timeline, for operators to exercise Allowed/Authorize/Revoke
// and inspect the resolution-policy log outside of a full community. It
// exposes no route for Check.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/overlaytrust/timeline/internal/config"
	"github.com/overlaytrust/timeline/internal/timelinelog"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	tlog := timelinelog.New(timelinelog.ParseLevel(cfg.LogLevel))
	app := NewApp(tlog)
	router := newRouter(app, tlog)
	srv := newHTTPServer(cfg.ListenAddr, router)

	go func() {
		tlog.Warnf("starting timeline server on %s", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	tlog.Warnf("shutting down timeline server")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("server forced to shutdown: %v", err)
	}
	tlog.Warnf("timeline server exited gracefully")
}
