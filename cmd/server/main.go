// Copyright 2026 The routeAILocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package main provides the entry point for the routeAILocal server.
// The server classifies incoming questions by complexity, routes each one to
// the cheapest capable model backend, and serves the result over HTTP and
// websocket.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"

	"github.com/traylinx/routeAILocal/internal/api"
	"github.com/traylinx/routeAILocal/internal/backends"
	"github.com/traylinx/routeAILocal/internal/buildinfo"
	"github.com/traylinx/routeAILocal/internal/classifier"
	"github.com/traylinx/routeAILocal/internal/config"
	"github.com/traylinx/routeAILocal/internal/costing"
	"github.com/traylinx/routeAILocal/internal/declog"
	"github.com/traylinx/routeAILocal/internal/dispatch"
	"github.com/traylinx/routeAILocal/internal/gateway"
	"github.com/traylinx/routeAILocal/internal/logging"
	"github.com/traylinx/routeAILocal/internal/memory"
	"github.com/traylinx/routeAILocal/internal/registry"
	"github.com/traylinx/routeAILocal/internal/routing"
	"github.com/traylinx/routeAILocal/internal/scenecache"
	"github.com/traylinx/routeAILocal/internal/watcher"
)

var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

// init initializes the shared logger setup.
func init() {
	logging.SetupBaseLogger()
	buildinfo.Version = Version
	buildinfo.Commit = Commit
	buildinfo.BuildDate = BuildDate
}

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("routeAILocal %s\n", buildinfo.String())
		return
	}

	if err := godotenv.Load(); err == nil {
		log.Debug("loaded environment from .env")
	}

	if err := run(*configPath); err != nil {
		log.Fatalf("server failed: %v", err)
	}
}

func run(configPath string) error {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return err
	}
	if cfg.Debug {
		log.SetLevel(log.DebugLevel)
	}
	if err := logging.ConfigureLogOutput(cfg.LoggingToFile, cfg.LogsMaxTotalSizeMB); err != nil {
		return fmt.Errorf("configure logging: %w", err)
	}

	cls, err := classifier.New(cfg.ClassifierOptions())
	if err != nil {
		return err
	}
	reg, err := cfg.BuildRegistry()
	if err != nil {
		return err
	}
	router := routing.New(reg)

	estimator, err := costing.NewEstimator(cfg.Costing.TokenEstimator)
	if err != nil {
		return err
	}

	hardTTL, noReadingTTL := cfg.SceneCacheTTLs()
	sceneCache := scenecache.New(scenecache.Options{
		BucketWidth:  cfg.SceneCache.BucketWidth,
		HardTTL:      hardTTL,
		NoReadingTTL: noReadingTTL,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var recorder *declog.Recorder
	if cfg.DecisionLog.Enabled {
		recorder, err = declog.NewRecorder(cfg.DecisionLog.Path, cfg.DecisionLog.RetentionDays)
		if err != nil {
			return err
		}
		if err := recorder.Initialize(ctx); err != nil {
			return fmt.Errorf("decision log: %w", err)
		}
		log.Infof("decision log at %s, retention %d days", cfg.DecisionLog.Path, cfg.DecisionLog.RetentionDays)
	}

	var memories *memory.Store
	if cfg.Memory.Enabled {
		memories = memory.NewStore(cfg.Memory.Dir)
		if err := memories.Initialize(); err != nil {
			return fmt.Errorf("memory store: %w", err)
		}
		log.Infof("memory store at %s", cfg.Memory.Dir)
	}

	orch, err := dispatch.New(cls, router, estimator, backends.NewHTTPInvoker(), dispatch.Options{
		Recorder:       recorderOrNil(recorder),
		Memories:       memories,
		SceneCache:     sceneCache,
		MemoryDaysBack: cfg.Memory.DaysBack,
	})
	if err != nil {
		return err
	}

	server := api.NewServer(cfg, orch, cls, router, sceneCache, recorder)
	gw := gateway.New(orch, gateway.Options{
		KnownSpeakers: cfg.Gateway.KnownSpeakers,
		Sessions:      sessionLoggerOrNil(memories),
	})
	server.RegisterWebsocket(gw.HandleUpgrade)

	w, err := watcher.New(configPath, func(fresh *config.Config) {
		applyReload(cls, reg, fresh)
	})
	if err != nil {
		return err
	}
	if err := w.Start(); err != nil {
		return err
	}
	defer w.Stop()

	httpServer := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler: server.Handler(),
	}

	errCh := make(chan error, 1)
	go func() {
		log.Infof("routeAILocal %s listening on %s", buildinfo.Version, httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		log.Infof("received %s, shutting down", sig)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Warnf("http shutdown: %v", err)
	}
	if recorder != nil {
		if err := recorder.Shutdown(shutdownCtx); err != nil {
			log.Warnf("decision log shutdown: %v", err)
		}
	}
	log.Info("routeAILocal stopped")
	return nil
}

// applyReload swaps classifier rules and routing tables from a freshly
// loaded config. A partially invalid config applies the valid parts.
func applyReload(cls *classifier.Classifier, reg *registry.Registry, fresh *config.Config) {
	if err := cls.Reload(fresh.ClassifierOptions()); err != nil {
		log.Errorf("classifier reload failed, keeping previous rules: %v", err)
	} else {
		log.Info("classifier rules reloaded")
	}
	freshReg, err := fresh.BuildRegistry()
	if err != nil {
		log.Errorf("routing reload failed, keeping previous tables: %v", err)
		return
	}
	reg.Replace(freshReg)
	log.Info("routing tables reloaded")
}

// recorderOrNil avoids storing a typed nil in the orchestrator's interface
// field.
func recorderOrNil(r *declog.Recorder) dispatch.DecisionRecorder {
	if r == nil {
		return nil
	}
	return r
}

func sessionLoggerOrNil(m *memory.Store) gateway.SessionLogger {
	if m == nil {
		return nil
	}
	return m
}
