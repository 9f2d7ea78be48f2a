package cmd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rubiojr/cmsmirror/pkg/api"
	"github.com/rubiojr/cmsmirror/pkg/config"
	"github.com/rubiojr/cmsmirror/pkg/metrics"
	"github.com/rubiojr/cmsmirror/pkg/realtime"
	"github.com/rubiojr/cmsmirror/pkg/scheduler"
	"github.com/rubiojr/cmsmirror/pkg/storage"
	"github.com/rubiojr/cmsmirror/pkg/syncer"
	"github.com/rubiojr/cmsmirror/pkg/web"
	"github.com/rubiojr/cmsmirror/pkg/widget"
	"github.com/urfave/cli/v3"
)

// ServeCommand creates the serve command
func ServeCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the search API and run scheduled syncs",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "host",
				Usage: "Host to bind to (overrides server.host)",
			},
			&cli.StringFlag{
				Name:  "port",
				Usage: "Port to listen on (overrides server.port)",
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			return serve(ctx, c.String("config"), c.String("host"), c.String("port"))
		},
	}
}

// serverRuntime lives for the whole process and survives reloads.
type serverRuntime struct {
	metrics  *metrics.Metrics
	syncLock *sync.Mutex
	events   *realtime.Hub
}

// serverComponents are rebuilt from the configuration on every reload.
type serverComponents struct {
	options  api.Options
	syncer   *syncer.Syncer
	schedule scheduler.Config
}

func buildComponents(cfg *config.Config, store storage.Store, rt *serverRuntime) (*serverComponents, error) {
	bindings, err := widget.FromConfig(cfg.Widget.Bindings)
	if err != nil {
		return nil, err
	}

	svc := newSearchService(cfg, store, rt.metrics)
	page, err := web.NewPage(svc, store, bindings)
	if err != nil {
		return nil, err
	}

	s := newSyncer(cfg, store, syncer.Options{
		Metrics: rt.metrics,
		Events:  rt.events,
		Lock:    rt.syncLock,
	})
	return &serverComponents{
		options: api.Options{
			Store:        store,
			Search:       svc,
			Syncer:       s,
			Metrics:      rt.metrics,
			Page:         page,
			Events:       rt.events,
			SearchMaxAge: cfg.Server.SearchMaxAge.Duration,
			DataMaxAge:   cfg.Server.DataMaxAge.Duration,
		},
		syncer: s,
		schedule: scheduler.Config{
			Schedule:            cfg.Sync.Schedule,
			OnStart:             cfg.Sync.OnStart && cfg.HasCMSCredentials(),
			MaintenanceSchedule: cfg.Sync.MaintenanceSchedule,
		},
	}, nil
}

func serve(ctx context.Context, configPath, host, port string) error {
	cfg, store, err := openStore(ctx, configPath)
	if err != nil {
		return err
	}
	defer closeOrWarn("store", store)

	if host == "" {
		host = cfg.Server.Host
	}
	if port == "" {
		port = cfg.Server.Port
	}

	rt := &serverRuntime{
		metrics:  metrics.New(),
		syncLock: &sync.Mutex{},
		events:   realtime.NewHub(0),
	}
	components, err := buildComponents(cfg, store, rt)
	if err != nil {
		return err
	}
	apiServer := api.NewServer(components.options)

	maintainer, _ := store.(storage.Maintainer)
	sched := scheduler.New(components.syncer, maintainer, components.schedule)

	schedCtx, schedCancel := context.WithCancel(ctx)
	if err := sched.Start(schedCtx); err != nil {
		schedCancel()
		return fmt.Errorf("starting scheduler: %w", err)
	}
	// Shutting down aborts an in-flight sync; the previous snapshot stays.
	defer func() {
		schedCancel()
		sched.Stop()
	}()

	httpServer := &http.Server{
		Addr:              net.JoinHostPort(host, port),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	serverErr := make(chan error, 1)
	go func() {
		logger.Infof("Listening on http://%s (backend %s, %s search)", httpServer.Addr, cfg.Backend, components.options.Search.Mode())
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP, syscall.SIGUSR1)
	defer signal.Stop(sigCh)

	currentConfig := cfg
	reload := func(reason string) {
		logger.Infof("%s, reloading configuration...", reason)
		newCfg, err := reloadConfiguration(configPath, currentConfig, store, rt, apiServer, sched)
		if err != nil {
			logger.Errorf("Failed to reload configuration: %v", err)
			return
		}
		currentConfig = newCfg
		logger.Infof("Configuration reloaded successfully")
	}

	var watchEvents <-chan fsnotify.Event
	var watchErrors <-chan error
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		logger.Warnf("Failed to create config file watcher: %v", err)
	} else {
		defer closeOrWarn("config file watcher", watcher)
		if err := watcher.Add(configPath); err != nil {
			logger.Warnf("Failed to watch config file %s: %v", configPath, err)
		} else {
			logger.Infof("Watching config file for changes: %s", configPath)
		}
		watchEvents, watchErrors = watcher.Events, watcher.Errors
	}

	for {
		select {
		case err := <-serverErr:
			return fmt.Errorf("http server: %w", err)
		case <-ctx.Done():
			return shutdown(httpServer)
		case sig := <-sigCh:
			switch sig {
			case syscall.SIGHUP:
				reload("Received SIGHUP")
				continue
			case syscall.SIGUSR1:
				logger.Infof("Received SIGUSR1, starting a sync")
				sched.Trigger()
				continue
			}
			fmt.Println("\nShutting down...")
			return shutdown(httpServer)
		case event, ok := <-watchEvents:
			if !ok {
				watchEvents = nil
				continue
			}
			if !(event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) || event.Has(fsnotify.Remove)) {
				continue
			}
			// Editors often replace the file; the watch must be re-added.
			if event.Has(fsnotify.Rename) || event.Has(fsnotify.Remove) {
				time.Sleep(200 * time.Millisecond)
				if _, err := os.Stat(configPath); os.IsNotExist(err) {
					logger.Warnf("Config file was removed and not replaced, skipping reload")
					continue
				}
				if err := watcher.Add(configPath); err != nil {
					logger.Warnf("Failed to re-add config file to watcher: %v", err)
				}
			} else {
				time.Sleep(100 * time.Millisecond)
			}
			reload(fmt.Sprintf("Config file changed (%s)", event.Op))
		case err, ok := <-watchErrors:
			if !ok {
				watchErrors = nil
				continue
			}
			logger.Warnf("Config file watcher error: %v", err)
		}
	}
}

func shutdown(srv *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down http server: %w", err)
	}
	return nil
}

// reloadConfiguration applies a changed configuration file to the running
// server. Storage settings need a restart; everything else is swapped in.
func reloadConfiguration(configPath string, current *config.Config, store storage.Store, rt *serverRuntime, apiServer *api.Server, sched *scheduler.Scheduler) (*config.Config, error) {
	newCfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("loading new config: %w", err)
	}

	if newCfg.Backend != current.Backend || newCfg.StorageDir != current.StorageDir ||
		newCfg.Postgres.URL != current.Postgres.URL || newCfg.Redis.URL != current.Redis.URL {
		logger.Warnf("Storage settings changed; restart to apply them")
		newCfg.Backend = current.Backend
		newCfg.StorageDir = current.StorageDir
		newCfg.Postgres = current.Postgres
		newCfg.Redis = current.Redis
		newCfg.SearchMode = current.SearchMode
	}

	components, err := buildComponents(newCfg, store, rt)
	if err != nil {
		return nil, err
	}
	if err := sched.Reload(components.syncer, components.schedule); err != nil {
		return nil, fmt.Errorf("rescheduling: %w", err)
	}
	apiServer.Update(components.options)
	return newCfg, nil
}
