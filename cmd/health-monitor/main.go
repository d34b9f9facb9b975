// health-monitor serves the Distributed Embedded Health Monitor API.
//
// Besides serving, it can list and restore database backups and print
// administrative exports of the stored readings:
//
//	health-monitor --config monitor.yaml
//	health-monitor --list-backups
//	health-monitor --restore 20240301
//	health-monitor --summary
//	health-monitor --export esp32-a
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	monitor "github.com/F0G3J3/Distributed-Embedded-Health-Monitor"
	"github.com/F0G3J3/Distributed-Embedded-Health-Monitor/internal/config"
	"github.com/F0G3J3/Distributed-Embedded-Health-Monitor/internal/handlers"
	"github.com/F0G3J3/Distributed-Embedded-Health-Monitor/internal/storage"
	"github.com/spf13/pflag"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	var (
		configPath  string
		listen      string
		dbPath      string
		debug       bool
		listBackups bool
		restoreDate string
		summary     bool
		exportID    string
	)

	flagSet := pflag.NewFlagSet("health-monitor", pflag.ContinueOnError)
	flagSet.StringVarP(&configPath, "config", "c", "", "YAML file of MONITOR_* settings")
	flagSet.StringVar(&listen, "listen", "", "listen address (overrides MONITOR_LISTEN_ADDR)")
	flagSet.StringVar(&dbPath, "db", "", "SQLite database path (overrides MONITOR_DB_PATH)")
	flagSet.BoolVar(&debug, "debug", false, "enable debug logging")
	flagSet.BoolVar(&listBackups, "list-backups", false, "list database backups and exit")
	flagSet.StringVar(&restoreDate, "restore", "", "restore the backup taken on YYYYMMDD and exit")
	flagSet.BoolVar(&summary, "summary", false, "print a JSON summary of every device and exit")
	flagSet.StringVar(&exportID, "export", "", "print every reading of a device as JSON and exit")

	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if rest := flagSet.Args(); len(rest) > 0 {
		return fmt.Errorf("unexpected argument: %s", rest[0])
	}

	if configPath != "" {
		if err := config.LoadFile(configPath); err != nil {
			return err
		}
	}

	// flags win over both the environment and the config file
	overrides := map[string]string{"listen": "MONITOR_LISTEN_ADDR", "db": "MONITOR_DB_PATH", "debug": "MONITOR_DEBUG"}
	for flag, key := range overrides {
		if flagSet.Changed(flag) {
			value := flagSet.Lookup(flag).Value.String()
			if err := os.Setenv(key, value); err != nil {
				return err
			}
		}
	}

	ctx := config.SetContextCorrelationId(context.Background(), "main")

	switch {
	case listBackups:
		return runListBackups()
	case restoreDate != "":
		return runRestore(ctx, restoreDate)
	case summary || exportID != "":
		return runExport(ctx, summary, exportID)
	}

	return serve(ctx)
}

func serve(ctx context.Context) error {
	logger := config.Default()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	m, err := monitor.New(ctx, monitor.WithLogger(logger))
	if err != nil {
		return err
	}
	defer m.Close()

	m.Start(ctx)

	srv := &http.Server{
		Addr:         config.StringValue("MONITOR_LISTEN_ADDR"),
		Handler:      m.Handler(),
		ReadTimeout:  config.DurationValue("MONITOR_READ_TIMEOUT"),
		WriteTimeout: config.DurationValue("MONITOR_WRITE_TIMEOUT"),
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info(ctx, fmt.Sprintf("listening on %s", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	case <-ctx.Done():
	}

	logger.Info(ctx, "shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.DurationValue("MONITOR_SHUTDOWN_TIMEOUT"))
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}
	return nil
}

func runListBackups() error {
	cfg, err := storage.LoadConfig()
	if err != nil {
		return err
	}

	backups, err := storage.ListHealthBackups(&cfg.Backup)
	if err != nil {
		return err
	}
	if len(backups) == 0 {
		fmt.Printf("no backups in %s\n", cfg.Backup.BackupDir)
		return nil
	}
	for _, name := range backups {
		fmt.Println(name)
	}
	return nil
}

func runRestore(ctx context.Context, date string) error {
	cfg, err := storage.LoadConfig()
	if err != nil {
		return err
	}
	if cfg.Kind != storage.KindSQLite {
		return fmt.Errorf("restore requires the sqlite backend")
	}

	name, err := storage.FindBackupForDate(date, &cfg.Backup)
	if err != nil {
		return err
	}
	if err := storage.RestoreHealthDatabase(name, cfg.DBPath, &cfg.Backup); err != nil {
		return err
	}

	config.LogInfo(ctx, fmt.Sprintf("restored %s to %s", name, cfg.DBPath))
	return nil
}

func runExport(ctx context.Context, summary bool, deviceID string) error {
	manager, err := storage.NewManagerFromConfig()
	if err != nil {
		return err
	}
	defer manager.Close()

	var out string
	if summary {
		out, err = handlers.GetFleetSummary(ctx, manager, time.Now())
	} else {
		out, err = handlers.ExportDevice(ctx, manager, deviceID, time.Now())
	}
	if err != nil {
		return err
	}

	fmt.Println(out)
	return nil
}
