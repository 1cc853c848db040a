// Copyright 2026 The Procvisor Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use file except in compliance with the License.
// You may obtain a copy of the license at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/gofrs/flock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/procvisor/procvisor"
	"github.com/procvisor/procvisor/rest"
)

var (
	startLogLevel string
	startLogFile  string
	startQuiet    bool
	startNoAPI    bool
	startMaxConns int
)

var startCmd = &cobra.Command{
	Use:   "start <config>",
	Short: "Run the processes declared in a configuration file",
	Long: `Run the processes declared in a configuration file, in the foreground.

Every process is launched at once, and relaunched after it exits.  On
SIGINT or SIGTERM, or when "procvisor stop" is run, every process is
asked to terminate and killed if it does not within the kill timeout.

Exit status is 0 after a clean shutdown, 2 if the configuration is
invalid, and 1 for any other failure.`,
	Args: cobra.ExactArgs(1),
	RunE: runStart,
}

func init() {
	startCmd.Flags().StringVar(&startLogLevel, "log-level", "", "supervisor log level (overrides logs.level)")
	startCmd.Flags().StringVar(&startLogFile, "log-file", "", "write supervisor diagnostics to this file instead of stderr")
	startCmd.Flags().BoolVarP(&startQuiet, "quiet", "q", false, "do not copy process output to stdout when logs.file is set")
	startCmd.Flags().BoolVar(&startNoAPI, "no-api", false, "do not serve the control API")
	startCmd.Flags().IntVar(&startMaxConns, "max-conns", 64, "maximum simultaneous control API connections")
	rootCmd.AddCommand(startCmd)
}

// loadConfig loads a configuration, reporting validation problems with
// exit status 2.
func loadConfig(path string) (*procvisor.Config, error) {
	cfg, err := procvisor.LoadConfigFile(path)
	if err != nil {
		var ce *procvisor.ConfigError
		if errors.As(err, &ce) {
			fmt.Fprintln(os.Stderr, ce.Error())
			return nil, &ExitError{Code: 2, Err: err}
		}
		return nil, err
	}
	return cfg, nil
}

// lockStateDir ensures only one supervisor uses a state directory, and
// records our pid there.  The returned function releases it.
func lockStateDir(dir string) (func(), error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating state dir: %w", err)
	}
	fileLock := flock.New(filepath.Join(dir, "procvisor.lock"))
	locked, err := fileLock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquiring lock: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("another supervisor is using %s", dir)
	}
	pidFile := filepath.Join(dir, "procvisor.pid")
	if err := os.WriteFile(pidFile, []byte(strconv.Itoa(os.Getpid())+"\n"), 0o644); err != nil {
		_ = fileLock.Unlock()
		return nil, fmt.Errorf("writing pid file: %w", err)
	}
	return func() {
		_ = os.Remove(pidFile)
		_ = fileLock.Unlock()
	}, nil
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(args[0])
	if err != nil {
		return err
	}

	level := cfg.Logs.Level
	if startLogLevel != "" {
		level = startLogLevel
	}
	logger, err := procvisor.NewLogger(level, startLogFile, cfg.Logs)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	if cfg.StateDir != "" {
		unlock, err := lockStateDir(cfg.StateDir)
		if err != nil {
			return err
		}
		defer unlock()
	}

	var out io.Writer = os.Stdout
	if cfg.Logs.File != "" {
		rot := procvisor.NewRotatingWriter(cfg.Logs.File, cfg.Logs)
		defer rot.Close()
		if startQuiet {
			out = rot
		} else {
			out = procvisor.NewMultiWriter(rot, os.Stdout)
		}
	}
	sink := procvisor.NewSink(out, procvisor.WithRotation(cfg.Logs))
	defer sink.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	sup := procvisor.NewSupervisor(
		procvisor.WithLogger(logger),
		procvisor.WithSink(sink),
		procvisor.WithRegisterer(reg),
		procvisor.WithKillTimeout(cfg.KillTimeout),
	)

	var srv *http.Server
	if !startNoAPI {
		srv, err = serveAPI(cfg, sup, reg, logger)
		if err != nil {
			return err
		}
	}

	if err := sup.Start(cfg.Specs); err != nil {
		return err
	}

	sigs := make(chan os.Signal, 2)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigs)

	select {
	case sig := <-sigs:
		logger.Infow("received signal", "signal", sig.String())
		go sup.Shutdown(context.Background(), 0)
	case <-sup.Done():
	}

	// A second signal abandons the graceful shutdown.
	select {
	case <-sup.Done():
	case sig := <-sigs:
		logger.Warnw("received second signal, exiting now", "signal", sig.String())
		return &ExitError{Code: 1}
	}

	if srv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
	logger.Infow("shutdown complete")
	return nil
}

func serveAPI(cfg *procvisor.Config, sup *procvisor.Supervisor, reg *prometheus.Registry, logger *zap.SugaredLogger) (*http.Server, error) {
	l, err := rest.Listen(cfg.Control.Listen, startMaxConns)
	if err != nil {
		return nil, fmt.Errorf("control API: %w", err)
	}
	opts := []rest.HandlerOption{
		rest.WithMetrics(reg),
		rest.WithLogger(logger),
	}
	if cfg.Control.User != "" {
		opts = append(opts, rest.WithBasicAuth(cfg.Control.User, cfg.Control.PasswordHash))
	}
	srv := &http.Server{
		Handler:           rest.NewHandler(sup, opts...),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := srv.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorw("control API failed", "error", err)
		}
	}()
	logger.Infow("control API listening", "addr", l.Addr().String())
	return srv, nil
}
