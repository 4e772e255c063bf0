package daemon

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ankittk/agentsync/internal/config"
	"github.com/ankittk/agentsync/internal/httpapi"
	"github.com/ankittk/agentsync/internal/otel"
	"github.com/ankittk/agentsync/internal/store"
)

const (
	shutdownGrace  = 15 * time.Second
	digestInterval = time.Minute
)

var errNotRunning = errors.New("agentsync is not running")

// StartForeground runs the daemon until ctx is cancelled: the HTTP API, the event
// dispatcher, the presence simulator and the digest flusher.
func StartForeground(ctx context.Context, opts StartOptions) error {
	if opts.Home == "" {
		return errors.New("home is required")
	}
	if opts.Port == 0 {
		opts.Port = DefaultPort
	}
	cfg, err := config.Load(opts.Home)
	if err != nil {
		return err
	}
	if opts.MaxConcurrent > 0 {
		cfg.Collab.MaxConcurrent = opts.MaxConcurrent
	}
	if opts.APIKey == "" {
		opts.APIKey = cfg.Server.APIKey
	}

	if err := os.MkdirAll(protectedDir(opts.Home), 0o755); err != nil {
		return err
	}
	lock, err := acquireLock(lockPath(opts.Home))
	if err != nil {
		return err
	}
	defer lock.release()

	startPprof(opts.PprofAddr)

	// Postgres migrates on connect.
	driver := cfg.Database.Driver
	if opts.DBDriver != "" {
		driver = opts.DBDriver
	}
	if driver != "postgres" {
		if err := store.EnsureSchema(opts.Home); err != nil {
			return err
		}
	}

	if err := checkPortAvailable(opts.Port); err != nil {
		return err
	}
	addr := fmt.Sprintf("0.0.0.0:%d", opts.Port)
	if err := os.WriteFile(pidPath(opts.Home), []byte(strconv.Itoa(os.Getpid())+"\n"), 0o644); err != nil {
		return err
	}
	_ = os.WriteFile(addrPath(opts.Home), []byte(addr+"\n"), 0o644)
	defer func() {
		_ = os.Remove(pidPath(opts.Home))
		_ = os.Remove(addrPath(opts.Home))
	}()

	srvOpts := httpapi.ServerOptions{
		Home:     opts.Home,
		Addr:     addr,
		Dev:      opts.Dev,
		APIKey:   opts.APIKey,
		DBDriver: opts.DBDriver,
		DBURL:    opts.DBURL,
		Config:   &cfg,
		Inferrer: opts.Inferrer,
	}
	if opts.EnableOtel {
		metricsHandler, err := otel.InitMeterProvider(ctx, "agentsync")
		if err != nil {
			slog.Warn("otel init failed, metrics disabled", "err", err)
		} else {
			srvOpts.MetricsHandler = metricsHandler
			srvOpts.UseOtelHTTP = true
		}
	}
	app, err := httpapi.NewApp(srvOpts)
	if err != nil {
		return err
	}
	defer func() {
		if err := app.Close(); err != nil {
			slog.Warn("close app", "err", err)
		}
	}()

	slog.Info("daemon starting", "addr", addr, "home", opts.Home, "inference", cfg.Inference.Provider, "db", driver)
	return serve(ctx, app, cfg)
}

// serve runs the long-lived goroutines; the first failure stops the rest.
func serve(ctx context.Context, app *httpapi.App, cfg config.Config) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := app.Server.ListenAndServe()
		if err == nil || errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownGrace)
		defer cancel()
		return app.Server.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		return newDispatcher(app, cfg.Collab.MaxConcurrent).Run(gctx)
	})
	if !cfg.Presence.Disabled {
		g.Go(func() error { return app.Presence.Run(gctx) })
	}
	g.Go(func() error { return app.Digest.Run(gctx, digestInterval) })

	err := g.Wait()
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

// StartBackground re-executes the current binary as a detached "daemon" process.
func StartBackground(ctx context.Context, opts StartOptions) (int, error) {
	exe, err := os.Executable()
	if err != nil {
		return 0, err
	}
	if err := os.MkdirAll(protectedDir(opts.Home), 0o755); err != nil {
		return 0, err
	}
	if st, _ := Status(ctx, opts.Home); st.Running {
		return 0, fmt.Errorf("agentsync already running (pid %d)", st.PID)
	}

	stderr, err := os.OpenFile(logPath(opts.Home), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return 0, err
	}
	// Kept open for the child's lifetime.

	cmd := exec.Command(exe, daemonArgs(opts)...)
	cmd.Stdout = io.Discard
	cmd.Stderr = stderr
	setDaemonSysProcAttr(cmd)
	if err := cmd.Start(); err != nil {
		return 0, err
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if st, _ := Status(ctx, opts.Home); st.Running {
			return st.PID, nil
		}
		time.Sleep(50 * time.Millisecond)
	}
	return cmd.Process.Pid, nil
}

func daemonArgs(opts StartOptions) []string {
	port := opts.Port
	if port == 0 {
		port = DefaultPort
	}
	args := []string{"daemon", "--home", opts.Home, "--port", strconv.Itoa(port)}
	if opts.MaxConcurrent > 0 {
		args = append(args, "--max-concurrent", strconv.Itoa(opts.MaxConcurrent))
	}
	if opts.Dev {
		args = append(args, "--dev")
	}
	if opts.PprofAddr != "" {
		args = append(args, "--pprof", opts.PprofAddr)
	}
	if opts.DBDriver != "" {
		args = append(args, "--db-driver", opts.DBDriver)
	}
	if !opts.EnableOtel {
		args = append(args, "--otel=false")
	}
	return args
}

// Stop sends SIGTERM and waits for the daemon to exit, killing it after the grace period.
func Stop(ctx context.Context, home string) (bool, error) {
	st, err := Status(ctx, home)
	if err != nil {
		return false, err
	}
	if !st.Running {
		return false, nil
	}
	proc, err := os.FindProcess(st.PID)
	if err != nil {
		return false, errNotRunning
	}
	if err := signalTerm(proc); err != nil {
		return false, err
	}

	deadline := time.Now().Add(shutdownGrace)
	for time.Now().Before(deadline) {
		if st2, _ := Status(ctx, home); !st2.Running {
			return true, nil
		}
		time.Sleep(100 * time.Millisecond)
	}
	_ = proc.Kill()
	return true, nil
}

// Status reads the pid file and checks the process is alive. A stale pid file is removed.
func Status(_ context.Context, home string) (StatusInfo, error) {
	pb, err := os.ReadFile(pidPath(home))
	if err != nil {
		return StatusInfo{}, nil
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(pb)))
	if err != nil || pid <= 0 {
		return StatusInfo{}, nil
	}
	if !processExists(pid) {
		_ = os.Remove(pidPath(home))
		return StatusInfo{}, nil
	}

	addr := "unknown"
	if ab, err := os.ReadFile(addrPath(home)); err == nil && strings.TrimSpace(string(ab)) != "" {
		addr = strings.TrimSpace(string(ab))
	}
	return StatusInfo{Running: true, PID: pid, Addr: addr}, nil
}

func checkPortAvailable(port int) error {
	ln, err := net.Listen("tcp", fmt.Sprintf("0.0.0.0:%d", port))
	if err != nil {
		return fmt.Errorf("port %d is already in use", port)
	}
	_ = ln.Close()
	return nil
}
