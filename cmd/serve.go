package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/remedyhq/remedy/internal/api"
	"github.com/remedyhq/remedy/internal/daemon"
	"github.com/remedyhq/remedy/internal/store"
)

var (
	serveDaemon    bool
	serveStop      bool
	serveEphemeral bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the REST API server",
	Long: `Start an HTTP server exposing the session API.

By default it listens on port 8484 and runs in the foreground. Use
--daemon to detach into the background (a PID file tracks the process;
stop it with --stop). Use --ephemeral to keep sessions in memory
instead of the SQLite database.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if serveStop {
			return serveStopRun()
		}
		if serveDaemon {
			return serveDaemonRun()
		}
		return serveRun(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().IntP("port", "p", 8484, "port to listen on")
	serveCmd.Flags().BoolVarP(&serveDaemon, "daemon", "d", false, "run in the background")
	serveCmd.Flags().BoolVar(&serveStop, "stop", false, "stop a running background server")
	serveCmd.Flags().BoolVar(&serveEphemeral, "ephemeral", false, "keep sessions in memory, no database")
	_ = viper.BindPFlag("port", serveCmd.Flags().Lookup("port"))
}

func serveRun(ctx context.Context) error {
	var st store.Store
	if serveEphemeral {
		st = store.NewMemoryStore()
	} else {
		s, err := getStore()
		if err != nil {
			return err
		}
		st = s
	}

	orch, err := getOrchestrator(st)
	if err != nil {
		return err
	}

	addr := fmt.Sprintf(":%d", viper.GetInt("port"))
	srv := &http.Server{
		Addr:              addr,
		Handler:           api.NewServer(orch).Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(ctx, shutdownSignals()...)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		ui.Info("Serving API at http://localhost%s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
	}

	// Stop accepting requests, then let in-flight session workflows
	// finish before the process exits.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		ui.Warning("server shutdown: %v", err)
	}
	orch.Wait()
	return st.Close()
}

func pidFilePath() string {
	return filepath.Join(viper.GetString("state_dir"), "remedy-serve.pid")
}

// serveDaemonRun re-execs this binary in the foreground, detached from
// the terminal, and records its PID.
func serveDaemonRun() error {
	pf := daemon.NewPIDFile(pidFilePath())
	if pid, running := pf.IsRunning(); running {
		return fmt.Errorf("server already running (pid %d); use --stop first", pid)
	}

	exe, err := os.Executable()
	if err != nil {
		return err
	}

	args := []string{"serve", "--port", fmt.Sprint(viper.GetInt("port"))}
	if serveEphemeral {
		args = append(args, "--ephemeral")
	}
	child := exec.Command(exe, args...)
	child.Stdout = nil
	child.Stderr = nil
	setDaemonAttrs(child)

	if dryRun {
		ui.DryRunMsg("Would start background server: %s %v", exe, args)
		return nil
	}

	if err := child.Start(); err != nil {
		return fmt.Errorf("start background server: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(pf.Path), 0o755); err != nil {
		return err
	}
	if err := pf.WritePID(child.Process.Pid); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}

	ui.Success("Server started in background (pid %d)", child.Process.Pid)
	return nil
}

func serveStopRun() error {
	pf := daemon.NewPIDFile(pidFilePath())
	pid, err := pf.Read()
	if err != nil {
		return fmt.Errorf("no running server found: %w", err)
	}

	if dryRun {
		ui.DryRunMsg("Would stop server (pid %d)", pid)
		return nil
	}

	if err := pf.Signal(sigTERM()); err != nil {
		_ = pf.Remove()
		return fmt.Errorf("server (pid %d) not running: %w", pid, err)
	}

	// Give graceful shutdown a window, then force.
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		if _, running := pf.IsRunning(); !running {
			break
		}
		time.Sleep(200 * time.Millisecond)
	}
	if _, running := pf.IsRunning(); running {
		_ = pf.Signal(sigKILL())
	}

	_ = pf.Remove()
	ui.Success("Server stopped (pid %d)", pid)
	return nil
}
