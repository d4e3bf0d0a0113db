package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/artist-check/internal/model"
	"github.com/sells-group/artist-check/internal/monitoring"
	"github.com/sells-group/artist-check/internal/roster"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the roster, criteria and city data over HTTP",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("serve"); err != nil {
			return err
		}
		env, err := initApp(ctx, cfg)
		if err != nil {
			return err
		}
		defer env.Close()

		alerter := monitoring.NewAlerter(cfg.Monitoring)
		sched, err := scheduleRefresh(ctx, env.Roster, cfg.Roster.RefreshSchedule, env.Loc, alerter)
		if err != nil {
			return err
		}
		if sched != nil {
			sched.Start()
			defer func() { <-sched.Stop().Done() }()
		}

		router := buildRouter(env, cfg.Server.CORSOrigins)
		timeout := time.Duration(cfg.Server.ShutdownTimeoutSecs) * time.Second
		return startServer(ctx, router, resolvePort(servePort, cfg.Server.Port), timeout)
	},
}

// resolvePort prefers the --port flag over the configured port.
func resolvePort(flagPort, cfgPort int) int {
	if flagPort != 0 {
		return flagPort
	}
	return cfgPort
}

// startServer listens on port until ctx is done, then drains in-flight
// requests for up to timeout.
func startServer(ctx context.Context, handler http.Handler, port int, timeout time.Duration) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- eris.Wrap(err, "server listen")
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	zap.L().Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return eris.Wrap(err, "server shutdown")
	}
	return <-errCh
}

// scheduleRefresh registers a roster refresh on a cron spec. An empty spec
// disables it and returns nil. The caller starts and stops the scheduler.
func scheduleRefresh(ctx context.Context, mgr *roster.Manager, spec string, loc *time.Location, alerter *monitoring.Alerter) (*cron.Cron, error) {
	if spec == "" {
		return nil, nil
	}
	c := cron.New(cron.WithLocation(loc))
	_, err := c.AddFunc(spec, func() { runScheduledRefresh(ctx, mgr, alerter) })
	if err != nil {
		return nil, eris.Wrapf(err, "roster.refresh_schedule %q", spec)
	}
	zap.L().Info("roster refresh scheduled", zap.String("spec", spec))
	return c, nil
}

// runScheduledRefresh refreshes the roster and reports the outcome to the
// alerter.
func runScheduledRefresh(ctx context.Context, mgr *roster.Manager, alerter *monitoring.Alerter) int {
	res, err := mgr.Refresh(ctx)
	if err != nil {
		zap.L().Warn("scheduled refresh failed", zap.Error(err))
		return 0
	}
	zap.L().Info("scheduled refresh done",
		zap.Int("refreshed", res.Refreshed), zap.Int("failed", res.Failed))

	snap := monitoring.RefreshSnapshot{Refreshed: res.Refreshed, Failed: res.Failed, Trigger: "scheduled"}
	for _, a := range mgr.Snapshot() {
		if a.State == model.ScoreStateFetchFailed {
			snap.FetchFailed++
		}
	}
	return alerter.SendAlerts(ctx, alerter.Evaluate(snap))
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
