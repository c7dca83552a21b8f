package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/vango-go/vinyasa/internal/dotenv"
	"github.com/vango-go/vinyasa/internal/tui"
	"github.com/vango-go/vinyasa/pkg/config"
	"github.com/vango-go/vinyasa/pkg/core/types"
	"github.com/vango-go/vinyasa/pkg/credentials"
	"github.com/vango-go/vinyasa/pkg/live/capture"
	"github.com/vango-go/vinyasa/pkg/live/metrics"
	"github.com/vango-go/vinyasa/pkg/live/session"
	"github.com/vango-go/vinyasa/pkg/live/sessions"
	"github.com/vango-go/vinyasa/pkg/live/stream"
)

func newLiveCmd(a *app) *cobra.Command {
	var (
		seqPath  string
		headless bool
	)
	cmd := &cobra.Command{
		Use:   "live",
		Short: "Run a live guided session",
		Long: `Run a live guided session. The coach hears your microphone, sees a camera
frame about twice a second, speaks back, and moves the pose on screen as you go.

Keys: s start, x stop, ←/→ previous and next pose, 1-9 jump, q quit.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.ensureCredential(); err != nil {
				return err
			}
			return a.runLive(cmd.Context(), seqPath, headless)
		},
	}
	cmd.Flags().StringVarP(&seqPath, "sequence", "s", "sequence.yaml", "Sequence file")
	cmd.Flags().BoolVar(&headless, "headless", false, "Log session state instead of drawing the terminal UI")
	return cmd
}

func (a *app) runLive(parent context.Context, seqPath string, headless bool) error {
	seq, err := readSequence(seqPath)
	if err != nil {
		return err
	}

	logger := a.logger
	if !headless {
		// The terminal UI owns the screen.
		file, err := a.openLogFile()
		if err != nil {
			return err
		}
		defer file.Close()
		logger = slog.New(slog.NewTextHandler(file, &slog.HandlerOptions{Level: a.cfg.LogLevel}))
	}

	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	dialer, err := a.newDialer(ctx, logger)
	if err != nil {
		return err
	}

	m := metrics.New("")
	tracker := sessions.NewTracker(1)
	devices := capture.NewAdapter(capture.DefaultDrivers(a.cfg.Capture, logger), logger)
	bridge := &tui.Bridge{}

	onChange := bridge.OnChange
	if headless {
		onChange = func(s session.State) {
			logger.Info("session state",
				"status", s.Status.String(),
				"pose_index", s.PoseIndex,
				"speaking", s.Speaking,
				"notice", s.Notice,
			)
		}
	}

	ctrl, err := session.New(session.Dependencies{
		Devices: devices,
		Dialer:  dialer,
		Config: session.Config{
			Model:   a.cfg.LiveModel,
			Voice:   a.cfg.Voice,
			Sampler: a.cfg.Sampler,
		},
		Logger:   logger,
		Metrics:  m,
		Tracker:  tracker,
		OnChange: onChange,
	})
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)

	if a.cfg.MetricsAddr != "" {
		srv := &http.Server{
			Addr:              a.cfg.MetricsAddr,
			Handler:           metricsMux(m),
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			logger.Info("serving metrics", "addr", a.cfg.MetricsAddr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownGracePeriod)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	g.Go(func() error {
		defer cancel()
		if headless {
			return runHeadless(gctx, ctrl, seq)
		}
		return tui.Run(gctx, ctrl, bridge, seq, tui.WithAutoStart())
	})

	g.Go(func() error {
		<-gctx.Done()
		if tracker.Count() == 0 {
			return nil
		}
		tracker.NotifyAll(session.NoticeGoAway)
		tracker.CancelAll()
		waitCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownGracePeriod)
		defer cancel()
		if !tracker.Wait(waitCtx) {
			logger.Warn("live session did not stop within the grace period")
		}
		return nil
	})

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	return err
}

func runHeadless(ctx context.Context, ctrl *session.Controller, seq *types.Sequence) error {
	if err := ctrl.Start(ctx, seq); err != nil {
		return err
	}
	<-ctx.Done()
	ctrl.Stop()
	return nil
}

func (a *app) newDialer(ctx context.Context, logger *slog.Logger) (stream.Dialer, error) {
	switch a.cfg.Transport {
	case config.TransportWebSocket:
		return &stream.WebSocketDialer{
			URL:          a.cfg.LiveURL,
			APIKey:       credentials.Key(),
			PingInterval: a.cfg.WSPingInterval,
			WriteTimeout: a.cfg.WSWriteTimeout,
			Logger:       logger,
		}, nil
	default:
		client, err := a.newGenAIClient(ctx)
		if err != nil {
			return nil, err
		}
		return &stream.GenAIDialer{Client: client, Logger: logger}, nil
	}
}

func (a *app) openLogFile() (*os.File, error) {
	path := a.cfg.LogFile
	if path == "" {
		userFile, err := dotenv.EnsureUserFile()
		if err != nil {
			return nil, err
		}
		path = filepath.Join(filepath.Dir(userFile), "live.log")
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	return file, nil
}

func metricsMux(m *metrics.Metrics) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return mux
}
