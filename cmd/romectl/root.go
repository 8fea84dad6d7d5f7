package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	southbound "github.com/nanoncore/nano-rome"
	"github.com/nanoncore/nano-rome/drivers/mock"
	"github.com/nanoncore/nano-rome/internal/config"
	"github.com/nanoncore/nano-rome/internal/logging"
	"github.com/nanoncore/nano-rome/vendors/rome"
)

var (
	configPath  string
	address     string
	logLevel    string
	useMock     bool
	metricsAddr string
)

var rootCmd = &cobra.Command{
	Use:   "romectl",
	Short: "romectl drives Rome optical cross-connect switches",
	Long: `romectl reads the port table of a Rome optical matrix, exports its topology
and creates or removes fiber cross-connects.

Addresses have the form <host>[:<second host>]:<A|B|Q|XY>. Only the Q matrix
may span two controllers.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

func init() {
	// Persistent flags (available to all commands)
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "romectl.yaml", "Path to the configuration file")
	rootCmd.PersistentFlags().StringVar(&address, "address", "", "Matrix address, overrides the configuration file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().BoolVar(&useMock, "mock", false, "Talk to simulated controllers instead of the device")
	rootCmd.PersistentFlags().StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address while the command runs")
}

// session is an open, connected adapter plus what it was built from
type session struct {
	cfg     config.Config
	logger  *slog.Logger
	adapter *rome.Adapter
	server  *http.Server
}

func openSession(ctx context.Context) (*session, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if address != "" {
		cfg.Address = address
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := logging.New(logging.ParseLevel(cfg.LogLevel))
	registry := prometheus.NewRegistry()

	vendor := southbound.VendorRome
	equipment := cfg.Equipment()
	if useMock {
		vendor = southbound.VendorMock
		addr, _ := rome.ParseAddress(cfg.Address)
		equipment.Metadata[mock.MetaLetter] = addr.MatrixLetter[:1]
	}

	opts := append(cfg.Options(),
		rome.WithLogger(logger),
		rome.WithMetrics(rome.NewMetrics(registry)),
	)
	adapter, err := southbound.NewDriver(vendor, cfg.Protocol, cfg.Address, equipment, opts...)
	if err != nil {
		return nil, err
	}

	s := &session{cfg: cfg, logger: logger, adapter: adapter}
	if metricsAddr != "" {
		s.server = &http.Server{
			Addr:              metricsAddr,
			Handler:           promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server failed", "error", err)
			}
		}()
	}

	logger.Debug("connecting", "address", cfg.Address, "protocol", cfg.Protocol, "mock", useMock)
	if err := adapter.Connect(ctx, equipment); err != nil {
		s.close()
		return nil, fmt.Errorf("connect %s: %w", cfg.Address, err)
	}
	return s, nil
}

func (s *session) close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.adapter.Disconnect(ctx); err != nil {
		s.logger.Warn("disconnect failed", "error", err)
	}
	if s.server != nil {
		_ = s.server.Shutdown(ctx)
	}
}

// withSession runs fn against a freshly opened session
func withSession(cmd *cobra.Command, fn func(ctx context.Context, s *session) error) error {
	s, err := openSession(cmd.Context())
	if err != nil {
		return err
	}
	defer s.close()
	return fn(cmd.Context(), s)
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
