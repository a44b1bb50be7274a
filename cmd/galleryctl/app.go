package main

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/danmuck/urigallery/internal/auth"
	"github.com/danmuck/urigallery/internal/config"
	"github.com/danmuck/urigallery/internal/gallery"
	logs "github.com/danmuck/urigallery/internal/logging"
	"github.com/danmuck/urigallery/internal/observability"
	"github.com/danmuck/urigallery/internal/protocol/session"
	"github.com/danmuck/urigallery/internal/signal"
	"github.com/danmuck/urigallery/internal/transport"
	"github.com/danmuck/urigallery/internal/transport/rtc"
	"github.com/danmuck/urigallery/internal/transport/wsock"
	"github.com/spf13/cobra"
)

// app carries state shared by every command in one invocation.
type app struct {
	out io.Writer

	configPath  string
	metricsAddr string

	cfg     config.Config
	metrics *observability.MetricsServer

	// handshaker builds the transport for a session. Tests swap it for an in-memory peer.
	handshaker func(cfg config.Config, token string) (transport.Handshaker, error)
}

func newApp(out io.Writer) *app {
	return &app{out: out, handshaker: defaultHandshaker}
}

func defaultHandshaker(cfg config.Config, token string) (transport.Handshaker, error) {
	switch cfg.Transport {
	case config.TransportWebSocket:
		return wsock.Dialer{URL: cfg.RelayURL, Token: token, TLS: cfg.RelayTLS()}, nil
	case config.TransportWebRTC:
		return rtc.Dialer{Signaler: signal.New(cfg.SignalURL, token, nil), ICEServers: cfg.STUNServers}, nil
	default:
		return nil, fmt.Errorf("unsupported transport %q", cfg.Transport)
	}
}

func (a *app) run(ctx context.Context, args []string) error {
	root := a.rootCmd()
	root.SetArgs(args)
	root.SetOut(a.out)
	defer a.stopMetrics()
	return root.ExecuteContext(ctx)
}

func (a *app) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "galleryctl",
		Short:         "Browse and download images from a gallery peer",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup()
		},
	}
	root.PersistentFlags().StringVar(&a.configPath, "config", "", "config file (default: <user config dir>/urigallery/config.toml if present)")
	root.PersistentFlags().StringVar(&a.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address while the command runs")

	root.AddCommand(
		a.configCmd(),
		a.authCmd(),
		a.otpCmd(),
		a.whoamiCmd(),
		a.logoutCmd(),
		a.versionCmd(),
		a.listCmd(),
		a.downloadCmd(),
	)
	return root
}

func (a *app) setup() error {
	path := a.configPath
	if path == "" {
		path = defaultConfigPath(true)
	}
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	a.cfg = cfg
	logs.Debugf("galleryctl: config path=%q %s", path, cfg)

	addr := a.metricsAddr
	if addr == "" {
		addr = cfg.MetricsAddr
	}
	if addr == "" {
		return nil
	}
	a.metrics = observability.NewMetricsServer("galleryctl", cfg.MetricsCORSOrigins)
	return a.metrics.Start(addr)
}

func (a *app) stopMetrics() {
	if a.metrics == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := a.metrics.Shutdown(ctx); err != nil {
		logs.Warnf("galleryctl: metrics shutdown: %v", err)
	}
}

func (a *app) tokenStore() (auth.TokenStore, error) {
	if a.cfg.TokenFile != "" {
		return auth.NewTokenStore(a.cfg.TokenFile), nil
	}
	path, err := auth.DefaultTokenPath()
	if err != nil {
		return auth.TokenStore{}, err
	}
	return auth.NewTokenStore(path), nil
}

func (a *app) token() (string, error) {
	store, err := a.tokenStore()
	if err != nil {
		return "", err
	}
	token, err := store.Load()
	if err != nil {
		return "", fmt.Errorf("%w (run `galleryctl auth --otp CODE` first)", err)
	}
	return token, nil
}

func (a *app) signalClient(withToken bool) (*signal.Client, error) {
	c := signal.New(a.cfg.SignalURL, "", nil)
	if !withToken {
		return c, nil
	}
	token, err := a.token()
	if err != nil {
		return nil, err
	}
	return c.WithToken(token), nil
}

// withGallery connects a session, runs fn and disconnects.
func (a *app) withGallery(ctx context.Context, fn func(*session.Session, *gallery.Client) error) error {
	token, err := a.token()
	if err != nil {
		return err
	}
	hs, err := a.handshaker(a.cfg, token)
	if err != nil {
		return err
	}
	s := session.New(a.cfg.SessionConfig(), hs)
	if err := s.Connect(ctx); err != nil {
		return err
	}
	defer func() {
		if err := s.Disconnect(); err != nil {
			logs.Warnf("galleryctl: disconnect: %v", err)
		}
	}()
	g := gallery.New(s, gallery.WithDownloadLimit(a.cfg.DownloadRPS, a.cfg.DownloadBurst))
	return fn(s, g)
}

// defaultConfigPath returns "" when mustExist is set and the file is absent.
func defaultConfigPath(mustExist bool) string {
	dir, err := userConfigDir()
	if err != nil {
		return ""
	}
	path := filepath.Join(dir, "urigallery", "config.toml")
	if mustExist && !fileExists(path) {
		return ""
	}
	return path
}
