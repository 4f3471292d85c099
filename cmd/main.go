package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"go-subscription-ws/internal/infrastructure/config"
	"go-subscription-ws/internal/infrastructure/hub"
	"go-subscription-ws/internal/infrastructure/logger"
	"go-subscription-ws/internal/infrastructure/pubsub"
	"go-subscription-ws/internal/infrastructure/server"
	"go-subscription-ws/internal/protocol"
)

func main() {
	var (
		configPath string
		addr       string
		logLevel   string
	)
	flags := pflag.NewFlagSet("subscription-ws", pflag.ExitOnError)
	flags.StringVarP(&configPath, "config", "c", "", "path to a YAML configuration file")
	flags.StringVar(&addr, "addr", "", "listen address, overrides the configuration")
	flags.StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error, fatal)")
	_ = flags.Parse(os.Args[1:])

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if addr != "" {
		cfg.Server.Addr = addr
	}
	if logLevel != "" {
		level, err := logger.ParseLevel(logLevel)
		if err != nil {
			fmt.Fprintf(os.Stderr, "invalid --log-level: %v\n", err)
			os.Exit(1)
		}
		cfg.Log.Level = level
	}

	log := logger.NewLogrusLogger(&cfg.Log)
	if err := run(cfg, log); err != nil {
		log.Errorf("failed to run application: %v", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, log logger.Logger) error {
	ctx := context.Background()
	sctx := WithSignal(ctx)

	broker := pubsub.New(cfg.PubSub.BufferSize, log)

	codec, err := protocol.NewCodec(cfg.Protocol.Codec)
	if err != nil {
		return err
	}

	subscriptions, err := protocol.NewServer(protocol.Options{
		EventSource:         broker,
		Codec:               codec,
		KeepAlive:           cfg.Protocol.KeepAlive,
		HandshakeFlushDelay: cfg.Protocol.HandshakeFlushDelay,
		OnConnect:           acceptConnectionParams,
		OnDisconnect: func(conn protocol.Connection) {
			log.Debugf("connection %s finished", conn.ID())
		},
		Logger: log,
	})
	if err != nil {
		return err
	}

	hubInstance := hub.New(log)

	// Start the hub first
	if err := hubInstance.Start(ctx); err != nil {
		return fmt.Errorf("start hub: %w", err)
	}
	log.Infof(
		"hub started before router initialization, running status: %v",
		hubInstance.IsRunning(),
	)

	router := InitRouter(hubInstance, subscriptions, broker, websocketConfig(cfg.Protocol), log)
	httpSrv := server.NewHTTPServer(router, cfg.Server)
	app := newApplication(log, httpSrv, hubInstance, cfg.Server.ShutdownTimeout)

	log.Infof("listening on %s", httpSrv.Addr())
	return app.Run(sctx)
}

// acceptConnectionParams accepts every client and exposes its
// connection_init payload as the subscription context.
func acceptConnectionParams(_ context.Context, payload any, _ protocol.Connection) (any, error) {
	if params, ok := payload.(map[string]any); ok {
		return params, nil
	}
	return true, nil
}

func websocketConfig(cfg config.ProtocolConfig) hub.WebSocketConfig {
	wsCfg := hub.DefaultWebSocketConfig()
	if cfg.WriteTimeout > 0 {
		wsCfg.WriteTimeout = cfg.WriteTimeout
	}
	if cfg.PongTimeout > 0 {
		wsCfg.PongTimeout = cfg.PongTimeout
		wsCfg.PingPeriod = cfg.PongTimeout * 9 / 10
	}
	if cfg.SendBuffer > 0 {
		wsCfg.SendBuffer = cfg.SendBuffer
	}
	return wsCfg
}

type Application struct {
	logger          logger.Logger
	httpSrv         server.Server
	hub             *hub.Hub
	shutdownTimeout time.Duration
}

func newApplication(
	logger logger.Logger,
	httpSrv *server.HTTPServer,
	hubInstance *hub.Hub,
	shutdownTimeout time.Duration,
) *Application {
	return &Application{
		logger:          logger.WithField("app", "subscription-ws"),
		httpSrv:         httpSrv,
		hub:             hubInstance,
		shutdownTimeout: shutdownTimeout,
	}
}

func (app *Application) Run(ctx context.Context) error {
	eg := errgroup.Group{}

	eg.Go(func() error {
		return app.httpSrv.Start(ctx)
	})

	eg.Go(func() error {
		<-ctx.Done()

		gracefulshutdownCtx, cancel := context.WithTimeout(
			context.Background(),
			app.shutdownTimeout,
		)
		defer cancel()

		// Stop hub first so clients get a going-away close
		if err := app.hub.Stop(gracefulshutdownCtx); err != nil {
			app.logger.Errorf("failed to stop hub: %v", err)
		}

		return app.httpSrv.Stop(gracefulshutdownCtx)
	})

	return eg.Wait()
}

func WithSignal(pctx context.Context) context.Context {
	ctx, cancel := context.WithCancel(pctx)

	go func() {
		sigc := make(chan os.Signal, 1)
		signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)

		<-sigc

		cancel()
	}()

	return ctx
}
