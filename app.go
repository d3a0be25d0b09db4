package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"
	"golang.ngrok.com/ngrok"
	ngrokConfig "golang.ngrok.com/ngrok/config"
	"golang.org/x/sync/errgroup"

	"github.com/wricardo/mcp-training/aptracker/api"
	"github.com/wricardo/mcp-training/aptracker/game/connection"
	"github.com/wricardo/mcp-training/aptracker/game/protocol"
	"github.com/wricardo/mcp-training/aptracker/game/tracker"
	"github.com/wricardo/mcp-training/aptracker/logging"
	"github.com/wricardo/mcp-training/aptracker/transport/mcp"
	"github.com/wricardo/mcp-training/aptracker/transport/websocket"
)

// stack is one tracker process: supervisor, tracker, event hub and API.
type stack struct {
	supervisor *connection.Supervisor
	tracker    *tracker.Tracker
	hub        *websocket.Hub
	registry   *prometheus.Registry
	handler    http.Handler
}

func newLogger(cmd *cli.Command) (*zap.Logger, func()) {
	cfg := logging.DefaultConfig()
	cfg.Debug = cmd.Bool("debug")
	cfg.File = cmd.String("log-file")
	return logging.New(cfg)
}

// startupParameters returns the parameters to connect with on startup, or nil
// when no slot was configured.
func startupParameters(cmd *cli.Command) (*connection.Parameters, error) {
	slot := cmd.String("ap-slot")
	if slot == "" {
		return nil, nil
	}

	params := connection.Parameters{
		Host:     cmd.String("ap-host"),
		Port:     cmd.String("ap-port"),
		Slot:     slot,
		Password: cmd.String("ap-password"),
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}
	return &params, nil
}

// newStack wires the components. baseURL is where the API will be reachable,
// used by the /mcp endpoint to proxy tool calls.
func newStack(cmd *cli.Command, logger *zap.Logger, baseURL string) (*stack, error) {
	version, err := protocol.ParseVersion(cmd.String("protocol-version"))
	if err != nil {
		return nil, err
	}

	var decoderOpts []protocol.DecoderOption
	if cmd.Bool("lenient") {
		decoderOpts = append(decoderOpts, protocol.WithUnknownCommands())
	}

	var dialerOpts []connection.WebsocketDialerOption
	if d := cmd.Duration("handshake-timeout"); d > 0 {
		dialerOpts = append(dialerOpts, connection.WithHandshakeTimeout(d))
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	supervisor := connection.NewSupervisor(
		connection.WithDialer(connection.NewWebsocketDialer(dialerOpts...)),
		connection.WithDecoder(protocol.NewDecoder(decoderOpts...)),
		connection.WithLogger(logger.Named("connection")),
		connection.WithMetrics(connection.NewMetrics(registry)),
		connection.WithGame(cmd.String("game")),
		connection.WithProtocolVersion(version),
	)

	hub := websocket.NewHub(logger.Named("hub"))

	trackerOpts := []tracker.Option{
		tracker.WithHistorySize(cmd.Int("history-size")),
		tracker.WithBroadcaster(hub),
		tracker.WithLogger(logger.Named("tracker")),
	}
	params, err := startupParameters(cmd)
	if err != nil {
		return nil, err
	}
	if params != nil {
		trackerOpts = append(trackerOpts, tracker.WithInitialParameters(*params))
	}
	t := tracker.NewTracker(trackerOpts...)

	mcpClient := mcp.NewClient(baseURL, Version)
	apiServer := api.NewServer(t, hub,
		api.WithLogger(logger.Named("api")),
		api.WithGatherer(registry),
		api.WithMCPHandler(mcpClient.HTTPHandler()),
	)

	return &stack{
		supervisor: supervisor,
		tracker:    t,
		hub:        hub,
		registry:   registry,
		handler:    apiServer,
	}, nil
}

// run blocks until ctx is done.
func (s *stack) run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.supervisor.Run(gctx) })
	g.Go(func() error { return s.tracker.Consume(gctx, s.supervisor.Events()) })
	g.Go(func() error {
		s.hub.Run(gctx)
		return nil
	})

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// runServer runs the supervisor together with the HTTP server and, if
// enabled, an ngrok tunnel until SIGINT or SIGTERM.
func runServer(ctx context.Context, cmd *cli.Command) error {
	logger, closeLog := newLogger(cmd)
	defer closeLog()

	addr := net.JoinHostPort(cmd.String("host"), strconv.Itoa(cmd.Int("port")))
	st, err := newStack(cmd, logger, "http://"+addr)
	if err != nil {
		return err
	}

	logger.Info("starting", zap.String("app", AppName), zap.String("version", Version))

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	httpServer := &http.Server{
		Addr:         addr,
		Handler:      st.handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return st.run(gctx) })

	g.Go(func() error {
		logger.Info("HTTP server listening",
			zap.String("api", fmt.Sprintf("http://%s/api", addr)),
			zap.String("websocket", fmt.Sprintf("ws://%s/ws", addr)),
			zap.String("mcp", fmt.Sprintf("http://%s/mcp", addr)))

		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server failed: %w", err)
		}
		return nil
	})

	if cmd.Bool("ngrok") {
		g.Go(func() error {
			serveNgrok(gctx, cmd, st.handler, logger.Named("ngrok"))
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		// Graceful shutdown with timeout
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("HTTP server shutdown error", zap.Error(err))
		}
		return nil
	})

	err = g.Wait()
	logger.Info("server stopped")
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// serveNgrok exposes handler through an ngrok tunnel until ctx is done.
// Failures are logged; the local server keeps running without a tunnel.
func serveNgrok(ctx context.Context, cmd *cli.Command, handler http.Handler, logger *zap.Logger) {
	authToken := cmd.String("ngrok-auth")
	if authToken == "" {
		logger.Warn("ngrok enabled but no auth token provided (use --ngrok-auth, NGROK_AUTHTOKEN or NGROK_AUTH_TOKEN)")
		return
	}

	var tunnel ngrokConfig.Tunnel
	if domain := cmd.String("ngrok-domain"); domain != "" {
		tunnel = ngrokConfig.HTTPEndpoint(ngrokConfig.WithDomain(domain))
		logger.Info("using custom ngrok domain", zap.String("domain", domain))
	} else {
		tunnel = ngrokConfig.HTTPEndpoint()
	}

	tun, err := ngrok.Listen(ctx, tunnel, ngrok.WithAuthtoken(authToken))
	if err != nil {
		logger.Error("failed to start ngrok tunnel", zap.Error(err))
		return
	}

	go func() {
		<-ctx.Done()
		if err := tun.Close(); err != nil {
			logger.Warn("failed to close ngrok tunnel", zap.Error(err))
		}
	}()

	url := tun.URL()
	logger.Info("ngrok tunnel established",
		zap.String("url", url),
		zap.String("api", url+"/api"),
		zap.String("mcp", url+"/mcp"))

	if err := http.Serve(tun, handler); err != nil && !errors.Is(err, http.ErrServerClosed) && ctx.Err() == nil {
		logger.Error("ngrok server error", zap.Error(err))
	}
	logger.Info("ngrok tunnel closed")
}

// apiReachable reports whether a tracker API answers at baseURL.
func apiReachable(baseURL string) bool {
	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Get(baseURL + "/api/connection")
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode < 500
}

// runStdioMCP runs an MCP stdio server. It proxies to --api-url when a
// tracker answers there; otherwise it starts a full tracker with its API on a
// random loopback port and targets that.
func runStdioMCP(ctx context.Context, cmd *cli.Command) error {
	logger, closeLog := newLogger(cmd)
	defer closeLog()

	baseURL := cmd.String("api-url")
	logger.Info("checking for external tracker API", zap.String("url", baseURL))

	if apiReachable(baseURL) {
		logger.Info("external tracker API found, using it for MCP")
	} else {
		logger.Info("no external tracker API found, starting internal tracker")

		listener, err := net.Listen("tcp", "127.0.0.1:0")
		if err != nil {
			return fmt.Errorf("failed to get available port: %w", err)
		}
		baseURL = "http://" + listener.Addr().String()

		st, err := newStack(cmd, logger, baseURL)
		if err != nil {
			listener.Close()
			return err
		}

		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		go func() {
			if err := st.run(ctx); err != nil {
				logger.Error("internal tracker stopped", zap.Error(err))
			}
		}()

		httpServer := &http.Server{Handler: st.handler}
		go func() {
			if err := httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("internal HTTP server error", zap.Error(err))
			}
		}()
		defer httpServer.Close()

		logger.Info("internal tracker API listening", zap.String("url", baseURL))
	}

	mcpClient := mcp.NewClient(baseURL, Version)

	logger.Info("MCP stdio server ready")
	if err := server.ServeStdio(mcpClient.GetMCPServer()); err != nil {
		return fmt.Errorf("MCP stdio server error: %w", err)
	}
	return nil
}
