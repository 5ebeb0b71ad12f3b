// Command watchparty starts the watch party synchronization hub.
//
// It supports two modes:
//  1. "serve" (default) – runs the HTTP server exposing the websocket hub, REST API, metrics and an /mcp HTTP endpoint
//  2. "stdio-mcp" – runs an MCP stdio server and spins up an internal hub if none is reachable
//
// Settings are read from the environment (and a .env file when present).
// Flags override them; see `watchparty --help`.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/mark3labs/mcp-go/server"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/urfave/cli/v3"
	"github.com/wricardo/mcp-training/watchparty/api"
	"github.com/wricardo/mcp-training/watchparty/transport/bus"
	"github.com/wricardo/mcp-training/watchparty/transport/mcp"
	"github.com/wricardo/mcp-training/watchparty/transport/websocket"
	"github.com/wricardo/mcp-training/watchparty/watch/config"
	"github.com/wricardo/mcp-training/watchparty/watch/metrics"
	"golang.ngrok.com/ngrok"
	ngrokConfig "golang.ngrok.com/ngrok/config"
)

// Version information
const (
	Version = "1.0.0"
	AppName = "Watch Party Hub"
)

const shutdownTimeout = 10 * time.Second

func main() {
	// Load .env file if it exists (ignore error if not found)
	envErr := godotenv.Load()
	if envErr != nil && !os.IsNotExist(envErr) {
		fmt.Fprintf(os.Stderr, "Warning: error loading .env file: %v\n", envErr)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", AppName, err)
		os.Exit(1)
	}

	if err := newCommand(cfg).Run(context.Background(), os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", AppName, err)
		os.Exit(1)
	}
}

// newCommand builds the CLI. Flag defaults come from cfg so the precedence is
// flag, then environment, then built-in default.
func newCommand(cfg config.Config) *cli.Command {
	serve := func(ctx context.Context, cmd *cli.Command) error {
		return runServe(ctx, cmd, cfg)
	}

	return &cli.Command{
		Name:    "watchparty",
		Usage:   "Keep play/pause/seek in sync for everyone watching the same video",
		Version: Version,
		Flags:   serverFlags(cfg),
		Action:  serve,
		Commands: []*cli.Command{
			{
				Name:    "serve",
				Aliases: []string{"server", "http"},
				Usage:   "Run HTTP server with websocket hub, REST API, metrics and MCP endpoint (default)",
				Action:  serve,
			},
			{
				Name:    "stdio-mcp",
				Aliases: []string{"mcp-stdio", "mcp"},
				Usage:   "Run MCP stdio server, starting an internal hub if none is reachable",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return runStdioMCP(ctx, cmd, cfg)
				},
			},
			{
				Name:  "version",
				Usage: "Show version information",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					fmt.Fprintf(cmd.Root().Writer, "%s v%s\n", AppName, Version)
					return nil
				},
			},
		},
	}
}

func serverFlags(cfg config.Config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "host", Value: cfg.Host, Usage: "HTTP server host (HTTP_HOST)"},
		&cli.IntFlag{Name: "port", Value: cfg.Port, Usage: "HTTP server port (HTTP_PORT)"},
		&cli.StringFlag{Name: "env", Value: cfg.Env, Usage: "Environment; prod logs JSON (APP_ENV)"},
		&cli.StringFlag{Name: "log-level", Value: cfg.LogLevel, Usage: "debug, info, warn or error (LOG_LEVEL)"},
		&cli.BoolFlag{Name: "debug", Usage: "Enable debug logging"},
		&cli.StringSliceFlag{Name: "cors-allow", Value: cfg.CORSAllow, Usage: "Allowed browser origins (CORS_ALLOW)"},
		&cli.StringFlag{Name: "redis-addr", Value: cfg.RedisAddr, Usage: "Redis address for cross-instance relay (REDIS_ADDR)"},
		&cli.BoolFlag{Name: "replay-last-state", Value: cfg.ReplayLastState, Usage: "Send the last player state to late joiners (REPLAY_LAST_STATE)"},
		&cli.DurationFlag{Name: "pong-wait", Value: cfg.PongWait, Usage: "Close connections silent for this long (WS_PONG_WAIT)"},
		&cli.DurationFlag{Name: "write-wait", Value: cfg.WriteWait, Usage: "Per-frame write deadline (WS_WRITE_WAIT)"},
		&cli.BoolFlag{Name: "ngrok", Value: cfg.NgrokEnabled, Usage: "Enable ngrok tunnel (NGROK_ENABLED)"},
		&cli.StringFlag{Name: "ngrok-auth", Usage: "Ngrok auth token (or use NGROK_AUTHTOKEN env var)"},
		&cli.StringFlag{Name: "ngrok-domain", Value: cfg.NgrokDomain, Usage: "Custom ngrok domain (NGROK_DOMAIN)"},
	}
}

// applyFlags copies flag values over cfg and validates the result
func applyFlags(cmd *cli.Command, cfg config.Config) (config.Config, error) {
	cfg.Host = cmd.String("host")
	cfg.Port = cmd.Int("port")
	cfg.Env = cmd.String("env")
	cfg.LogLevel = cmd.String("log-level")
	if cmd.Bool("debug") {
		cfg.LogLevel = "debug"
	}
	cfg.CORSAllow = cmd.StringSlice("cors-allow")
	cfg.RedisAddr = cmd.String("redis-addr")
	cfg.ReplayLastState = cmd.Bool("replay-last-state")
	cfg.PongWait = cmd.Duration("pong-wait")
	cfg.WriteWait = cmd.Duration("write-wait")
	cfg.NgrokEnabled = cmd.Bool("ngrok")
	if tok := cmd.String("ngrok-auth"); tok != "" {
		cfg.NgrokAuth = tok
	}
	cfg.NgrokDomain = cmd.String("ngrok-domain")

	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

// app is one wired hub: websocket hub, REST API and the optional redis bus
type app struct {
	log *slog.Logger
	hub *websocket.Hub
	api *api.Server
	bus *bus.RedisBus
}

// newApp builds the hub and API from cfg and starts the hub's bus loop
func newApp(ctx context.Context, cfg config.Config, log *slog.Logger) (*app, error) {
	m := metrics.New(prometheus.NewRegistry())
	instanceID := uuid.NewString()

	opts := []websocket.Option{
		websocket.WithInstanceID(instanceID),
		websocket.WithLogger(log),
		websocket.WithMetrics(m),
		websocket.WithReplayLastState(cfg.ReplayLastState),
		websocket.WithTimeouts(cfg.WriteWait, cfg.PongWait),
		websocket.WithMaxMessageSize(cfg.MaxMessageSize),
		websocket.WithSendBuffer(cfg.SendBuffer),
		websocket.WithAllowedOrigins(cfg.CORSAllow),
	}

	a := &app{log: log}
	if cfg.RedisAddr != "" {
		b, err := bus.NewRedisBus(ctx, cfg.RedisAddr, cfg.RedisDB, cfg.RedisChannel, instanceID, log)
		if err != nil {
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		a.bus = b
		opts = append(opts, websocket.WithBus(b))
		log.Info("bus.enabled", "addr", cfg.RedisAddr, "channel", cfg.RedisChannel)
	}

	a.hub = websocket.NewHub(opts...)
	a.api = api.NewServer(a.hub, log, m, cfg.CORSAllow)
	go a.hub.Run(ctx)

	return a, nil
}

// mountMCP adds the POST /mcp endpoint, proxying tool calls to baseURL
func (a *app) mountMCP(baseURL string) {
	mcpClient := mcp.NewClient(baseURL)

	a.api.Router().HandleFunc("/mcp", func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, "Failed to read request", http.StatusBadRequest)
			return
		}
		defer r.Body.Close()

		response := mcpClient.GetMCPServer().HandleMessage(r.Context(), body)

		w.Header().Set("Content-Type", "application/json")
		responseData, err := json.Marshal(response)
		if err != nil {
			http.Error(w, "Failed to marshal response", http.StatusInternalServerError)
			return
		}
		w.Write(responseData)
	}).Methods("POST")
}

// shutdown closes every websocket connection and the bus
func (a *app) shutdown(ctx context.Context) {
	if err := a.hub.Shutdown(ctx); err != nil {
		a.log.Warn("hub.shutdown", "err", err)
	}
	if a.bus != nil {
		a.bus.Close()
	}
}

// runServe starts the HTTP server and, if enabled, an ngrok tunnel serving the
// same handler. It returns after a signal or a server failure once everything
// has shut down.
func runServe(ctx context.Context, cmd *cli.Command, cfg config.Config) error {
	cfg, err := applyFlags(cmd, cfg)
	if err != nil {
		return err
	}
	log := config.NewLogger(cfg.Env, cfg.LogLevel)
	log.Info("server.start", "app", AppName, "version", Version, "mode", "serve")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	a, err := newApp(ctx, cfg, log)
	if err != nil {
		return err
	}

	addr := cfg.Addr()
	a.mountMCP(fmt.Sprintf("http://%s", addr))

	httpServer := &http.Server{
		Addr:         addr,
		Handler:      a.api,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Handle shutdown signals
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(stop)

	errCh := make(chan error, 2)
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()

		log.Info("http.listen", "addr", addr,
			"ws", fmt.Sprintf("ws://%s/ws", addr),
			"api", fmt.Sprintf("http://%s/api", addr),
			"mcp", fmt.Sprintf("http://%s/mcp", addr))

		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	var tunnelServer *http.Server
	if cfg.NgrokEnabled {
		tunnelServer = &http.Server{Handler: a.api}
		wg.Add(1)
		go func() {
			defer wg.Done()
			runTunnel(ctx, cfg, tunnelServer, log)
		}()
	}

	select {
	case sig := <-stop:
		log.Info("server.signal", "signal", sig.String())
	case err = <-errCh:
		log.Error("server.failed", "err", err)
	case <-ctx.Done():
	}
	cancel()

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Warn("http.shutdown", "err", err)
	}
	if tunnelServer != nil {
		if err := tunnelServer.Shutdown(shutdownCtx); err != nil {
			log.Warn("ngrok.shutdown", "err", err)
		}
	}
	// Hijacked websocket connections survive http.Server.Shutdown
	a.shutdown(shutdownCtx)

	wg.Wait()
	log.Info("server.stopped")
	return err
}

// runTunnel serves srv through an ngrok endpoint until srv is shut down
func runTunnel(ctx context.Context, cfg config.Config, srv *http.Server, log *slog.Logger) {
	if cfg.NgrokAuth == "" {
		log.Warn("ngrok.disabled", "reason", "no auth token (use --ngrok-auth or NGROK_AUTHTOKEN)")
		return
	}

	// Configure ngrok endpoint
	var tunnel ngrokConfig.Tunnel
	if cfg.NgrokDomain != "" {
		tunnel = ngrokConfig.HTTPEndpoint(ngrokConfig.WithDomain(cfg.NgrokDomain))
	} else {
		tunnel = ngrokConfig.HTTPEndpoint()
	}

	tun, err := ngrok.Listen(ctx, tunnel, ngrok.WithAuthtoken(cfg.NgrokAuth))
	if err != nil {
		log.Error("ngrok.listen", "err", err)
		return
	}

	url := tun.URL()
	log.Info("ngrok.tunnel", "url", url, "ws", url+"/ws", "api", url+"/api", "mcp", url+"/mcp")

	// Serve closes tun when srv shuts down
	if err := srv.Serve(tun); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error("ngrok.serve", "err", err)
	}
	log.Info("ngrok.closed")
}

// runStdioMCP runs an MCP stdio server.
// It tries to reuse a hub already listening on the configured address; if
// unavailable, it starts an internal hub bound to a random loopback port.
func runStdioMCP(ctx context.Context, cmd *cli.Command, cfg config.Config) error {
	cfg, err := applyFlags(cmd, cfg)
	if err != nil {
		return err
	}
	// stdout carries the MCP protocol
	log := config.NewLoggerTo(os.Stderr, cfg.Env, cfg.LogLevel)
	log.Info("server.start", "app", AppName, "version", Version, "mode", "stdio-mcp")

	externalURL := fmt.Sprintf("http://%s", cfg.Addr())
	baseURL := externalURL

	if !reachable(externalURL + "/healthz") {
		log.Info("mcp.internal_hub", "reason", "no hub at "+externalURL)

		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		a, err := newApp(ctx, cfg, log)
		if err != nil {
			return err
		}

		listener, err := net.Listen("tcp", "127.0.0.1:0")
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
		baseURL = fmt.Sprintf("http://%s", listener.Addr().String())

		httpServer := &http.Server{Handler: a.api}
		go func() {
			if err := httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("http.serve", "err", err)
			}
		}()
		defer func() {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer shutdownCancel()
			httpServer.Shutdown(shutdownCtx)
			a.shutdown(shutdownCtx)
		}()
	}

	log.Info("mcp.ready", "api", baseURL)

	mcpClient := mcp.NewClient(baseURL)
	if err := server.ServeStdio(mcpClient.GetMCPServer()); err != nil {
		return fmt.Errorf("mcp stdio server: %w", err)
	}
	return nil
}

// reachable reports whether a hub answers on url
func reachable(url string) bool {
	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Get(url)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}
