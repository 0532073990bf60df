// Command morpion runs the realtime tic-tac-toe room server.
//
// It supports two modes:
//  1. "serve" (default) runs the HTTP server exposing the REST API, the
//     WebSocket endpoint and an /mcp HTTP endpoint
//  2. "mcp" runs an MCP stdio server and spins up an internal HTTP API if none
//     is reachable
//
// Flags (each also readable from the environment) control the settings file,
// logging, the listening port and optional ngrok tunneling. In serve mode a
// SIGHUP reloads the settings file.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"reflect"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/mark3labs/mcp-go/server"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/urfave/cli/v3"
	"golang.ngrok.com/ngrok"
	ngrokConfig "golang.ngrok.com/ngrok/config"

	"github.com/wricardo/morpion/api"
	"github.com/wricardo/morpion/auth"
	"github.com/wricardo/morpion/game/config"
	"github.com/wricardo/morpion/game/service"
	"github.com/wricardo/morpion/game/session"
	"github.com/wricardo/morpion/store"
	"github.com/wricardo/morpion/transport/events"
	"github.com/wricardo/morpion/transport/mcp"
	"github.com/wricardo/morpion/transport/websocket"
)

// Version information
const (
	Version = "1.0.0"
	AppName = "Morpion Server"
)

const (
	devSecret       = "dev_secret_change_me"
	revokedPrefix   = "morpion:revoked:"
	defaultAPIURL   = "http://localhost:8080"
	readTimeout     = 15 * time.Second
	idleTimeout     = 60 * time.Second
	healthTimeout   = 2 * time.Second
	internalAPIWait = 100 * time.Millisecond
)

func main() {
	// .env is optional
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "Warning: error loading .env file: %v\n", err)
	}

	if err := newApp().Run(context.Background(), os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", AppName, err)
		os.Exit(1)
	}
}

func newApp() *cli.Command {
	return &cli.Command{
		Name:    "morpion",
		Usage:   "Realtime two-player tic-tac-toe rooms over WebSocket",
		Version: Version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Usage:   "settings file (JSON or YAML); defaults are used when empty",
				Sources: cli.EnvVars("MORPION_CONFIG"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Value:   "info",
				Usage:   "trace, debug, info, warn or error",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
			&cli.StringFlag{
				Name:    "log-format",
				Value:   "json",
				Usage:   "json or console",
				Sources: cli.EnvVars("LOG_FORMAT"),
			},
			&cli.IntFlag{
				Name:    "port",
				Usage:   "HTTP port (overrides the settings file)",
				Sources: cli.EnvVars("PORT"),
			},
			&cli.StringFlag{
				Name:    "jwt-secret",
				Usage:   "token signing secret (overrides the settings file)",
				Sources: cli.EnvVars("JWT_SECRET"),
			},
			&cli.StringFlag{
				Name:    "redis-addr",
				Usage:   "Redis address for the token blacklist; memory when empty",
				Sources: cli.EnvVars("REDIS_ADDR"),
			},
			&cli.StringFlag{
				Name:    "nats-url",
				Usage:   "NATS server for game result events; disabled when empty",
				Sources: cli.EnvVars("NATS_URL"),
			},
			&cli.StringFlag{
				Name:    "db",
				Usage:   "SQLite database path (overrides the settings file)",
				Sources: cli.EnvVars("DB_PATH"),
			},
			&cli.StringFlag{
				Name:    "public-url",
				Usage:   "base URL used in verification links",
				Sources: cli.EnvVars("PUBLIC_URL"),
			},
		},
		Action: runServe,
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Run the HTTP server with REST API, WebSocket and MCP endpoint",
				Action: runServe,
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:    "ngrok",
						Usage:   "expose the server through an ngrok tunnel",
						Sources: cli.EnvVars("NGROK_ENABLED"),
					},
					&cli.StringFlag{
						Name:    "ngrok-auth",
						Usage:   "ngrok auth token",
						Sources: cli.EnvVars("NGROK_AUTHTOKEN", "NGROK_AUTH_TOKEN"),
					},
					&cli.StringFlag{
						Name:    "ngrok-domain",
						Usage:   "custom ngrok domain",
						Sources: cli.EnvVars("NGROK_DOMAIN"),
					},
				},
			},
			{
				Name:    "mcp",
				Aliases: []string{"stdio-mcp"},
				Usage:   "Run an MCP stdio server against a running API, or an internal one",
				Action:  runMCP,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "api-url",
						Value:   defaultAPIURL,
						Usage:   "REST API to proxy; an internal server starts when it is unreachable",
						Sources: cli.EnvVars("MORPION_API_URL"),
					},
				},
			},
		},
	}
}

// newLogger builds the process logger. Output always goes to w so stdout stays
// free for MCP stdio.
func newLogger(level, format string, w io.Writer) (zerolog.Logger, error) {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		return zerolog.Logger{}, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	switch format {
	case "console":
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	case "json", "":
	default:
		return zerolog.Logger{}, fmt.Errorf("invalid log format %q", format)
	}

	return zerolog.New(w).Level(lvl).With().Timestamp().Logger(), nil
}

// loadSettings reads the settings file and applies flag overrides. The
// manager is kept so the file can be reloaded later.
func loadSettings(cmd *cli.Command) (*config.Manager, *config.Settings, error) {
	manager, err := config.NewManager(cmd.String("config"))
	if err != nil {
		return nil, nil, err
	}
	settings, err := withOverrides(cmd, manager.Current())
	if err != nil {
		return nil, nil, err
	}
	return manager, settings, nil
}

// withOverrides applies the flags that take precedence over the file.
func withOverrides(cmd *cli.Command, settings *config.Settings) (*config.Settings, error) {
	if cmd.IsSet("port") {
		settings.Server.Port = int(cmd.Int("port"))
	}
	if v := cmd.String("jwt-secret"); v != "" {
		settings.Auth.Secret = v
	}
	if v := cmd.String("redis-addr"); v != "" {
		settings.Auth.RedisAddr = v
	}
	if v := cmd.String("nats-url"); v != "" {
		settings.Events.NATSURL = v
	}
	if v := cmd.String("db"); v != "" {
		settings.Store.Path = v
	}

	if err := settings.Validate(); err != nil {
		return nil, err
	}
	return settings, nil
}

// application is every long-lived component of one server process.
type application struct {
	settings    *config.Settings
	log         zerolog.Logger
	store       *store.Store
	hub         *websocket.Hub
	coordinator *session.Coordinator
	handler     http.Handler

	redis *redis.Client
	nats  *nats.Conn
}

// buildApp wires the components. publicURL is where clients reach the API;
// mcpURL is where the /mcp endpoint proxies to.
func buildApp(ctx context.Context, settings *config.Settings, log zerolog.Logger, publicURL, mcpURL string) (*application, error) {
	a := &application{settings: settings, log: log}

	st, err := store.Open(ctx, settings.Store.Path, log)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	a.store = st

	blacklist, err := a.blacklist(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}

	secret := settings.Auth.Secret
	if secret == "" {
		log.Warn().Msg("no JWT secret configured, using the development secret")
		secret = devSecret
	}
	tokens, err := auth.NewManager(secret, settings.Auth.TokenTTL.Std(), blacklist)
	if err != nil {
		a.Close()
		return nil, err
	}

	accounts := service.NewAccountService(st, tokens, service.LogNotifier{Log: log}, publicURL)
	records := service.NewRecordService(st)

	sinks, err := a.resultSinks()
	if err != nil {
		a.Close()
		return nil, err
	}

	a.hub = websocket.NewHub(websocket.Options{
		SendBuffer:     settings.Hub.SendBuffer,
		MaxMessageSize: settings.Hub.MaxMessageSize,
		WriteWait:      settings.Hub.WriteWait.Std(),
		PongWait:       settings.Hub.PongWait.Std(),
		PingPeriod:     settings.Hub.PingPeriod.Std(),
		AllowedOrigins: settings.Server.AllowedOrigins,
		Logger:         log,
	})
	a.coordinator = session.New(a.hub, session.Config{
		MailboxSize:  settings.Rooms.MailboxSize,
		ResultBuffer: settings.Rooms.ResultBuffer,
		Logger:       log,
		Sinks:        sinks,
	})
	a.hub.SetDispatcher(a.coordinator)

	a.handler = api.NewServer(api.Deps{
		Rooms:     a.coordinator,
		Accounts:  accounts,
		Records:   records,
		Verifier:  tokens,
		WebSocket: http.HandlerFunc(a.hub.ServeWS),
		MCP:       mcp.NewClient(mcpURL, Version).Handler(),
		Logger:    log,
	})
	return a, nil
}

func (a *application) blacklist(ctx context.Context) (auth.Blacklist, error) {
	addr := a.settings.Auth.RedisAddr
	if addr == "" {
		return auth.NewMemoryBlacklist(), nil
	}
	client, err := auth.NewRedisClient(ctx, addr)
	if err != nil {
		return nil, fmt.Errorf("connect redis %s: %w", addr, err)
	}
	a.redis = client
	a.log.Info().Str("addr", addr).Msg("token blacklist in redis")
	return auth.NewRedisBlacklist(client, revokedPrefix), nil
}

func (a *application) resultSinks() ([]session.ResultSink, error) {
	sinks := []session.ResultSink{session.LogSink{Log: a.log}}

	url := a.settings.Events.NATSURL
	if url == "" {
		return sinks, nil
	}
	nc, err := events.Connect(url, a.log)
	if err != nil {
		return nil, fmt.Errorf("connect nats %s: %w", url, err)
	}
	a.nats = nc

	publisher, err := events.NewPublisher(nc, a.settings.Events.SubjectPrefix, a.log)
	if err != nil {
		return nil, err
	}
	return append(sinks, publisher), nil
}

// Start runs the hub and coordinator until ctx is cancelled.
func (a *application) Start(ctx context.Context) {
	go a.hub.Run(ctx)
	go a.coordinator.Run(ctx)
}

// Close releases external connections.
func (a *application) Close() {
	if a.nats != nil {
		if err := a.nats.Drain(); err != nil {
			a.log.Warn().Err(err).Msg("nats drain")
		}
	}
	if a.redis != nil {
		a.redis.Close()
	}
	if a.store != nil {
		a.store.Close()
	}
}

func setup(cmd *cli.Command) (*config.Manager, *config.Settings, zerolog.Logger, error) {
	log, err := newLogger(cmd.String("log-level"), cmd.String("log-format"), os.Stderr)
	if err != nil {
		return nil, nil, zerolog.Logger{}, err
	}
	manager, settings, err := loadSettings(cmd)
	if err != nil {
		return nil, nil, zerolog.Logger{}, err
	}
	return manager, settings, log, nil
}

// reload re-reads the settings file and applies the allowed origins to new
// WebSocket connections. Any other change only takes effect on restart.
func (a *application) reload(cmd *cli.Command, manager *config.Manager) error {
	if err := manager.Reload(); err != nil {
		return err
	}
	next, err := withOverrides(cmd, manager.Current())
	if err != nil {
		return err
	}

	a.hub.SetAllowedOrigins(next.Server.AllowedOrigins)

	pending := *next
	pending.Server.AllowedOrigins = a.settings.Server.AllowedOrigins
	if !reflect.DeepEqual(&pending, a.settings) {
		a.log.Warn().Msg("settings changed beyond server.allowedOrigins; restart to apply them")
	}
	a.settings.Server.AllowedOrigins = next.Server.AllowedOrigins

	a.log.Info().Strs("allowedOrigins", next.Server.AllowedOrigins).Msg("settings reloaded")
	return nil
}

// watchReload calls reload for every signal on hup until ctx ends. A failed
// reload keeps the running settings.
func watchReload(ctx context.Context, hup <-chan os.Signal, reload func() error, log zerolog.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			if err := reload(); err != nil {
				log.Error().Err(err).Msg("settings reload failed, keeping current settings")
			}
		}
	}
}

// runServe starts the HTTP server with REST API, WebSocket hub and /mcp endpoint.
// If ngrok is enabled it also provisions a public tunnel.
func runServe(ctx context.Context, cmd *cli.Command) error {
	manager, settings, log, err := setup(cmd)
	if err != nil {
		return err
	}

	addr := fmt.Sprintf(":%d", settings.Server.Port)
	localURL := fmt.Sprintf("http://localhost:%d", settings.Server.Port)
	publicURL := cmd.String("public-url")
	if publicURL == "" {
		publicURL = localURL
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := buildApp(ctx, settings, log, publicURL, localURL)
	if err != nil {
		return err
	}
	defer app.Close()

	runCtx, cancelRun := context.WithCancel(context.Background())
	defer cancelRun()
	app.Start(runCtx)

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	go watchReload(ctx, hup, func() error { return app.reload(cmd, manager) }, log)

	httpServer := &http.Server{
		Addr:        addr,
		Handler:     app.handler,
		ReadTimeout: readTimeout,
		IdleTimeout: idleTimeout,
	}

	var wg sync.WaitGroup
	serveErr := make(chan error, 1)

	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Info().
			Str("addr", addr).
			Str("api", localURL+"/api").
			Str("ws", "ws"+strings.TrimPrefix(localURL, "http")+"/ws").
			Str("mcp", localURL+"/mcp").
			Str("version", Version).
			Msg("HTTP server listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	if cmd.Bool("ngrok") {
		wg.Add(1)
		go func() {
			defer wg.Done()
			runNgrok(ctx, cmd, app.handler, log)
		}()
	}

	select {
	case <-ctx.Done():
		log.Info().Msg("shutting down")
	case err := <-serveErr:
		log.Error().Err(err).Msg("HTTP server failed")
		stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), settings.Server.ShutdownTimeout.Std())
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown")
	}
	cancelRun()

	wg.Wait()
	log.Info().Msg("server stopped")
	return nil
}

func runNgrok(ctx context.Context, cmd *cli.Command, handler http.Handler, log zerolog.Logger) {
	authToken := cmd.String("ngrok-auth")
	if authToken == "" {
		log.Warn().Msg("ngrok enabled but no auth token provided (use --ngrok-auth or NGROK_AUTHTOKEN)")
		return
	}

	tunnel := ngrokConfig.HTTPEndpoint()
	if domain := cmd.String("ngrok-domain"); domain != "" {
		tunnel = ngrokConfig.HTTPEndpoint(ngrokConfig.WithDomain(domain))
		log.Info().Str("domain", domain).Msg("using custom ngrok domain")
	}

	tun, err := ngrok.Listen(ctx, tunnel, ngrok.WithAuthtoken(authToken))
	if err != nil {
		log.Error().Err(err).Msg("failed to start ngrok tunnel")
		return
	}
	defer func() {
		if err := tun.Close(); err != nil {
			log.Warn().Err(err).Msg("failed to close ngrok tunnel")
		}
	}()

	log.Info().Str("url", tun.URL()).Msg("ngrok tunnel established")

	srv := &http.Server{Handler: handler}
	go func() {
		<-ctx.Done()
		srv.Close()
	}()
	if err := srv.Serve(tun); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error().Err(err).Msg("ngrok server error")
	}
	log.Info().Msg("ngrok tunnel closed")
}

// apiReachable reports whether a morpion API answers at baseURL.
func apiReachable(ctx context.Context, baseURL string) bool {
	ctx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/api/health", nil)
	if err != nil {
		return false
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode < 500
}

// runMCP serves MCP over stdio. It reuses the API at --api-url when it answers;
// otherwise it starts an internal API on a random loopback port.
func runMCP(ctx context.Context, cmd *cli.Command) error {
	_, settings, log, err := setup(cmd)
	if err != nil {
		return err
	}

	baseURL := strings.TrimRight(cmd.String("api-url"), "/")
	if apiReachable(ctx, baseURL) {
		log.Info().Str("url", baseURL).Msg("using external API server for MCP")
	} else {
		log.Info().Str("url", baseURL).Msg("no external API server found, starting internal HTTP server")

		listener, err := net.Listen("tcp", "127.0.0.1:0")
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
		baseURL = "http://" + listener.Addr().String()

		app, err := buildApp(ctx, settings, log, baseURL, baseURL)
		if err != nil {
			listener.Close()
			return err
		}
		defer app.Close()

		runCtx, cancelRun := context.WithCancel(ctx)
		defer cancelRun()
		app.Start(runCtx)

		httpServer := &http.Server{Handler: app.handler}
		go func() {
			if err := httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error().Err(err).Msg("internal HTTP server error")
			}
		}()
		defer httpServer.Close()

		time.Sleep(internalAPIWait)
		log.Info().Str("url", baseURL).Msg("internal HTTP server started")
	}

	client := mcp.NewClient(baseURL, Version)
	log.Info().Msg("MCP stdio server ready")
	return server.ServeStdio(client.GetMCPServer())
}
