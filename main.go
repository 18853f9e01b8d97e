// Command mechanism-workbench serves the mechanism workbench.
//
// It supports these commands:
//  1. "serve" (default): runs the HTTP server exposing REST API, WebSocket, /metrics and an /mcp HTTP endpoint
//  2. "mcp": runs an MCP stdio server and spins up an internal HTTP API if none is available
//  3. "report": builds a profile's example mechanism, drives it and prints the analysis report
//  4. "profiles": lists and validates tuning profiles
//
// Flags control host/port, profile directory, log level and optional ngrok
// tunneling for easy external access during development.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/mark3labs/mcp-go/server"
	"github.com/urfave/cli/v3"
	"golang.ngrok.com/ngrok"
	ngrokConfig "golang.ngrok.com/ngrok/config"

	"github.com/wricardo/mechanism-workbench/api"
	"github.com/wricardo/mechanism-workbench/logging"
	"github.com/wricardo/mechanism-workbench/render"
	"github.com/wricardo/mechanism-workbench/telemetry"
	"github.com/wricardo/mechanism-workbench/transport/mcp"
	"github.com/wricardo/mechanism-workbench/transport/websocket"
	"github.com/wricardo/mechanism-workbench/workbench/config"
	"github.com/wricardo/mechanism-workbench/workbench/engine"
	"github.com/wricardo/mechanism-workbench/workbench/service"
	"github.com/wricardo/mechanism-workbench/workbench/session"
)

// Version information
const (
	Version = "1.0.0"
	AppName = "Mechanism Workbench"
)

const defaultSessionTTL = 24 * time.Hour

// services bundles everything the transports share
type services struct {
	workbench *service.Service
	profiles  *config.Manager
	metrics   *telemetry.Metrics
	logger    *slog.Logger
}

func main() {
	// Load .env file if it exists (ignore error if not found)
	if err := godotenv.Load(); err != nil {
		if !os.IsNotExist(err) {
			log.Printf("Warning: Error loading .env file: %v", err)
		}
	} else {
		log.Println("Loaded environment variables from .env file")
	}

	if err := newApp().Run(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}

// newApp builds the command tree
func newApp() *cli.Command {
	return &cli.Command{
		Name:    "mechanism-workbench",
		Usage:   "Interactive mechanical interaction workbench",
		Version: Version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "host",
				Value:   "localhost",
				Usage:   "HTTP server host",
				Sources: cli.EnvVars("HOST"),
			},
			&cli.IntFlag{
				Name:    "port",
				Value:   8080,
				Usage:   "HTTP server port",
				Sources: cli.EnvVars("PORT"),
			},
			&cli.StringFlag{
				Name:    "profile-dir",
				Value:   "configs",
				Usage:   "Directory containing tuning profiles (empty for built-in only)",
				Sources: cli.EnvVars("PROFILE_DIR", "CONFIG_DIR"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Value:   "info",
				Usage:   "debug, info, warn or error",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Commands: []*cli.Command{
			serveCommand(),
			mcpCommand(),
			reportCommand(),
			profilesCommand(),
		},
		Action: runServe,
	}
}

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:    "serve",
		Aliases: []string{"server", "http"},
		Usage:   "Run HTTP server with API, WebSocket, metrics and MCP endpoint",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "ngrok",
				Usage:   "Enable ngrok tunnel",
				Sources: cli.EnvVars("NGROK_ENABLED"),
			},
			&cli.StringFlag{
				Name:    "ngrok-auth",
				Usage:   "Ngrok auth token",
				Sources: cli.EnvVars("NGROK_AUTHTOKEN", "NGROK_AUTH_TOKEN"),
			},
			&cli.StringFlag{
				Name:    "ngrok-domain",
				Usage:   "Custom ngrok domain (optional)",
				Sources: cli.EnvVars("NGROK_DOMAIN"),
			},
			&cli.DurationFlag{
				Name:    "session-ttl",
				Value:   defaultSessionTTL,
				Usage:   "Drop sessions idle for longer than this",
				Sources: cli.EnvVars("SESSION_TTL"),
			},
		},
		Action: runServe,
	}
}

func mcpCommand() *cli.Command {
	return &cli.Command{
		Name:    "mcp",
		Aliases: []string{"stdio-mcp", "mcp-stdio"},
		Usage:   "Run MCP stdio server with internal HTTP server",
		Action:  runStdioMCP,
	}
}

func reportCommand() *cli.Command {
	return &cli.Command{
		Name:      "report",
		Usage:     "Build a profile's example mechanism, drive it and print the analysis",
		ArgsUsage: "[profile]",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "release",
				Usage: "Release the input after applying it and report the impact readouts",
			},
			&cli.BoolFlag{
				Name:  "raw",
				Usage: "Print markdown without terminal rendering",
			},
		},
		Action: runReport,
	}
}

func profilesCommand() *cli.Command {
	return &cli.Command{
		Name:  "profiles",
		Usage: "Inspect tuning profiles",
		Commands: []*cli.Command{
			{
				Name:   "list",
				Usage:  "List available profiles",
				Action: runProfilesList,
			},
			{
				Name:      "validate",
				Usage:     "Validate every profile in a directory",
				ArgsUsage: "[dir]",
				Action:    runProfilesValidate,
			},
		},
	}
}

// initializeServices wires the profile and session managers, metrics and the
// workbench service.
func initializeServices(profileDir string, logger *slog.Logger, ttl time.Duration) (*services, error) {
	profiles, err := config.NewManager(profileDir)
	if err != nil {
		return nil, fmt.Errorf("failed to create profile manager: %w", err)
	}

	metrics := telemetry.New()
	sessions := session.NewManager()

	svc := service.NewWorkbenchService(sessions, profiles,
		service.WithLogger(logger),
		service.WithMetrics(metrics),
		service.WithSessionTTL(ttl),
	)

	return &services{
		workbench: svc,
		profiles:  profiles,
		metrics:   metrics,
		logger:    logger,
	}, nil
}

func loggerFor(cmd *cli.Command) *slog.Logger {
	return logging.New(logging.ParseLevel(cmd.String("log-level")))
}

// newHandler builds the HTTP handler tree: REST API, WebSocket, metrics and /mcp
func newHandler(svcs *services, hub *websocket.Hub, mcpClient *mcp.Client) http.Handler {
	apiServer := api.NewServer(svcs.workbench, hub, api.WithMetricsHandler(svcs.metrics.Handler()))

	if mcpClient != nil {
		apiServer.Router().HandleFunc("/mcp", mcpHTTPHandler(mcpClient)).Methods("POST")
	}
	return apiServer
}

// mcpHTTPHandler answers one JSON-RPC message per request
func mcpHTTPHandler(client *mcp.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, "Failed to read request", http.StatusBadRequest)
			return
		}
		defer r.Body.Close()

		response := client.GetMCPServer().HandleMessage(r.Context(), body)

		w.Header().Set("Content-Type", "application/json")
		responseData, err := json.Marshal(response)
		if err != nil {
			http.Error(w, "Failed to marshal response", http.StatusInternalServerError)
			return
		}
		w.Write(responseData)
	}
}

// runServe starts the HTTP server, the WebSocket hub and the frame loop.
// If ngrok is enabled it also provisions a public tunnel.
func runServe(ctx context.Context, cmd *cli.Command) error {
	logger := loggerFor(cmd)

	ttl := cmd.Duration("session-ttl")
	if ttl == 0 {
		ttl = defaultSessionTTL
	}
	svcs, err := initializeServices(cmd.String("profile-dir"), logger, ttl)
	if err != nil {
		return err
	}

	log.Printf("Starting %s v%s", AppName, Version)

	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	hub := websocket.NewHub()
	go hub.Run(ctx)

	addr := fmt.Sprintf("%s:%d", cmd.String("host"), cmd.Int("port"))
	mcpClient := mcp.NewClient(fmt.Sprintf("http://%s", addr))
	handler := newHandler(svcs, hub, mcpClient)

	httpServer := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: time.Duration(engine.MaxAnalysisWait)*time.Millisecond + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	var wg sync.WaitGroup

	// Frame loop pushes animation frames and settle transitions to watchers
	wg.Add(1)
	go func() {
		defer wg.Done()
		svcs.workbench.Run(ctx, service.DefaultFrameInterval, hub.BroadcastToSession)
	}()

	serveErr := make(chan error, 1)
	wg.Add(1)
	go func() {
		defer wg.Done()

		log.Printf("HTTP server listening on %s", addr)
		log.Printf("REST API: http://%s/api", addr)
		log.Printf("WebSocket: ws://%s/ws?session=<session_id>", addr)
		log.Printf("MCP endpoint: http://%s/mcp", addr)
		log.Printf("Metrics: http://%s/metrics", addr)

		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
			cancel()
		}
	}()

	if cmd.Bool("ngrok") {
		wg.Add(1)
		go func() {
			defer wg.Done()
			runNgrok(ctx, cmd.String("ngrok-auth"), cmd.String("ngrok-domain"), handler)
		}()
	}

	<-ctx.Done()
	log.Println("Shutting down...")

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}

	wg.Wait()
	log.Println("Server stopped")

	select {
	case err := <-serveErr:
		return fmt.Errorf("HTTP server failed: %w", err)
	default:
		return nil
	}
}

// runNgrok serves handler through an ngrok tunnel until ctx is done
func runNgrok(ctx context.Context, authToken, domain string, handler http.Handler) {
	if authToken == "" {
		log.Println("WARNING: Ngrok enabled but no auth token provided (use --ngrok-auth, NGROK_AUTHTOKEN, or NGROK_AUTH_TOKEN env var)")
		return
	}

	log.Println("Starting ngrok tunnel...")

	var tunnel ngrokConfig.Tunnel
	if domain != "" {
		tunnel = ngrokConfig.HTTPEndpoint(ngrokConfig.WithDomain(domain))
		log.Printf("Using custom ngrok domain: %s", domain)
	} else {
		tunnel = ngrokConfig.HTTPEndpoint()
	}

	tun, err := ngrok.Listen(ctx, tunnel, ngrok.WithAuthtoken(authToken))
	if err != nil {
		log.Printf("Failed to start ngrok tunnel: %v", err)
		return
	}

	go func() {
		<-ctx.Done()
		if err := tun.Close(); err != nil {
			log.Printf("Failed to close ngrok tunnel: %v", err)
		}
	}()

	ngrokURL := tun.URL()
	log.Printf("Ngrok tunnel established: %s", ngrokURL)
	log.Printf("  REST API (ngrok): %s/api", ngrokURL)
	log.Printf("  WebSocket (ngrok): %s/ws?session=<session_id>", ngrokURL)
	log.Printf("  MCP endpoint (ngrok): %s/mcp", ngrokURL)

	if err := http.Serve(tun, handler); err != nil && !errors.Is(err, http.ErrServerClosed) && ctx.Err() == nil {
		log.Printf("Ngrok server error: %v", err)
	}
	log.Println("Ngrok tunnel closed")
}

// runStdioMCP runs an MCP stdio server.
// It reuses an external API at host:port if one answers; otherwise it starts
// an internal HTTP API on a random loopback port and targets that.
func runStdioMCP(ctx context.Context, cmd *cli.Command) error {
	externalURL := fmt.Sprintf("http://%s:%d", cmd.String("host"), cmd.Int("port"))
	log.Printf("Checking for external API server at %s...", externalURL)

	baseURL := externalURL
	testClient := &http.Client{Timeout: 2 * time.Second}
	resp, err := testClient.Get(externalURL + "/healthz")
	if err == nil && resp.StatusCode < 500 {
		resp.Body.Close()
		log.Printf("External API server found at %s, using it for MCP", externalURL)
	} else {
		log.Printf("No external API server found, starting internal HTTP server")

		svcs, err := initializeServices(cmd.String("profile-dir"), loggerFor(cmd), defaultSessionTTL)
		if err != nil {
			return err
		}

		listener, err := net.Listen("tcp", "127.0.0.1:0")
		if err != nil {
			return fmt.Errorf("failed to get available port: %w", err)
		}
		internalAddr := listener.Addr().String()
		log.Printf("Starting internal HTTP server on %s for MCP stdio", internalAddr)

		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		hub := websocket.NewHub()
		go hub.Run(ctx)
		go svcs.workbench.Run(ctx, service.DefaultFrameInterval, hub.BroadcastToSession)

		httpServer := &http.Server{Handler: newHandler(svcs, hub, nil)}
		go func() {
			if err := httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Printf("Internal HTTP server error: %v", err)
			}
		}()
		defer httpServer.Close()

		baseURL = "http://" + internalAddr
	}

	mcpClient := mcp.NewClient(baseURL)
	log.Printf("MCP stdio server ready (API at %s)", baseURL)

	if err := server.ServeStdio(mcpClient.GetMCPServer()); err != nil {
		return fmt.Errorf("MCP stdio server error: %w", err)
	}
	return nil
}

// runReport loads a profile, drives its example mechanism and prints the analysis
func runReport(ctx context.Context, cmd *cli.Command) error {
	profiles, err := config.NewManager(cmd.String("profile-dir"))
	if err != nil {
		return err
	}

	name := cmd.Args().First()
	if name == "" {
		name = config.DefaultProfile
	}
	tuning, err := profiles.LoadProfile(name)
	if err != nil {
		return err
	}

	md, err := buildReport(tuning, cmd.Bool("release"))
	if err != nil {
		return err
	}

	if cmd.Bool("raw") {
		_, err = io.WriteString(os.Stdout, md)
		return err
	}
	return render.Write(os.Stdout, md)
}

// reportFrame is the simulated frame period used by buildReport
const reportFrame = 16 * time.Millisecond

// buildReport runs the example mechanism on a simulated clock and returns the
// markdown analysis
func buildReport(tuning *engine.Tuning, release bool) (string, error) {
	now := time.Unix(0, 0)
	wb, err := engine.NewEngine(tuning, engine.WithClock(func() time.Time { return now }))
	if err != nil {
		return "", err
	}

	settle := func() {
		// bounded by the longest animation plus the settle delay
		limit := now.Add(2 * time.Duration(engine.MaxDurationMs) * time.Millisecond)
		for wb.Animating() && now.Before(limit) {
			now = now.Add(reportFrame)
			wb.Tick(now)
		}
	}

	for _, step := range []func() engine.Status{wb.LoadExample, wb.ApplyInput} {
		if st := step(); st.Failed() {
			return "", fmt.Errorf("%s", st.Message)
		}
		settle()
	}

	// the release readouts are reported before the mechanism settles
	if release {
		if st := wb.ReleaseInput(); st.Failed() {
			return "", fmt.Errorf("%s", st.Message)
		}
	}

	wb.RunAnalysis()
	return render.Markdown(fmt.Sprintf("%s: %s", AppName, tuning.Name), wb.Snapshot()), nil
}

func runProfilesList(ctx context.Context, cmd *cli.Command) error {
	profiles, err := config.NewManager(cmd.String("profile-dir"))
	if err != nil {
		return err
	}
	list, err := profiles.ListProfiles()
	if err != nil {
		return err
	}
	for _, p := range list {
		fmt.Printf("%-16s engage %3.0f°  preload %3.0f°  %s\n", p.ProfileID, p.EngageAngle, p.PreloadAngle, p.Description)
	}
	return nil
}

func runProfilesValidate(ctx context.Context, cmd *cli.Command) error {
	dir := cmd.Args().First()
	if dir == "" {
		dir = cmd.String("profile-dir")
	}

	results, err := config.ValidateDir(dir)
	if err != nil {
		return err
	}

	names := make([]string, 0, len(results))
	for name := range results {
		names = append(names, name)
	}
	sort.Strings(names)

	invalid := 0
	for _, name := range names {
		if err := results[name]; err != nil {
			invalid++
			fmt.Printf("✗ %s: %v\n", name, err)
		} else {
			fmt.Printf("✓ %s\n", name)
		}
	}
	if invalid > 0 {
		return fmt.Errorf("%d of %d profiles invalid", invalid, len(names))
	}
	return nil
}
