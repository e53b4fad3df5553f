package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"sync"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/joho/godotenv"
	"github.com/jrsteele09/go-auth-client/authapi"
	"github.com/jrsteele09/go-auth-client/authtest"
	"github.com/jrsteele09/go-auth-client/credentials"
	"github.com/jrsteele09/go-auth-client/internal/config"
	"github.com/jrsteele09/go-auth-client/provider/oidc"
	"github.com/jrsteele09/go-auth-client/session"
	"github.com/rs/zerolog"
)

// The in-process backend mints short-lived tokens so the demo can show the
// interceptor recovering expired credentials behind a single refresh.
const localAccessTokenTTL = 2 * time.Second

func main() {
	if err := run(); err != nil {
		log.Fatalf("Error running demo: %s\n", err)
	}
	log.Printf("Demo stopped\n")
}

func run() (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Recovered from panic: %v\n", r)
			debug.PrintStack()
			returnError = errors.New("panic recovered")
		}
	}()

	_ = godotenv.Load()
	c := config.New()
	displayAppname(c.GetAppName())
	logger := newLogger(c)

	ctx := context.Background()

	baseURL := c.GetAuthBaseURL()
	var backend *authtest.Server
	if baseURL == "" {
		localURL, localBackend, shutdown, err := startLocalBackend(logger)
		if err != nil {
			return err
		}
		defer func() {
			if err := shutdown(); err != nil {
				logger.Err(err).Msg("stopping local auth backend")
			}
		}()
		baseURL = localURL
		backend = localBackend
	}

	manager, credentialFile, err := buildManager(c, baseURL, logger)
	if err != nil {
		return err
	}

	cancelObserver := manager.OnChange(func(state session.State) {
		logger.Info().Str("status", string(state.Status)).Bool("first_session", state.FirstSession).Msg("session state changed")
	})
	defer cancelObserver()

	if err := establishSession(ctx, manager, c, logger); err != nil {
		return err
	}
	if err := demonstrateRecovery(ctx, manager, backend, baseURL, logger); err != nil {
		return err
	}

	user, err := manager.RefreshUser(ctx)
	if err != nil {
		return fmt.Errorf("manager.RefreshUser: %w", err)
	}
	logger.Info().Str("email", user.Email).Time("last_login", user.LastLoginAt).Msg("profile refreshed")

	logger.Info().Str("file", credentialFile).Msg("session persisted; press ctrl-c to stop")
	waitForStopSignal()
	return nil
}

func newLogger(c config.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(c.GetLogLevel())
	if err != nil {
		level = zerolog.InfoLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}).
		Level(level).
		With().Timestamp().Logger()
}

// startLocalBackend serves the in-process auth backend on a loopback port so
// the demo works without a real server.
func startLocalBackend(logger zerolog.Logger) (string, *authtest.Server, func() error, error) {
	backend := authtest.New(authtest.WithAccessTokenTTL(localAccessTokenTTL))

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return "", nil, nil, fmt.Errorf("net.Listen: %w", err)
	}

	httpServer := &http.Server{Handler: backend}
	go func() {
		if err := httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
			logger.Err(err).Msg("local auth backend stopped")
		}
	}()

	baseURL := "http://" + listener.Addr().String()
	logger.Info().Str("url", baseURL).Msg("running an in-process auth backend")

	shutdown := func() error {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("httpServer.Shutdown: %w", err)
		}
		return nil
	}
	return baseURL, backend, shutdown, nil
}

func buildManager(c config.Config, baseURL string, logger zerolog.Logger) (*session.Manager, string, error) {
	api, err := authapi.New(baseURL)
	if err != nil {
		return nil, "", fmt.Errorf("authapi.New: %w", err)
	}

	credentialFile := c.GetCredentialFile()
	if credentialFile == "" {
		credentialFile, err = credentials.DefaultPath()
		if err != nil {
			return nil, "", fmt.Errorf("credentials.DefaultPath: %w", err)
		}
	}

	options := []session.ManagerOption{
		session.WithFileStore(credentials.NewFileStore(credentialFile)),
		session.WithBootstrapTimeout(c.GetBootstrapTimeout()),
		session.WithLogger(logger),
	}

	if c.GetOIDCRefreshToken() != "" {
		source, err := oidc.New(oidc.Config{
			IssuerURL:    c.GetOIDCIssuerURL(),
			ClientID:     c.GetOIDCClientID(),
			ClientSecret: c.GetOIDCClientSecret(),
			RefreshToken: c.GetOIDCRefreshToken(),
		}, oidc.WithLogger(logger))
		if err != nil {
			return nil, "", fmt.Errorf("oidc.New: %w", err)
		}
		options = append(options, session.WithSource(source))
	}

	manager, err := session.NewManager(api, options...)
	if err != nil {
		return nil, "", fmt.Errorf("session.NewManager: %w", err)
	}
	return manager, credentialFile, nil
}

// establishSession reconciles any persisted or externally provided session
// first, and only signs in (or registers) the demo account when nothing was
// resumable.
func establishSession(ctx context.Context, manager *session.Manager, c config.Config, logger zerolog.Logger) error {
	if err := manager.Initialise(ctx); err != nil {
		return fmt.Errorf("manager.Initialise: %w", err)
	}

	if manager.State().Authenticated() {
		logger.Info().Msg("session resumed from a previous run")
		return nil
	}

	user, err := manager.Login(ctx, c.GetDemoEmail(), c.GetDemoPassword())
	if errors.Is(err, authapi.ErrInvalidCredentials) {
		logger.Info().Str("email", c.GetDemoEmail()).Msg("no demo account yet, registering")
		user, err = manager.Register(ctx, c.GetDemoEmail(), c.GetDemoPassword(), c.GetDemoFullName())
	}
	if err != nil {
		return fmt.Errorf("signing in demo account: %w", err)
	}

	logger.Info().
		Str("email", user.Email).
		Str("name", user.DisplayName).
		Bool("first_session", manager.State().FirstSession).
		Msg("signed in")
	return nil
}

// demonstrateRecovery waits out the short token lifetime, then issues three
// authorised requests at once: every one fails with a 401, yet the backend
// sees exactly one refresh call and all three requests complete.
func demonstrateRecovery(ctx context.Context, manager *session.Manager, backend *authtest.Server, baseURL string, logger zerolog.Logger) error {
	if backend == nil {
		return nil
	}

	logger.Info().Dur("ttl", localAccessTokenTTL).Msg("waiting for the access token to expire")
	time.Sleep(localAccessTokenTTL + time.Second)
	backend.ResetRequests()

	client := manager.Client()
	var wg sync.WaitGroup
	requestErrs := make(chan error, 3)
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+authtest.RoutePing, nil)
			if err != nil {
				requestErrs <- err
				return
			}
			resp, err := client.Do(req)
			if err != nil {
				requestErrs <- err
				return
			}
			resp.Body.Close()
		}()
	}
	wg.Wait()
	close(requestErrs)
	for err := range requestErrs {
		if err != nil {
			return fmt.Errorf("authorised request: %w", err)
		}
	}

	logger.Info().
		Int("requests", backend.Requests("GET "+authtest.RoutePing)).
		Int("refresh_calls", backend.Requests("POST "+authapi.RouteRefresh)).
		Msg("expired requests recovered behind a single refresh")
	return nil
}

func waitForStopSignal() {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
