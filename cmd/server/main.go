package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/jrsteele09/device-console/auth"
	"github.com/jrsteele09/device-console/gateway"
	"github.com/jrsteele09/device-console/guard"
	"github.com/jrsteele09/device-console/internal/config"
	"github.com/jrsteele09/device-console/server"
	"github.com/jrsteele09/device-console/sessions"
	"github.com/jrsteele09/device-console/sessions/memstore"
	"github.com/jrsteele09/device-console/sessions/redisstore"
	"github.com/jrsteele09/device-console/sessions/sqlstore"
	"github.com/jrsteele09/device-console/token"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const purgeInterval = 10 * time.Minute

func main() {
	if err := config.Load("."); err != nil {
		log.Fatal().Err(err).Msg("Failed to load .env file")
	}
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("Error running server")
	}
	log.Info().Msg("Server stopped")
}

func run() (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("Recovered from panic")
			debug.PrintStack()
			returnError = errors.New("panic recovered")
		}
	}()

	c := config.New()
	setupLogging(c.GetEnv())
	if err := config.CheckSessionSecret(c); err != nil {
		return err
	}
	if os.Getenv("SESSION_SECRET") == "" {
		log.Warn().Msg("SESSION_SECRET is not set, using the development secret")
	}
	displayAppname(c.GetAppName())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := newSessionStore(ctx, c)
	if err != nil {
		return err
	}
	defer store.Close()

	gw, err := gateway.New(c.GetAPIBaseURL(), gateway.WithTimeout(c.GetAPITimeout()))
	if err != nil {
		return fmt.Errorf("gateway.New: %w", err)
	}
	authService, err := auth.NewService(gw, store, auth.WithMaxSessionAge(c.GetMaxSessionAge()))
	if err != nil {
		return fmt.Errorf("auth.NewService: %w", err)
	}
	signer, err := token.NewHMACSigner(c.GetSessionSecret())
	if err != nil {
		return fmt.Errorf("token.NewHMACSigner: %w", err)
	}

	var guardOpts []guard.Option
	if c.GetGuardMode() == config.GuardModeVerify {
		guardOpts = append(guardOpts, guard.WithVerifier(authService, c.GetGuardVerifyTTL()))
	}

	console, err := server.New(c, server.Deps{
		Gateway: gw,
		Store:   store,
		Auth:    authService,
		Guard:   guard.New(store, guardOpts...),
		Signer:  signer,
	})
	if err != nil {
		return err
	}
	defer console.Close()
	go console.WatchSessions(ctx)

	httpServer := &http.Server{Addr: c.GetPort(), Handler: console, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := listenAndServe(httpServer); err != nil {
			log.Err(err).Msg("HTTP server failed")
			cancel()
		}
	}()
	waitForStopSignal(ctx)
	return shutdown(httpServer)
}

func setupLogging(env string) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if env == "DEV" {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
		return
	}
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
}

// newSessionStore opens the store selected by SESSION_STORE. Stores that
// persist outside the process seal backend credentials at rest.
func newSessionStore(ctx context.Context, c config.Config) (sessions.Store, error) {
	switch c.GetSessionStore() {
	case config.SessionStoreSQLite:
		codec, err := sessions.NewSealedCodec(c.GetSessionSecret())
		if err != nil {
			return nil, err
		}
		path := c.GetSQLitePath()
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
			return nil, fmt.Errorf("create data folder: %w", err)
		}
		store, err := sqlstore.Open(ctx, path, codec)
		if err != nil {
			return nil, err
		}
		go purgeExpiredSessions(ctx, store)
		log.Info().Str("path", path).Msg("Using SQLite session store")
		return store, nil

	case config.SessionStoreRedis:
		codec, err := sessions.NewSealedCodec(c.GetSessionSecret())
		if err != nil {
			return nil, err
		}
		store, err := redisstore.Dial(ctx, c.GetRedisAddr(), c.GetRedisPassword(), c.GetRedisDB(), codec)
		if err != nil {
			return nil, err
		}
		log.Info().Str("addr", c.GetRedisAddr()).Msg("Using Redis session store")
		return store, nil

	case config.SessionStoreMemory:
		log.Info().Msg("Using in-memory session store")
		return memstore.New(), nil
	}
	return nil, fmt.Errorf("unknown SESSION_STORE %q", c.GetSessionStore())
}

func purgeExpiredSessions(ctx context.Context, store *sqlstore.Store) {
	ticker := time.NewTicker(purgeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := store.PurgeExpired(ctx)
			if err != nil {
				log.Err(err).Msg("Failed to purge expired sessions")
				continue
			}
			if n > 0 {
				log.Debug().Int64("purged", n).Msg("Purged expired sessions")
			}
		}
	}
}

func listenAndServe(server *http.Server) error {
	log.Info().Str("addr", server.Addr).Msg("Server listening")
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server.ListenAndServe %w", err)
	}
	return nil
}

func waitForStopSignal(ctx context.Context) {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	select {
	case <-stop:
	case <-ctx.Done():
	}
}

func shutdown(server *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server.Shutdown: %w", err)
	}
	return nil
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
