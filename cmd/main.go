package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/riskreview-backend/internal/app"
	"github.com/yungbote/riskreview-backend/internal/clients/redis"
	"github.com/yungbote/riskreview-backend/internal/platform/ctxutil"
	"github.com/yungbote/riskreview-backend/internal/platform/envutil"
	"github.com/yungbote/riskreview-backend/internal/platform/logger"
	"github.com/yungbote/riskreview-backend/internal/services"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd := "serve"
	args := os.Args[1:]
	if len(args) > 0 {
		cmd, args = args[0], args[1:]
	}

	var err error
	switch cmd {
	case "serve":
		err = serve(ctx)
	case "events":
		err = tailEvents(ctx)
	case "token":
		err = issueToken(args)
	default:
		err = fmt.Errorf("unknown command %q (want serve, events or token)", cmd)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func serve(ctx context.Context) error {
	a, err := app.New(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	a.Start(ctx)

	errCh := make(chan error, 1)
	go func() { errCh <- a.Run() }()

	select {
	case <-ctx.Done():
		a.Log.Info("Shutdown signal received")
		return nil
	case err := <-errCh:
		return err
	}
}

// tailEvents prints review job events from the redis bus as JSON lines.
func tailEvents(ctx context.Context) error {
	log, err := logger.New(envutil.String("LOG_MODE", "development"))
	if err != nil {
		return err
	}
	defer log.Sync()

	rdb, err := redis.NewClient(ctx)
	if err != nil {
		return err
	}
	bus, err := redis.NewJobBus(log, rdb)
	if err != nil {
		_ = rdb.Close()
		return err
	}
	defer bus.Close()

	enc := json.NewEncoder(os.Stdout)
	if err := bus.StartForwarder(ctx, func(ev redis.JobEvent) {
		_ = enc.Encode(ev)
	}); err != nil {
		return err
	}
	<-ctx.Done()
	return nil
}

// issueToken mints a bearer token for local use against the API.
func issueToken(args []string) error {
	fs := flag.NewFlagSet("token", flag.ContinueOnError)
	userID := fs.String("user", "", "user id (random when empty)")
	role := fs.String("role", "", "role claim, e.g. admin")
	ttl := fs.Duration("ttl", 24*time.Hour, "token lifetime")
	if err := fs.Parse(args); err != nil {
		return err
	}

	log, err := logger.New(envutil.String("LOG_MODE", "development"))
	if err != nil {
		return err
	}
	defer log.Sync()
	cfg, err := app.LoadConfig(log)
	if err != nil {
		return err
	}

	id := uuid.New()
	if *userID != "" {
		if id, err = uuid.Parse(*userID); err != nil {
			return fmt.Errorf("invalid user id: %w", err)
		}
	}
	if *role != "" && *role != ctxutil.RoleAdmin {
		return fmt.Errorf("unknown role %q", *role)
	}
	tok, err := services.NewAuthService(log, cfg.JWTSecretKey).IssueToken(id, *role, *ttl)
	if err != nil {
		return err
	}
	fmt.Println(tok)
	return nil
}
