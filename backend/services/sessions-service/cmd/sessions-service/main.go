package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"evroaming/backend/libs/logging"
	"evroaming/backend/services/sessions-service/internal/app"
	"evroaming/backend/services/sessions-service/internal/config"
	"evroaming/backend/services/sessions-service/internal/http/middleware"
	"evroaming/backend/services/sessions-service/internal/password"
)

const usage = `usage:
  sessions-service                        run the service
  sessions-service hash-password <pass>   print a bcrypt hash for SESSIONS_ACCOUNTS
  sessions-service issue-token <subject>  print a 24h bearer token signed with SESSIONS_JWT_SECRET`

func main() {
	if len(os.Args) > 1 {
		if err := runCommand(os.Args[1:]); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger, err := logging.NewLogger()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	application, err := app.New(cfg, logger)
	if err != nil {
		logger.Fatal("failed to init application", zap.Error(err))
	}
	defer application.Close()

	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal("application stopped with error", zap.Error(err))
	}
}

func runCommand(args []string) error {
	if len(args) != 2 {
		return errors.New(usage)
	}
	switch args[0] {
	case "hash-password":
		hash, err := password.NewBcryptHasher(0).Hash(args[1])
		if err != nil {
			return err
		}
		fmt.Println(hash)
	case "issue-token":
		token, err := middleware.IssueToken(os.Getenv("SESSIONS_JWT_SECRET"), args[1], 24*time.Hour)
		if err != nil {
			return err
		}
		fmt.Println(token)
	default:
		return errors.New(usage)
	}
	return nil
}
