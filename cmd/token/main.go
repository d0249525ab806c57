package main

import (
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/mamadbah2/dairy/internal/auth"
	"github.com/mamadbah2/dairy/internal/config"
	"github.com/mamadbah2/dairy/pkg/logger"
)

// token prints a signed admin bearer token for the dashboard.
func main() {
	envFile := flag.String("env", "", "optional env file to load")
	subject := flag.String("sub", "admin", "token subject")
	flag.Parse()

	cfg, err := config.Load(*envFile)
	if err != nil {
		panic(err)
	}

	log := logger.Must(logger.New(cfg.Server.LogLevel))
	defer func() { _ = log.Sync() }()

	tokens, err := auth.NewTokenService(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	if err != nil {
		log.Fatal("cannot issue tokens", zap.Error(err))
	}

	token, err := tokens.Issue(*subject, auth.RoleAdmin)
	if err != nil {
		log.Fatal("failed to sign token", zap.Error(err))
	}

	log.Info("admin token issued", zap.String("subject", *subject), zap.Duration("ttl", cfg.Auth.TokenTTL))
	fmt.Fprintln(os.Stdout, token)
}
