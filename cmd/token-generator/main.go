// Package main implements a small utility that issues bearer tokens for the
// genqueue API using the server's configured JWT secret.
//
// Usage:
//
//	go run ./cmd/token-generator -subject ci-runner
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/joho/godotenv"

	"github.com/phrazzld/genqueue/internal/config"
	"github.com/phrazzld/genqueue/internal/service/auth"
)

func main() {
	subject := flag.String("subject", "", "subject to embed in the token (required)")
	flag.Parse()

	_ = godotenv.Load()

	if err := run(os.Stdout, *subject); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(w io.Writer, subject string) error {
	if subject == "" {
		return fmt.Errorf("-subject is required")
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	return issue(w, cfg.Auth, subject)
}

// issue writes a token for subject to w.
func issue(w io.Writer, cfg config.AuthConfig, subject string) error {
	svc, err := auth.NewJWTService(cfg)
	if err != nil {
		return err
	}
	token, err := svc.GenerateToken(context.Background(), subject)
	if err != nil {
		return fmt.Errorf("failed to generate token: %w", err)
	}
	_, err = fmt.Fprintln(w, token)
	return err
}
