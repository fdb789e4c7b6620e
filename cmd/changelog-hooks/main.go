// changelog-hooks serves the release webhook endpoint that turns published
// releases into changelog tasks.
//
// Configuration comes from CHANGELOG_HOOKS_* environment variables; flags
// override individual settings. The seal-secret subcommand prints a
// webhook.secret_envelope value for a given secret and app key.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/goliatone/go-changelog-hooks/core"
	"github.com/goliatone/go-changelog-hooks/security"
)

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdout io.Writer, stderr io.Writer) error {
	if len(args) > 0 && args[0] == "seal-secret" {
		return runSealSecret(args[1:], stdout)
	}

	var opts serveOptions
	flagSet := pflag.NewFlagSet("changelog-hooks", pflag.ContinueOnError)
	flagSet.SetOutput(stderr)
	opts.addFlags(flagSet)
	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := core.LoadConfig(ctx, nil, nil, opts.runtimeConfig(flagSet))
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	return serve(ctx, cfg, opts, stderr)
}

func runSealSecret(args []string, stdout io.Writer) error {
	var appKey, secret string
	flagSet := pflag.NewFlagSet("seal-secret", pflag.ContinueOnError)
	flagSet.StringVar(&appKey, "app-key", os.Getenv("CHANGELOG_HOOKS_WEBHOOK_APP_KEY"), "application key used to seal the secret")
	flagSet.StringVar(&secret, "secret", "", "webhook shared secret (read from stdin when empty)")
	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if strings.TrimSpace(appKey) == "" {
		return fmt.Errorf("seal-secret: --app-key or CHANGELOG_HOOKS_WEBHOOK_APP_KEY is required")
	}
	if secret == "" {
		raw, err := io.ReadAll(io.LimitReader(os.Stdin, 4096))
		if err != nil {
			return fmt.Errorf("seal-secret: read stdin: %w", err)
		}
		secret = strings.TrimSpace(string(raw))
	}
	sealed, err := security.SealWebhookSecret(context.Background(), appKey, secret)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(stdout, sealed)
	return err
}
