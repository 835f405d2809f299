// Command holdctl runs maintenance tasks against the hold store: applying
// migrations, sweeping expired holds, confirming or syncing a single
// reservation, and minting operator credentials.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"github.com/iliyamo/rental-hold-engine/internal/booking"
	"github.com/iliyamo/rental-hold-engine/internal/channel"
	"github.com/iliyamo/rental-hold-engine/internal/clock"
	"github.com/iliyamo/rental-hold-engine/internal/config"
	"github.com/iliyamo/rental-hold-engine/internal/database"
	"github.com/iliyamo/rental-hold-engine/internal/middleware"
	"github.com/iliyamo/rental-hold-engine/internal/repository"
	"github.com/iliyamo/rental-hold-engine/internal/utils"
)

const usage = `usage: holdctl <command> [flags]

commands:
  migrate                 apply pending schema migrations
  sweep                   expire lapsed holds once
  sync <id>               push a confirmed reservation to the channel-manager
  confirm <id>            confirm a hold manually
  token                   mint an operator JWT
  hash-secret <secret>    print the bcrypt hash of a cron secret
`

func main() {
	_ = godotenv.Load()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintln(os.Stderr, "holdctl:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, out io.Writer) error {
	if len(args) == 0 {
		fmt.Fprint(out, usage)
		return errors.New("missing command")
	}
	cmd, rest := args[0], args[1:]
	switch cmd {
	case "migrate":
		return runMigrate(ctx, rest, out)
	case "sweep":
		return runSweep(ctx, rest, out)
	case "sync":
		return runSync(ctx, rest, out)
	case "confirm":
		return runConfirm(ctx, rest, out)
	case "token":
		return runToken(rest, out)
	case "hash-secret":
		return runHashSecret(rest, out)
	case "help", "-h", "--help":
		fmt.Fprint(out, usage)
		return nil
	}
	fmt.Fprint(out, usage)
	return fmt.Errorf("unknown command %q", cmd)
}

// env bundles what the store-backed commands need.
type env struct {
	cfg  config.Config
	repo *repository.ReservationRepo
	clk  clock.Clock
	done func()
}

func openEnv(ctx context.Context) (*env, error) {
	cfg := config.Load()
	dialect := database.Dialect(cfg.DBDriver)
	db, err := database.Connect(dialect, cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName, cfg.SQLitePath)
	if err != nil {
		return nil, fmt.Errorf("db connect: %w", err)
	}
	if err := database.Migrate(ctx, db, dialect); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db migrate: %w", err)
	}
	return &env{
		cfg:  cfg,
		repo: repository.NewReservationRepo(db, dialect),
		clk:  clock.Real(),
		done: func() { _ = db.Close() },
	}, nil
}

func newFlagSet(name string) *pflag.FlagSet {
	fs := pflag.NewFlagSet("holdctl "+name, pflag.ContinueOnError)
	fs.SortFlags = false
	return fs
}

func runMigrate(ctx context.Context, args []string, out io.Writer) error {
	if err := newFlagSet("migrate").Parse(args); err != nil {
		return err
	}
	e, err := openEnv(ctx)
	if err != nil {
		return err
	}
	defer e.done()
	fmt.Fprintf(out, "migrations applied (%s)\n", e.cfg.DBDriver)
	return nil
}

func runSweep(ctx context.Context, args []string, out io.Writer) error {
	if err := newFlagSet("sweep").Parse(args); err != nil {
		return err
	}
	e, err := openEnv(ctx)
	if err != nil {
		return err
	}
	defer e.done()
	n, err := booking.NewSweeper(e.repo, e.clk, config.NewLogger(e.cfg.Env)).Sweep(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "expired %d hold(s)\n", n)
	return nil
}

func runSync(ctx context.Context, args []string, out io.Writer) error {
	fs := newFlagSet("sync")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("sync: exactly one reservation id required")
	}
	e, err := openEnv(ctx)
	if err != nil {
		return err
	}
	defer e.done()

	var client booking.ChannelClient
	chCfg := channel.Config{
		BaseURL:   e.cfg.ChannelBaseURL,
		APIKey:    e.cfg.ChannelAPIKey,
		ChannelID: e.cfg.ChannelID,
		Timeout:   e.cfg.ChannelTimeout,
	}
	if chCfg.Configured() {
		client = channel.NewClient(chCfg)
	}
	agent := booking.NewSyncAgent(e.repo, client, e.clk, booking.SyncOptions{ChannelID: e.cfg.ChannelID}, config.NewLogger(e.cfg.Env))
	result, err := agent.Sync(ctx, fs.Arg(0))
	if err != nil {
		return err
	}
	if err := printJSON(out, result); err != nil {
		return err
	}
	if result.Outcome == booking.OutcomeFailed {
		return fmt.Errorf("sync failed: %s", result.Reason)
	}
	return nil
}

func runConfirm(ctx context.Context, args []string, out io.Writer) error {
	fs := newFlagSet("confirm")
	session := fs.String("session", "", "payment session reference")
	txn := fs.String("transaction", "", "payment transaction reference")
	event := fs.String("event", "", "payment event reference")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("confirm: exactly one hold id required")
	}
	e, err := openEnv(ctx)
	if err != nil {
		return err
	}
	defer e.done()

	coord := booking.NewCoordinator(e.repo, e.clk, config.NewLogger(e.cfg.Env))
	result, err := coord.Confirm(ctx, booking.ConfirmInput{
		HoldID:         fs.Arg(0),
		SessionRef:     *session,
		TransactionRef: *txn,
		EventRef:       *event,
	})
	if err != nil {
		return err
	}
	return printJSON(out, result)
}

func runToken(args []string, out io.Writer) error {
	fs := newFlagSet("token")
	subject := fs.String("subject", "", "operator identifier placed in the sub claim")
	ttl := fs.Duration("ttl", 0, "token lifetime (default OPERATOR_TOKEN_TTL)")
	secret := fs.String("secret", os.Getenv("JWT_SECRET"), "HS256 signing secret")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *subject == "" {
		return errors.New("token: --subject is required")
	}
	if *secret == "" {
		return errors.New("token: JWT_SECRET or --secret is required")
	}
	if *ttl <= 0 {
		*ttl = config.OperatorTokenTTL()
	}
	tok, err := utils.NewOperatorToken(*secret, *subject, middleware.RoleOperator, *ttl)
	if err != nil {
		return err
	}
	return printJSON(out, tok)
}

func runHashSecret(args []string, out io.Writer) error {
	fs := newFlagSet("hash-secret")
	cost := fs.Int("cost", config.BcryptCost(), "bcrypt cost")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("hash-secret: exactly one secret required")
	}
	hash, err := utils.HashSecret(fs.Arg(0), *cost)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, hash)
	return nil
}

func printJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
