package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/hrygo/divinesense-console/client/api"
	"github.com/hrygo/divinesense-console/client/dispatch"
	"github.com/hrygo/divinesense-console/client/session"
	"github.com/hrygo/divinesense-console/client/state"
	"github.com/hrygo/divinesense-console/client/timezone"
	"github.com/hrygo/divinesense-console/client/transport"
	"github.com/hrygo/divinesense-console/internal/observability"
	"github.com/hrygo/divinesense-console/internal/profile"
	"github.com/hrygo/divinesense-console/store"
	"github.com/hrygo/divinesense-console/store/db"
)

const version = "0.3.0"

var rootCmd = &cobra.Command{
	Use:   "divinesense-console",
	Short: "Terminal client for DivineSense chat",
	RunE: func(_ *cobra.Command, _ []string) error {
		p := &profile.Profile{
			Mode:          viper.GetString("mode"),
			ServerURL:     viper.GetString("server-url"),
			Token:         viper.GetString("token"),
			Timezone:      viper.GetString("timezone"),
			Data:          viper.GetString("data"),
			CacheDisabled: viper.GetBool("no-cache"),
			Version:       version,
		}
		p.FromEnv()
		if err := p.Validate(); err != nil {
			return err
		}
		return run(p)
	},
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.String("mode", "", `mode of the console, can be "prod" or "dev"`)
	flags.String("server-url", "", "base URL of the DivineSense backend")
	flags.String("token", "", "bearer token for the backend")
	flags.String("timezone", "", "IANA timezone used for conversation grouping")
	flags.String("data", "", "local data directory")
	flags.Bool("no-cache", false, "disable the local conversation cache")

	if err := viper.BindPFlags(flags); err != nil {
		panic(err)
	}
}

func run(p *profile.Profile) error {
	logger := observability.NewLogger(p.IsDev())
	slog.SetDefault(logger)
	sess := observability.NewSessionContext(logger)
	sess.Info("Starting console", slog.String("version", p.Version), slog.String("server", p.ServerURL))

	loc, err := timezone.ParseTimezone(p.Timezone)
	if err != nil {
		logger.Warn("Falling back to UTC", "error", err)
	}

	var local *store.Store
	if !p.CacheDisabled {
		driver, err := db.NewDriver(p)
		if err != nil {
			logger.Warn("Local cache unavailable, continuing without it", "error", err)
		} else {
			local = store.New(driver)
			defer local.Close()
		}
	}

	backend := api.NewClient(p.ServerURL, p.Token, nil, logger)
	if backend.TokenExpiresWithin(24 * time.Hour) {
		logger.Warn("Bearer token expires within a day; re-authenticate soon")
	}

	notifier := &consoleNotifier{}
	conversations := state.NewConversationStore(state.NowReference(loc), logger)
	messages := state.NewMessageStore(logger)
	coordinator := dispatch.NewCoordinator(conversations, messages, notifier, logger)

	supervisor := transport.NewSupervisor(
		transport.DialSSE(nil, p.StreamURL(), p.SendURL(), p.Token),
		transport.Options{
			ReconnectBackoff: p.ReconnectBackoff,
			SendRetries:      p.SendRetries,
			SendRetryDelay:   p.SendRetryDelay,
			Logger:           logger,
		},
	)
	printer := newPrinter(os.Stdout)
	supervisor.RegisterHandler(func(payload []byte) {
		coordinator.HandlePayload(payload)
		printer.handle(payload)
	})
	defer supervisor.UnregisterHandler()

	sn := session.NewSession(backend, supervisor, conversations, messages, coordinator, local, p.PageSize, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := sn.Initialize(ctx); err != nil {
		// Cached conversations (if any) remain usable offline.
		logger.Warn("Initial conversation fetch failed", "error", err)
		notifier.Notify("error", "cannot reach the server; showing cached conversations")
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return supervisor.Run(ctx)
	})
	g.Go(func() error {
		defer stop()
		return runREPL(ctx, sn, conversations, messages, printer)
	})

	if err := g.Wait(); err != nil && ctx.Err() == nil {
		return err
	}
	sess.Info("Console stopped", slog.Int64(observability.LogFieldDuration, sess.Duration().Milliseconds()))
	return nil
}

// consoleNotifier surfaces stream/server errors on stderr, outside the
// message flow on stdout.
type consoleNotifier struct{}

func (consoleNotifier) Notify(severity, message string) {
	fmt.Fprintf(os.Stderr, "[%s] %s\n", severity, message)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
