// cmd/libradesk/root.go
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"libradesk/internal/audit"
	"libradesk/internal/auth"
	"libradesk/internal/catalog"
	"libradesk/internal/circulation"
	"libradesk/internal/config"
	"libradesk/internal/membership"
	"libradesk/internal/store"
	"libradesk/internal/telemetry"
	"libradesk/pkg/eventstore"
)

var (
	version = "dev"
	commit  = "none"
)

func execute() int {
	rootCmd := newRootCmd()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

// app carries what every command needs once configuration is resolved.
type app struct {
	cfg    *config.Config
	logger *slog.Logger
}

func newRootCmd() *cobra.Command {
	var envFile string
	a := &app{}

	rootCmd := &cobra.Command{
		Use:           "libradesk",
		Short:         "Library circulation desk",
		Long:          "Books, members and loans with consistent inventory counters.",
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       fmt.Sprintf("%s (commit: %s)", version, commit),
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := config.LoadDotEnv(envFile); err != nil {
				return err
			}
			cfg, err := config.LoadFromEnv()
			if err != nil {
				return fmt.Errorf("configuration: %w", err)
			}
			a.cfg = cfg
			a.logger = telemetry.NewLogger(cmd.ErrOrStderr(), cfg.SlogLevel(), cfg.Env)
			for _, w := range cfg.Warnings {
				a.logger.Warn(w)
			}
			return nil
		},
	}
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Optional dotenv file loaded before reading the environment")

	rootCmd.AddCommand(newServeCmd(a))
	rootCmd.AddCommand(newMigrateCmd(a))
	rootCmd.AddCommand(newStaffCmd(a))
	rootCmd.AddCommand(newLoansCmd(a))
	rootCmd.AddCommand(newAuditCmd(a))
	return rootCmd
}

// openStore connects and applies pending migrations.
func (a *app) openStore(ctx context.Context) (*store.Store, error) {
	st, err := store.Open(ctx, a.cfg.DatabaseDriver, a.cfg.DatabaseURL, a.logger)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(); err != nil {
		_ = st.Close()
		return nil, err
	}
	return st, nil
}

// services wires the domain services over st.
type services struct {
	auth        auth.Service
	catalog     catalog.Service
	membership  membership.Service
	circulation circulation.Service
	auditor     *audit.Auditor
}

func (a *app) services(st *store.Store) (*services, error) {
	tokens, err := auth.NewTokenIssuer(a.cfg.JWTSecret, a.cfg.TokenTTL)
	if err != nil {
		return nil, err
	}
	circ := circulation.NewService(st, eventstore.NewEventStore(st.Driver(), eventstore.DefaultTable), circulation.Options{
		LoanPeriodDays: a.cfg.LoanPeriodDays,
		DailyRate:      a.cfg.FineDailyRate,
	}, a.logger)

	auditor := audit.NewAuditor(a.logger)
	auditor.Register(audit.InventoryChecks(st, nowFunc)...)

	return &services{
		auth:        auth.NewService(st, tokens, a.cfg.LoginRatePerMinute, a.logger),
		catalog:     catalog.NewService(st, circ, a.logger),
		membership:  membership.NewService(st, circ, membership.Options{DefaultMaxBooks: a.cfg.DefaultMaxBooks}, a.logger),
		circulation: circ,
		auditor:     auditor,
	}, nil
}
