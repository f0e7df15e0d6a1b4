package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/predictpro/credit-service/internal/app"
	"github.com/predictpro/credit-service/internal/bootstrap"
	"github.com/predictpro/credit-service/internal/config"
	"github.com/predictpro/credit-service/internal/store"
	"github.com/predictpro/credit-service/pkg/rabbitmq"
	"github.com/spf13/cobra"
)

var (
	configPath string
	jsonOutput bool
	rootCmd    *cobra.Command
)

func init() {
	rootCmd = &cobra.Command{
		Use:   "paymentsctl",
		Short: "paymentsctl - operator tool for the credit service",
		Long: `paymentsctl inspects and repairs M-Pesa payments and credit ledgers.

It talks to the same database and gateway as the credit service and routes every
payment outcome through the service's finalizer, so it is safe to run alongside it.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&configPath, "config", ".", "directory containing an optional .env file")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "print results as JSON")
}

// Execute runs the root command
func Execute(version string) error {
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(sweepCmd)
	rootCmd.AddCommand(ledgerCmd)
	rootCmd.AddCommand(cancelCmd)

	rootCmd.Version = version
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return err
	}
	return nil
}

// runtime bundles the connections a command needs.
type runtime struct {
	cfg       config.Config
	pool      *pgxpool.Pool
	repo      *store.PostgresRepository
	service   *app.Service
	publisher rabbitmq.Publisher
}

func (r *runtime) Close() {
	if r.publisher != nil {
		r.publisher.Close()
	}
	r.pool.Close()
}

func loadConfig() (config.Config, error) {
	_ = godotenv.Load()
	return config.LoadConfig(configPath)
}

// openRuntime connects to the database. The gateway and broker are only wired when
// withService is set, since migrate and ledger never need them.
func openRuntime(ctx context.Context, withService bool) (*runtime, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	pool, err := bootstrap.OpenDatabase(ctx, cfg.DatabaseURL, bootstrap.ToolPool)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	rt := &runtime{cfg: cfg, pool: pool, repo: store.NewPostgresRepository(pool)}
	if withService {
		rt.publisher = bootstrap.OpenPublisher(cfg)
		rt.service = app.NewService(rt.repo, bootstrap.NewGateway(cfg), rt.publisher, bootstrap.ServiceConfig(cfg))
	}
	return rt, nil
}

// printResult writes v as indented JSON when --json is set, otherwise it calls text.
func printResult(w io.Writer, v interface{}, text func(io.Writer)) error {
	if jsonOutput {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	text(w)
	return nil
}
