// Command chainproof runs the tamper-evident audit ledger.
//
//	chainproof serve    - start the admin API
//	chainproof verify   - run a full-chain integrity scan and print the report
//	chainproof append   - append a single event (operational tooling)
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/spf13/cobra"

	"github.com/chainproof-io/chainproof/internal/app/httpapi"
	"github.com/chainproof-io/chainproof/internal/chain"
	"github.com/chainproof-io/chainproof/internal/domain"
	infra_config "github.com/chainproof-io/chainproof/internal/infra/config"
	"github.com/chainproof-io/chainproof/internal/infra/persistence"
	"github.com/chainproof-io/chainproof/internal/infra/secrets"
	"github.com/chainproof-io/chainproof/internal/signing"
)

const shutdownTimeout = 10 * time.Second

type deps struct {
	cfg      *infra_config.Config
	logger   *slog.Logger
	store    domain.ChainStore
	appender *chain.Appender
	verifier *chain.Verifier
}

func buildSigner(ctx context.Context, cfg *infra_config.Config) (domain.Signer, error) {
	switch cfg.Signing.Provider {
	case "aws_kms":
		awsCfg, err := loadAWSConfig(ctx, cfg.Signing.AWSRegion)
		if err != nil {
			return nil, err
		}
		return signing.NewKMSSigner(awsCfg, cfg.Signing.KMSKeyARN), nil
	default:
		var provider domain.SecretProvider
		if cfg.Signing.KeySource == "parameter_store" {
			awsCfg, err := loadAWSConfig(ctx, cfg.Signing.AWSRegion)
			if err != nil {
				return nil, err
			}
			provider = secrets.NewParameterStore(awsCfg)
		} else {
			provider = secrets.NewEnvProvider()
		}
		return signing.LoadHMACSigner(ctx, provider, cfg.Signing.KeyName)
	}
}

func loadAWSConfig(ctx context.Context, region string) (aws.Config, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	return awsconfig.LoadDefaultConfig(ctx, opts...)
}

func setup(ctx context.Context, configPath string) (*deps, func(), error) {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	cfg, err := infra_config.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	pool, err := persistence.NewConnectionPool(ctx, cfg.Database, cfg.Server)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	store := persistence.NewPostgresChainStore(pool, logger)

	signer, err := buildSigner(ctx, cfg)
	if err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("failed to build signer: %w", err)
	}

	d := &deps{
		cfg:    cfg,
		logger: logger,
		store:  store,
		appender: chain.NewAppender(store, signer, logger, chain.AppenderConfig{
			MaxAttempts:    cfg.Chain.MaxAttempts,
			InitialBackoff: cfg.Chain.InitialBackoff,
			MaxBackoff:     cfg.Chain.MaxBackoff,
		}),
		verifier: chain.NewVerifier(store, signer, logger),
	}
	return d, pool.Close, nil
}

func newServeCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the audit chain admin API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			d, closer, err := setup(ctx, *configPath)
			if err != nil {
				return err
			}
			defer closer()

			srv := httpapi.New(d.cfg, d.appender, d.verifier, d.store, d.logger)

			errCh := make(chan error, 1)
			go func() { errCh <- srv.Start() }()

			signalChan := make(chan os.Signal, 1)
			signal.Notify(signalChan, syscall.SIGINT, syscall.SIGTERM)

			select {
			case s := <-signalChan:
				d.logger.Info("received shutdown signal", slog.String("signal", s.String()))
			case err := <-errCh:
				return err
			}

			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer shutdownCancel()
			return srv.Shutdown(shutdownCtx)
		},
	}
}

func newVerifyCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Verify the integrity of the full audit chain",
		RunE: func(cmd *cobra.Command, _ []string) error {
			d, closer, err := setup(cmd.Context(), *configPath)
			if err != nil {
				return err
			}

			report, err := d.verifier.Verify(cmd.Context())
			if err != nil {
				closer()
				return err
			}

			out, err := json.MarshalIndent(report, "", "  ")
			if err != nil {
				closer()
				return err
			}
			fmt.Println(string(out))
			closer()

			if !report.Valid {
				// Distinguish corruption from operational failure for scripts.
				os.Exit(2)
			}
			return nil
		},
	}
}

func newAppendCmd(configPath *string) *cobra.Command {
	var (
		action     string
		category   string
		actorID    string
		targetID   string
		targetType string
		ipAddress  string
		metaPairs  []string
	)

	cmd := &cobra.Command{
		Use:   "append",
		Short: "Append a single audit event to the chain",
		RunE: func(cmd *cobra.Command, _ []string) error {
			d, closer, err := setup(cmd.Context(), *configPath)
			if err != nil {
				return err
			}
			defer closer()

			ev := &domain.AuditEvent{
				Action:   action,
				Category: domain.Category(category),
			}
			if actorID != "" {
				ev.ActorID = &actorID
			}
			if targetID != "" {
				ev.TargetID = &targetID
			}
			if targetType != "" {
				ev.TargetType = &targetType
			}
			if ipAddress != "" {
				ev.IPAddress = &ipAddress
			}
			if len(metaPairs) > 0 {
				ev.Metadata = make(map[string]any, len(metaPairs))
				for _, pair := range metaPairs {
					k, v, ok := strings.Cut(pair, "=")
					if !ok {
						return fmt.Errorf("invalid --meta %q, expected key=value", pair)
					}
					ev.Metadata[k] = v
				}
			}

			entry, err := d.appender.Append(cmd.Context(), ev)
			if err != nil {
				return err
			}

			out, err := json.MarshalIndent(entry, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			return nil
		},
	}

	cmd.Flags().StringVar(&action, "action", "", "action identifier (required)")
	cmd.Flags().StringVar(&category, "category", "system", "event category")
	cmd.Flags().StringVar(&actorID, "actor", "", "actor identifier")
	cmd.Flags().StringVar(&targetID, "target", "", "target identifier")
	cmd.Flags().StringVar(&targetType, "target-type", "", "target entity type")
	cmd.Flags().StringVar(&ipAddress, "ip", "", "originating IP address")
	cmd.Flags().StringArrayVar(&metaPairs, "meta", nil, "metadata key=value (repeatable)")
	_ = cmd.MarkFlagRequired("action")

	return cmd
}

func main() {
	var configPath string

	root := &cobra.Command{
		Use:           "chainproof",
		Short:         "Tamper-evident, hash-chained audit ledger",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", os.Getenv("CHAINPROOF_CONFIG_PATH"), "path to config file")

	root.AddCommand(newServeCmd(&configPath))
	root.AddCommand(newVerifyCmd(&configPath))
	root.AddCommand(newAppendCmd(&configPath))

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
