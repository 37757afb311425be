package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/generations-connect/connect-server-go/internal/config"
	"github.com/generations-connect/connect-server-go/internal/database"
	"github.com/generations-connect/connect-server-go/internal/redis"
	"github.com/generations-connect/connect-server-go/internal/repository"
	"github.com/generations-connect/connect-server-go/internal/service"
	"github.com/generations-connect/connect-server-go/internal/sse"
)

var (
	verbose      bool
	sweepLimit   int
	sweepTimeout time.Duration
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "matchctl",
		Short:         "Operational tasks for the connect server",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			zerolog.SetGlobalLevel(zerolog.InfoLevel)
			if verbose {
				zerolog.SetGlobalLevel(zerolog.DebugLevel)
			}
		},
	}
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	sweepCmd := &cobra.Command{
		Use:   "sweep-missed",
		Short: "Mark scheduled sessions that never started as missed",
		Args:  cobra.NoArgs,
		RunE:  runSweepMissed,
	}
	sweepCmd.Flags().IntVar(&sweepLimit, "limit", config.MissedSweepBatchSize, "maximum sessions to mark")
	sweepCmd.Flags().DurationVar(&sweepTimeout, "timeout", time.Minute, "overall timeout")

	seedCmd := &cobra.Command{
		Use:   "seed-interests <file.yaml>",
		Short: "Insert or refresh the interest catalog from a YAML file",
		Args:  cobra.ExactArgs(1),
		RunE:  runSeedInterests,
	}

	root.AddCommand(sweepCmd, seedCmd)
	return root
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(cfg.IsProduction()); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func connectDB(ctx context.Context, cfg *config.Config) (*database.DB, error) {
	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	if err := db.Ping(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return db, nil
}

func runSweepMissed(cmd *cobra.Command, args []string) error {
	if sweepLimit <= 0 {
		return fmt.Errorf("--limit must be positive")
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), sweepTimeout)
	defer cancel()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	db, err := connectDB(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	// Events go through Redis so connected clients of any server instance
	// see the missed sessions.
	redisClient, err := redis.NewClient(ctx, cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	defer redisClient.Close()

	broker := sse.NewBroker(redisClient)
	defer broker.Close()

	connectionRepo := repository.NewConnectionRepository(db.DB)
	connections := service.NewConnectionService(connectionRepo, repository.NewUserRepository(db.DB), broker)
	sessions := service.NewSessionService(db, repository.NewSessionRepository(db.DB), connectionRepo, connections, broker, service.SessionConfig{
		VideoRetryWindow: cfg.VideoRetryWindow(),
		MissedGrace:      cfg.MissedSessionGrace(),
	})

	marked, err := sessions.SweepMissed(ctx, sweepLimit)
	if err != nil {
		return fmt.Errorf("sweep missed sessions: %w", err)
	}
	log.Info().Int("count", marked).Msg("marked sessions missed")
	fmt.Fprintf(cmd.OutOrStdout(), "%d session(s) marked missed\n", marked)
	return nil
}

func runSeedInterests(cmd *cobra.Command, args []string) error {
	f, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("open seed file: %w", err)
	}
	defer f.Close()

	interests, err := parseInterestSeed(f)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
	defer cancel()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	db, err := connectDB(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	repo := repository.NewInterestRepository(db.DB)
	var seeded int
	err = db.WithTx(ctx, func(tx *sqlx.Tx) error {
		seeded, err = seedInterests(ctx, repo.WithTx(tx), interests)
		return err
	})
	if err != nil {
		return err
	}

	log.Info().Int("count", seeded).Str("file", args[0]).Msg("interest catalog seeded")
	fmt.Fprintf(cmd.OutOrStdout(), "%d interest(s) seeded\n", seeded)
	return nil
}
