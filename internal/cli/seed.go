package cli

import (
	"errors"
	"log/slog"
	"os"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/spf13/cobra"

	"trivia-quiz-service/internal/domain"
	pgstore "trivia-quiz-service/internal/infra/postgres"
	"trivia-quiz-service/internal/seed"
)

// NewSeedCmd loads a YAML question bank into Postgres.
func NewSeedCmd(configPath *string) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load categories, questions and players from a YAML file into Postgres",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := loadConfig(*configPath, os.Stderr)
			if err != nil {
				return err
			}
			if file == "" {
				file = cfg.Quiz.Seed
			}
			bank, err := seed.Load(file)
			if err != nil {
				return err
			}
			if err := runMigrationsWithConfig(ctx, cfg); err != nil {
				return err
			}

			pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
			if err != nil {
				return err
			}
			defer pool.Close()

			if err := pgstore.NewQuestionBank(pool).Import(ctx, bank.Categories, bank.Questions); err != nil {
				return err
			}
			players := pgstore.NewPlayerStore(pool)
			for _, p := range bank.Players {
				if _, err := players.CreatePlayer(ctx, p.Username); err != nil && !errors.Is(err, domain.ErrUsernameTaken) {
					return err
				}
			}
			slog.Info("seed loaded",
				"file", file,
				"categories", len(bank.Categories),
				"questions", len(bank.Questions),
				"players", len(bank.Players),
			)
			return nil
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "seed file (defaults to quiz.seed)")
	return cmd
}
