package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/spf13/cobra"
	"nikkei-quiz-service/internal/config"
	"nikkei-quiz-service/internal/domain"
	"nikkei-quiz-service/internal/infra/file"
	"nikkei-quiz-service/internal/infra/memory"
	pgloader "nikkei-quiz-service/internal/infra/postgres"
)

// NewQuestionsCmd groups the question pool maintenance commands.
func NewQuestionsCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "questions",
		Short: "Manage the question pool",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "import <file>",
		Short: "Validate a JSON question file and add the new records to the pool",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			return importQuestions(cmd.Context(), cmd.OutOrStdout(), cfg, args[0])
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "stats",
		Short: "Print question counts per category and difficulty",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			return printPoolStats(cmd.Context(), cmd.OutOrStdout(), cfg)
		},
	})
	return cmd
}

func importQuestions(ctx context.Context, out io.Writer, cfg config.Config, path string) error {
	incoming, err := file.ReadQuestions(path)
	if err != nil {
		return err
	}

	var result file.ImportResult
	if cfg.Storage.Backend == config.BackendPostgres {
		result, err = importIntoPostgres(ctx, cfg.Postgres.URL, incoming)
	} else {
		result, err = file.NewQuestionFile(cfg.File.QuestionsPath).Append(ctx, incoming)
	}
	if err != nil {
		return err
	}

	for _, rejected := range result.Rejected {
		fmt.Fprintf(out, "rejected: %v\n", rejected)
	}
	for _, id := range result.Skipped {
		fmt.Fprintf(out, "skipped duplicate: %s\n", id)
	}
	fmt.Fprintf(out, "imported %d, skipped %d, rejected %d\n", result.Added, len(result.Skipped), len(result.Rejected))
	return nil
}

func importIntoPostgres(ctx context.Context, url string, incoming []domain.Question) (file.ImportResult, error) {
	pool, err := pgxpool.Connect(ctx, url)
	if err != nil {
		return file.ImportResult{}, fmt.Errorf("connect to postgres: %w", err)
	}
	defer pool.Close()
	loader := pgloader.NewQuestionLoader(pool)

	existing, err := loader.LoadQuestions(ctx)
	if err != nil {
		return file.ImportResult{}, err
	}
	seen := make(map[string]struct{}, len(existing))
	for _, q := range existing {
		seen[q.ID] = struct{}{}
	}

	var (
		result file.ImportResult
		fresh  []domain.Question
	)
	for i, q := range incoming {
		if err := q.Validate(); err != nil {
			result.Rejected = append(result.Rejected, fmt.Errorf("record %d: %w", i, err))
			continue
		}
		if _, dup := seen[q.ID]; dup {
			result.Skipped = append(result.Skipped, q.ID)
			continue
		}
		seen[q.ID] = struct{}{}
		fresh = append(fresh, q)
	}
	result.Added, err = loader.InsertQuestions(ctx, fresh)
	return result, err
}

func printPoolStats(ctx context.Context, out io.Writer, cfg config.Config) error {
	var loader memory.QuestionLoader = file.NewQuestionFile(cfg.File.QuestionsPath)
	if cfg.Storage.Backend == config.BackendPostgres {
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return fmt.Errorf("connect to postgres: %w", err)
		}
		defer pool.Close()
		loader = pgloader.NewQuestionLoader(pool)
	}
	questions, err := loader.LoadQuestions(ctx)
	if err != nil {
		return err
	}
	writeSummary(out, domain.Summarize(questions))
	return nil
}

func writeSummary(out io.Writer, summary domain.PoolSummary) {
	fmt.Fprintf(out, "total: %d\n", summary.Total)
	fmt.Fprintln(out, "categories:")
	for _, c := range domain.Categories {
		fmt.Fprintf(out, "  %s: %d\n", c, summary.Categories[c])
	}
	fmt.Fprintln(out, "difficulties:")
	for _, d := range domain.Difficulties {
		fmt.Fprintf(out, "  %s: %d\n", d, summary.Difficulties[d])
	}
}
