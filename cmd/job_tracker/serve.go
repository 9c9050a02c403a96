package main

import (
	"github.com/spf13/cobra"

	"github.com/jonathan/job-tracker/internal/pipeline"
	"github.com/jonathan/job-tracker/internal/server"
	"github.com/jonathan/job-tracker/internal/server/ratelimit"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	Long: "Serves listing dedup, URL lookup and experience ranking over HTTP. " +
		"Rate limits are read from RATE_LIMIT_* environment variables.",
	RunE: runServe,
}

var servePort int

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 8080, "Port to listen on")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	a, err := newApp(ctx, appNeeds{db: true, index: true, provider: true})
	if err != nil {
		return err
	}
	defer a.close()

	engine := a.dedupEngine(a.db)
	deduplicator := pipeline.NewDeduplicator(engine, a.db, a.provider, pipeline.Options{
		Concurrency: a.cfg.Pipeline.Concurrency,
	}, a.logger)

	srv := server.New(server.Config{Port: servePort}, server.Deps{
		Deduplicator: deduplicator,
		URLChecker:   engine,
		Ranker:       a.rankingEngine(),
		Provider:     a.provider,
		RateLimiter:  ratelimit.NewLimiter(ratelimit.LoadConfig()),
		Logger:       a.logger,
	})
	return srv.Start(ctx)
}
