package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"kick-haven/internal/config"
	"kick-haven/internal/logging"
	"kick-haven/simulator"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to load configuration")
	}
	logging.Init(logging.Config{Level: cfg.Log.Level, Format: "console", Output: os.Stderr})

	simCfg := simulator.SimConfig{JWTSecret: cfg.Auth.JWTSecret}
	flag.StringVar(&simCfg.EngineURL, "url", fmt.Sprintf("http://localhost:%d", cfg.Server.Port), "server base URL")
	flag.IntVar(&simCfg.NumUsers, "users", 10, "number of simulated users")
	flag.IntVar(&simCfg.NumPosts, "posts", 5, "number of posts to contend over")
	flag.DurationVar(&simCfg.SimulationTime, "duration", time.Minute, "how long to generate load")
	flag.Float64Var(&simCfg.VoteRate, "vote-rate", 20, "votes per second")
	flag.Float64Var(&simCfg.CommentRate, "comment-rate", 5, "comment actions per second")
	flag.Float64Var(&simCfg.DeleteRate, "delete-rate", 0.2, "share of comment actions that delete")
	flag.IntVar(&simCfg.Workers, "workers", 8, "concurrent workers per action")
	flag.Float64Var(&simCfg.ZipfS, "zipf", 1.07, "post popularity skew")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logging.Info().
		Str("url", simCfg.EngineURL).
		Int("users", simCfg.NumUsers).
		Int("posts", simCfg.NumPosts).
		Dur("duration", simCfg.SimulationTime).
		Float64("vote_rate", simCfg.VoteRate).
		Float64("comment_rate", simCfg.CommentRate).
		Msg("starting simulation")

	sim := simulator.NewSimulator(simCfg)
	report, err := sim.Run(ctx)
	if err != nil {
		logging.Fatal().Err(err).Msg("simulation failed")
	}

	m := sim.GetMetrics()
	logging.Info().
		Int64("requests", m.TotalRequests).
		Int64("failed", m.FailedRequests).
		Int64("conflicts", m.Conflicts).
		Int64("rate_limited", m.RateLimited).
		Int("votes", m.TotalVotes).
		Int("comments", m.TotalComments).
		Int("deleted_comments", m.DeletedComments).
		Dur("avg_latency", m.AverageLatency).
		Msg("simulation completed")

	if !report.OK() {
		for _, mismatch := range report.Mismatches {
			logging.Error().Str("mismatch", mismatch).Msg("counter drift")
		}
		os.Exit(1)
	}
	logging.Info().Int("posts", report.PostsChecked).Msg("all counters consistent")
}
