package main

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/fpang/video-sequence-learning/internal/config"
	"github.com/fpang/video-sequence-learning/internal/inputqueue"
	"github.com/fpang/video-sequence-learning/internal/logging"
)

// enqueueCmd pushes still references onto the Redis queue a running
// training run reads from.
var enqueueCmd = &cobra.Command{
	Use:   "enqueue PATH_OR_S3_URI...",
	Short: "Queue still images for a running reconstruction",
	Long: `Enqueue pushes local paths or s3:// URIs of still images onto the Redis list
named by VIDEO_LEARNING_REDIS_QUEUE (default "video-learning:stills") at
VIDEO_LEARNING_REDIS_ADDR. Push Q to end the reconstruction.

Examples:
  video-learning enqueue ./stills/circle.png
  video-learning enqueue s3://my-bucket/stills/circle.png Q`,
	Args: cobra.MinimumNArgs(1),
	Run:  runEnqueue,
}

func runEnqueue(cmd *cobra.Command, args []string) {
	logging.Init()

	env := config.LoadEnvironment()
	if !env.QueueEnabled() {
		log.Fatal().Str("env", config.EnvRedisAddr).Msg("Redis address not configured")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	queue, err := inputqueue.Connect(ctx, env.RedisAddr, env.RedisQueue, env.RedisTimeout)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer queue.Close()

	n, err := queue.Enqueue(ctx, args...)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to enqueue stills")
	}
	log.Info().Int("added", len(args)).Int64("queue_length", n).Str("queue", env.RedisQueue).Msg("Stills queued")
}
