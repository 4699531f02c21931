package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/fpang/video-sequence-learning/internal/classifier"
	"github.com/fpang/video-sequence-learning/internal/config"
	"github.com/fpang/video-sequence-learning/internal/logging"
	"github.com/fpang/video-sequence-learning/internal/store"
	"github.com/fpang/video-sequence-learning/internal/video"
)

var (
	reportRunIDFlag      string
	reportClassifierFlag string
	reportHistoryFlag    bool
)

// reportCmd summarises a finished run from its stored records and its
// classifier snapshot.
var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Summarise a finished training run",
	Long: `Report prints what a training run learned.

With --classifier, the classifier.json.zst snapshot from a run folder is
loaded and its learned keys are counted per label. With --run-id, the run
metadata and per-video outcomes are read from the DynamoDB table named by
VIDEO_LEARNING_DYNAMO_TABLE; --history adds the accuracy of every cycle.

Examples:
  video-learning report --classifier runs/FrameKey_2026-10-17/classifier.json.zst
  video-learning report --run-id 3f1c... --history`,
	Run: runReport,
}

func init() {
	reportCmd.Flags().StringVar(&reportRunIDFlag, "run-id", "", "Run ID to read from DynamoDB")
	reportCmd.Flags().StringVar(&reportClassifierFlag, "classifier", "", "Classifier snapshot to summarise")
	reportCmd.Flags().BoolVar(&reportHistoryFlag, "history", false, "Include per-cycle accuracy")
}

func runReport(cmd *cobra.Command, args []string) {
	logging.Init()

	if reportRunIDFlag == "" && reportClassifierFlag == "" {
		log.Fatal().Msg("Nothing to report: pass --run-id, --classifier or both")
	}

	if reportClassifierFlag != "" {
		cls, err := classifier.LoadFile(reportClassifierFlag)
		if err != nil {
			log.Fatal().Err(err).Str("path", reportClassifierFlag).Msg("Failed to load classifier snapshot")
		}
		printClassifierSummary(os.Stdout, cls.Keys())
	}

	if reportRunIDFlag == "" {
		return
	}

	env := config.LoadEnvironment()
	if !env.TableEnabled() {
		log.Fatal().Str("env", config.EnvDynamoTable).Msg("DynamoDB table not configured")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	clients, err := newAWSClients(ctx, env)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create AWS clients")
	}
	report, err := store.BuildReport(ctx, clients.store, reportRunIDFlag, reportHistoryFlag)
	if err != nil {
		log.Fatal().Err(err).Str("runId", reportRunIDFlag).Msg("Failed to read run")
	}
	printRunReport(os.Stdout, report)
}

// labelCounts counts learned keys per label, sorted by label.
func labelCounts(keys []string) ([]string, map[string]int) {
	counts := make(map[string]int)
	for _, k := range keys {
		counts[video.LabelFromKey(k)]++
	}
	labels := make([]string, 0, len(counts))
	for l := range counts {
		labels = append(labels, l)
	}
	sort.Strings(labels)
	return labels, counts
}

func printClassifierSummary(w io.Writer, keys []string) {
	labels, counts := labelCounts(keys)
	fmt.Fprintf(w, "Classifier: %d keys\n", len(keys))
	for _, l := range labels {
		fmt.Fprintf(w, "  %-16s %6d\n", l, counts[l])
	}
}

func printRunReport(w io.Writer, r *store.Report) {
	fmt.Fprintf(w, "Run %s  mode=%s  status=%s  videos=%d\n", r.Run.ID, r.Run.Mode, r.Run.Status, r.Run.Videos)
	for _, v := range r.Videos {
		o := v.Outcome
		status := "incomplete"
		if o.Completed {
			status = "saturated"
		}
		fmt.Fprintf(w, "%-16s %-24s %4d cycles  %6.2f%%  %s\n", o.Label, o.VideoName, o.Cycles, o.FinalAccuracy, status)
		for _, a := range v.Accuracy {
			fmt.Fprintf(w, "    cycle %4d  %3d/%-3d  %6.2f%%\n", a.Cycle, a.Matches, a.Comparisons, a.Accuracy)
		}
	}
	fmt.Fprintf(w, "Saturated: %d/%d\n", r.Saturated(), len(r.Videos))
}
