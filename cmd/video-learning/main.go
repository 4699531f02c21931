package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/fpang/video-sequence-learning/internal/classifier"
	"github.com/fpang/video-sequence-learning/internal/cli"
	"github.com/fpang/video-sequence-learning/internal/config"
	"github.com/fpang/video-sequence-learning/internal/filehandler"
	"github.com/fpang/video-sequence-learning/internal/htm"
	"github.com/fpang/video-sequence-learning/internal/inputqueue"
	"github.com/fpang/video-sequence-learning/internal/logging"
	"github.com/fpang/video-sequence-learning/internal/reconstruct"
	"github.com/fpang/video-sequence-learning/internal/results"
	"github.com/fpang/video-sequence-learning/internal/s3util"
	"github.com/fpang/video-sequence-learning/internal/store"
	"github.com/fpang/video-sequence-learning/internal/training"
	"github.com/fpang/video-sequence-learning/internal/video"
)

// CLI flags
var (
	videoConfigFlag      string
	htmConfigFlag        string
	modeFlag             string
	maxCyclesFlag        int
	outputFlag           string
	topKFlag             int
	maxNewbornCyclesFlag int
	timeoutFlag          time.Duration
	interactiveFlag      bool
	pickerFlag           bool
	noUploadFlag         bool
)

// rootCmd is the main Cobra command for the video-learning CLI.
var rootCmd = &cobra.Command{
	Use:   "video-learning",
	Short: "Learn frame sequences of labelled videos and predict them back from stills",
	Long: `Video Learning decodes every video of a labelled training dataset into
binarised frames and trains a hierarchical temporal memory on them.

Training runs in two phases. The spatial stage is first fed every frame until
its output stabilizes; then every video is replayed until its next-frame
prediction accuracy saturates (the same accuracy 24 cycles in a row, at least
85%) or the cycle budget runs out.

After training, the still images listed in the video configuration are
answered with the frame sequences the memory predicts after them. With
--interactive, --picker or a Redis queue configured, further stills are read
until Q is entered or the input ends.

Optional integrations are enabled through the environment:
  VIDEO_LEARNING_S3_BUCKET      upload the run folder after training
  VIDEO_LEARNING_DYNAMO_TABLE   store accuracy records and video outcomes
  VIDEO_LEARNING_REDIS_ADDR     read stills from a Redis list

Examples:
  video-learning --video-config VideoConfig.json
  video-learning --video-config VideoConfig.json --mode sequence --max-cycles 200
  video-learning --video-config VideoConfig.json --htm-config HtmConfig.json --interactive`,
	Run: runMain,
}

func init() {
	rootCmd.Flags().StringVar(&videoConfigFlag, "video-config", "VideoConfig.json", "Video configuration file")
	rootCmd.Flags().StringVar(&htmConfigFlag, "htm-config", "", "HTM configuration file (defaults when empty)")
	rootCmd.Flags().StringVar(&modeFlag, "mode", "framekey", "Key mode: framekey or sequence")
	rootCmd.Flags().IntVar(&maxCyclesFlag, "max-cycles", 0, "Cycle budget per video (0 = mode default: framekey 10, sequence 1000)")
	rootCmd.Flags().StringVarP(&outputFlag, "output", "o", ".", "Folder the run folder is created in")
	rootCmd.Flags().IntVar(&topKFlag, "top-k", reconstruct.DefaultTopK, "Candidates reconstructed per still")
	rootCmd.Flags().IntVar(&maxNewbornCyclesFlag, "max-newborn-cycles", 0, "Stabilization cycle cap (0 = unbounded)")
	rootCmd.Flags().DurationVar(&timeoutFlag, "timeout", 0, "Overall run timeout (0 = none)")
	rootCmd.Flags().BoolVarP(&interactiveFlag, "interactive", "i", false, "Prompt for the dataset path and read stills from the terminal")
	rootCmd.Flags().BoolVar(&pickerFlag, "picker", false, "Choose stills with the native file dialog")
	rootCmd.Flags().BoolVar(&noUploadFlag, "no-upload", false, "Disable S3 and DynamoDB even when configured")

	rootCmd.AddCommand(enqueueCmd)
	rootCmd.AddCommand(reportCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// runMain is the main execution logic called by Cobra.
func runMain(cmd *cobra.Command, args []string) {
	logging.Init()

	mode, err := training.ParseMode(modeFlag)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid --mode")
	}

	videoCfg, err := config.LoadVideoConfig(videoConfigFlag)
	if err != nil {
		log.Fatal().Err(err).Str("path", videoConfigFlag).Msg("Failed to load video configuration")
	}

	var prompt func(string) string
	if interactiveFlag {
		prompt = func(fallback string) string {
			return cli.PromptForDirectory(os.Stdin, os.Stdout, fallback)
		}
	}
	videoCfg.TrainingDatasetRoot = cli.ResolveDatasetRoot(videoCfg.TrainingDatasetRoot, prompt)

	htmCfg, err := config.LoadHtmConfig(htmConfigFlag, videoCfg.InputBits())
	if err != nil {
		log.Fatal().Err(err).Str("path", htmConfigFlag).Msg("Failed to load HTM configuration")
	}

	if err := filehandler.CheckFFmpegAvailable(); err != nil {
		log.Fatal().Err(err).Msg("FFmpeg is required to decode training videos")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if timeoutFlag > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeoutFlag)
		defer cancel()
	}

	env := config.LoadEnvironment()
	if noUploadFlag {
		env.S3Bucket = ""
		env.DynamoTable = ""
	}

	if err := run(ctx, mode, videoCfg, htmCfg, env); err != nil {
		log.Fatal().Err(err).Msg("Training run failed")
	}
}

// awsClients holds the optional AWS integrations of a run.
type awsClients struct {
	s3    *s3.Client
	store *store.DynamoStore
}

func newAWSClients(ctx context.Context, env config.Environment) (*awsClients, error) {
	clients := &awsClients{}
	if !env.AWSEnabled() {
		return clients, nil
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	if env.UploadEnabled() {
		clients.s3 = s3.NewFromConfig(cfg)
	}
	if env.TableEnabled() {
		clients.store = store.NewDynamoStore(dynamodb.NewFromConfig(cfg), env.DynamoTable)
	}
	return clients, nil
}

// run executes training and reconstruction for one dataset.
func run(ctx context.Context, mode training.Mode, videoCfg config.VideoConfig, htmCfg config.HtmConfig, env config.Environment) error {
	started := time.Now()
	runID := uuid.NewString()
	layout := results.NewLayout(outputFlag, mode.String(), started)

	clients, err := newAWSClients(ctx, env)
	if err != nil {
		return err
	}

	decoder := filehandler.NewDecoder(videoCfg)
	sets, err := decoder.LoadVideoSets(ctx, videoCfg.TrainingDatasetRoot)
	if err != nil {
		return err
	}
	if len(sets) == 0 {
		return fmt.Errorf("no training videos found in %s", videoCfg.TrainingDatasetRoot)
	}
	loadDuration := time.Since(started)

	writer := results.NewWriter(results.DefaultQueueSize)
	fileSink, err := results.NewFileSink(layout, writer, mode.String())
	if err != nil {
		writer.Close()
		return err
	}
	sinks := results.MultiSink{fileSink}

	maxCycles := maxCyclesFlag
	if maxCycles <= 0 {
		maxCycles = mode.DefaultMaxCycles()
	}

	var labels []string
	videos := 0
	for _, set := range sets {
		labels = append(labels, set.Label)
		videos += len(set.Videos)
	}

	if clients.store != nil {
		if err := clients.store.PutRun(ctx, &store.Run{
			ID:        runID,
			Mode:      mode.String(),
			Status:    store.RunStatusRunning,
			Labels:    labels,
			Videos:    videos,
			MaxCycles: maxCycles,
			OutputDir: layout.Root,
			StartedAt: started.Unix(),
		}); err != nil {
			log.Warn().Err(err).Msg("Failed to record run, continuing without DynamoDB")
			clients.store = nil
		} else {
			sinks = append(sinks, store.NewSink(ctx, clients.store, runID))
		}
	}

	rl := logging.NewRunLogger(runID, mode.String()).
		OutputDir(layout.Root).
		Config("dataset", videoCfg.TrainingDatasetRoot).
		Config("frameSize", fmt.Sprintf("%dx%d", videoCfg.FrameWidth, videoCfg.FrameHeight)).
		Config("colorMode", videoCfg.ColorMode.String()).
		Config("columns", strconv.Itoa(htmCfg.NumColumns())).
		Config("cellsPerColumn", strconv.Itoa(htmCfg.CellsPerColumn)).
		Config("maxCycles", strconv.Itoa(maxCycles)).
		Feature("upload", clients.s3 != nil).
		Feature("dynamo", clients.store != nil).
		Feature("interactive", interactiveFlag).
		Feature("picker", pickerFlag).
		LoadDuration(loadDuration)
	if clients.s3 != nil {
		rl.S3Bucket("artifacts", env.S3Bucket)
	}
	if clients.store != nil {
		rl.DynamoTable("results", env.DynamoTable)
	}
	if env.QueueEnabled() {
		rl.Queue("stills", env.RedisQueue)
	}
	rl.Log()

	if err := decoder.ExportConverted(ctx, sets, layout.Converted); err != nil {
		log.Warn().Err(err).Msg("Failed to export converted videos")
	}

	layer, err := htm.NewLayer(htmCfg, htm.StabilityOptions{
		MinCycles: htm.MinCyclesFor(video.LongestFrameCount(sets)),
	})
	if err != nil {
		return err
	}
	cls := classifier.New()

	orch := training.New(layer, cls, layer.Plasticity(), sinks, training.Options{
		Mode:             mode,
		MaxCycles:        maxCycles,
		MaxNewbornCycles: maxNewbornCyclesFlag,
	})
	outcomes, runErr := orch.Run(ctx, sets)
	if runErr != nil {
		finish(ctx, writer, fileSink, clients, env, runID, layout, store.RunStatusFailed)
		return runErr
	}
	printSummary(outcomes, time.Since(started))

	snapshot := filepath.Join(layout.Root, "classifier.json.zst")
	if err := cls.SaveFile(snapshot); err != nil {
		log.Warn().Err(err).Msg("Failed to save classifier snapshot")
	}

	if err := reconstructStills(ctx, layer, cls, sets, decoder, fileSink, layout, videoCfg, env, clients); err != nil {
		finish(ctx, writer, fileSink, clients, env, runID, layout, store.RunStatusFailed)
		return err
	}

	finish(ctx, writer, fileSink, clients, env, runID, layout, store.RunStatusCompleted)
	return nil
}

// reconstructStills answers the configured test files and then the
// interactive source, if any.
func reconstructStills(ctx context.Context, layer *htm.Layer, cls *classifier.Classifier, sets []*video.VideoSet,
	decoder *filehandler.Decoder, sink *results.FileSink, layout results.Layout, videoCfg config.VideoConfig,
	env config.Environment, clients *awsClients) error {

	// Queries must not move the stability verdict of the trained layer.
	layer.SetObserving(false)

	r := reconstruct.New(reconstruct.Deps{
		Engine:     layer,
		Classifier: cls,
		Index:      video.BuildIndex(sets),
		Encoder:    decoder,
		Assembler:  decoder,
		Log:        sink,
		Layout:     layout,
	}, reconstruct.Options{TopK: topKFlag, FrameRate: firstFrameRate(sets, videoCfg)})

	var src reconstruct.UserInputSource
	switch {
	case pickerFlag:
		src = cli.NewPickerSource()
	case env.QueueEnabled():
		queue, err := inputqueue.Connect(ctx, env.RedisAddr, env.RedisQueue, env.RedisTimeout)
		if err != nil {
			log.Warn().Err(err).Msg("Redis queue unavailable, skipping queued stills")
			break
		}
		defer queue.Close()
		src = queue
	case interactiveFlag:
		src = cli.NewConsoleSource(os.Stdin, os.Stdout)
	}

	n, err := r.Run(ctx, videoCfg.TestFiles, src, stillFetcher(clients))
	log.Info().Int("stills", n).Msg("Reconstruction finished")
	return err
}

// stillFetcher downloads s3:// references when S3 is configured and treats
// everything else as a local path.
func stillFetcher(clients *awsClients) reconstruct.Fetcher {
	return func(ctx context.Context, ref string) (string, func(), error) {
		bucket, key, ok := s3util.ParseURI(ref)
		if !ok {
			return reconstruct.LocalFetcher(ctx, ref)
		}
		if clients.s3 == nil {
			return "", nil, fmt.Errorf("cannot fetch %s: S3 is not configured", ref)
		}
		return s3util.DownloadToTempFile(ctx, clients.s3, bucket, key)
	}
}

func firstFrameRate(sets []*video.VideoSet, cfg config.VideoConfig) float64 {
	if v := video.FirstVideo(sets); v != nil && v.FrameRate > 0 {
		return v.FrameRate
	}
	return cfg.FrameRate
}

// finish drains pending writes, uploads the run folder and records the
// final run status.
func finish(ctx context.Context, writer *results.Writer, sink *results.FileSink, clients *awsClients,
	env config.Environment, runID string, layout results.Layout, status string) {

	if clients.s3 != nil {
		prefix := "runs/" + runID
		if err := writer.Submit(func() error {
			_, err := s3util.UploadDirectory(ctx, clients.s3, env.S3Bucket, prefix, layout.Root)
			return err
		}); err != nil {
			log.Warn().Err(err).Msg("Failed to queue run upload")
		}
	}

	if err := writer.Close(); err != nil {
		log.Warn().Err(err).Msg("Some results were not written")
	}
	if err := sink.Close(); err != nil {
		log.Warn().Err(err).Msg("Failed to close metrics file")
	}

	if clients.store != nil {
		// The run context may already be cancelled.
		updateCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), store.DefaultWriteTimeout)
		defer cancel()
		if err := clients.store.UpdateRunStatus(updateCtx, runID, status); err != nil {
			log.Warn().Err(err).Msg("Failed to update run status")
		}
	}

	log.Info().Str("runId", runID).Str("status", status).Str("output", layout.Root).Msg("Run finished")
}

func printSummary(outcomes []training.VideoOutcome, elapsed time.Duration) {
	fmt.Println()
	fmt.Println("============================================")
	fmt.Println("Sequence Learning Summary")
	fmt.Println("============================================")
	completed := 0
	for _, o := range outcomes {
		status := "incomplete"
		if o.Completed {
			status = "saturated"
			completed++
		}
		fmt.Printf("%-16s %-24s %4d cycles  %6.2f%%  %s\n", o.Label, o.VideoName, o.Cycles, o.FinalAccuracy, status)
	}
	fmt.Println("--------------------------------------------")
	fmt.Printf("Saturated: %d/%d  Elapsed: %s\n", completed, len(outcomes), cli.FormatElapsed(elapsed))
	fmt.Println()
}
