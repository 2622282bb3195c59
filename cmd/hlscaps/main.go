package main

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"path"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/heyjunin/hlscaps/pkg/config"
	"github.com/heyjunin/hlscaps/pkg/extractor"
	"github.com/heyjunin/hlscaps/pkg/logger"
	"github.com/heyjunin/hlscaps/pkg/meetings"
	"github.com/heyjunin/hlscaps/pkg/pipeline"
	"github.com/heyjunin/hlscaps/pkg/progress"
	"github.com/heyjunin/hlscaps/pkg/store"
	"github.com/heyjunin/hlscaps/pkg/subtitles"
)

var (
	// Global options
	configPath string
	verbose    bool

	// Sampling options
	levelName string
	stride    int
	sampleCap int
	minBytes  int64

	// Output options
	outputDir  string
	scratchDir string
	force      bool

	// Extraction options
	directStream bool
	language     string
	ffmpegBinary string
	ytdlpBinary  string
	skipFailed   bool

	// Extract command
	manifestURL string
	meetingID   string

	// Batch command
	catalogPath    string
	progressDBPath string
)

func main() {
	// Load .env if present; real environment variables win
	_ = godotenv.Load()

	// Initialize logger
	logger.Init()

	// Create root command
	rootCmd := &cobra.Command{
		Use:   "hlscaps",
		Short: "hlscaps - caption extraction for HLS meeting recordings",
		Long: `hlscaps samples segments from HLS meeting recordings and extracts embedded
captions into SRT files. It resolves master or media playlists, fetches a
deterministic sample of segments, and tries a chain of extraction strategies
(closed-caption demux, subtitle remux, subtitle transcode, yt-dlp) until one
produces a usable caption file.`,
	}

	// Global flags
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	// Sampling flags
	rootCmd.PersistentFlags().StringVarP(&levelName, "level", "l", "", "Sampling level: probe, sample or full")
	rootCmd.PersistentFlags().IntVar(&stride, "stride", 0, "Keep every Nth segment (overrides the level)")
	rootCmd.PersistentFlags().IntVar(&sampleCap, "cap", 0, "Maximum segments to fetch (overrides the level)")
	rootCmd.PersistentFlags().Int64Var(&minBytes, "min-bytes", 0, "Minimum caption file size in bytes (overrides the level)")

	// Output flags
	rootCmd.PersistentFlags().StringVarP(&outputDir, "out", "o", "", "Output directory for caption files")
	rootCmd.PersistentFlags().StringVar(&scratchDir, "scratch", "", "Scratch directory for segment downloads")
	rootCmd.PersistentFlags().BoolVar(&force, "force", false, "Reprocess meetings that already have captions")

	// Extraction flags
	rootCmd.PersistentFlags().BoolVar(&directStream, "direct", false, "Run strategies against the manifest URL without downloading segments")
	rootCmd.PersistentFlags().StringVar(&language, "lang", "", "Preferred subtitle track language")
	rootCmd.PersistentFlags().StringVar(&ffmpegBinary, "ffmpeg", "", "Path to ffmpeg binary")
	rootCmd.PersistentFlags().StringVar(&ytdlpBinary, "ytdlp", "", "Path to yt-dlp binary")
	rootCmd.PersistentFlags().BoolVar(&skipFailed, "skip-failed", false, "Continue past failed segments (sampled runs only)")

	// extract: one meeting by URL
	extractCmd := &cobra.Command{
		Use:   "extract",
		Short: "Extract captions for a single meeting",
		Run:   runExtract,
	}
	extractCmd.Flags().StringVarP(&manifestURL, "url", "u", "", "HLS manifest URL (required)")
	extractCmd.Flags().StringVar(&meetingID, "id", "", "Meeting ID (derived from the URL when empty)")
	extractCmd.MarkFlagRequired("url")

	// batch: every meeting in a catalog
	batchCmd := &cobra.Command{
		Use:   "batch",
		Short: "Extract captions for every meeting in a catalog",
		Run:   runBatch,
	}
	batchCmd.Flags().StringVar(&catalogPath, "catalog", "", "Meeting catalog JSON file")
	batchCmd.Flags().StringVar(&progressDBPath, "progress-db", "", "SQLite progress database path")

	rootCmd.AddCommand(extractCmd)
	rootCmd.AddCommand(batchCmd)

	// Execute command
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

// signalContext returns a context canceled on SIGINT/SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		sig := <-signalChan
		logger.Info("Received signal, shutting down", "main", map[string]interface{}{
			"signal": sig.String(),
		})
		cancel()
	}()

	return ctx, cancel
}

// loadConfig resolves the effective configuration: config file when found,
// defaults otherwise, explicit flags on top.
func loadConfig(cmd *cobra.Command) *config.Config {
	var cfg *config.Config
	if path, err := config.FindConfig(configPath); err == nil {
		loaded, err := config.Load(path)
		if err != nil {
			logger.Fatal("Failed to load config", "main", map[string]interface{}{
				"path":  path,
				"error": err.Error(),
			})
		}
		cfg = loaded
	} else if configPath != "" {
		// An explicit config path must exist; silence is only for defaults.
		logger.Fatal("Config file not found", "main", map[string]interface{}{
			"path": configPath,
		})
	} else {
		cfg = config.Default()
	}

	flags := cmd.Flags()
	if flags.Changed("level") {
		cfg.Level = levelName
	}
	if flags.Changed("out") {
		cfg.OutputDir = outputDir
	}
	if flags.Changed("scratch") {
		cfg.ScratchDir = scratchDir
	}
	if flags.Changed("lang") {
		cfg.Language = language
	}
	if flags.Changed("ffmpeg") {
		cfg.FFmpeg = ffmpegBinary
	}
	if flags.Changed("ytdlp") {
		cfg.YtDlp = ytdlpBinary
	}
	if flags.Changed("skip-failed") {
		cfg.SkipFailed = skipFailed
	}
	if flags.Changed("catalog") {
		cfg.Catalog = catalogPath
	}
	if flags.Changed("progress-db") {
		cfg.ProgressDB = progressDBPath
	}
	if verbose {
		cfg.LogLevel = "debug"
	}
	logger.SetLevel(logger.ParseLevel(cfg.LogLevel))

	return cfg
}

// buildPipeline assembles the strategy chain and pipeline from the effective
// configuration.
func buildPipeline(cmd *cobra.Command, cfg *config.Config, reporter progress.Reporter) (*pipeline.Pipeline, error) {
	lvl, err := cfg.LevelPolicy(cfg.Level)
	if err != nil {
		return nil, err
	}

	policy := lvl.Policy()
	minCaptionBytes := lvl.MinCaptionBytes
	flags := cmd.Flags()
	if flags.Changed("stride") {
		policy.Stride = stride
	}
	if flags.Changed("cap") {
		policy.Cap = sampleCap
	}
	if flags.Changed("min-bytes") {
		minCaptionBytes = minBytes
	}

	remuxBudget := time.Duration(cfg.RemuxTimeoutSec) * time.Second
	bulkBudget := time.Duration(cfg.BulkTimeoutSec) * time.Second
	ffmpegTool := extractor.Tool{Binary: cfg.FFmpeg}
	ytdlpTool := extractor.Tool{Binary: cfg.YtDlp}

	strategies := []extractor.Strategy{
		extractor.NewClosedCaptionDemux(ffmpegTool, bulkBudget),
		extractor.NewSubtitleRemux(ffmpegTool, remuxBudget),
		extractor.NewSubtitleConvert(ffmpegTool, remuxBudget),
		extractor.NewYtDlpSubtitles(ytdlpTool, cfg.Language, bulkBudget),
	}

	return pipeline.New(pipeline.Options{
		OutputDir:       cfg.OutputDir,
		ScratchRoot:     cfg.ScratchDir,
		Force:           force,
		Policy:          policy,
		MinCaptionBytes: minCaptionBytes,
		Language:        cfg.Language,
		DirectStream:    directStream,
		UserAgent:       cfg.UserAgent,
		FetchTimeout:    time.Duration(cfg.FetchTimeoutSec) * time.Second,
		SkipFailed:      cfg.SkipFailed,
		Strategies:      strategies,
		Progress:        reporter,
	})
}

func runExtract(cmd *cobra.Command, args []string) {
	// Set up signal handling for graceful shutdown
	ctx, cancel := signalContext()
	defer cancel()

	cfg := loadConfig(cmd)

	// Create progress reporter
	progressReporter := progress.NewReporter(progress.WithDescription("Fetching segments"))

	pipe, err := buildPipeline(cmd, cfg, progressReporter)
	if err != nil {
		logger.Fatal("Failed to create pipeline", "main", map[string]interface{}{
			"error": err.Error(),
		})
		return
	}

	id := meetingID
	if id == "" {
		id = deriveMeetingID(manifestURL)
	}

	logger.Info("Starting extraction", "main", map[string]interface{}{
		"meeting": id,
		"url":     manifestURL,
		"level":   cfg.Level,
	})

	res, err := pipe.Run(ctx, meetings.Meeting{ID: id, ManifestURL: manifestURL})
	if err != nil {
		logger.Fatal("Extraction failed", "main", map[string]interface{}{
			"meeting": id,
			"error":   err.Error(),
		})
		return
	}

	absPath, _ := filepath.Abs(res.CaptionPath)
	if res.Skipped {
		logger.Info("Captions already present", "main", map[string]interface{}{
			"path": absPath,
			"size": res.ByteSize,
		})
		return
	}

	logger.Info("Extraction completed successfully", "main", map[string]interface{}{
		"path":     absPath,
		"size":     res.ByteSize,
		"cues":     res.Cues,
		"covered":  subtitles.FormatSeconds(res.LastTimestampSeconds),
		"strategy": res.Strategy,
	})
}

func runBatch(cmd *cobra.Command, args []string) {
	// Set up signal handling for graceful shutdown
	ctx, cancel := signalContext()
	defer cancel()

	cfg := loadConfig(cmd)
	if cfg.Catalog == "" {
		logger.Fatal("No meeting catalog given", "main", map[string]interface{}{
			"hint": "pass --catalog or set catalog in the config file",
		})
		return
	}

	// Batch runs share one pipeline across meetings, so no per-segment
	// progress bar; the batch logs one line per meeting instead.
	pipe, err := buildPipeline(cmd, cfg, nil)
	if err != nil {
		logger.Fatal("Failed to create pipeline", "main", map[string]interface{}{
			"error": err.Error(),
		})
		return
	}

	st, err := store.NewSQLite(cfg.ProgressDB)
	if err != nil {
		logger.Fatal("Failed to open progress database", "main", map[string]interface{}{
			"path":  cfg.ProgressDB,
			"error": err.Error(),
		})
		return
	}
	defer st.Close()

	batch, err := pipeline.NewBatch(pipeline.BatchOptions{
		Source:   meetings.FileSource(cfg.Catalog),
		Store:    st,
		Pipeline: pipe,
	})
	if err != nil {
		logger.Fatal("Failed to create batch runner", "main", map[string]interface{}{
			"error": err.Error(),
		})
		return
	}

	logger.Info("Starting batch", "main", map[string]interface{}{
		"catalog":     cfg.Catalog,
		"progress_db": cfg.ProgressDB,
		"level":       cfg.Level,
	})

	sum, err := batch.Run(ctx)
	if err != nil {
		logger.Fatal("Batch failed", "main", map[string]interface{}{
			"error": err.Error(),
		})
		return
	}

	fmt.Println(sum.String())
	if len(sum.Failures) > 0 {
		os.Exit(1)
	}
}

// deriveMeetingID builds a stable meeting ID from the manifest URL when the
// caller did not provide one.
func deriveMeetingID(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Sprintf("meeting-%d", time.Now().Unix())
	}

	base := strings.TrimSuffix(path.Base(u.Path), path.Ext(u.Path))
	switch strings.ToLower(base) {
	case "", ".", "/", "playlist", "index", "master", "manifest", "chunklist":
		// Generic playlist names carry no identity; the parent directory
		// usually does (e.g. /2024-01-09/playlist.m3u8).
		if dir := path.Base(path.Dir(u.Path)); dir != "" && dir != "." && dir != "/" {
			base = dir
		}
	}
	if base == "" || base == "." || base == "/" {
		return fmt.Sprintf("meeting-%d", time.Now().Unix())
	}
	return base
}
