package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"syscall"
	"time"

	"resumable-upload/uploadclient"

	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/bmatcuk/doublestar/v4"
	"github.com/docker/go-units"
	"github.com/schollz/progressbar/v3"
)

var (
	serverURL   string
	chunkSize   string
	concurrency int
	retries     int
	backoff     time.Duration
	stateDir    string
	verbose     bool
)

func init() {
	defaults := uploadclient.DefaultConfig()
	flag.StringVar(&serverURL, "server", "http://localhost:7282", "Upload service base URL")
	flag.StringVar(&chunkSize, "chunk-size", "5MiB", "Chunk size, e.g. 5MiB")
	flag.IntVar(&concurrency, "concurrency", defaults.MaxConcurrency, "Chunk uploads in flight")
	flag.IntVar(&retries, "retries", defaults.MaxRetries, "Retries per chunk")
	flag.DurationVar(&backoff, "backoff", defaults.BaseBackoff, "First retry delay")
	flag.StringVar(&stateDir, "state-dir", defaultStateDir(), "Directory for resume snapshots")
	flag.BoolVar(&verbose, "v", false, "Debug logging")
}

func defaultStateDir() string {
	if dir, err := os.UserCacheDir(); err == nil {
		return filepath.Join(dir, "upload-client")
	}
	return ".upload-client"
}

func main() {
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [flags] <glob>...\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	logger := log.NewLogger()
	logger.EnableDebugLog(verbose)

	size, err := units.RAMInBytes(chunkSize)
	if err != nil {
		logger.Errorf("Invalid -chunk-size %q: %v", chunkSize, err)
		os.Exit(2)
	}

	cfg := uploadclient.DefaultConfig()
	cfg.ChunkSize = size
	cfg.MaxConcurrency = concurrency
	cfg.MaxRetries = retries
	cfg.BaseBackoff = backoff
	if err := cfg.Validate(); err != nil {
		logger.Errorf("Invalid configuration: %v", err)
		os.Exit(2)
	}

	files, err := expandPatterns(flag.Args())
	if err != nil {
		logger.Errorf("%v", err)
		os.Exit(2)
	}
	if len(files) == 0 {
		logger.Warnf("No files matched")
		os.Exit(1)
	}

	store, err := uploadclient.NewFileSnapshotStore(stateDir)
	if err != nil {
		logger.Errorf("%v", err)
		os.Exit(1)
	}
	transport := uploadclient.NewHTTPTransport(serverURL, logger)

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	failed := 0
	for _, path := range files {
		if ctx.Err() != nil {
			break
		}
		if err := uploadFile(ctx, stop, cfg, transport, store, logger, path); err != nil {
			logger.Errorf("%s: %v", path, err)
			failed++
		}
	}
	if failed > 0 || ctx.Err() != nil {
		os.Exit(1)
	}
}

// expandPatterns resolves ** globs, returning regular files in a stable order
func expandPatterns(patterns []string) ([]string, error) {
	seen := map[string]bool{}
	var files []string
	for _, pattern := range patterns {
		base, rel := doublestar.SplitPattern(filepath.ToSlash(pattern))
		matches, err := doublestar.Glob(os.DirFS(base), rel)
		if err != nil {
			return nil, fmt.Errorf("invalid pattern %q: %w", pattern, err)
		}
		for _, match := range matches {
			path := filepath.Join(base, filepath.FromSlash(match))
			info, err := os.Stat(path)
			if err != nil || !info.Mode().IsRegular() || seen[path] {
				continue
			}
			seen[path] = true
			files = append(files, path)
		}
	}
	sort.Strings(files)
	return files, nil
}

func uploadFile(ctx context.Context, stop context.CancelFunc, cfg uploadclient.Config, transport uploadclient.Transport,
	store uploadclient.SnapshotStore, logger log.Logger, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return err
	}
	info := uploadclient.FileInfo{Name: filepath.Base(path), Size: stat.Size(), ModTime: stat.ModTime()}

	scheduler, err := uploadclient.NewScheduler(cfg, transport, f, info,
		uploadclient.WithSnapshotStore(store), uploadclient.WithLogger(logger))
	if err != nil {
		return err
	}

	logger.Infof("Uploading %s (%s)", path, units.HumanSizeWithPrecision(float64(info.Size), 3))

	bar := progressbar.NewOptions64(info.Size,
		progressbar.OptionSetDescription(info.Name),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowBytes(true),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetRenderBlankState(true),
		progressbar.OptionSetWriter(os.Stderr),
	)

	done := make(chan struct{})
	defer close(done)
	go watchSignals(done, scheduler, stop, logger)
	go renderProgress(done, scheduler, bar)

	result, err := scheduler.Run(ctx)
	if err != nil {
		_ = bar.Exit()
		return err
	}
	_ = bar.Finish()

	logger.Donef("%s uploaded in %s", path, result.Duration.Round(time.Millisecond))
	logger.Printf("  session: %s", result.SessionID)
	logger.Printf("  sha256:  %s", result.Hash)
	if len(result.ContentListing) > 0 {
		logger.Printf("  entries: %v", result.ContentListing)
	}
	return nil
}

func renderProgress(done <-chan struct{}, scheduler *uploadclient.Scheduler, bar *progressbar.ProgressBar) {
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			p := scheduler.Progress()
			_ = bar.Set64(p.BytesDone)
			desc := fmt.Sprintf("%s %d/%d chunks", p.State, p.CompletedChunks, p.TotalChunks)
			if p.Speed > 0 {
				desc += fmt.Sprintf(" %s ETA %s", uploadclient.FormatSpeed(p.Speed), p.ETA.Round(time.Second))
			}
			bar.Describe(desc)
		}
	}
}

// watchSignals pauses on the first interrupt and stops once in-flight chunks drain, keeping
// the snapshot for a later resume. A second interrupt stops immediately.
func watchSignals(done <-chan struct{}, scheduler *uploadclient.Scheduler, stop context.CancelFunc, logger log.Logger) {
	sigChan := make(chan os.Signal, 2)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case <-done:
		return
	case <-sigChan:
	}

	logger.Warnf("Interrupted, waiting for in-flight chunks (interrupt again to stop now)")
	scheduler.Pause()

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	deadline := time.After(30 * time.Second)
	for {
		select {
		case <-done:
			return
		case <-sigChan:
			stop()
			return
		case <-deadline:
			stop()
			return
		case <-ticker.C:
			if scheduler.Progress().InFlight == 0 {
				stop()
				return
			}
		}
	}
}
