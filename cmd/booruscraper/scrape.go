package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"booruscraper/pkg/config"
	"booruscraper/pkg/crawler"
	"booruscraper/pkg/logger"
	"booruscraper/pkg/metrics"
	"booruscraper/pkg/ui"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var (
	tagsFile      string
	datasetGroups []string
	notify        bool
)

var scrapeCmd = &cobra.Command{
	Use:   "scrape [tag...]",
	Short: "Crawl one or more tags",
	Long: `Crawl the search listing of every tag in turn and store the accepted posts.

Tags come from the arguments, --tags, named groups under "datasets" in the
configuration (--datasets), and --tags-file (one tag per line), in that
order. Each tag resumes from its checkpoint unless --force is given.`,
	Example: `  # Crawl a tag with the defaults (Danbooru, images only, full size)
  booruscraper scrape hatsune_miku

  # Sankaku, general rating only, stop after 500 posts
  booruscraper scrape hatsune_miku --site sankaku --cookies skkc_cookie.txt --rating general --limit 500

  # Every tag of the "vocaloid" dataset with videos included
  booruscraper scrape --datasets vocaloid --media with-video

  # Start over, keeping a backup of the old checkpoint
  booruscraper scrape hatsune_miku --force`,
	RunE: runScrape,
}

func init() {
	rootCmd.AddCommand(scrapeCmd)
	addScrapeFlags(scrapeCmd)
}

func addScrapeFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("site", "", "board to crawl (danbooru, sankaku)")
	f.String("base-url", "", "override the site's base URL")
	f.StringSlice("tags", nil, "tags to crawl, comma separated")
	f.StringVar(&tagsFile, "tags-file", "", "file with one tag per line")
	f.StringSliceVar(&datasetGroups, "datasets", nil, "named tag groups from the configuration")
	f.Int("limit", 0, "stop a tag after this many posts (0 = no limit)")
	f.Int("pages", 0, "stop a tag after this page number (0 = no limit)")
	f.String("media", "", "media mode (images, with-video, video-only)")
	f.StringSlice("rating", nil, "allowed ratings, comma separated")
	f.Bool("single-character", false, "keep only posts whose characters include the first tag")
	f.String("ai", "", "AI-created posts (any, exclude, only)")
	f.String("backend", "", "document fetcher (rod, chromedp, http)")
	f.Bool("headless", true, "run the browser headless")
	f.String("cookies", "", "Netscape cookie file replayed on every request")
	f.StringP("output", "o", "", "output base directory")
	f.String("dataset", "", "dataset directory name (default derived from site, tag and filters)")
	f.Bool("sample", false, "store the resized sample instead of the original file")
	f.Bool("force", false, "discard existing checkpoints after backing them up")
	f.String("metrics-addr", "", "serve Prometheus metrics on this address, e.g. :9090")
	f.BoolVar(&notify, "notify", false, "send a desktop notification when the run ends")
}

// scrapeFlags collects the flags the user actually set
func scrapeFlags(cmd *cobra.Command) map[string]interface{} {
	flags := make(map[string]interface{})
	f := cmd.Flags()
	for _, name := range []string{"site", "base-url", "media", "ai", "backend", "cookies", "output", "dataset", "metrics-addr"} {
		if f.Changed(name) {
			v, _ := f.GetString(name)
			flags[name] = v
		}
	}
	for _, name := range []string{"limit", "pages"} {
		if f.Changed(name) {
			v, _ := f.GetInt(name)
			flags[name] = v
		}
	}
	for _, name := range []string{"single-character", "headless", "sample", "force"} {
		if f.Changed(name) {
			v, _ := f.GetBool(name)
			flags[name] = v
		}
	}
	for _, name := range []string{"tags", "rating"} {
		if f.Changed(name) {
			v, _ := f.GetStringSlice(name)
			flags[name] = v
		}
	}
	return flags
}

func runScrape(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig(cmd, scrapeFlags(cmd))
	if err != nil {
		return err
	}
	tags, err := resolveTags(cfg, args, datasetGroups, tagsFile)
	if err != nil {
		return err
	}
	cfg.Crawl.Tags = tags

	runID := uuid.NewString()
	log, err := setupLogger(cfg, map[string]interface{}{
		"run_id":  runID,
		"version": version,
	})
	if err != nil {
		return err
	}

	console := ui.NewConsole(os.Stdout, quiet)
	console.Banner(version)
	console.Info("Site", cfg.Site.Name+" ("+cfg.Site.BaseURL+")")
	console.Info("Dataset", crawler.DatasetName(cfg))
	console.Info("Tags", strings.Join(tags, ", "))

	var progress *ui.ProgressDisplay
	if !quiet {
		progress = ui.NewProgressDisplay(os.Stdout, stdoutIsTerminal(), cfg.Crawl.Limit)
	}
	hooks := runHooks{
		OnTagStart: func(target crawler.Target, resumed int) {
			console.TagHeader(indexOf(tags, target.Tag)+1, len(tags), target, resumed)
			if progress != nil {
				progress.StartTag(target.Tag, resumed)
			}
		},
		OnTagDone: func(r crawler.TagResult) {
			if progress != nil {
				progress.Finish()
			}
			if r.Err != nil && r.Reason != crawler.StopCancelled {
				console.Error("Tag "+r.Tag+" failed", r.Err)
			}
		},
	}
	if progress != nil {
		hooks.OnPage = progress.Page
	}

	run, err := newCrawlRun(cfg, runID, log, hooks)
	if err != nil {
		return err
	}
	defer run.Close()

	log.InfoWithFields("Crawl starting", map[string]interface{}{
		"site":    cfg.Site.Name,
		"tags":    tags,
		"backend": cfg.Fetcher.Backend,
		"limit":   cfg.Crawl.Limit,
	})

	start := time.Now()
	var results []crawler.TagResult

	addr := cfg.Metrics.ListenAddress
	if addr != "" {
		console.Info("Metrics", "http://"+addr+"/metrics")
	}
	runErr := runWithMetrics(ctx, addr, log, func(ctx context.Context) error {
		var err error
		results, err = run.orchestrator.Run(ctx, tags)
		return err
	})

	files, bytes := run.store.Stats()
	console.Summary(results, files, bytes, time.Since(start))
	log.InfoWithFields("Crawl finished", map[string]interface{}{
		"files":    files,
		"bytes":    bytes,
		"retries":  run.supervisor.Retries(),
		"restarts": run.supervisor.Restarts(),
		"duration": time.Since(start),
	})

	if notify {
		failed, accepted := 0, 0
		for _, r := range results {
			accepted += r.NewlyAccepted
			if r.Err != nil {
				failed++
			}
		}
		if err := ui.NewNotifier().RunFinished(len(results), accepted, failed); err != nil {
			log.WithError(err).Debug("Desktop notification failed")
		}
	}

	if runErr == nil {
		return nil
	}
	if errors.Is(runErr, context.Canceled) {
		console.Warning("Interrupted, progress is saved in the checkpoints")
	}
	log.WithError(runErr).Error("Crawl finished with errors")
	return errSilent
}

// resolveTags gathers tags from every source, dropping blanks and
// duplicates while keeping the first occurrence's position.
func resolveTags(cfg *config.Config, args, groups []string, file string) ([]string, error) {
	var all []string
	all = append(all, args...)
	all = append(all, cfg.Crawl.Tags...)

	for _, name := range groups {
		group, ok := cfg.Datasets[name]
		if !ok {
			return nil, fmt.Errorf("unknown dataset %q (configured: %s)", name, strings.Join(datasetNames(cfg), ", "))
		}
		all = append(all, group...)
	}
	if len(groups) == 1 && cfg.Output.Dataset == "" {
		cfg.Output.Dataset = groups[0]
	}

	if file != "" {
		fromFile, err := readTagsFile(file)
		if err != nil {
			return nil, err
		}
		all = append(all, fromFile...)
	}

	seen := make(map[string]struct{}, len(all))
	tags := make([]string, 0, len(all))
	for _, tag := range all {
		tag = strings.TrimSpace(tag)
		if tag == "" {
			continue
		}
		if _, dup := seen[tag]; dup {
			continue
		}
		seen[tag] = struct{}{}
		tags = append(tags, tag)
	}
	if len(tags) == 0 {
		return nil, errors.New("no tags given: pass them as arguments, with --tags, --datasets or --tags-file")
	}
	return tags, nil
}

// readTagsFile reads one tag per line, skipping blank lines and # comments
func readTagsFile(path string) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open tags file: %w", err)
	}
	defer file.Close()

	var tags []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		tags = append(tags, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read tags file: %w", err)
	}
	return tags, nil
}

// runWithMetrics runs crawl while the metrics endpoint is served on addr.
// The endpoint is stopped when crawl returns. A metrics server failure is
// logged and never cancels the crawl.
func runWithMetrics(ctx context.Context, addr string, log logger.Logger, crawl func(context.Context) error) error {
	metricsCtx, stopMetrics := context.WithCancel(ctx)
	defer stopMetrics()

	var g errgroup.Group
	if addr != "" {
		g.Go(func() error {
			if err := metrics.Serve(metricsCtx, addr); err != nil {
				log.WithError(err).WarnWithFields("Metrics server stopped", map[string]interface{}{
					"addr": addr,
				})
			}
			return nil
		})
	}
	g.Go(func() error {
		defer stopMetrics()
		return crawl(ctx)
	})
	return g.Wait()
}

func datasetNames(cfg *config.Config) []string {
	names := make([]string, 0, len(cfg.Datasets))
	for name := range cfg.Datasets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func indexOf(list []string, s string) int {
	for i, v := range list {
		if v == s {
			return i
		}
	}
	return -1
}
