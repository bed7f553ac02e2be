// Package daemon wires the pipeline together and runs its periodic loops.
// One Daemon owns the store, the skill library, every agent, the media
// queue, the budget governor, and the scheduler; nothing else holds
// cross-component references.
package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	prom "github.com/prometheus/client_golang/prometheus"

	"git.home.luguber.info/inful/contentpipe/internal/analyst"
	"git.home.luguber.info/inful/contentpipe/internal/approval"
	"git.home.luguber.info/inful/contentpipe/internal/budget"
	"git.home.luguber.info/inful/contentpipe/internal/config"
	"git.home.luguber.info/inful/contentpipe/internal/creator"
	pipeerrors "git.home.luguber.info/inful/contentpipe/internal/errors"
	"git.home.luguber.info/inful/contentpipe/internal/events"
	"git.home.luguber.info/inful/contentpipe/internal/experiment"
	"git.home.luguber.info/inful/contentpipe/internal/feedback"
	"git.home.luguber.info/inful/contentpipe/internal/health"
	"git.home.luguber.info/inful/contentpipe/internal/llm"
	"git.home.luguber.info/inful/contentpipe/internal/media"
	"git.home.luguber.info/inful/contentpipe/internal/metrics"
	"git.home.luguber.info/inful/contentpipe/internal/outcome"
	"git.home.luguber.info/inful/contentpipe/internal/pipeline"
	"git.home.luguber.info/inful/contentpipe/internal/publisher"
	"git.home.luguber.info/inful/contentpipe/internal/quality"
	"git.home.luguber.info/inful/contentpipe/internal/scout"
	"git.home.luguber.info/inful/contentpipe/internal/skills"
	"git.home.luguber.info/inful/contentpipe/internal/sources"
	"git.home.luguber.info/inful/contentpipe/internal/store"
	"git.home.luguber.info/inful/contentpipe/internal/tracker"
)

// Stage interfaces cover exactly what the loop bodies call, so tests can
// substitute fakes without a database or network.

type scoutStage interface {
	Run(ctx context.Context) (*scout.Summary, error)
}

type analystStage interface {
	Run(ctx context.Context) (*analyst.Summary, error)
}

type creatorStage interface {
	Run(ctx context.Context, limit int) (*creator.Summary, error)
}

type publishStage interface {
	Run(ctx context.Context, limit int) (*publisher.Summary, error)
}

type trackerStage interface {
	CollectDue(ctx context.Context) (*tracker.Summary, error)
	EngagementSweep(ctx context.Context) (int, error)
}

type feedbackStage interface {
	Run(ctx context.Context) (*feedback.Summary, error)
	WeeklyReview(ctx context.Context) (*feedback.Report, error)
}

type governor interface {
	ModeFor(ctx context.Context) (budget.Mode, error)
	Current() budget.Mode
}

type outcomeDrainer interface {
	Drain() int
}

// Daemon is the long-running pipeline process.
type Daemon struct {
	cfg      *config.Config
	logger   *slog.Logger
	recorder metrics.Recorder

	store   *store.Store
	library *skills.Library
	watcher *skills.Watcher
	health  *health.Registry
	avoid   *feedback.AvoidCache
	emitter *events.Emitter

	scout     scoutStage
	analyst   analystStage
	creator   creatorStage
	publisher publishStage
	tracker   trackerStage
	feedback  feedbackStage

	approvals   *approval.Queue
	experiments *experiment.Engine
	governor    governor
	bus         outcomeDrainer
	mediaQueue  *media.Queue

	scheduler  gocron.Scheduler
	metricsSrv *http.Server

	mu       sync.Mutex
	started  bool
	lastMode budget.Mode
}

// New opens the store and wires every component. Nothing starts running
// until Start.
func New(cfg *config.Config, logger *slog.Logger) (*Daemon, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var recorder metrics.Recorder = metrics.NoopRecorder{}
	var metricsSrv *http.Server
	if cfg.MetricsAddr != "" {
		reg := prom.NewRegistry()
		recorder = metrics.NewPrometheusRecorder(reg)
		metricsSrv = &http.Server{Addr: cfg.MetricsAddr, Handler: metrics.HTTPHandler(reg)}
	}

	st, err := store.Open(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	library := skills.NewLibrary(cfg.SkillsDir, st, logger)
	if cfg.SkillsGitArchive {
		archiver, err := skills.NewGitArchiver(cfg.SkillsDir)
		if err != nil {
			st.Close()
			return nil, fmt.Errorf("open skill archive: %w", err)
		}
		library.WithArchiver(archiver)
	}
	watcher, err := skills.NewWatcher(library, logger)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("create skill watcher: %w", err)
	}

	emitter, err := events.Connect(cfg.NATSURL, cfg.NATSSubject, logger)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("connect events emitter: %w", err)
	}

	specs, err := config.LoadSources(cfg.SourcesFile)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("load sources: %w", err)
	}
	adapters, err := sources.Build(specs, cfg.FetchTimeout)
	if err != nil {
		st.Close()
		return nil, err
	}

	client := llm.NewHTTPClient(cfg.LLMBaseURL, cfg.LLMAPIKey, cfg.LLMModel, cfg.LLMMaxTokens, cfg.LLMTimeout)
	runner := llm.NewRunner(client, st, recorder,
		llm.Pricing{InPer1K: cfg.LLMCostInPer1K, OutPer1K: cfg.LLMCostOutPer1K},
		cfg.LLMTimeout, "openai")

	bus := outcome.NewBus(st, library, recorder, logger)
	healthReg := health.NewRegistry()
	gov := budget.New(st, cfg.DailyCostLimitUSD, recorder, logger)
	avoid := feedback.NewAvoidCache()

	var images media.ImageProvider
	if cfg.ImageAPIKey != "" {
		images = media.NewHTTPImageProvider(cfg.ImageBaseURL, cfg.ImageAPIKey,
			cfg.ImageModel, cfg.ImageCostUSD, cfg.LLMTimeout)
	}
	var mediaQueue *media.Queue
	if cfg.VideoBaseURL != "" {
		video := media.NewHTTPVideoProvider(cfg.VideoBaseURL, cfg.VideoAPIKey, 10*time.Second)
		mediaQueue = media.NewQueue(video, st, runner, logger, 2, 32, cfg.MediaTimeout)
	}

	engine := experiment.New(st, cfg.ExperimentTest, logger)
	pubs := []publisher.Publisher{
		publisher.NewBlogPublisher(cfg.BlogAPIBaseURL, cfg.BlogAPIKey, cfg.FetchTimeout),
		publisher.NewManualPublisher(pipeline.PlatformTwitter),
		publisher.NewManualPublisher(pipeline.PlatformLinkedIn),
		publisher.NewManualPublisher(pipeline.PlatformReddit),
		publisher.NewManualPublisher(pipeline.PlatformYouTube),
	}
	pubRunner := publisher.NewRunner(st, pubs, recorder, logger)

	d := &Daemon{
		cfg:      cfg,
		logger:   logger,
		recorder: recorder,

		store:   st,
		library: library,
		watcher: watcher,
		health:  healthReg,
		avoid:   avoid,
		emitter: emitter,

		scout:     scout.New(adapters, st, healthReg, recorder, logger, cfg.ScoutFanout),
		analyst:   analyst.New(st, runner, logger, 0),
		publisher: pubRunner,
		tracker:   tracker.New(st, pubRunner, bus, recorder, logger),
		feedback:  feedback.New(st, library, engine, avoid, logger),

		experiments: engine,
		governor:    gov,
		bus:         bus,
		mediaQueue:  mediaQueue,

		metricsSrv: metricsSrv,
		lastMode:   budget.ModeFull,
	}
	d.creator = creator.New(st, runner, library, avoid, images,
		quality.NewAssessor(cfg.Competitors), recorder, logger, cfg.BrandVoice)
	d.approvals = approval.New(st, d.gatedMedia(), recorder, logger)
	return d, nil
}

// gatedMedia wraps the media queue so deferred video only runs in FULL mode.
// Degraded modes drop the job; the creation keeps its descriptor and can be
// re-selected later.
func (d *Daemon) gatedMedia() approval.MediaQueue {
	if d.mediaQueue == nil {
		return nil
	}
	return &modeGatedQueue{daemon: d}
}

type modeGatedQueue struct {
	daemon *Daemon
}

func (g *modeGatedQueue) Enqueue(creationID string, spec *pipeline.VideoSpec) error {
	d := g.daemon
	if !d.governor.Current().VideoEnabled() {
		d.logger.Info("Video generation deferred by operating mode",
			slog.String("creation_id", creationID),
			slog.String("mode", string(d.governor.Current())))
		return nil
	}
	return d.mediaQueue.Enqueue(creationID, spec)
}

// Start loads the skill library and brings up watcher, media queue,
// scheduler, and the optional metrics listener.
func (d *Daemon) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started {
		return pipeerrors.New(pipeerrors.CategoryDaemon, pipeerrors.SeverityError, "daemon already started")
	}

	if err := d.library.Load(ctx); err != nil {
		return err
	}
	if err := d.watcher.Start(ctx); err != nil {
		return err
	}
	if d.mediaQueue != nil {
		d.mediaQueue.Start()
	}

	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return pipeerrors.Wrap(err, pipeerrors.CategoryDaemon, pipeerrors.SeverityFatal, "create scheduler")
	}
	jobs := []struct {
		name     string
		interval time.Duration
		body     func(context.Context, budget.Mode) error
	}{
		{"scout", d.cfg.ScoutInterval, d.scoutTick},
		{"metrics", d.cfg.MetricsInterval, d.metricsTick},
		{"engagement", d.cfg.EngagementInterval, d.engagementTick},
		{"feedback", d.cfg.FeedbackInterval, d.feedbackTick},
		{"review", d.cfg.ReviewInterval, d.reviewTick},
	}
	for _, j := range jobs {
		j := j
		_, err := scheduler.NewJob(
			gocron.DurationJob(j.interval),
			gocron.NewTask(func() { d.tick(j.name, j.interval, j.body) }),
			gocron.WithName(j.name+"-loop"),
		)
		if err != nil {
			return pipeerrors.Wrap(err, pipeerrors.CategoryDaemon, pipeerrors.SeverityFatal,
				"schedule loop").WithContext("loop", j.name)
		}
	}
	d.scheduler = scheduler
	scheduler.Start()

	if d.metricsSrv != nil {
		go func() {
			if err := d.metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				d.logger.Error("Metrics listener failed", slog.Any("error", err))
			}
		}()
	}

	d.started = true
	d.logger.Info("Daemon started",
		slog.Duration("scout_interval", d.cfg.ScoutInterval),
		slog.Duration("metrics_interval", d.cfg.MetricsInterval),
		slog.Duration("feedback_interval", d.cfg.FeedbackInterval))
	return nil
}

// Stop shuts the daemon down in reverse start order: no new ticks, then
// in-flight media, then the watcher and listeners, the store last.
func (d *Daemon) Stop(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.started {
		return nil
	}

	if err := d.scheduler.Shutdown(); err != nil {
		d.logger.Warn("Scheduler shutdown failed", slog.Any("error", err))
	}
	if d.mediaQueue != nil {
		d.mediaQueue.Stop()
	}
	d.watcher.Stop()
	if d.metricsSrv != nil {
		if err := d.metricsSrv.Shutdown(ctx); err != nil {
			d.logger.Warn("Metrics listener shutdown failed", slog.Any("error", err))
		}
	}
	d.emitter.Close()
	if err := d.store.Close(); err != nil {
		return err
	}

	d.started = false
	d.logger.Info("Daemon stopped")
	return nil
}
