package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/go-pkgz/lgr"
	"github.com/jessevdk/go-flags"
	"github.com/joho/godotenv"

	"github.com/briefdelights/briefly/pkg/compose"
	"github.com/briefdelights/briefly/pkg/config"
	"github.com/briefdelights/briefly/pkg/content"
	"github.com/briefdelights/briefly/pkg/feed"
	"github.com/briefdelights/briefly/pkg/llm"
	"github.com/briefdelights/briefly/pkg/pipeline"
	"github.com/briefdelights/briefly/pkg/repository"
	"github.com/briefdelights/briefly/pkg/sender"
	"github.com/briefdelights/briefly/pkg/sponsor"
	"github.com/briefdelights/briefly/server"
)

// Opts with all CLI options
type Opts struct {
	Config   string   `short:"f" long:"config" env:"BRIEFLY_CONFIG" default:"briefly.yml" description:"config file"`
	Segments []string `short:"s" long:"segment" description:"limit to specific segments, repeatable"`
	DryRun   bool     `long:"dry-run" description:"run without sending email or touching sponsor state"`

	// Common options
	Debug   bool `long:"dbg" env:"DEBUG" description:"debug mode"`
	Version bool `short:"V" long:"version" description:"show version info"`
	NoColor bool `long:"no-color" env:"NO_COLOR" description:"disable color output"`

	AggregateCmd struct{} `command:"aggregate" description:"fetch feeds and store the raw article pool"`
	SelectCmd    struct{} `command:"select" description:"pick and tier stories per segment"`
	SummarizeCmd struct{} `command:"summarize" description:"summarize selected stories per segment"`
	ComposeCmd   struct{} `command:"compose" description:"render newsletter HTML per segment"`
	SendCmd      struct{} `command:"send" description:"inject sponsor and deliver per segment"`
	RunCmd       struct{} `command:"run" description:"full daily pipeline"`
	ServerCmd    struct{} `command:"server" description:"tracking and admin HTTP server"`
}

var revision = "unknown"

func main() {
	// .env is optional, used for API keys in development
	_ = godotenv.Load()

	var opts Opts
	parser := flags.NewParser(&opts, flags.Default)
	if _, err := parser.Parse(); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		os.Exit(1)
	}

	if opts.Version {
		fmt.Printf("Version: %s\nGolang: %s\n", revision, runtime.Version())
		os.Exit(0)
	}

	setupLog(opts.Debug)

	log.Printf("[INFO] starting briefly version %s", revision)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// handle termination signals
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		<-sigChan
		log.Print("[INFO] termination signal received")
		cancel()
	}()

	command := ""
	if parser.Active != nil {
		command = parser.Active.Name
	}

	if err := run(ctx, command, opts); err != nil {
		log.Printf("[ERROR] %s failed: %v", command, err)
		os.Exit(1)
	}

	log.Print("[INFO] done")
}

func run(ctx context.Context, command string, opts Opts) error {
	cfg, err := config.Load(opts.Config)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	repos, err := repository.NewRepositories(ctx, repository.Config{
		DSN:             cfg.Database.DSN,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: time.Duration(cfg.Database.ConnMaxLifetime) * time.Second,
	})
	if err != nil {
		return fmt.Errorf("init database: %w", err)
	}
	defer repos.Close() //nolint:errcheck

	if command == "server" {
		srv := server.New(cfg, repos.Tracking, repos.Sponsor, repos.Subscriber, revision, opts.Debug)
		return srv.Run(ctx)
	}

	p, err := buildPipeline(cfg, repos)
	if err != nil {
		return err
	}
	day := time.Now().UTC().Format("2006-01-02")

	switch command {
	case "aggregate":
		_, err := p.RunAggregate(ctx)
		return err

	case "select":
		return forSegments(cfg, opts.Segments, func(name string) error {
			articles, err := p.Artifacts().LoadRawArticles(day)
			if err != nil {
				return fmt.Errorf("aggregate step must run first: %w", err)
			}
			_, err = p.SelectSegment(ctx, name, articles, day)
			return err
		})

	case "summarize":
		return forSegments(cfg, opts.Segments, func(name string) error {
			set, err := p.Artifacts().LoadSelected(name, day)
			if err != nil {
				return fmt.Errorf("select step must run first: %w", err)
			}
			return p.SummarizeSegment(ctx, name, set, day)
		})

	case "compose":
		return forSegments(cfg, opts.Segments, func(name string) error {
			set, err := p.Artifacts().LoadSummaries(name, day)
			if err != nil {
				return fmt.Errorf("summarize step must run first: %w", err)
			}
			_, err = p.ComposeSegment(set, name, time.Now().UTC())
			return err
		})

	case "send":
		return sendStep(ctx, cfg, repos, p, opts, day)

	case "run", "":
		sendLog, err := p.Run(ctx, opts.Segments, opts.DryRun)
		if err != nil {
			return err
		}
		log.Printf("[INFO] run %s: %d sent, %d failed", sendLog.RunID, sendLog.TotalSent, sendLog.TotalFailed)
		return nil

	default:
		return fmt.Errorf("unknown command %q", command)
	}
}

// sendStep delivers previously composed newsletters
func sendStep(ctx context.Context, cfg *config.Config, repos *repository.Repositories, p *pipeline.Pipeline, opts Opts, day string) error {
	inj := sponsor.NewInjector(repos.Sponsor, cfg.TrackingBase()+"/sponsor")
	snd := sender.NewSender(sender.NewResendClient(cfg.Email.APIKey), cfg.Newsletter.Sender, cfg.Email)
	date := time.Now().UTC()

	return forSegments(cfg, opts.Segments, func(name string) error {
		html, err := p.Artifacts().LoadNewsletter(name, day)
		if err != nil {
			return fmt.Errorf("compose step must run first: %w", err)
		}

		html, resolved, err := inj.Inject(ctx, html, date, name)
		if err != nil {
			return err
		}

		subs, err := repos.Subscriber.ListConfirmed(ctx, name)
		if err != nil {
			return err
		}

		seg := cfg.Segments[name]
		subject := fmt.Sprintf("%s %s - %s", seg.Emoji, cfg.Newsletter.Name, date.Format("Jan 2, 2006"))
		result := snd.Send(ctx, name, subject, html, subs, opts.DryRun)

		if resolved != nil && !opts.DryRun && result.Sent > 0 {
			if err := inj.MarkSent(ctx, resolved, fmt.Sprintf("%s-%s", name, day)); err != nil {
				log.Printf("[WARN] sponsor bookkeeping failed for %s: %v", name, err)
			}
		}
		return nil
	})
}

// buildPipeline wires the real pipeline components
func buildPipeline(cfg *config.Config, repos *repository.Repositories) (*pipeline.Pipeline, error) {
	composer, err := compose.NewComposer(cfg.Newsletter.Name, cfg.Newsletter.SiteURL, cfg.Newsletter.UnsubscribeURL, cfg.TrackingBase())
	if err != nil {
		return nil, err
	}

	var extractor content.Extractor
	if cfg.Extraction.Enabled {
		extractor = content.NewHTTPExtractor(cfg.Extraction.Timeout, cfg.Extraction.UserAgent, cfg.Extraction.MinTextLength)
	}

	deps := pipeline.Deps{
		Aggregator:  feed.NewAggregator(feed.NewParser(cfg.Feeds.Timeout, cfg.Feeds.UserAgent), cfg.Feeds),
		Selector:    llm.NewSelector(cfg.LLM),
		Summarizer:  llm.NewSummarizer(cfg.LLM),
		Preparer:    content.NewPreparer(extractor, cfg.LLM.Summary.MaxContentChars),
		Composer:    composer,
		Injector:    sponsor.NewInjector(repos.Sponsor, cfg.TrackingBase()+"/sponsor"),
		Deliverer:   sender.NewSender(sender.NewResendClient(cfg.Email.APIKey), cfg.Newsletter.Sender, cfg.Email),
		Subscribers: repos.Subscriber,
		SendLogs:    repos.Tracking,
	}
	return pipeline.New(cfg, deps), nil
}

// forSegments runs fn for the requested segments, all configured ones when
// none requested. A failing segment is logged and does not stop the others.
func forSegments(cfg *config.Config, requested []string, fn func(name string) error) error {
	names := requested
	if len(names) == 0 {
		for name := range cfg.Segments {
			names = append(names, name)
		}
	}

	failures := 0
	for _, name := range names {
		if _, ok := cfg.Segments[name]; !ok {
			return fmt.Errorf("unknown segment %q", name)
		}
		if err := fn(name); err != nil {
			log.Printf("[WARN] segment %s failed: %v", name, err)
			failures++
		}
	}
	if failures == len(names) {
		return fmt.Errorf("all %d segments failed", failures)
	}
	return nil
}

func setupLog(dbg bool, secs ...string) {
	logOpts := []lgr.Option{lgr.Out(io.Discard), lgr.Err(io.Discard)}
	if dbg {
		logOpts = []lgr.Option{lgr.Debug, lgr.Msec, lgr.LevelBraces, lgr.StackTraceOnError}
	}

	colorizer := lgr.Mapper{
		ErrorFunc:  func(s string) string { return color.New(color.FgHiRed).Sprint(s) },
		WarnFunc:   func(s string) string { return color.New(color.FgRed).Sprint(s) },
		InfoFunc:   func(s string) string { return color.New(color.FgYellow).Sprint(s) },
		DebugFunc:  func(s string) string { return color.New(color.FgWhite).Sprint(s) },
		CallerFunc: func(s string) string { return color.New(color.FgBlue).Sprint(s) },
		TimeFunc:   func(s string) string { return color.New(color.FgCyan).Sprint(s) },
	}
	logOpts = append(logOpts, lgr.Map(colorizer))
	if len(secs) > 0 {
		logOpts = append(logOpts, lgr.Secret(secs...))
	}
	lgr.SetupStdLogger(logOpts...)
	lgr.Setup(logOpts...)
}
