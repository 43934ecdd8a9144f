package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Veraticus/the-hours-must-flow/internal/calendar"
	"github.com/Veraticus/the-hours-must-flow/internal/config"
	"github.com/Veraticus/the-hours-must-flow/internal/dedup"
	"github.com/Veraticus/the-hours-must-flow/internal/engine"
	"github.com/Veraticus/the-hours-must-flow/internal/intervals"
	"github.com/Veraticus/the-hours-must-flow/internal/ledger"
	"github.com/Veraticus/the-hours-must-flow/internal/llm"
	"github.com/Veraticus/the-hours-must-flow/internal/matcher"
	"github.com/Veraticus/the-hours-must-flow/internal/pattern"
	"github.com/Veraticus/the-hours-must-flow/internal/poster"
	"github.com/Veraticus/the-hours-must-flow/internal/review"
	"github.com/Veraticus/the-hours-must-flow/internal/router"
	"github.com/Veraticus/the-hours-must-flow/internal/service"
	"github.com/Veraticus/the-hours-must-flow/internal/storage"
	"github.com/spf13/afero"
	"github.com/spf13/viper"
)

// app holds the collaborators a command needs. Optional ones are created on
// first use so read-only commands work without every credential.
type app struct {
	cfg       *config.Config
	store     service.DocumentStore
	ledger    *ledger.Ledger
	logger    *slog.Logger
	tracker   *intervals.Client
	completer *llm.Completer
	personID  string
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return nil, err
	}

	store, err := storage.Open(ctx, cfg.Storage.Backend, cfg.Storage.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open storage: %w", err)
	}

	logger := slog.Default()
	return &app{
		cfg:    cfg,
		store:  store,
		ledger: ledger.New(store, logger),
		logger: logger,
	}, nil
}

func (a *app) Close() {
	if a.completer != nil {
		a.completer.Close()
	}
	if err := a.store.Close(); err != nil {
		a.logger.Error("Failed to close storage", "error", err)
	}
}

func (a *app) userID() string {
	return a.cfg.User.Email
}

func (a *app) timeTracker() (*intervals.Client, error) {
	if a.tracker != nil {
		return a.tracker, nil
	}
	if err := a.cfg.RequireTimeTracker(); err != nil {
		return nil, err
	}
	client, err := intervals.NewClient(a.cfg.Intervals.APIKey,
		intervals.WithBaseURL(a.cfg.Intervals.BaseURL),
		intervals.WithLogger(a.logger))
	if err != nil {
		return nil, err
	}
	a.tracker = client
	return client, nil
}

// resolvePersonID prefers the configured person id and otherwise asks the
// time tracker who owns the API key.
func (a *app) resolvePersonID(ctx context.Context) (string, error) {
	if a.personID != "" {
		return a.personID, nil
	}
	if a.cfg.User.PersonID != "" {
		a.personID = a.cfg.User.PersonID
		return a.personID, nil
	}
	tracker, err := a.timeTracker()
	if err != nil {
		return "", err
	}
	id, err := tracker.Me(ctx)
	if err != nil {
		return "", err
	}
	a.logger.Debug("Resolved time tracker person", "person_id", id)
	a.personID = id
	return id, nil
}

// llmClient returns nil when no provider is configured, which turns the AI
// tiers off.
func (a *app) llmClient() (llm.Client, error) {
	if a.cfg.LLM.Provider == "" {
		return nil, nil
	}
	if a.completer == nil {
		completer, err := llm.NewCompleter(llm.Config{
			Provider:          a.cfg.LLM.Provider,
			APIKey:            a.cfg.LLM.APIKey,
			Model:             a.cfg.LLM.Model,
			Endpoint:          a.cfg.LLM.Endpoint,
			Deployment:        a.cfg.LLM.Deployment,
			APIVersion:        a.cfg.LLM.APIVersion,
			MaxRetries:        a.cfg.LLM.MaxRetries,
			RetryDelay:        a.cfg.LLM.RetryDelay,
			CacheTTL:          a.cfg.LLM.CacheTTL,
			RequestsPerMinute: a.cfg.LLM.RequestsPerMinute,
			TokensPerMinute:   a.cfg.LLM.TokensPerMinute,
		}, a.logger)
		if err != nil {
			return nil, err
		}
		a.completer = completer
	}
	return a.completer, nil
}

func (a *app) poster(ctx context.Context) (*poster.Poster, error) {
	tracker, err := a.timeTracker()
	if err != nil {
		return nil, err
	}
	personID, err := a.resolvePersonID(ctx)
	if err != nil {
		return nil, err
	}
	return poster.New(tracker, a.ledger, poster.Config{
		Location:   a.cfg.Timezone(),
		WorktypeID: a.cfg.Intervals.WorktypeID,
		PersonID:   personID,
		Billable:   a.cfg.Intervals.Billable,
	}, a.logger), nil
}

// reviewQueue opens the queue. With withPoster false it can list and
// reject but not approve.
func (a *app) reviewQueue(ctx context.Context, withPoster bool) (*review.Queue, error) {
	var catalog service.TaskCatalog
	var p review.Poster
	if withPoster {
		tracker, err := a.timeTracker()
		if err != nil {
			return nil, err
		}
		pst, err := a.poster(ctx)
		if err != nil {
			return nil, err
		}
		catalog, p = tracker, pst
	}
	return review.NewQueue(a.store, catalog, p, a.logger), nil
}

func (a *app) calendarSource(ctx context.Context) (service.CalendarSource, error) {
	if err := a.cfg.RequireCalendar(); err != nil {
		return nil, err
	}
	switch a.cfg.Calendar.Provider {
	case "google":
		return calendar.NewGoogleSource(ctx, calendar.GoogleConfig{
			CredentialsFile: a.cfg.Calendar.CredentialsFile,
		}, a.logger)
	default:
		return calendar.NewGraphSource(ctx, calendar.GraphConfig{
			TenantID:     a.cfg.Calendar.TenantID,
			ClientID:     a.cfg.Calendar.ClientID,
			ClientSecret: a.cfg.Calendar.ClientSecret,
		}, a.logger)
	}
}

func (a *app) runner(ctx context.Context, opts ...engine.Option) (*engine.Runner, error) {
	tracker, err := a.timeTracker()
	if err != nil {
		return nil, err
	}
	src, err := a.calendarSource(ctx)
	if err != nil {
		return nil, err
	}
	client, err := a.llmClient()
	if err != nil {
		return nil, err
	}
	pst, err := a.poster(ctx)
	if err != nil {
		return nil, err
	}

	patterns, err := pattern.LoadPatterns(afero.NewOsFs(), a.cfg.Matching.PatternsFile)
	if err != nil {
		return nil, err
	}
	mcfg := matcher.DefaultConfig()
	mcfg.KeywordConfidence = a.cfg.Matching.KeywordConfidence
	m, err := matcher.New(pattern.NewKeywordMatcher(patterns), client, mcfg, a.logger)
	if err != nil {
		return nil, err
	}

	dcfg := dedup.DefaultConfig()
	dcfg.BatchSize = a.cfg.Dedup.BatchSize
	dcfg.BatchDelay = a.cfg.Dedup.BatchDelay
	dcfg.DuplicateThreshold = a.cfg.Dedup.DuplicateThreshold
	dc, err := dedup.NewClassifier(a.ledger, client, dcfg, dedup.WithLogger(a.logger))
	if err != nil {
		return nil, err
	}

	rcfg := router.DefaultConfig()
	rcfg.ReviewThreshold = a.cfg.Matching.ReviewThreshold
	rcfg.HighThreshold = a.cfg.Matching.HighThreshold
	rcfg.MediumThreshold = a.cfg.Matching.MediumThreshold
	rcfg.ReviewZeroDuration = a.cfg.Matching.ReviewZeroDuration
	rt, err := router.New(rcfg)
	if err != nil {
		return nil, err
	}

	deps := engine.Deps{
		Calendar: src,
		Catalog:  tracker,
		Entries:  tracker,
		Ledger:   a.ledger,
		Dedup:    dc,
		Matcher:  m,
		Router:   rt,
		Poster:   pst,
		Reviews:  review.NewQueue(a.store, tracker, pst, a.logger),
	}
	cfg := engine.Config{
		Location:     a.cfg.Timezone(),
		PersonID:     a.personID,
		BatchSize:    a.cfg.Engine.BatchSize,
		MeetingDelay: a.cfg.Engine.MeetingDelay,
	}
	return engine.New(deps, cfg, append([]engine.Option{engine.WithLogger(a.logger)}, opts...)...)
}
