package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/MrWong99/voxdesk/internal/complaint"
	"github.com/MrWong99/voxdesk/internal/complaint/badgerstore"
	"github.com/MrWong99/voxdesk/internal/complaint/postgres"
	"github.com/MrWong99/voxdesk/internal/config"
	"github.com/MrWong99/voxdesk/internal/health"
	"github.com/MrWong99/voxdesk/internal/observe"
	"github.com/MrWong99/voxdesk/internal/resilience"
	"github.com/MrWong99/voxdesk/internal/tools"
	"github.com/MrWong99/voxdesk/internal/tools/complainttools"
	"github.com/MrWong99/voxdesk/internal/tools/weathertool"
	"github.com/MrWong99/voxdesk/internal/weather"
	"github.com/MrWong99/voxdesk/pkg/audio"
	"github.com/MrWong99/voxdesk/pkg/provider/s2s"
	geminilive "github.com/MrWong99/voxdesk/pkg/provider/s2s/gemini"
)

// newRegistry wires the built-in session providers and complaint stores.
func newRegistry(log *slog.Logger) *config.Registry {
	reg := config.NewRegistry()

	reg.RegisterSession("gemini-live", func(sc config.SessionConfig) (s2s.Provider, error) {
		opts := []geminilive.Option{geminilive.WithLogger(log)}
		if sc.Model != "" {
			opts = append(opts, geminilive.WithModel(sc.Model))
		}
		if sc.BaseURL != "" {
			opts = append(opts, geminilive.WithBaseURL(sc.BaseURL))
		}
		return geminilive.New(sc.APIKey, opts...), nil
	})

	reg.RegisterStore(config.StoreMemory, func(context.Context, config.StoreConfig) (complaint.Store, error) {
		return complaint.NewMemStore(), nil
	})
	reg.RegisterStore(config.StorePostgres, func(ctx context.Context, sc config.StoreConfig) (complaint.Store, error) {
		s, err := postgres.NewStore(ctx, sc.PostgresDSN)
		if err != nil {
			return nil, err
		}
		return s, nil
	})
	reg.RegisterStore(config.StoreBadger, func(_ context.Context, sc config.StoreConfig) (complaint.Store, error) {
		s, err := badgerstore.Open(badgerstore.Options{Dir: sc.BadgerDir, Logger: log})
		if err != nil {
			return nil, err
		}
		return s, nil
	})
	return reg
}

// toolset is the profile-specific part of a run.
type toolset struct {
	registry     *tools.Registry
	instructions string
	checkers     []health.Checker
	close        func() error
}

// buildToolset assembles the tools of cfg.Profile. The complaint store is
// opened for the complaints profile only.
func buildToolset(ctx context.Context, cfg *config.Config, reg *config.Registry, m *observe.Metrics, log *slog.Logger) (*toolset, error) {
	ts := &toolset{close: func() error { return nil }}
	var list []tools.Tool

	switch cfg.Profile {
	case config.ProfileComplaints:
		store, err := reg.CreateStore(ctx, cfg.Store)
		if err != nil {
			return nil, fmt.Errorf("open %s complaint store: %w", cfg.Store.Backend, err)
		}
		ts.close = store.Close
		ts.checkers = append(ts.checkers, health.Checker{Name: "complaint_store", Check: store.Ping})
		list = complainttools.Tools(store)
		ts.instructions = complainttools.Instructions
		log.Info("complaint store ready", "backend", cfg.Store.Backend)

	case config.ProfileWeather:
		if err := cfg.RequireSecrets("weather"); err != nil {
			return nil, err
		}
		list = weathertool.Tools(newWeatherClient(cfg.Weather, m, log))
		ts.instructions = weathertool.Instructions

	default:
		return nil, fmt.Errorf("unknown profile %q", cfg.Profile)
	}

	if cfg.Session.Instructions != "" {
		ts.instructions = cfg.Session.Instructions
	}

	r, err := tools.NewRegistry(list...)
	if err != nil {
		_ = ts.close()
		return nil, err
	}
	ts.registry = r
	log.Debug("tools registered", "profile", cfg.Profile, "tools", r.Names())
	return ts, nil
}

func newWeatherClient(wc config.WeatherConfig, m *observe.Metrics, log *slog.Logger) *weather.Client {
	breaker := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
		Name:         "weather",
		MaxFailures:  wc.BreakerFailures,
		ResetTimeout: wc.BreakerReset,
		Logger:       log,
		OnStateChange: func(_, to resilience.State) {
			m.RecordCircuitTransition(context.Background(), "weather", to.String())
		},
	})
	return weather.New(wc.APIKey,
		weather.WithBaseURL(wc.BaseURL),
		weather.WithHTTPClient(&http.Client{Timeout: wc.Timeout}),
		weather.WithBreaker(breaker),
		weather.WithLogger(log),
		weather.WithObserver(func(outcome string, d time.Duration) {
			m.RecordWeatherLookup(context.Background(), outcome, d)
		}),
	)
}

// streamConfigs converts the audio section into device stream settings.
func streamConfigs(ac config.AudioConfig) (in, out audio.StreamConfig) {
	in = audio.StreamConfig{
		SampleRate:      ac.InputSampleRate,
		Channels:        audio.DefaultChannels,
		Format:          audio.FormatInt16,
		FramesPerBuffer: ac.FramesPerBuffer,
	}
	out = in
	out.SampleRate = ac.OutputSampleRate
	return in, out
}
