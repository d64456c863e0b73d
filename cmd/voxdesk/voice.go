package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/MrWong99/voxdesk/internal/dispatch"
	"github.com/MrWong99/voxdesk/internal/observe"
	"github.com/MrWong99/voxdesk/internal/orchestrator"
	"github.com/MrWong99/voxdesk/internal/session"
	"github.com/MrWong99/voxdesk/pkg/audio/portaudio"
	"github.com/MrWong99/voxdesk/pkg/provider/s2s"
)

func newVoiceCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "voice",
		Short: "Talk to the assistant through the microphone and speakers",
		Long: `Start a voice session. Microphone audio is streamed to the model and
spoken replies are played back. You can also type messages; q, exit or
quit ends the session.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := load(flags)
			if err != nil {
				return err
			}
			o, done, err := a.newOrchestrator(cmd.Context(), true)
			if err != nil {
				return err
			}
			defer done()
			return o.Run(cmd.Context())
		},
	}
}

func newChatCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Chat with the assistant in the terminal",
		Long: `Start a text session. Each line you type is one turn; the model's text
reply is printed before the next prompt. q, exit or quit ends the session.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := load(flags)
			if err != nil {
				return err
			}
			o, done, err := a.newOrchestrator(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer done()
			return o.Chat(cmd.Context())
		},
	}
}

// newOrchestrator builds everything a voice or chat run needs. done releases
// the complaint store.
func (a *app) newOrchestrator(ctx context.Context, withAudio bool) (o *orchestrator.Orchestrator, done func(), err error) {
	if err := a.cfg.RequireSecrets("session"); err != nil {
		return nil, nil, err
	}
	metrics := observe.DefaultMetrics()
	reg := newRegistry(a.log)

	ts, err := buildToolset(ctx, a.cfg, reg, metrics, a.log)
	if err != nil {
		return nil, nil, err
	}
	done = func() {
		if err := ts.close(); err != nil {
			a.log.Warn("closing complaint store", "err", err)
		}
	}
	defer func() {
		if err != nil {
			done()
		}
	}()

	provider, err := reg.CreateSession(a.cfg.Session)
	if err != nil {
		return nil, nil, err
	}

	inCfg, outCfg := streamConfigs(a.cfg.Audio)
	oc := orchestrator.Config{
		Dialer: session.NewDialer(session.DialerConfig{
			Provider:    provider,
			MaxAttempts: a.cfg.Session.ConnectAttempts,
			Backoff:     a.cfg.Session.ConnectBackoff,
			Logger:      a.log,
		}),
		Session: s2s.SessionConfig{
			Instructions:    ts.instructions,
			Voice:           a.cfg.Session.Voice,
			Tools:           ts.registry.Declarations(),
			InputSampleRate: inCfg.SampleRate,
		},
		Dispatcher: dispatch.New(ts.registry,
			dispatch.WithLogger(a.log),
			dispatch.WithMetrics(metrics),
		),
		InputStream:      inCfg,
		OutputStream:     outCfg,
		OutboundCapacity: a.cfg.Audio.OutboundQueue,
		PollInterval:     a.cfg.Audio.PollInterval,
		Metrics:          metrics,
		Logger:           a.log,
	}
	if withAudio {
		oc.Device = portaudio.New(portaudio.Options{
			InputDevice:  a.cfg.Audio.InputDevice,
			OutputDevice: a.cfg.Audio.OutputDevice,
			Logger:       a.log,
		})
	}

	o, err = orchestrator.New(oc)
	if err != nil {
		return nil, nil, err
	}
	a.log.Info("orchestrator ready", "run_id", o.RunID(), "profile", a.cfg.Profile, "audio", withAudio)
	return o, done, nil
}
