// Command server runs the interview backend: the REST API for scheduling and
// reviewing interviews, and the websocket endpoint that conducts them live.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/intervox/intervox/pkg/adapters/stt"
	"github.com/intervox/intervox/pkg/adapters/tts"
	"github.com/intervox/intervox/pkg/config"
	"github.com/intervox/intervox/pkg/configutil"
	"github.com/intervox/intervox/pkg/feedback"
	"github.com/intervox/intervox/pkg/httpapi"
	"github.com/intervox/intervox/pkg/llm"
	"github.com/intervox/intervox/pkg/logging"
	"github.com/intervox/intervox/pkg/providers/assemblyai"
	"github.com/intervox/intervox/pkg/providers/deepgram"
	"github.com/intervox/intervox/pkg/providers/groq"
	"github.com/intervox/intervox/pkg/providers/inworld"
	"github.com/intervox/intervox/pkg/providers/mock"
	"github.com/intervox/intervox/pkg/runner"
	"github.com/intervox/intervox/pkg/session"
	"github.com/intervox/intervox/pkg/store"
)

func main() {
	_ = godotenv.Load()

	configPath := flag.String("config", "config.yaml", "path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.Init(logging.ParseLevel(cfg.LogLevel), cfg.LogFormat)
	slog.SetDefault(logger)

	st, err := store.NewSQLite(cfg.Storage.DBPath)
	if err != nil {
		logger.Error("open store failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer func() { _ = st.Close() }()

	pingCtx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
	if err := st.Ping(pingCtx); err != nil {
		cancelPing()
		logger.Error("store unreachable", slog.String("error", err.Error()))
		os.Exit(1)
	}
	cancelPing()

	providers, evaluator, err := buildProviders(cfg)
	if err != nil {
		logger.Error("vendor configuration invalid", slog.String("error", err.Error()))
		os.Exit(1)
	}

	registry := session.NewRegistry()
	scorer := feedback.NewScorer(st, evaluator, logger)

	handler := httpapi.New(httpapi.Options{
		Store:           st,
		Registry:        registry,
		Provider:        providers,
		Policy:          cfg.Policy(),
		BaseConfig:      cfg.OrchestratorConfig(),
		Scorer:          scorer,
		DefaultSilence:  cfg.SilenceThreshold(),
		DurationAllowed: cfg.DurationAllowed,
		Logger:          logger,
	})

	srv := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           handler.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	life := runner.NewLifecycleRunner(&httpDrainer{srv: srv}, runner.Hooks{
		OnStart: func() {
			go func() {
				logger.Info("server listening",
					slog.String("addr", cfg.Server.Addr()),
					slog.String("stt", cfg.Vendors.STT.Provider),
					slog.String("tts", cfg.Vendors.TTS.Provider),
					slog.String("llm", cfg.Vendors.LLM.Provider))
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Error("server failed", slog.String("error", err.Error()))
					os.Exit(1)
				}
			}()
		},
	}, 15*time.Second)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := life.Run(ctx); err != nil {
		logger.Warn("shutdown incomplete", slog.String("error", err.Error()))
	}
}

// httpDrainer lets in-flight requests and live conversations finish before
// the process exits.
type httpDrainer struct {
	srv *http.Server
}

func (d *httpDrainer) Drain() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return d.srv.Shutdown(ctx)
}

type assemblyaiSettings struct {
	APIKey string `mapstructure:"api_key"`
}

type deepgramSettings struct {
	APIKey   string `mapstructure:"api_key"`
	Model    string `mapstructure:"model"`
	Language string `mapstructure:"language"`
}

type inworldSettings struct {
	APIKey  string `mapstructure:"api_key"`
	VoiceID string `mapstructure:"voice_id"`
	ModelID string `mapstructure:"model_id"`
}

type groqSettings struct {
	APIKey string `mapstructure:"api_key"`
	Model  string `mapstructure:"model"`
}

func buildProviders(cfg config.Config) (httpapi.Providers, llm.Evaluator, error) {
	newTranscriber, err := buildTranscriberFactory(cfg.Vendors.STT)
	if err != nil {
		return httpapi.Providers{}, nil, err
	}
	newSynthesizer, err := buildSynthesizerFactory(cfg.Vendors.TTS)
	if err != nil {
		return httpapi.Providers{}, nil, err
	}
	generator, evaluator, err := buildLLM(cfg.Vendors.LLM)
	if err != nil {
		return httpapi.Providers{}, nil, err
	}
	return httpapi.Providers{
		NewTranscriber: newTranscriber,
		NewSynthesizer: newSynthesizer,
		Generator:      generator,
	}, evaluator, nil
}

func buildTranscriberFactory(vendor config.VendorConfig) (func(stt.Config) (stt.Transcriber, error), error) {
	switch vendor.Provider {
	case "assemblyai":
		var settings assemblyaiSettings
		if err := configutil.DecodeSettings(vendor.Settings, &settings); err != nil {
			return nil, fmt.Errorf("vendors.stt.settings: %w", err)
		}
		if err := configutil.RequireString(settings.APIKey, "vendors.stt.settings.api_key"); err != nil {
			return nil, err
		}
		return func(c stt.Config) (stt.Transcriber, error) {
			return assemblyai.New(assemblyai.Config{
				APIKey:         settings.APIKey,
				SampleRate:     c.SampleRate,
				ConversationID: c.ConversationID,
			}), nil
		}, nil
	case "deepgram":
		var settings deepgramSettings
		if err := configutil.DecodeSettings(vendor.Settings, &settings); err != nil {
			return nil, fmt.Errorf("vendors.stt.settings: %w", err)
		}
		if err := configutil.RequireString(settings.APIKey, "vendors.stt.settings.api_key"); err != nil {
			return nil, err
		}
		return func(c stt.Config) (stt.Transcriber, error) {
			return deepgram.New(deepgram.Config{
				APIKey:         settings.APIKey,
				Model:          settings.Model,
				Language:       settings.Language,
				SampleRate:     c.SampleRate,
				ConversationID: c.ConversationID,
			}), nil
		}, nil
	case "mock":
		return func(stt.Config) (stt.Transcriber, error) {
			return mock.NewTranscriber(mock.STTConfig{}), nil
		}, nil
	default:
		return nil, fmt.Errorf("unknown stt provider %q", vendor.Provider)
	}
}

func buildSynthesizerFactory(vendor config.VendorConfig) (func(tts.Config) (tts.Synthesizer, error), error) {
	switch vendor.Provider {
	case "inworld":
		var settings inworldSettings
		if err := configutil.DecodeSettings(vendor.Settings, &settings); err != nil {
			return nil, fmt.Errorf("vendors.tts.settings: %w", err)
		}
		if err := configutil.RequireString(settings.APIKey, "vendors.tts.settings.api_key"); err != nil {
			return nil, err
		}
		return func(c tts.Config) (tts.Synthesizer, error) {
			return inworld.New(inworld.Config{
				APIKey:         settings.APIKey,
				VoiceID:        settings.VoiceID,
				ModelID:        settings.ModelID,
				SampleRate:     c.SampleRate,
				ConversationID: c.ConversationID,
			}), nil
		}, nil
	case "mock":
		return func(tts.Config) (tts.Synthesizer, error) {
			return mock.NewSynthesizer(mock.TTSConfig{}), nil
		}, nil
	default:
		return nil, fmt.Errorf("unknown tts provider %q", vendor.Provider)
	}
}

func buildLLM(vendor config.VendorConfig) (llm.Generator, llm.Evaluator, error) {
	switch vendor.Provider {
	case "groq":
		var settings groqSettings
		if err := configutil.DecodeSettings(vendor.Settings, &settings); err != nil {
			return nil, nil, fmt.Errorf("vendors.llm.settings: %w", err)
		}
		if err := configutil.RequireString(settings.APIKey, "vendors.llm.settings.api_key"); err != nil {
			return nil, nil, err
		}
		client := groq.New(groq.Config{APIKey: settings.APIKey, Model: settings.Model})
		return client, client, nil
	case "mock":
		gen := mock.NewGenerator(mock.LLMConfig{})
		return gen, gen, nil
	default:
		return nil, nil, fmt.Errorf("unknown llm provider %q", vendor.Provider)
	}
}
