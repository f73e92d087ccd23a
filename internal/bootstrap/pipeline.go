package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/eleven-am/meeting-scribe/internal/audio"
	"github.com/eleven-am/meeting-scribe/internal/credentials"
	"github.com/eleven-am/meeting-scribe/internal/intake"
	"github.com/eleven-am/meeting-scribe/internal/kyutai"
	"github.com/eleven-am/meeting-scribe/internal/persist"
	"github.com/eleven-am/meeting-scribe/internal/shared"
	"go.uber.org/fx"
)

// Pipeline bundles the audio intake components that share a lifecycle.
type Pipeline struct {
	Registry         *intake.ParticipantRegistry
	BatchClassifier  *audio.SilenceClassifier
	StreamClassifier *audio.SilenceClassifier
	Buffer           *intake.UtteranceBuffer
	Pool             *intake.StreamPool
}

func ProvideRegistry() *intake.ParticipantRegistry {
	return intake.NewParticipantRegistry()
}

func ProvideTranscriberFactory(
	cfg *Config,
	resolver credentials.Resolver,
	queue *persist.Queue,
	store *persist.Store,
	log *slog.Logger,
) intake.TranscriberFactory {
	return func(speakerID string, meta intake.ParticipantMetadata) (intake.Transcriber, error) {
		cred, err := resolver.Lookup(context.Background(), cfg.ProviderName)
		if err != nil {
			return nil, fmt.Errorf("resolve %s credentials: %w", cfg.ProviderName, err)
		}

		t, err := kyutai.New(kyutai.Config{
			ServerURL:  cred.ServerURL,
			APIKey:     cred.APIKey,
			SampleRate: cfg.SampleRate,
			SpeakerID:  speakerID,
			Speaker:    meta,
			Backoff:    shared.BackoffConfig{MaxWindow: cfg.RetryMaxWindow},
			Boundaries: kyutai.BoundaryConfig{PauseThreshold: cfg.PauseThreshold},
			OnUtterance: func(r kyutai.Result) {
				utterance := intake.TranscriptUtterance{
					SpeakerID:   speakerID,
					Speaker:     meta,
					Transcript:  r.Text,
					TimestampMS: r.TimestampMS,
					DurationMS:  r.DurationMS,
					FlushReason: r.FlushReason,
				}
				queue.Enqueue("save_utterance", func() error {
					return store.SaveUtterance(context.Background(), utterance)
				})
			},
			Log: log,
		})
		if err != nil {
			return nil, err
		}
		return t, nil
	}
}

func ProvidePipeline(
	cfg *Config,
	registry *intake.ParticipantRegistry,
	sink *persist.RedisBatchSink,
	factory intake.TranscriberFactory,
	log *slog.Logger,
) *Pipeline {
	batchClassifier := audio.NewSilenceClassifier(audio.SilenceConfig{
		RMSThreshold:       cfg.BatchRMSThreshold,
		VADThreshold:       cfg.VADThreshold,
		DiagnosticInterval: cfg.DiagnosticInterval,
		Log:                log,
	})
	streamClassifier := audio.NewSilenceClassifier(audio.SilenceConfig{
		RMSThreshold:       cfg.StreamRMSThreshold,
		VADThreshold:       cfg.VADThreshold,
		DiagnosticInterval: cfg.DiagnosticInterval,
		Log:                log,
	})

	buffer := intake.NewUtteranceBuffer(intake.BufferConfig{
		SampleRate:    cfg.SampleRate,
		SizeLimit:     cfg.BufferSizeLimit,
		SilenceLimit:  cfg.BufferSilenceLimit,
		QueueCapacity: cfg.ChunkQueueCapacity,
		Classifier:    batchClassifier,
		Participants:  registry,
		Sink:          sink,
		Log:           log,
	})

	pool := intake.NewStreamPool(intake.PoolConfig{
		SampleRate: cfg.SampleRate,
		Policy: intake.ProviderPolicy{
			Name:            cfg.ProviderName,
			SilenceTolerant: cfg.ProviderSilenceTolerant,
			SilenceLimit:    cfg.StreamSilenceLimit,
			MaxConnections:  cfg.MaxStreamConnections,
		},
		Classifier:     streamClassifier,
		Participants:   registry,
		NewTranscriber: factory,
		Log:            log,
	})

	return &Pipeline{
		Registry:         registry,
		BatchClassifier:  batchClassifier,
		StreamClassifier: streamClassifier,
		Buffer:           buffer,
		Pool:             pool,
	}
}

// RunPipeline drives the buffer and pool ticks from a single goroutine, so
// flush checks and idle teardown stay serialized. Shutdown flushes every
// open buffer and finishes live connections before the queue stops.
func RunPipeline(lc fx.Lifecycle, p *Pipeline, cfg *Config, log *slog.Logger) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				defer close(done)
				tick := time.NewTicker(cfg.TickInterval)
				defer tick.Stop()
				monitor := time.NewTicker(cfg.MonitorInterval)
				defer monitor.Stop()

				for {
					select {
					case <-ctx.Done():
						return
					case <-tick.C:
						p.Buffer.ProcessChunks()
					case <-monitor.C:
						p.Pool.Monitor()
					}
				}
			}()
			log.Info("pipeline started",
				"sample_rate", cfg.SampleRate,
				"provider", cfg.ProviderName)
			return nil
		},
		OnStop: func(context.Context) error {
			cancel()
			<-done

			p.Buffer.ProcessChunks()
			p.Buffer.FlushUtterances()
			p.Pool.FinishAll()
			log.Info("pipeline stopped")
			return nil
		},
	})
}

var PipelineModule = fx.Options(
	fx.Provide(
		ProvideRegistry,
		ProvideTranscriberFactory,
		ProvidePipeline,
	),
	fx.Invoke(RunPipeline),
)
