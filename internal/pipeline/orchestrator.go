package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/lexiqai/article-voice/internal/chunk"
	"github.com/lexiqai/article-voice/internal/extract"
	"github.com/lexiqai/article-voice/internal/observability"
	"github.com/lexiqai/article-voice/internal/rewrite"
	"github.com/lexiqai/article-voice/internal/tts"
)

// Timeouts bound each stage; zero means no stage deadline
type Timeouts struct {
	Extract    time.Duration
	Rewrite    time.Duration
	Synthesize time.Duration // per part
	Deliver    time.Duration // per part, also used for ack and error replies
}

// Orchestrator drives requests through the stages
type Orchestrator struct {
	extractor   extract.Extractor
	rewriter    rewrite.Rewriter
	synthesizer tts.Synthesizer

	cache    RewriteCache
	history  History
	archive  Archive
	maxChunk int
	timeouts Timeouts
}

// Option configures an Orchestrator
type Option func(*Orchestrator)

// WithCache enables the rewrite cache
func WithCache(c RewriteCache) Option {
	return func(o *Orchestrator) { o.cache = c }
}

// WithHistory records every request
func WithHistory(h History) Option {
	return func(o *Orchestrator) { o.history = h }
}

// WithArchive keeps a copy of every delivered part
func WithArchive(a Archive) Option {
	return func(o *Orchestrator) { o.archive = a }
}

// WithMaxChunkSize overrides the chunk size limit
func WithMaxChunkSize(n int) Option {
	return func(o *Orchestrator) { o.maxChunk = n }
}

// WithTimeouts sets the per-stage deadlines
func WithTimeouts(t Timeouts) Option {
	return func(o *Orchestrator) { o.timeouts = t }
}

// New creates an orchestrator over the three remote collaborators
func New(extractor extract.Extractor, rewriter rewrite.Rewriter, synthesizer tts.Synthesizer, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		extractor:   extractor,
		rewriter:    rewriter,
		synthesizer: synthesizer,
		maxChunk:    chunk.DefaultMaxSize,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Handle processes one request to completion. It returns nil for ignored
// and successful requests and the reported *StageError otherwise. Only
// empty text is ignored; whitespace is acknowledged and fails extraction.
func (o *Orchestrator) Handle(ctx context.Context, req Request) error {
	if req.URL == "" {
		return nil
	}
	req.URL = strings.TrimSpace(req.URL)
	if req.ID == "" {
		req.ID = observability.NewCorrelationID()
	}

	logger := observability.WithCorrelationID(req.ID).With().
		Str("requester", req.Requester).
		Str("url", req.URL).
		Logger()
	ctx = logger.WithContext(ctx)

	metrics := observability.NewRequestMetrics(req.ID)
	metrics.RecordRequestStart()

	logger.Info().Msg("Narration request received")
	o.recordStart(ctx, logger, req)

	outcome := o.run(ctx, logger, metrics, req)

	metrics.RecordRequestEnd(outcome.Status)
	o.recordFinish(ctx, logger, req.ID, outcome)

	if outcome.Failure != nil {
		return outcome.Failure
	}
	return nil
}

func (o *Orchestrator) run(ctx context.Context, logger zerolog.Logger, metrics *observability.Metrics, req Request) Outcome {
	if err := o.reply(ctx, func(ctx context.Context) error { return req.Reply.SendText(ctx, AckMessage) }); err != nil {
		logger.Warn().Err(err).Msg("Failed to send acknowledgement")
	}

	var extracted string
	err := o.stage(ctx, metrics, StageExtract, o.timeouts.Extract, func(ctx context.Context) error {
		var err error
		extracted, err = o.extractor.Extract(ctx, req.URL)
		return err
	})
	if err != nil {
		return o.fail(ctx, logger, req, &StageError{Stage: StageExtract, Err: err}, 0)
	}
	logger.Debug().Int("bytes", len(extracted)).Msg("Article extracted")

	var edited string
	err = o.stage(ctx, metrics, StageRewrite, o.timeouts.Rewrite, func(ctx context.Context) error {
		var err error
		edited, err = o.rewriteText(ctx, logger, extracted)
		return err
	})
	if err != nil {
		return o.fail(ctx, logger, req, &StageError{Stage: StageRewrite, Err: err}, 0)
	}

	chunks := chunk.Split(strings.TrimSpace(edited), o.maxChunk)
	metrics.RecordChunks(len(chunks))
	logger.Info().Int("parts", len(chunks)).Msg("Text chunked")

	if len(chunks) == 0 {
		if err := o.reply(ctx, func(ctx context.Context) error { return req.Reply.SendText(ctx, EmptyMessage) }); err != nil {
			logger.Warn().Err(err).Msg("Failed to send empty-text notice")
		}
		return Outcome{Status: StatusEmpty}
	}

	for i, text := range chunks {
		var audio []byte
		err := o.stage(ctx, metrics, StageSynthesize, o.timeouts.Synthesize, func(ctx context.Context) error {
			var err error
			audio, err = o.synthesizer.Synthesize(ctx, text)
			return err
		})
		if err != nil {
			return o.fail(ctx, logger, req, &StageError{Stage: StageSynthesize, Index: i, Err: err}, i)
		}

		artifact := NewArtifact(i, audio)
		err = o.stage(ctx, metrics, StageDeliver, o.timeouts.Deliver, func(ctx context.Context) error {
			return req.Reply.SendAudio(ctx, artifact)
		})
		if err != nil {
			return o.fail(ctx, logger, req, &StageError{Stage: StageDeliver, Index: i, Err: err}, i)
		}

		metrics.RecordAudioBytes(len(audio))
		logger.Info().Int("part", i).Int("bytes", len(audio)).Msg("Part delivered")
		o.archivePart(ctx, logger, req.ID, artifact)
	}

	logger.Info().Int("parts", len(chunks)).Msg("Narration complete")
	return Outcome{Status: StatusDone, Parts: len(chunks)}
}

// stage runs fn under the stage deadline and records its timing
func (o *Orchestrator) stage(ctx context.Context, metrics *observability.Metrics, stage Stage, timeout time.Duration, fn func(ctx context.Context) error) error {
	stageCtx, cancel := withTimeout(ctx, timeout)
	defer cancel()

	metrics.RecordStageStart(string(stage))
	err := fn(stageCtx)
	metrics.RecordStageEnd(string(stage), err == nil)

	if err != nil && errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
		return fmt.Errorf("timed out after %v: %w", timeout, err)
	}
	return err
}

func (o *Orchestrator) rewriteText(ctx context.Context, logger zerolog.Logger, extracted string) (string, error) {
	if o.cache != nil {
		edited, ok, err := o.cache.Get(ctx, extracted)
		if err != nil {
			logger.Warn().Err(err).Msg("Rewrite cache lookup failed")
		}
		observability.RecordCacheLookup(ok)
		if ok {
			logger.Debug().Msg("Rewrite cache hit")
			return edited, nil
		}
	}

	edited, err := o.rewriter.Rewrite(ctx, extracted)
	if err != nil {
		return "", err
	}

	if o.cache != nil {
		if err := o.cache.Set(ctx, extracted, edited); err != nil {
			logger.Warn().Err(err).Msg("Rewrite cache store failed")
		}
	}
	return edited, nil
}

// fail reports se to the requester once and builds the failed outcome
func (o *Orchestrator) fail(ctx context.Context, logger zerolog.Logger, req Request, se *StageError, delivered int) Outcome {
	logger.Error().
		Err(se.Err).
		Str("stage", string(se.Stage)).
		Int("part", se.Index).
		Msg("Narration failed")

	if err := o.reply(ctx, func(ctx context.Context) error { return req.Reply.SendText(ctx, se.Message()) }); err != nil {
		logger.Error().Err(err).Msg("Failed to send error message")
	}

	return Outcome{Status: StatusFailed, Parts: delivered, Failure: se}
}

// reply sends a text under the delivery deadline, even if ctx was cancelled
func (o *Orchestrator) reply(ctx context.Context, send func(ctx context.Context) error) error {
	replyCtx, cancel := withTimeout(context.WithoutCancel(ctx), o.timeouts.Deliver)
	defer cancel()
	return send(replyCtx)
}

func (o *Orchestrator) archivePart(ctx context.Context, logger zerolog.Logger, requestID string, artifact AudioArtifact) {
	if o.archive == nil {
		return
	}
	location, err := o.archive.Save(ctx, requestID, artifact)
	if err != nil {
		logger.Warn().Err(err).Int("part", artifact.Index).Msg("Failed to archive part")
		return
	}
	logger.Debug().Str("location", location).Int("part", artifact.Index).Msg("Part archived")
}

func (o *Orchestrator) recordStart(ctx context.Context, logger zerolog.Logger, req Request) {
	if o.history == nil {
		return
	}
	if err := o.history.Start(ctx, req); err != nil {
		logger.Warn().Err(err).Msg("Failed to record request start")
	}
}

func (o *Orchestrator) recordFinish(ctx context.Context, logger zerolog.Logger, id string, outcome Outcome) {
	if o.history == nil {
		return
	}
	if err := o.history.Finish(context.WithoutCancel(ctx), id, outcome); err != nil {
		logger.Warn().Err(err).Msg("Failed to record request outcome")
	}
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
