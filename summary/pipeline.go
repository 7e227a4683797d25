package summary

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/onnwee/chat-scribe/capture"
	"github.com/onnwee/chat-scribe/telemetry"
)

// DefaultTimeout bounds one provider attempt when a descriptor does not set its own.
const DefaultTimeout = 60 * time.Second

// Pipeline runs the provider fallback chain. It implements capture.Summarizer.
type Pipeline struct {
	generators  map[string]Generator
	descriptors []Descriptor
	limiter     *Limiter
}

// NewPipeline returns a pipeline over descs. limiter may be nil for no limit.
func NewPipeline(gens map[string]Generator, descs []Descriptor, limiter *Limiter) *Pipeline {
	return &Pipeline{generators: gens, descriptors: descs, limiter: limiter}
}

// Descriptors returns the fallback chain in order.
func (p *Pipeline) Descriptors() []Descriptor {
	return append([]Descriptor(nil), p.descriptors...)
}

type outcome struct {
	summary capture.Summary
	ok      bool
}

// Summarize returns the first non-empty summary. ok is false when nothing could be produced.
func (p *Pipeline) Summarize(ctx context.Context, channelName string, records []capture.Record) (capture.Summary, bool) {
	if len(p.descriptors) == 0 {
		return capture.Summary{}, false
	}
	prompt := BuildPrompt(channelName, records)
	if prompt == "" {
		return capture.Summary{}, false
	}
	if p.limiter != nil {
		if !p.limiter.Acquire(ctx) {
			return capture.Summary{}, false
		}
		defer p.limiter.Release()
	}

	out := p.run(ctx, prompt)
	return out.summary, out.ok
}

func (p *Pipeline) run(ctx context.Context, prompt string) outcome {
	ctx, span := telemetry.StartSpan(ctx, "summary", "summarize")
	defer span.End()
	logger := telemetry.LoggerWithCorr(ctx).With(slog.String("component", "summary"))

	for _, d := range p.descriptors {
		gen := p.generators[d.Provider]
		if gen == nil {
			continue
		}
		timeout := d.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		actx, cancel := context.WithTimeout(ctx, timeout)
		start := time.Now()
		text, err := gen.Generate(actx, d.Model, prompt)
		cancel()
		if err == nil && strings.TrimSpace(text) == "" {
			err = ErrEmptyResponse
		}
		if err == nil {
			telemetry.ObserveSummaryAttempt(d.Provider, "ok", time.Since(start))
			span.SetAttributes(telemetry.ProviderAttr(d.Provider), telemetry.ModelAttr(d.Model))
			telemetry.SetSpanSuccess(span)
			logger.Info("summary generated", slog.String("provider", d.Provider), slog.String("model", d.Model), slog.Duration("took", time.Since(start)))
			return outcome{summary: capture.Summary{Text: text, Provider: d.Provider, Model: d.Model}, ok: true}
		}
		class := ClassifyError(err)
		telemetry.ObserveSummaryAttempt(d.Provider, class.String(), time.Since(start))
		logger.Warn("summary provider failed", slog.String("provider", d.Provider), slog.String("model", d.Model), slog.String("class", class.String()), slog.Any("err", err))
		if ctx.Err() != nil {
			// parent context is done; later attempts cannot succeed
			break
		}
	}
	telemetry.IncSummaryUnavailable()
	telemetry.RecordError(span, errors.New("all summary providers failed"))
	logger.Warn("all summary providers failed", slog.Int("providers", len(p.descriptors)))
	return outcome{}
}
