package evaluation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"unicode/utf8"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"

	"github.com/spigell/search-evaluator/internal/ai"
	"github.com/spigell/search-evaluator/internal/logger"
	"github.com/spigell/search-evaluator/internal/utils"
)

const (
	queryPreviewLength  = 50
	defaultMaxLogLength = 200
)

// Recorder receives evaluation outcomes, typically for metrics.
type Recorder interface {
	RecordEvaluation(reasonCode string, parseFallback bool)
	RecordEvaluationError(kind string)
}

type Evaluator struct {
	generator        ai.Generator
	logger           *zap.Logger
	recorder         Recorder
	batchConcurrency int
	maxLogLen        int
}

type Option func(*Evaluator)

// WithRecorder registers a sink for evaluation outcomes.
func WithRecorder(r Recorder) Option {
	return func(e *Evaluator) { e.recorder = r }
}

// WithBatchConcurrency sets how many batch items are scored at once.
// Values below 2 keep batches strictly sequential.
func WithBatchConcurrency(n int) Option {
	return func(e *Evaluator) { e.batchConcurrency = n }
}

// WithMaxLogLength bounds prompt and reply previews in debug logs.
func WithMaxLogLength(n int) Option {
	return func(e *Evaluator) {
		if n > 0 {
			e.maxLogLen = n
		}
	}
}

func NewEvaluator(generator ai.Generator, log *zap.Logger, opts ...Option) *Evaluator {
	e := &Evaluator{
		generator:        generator,
		logger:           logger.WithFields(log),
		batchConcurrency: 1,
		maxLogLen:        defaultMaxLogLength,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.generator != nil {
		e.logger = logger.WithCommonFields(e.logger, "", e.generator.Model())
	}
	return e
}

// Evaluate scores a single query/item pair. Unparseable model output is not
// an error; generation failures and taxonomy misses are.
func (e *Evaluator) Evaluate(ctx context.Context, item *QueryItem) (*Result, error) {
	if item == nil {
		return nil, WrapError(ErrInvalidInput, "evaluate", errors.New("query item is required"))
	}
	if e.generator == nil {
		return nil, WrapError(ErrGeneration, "evaluate", errors.New("generator is not configured"))
	}

	log := logger.ForContext(ctx, e.logger)
	log.Info("evaluating query", zap.String(logger.FieldQueryPreview, utils.TruncateForLog(item.Query, queryPreviewLength)))

	prompt := BuildPrompt(item)
	log.Debug("generate content request",
		zap.Int("prompt_length", utf8.RuneCountInString(prompt)),
		zap.String("prompt_preview", utils.TruncateForLog(prompt, e.maxLogLen)),
	)

	raw, err := e.generator.GenerateContent(ctx, prompt)
	if err != nil {
		e.recordError("generation")
		return nil, WrapError(ErrGeneration, "generate content", err)
	}

	log.Debug("generate content response",
		zap.Int("response_length", utf8.RuneCountInString(raw)),
		zap.String("response_preview", utils.TruncateForLog(raw, e.maxLogLen)),
	)

	reply := ParseReply(raw)
	switch {
	case reply.Fallback():
		log.Warn("failed to parse model response",
			zap.String("response_preview", utils.TruncateForLog(raw, e.maxLogLen)),
			zap.Error(reply.Err),
		)
	case len(reply.Missing) > 0:
		log.Debug("model response is missing labels", zap.Strings("labels", reply.Missing))
	}

	code, err := ReasonCodeFor(reply.Score)
	if err != nil {
		log.Error("unexpected score returned by model", zap.Int("score", reply.Score), zap.String("reason_code", code))
		e.recordError("invalid_score")
		return nil, err
	}

	result := &Result{
		RelevanceScore: reply.Score,
		ReasonCode:     code,
		Confidence:     RoundConfidence(reply.Confidence),
		AIReasoning:    reply.Reason,
	}

	log.Info("evaluation complete",
		zap.Int("score", result.RelevanceScore),
		zap.Float64("confidence", result.Confidence),
		zap.String("reason", result.AIReasoning),
	)

	if e.recorder != nil {
		e.recorder.RecordEvaluation(code, reply.Fallback() || len(reply.Missing) > 0)
	}

	return result, nil
}

// EvaluateBatch scores items and returns results in input order. Any failure
// aborts the whole batch and no partial results are returned.
func (e *Evaluator) EvaluateBatch(ctx context.Context, items []QueryItem) ([]*Result, error) {
	log := logger.ForContext(ctx, e.logger)
	log.Info("evaluating batch", zap.Int("items", len(items)), zap.Int("concurrency", e.batchConcurrency))

	var (
		results []*Result
		err     error
	)
	if e.batchConcurrency > 1 && len(items) > 1 {
		results, err = e.evaluateParallel(ctx, items)
	} else {
		results, err = e.evaluateSequential(ctx, items)
	}
	if err != nil {
		log.Error("batch evaluation failed", zap.Error(err))
		return nil, err
	}

	return results, nil
}

func (e *Evaluator) evaluateSequential(ctx context.Context, items []QueryItem) ([]*Result, error) {
	results := make([]*Result, len(items))
	for i := range items {
		result, err := e.Evaluate(ctx, &items[i])
		if err != nil {
			return nil, fmt.Errorf("evaluate item %d: %w", i, err)
		}
		results[i] = result
	}
	return results, nil
}

func (e *Evaluator) evaluateParallel(ctx context.Context, items []QueryItem) ([]*Result, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	pool, err := ants.NewPool(min(e.batchConcurrency, len(items)))
	if err != nil {
		return nil, fmt.Errorf("create batch pool: %w", err)
	}
	defer pool.Release()

	var (
		wg       sync.WaitGroup
		once     sync.Once
		firstErr error
	)
	fail := func(i int, err error) {
		once.Do(func() {
			firstErr = fmt.Errorf("evaluate item %d: %w", i, err)
			cancel()
		})
	}

	results := make([]*Result, len(items))
	for i := range items {
		if ctx.Err() != nil {
			break
		}

		wg.Add(1)
		submitErr := pool.Submit(func() {
			defer wg.Done()
			if err := ctx.Err(); err != nil {
				fail(i, err)
				return
			}
			result, err := e.Evaluate(ctx, &items[i])
			if err != nil {
				fail(i, err)
				return
			}
			results[i] = result
		})
		if submitErr != nil {
			wg.Done()
			fail(i, submitErr)
			break
		}
	}
	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return results, nil
}

func (e *Evaluator) recordError(kind string) {
	if e.recorder != nil {
		e.recorder.RecordEvaluationError(kind)
	}
}
