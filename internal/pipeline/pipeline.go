package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/abadealex/scriptmark/internal/attendance"
	"github.com/abadealex/scriptmark/internal/classify"
	"github.com/abadealex/scriptmark/internal/events"
	"github.com/abadealex/scriptmark/internal/identity"
	"github.com/abadealex/scriptmark/internal/models"
	"github.com/abadealex/scriptmark/internal/observability"
	"github.com/abadealex/scriptmark/internal/repository"
	"github.com/abadealex/scriptmark/internal/roster"
	"github.com/abadealex/scriptmark/internal/scoring"
	"github.com/abadealex/scriptmark/internal/segment"
)

// ErrUnsupportedInput marks a batch document whose type cannot be processed.
var ErrUnsupportedInput = errors.New("unsupported input document")

// Rasterizer turns a source document into per-page handles.
type Rasterizer interface {
	Rasterize(ctx context.Context, document string) ([]string, error)
}

// TextExtractor recognises the text lines on a single page.
type TextExtractor interface {
	ExtractText(ctx context.Context, page string) ([]string, error)
}

// LayoutAnalyzer counts structural text lines on a page. It is an optional
// signal: when absent the classifier renormalises without it.
type LayoutAnalyzer interface {
	CountLines(ctx context.Context, page string) (int, error)
}

// Options tunes batch execution.
type Options struct {
	SessionID     string
	Workers       int
	RetryAttempts int
	RetryBackoff  time.Duration
	CallTimeout   time.Duration
	MatchPolicy   identity.Policy
	Thresholds    identity.Thresholds
}

// Deps carries the pipeline's collaborators. Rasterizer, Extractor, Splitter
// and Classifier are required; the rest degrade to no-ops when nil.
type Deps struct {
	Rasterizer Rasterizer
	Extractor  TextExtractor
	Layout     LayoutAnalyzer
	Splitter   segment.Splitter
	Classifier *classify.Classifier

	Engine *scoring.Engine
	Key    scoring.Key

	Manifests repository.ManifestRepository
	Presence  repository.PresenceRepository
	Publisher *events.Publisher

	Logger zerolog.Logger
}

// UnitResult is the outcome of processing one batch document.
type UnitResult struct {
	UnitIndex  int
	Document   string
	Status     string
	Err        error
	Pages      int
	FrontPages []int
	Segments   []segment.Segment
	PageLines  [][]string
	Duration   time.Duration
}

// SegmentOutcome joins one carved segment with its identity resolution and,
// when scoring ran, its marks.
type SegmentOutcome struct {
	UnitIndex  int
	Segment    segment.Segment
	Resolution identity.Resolution
	Score      *scoring.Result
	ScoreErr   error
}

// BatchResult summarises an entire batch run.
type BatchResult struct {
	BatchID    string
	SessionID  string
	Units      []UnitResult
	Outcomes   []SegmentOutcome
	Attendance []attendance.Record
	Unclaimed  []attendance.Unclaimed
	Failures   []string
}

// Pipeline drives batched script processing: rasterize, extract, classify,
// segment, resolve identities, reconcile attendance and optionally score.
type Pipeline struct {
	opts   Options
	deps   Deps
	logger zerolog.Logger
	tracer trace.Tracer
}

// New validates the collaborators and builds a pipeline.
func New(opts Options, deps Deps) (*Pipeline, error) {
	if deps.Rasterizer == nil || deps.Extractor == nil || deps.Splitter == nil || deps.Classifier == nil {
		return nil, fmt.Errorf("rasterizer, extractor, splitter and classifier are required")
	}
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.RetryAttempts <= 0 {
		opts.RetryAttempts = 3
	}
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = time.Second
	}
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = 30 * time.Second
	}
	if opts.Thresholds == (identity.Thresholds{}) {
		opts.Thresholds = identity.DefaultThresholds()
	}
	observability.RegisterMetrics()

	return &Pipeline{
		opts:   opts,
		deps:   deps,
		logger: deps.Logger.With().Str("component", "pipeline").Logger(),
		tracer: otel.Tracer("github.com/abadealex/scriptmark/internal/pipeline"),
	}, nil
}

// Run processes the batch documents against the roster. Unit failures are
// isolated: a document that cannot be processed is reported in Failures and
// the rest of the batch completes. Identity resolution and attendance are
// computed once, globally, after every unit has been carved.
func (p *Pipeline) Run(ctx context.Context, documents []string, entries []roster.Entry) (BatchResult, error) {
	ctx, span := p.tracer.Start(ctx, "pipeline.Run", trace.WithAttributes(
		attribute.Int("batch.documents", len(documents)),
		attribute.Int("batch.roster", len(entries)),
	))
	defer span.End()

	result := BatchResult{BatchID: uuid.NewString(), SessionID: p.opts.SessionID}

	matcher, err := identity.NewMatcher(entries, p.opts.MatchPolicy, p.opts.Thresholds, p.logger)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return BatchResult{}, fmt.Errorf("build matcher: %w", err)
	}
	resolver := identity.NewResolver(matcher, p.logger)

	p.deps.Publisher.BatchStarted(events.BatchStarted{
		BatchID:   result.BatchID,
		SessionID: p.opts.SessionID,
		Units:     len(documents),
		StartedAt: time.Now().UTC(),
	})

	result.Units = p.runUnits(ctx, result.BatchID, documents)
	if ctx.Err() != nil {
		span.SetStatus(codes.Error, ctx.Err().Error())
		return result, ctx.Err()
	}

	// Flatten segments in unit order so the global assignment sees one
	// deterministic sequence for the whole batch.
	var (
		firstPages [][]string
		segUnit    []int
		segLocal   []int
	)
	for ui := range result.Units {
		unit := &result.Units[ui]
		for si, seg := range unit.Segments {
			firstPages = append(firstPages, unit.PageLines[seg.Range.Start])
			segUnit = append(segUnit, ui)
			segLocal = append(segLocal, si)
		}
	}

	resolutions := resolver.Resolve(firstPages)
	for gi, res := range resolutions {
		unit := &result.Units[segUnit[gi]]
		seg := &unit.Segments[segLocal[gi]]
		method := "unresolved"
		if res.Resolved() {
			entry := res.Candidate.Entry
			seg.Matched = &entry
			seg.Confidence = res.Candidate.Score
			method = string(res.Candidate.Method)
		}
		observability.IdentityOutcomes().WithLabelValues(method).Inc()
		result.Outcomes = append(result.Outcomes, SegmentOutcome{
			UnitIndex:  segUnit[gi],
			Segment:    *seg,
			Resolution: res,
		})
	}

	result.Attendance, result.Unclaimed = attendance.Reconcile(entries, resolutions)

	for _, unit := range result.Units {
		if unit.Err != nil {
			result.Failures = append(result.Failures, fmt.Sprintf("%s: %v", unit.Document, unit.Err))
		}
	}

	if p.deps.Engine != nil && len(p.deps.Key.Questions) > 0 {
		p.scoreOutcomes(ctx, &result)
	}

	if err := p.persist(ctx, &result, segUnit); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return result, err
	}

	p.publishCompletion(&result)
	span.SetAttributes(
		attribute.Int("batch.segments", len(result.Outcomes)),
		attribute.Int("batch.failures", len(result.Failures)),
	)
	return result, nil
}

// runUnits fans the documents out over a bounded worker pool. Results land
// at their unit index so output order is independent of scheduling.
func (p *Pipeline) runUnits(ctx context.Context, batchID string, documents []string) []UnitResult {
	results := make([]UnitResult, len(documents))
	var wg sync.WaitGroup
	sem := make(chan struct{}, p.opts.Workers)

	for i, doc := range documents {
		wg.Add(1)
		go func(idx int, document string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			if ctx.Err() != nil {
				results[idx] = UnitResult{
					UnitIndex: idx,
					Document:  document,
					Status:    models.ManifestStatusCancelled,
					Err:       ctx.Err(),
				}
				return
			}
			results[idx] = p.processUnit(ctx, idx, document)
		}(i, doc)
	}
	wg.Wait()

	for _, unit := range results {
		observability.BatchUnits().WithLabelValues(unit.Status).Inc()
		observability.UnitDuration().WithLabelValues(unit.Status).Observe(unit.Duration.Seconds())
		p.deps.Publisher.UnitProcessed(events.UnitProcessed{
			BatchID:     batchID,
			UnitIndex:   unit.UnitIndex,
			Document:    unit.Document,
			Status:      unit.Status,
			ProcessedAt: time.Now().UTC(),
		})
	}
	return results
}

func (p *Pipeline) processUnit(ctx context.Context, idx int, document string) UnitResult {
	start := time.Now()
	ctx, span := p.tracer.Start(ctx, "pipeline.processUnit", trace.WithAttributes(
		attribute.Int("unit.index", idx),
		attribute.String("unit.document", document),
	))
	defer span.End()

	unit := UnitResult{UnitIndex: idx, Document: document, Status: models.ManifestStatusOK}
	fail := func(err error) UnitResult {
		unit.Err = err
		unit.Status = models.ManifestStatusExtractionFailed
		unit.Duration = time.Since(start)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		p.logger.Error().Err(err).Str("document", document).Msg("unit failed")
		return unit
	}

	if err := sniffDocument(document); err != nil {
		return fail(err)
	}

	var pages []string
	err := p.withRetry(ctx, "rasterizer", func(callCtx context.Context) error {
		var rerr error
		pages, rerr = p.deps.Rasterizer.Rasterize(callCtx, document)
		return rerr
	})
	if err != nil {
		return fail(err)
	}
	if len(pages) == 0 {
		return fail(fmt.Errorf("%w: %s produced no pages", ErrUnsupportedInput, document))
	}
	unit.Pages = len(pages)

	flags := make([]bool, len(pages))
	unit.PageLines = make([][]string, len(pages))
	for pi, page := range pages {
		var lines []string
		err := p.withRetry(ctx, "extractor", func(callCtx context.Context) error {
			var xerr error
			lines, xerr = p.deps.Extractor.ExtractText(callCtx, page)
			return xerr
		})
		if err != nil {
			return fail(err)
		}
		unit.PageLines[pi] = lines

		layoutLines, hasLayout := 0, false
		if p.deps.Layout != nil {
			if n, lerr := p.deps.Layout.CountLines(ctx, page); lerr == nil {
				layoutLines, hasLayout = n, true
			} else {
				p.logger.Warn().Err(lerr).Int("page", pi).Msg("layout analysis unavailable")
			}
		}

		rec := p.deps.Classifier.Classify(pi, lines, layoutLines, hasLayout)
		flags[pi] = rec.FrontPage
		observability.PagesClassified().WithLabelValues(fmt.Sprintf("%t", rec.FrontPage)).Inc()
	}

	unit.FrontPages = segment.FrontPageIndices(flags)
	if len(unit.FrontPages) == 0 {
		// Whole document becomes one segment; route it to review rather
		// than dropping it.
		unit.Status = models.ManifestStatusNeedsReview
		p.logger.Warn().Str("document", document).Msg("no front page detected, treating document as one segment")
	}

	ranges, err := segment.Ranges(unit.FrontPages, len(pages))
	if err != nil {
		return fail(err)
	}

	var segments []segment.Segment
	err = p.withRetry(ctx, "splitter", func(callCtx context.Context) error {
		var serr error
		segments, serr = segment.Build(callCtx, p.deps.Splitter, document, ranges)
		return serr
	})
	if err != nil {
		return fail(err)
	}
	unit.Segments = segments
	observability.SegmentsBuilt().Add(float64(len(segments)))

	unit.Duration = time.Since(start)
	span.SetAttributes(
		attribute.Int("unit.pages", unit.Pages),
		attribute.Int("unit.segments", len(segments)),
	)
	return unit
}

// scoreOutcomes marks every resolved segment. Answer blocks are the text of
// the pages following the segment's front page, one block per page. Scoring
// goes through the same timeout and retry machinery as the other external
// calls; a segment whose marks cannot be computed is routed to review and
// reported in Failures while the rest of the batch carries on.
func (p *Pipeline) scoreOutcomes(ctx context.Context, result *BatchResult) {
	for oi := range result.Outcomes {
		outcome := &result.Outcomes[oi]
		if !outcome.Resolution.Resolved() {
			continue
		}
		unit := &result.Units[outcome.UnitIndex]
		answers := p.answerBlocks(*unit, outcome.Segment)
		var scored scoring.Result
		err := p.withRetry(ctx, "similarity", func(callCtx context.Context) error {
			var serr error
			scored, serr = p.deps.Engine.ScoreSubmission(callCtx, answers, p.deps.Key)
			return serr
		})
		if err != nil {
			outcome.ScoreErr = err
			if unit.Status == models.ManifestStatusOK {
				unit.Status = models.ManifestStatusNeedsReview
			}
			result.Failures = append(result.Failures,
				fmt.Sprintf("%s segment %d: scoring: %v", unit.Document, outcome.Resolution.SegmentIndex, err))
			p.logger.Error().Err(err).
				Str("document", unit.Document).
				Int("segment", outcome.Resolution.SegmentIndex).
				Msg("scoring failed, segment routed to review")
			continue
		}
		outcome.Score = &scored
	}
}

func (p *Pipeline) answerBlocks(unit UnitResult, seg segment.Segment) []string {
	var blocks []string
	for pi := seg.Range.Start + 1; pi < seg.Range.End; pi++ {
		blocks = append(blocks, strings.Join(unit.PageLines[pi], "\n"))
	}
	return blocks
}

// persist writes the manifest and presence register when storage is wired.
func (p *Pipeline) persist(ctx context.Context, result *BatchResult, segUnit []int) error {
	if p.deps.Manifests != nil {
		// One row per roster entry: absent students land with matched=false
		// and zero marks so the manifest is the full session register.
		for _, rec := range result.Attendance {
			entry := models.ScriptManifest{
				SessionID:    p.opts.SessionID,
				StudentID:    rec.Entry.ID,
				StudentName:  rec.Entry.Name,
				SegmentIndex: rec.SegmentIndex,
				Matched:      rec.Present,
				Present:      rec.Present,
				MatchedBy:    string(rec.MatchedBy),
				Confidence:   rec.Confidence,
				Status:       models.ManifestStatusOK,
			}
			if rec.SegmentIndex >= 0 && rec.SegmentIndex < len(result.Outcomes) {
				outcome := result.Outcomes[rec.SegmentIndex]
				entry.Document = result.Units[segUnit[rec.SegmentIndex]].Document
				entry.Status = result.Units[segUnit[rec.SegmentIndex]].Status
				if outcome.Score != nil {
					entry.Score = outcome.Score.Total
					entry.MaxScore = outcome.Score.MaxTotal
					entry.Percentage = outcome.Score.Percentage
				}
			}
			if _, err := p.deps.Manifests.Upsert(ctx, entry); err != nil {
				return fmt.Errorf("persist manifest for %s: %w", rec.Entry.ID, err)
			}
		}
	}

	if p.deps.Presence != nil {
		records := make([]models.PresenceRecord, 0, len(result.Attendance))
		for _, rec := range result.Attendance {
			records = append(records, models.PresenceRecord{
				SessionID:    p.opts.SessionID,
				StudentID:    rec.Entry.ID,
				Name:         rec.Entry.Name,
				Present:      rec.Present,
				MatchedBy:    string(rec.MatchedBy),
				Confidence:   rec.Confidence,
				SegmentIndex: rec.SegmentIndex,
			})
		}
		if err := p.deps.Presence.ReplaceSession(ctx, p.opts.SessionID, records); err != nil {
			return fmt.Errorf("persist presence register: %w", err)
		}
	}
	return nil
}

func (p *Pipeline) publishCompletion(result *BatchResult) {
	succeeded, review, failed := 0, 0, 0
	for _, unit := range result.Units {
		switch unit.Status {
		case models.ManifestStatusOK:
			succeeded++
		case models.ManifestStatusNeedsReview:
			review++
		default:
			failed++
		}
	}
	p.deps.Publisher.BatchCompleted(events.BatchCompleted{
		BatchID:     result.BatchID,
		Succeeded:   succeeded,
		NeedsReview: review,
		Failed:      failed,
		CompletedAt: time.Now().UTC(),
	})
}

// sniffDocument rejects on-disk documents of a type the pipeline cannot
// handle. Handles that do not resolve to a local file are passed through for
// the rasterizer to judge.
func sniffDocument(document string) error {
	if _, err := os.Stat(document); err != nil {
		return nil
	}
	mtype, err := mimetype.DetectFile(document)
	if err != nil {
		return fmt.Errorf("sniff %s: %w", document, err)
	}
	switch {
	case mtype.Is("application/pdf"):
		return nil
	case strings.HasPrefix(mtype.String(), "image/"):
		return nil
	case mtype.Is("text/plain"):
		return nil
	default:
		return fmt.Errorf("%w: %s is %s", ErrUnsupportedInput, document, mtype.String())
	}
}
