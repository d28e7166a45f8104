package scraper

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/area-listing-scraper/internal/dispatcher"
	"github.com/JakeFAU/area-listing-scraper/internal/metrics"
	"github.com/JakeFAU/area-listing-scraper/internal/progress"
)

// State is a job's position in the coordinator state machine.
type State string

// Coordinator states. Cancelled, Aborted, Failed, and Done are absorbing.
const (
	StateInit              State = "init"
	StateResolvingArea     State = "resolving_area"
	StateResolvingPages    State = "resolving_pages"
	StateCollectingURLs    State = "collecting_urls"
	StateExtractingRecords State = "extracting_records"
	StateClassifying       State = "classifying"
	StateGeneratingReport  State = "generating_report"
	StateDone              State = "done"
	StateCancelled         State = "cancelled"
	StateAborted           State = "aborted"
	StateFailed            State = "failed"
)

// Notification is published when a job produces its reports.
type Notification struct {
	JobToken         string    `json:"job_token"`
	AreaID           int64     `json:"area_id"`
	AreaName         string    `json:"area_name"`
	FileName         string    `json:"file_name"`
	ExcludedFileName string    `json:"excluded_file_name,omitempty"`
	TargetCount      int       `json:"target_count"`
	ExcludedCount    int       `json:"excluded_count"`
	CompletedAt      time.Time `json:"completed_at"`
}

// CoordinatorDeps groups the collaborators of a Coordinator. Publisher and
// Topic are optional.
type CoordinatorDeps struct {
	Scraper   *Scraper
	Areas     AreaStore
	Signals   CancelSignals
	Reports   ReportSink
	Publisher Publisher
	Topic     string
	IDs       IDGenerator
	Clock     Clock
}

// Coordinator drives scraping jobs. Each Run owns its job state on its own
// stack; the only state shared between jobs is the cancellation signal store.
type Coordinator struct {
	deps   CoordinatorDeps
	logger *zap.Logger
}

// NewCoordinator builds a Coordinator.
func NewCoordinator(deps CoordinatorDeps, logger *zap.Logger) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if deps.Clock == nil {
		deps.Clock = wallClock{}
	}
	return &Coordinator{deps: deps, logger: logger}
}

// Run executes one job for areaID, emitting its event sequence to emit. The
// terminal event is emitted last and also returned. The job's cancellation
// signal is removed before the terminal event is emitted, whatever the exit
// path.
func (c *Coordinator) Run(ctx context.Context, areaID string, emit progress.Emitter) progress.Event {
	if emit == nil {
		emit = progress.EmitterFunc(func(progress.Event) {})
	}
	ctx, span := otel.Tracer("scraper").Start(ctx, "scraper.job",
		trace.WithAttributes(attribute.String("area_id", areaID)))
	defer span.End()

	j := &job{c: c, out: emit, state: StateInit, logger: c.logger}
	final := j.runSafely(ctx, areaID)
	j.clearSignal(ctx)
	j.emit(final)
	j.logger.Info("job finished", zap.String("stage", string(j.state)), zap.String("outcome", string(final.Type)))

	span.SetAttributes(
		attribute.String("job_token", j.token),
		attribute.String("outcome", string(final.Type)),
	)
	if final.Type == progress.TypeError || final.Type == progress.TypeAborted {
		span.SetStatus(codes.Error, string(final.Type))
	}
	return final
}

type job struct {
	c      *Coordinator
	out    progress.Emitter
	token  string
	area   AreaRef
	state  State
	logger *zap.Logger
}

func (j *job) runSafely(ctx context.Context, areaID string) (final progress.Event) {
	defer func() {
		if r := recover(); r != nil {
			j.logger.Error("job panicked",
				zap.String("stage", string(j.state)),
				zap.Any("panic", r),
				zap.Stack("stack"),
			)
			j.enter(StateFailed)
			final = progress.Error(j.token, fmt.Sprintf("予期しないエラーが発生しました: %v", r))
		}
	}()
	return j.run(ctx, areaID)
}

func (j *job) run(ctx context.Context, rawID string) progress.Event {
	deps := j.c.deps

	j.enter(StateResolvingArea)
	area, err := j.resolveArea(ctx, rawID)
	if err != nil {
		return j.fail(err)
	}
	j.area = area
	j.logger = j.logger.With(zap.Int64("area_id", area.ID))

	token, err := deps.IDs.NewID()
	if err != nil {
		return j.fail(fmt.Errorf("mint job token: %w", err))
	}
	j.token = token
	j.logger = j.logger.With(zap.String("job_token", token))
	j.emit(progress.JobID(token))
	j.emit(progress.Message(token, fmt.Sprintf("「%s」のスクレイピングを開始します。", area.Name)))
	if j.cancelled(ctx) {
		return j.cancel()
	}

	j.enter(StateResolvingPages)
	pageCount, finalURL, err := deps.Scraper.ResolvePages(ctx, area.StartURL, token)
	if err != nil {
		if errors.Is(err, ErrCancelled) || j.cancelled(ctx) {
			return j.cancel()
		}
		j.enter(StateAborted)
		j.logger.Error("area page unreachable", zap.String("url", area.StartURL), zap.Error(err))
		return progress.Aborted(token, fmt.Sprintf("エリアページを取得できませんでした: %s", area.StartURL))
	}
	if j.cancelled(ctx) {
		return j.cancel()
	}
	j.emit(progress.Message(token, fmt.Sprintf("総ページ数を特定しました: %dページ。一覧からURLを収集中...", pageCount)))

	j.enter(StateCollectingURLs)
	urls, err := deps.Scraper.CollectURLs(ctx, finalURL, pageCount, token, progress.EmitterFunc(j.emit))
	if err != nil {
		if errors.Is(err, ErrCancelled) {
			return j.cancel()
		}
		return j.fail(fmt.Errorf("collect urls: %w", err))
	}
	if j.cancelled(ctx) {
		return j.cancel()
	}
	j.emit(progress.Message(token, fmt.Sprintf("%d件のユニークなサロンURLを収集しました。詳細情報の取得を開始します。", len(urls))))
	if len(urls) == 0 {
		j.emit(progress.Message(token, "対象エリアにサロンが見つかりませんでした。"))
	}

	j.enter(StateExtractingRecords)
	details, err := j.extractAll(ctx, urls)
	if err != nil {
		return j.cancel()
	}
	if j.cancelled(ctx) {
		return j.cancel()
	}
	j.emit(progress.Message(token, fmt.Sprintf("%d件の詳細情報を取得しました。Excelファイルを生成します。", len(details))))

	j.enter(StateClassifying)
	set := Partition(Dedup(details))

	j.enter(StateGeneratingReport)
	report, err := j.writeReports(ctx, set)
	if err != nil {
		return j.fail(err)
	}
	if j.cancelled(ctx) {
		return j.cancel()
	}
	j.publish(ctx, report, set)

	j.enter(StateDone)
	return progress.Done(token, progress.Result{
		FileName:         report.TargetFileName,
		ExcludedFileName: report.ExcludedFileName,
		PreviewRows:      report.PreviewRows,
		TargetCount:      len(set.Target),
		ExcludedCount:    len(set.Excluded),
	})
}

func (j *job) resolveArea(ctx context.Context, rawID string) (AreaRef, error) {
	rawID = strings.TrimSpace(rawID)
	if rawID == "" {
		return AreaRef{}, ErrNoArea
	}
	id, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil {
		return AreaRef{}, fmt.Errorf("%w: invalid area id %q", ErrNotFound, rawID)
	}
	area, err := j.c.deps.Areas.LookupArea(ctx, id)
	if err != nil {
		return AreaRef{}, fmt.Errorf("lookup area %d: %w", id, err)
	}
	return area, nil
}

// extractAll fans record extraction out to the pool. It returns ErrCancelled
// when cancellation is observed between completions.
func (j *job) extractAll(ctx context.Context, urls []string) ([]RecordDetail, error) {
	s := j.c.deps.Scraper
	details := make([]RecordDetail, 0, len(urls))
	if len(urls) == 0 {
		return details, nil
	}
	batch := dispatcher.Run(ctx, s.workers, urls, func(ctx context.Context, u string) (*RecordDetail, error) {
		metrics.IncActiveTasks("record")
		defer metrics.DecActiveTasks("record")
		return s.ExtractRecord(ctx, u, j.token)
	})
	defer batch.Stop()

	current := 0
	for res := range batch.Results() {
		if j.cancelled(ctx) {
			return nil, ErrCancelled
		}
		current++
		switch {
		case res.Err != nil && noResult(res.Err):
			j.logger.Warn("record unavailable", zap.String("url", res.Input), zap.Error(res.Err))
		case res.Err != nil:
			j.logger.Error("record extraction failed", zap.String("url", res.Input), zap.Error(res.Err))
			j.emit(progress.Message(j.token, fmt.Sprintf("エラー発生: %s の処理中に問題がありました。", res.Input)))
		case res.Value != nil:
			details = append(details, *res.Value)
		}
		j.emit(progress.Progress(j.token, current, len(urls)))
	}
	return details, nil
}

func (j *job) writeReports(ctx context.Context, set ClassifiedResultSet) (JobReport, error) {
	deps := j.c.deps
	name := ReportFileName(j.area.Name, deps.Clock.Now())
	report := JobReport{TargetFileName: name, PreviewRows: Preview(set.Target)}
	if _, err := deps.Reports.WriteSpreadsheet(ctx, TargetSheet(set.Target), name); err != nil {
		return JobReport{}, fmt.Errorf("write target report: %w", err)
	}
	if len(set.Excluded) > 0 {
		excludedName := ExcludedFilePrefix + name
		if _, err := deps.Reports.WriteSpreadsheet(ctx, ExcludedSheet(set.Excluded), excludedName); err != nil {
			return JobReport{}, fmt.Errorf("write excluded report: %w", err)
		}
		report.ExcludedFileName = excludedName
	}
	return report, nil
}

// publish announces a finished job. Failures are logged and never change the
// job outcome.
func (j *job) publish(ctx context.Context, report JobReport, set ClassifiedResultSet) {
	deps := j.c.deps
	if deps.Publisher == nil || deps.Topic == "" {
		return
	}
	msg := Notification{
		JobToken:         j.token,
		AreaID:           j.area.ID,
		AreaName:         j.area.Name,
		FileName:         report.TargetFileName,
		ExcludedFileName: report.ExcludedFileName,
		TargetCount:      len(set.Target),
		ExcludedCount:    len(set.Excluded),
		CompletedAt:      deps.Clock.Now().UTC(),
	}
	id, err := deps.Publisher.Publish(ctx, deps.Topic, msg)
	if err != nil {
		j.logger.Warn("publish job notification failed", zap.String("topic", deps.Topic), zap.Error(err))
		return
	}
	j.logger.Debug("published job notification", zap.String("topic", deps.Topic), zap.String("message_id", id))
}

// cancelled treats a finished context like an active signal.
func (j *job) cancelled(ctx context.Context) bool {
	if ctx.Err() != nil {
		return true
	}
	return j.c.deps.Signals != nil && j.c.deps.Signals.Cancelled(ctx, j.token)
}

func (j *job) cancel() progress.Event {
	j.logger.Info("job cancelled", zap.String("stage", string(j.state)))
	j.enter(StateCancelled)
	return progress.Cancelled(j.token)
}

func (j *job) fail(err error) progress.Event {
	j.logger.Error("job failed", zap.String("stage", string(j.state)), zap.Error(err))
	j.enter(StateFailed)
	switch {
	case errors.Is(err, ErrNoArea):
		return progress.Error(j.token, "エリアが選択されていません。")
	case errors.Is(err, ErrNotFound):
		return progress.Error(j.token, fmt.Sprintf("エリアが見つかりません: %v", err))
	default:
		return progress.Error(j.token, err.Error())
	}
}

func (j *job) enter(s State) {
	j.logger.Debug("job stage", zap.String("stage", string(s)))
	j.state = s
}

func (j *job) emit(evt progress.Event) {
	if evt.TS.IsZero() {
		evt.TS = j.c.deps.Clock.Now().UTC()
	}
	j.out.Emit(evt)
}

// clearSignal removes the job's cancellation signal. It runs even when the
// caller's context has ended.
func (j *job) clearSignal(ctx context.Context) {
	if j.token == "" || j.c.deps.Signals == nil {
		return
	}
	cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := j.c.deps.Signals.Clear(cleanupCtx, j.token); err != nil {
		j.logger.Warn("clear cancellation signal failed", zap.Error(err))
	}
}

type wallClock struct{}

func (wallClock) Now() time.Time { return time.Now() }
