package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/dgallion1/mindmapgen/internal/assemble"
	"github.com/dgallion1/mindmapgen/internal/cache"
	"github.com/dgallion1/mindmapgen/internal/chunker"
	"github.com/dgallion1/mindmapgen/internal/config"
	"github.com/dgallion1/mindmapgen/internal/dedup"
	"github.com/dgallion1/mindmapgen/internal/document"
	"github.com/dgallion1/mindmapgen/internal/explore"
	"github.com/dgallion1/mindmapgen/internal/extract"
	"github.com/dgallion1/mindmapgen/internal/llm"
	"github.com/dgallion1/mindmapgen/internal/parser"
	"github.com/dgallion1/mindmapgen/internal/schedule"
	"github.com/dgallion1/mindmapgen/internal/verify"
)

// Task priorities: shallower work first, so a budget cut still leaves a
// coherent top of the tree. Verification outranks the next level's
// extraction because unverified parents should not spawn children calls.
const (
	prioTopics       = 60
	prioVerifyTopic  = 50
	prioSubtopics    = 40
	prioVerifySub    = 30
	prioDetails      = 20
	prioVerifyDetail = 10
)

// Runner executes the full generation flow for one job: parse, chunk,
// classify, extract, deduplicate, verify, assemble. All completion calls go
// through a per-run concurrency controller that owns retries and the budget.
type Runner struct {
	cfg       config.Config
	provider  llm.Provider
	extractor *extract.Extractor
	matcher   *dedup.Matcher
	verifier  *verify.Engine
	log       *slog.Logger
}

func NewRunner(cfg config.Config, provider llm.Provider, memo cache.Cache, log *slog.Logger) *Runner {
	dcfg := dedup.DefaultConfig()
	dcfg.TopicThreshold = cfg.FuzzyTopic
	dcfg.SubtopicThreshold = cfg.FuzzySubtopic
	dcfg.DetailThreshold = cfg.FuzzyDetail
	dcfg.JaccardCutoff = cfg.JaccardCutoff
	return &Runner{
		cfg:       cfg,
		provider:  provider,
		extractor: extract.New(provider, log),
		matcher:   dedup.NewMatcher(dcfg, provider, memo, log),
		verifier:  verify.NewEngine(provider, memo, cfg.VerifyBatchSize, log),
		log:       log,
	}
}

// Generate runs the pipeline for one job, recording progress and the final
// tree on the job itself.
func (r *Runner) Generate(ctx context.Context, job *Job) {
	log := r.log.With("job_id", job.ID)

	job.SetStatus(StatusParsing, "parsing")
	p, err := parser.ForFile(job.Filename)
	if err != nil {
		r.fail(job, "parsing", err, log)
		return
	}
	if pdf, ok := p.(*parser.PDFParser); ok {
		pdf.FallbackPdftotext = r.cfg.PDFFallbackPdftotext
	}
	doc, err := p.Parse(bytes.NewReader(job.FileData()), job.Filename)
	if err != nil {
		r.fail(job, "parsing", fmt.Errorf("parse: %w", err), log)
		return
	}
	if t := job.Snapshot().Title; t != "" {
		doc.Title = t
	} else {
		job.SetTitle(doc.Title)
	}
	if strings.TrimSpace(doc.Text) == "" {
		r.fail(job, "parsing", errors.New("no extractable content"), log)
		return
	}

	job.SetStatus(StatusChunking, "chunking")
	chunks := chunker.Split(doc.Text, chunker.Config{
		ChunkSize:      r.cfg.ChunkSize,
		Overlap:        r.cfg.ChunkOverlap,
		BoundaryWindow: r.cfg.BoundaryWindow,
	})
	job.SetTotalChunks(len(chunks))
	log.Info("chunked document", "chunks", len(chunks), "bytes", doc.Len())

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	policy := schedule.RetryPolicy{
		MaxAttempts: r.cfg.MaxAttempts,
		BaseDelay:   r.cfg.BackoffBase,
		MaxDelay:    r.cfg.BackoffMax,
		JitterFrac:  r.cfg.JitterFrac,
		Retryable:   retryable,
	}
	budget := schedule.Budget{MaxCalls: r.cfg.MaxCalls}
	if r.cfg.RunTimeout > 0 {
		budget.Deadline = time.Now().Add(r.cfg.RunTimeout)
	}
	ctrl := schedule.New(r.cfg.MaxConcurrentCalls, policy, log)
	ctrl.Start(runCtx, budget)

	tree, err := r.generate(runCtx, ctrl, job, doc, chunks, log)
	cancel() // release any tasks still queued before draining
	ctrl.Stop()

	if err != nil {
		r.fail(job, job.Snapshot().Phase, err, log)
		return
	}

	counts := ctrl.CountsSnapshot()
	job.SetLLMCalls(counts.Calls)
	tree.FailedTasks = counts.FailedFatal
	tree.Complete = counts.FailedFatal == 0 && !ctrl.Exhausted()
	job.SetTree(tree)

	if tree.Complete {
		job.SetStatus(StatusCompleted, "done")
	} else {
		job.SetStatus(StatusPartial, "done")
	}
	log.Info("mindmap generated",
		"nodes", tree.NodeCount(),
		"complete", tree.Complete,
		"llm_calls", counts.Calls,
		"failed_tasks", counts.FailedFatal,
		"dropped_nodes", tree.DroppedNodes)
}

func (r *Runner) fail(job *Job, phase string, err error, log *slog.Logger) {
	log.Error("generation failed", "phase", phase, "error", err)
	job.AddError(err.Error())
	job.SetStatus(StatusFailed, phase)
}

// retryable classifies errors for the shared retry policy: provider
// transients and unparseable completions retry, everything else is final.
func retryable(err error) bool {
	var pe *extract.ParseError
	return llm.IsTransient(err) || errors.As(err, &pe)
}

func (r *Runner) generate(ctx context.Context, ctrl *schedule.Controller, job *Job, doc *document.Document, chunks []document.Chunk, log *slog.Logger) (*document.Tree, error) {
	job.SetStatus(StatusClassifying, "classifying")
	docType := extract.DetectType(ctx, r.provider, doc, log)

	// Level 1: topics from every chunk, concurrently.
	job.SetStatus(StatusExtracting, "extracting_topics")
	pool, err := r.extractTopics(ctx, ctrl, job, docType, chunks)
	if err != nil {
		return nil, err
	}
	topicCands := r.matcher.Dedup(ctx, extract.Tally(pool))
	log.Info("topic extraction done", "raw", len(pool), "distinct", len(topicCands))

	job.SetStatus(StatusVerifying, "verifying_topics")
	topics, err := r.verifyLevel(ctx, ctrl, job, chunks, toItems(topicCands), prioVerifyTopic)
	if err != nil {
		return nil, err
	}

	// Level 2: subtopics per surviving topic branch.
	job.SetStatus(StatusExtracting, "extracting_subtopics")
	subCands, err := r.extractBranches(ctx, ctrl, job, docType, topics, document.LevelSubtopic, chunks)
	if err != nil {
		return nil, err
	}
	job.SetStatus(StatusVerifying, "verifying_subtopics")
	subtopics, err := r.verifyLevel(ctx, ctrl, job, chunks, toItems(subCands), prioVerifySub)
	if err != nil {
		return nil, err
	}

	// Level 3: details per surviving subtopic branch.
	job.SetStatus(StatusExtracting, "extracting_details")
	detailCands, err := r.extractBranches(ctx, ctrl, job, docType, subtopics, document.LevelDetail, chunks)
	if err != nil {
		return nil, err
	}
	job.SetStatus(StatusVerifying, "verifying_details")
	details, err := r.verifyLevel(ctx, ctrl, job, chunks, toItems(detailCands), prioVerifyDetail)
	if err != nil {
		return nil, err
	}

	job.SetStatus(StatusAssembling, "assembling")
	items := make([]assemble.Item, 0, len(topics)+len(subtopics)+len(details))
	items = append(items, topics...)
	items = append(items, subtopics...)
	items = append(items, details...)

	tree := assemble.Build(doc.Title, items, assemble.Config{
		MaxTopics:     r.cfg.MaxTopics,
		MaxSubtopics:  r.cfg.MaxSubtopics,
		MaxDetails:    r.cfg.MaxDetails,
		ReattachFloor: r.cfg.ReattachFloor,
		TopicMerge:    r.cfg.FuzzyTopic,
		SubtopicMerge: r.cfg.FuzzySubtopic,
		DetailMerge:   r.cfg.FuzzyDetail,
	})
	tree.DroppedNodes += job.Snapshot().Progress.NodesDropped
	return tree, nil
}

// extractTopics fans one extraction task per chunk through the controller
// and gathers all candidates. A failed chunk contributes nothing; a fatal
// provider error aborts the run.
func (r *Runner) extractTopics(ctx context.Context, ctrl *schedule.Controller, job *Job, docType extract.DocumentType, chunks []document.Chunk) ([]document.Candidate, error) {
	var (
		mu   sync.Mutex
		pool []document.Candidate
	)
	tasks := make([]*schedule.Task, 0, len(chunks))
	for _, ch := range chunks {
		ch := ch
		tasks = append(tasks, ctrl.Submit(prioTopics, func(tctx context.Context) error {
			cands, err := r.extractor.Topics(tctx, docType, ch)
			if err != nil {
				return err
			}
			mu.Lock()
			pool = append(pool, cands...)
			mu.Unlock()
			return nil
		}))
	}
	for i, t := range tasks {
		err := t.Wait(ctx)
		job.IncrChunksProcessed()
		if err == nil {
			continue
		}
		if fatal := asFatal(err); fatal != nil {
			return nil, fatal
		}
		if !errors.Is(err, schedule.ErrBudgetExhausted) {
			job.AddError(fmt.Sprintf("chunk %d topics: %s", i, err))
		}
	}
	job.AddCandidates(len(pool))
	return pool, nil
}

// extractBranches mines each parent's own source chunks for children, one
// parent branch at a time per goroutine. Calls within a branch are
// sequential so the novelty tracker can stop the branch as soon as new
// calls stop paying for themselves; branches run concurrently and the
// controller bounds total fan-out.
func (r *Runner) extractBranches(ctx context.Context, ctrl *schedule.Controller, job *Job, docType extract.DocumentType, parents []assemble.Item, level document.Level, chunks []document.Chunk) ([]document.Candidate, error) {
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		all      []document.Candidate
		fatalErr error
	)
	for _, parent := range parents {
		parent := parent
		wg.Add(1)
		go func() {
			defer wg.Done()
			cands, err := r.exploreBranch(ctx, ctrl, job, docType, parent, level, chunks)
			mu.Lock()
			defer mu.Unlock()
			if err != nil && fatalErr == nil {
				fatalErr = err
				return
			}
			all = append(all, cands...)
		}()
	}
	wg.Wait()
	if fatalErr != nil {
		return nil, fatalErr
	}
	job.AddCandidates(len(all))
	return all, nil
}

// exploreBranch walks a parent's source chunks until the branch is mined
// out. Novelty is judged with the cheap similarity stages only; spending an
// LLM call to decide whether to spend more LLM calls would defeat the point.
func (r *Runner) exploreBranch(ctx context.Context, ctrl *schedule.Controller, job *Job, docType extract.DocumentType, parent assemble.Item, level document.Level, chunks []document.Chunk) ([]document.Candidate, error) {
	tracker := explore.NewTracker(explore.Config{Epsilon: r.cfg.Epsilon, Patience: r.cfg.Patience})
	prio := prioSubtopics
	if level == document.LevelDetail {
		prio = prioDetails
	}

	var pool []document.Candidate
	for _, ch := range chunksIn(parent.Chunks, chunks) {
		if !tracker.ShouldContinue() {
			break
		}
		ch := ch
		var cands []document.Candidate
		task := ctrl.Submit(prio, func(tctx context.Context) error {
			var err error
			cands, err = r.extractor.Children(tctx, docType, parent.Label, parent.ID, level, ch)
			return err
		})
		if err := task.Wait(ctx); err != nil {
			if fatal := asFatal(err); fatal != nil {
				return nil, fatal
			}
			if errors.Is(err, schedule.ErrBudgetExhausted) {
				break
			}
			job.AddError(fmt.Sprintf("%s of %q: %s", level.String(), parent.Label, err))
			continue
		}
		tracker.Observe(countNovel(cands, pool, r.levelThreshold(level)), len(cands))
		pool = append(pool, cands...)
	}

	merged := r.matcher.Dedup(ctx, extract.Tally(pool))
	if level == document.LevelDetail {
		merged = r.dropSubsumed(ctx, job, merged, parent.Label)
	}
	return merged, nil
}

func (r *Runner) levelThreshold(level document.Level) float64 {
	switch level {
	case document.LevelTopic:
		return r.cfg.FuzzyTopic
	case document.LevelSubtopic:
		return r.cfg.FuzzySubtopic
	default:
		return r.cfg.FuzzyDetail
	}
}

// countNovel counts candidates with no close match in the existing pool.
func countNovel(cands, pool []document.Candidate, threshold float64) int {
	novel := 0
	for _, c := range cands {
		isNew := true
		for _, p := range pool {
			if dedup.Similarity(c.Text, p.Text) >= threshold {
				isNew = false
				break
			}
		}
		if isNew {
			novel++
		}
	}
	return novel
}

// dropSubsumed removes details that restate their parent or a kept sibling.
func (r *Runner) dropSubsumed(ctx context.Context, job *Job, cands []document.Candidate, parentLabel string) []document.Candidate {
	var keep []document.Candidate
	dropped := 0
	for _, c := range cands {
		if r.matcher.Subsumed(ctx, c.Text, parentLabel) {
			dropped++
			continue
		}
		restates := false
		for _, k := range keep {
			if r.matcher.Subsumed(ctx, c.Text, k.Text) {
				restates = true
				break
			}
		}
		if restates {
			dropped++
			continue
		}
		keep = append(keep, c)
	}
	if dropped > 0 {
		job.SetVerification(0, dropped)
	}
	return keep
}

// verifyLevel checks one level's items against their source chunks and
// returns the survivors with verification confidence in place of the
// extraction hint. Items in a batch that cannot be verified (task failure
// or budget stop) are dropped, never passed through unchecked.
func (r *Runner) verifyLevel(ctx context.Context, ctrl *schedule.Controller, job *Job, chunks []document.Chunk, items []assemble.Item, prio int) ([]assemble.Item, error) {
	if len(items) == 0 {
		return nil, nil
	}
	reqs := make([]verify.Request, 0, len(items))
	for _, it := range items {
		reqs = append(reqs, verify.Request{ID: it.ID, Label: it.Label, Level: it.Level, Chunks: it.Chunks})
	}

	var (
		mu       sync.Mutex
		verdicts = make(map[string]verify.Verdict, len(items))
	)
	batches := r.verifier.Batches(reqs)
	tasks := make([]*schedule.Task, 0, len(batches))
	for _, batch := range batches {
		batch := batch
		tasks = append(tasks, ctrl.Submit(prio, func(tctx context.Context) error {
			got, err := r.verifier.VerifyBatch(tctx, chunks, batch)
			if err != nil {
				return err
			}
			mu.Lock()
			for id, v := range got {
				verdicts[id] = v
			}
			mu.Unlock()
			return nil
		}))
	}
	for _, t := range tasks {
		if err := t.Wait(ctx); err != nil {
			if fatal := asFatal(err); fatal != nil {
				return nil, fatal
			}
			if !errors.Is(err, schedule.ErrBudgetExhausted) {
				job.AddError(fmt.Sprintf("verification: %s", err))
			}
		}
	}

	var survivors []assemble.Item
	verified, dropped := 0, 0
	for _, it := range items {
		v, ok := verdicts[it.ID]
		if !ok || !v.Verified || v.Confidence < r.cfg.ConfidenceFloor {
			dropped++
			continue
		}
		it.Confidence = v.Confidence
		survivors = append(survivors, it)
		verified++
	}
	job.SetVerification(verified, dropped)
	return survivors, nil
}

// asFatal unwraps errors that must abort the run: provider auth and
// configuration failures are never retried and never downgraded to a
// partial result.
func asFatal(err error) error {
	if llm.IsFatal(err) {
		return err
	}
	return nil
}

func toItems(cands []document.Candidate) []assemble.Item {
	out := make([]assemble.Item, 0, len(cands))
	for _, c := range cands {
		out = append(out, assemble.Item{
			ID:         generateULID(),
			Label:      c.Text,
			Level:      c.Level,
			ParentID:   c.ParentID,
			Chunks:     c.Chunks,
			Confidence: c.Confidence,
			Frequency:  c.Frequency,
		})
	}
	return out
}

// chunksIn returns the chunks named by set, in document order.
func chunksIn(set document.ChunkSet, chunks []document.Chunk) []document.Chunk {
	out := make([]document.Chunk, 0, len(set))
	for _, ch := range chunks {
		if set.Contains(ch.ID) {
			out = append(out, ch)
		}
	}
	return out
}
