package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/inkwell-ai/inkwell-core/internal/chunker"
	"github.com/inkwell-ai/inkwell-core/internal/core/domain"
	"github.com/inkwell-ai/inkwell-core/internal/core/ports/driven"
	"github.com/inkwell-ai/inkwell-core/internal/core/ports/driving"
	"github.com/inkwell-ai/inkwell-core/internal/logger"
)

// Ensure IngestionService implements the interface.
var _ driving.IngestionService = (*IngestionService)(nil)

// Ingestion defaults.
const (
	// DefaultIngestWorkers is how many books are processed in parallel.
	DefaultIngestWorkers = 2

	// DefaultQueueSize bounds the number of queued ingestion runs.
	DefaultQueueSize = 64

	// DefaultEmbedBatchSize is how many chunks go to the embedder per
	// call.
	DefaultEmbedBatchSize = 64

	// DefaultUpsertBatchSize is how many points go to the vector index
	// per call.
	DefaultUpsertBatchSize = 100

	// DefaultMaxEmbedAttempts is the per-batch retry budget.
	DefaultMaxEmbedAttempts = 3

	// DefaultRetryBaseDelay seeds the exponential backoff between
	// embedding retries.
	DefaultRetryBaseDelay = 500 * time.Millisecond

	// DefaultEmbedFailureThreshold is the fraction of chunks that may
	// fail to embed before the whole run is abandoned.
	DefaultEmbedFailureThreshold = 0.5

	// DefaultRunTimeout bounds one complete ingestion run.
	DefaultRunTimeout = 10 * time.Minute

	// DefaultReconcileInterval is how often the reconciler looks for
	// books stuck in pending.
	DefaultReconcileInterval = time.Minute

	// DefaultStalePendingAge is how long a book may sit pending before
	// the reconciler re-enqueues it.
	DefaultStalePendingAge = 10 * time.Minute

	// MinExtractableChars is the default lower bound for extracted text.
	// Shorter extractions indicate a scanned or corrupt file.
	MinExtractableChars = 100
)

// DefaultContentValidator rejects extractions too short to chat about.
func DefaultContentValidator(text string) error {
	if len(strings.TrimSpace(text)) < MinExtractableChars {
		return fmt.Errorf("extracted text is too short (%d chars, need %d)",
			len(strings.TrimSpace(text)), MinExtractableChars)
	}
	return nil
}

// IngestConfig tunes the ingestion pipeline. Zero values take the
// defaults.
type IngestConfig struct {
	// Workers is the number of parallel ingestion workers.
	Workers int

	// QueueSize bounds the run queue.
	QueueSize int

	// EmbedBatchSize is the chunk count per embedding call.
	EmbedBatchSize int

	// UpsertBatchSize is the point count per vector index call.
	UpsertBatchSize int

	// MaxEmbedAttempts is the per-batch retry budget.
	MaxEmbedAttempts int

	// RetryBaseDelay seeds the exponential backoff between retries.
	RetryBaseDelay time.Duration

	// EmbedFailureThreshold is the tolerated fraction of failed chunks.
	EmbedFailureThreshold float64

	// RunTimeout bounds one complete ingestion run.
	RunTimeout time.Duration

	// ReconcileInterval is how often stale pending books are rescued.
	ReconcileInterval time.Duration

	// StalePendingAge is how long a book may sit pending before the
	// reconciler picks it up.
	StalePendingAge time.Duration
}

func (c *IngestConfig) applyDefaults() {
	if c.Workers <= 0 {
		c.Workers = DefaultIngestWorkers
	}
	if c.QueueSize <= 0 {
		c.QueueSize = DefaultQueueSize
	}
	if c.EmbedBatchSize <= 0 {
		c.EmbedBatchSize = DefaultEmbedBatchSize
	}
	if c.UpsertBatchSize <= 0 {
		c.UpsertBatchSize = DefaultUpsertBatchSize
	}
	if c.MaxEmbedAttempts <= 0 {
		c.MaxEmbedAttempts = DefaultMaxEmbedAttempts
	}
	if c.RetryBaseDelay <= 0 {
		c.RetryBaseDelay = DefaultRetryBaseDelay
	}
	if c.EmbedFailureThreshold <= 0 || c.EmbedFailureThreshold > 1 {
		c.EmbedFailureThreshold = DefaultEmbedFailureThreshold
	}
	if c.RunTimeout <= 0 {
		c.RunTimeout = DefaultRunTimeout
	}
	if c.ReconcileInterval <= 0 {
		c.ReconcileInterval = DefaultReconcileInterval
	}
	if c.StalePendingAge <= 0 {
		c.StalePendingAge = DefaultStalePendingAge
	}
}

// IngestionService turns uploaded books into embedded, searchable
// segment collections. Runs are queued and executed by a bounded worker
// pool; the processing state acts as the per-book mutual-exclusion
// marker so a book is never ingested twice concurrently.
type IngestionService struct {
	books     driven.BookStore
	blobs     driven.BlobStore
	extractor driven.TextExtractor
	splitter  *chunker.Splitter
	embedder  driven.EmbeddingService
	index     driven.VectorIndex
	validate  driven.ContentValidator
	sinks     []driven.EventSink
	cfg       IngestConfig

	queue    chan string
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	mu      sync.Mutex
	running bool
}

// NewIngestionService creates the ingestion orchestrator. A nil
// validator installs DefaultContentValidator; sinks are optional.
func NewIngestionService(
	books driven.BookStore,
	blobs driven.BlobStore,
	extractor driven.TextExtractor,
	splitter *chunker.Splitter,
	embedder driven.EmbeddingService,
	index driven.VectorIndex,
	validate driven.ContentValidator,
	sinks []driven.EventSink,
	cfg IngestConfig,
) *IngestionService {
	cfg.applyDefaults()
	if validate == nil {
		validate = DefaultContentValidator
	}
	if splitter == nil {
		splitter = chunker.New()
	}

	return &IngestionService{
		books:     books,
		blobs:     blobs,
		extractor: extractor,
		splitter:  splitter,
		embedder:  embedder,
		index:     index,
		validate:  validate,
		sinks:     sinks,
		cfg:       cfg,
		queue:     make(chan string, cfg.QueueSize),
		stopCh:    make(chan struct{}),
	}
}

// Enqueue schedules an ingestion run. The pending -> processing
// transition is a compare-and-set, so of two concurrent triggers
// exactly one wins and the other gets ErrProcessingConflict.
func (s *IngestionService) Enqueue(ctx context.Context, bookID string) error {
	book, err := s.books.GetBook(ctx, bookID)
	if err != nil {
		return fmt.Errorf("get book: %w", err)
	}

	switch book.State {
	case domain.ProcessingInProgress:
		return fmt.Errorf("%w: book %s", domain.ErrProcessingConflict, bookID)
	case domain.ProcessingCompleted:
		return fmt.Errorf("%w: book %s is already ingested, use reprocess", domain.ErrProcessingConflict, bookID)
	case domain.ProcessingFailed:
		return fmt.Errorf("%w: book %s failed previously, use reprocess", domain.ErrProcessingConflict, bookID)
	}

	if err := s.books.TransitionState(ctx, bookID, domain.ProcessingPending, domain.ProcessingInProgress); err != nil {
		return fmt.Errorf("claim book: %w", err)
	}

	select {
	case s.queue <- bookID:
		logger.Info("ingestion queued", "book", bookID)
		return nil
	case <-ctx.Done():
		// Give the claim back so the reconciler can rescue the book.
		if terr := s.books.TransitionState(context.WithoutCancel(ctx), bookID,
			domain.ProcessingInProgress, domain.ProcessingPending); terr != nil {
			logger.Error("release claimed book", "book", bookID, "error", terr)
		}
		return ctx.Err()
	}
}

// Reprocess resets a failed or completed book and queues a fresh run.
// The worker drops the old collection before re-indexing, so running it
// twice still leaves exactly one segment set.
func (s *IngestionService) Reprocess(ctx context.Context, bookID string) error {
	book, err := s.books.GetBook(ctx, bookID)
	if err != nil {
		return fmt.Errorf("get book: %w", err)
	}

	switch book.State {
	case domain.ProcessingInProgress:
		return fmt.Errorf("%w: book %s", domain.ErrProcessingConflict, bookID)
	case domain.ProcessingFailed, domain.ProcessingCompleted:
		if err := s.books.TransitionState(ctx, bookID, book.State, domain.ProcessingPending); err != nil {
			return fmt.Errorf("reset book: %w", err)
		}
		book.ResetForReprocess()
		if err := s.books.SaveBook(ctx, book); err != nil {
			return fmt.Errorf("save book: %w", err)
		}
	}

	return s.Enqueue(ctx, bookID)
}

// Status reports the book's current ingestion state.
func (s *IngestionService) Status(ctx context.Context, bookID string) (*driving.IngestStatus, error) {
	book, err := s.books.GetBook(ctx, bookID)
	if err != nil {
		return nil, fmt.Errorf("get book: %w", err)
	}

	return &driving.IngestStatus{
		BookID:      book.ID,
		State:       book.State,
		Error:       book.ProcessingError,
		TotalChunks: book.TotalChunks,
		ProcessedAt: book.ProcessedAt,
	}, nil
}

// Start launches the worker pool and the reconciler, then blocks until
// the context is cancelled or Stop is called.
func (s *IngestionService) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("ingestion service already started")
	}
	s.running = true
	s.mu.Unlock()

	s.recoverOrphans(ctx)

	for i := 0; i < s.cfg.Workers; i++ {
		s.wg.Add(1)
		go s.worker()
	}
	s.wg.Add(1)
	go s.reconcile()

	logger.Info("ingestion started",
		"workers", s.cfg.Workers, "queue_size", s.cfg.QueueSize)

	select {
	case <-ctx.Done():
	case <-s.stopCh:
	}
	return s.Stop()
}

// Stop drains whatever is already queued, waits for in-flight runs to
// finish, and returns. Safe to call more than once.
func (s *IngestionService) Stop() error {
	s.stopOnce.Do(func() { close(s.stopCh) })
	s.wg.Wait()
	logger.Info("ingestion stopped")
	return nil
}

// worker processes queued runs until stopped, then drains the queue.
func (s *IngestionService) worker() {
	defer s.wg.Done()

	for {
		select {
		case bookID := <-s.queue:
			s.process(bookID)
		case <-s.stopCh:
			for {
				select {
				case bookID := <-s.queue:
					s.process(bookID)
				default:
					return
				}
			}
		}
	}
}

// process executes one run under the run timeout and records failures
// on the book.
func (s *IngestionService) process(bookID string) {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.RunTimeout)
	defer cancel()

	start := time.Now()
	if err := s.run(ctx, bookID); err != nil {
		logger.Error("ingestion failed", "book", bookID, "error", err)
		s.markFailed(bookID, err)
		return
	}
	logger.Info("ingestion complete", "book", bookID, "took", time.Since(start).Round(time.Millisecond))
}

// run executes the ingestion pipeline for one claimed book.
func (s *IngestionService) run(ctx context.Context, bookID string) error {
	// 1. LOAD THE BOOK
	book, err := s.books.GetBook(ctx, bookID)
	if err != nil {
		return fmt.Errorf("get book: %w", err)
	}
	if book.State != domain.ProcessingInProgress {
		// Claim lost between queueing and execution. Leave it alone.
		logger.Warn("skipping unclaimed book", "book", bookID, "state", book.State)
		return nil
	}

	// 2. FETCH THE ORIGINAL FILE
	data, err := s.blobs.Get(ctx, book.StorageKey)
	if err != nil {
		return fmt.Errorf("fetch original file: %w", err)
	}

	// 3. EXTRACT TEXT
	text, err := s.extractor.Extract(ctx, data, book.FileType)
	if err != nil {
		return fmt.Errorf("extract text: %w", err)
	}

	// 4. VALIDATE CONTENT
	if err := s.validate(text); err != nil {
		return &domain.ExtractionError{FileType: book.FileType, Reason: err.Error()}
	}

	// 5. CHUNK
	chunks := s.splitter.Chunk(text)
	if len(chunks) == 0 {
		return &domain.ExtractionError{FileType: book.FileType, Reason: "no extractable text"}
	}
	logger.Debug("chunked", "book", bookID, "chunks", len(chunks))

	// 6. REBUILD THE COLLECTION
	// Dropping first guarantees a reprocess never duplicates segments.
	if err := s.index.DropCollection(ctx, book.ID); err != nil {
		return fmt.Errorf("drop collection: %w", err)
	}
	if err := s.index.EnsureCollection(ctx, book.ID, s.embedder.Dimensions()); err != nil {
		return fmt.Errorf("create collection: %w", err)
	}

	// 7. EMBED AND INDEX
	segments, err := s.embedAndIndex(ctx, book, chunks)
	if err != nil {
		return err
	}

	// 8. PERSIST SEGMENTS AND MARK COMPLETED
	if err := s.books.ReplaceSegments(ctx, book.ID, segments); err != nil {
		return fmt.Errorf("store segments: %w", err)
	}

	words := len(strings.Fields(text))
	book.TotalChunks = len(segments)
	book.TotalWords = words
	book.EstimatedPages = domain.EstimatePages(words)
	book.EmbeddingModel = s.embedder.ModelName()
	book.CollectionID = book.ID
	book.ProcessingError = ""
	book.ProcessedAt = time.Now().UTC()
	if err := s.books.SaveBook(ctx, book); err != nil {
		return fmt.Errorf("save book: %w", err)
	}
	if err := s.books.TransitionState(ctx, book.ID, domain.ProcessingInProgress, domain.ProcessingCompleted); err != nil {
		return fmt.Errorf("mark completed: %w", err)
	}

	s.emit(ctx, domain.Event{
		Type:   domain.EventBookIngested,
		BookID: book.ID,
		UserID: book.OwnerID,
		Detail: map[string]any{
			"chunks": len(segments),
			"words":  words,
			"model":  book.EmbeddingModel,
		},
		OccurredAt: book.ProcessedAt,
	})
	return nil
}

// embedAndIndex embeds chunks batch by batch and upserts the vectors.
// Failed batches are counted, not fatal, until they cross the failure
// threshold.
func (s *IngestionService) embedAndIndex(
	ctx context.Context,
	book *domain.Book,
	chunks []chunker.Chunk,
) ([]domain.Segment, error) {
	total := len(chunks)
	segments := make([]domain.Segment, 0, total)
	points := make([]driven.VectorPoint, 0, s.cfg.UpsertBatchSize)
	failed := 0

	for start := 0; start < total; start += s.cfg.EmbedBatchSize {
		end := start + s.cfg.EmbedBatchSize
		if end > total {
			end = total
		}
		batch := chunks[start:end]
		batchIdx := start / s.cfg.EmbedBatchSize

		texts := make([]string, len(batch))
		for i, c := range batch {
			texts[i] = c.Text
		}

		vectors, err := s.embedBatch(ctx, texts, batchIdx)
		if err != nil {
			if ctx.Err() != nil {
				return nil, err
			}
			failed += len(batch)
			logger.Warn("embedding batch failed",
				"book", book.ID, "batch", batchIdx, "chunks", len(batch), "error", err)
			if float64(failed) > s.cfg.EmbedFailureThreshold*float64(total) {
				return nil, fmt.Errorf("%d of %d chunks failed to embed: %w", failed, total, err)
			}
			continue
		}

		for i, c := range batch {
			idx := start + i
			seg := domain.Segment{
				ID:        uuid.New().String(),
				BookID:    book.ID,
				Index:     idx,
				Text:      c.Text,
				Page:      domain.PageForOffset(c.Offset),
				Embedding: vectors[i],
			}
			segments = append(segments, seg)
			points = append(points, driven.VectorPoint{
				SegmentID: seg.ID,
				Vector:    vectors[i],
				Payload: driven.VectorPayload{
					Index: seg.Index,
					Text:  seg.Text,
					Page:  seg.Page,
				},
			})
		}

		if len(points) >= s.cfg.UpsertBatchSize {
			if err := s.index.Upsert(ctx, book.ID, points); err != nil {
				return nil, fmt.Errorf("index segments: %w", err)
			}
			points = points[:0]
		}
	}

	if len(points) > 0 {
		if err := s.index.Upsert(ctx, book.ID, points); err != nil {
			return nil, fmt.Errorf("index segments: %w", err)
		}
	}

	if failed > 0 {
		logger.Warn("ingestion tolerated embedding failures",
			"book", book.ID, "failed_chunks", failed, "total_chunks", total)
	}
	return segments, nil
}

// embedBatch calls the embedder with exponential backoff.
func (s *IngestionService) embedBatch(ctx context.Context, texts []string, batchIdx int) ([][]float32, error) {
	var lastErr error
	for attempt := 1; attempt <= s.cfg.MaxEmbedAttempts; attempt++ {
		vectors, err := s.embedder.EmbedBatch(ctx, texts)
		if err == nil {
			if len(vectors) != len(texts) {
				return nil, fmt.Errorf("embedder returned %d vectors for %d texts", len(vectors), len(texts))
			}
			return vectors, nil
		}
		lastErr = err

		if attempt < s.cfg.MaxEmbedAttempts {
			delay := s.cfg.RetryBaseDelay << (attempt - 1)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}
	return nil, &domain.EmbeddingError{Batch: batchIdx, Attempts: s.cfg.MaxEmbedAttempts, Err: lastErr}
}

// markFailed records the failure on the book and flips it to failed.
func (s *IngestionService) markFailed(bookID string, cause error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	book, err := s.books.GetBook(ctx, bookID)
	if err != nil {
		logger.Error("load book for failure record", "book", bookID, "error", err)
		return
	}
	book.ProcessingError = cause.Error()
	if err := s.books.SaveBook(ctx, book); err != nil {
		logger.Error("save failure record", "book", bookID, "error", err)
	}
	if err := s.books.TransitionState(ctx, bookID, domain.ProcessingInProgress, domain.ProcessingFailed); err != nil {
		logger.Error("mark book failed", "book", bookID, "error", err)
	}

	s.emit(ctx, domain.Event{
		Type:       domain.EventBookFailed,
		BookID:     bookID,
		UserID:     book.OwnerID,
		Detail:     map[string]any{"error": cause.Error()},
		OccurredAt: time.Now().UTC(),
	})
}

// recoverOrphans marks books left in processing by a previous crash as
// failed so they can be reprocessed explicitly.
func (s *IngestionService) recoverOrphans(ctx context.Context) {
	books, err := s.books.ListBooksInState(ctx, domain.ProcessingInProgress)
	if err != nil {
		logger.Error("scan for orphaned books", "error", err)
		return
	}
	for i := range books {
		book := &books[i]
		logger.Warn("recovering orphaned book", "book", book.ID)
		book.ProcessingError = "ingestion interrupted by restart"
		if err := s.books.SaveBook(ctx, book); err != nil {
			logger.Error("save orphan record", "book", book.ID, "error", err)
			continue
		}
		if err := s.books.TransitionState(ctx, book.ID,
			domain.ProcessingInProgress, domain.ProcessingFailed); err != nil {
			logger.Error("mark orphan failed", "book", book.ID, "error", err)
		}
	}
}

// reconcile periodically rescues books that sat pending longer than the
// stale age, e.g. when a claim was released after a queue-full trigger.
func (s *IngestionService) reconcile() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.ReconcileInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.rescuePending()
		case <-s.stopCh:
			return
		}
	}
}

// rescuePending enqueues stale pending books.
func (s *IngestionService) rescuePending() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	books, err := s.books.ListBooksInState(ctx, domain.ProcessingPending)
	if err != nil {
		logger.Error("scan pending books", "error", err)
		return
	}

	cutoff := time.Now().UTC().Add(-s.cfg.StalePendingAge)
	for i := range books {
		book := &books[i]
		if book.UpdatedAt.After(cutoff) {
			continue
		}
		logger.Info("rescuing stale pending book", "book", book.ID)
		if err := s.Enqueue(ctx, book.ID); err != nil && !errors.Is(err, domain.ErrProcessingConflict) {
			logger.Error("rescue pending book", "book", book.ID, "error", err)
		}
	}
}

// emit delivers an event to every sink, fire-and-forget.
func (s *IngestionService) emit(ctx context.Context, event domain.Event) {
	for _, sink := range s.sinks {
		go func(sk driven.EventSink) {
			if err := sk.Emit(context.WithoutCancel(ctx), event); err != nil {
				logger.Warn("event sink failed", "type", string(event.Type), "error", err)
			}
		}(sink)
	}
}
