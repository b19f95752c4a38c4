package ingestion_engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/docubot/docubot-api/internal/core"
	"github.com/docubot/docubot-api/internal/models"
)

// Config tunes the processing pipeline.
//
// MaxTokens:        approximate tokens per chunk (e.g., 500).
// OverlapTokens:    token overlap between consecutive chunks (e.g., 50).
// MinTokens:        below this a chunk is a merge candidate (e.g., 100).
// Merge:            coalesce undersized chunks before embedding.
// PersistBatchSize: chunk rows written per insert (e.g., 50).
// EmbedDim:         expected embedding dimensionality; must match the
//                   vector column. 0 disables the check.
type Config struct {
	MaxTokens        int
	OverlapTokens    int
	MinTokens        int
	Merge            bool
	PersistBatchSize int
	EmbedDim         int
}

// JobHandle is the caller's view of one submitted processing job. Done is
// closed when the job reaches a terminal state; Err is valid after that.
// The authoritative outcome is always the persisted document status.
type JobHandle struct {
	docID string
	done  chan struct{}
	err   error
}

func (h *JobHandle) DocumentID() string { return h.docID }

func (h *JobHandle) Done() <-chan struct{} { return h.done }

// Err returns the terminal error of the job, nil on success. Only valid
// once Done is closed.
func (h *JobHandle) Err() error { return h.err }

// Processor orchestrates chunking → embedding → persistence → status
// transitions for one document at a time per job. All collaborators are
// injected; the processor holds no ambient state.
//
// The processor never runs two jobs for the same document concurrently on
// its own behalf, but it does not lock: callers must not submit a document
// that is already processing.
type Processor struct {
	db        core.DbClient
	obj       core.ObjectClient
	embedder  core.EmbeddingProvider
	extractor core.TextExtractor
	cfg       *Config
	log       *zap.Logger

	jobs    chan *JobHandle
	workers *errgroup.Group
}

// NewProcessor constructs the processor with a bounded job queue (64).
func NewProcessor(db core.DbClient, obj core.ObjectClient, emb core.EmbeddingProvider, ext core.TextExtractor, cfg *Config, log *zap.Logger) *Processor {
	return &Processor{
		db: db, obj: obj, embedder: emb, extractor: ext, cfg: cfg, log: log,
		jobs: make(chan *JobHandle, 64),
	}
}

// Start runs numWorkers goroutines draining the job queue until ctx is
// cancelled.
func (p *Processor) Start(ctx context.Context, numWorkers int) {
	g := new(errgroup.Group)
	for w := 1; w <= numWorkers; w++ {
		w := w
		g.Go(func() error {
			for {
				if ctx.Err() != nil {
					p.log.Info("ingestion worker shutting down", zap.Int("worker", w))
					return nil
				}
				select {
				case <-ctx.Done():
					p.log.Info("ingestion worker shutting down", zap.Int("worker", w))
					return nil
				case h := <-p.jobs:
					p.run(h, w)
				}
			}
		})
	}
	p.workers = g
}

// Wait blocks until all workers have exited, then fails any jobs still
// queued so their handles resolve. Submit must not be called once Wait
// has been.
func (p *Processor) Wait() {
	if p.workers != nil {
		_ = p.workers.Wait()
	}
	for {
		select {
		case h := <-p.jobs:
			h.err = context.Canceled
			close(h.done)
		default:
			return
		}
	}
}

// Submit schedules a document for processing and returns a handle the
// caller may await or poll. If the queue is full, Submit blocks until
// space frees up.
func (p *Processor) Submit(docID string) *JobHandle {
	h := &JobHandle{docID: docID, done: make(chan struct{})}
	p.jobs <- h
	return h
}

// run executes one job to its terminal state. Errors are already recorded
// on the document by the time they reach here; the handle and log are the
// only other observers.
func (p *Processor) run(h *JobHandle, worker int) {
	// Jobs outlive the request that queued them; give each its own deadline.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	p.log.Info("processing document", zap.String("document_id", h.docID), zap.Int("worker", worker))
	h.err = p.processStored(ctx, h.docID)
	if h.err != nil {
		p.log.Warn("document processing failed", zap.String("document_id", h.docID), zap.Error(h.err))
	}
	close(h.done)
}

// processStored downloads the document's source bytes, extracts text, and
// runs Process.
func (p *Processor) processStored(ctx context.Context, docID string) error {
	doc, err := p.db.GetDocumentByID(ctx, docID)
	if err != nil {
		return fmt.Errorf("load document: %w", err)
	}
	if doc == nil {
		return ErrDocumentNotFound
	}

	bucket, key := parseS3URL(doc.StorageURL)
	data, err := p.obj.GetFile(ctx, bucket, key)
	if err != nil {
		p.fail(ctx, docID, fmt.Errorf("download source: %w", err))
		return fmt.Errorf("download source: %w", err)
	}

	text, err := p.extractor.Extract(data, doc.MimeType)
	if err != nil {
		p.fail(ctx, docID, fmt.Errorf("extract text: %w", err))
		return fmt.Errorf("extract text: %w", err)
	}

	return p.Process(ctx, docID, text)
}

// Process runs the full pipeline for one document whose text is already in
// hand: transition to processing, chunk, embed in one logical batch,
// persist in fixed-size batches, finalize counts. Every failure is caught
// here, recorded as the document's error message and a failed status, and
// returned only for logging; callers observe the outcome through the
// persisted document.
func (p *Processor) Process(ctx context.Context, docID string, content string) error {
	doc, err := p.db.GetDocumentByID(ctx, docID)
	if err != nil {
		return fmt.Errorf("load document: %w", err)
	}
	if doc == nil {
		return ErrDocumentNotFound
	}

	if err := p.db.UpdateDocumentStatus(ctx, docID, models.DocumentStatusProcessing, ""); err != nil {
		return fmt.Errorf("mark processing: %w", err)
	}

	chunks := SplitText(content, ChunkOptions{
		MaxTokens:          p.cfg.MaxTokens,
		OverlapTokens:      p.cfg.OverlapTokens,
		PreserveParagraphs: true,
	})
	if p.cfg.Merge {
		chunks = MergeChunks(chunks, p.cfg.MinTokens, p.cfg.MaxTokens)
	}

	if len(chunks) == 0 {
		p.fail(ctx, docID, ErrEmptyDocument)
		return ErrEmptyDocument
	}

	texts := make([]string, len(chunks))
	for i := range chunks {
		texts[i] = chunks[i].Content
	}

	// One logical embedding call for the whole document. Nothing is
	// persisted for a failed embedding pass.
	res, err := p.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		p.fail(ctx, docID, fmt.Errorf("embed batch: %w", err))
		return fmt.Errorf("embed batch: %w", err)
	}
	if len(res.Embeddings) != len(chunks) {
		err := fmt.Errorf("embed batch: got %d vectors for %d chunks", len(res.Embeddings), len(chunks))
		p.fail(ctx, docID, err)
		return err
	}
	if p.cfg.EmbedDim > 0 {
		for i, vec := range res.Embeddings {
			if len(vec) != p.cfg.EmbedDim {
				err := fmt.Errorf("embed batch: vector %d has dimension %d, want %d", i, len(vec), p.cfg.EmbedDim)
				p.fail(ctx, docID, err)
				return err
			}
		}
	}

	rows := make([]models.DocumentChunk, len(chunks))
	now := time.Now()
	for i, ch := range chunks {
		rows[i] = models.DocumentChunk{
			ID:         uuid.NewString(),
			DocumentID: docID,
			UserID:     doc.UserID,
			Position:   ch.Index,
			Content:    ch.Content,
			Embedding:  res.Embeddings[i],
			TokenCount: ch.TokenCount,
			Metadata:   ch.Metadata,
			CreatedAt:  now,
		}
	}

	// Fixed-size insert batches bound payload size. A failed batch aborts
	// the attempt; rows from earlier batches stay until a reprocess clears
	// them.
	for start := 0; start < len(rows); start += p.cfg.PersistBatchSize {
		end := start + p.cfg.PersistBatchSize
		if end > len(rows) {
			end = len(rows)
		}
		if err := p.db.InsertDocumentChunks(ctx, rows[start:end]); err != nil {
			p.fail(ctx, docID, fmt.Errorf("persist chunks: %w", err))
			return fmt.Errorf("persist chunks: %w", err)
		}
		p.log.Debug("persisted chunk batch",
			zap.String("document_id", docID), zap.Int("from", start), zap.Int("to", end))
	}

	// The stored rows must be exactly this run's rows; stray leftovers from
	// an earlier aborted attempt would poison retrieval.
	switch n, err := p.db.CountChunksByDocument(ctx, docID); {
	case err != nil:
		p.fail(ctx, docID, fmt.Errorf("count chunks: %w", err))
		return fmt.Errorf("count chunks: %w", err)
	case n != len(rows):
		err := fmt.Errorf("persist chunks: %d rows stored, want %d", n, len(rows))
		p.fail(ctx, docID, err)
		return err
	}

	totalTokens := res.TotalTokens
	if totalTokens == 0 {
		for _, ch := range chunks {
			totalTokens += ch.TokenCount
		}
	}

	if err := p.db.MarkDocumentCompleted(ctx, docID, len(rows), totalTokens, time.Now()); err != nil {
		return fmt.Errorf("mark completed: %w", err)
	}
	p.log.Info("document processed",
		zap.String("document_id", docID), zap.Int("chunks", len(rows)), zap.Int("tokens", totalTokens))
	return nil
}

// Reprocess clears a document's chunks and runs the pipeline again from
// the stored source bytes. Rejected outright while the document is mid-
// processing; that check is the caller-obligation guard, not a lock.
func (p *Processor) Reprocess(ctx context.Context, docID string) (*models.Document, error) {
	doc, err := p.db.GetDocumentByID(ctx, docID)
	if err != nil {
		return nil, fmt.Errorf("load document: %w", err)
	}
	if doc == nil {
		return nil, ErrDocumentNotFound
	}
	if doc.Status == models.DocumentStatusProcessing {
		return nil, ErrAlreadyProcessing
	}

	if err := p.db.DeleteChunksByDocument(ctx, docID); err != nil {
		return nil, fmt.Errorf("clear chunks: %w", err)
	}

	_ = p.processStored(ctx, docID)

	return p.db.GetDocumentByID(ctx, docID)
}

// fail records a terminal failure on the document. Best effort: a broken
// status write leaves the error in the log only.
func (p *Processor) fail(ctx context.Context, docID string, cause error) {
	if err := p.db.UpdateDocumentStatus(ctx, docID, models.DocumentStatusFailed, cause.Error()); err != nil {
		p.log.Error("could not record failure",
			zap.String("document_id", docID), zap.NamedError("cause", cause), zap.Error(err))
	}
}

// parseS3URL extracts the bucket and key from a virtual-hosted-style S3
// URL, e.g. https://my-bucket.s3.us-east-2.amazonaws.com/path/to/file.pdf.
func parseS3URL(u string) (bucket, key string) {
	hostPath := strings.SplitN(strings.TrimPrefix(u, "https://"), "/", 2)
	host := hostPath[0]
	if len(hostPath) == 2 {
		key = hostPath[1]
	}
	if parts := strings.Split(host, "."); len(parts) > 0 {
		bucket = parts[0]
	}
	return bucket, key
}
