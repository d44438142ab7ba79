package app

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"

	"docchat/internal/ingest"
	"docchat/internal/model"
	"docchat/internal/pkg/logger"
	"docchat/internal/platform/rabbitmq"
	"docchat/internal/repository"
	"docchat/internal/storage"
	"docchat/internal/worker"
)

type DocumentService struct {
	docs         *repository.DocumentRepository
	files        storage.Storage
	indexer      *ingest.Indexer
	publisher    rabbitmq.Publisher
	async        bool
	processQueue string
	eventsQueue  string
	log          *logger.Logger
}

type DocumentServiceDeps struct {
	Documents    *repository.DocumentRepository
	Files        storage.Storage
	Indexer      *ingest.Indexer
	Publisher    rabbitmq.Publisher
	Async        bool
	ProcessQueue string
	EventsQueue  string
	Logger       *logger.Logger
}

func NewDocumentService(deps DocumentServiceDeps) *DocumentService {
	if deps.Publisher == nil {
		deps.Publisher = rabbitmq.NopPublisher{}
	}
	if deps.Logger == nil {
		deps.Logger = logger.Nop()
	}
	return &DocumentService{
		docs:         deps.Documents,
		files:        deps.Files,
		indexer:      deps.Indexer,
		publisher:    deps.Publisher,
		async:        deps.Async,
		processQueue: deps.ProcessQueue,
		eventsQueue:  deps.EventsQueue,
		log:          deps.Logger,
	}
}

type UploadFile struct {
	Name        string
	ContentType string
	Data        []byte
}

// UploadResult reports one file of a batch upload. Error names the document.
type UploadResult struct {
	Name       string          `json:"name"`
	Document   *model.Document `json:"document,omitempty"`
	Processed  bool            `json:"processed"`
	Queued     bool            `json:"queued"`
	ChunkCount int             `json:"chunk_count,omitempty"`
	Error      string          `json:"error,omitempty"`
	err        error
}

// Err returns the failure behind Error, if any.
func (r UploadResult) Err() error {
	return r.err
}

// Upload stores, registers and processes each file independently. A failing file
// does not stop the rest of the batch.
func (s *DocumentService) Upload(ctx context.Context, userID uint, files []UploadFile) ([]UploadResult, error) {
	if userID == 0 || len(files) == 0 {
		return nil, ErrInvalidInput
	}
	results := make([]UploadResult, 0, len(files))
	for _, f := range files {
		res := s.uploadOne(ctx, userID, f)
		if res.err != nil {
			res.Error = res.err.Error()
		}
		results = append(results, res)
	}
	return results, nil
}

func (s *DocumentService) uploadOne(ctx context.Context, userID uint, f UploadFile) UploadResult {
	name := filepath.Base(strings.TrimSpace(f.Name))
	res := UploadResult{Name: name}
	if name == "" || name == "." || len(f.Data) == 0 {
		res.err = fmt.Errorf("upload document %q failed: %w", name, ErrInvalidInput)
		return res
	}

	contentType := strings.TrimSpace(f.ContentType)
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = mimetype.Detect(f.Data).String()
	}
	if _, err := ingest.ResolveKind(contentType, name); err != nil {
		res.err = fmt.Errorf("upload document %q failed: %w", name, err)
		return res
	}

	key := storage.NewKey(userID, name)
	if err := s.files.Save(ctx, key, f.Data, contentType); err != nil {
		res.err = fmt.Errorf("store document %q failed: %w", name, err)
		return res
	}
	doc := &model.Document{
		UserID:   userID,
		Name:     name,
		Type:     contentType,
		FilePath: key,
	}
	if err := s.docs.Create(doc); err != nil {
		res.err = fmt.Errorf("register document %q failed: %w", name, err)
		return res
	}
	res.Document = doc
	s.log.Info("document uploaded", "user_id", userID, "document_id", doc.ID, "type", contentType, "bytes", len(f.Data))

	if s.async {
		if err := s.enqueue(ctx, doc); err != nil {
			res.err = err
		} else {
			res.Queued = true
		}
		return res
	}

	out, err := s.run(ctx, doc)
	if err != nil {
		res.err = fmt.Errorf("process document %q failed: %w", name, err)
		return res
	}
	res.Processed = true
	res.ChunkCount = out.ChunkCount
	return res
}

// Process (re)builds the index of one of the user's documents.
func (s *DocumentService) Process(ctx context.Context, userID, documentID uint) (*model.Document, *ingest.Result, error) {
	if userID == 0 || documentID == 0 {
		return nil, nil, ErrInvalidInput
	}
	doc, err := s.docs.GetByIDAndUserID(documentID, userID)
	if err != nil {
		return nil, nil, err
	}
	if doc == nil {
		return nil, nil, repository.ErrDocumentNotFound
	}
	out, err := s.run(ctx, doc)
	if err != nil {
		return doc, nil, fmt.Errorf("process document %q failed: %w", doc.Name, err)
	}
	return doc, out, nil
}

func (s *DocumentService) List(userID uint) ([]model.Document, error) {
	if userID == 0 {
		return nil, ErrInvalidInput
	}
	return s.docs.ListByUserID(userID, false)
}

// HandleProcessJob runs a queued processing job. Busy documents are retried later;
// documents that no longer exist are dropped.
func (s *DocumentService) HandleProcessJob(ctx context.Context, job model.ProcessDocumentJob) error {
	doc, err := s.docs.GetByIDAndUserID(job.DocumentID, job.UserID)
	if err != nil {
		return err
	}
	if doc == nil {
		s.log.Warn("queued document not found", "document_id", job.DocumentID, "user_id", job.UserID)
		return nil
	}
	if _, err := s.run(ctx, doc); err != nil {
		if errors.Is(err, ingest.ErrDocumentBusy) {
			return fmt.Errorf("%w: %w", worker.ErrRetry, err)
		}
		return fmt.Errorf("process document %q failed: %w", doc.Name, err)
	}
	return nil
}

func (s *DocumentService) run(ctx context.Context, doc *model.Document) (*ingest.Result, error) {
	out, err := s.indexer.Process(ctx, doc)
	if err != nil {
		s.log.Warn("document processing failed", "document_id", doc.ID, "user_id", doc.UserID, "error", err)
		return nil, err
	}
	s.publishProcessed(ctx, doc, out)
	return out, nil
}

func (s *DocumentService) enqueue(ctx context.Context, doc *model.Document) error {
	job := model.ProcessDocumentJob{UserID: doc.UserID, DocumentID: doc.ID, QueuedAt: time.Now()}
	if err := s.publisher.Publish(ctx, s.processQueue, job); err != nil {
		return fmt.Errorf("queue document %q failed: %w", doc.Name, err)
	}
	return nil
}

func (s *DocumentService) publishProcessed(ctx context.Context, doc *model.Document, out *ingest.Result) {
	if s.eventsQueue == "" {
		return
	}
	evt := model.DocumentProcessedEvent{
		UserID:        doc.UserID,
		DocumentID:    doc.ID,
		DocumentName:  doc.Name,
		VectorStoreID: out.Locator,
		ChunkCount:    out.ChunkCount,
		ProcessedAt:   time.Now(),
	}
	if err := s.publisher.Publish(ctx, s.eventsQueue, evt); err != nil {
		s.log.Warn("publish document event failed", "document_id", doc.ID, "error", err)
	}
}
