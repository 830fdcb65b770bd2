// Package corpus imports tender documents into the retrieval corpus and
// serves vector retrieval over the imported chunks.
package corpus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/tenderwise/tenderflow/internal/db"
	"github.com/tenderwise/tenderflow/internal/embedding"
	"github.com/tenderwise/tenderflow/internal/metrics"
	"github.com/tenderwise/tenderflow/internal/models"
	"github.com/tenderwise/tenderflow/internal/parser"
	"github.com/tenderwise/tenderflow/internal/storage"
)

// ErrFileFilterUnsupported signals that the retrieval backend cannot
// restrict results to a set of file ids. Callers fall back to an
// unfiltered retrieval.
var ErrFileFilterUnsupported = errors.New("file id filter not supported by retrieval backend")

// embedBatchSize bounds how many chunks are embedded per call.
const embedBatchSize = 16

// ChunkStore is the persistence surface the corpus service needs.
// Implemented by *db.Client.
type ChunkStore interface {
	CreateCorpusFile(ctx context.Context, rec db.CorpusFileRecord) error
	InsertChunks(ctx context.Context, chunks []db.ChunkRecord) error
	ListCorpusFiles(ctx context.Context, tenderID string) ([]db.CorpusFileRecord, error)
	ListCorpusFilesByURI(ctx context.Context, tenderID string, uris []string) ([]db.CorpusFileRecord, error)
	CountChunks(ctx context.Context, tenderID string) (int, error)
	DeleteCorpusFile(ctx context.Context, fileID string) (int, error)
	RetrieveChunks(ctx context.Context, tenderID string, embedding []float32, topK int, fileIDs []string) ([]db.RetrievedChunk, error)
}

// Service imports source objects and retrieves relevant chunks.
type Service struct {
	store    ChunkStore
	objects  storage.ObjectStore
	embedder embedding.Embedder
	chunkCfg parser.ChunkConfig
	metrics  *metrics.Collector
	logger   *slog.Logger
}

// NewService creates a corpus service.
func NewService(
	store ChunkStore,
	objects storage.ObjectStore,
	embedder embedding.Embedder,
	chunkCfg parser.ChunkConfig,
	collector *metrics.Collector,
	logger *slog.Logger,
) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:    store,
		objects:  objects,
		embedder: embedder,
		chunkCfg: chunkCfg,
		metrics:  collector,
		logger:   logger,
	}
}

// Import ingests the given source URIs for a tender. URIs already present
// in the corpus are skipped. Returns a map of source URI to corpus file id
// covering both new and previously imported files.
func (s *Service) Import(ctx context.Context, tenderID string, uris []string) (map[string]string, error) {
	start := time.Now()

	fileIDs := make(map[string]string, len(uris))
	existing, err := s.store.ListCorpusFilesByURI(ctx, tenderID, uris)
	if err != nil {
		return nil, fmt.Errorf("check existing files: %w", err)
	}
	for _, rec := range existing {
		fileIDs[rec.SourceURI] = rec.FileID
	}

	var imported int
	for _, uri := range uris {
		if _, ok := fileIDs[uri]; ok {
			s.logger.Debug("source already imported", "uri", uri)
			continue
		}

		fileID, err := s.importOne(ctx, tenderID, uri)
		if err != nil {
			s.recordImport(start, err)
			return nil, fmt.Errorf("import %s: %w", uri, err)
		}
		fileIDs[uri] = fileID
		imported++
	}

	s.recordImport(start, nil)
	s.logger.Info("corpus import complete",
		"tenderId", tenderID,
		"requested", len(uris),
		"imported", imported,
		"elapsed", time.Since(start))
	return fileIDs, nil
}

func (s *Service) importOne(ctx context.Context, tenderID, uri string) (string, error) {
	bucket, key, err := storage.ParseURI(uri)
	if err != nil {
		return "", err
	}

	data, err := s.objects.Get(ctx, bucket, key)
	if err != nil {
		return "", err
	}

	fileID := uuid.NewString()
	var records []db.ChunkRecord
	for _, page := range ExtractPages(data, uri) {
		for _, chunk := range parser.ChunkPage(page.Text, page.Label, s.chunkCfg) {
			records = append(records, db.ChunkRecord{
				FileID:    fileID,
				TenderID:  tenderID,
				SourceURI: uri,
				Text:      chunk.Text,
				PageLabel: chunk.PageLabel,
				Position:  len(records),
			})
		}
	}
	if len(records) == 0 {
		return "", fmt.Errorf("no text content in %s", uri)
	}

	if err := s.embedRecords(ctx, records); err != nil {
		return "", err
	}

	if err := s.store.CreateCorpusFile(ctx, db.CorpusFileRecord{
		FileID:      fileID,
		TenderID:    tenderID,
		SourceURI:   uri,
		DisplayName: key,
		ChunkCount:  len(records),
		CreatedAt:   time.Now().UTC(),
	}); err != nil {
		return "", err
	}
	if err := s.store.InsertChunks(ctx, records); err != nil {
		return "", err
	}

	s.logger.Debug("imported source object", "uri", uri, "chunks", len(records))
	return fileID, nil
}

// embedRecords fills in embeddings batch by batch with bounded concurrency.
func (s *Service) embedRecords(ctx context.Context, records []db.ChunkRecord) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(4)

	for lo := 0; lo < len(records); lo += embedBatchSize {
		hi := min(lo+embedBatchSize, len(records))
		batch := records[lo:hi]

		g.Go(func() error {
			start := time.Now()
			texts := make([]string, len(batch))
			for i, rec := range batch {
				texts[i] = rec.Text
			}
			vectors, err := s.embedder.EmbedBatch(ctx, texts)
			if s.metrics != nil {
				s.metrics.Record(metrics.OpEmbedding, time.Since(start), err)
			}
			if err != nil {
				return fmt.Errorf("embed batch: %w", err)
			}
			for i := range batch {
				batch[i].Embedding = vectors[i]
			}
			return nil
		})
	}
	return g.Wait()
}

// HasContent reports whether the tender has any chunks in the corpus.
func (s *Service) HasContent(ctx context.Context, tenderID string) (bool, error) {
	count, err := s.store.CountChunks(ctx, tenderID)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// ListFiles returns the corpus files imported for a tender.
func (s *Service) ListFiles(ctx context.Context, tenderID string) ([]db.CorpusFileRecord, error) {
	return s.store.ListCorpusFiles(ctx, tenderID)
}

// ListFilesByURI resolves source URIs to corpus file records.
func (s *Service) ListFilesByURI(ctx context.Context, tenderID string, uris []string) ([]db.CorpusFileRecord, error) {
	return s.store.ListCorpusFilesByURI(ctx, tenderID, uris)
}

// DeleteFile removes a corpus file and its chunks. Deleting a file that
// does not exist is not an error.
func (s *Service) DeleteFile(ctx context.Context, fileID string) error {
	deleted, err := s.store.DeleteCorpusFile(ctx, fileID)
	if err != nil {
		return err
	}
	if deleted == 0 {
		s.logger.Debug("corpus file already gone", "fileId", fileID)
	}
	return nil
}

// Retrieve embeds the question and returns the topK closest chunks as
// contexts. When fileIDs is non-empty, only those files are searched.
func (s *Service) Retrieve(ctx context.Context, tenderID, question string, topK int, fileIDs []string) ([]models.Context, error) {
	start := time.Now()

	vector, err := s.embedder.Embed(ctx, question)
	if s.metrics != nil {
		s.metrics.Record(metrics.OpEmbedding, time.Since(start), err)
	}
	if err != nil {
		return nil, fmt.Errorf("embed question: %w", err)
	}

	retrieveStart := time.Now()
	chunks, err := s.store.RetrieveChunks(ctx, tenderID, vector, topK, fileIDs)
	if s.metrics != nil {
		s.metrics.Record(metrics.OpRetrieval, time.Since(retrieveStart), err)
	}
	if err != nil {
		return nil, fmt.Errorf("retrieve: %w", err)
	}

	contexts := make([]models.Context, 0, len(chunks))
	for _, chunk := range chunks {
		contexts = append(contexts, models.Context{
			Text:      chunk.Text,
			SourceURI: chunk.SourceURI,
			Distance:  chunk.Distance,
			PageLabel: chunk.PageLabel,
		})
	}
	return contexts, nil
}

func (s *Service) recordImport(start time.Time, err error) {
	if s.metrics != nil {
		s.metrics.Record(metrics.OpImport, time.Since(start), err)
	}
}
