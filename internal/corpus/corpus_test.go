package corpus

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tenderwise/tenderflow/internal/db"
	"github.com/tenderwise/tenderflow/internal/parser"
	"github.com/tenderwise/tenderflow/internal/storage"
)

type fakeStore struct {
	mu     sync.Mutex
	files  []db.CorpusFileRecord
	chunks []db.ChunkRecord
}

func (f *fakeStore) CreateCorpusFile(_ context.Context, rec db.CorpusFileRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.files = append(f.files, rec)
	return nil
}

func (f *fakeStore) InsertChunks(_ context.Context, chunks []db.ChunkRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.chunks = append(f.chunks, chunks...)
	return nil
}

func (f *fakeStore) ListCorpusFiles(_ context.Context, tenderID string) ([]db.CorpusFileRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []db.CorpusFileRecord
	for _, rec := range f.files {
		if rec.TenderID == tenderID {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (f *fakeStore) ListCorpusFilesByURI(_ context.Context, tenderID string, uris []string) ([]db.CorpusFileRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	uriSet := make(map[string]bool, len(uris))
	for _, uri := range uris {
		uriSet[uri] = true
	}
	var out []db.CorpusFileRecord
	for _, rec := range f.files {
		if rec.TenderID == tenderID && uriSet[rec.SourceURI] {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (f *fakeStore) CountChunks(_ context.Context, tenderID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	count := 0
	for _, chunk := range f.chunks {
		if chunk.TenderID == tenderID {
			count++
		}
	}
	return count, nil
}

func (f *fakeStore) DeleteCorpusFile(_ context.Context, fileID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	kept := f.files[:0]
	deleted := 0
	for _, rec := range f.files {
		if rec.FileID == fileID {
			deleted++
			continue
		}
		kept = append(kept, rec)
	}
	f.files = kept

	keptChunks := f.chunks[:0]
	for _, chunk := range f.chunks {
		if chunk.FileID != fileID {
			keptChunks = append(keptChunks, chunk)
		}
	}
	f.chunks = keptChunks
	return deleted, nil
}

func (f *fakeStore) RetrieveChunks(_ context.Context, tenderID string, _ []float32, topK int, fileIDs []string) ([]db.RetrievedChunk, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	idSet := make(map[string]bool, len(fileIDs))
	for _, id := range fileIDs {
		idSet[id] = true
	}
	var out []db.RetrievedChunk
	for _, chunk := range f.chunks {
		if chunk.TenderID != tenderID {
			continue
		}
		if len(fileIDs) > 0 && !idSet[chunk.FileID] {
			continue
		}
		out = append(out, db.RetrievedChunk{
			FileID:    chunk.FileID,
			SourceURI: chunk.SourceURI,
			Text:      chunk.Text,
			PageLabel: chunk.PageLabel,
			Distance:  0.1,
		})
		if len(out) == topK {
			break
		}
	}
	return out, nil
}

type fakeEmbedder struct{}

func (fakeEmbedder) Embed(_ context.Context, _ string) ([]float32, error) {
	return make([]float32, 4), nil
}

func (fakeEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range out {
		out[i] = make([]float32, 4)
	}
	return out, nil
}

func (fakeEmbedder) Model() string  { return "fake" }
func (fakeEmbedder) Dimension() int { return 4 }

func newTestService(t *testing.T) (*Service, *fakeStore, *storage.MemStore) {
	t.Helper()
	store := &fakeStore{}
	objects := storage.NewMemStore()
	svc := NewService(store, objects, fakeEmbedder{}, parser.DefaultChunkConfig(), nil, nil)
	return svc, store, objects
}

func TestImportAndRetrieve(t *testing.T) {
	ctx := context.Background()
	svc, store, objects := newTestService(t)

	require.NoError(t, objects.Put(ctx, "raw", "t-1/doc.txt",
		[]byte("The submission deadline is 15 March 2026 at 12:00 CET."), ""))

	fileIDs, err := svc.Import(ctx, "t-1", []string{"s3://raw/t-1/doc.txt"})
	require.NoError(t, err)
	require.Len(t, fileIDs, 1)
	assert.NotEmpty(t, fileIDs["s3://raw/t-1/doc.txt"])
	assert.NotEmpty(t, store.chunks)

	has, err := svc.HasContent(ctx, "t-1")
	require.NoError(t, err)
	assert.True(t, has)

	contexts, err := svc.Retrieve(ctx, "t-1", "when is the deadline?", 5, nil)
	require.NoError(t, err)
	require.NotEmpty(t, contexts)
	assert.Equal(t, "s3://raw/t-1/doc.txt", contexts[0].SourceURI)
}

func TestImportSkipsExistingURIs(t *testing.T) {
	ctx := context.Background()
	svc, store, objects := newTestService(t)

	require.NoError(t, objects.Put(ctx, "raw", "t-1/doc.txt", []byte("some tender text"), ""))

	first, err := svc.Import(ctx, "t-1", []string{"s3://raw/t-1/doc.txt"})
	require.NoError(t, err)
	second, err := svc.Import(ctx, "t-1", []string{"s3://raw/t-1/doc.txt"})
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Len(t, store.files, 1)
}

func TestImportFailsOnMissingObject(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t)

	_, err := svc.Import(ctx, "t-1", []string{"s3://raw/missing.txt"})
	require.Error(t, err)
	assert.ErrorIs(t, err, storage.ErrObjectNotFound)
}

func TestDeleteFileIdempotent(t *testing.T) {
	ctx := context.Background()
	svc, store, objects := newTestService(t)

	require.NoError(t, objects.Put(ctx, "raw", "t-1/doc.txt", []byte("text to delete"), ""))
	fileIDs, err := svc.Import(ctx, "t-1", []string{"s3://raw/t-1/doc.txt"})
	require.NoError(t, err)

	fileID := fileIDs["s3://raw/t-1/doc.txt"]
	require.NoError(t, svc.DeleteFile(ctx, fileID))
	assert.Empty(t, store.files)
	assert.Empty(t, store.chunks)

	// Second delete is a no-op.
	require.NoError(t, svc.DeleteFile(ctx, fileID))
}

func TestExtractPagesJSON(t *testing.T) {
	data := []byte(`{"pages":[{"pageLabel":"1","text":"first page"},{"text":"second page"}]}`)
	pages := ExtractPages(data, "s3://parsed/t-1/doc.json")
	require.Len(t, pages, 2)
	assert.Equal(t, "1", pages[0].Label)
	assert.Equal(t, "first page", pages[0].Text)
	assert.Equal(t, "2", pages[1].Label)
}

func TestExtractPagesFormFeed(t *testing.T) {
	pages := ExtractPages([]byte("page one\fpage two\f"), "s3://raw/doc.txt")
	require.Len(t, pages, 2)
	assert.Equal(t, "1", pages[0].Label)
	assert.Equal(t, "2", pages[1].Label)
}

func TestExtractPagesPlainText(t *testing.T) {
	pages := ExtractPages([]byte("just one block of text"), "s3://raw/doc.txt")
	require.Len(t, pages, 1)
	assert.Empty(t, pages[0].Label)
}
