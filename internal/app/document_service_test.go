package app

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docchat/internal/ingest"
	"docchat/internal/model"
	"docchat/internal/repository"
	"docchat/internal/worker"
)

func TestUploadProcessesTextDocument(t *testing.T) {
	env := newTestEnv(t, false)
	user := env.login(t, "ada").User

	res := env.upload(t, user.ID, "notes.txt", "text/plain", "The capital of France is Paris.")

	require.NoError(t, res.Err())
	assert.True(t, res.Processed)
	assert.Equal(t, 1, res.ChunkCount)
	require.NotNil(t, res.Document)

	stored, err := env.docs.GetByID(res.Document.ID)
	require.NoError(t, err)
	assert.True(t, stored.Processed)
	require.NotNil(t, stored.VectorStoreID)
	assert.True(t, strings.HasSuffix(*stored.VectorStoreID, "user_1/doc_1"))

	events := env.publisher.messages["document.processed"]
	require.Len(t, events, 1)
	assert.Equal(t, res.Document.ID, events[0].(model.DocumentProcessedEvent).DocumentID)
}

func TestUploadBatchReportsFailuresPerDocument(t *testing.T) {
	env := newTestEnv(t, false)
	user := env.login(t, "ada").User

	results, err := env.documents.Upload(context.Background(), user.ID, []UploadFile{
		{Name: "archive.zip", ContentType: "application/zip", Data: []byte("PK\x03\x04")},
		{Name: "blank.txt", ContentType: "text/plain", Data: []byte("   \n ")},
		{Name: "notes.md", Data: []byte("# Notes\n\nRome is the capital of Italy.")},
	})
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.ErrorIs(t, results[0].Err(), ingest.ErrUnsupportedFileType)
	assert.Contains(t, results[0].Error, `"archive.zip"`)
	assert.Nil(t, results[0].Document)

	require.NotNil(t, results[1].Document)
	assert.False(t, results[1].Processed)
	assert.Contains(t, results[1].Error, `"blank.txt"`)

	assert.True(t, results[2].Processed)
	assert.Contains(t, results[2].Document.Type, "text/plain")

	docs, err := env.documents.List(user.ID)
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "pending", docs[0].Status())
	assert.Equal(t, "processed", docs[1].Status())
}

func TestProcessRequiresOwnership(t *testing.T) {
	env := newTestEnv(t, false)
	ada := env.login(t, "ada").User
	bob := env.login(t, "bob").User
	res := env.upload(t, ada.ID, "notes.txt", "text/plain", "Paris.")

	_, _, err := env.documents.Process(context.Background(), bob.ID, res.Document.ID)
	assert.ErrorIs(t, err, repository.ErrDocumentNotFound)

	doc, out, err := env.documents.Process(context.Background(), ada.ID, res.Document.ID)
	require.NoError(t, err)
	assert.True(t, doc.Processed)
	assert.Equal(t, 1, out.ChunkCount)
}

func TestAsyncUploadQueuesJob(t *testing.T) {
	env := newTestEnv(t, true)
	ctx := context.Background()
	user := env.login(t, "ada").User

	res := env.upload(t, user.ID, "notes.txt", "text/plain", "The capital of France is Paris.")
	require.NoError(t, res.Err())
	assert.True(t, res.Queued)
	assert.False(t, res.Processed)

	jobs := env.publisher.messages["document.process"]
	require.Len(t, jobs, 1)
	job := jobs[0].(model.ProcessDocumentJob)
	assert.Equal(t, res.Document.ID, job.DocumentID)

	require.NoError(t, env.documents.HandleProcessJob(ctx, job))
	stored, err := env.docs.GetByID(job.DocumentID)
	require.NoError(t, err)
	assert.True(t, stored.Processed)

	assert.NoError(t, env.documents.HandleProcessJob(ctx, model.ProcessDocumentJob{UserID: user.ID, DocumentID: 999}))
}

func TestHandleProcessJobRetriesBusyDocument(t *testing.T) {
	env := newTestEnv(t, true)
	ctx := context.Background()
	user := env.login(t, "ada").User
	res := env.upload(t, user.ID, "notes.txt", "text/plain", "Paris.")

	unlock, err := env.locker.TryLock(ctx, "document:1")
	require.NoError(t, err)
	defer unlock()

	err = env.documents.HandleProcessJob(ctx, model.ProcessDocumentJob{UserID: user.ID, DocumentID: res.Document.ID})
	assert.ErrorIs(t, err, worker.ErrRetry)
	assert.ErrorIs(t, err, ingest.ErrDocumentBusy)
}
