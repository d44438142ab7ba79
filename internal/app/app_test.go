package app

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"docchat/internal/ai"
	"docchat/internal/ingest"
	"docchat/internal/lock"
	"docchat/internal/model"
	"docchat/internal/platform/database"
	"docchat/internal/repository"
	"docchat/internal/retrieval"
	"docchat/internal/session"
	"docchat/internal/storage"
	"docchat/internal/vectorindex"
)

type recordingPublisher struct {
	mu       sync.Mutex
	messages map[string][]any
}

func (p *recordingPublisher) Publish(_ context.Context, queue string, payload any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.messages == nil {
		p.messages = make(map[string][]any)
	}
	p.messages[queue] = append(p.messages[queue], payload)
	return nil
}

type testEnv struct {
	db        *gorm.DB
	sessions  *session.MemoryStore
	publisher *recordingPublisher
	locker    *lock.MemoryLocker
	users     *repository.UserRepository
	docs      *repository.DocumentRepository
	auth      *AuthService
	documents *DocumentService
	chat      *ChatService
	factory   *retrieval.Factory
}

func newTestEnv(t *testing.T, async bool) *testEnv {
	t.Helper()
	dir := t.TempDir()
	db, err := database.New(context.Background(), "sqlite", filepath.Join(dir, "app.db"))
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	t.Cleanup(func() { _ = database.Close(db) })

	users := repository.NewUserRepository(db)
	docs := repository.NewDocumentRepository(db)
	sessions := session.NewMemoryStore(time.Hour)
	embedder := ai.NewHashEmbedder(256)
	store := vectorindex.NewSQLiteStore()
	publisher := &recordingPublisher{}
	locker := lock.NewMemoryLocker()

	indexer := ingest.NewIndexer(ingest.IndexerDeps{
		Registry:  docs,
		Files:     storage.NewLocal(filepath.Join(dir, "uploads")),
		Store:     store,
		Embedder:  embedder,
		Locker:    locker,
		IndexRoot: filepath.Join(dir, "vector_stores"),
	})
	factory := retrieval.NewFactory(retrieval.FactoryDeps{
		Documents: docs,
		Store:     store,
		Embedder:  embedder,
	})

	return &testEnv{
		db:        db,
		sessions:  sessions,
		publisher: publisher,
		locker:    locker,
		users:     users,
		docs:      docs,
		auth:      NewAuthService(users, sessions, "test-secret", time.Hour),
		documents: NewDocumentService(DocumentServiceDeps{
			Documents:    docs,
			Files:        storage.NewLocal(filepath.Join(dir, "uploads")),
			Indexer:      indexer,
			Publisher:    publisher,
			Async:        async,
			ProcessQueue: "document.process",
			EventsQueue:  "document.processed",
		}),
		chat: NewChatService(ChatServiceDeps{
			Conversations: repository.NewConversationRepository(db),
			Messages:      repository.NewMessageRepository(db),
			Sessions:      sessions,
			Searcher:      factory,
		}),
		factory: factory,
	}
}

// login registers a user and opens a session for them.
func (e *testEnv) login(t *testing.T, username string) *AuthResult {
	t.Helper()
	_, err := e.auth.Register(RegisterInput{Username: username, Email: username + "@example.com", Password: "password123"})
	require.NoError(t, err)
	res, err := e.auth.Login(context.Background(), LoginInput{Username: username, Password: "password123"})
	require.NoError(t, err)
	return res
}

func (e *testEnv) upload(t *testing.T, userID uint, name, contentType, body string) UploadResult {
	t.Helper()
	results, err := e.documents.Upload(context.Background(), userID, []UploadFile{{Name: name, ContentType: contentType, Data: []byte(body)}})
	require.NoError(t, err)
	require.Len(t, results, 1)
	return results[0]
}

func messagesContent(msgs []model.Message) []string {
	out := make([]string, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.Content)
	}
	return out
}
