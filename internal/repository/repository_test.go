package repository

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"docchat/internal/model"
	"docchat/internal/platform/database"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.New(context.Background(), "sqlite", filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	t.Cleanup(func() { _ = database.Close(db) })
	return db
}

func createUser(t *testing.T, db *gorm.DB, name string) *model.User {
	t.Helper()
	user := &model.User{Username: name, Email: name + "@example.com", PasswordHash: "x"}
	require.NoError(t, NewUserRepository(db).Create(user))
	return user
}

func TestUserRepositoryLookups(t *testing.T) {
	db := newTestDB(t)
	repo := NewUserRepository(db)
	user := createUser(t, db, "alice")

	byName, err := repo.GetByUsername("alice")
	require.NoError(t, err)
	require.NotNil(t, byName)
	assert.Equal(t, user.ID, byName.ID)

	byEmail, err := repo.GetByEmail("alice@example.com")
	require.NoError(t, err)
	require.NotNil(t, byEmail)

	missing, err := repo.GetByUsername("nobody")
	require.NoError(t, err)
	assert.Nil(t, missing)

	at := time.Now().Truncate(time.Second)
	require.NoError(t, repo.UpdateLastLogin(user.ID, at))
	reloaded, err := repo.GetByID(user.ID)
	require.NoError(t, err)
	require.NotNil(t, reloaded.LastLogin)
	assert.True(t, reloaded.LastLogin.Equal(at))
}

func TestDocumentMarkProcessedSetsBothColumns(t *testing.T) {
	db := newTestDB(t)
	repo := NewDocumentRepository(db)
	user := createUser(t, db, "bob")

	doc := &model.Document{UserID: user.ID, Name: "a.txt", Type: "text/plain", FilePath: "user_1/a.txt"}
	require.NoError(t, repo.Create(doc))

	fresh, err := repo.GetByID(doc.ID)
	require.NoError(t, err)
	assert.False(t, fresh.Processed)
	assert.Nil(t, fresh.VectorStoreID)

	require.NoError(t, repo.MarkProcessed(doc.ID, "vector_stores/user_1/doc_1"))
	done, err := repo.GetByID(doc.ID)
	require.NoError(t, err)
	assert.True(t, done.Processed)
	require.NotNil(t, done.VectorStoreID)
	assert.Equal(t, "vector_stores/user_1/doc_1", *done.VectorStoreID)

	// reprocessing with the same locator is not a missing row
	require.NoError(t, repo.MarkProcessed(doc.ID, "vector_stores/user_1/doc_1"))
}

func TestDocumentMarkProcessedMissingRow(t *testing.T) {
	repo := NewDocumentRepository(newTestDB(t))
	err := repo.MarkProcessed(999, "somewhere")
	assert.ErrorIs(t, err, ErrDocumentNotFound)
}

func TestDocumentMarkProcessedRejectsEmptyLocator(t *testing.T) {
	db := newTestDB(t)
	repo := NewDocumentRepository(db)
	user := createUser(t, db, "carol")
	doc := &model.Document{UserID: user.ID, Name: "a.txt", Type: "text/plain", FilePath: "k"}
	require.NoError(t, repo.Create(doc))

	require.Error(t, repo.MarkProcessed(doc.ID, " "))
	reloaded, err := repo.GetByID(doc.ID)
	require.NoError(t, err)
	assert.False(t, reloaded.Processed)
	assert.Nil(t, reloaded.VectorStoreID)
}

func TestDocumentListByUserID(t *testing.T) {
	db := newTestDB(t)
	repo := NewDocumentRepository(db)
	owner := createUser(t, db, "dave")
	other := createUser(t, db, "erin")

	var ids []uint
	for _, name := range []string{"one.txt", "two.pdf", "three.txt"} {
		doc := &model.Document{UserID: owner.ID, Name: name, Type: "text/plain", FilePath: name}
		require.NoError(t, repo.Create(doc))
		ids = append(ids, doc.ID)
	}
	require.NoError(t, repo.Create(&model.Document{UserID: other.ID, Name: "x.txt", Type: "text/plain", FilePath: "x"}))
	require.NoError(t, repo.MarkProcessed(ids[0], "loc-1"))
	require.NoError(t, repo.MarkProcessed(ids[2], "loc-3"))

	all, err := repo.ListByUserID(owner.ID, false)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "one.txt", all[0].Name)

	processed, err := repo.ListByUserID(owner.ID, true)
	require.NoError(t, err)
	require.Len(t, processed, 2)
	for _, d := range processed {
		assert.True(t, d.Processed)
		assert.NotNil(t, d.VectorStoreID)
	}

	scoped, err := repo.GetByIDAndUserID(ids[0], other.ID)
	require.NoError(t, err)
	assert.Nil(t, scoped)
}

func TestMessageHistoryOrderedByTimestamp(t *testing.T) {
	db := newTestDB(t)
	user := createUser(t, db, "frank")
	conversation := &model.Conversation{UserID: user.ID, Title: "c"}
	require.NoError(t, NewConversationRepository(db).Create(conversation))

	repo := NewMessageRepository(db)
	base := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	t1, t2, t3 := base, base.Add(time.Second), base.Add(2*time.Second)
	for _, m := range []struct {
		ts      time.Time
		content string
	}{{t3, "third"}, {t1, "first"}, {t2, "second"}} {
		require.NoError(t, repo.Create(&model.Message{
			ConversationID: conversation.ID,
			IsUser:         true,
			Content:        m.content,
			Timestamp:      m.ts,
		}))
	}

	history, err := repo.ListByConversationID(conversation.ID)
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, []string{"first", "second", "third"},
		[]string{history[0].Content, history[1].Content, history[2].Content})
}

func TestConversationListNewestFirst(t *testing.T) {
	db := newTestDB(t)
	user := createUser(t, db, "gina")
	repo := NewConversationRepository(db)

	older := &model.Conversation{UserID: user.ID, Title: "older", CreatedAt: time.Now().Add(-time.Hour)}
	newer := &model.Conversation{UserID: user.ID, Title: "newer", CreatedAt: time.Now()}
	require.NoError(t, repo.Create(older))
	require.NoError(t, repo.Create(newer))

	list, err := repo.ListByUserID(user.ID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "newer", list[0].Title)

	got, err := repo.GetByIDAndUserID(older.ID, user.ID+100)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestUserRepositoryDuplicate(t *testing.T) {
	db := newTestDB(t)
	repo := NewUserRepository(db)
	createUser(t, db, "ada")

	err := repo.Create(&model.User{Username: "ada", Email: "second@example.com", PasswordHash: "y"})
	assert.ErrorIs(t, err, ErrDuplicateUser)
}
