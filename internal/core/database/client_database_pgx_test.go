package db

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docubot/docubot-api/internal/models"
)

func newMockClient(t *testing.T) (*DatabaseClient, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return NewDatabaseClientFromDB(sqlDB), mock
}

var docColumns = []string{
	"id", "user_id", "title", "size_bytes", "mime_type", "storage_url",
	"status", "error_message", "chunk_count", "token_count", "created_at", "processed_at",
}

func TestGetDocumentByID(t *testing.T) {
	c, mock := newMockClient(t)
	now := time.Now()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, user_id, title")).
		WithArgs("doc-1").
		WillReturnRows(sqlmock.NewRows(docColumns).
			AddRow("doc-1", "user-1", "notes.txt", int64(42), "text/plain", "https://b.s3.r.amazonaws.com/k",
				models.DocumentStatusCompleted, nil, 3, 900, now, now))

	doc, err := c.GetDocumentByID(context.Background(), "doc-1")
	require.NoError(t, err)
	require.NotNil(t, doc)
	assert.Equal(t, "doc-1", doc.ID)
	assert.Equal(t, 3, doc.ChunkCount)
	assert.Empty(t, doc.ErrorMessage)
	require.NotNil(t, doc.ProcessedAt)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetDocumentByIDNotFound(t *testing.T) {
	c, mock := newMockClient(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, user_id, title")).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(docColumns))

	doc, err := c.GetDocumentByID(context.Background(), "missing")
	require.NoError(t, err)
	assert.Nil(t, doc, "missing document is nil, not an error")
}

func TestUpdateDocumentStatus(t *testing.T) {
	c, mock := newMockClient(t)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE documents")).
		WithArgs("doc-1", models.DocumentStatusFailed, "embed batch: boom").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := c.UpdateDocumentStatus(context.Background(), "doc-1", models.DocumentStatusFailed, "embed batch: boom")
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateDocumentStatusMissingRow(t *testing.T) {
	c, mock := newMockClient(t)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE documents")).
		WithArgs("ghost", models.DocumentStatusProcessing, "").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := c.UpdateDocumentStatus(context.Background(), "ghost", models.DocumentStatusProcessing, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "document not found")
}

func TestMarkDocumentCompleted(t *testing.T) {
	c, mock := newMockClient(t)
	processedAt := time.Now()

	mock.ExpectExec(regexp.QuoteMeta("UPDATE documents")).
		WithArgs("doc-1", models.DocumentStatusCompleted, 3, 900, processedAt).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := c.MarkDocumentCompleted(context.Background(), "doc-1", 3, 900, processedAt)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertDocumentChunksTransaction(t *testing.T) {
	c, mock := newMockClient(t)

	mock.ExpectBegin()
	prep := mock.ExpectPrepare(regexp.QuoteMeta("INSERT INTO document_chunks"))
	prep.ExpectExec().WithArgs(
		"ch-0", "doc-1", "user-1", 0, "first", sqlmock.AnyArg(), 10, sqlmock.AnyArg(), sqlmock.AnyArg(),
	).WillReturnResult(sqlmock.NewResult(0, 1))
	prep.ExpectExec().WithArgs(
		"ch-1", "doc-1", "user-1", 1, "second", sqlmock.AnyArg(), 12, sqlmock.AnyArg(), sqlmock.AnyArg(),
	).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	chunks := []models.DocumentChunk{
		{ID: "ch-0", DocumentID: "doc-1", UserID: "user-1", Position: 0, Content: "first",
			Embedding: []float32{0.1, 0.2}, TokenCount: 10},
		{ID: "ch-1", DocumentID: "doc-1", UserID: "user-1", Position: 1, Content: "second",
			Embedding: []float32{0.3, 0.4}, TokenCount: 12,
			Metadata: map[string]string{"merged": "true"}},
	}
	require.NoError(t, c.InsertDocumentChunks(context.Background(), chunks))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertDocumentChunksEmptyIsNoop(t *testing.T) {
	c, mock := newMockClient(t)
	require.NoError(t, c.InsertDocumentChunks(context.Background(), nil))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSearchUserChunks(t *testing.T) {
	c, mock := newMockClient(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT document_id, position, content")).
		WithArgs("user-1", sqlmock.AnyArg(), 5).
		WillReturnRows(sqlmock.NewRows([]string{"document_id", "position", "content", "similarity"}).
			AddRow("doc-1", 2, "closest", 0.95).
			AddRow("doc-2", 0, "second", 0.90))

	matches, err := c.SearchUserChunks(context.Background(), "user-1", []float32{0.5, 0.5}, 5)
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, "closest", matches[0].Content)
	assert.Equal(t, 2, matches[0].ChunkIndex)
	assert.Greater(t, matches[0].Similarity, matches[1].Similarity)
}

func TestRecentMessagesChronological(t *testing.T) {
	c, mock := newMockClient(t)
	base := time.Now()

	// The query walks newest-first for the LIMIT; the client reverses.
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, session_id, role, content, sources")).
		WithArgs("sess-1", "exclude-me", 20).
		WillReturnRows(sqlmock.NewRows([]string{"id", "session_id", "role", "content", "sources", "created_at"}).
			AddRow("m3", "sess-1", models.RoleAssistant, "third",
				[]byte(`[{"document_id":"doc-1","chunk_index":0,"similarity":0.8}]`), base.Add(2*time.Second)).
			AddRow("m2", "sess-1", models.RoleUser, "second", nil, base.Add(time.Second)).
			AddRow("m1", "sess-1", models.RoleUser, "first", nil, base))

	msgs, err := c.RecentMessages(context.Background(), "sess-1", 20, "exclude-me")
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, []string{"m1", "m2", "m3"}, []string{msgs[0].ID, msgs[1].ID, msgs[2].ID},
		"messages come back oldest first")
	require.Len(t, msgs[2].Sources, 1)
	assert.Equal(t, "doc-1", msgs[2].Sources[0].DocumentID)
}

func TestAddChatMessageWithSources(t *testing.T) {
	c, mock := newMockClient(t)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO chat_messages")).
		WithArgs("m1", "sess-1", models.RoleAssistant, "answer", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	msg := &models.ChatMessage{
		ID: "m1", SessionID: "sess-1", Role: models.RoleAssistant, Content: "answer",
		Sources:   []models.ChunkSource{{DocumentID: "doc-1", ChunkIndex: 1, Similarity: 0.7}},
		CreatedAt: time.Now(),
	}
	require.NoError(t, c.AddChatMessage(context.Background(), msg))
	require.NoError(t, mock.ExpectationsWereMet())
}
