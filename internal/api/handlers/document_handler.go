package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/docubot/docubot-api/internal/api/middlewares"
	"github.com/docubot/docubot-api/internal/config"
	"github.com/docubot/docubot-api/internal/core"
	"github.com/docubot/docubot-api/internal/core/ingestion_engine"
	"github.com/docubot/docubot-api/internal/models"
)

type DocumentHandler struct {
	dbclient     core.DbClient
	objectclient core.ObjectClient
	processor    *ingestion_engine.Processor
	cfg          *config.Config
	log          *zap.Logger
}

func NewDocumentHandler(dbclient core.DbClient, objectclient core.ObjectClient, processor *ingestion_engine.Processor, cfg *config.Config, log *zap.Logger) *DocumentHandler {
	return &DocumentHandler{dbclient: dbclient, objectclient: objectclient, processor: processor, cfg: cfg, log: log}
}

// UploadDocument stores the raw upload, creates the document row in
// pending state and submits the processing job. The response carries the
// pending document; its status advances as the job runs.
func (h *DocumentHandler) UploadDocument(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(52 << 20); err != nil {
		http.Error(w, "invalid multipart body", http.StatusBadRequest)
		return
	}

	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		http.Error(w, "user_id not found in context", http.StatusUnauthorized)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "invalid file", http.StatusBadRequest)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		http.Error(w, "read file", http.StatusBadRequest)
		return
	}

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	// Base strips any path components from the client-supplied name.
	cleanFilename := filepath.Base(header.Filename)
	docID := uuid.NewString()
	s3Key := fmt.Sprintf("%s/%s/%s", userID, docID, cleanFilename)

	upCtx, cancel := context.WithTimeout(r.Context(), 5*time.Minute)
	defer cancel()

	url, err := h.objectclient.UploadFile(upCtx, h.cfg.BucketName, s3Key, data, contentType)
	if err != nil {
		http.Error(w, fmt.Sprintf("upload failed: %v", err), http.StatusInternalServerError)
		return
	}

	doc := &models.Document{
		ID:         docID,
		UserID:     userID,
		Title:      cleanFilename,
		SizeBytes:  int64(len(data)),
		MimeType:   contentType,
		StorageURL: url,
		Status:     models.DocumentStatusPending,
		CreatedAt:  time.Now(),
	}

	if err := h.dbclient.CreateDocument(upCtx, doc); err != nil {
		h.log.Error("document insert failed", zap.String("document_id", docID), zap.Error(err))
		http.Error(w, "failed to store document metadata", http.StatusInternalServerError)
		return
	}

	h.processor.Submit(doc.ID)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(doc)
}

func (h *DocumentHandler) GetDocuments(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		http.Error(w, "user_id not found in context", http.StatusUnauthorized)
		return
	}

	documents, err := h.dbclient.ListDocumentsByUser(r.Context(), userID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(documents)
}

// ReprocessDocument clears prior chunks and runs the pipeline again from
// the stored source. Rejected with 409 while the document is mid-
// processing.
func (h *DocumentHandler) ReprocessDocument(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		http.Error(w, "user_id not found in context", http.StatusUnauthorized)
		return
	}
	docID := chi.URLParam(r, "document_id")

	doc, err := h.dbclient.GetDocumentByID(r.Context(), docID)
	if err != nil || doc == nil {
		http.Error(w, "document not found", http.StatusNotFound)
		return
	}
	if doc.UserID != userID {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	updated, err := h.processor.Reprocess(r.Context(), docID)
	switch {
	case errors.Is(err, ingestion_engine.ErrAlreadyProcessing):
		http.Error(w, "document is already processing", http.StatusConflict)
		return
	case err != nil:
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(updated)
}

// DeleteDocument removes the document, its chunks (cascading) and the
// stored source bytes.
func (h *DocumentHandler) DeleteDocument(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		http.Error(w, "user_id not found in context", http.StatusUnauthorized)
		return
	}
	docID := chi.URLParam(r, "document_id")

	doc, err := h.dbclient.GetDocumentByID(r.Context(), docID)
	if err != nil || doc == nil {
		http.Error(w, "document not found", http.StatusNotFound)
		return
	}
	if doc.UserID != userID {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	// Object removal is best effort; an orphaned blob is preferable to a
	// dangling document row.
	if bucket, key := splitStorageURL(doc.StorageURL); key != "" {
		if err := h.objectclient.DeleteFile(r.Context(), bucket, key); err != nil {
			h.log.Warn("object delete failed", zap.String("document_id", docID), zap.Error(err))
		}
	}

	if err := h.dbclient.DeleteDocument(r.Context(), docID); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// splitStorageURL mirrors the processor's virtual-hosted-style S3 URL
// parsing for deletes.
func splitStorageURL(u string) (bucket, key string) {
	hostPath := strings.SplitN(strings.TrimPrefix(u, "https://"), "/", 2)
	if len(hostPath) == 2 {
		key = hostPath[1]
	}
	if parts := strings.Split(hostPath[0], "."); len(parts) > 0 {
		bucket = parts[0]
	}
	return bucket, key
}
