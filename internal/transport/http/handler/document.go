package handler

import (
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"docchat/internal/app"
	"docchat/internal/model"
	"docchat/internal/transport/http/response"
)

type DocumentHandler struct {
	documentService *app.DocumentService
	maxUploadBytes  int64
}

type documentView struct {
	model.Document
	Status string `json:"status"`
}

func NewDocumentHandler(documentService *app.DocumentService, maxUploadMB int) *DocumentHandler {
	if maxUploadMB <= 0 {
		maxUploadMB = 20
	}
	return &DocumentHandler{documentService: documentService, maxUploadBytes: int64(maxUploadMB) << 20}
}

// Upload accepts one "file" or several "files" parts and reports each separately.
func (h *DocumentHandler) Upload(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	form, err := c.MultipartForm()
	if err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "multipart form expected")
		return
	}
	headers := append(form.File["files"], form.File["file"]...)
	if len(headers) == 0 {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "no file uploaded")
		return
	}

	files := make([]app.UploadFile, 0, len(headers))
	for _, fh := range headers {
		if fh.Size > h.maxUploadBytes {
			response.Error(c, http.StatusRequestEntityTooLarge, response.CodeUploadTooLarge,
				fmt.Sprintf("file %q exceeds %d MB", fh.Filename, h.maxUploadBytes>>20))
			return
		}
		data, err := readUpload(fh)
		if err != nil {
			response.Error(c, http.StatusBadRequest, response.CodeBadRequest, fmt.Sprintf("read file %q failed", fh.Filename))
			return
		}
		files = append(files, app.UploadFile{
			Name:        fh.Filename,
			ContentType: fh.Header.Get("Content-Type"),
			Data:        data,
		})
	}

	results, err := h.documentService.Upload(c.Request.Context(), userID, files)
	if err != nil {
		writeServiceError(c, err, "upload failed")
		return
	}
	response.OK(c, gin.H{"results": results})
}

func (h *DocumentHandler) List(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	docs, err := h.documentService.List(userID)
	if err != nil {
		writeServiceError(c, err, "list documents failed")
		return
	}
	views := make([]documentView, 0, len(docs))
	for i := range docs {
		views = append(views, documentView{Document: docs[i], Status: docs[i].Status()})
	}
	response.OK(c, views)
}

func (h *DocumentHandler) Process(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}
	documentID, err := parseIDParam(c, "id")
	if err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid document id")
		return
	}

	doc, result, err := h.documentService.Process(c.Request.Context(), userID, documentID)
	if err != nil {
		writeServiceError(c, err, "process document failed")
		return
	}
	response.OK(c, gin.H{
		"document":    documentView{Document: *doc, Status: doc.Status()},
		"chunk_count": result.ChunkCount,
	})
}

func readUpload(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

func parseIDParam(c *gin.Context, name string) (uint, error) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("invalid %s", name)
	}
	return uint(id), nil
}
