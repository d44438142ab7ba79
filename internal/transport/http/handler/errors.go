package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"docchat/internal/ai"
	"docchat/internal/app"
	"docchat/internal/ingest"
	"docchat/internal/repository"
	"docchat/internal/storage"
	"docchat/internal/transport/http/middleware"
	"docchat/internal/transport/http/response"
	"docchat/internal/vectorindex"
)

// writeServiceError maps domain errors to HTTP responses. Unknown errors become
// a 500 carrying fallback instead of the internal message.
func writeServiceError(c *gin.Context, err error, fallback string) {
	_ = c.Error(err)
	switch {
	case errors.Is(err, app.ErrInvalidInput):
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, err.Error())
	case errors.Is(err, app.ErrMessageEmpty):
		response.Error(c, http.StatusBadRequest, response.CodeMessageEmpty, err.Error())
	case errors.Is(err, ingest.ErrUnsupportedFileType):
		response.Error(c, http.StatusBadRequest, response.CodeUnsupportedFileType, err.Error())
	case errors.Is(err, repository.ErrDocumentNotFound):
		response.Error(c, http.StatusNotFound, response.CodeDocumentNotFound, "document not found")
	case errors.Is(err, app.ErrConversationNotFound):
		response.Error(c, http.StatusNotFound, response.CodeConversationNotFound, "conversation not found")
	case errors.Is(err, app.ErrSessionNotFound):
		response.Error(c, http.StatusUnauthorized, response.CodeSessionExpired, "session expired, please log in again")
	case errors.Is(err, ingest.ErrDocumentBusy):
		response.Error(c, http.StatusConflict, response.CodeDocumentBusy, err.Error())
	case errors.Is(err, ingest.ErrFileRead), errors.Is(err, storage.ErrObjectNotFound):
		response.Error(c, http.StatusUnprocessableEntity, response.CodeFileRead, err.Error())
	case errors.Is(err, ai.ErrExternalCapability):
		response.Error(c, http.StatusBadGateway, response.CodeExternalCapability, "language or embedding service unavailable")
	case errors.Is(err, vectorindex.ErrIndexBuild):
		response.Error(c, http.StatusInternalServerError, response.CodeIndexBuild, err.Error())
	case errors.Is(err, vectorindex.ErrIndexLoad):
		response.Error(c, http.StatusInternalServerError, response.CodeIndexLoad, err.Error())
	default:
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, fallback)
	}
}

func getUserIDFromContext(c *gin.Context) (uint, bool) {
	userIDAny, exists := c.Get(middleware.ContextUserIDKey)
	if !exists {
		return 0, false
	}
	userID, ok := userIDAny.(uint)
	return userID, ok
}

func getSessionIDFromContext(c *gin.Context) string {
	return c.GetString(middleware.ContextSessionIDKey)
}
