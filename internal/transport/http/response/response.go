package response

import "github.com/gin-gonic/gin"

const (
	CodeOK                   = 0
	CodeBadRequest           = 40000
	CodeUsernameExists       = 40001
	CodeEmailExists          = 40002
	CodeUnsupportedFileType  = 40003
	CodeMessageEmpty         = 40004
	CodeUploadTooLarge       = 40005
	CodeUnauthorized         = 40100
	CodeInvalidCredentials   = 40101
	CodeSessionExpired       = 40102
	CodeDocumentNotFound     = 40401
	CodeConversationNotFound = 40402
	CodeDocumentBusy         = 40901
	CodeFileRead             = 42201
	CodeInternalServer       = 50000
	CodeIndexBuild           = 50001
	CodeIndexLoad            = 50002
	CodeExternalCapability   = 50201
)

type APIResponse struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func OK(c *gin.Context, data interface{}) {
	c.JSON(200, APIResponse{
		Code:    CodeOK,
		Message: "ok",
		Data:    data,
	})
}

func Error(c *gin.Context, httpStatus, code int, message string) {
	c.JSON(httpStatus, APIResponse{
		Code:    code,
		Message: message,
	})
}
