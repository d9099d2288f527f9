package response

import "github.com/gin-gonic/gin"

type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Errno   int    `json:"errno,omitempty"`
}

func Success(c *gin.Context, data interface{}) {
	c.JSON(200, gin.H{"data": data})
}

func Error(c *gin.Context, status int, code, message string) {
	c.JSON(status, gin.H{"error": APIError{Code: code, Message: message}})
}

// ErrorWithErrno also carries a numeric code from errcode so clients can
// branch without string matching.
func ErrorWithErrno(c *gin.Context, status int, errno int, code, message string) {
	c.JSON(status, gin.H{"error": APIError{Code: code, Message: message, Errno: errno}})
}
