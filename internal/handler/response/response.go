package response

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"wallet-pipeline/pkg/errno"
)

// Response defines the standard JSON structure
type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"msg"`
	Data    interface{} `json:"data"`
}

// Success returns a success response with data
func Success(c *gin.Context, data interface{}) {
	if data == nil {
		data = gin.H{} // Return empty object instead of null
	}
	c.JSON(http.StatusOK, Response{
		Code:    errno.OK.Code,
		Message: errno.OK.Message,
		Data:    data,
	})
}

// Error returns an error response. The HTTP status follows the error kind;
// the business code is always in the body.
func Error(c *gin.Context, err error) {
	ErrorWithData(c, err, gin.H{})
}

// ErrorWithData is Error with a payload, e.g. the node's rejection body or
// the broadcast result.
func ErrorWithData(c *gin.Context, err error, data interface{}) {
	code, msg := errno.Decode(err)
	c.JSON(httpStatus(err), Response{
		Code:    code,
		Message: msg,
		Data:    data,
	})
}

func httpStatus(err error) int {
	switch errno.KindOf(err) {
	case errno.KindValidation:
		return http.StatusBadRequest
	case errno.KindStateUnavailable:
		if errors.Is(err, errno.ErrSessionBusy) {
			return http.StatusConflict
		}
		return http.StatusServiceUnavailable
	case errno.KindPolicyViolation:
		return http.StatusUnprocessableEntity
	case errno.KindBroadcastFailed, errno.KindCommunicationLost:
		return http.StatusBadGateway
	}
	if errors.Is(err, errno.ErrNotFound) {
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}
