package response

import (
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "sudooom.im.werewolf/pkg/errors"
)

// Response 统一响应结构
type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data"`
	Details string      `json:"details,omitempty"`
}

// Success 成功响应
func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code:    apperrors.CodeSuccess,
		Message: "success",
		Data:    data,
	})
}

// ErrorWithMsg 自定义错误消息
func ErrorWithMsg(c *gin.Context, code int, message string) {
	c.JSON(http.StatusOK, Response{
		Code:    code,
		Message: message,
		Data:    nil,
	})
}

// ErrorFromAppError 从 AppError 生成错误响应
// 业务错误沿用 HTTP 200，由 code 区分；房间不存在与服务端错误使用对应状态码
func ErrorFromAppError(c *gin.Context, err error) {
	code := apperrors.GetCode(err)
	c.JSON(httpStatus(code), Response{
		Code:    code,
		Message: apperrors.GetMessage(err),
		Data:    nil,
		Details: apperrors.GetDetails(err),
	})
}

func httpStatus(code int) int {
	switch code {
	case apperrors.CodeRoomNotFound:
		return http.StatusNotFound
	case apperrors.CodeTokenInvalid, apperrors.CodeTokenExpired:
		return http.StatusUnauthorized
	case apperrors.CodeTooManyRequest:
		return http.StatusTooManyRequests
	case apperrors.CodeServerError, apperrors.CodeDBError:
		return http.StatusInternalServerError
	}
	return http.StatusOK
}

// InvalidParams 参数校验失败
func InvalidParams(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, Response{
		Code:    apperrors.CodeInvalidParams,
		Message: apperrors.ErrInvalidParams.Message,
		Data:    nil,
		Details: err.Error(),
	})
}

// Unauthorized 未认证
func Unauthorized(c *gin.Context, err error) {
	if err == nil {
		err = apperrors.ErrTokenInvalid
	}
	c.JSON(http.StatusUnauthorized, Response{
		Code:    apperrors.GetCode(err),
		Message: apperrors.GetMessage(err),
		Data:    nil,
	})
}

// TooManyRequests 请求过多
func TooManyRequests(c *gin.Context) {
	c.JSON(http.StatusTooManyRequests, Response{
		Code:    apperrors.CodeTooManyRequest,
		Message: "请求过于频繁，请稍后再试",
		Data:    nil,
	})
}
