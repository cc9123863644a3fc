package errors

import (
	"errors"
	"fmt"
)

// AppError 应用错误类型
// 引擎对外的所有拒绝与失败都以错误码表达，调用方据此决定回执给谁
type AppError struct {
	Code    int    // 错误码
	Message string // 用户可见的错误消息
	Err     error  // 原始错误（可选，用于调试）
}

// Error 实现 error 接口
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%d] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%d] %s", e.Code, e.Message)
}

// Unwrap 支持 errors.Unwrap
func (e *AppError) Unwrap() error {
	return e.Err
}

// NewError 创建新错误
func NewError(code int, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Wrap 包装原始错误
func (e *AppError) Wrap(err error) *AppError {
	return &AppError{
		Code:    e.Code,
		Message: e.Message,
		Err:     err,
	}
}

// WithDetail 保留错误码，附加一段说明
func (e *AppError) WithDetail(format string, args ...any) *AppError {
	return &AppError{
		Code:    e.Code,
		Message: e.Message,
		Err:     fmt.Errorf(format, args...),
	}
}

// Is 判断是否为指定错误
func Is(err error, target *AppError) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == target.Code
	}
	return false
}

// GetCode 获取错误码，如果不是 AppError 返回默认错误码
func GetCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return CodeServerError
}

// GetMessage 获取错误消息
func GetMessage(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return "服务器内部错误"
}

// GetDetails 获取原始错误描述，没有时返回空串
func GetDetails(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) && appErr.Err != nil {
		return appErr.Err.Error()
	}
	return ""
}

// ============== 错误码定义 ==============

const (
	CodeSuccess = 0

	// 认证相关 10000-10999
	CodeTokenInvalid = 10003
	CodeTokenExpired = 10004

	// 参数相关 11000-11999
	CodeInvalidParams = 11002

	// 动作校验 20000-20099
	CodeInvalidAction = 20001
	CodeNotYourTurn   = 20002
	CodeInvalidTarget = 20003
	CodeSeatNotFound  = 20004
	CodeSeatDead      = 20005

	// 阶段校验 20100-20199
	CodePhaseViolation = 20101
	CodeGamePaused     = 20102
	CodeGameEnded      = 20103
	CodeGameNotStarted = 20104
	CodeNotPaused      = 20105

	// AI 20200-20299
	CodeAIAgentError = 20201
	CodeAITimeout    = 20202

	// 连接 20300-20399
	CodeConnectionLost = 20301
	CodeSeatReplaced   = 20302
	CodeNotSeated      = 20303

	// 房间 20400-20499
	CodeRoomTerminated = 20401
	CodeRoomNotFound   = 20402
	CodeRoomExists     = 20403

	// 系统错误 50000-50999
	CodeServerError    = 50001
	CodeDBError        = 50002
	CodeTooManyRequest = 50003
	CodeRoomBusy       = 50004
)

// ============== 预定义错误 ==============

// 认证与参数
var (
	ErrTokenInvalid  = NewError(CodeTokenInvalid, "Token 无效")
	ErrTokenExpired  = NewError(CodeTokenExpired, "Token 已过期")
	ErrInvalidParams = NewError(CodeInvalidParams, "参数校验失败")
)

// 动作校验
var (
	ErrInvalidAction = NewError(CodeInvalidAction, "非法动作")
	ErrNotYourTurn   = NewError(CodeNotYourTurn, "还没轮到该座位")
	ErrInvalidTarget = NewError(CodeInvalidTarget, "目标无效")
	ErrSeatNotFound  = NewError(CodeSeatNotFound, "座位不存在")
	ErrSeatDead      = NewError(CodeSeatDead, "座位已出局")
)

// 阶段校验
var (
	ErrPhaseViolation = NewError(CodePhaseViolation, "当前阶段不允许该动作")
	ErrGamePaused     = NewError(CodeGamePaused, "游戏已暂停")
	ErrGameEnded      = NewError(CodeGameEnded, "游戏已结束")
	ErrGameNotStarted = NewError(CodeGameNotStarted, "游戏尚未开始")
	ErrNotPaused      = NewError(CodeNotPaused, "游戏未处于暂停状态")
)

// AI 与连接
var (
	ErrAIAgent        = NewError(CodeAIAgentError, "AI 决策失败")
	ErrAITimeout      = NewError(CodeAITimeout, "AI 决策超时")
	ErrConnectionLost = NewError(CodeConnectionLost, "连接已断开")
	ErrSeatReplaced   = NewError(CodeSeatReplaced, "座位已由 AI 接管")
	ErrNotSeated      = NewError(CodeNotSeated, "当前用户不在该房间的座位上")
)

// 房间与系统
var (
	ErrRoomTerminated  = NewError(CodeRoomTerminated, "房间已终止")
	ErrRoomNotFound    = NewError(CodeRoomNotFound, "房间不存在")
	ErrRoomExists      = NewError(CodeRoomExists, "房间已存在")
	ErrServerError     = NewError(CodeServerError, "服务器内部错误")
	ErrDBError         = NewError(CodeDBError, "数据库错误")
	ErrTooManyRequests = NewError(CodeTooManyRequest, "请求过于频繁")
	ErrRoomBusy        = NewError(CodeRoomBusy, "房间繁忙")
)

// ============== 错误分类 ==============

// 对外错误分类
const (
	CategoryInvalidAction  = "InvalidAction"
	CategoryPhaseViolation = "PhaseViolation"
	CategoryAIAgentError   = "AIAgentError"
	CategoryConnectionLost = "ConnectionLost"
	CategoryRoomTerminated = "RoomTerminated"
	CategoryRequest        = "Request"
	CategoryInternal       = "Internal"
)

// Category 将错误归入对外分类
func Category(err error) string {
	code := GetCode(err)
	switch {
	case code >= 20000 && code < 20100:
		return CategoryInvalidAction
	case code >= 20100 && code < 20200:
		return CategoryPhaseViolation
	case code >= 20200 && code < 20300:
		return CategoryAIAgentError
	case code >= 20300 && code < 20400:
		return CategoryConnectionLost
	case code >= 20400 && code < 20500:
		return CategoryRoomTerminated
	case code >= 10000 && code < 12000:
		return CategoryRequest
	default:
		return CategoryInternal
	}
}
