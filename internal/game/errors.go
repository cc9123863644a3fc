package game

import (
	apperrors "sudooom.im.werewolf/pkg/errors"
	"sudooom.im.werewolf/pkg/proto"
)

// ErrorPayload 把错误转换为下行 error 事件
func ErrorPayload(err error) proto.ErrorPayload {
	return proto.ErrorPayload{
		Code:     apperrors.GetCode(err),
		Category: apperrors.Category(err),
		Message:  apperrors.GetMessage(err),
		Details:  apperrors.GetDetails(err),
	}
}
