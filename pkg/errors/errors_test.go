package errors

import (
	"errors"
	"fmt"
	"testing"
)

func TestAppError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *AppError
		expected string
	}{
		{
			name:     "without wrapped error",
			err:      NewError(20001, "bad action"),
			expected: "[20001] bad action",
		},
		{
			name:     "with wrapped error",
			err:      NewError(20001, "bad action").Wrap(errors.New("seat 3 is dead")),
			expected: "[20001] bad action: seat 3 is dead",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.expected {
				t.Errorf("Expected '%s', got '%s'", tt.expected, got)
			}
		})
	}
}

func TestAppError_WithDetail(t *testing.T) {
	err := ErrNotYourTurn.WithDetail("current seat is %d", 4)

	if err.Code != CodeNotYourTurn {
		t.Errorf("Expected code %d, got %d", CodeNotYourTurn, err.Code)
	}
	if got := GetDetails(err); got != "current seat is 4" {
		t.Errorf("Expected detail 'current seat is 4', got '%s'", got)
	}
	if ErrNotYourTurn.Err != nil {
		t.Error("WithDetail must not mutate the predefined error")
	}
}

func TestIs(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		target   *AppError
		expected bool
	}{
		{"same error", ErrGamePaused, ErrGamePaused, true},
		{"wrapped same error", ErrGamePaused.Wrap(errors.New("wrapped")), ErrGamePaused, true},
		{"fmt wrapped", fmt.Errorf("apply: %w", ErrSeatDead), ErrSeatDead, true},
		{"different error", ErrSeatDead, ErrGamePaused, false},
		{"non-app error", errors.New("standard error"), ErrGamePaused, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Is(tt.err, tt.target); got != tt.expected {
				t.Errorf("Expected %v, got %v", tt.expected, got)
			}
		})
	}
}

func TestGetCodeAndMessage(t *testing.T) {
	if got := GetCode(errors.New("boom")); got != CodeServerError {
		t.Errorf("Expected %d, got %d", CodeServerError, got)
	}
	if got := GetMessage(errors.New("boom")); got != "服务器内部错误" {
		t.Errorf("Expected fallback message, got '%s'", got)
	}
	if got := GetCode(ErrRoomNotFound.Wrap(errors.New("x"))); got != CodeRoomNotFound {
		t.Errorf("Expected %d, got %d", CodeRoomNotFound, got)
	}
}

func TestCategory(t *testing.T) {
	tests := []struct {
		err      error
		expected string
	}{
		{ErrInvalidAction, CategoryInvalidAction},
		{ErrNotYourTurn, CategoryInvalidAction},
		{ErrInvalidTarget, CategoryInvalidAction},
		{ErrSeatDead, CategoryInvalidAction},
		{ErrPhaseViolation, CategoryPhaseViolation},
		{ErrGamePaused, CategoryPhaseViolation},
		{ErrGameEnded, CategoryPhaseViolation},
		{ErrAITimeout, CategoryAIAgentError},
		{ErrSeatReplaced, CategoryConnectionLost},
		{ErrRoomTerminated, CategoryRoomTerminated},
		{ErrRoomNotFound, CategoryRoomTerminated},
		{ErrInvalidParams, CategoryRequest},
		{errors.New("plain"), CategoryInternal},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			if got := Category(tt.err); got != tt.expected {
				t.Errorf("Expected %s, got %s", tt.expected, got)
			}
		})
	}
}
