package auth

import (
	"errors"
	"fmt"
)

// Code classifies authentication failures independently of the provider.
type Code string

const (
	CodeUnknownAccount  Code = "unknown_account"
	CodeWrongCredential Code = "wrong_credential"
	CodeInvalidEmail    Code = "invalid_email"
	CodeRateLimited     Code = "rate_limited"
	CodeDisabled        Code = "disabled"
	CodeNetwork         Code = "network"
	CodeEmailInUse      Code = "email_in_use"
	CodeWeakPassword    Code = "weak_password"
	CodeUnknown         Code = "unknown"
)

var messages = map[Code]string{
	CodeUnknownAccount:  "가입되지 않은 이메일이에요.",
	CodeWrongCredential: "이메일이나 비밀번호가 올바르지 않습니다.",
	CodeInvalidEmail:    "이메일 형식이 올바르지 않아요.",
	CodeRateLimited:     "로그인 시도가 너무 많아요. 잠시 후 다시 시도해주세요.",
	CodeDisabled:        "사용이 중지된 계정이에요.",
	CodeNetwork:         "네트워크 연결을 확인하고 다시 시도해주세요.",
	CodeEmailInUse:      "이미 가입된 이메일이에요.",
	CodeWeakPassword:    "비밀번호는 6자리 이상이어야 해요.",
	CodeUnknown:         "요청을 처리하지 못했어요. 다시 시도해주세요.",
}

// Error is an authentication failure with a user-facing message.
type Error struct {
	Code Code
	Err  error // underlying provider error, may be nil
}

func newError(code Code, err error) *Error {
	return &Error{Code: code, Err: err}
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("auth %s: %v", e.Code, e.Err)
	}
	return "auth " + string(e.Code)
}

func (e *Error) Unwrap() error { return e.Err }

// Message is the localized text shown to the user.
func (e *Error) Message() string {
	if m, ok := messages[e.Code]; ok {
		return m
	}
	return messages[CodeUnknown]
}

// CodeOf extracts the code of an auth error; other errors are CodeUnknown.
func CodeOf(err error) Code {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Code
	}
	return CodeUnknown
}

// MessageOf returns the user-facing message for any error.
func MessageOf(err error) string {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Message()
	}
	return messages[CodeUnknown]
}
