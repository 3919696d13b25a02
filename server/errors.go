package server

import (
	"errors"
	"fmt"
)

// ViolationError 客户端违反协议，Reason 为有限集合，可直接作为指标标签
type ViolationError struct {
	Reason string
	Detail string
}

func (e *ViolationError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("protocol violation: %s", e.Reason)
	}
	return fmt.Sprintf("protocol violation: %s: %s", e.Reason, e.Detail)
}

func violation(reason, format string, args ...any) error {
	return &ViolationError{Reason: reason, Detail: fmt.Sprintf(format, args...)}
}

// 违规原因
const (
	reasonBadSignature  = "bad_signature"
	reasonMalformedJoin = "malformed_join"
	reasonBadDirection  = "bad_direction"
)

// rejectReason 把会话结束的错误归类为指标标签
func rejectReason(err error) string {
	var v *ViolationError
	if errors.As(err, &v) {
		return v.Reason
	}
	return "io"
}
