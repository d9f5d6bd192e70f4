package utils

import (
	"context"
	"fmt"
	"runtime/debug"
	"strings"

	"insidertrack/pkg/logger"
)

// GoSafe runs fn in a goroutine and recovers from panics.
func GoSafe(fn func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				fmt.Printf("goroutine panic recovered: %v\n%s\n", r, debug.Stack())
			}
		}()
		fn()
	}()
}

// ShouldContinue reports whether ctx is still live, logging when it is not.
func ShouldContinue(ctx context.Context, log *logger.Logger) bool {
	select {
	case <-ctx.Done():
		log.WarnContext(ctx, "Context done, stop processing", logger.ErrorField(ctx.Err()))
		return false
	default:
		return true
	}
}

func ContainsString(list []string, value string) bool {
	for _, v := range list {
		if strings.EqualFold(v, value) {
			return true
		}
	}
	return false
}

func ToPointer[T any](v T) *T {
	return &v
}

// CleanToValidUTF8 drops invalid byte sequences and collapses whitespace.
func CleanToValidUTF8(s string) string {
	s = strings.ToValidUTF8(s, "")
	return strings.Join(strings.Fields(s), " ")
}
