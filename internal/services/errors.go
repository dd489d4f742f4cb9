package services

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors classify stage failures. The pipeline uses them to pick the
// terminal job result and the user-facing status text.
var (
	ErrNoChannel = errors.New("delivery channel unavailable")
	ErrProbe     = errors.New("probe error")
	ErrEncode    = errors.New("encode error")
	ErrTooLarge  = errors.New("artifact exceeds upload ceiling")
	ErrDelivery  = errors.New("delivery error")
)

// Wrap builds an error message that includes stage context while tagging it
// with the provided marker for later classification. The marker should be one
// of the exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrEncode
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
