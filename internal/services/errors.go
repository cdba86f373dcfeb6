package services

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

var (
	ErrValidation         = errors.New("validation error")
	ErrResource           = errors.New("resource error")
	ErrUnsupportedMetric  = errors.New("unsupported metric")
	ErrPrecondition       = errors.New("precondition failed")
	ErrCycle              = errors.New("lineage cycle")
	ErrUnimplementedMerge = errors.New("merge application unavailable")
	ErrPermission         = errors.New("permission denied")
	ErrExternalTool       = errors.New("external tool error")
)

// Wrap formats "<marker>: <stage>: <operation>: <message>[: <err>]" so that
// errors.Is matches both marker and err. A nil marker is treated as
// ErrExternalTool.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrExternalTool
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

var kinds = []struct {
	marker error
	name   string
}{
	{ErrValidation, "validation"},
	{ErrResource, "resource"},
	{ErrUnsupportedMetric, "unsupported_metric"},
	{ErrPrecondition, "precondition"},
	{ErrCycle, "cycle"},
	{ErrUnimplementedMerge, "unimplemented_merge"},
	{ErrPermission, "permission"},
	{ErrExternalTool, "external_tool"},
}

// Kind names the sentinel err was wrapped with, for metric labels and log
// fields. Unclassified errors report "internal"; nil reports "".
func Kind(err error) string {
	if err == nil {
		return ""
	}
	for _, k := range kinds {
		if errors.Is(err, k.marker) {
			return k.name
		}
	}
	return "internal"
}

func buildDetail(stage, operation, message string) string {
	parts := []string{strings.TrimSpace(stage), strings.TrimSpace(operation), strings.TrimSpace(message)}
	parts = slices.DeleteFunc(parts, func(p string) bool { return p == "" })
	if len(parts) == 0 {
		return "curation failure"
	}
	return strings.Join(parts, ": ")
}
