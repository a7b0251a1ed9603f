package stream

import (
	"context"
	"fmt"
	"strings"

	"github.com/gyeh/mrfscan/internal/fetch"
)

// Path is how a file is read.
type Path string

const (
	PathStream Path = "stream"
	PathWhole  Path = "whole"
)

var streamHints = []string{"in_network", "rates", ".gz"}

// ChoosePath picks the streaming path for large, unknown or likely-large
// files and the whole-document path for small ones. The reason is for logs.
func ChoosePath(ctx context.Context, prober fetch.Prober, source string, threshold int64) (Path, string) {
	size, known, err := prober.Probe(ctx, source)
	if err != nil {
		return PathStream, fmt.Sprintf("probe failed: %v", err)
	}
	if known && size > threshold {
		return PathStream, fmt.Sprintf("size %d above threshold", size)
	}
	lower := strings.ToLower(source)
	for _, h := range streamHints {
		if strings.Contains(lower, h) {
			return PathStream, fmt.Sprintf("url contains %q", h)
		}
	}
	if known {
		return PathWhole, fmt.Sprintf("size %d within threshold", size)
	}
	return PathStream, "size unknown"
}
