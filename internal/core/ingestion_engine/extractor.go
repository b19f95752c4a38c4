package ingestion_engine

import (
	"bytes"
	"fmt"
	"strings"

	"code.sajari.com/docconv"

	"github.com/docubot/docubot-api/internal/core"
)

// DocconvExtractor implements core.TextExtractor using sajari/docconv,
// which handles PDF, DOCX, HTML and plain text behind one call.
type DocconvExtractor struct {
	useReadability bool
}

var _ core.TextExtractor = (*DocconvExtractor)(nil)

func NewDocconvExtractor(useReadability bool) *DocconvExtractor {
	return &DocconvExtractor{useReadability: useReadability}
}

// Extract converts the raw bytes to plain text based on the declared
// content type. Plain text passes through untouched so chunking sees the
// original paragraph structure.
func (e *DocconvExtractor) Extract(data []byte, contentType string) (string, error) {
	if strings.HasPrefix(contentType, "text/") || contentType == "" {
		return string(data), nil
	}

	res, err := docconv.Convert(bytes.NewReader(data), contentType, e.useReadability)
	if err != nil {
		return "", fmt.Errorf("docconv %q: %w", contentType, err)
	}
	return res.Body, nil
}
