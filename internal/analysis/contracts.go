package analysis

import (
	"context"

	"github.com/joseph-ayodele/receipt-capture/internal/entity"
)

// Analyzer is the interface the pipeline depends on. The provider may retry
// or back off on transient failures; that is opaque to callers.
type Analyzer interface {
	Analyze(ctx context.Context, document []byte, model, mimeType string) (*entity.RawAnalysisResult, error)
}
