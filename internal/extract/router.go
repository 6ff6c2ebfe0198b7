package extract

import (
	"context"
	"fmt"

	"github.com/fintrack/receipt-processor/constants"
	"github.com/fintrack/receipt-processor/internal/entity"
)

// Router dispatches an input to the strategy registered for its format
// family.
type Router struct {
	strategies map[constants.FormatFamily]TextExtractor
}

func NewRouter(image, pdf, document TextExtractor) *Router {
	return &Router{strategies: map[constants.FormatFamily]TextExtractor{
		constants.IMAGE:    image,
		constants.PDF:      pdf,
		constants.DOCUMENT: document,
	}}
}

func (r *Router) Extract(ctx context.Context, in Input) (entity.ExtractionResult, error) {
	family := constants.MapExtToFormat(in.Ext)
	strategy, ok := r.strategies[family]
	if !ok || strategy == nil {
		return entity.ExtractionResult{}, fmt.Errorf("no extraction strategy for extension %q", in.Ext)
	}
	return strategy.Extract(ctx, in)
}
