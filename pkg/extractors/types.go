package extractors

import (
	"context"

	"github.com/wakaranaidev/koware/pkg/types"
)

// Extractor resolves a third-party embed page into playable stream links.
type Extractor interface {
	Extract(ctx context.Context, embedURL string) ([]types.StreamLink, error)
}
