// Package capture retrieves page content for analysis. Two fetchers
// implement the same contract: a headless-browser fetcher that sees the
// rendered DOM and takes screenshots, and a static HTTP fetcher for
// server-rendered pages and environments without Chrome.
package capture

import (
	"context"

	"uplift/internal/pipeline"
)

// Fetcher retrieves one page. Implementations must be safe for
// concurrent use.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*pipeline.PageContent, error)
}
