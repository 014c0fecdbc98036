package offers

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/pantrylens/backend/internal/domain"
)

// Source returns the candidate offers matching a text query
type Source interface {
	Name() string
	Search(ctx context.Context, query string) (*Offers, error)
}

// Composite concatenates the candidates of several sources. Offers are not
// deduplicated across sources.
type Composite struct {
	sources []Source
}

// NewComposite creates a composite over sources in priority order
func NewComposite(sources ...Source) *Composite {
	return &Composite{sources: sources}
}

func (c *Composite) Name() string {
	names := make([]string, len(c.sources))
	for i, s := range c.sources {
		names[i] = s.Name()
	}
	return strings.Join(names, ", ")
}

// Search queries every source concurrently and joins the results in
// registration order
func (c *Composite) Search(ctx context.Context, query string) (*Offers, error) {
	results := make([]*Offers, len(c.sources))
	g, gctx := errgroup.WithContext(ctx)
	for i, src := range c.sources {
		g.Go(func() error {
			res, err := src.Search(gctx, query)
			if err != nil {
				return fmt.Errorf("%w: offer source %q: %w", domain.ErrSourceFault, src.Name(), err)
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	all := New()
	for _, res := range results {
		all.Join(res)
	}
	return all, nil
}
