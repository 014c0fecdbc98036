// Package ingredient resolves free text ingredient lines such as
// "500 g Mehl, gesiebt" against the catalog indexes.
package ingredient

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/pantrylens/backend/internal/domain"
)

// Index finds the best catalog product and quantity unit for a text
type Index interface {
	QueryProduct(text string) (domain.Product, bool)
	QueryUnit(text string) (domain.Unit, bool)
}

// Catalog loads the stock view of a product
type Catalog interface {
	GetProductDetails(ctx context.Context, productID int) (*domain.ProductDetails, error)
}

// QuantityParser normalizes amounts and recognizes unit spellings
type QuantityParser interface {
	Parse(text string) (domain.Quantity, error)
	ParseUnit(text string) (string, bool)
}

// Match is an ingredient line resolved against the catalog. Amount is in
// Unit when both are set.
type Match struct {
	Text    string          `json:"text"`
	Name    string          `json:"name"`
	Product *domain.Product `json:"product,omitempty"`
	Unit    *domain.Unit    `json:"unit,omitempty"`
	Amount  *float64        `json:"amount,omitempty"`
	Note    string          `json:"note,omitempty"`
}

// leadingAmount matches "2", "1,5", "2x200" and "1/2" at the start of a line
var leadingAmount = regexp.MustCompile(`^(\d+(?:[.,]\d+)?(?:\s*[x*/]\s*\d+(?:[.,]\d+)?)*)\s*`)

// Matcher resolves ingredient lines
type Matcher struct {
	index       Index
	catalog     Catalog
	parser      QuantityParser
	concurrency int
	logger      *zap.Logger
}

// NewMatcher creates a matcher
func NewMatcher(index Index, catalog Catalog, parser QuantityParser, concurrency int, logger *zap.Logger) *Matcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if concurrency <= 0 {
		concurrency = 4
	}
	return &Matcher{
		index:       index,
		catalog:     catalog,
		parser:      parser,
		concurrency: concurrency,
		logger:      logger.Named("ingredient"),
	}
}

// Match resolves one line. The product is the top index hit for the name.
// A unit written in the line is looked up in the unit index; without one
// the amount is taken to be in the product's stock unit.
func (m *Matcher) Match(ctx context.Context, text string) (Match, error) {
	l := m.split(text)
	if l.name == "" {
		return Match{}, fmt.Errorf("%w: no ingredient name in %q", domain.ErrInvalidRequest, text)
	}
	logger := m.logger.With(zap.String("ingredient", text))
	result := Match{Text: text, Name: l.name, Note: l.note}

	if p, ok := m.index.QueryProduct(l.name); ok {
		result.Product = &p
	} else {
		logger.Debug("no catalog product matches", zap.String("name", l.name))
	}
	if l.amount == "" {
		return result, nil
	}

	q, err := m.parser.Parse(strings.TrimSpace(l.amount + " " + l.unit))
	if err != nil {
		return Match{}, fmt.Errorf("ingredient %q: %w", text, err)
	}
	result.Amount = &q.Amount

	switch {
	case l.unit != "":
		if u, ok := m.index.QueryUnit(q.Unit); ok {
			result.Unit = &u
		} else {
			logger.Warn("unit not in catalog", zap.String("unit", q.Unit))
		}
	case result.Product != nil:
		details, err := m.catalog.GetProductDetails(ctx, result.Product.ID)
		if err != nil {
			return Match{}, fmt.Errorf("ingredient %q: %w", text, err)
		}
		result.Unit = &details.StockUnit
	}
	return result, nil
}

// MatchAll resolves every line, keeping the input order. The first failing
// line aborts the batch.
func (m *Matcher) MatchAll(ctx context.Context, lines []string) ([]Match, error) {
	results := make([]Match, len(lines))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.concurrency)
	for i, line := range lines {
		g.Go(func() error {
			res, err := m.Match(gctx, line)
			results[i] = res
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

type line struct {
	amount string
	unit   string
	name   string
	note   string
}

// split cuts a line into leading amount, unit word, name and the comment
// after the first comma
func (m *Matcher) split(text string) line {
	var l line
	rest := strings.TrimSpace(text)
	if loc := leadingAmount.FindStringSubmatchIndex(rest); loc != nil {
		l.amount = rest[loc[2]:loc[3]]
		rest = rest[loc[1]:]

		word, tail, _ := strings.Cut(rest, " ")
		if _, ok := m.parser.ParseUnit(strings.TrimSuffix(word, ".")); ok {
			l.unit = strings.TrimSuffix(word, ".")
			rest = tail
		}
	}
	name, note, _ := strings.Cut(rest, ",")
	l.name = strings.TrimSpace(name)
	l.note = strings.TrimSpace(note)
	return l
}
