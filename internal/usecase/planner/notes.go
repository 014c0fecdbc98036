package planner

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/pantrylens/backend/internal/domain"
)

// offerMarker starts the offer block appended to shopping list notes
const offerMarker = "=== offer start ==="

// UpdateNotes rewrites the offer block of every shopping list item note
// from the offer currently recorded on its product. It returns the number
// of items changed.
func (p *Planner) UpdateNotes(ctx context.Context) (int, error) {
	p.logger.Info("update shopping list notes")
	start := time.Now()

	items, err := p.catalog.GetShoppingList(ctx)
	if err != nil {
		return 0, fmt.Errorf("read shopping list: %w", err)
	}

	var (
		mu      sync.Mutex
		changed int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.Concurrency)
	for _, item := range items {
		g.Go(func() error {
			var (
				details *domain.ProductDetails
				fields  domain.ProductUserFields
			)
			lg, lctx := errgroup.WithContext(gctx)
			lg.Go(func() (err error) {
				details, err = p.catalog.GetProductDetails(lctx, item.ProductID)
				return err
			})
			lg.Go(func() (err error) {
				fields, err = p.catalog.GetProductUserFields(lctx, item.ProductID)
				return err
			})
			if err := lg.Wait(); err != nil {
				return fmt.Errorf("item %d: %w", item.ID, err)
			}

			note := OfferNote(item.Note, fields, details.PriceUnit)
			if note == item.Note {
				return nil
			}
			item.Note = note
			if err := p.catalog.UpdateShoppingListItem(gctx, item); err != nil {
				return fmt.Errorf("item %d: %w", item.ID, err)
			}
			mu.Lock()
			changed++
			mu.Unlock()
			return nil
		})
	}
	err = g.Wait()

	p.logger.Info("updated shopping list notes",
		zap.Int("items", len(items)),
		zap.Int("changed", changed),
		zap.Duration("elapsed", time.Since(start)),
		zap.Error(err))
	return changed, err
}

// ClearNotes empties every non-empty shopping list note
func (p *Planner) ClearNotes(ctx context.Context) (int, error) {
	p.logger.Info("clear shopping list notes")
	items, err := p.catalog.GetShoppingList(ctx)
	if err != nil {
		return 0, fmt.Errorf("read shopping list: %w", err)
	}
	cleared := 0
	for _, item := range items {
		if item.Note == "" {
			continue
		}
		item.Note = ""
		if err := p.catalog.UpdateShoppingListItem(ctx, item); err != nil {
			return cleared, fmt.Errorf("item %d: %w", item.ID, err)
		}
		cleared++
	}
	return cleared, nil
}

// OfferNote strips any previous offer block from note and appends a block
// for the recorded offer, if there is one
func OfferNote(note string, fields domain.ProductUserFields, priceUnit domain.Unit) string {
	note = stripOfferBlock(note)
	if fields.OfferPrice == nil {
		return note
	}
	if note != "" {
		note += "\n"
	}

	amount := 1.0
	if fields.OfferAmount != nil {
		amount = *fields.OfferAmount
	}
	unitName := priceUnit.Name
	if amount != 1 && priceUnit.NamePlural != "" {
		unitName = priceUnit.NamePlural
	}

	var b strings.Builder
	b.WriteString(note)
	b.WriteString(offerMarker + "\n")
	fmt.Fprintf(&b, "%s: €%s per %s / %s %s \n",
		deref(fields.OfferTitle),
		formatNumber(*fields.OfferPrice),
		priceUnit.Name,
		formatNumber(math.Round(amount*100)/100),
		unitName)
	fmt.Fprintf(&b, "%s: %s - %s\n", deref(fields.OfferStore), deref(fields.OfferFrom), deref(fields.OfferTo))
	b.WriteString(deref(fields.OfferNote))
	return b.String()
}

// stripOfferBlock cuts note at the offer marker, including the newline
// separating it from the user's text
func stripOfferBlock(note string) string {
	i := strings.Index(note, offerMarker+"\n")
	if i == -1 {
		return note
	}
	if i > 0 {
		i--
	}
	return note[:i]
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
