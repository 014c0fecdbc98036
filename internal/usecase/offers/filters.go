package offers

import (
	"strings"
	"time"

	"github.com/pantrylens/backend/internal/domain"
)

// TimeFilter keeps offers valid on the given day
type TimeFilter struct {
	Day time.Time
}

func (f TimeFilter) Filter(offer *domain.Offer) bool {
	day := dateOf(f.Day)
	return !day.Before(dateOf(offer.ValidFrom)) && !day.After(dateOf(offer.ValidTo))
}

func dateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// BannedBrandsFilter drops offers of banned brands. Unbranded offers pass.
type BannedBrandsFilter struct {
	banned map[string]bool
}

func NewBannedBrandsFilter(brands []string) *BannedBrandsFilter {
	f := &BannedBrandsFilter{banned: make(map[string]bool, len(brands))}
	for _, b := range brands {
		if b = normalize(b); b != "" {
			f.banned[b] = true
		}
	}
	return f
}

func (f *BannedBrandsFilter) Filter(offer *domain.Offer) bool {
	if offer.BrandName == "" {
		return true
	}
	return !f.banned[normalize(offer.BrandName)]
}

// SelectedStoresFilter keeps offers whose store name contains one of the
// accepted stores. No accepted stores means every store.
type SelectedStoresFilter struct {
	stores []string
}

func NewSelectedStoresFilter(stores []string) *SelectedStoresFilter {
	f := &SelectedStoresFilter{}
	for _, s := range stores {
		if s = normalize(s); s != "" {
			f.stores = append(f.stores, s)
		}
	}
	return f
}

func (f *SelectedStoresFilter) Filter(offer *domain.Offer) bool {
	if len(f.stores) == 0 {
		return true
	}
	store := normalize(offer.StoreName)
	for _, s := range f.stores {
		if strings.Contains(store, s) {
			return true
		}
	}
	return false
}

// UnitIndex resolves an offer unit to a catalog unit
type UnitIndex interface {
	QueryUnit(text string) (domain.Unit, bool)
}

// AllowedUnitsFilter keeps offers whose unit converts into the product's
// price unit and rescales their prices by the conversion factor.
type AllowedUnitsFilter struct {
	Units   UnitIndex
	Factors map[int]float64
}

func (f AllowedUnitsFilter) Filter(offer *domain.Offer) bool {
	unit, ok := f.Units.QueryUnit(offer.Unit)
	if !ok {
		return false
	}
	factor, ok := f.Factors[unit.ID]
	if !ok || factor == 0 {
		return false
	}
	offer.Price /= factor
	offer.ReferencePrice /= factor
	return true
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
