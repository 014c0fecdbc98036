// Package offers ranks retailer promotions for a catalog product.
package offers

import (
	"sort"

	"github.com/pantrylens/backend/internal/domain"
)

// Filter decides whether an offer stays in the candidate set. A filter may
// rescale prices on the offer it is given.
type Filter interface {
	Filter(offer *domain.Offer) bool
}

// FilterFunc adapts a function to Filter
type FilterFunc func(offer *domain.Offer) bool

func (f FilterFunc) Filter(offer *domain.Offer) bool { return f(offer) }

// Preference scores an offer under a name; lower is better
type Preference interface {
	Name() string
	Score(offer *domain.Offer) float64
}

// Less orders two offers
type Less func(a, b *domain.Offer) bool

// Offers is a working set of candidates together with the filters,
// preferences and sort order applied when the final list is computed.
type Offers struct {
	offers      []*domain.Offer
	filters     []Filter
	preferences []Preference
	less        Less
}

// New creates a working set over offers
func New(offers ...*domain.Offer) *Offers {
	return &Offers{offers: offers}
}

// Append adds a candidate
func (o *Offers) Append(offer *domain.Offer) {
	o.offers = append(o.offers, offer)
}

// Join appends the candidates, filters and preferences of other
func (o *Offers) Join(other *Offers) {
	if other == nil {
		return
	}
	o.offers = append(o.offers, other.offers...)
	o.filters = append(o.filters, other.filters...)
	o.preferences = append(o.preferences, other.preferences...)
}

func (o *Offers) AddFilter(f Filter) {
	o.filters = append(o.filters, f)
}

func (o *Offers) AddPreference(p Preference) {
	o.preferences = append(o.preferences, p)
}

// SetSortOrder sets the ordering of FinalOffers. Without one the candidate
// order is kept.
func (o *Offers) SetSortOrder(less Less) {
	o.less = less
}

// Len returns the number of candidates before filtering
func (o *Offers) Len() int {
	return len(o.offers)
}

// FinalOffers annotates preferences, applies every filter and sorts. It
// works on copies, so calling it repeatedly yields the same result.
func (o *Offers) FinalOffers() []*domain.Offer {
	result := make([]*domain.Offer, 0, len(o.offers))
	for _, candidate := range o.offers {
		offer := candidate.Clone()
		for _, p := range o.preferences {
			offer.Preferences[p.Name()] = p.Score(offer)
		}
		if o.accept(offer) {
			result = append(result, offer)
		}
	}
	if o.less != nil {
		sort.SliceStable(result, func(i, j int) bool {
			return o.less(result[i], result[j])
		})
	}
	return result
}

func (o *Offers) accept(offer *domain.Offer) bool {
	for _, f := range o.filters {
		if !f.Filter(offer) {
			return false
		}
	}
	return true
}

// TopOffer returns the best remaining offer
func (o *Offers) TopOffer() (*domain.Offer, bool) {
	final := o.FinalOffers()
	if len(final) == 0 {
		return nil, false
	}
	return final[0], true
}

// ByPreferenceThenReferencePrice orders by the named preference score and
// then by unit price
func ByPreferenceThenReferencePrice(preference string) Less {
	return func(a, b *domain.Offer) bool {
		pa, pb := a.Preferences[preference], b.Preferences[preference]
		if pa != pb {
			return pa < pb
		}
		return a.ReferencePrice < b.ReferencePrice
	}
}
