package offers

import "github.com/pantrylens/backend/internal/domain"

const (
	// BrandPreferenceName is the preference key written by BrandPreference
	BrandPreferenceName = "brand"

	preferredBrandScore = 1.0
	otherBrandScore     = 2.0
)

// BrandPreference scores preferred brands 1.0 (or their configured weight)
// and every other or missing brand 2.0
type BrandPreference struct {
	weights map[string]float64
}

// NewBrandPreference prefers the listed brands equally
func NewBrandPreference(brands []string) *BrandPreference {
	weights := make(map[string]float64, len(brands))
	for _, b := range brands {
		weights[b] = preferredBrandScore
	}
	return NewWeightedBrandPreference(weights)
}

// NewWeightedBrandPreference assigns each brand its own score
func NewWeightedBrandPreference(weights map[string]float64) *BrandPreference {
	p := &BrandPreference{weights: make(map[string]float64, len(weights))}
	for b, w := range weights {
		if b = normalize(b); b != "" {
			p.weights[b] = w
		}
	}
	return p
}

func (p *BrandPreference) Name() string { return BrandPreferenceName }

func (p *BrandPreference) Score(offer *domain.Offer) float64 {
	if offer.BrandName == "" {
		return otherBrandScore
	}
	if w, ok := p.weights[normalize(offer.BrandName)]; ok {
		return w
	}
	return otherBrandScore
}
