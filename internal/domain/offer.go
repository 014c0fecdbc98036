package domain

import "time"

// Offer is a retailer promotion normalized from an offer provider
type Offer struct {
	ID                 string             `json:"id"`
	SourceName         string             `json:"sourceName"`
	ProductName        string             `json:"productName"`
	BrandName          string             `json:"brandName,omitempty"` // empty when unbranded
	StoreName          string             `json:"storeName"`
	Price              float64            `json:"price"`
	ReferencePrice     float64            `json:"referencePrice"`
	Unit               string             `json:"unit"`
	ValidFrom          time.Time          `json:"validFrom"`
	ValidTo            time.Time          `json:"validTo"`
	RequiresMembership bool               `json:"requiresMembership"`
	ImageURL           string             `json:"imageUrl"`
	SourceURL          string             `json:"sourceUrl"`
	Description        string             `json:"description"`
	Preferences        map[string]float64 `json:"preferences,omitempty"`
}

// DisplayName is the brand followed by the product name
func (o *Offer) DisplayName() string {
	if o.BrandName == "" {
		return o.ProductName
	}
	return o.BrandName + " " + o.ProductName
}

// Clone returns a deep copy so pipeline stages can rescale prices safely
func (o *Offer) Clone() *Offer {
	c := *o
	c.Preferences = make(map[string]float64, len(o.Preferences))
	for k, v := range o.Preferences {
		c.Preferences[k] = v
	}
	return &c
}
