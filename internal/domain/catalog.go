package domain

import "time"

// Unit is a catalog quantity unit
type Unit struct {
	ID          int    `json:"id"`
	Name        string `json:"name"`
	NamePlural  string `json:"namePlural,omitempty"`
	Description string `json:"description,omitempty"`
}

// Conversion converts an amount in From into To by multiplying with Factor
type Conversion struct {
	From   Unit    `json:"from"`
	To     Unit    `json:"to"`
	Factor float64 `json:"factor"`
}

// ProductUserFields are the custom catalog fields this system reads and writes
type ProductUserFields struct {
	PreferredBrands     []string `json:"preferredBrands,omitempty"`
	BannedBrands        []string `json:"bannedBrands,omitempty"`
	DontPurchase        bool     `json:"dontPurchase"`
	OfferStore          *string  `json:"offerStore"`
	OfferTitle          *string  `json:"offerTitle"`
	OfferLink           *string  `json:"offerLink"`
	OfferPrice          *float64 `json:"offerPrice"`
	OfferAmount         *float64 `json:"offerAmount"`
	OfferMemberRequired *bool    `json:"offerMemberRequired"`
	OfferFrom           *string  `json:"offerFrom"`
	OfferTo             *string  `json:"offerTo"`
	OfferNote           *string  `json:"offerNote"`
}

// HasOffer reports whether an offer is currently recorded on the product
func (f ProductUserFields) HasOffer() bool {
	return f.OfferTitle != nil
}

// ClearOffer removes every recorded offer field
func (f *ProductUserFields) ClearOffer() {
	f.OfferStore = nil
	f.OfferTitle = nil
	f.OfferLink = nil
	f.OfferPrice = nil
	f.OfferAmount = nil
	f.OfferMemberRequired = nil
	f.OfferFrom = nil
	f.OfferTo = nil
	f.OfferNote = nil
}

// Product is the basic catalog listing entry
type Product struct {
	ID             int               `json:"id"`
	Name           string            `json:"name"`
	Description    string            `json:"description,omitempty"`
	StockUnitID    int               `json:"stockUnitId"`
	PurchaseUnitID int               `json:"purchaseUnitId"`
	PriceUnitID    int               `json:"priceUnitId"`
	CreatedAt      time.Time         `json:"createdAt"`
	UserFields     ProductUserFields `json:"userFields"`
}

// ProductDetails is the stock view of a product. Conversions convert into
// the stock unit.
type ProductDetails struct {
	ID                   int          `json:"id"`
	Name                 string       `json:"name"`
	AverageShelfLifeDays *float64     `json:"averageShelfLifeDays"`
	MinUnitSize          float64      `json:"minUnitSize"`
	StockAmount          float64      `json:"stockAmount"`
	AveragePrice         *float64     `json:"averagePrice"`
	LastPrice            *float64     `json:"lastPrice"`
	Conversions          []Conversion `json:"conversions"`
	StockUnit            Unit         `json:"stockUnit"`
	PurchaseUnit         Unit         `json:"purchaseUnit"`
	ConsumeUnit          Unit         `json:"consumeUnit"`
	PriceUnit            Unit         `json:"priceUnit"`
}

// Conversion finds the conversion from the given unit into the stock unit
func (p *ProductDetails) Conversion(fromUnitID int) (Conversion, bool) {
	for _, c := range p.Conversions {
		if c.From.ID == fromUnitID {
			return c, true
		}
	}
	if fromUnitID == p.StockUnit.ID {
		return Conversion{From: p.StockUnit, To: p.StockUnit, Factor: 1}, true
	}
	return Conversion{}, false
}

// Barcode is a catalog barcode record owned by a product
type Barcode struct {
	ID        int      `json:"id"`
	ProductID int      `json:"productId"`
	Barcode   string   `json:"barcode"`
	UnitID    *int     `json:"unitId"`
	Amount    *float64 `json:"amount"`
	Note      string   `json:"note"`
}

// ShoppingListItem is an entry on a catalog shopping list
type ShoppingListItem struct {
	ID             int     `json:"id"`
	ProductID      int     `json:"productId"`
	ShoppingListID int     `json:"shoppingListId"`
	Amount         float64 `json:"amount"`
	UnitID         int     `json:"unitId"`
	Note           string  `json:"note"`
}

// ConsumptionEvent is a signed stock change from the transaction feed.
// Consumption is recorded with a negative Amount.
type ConsumptionEvent struct {
	ProductID int       `json:"productId"`
	Amount    float64   `json:"amount"`
	Spoiled   bool      `json:"spoiled"`
	Undone    bool      `json:"undone"`
	Timestamp time.Time `json:"timestamp"`
}

// PurchaseDecision is derived at decision time and never persisted on its own
type PurchaseDecision struct {
	ProductID   int     `json:"productId"`
	AmountToBuy float64 `json:"amountToBuy"`
	Unit        Unit    `json:"unit"`
	StoreID     *int    `json:"storeId,omitempty"`
}
