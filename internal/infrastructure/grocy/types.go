package grocy

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/pantrylens/backend/internal/domain"
)

// timestampLayout is how Grocy writes row timestamps
const timestampLayout = "2006-01-02 15:04:05"

type product struct {
	ID                    int             `json:"id"`
	Name                  string          `json:"name"`
	Description           string          `json:"description"`
	QuIDStock             int             `json:"qu_id_stock"`
	QuIDPurchase          int             `json:"qu_id_purchase"`
	QuIDPrice             int             `json:"qu_id_price"`
	DefaultBestBeforeDays int             `json:"default_best_before_days"`
	QuickOpenAmount       *float64        `json:"quick_open_amount"`
	RowCreatedTimestamp   string          `json:"row_created_timestamp"`
	UserFields            json.RawMessage `json:"userfields"`
}

type quantityUnit struct {
	ID          int    `json:"id"`
	Name        string `json:"name"`
	NamePlural  string `json:"name_plural"`
	Description string `json:"description"`
}

type conversion struct {
	ProductID  int     `json:"product_id"`
	FromQuID   int     `json:"from_qu_id"`
	ToQuID     int     `json:"to_qu_id"`
	FromQuName string  `json:"from_qu_name"`
	ToQuName   string  `json:"to_qu_name"`
	Factor     float64 `json:"factor"`
}

type barcode struct {
	ID        int      `json:"id,omitempty"`
	ProductID int      `json:"product_id"`
	Barcode   string   `json:"barcode"`
	QuID      *int     `json:"qu_id"`
	Amount    *float64 `json:"amount"`
	Note      *string  `json:"note"`
}

type productDetails struct {
	Product              product      `json:"product"`
	Barcodes             []barcode    `json:"product_barcodes"`
	StockUnit            quantityUnit `json:"quantity_unit_stock"`
	PurchaseUnit         quantityUnit `json:"default_quantity_unit_purchase"`
	ConsumeUnit          quantityUnit `json:"default_quantity_unit_consume"`
	PriceUnit            quantityUnit `json:"quantity_unit_price"`
	StockAmount          float64      `json:"stock_amount"`
	AvgPrice             *float64     `json:"avg_price"`
	LastPrice            *float64     `json:"last_price"`
	AverageShelfLifeDays *float64     `json:"average_shelf_life_days"`
}

type shoppingListItem struct {
	ID             int     `json:"id,omitempty"`
	ProductID      int     `json:"product_id"`
	ShoppingListID int     `json:"shopping_list_id"`
	Amount         float64 `json:"amount"`
	QuID           int     `json:"qu_id"`
	Note           *string `json:"note"`
}

type stockLogEntry struct {
	ProductID           int     `json:"product_id"`
	Amount              float64 `json:"amount"`
	Spoiled             int     `json:"spoiled"`
	Undone              int     `json:"undone"`
	RowCreatedTimestamp string  `json:"row_created_timestamp"`
}

type createdObject struct {
	CreatedObjectID int `json:"created_object_id"`
}

func (u quantityUnit) toDomain() domain.Unit {
	return domain.Unit{ID: u.ID, Name: u.Name, NamePlural: u.NamePlural, Description: u.Description}
}

func (c conversion) toDomain() domain.Conversion {
	return domain.Conversion{
		From:   domain.Unit{ID: c.FromQuID, Name: c.FromQuName},
		To:     domain.Unit{ID: c.ToQuID, Name: c.ToQuName},
		Factor: c.Factor,
	}
}

func (b barcode) toDomain() domain.Barcode {
	return domain.Barcode{
		ID:        b.ID,
		ProductID: b.ProductID,
		Barcode:   b.Barcode,
		UnitID:    b.QuID,
		Amount:    b.Amount,
		Note:      deref(b.Note),
	}
}

func barcodeFromDomain(b domain.Barcode) barcode {
	note := b.Note
	return barcode{
		ProductID: b.ProductID,
		Barcode:   b.Barcode,
		QuID:      b.UnitID,
		Amount:    b.Amount,
		Note:      &note,
	}
}

func (s shoppingListItem) toDomain() domain.ShoppingListItem {
	return domain.ShoppingListItem{
		ID:             s.ID,
		ProductID:      s.ProductID,
		ShoppingListID: s.ShoppingListID,
		Amount:         s.Amount,
		UnitID:         s.QuID,
		Note:           deref(s.Note),
	}
}

func shoppingListItemFromDomain(item domain.ShoppingListItem) shoppingListItem {
	note := item.Note
	return shoppingListItem{
		ProductID:      item.ProductID,
		ShoppingListID: item.ShoppingListID,
		Amount:         item.Amount,
		QuID:           item.UnitID,
		Note:           &note,
	}
}

func (e stockLogEntry) toDomain() domain.ConsumptionEvent {
	return domain.ConsumptionEvent{
		ProductID: e.ProductID,
		Amount:    e.Amount,
		Spoiled:   e.Spoiled != 0,
		Undone:    e.Undone != 0,
		Timestamp: parseTimestamp(e.RowCreatedTimestamp),
	}
}

// mapDetails builds the stock view of a product. Shelf life falls back to
// the default best before days; the minimum unit size is the smallest
// barcode pack in stock units, else the quick open amount.
func mapDetails(d productDetails, toStock []conversion) *domain.ProductDetails {
	details := &domain.ProductDetails{
		ID:           d.Product.ID,
		Name:         d.Product.Name,
		StockAmount:  d.StockAmount,
		AveragePrice: d.AvgPrice,
		LastPrice:    d.LastPrice,
		StockUnit:    d.StockUnit.toDomain(),
		PurchaseUnit: d.PurchaseUnit.toDomain(),
		ConsumeUnit:  d.ConsumeUnit.toDomain(),
		PriceUnit:    d.PriceUnit.toDomain(),
	}
	for _, c := range toStock {
		details.Conversions = append(details.Conversions, c.toDomain())
	}

	shelfLife := d.AverageShelfLifeDays
	if shelfLife == nil || *shelfLife <= 0 {
		v := float64(d.Product.DefaultBestBeforeDays)
		shelfLife = &v
	}
	details.AverageShelfLifeDays = shelfLife

	unitSize := -1.0
	for _, b := range d.Barcodes {
		if b.Amount == nil || b.QuID == nil {
			continue
		}
		conv, ok := details.Conversion(*b.QuID)
		if !ok {
			continue
		}
		if amount := *b.Amount * conv.Factor; unitSize < 0 || amount < unitSize {
			unitSize = amount
		}
	}
	if unitSize < 0 {
		unitSize = 0
		if d.Product.QuickOpenAmount != nil {
			unitSize = *d.Product.QuickOpenAmount
		}
	}
	details.MinUnitSize = unitSize
	return details
}

func parseTimestamp(s string) time.Time {
	t, err := time.ParseInLocation(timestampLayout, s, time.Local)
	if err != nil {
		return time.Time{}
	}
	return t
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// Userfield names on products and shopping list items
const (
	fieldPreferredBrands     = "preferredbrands"
	fieldBannedBrands        = "bannedbrands"
	fieldDontPurchase        = "dontPurchase"
	fieldOfferStore          = "offerstore"
	fieldOfferName           = "offername"
	fieldOfferPrice          = "offerprice"
	fieldOfferAmount         = "offeramount"
	fieldOfferMemberRequired = "offermemberrequired"
	fieldOfferFrom           = "offerfrom"
	fieldOfferTo             = "offerto"
	fieldOfferNote           = "offernote"
	fieldGenerated           = "generated"
)

// offerName is the JSON stored in the offername userfield
type offerName struct {
	Title string `json:"title"`
	Link  string `json:"link"`
}

// decodeUserFields reads the userfields object. Grocy stores every value
// as text; numbers and booleans are tolerated.
func decodeUserFields(raw json.RawMessage) (domain.ProductUserFields, error) {
	var fields domain.ProductUserFields
	if len(raw) == 0 || string(raw) == "null" {
		return fields, nil
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return fields, err
	}

	fields.PreferredBrands = splitList(m[fieldPreferredBrands])
	fields.BannedBrands = splitList(m[fieldBannedBrands])
	fields.DontPurchase = flag(m[fieldDontPurchase])
	fields.OfferStore = text(m[fieldOfferStore])
	if name := text(m[fieldOfferName]); name != nil {
		var on offerName
		if err := json.Unmarshal([]byte(*name), &on); err == nil {
			fields.OfferTitle = &on.Title
			fields.OfferLink = &on.Link
		}
	}
	fields.OfferPrice = number(m[fieldOfferPrice])
	fields.OfferAmount = number(m[fieldOfferAmount])
	if v, ok := m[fieldOfferMemberRequired]; ok && v != nil {
		b := flag(v)
		fields.OfferMemberRequired = &b
	}
	fields.OfferFrom = text(m[fieldOfferFrom])
	fields.OfferTo = text(m[fieldOfferTo])
	fields.OfferNote = text(m[fieldOfferNote])
	return fields, nil
}

// encodeUserFields writes fields back in Grocy's text representation.
// Cleared offer fields are sent as null.
func encodeUserFields(f domain.ProductUserFields) map[string]any {
	m := map[string]any{
		fieldPreferredBrands:     joinList(f.PreferredBrands),
		fieldBannedBrands:        joinList(f.BannedBrands),
		fieldDontPurchase:        boolText(f.DontPurchase),
		fieldOfferStore:          f.OfferStore,
		fieldOfferName:           nil,
		fieldOfferPrice:          nil,
		fieldOfferAmount:         nil,
		fieldOfferMemberRequired: nil,
		fieldOfferFrom:           f.OfferFrom,
		fieldOfferTo:             f.OfferTo,
		fieldOfferNote:           f.OfferNote,
	}
	if f.OfferTitle != nil {
		data, _ := json.Marshal(offerName{Title: *f.OfferTitle, Link: deref(f.OfferLink)})
		m[fieldOfferName] = string(data)
	}
	if f.OfferPrice != nil {
		m[fieldOfferPrice] = strconv.FormatFloat(*f.OfferPrice, 'f', -1, 64)
	}
	if f.OfferAmount != nil {
		m[fieldOfferAmount] = strconv.FormatFloat(*f.OfferAmount, 'f', -1, 64)
	}
	if f.OfferMemberRequired != nil {
		m[fieldOfferMemberRequired] = boolText(*f.OfferMemberRequired)
	}
	return m
}

func text(v any) *string {
	switch x := v.(type) {
	case string:
		return &x
	case float64:
		s := strconv.FormatFloat(x, 'f', -1, 64)
		return &s
	case bool:
		s := boolText(x)
		return &s
	}
	return nil
}

func number(v any) *float64 {
	switch x := v.(type) {
	case float64:
		return &x
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return nil
		}
		return &f
	}
	return nil
}

func flag(v any) bool {
	switch x := v.(type) {
	case bool:
		return x
	case float64:
		return x != 0
	case string:
		return x == "1" || strings.EqualFold(x, "true")
	}
	return false
}

func boolText(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

func splitList(v any) []string {
	s := text(v)
	if s == nil {
		return nil
	}
	var out []string
	for _, part := range strings.Split(*s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func joinList(list []string) any {
	if len(list) == 0 {
		return nil
	}
	return strings.Join(list, ",")
}
