package domain

import "fmt"

// ProductKeyType identifies which identity scheme a ProductKey uses
type ProductKeyType string

const (
	ProductKeyBarcode ProductKeyType = "BARCODE"
	ProductKeyName    ProductKeyType = "PRODUCT_NAME"
)

// ProductKey addresses a product across data sources that disagree on identity scheme
type ProductKey struct {
	Type ProductKeyType `json:"keyType"`
	Key  string         `json:"key"`
}

// BarcodeKey is shorthand for a barcode-typed key
func BarcodeKey(barcode string) ProductKey {
	return ProductKey{Type: ProductKeyBarcode, Key: barcode}
}

func (k ProductKey) String() string {
	return fmt.Sprintf("%s:%s", k.Type, k.Key)
}

// Field names used in ProductDataEntry.FieldName
const (
	FieldBarcode        = "barcode"
	FieldName           = "name"
	FieldImageURL       = "image_url"
	FieldUnit           = "unit"
	FieldQuantityAmount = "quantity_amount"
	FieldServingSize    = "serving_size"
	FieldEnergyKcal     = "energy_kcal"
)

// SourceInfo names the data source a fact came from
type SourceInfo struct {
	Name string `json:"name"`
}

// ProductDataEntry is a single provenance-tagged fact
type ProductDataEntry[T any] struct {
	Source     SourceInfo `json:"source"`
	ProductKey ProductKey `json:"productKey"`
	FieldName  string     `json:"fieldName"`
	Value      T          `json:"value"`
}

// NewEntry builds an entry for the given source and key
func NewEntry[T any](source SourceInfo, key ProductKey, field string, value T) ProductDataEntry[T] {
	return ProductDataEntry[T]{Source: source, ProductKey: key, FieldName: field, Value: value}
}

// ProductData aggregates facts per field. The first entry of every field is
// the preferred value; order is source priority order.
type ProductData struct {
	Barcode        []ProductDataEntry[string]  `json:"barcode"`
	Name           []ProductDataEntry[string]  `json:"name"`
	ImageURL       []ProductDataEntry[string]  `json:"imageUrl"`
	Unit           []ProductDataEntry[string]  `json:"unit"`
	QuantityAmount []ProductDataEntry[float64] `json:"quantityAmount"`
	ServingSize    []ProductDataEntry[float64] `json:"servingSize"`
	EnergyKcal     []ProductDataEntry[float64] `json:"energyKcal"`
}

// Join returns a new ProductData holding d's entries followed by other's.
// Neither operand is modified.
func (d ProductData) Join(other ProductData) ProductData {
	return ProductData{
		Barcode:        concat(d.Barcode, other.Barcode),
		Name:           concat(d.Name, other.Name),
		ImageURL:       concat(d.ImageURL, other.ImageURL),
		Unit:           concat(d.Unit, other.Unit),
		QuantityAmount: concat(d.QuantityAmount, other.QuantityAmount),
		ServingSize:    concat(d.ServingSize, other.ServingSize),
		EnergyKcal:     concat(d.EnergyKcal, other.EnergyKcal),
	}
}

func concat[T any](a, b []ProductDataEntry[T]) []ProductDataEntry[T] {
	if len(a)+len(b) == 0 {
		return nil
	}
	out := make([]ProductDataEntry[T], 0, len(a)+len(b))
	out = append(out, a...)
	return append(out, b...)
}

func (d ProductData) HasName() bool           { return len(d.Name) > 0 }
func (d ProductData) HasBarcode() bool        { return len(d.Barcode) > 0 }
func (d ProductData) HasImageURL() bool       { return len(d.ImageURL) > 0 }
func (d ProductData) HasUnit() bool           { return len(d.Unit) > 0 }
func (d ProductData) HasQuantityAmount() bool { return len(d.QuantityAmount) > 0 }
func (d ProductData) HasEnergyKcal() bool     { return len(d.EnergyKcal) > 0 }

// IsEmpty reports whether no source contributed any fact
func (d ProductData) IsEmpty() bool {
	return len(d.Barcode)+len(d.Name)+len(d.ImageURL)+len(d.Unit)+
		len(d.QuantityAmount)+len(d.ServingSize)+len(d.EnergyKcal) == 0
}

// First returns the preferred value of a field
func First[T any](entries []ProductDataEntry[T]) (T, bool) {
	if len(entries) == 0 {
		var zero T
		return zero, false
	}
	return entries[0].Value, true
}
