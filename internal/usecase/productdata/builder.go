package productdata

import "github.com/pantrylens/backend/internal/domain"

// Builder accumulates the facts a single source reports for one key.
// Empty strings and non-positive amounts are not recorded.
type Builder struct {
	source domain.SourceInfo
	key    domain.ProductKey
	data   domain.ProductData
}

// NewBuilder starts an empty result for source and key
func NewBuilder(source domain.SourceInfo, key domain.ProductKey) *Builder {
	return &Builder{source: source, key: key}
}

func (b *Builder) Barcode(v string) *Builder {
	if v != "" {
		b.data.Barcode = append(b.data.Barcode, domain.NewEntry(b.source, b.key, domain.FieldBarcode, v))
	}
	return b
}

func (b *Builder) Name(v string) *Builder {
	if v != "" {
		b.data.Name = append(b.data.Name, domain.NewEntry(b.source, b.key, domain.FieldName, v))
	}
	return b
}

func (b *Builder) ImageURL(v string) *Builder {
	if v != "" {
		b.data.ImageURL = append(b.data.ImageURL, domain.NewEntry(b.source, b.key, domain.FieldImageURL, v))
	}
	return b
}

// Quantity records a normalized package quantity as amount and unit
func (b *Builder) Quantity(q domain.Quantity) *Builder {
	if q.Amount <= 0 || q.Unit == "" {
		return b
	}
	b.data.QuantityAmount = append(b.data.QuantityAmount, domain.NewEntry(b.source, b.key, domain.FieldQuantityAmount, q.Amount))
	b.data.Unit = append(b.data.Unit, domain.NewEntry(b.source, b.key, domain.FieldUnit, q.Unit))
	return b
}

// Unit records a unit without an amount
func (b *Builder) Unit(v string) *Builder {
	if v != "" {
		b.data.Unit = append(b.data.Unit, domain.NewEntry(b.source, b.key, domain.FieldUnit, v))
	}
	return b
}

// ServingSize records a normalized serving amount
func (b *Builder) ServingSize(q domain.Quantity) *Builder {
	if q.Amount > 0 {
		b.data.ServingSize = append(b.data.ServingSize, domain.NewEntry(b.source, b.key, domain.FieldServingSize, q.Amount))
	}
	return b
}

// EnergyPer100 records energy per canonical unit from a per-100-unit value
func (b *Builder) EnergyPer100(kcal float64) *Builder {
	if kcal > 0 {
		b.data.EnergyKcal = append(b.data.EnergyKcal, domain.NewEntry(b.source, b.key, domain.FieldEnergyKcal, kcal/100))
	}
	return b
}

// Data returns the accumulated facts
func (b *Builder) Data() domain.ProductData {
	return b.data
}
