package domain

// Canonical unit names produced by the quantity normalizer
const (
	UnitPiece      = "piece"
	UnitGram       = "gram"
	UnitMilliliter = "milliliter"
)

// Quantity is a normalized amount in a canonical unit
type Quantity struct {
	Amount float64 `json:"amount"`
	Unit   string  `json:"unit"`
}
