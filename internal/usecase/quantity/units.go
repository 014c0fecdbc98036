package quantity

// unitAliases maps every accepted spelling to a canonical unit name
var unitAliases = map[string]string{
	// mass
	"g": "gram", "gr": "gram", "gram": "gram", "grams": "gram", "gramm": "gram",
	"kg": "kilogram", "kilo": "kilogram", "kilos": "kilogram", "kilogram": "kilogram",
	"kilograms": "kilogram", "kilogramm": "kilogram",
	"mg": "milligram", "milligram": "milligram", "milligrams": "milligram", "milligramm": "milligram",
	"oz": "ounce", "ounce": "ounce", "ounces": "ounce",
	"lb": "pound", "lbs": "pound", "pound": "pound", "pounds": "pound",

	// volume
	"l": "liter", "liter": "liter", "liters": "liter", "litre": "liter", "litres": "liter",
	"ml": "milliliter", "milliliter": "milliliter", "milliliters": "milliliter",
	"millilitre": "milliliter", "millilitres": "milliliter",
	"cl": "centiliter", "centiliter": "centiliter", "centiliters": "centiliter",
	"dl": "deciliter", "deciliter": "deciliter", "deciliters": "deciliter",

	// countable
	"piece": "piece", "pieces": "piece", "pcs": "piece", "pc": "piece",
	"stück": "piece", "stueck": "piece", "stk": "piece", "st": "piece",
}

// familyTargets folds large units of a family into the family's base unit
var familyTargets = map[string]struct {
	unit   string
	factor int64
}{
	"liter":    {unit: "milliliter", factor: 1000},
	"kilogram": {unit: "gram", factor: 1000},
}
