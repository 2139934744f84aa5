package service

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// DefaultCity is used when no neighbourhood in the address is recognised.
const DefaultCity = "Grande Vitória"

// CityEntry maps a city to the neighbourhood names that identify it in an address.
type CityEntry struct {
	City          string
	Neighborhoods []string
}

// DefaultCityTable covers the metropolitan region served by the business, checked in order.
var DefaultCityTable = []CityEntry{
	{City: "Vitória", Neighborhoods: []string{"vitoria", "centro vitoria", "enseada", "praia do canto"}},
	{City: "Vila velha", Neighborhoods: []string{"vila velha", "praia da costa", "itaparica", "itapua"}},
	{City: "Cariacica", Neighborhoods: []string{"cariacica", "campo grande", "itaciba"}},
	{City: "Serra", Neighborhoods: []string{"serra", "laranjeiras", "jacaraipe"}},
	{City: "Viana", Neighborhoods: []string{"viana"}},
	{City: "Guarapari", Neighborhoods: []string{"guarapari", "meaipe", "enseada azul"}},
}

// CityResolver guesses the city of an address from a neighbourhood lookup table.
type CityResolver struct {
	table    []CityEntry
	fallback string
}

// NewCityResolver builds a resolver over table; a nil table uses DefaultCityTable.
func NewCityResolver(table []CityEntry, fallback string) *CityResolver {
	if table == nil {
		table = DefaultCityTable
	}
	if fallback == "" {
		fallback = DefaultCity
	}
	return &CityResolver{table: table, fallback: fallback}
}

// Resolve returns the first city whose neighbourhood occurs in address, or the fallback.
// Matching ignores case and accents.
func (r *CityResolver) Resolve(address string) string {
	haystack := foldText(address)
	for _, entry := range r.table {
		for _, n := range entry.Neighborhoods {
			if n != "" && strings.Contains(haystack, foldText(n)) {
				return entry.City
			}
		}
	}
	return r.fallback
}

func foldText(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	return strings.ToLower(folded)
}
