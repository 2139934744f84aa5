package service

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCityResolverResolve(t *testing.T) {
	r := NewCityResolver(nil, "")
	cases := map[string]string{
		"Rua das Flores, 120, Praia do Canto":    "Vitória",
		"Av. Hugo Musso, PRAIA DA COSTA":         "Vila velha",
		"Rua São Paulo, Itapuã":                  "Vila velha",
		"Rod. do Sol, Jacaraípe":                 "Serra",
		"Rua Sete, Campo Grande, Cariacica":      "Cariacica",
		"Estrada sem bairro conhecido, Domingos": DefaultCity,
	}
	for address, want := range cases {
		require.Equal(t, want, r.Resolve(address), address)
	}
}

func TestCityResolverFirstEntryWins(t *testing.T) {
	r := NewCityResolver([]CityEntry{
		{City: "A", Neighborhoods: []string{"centro"}},
		{City: "B", Neighborhoods: []string{"centro"}},
	}, "Z")
	require.Equal(t, "A", r.Resolve("Centro"))
	require.Equal(t, "Z", r.Resolve("Bairro novo"))
}

func TestFoldText(t *testing.T) {
	require.Equal(t, "vitoria itapua", foldText("Vitória ITAPUÃ"))
}
