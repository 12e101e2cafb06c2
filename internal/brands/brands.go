// Package brands holds the reference list of luxury beauty houses used
// for classification and for the synthetic-data overlap check.
package brands

// LuxuryHouses is the fixed reference list of known luxury beauty brands.
// A silver products table with zero overlap against this list cannot be
// real luxury-market data.
var LuxuryHouses = []string{
	"Chanel",
	"Parfums Christian Dior",
	"Guerlain",
	"Hermès",
	"Givenchy",
	"Maison Francis Kurkdjian",
	"Acqua di Parma",
	"Tom Ford Beauty",
	"La Mer",
	"Jo Malone London",
	"Le Labo",
	"By Kilian",
	"Yves Saint Laurent",
	"Lancôme",
	"Armani Beauty",
	"Valentino Beauty",
	"Burberry Beauty",
	"Chloé",
}

var houseSet = func() map[string]struct{} {
	s := make(map[string]struct{}, len(LuxuryHouses))
	for _, b := range LuxuryHouses {
		s[b] = struct{}{}
	}
	return s
}()

// IsLuxuryHouse reports whether name is on the reference list.
func IsLuxuryHouse(name string) bool {
	_, ok := houseSet[name]
	return ok
}
