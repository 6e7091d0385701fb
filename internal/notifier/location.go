package notifier

import "strings"

// cityKeywords maps lowercase substrings of court names to the display
// city. Court names arrive with inconsistent accents, so both forms
// are listed.
var cityKeywords = []struct {
	keyword string
	city    string
}{
	{"culiacán", "Culiacán"},
	{"culiacan", "Culiacán"},
	{"mazatlán", "Mazatlán"},
	{"mazatlan", "Mazatlán"},
	{"mochis", "Los Mochis"},
	{"guasave", "Guasave"},
	{"guamúchil", "Guamúchil"},
	{"guamuchil", "Guamúchil"},
}

const defaultLocation = "Sinaloa"

// Location derives a display city from a court name. Unknown courts
// fall back to the state label rather than failing delivery.
func Location(juzgado string) string {
	lower := strings.ToLower(juzgado)
	for _, entry := range cityKeywords {
		if strings.Contains(lower, entry.keyword) {
			return entry.city
		}
	}
	return defaultLocation
}
