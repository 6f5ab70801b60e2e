package orchestrator

import "strings"

// parseCityState extracts a best-effort (city, state) pair from a Google
// Places formatted_address (models.Candidate has no dedicated city/state
// fields, per the conventional "street, city, state zip, country" shape).
// Malformed or foreign addresses degrade gracefully to empty strings
// rather than erroring; city/state are display conveniences for
// ListPantries/ListCities, not identity fields.
func parseCityState(formattedAddress string) (city, state string) {
	parts := strings.Split(formattedAddress, ",")
	if len(parts) < 3 {
		return "", ""
	}

	city = strings.TrimSpace(parts[len(parts)-3])

	stateZip := strings.Fields(strings.TrimSpace(parts[len(parts)-2]))
	if len(stateZip) == 0 {
		return city, ""
	}
	return city, stateZip[0]
}
