package intent

import (
	"sort"
	"strings"

	"github.com/hearthside-ai/hearthside/internal/homeassistant"
)

// Match is one scored entity from a pre-search or search_entities run.
type Match struct {
	EntityID      string   `json:"entity_id"`
	State         string   `json:"state"`
	FriendlyName  string   `json:"friendly_name"`
	Quality       string   `json:"match_quality"`
	TokenCoverage float64  `json:"token_coverage"`
	MatchedTokens []string `json:"matched_tokens,omitempty"`
	MissingTokens []string `json:"missing_tokens,omitempty"`

	score int
}

// deviceClassTerms maps localized measurement words to the HA
// device_class they select. Device-class matching runs before keyword
// scoring: "battery" should find every battery sensor, not entities
// whose name happens to contain the word.
var deviceClassTerms = map[string]string{
	"battery": "battery", "batteria": "battery", "batería": "battery", "bateria": "battery", "batterie": "battery",
	"temperature": "temperature", "temperatura": "temperature", "température": "temperature",
	"humidity": "humidity", "umidità": "humidity", "umidita": "humidity", "humedad": "humidity", "humidité": "humidity",
	"power": "power", "potenza": "power", "potencia": "power", "puissance": "power",
	"energy": "energy", "energia": "energy", "energía": "energy", "énergie": "energy",
	"illuminance": "illuminance", "luminosità": "illuminance", "iluminancia": "illuminance",
	"motion": "motion", "movimento": "motion", "movimiento": "motion", "mouvement": "motion",
	"door": "door", "porta": "door", "puerta": "door", "porte": "door",
	"window": "window", "finestra": "window", "ventana": "window", "fenêtre": "window",
	"pressure": "pressure", "pressione": "pressure", "presión": "pressure", "pression": "pressure",
	"voltage": "voltage", "tensione": "voltage", "voltaje": "voltage",
	"current": "current", "corrente": "current", "corriente": "current",
	"smoke": "smoke", "fumo": "smoke", "humo": "smoke", "fumée": "smoke",
	"gas": "gas", "co2": "carbon_dioxide",
	"moisture": "moisture",
}

var searchStopwords = map[string]bool{
	// it
	"il": true, "lo": true, "la": true, "i": true, "gli": true, "le": true,
	"un": true, "uno": true, "una": true, "di": true, "del": true, "dello": true,
	"della": true, "dei": true, "degli": true, "delle": true, "a": true,
	"ad": true, "al": true, "allo": true, "alla": true, "ai": true, "agli": true,
	"alle": true, "da": true, "dal": true, "dallo": true, "dalla": true,
	"dai": true, "dagli": true, "dalle": true, "in": true, "su": true,
	"per": true, "con": true, "senza": true, "e": true, "o": true,
	// en
	"the": true, "an": true, "of": true, "to": true, "on": true, "for": true,
	"and": true, "or": true,
	// es
	"el": true, "los": true, "las": true, "y": true,
	// fr
	"les": true, "une": true, "du": true, "des": true, "et": true, "ou": true,
}

// Presearch finds entities relevant to a message before the model sees
// it. Device-class matching runs first; when no measurement term
// appears, token-scored keyword matching is the fallback. The returned
// set doubles as the did-you-mean pool for executor validation.
func Presearch(states []homeassistant.State, message string) []Match {
	if matches := DeviceClassSearch(states, message); len(matches) > 0 {
		return matches
	}
	return KeywordSearch(states, message, 50)
}

// DeviceClassSearch returns entities whose device_class attribute
// exactly matches a measurement term found in the message.
func DeviceClassSearch(states []homeassistant.State, message string) []Match {
	msg := strings.ToLower(message)

	wanted := map[string]bool{}
	for _, token := range tokenize(msg) {
		if dc, ok := deviceClassTerms[token]; ok {
			wanted[dc] = true
		}
	}
	if len(wanted) == 0 {
		return nil
	}

	var matches []Match
	for _, s := range states {
		if !wanted[s.DeviceClass()] {
			continue
		}
		matches = append(matches, Match{
			EntityID:      s.EntityID,
			State:         s.State,
			FriendlyName:  s.FriendlyName(),
			Quality:       "high",
			TokenCoverage: 1.0,
		})
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].EntityID < matches[j].EntityID })
	return matches
}

// KeywordSearch scores entities against a free-text query: exact
// substring hits, token hits over entity_id + friendly_name, prefix and
// containment fallbacks for longer tokens. Multi-word queries demand
// coverage; missing tokens demote a candidate hard so the caller can
// tell a sure match from a guess.
func KeywordSearch(states []homeassistant.State, query string, limit int) []Match {
	query = strings.ToLower(strings.TrimSpace(query))
	queryTokens := tokenize(query)
	if query == "" {
		return nil
	}

	var results []Match
	for _, s := range states {
		eid := strings.ToLower(s.EntityID)
		fname := strings.ToLower(s.FriendlyName())

		score := 0
		if strings.Contains(eid, query) {
			score += 120
		}
		if fname != "" && strings.Contains(fname, query) {
			score += 110
		}

		eidTokens := toSet(tokenize(strings.ReplaceAll(eid, ".", " ")))
		fnameTokens := toSet(tokenize(fname))
		allTokens := union(eidTokens, fnameTokens)

		matched := map[string]bool{}
		for _, qt := range queryTokens {
			if allTokens[qt] {
				matched[qt] = true
				if fnameTokens[qt] {
					score += 55
				} else {
					score += 50
				}
				continue
			}
			if len(qt) < 4 {
				continue
			}
			// Prefix match first, containment as a weaker fallback.
			if tt, ok := findToken(allTokens, func(tt string) bool { return strings.HasPrefix(tt, qt) }); ok {
				matched[qt] = true
				if fnameTokens[tt] {
					score += 28
				} else {
					score += 24
				}
				continue
			}
			if tt, ok := findToken(allTokens, func(tt string) bool {
				return strings.Contains(tt, qt) || strings.Contains(qt, tt)
			}); ok {
				matched[qt] = true
				if fnameTokens[tt] {
					score += 18
				} else {
					score += 14
				}
			}
		}

		totalQ := len(queryTokens)
		var missing []string
		for _, qt := range queryTokens {
			if !matched[qt] {
				missing = append(missing, qt)
			}
		}
		coverage := 0.0
		if totalQ > 0 {
			coverage = float64(len(matched)) / float64(totalQ)
		}

		if totalQ >= 2 {
			if coverage >= 1.0 {
				score += 80
			}
			score -= 45 * len(missing)
			if coverage < 0.5 {
				score -= 80
			}
			if fname != "" && strings.Contains(fname, strings.Join(queryTokens, " ")) {
				score += 90
			}
		}

		if score <= 0 {
			continue
		}

		quality := "low"
		switch {
		case coverage >= 1.0 && score >= 140:
			quality = "high"
		case coverage >= 0.75 && score >= 90:
			quality = "medium"
		}

		matchedList := make([]string, 0, len(matched))
		for qt := range matched {
			matchedList = append(matchedList, qt)
		}
		sort.Strings(matchedList)

		results = append(results, Match{
			EntityID:      s.EntityID,
			State:         s.State,
			FriendlyName:  s.FriendlyName(),
			Quality:       quality,
			TokenCoverage: coverage,
			MatchedTokens: matchedList,
			MissingTokens: missing,
			score:         score,
		})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].score != results[j].score {
			return results[i].score > results[j].score
		}
		return results[i].EntityID < results[j].EntityID
	})
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results
}

func tokenize(text string) []string {
	if text == "" {
		return nil
	}
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return r == ' ' || r == '\t' || r == '\n' || r == '_' || r == '-' || r == '.' || r == ',' || r == '?' || r == '!'
	})
	var out []string
	for _, f := range fields {
		if len(f) <= 1 || searchStopwords[f] {
			continue
		}
		out = append(out, f)
	}
	return out
}

func toSet(tokens []string) map[string]bool {
	set := make(map[string]bool, len(tokens))
	for _, t := range tokens {
		set[t] = true
	}
	return set
}

func union(a, b map[string]bool) map[string]bool {
	out := make(map[string]bool, len(a)+len(b))
	for t := range a {
		out[t] = true
	}
	for t := range b {
		out[t] = true
	}
	return out
}

func findToken(set map[string]bool, pred func(string) bool) (string, bool) {
	// Deterministic iteration keeps scoring stable across runs.
	tokens := make([]string, 0, len(set))
	for t := range set {
		tokens = append(tokens, t)
	}
	sort.Strings(tokens)
	for _, t := range tokens {
		if pred(t) {
			return t, true
		}
	}
	return "", false
}
