package conversation

import "strings"

// Well-known fact names produced by the extractor.
const (
	FactName         = "name"
	FactNeedCategory = "need_category"
	FactBudget       = "budget"
	FactUrgency      = "urgency"
	FactBusinessType = "business_type"
	FactEmail        = "email"
	FactLocation     = "location"
)

// Facts maps fact names to their extracted values.
type Facts map[string]string

// notProvidedSentinels are values upstream extractors emit when they could not
// determine a fact. They must never overwrite a known value.
var notProvidedSentinels = map[string]struct{}{
	"":             {},
	"unknown":      {},
	"n/a":          {},
	"na":           {},
	"none":         {},
	"null":         {},
	"not provided": {},
	"not_provided": {},
	"no response":  {},
}

// isProvided reports whether a value carries real information.
func isProvided(value string) bool {
	_, sentinel := notProvidedSentinels[strings.ToLower(strings.TrimSpace(value))]
	return !sentinel
}

// MergeFacts merges updates into existing facts monotonically: a key is only
// overwritten when the new value is provided. A fact once known never regresses
// to unknown. The inputs are not mutated.
func MergeFacts(existing, updates Facts) Facts {
	merged := make(Facts, len(existing)+len(updates))
	for k, v := range existing {
		merged[k] = v
	}
	for k, v := range updates {
		if !isProvided(v) {
			continue
		}
		merged[k] = strings.TrimSpace(v)
	}
	return merged
}

// Clone returns a shallow copy of the fact map.
func (f Facts) Clone() Facts {
	if f == nil {
		return Facts{}
	}
	out := make(Facts, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}

// Has reports whether the fact is present with a provided value.
func (f Facts) Has(name string) bool {
	v, ok := f[name]
	return ok && isProvided(v)
}
