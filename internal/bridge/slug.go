package bridge

import "strings"

// Slugify derives the Homie node ID for a module from its type and
// human-assigned name: lowercase, with every run of non-alphanumeric
// characters collapsed to a single hyphen and leading/trailing hyphens
// trimmed. Deterministic and idempotent, so an unchanged module always
// maps to the same topic across poll cycles and restarts.
//
// Example: ("NAModule1", "Garden") → "namodule1-garden".
func Slugify(moduleType, name string) string {
	var b strings.Builder
	b.Grow(len(moduleType) + len(name) + 1)

	pendingHyphen := false
	for _, r := range strings.ToLower(moduleType + " " + name) {
		isAlnum := (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9')
		if !isAlnum {
			pendingHyphen = b.Len() > 0
			continue
		}
		if pendingHyphen {
			b.WriteByte('-')
			pendingHyphen = false
		}
		b.WriteRune(r)
	}

	return b.String()
}
