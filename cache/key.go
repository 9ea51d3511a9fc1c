package cache

import "strings"

// Key identifies a compiled module. Every field takes part in the key, so
// a change of source, imports, settings or producer is a different entry.
type Key struct {
	Name        string
	Filename    string
	Fingerprint string
	Settings    string
	Producer    string
}

// String renders the key in a stable form.
func (k Key) String() string {
	return strings.Join([]string{k.Name, k.Filename, k.Fingerprint, k.Settings, k.Producer}, "|")
}
