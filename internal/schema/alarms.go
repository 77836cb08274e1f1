package schema

// AlarmCatalog names alarm conditions by bit index of a bitmap16 attribute.
// The bit order is chosen by device firmware, so catalogs only ever grow at the end.
type AlarmCatalog []string

// Len returns the number of named alarm bits.
func (c AlarmCatalog) Len() int { return len(c) }

// Name returns the alarm name for bit i.
func (c AlarmCatalog) Name(i int) (string, bool) {
	if i < 0 || i >= len(c) {
		return "", false
	}
	return c[i], true
}

// Extends reports whether c keeps every bit of base at the same index.
func (c AlarmCatalog) Extends(base AlarmCatalog) bool {
	if len(c) < len(base) {
		return false
	}
	for i, name := range base {
		if c[i] != name {
			return false
		}
	}
	return true
}
