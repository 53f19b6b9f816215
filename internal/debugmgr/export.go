package debugmgr

// ExportMap encodes a mapping in the Debug Manager's tagged structured-text
// form (spec.md §4.5): each key/value pair becomes one two-element entry.
// Entries follow Go's map iteration order, so their order is not defined.
func ExportMap(m map[string]interface{}) map[string]interface{} {
	entries := make([][2]interface{}, 0, len(m))
	for k, v := range m {
		entries = append(entries, [2]interface{}{k, v})
	}
	return map[string]interface{}{
		"__type":  "Map",
		"entries": entries,
	}
}

// ExportError encodes an error and its captured stack trace in the Debug
// Manager's tagged structured-text form.
func ExportError(message, stack string) map[string]interface{} {
	return map[string]interface{}{
		"__type":  "Error",
		"message": message,
		"stack":   stack,
	}
}
