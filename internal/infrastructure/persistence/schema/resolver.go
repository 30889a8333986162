package schema

// Resolve returns the physical name of the first candidate present in the
// snapshot. Candidates are tried in the order given, independent of the
// catalog's column order.
func Resolve(snapshot *TableSnapshot, candidates []string) (string, bool) {
	col, ok := ResolveColumn(snapshot, candidates)
	return col.Name, ok
}

// ResolveColumn is Resolve returning the full descriptor.
func ResolveColumn(snapshot *TableSnapshot, candidates []string) (ColumnDescriptor, bool) {
	for _, c := range candidates {
		if col, ok := snapshot.Lookup(c); ok {
			return col, true
		}
	}
	return ColumnDescriptor{}, false
}
