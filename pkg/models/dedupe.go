package models

// Dedupe returns the first-seen record for each distinct Key(record[key]),
// in input order. Records without the key share the empty key, so only the
// first of them is kept.
func Dedupe(records []Record, key string) []Record {
	seen := make(map[string]struct{}, len(records))
	out := make([]Record, 0, len(records))
	for _, r := range records {
		k := Key(r[key])
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, r)
	}
	return out
}

// UniqueKeys returns the distinct non-blank keys of records in first-seen
// order.
func UniqueKeys(records []Record, key string) []string {
	seen := make(map[string]struct{}, len(records))
	out := make([]string, 0, len(records))
	for _, r := range records {
		k := Key(r[key])
		if k == "" {
			continue
		}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	return out
}

// FilterKeys returns the records whose key is in keys, preserving order.
func FilterKeys(records []Record, key string, keys []string) []Record {
	want := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		want[k] = struct{}{}
	}
	out := make([]Record, 0, len(keys))
	for _, r := range records {
		if _, ok := want[Key(r[key])]; ok {
			out = append(out, r)
		}
	}
	return out
}
