package models

// Flatten returns a copy of r where nested objects become dotted columns:
// {"owner":{"name":"x"}} becomes {"owner.name":"x"}. Lists are kept as
// values and empty objects produce no columns.
func Flatten(r Record) Record {
	out := make(Record, len(r))
	flattenInto(out, "", r)
	return out
}

// FlattenAll flattens every record.
func FlattenAll(records []Record) []Record {
	out := make([]Record, len(records))
	for i, r := range records {
		out[i] = Flatten(r)
	}
	return out
}

func flattenInto(out Record, prefix string, m map[string]interface{}) {
	for k, v := range m {
		name := k
		if prefix != "" {
			name = prefix + "." + k
		}
		switch nested := v.(type) {
		case map[string]interface{}:
			flattenInto(out, name, nested)
		case Record:
			flattenInto(out, name, nested)
		default:
			out[name] = v
		}
	}
}

// ExpandPairs replaces the list in column with one column per element,
// named by the element's keyField and holding its valueField. Elements
// that are not objects or lack keyField are ignored. Existing columns are
// overwritten.
func ExpandPairs(r Record, column, keyField, valueField string) {
	list, ok := r[column].([]interface{})
	delete(r, column)
	if !ok {
		return
	}
	for _, item := range list {
		pair, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		name := Key(pair[keyField])
		if name == "" {
			continue
		}
		r[name] = pair[valueField]
	}
}

// ExpandTree replaces a category tree in column with "category.attribute"
// columns. The tree is a list of [category, [[attribute, value], ...]].
// Malformed branches are skipped.
func ExpandTree(r Record, column string) {
	tree, ok := r[column].([]interface{})
	delete(r, column)
	if !ok {
		return
	}
	for _, branch := range tree {
		pair, ok := branch.([]interface{})
		if !ok || len(pair) != 2 {
			continue
		}
		category := Key(pair[0])
		leaves, ok := pair[1].([]interface{})
		if !ok {
			continue
		}
		for _, leaf := range leaves {
			kv, ok := leaf.([]interface{})
			if !ok || len(kv) != 2 {
				continue
			}
			r[category+"."+Key(kv[0])] = kv[1]
		}
	}
}
