package models

import "strings"

// Path walks a decoded JSON value along a dotted key path such as
// "data.items" and returns the value found there.
func Path(v interface{}, path string) (interface{}, bool) {
	cur := v
	for _, key := range strings.Split(path, ".") {
		var m map[string]interface{}
		switch x := cur.(type) {
		case map[string]interface{}:
			m = x
		case Record:
			m = x
		default:
			return nil, false
		}
		next, ok := m[key]
		if !ok {
			return nil, false
		}
		cur = next
	}
	return cur, true
}
