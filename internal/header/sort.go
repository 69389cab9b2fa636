package header

import (
	"net/textproto"
	"sort"
)

type KeyValues struct {
	Key    string
	Values []string
}

// SortKeyValues orders kvs so that keys named in orderedKeys come first, in
// that order, followed by the remaining keys in their current order.
func SortKeyValues(kvs []KeyValues, orderedKeys []string) {
	if len(orderedKeys) == 0 {
		return
	}
	order := make(map[string]int, len(orderedKeys))
	for i, key := range orderedKeys {
		order[textproto.CanonicalMIMEHeaderKey(key)] = i
	}
	rank := func(i int) int {
		if r, ok := order[textproto.CanonicalMIMEHeaderKey(kvs[i].Key)]; ok {
			return r
		}
		return len(order)
	}
	sort.SliceStable(kvs, func(i, j int) bool {
		return rank(i) < rank(j)
	})
}
