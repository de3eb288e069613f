package batch

import (
	"github.com/singlefetch/singlefetch/query/sqlgen"
)

// buildStatement combines the non-empty fragments into one SELECT whose
// single cell is a JSON object mapping each fragment's key to its value.
// Executing the returned statement is the batch's only database round trip.
func buildStatement(g sqlgen.Generator, frags []*fragment) string {
	keys := make([]string, len(frags))
	exprs := make([]string, len(frags))
	for i, f := range frags {
		keys[i] = f.key
		exprs[i] = f.sql
	}
	return g.BatchObject(keys, exprs)
}
