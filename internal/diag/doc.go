// Package diag provides the severity-classified diagnostic store shared by
// every construction and integration phase.
//
// Diagnostics accumulate in a [Store] and are inspected once a phase returns:
//
//   - [Fatal]: the process cannot produce a usable result
//   - [Error]: the current model or run is unusable
//   - [Warning]: the result is usable but degraded (approximations, ignored input)
//   - [Message]: advisory information
//
// Only fatal and error entries need to be checked before trusting a result:
//
//	store := diag.NewStore()
//	rm, _ := reduce.Reduce(doc, store)
//	if store.HasErrors() {
//	    store.DumpAndClear(os.Stderr)
//	}
//
// # Capacity
//
// A store holds at most [DefaultCapacity] entries. Once full it keeps a single
// pre-allocated fatal sentinel with code [CodeOutOfMemory] and drops further
// records, so recording never grows memory without bound.
package diag
