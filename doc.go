// Package runtimefilter implements the runtime-filter subsystem of a
// distributed SQL execution engine: approximate, memory-bounded membership
// filters built on the build side of a join and pushed to probe-side
// operators so they can skip rows that cannot match.
//
// Each execution unit owns one Bank. Producer operators register the filters
// they will build and consumers register the filters they will apply; when a
// producer finishes, the bank either shares the filter object directly with a
// co-located consumer or hands it to an asynchronous dispatcher that carries
// it toward the aggregation coordinator. Consumers call WaitForArrival, which
// is bounded by the bank's configured arrival timeout, and simply proceed
// unfiltered when it expires.
//
// The subsystem is strictly best-effort. No failure inside it (a refused
// memory reservation, a lost update, a filter that never arrives) may ever
// fail a query or discard a correct row. Every degradation path substitutes
// the permissive always-true filter, never a more restrictive one.
package runtimefilter
