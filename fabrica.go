// Package fabrica generates a typed HTTP API server and client SDK from a
// live PostgreSQL database.
//
// The pipeline is strictly linear: configuration is loaded, the target
// schema is introspected into a Model, the Model is classified into a
// relation Graph, and the emitter turns Model + Graph into server routes,
// validation schemas, typed clients and a contract document. Runtime
// behavior (filtering, pagination, batched include loading, vector
// search) lives in importable packages that the emitted code wires
// together:
//
//	schema     normalized database model
//	introspect catalog queries producing a Model
//	graph      relation classification (one/many/M:N via junctions)
//	filter     the request filter DSL compiled to parameterized SQL
//	include    include/expand specs and path enumeration
//	loader     batched relation hydration without N+1 queries
//	vector     similarity search on pgvector columns
//	httpapi    the generated server's runtime handlers
//	compiler   the generation driver and jennifer-based emitter
//
// This package holds the error taxonomy shared by all of them.
package fabrica

// Version is the toolkit version embedded in generated file headers and
// the contract document. Overridden at release time via -ldflags.
var Version = "0.3.0-dev"
