// Package core defines the shared data model of the memory subsystem:
// categories, memory records, clusters, conversation turns, and the
// error taxonomy every other package reports failures with.
//
// The types here carry no behavior beyond validation and serialization
// helpers. Storage, embedding, indexing, and orchestration live in their
// own packages and all speak in terms of these types.
package core
