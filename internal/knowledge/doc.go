// Package knowledge manages the vector-backed document index.
//
// The package wraps a PostgreSQL + pgvector table behind a Store that
// handles embedding generation, filtered similarity search, and the
// normalization of raw rows into Passage values consumed by the answer
// pipeline. Filters combine conjunctively: a passage must satisfy every
// populated field of a Filters value to be returned.
//
// Documents are embedded with a Genkit ai.Embedder truncated to
// VectorDimension dimensions, so the stored vectors always match the
// vector(768) column declared in the schema.
package knowledge
