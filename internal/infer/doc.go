// Package infer derives parameter specs from raw SQL text and binds them to
// concrete values.
//
// Inference is text-only: it never consults the database catalog. The
// placeholder count comes from the executable text (comment lines removed);
// casts and documenting comments come from the full text. Type classes and
// strategies are chosen by walking ordered rule tables, so priority is
// explicit and each rule can be tested on its own.
//
// Any default taken along the way is recorded on the ParameterSpec
// (Fallback, FallbackReason) and logged at Warn.
package infer
