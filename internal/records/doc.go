// Package records is Reelsmith's persistence layer: the pipeline data model
// (projects, bible assets, variants, scenes, shots, final reels) and a
// SQLite-backed store with typed CRUD. Operations that enforce a correctness
// invariant, such as variant selection, run in explicit transactions; the
// admission count deliberately does not (see internal/admission).
package records
