// Package review wires the annosync consistency layer to the
// annotation-review domain: principles (label definitions) and samples
// (annotated text spans).
//
// Client is the facade handed to UI collaborators. Reads go through
// cached, deduplicated queries; writes go through the mutation engine
// with the per-operation optimistic and invalidation rules of the
// review workflow. High-frequency opinion edits are coalesced through
// OpinionDraft before they reach the network.
package review
