// Package state defines the scalar values stored in the shared world state.
//
// A Value is one of String, Bool or Number. The set is sealed: only the types
// in this package implement Value, so type switches over it are total.
//
// Equality is variant-sensitive. String("1") is not equal to Number(1), which
// is what named-state conditions compare against.
package state
