// Package tree models task trees: leaf Tasks that run actions and Contexts
// that group children behind entry and stay conditions.
//
// Trees are assembled with builders and frozen by Build into an Arena. The
// arena addresses every node by a stable index (DFS pre-order, root = 0),
// holds the bound copies of each node's conditions, and reports how many
// bookkeeping cells a dispatcher cursor needs for the tree.
//
// Arenas are read-only after Build and may be shared between goroutines.
package tree
