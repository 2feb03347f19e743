// Package component defines the lifecycle contract for infrastructure that
// coordkit depends on (the store connection, its in-memory test double) and
// a registry that starts components in order and stops them in reverse.
package component
