// Package registry keeps one shared instance per resource identity.
//
// Consumers state the key they need (capability type, resource name, config
// node path and optional qualifier attributes) and a factory. The first
// Resolve for a key runs the factory; concurrent callers wait for that single
// construction and share its result. Release and ReleaseAll run teardown
// callbacks exactly once.
package registry
