// Package registry provides module discovery for GCP resource modules.
//
// A Registry maps stable string identifiers (for example "gcp-module-project")
// to an Entry describing the implementation behind it: its exported name, a
// short description and the Constructor a host calls to instantiate it. The
// registry is built once through New and is read-only afterwards, so any
// number of goroutines may read from it without locking.
//
// Every implementation satisfies the Module capability contract: Identity,
// Read, Sync and Delete. Failures are reported as *OperationError values
// classified as transient or permanent so hosts can apply one retry policy
// across all resource types.
//
// The registry never instantiates modules and never talks to the cloud. A host
// resolves an identifier with Lookup, builds the module with Entry.New and
// drives it.
package registry
