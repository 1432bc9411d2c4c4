// Package vfs implements multi-root virtual file addressing.
//
// Every principal owns a fixed, ordered set of named storage roots
// (adapters), for example "document", "resource" and "release". Entries are
// addressed as "<key>:/<path>"; the root of an adapter is "<key>://".
//
// Components:
//   - address: Resolve/ParseAddress normalize addresses into root-relative
//     absolute paths and reject ".." traversal above the root
//   - adapter: Adapter wraps a root-scoped afero filesystem
//   - registry: Registry lazily creates and caches adapter sets per principal
//   - resource: Resource descriptors and listing order
//   - errors: the failure taxonomy shared by all file operations
//
// Example Usage:
//
//	reg, _ := vfs.NewRegistry(vfs.RegistryConfig{
//		StorageRoot: "./cloud",
//		Adapters:    []vfs.AdapterSpec{{Key: "document"}, {Key: "resource"}},
//	})
//	adapter, _, _ := reg.Adapter("alice", "document")
//	p, _ := vfs.Resolve("document://reports/q1.txt")
package vfs
