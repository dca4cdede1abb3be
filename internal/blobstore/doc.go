// Package blobstore is a client for a Gist-compatible multi-file document
// store. A document is addressed by an opaque id and holds named files; files
// are created, updated and deleted with a single PATCH carrying a partial
// file map, where a null entry deletes the file.
package blobstore
