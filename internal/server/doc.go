// Package server hosts the Fiber HTTP inspection service. Clients POST a
// pipeline cache blob (optionally zstd/gzip/lz4 compressed) and receive the
// decoded headers and entry reports as JSON. The digest index, when loaded at
// startup, is shared read-only by every request; each request parses its own
// body. Diagnostics endpoints under /-/ live in the routes subpackage.
package server
