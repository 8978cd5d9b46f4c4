// Package blobfmt decodes the pipeline cache blobs written by the AMD Vulkan
// driver. A blob starts with the Vulkan pipeline cache header (whose declared
// length may include vendor padding), followed by the driver's private header
// and a back-to-back list of length-prefixed entries that runs until the end
// of the buffer.
//
// Every read is bounds-checked against the real buffer length; length fields
// found in the blob are never trusted. Structural problems are reported as
// *FormatError values wrapping one of the package sentinels so callers can
// classify them with errors.Is.
package blobfmt
