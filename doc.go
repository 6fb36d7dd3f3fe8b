/*
Package fstreedb implements an embedded object store addressed by typed
hierarchical paths, on top of a key-value store (Bolt, or an in-memory store
for tests).

We implement:

1. Paths. A Schema declares path types, each either static (one fixed tag)
or keyed (any segment), and which path types may be parents of which. A Chain
is a validated root-anchored sequence of elements and is the only way to
address stored data.

2. Versioned values. A path type may store values of a VersionChain, an
ordered list of Go types with optional upgrade and downgrade functions between
neighbours. Reading converts whatever version is stored into the version the
caller asks for, or fails with a NoMigrationError.

3. Children. Storing a value under a path records its last segment among the
parent's children, optionally capped to a uniform random sample (see
Reservoir).

4. Batched access. An Access collects lazy operations (Get, Set, Remove,
Exists, ListChildren) and runs them all in a single transaction of the
minimal capability: none, read-only or read-write. A ReadAccess cannot carry
write operations at all.

# Technical Details

**Buckets.**
Two namespaces, data and children, map to two top-level buckets.

**Key encoding.**
Every segment followed by a zero byte, starting with the empty root segment.
Segments cannot contain zero bytes, so keys are injective and their byte order
equals tree pre-order.

**Value**: flags, version ordinal, raw size, stored size (all uvarints), then
the stored payload, then an optional xxhash64 of the stored payload.

**Flags**: bits 0-3 hold the format version (currently 1); then zstd and lz4
compression bits and a checksum bit.

**Payload**: msgpack of the version's type, unless it marshals itself via
encoding.BinaryMarshaler or asks for JSON.

**Children**: a value (version 0) whose payload is a msgpack map with the
reservoir maximum (zero when unlimited), the total count and the sample.
*/
package fstreedb
