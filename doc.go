// Package mempool supplies lock-free object pooling with a limited scope:
//
//   - Memory is carved from the runtime in chunks of several kilobytes,
//     where each chunk holds blocks of a single size.
//   - Once carved, a chunk is never returned to the runtime until the pool
//     is Released; blocks never merge, split or move.
//   - Every operation on the shared freelists is a bounded sequence of
//     atomic steps; there is no mutex anywhere on the data path.
//   - MultiPool payloads are always 8-byte aligned. Pool payloads carry
//     only the natural alignment of the element type, which is less than
//     8 bytes for small types.
//
// Pool is the fixed-size variant, parameterized by one element type.
// MultiPool segregates requests into sixteen size classes up to 2 KiB and
// delegates anything larger to the runtime allocator.
//
// Workers that allocate or free in tight loops should hold a Cache or
// MultiCache, which batches traffic with the shared freelists and must be
// Closed when the worker exits so its blocks are handed back.
package mempool
