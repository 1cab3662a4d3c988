// Package postings implements the posting-list store: an immutable,
// trailer-anchored binary structure mapping a dense term id to a contiguous
// run of fixed-size posting entries.
//
// Layout of a store buffer:
//
//	[ entries: Entry... ][ ranges: Range... ][ u64 LE: byte length of ranges ]
//
// Entries are 14 bytes (document id u64, attribute u16, attribute index u32),
// ranges are 16 bytes (start u64, end u64), all little-endian. A Store reads
// both segments straight out of its backing Data without decoding them up
// front, so a store opened from a memory-mapped file costs nothing beyond
// validation of the ranges.
package postings
