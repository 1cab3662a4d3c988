// Package mmap provides read-only memory-mapped files.
//
// A Mapping is shared by every posting-list store window carved out of it;
// callers must not touch Bytes() after Close() returns.
package mmap
