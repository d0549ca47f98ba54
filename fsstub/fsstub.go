// Package fsstub stands in for the filesystem collaborator described in
// spec.md §6: "get_file(path) -> byte_slice (fatal on missing)". A real
// filesystem is out of scope for this core; this package is the minimal
// path-to-bytes registry that Exec (package sched) calls through, keyed
// the same way the teacher's own fs stub tree resolves names.
package fsstub

import (
	"sync"

	"rvcore/kerr"
)

var (
	mu    sync.RWMutex
	files = map[string][]byte{}
)

// Install registers content under path, overwriting any prior content.
// Test setup and boot code use this to seed /initcode and other binaries
// before the first exec.
func Install(path string, content []byte) {
	mu.Lock()
	defer mu.Unlock()
	files[path] = content
}

// GetFile returns the bytes registered under path. A missing path is not
// fatal here: GetFile returns kerr.ENOENT instead.
func GetFile(path string) ([]byte, kerr.Err_t) {
	mu.RLock()
	defer mu.RUnlock()
	b, ok := files[path]
	if !ok {
		return nil, kerr.ENOENT
	}
	return b, 0
}
