package store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"

	"github.com/dmitrijs2005/vaultsync/internal/result"
)

// Memory is an in-process Store used in tests and as a reference
// implementation of the optimistic-concurrency contract. Hashes are SHA-256
// hex digests of the content.
type Memory struct {
	mu      sync.Mutex
	objects map[string][]byte

	// Call counters, readable via Calls.
	getInfoCalls int
	readCalls    int
	writeCalls   int
	deleteCalls  int

	// FailWrites forces every WriteFile into a transport failure.
	FailWrites bool
	// FailDeletes forces every DeleteFile into a transport failure.
	FailDeletes bool
}

// MemoryCalls is a snapshot of per-operation call counts.
type MemoryCalls struct {
	GetInfo, Read, Write, Delete int
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{objects: make(map[string][]byte)}
}

func memHash(content []byte) string {
	h := sha256.Sum256(content)
	return hex.EncodeToString(h[:])
}

// Seed stores content at path without hash checks and returns its hash.
func (m *Memory) Seed(path string, content []byte) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[path] = append([]byte(nil), content...)
	return memHash(content)
}

// Calls returns the per-operation call counts so far.
func (m *Memory) Calls() MemoryCalls {
	m.mu.Lock()
	defer m.mu.Unlock()
	return MemoryCalls{GetInfo: m.getInfoCalls, Read: m.readCalls, Write: m.writeCalls, Delete: m.deleteCalls}
}

// NetworkCalls returns the total number of store operations issued.
func (m *Memory) NetworkCalls() int {
	c := m.Calls()
	return c.GetInfo + c.Read + c.Write + c.Delete
}

func (m *Memory) GetFileInfo(ctx context.Context, path string) result.Result[FileInfo, *Error] {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.getInfoCalls++
	content, ok := m.objects[path]
	if !ok {
		return result.Err[FileInfo](notFound(path))
	}
	return result.Ok[FileInfo, *Error](FileInfo{Path: path, Hash: memHash(content), Size: int64(len(content))})
}

func (m *Memory) ReadFile(ctx context.Context, path string) result.Result[File, *Error] {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.readCalls++
	content, ok := m.objects[path]
	if !ok {
		return result.Err[File](notFound(path))
	}
	return result.Ok[File, *Error](File{
		Path:    path,
		Hash:    memHash(content),
		Content: append([]byte(nil), content...),
	})
}

func (m *Memory) WriteFile(ctx context.Context, path string, content []byte, expectedHash string) result.Result[string, *Error] {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writeCalls++
	if m.FailWrites {
		return result.Err[string](transport(path, context.DeadlineExceeded))
	}
	current, exists := m.objects[path]
	if expectedHash == "" {
		if exists {
			return result.Err[string](conflict(path))
		}
	} else {
		if !exists {
			return result.Err[string](notFound(path))
		}
		if memHash(current) != expectedHash {
			return result.Err[string](conflict(path))
		}
	}
	m.objects[path] = append([]byte(nil), content...)
	return result.Ok[string, *Error](memHash(content))
}

func (m *Memory) DeleteFile(ctx context.Context, path string, expectedHash string) result.Result[result.Unit, *Error] {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleteCalls++
	if m.FailDeletes {
		return result.Err[result.Unit](transport(path, context.DeadlineExceeded))
	}
	current, exists := m.objects[path]
	if !exists {
		return result.Err[result.Unit](notFound(path))
	}
	if memHash(current) != expectedHash {
		return result.Err[result.Unit](conflict(path))
	}
	delete(m.objects, path)
	return result.Ok[result.Unit, *Error](result.Unit{})
}

var _ Store = (*Memory)(nil)
