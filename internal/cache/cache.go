// Package cache stores generated C units on disk, keyed by the digest of
// everything that went into generating them.
package cache

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/vmihailenco/msgpack/v5"
)

// Schema is bumped whenever Unit changes.
const Schema uint16 = 1

// Key identifies one generation input.
type Key [sha256.Size]byte

func (k Key) String() string { return hex.EncodeToString(k[:]) }

// Hasher accumulates the inputs of a key.
type Hasher struct {
	parts [][]byte
}

// Add appends a length-prefixed part, so adjacent parts cannot merge.
func (h *Hasher) Add(part []byte) *Hasher {
	h.parts = append(h.parts, part)
	return h
}

// AddString is Add for strings.
func (h *Hasher) AddString(s string) *Hasher { return h.Add([]byte(s)) }

// Sum returns the key.
func (h *Hasher) Sum() Key {
	d := sha256.New()
	var n [8]byte
	binary.LittleEndian.PutUint16(n[:2], Schema)
	d.Write(n[:2])
	for _, p := range h.parts {
		binary.LittleEndian.PutUint64(n[:], uint64(len(p)))
		d.Write(n[:])
		d.Write(p)
	}
	var k Key
	copy(k[:], d.Sum(nil))
	return k
}

// Unit is a cached generation result.
type Unit struct {
	Schema     uint16
	Package    string
	Header     string
	Impl       string
	IR         string
	Executable bool
}

// Disk is a cache directory. A nil *Disk caches nothing. Safe for
// concurrent use.
type Disk struct {
	mu  sync.RWMutex
	dir string
}

// Open creates dir if needed.
func Open(dir string) (*Disk, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &Disk{dir: dir}, nil
}

// Dir returns the cache directory.
func (c *Disk) Dir() string { return c.dir }

func (c *Disk) pathFor(key Key) string {
	s := key.String()
	return filepath.Join(c.dir, s[:2], s+".mp")
}

// Put writes u under key. The file is replaced atomically.
func (c *Disk) Put(key Key, u *Unit) (err error) {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	p := c.pathFor(key)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}
	f, err := os.CreateTemp(filepath.Dir(p), "tmp-*")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = f.Close()
			_ = os.Remove(f.Name())
		}
	}()

	u.Schema = Schema
	if err = msgpack.NewEncoder(f).Encode(u); err != nil {
		return err
	}
	if err = f.Close(); err != nil {
		return err
	}
	return os.Rename(f.Name(), p)
}

// Get reads the unit stored under key. A missing entry or one written
// with another schema is a miss.
func (c *Disk) Get(key Key) (*Unit, bool, error) {
	if c == nil {
		return nil, false, nil
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	f, err := os.Open(c.pathFor(key))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, err
	}
	defer f.Close()

	var u Unit
	if err := msgpack.NewDecoder(f).Decode(&u); err != nil {
		return nil, false, fmt.Errorf("cache entry %s: %w", key, err)
	}
	if u.Schema != Schema {
		return nil, false, nil
	}
	return &u, true, nil
}

// Clear removes every entry.
func (c *Disk) Clear() error {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := os.RemoveAll(c.dir); err != nil {
		return err
	}
	return os.MkdirAll(c.dir, 0o755)
}
