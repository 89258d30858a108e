// Package directory holds the in-memory hash→addresses map and the peer
// set with liveness flags that together make up a server's volatile
// state. Both structures are single-owner: they carry no locking of
// their own because the server's dispatch loop is the only goroutine
// that ever touches them.
//
// The hash map is adapted from the ordered subtree-of-nodes shape in
// shm.Map, generalized to preserve insertion order — shm's plain Go maps
// don't, and GET replies must observe addresses in the order they were
// first PUT.
package directory

import (
	"time"
)

// TTL is the fixed time-to-live of an Entry.
const TTL = 30 * time.Second

// Entry is one (address, last-refreshed-time) record inside a hash's
// list.
type Entry struct {
	Address     []byte
	RefreshedAt time.Time
}

type record struct {
	hash    []byte
	entries []*Entry
	index   map[string]int // address string -> position in entries
}

// Directory maps a Hash to its non-empty ordered list of Entries.
type Directory struct {
	order   []string // hash string, insertion order
	records map[string]*record
}

// New creates an empty Directory.
func New() *Directory {
	return &Directory{records: make(map[string]*record)}
}

// Put inserts a fresh Entry for (hash, address) if none exists yet, or
// refreshes the existing Entry's timestamp otherwise. Idempotent for
// repeated (hash, address) pairs modulo the refresh timestamp.
func (d *Directory) Put(hash, address []byte, now time.Time) {
	key := string(hash)
	r, ok := d.records[key]
	if !ok {
		r = &record{hash: append([]byte(nil), hash...), index: make(map[string]int)}
		d.records[key] = r
		d.order = append(d.order, key)
	}

	addrKey := string(address)
	if pos, ok := r.index[addrKey]; ok {
		r.entries[pos].RefreshedAt = now
		return
	}

	r.index[addrKey] = len(r.entries)
	r.entries = append(r.entries, &Entry{
		Address:     append([]byte(nil), address...),
		RefreshedAt: now,
	})
}

// Get returns the addresses stored for hash in insertion order. A
// missing hash yields a nil slice — not an error, an empty reply is
// normal.
func (d *Directory) Get(hash []byte) [][]byte {
	r, ok := d.records[string(hash)]
	if !ok {
		return nil
	}
	out := make([][]byte, len(r.entries))
	for i, e := range r.entries {
		out[i] = e.Address
	}
	return out
}

// HashAddress pairs a hash with one of its addresses, for bootstrap
// transfer.
type HashAddress struct {
	Hash    []byte
	Address []byte
}

// IterateAll yields every (hash, address) pair in the directory, ordered
// by hash insertion order and then by entry insertion order within each
// hash. Used to build the bootstrap dump sent to a joining peer.
func (d *Directory) IterateAll() []HashAddress {
	var out []HashAddress
	for _, key := range d.order {
		r := d.records[key]
		for _, e := range r.entries {
			out = append(out, HashAddress{Hash: r.hash, Address: e.Address})
		}
	}
	return out
}

// Sweep removes every Entry whose age exceeds TTL, then removes any hash
// left with no entries. It returns the delay, in seconds, until the next
// entry would naturally expire (plus one second of slack), or TTL if the
// directory ends up empty.
func (d *Directory) Sweep(now time.Time) time.Duration {
	next := TTL
	kept := d.order[:0]

	for _, key := range d.order {
		r := d.records[key]
		survivors := r.entries[:0]
		for _, e := range r.entries {
			age := now.Sub(e.RefreshedAt)
			if age > TTL {
				continue
			}
			survivors = append(survivors, e)
			if remaining := TTL - age; remaining < next {
				next = remaining
			}
		}

		if len(survivors) == 0 {
			delete(d.records, key)
			continue
		}

		r.entries = survivors
		r.index = make(map[string]int, len(survivors))
		for i, e := range survivors {
			r.index[string(e.Address)] = i
		}
		kept = append(kept, key)
	}
	d.order = kept

	if len(d.order) == 0 {
		return TTL
	}
	return next + time.Second
}
