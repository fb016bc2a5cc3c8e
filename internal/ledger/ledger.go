// Package ledger implements the per-member permission ledger described in
// spec §4.2: for each member, an ordered list of buckets keyed by
// global_time, each bucket holding the permission entries that changed at
// that logical time.
package ledger

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/overlaytrust/timeline/internal/timelinemodel"
)

type bucket struct {
	globalTime uint64
	entries    map[string]timelinemodel.PermissionEntry
}

// MemberLedger tracks, per member, which permissions were allowed or denied
// as of each global_time at which something changed. It is the sole
// authority MutationAPI writes to and CheckEngine reads from for Linear-
// resolution permissions.
type MemberLedger struct {
	mu      sync.Mutex
	buckets map[timelinemodel.MemberKey][]*bucket
}

// New returns an empty MemberLedger.
func New() *MemberLedger {
	return &MemberLedger{buckets: make(map[timelinemodel.MemberKey][]*bucket)}
}

// Upsert records that, as of globalTime, member's permission for key became
// allowed (or not), with proof appended to the entry's proof chain.
//
// Four cases (spec §4.2):
//   - a bucket already exists at exactly globalTime with the same key and
//     the same allowed value: proof is appended to that entry;
//   - a bucket already exists at exactly globalTime with the same key and
//     the opposite allowed value: ErrConflictingGrantRevoke is returned and
//     nothing is changed;
//   - a bucket already exists at exactly globalTime without key: a new entry
//     for key is added to that bucket;
//   - no bucket exists at globalTime: a new bucket is inserted in sorted
//     position holding just this entry.
func (l *MemberLedger) Upsert(member timelinemodel.Member, globalTime uint64, key string, allowed bool, proof *timelinemodel.MessageImpl) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	bs := l.buckets[member.Key]

	for i := len(bs) - 1; i >= 0; i-- {
		b := bs[i]
		if b.globalTime == globalTime {
			existing, ok := b.entries[key]
			if ok {
				if existing.Allowed != allowed {
					return timelinemodel.ErrConflictingGrantRevoke
				}
				b.entries[key] = existing.WithProof(proof)
				return nil
			}
			entry, err := timelinemodel.NewPermissionEntry(allowed, []*timelinemodel.MessageImpl{proof})
			if err != nil {
				return err
			}
			b.entries[key] = entry
			return nil
		}
		if b.globalTime < globalTime {
			nb, err := newBucket(globalTime, key, allowed, proof)
			if err != nil {
				return err
			}
			bs = insertAt(bs, i+1, nb)
			l.buckets[member.Key] = bs
			return nil
		}
	}

	nb, err := newBucket(globalTime, key, allowed, proof)
	if err != nil {
		return err
	}
	l.buckets[member.Key] = insertAt(bs, 0, nb)
	return nil
}

func newBucket(globalTime uint64, key string, allowed bool, proof *timelinemodel.MessageImpl) (*bucket, error) {
	entry, err := timelinemodel.NewPermissionEntry(allowed, []*timelinemodel.MessageImpl{proof})
	if err != nil {
		return nil, err
	}
	return &bucket{globalTime: globalTime, entries: map[string]timelinemodel.PermissionEntry{key: entry}}, nil
}

func insertAt(bs []*bucket, i int, nb *bucket) []*bucket {
	bs = append(bs, nil)
	copy(bs[i+1:], bs[i:])
	bs[i] = nb
	return bs
}

// Lookup returns the most recent permission entry for (member, key) as of
// globalTime: the ledger reverse-scans to the most recent bucket with
// globalTime <= the queried time, then walks backward from there until it
// finds a bucket containing key. Returns ok == false if member never held
// any entry for key at or before globalTime.
func (l *MemberLedger) Lookup(member timelinemodel.Member, globalTime uint64, key string) (timelinemodel.PermissionEntry, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	bs := l.buckets[member.Key]
	for i := len(bs) - 1; i >= 0; i-- {
		if bs[i].globalTime > globalTime {
			continue
		}
		for j := i; j >= 0; j-- {
			if e, ok := bs[j].entries[key]; ok {
				return e, true
			}
		}
		return timelinemodel.PermissionEntry{}, false
	}
	return timelinemodel.PermissionEntry{}, false
}

// MemberCount returns the number of distinct members the ledger currently
// tracks any bucket for, used by checkengine.Engine.Stats.
func (l *MemberLedger) MemberCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

// DebugString renders every member's buckets for operator troubleshooting,
// mirroring the original implementation's debug printer.
func (l *MemberLedger) DebugString() string {
	l.mu.Lock()
	defer l.mu.Unlock()

	var sb strings.Builder
	keys := make([]timelinemodel.MemberKey, 0, len(l.buckets))
	for k := range l.buckets {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return string(keys[i][:]) < string(keys[j][:]) })

	for _, k := range keys {
		fmt.Fprintf(&sb, "member %x:\n", k[:8])
		for _, b := range l.buckets[k] {
			fmt.Fprintf(&sb, "  t=%d:\n", b.globalTime)
			names := make([]string, 0, len(b.entries))
			for name := range b.entries {
				names = append(names, name)
			}
			sort.Strings(names)
			for _, name := range names {
				e := b.entries[name]
				fmt.Fprintf(&sb, "    %s allowed=%v proofs=%d\n", name, e.Allowed, len(e.Proofs))
			}
		}
	}
	return sb.String()
}
