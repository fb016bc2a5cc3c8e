// Package policylog implements the community-wide resolution-policy log
// described in spec §4.1: an ordered list of buckets keyed by global_time,
// each recording which Dynamic-resolution message types were repointed at
// Public or Linear as of that time.
package policylog

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/overlaytrust/timeline/internal/timelinemodel"
)

type entry struct {
	policy timelinemodel.ResolutionKind
	proofs []*timelinemodel.MessageImpl
}

type bucket struct {
	globalTime uint64
	entries    map[string]entry
}

// PolicyLog tracks, community-wide, which concrete policy a Dynamic-
// resolution message name resolved to at each global_time a
// dispersy-dynamic-settings message changed it.
type PolicyLog struct {
	mu      sync.Mutex
	buckets []*bucket
}

// New returns an empty PolicyLog.
func New() *PolicyLog {
	return &PolicyLog{}
}

func resolutionKey(messageName string) string {
	return "resolution^" + messageName
}

// GetResolutionPolicy returns the policy in effect for messageName strictly
// before globalTime (spec §4.1: a policy change recorded at time t takes
// effect only for times > t, never for t itself), along with the proof
// chain for that policy. If no change was ever recorded before globalTime,
// defaultPolicy is returned with a nil proof chain.
func (p *PolicyLog) GetResolutionPolicy(messageName string, globalTime uint64, defaultPolicy timelinemodel.ResolutionKind) (timelinemodel.ResolutionKind, []*timelinemodel.MessageImpl) {
	p.mu.Lock()
	defer p.mu.Unlock()

	key := resolutionKey(messageName)
	for i := len(p.buckets) - 1; i >= 0; i-- {
		if p.buckets[i].globalTime >= globalTime {
			continue
		}
		for j := i; j >= 0; j-- {
			if e, ok := p.buckets[j].entries[key]; ok {
				return e.policy, e.proofs
			}
		}
		break
	}
	return defaultPolicy, nil
}

// ChangeResolutionPolicy records that, as of globalTime, messageName's
// resolution policy became policy. It finds or creates the bucket at
// exactly globalTime and overwrites whatever entry was there for this
// message name.
func (p *PolicyLog) ChangeResolutionPolicy(messageName string, globalTime uint64, policy timelinemodel.ResolutionKind, proof *timelinemodel.MessageImpl) {
	p.mu.Lock()
	defer p.mu.Unlock()

	key := resolutionKey(messageName)
	newEntry := entry{policy: policy, proofs: []*timelinemodel.MessageImpl{proof}}

	for i := len(p.buckets) - 1; i >= 0; i-- {
		b := p.buckets[i]
		if b.globalTime == globalTime {
			b.entries[key] = newEntry
			return
		}
		if b.globalTime < globalTime {
			nb := &bucket{globalTime: globalTime, entries: map[string]entry{key: newEntry}}
			p.buckets = insertAt(p.buckets, i+1, nb)
			return
		}
	}

	nb := &bucket{globalTime: globalTime, entries: map[string]entry{key: newEntry}}
	p.buckets = insertAt(p.buckets, 0, nb)
}

func insertAt(bs []*bucket, i int, nb *bucket) []*bucket {
	bs = append(bs, nil)
	copy(bs[i+1:], bs[i:])
	bs[i] = nb
	return bs
}

// ChangeCount returns the number of buckets (distinct global_time values at
// which some policy changed) currently recorded, used by
// checkengine.Engine.Stats.
func (p *PolicyLog) ChangeCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.buckets)
}

// DebugString renders every recorded policy change for operator
// troubleshooting, mirroring the original implementation's debug printer.
func (p *PolicyLog) DebugString() string {
	p.mu.Lock()
	defer p.mu.Unlock()

	var sb strings.Builder
	for _, b := range p.buckets {
		fmt.Fprintf(&sb, "t=%d:\n", b.globalTime)
		names := make([]string, 0, len(b.entries))
		for name := range b.entries {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			e := b.entries[name]
			fmt.Fprintf(&sb, "  %s -> %s (proofs=%d)\n", name, e.policy, len(e.proofs))
		}
	}
	return sb.String()
}
