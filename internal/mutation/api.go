// Package mutation implements the timeline's write side (spec §4.4):
// authorize, revoke, and resolution-policy changes. Every mutation gates
// under a fixed Linear resolution regardless of the target message type's
// own declared resolution, and applies all-or-nothing — a denial on any one
// triplet in a batch denies the whole batch and mutates nothing.
package mutation

import (
	"github.com/overlaytrust/timeline/internal/checkengine"
	"github.com/overlaytrust/timeline/internal/ledger"
	"github.com/overlaytrust/timeline/internal/policylog"
	"github.com/overlaytrust/timeline/internal/timelinemodel"
)

// API is the timeline's mutation surface. It never reads a message's own
// resolution policy for gating — that is CheckEngine's job for inbound
// containers; API always uses the fixed Linear gate (spec §4.4).
type API struct {
	ledger *ledger.MemberLedger
	policy *policylog.PolicyLog
	engine *checkengine.Engine
}

// New builds a mutation API over the given ledger, policy log, and the
// check engine used purely for its fixed-Linear gating helper.
func New(l *ledger.MemberLedger, p *policylog.PolicyLog, e *checkengine.Engine) *API {
	return &API{ledger: l, policy: p, engine: e}
}

func dedupeAppend(dst []*timelinemodel.MessageImpl, seen map[*timelinemodel.MessageImpl]bool, src []*timelinemodel.MessageImpl) []*timelinemodel.MessageImpl {
	for _, p := range src {
		if p != nil && !seen[p] {
			seen[p] = true
			dst = append(dst, p)
		}
	}
	return dst
}

// Authorize grants each triplet's permission to its member, provided signer
// holds "authorize" on every triplet's target message type under a fixed
// Linear resolution. All triplets succeed or none are applied.
func (a *API) Authorize(signer timelinemodel.Member, globalTime uint64, triplets []timelinemodel.PermissionTriplet, proof *timelinemodel.MessageImpl) (bool, []*timelinemodel.MessageImpl, error) {
	return a.apply(signer, globalTime, triplets, true, proof)
}

// Revoke withdraws each triplet's permission from its member, provided
// signer holds "revoke" on every triplet's target message type under a
// fixed Linear resolution. All triplets succeed or none are applied.
func (a *API) Revoke(signer timelinemodel.Member, globalTime uint64, triplets []timelinemodel.PermissionTriplet, proof *timelinemodel.MessageImpl) (bool, []*timelinemodel.MessageImpl, error) {
	return a.apply(signer, globalTime, triplets, false, proof)
}

func (a *API) apply(signer timelinemodel.Member, globalTime uint64, triplets []timelinemodel.PermissionTriplet, allowedValue bool, proof *timelinemodel.MessageImpl) (bool, []*timelinemodel.MessageImpl, error) {
	action := timelinemodel.PermissionAuthorize
	if !allowedValue {
		action = timelinemodel.PermissionRevoke
	}

	var collected []*timelinemodel.MessageImpl
	seen := map[*timelinemodel.MessageImpl]bool{}

	for _, tr := range triplets {
		ok, proofs := a.engine.AllowedUnderLinear(signer, globalTime, action, tr.TargetMeta.Name)
		collected = dedupeAppend(collected, seen, proofs)
		if !ok {
			return false, collected, nil
		}
	}

	for _, tr := range triplets {
		switch tr.TargetMeta.Resolution.Kind {
		case timelinemodel.ResolutionPublic, timelinemodel.ResolutionLinear, timelinemodel.ResolutionDynamic:
		default:
			return false, collected, timelinemodel.ErrUnknownResolution
		}
	}

	for _, tr := range triplets {
		key := timelinemodel.PermissionKey(tr.Permission, tr.TargetMeta.Name)
		if err := a.ledger.Upsert(tr.Member, globalTime, key, allowedValue, proof); err != nil {
			return false, collected, err
		}
	}
	return true, collected, nil
}

// ChangeResolutionPolicy repoints messageName's resolution policy, provided
// signer holds "authorize" on messageName under a fixed Linear resolution.
func (a *API) ChangeResolutionPolicy(signer timelinemodel.Member, globalTime uint64, messageName string, policy timelinemodel.ResolutionKind, proof *timelinemodel.MessageImpl) (bool, []*timelinemodel.MessageImpl, error) {
	ok, proofs := a.engine.AllowedUnderLinear(signer, globalTime, timelinemodel.PermissionAuthorize, messageName)
	if !ok {
		return false, proofs, nil
	}
	a.policy.ChangeResolutionPolicy(messageName, globalTime, policy, proof)
	return true, proofs, nil
}
