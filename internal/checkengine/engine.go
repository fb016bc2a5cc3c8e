// Package checkengine implements the timeline's read-side kernel (spec
// §4.3): given a signed message or a bare (member, permission, message type)
// triplet, decide whether the acting member was permitted to do what the
// message claims, and collect the proof chain backing that verdict.
package checkengine

import (
	"errors"

	"github.com/overlaytrust/timeline/internal/ledger"
	"github.com/overlaytrust/timeline/internal/policylog"
	"github.com/overlaytrust/timeline/internal/timelinemodel"
)

// AuditEvent describes a denial or governance change the engine observed,
// for delivery to an optional best-effort audit sink (spec §7: "the
// timeline itself never retries and never logs at a level above debug
// except to record denials and governance changes").
type AuditEvent struct {
	Kind        string // "denied" or "governance_change"
	Member      timelinemodel.Member
	MessageName string
	GlobalTime  uint64
	Reason      string
}

// AuditFunc receives audit events. It must not block or perform I/O
// synchronously; a collaborator that wants durable storage (internal/auditsink)
// dispatches the write on its own goroutine.
type AuditFunc func(AuditEvent)

// CheckResult is the detailed outcome of CheckDetailed. Check() itself
// narrows this to the spec's external (bool, proofs) contract.
type CheckResult struct {
	Allowed bool
	Proofs  []*timelinemodel.MessageImpl

	// AllowedTriplets is populated only for authorize/revoke containers: the
	// subset of the container's triplets that belonged to an accepted group
	// (spec §4.3, scenario S6 — a container is accepted if any one of its
	// per-target-type groups is allowed, and only that group's triplets are
	// meant to be applied downstream).
	AllowedTriplets []timelinemodel.PermissionTriplet
}

// Stats summarizes the engine's current state for operator introspection.
type Stats struct {
	MembersTracked       int
	PolicyChangesTracked int
	LastCheckAllowed     bool
}

// Engine is the check kernel. It holds no message history of its own; it
// consults the ledger and policy log it was built with.
type Engine struct {
	community timelinemodel.Community
	ledger    *ledger.MemberLedger
	policy    *policylog.PolicyLog
	audit     AuditFunc

	lastCheckAllowed bool
}

// Option configures an Engine at construction time.
type Option func(*Engine)

// WithAuditFunc installs an audit callback invoked on every denial and every
// governance change the engine observes.
func WithAuditFunc(fn AuditFunc) Option {
	return func(e *Engine) { e.audit = fn }
}

// New builds an Engine over the given community, ledger and policy log.
func New(community timelinemodel.Community, l *ledger.MemberLedger, p *policylog.PolicyLog, opts ...Option) *Engine {
	e := &Engine{community: community, ledger: l, policy: p}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) isMaster(member timelinemodel.Member) bool {
	return e.community.MasterMember().Equal(member)
}

func (e *Engine) emit(event AuditEvent) {
	if e.audit != nil {
		e.audit(event)
	}
}

// resolveFromDescriptor resolves a message type's own declared Resolution
// (its Kind plus, for Dynamic, its Default) without comparing against any
// message instance's selected policy. Used for the "type descriptor" case:
// checking authority over a *target* message type named inside an
// authorize/revoke container (spec §4.3 case a).
func (e *Engine) resolveFromDescriptor(meta *timelinemodel.MessageMeta, globalTime uint64) (timelinemodel.ResolutionKind, []*timelinemodel.MessageImpl) {
	if meta.Resolution.Kind != timelinemodel.ResolutionDynamic {
		return meta.Resolution.Kind, nil
	}
	return e.policy.GetResolutionPolicy(meta.Name, globalTime, meta.Resolution.Default)
}

// resolveFromInstance resolves the policy that applies to a concrete message
// instance and, when that instance's own resolution is Dynamic, verifies its
// selected policy agrees with the timeline's own view (spec §4.3 case b,
// §9). A mismatch is reported as ErrPolicyMismatch without discarding the
// policy proofs collected so far.
func (e *Engine) resolveFromInstance(meta *timelinemodel.MessageMeta, inst timelinemodel.ResolutionInstance, globalTime uint64) (timelinemodel.ResolutionKind, []*timelinemodel.MessageImpl, error) {
	if inst.Kind != timelinemodel.ResolutionDynamic {
		return inst.Kind, nil, nil
	}
	kind, proofs := e.policy.GetResolutionPolicy(meta.Name, globalTime, meta.Resolution.Default)
	if kind != inst.SelectedPolicy {
		return kind, proofs, timelinemodel.ErrPolicyMismatch
	}
	return kind, proofs, nil
}

// checkTriplet asks whether member may perform permission on targetMeta,
// resolving targetMeta's own declared resolution (descriptor case, no
// mismatch check). Used by container authorize/revoke handling and by the
// standalone Allowed query.
func (e *Engine) checkTriplet(member timelinemodel.Member, globalTime uint64, permission timelinemodel.Permission, targetMeta *timelinemodel.MessageMeta) (bool, []*timelinemodel.MessageImpl, error) {
	if e.isMaster(member) {
		return true, nil, nil
	}
	kind, policyProofs := e.resolveFromDescriptor(targetMeta, globalTime)
	switch kind {
	case timelinemodel.ResolutionPublic:
		return true, nil, nil
	case timelinemodel.ResolutionLinear:
		return e.lookupLinear(member, globalTime, permission, targetMeta.Name, policyProofs)
	default:
		return false, nil, timelinemodel.ErrUnknownResolution
	}
}

// checkInstance asks whether member may perform permission on meta given a
// concrete message instance's own resolution (instance case, with mismatch
// check against the community's current policy view).
func (e *Engine) checkInstance(member timelinemodel.Member, globalTime uint64, permission timelinemodel.Permission, meta *timelinemodel.MessageMeta, inst timelinemodel.ResolutionInstance) (bool, []*timelinemodel.MessageImpl, error) {
	if e.isMaster(member) {
		return true, nil, nil
	}
	kind, policyProofs, err := e.resolveFromInstance(meta, inst, globalTime)
	if err != nil {
		return false, policyProofs, err
	}
	switch kind {
	case timelinemodel.ResolutionPublic:
		return true, nil, nil
	case timelinemodel.ResolutionLinear:
		return e.lookupLinear(member, globalTime, permission, meta.Name, policyProofs)
	default:
		return false, nil, timelinemodel.ErrUnknownResolution
	}
}

// checkUnderLinear asks whether member may perform permission on a message
// named targetMessageName under a fixed Linear resolution, ignoring
// whatever resolution that message type actually declares. This is the
// gating MutationAPI's Authorize/Revoke always use (spec §4.4), and also
// what undo-other checks use against the undone message's type (spec §4.3).
func (e *Engine) checkUnderLinear(member timelinemodel.Member, globalTime uint64, permission timelinemodel.Permission, targetMessageName string) (bool, []*timelinemodel.MessageImpl) {
	if e.isMaster(member) {
		return true, nil
	}
	allowed, proofs, _ := e.lookupLinear(member, globalTime, permission, targetMessageName, nil)
	return allowed, proofs
}

// AllowedUnderLinear exposes the fixed-Linear gate used by undo-other
// checks to collaborators outside this package — namely internal/mutation,
// whose Authorize/Revoke/ChangeResolutionPolicy operations always gate
// under a fixed Linear resolution regardless of the target message's own
// declared resolution (spec §4.4).
func (e *Engine) AllowedUnderLinear(member timelinemodel.Member, globalTime uint64, permission timelinemodel.Permission, messageName string) (bool, []*timelinemodel.MessageImpl) {
	return e.checkUnderLinear(member, globalTime, permission, messageName)
}

func (e *Engine) lookupLinear(member timelinemodel.Member, globalTime uint64, permission timelinemodel.Permission, messageName string, policyProofs []*timelinemodel.MessageImpl) (bool, []*timelinemodel.MessageImpl, error) {
	key := timelinemodel.PermissionKey(permission, messageName)
	entry, ok := e.ledger.Lookup(member, globalTime, key)
	if !ok {
		// Not found at all: deny with empty proofs, discarding any policy
		// proofs accumulated resolving a Dynamic resolution (spec §4.3 step 4).
		return false, nil, nil
	}
	if entry.Allowed {
		proofs := make([]*timelinemodel.MessageImpl, 0, len(policyProofs)+len(entry.Proofs))
		proofs = append(proofs, policyProofs...)
		proofs = append(proofs, entry.Proofs...)
		return true, proofs, nil
	}
	return false, entry.Proofs, nil
}

// Allowed reports whether member currently holds permission on the message
// type described by meta, resolving meta's own declared resolution. It is
// the read-only query form of the check kernel: no message instance, no
// proof-of-authorship, just "would this be allowed right now."
func (e *Engine) Allowed(member timelinemodel.Member, globalTime uint64, permission timelinemodel.Permission, meta *timelinemodel.MessageMeta) (bool, []*timelinemodel.MessageImpl) {
	allowed, proofs, err := e.checkTriplet(member, globalTime, permission, meta)
	if err != nil {
		return false, nil
	}
	return allowed, proofs
}

// Check reports whether msg's signer(s) were permitted to send it, per the
// spec's external (bool, proofs) contract. Use CheckDetailed for the richer
// result container/verdict detail (e.g. which container triplets were
// accepted).
func (e *Engine) Check(msg *timelinemodel.MessageImpl) (bool, []*timelinemodel.MessageImpl) {
	result, err := e.CheckDetailed(msg)
	if err != nil || result == nil {
		return false, nil
	}
	return result.Allowed, result.Proofs
}

// CheckDetailed runs the full check kernel over msg, dispatching on its
// message type (spec §4.3).
func (e *Engine) CheckDetailed(msg *timelinemodel.MessageImpl) (*CheckResult, error) {
	var result *CheckResult
	var err error

	switch msg.Meta.Name {
	case timelinemodel.MessageAuthorize, timelinemodel.MessageRevoke:
		result, err = e.checkContainer(msg)
	case timelinemodel.MessageUndoOther:
		result, err = e.checkUndoOther(msg)
	default:
		// Every other message type, including dispersy-undo-own and
		// dispersy-dynamic-settings, takes the generic permit check (spec
		// §4.3): check(signer, global_time, resolution, [(message.meta,
		// "permit")]). Neither undo-own nor dynamic-settings gets special
		// dispatch in spec.md or in the original timeline.py.
		result, err = e.checkAllSigners(msg, timelinemodel.PermissionPermit)
	}

	if err != nil && errors.Is(err, timelinemodel.ErrUnknownResolution) {
		return nil, err
	}

	if result != nil {
		e.lastCheckAllowed = result.Allowed
		if !result.Allowed {
			reason := "denied"
			if errors.Is(err, timelinemodel.ErrPolicyMismatch) {
				reason = "policy_mismatch"
			}
			e.emit(AuditEvent{Kind: "denied", Member: msg.Signer, MessageName: msg.Meta.Name, GlobalTime: msg.GlobalTime, Reason: reason})
		} else if msg.Meta.Name == timelinemodel.MessageAuthorize || msg.Meta.Name == timelinemodel.MessageRevoke || msg.Meta.Name == timelinemodel.MessageDynamicSettings {
			e.emit(AuditEvent{Kind: "governance_change", Member: msg.Signer, MessageName: msg.Meta.Name, GlobalTime: msg.GlobalTime})
		}
	}

	return result, err
}

// checkAllSigners requires every signer of msg (one for Single
// authentication, all co-signers too for Double) to hold permission on
// msg.Meta under msg's own resolution instance. Proofs from every signer
// are unioned, deduplicated by pointer identity; the first denial short-
// circuits, returning whatever proofs were collected up to that point.
func (e *Engine) checkAllSigners(msg *timelinemodel.MessageImpl, permission timelinemodel.Permission) (*CheckResult, error) {
	var proofs []*timelinemodel.MessageImpl
	seen := map[*timelinemodel.MessageImpl]bool{}

	for _, signer := range msg.Signers() {
		allowed, signerProofs, err := e.checkInstance(signer, msg.GlobalTime, permission, msg.Meta, msg.Resolution)
		for _, p := range signerProofs {
			if p != nil && !seen[p] {
				seen[p] = true
				proofs = append(proofs, p)
			}
		}
		if err != nil {
			if errors.Is(err, timelinemodel.ErrUnknownResolution) {
				return nil, err
			}
			return &CheckResult{Allowed: false, Proofs: proofs}, err
		}
		if !allowed {
			return &CheckResult{Allowed: false, Proofs: proofs}, nil
		}
	}
	return &CheckResult{Allowed: true, Proofs: proofs}, nil
}

// checkUndoOther asks, under a fixed Linear resolution, whether msg's
// signer may undo messages of the undone message's type (spec §4.3).
func (e *Engine) checkUndoOther(msg *timelinemodel.MessageImpl) (*CheckResult, error) {
	undone := msg.Payload.UndonePacket
	if undone == nil {
		return &CheckResult{Allowed: false}, nil
	}
	allowed, proofs := e.checkUnderLinear(msg.Signer, msg.GlobalTime, timelinemodel.PermissionUndo, undone.Meta.Name)
	return &CheckResult{Allowed: allowed, Proofs: proofs}, nil
}

// checkContainer decides an authorize/revoke container: triplets are
// grouped by target message type, each group checked under its own target
// type's declared resolution, and the container is accepted as a whole if
// any one group is allowed (spec §4.3, scenario S6). Only the accepted
// group's triplets are reported as AllowedTriplets.
func (e *Engine) checkContainer(msg *timelinemodel.MessageImpl) (*CheckResult, error) {
	action := timelinemodel.PermissionAuthorize
	if msg.Meta.Name == timelinemodel.MessageRevoke {
		action = timelinemodel.PermissionRevoke
	}

	order := make([]string, 0)
	groups := make(map[string][]timelinemodel.PermissionTriplet)
	for _, tr := range msg.Payload.Triplets {
		name := tr.TargetMeta.Name
		if _, ok := groups[name]; !ok {
			order = append(order, name)
		}
		groups[name] = append(groups[name], tr)
	}

	var allowedProofs, deniedProofs []*timelinemodel.MessageImpl
	var allowedTriplets []timelinemodel.PermissionTriplet
	seenAllowed := map[*timelinemodel.MessageImpl]bool{}
	seenDenied := map[*timelinemodel.MessageImpl]bool{}
	anyAllowed := false

	for _, name := range order {
		triplets := groups[name]
		targetMeta := triplets[0].TargetMeta
		allowed, proofs, err := e.checkTriplet(msg.Signer, msg.GlobalTime, action, targetMeta)
		if err != nil {
			return nil, err
		}
		if allowed {
			anyAllowed = true
			allowedTriplets = append(allowedTriplets, triplets...)
			for _, p := range proofs {
				if p != nil && !seenAllowed[p] {
					seenAllowed[p] = true
					allowedProofs = append(allowedProofs, p)
				}
			}
		} else {
			for _, p := range proofs {
				if p != nil && !seenDenied[p] {
					seenDenied[p] = true
					deniedProofs = append(deniedProofs, p)
				}
			}
		}
	}

	if anyAllowed {
		return &CheckResult{Allowed: true, Proofs: allowedProofs, AllowedTriplets: allowedTriplets}, nil
	}
	return &CheckResult{Allowed: false, Proofs: deniedProofs}, nil
}

// Stats reports counters useful for operator introspection (e.g. a /health
// route), mirroring the teacher's AuthorizationService statistics method.
func (e *Engine) Stats() Stats {
	return Stats{
		MembersTracked:       e.ledger.MemberCount(),
		PolicyChangesTracked: e.policy.ChangeCount(),
		LastCheckAllowed:     e.lastCheckAllowed,
	}
}
