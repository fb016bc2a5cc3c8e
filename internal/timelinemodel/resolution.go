package timelinemodel

// ResolutionKind is the closed set of resolution policies a message type can
// declare (spec §3). Dynamic is only ever resolved to Public or Linear before
// it reaches the ledger.
type ResolutionKind int

const (
	ResolutionPublic ResolutionKind = iota
	ResolutionLinear
	ResolutionDynamic
)

func (k ResolutionKind) String() string {
	switch k {
	case ResolutionPublic:
		return "Public"
	case ResolutionLinear:
		return "Linear"
	case ResolutionDynamic:
		return "Dynamic"
	default:
		return "Unknown"
	}
}

// Resolution is the declared resolution descriptor carried by a MessageMeta.
// Default is only meaningful when Kind is ResolutionDynamic, and must itself
// be Public or Linear.
type Resolution struct {
	Kind    ResolutionKind
	Default ResolutionKind
}

// Public builds a Public resolution descriptor.
func Public() Resolution { return Resolution{Kind: ResolutionPublic} }

// Linear builds a Linear resolution descriptor.
func Linear() Resolution { return Resolution{Kind: ResolutionLinear} }

// Dynamic builds a Dynamic resolution descriptor with the given default.
func Dynamic(def ResolutionKind) Resolution {
	return Resolution{Kind: ResolutionDynamic, Default: def}
}

// ResolutionInstance is the resolution attached to one message instance. For
// non-Dynamic kinds it mirrors the descriptor; for Dynamic it additionally
// carries the policy the message's author believed was in effect, which the
// check kernel cross-checks against its own view (spec §4.3, §9).
type ResolutionInstance struct {
	Kind           ResolutionKind
	SelectedPolicy ResolutionKind // valid only when Kind == ResolutionDynamic
}

// InstanceFromDescriptor builds a plain instance that copies the descriptor's
// Kind and leaves SelectedPolicy at its zero value (Public). It suits messages
// whose resolution is not Dynamic, where SelectedPolicy is never consulted.
func InstanceFromDescriptor(r Resolution) ResolutionInstance {
	return ResolutionInstance{Kind: r.Kind}
}

// DynamicInstance builds a Dynamic instance carrying the author's selected
// policy, to be matched against the timeline's own resolution at check time.
func DynamicInstance(selected ResolutionKind) ResolutionInstance {
	return ResolutionInstance{Kind: ResolutionDynamic, SelectedPolicy: selected}
}
