package timelinemodel

// The five governance message types the timeline itself understands. A
// community may define arbitrary application message names too; those only
// ever appear as the Name of a permission-triplet's target meta or as the
// Meta.Name of an ordinary signed message being checked.
const (
	MessageAuthorize       = "dispersy-authorize"
	MessageRevoke          = "dispersy-revoke"
	MessageUndoOwn         = "dispersy-undo-own"
	MessageUndoOther       = "dispersy-undo-other"
	MessageDynamicSettings = "dispersy-dynamic-settings"
)

// MessageMeta is the static, shared descriptor of a message type: its name,
// resolution policy, and authentication requirement (spec §3). Every
// MessageImpl of the same type points at the same MessageMeta.
type MessageMeta struct {
	Name           string     `json:"name" validate:"required"`
	Resolution     Resolution `json:"resolution"`
	Authentication AuthenticationKind `json:"authentication"`
}

// NewMessageMeta constructs a MessageMeta for a single-signer, fixed-
// resolution message type.
func NewMessageMeta(name string, resolution Resolution) *MessageMeta {
	return &MessageMeta{Name: name, Resolution: resolution, Authentication: AuthenticationSingle}
}

// NewDoubleSignedMessageMeta constructs a MessageMeta requiring co-signers.
func NewDoubleSignedMessageMeta(name string, resolution Resolution) *MessageMeta {
	return &MessageMeta{Name: name, Resolution: resolution, Authentication: AuthenticationDouble}
}

// PermissionTriplet is one (member, message-meta, permission) tuple carried
// inside an authorize/revoke container message (spec §3, §4.3, §4.4).
type PermissionTriplet struct {
	Member     Member
	TargetMeta *MessageMeta
	Permission Permission
}

// GovernancePayload is the body of an authorize/revoke/undo/dynamic-settings
// message. Only the fields relevant to the message's own Meta.Name are ever
// populated; the rest are zero.
type GovernancePayload struct {
	// Triplets is populated for dispersy-authorize / dispersy-revoke.
	Triplets []PermissionTriplet

	// UndonePacket is populated for dispersy-undo-own / dispersy-undo-other:
	// the message instance being undone.
	UndonePacket *MessageImpl

	// Selections is populated for dispersy-dynamic-settings: the new
	// resolution policy chosen per message name.
	Selections map[string]ResolutionKind
}

// MessageImpl is one signed instance of a message type on the timeline.
// Proof chains (PermissionEntry.Proofs) are slices of *MessageImpl pointing
// back at the authorize/revoke messages that granted the authority being
// exercised.
type MessageImpl struct {
	Meta       *MessageMeta
	Signer     Member
	CoSigners  []Member // populated only when Meta.Authentication == AuthenticationDouble
	GlobalTime uint64
	Resolution ResolutionInstance
	Payload    GovernancePayload
}

// Signers returns the signer together with any co-signers — the full set of
// members whose authority is being exercised by this message.
func (m *MessageImpl) Signers() []Member {
	if len(m.CoSigners) == 0 {
		return []Member{m.Signer}
	}
	out := make([]Member, 0, 1+len(m.CoSigners))
	out = append(out, m.Signer)
	out = append(out, m.CoSigners...)
	return out
}
