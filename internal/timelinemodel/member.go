package timelinemodel

import "fmt"

// MemberKey is a member's stable equality key — in production this is a hash
// of the member's public key. It is comparable so it can key a map directly.
type MemberKey [32]byte

// Member is an opaque identity with a stable equality key and a numeric
// database id used only for logging (spec §3).
type Member struct {
	Key        MemberKey
	DatabaseID int64
}

// Equal reports whether two members share the same identity.
func (m Member) Equal(other Member) bool {
	return m.Key == other.Key
}

func (m Member) String() string {
	return fmt.Sprintf("member#%d", m.DatabaseID)
}

// MemberKeyFromBytes derives a MemberKey from an arbitrary-length byte slice,
// truncating or zero-padding to 32 bytes. Real deployments hash a public key;
// tests and fixtures use this to build small, readable identities.
func MemberKeyFromBytes(b []byte) MemberKey {
	var key MemberKey
	copy(key[:], b)
	return key
}
