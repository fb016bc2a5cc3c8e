package mutation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/overlaytrust/timeline/internal/checkengine"
	"github.com/overlaytrust/timeline/internal/ledger"
	"github.com/overlaytrust/timeline/internal/policylog"
	"github.com/overlaytrust/timeline/internal/timelinemodel"
)

type fakeCommunity struct {
	master timelinemodel.Member
	me     timelinemodel.Member
	now    uint64
}

func (f fakeCommunity) MasterMember() timelinemodel.Member { return f.master }
func (f fakeCommunity) MyMember() timelinemodel.Member     { return f.me }
func (f fakeCommunity) GlobalTime() uint64                 { return f.now }

func member(name string, id int64) timelinemodel.Member {
	return timelinemodel.Member{Key: timelinemodel.MemberKeyFromBytes([]byte(name)), DatabaseID: id}
}

func newFixture() (*API, *ledger.MemberLedger, timelinemodel.Member, timelinemodel.Member) {
	master := member("master", 0)
	alice := member("alice", 1)
	l := ledger.New()
	p := policylog.New()
	e := checkengine.New(fakeCommunity{master: master, me: master, now: 1000}, l, p)
	api := New(l, p, e)
	return api, l, master, alice
}

func TestMasterMayAuthorizeDirectly(t *testing.T) {
	api, l, master, alice := newFixture()
	widget := timelinemodel.NewMessageMeta("widget", timelinemodel.Linear())

	ok, _, err := api.Authorize(master, 5, []timelinemodel.PermissionTriplet{
		{Member: alice, TargetMeta: widget, Permission: timelinemodel.PermissionPermit},
	}, &timelinemodel.MessageImpl{Signer: master, GlobalTime: 5})
	require.NoError(t, err)
	assert.True(t, ok)

	entry, found := l.Lookup(alice, 10, timelinemodel.PermissionKey(timelinemodel.PermissionPermit, "widget"))
	require.True(t, found)
	assert.True(t, entry.Allowed)
}

func TestNonAuthorizedSignerCannotAuthorize(t *testing.T) {
	api, l, _, alice := newFixture()
	bob := member("bob", 2)
	widget := timelinemodel.NewMessageMeta("widget", timelinemodel.Linear())

	ok, proofs, err := api.Authorize(alice, 5, []timelinemodel.PermissionTriplet{
		{Member: bob, TargetMeta: widget, Permission: timelinemodel.PermissionPermit},
	}, &timelinemodel.MessageImpl{Signer: alice, GlobalTime: 5})
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, proofs)

	_, found := l.Lookup(bob, 10, timelinemodel.PermissionKey(timelinemodel.PermissionPermit, "widget"))
	assert.False(t, found, "denied authorize must not mutate the ledger")
}

func TestAuthorizeIsAllOrNothingAcrossTriplets(t *testing.T) {
	api, l, master, alice := newFixture()
	bob := member("bob", 2)
	msg1 := timelinemodel.NewMessageMeta("msg1", timelinemodel.Linear())
	msg2 := timelinemodel.NewMessageMeta("msg2", timelinemodel.Linear())

	// master grants alice authorize on msg1 only.
	ok, _, err := api.Authorize(master, 1, []timelinemodel.PermissionTriplet{
		{Member: alice, TargetMeta: msg1, Permission: timelinemodel.PermissionAuthorize},
	}, &timelinemodel.MessageImpl{Signer: master, GlobalTime: 1})
	require.NoError(t, err)
	require.True(t, ok)

	// alice tries to authorize bob on both msg1 (allowed) and msg2 (not allowed).
	ok, _, err = api.Authorize(alice, 5, []timelinemodel.PermissionTriplet{
		{Member: bob, TargetMeta: msg1, Permission: timelinemodel.PermissionPermit},
		{Member: bob, TargetMeta: msg2, Permission: timelinemodel.PermissionPermit},
	}, &timelinemodel.MessageImpl{Signer: alice, GlobalTime: 5})
	require.NoError(t, err)
	assert.False(t, ok, "alice lacks authorize on msg2, so neither triplet should apply")

	_, found := l.Lookup(bob, 10, timelinemodel.PermissionKey(timelinemodel.PermissionPermit, "msg1"))
	assert.False(t, found)
}

func TestRevokeWithdrawsPermission(t *testing.T) {
	api, l, master, alice := newFixture()
	widget := timelinemodel.NewMessageMeta("widget", timelinemodel.Linear())

	ok, _, err := api.Authorize(master, 1, []timelinemodel.PermissionTriplet{
		{Member: alice, TargetMeta: widget, Permission: timelinemodel.PermissionPermit},
	}, &timelinemodel.MessageImpl{Signer: master, GlobalTime: 1})
	require.NoError(t, err)
	require.True(t, ok)

	ok, _, err = api.Revoke(master, 5, []timelinemodel.PermissionTriplet{
		{Member: alice, TargetMeta: widget, Permission: timelinemodel.PermissionPermit},
	}, &timelinemodel.MessageImpl{Signer: master, GlobalTime: 5})
	require.NoError(t, err)
	require.True(t, ok)

	entry, found := l.Lookup(alice, 10, timelinemodel.PermissionKey(timelinemodel.PermissionPermit, "widget"))
	require.True(t, found)
	assert.False(t, entry.Allowed)
}

func TestConflictingGrantRevokeAtSameTimeFails(t *testing.T) {
	api, _, master, alice := newFixture()
	widget := timelinemodel.NewMessageMeta("widget", timelinemodel.Linear())

	ok, _, err := api.Authorize(master, 5, []timelinemodel.PermissionTriplet{
		{Member: alice, TargetMeta: widget, Permission: timelinemodel.PermissionPermit},
	}, &timelinemodel.MessageImpl{Signer: master, GlobalTime: 5})
	require.NoError(t, err)
	require.True(t, ok)

	ok, _, err = api.Revoke(master, 5, []timelinemodel.PermissionTriplet{
		{Member: alice, TargetMeta: widget, Permission: timelinemodel.PermissionPermit},
	}, &timelinemodel.MessageImpl{Signer: master, GlobalTime: 5})
	assert.ErrorIs(t, err, timelinemodel.ErrConflictingGrantRevoke)
	assert.False(t, ok)
}

func TestChangeResolutionPolicyRequiresAuthorize(t *testing.T) {
	api, _, master, alice := newFixture()

	ok, _, err := api.ChangeResolutionPolicy(alice, 5, "widget", timelinemodel.ResolutionPublic, &timelinemodel.MessageImpl{Signer: alice, GlobalTime: 5})
	require.NoError(t, err)
	assert.False(t, ok)

	ok, _, err = api.ChangeResolutionPolicy(master, 5, "widget", timelinemodel.ResolutionPublic, &timelinemodel.MessageImpl{Signer: master, GlobalTime: 5})
	require.NoError(t, err)
	assert.True(t, ok)
}
