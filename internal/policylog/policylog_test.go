package policylog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/overlaytrust/timeline/internal/timelinemodel"
)

func proofAt(t uint64) *timelinemodel.MessageImpl {
	return &timelinemodel.MessageImpl{GlobalTime: t}
}

func TestGetResolutionPolicyDefaultsWhenNothingRecorded(t *testing.T) {
	p := New()
	policy, proofs := p.GetResolutionPolicy("msg", 100, timelinemodel.ResolutionPublic)
	assert.Equal(t, timelinemodel.ResolutionPublic, policy)
	assert.Nil(t, proofs)
}

func TestChangeResolutionPolicyAppliesStrictlyAfter(t *testing.T) {
	p := New()
	p.ChangeResolutionPolicy("msg", 10, timelinemodel.ResolutionLinear, proofAt(10))

	policyAt10, _ := p.GetResolutionPolicy("msg", 10, timelinemodel.ResolutionPublic)
	assert.Equal(t, timelinemodel.ResolutionPublic, policyAt10, "a change recorded at t must not apply at t itself")

	policyAt11, proofs := p.GetResolutionPolicy("msg", 11, timelinemodel.ResolutionPublic)
	assert.Equal(t, timelinemodel.ResolutionLinear, policyAt11)
	require.Len(t, proofs, 1)
}

func TestChangeResolutionPolicyOverwritesSameBucket(t *testing.T) {
	p := New()
	p.ChangeResolutionPolicy("msg", 10, timelinemodel.ResolutionLinear, proofAt(10))
	p.ChangeResolutionPolicy("msg", 10, timelinemodel.ResolutionPublic, proofAt(10))

	policy, proofs := p.GetResolutionPolicy("msg", 11, timelinemodel.ResolutionLinear)
	assert.Equal(t, timelinemodel.ResolutionPublic, policy)
	require.Len(t, proofs, 1)
}

func TestGetResolutionPolicyWalksBackwardAcrossBuckets(t *testing.T) {
	p := New()
	p.ChangeResolutionPolicy("msg-a", 10, timelinemodel.ResolutionLinear, proofAt(10))
	p.ChangeResolutionPolicy("msg-b", 20, timelinemodel.ResolutionDynamic, proofAt(20))

	policy, _ := p.GetResolutionPolicy("msg-a", 25, timelinemodel.ResolutionPublic)
	assert.Equal(t, timelinemodel.ResolutionLinear, policy)
}

func TestChangeResolutionPolicyOutOfOrderInsertion(t *testing.T) {
	p := New()
	p.ChangeResolutionPolicy("msg", 20, timelinemodel.ResolutionLinear, proofAt(20))
	p.ChangeResolutionPolicy("msg", 10, timelinemodel.ResolutionDynamic, proofAt(10))

	policy, _ := p.GetResolutionPolicy("msg", 15, timelinemodel.ResolutionPublic)
	assert.Equal(t, timelinemodel.ResolutionDynamic, policy)

	policy, _ = p.GetResolutionPolicy("msg", 25, timelinemodel.ResolutionPublic)
	assert.Equal(t, timelinemodel.ResolutionLinear, policy)
}
