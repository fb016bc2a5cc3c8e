package attestation

import (
	"crypto/rand"
	"crypto/rsa"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/overlaytrust/timeline/internal/timelinemodel"
)

func testKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	return key
}

func TestAttestAndVerifyRoundTrip(t *testing.T) {
	key := testKey(t)
	a := New(key, &key.PublicKey, "test-key-1", "timeline-test", time.Minute)

	alice := timelinemodel.Member{Key: timelinemodel.MemberKeyFromBytes([]byte("alice")), DatabaseID: 1}
	proof := &timelinemodel.MessageImpl{Meta: timelinemodel.NewMessageMeta("widget", timelinemodel.Public()), Signer: alice, GlobalTime: 5}

	receipt, err := a.Attest(alice, "widget", 10, true, []*timelinemodel.MessageImpl{proof})
	require.NoError(t, err)
	assert.Equal(t, "RS256", receipt.Algorithm)
	assert.NotEmpty(t, receipt.Token)

	claims, err := a.Verify(receipt.Token)
	require.NoError(t, err)
	assert.Equal(t, "widget", claims["message_name"])
	assert.Equal(t, true, claims["allowed"])
}

func TestAttestWithoutPrivateKeyFails(t *testing.T) {
	a := New(nil, nil, "test-key-1", "timeline-test", time.Minute)
	alice := timelinemodel.Member{Key: timelinemodel.MemberKeyFromBytes([]byte("alice")), DatabaseID: 1}
	_, err := a.Attest(alice, "widget", 10, true, nil)
	assert.Error(t, err)
}
