package app

import (
	"testing"

	"github.com/dkeye/ChatCall/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTryStartCallSetsBothRinging(t *testing.T) {
	tr := NewCallTracker()
	s, displaced, err := tr.TryStartCall("a", "b", domain.CallVideo)
	require.NoError(t, err)
	assert.Empty(t, displaced)
	assert.Equal(t, domain.UserID("a"), s.Caller)
	assert.Equal(t, domain.CallRinging, tr.State("a"))
	assert.Equal(t, domain.CallRinging, tr.State("b"))
}

func TestTryStartCallBusyLeavesStateUnchanged(t *testing.T) {
	for _, answered := range []bool{false, true} {
		tr := NewCallTracker()
		_, _, err := tr.TryStartCall("a", "b", domain.CallAudio)
		require.NoError(t, err)
		if answered {
			_, err = tr.MarkAnswered("a", "b")
			require.NoError(t, err)
		}
		before := tr.State("b")

		_, _, err = tr.TryStartCall("c", "b", domain.CallVideo)
		assert.ErrorIs(t, err, ErrBusy)
		assert.Equal(t, domain.CallIdle, tr.State("c"))
		assert.Equal(t, before, tr.State("b"))

		s, ok := tr.Session("b")
		require.True(t, ok)
		assert.Equal(t, domain.UserID("a"), s.Peer("b"))
	}
}

func TestTryStartCallSelf(t *testing.T) {
	tr := NewCallTracker()
	_, _, err := tr.TryStartCall("a", "a", domain.CallVideo)
	assert.ErrorIs(t, err, ErrSelfCall)
	assert.Equal(t, domain.CallIdle, tr.State("a"))
}

func TestTryStartCallDisplacesCallersPreviousPeer(t *testing.T) {
	tr := NewCallTracker()
	_, _, err := tr.TryStartCall("a", "b", domain.CallVideo)
	require.NoError(t, err)

	_, displaced, err := tr.TryStartCall("a", "c", domain.CallVideo)
	require.NoError(t, err)
	assert.Equal(t, domain.UserID("b"), displaced)
	assert.Equal(t, domain.CallIdle, tr.State("b"))
	assert.Equal(t, domain.CallRinging, tr.State("c"))
	assert.Equal(t, 1, tr.Active())
}

func TestMarkAnsweredIdempotent(t *testing.T) {
	tr := NewCallTracker()
	_, _, err := tr.TryStartCall("a", "b", domain.CallVideo)
	require.NoError(t, err)

	changed, err := tr.MarkAnswered("a", "b")
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = tr.MarkAnswered("a", "b")
	require.NoError(t, err)
	assert.False(t, changed)

	assert.Equal(t, domain.CallInCall, tr.State("a"))
	assert.Equal(t, domain.CallInCall, tr.State("b"))
}

func TestMarkAnsweredWithoutSession(t *testing.T) {
	tr := NewCallTracker()
	_, err := tr.MarkAnswered("a", "b")
	assert.ErrorIs(t, err, ErrNoSession)
	assert.Equal(t, domain.CallIdle, tr.State("a"))

	_, _, err = tr.TryStartCall("a", "b", domain.CallVideo)
	require.NoError(t, err)
	// only the callee may answer
	_, err = tr.MarkAnswered("b", "a")
	assert.ErrorIs(t, err, ErrNoSession)
	assert.Equal(t, domain.CallRinging, tr.State("a"))
}

func TestEndCallAlwaysIdle(t *testing.T) {
	tr := NewCallTracker()
	assert.Empty(t, tr.EndCall("a", "b"))
	assert.Equal(t, domain.CallIdle, tr.State("a"))
	assert.Equal(t, domain.CallIdle, tr.State("b"))

	_, _, _ = tr.TryStartCall("a", "b", domain.CallVideo)
	_, _ = tr.MarkAnswered("a", "b")
	assert.Empty(t, tr.EndCall("b", "a"))
	assert.Equal(t, domain.CallIdle, tr.State("a"))
	assert.Equal(t, domain.CallIdle, tr.State("b"))
	assert.Zero(t, tr.Active())

	assert.Empty(t, tr.EndCall("a", "b"))
}

func TestEndCallReportsThirdParties(t *testing.T) {
	tr := NewCallTracker()
	_, _, _ = tr.TryStartCall("a", "c", domain.CallVideo)
	others := tr.EndCall("a", "b")
	require.Len(t, others, 1)
	assert.Equal(t, domain.UserID("a"), others[0].Peer("c"))
	assert.Equal(t, domain.CallIdle, tr.State("c"))
}

func TestEndCallLeavesPeersOtherSessionAlone(t *testing.T) {
	tr := NewCallTracker()
	_, _, _ = tr.TryStartCall("b", "c", domain.CallVideo)
	_, _ = tr.MarkAnswered("b", "c")

	assert.Empty(t, tr.EndCall("a", "b"))
	assert.Equal(t, domain.CallInCall, tr.State("b"))
	assert.Equal(t, domain.CallInCall, tr.State("c"))
	assert.Equal(t, 1, tr.Active())
}

func TestCancelRingingOnlyWhileRinging(t *testing.T) {
	tr := NewCallTracker()
	_, _, _ = tr.TryStartCall("a", "b", domain.CallVideo)
	_, _ = tr.MarkAnswered("a", "b")

	_, ok := tr.CancelRinging("b", "a")
	assert.False(t, ok)
	assert.Equal(t, domain.CallInCall, tr.State("a"))

	tr.EndCall("a", "b")
	_, _, _ = tr.TryStartCall("a", "b", domain.CallVideo)
	s, ok := tr.CancelRinging("b", "a")
	assert.True(t, ok)
	assert.Equal(t, domain.UserID("a"), s.Caller)
	assert.Equal(t, domain.CallIdle, tr.State("b"))
}

func TestExpireMatchesSessionID(t *testing.T) {
	tr := NewCallTracker()
	first, _, _ := tr.TryStartCall("a", "b", domain.CallVideo)
	tr.EndCall("a", "b")
	second, _, _ := tr.TryStartCall("a", "b", domain.CallVideo)

	_, ok := tr.Expire(first.ID, "a", "b")
	assert.False(t, ok)
	assert.Equal(t, domain.CallRinging, tr.State("a"))

	_, ok = tr.Expire(second.ID, "a", "b")
	assert.True(t, ok)
	assert.Equal(t, domain.CallIdle, tr.State("a"))
}

func TestOnDisconnect(t *testing.T) {
	tr := NewCallTracker()
	_, ok := tr.OnDisconnect("a")
	assert.False(t, ok)

	_, _, _ = tr.TryStartCall("a", "b", domain.CallVideo)
	_, _ = tr.MarkAnswered("a", "b")
	peer, ok := tr.OnDisconnect("b")
	require.True(t, ok)
	assert.Equal(t, domain.UserID("a"), peer)
	assert.Equal(t, domain.CallIdle, tr.State("a"))
	assert.Equal(t, domain.CallIdle, tr.State("b"))
}
