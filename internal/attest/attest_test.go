package attest

import (
	"crypto/ed25519"
	"testing"

	"github.com/stretchr/testify/require"

	"fleetarbiter/internal/codec"
)

func TestImageIDFor_DistinctPerCommand(t *testing.T) {
	seen := map[codec.ImageID]codec.Command{}
	for _, c := range codec.Commands() {
		id, err := ImageIDFor(c)
		require.NoError(t, err)
		prev, dup := seen[id]
		require.Falsef(t, dup, "image id of %s collides with %s", c, prev)
		seen[id] = c
	}
	_, err := ImageIDFor(codec.CmdUnknown)
	require.Error(t, err)
}

func TestDevReceipt_VerifiesAgainstOwnImageOnly(t *testing.T) {
	r, err := DevProver{}.Prove(codec.CmdFire, codec.FireJournal{GameID: "g1", Fleet: "alice", Target: "bob", Pos: 5})
	require.NoError(t, err)

	fireID, err := ImageIDFor(codec.CmdFire)
	require.NoError(t, err)
	joinID, err := ImageIDFor(codec.CmdJoin)
	require.NoError(t, err)

	require.NoError(t, DevVerifier{}.Verify(r, fireID))
	require.ErrorIs(t, DevVerifier{}.Verify(r, joinID), ErrImageMismatch)
}

func TestDevReceipt_TamperedJournalFails(t *testing.T) {
	r, err := DevProver{}.Prove(codec.CmdJoin, codec.BaseJournal{GameID: "g1", Fleet: "alice"})
	require.NoError(t, err)
	id, err := ImageIDFor(codec.CmdJoin)
	require.NoError(t, err)

	r.Journal = append([]byte(nil), r.Journal...)
	r.Journal[len(r.Journal)-1] ^= 0xff
	require.ErrorIs(t, DevVerifier{}.Verify(r, id), ErrBadSeal)

	// Relabelling the receipt does not help either.
	r2, err := DevProver{}.Prove(codec.CmdWave, codec.BaseJournal{GameID: "g1", Fleet: "alice"})
	require.NoError(t, err)
	r2.ImageID = id
	require.ErrorIs(t, DevVerifier{}.Verify(r2, id), ErrBadSeal)
}

func TestDevProver_RejectsSchemaMismatch(t *testing.T) {
	_, err := DevProver{}.Prove(codec.CmdReport, codec.BaseJournal{})
	require.Error(t, err)
}

func TestBoardCommitment_DependsOnBoardAndNonce(t *testing.T) {
	board := []uint8{0, 1, 2, 3, 4}
	a := BoardCommitment(board, "n1")
	require.Equal(t, a, BoardCommitment(board, "n1"))
	require.NotEqual(t, a, BoardCommitment(board, "n2"))
	require.NotEqual(t, a, BoardCommitment([]uint8{0, 1, 2, 3}, "n1"))
	require.False(t, a.IsZero())
}

func TestKeyFromSeed_Deterministic(t *testing.T) {
	k1 := KeyFromSeed("seed")
	k2 := KeyFromSeed("seed")
	require.Equal(t, k1, k2)
	require.NotEqual(t, k1, KeyFromSeed("other"))

	msg := []byte("journal")
	sig := ed25519.Sign(k1, msg)
	require.True(t, ed25519.Verify(k2.Public().(ed25519.PublicKey), msg, sig))
}
