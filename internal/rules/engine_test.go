package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyMoveAlternatesTurn(t *testing.T) {
	res, err := ApplyMove(StartingFEN, "e2e4")
	require.NoError(t, err)
	assert.Equal(t, "black", res.Turn)
	assert.Equal(t, "e2e4", res.UCI)
	assert.False(t, res.IsCheckmate)

	res2, err := ApplyMove(res.FEN, "e7e5")
	require.NoError(t, err)
	assert.Equal(t, "white", res2.Turn)
}

func TestApplyMoveRejectsIllegal(t *testing.T) {
	_, err := ApplyMove(StartingFEN, "e2e5")
	require.ErrorIs(t, err, ErrIllegalMove)

	_, err = ApplyMove(StartingFEN, "not a move")
	require.ErrorIs(t, err, ErrIllegalMove)

	// Black cannot move first.
	_, err = ApplyMove(StartingFEN, "e7e5")
	require.ErrorIs(t, err, ErrIllegalMove)
}

func TestFoolsMateIsCheckmate(t *testing.T) {
	fen := StartingFEN
	for _, uci := range []string{"f2f3", "e7e5", "g2g4"} {
		res, err := ApplyMove(fen, uci)
		require.NoError(t, err)
		fen = res.FEN
	}
	res, err := ApplyMove(fen, "d8h4")
	require.NoError(t, err)
	assert.True(t, res.IsCheckmate)
	assert.True(t, res.IsCheck)
	assert.Equal(t, "Qh4#", res.SAN)
}

func TestTurnFromFEN(t *testing.T) {
	turn, err := Turn(StartingFEN)
	require.NoError(t, err)
	assert.Equal(t, "white", turn)

	res, err := ApplyMove(StartingFEN, "g1f3")
	require.NoError(t, err)
	turn, err = Turn(res.FEN)
	require.NoError(t, err)
	assert.Equal(t, "black", turn)

	_, err = Turn("garbage")
	require.Error(t, err)
}

func TestLegalMovesFromStart(t *testing.T) {
	moves, err := LegalMoves(StartingFEN)
	require.NoError(t, err)
	// 16 pawn moves + 4 knight moves.
	assert.Len(t, moves, 20)
	assert.Contains(t, moves, "e2e4")
}

func TestRandomMoveIsLegal(t *testing.T) {
	legal, err := LegalMoves(StartingFEN)
	require.NoError(t, err)
	mv, err := RandomMove(StartingFEN)
	require.NoError(t, err)
	assert.Contains(t, legal, mv)

	_, err = ApplyMove(StartingFEN, mv)
	require.NoError(t, err)
}
