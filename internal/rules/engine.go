// Package rules wraps the chess-rules library behind the narrow surface the game
// session needs: apply a candidate move to a FEN, enumerate legal moves, and report
// the incidental flags (check, mate, stalemate, forced draw) the session turns into
// lifecycle transitions. Legality verdicts are the library's; nothing here second-
// guesses them.
package rules

import (
	"errors"
	"fmt"
	"math/rand"
	"strings"

	chesslib "github.com/corentings/chess/v2"
)

// StartingFEN is the standard initial position every new game begins from.
const StartingFEN = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"

// ErrIllegalMove is returned when a candidate move cannot be played from the given
// position, including malformed UCI strings.
var ErrIllegalMove = errors.New("illegal move")

// Result describes a successfully applied move.
type Result struct {
	FEN         string // position after the move
	UCI         string // the move as applied, normalized
	SAN         string // algebraic form, encoded against the pre-move position
	Turn        string // "white" or "black": side to move in the new position
	IsCheck     bool
	IsCheckmate bool
	IsStalemate bool
	IsAutoDraw  bool   // stalemate or any other draw the rules force automatically
	Method      string // outcome method when the game concluded, e.g. "Checkmate"
}

func gameFromFEN(fen string) (*chesslib.Game, error) {
	fen = strings.TrimSpace(fen)
	if fen == "" {
		return chesslib.NewGame(), nil
	}
	opt, err := chesslib.FEN(fen)
	if err != nil {
		return nil, fmt.Errorf("parse fen %q: %w", fen, err)
	}
	return chesslib.NewGame(opt), nil
}

func colorString(c chesslib.Color) string {
	if c == chesslib.White {
		return "white"
	}
	return "black"
}

// Turn reports which side moves next in the given position.
func Turn(fen string) (string, error) {
	game, err := gameFromFEN(fen)
	if err != nil {
		return "", err
	}
	return colorString(game.Position().Turn()), nil
}

// ApplyMove plays one UCI move against fen and returns the resulting position and
// flags. An unplayable or unparsable move yields ErrIllegalMove.
func ApplyMove(fen, uci string) (*Result, error) {
	game, err := gameFromFEN(fen)
	if err != nil {
		return nil, err
	}

	uci = strings.ToLower(strings.TrimSpace(uci))
	pos := game.Position()
	mv, err := chesslib.UCINotation{}.Decode(pos, uci)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrIllegalMove, uci)
	}
	san := chesslib.AlgebraicNotation{}.Encode(pos, mv)
	if err := game.PushNotationMove(uci, chesslib.UCINotation{}, nil); err != nil {
		return nil, fmt.Errorf("%w: %q", ErrIllegalMove, uci)
	}

	res := &Result{
		FEN:  game.FEN(),
		UCI:  uci,
		SAN:  san,
		Turn: colorString(game.Position().Turn()),
		// SAN carries the check state; the library exposes no direct accessor.
		IsCheck: strings.HasSuffix(san, "+") || strings.HasSuffix(san, "#"),
	}

	switch game.Outcome() {
	case chesslib.WhiteWon, chesslib.BlackWon:
		res.IsCheckmate = game.Method() == chesslib.Checkmate
		res.Method = game.Method().String()
	case chesslib.Draw:
		res.IsStalemate = game.Method() == chesslib.Stalemate
		res.IsAutoDraw = true
		res.Method = game.Method().String()
	}
	return res, nil
}

// LegalMoves returns every legal move from the position, in UCI form.
func LegalMoves(fen string) ([]string, error) {
	game, err := gameFromFEN(fen)
	if err != nil {
		return nil, err
	}
	valid := game.ValidMoves()
	out := make([]string, 0, len(valid))
	for _, mv := range valid {
		out = append(out, mv.String())
	}
	return out, nil
}

// RandomMove picks a uniformly random legal move. It is the default move source for
// the engine seat; any legal-move generator can replace it.
func RandomMove(fen string) (string, error) {
	moves, err := LegalMoves(fen)
	if err != nil {
		return "", err
	}
	if len(moves) == 0 {
		return "", fmt.Errorf("no legal moves from %q", fen)
	}
	return moves[rand.Intn(len(moves))], nil
}
