package game

import (
	"fmt"
	"strings"

	"github.com/corentings/chess/v2"
)

// PGN headers fixed for every arena game.
const (
	pgnEvent = "MoltChess Arena"
	pgnSite  = "moltchess.io"
)

var resultTokens = map[Result]string{
	WhiteWin: "1-0",
	BlackWin: "0-1",
	Draw:     "1/2-1/2",
}

// PGN renders the game with arena headers and SAN movetext. Moves are
// replayed from the UCI history so the output is independent of the
// live board.
func (g *Game) PGN() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	tc := ControlFor(g.Category)

	date := "????.??.??"
	if !g.StartedAt.IsZero() {
		date = g.StartedAt.UTC().Format("2006.01.02")
	}

	result, ok := resultTokens[g.Result]
	if !ok {
		result = "*"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "[Event %q]\n", pgnEvent)
	fmt.Fprintf(&b, "[Site %q]\n", pgnSite)
	fmt.Fprintf(&b, "[Date %q]\n", date)
	fmt.Fprintf(&b, "[White %q]\n", g.White.AgentID)
	fmt.Fprintf(&b, "[Black %q]\n", g.Black.AgentID)
	fmt.Fprintf(&b, "[TimeControl \"%d+%d\"]\n", tc.BaseSeconds, tc.IncrementSeconds)
	fmt.Fprintf(&b, "[Result %q]\n", result)
	if g.Termination != "" {
		fmt.Fprintf(&b, "[Termination %q]\n", string(g.Termination))
	}
	b.WriteString("\n")

	replay := chess.NewGame()
	for i, uci := range g.Moves {
		move, err := chess.UCINotation{}.Decode(replay.Position(), uci)
		if err != nil {
			break
		}
		san := chess.AlgebraicNotation{}.Encode(replay.Position(), move)
		if i%2 == 0 {
			fmt.Fprintf(&b, "%d. ", i/2+1)
		}
		b.WriteString(san)
		b.WriteString(" ")
		if err := replay.PushNotationMove(uci, chess.UCINotation{}, nil); err != nil {
			break
		}
	}
	b.WriteString(result)
	b.WriteString("\n")

	return b.String()
}
