package protocol

// GameSettings are picked by the player who opens a game and apply to both
// sides of the match.
type GameSettings struct {
	Jupiter bool `json:"jupiter"`
	Easy    bool `json:"easy"`
	NES     bool `json:"nes"`
	Random  bool `json:"random"`
}

// Mode groups leaderboard entries by the rule set they were played with.
type Mode string

const (
	ModeNormal  Mode = "Normal"
	ModeJupiter Mode = "Jupiter"
	ModeNES     Mode = "Nes"
	ModeCrazy   Mode = "Crazy"
)

// Mode derives the leaderboard mode. Easy and random do not change it.
func (s GameSettings) Mode() Mode {
	switch {
	case s.Jupiter && s.NES:
		return ModeCrazy
	case s.Jupiter:
		return ModeJupiter
	case s.NES:
		return ModeNES
	default:
		return ModeNormal
	}
}

// HighscoreReq is posted by the client after a lost game. Auth is the token
// derived from the score and name, see tokenhash.HighscoreSeed.
type HighscoreReq struct {
	Auth           string       `json:"auth"`
	Name           string       `json:"name"`
	Score          uint32       `json:"score"`
	Settings       GameSettings `json:"settings"`
	WasMultiplayer bool         `json:"was_multiplayer"`
}
