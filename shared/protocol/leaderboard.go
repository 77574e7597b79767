package protocol

type LeaderboardEntry struct {
	Score          uint32 `json:"score"`
	Name           string `json:"name"`
	WasMultiplayer bool   `json:"was_multiplayer"`
	WasRandom      bool   `json:"was_random"`
	Mode           Mode   `json:"mode"`
}

// Less orders entries by score, then multiplayer, then random, then name.
// Mode is not part of the order, so two entries differing only in mode
// are considered equal.
func (e LeaderboardEntry) Less(o LeaderboardEntry) bool {
	if e.Score != o.Score {
		return e.Score < o.Score
	}
	if e.WasMultiplayer != o.WasMultiplayer {
		return !e.WasMultiplayer
	}
	if e.WasRandom != o.WasRandom {
		return !e.WasRandom
	}
	return e.Name < o.Name
}

// EntryFromRequest builds the stored entry for an accepted submission.
func EntryFromRequest(req HighscoreReq) LeaderboardEntry {
	return LeaderboardEntry{
		Score:          req.Score,
		Name:           req.Name,
		WasMultiplayer: req.WasMultiplayer,
		WasRandom:      req.Settings.Random,
		Mode:           req.Settings.Mode(),
	}
}
