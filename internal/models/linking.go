package models

import "time"

// LinkingCode binds a bot and its owner to whichever chat redeems it first.
type LinkingCode struct {
	Code      string    `json:"code"`
	BotToken  string    `json:"bot_token"`
	OwnerID   int64     `json:"owner_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Expired reports whether the code is past its TTL at now.
func (c *LinkingCode) Expired(now time.Time) bool {
	return now.After(c.ExpiresAt)
}
