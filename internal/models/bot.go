package models

import "time"

// Media types accepted as welcome content.
const (
	MediaPhoto     = "photo"
	MediaVideo     = "video"
	MediaAudio     = "audio"
	MediaDocument  = "document"
	MediaAnimation = "animation"
)

// Media references a file already uploaded to Telegram.
type Media struct {
	Type   string `json:"type"`
	FileID string `json:"file_id"`
}

// WelcomeContent is shown to buyers on /start.
type WelcomeContent struct {
	Text  string `json:"text"`
	Media *Media `json:"media,omitempty"`
}

// LinkedGroup is a group or channel bound to a bot through a linking code.
type LinkedGroup struct {
	ChatID   int64  `json:"chat_id"`
	Title    string `json:"title"`
	Type     string `json:"type"`
	Username string `json:"username,omitempty"`
}

// BotConfig is keyed by its token. A new token means a new BotConfig.
type BotConfig struct {
	Token        string         `json:"token"`
	BotID        int64          `json:"bot_id"`
	Username     string         `json:"username"`
	OwnerID      int64          `json:"owner_id"`
	Welcome      WelcomeContent `json:"welcome"`
	Plans        []Plan         `json:"plans"`
	GatewayToken string         `json:"gateway_token,omitempty"`
	LinkedGroups []LinkedGroup  `json:"linked_groups"`
	Active       bool           `json:"active"`
	CreatedAt    time.Time      `json:"created_at"`
}

// Ready reports whether the bot can sell: welcome text, gateway credential and plans are set.
func (b *BotConfig) Ready() bool {
	return b.Welcome.Text != "" && b.GatewayToken != "" && len(b.Plans) > 0
}

// Plan returns the plan with the given id.
func (b *BotConfig) Plan(id string) (*Plan, bool) {
	for i := range b.Plans {
		if b.Plans[i].ID == id {
			return &b.Plans[i], true
		}
	}
	return nil, false
}

// HasGroup reports whether chatID is already linked.
func (b *BotConfig) HasGroup(chatID int64) bool {
	for _, g := range b.LinkedGroups {
		if g.ChatID == chatID {
			return true
		}
	}
	return false
}
