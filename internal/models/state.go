package models

// State is the conversational step of a user inside one bot.
type State string

const (
	StateIdle                  State = ""
	StateWaitingToken          State = "waiting_token"
	StateWaitingPushinPayToken State = "waiting_pushinpay_token"
	StateWaitingWelcomeText    State = "waiting_welcome_text"
	StateWaitingMedia          State = "waiting_media"
	StateWaitingPlanInput      State = "waiting_plan_input"
	StateWaitingPixKey         State = "waiting_pix_key"
)

// String returns "idle" for the empty state.
func (s State) String() string {
	if s == StateIdle {
		return "idle"
	}
	return string(s)
}
