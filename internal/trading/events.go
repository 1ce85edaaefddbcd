package trading

// Queue names shared by the api process (publisher) and the worker
// (consumer).
const (
	QueueLeadTrades    = "lead_trades"
	QueueNotifications = "notifications"
)

// LeadTradeEvent is published whenever a lead wallet trades, and consumed
// by the copy-trade worker to fan the trade out to followers.
type LeadTradeEvent struct {
	LeadAddress  string       `json:"lead_address"`
	TokenAddress string       `json:"token_address"`
	Side         Side         `json:"side"`
	InAmount     uint64       `json:"in_amount"`
	Exchange     ExchangeKind `json:"exchange"`
	SlippageBps  int          `json:"slippage_bps"`
	Signature    string       `json:"signature"`
	// CloseReason carries the originating close reason on sell events so
	// follower positions close with "copy-of:<reason>".
	CloseReason string `json:"close_reason,omitempty"`
}

// Notification is a human-facing event pushed to the notifications queue.
type Notification struct {
	UserID  string `json:"user_id"`
	Kind    string `json:"kind"`
	Message string `json:"message"`
}
