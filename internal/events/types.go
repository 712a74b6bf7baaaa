package events

// Event identifies a bus topic.
type Event string

const (
	EventPositionOpened     Event = "position.opened"
	EventPositionClosed     Event = "position.closed"
	EventPositionRolledBack Event = "position.rolled_back"
	EventOrderUpdate        Event = "order.update"
	EventTradeRejected      Event = "trade.rejected"
)
