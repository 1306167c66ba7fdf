package redis

const (
	// KeyPrefix namespaces every key the mirror writes.
	KeyPrefix = "radiosched:"
	// KeyStatus holds the latest published snapshot (JSON, expiring).
	KeyStatus = KeyPrefix + "status"
	// KeyHistory is a capped list of play events, newest first.
	KeyHistory = KeyPrefix + "history"
	// ChannelEvents receives every mirrored play event.
	ChannelEvents = KeyPrefix + "events"
)

// StatusKey returns the key holding the mirrored snapshot.
func StatusKey() string {
	return KeyStatus
}

// HistoryKey returns the key of the mirrored history list.
func HistoryKey() string {
	return KeyHistory
}

// EventsChannel returns the pub/sub channel for play events.
func EventsChannel() string {
	return ChannelEvents
}
