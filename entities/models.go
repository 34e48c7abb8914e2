package entities

// All lists every persisted model, in migration order.
func All() []any {
	return []any{
		&Stream{},
		&TwitchChatMessage{},
		&YouTubeChatMessage{},
	}
}
