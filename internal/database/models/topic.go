package models

// Topic is a named sub-thread of a chat. TopicID 1 is the default "General"
// topic. (ChatID, TopicID) is unique.
type Topic struct {
	ChatID  int64
	TopicID int
	Name    string
}

// RaidTopic designates the single topic per chat that aggregates
// deduplicated links. At most one row per chat.
type RaidTopic struct {
	ChatID  int64
	TopicID int
}

// ChatLink is a directed satellite → primary edge: content seen in the
// satellite chat is mirrored into the primary chat's raid topic.
type ChatLink struct {
	SatelliteChatID int64
	PrimaryChatID   int64
}
