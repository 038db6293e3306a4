package models

// Post is one row of tw_posts: the first sighting of a microblog post in a
// destination chat. (Handle, PostID, ChatID) is the dedup key; rows are never
// updated or deleted.
type Post struct {
	Handle    string
	PostID    int64
	PostedBy  int64
	PostedAt  int64
	ChatID    int64
	MessageID int
	TopicID   *int    // nil outside topics-enabled chats
	URL       *string // t.me message URL; nil for private chats
}
