package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"

	"github.com/realmrv/raidlink-bot/pkg/telegoapi"
)

// Flag names a single permission a command can require.
type Flag string

const (
	FlagIsAdmin           Flag = "is_admin"
	FlagCanChangeInfo     Flag = "can_change_info"
	FlagCanDeleteMessages Flag = "can_delete_messages"
	FlagCanPinMessages    Flag = "can_pin_messages"
)

// ErrUnknownFlag marks a permission name the checker does not know. It is a
// configuration error and must never be presented as a denial.
var ErrUnknownFlag = errors.New("unknown permission flag")

// Snapshot is a point-in-time view of one user's rights in one chat.
type Snapshot struct {
	IsAdmin           bool
	CanChangeInfo     bool
	CanDeleteMessages bool
	CanPinMessages    bool
}

// Has reports whether the snapshot grants the named flag.
func (s Snapshot) Has(flag Flag) (bool, error) {
	switch flag {
	case FlagIsAdmin:
		return s.IsAdmin, nil
	case FlagCanChangeInfo:
		return s.CanChangeInfo, nil
	case FlagCanDeleteMessages:
		return s.CanDeleteMessages, nil
	case FlagCanPinMessages:
		return s.CanPinMessages, nil
	default:
		return false, fmt.Errorf("%w: %q", ErrUnknownFlag, flag)
	}
}

// snapshotFromMember maps a chat member payload onto a Snapshot. The chat
// owner holds every right implicitly; administrators carry explicit right
// fields; everyone else holds nothing.
func snapshotFromMember(member telego.ChatMember) Snapshot {
	switch m := member.(type) {
	case *telego.ChatMemberOwner:
		return Snapshot{IsAdmin: true, CanChangeInfo: true, CanDeleteMessages: true, CanPinMessages: true}
	case *telego.ChatMemberAdministrator:
		return Snapshot{
			IsAdmin:           true,
			CanChangeInfo:     m.CanChangeInfo,
			CanDeleteMessages: m.CanDeleteMessages,
			CanPinMessages:    m.CanPinMessages,
		}
	default:
		return Snapshot{}
	}
}

type cacheKey struct {
	chatID int64
	userID int64
}

type cacheEntry struct {
	snap    Snapshot
	expires time.Time
}

// Checker resolves user permissions against the Telegram API, caching each
// (chat, user) snapshot for a fixed TTL. Only successful lookups are cached;
// a stale entry is simply refetched on the next request.
type Checker struct {
	bot   telegoapi.BotAPI
	ttl   time.Duration
	now   func() time.Time
	cache sync.Map // cacheKey → cacheEntry
}

// NewChecker creates a permission checker with the given cache TTL.
func NewChecker(bot telegoapi.BotAPI, ttl time.Duration) *Checker {
	return &Checker{bot: bot, ttl: ttl, now: time.Now}
}

// Snapshot returns the user's rights in the chat, from cache when fresh.
func (c *Checker) Snapshot(ctx context.Context, chatID, userID int64) (Snapshot, error) {
	key := cacheKey{chatID: chatID, userID: userID}
	if v, ok := c.cache.Load(key); ok {
		entry := v.(cacheEntry)
		if c.now().Before(entry.expires) {
			return entry.snap, nil
		}
	}

	member, err := c.bot.GetChatMember(ctx, &telego.GetChatMemberParams{
		ChatID: tu.ID(chatID),
		UserID: userID,
	})
	if err != nil {
		return Snapshot{}, fmt.Errorf("failed to get chat member %d in chat %d: %w", userID, chatID, err)
	}
	snap := snapshotFromMember(member)
	c.cache.Store(key, cacheEntry{snap: snap, expires: c.now().Add(c.ttl)})
	return snap, nil
}

// Missing returns every required flag the user does not hold, so a denial
// can list all unmet requirements at once instead of failing on the first.
func (c *Checker) Missing(ctx context.Context, chatID, userID int64, flags ...Flag) ([]Flag, error) {
	snap, err := c.Snapshot(ctx, chatID, userID)
	if err != nil {
		return nil, err
	}
	var missing []Flag
	for _, flag := range flags {
		ok, err := snap.Has(flag)
		if err != nil {
			return nil, err
		}
		if !ok {
			missing = append(missing, flag)
		}
	}
	return missing, nil
}
