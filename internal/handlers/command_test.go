package handlers

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mymmrac/telego"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/realmrv/raidlink-bot/internal/auth"
	"github.com/realmrv/raidlink-bot/internal/database"
	"github.com/realmrv/raidlink-bot/internal/database/models"
	"github.com/realmrv/raidlink-bot/internal/dedup"
	"github.com/realmrv/raidlink-bot/internal/locales"
	"github.com/realmrv/raidlink-bot/internal/observability"
	"github.com/realmrv/raidlink-bot/internal/registry"
	"github.com/realmrv/raidlink-bot/internal/topics"
	"github.com/realmrv/raidlink-bot/pkg/telegoapi"
)

const (
	testChatID   = int64(-100200300400)
	testSenderID = int64(7)
	testBotID    = int64(999)
	raidTopicID  = 99
	otherTopicID = 55
)

type emptyFetcher struct{}

func (emptyFetcher) GetMessage(int64, int) (*telego.Message, bool) { return nil, false }

type fixture struct {
	bot     *telegoapi.MockBot
	handler *CommandHandler
	reg     *registry.Registry
	links   database.ChatLinkRepository
	raids   database.RaidTopicRepository
	posts   database.PostRepository
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	locales.Init("en")

	db, err := database.Open(filepath.Join(t.TempDir(), "bot.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	ctx := context.Background()
	topicRepo := database.NewSQLiteTopicRepository(db)
	_, err = topicRepo.Insert(ctx, testChatID, raidTopicID, "Raids")
	require.NoError(t, err)
	_, err = topicRepo.Insert(ctx, testChatID, otherTopicID, "Chatter")
	require.NoError(t, err)

	bot := new(telegoapi.MockBot)
	reporter := observability.New(nil, 0)
	resolver := topics.NewResolver(bot, topicRepo, emptyFetcher{}, reporter)
	reg := registry.New()
	raids := database.NewSQLiteRaidTopicRepository(db)
	chatLinks := database.NewSQLiteChatLinkRepository(db)
	posts := database.NewSQLitePostRepository(db)
	engine := dedup.New(dedup.Config{
		Bot:         bot,
		Posts:       posts,
		Registry:    reg,
		Resolver:    resolver,
		Reporter:    reporter,
		Events:      database.NoopEventLogger{},
		BotUsername: "raidlink_bot",
	})
	handler := NewCommandHandler(Deps{
		Bot:               bot,
		Engine:            engine,
		Resolver:          resolver,
		Checker:           auth.NewChecker(bot, 0),
		Registry:          reg,
		Reporter:          reporter,
		RaidTopics:        raids,
		ChatLinks:         chatLinks,
		Events:            database.NoopEventLogger{},
		BotID:             testBotID,
		BotUsername:       "raidlink_bot",
		SelfDestructDelay: 0,
	})
	return &fixture{bot: bot, handler: handler, reg: reg, links: chatLinks, raids: raids, posts: posts}
}

func (f *fixture) expectForumChat() {
	f.bot.On("GetChat", mock.Anything, mock.MatchedBy(func(p *telego.GetChatParams) bool {
		return p.ChatID.ID == testChatID
	})).Return(&telego.ChatFullInfo{
		ID: testChatID, Type: telego.ChatTypeSupergroup, IsForum: true, Title: "Raid HQ",
	}, nil).Maybe()
}

func (f *fixture) expectSender(member telego.ChatMember) {
	f.bot.On("GetChatMember", mock.Anything, mock.MatchedBy(func(p *telego.GetChatMemberParams) bool {
		return p.UserID == testSenderID
	})).Return(member, nil).Maybe()
}

func command(text string, threadID int) telego.Message {
	msg := telego.Message{
		MessageID: 10,
		Chat:      telego.Chat{ID: testChatID, Title: "Raid HQ"},
		From:      &telego.User{ID: testSenderID, FirstName: "Alice"},
		Text:      text,
	}
	if threadID != 0 {
		msg.IsTopicMessage = true
		msg.MessageThreadID = threadID
	}
	return msg
}

func TestHandleStartSendsWelcome(t *testing.T) {
	f := newFixture(t)
	f.bot.On("SetMyCommands", mock.Anything, mock.MatchedBy(func(p *telego.SetMyCommandsParams) bool {
		return len(p.Commands) == 7
	})).Return(nil).Once()
	f.bot.On("SendMessage", mock.Anything, mock.MatchedBy(func(p *telego.SendMessageParams) bool {
		return strings.Contains(p.Text, "raid topic")
	})).Return(&telego.Message{MessageID: 11}, nil).Once()

	require.NoError(t, f.handler.HandleStart(context.Background(), command("/start", 0)))
	f.bot.AssertExpectations(t)
}

func TestHandleHelpListsCommands(t *testing.T) {
	f := newFixture(t)
	f.bot.On("SendMessage", mock.Anything, mock.MatchedBy(func(p *telego.SendMessageParams) bool {
		return strings.Contains(p.Text, "/set_raid_topic") && strings.Contains(p.Text, "/ignore_duplicate")
	})).Return(&telego.Message{MessageID: 11}, nil).Once()

	require.NoError(t, f.handler.HandleHelp(context.Background(), command("/help", 0)))
	f.bot.AssertExpectations(t)
}

func TestHandleSetRaidTopic(t *testing.T) {
	f := newFixture(t)
	f.expectForumChat()
	f.expectSender(&telego.ChatMemberOwner{})
	f.bot.On("SendMessage", mock.Anything, mock.MatchedBy(func(p *telego.SendMessageParams) bool {
		return strings.Contains(p.Text, "set to") &&
			strings.Contains(p.Text, "https://t.me/c/200300400/55") &&
			strings.Contains(p.Text, "Chatter")
	})).Return(&telego.Message{MessageID: 11}, nil).Once()
	f.bot.On("DeleteMessages", mock.Anything, mock.MatchedBy(func(p *telego.DeleteMessagesParams) bool {
		return assert.ObjectsAreEqual([]int{10, 11}, p.MessageIDs)
	})).Return(nil).Once()

	msg := command("/set_raid_topic", otherTopicID)
	require.NoError(t, f.handler.HandleSetRaidTopic(context.Background(), msg))

	f.bot.AssertExpectations(t)
	topicID, ok := f.reg.RaidTopic(testChatID)
	require.True(t, ok)
	assert.Equal(t, otherTopicID, topicID)

	persisted, err := f.raids.All(context.Background())
	require.NoError(t, err)
	require.Len(t, persisted, 1)
	assert.Equal(t, otherTopicID, persisted[0].TopicID)
}

func TestHandleSetRaidTopicDeniedWithoutRights(t *testing.T) {
	f := newFixture(t)
	f.expectForumChat()
	f.expectSender(&telego.ChatMemberMember{})
	f.bot.On("SendMessage", mock.Anything, mock.MatchedBy(func(p *telego.SendMessageParams) bool {
		return strings.Contains(p.Text, "Permission denied") &&
			strings.Contains(p.Text, "is_admin") &&
			strings.Contains(p.Text, "can_change_info")
	})).Return(&telego.Message{MessageID: 11}, nil).Once()
	f.bot.On("DeleteMessages", mock.Anything, mock.Anything).Return(nil).Once()

	msg := command("/set_raid_topic", otherTopicID)
	require.NoError(t, f.handler.HandleSetRaidTopic(context.Background(), msg))

	f.bot.AssertExpectations(t)
	_, ok := f.reg.RaidTopic(testChatID)
	assert.False(t, ok)
}

func TestHandleSetRaidTopicOutsideForum(t *testing.T) {
	f := newFixture(t)
	f.bot.On("GetChat", mock.Anything, mock.Anything).
		Return(&telego.ChatFullInfo{ID: testChatID, Type: telego.ChatTypeSupergroup}, nil).Once()
	f.bot.On("SendMessage", mock.Anything, mock.MatchedBy(func(p *telego.SendMessageParams) bool {
		return strings.Contains(p.Text, "can only be used")
	})).Return(&telego.Message{MessageID: 11}, nil).Once()
	f.bot.On("DeleteMessages", mock.Anything, mock.Anything).Return(nil).Once()

	require.NoError(t, f.handler.HandleSetRaidTopic(context.Background(), command("/set_raid_topic", 0)))

	f.bot.AssertExpectations(t)
	_, ok := f.reg.RaidTopic(testChatID)
	assert.False(t, ok)
}

func TestHandleRaidTopicNotSet(t *testing.T) {
	f := newFixture(t)
	f.expectForumChat()
	f.expectSender(&telego.ChatMemberOwner{})
	f.bot.On("SendMessage", mock.Anything, mock.MatchedBy(func(p *telego.SendMessageParams) bool {
		return strings.Contains(p.Text, "Raid topic is not set")
	})).Return(&telego.Message{MessageID: 11}, nil).Once()
	f.bot.On("DeleteMessages", mock.Anything, mock.Anything).Return(nil).Once()

	require.NoError(t, f.handler.HandleRaidTopic(context.Background(), command("/raid_topic", otherTopicID)))
	f.bot.AssertExpectations(t)
}

func TestHandleRaidTopicReportsConfigured(t *testing.T) {
	f := newFixture(t)
	f.expectForumChat()
	f.expectSender(&telego.ChatMemberOwner{})
	f.reg.SetRaidTopic(testChatID, raidTopicID)
	f.bot.On("SendMessage", mock.Anything, mock.MatchedBy(func(p *telego.SendMessageParams) bool {
		return strings.Contains(p.Text, "is <b>") &&
			strings.Contains(p.Text, "https://t.me/c/200300400/99") &&
			strings.Contains(p.Text, "Raids")
	})).Return(&telego.Message{MessageID: 11}, nil).Once()
	f.bot.On("DeleteMessages", mock.Anything, mock.Anything).Return(nil).Once()

	require.NoError(t, f.handler.HandleRaidTopic(context.Background(), command("/raid_topic", otherTopicID)))
	f.bot.AssertExpectations(t)
}

func TestHandleLinkChat(t *testing.T) {
	f := newFixture(t)
	f.expectForumChat()
	f.expectSender(&telego.ChatMemberOwner{})
	satellite := int64(-100111222333)
	f.bot.On("GetChat", mock.Anything, mock.MatchedBy(func(p *telego.GetChatParams) bool {
		return p.ChatID.Username == "@satchat"
	})).Return(&telego.ChatFullInfo{
		ID: satellite, Type: telego.ChatTypeSupergroup, Username: "satchat", Title: "Satellite",
	}, nil)
	f.bot.On("GetChatMember", mock.Anything, mock.MatchedBy(func(p *telego.GetChatMemberParams) bool {
		return p.UserID == testBotID
	})).Return(&telego.ChatMemberMember{}, nil)
	f.bot.On("SendMessage", mock.Anything, mock.MatchedBy(func(p *telego.SendMessageParams) bool {
		return strings.Contains(p.Text, "Linked chat") &&
			strings.Contains(p.Text, "https://t.me/satchat") &&
			strings.Contains(p.Text, "Satellite")
	})).Return(&telego.Message{MessageID: 11}, nil).Once()

	require.NoError(t, f.handler.HandleLinkChat(context.Background(), command("/link_chat @satchat", 0)))

	primary, ok := f.reg.PrimaryChat(satellite)
	require.True(t, ok)
	assert.Equal(t, testChatID, primary)

	// Linking the same pair again is reported, not re-applied.
	f.bot.On("SendMessage", mock.Anything, mock.MatchedBy(func(p *telego.SendMessageParams) bool {
		return strings.Contains(p.Text, "already linked")
	})).Return(&telego.Message{MessageID: 12}, nil).Once()
	require.NoError(t, f.handler.HandleLinkChat(context.Background(), command("/link_chat @satchat", 0)))
	f.bot.AssertExpectations(t)
}

func TestHandleLinkChatRejectsInviteLinks(t *testing.T) {
	f := newFixture(t)
	f.expectSender(&telego.ChatMemberOwner{})
	f.bot.On("SendMessage", mock.Anything, mock.MatchedBy(func(p *telego.SendMessageParams) bool {
		return strings.Contains(p.Text, "must be public")
	})).Return(&telego.Message{MessageID: 11}, nil).Once()

	require.NoError(t, f.handler.HandleLinkChat(context.Background(), command("/link_chat https://t.me/+secret", 0)))
	f.bot.AssertExpectations(t)
}

func TestHandleLinkChatRejectsSelfLink(t *testing.T) {
	f := newFixture(t)
	f.expectSender(&telego.ChatMemberOwner{})
	f.bot.On("GetChat", mock.Anything, mock.MatchedBy(func(p *telego.GetChatParams) bool {
		return p.ChatID.ID == testChatID
	})).Return(&telego.ChatFullInfo{
		ID: testChatID, Type: telego.ChatTypeSupergroup, Username: "raidhq", Title: "Raid HQ",
	}, nil)
	f.bot.On("GetChatMember", mock.Anything, mock.MatchedBy(func(p *telego.GetChatMemberParams) bool {
		return p.UserID == testBotID
	})).Return(&telego.ChatMemberMember{}, nil)
	f.bot.On("SendMessage", mock.Anything, mock.MatchedBy(func(p *telego.SendMessageParams) bool {
		return strings.Contains(p.Text, "same chat")
	})).Return(&telego.Message{MessageID: 11}, nil).Once()

	require.NoError(t, f.handler.HandleLinkChat(context.Background(), command("/link_chat -100200300400", 0)))
	f.bot.AssertExpectations(t)
}

func TestHandleLinkChatRequiresMembership(t *testing.T) {
	f := newFixture(t)
	f.expectSender(&telego.ChatMemberOwner{})
	f.bot.On("GetChat", mock.Anything, mock.MatchedBy(func(p *telego.GetChatParams) bool {
		return p.ChatID.Username == "@satchat"
	})).Return(&telego.ChatFullInfo{
		ID: -100111, Type: telego.ChatTypeSupergroup, Username: "satchat", Title: "Satellite",
	}, nil)
	f.bot.On("GetChatMember", mock.Anything, mock.MatchedBy(func(p *telego.GetChatMemberParams) bool {
		return p.UserID == testBotID
	})).Return(&telego.ChatMemberLeft{}, nil)
	f.bot.On("SendMessage", mock.Anything, mock.MatchedBy(func(p *telego.SendMessageParams) bool {
		return strings.Contains(p.Text, "must be member")
	})).Return(&telego.Message{MessageID: 11}, nil).Once()

	require.NoError(t, f.handler.HandleLinkChat(context.Background(), command("/link_chat @satchat", 0)))
	f.bot.AssertExpectations(t)
}

func TestHandleUnlinkChat(t *testing.T) {
	f := newFixture(t)
	f.expectForumChat()
	f.expectSender(&telego.ChatMemberOwner{})
	satellite := int64(-100111222333)
	_, err := f.links.Insert(context.Background(), satellite, testChatID)
	require.NoError(t, err)
	f.reg.LinkChat(satellite, testChatID)

	f.bot.On("GetChat", mock.Anything, mock.MatchedBy(func(p *telego.GetChatParams) bool {
		return p.ChatID.Username == "@satchat"
	})).Return(&telego.ChatFullInfo{
		ID: satellite, Type: telego.ChatTypeSupergroup, Username: "satchat", Title: "Satellite",
	}, nil)
	f.bot.On("GetChatMember", mock.Anything, mock.MatchedBy(func(p *telego.GetChatMemberParams) bool {
		return p.UserID == testBotID
	})).Return(&telego.ChatMemberMember{}, nil)
	f.bot.On("SendMessage", mock.Anything, mock.MatchedBy(func(p *telego.SendMessageParams) bool {
		return strings.Contains(p.Text, "Unlinked chat")
	})).Return(&telego.Message{MessageID: 11}, nil).Once()

	require.NoError(t, f.handler.HandleUnlinkChat(context.Background(), command("/unlink_chat @satchat", 0)))

	_, ok := f.reg.PrimaryChat(satellite)
	assert.False(t, ok)

	f.bot.On("SendMessage", mock.Anything, mock.MatchedBy(func(p *telego.SendMessageParams) bool {
		return strings.Contains(p.Text, "already unlinked")
	})).Return(&telego.Message{MessageID: 12}, nil).Once()
	require.NoError(t, f.handler.HandleUnlinkChat(context.Background(), command("/unlink_chat @satchat", 0)))
	f.bot.AssertExpectations(t)
}

func TestHandleIgnoreDuplicateRequiresPayload(t *testing.T) {
	f := newFixture(t)
	f.expectSender(&telego.ChatMemberOwner{})
	f.bot.On("SendMessage", mock.Anything, mock.MatchedBy(func(p *telego.SendMessageParams) bool {
		return strings.Contains(p.Text, "needs a message after the command")
	})).Return(&telego.Message{MessageID: 11}, nil).Once()
	f.bot.On("DeleteMessages", mock.Anything, mock.MatchedBy(func(p *telego.DeleteMessagesParams) bool {
		return assert.ObjectsAreEqual([]int{10, 11}, p.MessageIDs)
	})).Return(nil).Once()

	require.NoError(t, f.handler.HandleIgnoreDuplicate(context.Background(), command("/ignore_duplicate", 0)))
	f.bot.AssertExpectations(t)
}

func TestHandleIgnoreDuplicateRerunsAndRemovesCommand(t *testing.T) {
	f := newFixture(t)
	f.expectForumChat()
	f.expectSender(&telego.ChatMemberOwner{})
	f.reg.SetRaidTopic(testChatID, raidTopicID)

	// Seed the post so the command reruns over a known duplicate.
	_, err := f.posts.RecordOrFetch(context.Background(), models.Post{
		Handle: "alice", PostID: 123, PostedBy: testSenderID, PostedAt: 1700000000,
		ChatID: testChatID, MessageID: 5,
	})
	require.NoError(t, err)

	msg := command("/ignore_duplicate https://x.com/alice/status/123", raidTopicID)
	msg.Entities = []telego.MessageEntity{{Type: "url", Offset: 18, Length: 30}}

	// The duplicate is re-posted verbatim, without an annotation.
	f.bot.On("SendMessage", mock.Anything, mock.MatchedBy(func(p *telego.SendMessageParams) bool {
		return strings.Contains(p.Text, "status/123") &&
			!strings.Contains(p.Text, "/ignore_duplicate") &&
			!strings.Contains(p.Text, "Marked as duplicate")
	})).Return(&telego.Message{MessageID: 11}, nil).Once()
	f.bot.On("DeleteMessages", mock.Anything, mock.MatchedBy(func(p *telego.DeleteMessagesParams) bool {
		return assert.ObjectsAreEqual([]int{10}, p.MessageIDs)
	})).Return(nil).Once()

	require.NoError(t, f.handler.HandleIgnoreDuplicate(context.Background(), msg))
	f.bot.AssertExpectations(t)
}
