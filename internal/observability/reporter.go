package observability

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"

	"github.com/realmrv/raidlink-bot/pkg/telegoapi"
)

// Reporter fans operational messages out to stdout, Sentry and the Telegram
// log channel. Per-event failures go through here so they are traced without
// aborting the event stream. A Reporter with no bot or channel degrades to
// plain logging, which tests rely on.
type Reporter struct {
	bot          telegoapi.BotAPI
	logChannelID int64
}

// New creates a reporter. bot may be nil and logChannelID zero, in which
// case channel delivery is skipped.
func New(bot telegoapi.BotAPI, logChannelID int64) *Reporter {
	return &Reporter{bot: bot, logChannelID: logChannelID}
}

// Logf reports an informational message.
func (r *Reporter) Logf(ctx context.Context, format string, args ...interface{}) {
	text := fmt.Sprintf(format, args...)
	log.Print(text)
	r.send(ctx, text)
}

// Error reports a failure with context. The error is captured in Sentry and
// mirrored to the log channel.
func (r *Reporter) Error(ctx context.Context, err error, format string, args ...interface{}) {
	text := fmt.Sprintf(format, args...)
	log.Printf("%s: %v", text, err)
	sentry.CaptureException(fmt.Errorf("%s: %w", text, err))
	r.send(ctx, fmt.Sprintf("<b>Error:</b> %s\n<pre>%v</pre>", text, err))
}

func (r *Reporter) send(ctx context.Context, text string) {
	if r.bot == nil || r.logChannelID == 0 {
		return
	}
	stamped := fmt.Sprintf("%s\n%s", time.Now().UTC().Format(time.UnixDate), text)
	params := tu.Message(tu.ID(r.logChannelID), stamped)
	params.ParseMode = telego.ModeHTML
	if _, err := r.bot.SendMessage(ctx, params); err != nil {
		log.Printf("Failed to deliver message to log channel %d: %v", r.logChannelID, err)
	}
}
