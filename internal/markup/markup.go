package markup

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf16"

	"github.com/mymmrac/telego"
)

// htmlEscaper covers the characters Telegram's HTML parse mode treats specially.
var htmlEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	"\"", "&quot;",
)

// EscapeHTML escapes text for safe inclusion in HTML markup sent to Telegram.
func EscapeHTML(s string) string {
	return htmlEscaper.Replace(s)
}

// Link renders an inline hyperlink span.
func Link(href, text string) string {
	return fmt.Sprintf(`<a href="%s">%s</a>`, EscapeHTML(href), EscapeHTML(text))
}

// tagFor maps a formatting entity type to its HTML tag. Entity types without
// a tag representation (mentions, hashtags, phone numbers...) render as plain
// escaped text.
func tagFor(entityType string) string {
	switch entityType {
	case "bold":
		return "b"
	case "italic":
		return "i"
	case "underline":
		return "u"
	case "strikethrough":
		return "s"
	case "spoiler":
		return "tg-spoiler"
	case "code":
		return "code"
	case "pre":
		return "pre"
	case "blockquote", "expandable_blockquote":
		return "blockquote"
	}
	return ""
}

// ToMarkup renders a message's plain text plus entity list as an HTML string
// with inline <a href> spans. This is the representation the link extractor
// and every outgoing message operate on; messages are sent back with HTML
// parse mode so no reverse parser is needed.
//
// Entity offsets are in UTF-16 code units as the platform defines them.
// Entities nested inside an already rendered span are dropped (the covered
// text is kept, escaped). A plain "url" entity becomes a self-referencing
// anchor so every qualifying link is visible to the extractor in one shape.
func ToMarkup(text string, entities []telego.MessageEntity) string {
	if text == "" {
		return ""
	}
	units := utf16.Encode([]rune(text))

	var b strings.Builder
	cursor := 0
	for _, ent := range entities {
		start, end := ent.Offset, ent.Offset+ent.Length
		if start < cursor || start >= len(units) {
			continue // nested in a previous span or out of range
		}
		if end > len(units) {
			end = len(units)
		}
		b.WriteString(EscapeHTML(decode(units[cursor:start])))
		covered := decode(units[start:end])

		switch ent.Type {
		case "text_link":
			b.WriteString(Link(ent.URL, covered))
		case "url":
			b.WriteString(Link(covered, covered))
		default:
			if tag := tagFor(ent.Type); tag != "" {
				b.WriteString("<" + tag + ">")
				b.WriteString(EscapeHTML(covered))
				b.WriteString("</" + tag + ">")
			} else {
				b.WriteString(EscapeHTML(covered))
			}
		}
		cursor = end
	}
	if cursor < len(units) {
		b.WriteString(EscapeHTML(decode(units[cursor:])))
	}
	return b.String()
}

// MessageMarkup renders the text or caption of a message, whichever is set.
func MessageMarkup(msg *telego.Message) string {
	if msg.Text != "" {
		return ToMarkup(msg.Text, msg.Entities)
	}
	return ToMarkup(msg.Caption, msg.CaptionEntities)
}

func decode(units []uint16) string {
	return string(utf16.Decode(units))
}

// InternalChatID converts a Bot API supergroup/channel id (-100 prefixed)
// into the bare id t.me/c/ links use. Other ids pass through unchanged.
func InternalChatID(chatID int64) int64 {
	s := strconv.FormatInt(chatID, 10)
	if rest, ok := strings.CutPrefix(s, "-100"); ok {
		if id, err := strconv.ParseInt(rest, 10, 64); err == nil {
			return id
		}
	}
	return chatID
}

// MessageURL returns the t.me link of a message (or topic root) in a
// supergroup.
func MessageURL(chatID int64, messageID int) string {
	return fmt.Sprintf("https://t.me/c/%d/%d", InternalChatID(chatID), messageID)
}
