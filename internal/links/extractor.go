package links

import (
	"fmt"
	"regexp"
	"strconv"
)

// postLinkPattern matches hyperlink spans in HTML markup whose target is a
// microblog post URL: (x|twitter).com/<handle>/status/<numeric-id>, with an
// optional trailing path or query string. Handles are any run of non-slash
// characters. Case-insensitive; the anchor body is irrelevant.
var postLinkPattern = regexp.MustCompile(
	`(?is)<a href="(?P<href>` +
		`(?:https?://)?(?:x|twitter)\.com?/` +
		`(?P<handle>[^/"]*)/status/` +
		`(?P<post>\d+)(?:[/?][^"\s]*)?` +
		`)">.*?</a>`)

var (
	hrefIdx   = postLinkPattern.SubexpIndex("href")
	handleIdx = postLinkPattern.SubexpIndex("handle")
	postIdx   = postLinkPattern.SubexpIndex("post")
)

// Match is one extracted post link. Start and End are byte offsets into the
// markup string; Text is markup[Start:End] verbatim.
type Match struct {
	Start  int
	End    int
	Handle string
	PostID int64
	Href   string
	Text   string
}

// Extract scans markup for post links and returns them in strictly increasing
// span order. Spans never overlap: each match consumes a whole <a> tag.
// Candidates whose post id does not parse as an integer are skipped.
func Extract(markup string) []Match {
	idx := postLinkPattern.FindAllStringSubmatchIndex(markup, -1)
	if idx == nil {
		return nil
	}
	matches := make([]Match, 0, len(idx))
	for _, m := range idx {
		postID, err := strconv.ParseInt(markup[m[2*postIdx]:m[2*postIdx+1]], 10, 64)
		if err != nil {
			continue
		}
		matches = append(matches, Match{
			Start:  m[0],
			End:    m[1],
			Handle: markup[m[2*handleIdx]:m[2*handleIdx+1]],
			PostID: postID,
			Href:   markup[m[2*hrefIdx]:m[2*hrefIdx+1]],
			Text:   markup[m[0]:m[1]],
		})
	}
	return matches
}

// CanonicalURL returns the canonical x.com URL for a post.
func CanonicalURL(handle string, postID int64) string {
	return fmt.Sprintf("https://x.com/%s/status/%d", handle, postID)
}
