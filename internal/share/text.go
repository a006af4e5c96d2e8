package share

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/behzadon/podium/internal/domain"
)

var medals = [3]string{"🥈", "🥇", "🥉"}

// PostText renders the podium in visual order, one medal line per brand.
// The output depends only on the podium.
func PostText(p domain.Podium) string {
	var b strings.Builder
	b.WriteString("My podium for today:\n")
	for i, brand := range p {
		label := brand.Name
		if brand.Handle != "" {
			label = fmt.Sprintf("%s @%s", brand.Name, strings.TrimPrefix(brand.Handle, "@"))
		}
		fmt.Fprintf(&b, "\n%s %s", medals[i], label)
	}
	return b.String()
}

// EmbedURL links the post back to the shared vote.
func EmbedURL(appURL, voteID string) string {
	return strings.TrimRight(appURL, "/") + "/embeds/podium/" + url.PathEscape(voteID)
}
