// Package videoid extracts an 11-character YouTube video ID from a URL.
package videoid

import (
	"regexp"

	"github.com/sacahan/trailtag/internal/model"
)

// patterns are tried in order; the first match wins, per spec §6.
var patterns = []*regexp.Regexp{
	regexp.MustCompile(`(?:v=|/)([0-9A-Za-z_-]{11})`),
	regexp.MustCompile(`(?:embed/|v/|youtu\.be/)([0-9A-Za-z_-]{11})`),
}

// Extract parses the 11-character video ID out of a YouTube URL. Returns a
// *model.ValidationError carrying the original error string from TrailTag's
// Python predecessor when no pattern matches, so clients diffing error
// text against the original system see the same message (§8 scenario 4).
func Extract(url string) (string, error) {
	for _, p := range patterns {
		if m := p.FindStringSubmatch(url); m != nil {
			return m[1], nil
		}
	}
	return "", model.NewValidationError("無法從 URL 提取有效的 YouTube video_id: %s", url)
}
