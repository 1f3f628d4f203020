package mail

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

const (
	imageTextBegin = "[IMAGE_TEXT_BEGIN]"
	imageTextEnd   = "[IMAGE_TEXT_END]"
)

var whitespaceRe = regexp.MustCompile(`\s+`)

// htmlToText strips markup and collapses whitespace to single spaces
func htmlToText(html string) string {
	if strings.TrimSpace(html) == "" {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return collapse(html)
	}
	doc.Find("script, style, head").Remove()
	doc.Find("p, div, br, td, li, tr").Each(func(_ int, s *goquery.Selection) {
		s.PrependHtml(" ")
	})
	return collapse(doc.Text())
}

func collapse(s string) string {
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(s, " "))
}

// bodyParts is what a DFS over a MIME tree yields
type bodyParts struct {
	direct string
	plain  string
	html   string
	images []imagePart
}

type imagePart struct {
	mimeType string
	data     []byte
	// attachmentID is set when the bytes live behind a separate fetch
	attachmentID string
}

// text applies the precedence direct body, then first text/plain, then stripped text/html
func (b bodyParts) text() string {
	switch {
	case strings.TrimSpace(b.direct) != "":
		return b.direct
	case strings.TrimSpace(b.plain) != "":
		return b.plain
	default:
		return htmlToText(b.html)
	}
}

func appendImageText(body string, texts []string) string {
	var sb strings.Builder
	sb.WriteString(body)
	for _, t := range texts {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		sb.WriteString("\n")
		sb.WriteString(imageTextBegin)
		sb.WriteString("\n")
		sb.WriteString(t)
		sb.WriteString("\n")
		sb.WriteString(imageTextEnd)
	}
	return sb.String()
}

func isImage(mimeType string) bool {
	return strings.HasPrefix(strings.ToLower(mimeType), "image/")
}
