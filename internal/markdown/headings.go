package markdown

import (
	"bufio"
	"regexp"
	"strings"
)

type Heading struct {
	Level int
	Text  string
	Slug  string
}

var (
	atxHeadingRe   = regexp.MustCompile(`^ {0,3}(#{1,6})[ \t]+(.+?)(?:[ \t]+#+)?[ \t]*$`)
	fenceRe        = regexp.MustCompile("^ {0,3}(`{3,}|~{3,})")
	inlineLinkRe   = regexp.MustCompile(`!?\[([^\]]*)\]\([^)]*\)`)
	inlineMarkupRe = regexp.MustCompile("[*_`~]+")
)

// Headings returns the ATX headings of a Markdown document in order,
// skipping fenced code blocks. Slugs are unique within the document.
func Headings(document string) []Heading {
	var (
		headings []Heading
		fence    string
		seen     = make(map[string]struct{})
	)

	scanner := bufio.NewScanner(strings.NewReader(document))
	scanner.Buffer(make([]byte, 0, 64*1024), len(document)+1)

	for scanner.Scan() {
		line := scanner.Text()

		if m := fenceRe.FindStringSubmatch(line); m != nil {
			switch {
			case fence == "":
				fence = m[1]
			case m[1][0] == fence[0] && len(m[1]) >= len(fence):
				fence = ""
			}
			continue
		}
		if fence != "" {
			continue
		}

		m := atxHeadingRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}

		text := plainText(m[2])
		if text == "" {
			continue
		}

		slug := UniqueSlug(text, seen)
		seen[slug] = struct{}{}

		headings = append(headings, Heading{
			Level: len(m[1]),
			Text:  text,
			Slug:  slug,
		})
	}

	return headings
}

func plainText(inline string) string {
	text := inlineLinkRe.ReplaceAllString(inline, "$1")
	text = inlineMarkupRe.ReplaceAllString(text, "")
	return strings.Join(strings.Fields(text), " ")
}
