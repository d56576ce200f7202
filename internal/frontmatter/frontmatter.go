// Package frontmatter separates a YAML front matter block from the body of a document.
package frontmatter

import "strings"

// Delimiter is the sentinel line that opens and closes a front matter block.
const Delimiter = "---"

// Parts is the result of splitting a document.
type Parts struct {
	// FrontMatter is the exact text between the sentinel lines, without the
	// newline that precedes the closing sentinel.
	FrontMatter string
	// HasFrontMatter is false for content-only documents.
	HasFrontMatter bool
	// Body is everything after the closing sentinel line.
	Body string
}

// Split separates front matter from body. It never fails: a document without
// an opening sentinel, or with an unterminated block, is returned whole as body.
func Split(raw []byte) Parts {
	text := string(raw)

	first, rest, ok := cutLine(text)
	if !ok || first != Delimiter {
		return Parts{Body: text}
	}

	offset := 0
	for {
		line, after, hasNewline := cutLine(rest[offset:])
		if line == Delimiter {
			fm := strings.TrimSuffix(rest[:offset], "\n")
			fm = strings.TrimSuffix(fm, "\r")
			return Parts{FrontMatter: fm, HasFrontMatter: true, Body: after}
		}
		if !hasNewline {
			return Parts{Body: text}
		}
		offset = len(rest) - len(after)
	}
}

// cutLine returns the first line of s without its line ending, the text after
// it, and whether a newline terminated the line.
func cutLine(s string) (line, after string, found bool) {
	line, after, found = strings.Cut(s, "\n")
	return strings.TrimSuffix(line, "\r"), after, found
}

// Join rebuilds a document from front matter and body. Empty front matter
// yields the body alone.
func Join(frontMatter, body string) []byte {
	if strings.TrimSpace(frontMatter) == "" {
		return []byte(body)
	}
	var b strings.Builder
	b.Grow(len(frontMatter) + len(body) + 2*len(Delimiter) + 3)
	b.WriteString(Delimiter)
	b.WriteByte('\n')
	b.WriteString(frontMatter)
	if !strings.HasSuffix(frontMatter, "\n") {
		b.WriteByte('\n')
	}
	b.WriteString(Delimiter)
	b.WriteByte('\n')
	b.WriteString(body)
	return []byte(b.String())
}
