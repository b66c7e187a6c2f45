package chunker

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/dshills/manualrag/pkg/types"
)

var (
	chapterHeadingRe = regexp.MustCompile(`(?i)^(?:chapter|part)\s+(?:\d{1,3}|[ivxlc]{1,6})\b(?:[\s:.\-]+\S.*)?$`)
	allCapsHeadingRe = regexp.MustCompile(`^[A-Z][A-Z &,'/()\-]{3,60}$`)
	sectionHeadingRe = regexp.MustCompile(`^(?:#{1,6}\s+\S.*|\d{1,2}(?:\.\d{1,2})+\.?\s+[A-Z][a-z].*|(?i:section)\s+\d{1,2}(?:\.\d{1,2})*\b.*)$`)
	pageMarkerRe     = regexp.MustCompile(`(?i)^(?:page\s+(\d{1,4})|[-–—]\s*(\d{1,4})\s*[-–—]|\[\s*(\d{1,4})\s*\]|(\d{1,4}))$`)
)

// calloutWords are all-caps lines that label a paragraph rather than open a chapter
var calloutWords = map[string]bool{
	"WARNING":   true,
	"CAUTION":   true,
	"DANGER":    true,
	"NOTE":      true,
	"NOTICE":    true,
	"IMPORTANT": true,
}

const (
	maxChapterHeadingLen = 100
	maxSectionHeadingLen = 80
	maxPageNumber        = 1500
)

// span is a byte range of the normalized document
type span struct {
	start int
	end   int
	title string
}

func (s span) tokens() int {
	return (s.end - s.start) / TokensPerChar
}

type heading struct {
	offset int
	title  string
}

type pageMarker struct {
	offset int
	page   int
}

// document is normalized manual text with its page markers
type document struct {
	text      string
	markers   []pageMarker
	formFeeds []int
}

func newDocument(raw string) *document {
	text := strings.ReplaceAll(raw, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")

	doc := &document{text: text}
	eachLine(text, func(offset int, line string) {
		if page := parsePageMarker(line); page > 0 {
			doc.markers = append(doc.markers, pageMarker{offset: offset, page: page})
		}
	})
	for i := 0; i < len(text); i++ {
		if text[i] == '\f' {
			doc.formFeeds = append(doc.formFeeds, i)
		}
	}
	return doc
}

// pageFor returns the first page marker inside s. Without one, text produced by
// pdftotext is paged by its form feeds.
func (d *document) pageFor(s span) *int {
	for _, m := range d.markers {
		if m.offset >= s.end {
			break
		}
		if m.offset >= s.start {
			page := m.page
			return &page
		}
	}
	if len(d.formFeeds) == 0 {
		return nil
	}
	page := 1
	for _, ff := range d.formFeeds {
		if ff >= s.start {
			break
		}
		page++
	}
	return &page
}

// pageCount is the highest page seen in markers or form feeds
func (d *document) pageCount() int {
	count := 0
	for _, m := range d.markers {
		if m.page > count {
			count = m.page
		}
	}
	if len(d.formFeeds) > 0 && len(d.formFeeds)+1 > count {
		count = len(d.formFeeds) + 1
	}
	return count
}

// EstimatePageCount returns a best-effort page count for extracted manual text
func EstimatePageCount(rawText string) int {
	return newDocument(rawText).pageCount()
}

func parsePageMarker(line string) int {
	m := pageMarkerRe.FindStringSubmatch(strings.TrimSpace(line))
	if m == nil {
		return 0
	}
	for _, g := range m[1:] {
		if g != "" {
			n, err := strconv.Atoi(g)
			if err != nil || n > maxPageNumber {
				return 0
			}
			return n
		}
	}
	return 0
}

// eachLine calls fn with the byte offset and content of every line
func eachLine(text string, fn func(offset int, line string)) {
	offset := 0
	for offset <= len(text) {
		end := strings.IndexByte(text[offset:], '\n')
		if end < 0 {
			fn(offset, strings.Trim(text[offset:], "\f"))
			return
		}
		fn(offset, strings.Trim(text[offset:offset+end], "\f"))
		offset += end + 1
	}
}

func findChapterHeadings(text string, vehicle types.Vehicle) []heading {
	var out []heading
	eachLine(text, func(offset int, line string) {
		trimmed := strings.TrimSpace(line)
		if isChapterHeading(trimmed, vehicle) {
			out = append(out, heading{offset: offset, title: trimmed})
		}
	})
	return out
}

func isChapterHeading(line string, vehicle types.Vehicle) bool {
	if line == "" || len(line) > maxChapterHeadingLen {
		return false
	}
	if chapterHeadingRe.MatchString(line) {
		return true
	}
	if !allCapsHeadingRe.MatchString(line) || calloutWords[strings.TrimRight(line, " :")] {
		return false
	}
	if letterCount(line) < 4 {
		return false
	}
	// Running page headers repeat the vehicle name on every page.
	upper := strings.ToUpper(line)
	if model := strings.ToUpper(strings.TrimSpace(vehicle.Model)); model != "" && strings.Contains(upper, model) {
		return false
	}
	return !strings.Contains(upper, "OWNER'S MANUAL") && !strings.Contains(upper, "OWNERS MANUAL")
}

func findSectionHeadings(text string, base int) []heading {
	var out []heading
	eachLine(text, func(offset int, line string) {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || len(trimmed) > maxSectionHeadingLen || strings.HasSuffix(trimmed, ".") {
			return
		}
		if sectionHeadingRe.MatchString(trimmed) {
			out = append(out, heading{offset: base + offset, title: strings.TrimSpace(strings.TrimLeft(trimmed, "#"))})
		}
	})
	return out
}

func letterCount(s string) int {
	n := 0
	for _, r := range s {
		if unicode.IsLetter(r) {
			n++
		}
	}
	return n
}

// blocksFromHeadings cuts outer at each heading. Text before the first heading
// becomes an untitled block.
func blocksFromHeadings(text string, outer span, headings []heading) []span {
	var out []span
	if first := headings[0].offset; first > outer.start && strings.TrimSpace(text[outer.start:first]) != "" {
		out = append(out, span{start: outer.start, end: first})
	}
	for i, h := range headings {
		end := outer.end
		if i+1 < len(headings) {
			end = headings[i+1].offset
		}
		out = append(out, span{start: h.offset, end: end, title: h.title})
	}
	return out
}

// windows splits outer into pieces of at most size bytes. Consecutive pieces
// share up to overlap bytes, capped at half the smaller piece.
func windows(text string, outer span, size, overlap int) []span {
	var out []span
	start := outer.start
	for start < outer.end {
		end := start + size
		if end >= outer.end {
			end = outer.end
		} else {
			end = breakPoint(text, start, end)
		}

		if strings.TrimSpace(text[start:end]) != "" {
			out = append(out, span{start: start, end: end})
		}
		if end >= outer.end {
			break
		}

		ov := overlap
		if half := (end - start) / 2; ov > half {
			ov = half
		}
		if rest := outer.end - end; ov > rest {
			ov = rest
		}

		next := runeStart(text, end-ov)
		if i := strings.IndexAny(text[next:end], " \n\t"); i >= 0 {
			next += i + 1
		}
		if next <= start || next >= end {
			next = end
		}
		start = next
	}
	return out
}

// breakPoint moves end back to the last whitespace in the second half of the
// window so words are not cut.
func breakPoint(text string, start, end int) int {
	end = runeStart(text, end)
	mid := start + (end-start)/2
	if i := strings.LastIndexAny(text[mid:end], " \n\t"); i >= 0 {
		return mid + i + 1
	}
	if end <= start {
		return start + 1
	}
	return end
}

func runeStart(text string, i int) int {
	for i > 0 && i < len(text) && !utf8.RuneStart(text[i]) {
		i--
	}
	return i
}

// clip shortens s to at most max bytes, preferring a word boundary
func clip(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := runeStart(s, max)
	if i := strings.LastIndexAny(s[cut/2:cut], " \n\t"); i >= 0 {
		cut = cut/2 + i
	}
	return strings.TrimSpace(s[:cut])
}
