// Package candidate builds the element records that are ranked against a
// query and listed in the prompt.
package candidate

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/pkg/errors"
	"golang.org/x/net/html"

	"webnavigator/domtree"
	"webnavigator/turn"
)

const (
	MaxTextLength = 200
	MaxAttrLength = 100
	MaxChildren   = 2

	// boxes smaller than this in either dimension are not candidates
	MinBoxSize = 10
)

// Element is the short description of a page element a record is built from.
type Element struct {
	Tag        string `json:"tag"`
	XPath      string `json:"xpath"`
	Text       string `json:"text"`
	BBox       string `json:"bbox"`
	Attributes string `json:"attributes"`
	Children   string `json:"children"`
}

// Doc renders the element as the multi-line document that is embedded for
// ranking.
func (e Element) Doc() string {
	return fmt.Sprintf("[[tag]] %s\n[[xpath]] %s\n[[text]] %s\n[[bbox]] %s\n[[attributes]] %s\n[[children]] %s",
		e.Tag, e.XPath, e.Text, e.BBox, e.Attributes, e.Children)
}

type Record struct {
	UID     string  `json:"uid"`
	Doc     string  `json:"doc"`
	Element Element `json:"elem_dict"`
	Score   float64 `json:"score"`
	// Rank is 1-based, 1 being the best. Zero means not ranked yet.
	Rank int `json:"rank"`
}

// FilterBBoxes keeps the boxes that are at least MinBoxSize wide and tall and
// intersect the viewport. A zero viewport dimension is not checked.
func FilterBBoxes(bboxes map[string]turn.BoundingBox, viewportHeight, viewportWidth int) map[string]turn.BoundingBox {
	out := make(map[string]turn.BoundingBox, len(bboxes))
	for uid, b := range bboxes {
		if b.Width < MinBoxSize || b.Height < MinBoxSize {
			continue
		}
		if b.X+b.Width < 0 || b.Y+b.Height < 0 {
			continue
		}
		if viewportWidth > 0 && b.X > float64(viewportWidth) {
			continue
		}
		if viewportHeight > 0 && b.Y > float64(viewportHeight) {
			continue
		}
		out[uid] = b
	}
	return out
}

// BuildRecords returns one record per tagged element visible in the viewport,
// in document order.
func BuildRecords(page *turn.Page, uidKey string) ([]Record, error) {
	if !page.HasHTML() || !page.HasBBoxes() {
		return nil, nil
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page.HTML))
	if err != nil {
		return nil, errors.Wrap(err, "parse page")
	}
	visible := FilterBBoxes(page.BBoxes, page.ViewportHeight(), page.ViewportWidth())

	records := []Record{}
	doc.Find("[" + uidKey + "]").Each(func(_ int, s *goquery.Selection) {
		uid, _ := s.Attr(uidKey)
		bbox, ok := visible[uid]
		if !ok {
			return
		}
		elem := describe(s, bbox)
		records = append(records, Record{
			UID:     uid,
			Doc:     elem.Doc(),
			Element: elem,
		})
	})
	return records, nil
}

func describe(s *goquery.Selection, bbox turn.BoundingBox) Element {
	node := s.Get(0)

	text := ""
	if c := node.FirstChild; c != nil && c.Type == html.TextNode {
		text = strings.Join(strings.Fields(c.Data), " ")
	}

	type kv struct{ key, val string }
	attrs := make([]kv, 0, len(node.Attr))
	for _, a := range node.Attr {
		attrs = append(attrs, kv{a.Key, Shorten(a.Val, MaxAttrLength)})
	}
	sort.SliceStable(attrs, func(i, j int) bool {
		return utf8.RuneCountInString(attrs[i].val) < utf8.RuneCountInString(attrs[j].val)
	})
	attrParts := make([]string, len(attrs))
	for i, a := range attrs {
		attrParts[i] = a.key + "=" + pyRepr(a.val)
	}

	children := []string{}
	s.Children().EachWithBreak(func(i int, c *goquery.Selection) bool {
		if i >= MaxChildren {
			return false
		}
		children = append(children, goquery.NodeName(c))
		return true
	})

	return Element{
		Tag:        goquery.NodeName(s),
		XPath:      domtree.XPath(node),
		Text:       Shorten(text, MaxTextLength),
		BBox:       formatBBox(bbox),
		Attributes: strings.Join(attrParts, " "),
		Children:   Shorten(strings.Join(children, " "), MaxAttrLength),
	}
}

func formatBBox(b turn.BoundingBox) string {
	round := func(v float64) string {
		return strconv.FormatFloat(math.Round(v*10)/10, 'f', 1, 64)
	}
	return fmt.Sprintf("x=%s y=%s width=%s height=%s", round(b.X), round(b.Y), round(b.Width), round(b.Height))
}

// Shorten cuts s to at most maxLength runes, replacing the middle with "...".
func Shorten(s string, maxLength int) string {
	const ellipsis = "..."
	runes := []rune(s)
	if maxLength <= 0 || len(runes) <= maxLength {
		return s
	}
	keep := maxLength - len(ellipsis)
	if keep <= 0 {
		return string(runes[:maxLength])
	}
	head := keep / 2
	tail := keep - head
	return string(runes[:head]) + ellipsis + string(runes[len(runes)-tail:])
}

// pyRepr quotes s the way attribute values are quoted in record documents:
// single quotes unless the value contains a single quote and no double quote.
func pyRepr(s string) string {
	quote := '\''
	if strings.ContainsRune(s, '\'') && !strings.ContainsRune(s, '"') {
		quote = '"'
	}
	var b strings.Builder
	b.WriteRune(quote)
	for _, r := range s {
		switch {
		case r == quote || r == '\\':
			b.WriteRune('\\')
			b.WriteRune(r)
		case r == '\n':
			b.WriteString(`\n`)
		case r == '\r':
			b.WriteString(`\r`)
		case r == '\t':
			b.WriteString(`\t`)
		case r < 0x20 || r == 0x7f:
			fmt.Fprintf(&b, `\x%02x`, r)
		default:
			b.WriteRune(r)
		}
	}
	b.WriteRune(quote)
	return b.String()
}
