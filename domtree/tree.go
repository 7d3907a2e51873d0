package domtree

import (
	"strconv"
	"strings"

	"github.com/yosssi/gohtml"
	"golang.org/x/net/html"

	"webnavigator/truncation"
)

// attributes kept in the rendered tree besides the uid attribute
var keptAttributes = map[string]bool{
	"id":          true,
	"class":       true,
	"name":        true,
	"type":        true,
	"value":       true,
	"placeholder": true,
	"title":       true,
	"alt":         true,
	"href":        true,
	"role":        true,
	"aria-label":  true,
	"label":       true,
	"for":         true,
}

// Tree is a document pruned to the candidates, their ancestors and their
// visible children.
type Tree struct {
	doc *Document
	// candidate uids present in the document, best ranked first
	uids []string
}

// Prune keeps the elements tagged with the given uids. uids are ordered best
// first; unknown uids are ignored.
func (d *Document) Prune(uids []string) *Tree {
	t := &Tree{doc: d}
	seen := make(map[string]bool, len(uids))
	for _, uid := range uids {
		if _, ok := d.byUID[uid]; ok && !seen[uid] {
			seen[uid] = true
			t.uids = append(t.uids, uid)
		}
	}
	return t
}

func (t *Tree) Candidates() []string {
	return append([]string(nil), t.uids...)
}

type RenderOptions struct {
	// MaxWords caps text and attribute values. Zero means no cap.
	MaxWords int
	// Dropped candidates are rendered only when they are the ancestor of a
	// remaining candidate.
	Dropped map[string]bool
}

func (t *Tree) keepSet(dropped map[string]bool) map[*html.Node]bool {
	keep := make(map[*html.Node]bool)
	for _, uid := range t.uids {
		if dropped[uid] {
			continue
		}
		n := t.doc.byUID[uid]
		keep[n] = true
		for p := n.Parent; p != nil && p.Type == html.ElementNode; p = p.Parent {
			keep[p] = true
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if shouldKeepNode(c) {
				keep[c] = true
			}
		}
	}
	return keep
}

// Render serializes the kept nodes as (tag attr="v" "text" children...).
// An empty string is returned when no candidate remains.
func (t *Tree) Render(opts RenderOptions) string {
	keep := t.keepSet(opts.Dropped)
	if len(keep) == 0 {
		return ""
	}
	var b strings.Builder
	var visit func(n *html.Node)
	visit = func(n *html.Node) {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if c.Type != html.ElementNode || !keep[c] {
				continue
			}
			if b.Len() > 0 {
				b.WriteByte(' ')
			}
			b.WriteByte('(')
			b.WriteString(c.Data)
			for _, a := range c.Attr {
				if a.Key != t.doc.uidKey && !keptAttributes[a.Key] {
					continue
				}
				v := shorten(strings.Join(strings.Fields(a.Val), " "), opts.MaxWords)
				if v == "" {
					continue
				}
				b.WriteByte(' ')
				b.WriteString(a.Key)
				b.WriteByte('=')
				b.WriteString(strconv.Quote(v))
			}
			if text := shorten(directText(c), opts.MaxWords); text != "" {
				b.WriteByte(' ')
				b.WriteString(strconv.Quote(text))
			}
			visit(c)
			b.WriteByte(')')
		}
	}
	visit(t.doc.root)
	return b.String()
}

func shorten(s string, maxWords int) string {
	if maxWords <= 0 {
		return s
	}
	words := strings.Fields(s)
	if len(words) <= maxWords {
		return s
	}
	return strings.Join(words[:maxWords], " ") + " " + truncation.Ellipsis
}

// Pretty renders the kept nodes as indented HTML for debugging.
func (t *Tree) Pretty() string {
	keep := t.keepSet(nil)
	var b strings.Builder
	var visit func(n *html.Node)
	visit = func(n *html.Node) {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if c.Type != html.ElementNode || !keep[c] {
				continue
			}
			b.WriteString("<" + c.Data)
			for _, a := range c.Attr {
				if a.Key == t.doc.uidKey || keptAttributes[a.Key] {
					b.WriteString(" " + a.Key + "=\"" + html.EscapeString(a.Val) + "\"")
				}
			}
			b.WriteString(">")
			b.WriteString(html.EscapeString(directText(c)))
			visit(c)
			b.WriteString("</" + c.Data + ">")
		}
	}
	visit(t.doc.root)
	return gohtml.Format(b.String())
}

// word caps tried before any candidate is dropped
var wordCaps = []int{24, 12, 6, 3}

type TruncateResult struct {
	Text         string
	Tokens       int
	Attempts     int
	WithinBudget bool
	// Dropped lists candidates removed from the tree, worst ranked first.
	Dropped []string
}

// Truncate fits the rendered tree into budget. Long text and attribute values
// are shortened first, then the worst ranked candidates are dropped together
// with their children. Every intermediate rendering is balanced.
func (t *Tree) Truncate(budget int, count func(string) int, options *truncation.Options) TruncateResult {
	text := t.Render(RenderOptions{})
	res := TruncateResult{Text: text, Tokens: count(text)}
	if res.Tokens <= budget {
		res.WithinBudget = true
		return res
	}
	maxWords := 0
	for _, words := range wordCaps {
		maxWords = words
		text = t.Render(RenderOptions{MaxWords: words})
		n := count(text)
		res.Attempts++
		if n <= res.Tokens {
			res.Text, res.Tokens = text, n
		}
		if n <= budget {
			res.WithinBudget = true
			return res
		}
	}

	// Candidates that contain other candidates stay rendered as long as any
	// descendant does, so they are not units of their own. They go together
	// with their last kept descendant.
	var worstFirst []string
	for i := len(t.uids) - 1; i >= 0; i-- {
		if !t.containsCandidate(t.uids[i]) {
			worstFirst = append(worstFirst, t.uids[i])
		}
	}
	droppedOf := func(head, tail []string) map[string]bool {
		kept := make(map[string]bool, len(head)+len(tail))
		for _, uid := range head {
			kept[uid] = true
		}
		for _, uid := range tail {
			kept[uid] = true
		}
		dropped := make(map[string]bool)
		for _, uid := range t.uids {
			if !kept[uid] && !t.containsKept(uid, kept) {
				dropped[uid] = true
			}
		}
		return dropped
	}
	render := func(head, tail []string) string {
		return t.Render(RenderOptions{MaxWords: maxWords, Dropped: droppedOf(head, tail)})
	}
	opts := truncation.Options{}
	if options != nil {
		opts = *options
	}
	opts.Side = truncation.SideLeft
	reduced := truncation.Reduce(worstFirst, budget, func(head, tail []string) int {
		return count(render(head, tail))
	}, &opts)
	res.Attempts += reduced.Attempts
	if reduced.Tokens <= res.Tokens {
		res.Text = render(reduced.Head, reduced.Tail)
		res.Tokens = reduced.Tokens
		dropped := droppedOf(reduced.Head, reduced.Tail)
		for i := len(t.uids) - 1; i >= 0; i-- {
			if dropped[t.uids[i]] {
				res.Dropped = append(res.Dropped, t.uids[i])
			}
		}
	}
	res.WithinBudget = reduced.WithinBudget
	return res
}

// containsCandidate reports whether another candidate sits below uid.
func (t *Tree) containsCandidate(uid string) bool {
	for _, other := range t.uids {
		if other != uid && isAncestor(t.doc.byUID[uid], t.doc.byUID[other]) {
			return true
		}
	}
	return false
}

func (t *Tree) containsKept(uid string, kept map[string]bool) bool {
	for other := range kept {
		if other != uid && isAncestor(t.doc.byUID[uid], t.doc.byUID[other]) {
			return true
		}
	}
	return false
}

func isAncestor(a, n *html.Node) bool {
	for p := n.Parent; p != nil; p = p.Parent {
		if p == a {
			return true
		}
	}
	return false
}
