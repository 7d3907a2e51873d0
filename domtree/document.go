// Package domtree parses page snapshots and renders the part of the DOM
// around candidate elements as a compact, always balanced tree string.
package domtree

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/net/html"
)

// Document is a parsed page snapshot indexed by the uid attribute.
type Document struct {
	root   *html.Node
	uidKey string
	byUID  map[string]*html.Node
}

func Parse(src string, uidKey string) (*Document, error) {
	root, err := html.Parse(strings.NewReader(src))
	if err != nil {
		return nil, errors.Wrap(err, "parse html")
	}
	d := &Document{
		root:   root,
		uidKey: uidKey,
		byUID:  make(map[string]*html.Node),
	}
	d.index(root)
	return d, nil
}

func (d *Document) index(n *html.Node) {
	if n.Type == html.ElementNode {
		if uid, ok := attr(n, d.uidKey); ok && uid != "" {
			if _, seen := d.byUID[uid]; !seen {
				d.byUID[uid] = n
			}
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		d.index(c)
	}
}

func (d *Document) UIDKey() string {
	return d.uidKey
}

// XPath returns the absolute path of the element tagged with uid, or "" when
// no element carries it.
func (d *Document) XPath(uid string) string {
	n, ok := d.byUID[uid]
	if !ok {
		return ""
	}
	return XPath(n)
}

// XPath returns an absolute path such as /html/body/div[2]/a. Positions are
// only written when the parent has several children with the same tag.
func XPath(n *html.Node) string {
	var parts []string
	for cur := n; cur != nil && cur.Type == html.ElementNode; cur = cur.Parent {
		part := cur.Data
		pos, total := 0, 0
		if cur.Parent != nil {
			for s := cur.Parent.FirstChild; s != nil; s = s.NextSibling {
				if s.Type == html.ElementNode && s.Data == cur.Data {
					total++
					if s == cur {
						pos = total
					}
				}
			}
		}
		if total > 1 {
			part = fmt.Sprintf("%s[%d]", part, pos)
		}
		parts = append(parts, part)
	}
	for i, j := 0, len(parts)-1; i < j; i, j = i+1, j-1 {
		parts[i], parts[j] = parts[j], parts[i]
	}
	return "/" + strings.Join(parts, "/")
}

func attr(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

func buildAttrMapFromNode(n *html.Node) map[string]string {
	attrMap := make(map[string]string)
	for _, a := range n.Attr {
		attrMap[a.Key] = a.Val
	}
	return attrMap
}

var skippedTags = map[string]bool{
	"script":   true,
	"style":    true,
	"noscript": true,
	"template": true,
	"meta":     true,
	"link":     true,
	"head":     true,
	"path":     true,
}

// shouldKeepNode drops non-content tags and elements that are hidden through
// attributes or inline style.
func shouldKeepNode(n *html.Node) bool {
	if n == nil || n.Type != html.ElementNode {
		return false
	}
	if skippedTags[n.Data] {
		return false
	}
	attrMap := buildAttrMapFromNode(n)
	if (n.Data == "input" || n.Data == "textarea") && attrMap["type"] == "hidden" {
		return false
	}
	if attrMap["aria-hidden"] == "true" {
		return false
	}
	if _, ok := attrMap["hidden"]; ok {
		return false
	}
	if style, ok := attrMap["style"]; ok {
		compact := strings.ReplaceAll(style, " ", "")
		for _, hidden := range []string{"display:none", "visibility:hidden", "opacity:0;"} {
			if strings.Contains(compact+";", hidden) {
				return false
			}
		}
	}
	return true
}

// directText joins the text children of n with whitespace collapsed.
func directText(n *html.Node) string {
	var parts []string
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.TextNode {
			if t := strings.Join(strings.Fields(c.Data), " "); t != "" {
				parts = append(parts, t)
			}
		}
	}
	return strings.Join(parts, " ")
}
