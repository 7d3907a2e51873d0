// Package resolver maps a predicted action back to the page element it acts
// on.
package resolver

import (
	"fmt"
	"sort"

	"webnavigator/domtree"
	"webnavigator/turn"
)

// Element is the minimal descriptor needed to find an element again.
type Element struct {
	Attributes map[string]string `json:"attributes"`
	BBox       turn.BoundingBox  `json:"bbox"`
	XPath      string            `json:"xpath"`
}

func (e *Element) UID(uidKey string) string {
	if e == nil {
		return ""
	}
	return e.Attributes[uidKey]
}

// Resolve returns the element targeted by intent and args on page, or nil.
// Only element-bearing intents resolve. A uid argument wins, then x/y, then
// the center of top/left/right/bottom. Coordinates must fall inside a box;
// there is no nearest-box fallback.
func Resolve(intent turn.Intent, args map[string]any, page *turn.Page, uidKey string) *Element {
	if !intent.IsElementIntent() {
		return nil
	}
	uid := resolveUID(args, page, uidKey)
	if uid == "" {
		return nil
	}
	return describe(uid, page, uidKey)
}

func resolveUID(args map[string]any, page *turn.Page, uidKey string) string {
	if v, ok := args["uid"]; ok {
		return stringArg(v)
	} else if v, ok := args[uidKey]; ok && uidKey != "" {
		return stringArg(v)
	}
	_, hasX := args["x"]
	_, hasY := args["y"]
	if hasX && hasY {
		x, okX := number(args["x"])
		y, okY := number(args["y"])
		if !okX || !okY {
			return ""
		}
		return UIDAt(page, x, y)
	}
	if x, y, ok := cornersCenter(args); ok {
		return UIDAt(page, x, y)
	}
	return ""
}

func cornersCenter(args map[string]any) (float64, float64, bool) {
	var v [4]float64
	for i, k := range []string{"top", "left", "right", "bottom"} {
		raw, ok := args[k]
		if !ok {
			return 0, 0, false
		}
		n, ok := number(raw)
		if !ok {
			return 0, 0, false
		}
		v[i] = n
	}
	top, left, right, bottom := v[0], v[1], v[2], v[3]
	return (left + right) / 2, (top + bottom) / 2, true
}

// UIDAt returns the uid of the smallest box containing (x, y). Ties on area go
// to the smallest uid. It returns "" when no box contains the point.
func UIDAt(page *turn.Page, x, y float64) string {
	if !page.HasBBoxes() {
		return ""
	}
	uids := make([]string, 0, len(page.BBoxes))
	for uid := range page.BBoxes {
		uids = append(uids, uid)
	}
	sort.Strings(uids)
	best := ""
	bestArea := 0.0
	for _, uid := range uids {
		b := page.BBoxes[uid]
		if !b.Contains(x, y) {
			continue
		}
		if area := b.Area(); best == "" || area < bestArea {
			best, bestArea = uid, area
		}
	}
	return best
}

func describe(uid string, page *turn.Page, uidKey string) *Element {
	el := &Element{
		Attributes: map[string]string{uidKey: uid},
	}
	if page == nil {
		return el
	}
	if b, ok := page.BBoxes[uid]; ok {
		el.BBox = b
	}
	if page.HasHTML() {
		if doc, err := domtree.Parse(page.HTML, uidKey); err == nil {
			el.XPath = doc.XPath(uid)
		}
	}
	return el
}

func stringArg(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	default:
		return fmt.Sprint(x)
	}
}

func number(v any) (float64, bool) {
	switch x := v.(type) {
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	case float64:
		return x, true
	case float32:
		return float64(x), true
	default:
		return 0, false
	}
}
