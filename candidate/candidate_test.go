package candidate

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"webnavigator/turn"
)

const uidKey = "data-uid"

func box(x, y, w, h float64) turn.BoundingBox {
	return turn.BoundingBox{X: x, Y: y, Width: w, Height: h, Left: x, Top: y, Right: x + w, Bottom: y + h}
}

func TestBuildRecords(t *testing.T) {
	page := &turn.Page{
		HTML: `<html><body>
<a data-uid="a1" href="/pricing" class="nav link">Pricing<span>new</span><i></i><b></b></a>
<button data-uid="b2">Buy</button>
<div data-uid="off">offscreen</div>
<div data-uid="tiny">tiny</div>
<div data-uid="nobox">no box</div>
</body></html>`,
		BBoxes: map[string]turn.BoundingBox{
			"a1":   box(10.04, 20.56, 100, 30),
			"b2":   box(200, 20, 50, 30),
			"off":  box(10, 5000, 100, 30),
			"tiny": box(10, 10, 5, 5),
		},
		Metadata: &turn.Metadata{ViewportHeight: 800, ViewportWidth: 1200},
	}

	records, err := BuildRecords(page, uidKey)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "a1", records[0].UID)
	assert.Equal(t, "b2", records[1].UID)

	elem := records[0].Element
	assert.Equal(t, "a", elem.Tag)
	assert.Equal(t, "/html/body/a", elem.XPath)
	assert.Equal(t, "Pricing", elem.Text)
	assert.Equal(t, "x=10.0 y=20.6 width=100.0 height=30.0", elem.BBox)
	assert.Equal(t, "data-uid='a1' href='/pricing' class='nav link'", elem.Attributes)
	assert.Equal(t, "span i", elem.Children)
	assert.Equal(t,
		"[[tag]] a\n[[xpath]] /html/body/a\n[[text]] Pricing\n[[bbox]] x=10.0 y=20.6 width=100.0 height=30.0\n[[attributes]] data-uid='a1' href='/pricing' class='nav link'\n[[children]] span i",
		records[0].Doc)
	assert.Zero(t, records[0].Rank)
}

func TestBuildRecordsWithoutPage(t *testing.T) {
	records, err := BuildRecords(nil, uidKey)
	require.NoError(t, err)
	assert.Empty(t, records)

	records, err = BuildRecords(&turn.Page{HTML: "<p></p>"}, uidKey)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestShorten(t *testing.T) {
	assert.Equal(t, "short", Shorten("short", 10))
	long := strings.Repeat("a", 50) + strings.Repeat("b", 50) + "c"
	got := Shorten(long, 10)
	assert.Equal(t, "aaa...bbbc", got)
	assert.Len(t, []rune(Shorten(strings.Repeat("é", 300), MaxAttrLength)), MaxAttrLength)
}

func TestPyRepr(t *testing.T) {
	assert.Equal(t, `'plain'`, pyRepr("plain"))
	assert.Equal(t, `"it's"`, pyRepr("it's"))
	assert.Equal(t, `'both \' and "'`, pyRepr(`both ' and "`))
	assert.Equal(t, `'a\nb'`, pyRepr("a\nb"))
}

func TestAssignRanksDistinctScores(t *testing.T) {
	records := []Record{{UID: "a"}, {UID: "b"}, {UID: "c"}, {UID: "d"}}
	require.NoError(t, AssignRanks(records, []float64{0.1, 0.9, 0.5, 0.7}))
	got := map[string]int{}
	for _, r := range records {
		got[r.UID] = r.Rank
	}
	assert.Equal(t, map[string]int{"b": 1, "d": 2, "c": 3, "a": 4}, got)
	assert.Equal(t, 0.9, records[1].Score)
}

func TestAssignRanksTiesKeepInputOrder(t *testing.T) {
	records := []Record{{UID: "a"}, {UID: "b"}, {UID: "c"}}
	require.NoError(t, AssignRanks(records, []float64{0.5, 0.8, 0.5}))
	assert.Equal(t, 2, records[0].Rank)
	assert.Equal(t, 1, records[1].Rank)
	assert.Equal(t, 3, records[2].Rank)
}

func TestAssignRanksLengthMismatch(t *testing.T) {
	assert.Error(t, AssignRanks([]Record{{UID: "a"}}, []float64{1, 2}))
}

func TestFallbackRanks(t *testing.T) {
	records := []Record{{UID: "a"}, {UID: "b"}}
	AssignFallbackRanks(records)
	assert.Equal(t, 1, records[0].Rank)
	assert.Equal(t, 2, records[1].Rank)
	assert.Equal(t, float64(FallbackScore), records[1].Score)
}

func TestTopAndFormat(t *testing.T) {
	records := []Record{
		{UID: "a", Doc: "[[tag]] a\n[[text]] x", Rank: 3},
		{UID: "b", Doc: "[[tag]] b", Rank: 1},
		{UID: "c", Doc: "[[tag]] c\n", Rank: 2},
	}
	top := Top(records, 2)
	assert.Equal(t, []string{"b", "c"}, UIDs(top))
	assert.Equal(t, "(uid = b) [[tag]] b\n(uid = c) [[tag]] c\n", FormatList(top))
	assert.Equal(t, "(uid = a) [[tag]] a [[text]] x\n", FormatEntry(records[0]))
	assert.Equal(t, "a", records[0].UID, "input is not reordered")
}

func TestQuery(t *testing.T) {
	assert.Equal(t,
		"Viewport(height=600, width=800) ---- Instructor Utterances: hi ---- Previous Turns:click(uid=\"a\")",
		Query(600, 800, "hi", `click(uid="a")`))
}
