package turn

type BoundingBox struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
	Top    float64 `json:"top"`
	Left   float64 `json:"left"`
	Right  float64 `json:"right"`
	Bottom float64 `json:"bottom"`
}

// Contains reports whether the point lies inside the box, edges included.
func (b BoundingBox) Contains(x, y float64) bool {
	return b.Left <= x && x <= b.Right && b.Top <= y && y <= b.Bottom
}

func (b BoundingBox) Area() float64 {
	w := b.Right - b.Left
	h := b.Bottom - b.Top
	if w < 0 || h < 0 {
		return 0
	}
	return w * h
}

type Element struct {
	Attributes  map[string]any `json:"attributes"`
	BBox        BoundingBox    `json:"bbox"`
	TagName     string         `json:"tagName"`
	XPath       string         `json:"xpath"`
	TextContent string         `json:"textContent"`
}

type Metadata struct {
	MouseX         int     `json:"mouseX"`
	MouseY         int     `json:"mouseY"`
	TabID          float64 `json:"tabId"`
	URL            string  `json:"url"`
	ViewportHeight int     `json:"viewportHeight"`
	ViewportWidth  int     `json:"viewportWidth"`
	ZoomLevel      float64 `json:"zoomLevel"`
}

type TransitionProperties struct {
	TransitionType       string   `json:"transitionType,omitempty"`
	TransitionQualifiers []string `json:"transitionQualifiers,omitempty"`
	URL                  string   `json:"url,omitempty"`
}

// Page is the browser state a turn was recorded against.
type Page struct {
	HTML     string
	BBoxes   map[string]BoundingBox
	Metadata *Metadata
}

func (p *Page) HasHTML() bool {
	return p != nil && p.HTML != ""
}

func (p *Page) HasBBoxes() bool {
	return p != nil && len(p.BBoxes) > 0
}

func (p *Page) ViewportHeight() int {
	if p == nil || p.Metadata == nil {
		return 0
	}
	return p.Metadata.ViewportHeight
}

func (p *Page) ViewportWidth() int {
	if p == nil || p.Metadata == nil {
		return 0
	}
	return p.Metadata.ViewportWidth
}

func (p *Page) URL() string {
	if p == nil || p.Metadata == nil {
		return ""
	}
	return p.Metadata.URL
}
