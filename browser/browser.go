// Package browser drives a Chrome instance through chromedp: it tags the page
// elements with uids, captures the page state the navigator reads and
// executes predicted actions.
package browser

import (
	"context"
	"sync"
	"time"

	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"webnavigator/turn"
)

const (
	DefaultUIDKey      = "data-webtasks-id"
	DefaultActionDelay = time.Second
)

type Options struct {
	Headful                           bool
	AttemptToDisableAutomationMessage bool
	UIDKey                            string
	// ActionDelay is waited after every action so the page can settle.
	ActionDelay time.Duration
	Logger      *zerolog.Logger
}

type Browser struct {
	mu          *sync.Mutex
	ctx         context.Context
	cancel      context.CancelFunc
	uidKey      string
	actionDelay time.Duration
	logger      zerolog.Logger
}

// Action is a navigator prediction for the browser to carry out.
type Action struct {
	Intent turn.Intent
	Args   map[string]any
	// UID and XPath of the target element, empty for intents without one.
	UID   string
	XPath string
}

// Snapshot is the page state after tagging.
type Snapshot struct {
	HTML     string
	BBoxes   map[string]turn.BoundingBox
	Metadata *turn.Metadata
}

func New(ctx context.Context, options *Options) *Browser {
	if options == nil {
		options = &Options{}
	}
	ops := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	if options.Headful {
		ops = append(ops, chromedp.Flag("headless", false))
	}
	if options.AttemptToDisableAutomationMessage {
		ops = append(ops, chromedp.UserAgent("Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/118.0.0.0 Safari/537.36"))
		ops = append(ops, chromedp.Flag("enable-automation", false))
	}
	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, ops...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)
	b := &Browser{
		mu:  &sync.Mutex{},
		ctx: browserCtx,
		cancel: func() {
			browserCancel()
			allocCancel()
		},
		uidKey:      options.UIDKey,
		actionDelay: options.ActionDelay,
		logger:      zerolog.Nop(),
	}
	if b.uidKey == "" {
		b.uidKey = DefaultUIDKey
	}
	if b.actionDelay == 0 {
		b.actionDelay = DefaultActionDelay
	}
	if options.Logger != nil {
		b.logger = *options.Logger
	}
	return b
}

func (b *Browser) UIDKey() string {
	return b.uidKey
}

func (b *Browser) Close() {
	b.cancel()
}

func (b *Browser) run(actions ...chromedp.Action) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return chromedp.Run(b.ctx, actions...)
}

func awaitPromise(p *runtime.EvaluateParams) *runtime.EvaluateParams {
	return p.WithAwaitPromise(true)
}

func (b *Browser) Navigate(u string) error {
	canonical, err := GetCanonicalURL(u)
	if err != nil {
		return errors.Wrap(err, "error ensuring scheme")
	}
	if valid, err := IsValidURL(canonical); !valid {
		return errors.Wrapf(err, "invalid url %s", canonical)
	}
	return b.run(chromedp.Navigate(canonical), chromedp.Sleep(b.actionDelay))
}

// Capture tags the page and returns its html, bounding boxes and metadata.
func (b *Browser) Capture() (*Snapshot, error) {
	var tagged struct {
		BBoxes   map[string]turn.BoundingBox `json:"bboxes"`
		Metadata turn.Metadata               `json:"metadata"`
	}
	if err := b.run(chromedp.Evaluate(TagElementsScript(b.uidKey), &tagged, awaitPromise)); err != nil {
		return nil, errors.Wrap(err, "tag elements")
	}
	html, err := b.getHTML()
	if err != nil {
		return nil, errors.Wrapf(err, "get html for %s", tagged.Metadata.URL)
	}
	b.logger.Debug().
		Str("url", tagged.Metadata.URL).
		Int("elements", len(tagged.BBoxes)).
		Msg("captured page")
	return &Snapshot{HTML: html, BBoxes: tagged.BBoxes, Metadata: &tagged.Metadata}, nil
}

func (b *Browser) getHTML() (string, error) {
	var html string
	err := b.run(chromedp.ActionFunc(func(ctx context.Context) error {
		node, err := dom.GetDocument().Do(ctx)
		if err != nil {
			return err
		}
		html, err = dom.GetOuterHTML().WithNodeID(node.NodeID).Do(ctx)
		return err
	}))
	return html, err
}

func (b *Browser) describe(uid, xpath string) (*turn.Element, error) {
	var element turn.Element
	if err := b.run(chromedp.Evaluate(DescribeElementScript(b.uidKey, uid), &element, awaitPromise)); err != nil {
		return nil, errors.Wrapf(err, "element %s", uid)
	}
	element.XPath = xpath
	return &element, nil
}

// Execute carries out the action and returns the turn to report back to the
// navigator, carrying the page state after the action.
func (b *Browser) Execute(a Action) (*turn.PrevTurn, error) {
	prev := &turn.PrevTurn{Intent: string(a.Intent)}
	if a.Intent == turn.IntentSay {
		utterance := StringArg(a.Args, "utterance")
		prev.Utterance = &utterance
		return prev, nil
	}

	var element *turn.Element
	if a.Intent.IsElementIntent() {
		if a.UID == "" {
			return nil, errors.Errorf("%s needs an element", a.Intent)
		}
		var err error
		if element, err = b.describe(a.UID, a.XPath); err != nil {
			return nil, err
		}
		prev.Element = element
	}
	query := ElementQuery(b.uidKey, a.UID)

	var err error
	switch a.Intent {
	case turn.IntentLoad:
		err = b.Navigate(StringArg(a.Args, "url"))
	case turn.IntentScroll:
		x, y := IntArg(a.Args, "x"), IntArg(a.Args, "y")
		prev.ScrollX, prev.ScrollY = &x, &y
		err = b.run(chromedp.Evaluate(ScrollScript(x, y), nil), chromedp.Sleep(b.actionDelay))
	case turn.IntentClick:
		err = b.run(chromedp.Click(query, chromedp.ByQuery), chromedp.Sleep(b.actionDelay))
	case turn.IntentTextInput:
		text := StringArg(a.Args, "text")
		prev.Text = &text
		err = b.run(chromedp.SendKeys(query, text, chromedp.ByQuery), chromedp.Sleep(b.actionDelay))
	case turn.IntentChange:
		value := StringArg(a.Args, "value")
		prev.Value = &value
		err = b.run(chromedp.Evaluate(SetValueScript(b.uidKey, a.UID, value), nil), chromedp.Sleep(b.actionDelay))
	case turn.IntentSubmit:
		err = b.run(chromedp.Evaluate(SubmitScript(b.uidKey, a.UID), nil), chromedp.Sleep(b.actionDelay))
	default:
		return nil, errors.Errorf("unsupported browser action %q", a.Intent)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "error performing %s", a.Intent)
	}

	snapshot, err := b.Capture()
	if err != nil {
		return nil, err
	}
	prev.HTML = snapshot.HTML
	prev.BBoxes = snapshot.BBoxes
	prev.Metadata = snapshot.Metadata
	return prev, nil
}

// Load navigates to u and reports it as a load turn.
func (b *Browser) Load(u string) (*turn.PrevTurn, error) {
	return b.Execute(Action{Intent: turn.IntentLoad, Args: map[string]any{"url": u}})
}
