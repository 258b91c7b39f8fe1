// internal/page/document.go
package page

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/andybalholm/cascadia"
	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// overlayAttr marks the root element of a mounted overlay.
const overlayAttr = "data-cb-overlay"

// Document is an in-memory Page backed by a parsed HTML tree. Mutating
// helpers emit the same signals a browser tab would.
type Document struct {
	mu       sync.Mutex
	root     *html.Node
	location string
	caps     Capabilities

	keys    map[*html.Node]string
	nextKey int

	signals chan Signal
	closed  bool
}

// DocumentOption customizes a Document.
type DocumentOption func(*Document)

// WithoutForwardNavigation makes the document behave like a host whose
// in-app navigation cannot be observed.
func WithoutForwardNavigation() DocumentOption {
	return func(d *Document) { d.caps.ForwardNavigation = false }
}

// WithSignalBuffer sets the signal queue depth.
func WithSignalBuffer(n int) DocumentOption {
	return func(d *Document) { d.signals = make(chan Signal, n) }
}

// NewDocument parses markup as the page currently at location.
func NewDocument(location, markup string, opts ...DocumentOption) (*Document, error) {
	root, err := html.Parse(strings.NewReader(markup))
	if err != nil {
		return nil, fmt.Errorf("failed to parse document: %w", err)
	}
	d := &Document{
		root:     root,
		location: location,
		caps:     Capabilities{ForwardNavigation: true},
		keys:     make(map[*html.Node]string),
		signals:  make(chan Signal, 64),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

func (d *Document) Location(ctx context.Context) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.location, nil
}

func (d *Document) QueryOne(ctx context.Context, selector string) (*Node, error) {
	sel, err := cascadia.Compile(selector)
	if err != nil {
		return nil, fmt.Errorf("invalid selector %q: %w", selector, err)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	n := sel.MatchFirst(d.root)
	if n == nil {
		return nil, nil
	}
	node := d.snapshot(n)
	return &node, nil
}

func (d *Document) QueryAll(ctx context.Context, selector string) ([]Node, error) {
	sel, err := cascadia.Compile(selector)
	if err != nil {
		return nil, fmt.Errorf("invalid selector %q: %w", selector, err)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	matches := sel.MatchAll(d.root)
	nodes := make([]Node, 0, len(matches))
	for _, n := range matches {
		nodes = append(nodes, d.snapshot(n))
	}
	return nodes, nil
}

func (d *Document) QueryAllWithin(ctx context.Context, scope, selector string) ([]Node, error) {
	scopeSel, err := cascadia.Compile(scope)
	if err != nil {
		return nil, fmt.Errorf("invalid selector %q: %w", scope, err)
	}
	sel, err := cascadia.Compile(selector)
	if err != nil {
		return nil, fmt.Errorf("invalid selector %q: %w", selector, err)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	container := scopeSel.MatchFirst(d.root)
	if container == nil {
		return nil, nil
	}
	var nodes []Node
	for c := container.FirstChild; c != nil; c = c.NextSibling {
		for _, n := range sel.MatchAll(c) {
			nodes = append(nodes, d.snapshot(n))
		}
	}
	return nodes, nil
}

func (d *Document) Exists(ctx context.Context, id string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	el, err := d.findByID(id)
	if err != nil {
		return false, err
	}
	return el != nil, nil
}

func (d *Document) Mount(ctx context.Context, id, markup string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	el, err := d.findByID(id)
	if err != nil {
		return err
	}
	if el == nil {
		body := htmlquery.FindOne(d.root, "//body")
		if body == nil {
			return fmt.Errorf("document has no body")
		}
		el = &html.Node{
			Type:     html.ElementNode,
			Data:     "div",
			DataAtom: atom.Div,
			Attr: []html.Attribute{
				{Key: "id", Val: id},
				{Key: overlayAttr, Val: id},
			},
		}
		body.AppendChild(el)
	}
	if err := setInnerHTML(el, markup); err != nil {
		return err
	}
	d.emitLocked(Signal{Kind: SignalMutation, Location: d.location})
	return nil
}

func (d *Document) Unmount(ctx context.Context, id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	el, err := d.findByID(id)
	if err != nil || el == nil {
		return err
	}
	el.Parent.RemoveChild(el)
	d.emitLocked(Signal{Kind: SignalMutation, Location: d.location})
	return nil
}

func (d *Document) Signals() <-chan Signal { return d.signals }

func (d *Document) Capabilities() Capabilities { return d.caps }

// Replace swaps the whole document for markup, as a client-side re-render
// would. Every node gets a fresh identity.
func (d *Document) Replace(markup string) error {
	root, err := html.Parse(strings.NewReader(markup))
	if err != nil {
		return fmt.Errorf("failed to parse document: %w", err)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.root = root
	d.keys = make(map[*html.Node]string)
	d.emitLocked(Signal{Kind: SignalMutation, Location: d.location})
	return nil
}

// SetText replaces the children of the first node matching selector with a
// text node. The node keeps its identity.
func (d *Document) SetText(selector, text string) error {
	sel, err := cascadia.Compile(selector)
	if err != nil {
		return fmt.Errorf("invalid selector %q: %w", selector, err)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	n := sel.MatchFirst(d.root)
	if n == nil {
		return fmt.Errorf("no node matches %q", selector)
	}
	removeChildren(n)
	n.AppendChild(&html.Node{Type: html.TextNode, Data: text})
	d.emitLocked(Signal{Kind: SignalMutation, Location: d.location})
	return nil
}

// Append parses markup and appends it to the first node matching selector.
func (d *Document) Append(selector, markup string) error {
	sel, err := cascadia.Compile(selector)
	if err != nil {
		return fmt.Errorf("invalid selector %q: %w", selector, err)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	n := sel.MatchFirst(d.root)
	if n == nil {
		return fmt.Errorf("no node matches %q", selector)
	}
	children, err := html.ParseFragment(strings.NewReader(markup), n)
	if err != nil {
		return fmt.Errorf("failed to parse fragment: %w", err)
	}
	for _, c := range children {
		n.AppendChild(c)
	}
	d.emitLocked(Signal{Kind: SignalMutation, Location: d.location})
	return nil
}

// Navigate moves the document to location with new content. kind is the
// navigation signal to raise; a pushstate on a document without forward
// navigation raises only the mutation.
func (d *Document) Navigate(location, markup string, kind SignalKind) error {
	root, err := html.Parse(strings.NewReader(markup))
	if err != nil {
		return fmt.Errorf("failed to parse document: %w", err)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.location = location
	d.root = root
	d.keys = make(map[*html.Node]string)
	if kind.IsNavigation() && (kind != SignalPushState || d.caps.ForwardNavigation) {
		d.emitLocked(Signal{Kind: kind, Location: location})
	}
	d.emitLocked(Signal{Kind: SignalMutation, Location: location})
	return nil
}

// Click simulates a click on an overlay control.
func (d *Document) Click(action OverlayAction) {
	d.mu.Lock()
	defer d.mu.Unlock()
	a := action
	d.emitLocked(Signal{Kind: SignalOverlay, Location: d.location, Overlay: &a})
}

// MountedHTML returns the inner markup of the element with the given id.
func (d *Document) MountedHTML(id string) (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	el, err := d.findByID(id)
	if err != nil || el == nil {
		return "", false
	}
	return htmlquery.OutputHTML(el, false), true
}

// Count returns how many nodes match selector.
func (d *Document) Count(selector string) int {
	sel, err := cascadia.Compile(selector)
	if err != nil {
		return 0
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(sel.MatchAll(d.root))
}

// Close stops signal delivery.
func (d *Document) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.closed {
		d.closed = true
		close(d.signals)
	}
	return nil
}

func (d *Document) emitLocked(sig Signal) {
	if d.closed {
		return
	}
	select {
	case d.signals <- sig:
	default:
		// Mutation batches coalesce in a browser too; a full queue drops.
	}
}

func (d *Document) snapshot(n *html.Node) Node {
	key, ok := d.keys[n]
	if !ok {
		d.nextKey++
		key = fmt.Sprintf("n%d", d.nextKey)
		d.keys[n] = key
	}
	return Node{Key: key, Text: htmlquery.InnerText(n)}
}

func (d *Document) findByID(id string) (*html.Node, error) {
	if strings.ContainsAny(id, `'"`) {
		return nil, fmt.Errorf("invalid element id %q", id)
	}
	return htmlquery.FindOne(d.root, "//*[@id='"+id+"']"), nil
}

func setInnerHTML(el *html.Node, markup string) error {
	children, err := html.ParseFragment(strings.NewReader(markup), el)
	if err != nil {
		return fmt.Errorf("failed to parse fragment: %w", err)
	}
	removeChildren(el)
	for _, c := range children {
		el.AppendChild(c)
	}
	return nil
}

func removeChildren(n *html.Node) {
	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		n.RemoveChild(c)
		c = next
	}
}
