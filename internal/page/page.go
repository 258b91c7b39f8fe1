// internal/page/page.go
package page

import (
	"context"
	"errors"
	"net/url"
)

// ErrClosed is returned by operations on a page that has been closed.
var ErrClosed = errors.New("page is closed")

// SignalKind classifies a page signal.
type SignalKind string

const (
	// SignalMutation is emitted once per observed mutation batch.
	SignalMutation SignalKind = "mutation"
	SignalLoad     SignalKind = "load"
	SignalPopState SignalKind = "popstate"
	// SignalPushState is best effort: some hosts navigate in ways that never
	// produce it.
	SignalPushState SignalKind = "pushstate"
	// SignalOverlay is a click on an overlay control.
	SignalOverlay SignalKind = "overlay"
)

// IsNavigation reports whether the signal announces a possible page change.
func (k SignalKind) IsNavigation() bool {
	switch k {
	case SignalLoad, SignalPopState, SignalPushState:
		return true
	}
	return false
}

// OverlayAction describes a click on a control inside a mounted overlay.
// Controls carry data-cb-action, data-cb-variant and data-cb-lang attributes.
type OverlayAction struct {
	OverlayID string `json:"id"`
	Action    string `json:"action"`
	Variant   string `json:"variant"`
	Language  string `json:"language"`
}

// Signal is an event raised by the page.
type Signal struct {
	Kind     SignalKind     `json:"kind"`
	Location string         `json:"location"`
	Overlay  *OverlayAction `json:"overlay,omitempty"`
}

// Node is a snapshot of a DOM node. Key stays the same for as long as the
// node instance lives; a re-rendered node gets a new key.
type Node struct {
	Key  string
	Text string
}

// Capabilities describes which signals a page can deliver.
type Capabilities struct {
	// ForwardNavigation is true when in-app forward navigation produces
	// SignalPushState.
	ForwardNavigation bool
}

// Page is the live document the page context observes and decorates.
type Page interface {
	Location(ctx context.Context) (string, error)
	// QueryOne returns nil when nothing matches.
	QueryOne(ctx context.Context, selector string) (*Node, error)
	QueryAll(ctx context.Context, selector string) ([]Node, error)
	// QueryAllWithin matches selector inside the first element matching
	// scope only. It returns no nodes when scope matches nothing.
	QueryAllWithin(ctx context.Context, scope, selector string) ([]Node, error)
	Exists(ctx context.Context, id string) (bool, error)
	// Mount creates (or replaces the contents of) the element with the given
	// id under the document body.
	Mount(ctx context.Context, id, html string) error
	Unmount(ctx context.Context, id string) error
	Signals() <-chan Signal
	Capabilities() Capabilities
}

// PathOf extracts the path component of a location, tolerating bare paths.
func PathOf(location string) string {
	u, err := url.Parse(location)
	if err != nil {
		return location
	}
	return u.Path
}
