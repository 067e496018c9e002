// devtools-protocol - a Go CDP pipe-transport broker.
// Licensed under the GNU Affero General Public License v3.0 or later.
// See https://www.gnu.org/licenses/ for details.

// Package browser composes the Pipe Transport, Broker, Session/Target
// facade, and Process Supervisor into the Public Browser Entry described
// in spec §4.8: scoped-acquisition semantics (open/close with guaranteed
// release of the child process and its temp directory) in both a
// blocking and a cooperative-concurrency flavor, grounded on
// common/browser.go's NewBrowser/connect/initEvents and
// devtools/browser.py's __aenter__/_open_async/populate_targets dual
// shape (SPEC_FULL.md §5).
package browser

import (
	"context"
	"fmt"
	"sync"

	"github.com/ayjayt/devtools-protocol/broker"
	"github.com/ayjayt/devtools-protocol/internal/log"
	"github.com/ayjayt/devtools-protocol/session"
	"github.com/ayjayt/devtools-protocol/supervisor"
)

const browserTargetID = "0"

// Browser is the ready-to-use public entry point: one child process, one
// Broker, and the set of page targets discovered or created since open.
type Browser struct {
	sup    *supervisor.Supervisor
	broker *broker.Broker
	logger log.Logger

	mu      sync.Mutex
	tabs    map[string]*tab
	browser *session.Target
}

type tab struct {
	target  *session.Target
	session *session.Session
}

// Open launches a browser per cfg and blocks until its initial set of
// page targets has been discovered and attached (populateTargets), per
// spec §4.8's blocking shape.
func Open(ctx context.Context, cfg supervisor.Config, logger log.Logger) (*Browser, error) {
	b, err := newBrowser(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	if err := b.populateTargets(ctx); err != nil {
		_ = b.Close(ctx)
		return nil, err
	}
	return b, nil
}

// BrowserFuture is the cooperative shape's handle: it resolves to a
// ready *Browser once populateTargets completes, matching spec §4.8's
// "construct returns a future that resolves to the ready Browser".
type BrowserFuture struct {
	ch chan openResult
}

type openResult struct {
	browser *Browser
	err     error
}

// Wait blocks until the future resolves or ctx is done.
func (f *BrowserFuture) Wait(ctx context.Context) (*Browser, error) {
	select {
	case r := <-f.ch:
		return r.browser, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// OpenAsync is the cooperative shape of Open: it returns immediately with
// a BrowserFuture, doing the launch and populateTargets work on its own
// goroutine so the caller's scheduler is never blocked on either the
// subprocess spawn or the initial Target.getTargets round trip.
func OpenAsync(ctx context.Context, cfg supervisor.Config, logger log.Logger) *BrowserFuture {
	future := &BrowserFuture{ch: make(chan openResult, 1)}
	go func() {
		b, err := Open(ctx, cfg, logger)
		future.ch <- openResult{browser: b, err: err}
	}()
	return future
}

// newBrowser is the pure core both Open and OpenAsync build on, per spec
// §9's "Factor the broker into a pure state machine plus two thin
// schedulers" design note: the scheduling distinction lives entirely in
// how the caller chooses to wait, not in the construction logic itself.
func newBrowser(ctx context.Context, cfg supervisor.Config, logger log.Logger) (*Browser, error) {
	if logger == nil {
		logger = log.NopLogger()
	}

	sup, transport, err := supervisor.Launch(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("browser: launch: %w", err)
	}

	brk := broker.New(transport, logger)
	b := &Browser{
		sup:    sup,
		broker: brk,
		logger: logger,
		tabs:   make(map[string]*tab),
	}
	b.browser = session.New(brk, browserTargetID)
	return b, nil
}

// populateTargets sends Target.getTargets, adds each page-type target
// not already known, and attaches a primary session to each (spec
// §4.8).
func (b *Browser) populateTargets(ctx context.Context) error {
	infos, err := b.broker.GetTargets(ctx)
	if err != nil {
		return fmt.Errorf("browser: populate targets: %w", err)
	}

	for _, info := range infos {
		if info.Type != "page" {
			continue
		}
		b.mu.Lock()
		_, known := b.tabs[info.TargetID]
		b.mu.Unlock()
		if known {
			continue
		}
		if _, err := b.attachTab(ctx, info.TargetID); err != nil {
			return fmt.Errorf("browser: attach discovered target %s: %w", info.TargetID, err)
		}
	}
	return nil
}

func (b *Browser) attachTab(ctx context.Context, targetID string) (*tab, error) {
	target := session.New(b.broker, targetID)
	sess, err := target.CreateSession(ctx)
	if err != nil {
		return nil, err
	}
	t := &tab{target: target, session: sess}
	b.mu.Lock()
	b.tabs[targetID] = t
	b.mu.Unlock()
	return t, nil
}

// Broker exposes the underlying broker for callers that need the raw
// Session/Target facade directly (e.g. to subscribe to browser-level
// events).
func (b *Browser) Broker() *broker.Broker { return b.broker }

// BrowserTarget returns the pseudo-Target handle for the browser itself
// ("0"), usable to subscribe to browser-level events on its implicit
// session (spec §3, "the empty string denotes the implicit browser-level
// session").
func (b *Browser) BrowserTarget() *session.Target { return b.browser }

// PrimarySession returns the primary session attached to targetID, if
// it is a known tab.
func (b *Browser) PrimarySession(targetID string) (*session.Session, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	t, ok := b.tabs[targetID]
	if !ok {
		return nil, false
	}
	return t.session, true
}

// Tabs returns the set of currently known page targets.
func (b *Browser) Tabs() []*session.Target {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]*session.Target, 0, len(b.tabs))
	for _, t := range b.tabs {
		out = append(out, t.target)
	}
	return out
}

// CreateTab sends Target.createTarget for url and attaches a primary
// session to it, per SPEC_FULL.md's supplemented-features #2
// (devtools/browser.py:create_tab).
func (b *Browser) CreateTab(ctx context.Context, url string) (*session.Target, error) {
	targetID, err := b.broker.CreateTarget(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("browser: create tab: %w", err)
	}
	t, err := b.attachTab(ctx, targetID)
	if err != nil {
		return nil, fmt.Errorf("browser: attach new tab %s: %w", targetID, err)
	}
	return t.target, nil
}

// CloseTab sends Target.closeTarget for the tab and removes it from the
// known-tabs set, per SPEC_FULL.md's supplemented-features #2
// (devtools/browser.py:close_tab). Sessions attached to the target are
// torn down by broker.CloseTarget once the close succeeds; CloseTab only
// drops the local bookkeeping entry.
func (b *Browser) CloseTab(ctx context.Context, targetID string) error {
	if err := b.broker.CloseTarget(ctx, targetID); err != nil {
		return fmt.Errorf("browser: close tab %s: %w", targetID, err)
	}
	b.mu.Lock()
	delete(b.tabs, targetID)
	b.mu.Unlock()
	return nil
}

// CreateSession attaches a session directly to the browser-level target
// (Target.attachToBrowserTarget), per SPEC_FULL.md's supplemented-
// features #1: this path is retained but gated by a single warning,
// since it "only works with some versions of Chrome" (devtools/
// browser.py:create_session).
func (b *Browser) CreateSession(ctx context.Context) (*session.Session, error) {
	b.logger.Warnf("browser", "Browser.CreateSession: attaching directly to the browser target is experimental and depends on the browser build")

	sessionID, err := b.broker.AttachBrowserSession(ctx)
	if err != nil {
		return nil, fmt.Errorf("browser: create session: %w", err)
	}
	return session.NewSession(b.broker, sessionID), nil
}

// Close runs the supervisor's shutdown state machine (Browser.close,
// then escalating termination, then cleanup), and closes the broker so
// its read loop stops and every pending request is drained with
// broker.ErrBrowserClosed (spec §4.7, §4.8).
func (b *Browser) Close(ctx context.Context) error {
	shutdownErr := b.sup.Shutdown(ctx, func(ctx context.Context) error {
		_, err := b.broker.SendCommand(ctx, "", "Browser.close", struct{}{})
		return err
	})
	brokerErr := b.broker.Close()
	if shutdownErr != nil {
		return shutdownErr
	}
	return brokerErr
}
