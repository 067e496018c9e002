// devtools-protocol - a Go CDP pipe-transport broker.
// Licensed under the GNU Affero General Public License v3.0 or later.
// See https://www.gnu.org/licenses/ for details.

package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/ayjayt/devtools-protocol/internal/router"
	"github.com/ayjayt/devtools-protocol/wire"
)

// ErrNoPrimarySession is returned when a target with no attached sessions
// is asked to route a command to its primary session (spec §4.6).
var ErrNoPrimarySession = errors.New("broker: target has no primary session")

// TargetInfo mirrors the subset of CDP's TargetInfo the broker surfaces,
// per spec §8 scenario S1 (targetId, type).
type TargetInfo struct {
	TargetID string `json:"targetId"`
	Type     string `json:"type"`
	Title    string `json:"title"`
	URL      string `json:"url"`
}

// GetTargets sends Target.getTargets and returns the decoded target
// catalogue.
func (b *Broker) GetTargets(ctx context.Context) ([]TargetInfo, error) {
	msg, err := b.SendCommand(ctx, "", methodTargetGetTargets, struct{}{})
	if err != nil {
		return nil, err
	}
	if msg.Error != nil {
		return nil, &DevtoolsProtocolError{Error: msg.Error}
	}
	var result struct {
		TargetInfos []TargetInfo `json:"targetInfos"`
	}
	if err := json.Unmarshal(msg.Result, &result); err != nil {
		return nil, fmt.Errorf("broker: decode Target.getTargets result: %w", err)
	}
	return result.TargetInfos, nil
}

// CreateTarget sends Target.createTarget for url and registers the
// resulting target in the arena.
func (b *Broker) CreateTarget(ctx context.Context, url string) (targetID string, err error) {
	msg, err := b.SendCommand(ctx, "", methodTargetCreateTarget, map[string]string{"url": url})
	if err != nil {
		return "", err
	}
	if msg.Error != nil {
		return "", &DevtoolsProtocolError{Error: msg.Error}
	}
	var result struct {
		TargetID string `json:"targetId"`
	}
	if err := json.Unmarshal(msg.Result, &result); err != nil {
		return "", fmt.Errorf("broker: decode Target.createTarget result: %w", err)
	}
	b.mu.Lock()
	b.targets[result.TargetID] = &targetState{id: result.TargetID}
	b.mu.Unlock()
	return result.TargetID, nil
}

// CloseTarget sends Target.closeTarget and removes the target (and any
// sessions still attached to it) from the arena.
func (b *Broker) CloseTarget(ctx context.Context, targetID string) error {
	msg, err := b.SendCommand(ctx, "", methodTargetCloseTarget, map[string]string{"targetId": targetID})
	if err != nil {
		return err
	}
	if msg.Error != nil {
		return &DevtoolsProtocolError{Error: msg.Error}
	}
	b.removeTarget(targetID)
	return nil
}

// CreateSession sends Target.attachToTarget with flatten=true for
// targetID, registers the resulting Session, and attaches it to the
// target's session list (spec §4.6). If targetID is the pseudo-browser
// target ("0"), the caller is expected to have already logged the
// ExperimentalFeatureWarning (SPEC_FULL.md "Supplemented features" #1).
func (b *Broker) CreateSession(ctx context.Context, targetID string) (sessionID string, err error) {
	ctx, span := b.tracer.Start(ctx, "broker.CreateSession", trace.WithAttributes(
		attribute.String("cdp.target_id", targetID),
	))
	defer span.End()

	msg, err := b.SendCommand(ctx, "", methodTargetAttachToTarget, map[string]interface{}{
		"targetId": targetID,
		"flatten":  true,
	})
	if err != nil {
		span.RecordError(err)
		return "", err
	}
	if msg.Error != nil {
		err := &DevtoolsProtocolError{Error: msg.Error}
		span.RecordError(err)
		return "", err
	}
	var result struct {
		SessionID string `json:"sessionId"`
	}
	if err := json.Unmarshal(msg.Result, &result); err != nil {
		return "", fmt.Errorf("broker: decode Target.attachToTarget result: %w", err)
	}

	b.mu.Lock()
	b.sessions[result.SessionID] = &sessionState{id: result.SessionID, targetID: targetID, router: router.New()}
	if t, ok := b.targets[targetID]; ok {
		t.sessionOrder = append(t.sessionOrder, result.SessionID)
	} else {
		b.targets[targetID] = &targetState{id: targetID, sessionOrder: []string{result.SessionID}}
	}
	b.mu.Unlock()

	return result.SessionID, nil
}

// AttachBrowserSession sends Target.attachToBrowserTarget and registers
// the resulting Session against the pseudo-browser target "0", per
// SPEC_FULL.md's supplemented-features #1 (devtools/browser.py:
// create_session). Callers are expected to have already logged the
// ExperimentalFeatureWarning; the broker itself does not warn, since
// warning is a facade-layer concern (browser.Browser.CreateSession).
func (b *Broker) AttachBrowserSession(ctx context.Context) (sessionID string, err error) {
	msg, err := b.SendCommand(ctx, "", methodTargetAttachToBrowserTarget, struct{}{})
	if err != nil {
		return "", err
	}
	if msg.Error != nil {
		return "", &DevtoolsProtocolError{Error: msg.Error}
	}
	var result struct {
		SessionID string `json:"sessionId"`
	}
	if err := json.Unmarshal(msg.Result, &result); err != nil {
		return "", fmt.Errorf("broker: decode Target.attachToBrowserTarget result: %w", err)
	}

	b.mu.Lock()
	b.sessions[result.SessionID] = &sessionState{id: result.SessionID, targetID: browserTargetID, router: router.New()}
	if t, ok := b.targets[browserTargetID]; ok {
		t.sessionOrder = append(t.sessionOrder, result.SessionID)
	}
	b.mu.Unlock()

	return result.SessionID, nil
}

// CloseSession sends Target.detachFromTarget for sessionID and, on
// success, removes the Session from the arena.
func (b *Broker) CloseSession(ctx context.Context, sessionID string) error {
	msg, err := b.SendCommand(ctx, "", methodTargetDetachFromTarget, map[string]string{"sessionId": sessionID})
	if err != nil {
		return err
	}
	if msg.Error != nil {
		return &DevtoolsProtocolError{Error: msg.Error}
	}
	b.removeSession(sessionID, ErrBrowserClosed)
	return nil
}

// PrimarySessionID returns the first-inserted (primary) session ID
// attached to targetID, per spec §4.6 ("send_command without a session
// routes to the primary session").
func (b *Broker) PrimarySessionID(targetID string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	t, ok := b.targets[targetID]
	if !ok || len(t.sessionOrder) == 0 {
		return "", ErrNoPrimarySession
	}
	return t.sessionOrder[0], nil
}

// Subscribe registers handler under pattern on sessionID's router.
func (b *Broker) Subscribe(sessionID, pattern string, handler router.Handler, repeating bool) error {
	r, err := b.routerFor(sessionID)
	if err != nil {
		return err
	}
	r.Subscribe(pattern, handler, repeating)
	return nil
}

// Unsubscribe removes pattern from sessionID's router.
func (b *Broker) Unsubscribe(sessionID, pattern string) error {
	r, err := b.routerFor(sessionID)
	if err != nil {
		return err
	}
	r.Unsubscribe(pattern)
	return nil
}

// SubscribeOnce registers a one-shot subscription on sessionID's router.
func (b *Broker) SubscribeOnce(sessionID, pattern string) (*router.Future, error) {
	r, err := b.routerFor(sessionID)
	if err != nil {
		return nil, err
	}
	return r.SubscribeOnce(pattern), nil
}

func (b *Broker) routerFor(sessionID string) (*router.Router, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	sess, ok := b.sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("broker: unknown session %q", sessionID)
	}
	return sess.router, nil
}

// handleTargetLifecycleEvent keeps the arena in sync with
// Target.detachedFromTarget/targetDestroyed events, and installs the
// cooperative-shape detach handling described in spec §4.8: removing the
// session and draining its pending slots with a detached error.
// Target.attachedToTarget events reach it but change nothing; sessions
// are registered only by CreateSession and AttachBrowserSession.
func (b *Broker) handleTargetLifecycleEvent(msg *wire.Message) {
	switch msg.Method {
	case eventTargetDetachedFromTarget:
		var ev struct {
			SessionID string `json:"sessionId"`
		}
		if err := json.Unmarshal(msg.Params, &ev); err != nil {
			b.logger.Warnf("broker", "decode Target.detachedFromTarget: %v", err)
			return
		}
		b.removeSession(ev.SessionID, errSessionDetached)
	case eventTargetTargetDestroyed:
		var ev struct {
			TargetID string `json:"targetId"`
		}
		if err := json.Unmarshal(msg.Params, &ev); err != nil {
			b.logger.Warnf("broker", "decode Target.targetDestroyed: %v", err)
			return
		}
		b.removeTarget(ev.TargetID)
	}
}

// errSessionDetached is the reason used to drain a session's pending
// slots when the browser detaches it out from under us.
var errSessionDetached = errors.New("broker: session detached")

func (b *Broker) removeSession(sessionID string, reason error) {
	b.mu.Lock()
	sess, ok := b.sessions[sessionID]
	if ok {
		delete(b.sessions, sessionID)
		if t, tok := b.targets[sess.targetID]; tok {
			t.sessionOrder = removeString(t.sessionOrder, sessionID)
		}
	}
	b.mu.Unlock()
	if !ok {
		return
	}
	b.reg.DrainSession(sessionID, reason)
}

func (b *Broker) removeTarget(targetID string) {
	b.mu.Lock()
	t, ok := b.targets[targetID]
	if ok {
		delete(b.targets, targetID)
	}
	b.mu.Unlock()
	if !ok {
		return
	}
	for _, sessionID := range t.sessionOrder {
		b.removeSession(sessionID, errSessionDetached)
	}
}

func removeString(s []string, v string) []string {
	for i, x := range s {
		if x == v {
			return append(s[:i], s[i+1:]...)
		}
	}
	return s
}
