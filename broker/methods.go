// devtools-protocol - a Go CDP pipe-transport broker.
// Licensed under the GNU Affero General Public License v3.0 or later.
// See https://www.gnu.org/licenses/ for details.

package broker

import "github.com/chromedp/cdproto"

// Method and event name constants used by the broker's Target/Session
// operations and lifecycle-event handling, taken from cdproto's generated
// MethodType constants rather than ad hoc string literals, matching the
// teacher's own common/browser.go.
const (
	methodTargetAttachToTarget        = string(cdproto.CommandTargetAttachToTarget)
	methodTargetDetachFromTarget      = string(cdproto.CommandTargetDetachFromTarget)
	methodTargetGetTargets            = string(cdproto.CommandTargetGetTargets)
	methodTargetCreateTarget          = string(cdproto.CommandTargetCreateTarget)
	methodTargetCloseTarget           = string(cdproto.CommandTargetCloseTarget)
	methodTargetAttachToBrowserTarget = string(cdproto.CommandTargetAttachToBrowserTarget)
	methodBrowserClose                = string(cdproto.CommandBrowserClose)

	eventTargetAttachedToTarget   = string(cdproto.EventTargetAttachedToTarget)
	eventTargetDetachedFromTarget = string(cdproto.EventTargetDetachedFromTarget)
	eventTargetTargetDestroyed    = string(cdproto.EventTargetTargetDestroyed)
)
