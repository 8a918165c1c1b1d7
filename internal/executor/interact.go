package executor

import (
	"context"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"

	"github.com/corvidlabs/helmsman/internal/humanize"
	"github.com/corvidlabs/helmsman/internal/session"
	"github.com/corvidlabs/helmsman/internal/types"
)

// Interact drives a single pointer/keyboard action against a selector on
// the session's current page, using humanized mouse movement and timing so
// the interaction doesn't look scripted.
func (e *Executor) Interact(ctx context.Context, sess *session.Session, req types.InteractRequest) (*types.InteractResult, error) {
	if err := sess.CheckQuota("interactions"); err != nil {
		return nil, err
	}
	if req.Selector == "" {
		return nil, types.NewValidationError("selector", "selector is required")
	}
	if (req.Action == types.ActionType || req.Action == types.ActionSelect) && req.Value == "" {
		return nil, types.NewValidationError("value", "value is required for this action")
	}
	sess.RecordRequest()

	timeout, err := validateTimeout(req.Timeout)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	page, release := sess.AcquirePageWithRelease()
	if page == nil {
		return nil, types.NewBrowserOperationError("interact", types.ErrSessionPageNil)
	}
	defer release()

	p := page.Context(ctx)
	timing := humanize.NewTiming()

	start := time.Now()
	err = performInteraction(ctx, p, timing, req)
	elapsed := time.Since(start)

	e.recordOutcome(sess, err == nil, elapsed)

	if err != nil {
		sess.RecordError(err)
		return nil, types.NewBrowserOperationErrorWithDetails("interact", err, map[string]interface{}{
			"action":   string(req.Action),
			"selector": req.Selector,
		})
	}

	sess.RecordInteraction()

	return &types.InteractResult{
		Action:   req.Action,
		Selector: req.Selector,
		Duration: elapsed,
	}, nil
}

func performInteraction(ctx context.Context, p *rod.Page, timing *humanize.Timing, req types.InteractRequest) error {
	el, err := p.Element(req.Selector)
	if err != nil {
		return err
	}

	humanize.WaitWithContext(ctx, timing.PreActionDelay())

	mouse := humanize.NewMouse(p)

	switch req.Action {
	case types.ActionClick:
		return mouse.ClickElement(ctx, el)

	case types.ActionDoubleClick:
		if err := mouse.ClickElement(ctx, el); err != nil {
			return err
		}
		humanize.WaitWithContext(ctx, 60*time.Millisecond)
		return mouse.ClickElement(ctx, el)

	case types.ActionRightClick:
		scroller := humanize.NewScroller(p)
		if _, err := scroller.EnsureElementVisible(ctx, el); err != nil {
			return err
		}
		return el.Click(proto.InputMouseButtonRight, 1)

	case types.ActionType:
		if err := mouse.ClickElement(ctx, el); err != nil {
			return err
		}
		return typeHumanized(ctx, el, req.Value, timing)

	case types.ActionSelect:
		return selectOption(el, req.Value)

	case types.ActionHover:
		shape, err := el.Shape()
		if err != nil {
			return err
		}
		if shape == nil || len(shape.Quads) == 0 {
			return humanize.ErrElementNotVisible
		}
		quad := shape.Quads[0]
		centerX := (quad[0] + quad[2] + quad[4] + quad[6]) / 4
		centerY := (quad[1] + quad[3] + quad[5] + quad[7]) / 4
		return mouse.MoveTo(ctx, centerX, centerY)

	case types.ActionScroll:
		scroller := humanize.NewScroller(p)
		return scroller.ScrollToElement(ctx, el)

	default:
		return types.NewValidationError("action", "unsupported interact action: "+string(req.Action))
	}
}

// selectOption sets a <select> element's value by visible option text or
// value attribute and fires a change event, the same way a user picking an
// option from the native dropdown would.
func selectOption(el *rod.Element, value string) error {
	_, err := el.Eval(`(val) => {
		const opts = Array.from(this.options || []);
		const match = opts.find(o => o.value === val || o.text === val);
		if (!match) return false;
		this.value = match.value;
		this.dispatchEvent(new Event('change', { bubbles: true }));
		return true;
	}`, value)
	return err
}

func typeHumanized(ctx context.Context, el *rod.Element, value string, timing *humanize.Timing) error {
	for _, r := range value {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if err := el.Input(string(r)); err != nil {
			return err
		}
		humanize.WaitWithContext(ctx, timing.TypingDelay())
	}
	return nil
}
