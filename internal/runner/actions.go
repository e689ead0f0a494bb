package runner

import (
	"context"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

// fillInput locates an element and types a value into it. The timeout
// bounds the element lookup and the input together.
func fillInput(ctx context.Context, page *rod.Page, timeout time.Duration, selector, value string) error {
	el, err := page.Context(ctx).Timeout(timeout).Element(selector)
	if err != nil {
		return err
	}
	return el.Input(value)
}

// clickElement locates an element and left-clicks it once.
func clickElement(ctx context.Context, page *rod.Page, timeout time.Duration, selector string) error {
	el, err := page.Context(ctx).Timeout(timeout).Element(selector)
	if err != nil {
		return err
	}
	return el.Click(proto.InputMouseButtonLeft, 1)
}
