package browser

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/png"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"

	"github.com/v0xg/seqclick/internal/clicker"
)

// Activate calls the element's click() as the primary activation
func (b *Browser) Activate(ctx context.Context, t clicker.Target) error {
	el, err := element(t)
	if err != nil {
		return err
	}
	_, err = el.Context(ctx).Eval(`() => this.click()`)
	return err
}

// Notify dispatches a bubbling MouseEvent of kind s on the element
func (b *Browser) Notify(ctx context.Context, t clicker.Target, s clicker.Signal) error {
	el, err := element(t)
	if err != nil {
		return err
	}
	_, err = el.Context(ctx).Eval(`(kind) => this.dispatchEvent(new MouseEvent(kind, { bubbles: true }))`, string(s))
	return err
}

// NextFrame resolves on the page's next animation frame
func (b *Browser) NextFrame(ctx context.Context) error {
	_, err := b.page.Context(ctx).Eval(`() => new Promise(resolve => requestAnimationFrame(() => resolve()))`)
	return err
}

// Center returns the center of the target's first box quad in viewport pixels
func (b *Browser) Center(t clicker.Target) (image.Point, error) {
	el, err := element(t)
	if err != nil {
		return image.Point{}, err
	}

	box, err := el.Shape()
	if err != nil {
		return image.Point{}, err
	}
	if len(box.Quads) == 0 {
		return image.Point{}, fmt.Errorf("element has no shape")
	}

	quad := box.Quads[0]
	x := int((quad[0] + quad[2] + quad[4] + quad[6]) / 4)
	y := int((quad[1] + quad[3] + quad[5] + quad[7]) / 4)
	return image.Pt(x, y), nil
}

// Screenshot captures the visible viewport
func (b *Browser) Screenshot() (image.Image, error) {
	data, err := b.page.Screenshot(false, &proto.PageCaptureScreenshot{
		Format: proto.PageCaptureScreenshotFormatPng,
	})
	if err != nil {
		return nil, err
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	return img, nil
}

func element(t clicker.Target) (*rod.Element, error) {
	el, ok := t.(*rod.Element)
	if !ok {
		return nil, fmt.Errorf("target %T is not a page element", t)
	}
	return el, nil
}
