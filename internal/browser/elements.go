package browser

import (
	"context"
	"fmt"
)

// Element is a visible clickable element with a selector usable as a descriptor
type Element struct {
	Selector string `json:"selector"`
	Type     string `json:"type"` // button, link, checkbox, radio, select
	Text     string `json:"text,omitempty"`
}

const elementsJS = `() => {
	const out = [];
	const seen = new Set();

	function validIdent(s) {
		return !!s && !/^-?[0-9]/.test(s) && !/[.:#\[\]()>~+*\/\\]/.test(s);
	}

	function selectorFor(el) {
		if (el.id && validIdent(el.id)) return '#' + el.id;
		if (el.name) return el.tagName.toLowerCase() + '[name="' + el.name + '"]';
		if (typeof el.className === 'string') {
			const classes = el.className.trim().split(/\s+/).filter(validIdent).slice(0, 2);
			if (classes.length > 0) {
				const sel = el.tagName.toLowerCase() + '.' + classes.join('.');
				try {
					if (document.querySelectorAll(sel).length === 1) return sel;
				} catch (e) {}
			}
		}
		const parent = el.parentElement;
		if (!parent) return el.tagName.toLowerCase();
		const index = Array.from(parent.children).indexOf(el) + 1;
		return selectorFor(parent) + ' > ' + el.tagName.toLowerCase() + ':nth-child(' + index + ')';
	}

	function collect(query, kind) {
		document.querySelectorAll(query).forEach(el => {
			if (!el.offsetParent) return;
			const selector = selectorFor(el);
			if (seen.has(selector)) return;
			seen.add(selector);
			out.push({
				selector: selector,
				type: kind(el),
				text: (el.textContent || el.value || '').trim().slice(0, 50),
			});
		});
	}

	collect('button, [role="button"], input[type="submit"], input[type="button"]', () => 'button');
	collect('a[href]', () => 'link');
	collect('input[type="checkbox"], input[type="radio"]', el => el.type);
	collect('select', () => 'select');
	return out;
}`

// Elements lists the visible clickable elements of the current page
func (b *Browser) Elements(ctx context.Context) ([]Element, error) {
	res, err := b.page.Context(ctx).Eval(elementsJS)
	if err != nil {
		return nil, fmt.Errorf("extracting elements: %w", err)
	}

	var elements []Element
	for _, v := range res.Value.Arr() {
		elements = append(elements, Element{
			Selector: v.Get("selector").String(),
			Type:     v.Get("type").String(),
			Text:     v.Get("text").String(),
		})
	}
	return elements, nil
}
