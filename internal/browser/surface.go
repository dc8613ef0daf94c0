package browser

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"

	"xagent/internal/feed"
	"xagent/internal/selector"
)

// pasteJS simulates a clipboard paste into the compose editor. DraftJS
// ignores programmatic value writes, so the text arrives as a ClipboardEvent
// carrying a DataTransfer.
const pasteJS = `
(text) => {
	const container = document.querySelector('[data-testid="tweetTextarea_0"]') ||
		document.querySelector('[data-testid="tweetTextarea_1"]');
	if (!container) return false;
	const editor = container.querySelector('.DraftEditor-editorContainer [contenteditable="true"]') ||
		container.querySelector('[contenteditable="true"]') || container;
	editor.focus();

	const dt = new DataTransfer();
	dt.setData('text/plain', text);
	editor.dispatchEvent(new ClipboardEvent('paste', {
		bubbles: true, cancelable: true, clipboardData: dt,
	}));
	return true;
}`

// retypeJS clears the editor and re-inserts text through execCommand with
// the beforeinput/input events DraftJS listens for.
const retypeJS = `
(text) => {
	const container = document.querySelector('[data-testid="tweetTextarea_0"]') ||
		document.querySelector('[data-testid="tweetTextarea_1"]');
	if (!container) return false;
	const editor = container.querySelector('.DraftEditor-editorContainer [contenteditable="true"]') ||
		container.querySelector('[contenteditable="true"]') || container;
	editor.focus();

	editor.dispatchEvent(new InputEvent('beforeinput', {
		bubbles: true, cancelable: true, inputType: 'insertText', data: text,
	}));
	document.execCommand('selectAll', false, null);
	document.execCommand('delete', false, null);
	document.execCommand('insertText', false, text);
	editor.dispatchEvent(new InputEvent('input', {
		bubbles: true, cancelable: false, inputType: 'insertText', data: text,
	}));
	return true;
}`

const composeTextJS = `
() => {
	const container = document.querySelector('[data-testid="tweetTextarea_0"]') ||
		document.querySelector('[data-testid="tweetTextarea_1"]');
	if (!container) return '';
	const editor = container.querySelector('[contenteditable="true"]') || container;
	return editor.textContent || editor.innerText || '';
}`

// nudgeJS inserts and removes one space to force the host UI to re-validate
// the editor content.
const nudgeJS = `
() => {
	const editor = document.querySelector('[data-testid="tweetTextarea_0"] [contenteditable="true"]') ||
		document.querySelector('[data-testid="tweetTextarea_1"] [contenteditable="true"]');
	if (!editor) return false;
	editor.focus();
	document.execCommand('insertText', false, ' ');
	editor.dispatchEvent(new InputEvent('beforeinput', { bubbles: true, inputType: 'insertText', data: ' ' }));
	editor.dispatchEvent(new InputEvent('input', { bubbles: true, inputType: 'insertText', data: ' ' }));
	document.execCommand('delete', false, null);
	return true;
}`

// ItemSurface implements the reply-sequence primitives against one feed
// item on the live page. The item is re-located on every action since feed
// virtualization recreates nodes constantly.
type ItemSurface struct {
	ctx  context.Context
	page *rod.Page

	handle     string
	bodyPrefix string
}

// NewItemSurface builds a surface for the item the record was extracted from.
func NewItemSurface(ctx context.Context, page *rod.Page, rec feed.ItemRecord) *ItemSurface {
	return &ItemSurface{ctx: ctx, page: page, handle: rec.AuthorHandle, bodyPrefix: bodyPrefixOf(rec.BodyText)}
}

// bodyPrefixOf bounds the body to 60 bytes without splitting a rune, so the
// prefix still occurs verbatim in the rendered text.
func bodyPrefixOf(body string) string {
	if len(body) <= 60 {
		return body
	}
	cut := 60
	for cut > 0 && !utf8.RuneStart(body[cut]) {
		cut--
	}
	return body[:cut]
}

// locate finds the item's article element by author handle and body prefix.
func (s *ItemSurface) locate() (*rod.Element, error) {
	page := s.page.Context(s.ctx)
	for _, sel := range selector.LiveSelectors(selector.RoleFeedItem) {
		els, err := page.Elements(sel)
		if err != nil {
			continue
		}
		for _, el := range els {
			text, err := el.Text()
			if err != nil {
				continue
			}
			if strings.Contains(text, "@"+s.handle) &&
				(s.bodyPrefix == "" || strings.Contains(text, s.bodyPrefix)) {
				return el, nil
			}
		}
	}
	return nil, fmt.Errorf("feed item for @%s not on screen", s.handle)
}

// elementIn returns the first element for role inside scope, or nil.
func (s *ItemSurface) elementIn(scope *rod.Element, role selector.Role) *rod.Element {
	for _, sel := range selector.LiveSelectors(role) {
		if has, el, err := scope.Has(sel); err == nil && has {
			return el
		}
	}
	return nil
}

func (s *ItemSurface) clickIn(role selector.Role) error {
	item, err := s.locate()
	if err != nil {
		return err
	}
	el := s.elementIn(item, role)
	if el == nil {
		return fmt.Errorf("%s not found", role)
	}
	return el.Click(proto.InputMouseButtonLeft, 1)
}

func (s *ItemSurface) Liked() (bool, error) {
	item, err := s.locate()
	if err != nil {
		return false, err
	}
	return s.elementIn(item, selector.RoleUnlikeButton) != nil, nil
}

func (s *ItemSurface) ClickLike() error {
	return s.clickIn(selector.RoleLikeButton)
}

func (s *ItemSurface) ClickReply() error {
	return s.clickIn(selector.RoleReplyButton)
}

func (s *ItemSurface) ComposeVisible() (bool, error) {
	page := s.page.Context(s.ctx)
	for _, sel := range selector.LiveSelectors(selector.RoleComposeTextbox) {
		if has, _, err := page.Has(sel); err == nil && has {
			return true, nil
		}
	}
	return false, nil
}

func (s *ItemSurface) eval(js string, args ...interface{}) (*proto.RuntimeRemoteObject, error) {
	return s.page.Context(s.ctx).Evaluate(&rod.EvalOptions{
		JS:           js,
		JSArgs:       args,
		ByValue:      true,
		AwaitPromise: true,
	})
}

func (s *ItemSurface) PasteText(text string) error {
	res, err := s.eval(pasteJS, text)
	if err != nil {
		return err
	}
	if !res.Value.Bool() {
		return fmt.Errorf("compose editor not found for paste")
	}
	return nil
}

func (s *ItemSurface) RetypeText(text string) error {
	res, err := s.eval(retypeJS, text)
	if err != nil {
		return err
	}
	if !res.Value.Bool() {
		return fmt.Errorf("compose editor not found for retype")
	}
	return nil
}

func (s *ItemSurface) ComposeText() (string, error) {
	res, err := s.eval(composeTextJS)
	if err != nil {
		return "", err
	}
	return res.Value.Str(), nil
}

func (s *ItemSurface) NudgeSpace() error {
	_, err := s.eval(nudgeJS)
	return err
}

func (s *ItemSurface) SubmitEnabled() (bool, error) {
	page := s.page.Context(s.ctx)
	for _, sel := range selector.LiveSelectors(selector.RoleSubmitButton) {
		has, el, err := page.Has(sel)
		if err != nil || !has {
			continue
		}
		if disabled, err := el.Attribute("disabled"); err == nil && disabled != nil {
			return false, nil
		}
		if aria, err := el.Attribute("aria-disabled"); err == nil && aria != nil && *aria == "true" {
			return false, nil
		}
		return true, nil
	}
	return false, nil
}

// ClickSubmit clicks the submit control and also dispatches a synthetic
// click for layouts where the trusted click is swallowed.
func (s *ItemSurface) ClickSubmit() error {
	page := s.page.Context(s.ctx)
	for _, sel := range selector.LiveSelectors(selector.RoleSubmitButton) {
		has, el, err := page.Has(sel)
		if err != nil || !has {
			continue
		}
		if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
			// Fall through to the synthetic event.
			_ = err
		}
		_, err = el.Eval(`() => this.dispatchEvent(new MouseEvent('click', { bubbles: true, cancelable: true, view: window }))`)
		return err
	}
	return fmt.Errorf("submit control not found")
}
