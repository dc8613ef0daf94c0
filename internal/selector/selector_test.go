package selector

import (
	"strings"
	"testing"

	"golang.org/x/net/html"
)

func parse(t *testing.T, src string) *html.Node {
	t.Helper()
	doc, err := html.Parse(strings.NewReader(src))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	return doc
}

func TestParse_Rejects(t *testing.T) {
	for _, bad := range []string{"", "div:hover", "[", "div[=x]", ":not(span)"} {
		if _, err := Parse(bad); err == nil {
			t.Errorf("Parse(%q): expected error", bad)
		}
	}
}

func TestMatch_AttributeOperators(t *testing.T) {
	doc := parse(t, `<div><a role="link" href="/satoshi/status/1">x</a></div>`)
	a := Query(doc, MustParse("a"))
	if a == nil {
		t.Fatal("anchor not found")
	}

	cases := []struct {
		sel  string
		want bool
	}{
		{`a[role="link"]`, true},
		{`a[href^="/"]`, true},
		{`a[href$="/1"]`, true},
		{`a[href*="status"]`, true},
		{`a[href^="http"]`, false},
		{`a[role="link"][href^="/"]`, true},
		{`a:not([role])`, false},
		{`span[role="link"]`, false},
		{`a[missing]`, false},
	}
	for _, tc := range cases {
		if got := MustParse(tc.sel).Match(a); got != tc.want {
			t.Errorf("%s: got %v, want %v", tc.sel, got, tc.want)
		}
	}
}

func TestMatch_DescendantCombinator(t *testing.T) {
	doc := parse(t, `
		<div data-testid="cellInnerDiv"><section><article id="inner">hi</article></section></div>
		<article id="outer">bye</article>`)

	sel := MustParse(`[data-testid="cellInnerDiv"] article`)
	matches := QueryAll(doc, sel)
	if len(matches) != 1 || AttrValue(matches[0], "id") != "inner" {
		t.Fatalf("expected only the nested article, got %d matches", len(matches))
	}
}

func TestMatch_NotPseudoClass(t *testing.T) {
	doc := parse(t, `
		<div data-testid="toolBar">
			<button type="button" aria-label="Add photos">a</button>
			<button type="button">Post</button>
		</div>`)

	n := Query(doc, MustParse(`[data-testid="toolBar"] button[type="button"]:not([aria-label])`))
	if n == nil {
		t.Fatal("expected the unlabeled button")
	}
	if Text(n) != "Post" {
		t.Errorf("matched wrong button: %q", Text(n))
	}
}

func TestResolve_FallbackOrder(t *testing.T) {
	// No data-testid form present, so the role="article" fallback should win.
	doc := parse(t, `<main><article role="article"><span>only</span></article></main>`)
	n, ok := Resolve(doc, RoleFeedItem)
	if !ok {
		t.Fatal("feed item not resolved")
	}
	if n.Data != "article" {
		t.Errorf("resolved %s, want article", n.Data)
	}
}

func TestResolve_ParentHop(t *testing.T) {
	doc := parse(t, `
		<article data-testid="tweet">
			<div id="names"><a role="link" href="/satoshi">Satoshi</a></div>
		</article>`)
	item, _ := Resolve(doc, RoleFeedItem)

	n, ok := Resolve(item, RoleUserNames)
	if !ok {
		t.Fatal("user names not resolved")
	}
	if AttrValue(n, "id") != "names" {
		t.Errorf("expected the link's parent container, got <%s id=%q>", n.Data, AttrValue(n, "id"))
	}
}

func TestResolve_AbsentIsNotError(t *testing.T) {
	doc := parse(t, `<div>nothing relevant</div>`)
	if _, ok := Resolve(doc, RoleVerifiedBadge); ok {
		t.Fatal("expected no badge")
	}
}

func TestResolveAll_DedupAcrossStrategies(t *testing.T) {
	// The same article matches both the testid and role strategies; it must
	// appear once, and document order must hold.
	doc := parse(t, `
		<article data-testid="tweet" role="article" id="a">1</article>
		<div data-testid="cellInnerDiv"><article id="b">2</article></div>`)

	items := ResolveAll(doc, RoleFeedItem)
	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(items))
	}
	if AttrValue(items[0], "id") != "a" || AttrValue(items[1], "id") != "b" {
		t.Errorf("order wrong: %s, %s", AttrValue(items[0], "id"), AttrValue(items[1], "id"))
	}
}

func TestLiveSelectors_SkipsParentHops(t *testing.T) {
	for _, s := range LiveSelectors(RoleUserNames) {
		if strings.Contains(s, `a[role="link"]`) {
			t.Errorf("parent-hop strategy leaked into live selectors: %s", s)
		}
	}
	if len(LiveSelectors(RoleSubmitButton)) == 0 {
		t.Fatal("submit button must have live selectors")
	}
}

func TestText_CollapsesWhitespace(t *testing.T) {
	doc := parse(t, "<div>  gm\n\t<span>frens</span>  </div>")
	n := Query(doc, MustParse("div"))
	if got := Text(n); got != "gm frens" {
		t.Errorf("Text: %q", got)
	}
}

func TestClosest(t *testing.T) {
	doc := parse(t, `<article data-testid="tweet"><div><span id="deep">x</span></div></article>`)
	deep := Query(doc, MustParse("#deep"))
	got := Closest(deep, MustParse(`article[data-testid="tweet"]`))
	if got == nil || got.Data != "article" {
		t.Fatal("Closest failed to find the enclosing article")
	}
}
