package feed

import (
	"strings"
	"testing"

	"golang.org/x/net/html"

	"xagent/internal/selector"
)

func parsePage(t *testing.T, src string) *html.Node {
	t.Helper()
	doc, err := html.Parse(strings.NewReader(src))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	return doc
}

func firstItem(t *testing.T, doc *html.Node) *html.Node {
	t.Helper()
	items := selector.ResolveAll(doc, selector.RoleFeedItem)
	if len(items) == 0 {
		t.Fatal("no feed item in fixture")
	}
	return items[0]
}

const itemFixture = `
<main>
  <article data-testid="tweet">
    <div data-testid="User-Name">
      <a role="link" href="/satoshi"><span>Satoshi</span></a>
      <a role="link" href="/satoshi"><span>@satoshi</span></a>
    </div>
    <div data-testid="tweetText">gm frens, check https://t.co/abc123</div>
    <a href="https://t.co/abc123">https://t.co/abc123</a>
    <svg aria-label="Verified account"></svg>
  </article>
  <article data-testid="tweet">
    <a role="link" href="/satoshi"><span>@satoshi</span></a>
    <div data-testid="tweetText">earlier take one</div>
  </article>
  <article data-testid="tweet">
    <a role="link" href="/vitalik"><span>@vitalik</span></a>
    <div data-testid="tweetText">unrelated</div>
  </article>
  <div data-testid="UserDescription">Building peer-to-peer cash.</div>
</main>`

func TestExtract_FullRecord(t *testing.T) {
	doc := parsePage(t, itemFixture)
	rec := Extract(doc, firstItem(t, doc))

	if rec.AuthorHandle != "satoshi" {
		t.Errorf("handle: %q", rec.AuthorHandle)
	}
	if rec.BodyText != "gm frens, check https://t.co/abc123" {
		t.Errorf("body: %q", rec.BodyText)
	}
	if !rec.Verified {
		t.Error("expected verified")
	}
	if rec.LinkURL != "https://t.co/abc123" {
		t.Errorf("link: %q", rec.LinkURL)
	}
	if rec.AuthorBio != "Building peer-to-peer cash." {
		t.Errorf("bio: %q", rec.AuthorBio)
	}
	if len(rec.RecentTexts) != 1 || rec.RecentTexts[0] != "earlier take one" {
		t.Errorf("recent texts: %#v", rec.RecentTexts)
	}
}

func TestExtract_MissingFieldsStayEmpty(t *testing.T) {
	doc := parsePage(t, `<article data-testid="tweet"><div data-testid="tweetText">just text</div></article>`)
	rec := Extract(doc, firstItem(t, doc))

	if rec.AuthorHandle != "" || rec.Verified || rec.LinkURL != "" || rec.AuthorBio != "" {
		t.Errorf("expected empty optional fields, got %#v", rec)
	}
	if rec.BodyText != "just text" {
		t.Errorf("body: %q", rec.BodyText)
	}
}

func TestAuthorHandle_FallbackToUserNames(t *testing.T) {
	// No "@" span anywhere, so the user-names container link decides.
	doc := parsePage(t, `
		<article data-testid="tweet">
			<div data-testid="User-Names"><a role="link" href="/cz_binance">CZ</a></div>
			<div data-testid="tweetText">4</div>
		</article>`)
	if got := AuthorHandle(firstItem(t, doc)); got != "cz_binance" {
		t.Errorf("handle: %q", got)
	}
}

func TestRecentTexts_CapAndCase(t *testing.T) {
	var b strings.Builder
	b.WriteString(`<article data-testid="tweet" id="self"><a role="link" href="/Alice"><span>@Alice</span></a><div data-testid="tweetText">self</div></article>`)
	for i := 0; i < 5; i++ {
		b.WriteString(`<article data-testid="tweet"><a role="link" href="/alice"><span>@alice</span></a><div data-testid="tweetText">other</div></article>`)
	}
	doc := parsePage(t, b.String())
	rec := Extract(doc, firstItem(t, doc))

	if len(rec.RecentTexts) != 3 {
		t.Fatalf("expected cap at 3, got %d", len(rec.RecentTexts))
	}
}

func TestEmbeddedLink_RequiresTextInBody(t *testing.T) {
	// A card-preview anchor whose text is not in the body must be ignored.
	doc := parsePage(t, `
		<article data-testid="tweet">
			<div data-testid="tweetText">no links here https://example.com</div>
			<a href="https://t.co/zzz">pic.x.com/zzz</a>
		</article>`)
	rec := Extract(doc, firstItem(t, doc))
	if rec.LinkURL != "" {
		t.Errorf("expected no link, got %q", rec.LinkURL)
	}
}

func TestParseFollowerCount(t *testing.T) {
	cases := []struct {
		in   string
		want uint64
		ok   bool
	}{
		{"10K", 10_000, true},
		{"1.5M", 1_500_000, true},
		{"2B", 2_000_000_000, true},
		{"523", 523, true},
		{"1,234", 1234, true},
		{"12.3k", 12_300, true},
		{"", 0, false},
		{"lots", 0, false},
		{"-5", 0, false},
	}
	for _, tc := range cases {
		got, ok := ParseFollowerCount(tc.in)
		if got != tc.want || ok != tc.ok {
			t.Errorf("ParseFollowerCount(%q) = (%d, %v), want (%d, %v)", tc.in, got, ok, tc.want, tc.ok)
		}
	}
}

func TestFollowerCount_FromUserCell(t *testing.T) {
	doc := parsePage(t, `
		<article data-testid="tweet">
			<div data-testid="UserCell"><span>10.5K Followers</span></div>
		</article>`)
	n, ok := FollowerCount(firstItem(t, doc))
	if !ok || n != 10_500 {
		t.Errorf("FollowerCount = (%d, %v)", n, ok)
	}

	bare := parsePage(t, `<article data-testid="tweet"><span>no cell</span></article>`)
	if _, ok := FollowerCount(firstItem(t, bare)); ok {
		t.Error("expected unknown count")
	}
}
