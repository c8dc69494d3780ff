package feed

import (
	"fmt"
	"strings"

	"github.com/antchfx/xmlquery"
	"github.com/mmcdole/gofeed"
)

// DefaultMaxItems bounds the number of items returned for a single feed.
const DefaultMaxItems = 30

const (
	DialectRSS2 = "rss2"
	DialectRDF  = "rdf"
	DialectAtom = "atom"
)

// Extraction is the normalized content of a recognised feed document.
type Extraction struct {
	Dialect string
	Title   string
	Items   []Item
}

// dialect locates the feed title and entry elements under a document root.
type dialect struct {
	name  string
	match func(root *xmlquery.Node) (title string, entries []*xmlquery.Node, ok bool)
}

// Tried in order; the first match wins.
var dialects = []dialect{
	{name: DialectRSS2, match: matchRSS2},
	{name: DialectRDF, match: matchRDF},
	{name: DialectAtom, match: matchAtom},
}

var dateFields = []string{"pubDate", "updated", "date", "published"}

// parseDocument builds the document tree the dialect matchers walk. Tests replace it
// to observe parse attempts.
var parseDocument = func(s string) (*xmlquery.Node, error) {
	return xmlquery.Parse(strings.NewReader(s))
}

// Extract projects the entries of doc into items, capped at max (DefaultMaxItems when
// max <= 0). It reports false when the root element is not a known feed dialect.
// An empty but recognised feed yields an Extraction with no items.
func Extract(doc *xmlquery.Node, max int) (Extraction, bool) {
	if max <= 0 {
		max = DefaultMaxItems
	}
	root := rootElement(doc)
	if root == nil {
		return Extraction{}, false
	}

	for _, d := range dialects {
		title, entries, ok := d.match(root)
		if !ok {
			continue
		}
		if len(entries) > max {
			entries = entries[:max]
		}
		items := make([]Item, 0, len(entries))
		for _, e := range entries {
			items = append(items, projectEntry(e))
		}
		return Extraction{Dialect: d.name, Title: title, Items: items}, true
	}
	return Extraction{}, false
}

// ExtractFallback hands a document no dialect matcher recognised to gofeed, which also
// accepts legacy and loosely structured RSS. It reports false when gofeed cannot detect
// a feed either.
func ExtractFallback(body string, max int) (Extraction, bool) {
	if max <= 0 {
		max = DefaultMaxItems
	}
	if gofeed.DetectFeedType(strings.NewReader(body)) == gofeed.FeedTypeUnknown {
		return Extraction{}, false
	}
	f, err := gofeed.NewParser().ParseString(body)
	if err != nil || f == nil {
		return Extraction{}, false
	}

	items := make([]Item, 0, min(len(f.Items), max))
	for _, it := range f.Items {
		if len(items) == max {
			break
		}
		if it == nil {
			continue
		}
		link := it.Link
		if link == "" && len(it.Links) > 0 {
			link = it.Links[0]
		}
		pub := it.Published
		if pub == "" {
			pub = it.Updated
		}
		items = append(items, Item{
			Title:   strings.TrimSpace(it.Title),
			Link:    strings.TrimSpace(link),
			PubDate: strings.TrimSpace(pub),
		})
	}
	return Extraction{
		Dialect: fmt.Sprintf("%s-fallback", f.FeedType),
		Title:   strings.TrimSpace(f.Title),
		Items:   items,
	}, true
}

func matchRSS2(root *xmlquery.Node) (string, []*xmlquery.Node, bool) {
	if root.Data != "rss" {
		return "", nil, false
	}
	channel := child(root, "channel")
	if channel == nil {
		return "", nil, false
	}
	return text(child(channel, "title")), children(channel, "item"), true
}

// matchRDF accepts items as siblings of channel (RSS 1.0) and, from lax generators,
// nested inside it.
func matchRDF(root *xmlquery.Node) (string, []*xmlquery.Node, bool) {
	if root.Data != "RDF" {
		return "", nil, false
	}
	channel := child(root, "channel")
	entries := children(root, "item")
	if channel != nil {
		entries = append(entries, children(channel, "item")...)
	}
	if channel == nil && len(entries) == 0 {
		return "", nil, false
	}
	return text(child(channel, "title")), entries, true
}

func matchAtom(root *xmlquery.Node) (string, []*xmlquery.Node, bool) {
	if root.Data != "feed" {
		return "", nil, false
	}
	return text(child(root, "title")), children(root, "entry"), true
}

func projectEntry(e *xmlquery.Node) Item {
	title := text(child(e, "title"))
	if title == "" {
		title = strings.TrimSpace(attr(e, "title"))
	}

	link := entryLink(e)
	if link == "" {
		// RDF items carry their URI in rdf:about.
		link = strings.TrimSpace(attr(e, "about"))
	}

	var pub string
	for _, name := range dateFields {
		if pub = text(child(e, name)); pub != "" {
			break
		}
	}

	return Item{Title: title, Link: link, PubDate: pub}
}

// entryLink picks the primary link of an entry: alternate (or rel-less) links first,
// then any other, taking text content before the href attribute.
func entryLink(e *xmlquery.Node) string {
	links := unprefixed(children(e, "link"))

	var primary, rest []*xmlquery.Node
	for _, l := range links {
		switch strings.ToLower(attr(l, "rel")) {
		case "", "alternate":
			primary = append(primary, l)
		default:
			rest = append(rest, l)
		}
	}

	for _, l := range append(primary, rest...) {
		if v := text(l); v != "" {
			return v
		}
		if v := strings.TrimSpace(attr(l, "href")); v != "" {
			return v
		}
	}
	return ""
}

func rootElement(doc *xmlquery.Node) *xmlquery.Node {
	if doc == nil {
		return nil
	}
	if doc.Type == xmlquery.ElementNode {
		return doc
	}
	for n := doc.FirstChild; n != nil; n = n.NextSibling {
		if n.Type == xmlquery.ElementNode {
			return n
		}
	}
	return nil
}

// children returns the element children of n with the given local name, in any namespace.
func children(n *xmlquery.Node, local string) []*xmlquery.Node {
	if n == nil {
		return nil
	}
	var out []*xmlquery.Node
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == xmlquery.ElementNode && c.Data == local {
			out = append(out, c)
		}
	}
	return out
}

// child returns the first element child named local, preferring one without a prefix.
func child(n *xmlquery.Node, local string) *xmlquery.Node {
	all := children(n, local)
	for _, c := range all {
		if c.Prefix == "" {
			return c
		}
	}
	if len(all) > 0 {
		return all[0]
	}
	return nil
}

// unprefixed keeps the unprefixed nodes of ns, or returns ns unchanged if there are none.
func unprefixed(ns []*xmlquery.Node) []*xmlquery.Node {
	var out []*xmlquery.Node
	for _, n := range ns {
		if n.Prefix == "" {
			out = append(out, n)
		}
	}
	if len(out) == 0 {
		return ns
	}
	return out
}

func text(n *xmlquery.Node) string {
	if n == nil {
		return ""
	}
	return strings.TrimSpace(n.InnerText())
}

func attr(n *xmlquery.Node, local string) string {
	if n == nil {
		return ""
	}
	for _, a := range n.Attr {
		if a.Name.Local == local {
			return a.Value
		}
	}
	return ""
}
