package extractor

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

var candidatePattern = regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`)

// scanText returns every address-shaped substring of text.
func scanText(text string) []string {
	return candidatePattern.FindAllString(text, -1)
}

// scanDocument collects mailto targets and address-shaped text.
func scanDocument(doc *goquery.Document) []string {
	out := mailtoCandidates(doc.Selection)
	return append(out, scanText(nodeText(doc.Selection))...)
}

// scanWidgets scans elements whose class or id mentions contact or email.
func scanWidgets(doc *goquery.Document) []string {
	var out []string
	doc.Find("[class],[id]").Each(func(_ int, s *goquery.Selection) {
		class, _ := s.Attr("class")
		id, _ := s.Attr("id")
		key := strings.ToLower(class + " " + id)
		if !strings.Contains(key, "contact") && !strings.Contains(key, "email") {
			return
		}
		out = append(out, mailtoCandidates(s)...)
		out = append(out, scanText(nodeText(s))...)
	})
	return out
}

func mailtoCandidates(sel *goquery.Selection) []string {
	var out []string
	sel.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		out = append(out, mailtoAddresses(href)...)
	})
	return out
}

// mailtoAddresses extracts the recipients of a mailto link, dropping any
// query such as ?subject=.
func mailtoAddresses(href string) []string {
	const scheme = "mailto:"
	h := strings.TrimSpace(href)
	if len(h) < len(scheme) || !strings.EqualFold(h[:len(scheme)], scheme) {
		return nil
	}
	h = h[len(scheme):]
	if i := strings.IndexByte(h, '?'); i >= 0 {
		h = h[:i]
	}
	if unescaped, err := url.PathUnescape(h); err == nil {
		h = unescaped
	}
	var out []string
	for _, part := range strings.Split(h, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// nodeText joins text nodes with spaces so adjacent elements do not fuse
// into one token.
func nodeText(sel *goquery.Selection) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
			b.WriteByte(' ')
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for _, n := range sel.Nodes {
		walk(n)
	}
	return b.String()
}
