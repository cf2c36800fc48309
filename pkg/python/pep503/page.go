package pep503

import (
	"fmt"
	"io"
	"net/url"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/datawire/pkgrepo/pkg/htmlutil"
)

// A Link is a single anchor on a simple repository page.  On the root page each link is a
// project; on a project page each link is a file.
type Link struct {
	Text      string
	HRef      string
	DataAttrs map[string]string
}

func (l Link) node() *html.Node {
	attrs := []html.Attribute{htmlutil.Attr("href", l.HRef)}
	for _, key := range sortedKeys(l.DataAttrs) {
		attrs = append(attrs, htmlutil.Attr(key, l.DataAttrs[key]))
	}
	return htmlutil.Element("a", attrs, htmlutil.Text(l.Text))
}

// A Page is either the root page (listing projects) or a project page (listing files).
type Page struct {
	Title string
	// Head is extra <head> content, such as the PEP 629 version <meta> tag.
	Head  []*html.Node
	Links []Link
}

// Node returns the page as an HTML document tree.
func (p Page) Node() *html.Node {
	head := htmlutil.Element("head", nil)
	for _, node := range p.Head {
		head.AppendChild(node)
	}
	head.AppendChild(htmlutil.Element("title", nil, htmlutil.Text(p.Title)))

	body := htmlutil.Element("body", nil)
	if p.Title != "" {
		body.AppendChild(htmlutil.Element("h1", nil, htmlutil.Text(p.Title)))
	}
	for _, link := range p.Links {
		body.AppendChild(link.node())
		body.AppendChild(htmlutil.Element("br", nil))
		body.AppendChild(htmlutil.Text("\n"))
	}

	return htmlutil.Document(htmlutil.Element("html", nil, head, body))
}

func (p Page) Render(w io.Writer) error {
	if err := htmlutil.Render(w, p.Node()); err != nil {
		return fmt.Errorf("pep503.Page.Render: %w", err)
	}
	return nil
}

// ParseLinks returns every anchor in the document.  If base is non-nil, relative hrefs are
// resolved against it.
func ParseLinks(doc *html.Node, base *url.URL) ([]Link, error) {
	var links []Link
	for _, node := range htmlutil.FindAll(doc, atom.A) {
		link := Link{
			DataAttrs: make(map[string]string),
			Text:      htmlutil.TextContent(node),
		}
		for _, attr := range node.Attr {
			switch {
			case attr.Namespace == "" && attr.Key == "href":
				link.HRef = attr.Val
				if base != nil {
					href, err := base.Parse(attr.Val)
					if err != nil {
						return nil, fmt.Errorf("pep503.ParseLinks: %w", err)
					}
					link.HRef = href.String()
				}
			case attr.Namespace == "" && strings.HasPrefix(attr.Key, "data-"):
				link.DataAttrs[attr.Key] = attr.Val
			}
		}
		links = append(links, link)
	}
	return links, nil
}
