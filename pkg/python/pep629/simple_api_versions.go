// Package pep629 implements PEP 629 -- Versioning PyPI's Simple API.
//
// https://www.python.org/dev/peps/pep-0629/
package pep629

import (
	"context"
	"fmt"

	"github.com/datawire/dlib/dlog"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/datawire/pkgrepo/pkg/htmlutil"
	"github.com/datawire/pkgrepo/pkg/python/pep440"
)

const metaName = "pypi:repository-version"

// RepositoryVersion is the API version that this implementation speaks.
const RepositoryVersion = "1.0"

//nolint:gochecknoglobals // Would be 'const'.
var SupportedVersion, _ = pep440.ParseVersion(RepositoryVersion)

// MetaNode returns the <meta name="pypi:repository-version" content="1.0"> tag that goes in the
// <head> of every simple-API page.
func MetaNode() *html.Node {
	return htmlutil.Element("meta", []html.Attribute{
		htmlutil.Attr("name", metaName),
		htmlutil.Attr("content", RepositoryVersion),
	})
}

// GetVersion returns the API version declared by a page; a page with no declaration is version
// 1.0.
func GetVersion(doc *html.Node) (*pep440.Version, error) {
	var verStr string
	for _, node := range htmlutil.FindAll(doc, atom.Meta) {
		if name, _ := htmlutil.GetAttr(node, "", "name"); name != metaName {
			continue
		}
		if content, ok := htmlutil.GetAttr(node, "", "content"); ok {
			verStr = content
		}
	}
	if verStr == "" {
		verStr = "1.0"
	}
	return pep440.ParseVersion(verStr)
}

// HTMLVersionCheck returns an error if the page's major version is newer than SupportedVersion,
// and logs a warning if only the minor version is newer.
func HTMLVersionCheck(ctx context.Context, doc *html.Node) error {
	version, err := GetVersion(doc)
	if err != nil {
		return err
	}
	if version.Major() > SupportedVersion.Major() {
		return fmt.Errorf("page's %s (%s) is not compatible with this reader", metaName, version)
	}
	if version.Major() == SupportedVersion.Major() && version.Minor() > SupportedVersion.Minor() {
		dlog.Warnf(ctx, "page's %s (%s) is newer than this reader", metaName, version)
	}
	return nil
}
