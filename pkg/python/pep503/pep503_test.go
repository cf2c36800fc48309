package pep503_test

import (
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"

	"github.com/datawire/pkgrepo/pkg/python/pep503"
)

func TestNormalize(t *testing.T) {
	t.Parallel()
	testcases := map[string]string{
		"artipietestpkg":    "artipietestpkg",
		"ABtests":           "abtests",
		"Friendly-Bard":     "friendly-bard",
		"FRIENDLY-BARD":     "friendly-bard",
		"friendly.bard":     "friendly-bard",
		"friendly_bard":     "friendly-bard",
		"friendly--bard":    "friendly-bard",
		"FrIeNdLy-._.-bArD": "friendly-bard",
	}
	for input, exp := range testcases {
		input, exp := input, exp
		t.Run(input, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, exp, pep503.Normalize(input))
		})
	}
}

func TestValidName(t *testing.T) {
	t.Parallel()
	testcases := map[string]string{
		"artipietestpkg": "",
		"a":              "",
		"zope.interface": "",
		"A_B-c.9":        "",
		"":               `invalid project name: ""`,
		"-leading":       `invalid project name: "-leading"`,
		"trailing.":      `invalid project name: "trailing."`,
		"has space":      `illegal character in project name: "has space": ' '`,
		"naïve":          `illegal character in project name: "naïve": '\u00ef'`,
	}
	for input, exp := range testcases {
		input, exp := input, exp
		t.Run(input, func(t *testing.T) {
			t.Parallel()
			err := pep503.ValidName(input)
			if exp == "" {
				assert.NoError(t, err)
			} else {
				assert.EqualError(t, err, exp)
			}
		})
	}
}

func TestPageRoundTrip(t *testing.T) {
	t.Parallel()
	page := pep503.Page{
		Title: "Links for artipietestpkg",
		Links: []pep503.Link{
			{
				Text: "artipietestpkg-0.0.3.tar.gz",
				HRef: "../../packages/artipietestpkg/artipietestpkg-0.0.3.tar.gz#sha256=abcd",
				DataAttrs: map[string]string{
					"data-requires-python": ">=2.6",
				},
			},
			{
				Text:      "artipietestpkg-0.0.3-py3-none-any.whl",
				HRef:      "https://files.example.com/artipietestpkg-0.0.3-py3-none-any.whl",
				DataAttrs: map[string]string{},
			},
		},
	}
	var buf strings.Builder
	require.NoError(t, page.Render(&buf))
	assert.Contains(t, buf.String(), `data-requires-python="&gt;=2.6"`)
	assert.Contains(t, buf.String(), `<title>Links for artipietestpkg</title>`)

	doc, err := html.Parse(strings.NewReader(buf.String()))
	require.NoError(t, err)

	links, err := pep503.ParseLinks(doc, nil)
	require.NoError(t, err)
	assert.Equal(t, page.Links, links)

	base, err := url.Parse("https://repo.example.com/simple/artipietestpkg/")
	require.NoError(t, err)
	links, err = pep503.ParseLinks(doc, base)
	require.NoError(t, err)
	require.Len(t, links, 2)
	assert.Equal(t,
		"https://repo.example.com/packages/artipietestpkg/artipietestpkg-0.0.3.tar.gz#sha256=abcd",
		links[0].HRef)
	assert.Equal(t, page.Links[1].HRef, links[1].HRef)
}
