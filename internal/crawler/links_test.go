package crawler

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExtractLinks(t *testing.T) {
	t.Parallel()

	body := []byte(`<html><head>
<link rel="stylesheet" href="/css/site.css">
<script src="js/app.js"></script>
</head><body>
<a href="/about">About</a>
<a href="contact#form">Contact</a>
<a href="contact">Contact again</a>
<a href="#top">Top</a>
<a href="mailto:hi@example.com">Mail</a>
<a href="javascript:void(0)">JS</a>
<a href="https://other.test/x">Other</a>
<a href="  ">blank</a>
<img src="/img/logo.png">
<img src="/img/logo.png">
</body></html>`)

	links, err := ExtractLinks("https://example.com/section/page", body)
	require.NoError(t, err)
	require.Equal(t, []string{
		"https://example.com/about",
		"https://example.com/section/contact",
		"https://other.test/x",
	}, links.Pages)
	require.Equal(t, []string{
		"https://example.com/img/logo.png",
		"https://example.com/css/site.css",
		"https://example.com/section/js/app.js",
	}, links.Resources)
}

func TestExtractLinks_HonoursBaseHref(t *testing.T) {
	t.Parallel()

	body := []byte(`<html><head><base href="https://example.com/root/"></head>
<body><a href="child">child</a></body></html>`)

	links, err := ExtractLinks("https://example.com/elsewhere/page", body)
	require.NoError(t, err)
	require.Equal(t, []string{"https://example.com/root/child"}, links.Pages)
}

func TestExtractLinks_InvalidPageURL(t *testing.T) {
	t.Parallel()

	_, err := ExtractLinks("http://%zz", []byte("<a href='/x'>x</a>"))
	require.Error(t, err)
}
