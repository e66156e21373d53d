package crawler

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sjsage522/feedharvester/internal/browser"
	"sjsage522/feedharvester/logger"
)

const fullItem = `<article>
	<a href="/alice">Alice</a>
	<a href="/alice/status/1790000000000000001">permalink</a>
	<time datetime="2024-05-13T08:15:30.000Z">May 13</time>
	<div lang="en">hello<br>world &amp; friends</div>
	<div data-testid="reply">12</div>
	<div data-testid="retweet">1,234</div>
	<div data-testid="like">2.5K</div>
</article>`

func mustNode(t *testing.T, markup string) browser.Node {
	t.Helper()
	node, err := browser.ParseNode(markup)
	require.NoError(t, err)
	return node
}

func TestExtractFullItem(t *testing.T) {
	ex := NewExtractor(DefaultSelectors())

	cand, ok := ex.Extract(mustNode(t, fullItem))
	require.True(t, ok)

	assert.Equal(t, int64(1790000000000000001), cand.ID)
	assert.Equal(t, "hello\nworld & friends", cand.Content)

	require.NotNil(t, cand.CreatedAt)
	assert.Equal(t, time.Date(2024, 5, 13, 8, 15, 30, 0, time.UTC), *cand.CreatedAt)

	require.NotNil(t, cand.ReplyCount)
	require.NotNil(t, cand.ShareCount)
	require.NotNil(t, cand.LikeCount)
	assert.Equal(t, int64(12), *cand.ReplyCount)
	assert.Equal(t, int64(1234), *cand.ShareCount)
	assert.Equal(t, int64(2500), *cand.LikeCount)
}

func TestExtractRejectsItemWithoutStatusLink(t *testing.T) {
	ex := NewExtractor(DefaultSelectors())

	_, ok := ex.Extract(mustNode(t, `<article><a href="/alice">Alice</a><div lang="en">promo</div></article>`))
	assert.False(t, ok)

	_, ok = ex.Extract(mustNode(t, `<article><a href="/alice/status/">broken</a></article>`))
	assert.False(t, ok)

	_, ok = ex.Extract(nil)
	assert.False(t, ok)
}

func TestExtractRejectsOverflowingID(t *testing.T) {
	ex := NewExtractor(DefaultSelectors())

	_, ok := ex.Extract(mustNode(t, `<article><a href="/a/status/99999999999999999999">x</a></article>`))
	assert.False(t, ok)
}

func TestExtractMissingOptionalFields(t *testing.T) {
	ex := NewExtractor(DefaultSelectors())

	cand, ok := ex.Extract(mustNode(t, `<article><a href="/bob/status/7">x</a><time datetime="yesterday"></time><div data-testid="like"></div></article>`))
	require.True(t, ok)

	assert.Equal(t, int64(7), cand.ID)
	assert.Nil(t, cand.CreatedAt)
	assert.Nil(t, cand.ReplyCount)
	assert.Nil(t, cand.ShareCount)
	assert.Nil(t, cand.LikeCount)
}

func TestExtractLogsFieldFailures(t *testing.T) {
	level := zerolog.GlobalLevel()
	zerolog.SetGlobalLevel(zerolog.DebugLevel)
	t.Cleanup(func() { zerolog.SetGlobalLevel(level) })

	var buf bytes.Buffer
	ex := NewExtractor(DefaultSelectors())
	ex.SetLogger(logger.New(&buf))

	cand, ok := ex.Extract(mustNode(t, `<article><a href="/bob/status/7">x</a><time datetime="yesterday"></time><div data-testid="like">lots</div></article>`))
	require.True(t, ok)
	assert.Nil(t, cand.LikeCount)

	out := buf.String()
	assert.Contains(t, out, `"field":"created_at"`)
	assert.Contains(t, out, "[extraction] extractor: unparseable datetime")
	assert.Contains(t, out, "unparseable count")

	buf.Reset()
	_, ok = ex.Extract(mustNode(t, `<article><a href="/alice">Alice</a></article>`))
	assert.False(t, ok)
	assert.Contains(t, buf.String(), `"field":"id"`)
	assert.Contains(t, buf.String(), "no status link")
}

func TestExtractContentFallsBackToItem(t *testing.T) {
	ex := NewExtractor(DefaultSelectors())

	cand, ok := ex.Extract(mustNode(t, `<article><a href="/bob/status/8">link text</a></article>`))
	require.True(t, ok)
	assert.Equal(t, "link text", cand.Content)
}

func TestExtractCustomIDExtractor(t *testing.T) {
	ex := NewExtractor(DefaultSelectors())
	ex.IDExtractor = func(href string) (int64, error) {
		if href == "/bob/status/8" {
			return 800, nil
		}
		return 0, errors.New("unexpected href")
	}

	cand, ok := ex.Extract(mustNode(t, `<article><a href="/bob/status/8">x</a></article>`))
	require.True(t, ok)
	assert.Equal(t, int64(800), cand.ID)
}

func TestMarkupToText(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"line1<br>line2", "line1\nline2"},
		{"line1<BR/>line2", "line1\nline2"},
		{"<div>a</div><div>b</div>", "a\nb"},
		{"<p>one</p><p>two</p>", "one\ntwo"},
		{"&amp;", "&"},
		{"<span>a &lt;tag&gt;</span>", "a <tag>"},
		{"  <b>bold</b>  ", "bold"},
		{"", ""},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, MarkupToText(tt.in), "input %q", tt.in)
	}
}

func TestParseTimestamp(t *testing.T) {
	t.Run("zulu", func(t *testing.T) {
		got, ok := ParseTimestamp("2024-01-02T03:04:05Z")
		require.True(t, ok)
		assert.Equal(t, time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC), got)
	})

	t.Run("offset is dropped", func(t *testing.T) {
		got, ok := ParseTimestamp("2024-01-02T03:04:05+09:00")
		require.True(t, ok)
		assert.Equal(t, time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC), got)
	})

	t.Run("fractional seconds", func(t *testing.T) {
		got, ok := ParseTimestamp("2024-01-02T03:04:05.250Z")
		require.True(t, ok)
		assert.Equal(t, 250*time.Millisecond, time.Duration(got.Nanosecond()))
	})

	t.Run("naive", func(t *testing.T) {
		got, ok := ParseTimestamp("2024-01-02T03:04:05")
		require.True(t, ok)
		assert.Equal(t, time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC), got)
	})

	t.Run("garbage", func(t *testing.T) {
		_, ok := ParseTimestamp("not a date")
		assert.False(t, ok)
		_, ok = ParseTimestamp("")
		assert.False(t, ok)
	})
}

func TestStatusID(t *testing.T) {
	id, err := StatusID("https://x.com/alice/status/123?s=20")
	require.NoError(t, err)
	assert.Equal(t, int64(123), id)

	_, err = StatusID("https://x.com/alice")
	assert.Error(t, err)
}
