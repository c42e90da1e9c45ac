package location

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionToken(t *testing.T) {
	tests := []struct {
		name      string
		href      string
		wantToken string
		wantOK    bool
	}{
		{name: "query", href: "/profile?session_id=abc123", wantToken: "abc123", wantOK: true},
		{name: "fragment", href: "/profile#session_id=abc123", wantToken: "abc123", wantOK: true},
		{name: "fragment with question mark", href: "/profile#?session_id=abc123", wantToken: "abc123", wantOK: true},
		{name: "fragment among other params", href: "/profile#state=x&session_id=abc123", wantToken: "abc123", wantOK: true},
		{name: "query wins over fragment", href: "/profile?session_id=fromquery#session_id=fromhash", wantToken: "fromquery", wantOK: true},
		{name: "empty query value falls back to fragment", href: "/profile?session_id=#session_id=fromhash", wantToken: "fromhash", wantOK: true},
		{name: "escaped value", href: "/profile?session_id=a%2Bb", wantToken: "a+b", wantOK: true},
		{name: "absent", href: "/profile?tab=outfits", wantOK: false},
		{name: "plain anchor", href: "/#faq", wantOK: false},
		{name: "empty value", href: "/profile?session_id=", wantOK: false},
		{name: "other param with similar name", href: "/profile?my_session_id=abc", wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			loc, err := Parse(tt.href)
			require.NoError(t, err)

			token, ok := SessionToken(loc)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantToken, token)
			assert.Equal(t, tt.wantOK, HasSessionToken(loc))
		})
	}
}

func TestSessionTokenIsPure(t *testing.T) {
	loc := MustParse("/profile#session_id=abc123")
	for i := 0; i < 3; i++ {
		token, ok := SessionToken(loc)
		assert.True(t, ok)
		assert.Equal(t, "abc123", token)
	}
	assert.Equal(t, "/profile#session_id=abc123", loc.String())
}

func TestWithoutSessionToken(t *testing.T) {
	tests := []struct {
		href string
		want string
	}{
		{href: "/profile?session_id=abc", want: "/profile"},
		{href: "/profile#session_id=abc", want: "/profile"},
		{href: "/profile?tab=looks&session_id=abc&sort=new", want: "/profile?tab=looks&sort=new"},
		{href: "/profile?session_id=a#session_id=b", want: "/profile"},
		{href: "/profile#state=x&session_id=abc", want: "/profile#state=x"},
		{href: "/profile#faq", want: "/profile#faq"},
		{href: "/profile?q=a%20b", want: "/profile?q=a%20b"},
	}

	for _, tt := range tests {
		t.Run(tt.href, func(t *testing.T) {
			got := WithoutSessionToken(MustParse(tt.href))
			assert.Equal(t, tt.want, got.String())
			assert.False(t, HasSessionToken(got))
		})
	}
}

func TestParseDefaultsPath(t *testing.T) {
	loc, err := Parse("?session_id=x")
	require.NoError(t, err)
	assert.Equal(t, "/", loc.Path)

	_, err = Parse("%zz")
	assert.Error(t, err)
}

func TestHistory(t *testing.T) {
	h := NewHistory(MustParse("/profile?session_id=abc"))
	assert.Equal(t, 1, h.Len())

	require.NoError(t, h.Replace(MustParse("/profile")))
	assert.Equal(t, 1, h.Len(), "replace must not add an entry")
	assert.Equal(t, "/profile", h.Current().String())

	require.NoError(t, h.Push(MustParse("/results")))
	assert.Equal(t, 2, h.Len())
	assert.Equal(t, "/results", h.Current().String())

	entries := h.Entries()
	for _, e := range entries {
		assert.False(t, HasSessionToken(e))
	}

	empty := &History{}
	assert.ErrorIs(t, empty.Replace(MustParse("/")), ErrEmptyHistory)
	assert.Equal(t, "/", empty.Current().String())
}
