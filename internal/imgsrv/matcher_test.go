package imgsrv

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatcher(t *testing.T) {
	m, err := NewMatcher([]string{"imgs", "images", "a.b"}, []string{"png", "jpg"})
	require.NoError(t, err)

	cases := []struct {
		name   string
		method string
		path   string
		query  string
		want   bool
	}{
		{"size", "GET", "/imgs/photo.png", "size=100x100", true},
		{"head", "HEAD", "/images/sub/dir/photo.jpg", "rotate=90", true},
		{"keep only", "GET", "/imgs/photo.png", "keep=1", true},
		{"other params too", "GET", "/imgs/photo.png", "v=3&size=10", true},
		{"quoted prefix", "GET", "/a.b/photo.png", "size=10", true},
		{"dot is literal in prefix", "GET", "/aXb/photo.png", "size=10", false},
		{"no params", "GET", "/imgs/photo.png", "", false},
		{"empty values", "GET", "/imgs/photo.png", "size=&rotate=&keep=", false},
		{"unrelated params", "GET", "/imgs/photo.png", "v=1", false},
		{"post", "POST", "/imgs/photo.png", "size=10", false},
		{"unknown prefix", "GET", "/static/photo.png", "size=10", false},
		{"unknown ext", "GET", "/imgs/photo.gif", "size=10", false},
		{"ext must be suffix", "GET", "/imgs/photo.png.txt", "size=10", false},
		{"name required", "GET", "/imgs/.png", "size=10", false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			match, ok := m.Match(tc.method, tc.path, tc.query)
			assert.Equal(t, tc.want, ok)
			if ok {
				assert.Equal(t, tc.path, match.Path)
			}
		})
	}
}

func TestMatcherKeepsParsedQueryOnBadEscapes(t *testing.T) {
	m, err := NewMatcher([]string{"imgs"}, []string{"png"})
	require.NoError(t, err)

	match, ok := m.Match("GET", "/imgs/photo.png", "size=64&bad=%zz")
	require.True(t, ok)
	assert.Equal(t, "64", match.Query.Get("size"))
}

func TestNewMatcherRequiresLists(t *testing.T) {
	_, err := NewMatcher(nil, []string{"png"})
	assert.Error(t, err)
	_, err = NewMatcher([]string{"imgs"}, nil)
	assert.Error(t, err)
}
