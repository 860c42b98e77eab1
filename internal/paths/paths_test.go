package paths

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	tt := []struct {
		in  string
		out string
	}{
		{in: "/foo/bar", out: "/foo/bar"},
		{in: "/Foo/Bar", out: "/foo/bar"},
		{in: "https://host/a/b?q=1", out: "/a/b"},
		{in: "https://Example.COM/Products/Lamp#reviews", out: "/products/lamp"},
		{in: "http://host", out: "/"},
		{in: "http://host/", out: "/"},
		{in: "https://host/a%20b", out: "/a%20b"},
		{in: "/a%20b", out: "/a%20b"},
		{in: "/a b", out: "/a%20b"},
		{in: "https://h/c%20d", out: "/c%20d"},
		{in: "/c%20d", out: "/c%20d"},
		{in: "/%C3%BC/Ok", out: "/%c3%bc/ok"},
		{in: "/ü", out: "/%c3%bc"},
		{in: "/a%2Fb", out: "/a%2fb"},
		{in: "/", out: "/"},
		{in: "/with/trailing/", out: "/with/trailing/"},
		{in: "/query?is=dropped", out: "/query"},
		{in: "/x?y=1", out: "/x"},
		{in: "/frag#ment", out: "/frag"},
		{in: "//double/slash", out: "//double/slash"},
		{in: "ftp://files.host/Dir/File.TXT", out: "/dir/file.txt"},
	}

	for _, tc := range tt {
		t.Run(tc.in, func(t *testing.T) {
			got, err := Normalize(tc.in)
			require.NoError(t, err)
			assert.Equal(t, tc.out, got)
		})
	}
}

func TestNormalize_Invalid(t *testing.T) {
	for _, in := range []string{"not-a-url-or-path", "", "foo/bar", "://nothing", "mailto:someone@host", " /leading-space", "/bad%zzescape"} {
		t.Run(in, func(t *testing.T) {
			_, err := Normalize(in)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidIdentifier))
		})
	}
}

func TestNormalize_Idempotent(t *testing.T) {
	inputs := []string{
		"/Foo/Bar",
		"https://host/a/b?q=1",
		"http://HOST/Mixed/Case/",
		"https://host/a%20b",
		"/already/canonical",
		"/foo://bar",
		"/ünïcode/PATH",
		"/a b",
		"/a%2Fb",
		"/x?y=1",
		"/keep!these$chars",
	}

	for _, in := range inputs {
		t.Run(in, func(t *testing.T) {
			once, err := Normalize(in)
			require.NoError(t, err)

			twice, err := Normalize(once)
			require.NoError(t, err)
			assert.Equal(t, once, twice)
		})
	}
}

func TestNormalize_SameResourceSamePath(t *testing.T) {
	pairs := [][2]string{
		{"/foo/bar", "/Foo/Bar"},
		{"https://a.host/X", "/x"},
		{"https://h/c%20d", "/c%20d"},
		{"https://h/c%20d", "/C d"},
		{"http://h/x?y=1", "/x?y=2"},
	}

	for _, pair := range pairs {
		t.Run(pair[0]+" "+pair[1], func(t *testing.T) {
			a, err := Normalize(pair[0])
			require.NoError(t, err)

			b, err := Normalize(pair[1])
			require.NoError(t, err)
			assert.Equal(t, a, b)
		})
	}
}
