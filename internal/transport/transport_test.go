package transport

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestShellQuote_EscapesEmbeddedQuote(t *testing.T) {
	require.Equal(t, `'it'\''s'`, shellQuote("it's"))
	require.Equal(t, "'/plain/path'", shellQuote("/plain/path"))
}

func TestNew_RequiresHost(t *testing.T) {
	_, err := New(Config{}, nil)
	require.Error(t, err)
}

func TestNew_DefaultsPortAndTimeout(t *testing.T) {
	c, err := New(Config{Host: "127.0.0.1", User: "x", Password: "y"}, nil)
	require.NoError(t, err)
	require.Equal(t, 22, c.cfg.Port)
	require.NotZero(t, c.cfg.DialTimeout)
}

func TestNew_PrefersKeyAuthWhenBothPresent(t *testing.T) {
	_, err := New(Config{Host: "h", Password: "y", KeyPath: "/does/not/exist"}, nil)
	require.Error(t, err) // key path is read eagerly; missing file must surface here
}
