package passphrase

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestSource(env map[string]string, tty bool, input string, readErr error) *Source {
	s := NewSource("PROXY_JWT_SECRET", "JWT secret")
	s.lookup = func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}
	s.terminal = func() bool { return tty }
	s.read = func() ([]byte, error) { return []byte(input), readErr }
	s.prompt = &bytes.Buffer{}
	return s
}

func TestSourcePrefersEnvironment(t *testing.T) {
	s := newTestSource(map[string]string{"PROXY_JWT_SECRET": "from-env"}, true, "typed", nil)
	got, err := s.Get()
	require.NoError(t, err)
	require.Equal(t, "from-env", got)
}

func TestSourceRejectsEmptyEnvironment(t *testing.T) {
	s := newTestSource(map[string]string{"PROXY_JWT_SECRET": "  "}, true, "typed", nil)
	_, err := s.Get()
	require.ErrorContains(t, err, "set but empty")
}

func TestSourcePromptsOnTerminal(t *testing.T) {
	s := newTestSource(nil, true, "typed", nil)
	got, err := s.Get()
	require.NoError(t, err)
	require.Equal(t, "typed", got)
	require.Contains(t, s.prompt.(*bytes.Buffer).String(), "Enter JWT secret")

	// cached
	s.read = func() ([]byte, error) { return nil, errors.New("should not be called") }
	got, err = s.Get()
	require.NoError(t, err)
	require.Equal(t, "typed", got)
}

func TestSourceWithoutTerminal(t *testing.T) {
	s := newTestSource(nil, false, "", nil)
	_, err := s.Get()
	require.ErrorContains(t, err, "PROXY_JWT_SECRET")
}

func TestSourceRejectsBlankInput(t *testing.T) {
	s := newTestSource(nil, true, "   ", nil)
	_, err := s.Get()
	require.ErrorContains(t, err, "cannot be empty")
}
