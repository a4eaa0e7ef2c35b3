package keygen

import (
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

var hexPattern = regexp.MustCompile(`^[0-9a-f]{32}$`)

func TestLicenseKeyFormat(t *testing.T) {
	key := LicenseKey()
	require.Len(t, key, 32)
	require.Regexp(t, hexPattern, key)
}

func TestLicenseKeyDistinct(t *testing.T) {
	seen := make(map[string]struct{}, 1000)
	for i := 0; i < 1000; i++ {
		key := LicenseKey()
		require.Regexp(t, hexPattern, key)
		_, dup := seen[key]
		require.False(t, dup, "duplicate license key generated: %s", key)
		seen[key] = struct{}{}
	}
	require.Len(t, seen, 1000)
}

func TestWidgetKeyFormat(t *testing.T) {
	for i := 0; i < 100; i++ {
		key := WidgetKey()
		require.Len(t, key, WidgetKeyLength)
		for _, r := range key {
			require.True(t, strings.ContainsRune(base62Alphabet, r), "unexpected character %q", r)
		}
	}
}

func TestWidgetKeyDistinct(t *testing.T) {
	seen := make(map[string]struct{}, 1000)
	for i := 0; i < 1000; i++ {
		seen[WidgetKey()] = struct{}{}
	}
	require.Len(t, seen, 1000)
}
