package geminiwebapi

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeCookieFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cookies.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadCookieFile(t *testing.T) {
	path := writeCookieFile(t, `[
		{"name": "__Secure-1PSID", "value": "psid-value"},
		{"name": "__Secure-1PSIDTS", "value": "psidts-value"},
		{"name": "NID", "value": "ignored"}
	]`)

	psid, psidts, err := LoadCookieFile(path)
	require.NoError(t, err)
	assert.Equal(t, "psid-value", psid)
	assert.Equal(t, "psidts-value", psidts)
}

func TestLoadCookieFileCaseInsensitive(t *testing.T) {
	path := writeCookieFile(t, `[
		{"name": "__secure-1psid", "value": "lower-psid"},
		{"name": "__SECURE-1PSIDTS", "value": "upper-psidts"}
	]`)

	psid, psidts, err := LoadCookieFile(path)
	require.NoError(t, err)
	assert.Equal(t, "lower-psid", psid)
	assert.Equal(t, "upper-psidts", psidts)
}

func TestLoadCookieFileMissingCredential(t *testing.T) {
	path := writeCookieFile(t, `[{"name": "__Secure-1PSID", "value": "only-psid"}]`)

	_, _, err := LoadCookieFile(path)
	var authErr *AuthError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, AuthMissingCredential, authErr.Reason)
}

func TestLoadCookieFileInvalidJSON(t *testing.T) {
	path := writeCookieFile(t, `{not json`)

	_, _, err := LoadCookieFile(path)
	var authErr *AuthError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, AuthMissingCredential, authErr.Reason)
}

func TestLoadCookieFileAbsent(t *testing.T) {
	_, _, err := LoadCookieFile(filepath.Join(t.TempDir(), "nope.json"))
	var authErr *AuthError
	require.ErrorAs(t, err, &authErr)
}

func TestCookieSnapshotPath(t *testing.T) {
	assert.Equal(t, "/tmp/c.cookies", CookieSnapshotPath("/tmp/c.json"))
	assert.Equal(t, "/tmp/creds.cookies", CookieSnapshotPath("/tmp/creds"))
}

func TestCookieSnapshotRoundTrip(t *testing.T) {
	mainPath := filepath.Join(t.TempDir(), "creds.json")

	// No snapshot yet.
	_, ok, err := ReadCookieSnapshot(mainPath)
	require.NoError(t, err)
	assert.False(t, ok)

	cookies := map[string]string{
		CookiePSID:   "psid",
		CookiePSIDTS: "rotated-psidts",
		CookieNID:    "nid",
	}
	require.NoError(t, WriteCookieSnapshot(mainPath, cookies))

	got, ok, err := ReadCookieSnapshot(mainPath)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, cookies, got)
}
