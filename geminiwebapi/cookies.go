package geminiwebapi

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
)

// Credential file handling ---------------------------------------------------

type cookieEntry struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// LoadCookieFile reads a browser-exported cookie file (a JSON array of
// {name, value} pairs) and returns the __Secure-1PSID and __Secure-1PSIDTS
// values. Cookie names are matched case-insensitively.
func LoadCookieFile(path string) (string, string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", "", &AuthError{Reason: AuthMissingCredential, Msg: "cookie file: " + err.Error()}
	}
	var entries []cookieEntry
	if err = json.Unmarshal(b, &entries); err != nil {
		return "", "", &AuthError{Reason: AuthMissingCredential, Msg: "cookie file is not valid JSON: " + err.Error()}
	}
	var psid, psidts string
	for _, e := range entries {
		switch strings.ToUpper(e.Name) {
		case strings.ToUpper(CookiePSID):
			psid = e.Value
		case strings.ToUpper(CookiePSIDTS):
			psidts = e.Value
		}
	}
	if psid == "" {
		return "", "", &AuthError{Reason: AuthMissingCredential, Msg: CookiePSID + " not found in " + path}
	}
	if psidts == "" {
		return "", "", &AuthError{Reason: AuthMissingCredential, Msg: CookiePSIDTS + " not found in " + path}
	}
	return psid, psidts, nil
}

// Cookie snapshot ------------------------------------------------------------
//
// A rotated __Secure-1PSIDTS is only valid for a while; persisting it next to
// the credential file lets a restarted process resume without burning a
// rotation.

// CookieSnapshotPath derives the snapshot file path from the credential file
// path. It replaces the .json suffix with .cookies, or appends .cookies.
func CookieSnapshotPath(mainPath string) string {
	if strings.HasSuffix(mainPath, ".json") {
		return strings.TrimSuffix(mainPath, ".json") + ".cookies"
	}
	return mainPath + ".cookies"
}

// ReadCookieSnapshot loads a previously written cookie snapshot. The second
// return value reports whether a snapshot existed.
func ReadCookieSnapshot(mainPath string) (map[string]string, bool, error) {
	snap := CookieSnapshotPath(mainPath)
	b, err := os.ReadFile(snap)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, err
	}
	out := map[string]string{}
	if len(b) > 0 {
		if err = json.Unmarshal(b, &out); err != nil {
			return nil, false, err
		}
	}
	return out, true, nil
}

// WriteCookieSnapshot persists the cookie map next to the credential file.
func WriteCookieSnapshot(mainPath string, cookies map[string]string) error {
	snap := CookieSnapshotPath(mainPath)
	if err := os.MkdirAll(filepath.Dir(snap), 0o700); err != nil {
		return err
	}
	f, err := os.Create(snap)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()
	return json.NewEncoder(f).Encode(cookies)
}
