package portal

import (
	"encoding/json"
	"net/http"
	"net/http/cookiejar"
	"net/url"
)

// serializedCookie is the stored form of one portal cookie. The portal only
// issues host-scoped session cookies, so name/value/path is all that matters.
type serializedCookie struct {
	Name  string `json:"name"`
	Value string `json:"value"`
	Path  string `json:"path,omitempty"`
}

// snapshotJar serializes the cookies the jar holds for the portal origin.
func snapshotJar(jar *cookiejar.Jar, origin *url.URL) ([]byte, error) {
	cookies := jar.Cookies(origin)
	out := make([]serializedCookie, 0, len(cookies))
	for _, c := range cookies {
		out = append(out, serializedCookie{Name: c.Name, Value: c.Value, Path: c.Path})
	}
	return json.Marshal(out)
}

// restoreJar builds a cookie jar seeded from a previously snapshotted blob.
// A nil or empty blob yields a fresh empty jar.
func restoreJar(blob []byte, origin *url.URL) (*cookiejar.Jar, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	if len(blob) == 0 {
		return jar, nil
	}

	var stored []serializedCookie
	if err := json.Unmarshal(blob, &stored); err != nil {
		return nil, err
	}

	cookies := make([]*http.Cookie, 0, len(stored))
	for _, c := range stored {
		cookies = append(cookies, &http.Cookie{Name: c.Name, Value: c.Value, Path: c.Path})
	}
	jar.SetCookies(origin, cookies)
	return jar, nil
}
