package cf

import (
	"net/http"
	"time"
)

// Cookie is a browser cookie as exported by the capture extension.
type Cookie struct {
	Name           string  `json:"name"`
	Value          string  `json:"value"`
	Domain         string  `json:"domain"`
	Path           string  `json:"path"`
	Secure         bool    `json:"secure"`
	HTTPOnly       bool    `json:"httpOnly"`
	SameSite       string  `json:"sameSite"`
	ExpirationDate float64 `json:"expirationDate"` // unix seconds
}

// Entropy holds the fingerprint of the browser that solved the challenge.
// cf_clearance is bound to the user agent, so requests must reuse it.
type Entropy struct {
	UserAgent string   `json:"userAgent"`
	Language  string   `json:"language"`
	Languages []string `json:"languages"`
	Platform  string   `json:"platform"`
}

// BypassData is what gets stored per domain after a challenge was solved
// in a real browser.
type BypassData struct {
	CapturedAt string            `json:"capturedAt"`
	URL        string            `json:"url"`
	Domain     string            `json:"domain"`
	AllCookies []Cookie          `json:"allCookies,omitempty"`
	Entropy    Entropy           `json:"entropy"`
	Headers    map[string]string `json:"headers"`

	CfClearance       string             `json:"cfClearance,omitempty"`
	CfClearanceStruct *CfClearanceCookie `json:"cfClearanceStruct,omitempty"`
}

// CfClearanceCookie is the parsed form of a raw cf_clearance Set-Cookie line.
type CfClearanceCookie struct {
	Name     string     `json:"name"`
	Value    string     `json:"value"`
	Domain   string     `json:"domain,omitempty"`
	Path     string     `json:"path,omitempty"`
	Expires  *time.Time `json:"expires,omitempty"`
	HttpOnly bool       `json:"httpOnly"`
	Secure   bool       `json:"secure"`
	SameSite string     `json:"sameSite,omitempty"`
}

// IsExpired reports whether the data is older than maxAge. Unparsable
// timestamps count as expired.
func (b *BypassData) IsExpired(maxAge time.Duration) bool {
	capturedTime, err := time.Parse(time.RFC3339, b.CapturedAt)
	if err != nil {
		return true
	}
	return time.Since(capturedTime) > maxAge
}

func (b *BypassData) HasCookies() bool {
	return len(b.AllCookies) > 0 || b.CfClearanceStruct != nil
}

// HTTPCookies converts the stored cookies for use with a cookie jar or
// request. The structured cf_clearance wins over a same-named entry in
// AllCookies.
func (b *BypassData) HTTPCookies() []*http.Cookie {
	cookies := make([]*http.Cookie, 0, len(b.AllCookies)+1)
	for _, c := range b.AllCookies {
		if c.Name == "cf_clearance" && b.CfClearanceStruct != nil {
			continue
		}
		hc := &http.Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Secure:   c.Secure,
			HttpOnly: c.HTTPOnly,
		}
		if c.ExpirationDate > 0 {
			hc.Expires = time.Unix(int64(c.ExpirationDate), 0)
		}
		cookies = append(cookies, hc)
	}

	if cc := b.CfClearanceStruct; cc != nil {
		hc := &http.Cookie{
			Name:     "cf_clearance",
			Value:    cc.Value,
			Domain:   cc.Domain,
			Path:     cc.Path,
			Secure:   cc.Secure,
			HttpOnly: cc.HttpOnly,
		}
		if cc.Expires != nil {
			hc.Expires = *cc.Expires
		}
		cookies = append(cookies, hc)
	}
	return cookies
}
