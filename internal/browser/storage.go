package browser

import (
	"math"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	"github.com/playwright-community/playwright-go"

	"github.com/neboloop/sessionkeeper/internal/credential"
)

const defaultCookiePath = "/"

// expiresFromEpoch converts a cookie expiry in epoch seconds. Values <= 0 mark
// session cookies.
func expiresFromEpoch(sec float64) *time.Time {
	if sec <= 0 || math.IsInf(sec, 0) || math.IsNaN(sec) {
		return nil
	}
	whole, frac := math.Modf(sec)
	t := time.Unix(int64(whole), int64(frac*1e9)).UTC()
	return &t
}

func epochFromExpires(t *time.Time) float64 {
	if t == nil {
		return 0
	}
	return float64(t.UnixNano()) / 1e9
}

func cookiePath(p string) string {
	if p == "" {
		return defaultCookiePath
	}
	return p
}

func toCDPCookies(b credential.Bundle) []*network.CookieParam {
	out := make([]*network.CookieParam, 0, len(b))
	for _, t := range b {
		c := &network.CookieParam{
			Name:     t.Name,
			Value:    t.Value,
			Domain:   t.Domain,
			Path:     cookiePath(t.Path),
			Secure:   t.Secure,
			HTTPOnly: t.HTTPOnly,
			SameSite: network.CookieSameSite(t.SameSite),
		}
		if t.Expires != nil {
			exp := cdp.TimeSinceEpoch(*t.Expires)
			c.Expires = &exp
		}
		out = append(out, c)
	}
	return out
}

func fromCDPCookies(cookies []*network.Cookie) credential.Bundle {
	out := make(credential.Bundle, 0, len(cookies))
	for _, c := range cookies {
		t := credential.Token{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Secure:   c.Secure,
			HTTPOnly: c.HTTPOnly,
			SameSite: string(c.SameSite),
		}
		if !c.Session {
			t.Expires = expiresFromEpoch(c.Expires)
		}
		out = append(out, t)
	}
	return out
}

func toPlaywrightCookies(b credential.Bundle) []playwright.OptionalCookie {
	out := make([]playwright.OptionalCookie, 0, len(b))
	for _, t := range b {
		c := playwright.OptionalCookie{
			Name:   t.Name,
			Value:  t.Value,
			Domain: playwright.String(t.Domain),
			Path:   playwright.String(cookiePath(t.Path)),
		}
		if t.Expires != nil {
			c.Expires = playwright.Float(epochFromExpires(t.Expires))
		}
		if t.HTTPOnly {
			c.HttpOnly = playwright.Bool(true)
		}
		if t.Secure {
			c.Secure = playwright.Bool(true)
		}
		switch t.SameSite {
		case "Strict":
			c.SameSite = playwright.SameSiteAttributeStrict
		case "None":
			c.SameSite = playwright.SameSiteAttributeNone
		case "Lax":
			c.SameSite = playwright.SameSiteAttributeLax
		}
		out = append(out, c)
	}
	return out
}

func fromPlaywrightCookies(cookies []playwright.Cookie) credential.Bundle {
	out := make(credential.Bundle, 0, len(cookies))
	for _, c := range cookies {
		t := credential.Token{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Expires:  expiresFromEpoch(c.Expires),
			Secure:   c.Secure,
			HTTPOnly: c.HttpOnly,
		}
		if c.SameSite != nil {
			t.SameSite = string(*c.SameSite)
		}
		out = append(out, t)
	}
	return out
}
