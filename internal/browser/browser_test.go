package browser

import (
	"testing"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/playwright-community/playwright-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neboloop/sessionkeeper/internal/credential"
)

func TestChromeFlags(t *testing.T) {
	flags := chromeFlags(Options{NoSandbox: true, Width: 800, Height: 600, ExtraFlags: []string{"--lang=en"}})
	assert.Contains(t, flags, "--no-sandbox")
	assert.Contains(t, flags, "--disable-dev-shm-usage")
	assert.Contains(t, flags, "--disable-blink-features=AutomationControlled")
	assert.Contains(t, flags, "--window-size=800,600")
	assert.Equal(t, "--lang=en", flags[len(flags)-1])

	assert.NotContains(t, chromeFlags(Options{}.withDefaults()), "--no-sandbox")
}

func TestOptionsDefaults(t *testing.T) {
	o := Options{}.withDefaults()
	assert.Equal(t, 1920, o.Width)
	assert.Equal(t, 1080, o.Height)
	assert.Equal(t, 60*time.Second, o.OpTimeout)
}

func TestSplitFlag(t *testing.T) {
	name, value := splitFlag("--lang=en-US")
	assert.Equal(t, "lang", name)
	assert.Equal(t, "en-US", value)

	name, value = splitFlag("--mute-audio")
	assert.Equal(t, "mute-audio", name)
	assert.Equal(t, true, value)
}

func TestNewFactoryUnknownDriver(t *testing.T) {
	_, err := NewFactory("selenium", Options{}, nil)
	require.Error(t, err)

	f, err := NewFactory(DriverPlaywright, Options{}, nil)
	require.NoError(t, err)
	assert.NotNil(t, f)
}

func bundle() credential.Bundle {
	exp := time.Unix(1900000000, 0).UTC()
	return credential.Bundle{
		{Name: "SID", Value: "a", Domain: ".google.com", Path: "/", Expires: &exp, Secure: true, HTTPOnly: true, SameSite: "Lax"},
		{Name: "tmp", Value: "b", Domain: "colab.research.google.com"},
	}
}

func TestCDPCookieConversion(t *testing.T) {
	params := toCDPCookies(bundle())
	require.Len(t, params, 2)
	assert.Equal(t, "/", params[1].Path, "missing path defaults to root")
	require.NotNil(t, params[0].Expires)
	assert.Nil(t, params[1].Expires)
	assert.Equal(t, network.CookieSameSiteLax, params[0].SameSite)

	back := fromCDPCookies([]*network.Cookie{
		{Name: "SID", Value: "a", Domain: ".google.com", Path: "/", Expires: 1900000000, Secure: true, HTTPOnly: true, SameSite: network.CookieSameSiteLax},
		{Name: "tmp", Value: "b", Domain: "colab.research.google.com", Path: "/", Expires: -1, Session: true},
	})
	require.Len(t, back, 2)
	assert.True(t, back[0].Equal(bundle()[0]))
	assert.Nil(t, back[1].Expires)
}

func TestPlaywrightCookieConversion(t *testing.T) {
	opts := toPlaywrightCookies(bundle())
	require.Len(t, opts, 2)
	assert.Equal(t, ".google.com", *opts[0].Domain)
	assert.InDelta(t, 1900000000, *opts[0].Expires, 0.001)
	assert.Equal(t, playwright.SameSiteAttributeLax, opts[0].SameSite)
	assert.Nil(t, opts[1].Expires)
	assert.Nil(t, opts[1].Secure)

	back := fromPlaywrightCookies([]playwright.Cookie{
		{Name: "SID", Value: "a", Domain: ".google.com", Path: "/", Expires: 1900000000, Secure: true, HttpOnly: true, SameSite: playwright.SameSiteAttributeLax},
	})
	require.Len(t, back, 1)
	assert.True(t, back[0].Equal(bundle()[0]))
}

func TestExpiresFromEpoch(t *testing.T) {
	assert.Nil(t, expiresFromEpoch(-1))
	assert.Nil(t, expiresFromEpoch(0))
	got := expiresFromEpoch(1.5)
	require.NotNil(t, got)
	assert.Equal(t, time.Unix(1, 500000000).UTC(), *got)
	assert.Equal(t, 0.0, epochFromExpires(nil))
}
