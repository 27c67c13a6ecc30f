package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neboloop/sessionkeeper/internal/browser/browsertest"
	"github.com/neboloop/sessionkeeper/internal/clock"
	"github.com/neboloop/sessionkeeper/internal/config"
	"github.com/neboloop/sessionkeeper/internal/credential"
)

const (
	notebookURL = "https://colab.research.google.com/drive/abc"
	accountURL  = "https://myaccount.google.com/"
	signInURL   = "https://accounts.google.com/v3/signin/identifier"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("..", "..", "etc", "keeper.yaml"))
	require.NoError(t, err)
	t.Setenv("KEEPER_TARGET_URL", notebookURL)
	c, err := config.LoadFromBytes(data)
	require.NoError(t, err)
	return c
}

func testBundle() credential.Bundle {
	return credential.Bundle{
		{Name: "SID", Value: "s", Domain: ".google.com"},
		{Name: "HSID", Value: "h", Domain: ".google.com"},
	}
}

func newLoginDeps(t *testing.T, visible, headless *browsertest.Pool) (loginDeps, *bytes.Buffer) {
	t.Helper()
	out := &bytes.Buffer{}
	return loginDeps{
		cfg:      testConfig(t),
		visible:  visible.Factory(),
		headless: headless.Factory(),
		store:    credential.NewFileStore(filepath.Join(t.TempDir(), "bundle.json")),
		in:       strings.NewReader("\n"),
		out:      out,
		clock:    clock.NewFake(time.Unix(0, 0)),
	}, out
}

func TestCaptureSavesBundle(t *testing.T) {
	fake := &browsertest.Fake{Landing: accountURL, Extracted: testBundle()}
	d, out := newLoginDeps(t, &browsertest.Pool{Fakes: []*browsertest.Fake{fake}}, &browsertest.Pool{})

	require.NoError(t, capture(context.Background(), d))

	got, ok, err := d.store.Load(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, got.Equal(testBundle()))
	assert.Equal(t, []string{d.cfg.Session.LoginURL}, fake.Opened())
	assert.True(t, fake.Closed())
	assert.Contains(t, out.String(), "Saved 2 credentials")
}

func TestCaptureStillOnLogin(t *testing.T) {
	fake := &browsertest.Fake{Landing: signInURL, Extracted: testBundle()}
	d, _ := newLoginDeps(t, &browsertest.Pool{Fakes: []*browsertest.Fake{fake}}, &browsertest.Pool{})

	err := capture(context.Background(), d)
	assert.ErrorIs(t, err, errStillOnLogin)
	assert.Zero(t, fake.Count("ExtractTokens"))

	_, ok, _ := d.store.Load(context.Background())
	assert.False(t, ok)
}

func TestCaptureEmptyBundleNotSaved(t *testing.T) {
	fake := &browsertest.Fake{Landing: accountURL}
	d, _ := newLoginDeps(t, &browsertest.Pool{Fakes: []*browsertest.Fake{fake}}, &browsertest.Pool{})

	assert.ErrorIs(t, capture(context.Background(), d), errNoTokens)
	_, ok, _ := d.store.Load(context.Background())
	assert.False(t, ok)
}

func TestCaptureCanceledWhileWaiting(t *testing.T) {
	fake := &browsertest.Fake{Landing: accountURL, Extracted: testBundle()}
	d, _ := newLoginDeps(t, &browsertest.Pool{Fakes: []*browsertest.Fake{fake}}, &browsertest.Pool{})
	r, w, err := os.Pipe()
	require.NoError(t, err)
	defer w.Close()
	defer r.Close()
	d.in = r

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, capture(ctx, d), context.Canceled)
	assert.True(t, fake.Closed())
}

func TestVerifyAccess(t *testing.T) {
	fake := &browsertest.Fake{}
	d, out := newLoginDeps(t, &browsertest.Pool{}, &browsertest.Pool{Fakes: []*browsertest.Fake{fake}})
	require.NoError(t, d.store.Save(context.Background(), testBundle()))

	require.NoError(t, verifyAccess(context.Background(), d))

	require.Len(t, fake.Injected(), 1)
	assert.True(t, fake.Injected()[0].Equal(testBundle()))
	assert.Equal(t, []string{notebookURL}, fake.Opened())
	assert.True(t, fake.Closed())
	assert.Contains(t, out.String(), "verified")
}

func TestVerifyAccessRedirected(t *testing.T) {
	fake := &browsertest.Fake{Landing: signInURL}
	d, _ := newLoginDeps(t, &browsertest.Pool{}, &browsertest.Pool{Fakes: []*browsertest.Fake{fake}})
	require.NoError(t, d.store.Save(context.Background(), testBundle()))

	err := verifyAccess(context.Background(), d)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "accounts.google.com")
}

func TestVerifyAccessWithoutBundle(t *testing.T) {
	pool := &browsertest.Pool{}
	d, _ := newLoginDeps(t, &browsertest.Pool{}, pool)

	assert.ErrorIs(t, verifyAccess(context.Background(), d), errNoBundle)
	assert.Empty(t, pool.Built())
}
