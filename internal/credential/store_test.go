package credential

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleBundle() Bundle {
	exp := time.Date(2027, 3, 1, 12, 0, 0, 0, time.UTC)
	return Bundle{
		{Name: "SID", Value: "abc", Domain: ".google.com", Path: "/", Expires: &exp, Secure: true, HTTPOnly: true},
		{Name: "HSID", Value: "def", Domain: ".google.com"},
		{Name: "NID", Value: "ghi", Domain: "colab.research.google.com", SameSite: "Lax"},
	}
}

func stores(t *testing.T) map[string]Store {
	dir := t.TempDir()
	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i)
	}
	return map[string]Store{
		"file":   NewFileStore(filepath.Join(dir, "plain", "bundle.json")),
		"sealed": NewSealedStore(filepath.Join(dir, "sealed", "bundle.bin"), func() ([]byte, error) { return key, nil }),
	}
}

func TestLoadMissingIsAbsent(t *testing.T) {
	t.Parallel()
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			b, ok, err := s.Load(context.Background())
			require.NoError(t, err)
			assert.False(t, ok)
			assert.Nil(t, b)
		})
	}
}

func TestRoundTripPreservesOrder(t *testing.T) {
	t.Parallel()
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			in := sampleBundle()
			require.NoError(t, s.Save(ctx, in))

			out, ok, err := s.Load(ctx)
			require.NoError(t, err)
			require.True(t, ok)
			assert.True(t, in.Equal(out), "got %+v", out)
			assert.Equal(t, "SID", out[0].Name)
			assert.Equal(t, "NID", out[2].Name)
		})
	}
}

func TestSaveIsIdempotent(t *testing.T) {
	t.Parallel()
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, s.Save(ctx, Bundle{{Name: "old", Value: "1", Domain: "x"}}))

			in := sampleBundle()
			require.NoError(t, s.Save(ctx, in))
			require.NoError(t, s.Save(ctx, in))

			out, ok, err := s.Load(ctx)
			require.NoError(t, err)
			require.True(t, ok)
			assert.True(t, in.Equal(out))
		})
	}
}

func TestSaveCreatesParentWithPrivateMode(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "a", "b", "bundle.json")
	s := NewFileStore(path)
	require.NoError(t, s.Save(context.Background(), sampleBundle()))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files left behind")
}

func TestSaveFailureIsReported(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o600))

	s := NewFileStore(filepath.Join(blocker, "bundle.json"))
	require.Error(t, s.Save(context.Background(), sampleBundle()))
}

func TestLoadCorruptReturnsError(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "bundle.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	_, ok, err := NewFileStore(path).Load(context.Background())
	require.Error(t, err)
	assert.False(t, ok)
}

func TestSealedRejectsWrongKey(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "bundle.bin")
	k1 := make([]byte, 32)
	k2 := make([]byte, 32)
	k2[0] = 1

	require.NoError(t, NewSealedStore(path, func() ([]byte, error) { return k1, nil }).Save(context.Background(), sampleBundle()))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "SID")

	_, _, err = NewSealedStore(path, func() ([]byte, error) { return k2, nil }).Load(context.Background())
	require.ErrorIs(t, err, ErrSealedCorrupt)
}

func TestCanceledContext(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := NewFileStore(filepath.Join(t.TempDir(), "bundle.json"))
	require.ErrorIs(t, s.Save(ctx, sampleBundle()), context.Canceled)
	_, _, err := s.Load(ctx)
	require.ErrorIs(t, err, context.Canceled)
}

func TestBundleEqual(t *testing.T) {
	t.Parallel()
	a := sampleBundle()
	b := sampleBundle()
	assert.True(t, a.Equal(b))

	b[1], b[2] = b[2], b[1]
	assert.False(t, a.Equal(b), "order matters")

	c := sampleBundle()
	c[0].Expires = nil
	assert.False(t, a.Equal(c))

	assert.True(t, Bundle(nil).Empty())
	assert.True(t, Bundle(nil).Equal(Bundle{}))
}
