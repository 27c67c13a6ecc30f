package credential

import (
	"bytes"
	"context"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/crypto/chacha20poly1305"

	"github.com/neboloop/sessionkeeper/internal/keyring"
)

var sealedMagic = []byte("KSB1")

// ErrSealedCorrupt is returned when a sealed bundle cannot be opened.
var ErrSealedCorrupt = errors.New("sealed bundle is corrupt or the key changed")

// SealedStore keeps the bundle encrypted with XChaCha20-Poly1305. The key is
// fetched lazily on first use.
type SealedStore struct {
	path string
	key  func() ([]byte, error)
	mu   sync.Mutex
	now  func() time.Time
}

// NewSealedStore returns a store at path sealed with the key returned by key.
func NewSealedStore(path string, key func() ([]byte, error)) *SealedStore {
	return &SealedStore{path: path, key: key, now: time.Now}
}

// KeyringKey returns a key source backed by the OS keychain, falling back to
// a hex key file at fallbackPath.
func KeyringKey(fallbackPath string) func() ([]byte, error) {
	return func() ([]byte, error) {
		return keyring.MasterKey(fallbackPath)
	}
}

// Path returns the backing file.
func (s *SealedStore) Path() string { return s.path }

func (s *SealedStore) Load(ctx context.Context) (Bundle, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	data, ok, err := readFile(s.path)
	if err != nil || !ok {
		return nil, ok, err
	}
	plain, err := s.open(data)
	if err != nil {
		return nil, false, err
	}
	b, err := decode(plain)
	if err != nil {
		return nil, false, fmt.Errorf("decode %s: %w", s.path, err)
	}
	return b, true, nil
}

func (s *SealedStore) Save(ctx context.Context, b Bundle) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	plain, err := encode(b, s.now())
	if err != nil {
		return err
	}
	sealed, err := s.seal(plain)
	if err != nil {
		return err
	}
	return writeAtomic(s.path, sealed)
}

func (s *SealedStore) seal(plain []byte) ([]byte, error) {
	aead, err := s.aead()
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(plain)+aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	out := append([]byte{}, sealedMagic...)
	out = append(out, aead.Seal(nonce, nonce, plain, sealedMagic)...)
	return out, nil
}

func (s *SealedStore) open(data []byte) ([]byte, error) {
	if !bytes.HasPrefix(data, sealedMagic) {
		return nil, ErrSealedCorrupt
	}
	aead, err := s.aead()
	if err != nil {
		return nil, err
	}
	data = data[len(sealedMagic):]
	if len(data) < aead.NonceSize() {
		return nil, ErrSealedCorrupt
	}
	nonce, ct := data[:aead.NonceSize()], data[aead.NonceSize():]
	plain, err := aead.Open(nil, nonce, ct, sealedMagic)
	if err != nil {
		return nil, ErrSealedCorrupt
	}
	return plain, nil
}

func (s *SealedStore) aead() (cipher.AEAD, error) {
	key, err := s.key()
	if err != nil {
		return nil, fmt.Errorf("sealing key: %w", err)
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("sealing cipher: %w", err)
	}
	return aead, nil
}
