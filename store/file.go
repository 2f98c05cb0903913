package store

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/hashid/pkg/hashid"
	"golang.org/x/crypto/nacl/secretbox"

	authclient "github.com/goliatone/go-auth-client"
)

var _ authclient.TokenStore = (*FileStore)(nil)

const (
	filePerm  = 0o600
	nonceSize = 24
	keySize   = 32
)

// fileRecord is one namespace entry in the credential file.
type fileRecord struct {
	Tokens *authclient.TokenPair `json:"tokens,omitempty"`
	User   *authclient.User      `json:"user,omitempty"`
}

// FileStore persists credentials to a JSON file so sessions survive process
// restarts. Entries are namespaced by a stable hash of the API base URL:
// clients pointed at different backends share one file without clobbering
// each other, the same way other CLI credential caches key by host.
//
// Writes go through a temp file and rename so a crash never leaves a
// half-written credential file. An optional 32-byte key encrypts the whole
// file at rest with nacl/secretbox.
type FileStore struct {
	path      string
	namespace string
	key       *[keySize]byte

	mu sync.Mutex
}

// FileStoreOption customizes a FileStore.
type FileStoreOption func(*FileStore)

// WithEncryptionKey enables at-rest encryption; key must be 32 bytes.
func WithEncryptionKey(key []byte) FileStoreOption {
	return func(s *FileStore) {
		if len(key) != keySize {
			return
		}
		s.key = new([keySize]byte)
		copy(s.key[:], key)
	}
}

// NewFileStore opens (or will create) the credential file at path, scoping
// entries to the given API base URL.
func NewFileStore(path, baseURL string, opts ...FileStoreOption) (*FileStore, error) {
	if path == "" {
		return nil, goerrors.New("credential file path is required", goerrors.CategoryBadInput)
	}

	ns, err := hashid.NewUUID(baseURL)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "unable to derive storage namespace")
	}

	s := &FileStore{
		path:      path,
		namespace: ns.String(),
	}

	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}

	return s, nil
}

func (s *FileStore) Save(_ context.Context, pair authclient.TokenPair) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.update(func(rec *fileRecord) {
		rec.Tokens = &pair
	})
}

func (s *FileStore) Load(_ context.Context) (*authclient.TokenPair, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.read()
	if err != nil {
		return nil, err
	}
	if rec == nil || rec.Tokens == nil {
		return nil, nil
	}
	pair := *rec.Tokens
	return &pair, nil
}

func (s *FileStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.update(func(rec *fileRecord) {
		rec.Tokens = nil
	})
}

func (s *FileStore) SaveUser(_ context.Context, user *authclient.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.update(func(rec *fileRecord) {
		rec.User = user.Clone()
	})
}

func (s *FileStore) LoadUser(_ context.Context) (*authclient.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.read()
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, nil
	}
	return rec.User.Clone(), nil
}

func (s *FileStore) ClearUser(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.update(func(rec *fileRecord) {
		rec.User = nil
	})
}

func (s *FileStore) update(apply func(*fileRecord)) error {
	records, err := s.readAll()
	if err != nil {
		return err
	}

	rec := records[s.namespace]
	apply(&rec)

	if rec.Tokens == nil && rec.User == nil {
		delete(records, s.namespace)
	} else {
		records[s.namespace] = rec
	}

	return s.writeAll(records)
}

func (s *FileStore) read() (*fileRecord, error) {
	records, err := s.readAll()
	if err != nil {
		return nil, err
	}
	rec, ok := records[s.namespace]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (s *FileStore) readAll() (map[string]fileRecord, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return map[string]fileRecord{}, nil
	}
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "unable to read credential file")
	}

	if s.key != nil {
		if data, err = s.open(data); err != nil {
			return nil, err
		}
	}

	records := map[string]fileRecord{}
	if len(data) == 0 {
		return records, nil
	}
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "unable to parse credential file")
	}

	return records, nil
}

func (s *FileStore) writeAll(records map[string]fileRecord) error {
	data, err := json.Marshal(records)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "unable to encode credential file")
	}

	if s.key != nil {
		if data, err = s.seal(data); err != nil {
			return err
		}
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".credentials-*")
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "unable to create temp credential file")
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return goerrors.Wrap(err, goerrors.CategoryInternal, "unable to write credential file")
	}
	if err := tmp.Chmod(filePerm); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return goerrors.Wrap(err, goerrors.CategoryInternal, "unable to set credential file mode")
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return goerrors.Wrap(err, goerrors.CategoryInternal, "unable to close credential file")
	}

	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return goerrors.Wrap(err, goerrors.CategoryInternal, "unable to replace credential file")
	}

	return nil
}

func (s *FileStore) seal(plain []byte) ([]byte, error) {
	var nonce [nonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "unable to generate nonce")
	}
	return secretbox.Seal(nonce[:], plain, &nonce, s.key), nil
}

func (s *FileStore) open(sealed []byte) ([]byte, error) {
	if len(sealed) < nonceSize {
		return nil, goerrors.New("credential file is corrupt", goerrors.CategoryInternal)
	}

	var nonce [nonceSize]byte
	copy(nonce[:], sealed[:nonceSize])

	plain, ok := secretbox.Open(nil, sealed[nonceSize:], &nonce, s.key)
	if !ok {
		return nil, goerrors.New("unable to decrypt credential file", goerrors.CategoryInternal)
	}
	return plain, nil
}
