package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/uptrace/bun"

	authclient "github.com/goliatone/go-auth-client"
)

var _ authclient.TokenStore = (*BunStore)(nil)

const (
	bunKeyTokens = "tokens"
	bunKeyUser   = "user"
)

type credentialRow struct {
	bun.BaseModel `bun:"table:auth_credentials,alias:ac"`

	Namespace string    `bun:"namespace,pk"`
	Key       string    `bun:"key,pk"`
	Value     []byte    `bun:"value,notnull"`
	UpdatedAt time.Time `bun:"updated_at,notnull"`
}

// BunStore persists credentials in a SQL database through bun. It suits
// applications that already carry a database and want the session to live
// alongside the rest of their state, with one row per namespace and key.
type BunStore struct {
	db        *bun.DB
	namespace string
}

// NewBunStore creates a store scoped to the given namespace. Call Init
// before first use to create the backing table.
func NewBunStore(db *bun.DB, namespace string) (*BunStore, error) {
	if db == nil {
		return nil, goerrors.New("bun db is required", goerrors.CategoryBadInput)
	}
	if namespace == "" {
		namespace = "default"
	}
	return &BunStore{db: db, namespace: namespace}, nil
}

// Init creates the credentials table if it does not exist.
func (s *BunStore) Init(ctx context.Context) error {
	_, err := s.db.NewCreateTable().
		Model((*credentialRow)(nil)).
		IfNotExists().
		Exec(ctx)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "unable to create credentials table")
	}
	return nil
}

func (s *BunStore) Save(ctx context.Context, pair authclient.TokenPair) error {
	return s.set(ctx, bunKeyTokens, pair)
}

func (s *BunStore) Load(ctx context.Context) (*authclient.TokenPair, error) {
	pair := &authclient.TokenPair{}
	ok, err := s.get(ctx, bunKeyTokens, pair)
	if err != nil || !ok {
		return nil, err
	}
	return pair, nil
}

func (s *BunStore) Clear(ctx context.Context) error {
	return s.del(ctx, bunKeyTokens)
}

func (s *BunStore) SaveUser(ctx context.Context, user *authclient.User) error {
	if user == nil {
		return s.del(ctx, bunKeyUser)
	}
	return s.set(ctx, bunKeyUser, user)
}

func (s *BunStore) LoadUser(ctx context.Context) (*authclient.User, error) {
	user := &authclient.User{}
	ok, err := s.get(ctx, bunKeyUser, user)
	if err != nil || !ok {
		return nil, err
	}
	return user, nil
}

func (s *BunStore) ClearUser(ctx context.Context) error {
	return s.del(ctx, bunKeyUser)
}

func (s *BunStore) set(ctx context.Context, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "unable to encode credentials")
	}

	row := &credentialRow{
		Namespace: s.namespace,
		Key:       key,
		Value:     data,
		UpdatedAt: time.Now(),
	}

	_, err = s.db.NewInsert().
		Model(row).
		On("CONFLICT (namespace, key) DO UPDATE").
		Set("value = EXCLUDED.value").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "unable to store credentials")
	}
	return nil
}

func (s *BunStore) get(ctx context.Context, key string, out any) (bool, error) {
	row := &credentialRow{}
	err := s.db.NewSelect().
		Model(row).
		Where("namespace = ?", s.namespace).
		Where("key = ?", key).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, goerrors.Wrap(err, goerrors.CategoryInternal, "unable to load credentials")
	}
	if err := json.Unmarshal(row.Value, out); err != nil {
		return false, goerrors.Wrap(err, goerrors.CategoryInternal, "unable to decode credentials")
	}
	return true, nil
}

func (s *BunStore) del(ctx context.Context, key string) error {
	_, err := s.db.NewDelete().
		Model((*credentialRow)(nil)).
		Where("namespace = ?", s.namespace).
		Where("key = ?", key).
		Exec(ctx)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "unable to clear credentials")
	}
	return nil
}
