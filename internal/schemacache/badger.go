package schemacache

import (
	"context"

	"github.com/dgraph-io/badger/v4"
	"github.com/pkg/errors"
	"github.com/vektah/gqlparser/v2/ast"
)

// DefaultBadgerKey is the key the artifact is stored under.
const DefaultBadgerKey = "gqlendpoint/schema.ast"

// Badger keeps the artifact in an embedded badger key-value store.
type Badger struct {
	db    *badger.DB
	key   []byte
	owned bool
}

// OpenBadger opens a store in dir, or an in-memory store when dir is empty.
// The returned cache owns the database and closes it on Close.
func OpenBadger(dir string) (*Badger, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, errors.Wrapf(err, "schemacache: open badger at %q", dir)
	}
	return &Badger{db: db, key: []byte(DefaultBadgerKey), owned: true}, nil
}

// NewBadger stores the artifact under key in an existing database.
func NewBadger(db *badger.DB, key string) *Badger {
	if key == "" {
		key = DefaultBadgerKey
	}
	return &Badger{db: db, key: []byte(key)}
}

func (b *Badger) Name() string { return "badger" }

func (b *Badger) Load(ctx context.Context) (*ast.SchemaDocument, bool, error) {
	var data []byte
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(b.key)
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.Wrap(err, "schemacache: badger read")
	}
	doc, err := Decode(data)
	if err != nil {
		return nil, false, err
	}
	return doc, true, nil
}

func (b *Badger) Store(ctx context.Context, doc *ast.SchemaDocument) error {
	data, err := Encode(doc)
	if err != nil {
		return err
	}
	err = b.db.Update(func(txn *badger.Txn) error {
		return txn.Set(b.key, data)
	})
	return errors.Wrap(err, "schemacache: badger write")
}

func (b *Badger) Clear(ctx context.Context) error {
	err := b.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(b.key)
	})
	return errors.Wrap(err, "schemacache: badger delete")
}

func (b *Badger) Close() error {
	if !b.owned {
		return nil
	}
	return b.db.Close()
}
