package networkmap

import (
	"errors"

	"github.com/dgraph-io/badger"
	"github.com/mosaicnetworks/ledgerdriver/src/identity"
	"github.com/sirupsen/logrus"
)

const nodePrefix = "node_"

func nodeKey(name identity.Name) []byte {
	return []byte(nodePrefix + string(name))
}

// BadgerRegistry is a Registry persisted in a Badger database, so a restarted
// network map remembers who registered.
type BadgerRegistry struct {
	db   *badger.DB
	path string
}

// NewBadgerRegistry opens, or creates, the database in path.
func NewBadgerRegistry(path string, logger *logrus.Entry) (*BadgerRegistry, error) {
	opts := badger.DefaultOptions(path).
		WithSyncWrites(false).
		WithLogger(logger)

	handle, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}

	return &BadgerRegistry{db: handle, path: path}, nil
}

// Register implements Registry.
func (r *BadgerRegistry) Register(info identity.NodeInfo) (int, error) {
	val, err := marshalNodeInfo(info)
	if err != nil {
		return 0, err
	}

	err = r.db.Update(func(txn *badger.Txn) error {
		return txn.Set(nodeKey(info.LegalIdentity.Name), val)
	})
	if err != nil {
		return 0, err
	}

	return r.count()
}

// Get implements Registry.
func (r *BadgerRegistry) Get(name identity.Name) (identity.NodeInfo, error) {
	var data []byte
	err := r.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(nodeKey(name))
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})

	if errors.Is(err, badger.ErrKeyNotFound) {
		return identity.NodeInfo{}, ErrNotFound
	}
	if err != nil {
		return identity.NodeInfo{}, err
	}

	return unmarshalNodeInfo(data)
}

// All implements Registry. Entries come out in key order, that is sorted by
// legal name.
func (r *BadgerRegistry) All() ([]identity.NodeInfo, error) {
	res := []identity.NodeInfo{}
	err := r.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := []byte(nodePrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			data, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			info, err := unmarshalNodeInfo(data)
			if err != nil {
				return err
			}
			res = append(res, info)
		}
		return nil
	})
	return res, err
}

func (r *BadgerRegistry) count() (int, error) {
	n := 0
	err := r.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(nodePrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			n++
		}
		return nil
	})
	return n, err
}

// Path returns the directory of the database.
func (r *BadgerRegistry) Path() string {
	return r.path
}

// Close implements Registry.
func (r *BadgerRegistry) Close() error {
	return r.db.Close()
}
