package store

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"syscall"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	log "github.com/sirupsen/logrus"

	"github.com/streamtv/cachepool/commons"
)

// Key namespaces. Metadata and payload live under separate prefixes so
// that capacity trims can scan metadata without loading payloads.
//
// Data Type        Prefix  Key Format                 Value
// =============================================================
// Entry Metadata   "m:"    m:<partition>:<key>        EntryMeta (JSON)
// Entry Payload    "d:"    d:<partition>:<key>        raw bytes
// Partition Ver.   "v:"    v:<partition>              version string
const (
	prefixMeta    = "m:"
	prefixData    = "d:"
	prefixVersion = "v:"
)

func keyMeta(partition string, key string) []byte {
	return []byte(fmt.Sprintf("%s%s:%s", prefixMeta, partition, key))
}

func keyData(partition string, key string) []byte {
	return []byte(fmt.Sprintf("%s%s:%s", prefixData, partition, key))
}

func keyVersion(partition string) []byte {
	return []byte(fmt.Sprintf("%s%s", prefixVersion, partition))
}

// EntryMeta is the metadata of a cache entry
type EntryMeta struct {
	Key         string    `json:"key"`
	Partition   string    `json:"partition"`
	ContentType string    `json:"content_type"`
	Size        int64     `json:"size"`
	StoredAt    time.Time `json:"stored_at"`
}

// CacheEntry is a stored resource. Entries are immutable once written;
// a refresh replaces the whole entry.
type CacheEntry struct {
	EntryMeta
	Payload []byte
}

// Partition is a named subdivision of the store with its own capacity
// and TTL policy, fixed at store construction
type Partition struct {
	Name     string
	MaxItems int
	TTL      time.Duration
}

// TieredStore is a persistent key-value store partitioned by resource class
type TieredStore struct {
	db         *badger.DB
	partitions map[string]Partition
	order      []string
}

// NewTieredStore creates a new TieredStore at the given directory
func NewTieredStore(dirPath string, settings []commons.PartitionSetting) (*TieredStore, error) {
	logger := log.WithFields(log.Fields{
		"package":  "store",
		"function": "NewTieredStore",
	})

	options := badger.DefaultOptions(dirPath)
	options = options.WithLogger(nil)

	db, err := badger.Open(options)
	if err != nil {
		logger.WithError(err).Errorf("failed to open store at %q", dirPath)
		return nil, commons.NewStorageError("", "", err)
	}

	partitions := map[string]Partition{}
	order := []string{}
	for _, setting := range settings {
		partitions[setting.Name] = Partition{
			Name:     setting.Name,
			MaxItems: setting.MaxItems,
			TTL:      time.Duration(setting.TTL),
		}
		order = append(order, setting.Name)
	}

	return &TieredStore{
		db:         db,
		partitions: partitions,
		order:      order,
	}, nil
}

// Close closes the store
func (store *TieredStore) Close() error {
	return store.db.Close()
}

// PartitionNames returns partition names in configuration order
func (store *TieredStore) PartitionNames() []string {
	return store.order
}

// GetPartition returns the partition policy for the name
func (store *TieredStore) GetPartition(name string) (Partition, bool) {
	partition, ok := store.partitions[name]
	return partition, ok
}

// CheckVersion deletes partitions whose stored version marker does not
// match the given engine version, then stamps the current version
func (store *TieredStore) CheckVersion(version string) error {
	logger := log.WithFields(log.Fields{
		"package":  "store",
		"struct":   "TieredStore",
		"function": "CheckVersion",
	})

	for _, name := range store.order {
		storedVersion := ""

		err := store.db.View(func(txn *badger.Txn) error {
			item, err := txn.Get(keyVersion(name))
			if err == badger.ErrKeyNotFound {
				return nil
			}
			if err != nil {
				return err
			}

			return item.Value(func(val []byte) error {
				storedVersion = string(val)
				return nil
			})
		})
		if err != nil {
			return commons.NewStorageError(name, "", err)
		}

		if storedVersion != version {
			logger.Infof("Partition %q version %q does not match engine version %q, clearing", name, storedVersion, version)

			err = store.Clear(name)
			if err != nil {
				return err
			}
		}

		err = store.db.Update(func(txn *badger.Txn) error {
			return txn.Set(keyVersion(name), []byte(version))
		})
		if err != nil {
			return commons.NewStorageError(name, "", err)
		}
	}

	return nil
}

// Get returns the entry for the key. An entry whose age exceeds the
// partition TTL is treated as absent (lazy expiration, no background sweep).
func (store *TieredStore) Get(partition string, key string) (*CacheEntry, error) {
	entry, stale, err := store.GetAny(partition, key)
	if err != nil {
		return nil, err
	}

	if stale {
		return nil, commons.NewNoCacheEntryError(partition, key)
	}

	return entry, nil
}

// GetAny returns the entry for the key together with its TTL staleness.
// Strategies that serve stale content (cache-first) use this form.
func (store *TieredStore) GetAny(partition string, key string) (*CacheEntry, bool, error) {
	policy, ok := store.partitions[partition]
	if !ok {
		return nil, false, commons.NewNoCacheEntryError(partition, key)
	}

	var entry *CacheEntry

	err := store.db.View(func(txn *badger.Txn) error {
		metaItem, err := txn.Get(keyMeta(partition, key))
		if err != nil {
			return err
		}

		meta := EntryMeta{}
		err = metaItem.Value(func(val []byte) error {
			return json.Unmarshal(val, &meta)
		})
		if err != nil {
			return err
		}

		dataItem, err := txn.Get(keyData(partition, key))
		if err != nil {
			return err
		}

		payload, err := dataItem.ValueCopy(nil)
		if err != nil {
			return err
		}

		entry = &CacheEntry{
			EntryMeta: meta,
			Payload:   payload,
		}
		return nil
	})

	if err == badger.ErrKeyNotFound {
		return nil, false, commons.NewNoCacheEntryError(partition, key)
	}
	if err != nil {
		return nil, false, commons.NewStorageError(partition, key, err)
	}

	stale := policy.TTL > 0 && time.Since(entry.StoredAt) > policy.TTL
	return entry, stale, nil
}

// Put writes an entry unconditionally, overwriting any existing entry for
// the key, then trims the partition back to its item ceiling
func (store *TieredStore) Put(partition string, key string, contentType string, payload []byte) error {
	logger := log.WithFields(log.Fields{
		"package":  "store",
		"struct":   "TieredStore",
		"function": "Put",
	})

	if _, ok := store.partitions[partition]; !ok {
		return commons.NewStorageError(partition, key, fmt.Errorf("unknown partition %q", partition))
	}

	meta := EntryMeta{
		Key:         key,
		Partition:   partition,
		ContentType: contentType,
		Size:        int64(len(payload)),
		StoredAt:    time.Now(),
	}

	metaBytes, err := json.Marshal(&meta)
	if err != nil {
		return commons.NewStorageError(partition, key, err)
	}

	err = store.db.Update(func(txn *badger.Txn) error {
		err := txn.Set(keyMeta(partition, key), metaBytes)
		if err != nil {
			return err
		}

		return txn.Set(keyData(partition, key), payload)
	})
	if err != nil {
		logger.WithError(err).Errorf("failed to write entry for partition %q, key %q", partition, key)

		if isQuotaError(err) {
			return commons.NewQuotaExceededError(partition)
		}
		return commons.NewStorageError(partition, key, err)
	}

	_, err = store.Trim(partition)
	return err
}

// isQuotaError tells whether a write failure means the storage budget is
// exhausted rather than a transient fault. Such failures trigger a sweep
// and a single retry in the caller.
func isQuotaError(err error) bool {
	return errors.Is(err, badger.ErrTxnTooBig) ||
		errors.Is(err, syscall.ENOSPC) ||
		errors.Is(err, syscall.EDQUOT)
}

// Delete removes an entry
func (store *TieredStore) Delete(partition string, key string) error {
	err := store.db.Update(func(txn *badger.Txn) error {
		err := txn.Delete(keyMeta(partition, key))
		if err != nil {
			return err
		}

		return txn.Delete(keyData(partition, key))
	})
	if err != nil {
		return commons.NewStorageError(partition, key, err)
	}
	return nil
}

// listMeta returns all entry metadata of the partition
func (store *TieredStore) listMeta(partition string) ([]EntryMeta, error) {
	metas := []EntryMeta{}

	err := store.db.View(func(txn *badger.Txn) error {
		options := badger.DefaultIteratorOptions
		options.Prefix = []byte(prefixMeta + partition + ":")

		iterator := txn.NewIterator(options)
		defer iterator.Close()

		for iterator.Rewind(); iterator.Valid(); iterator.Next() {
			meta := EntryMeta{}
			err := iterator.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &meta)
			})
			if err != nil {
				return err
			}

			metas = append(metas, meta)
		}
		return nil
	})
	if err != nil {
		return nil, commons.NewStorageError(partition, "", err)
	}

	return metas, nil
}

// Count returns the number of entries in the partition
func (store *TieredStore) Count(partition string) (int, error) {
	metas, err := store.listMeta(partition)
	if err != nil {
		return 0, err
	}
	return len(metas), nil
}

// Trim removes the oldest entries until the partition is back within its
// item ceiling. Returns the number of evicted entries.
func (store *TieredStore) Trim(partition string) (int, error) {
	logger := log.WithFields(log.Fields{
		"package":  "store",
		"struct":   "TieredStore",
		"function": "Trim",
	})

	policy, ok := store.partitions[partition]
	if !ok {
		return 0, nil
	}

	metas, err := store.listMeta(partition)
	if err != nil {
		return 0, err
	}

	if len(metas) <= policy.MaxItems {
		return 0, nil
	}

	sort.Slice(metas, func(i, j int) bool {
		if metas[i].StoredAt.Equal(metas[j].StoredAt) {
			return bytes.Compare([]byte(metas[i].Key), []byte(metas[j].Key)) < 0
		}
		return metas[i].StoredAt.Before(metas[j].StoredAt)
	})

	evictCount := len(metas) - policy.MaxItems
	victims := metas[:evictCount]

	err = store.db.Update(func(txn *badger.Txn) error {
		for _, victim := range victims {
			err := txn.Delete(keyMeta(partition, victim.Key))
			if err != nil {
				return err
			}

			err = txn.Delete(keyData(partition, victim.Key))
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, commons.NewStorageError(partition, "", err)
	}

	logger.Debugf("Evicted %d oldest entries from partition %q", evictCount, partition)
	return evictCount, nil
}

// Sweep trims every partition back within its ceiling. Used when the
// underlying storage reports quota exhaustion.
func (store *TieredStore) Sweep() (int, error) {
	evicted := 0
	for _, name := range store.order {
		count, err := store.Trim(name)
		if err != nil {
			return evicted, err
		}
		evicted += count
	}
	return evicted, nil
}

// Clear removes all entries of the partition. A failure on one partition
// never touches other partitions.
func (store *TieredStore) Clear(partition string) error {
	metas, err := store.listMeta(partition)
	if err != nil {
		return err
	}

	err = store.db.Update(func(txn *badger.Txn) error {
		for _, meta := range metas {
			err := txn.Delete(keyMeta(partition, meta.Key))
			if err != nil {
				return err
			}

			err = txn.Delete(keyData(partition, meta.Key))
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return commons.NewStorageError(partition, "", err)
	}

	return nil
}

// ClearAll removes all entries of all partitions
func (store *TieredStore) ClearAll() error {
	for _, name := range store.order {
		err := store.Clear(name)
		if err != nil {
			return err
		}
	}
	return nil
}
