package store

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	lrucache "github.com/hashicorp/golang-lru"
	log "github.com/sirupsen/logrus"

	"github.com/streamtv/cachepool/commons"
	"github.com/streamtv/cachepool/utils"
)

// MediaEntry is a preloaded media preview (the leading byte range of a
// media resource at a quality level)
type MediaEntry struct {
	resourceRef  string
	quality      string
	size         int
	totalSize    int64
	creationTime time.Time
	filePath     string
}

func newMediaEntry(cache *MediaCache, resourceRef string, quality string, data []byte, totalSize int64) (*MediaEntry, error) {
	logger := log.WithFields(log.Fields{
		"package":  "store",
		"struct":   "MediaCache",
		"function": "newMediaEntry",
	})

	// write to disk
	hash := utils.MakeHash(fmt.Sprintf("%s:%s", resourceRef, quality))
	filePath := utils.JoinPath(cache.GetRootPath(), hash)

	logger.Debugf("Writing media preview to %s", filePath)
	err := os.WriteFile(filePath, data, 0644)
	if err != nil {
		logger.Error(err)
		return nil, commons.NewStorageError("media_cache", resourceRef, err)
	}

	return &MediaEntry{
		resourceRef:  resourceRef,
		quality:      quality,
		size:         len(data),
		totalSize:    totalSize,
		creationTime: time.Now(),
		filePath:     filePath,
	}, nil
}

// GetResourceRef returns the media resource reference
func (entry *MediaEntry) GetResourceRef() string {
	return entry.resourceRef
}

// GetQuality returns the quality level of the preview
func (entry *MediaEntry) GetQuality() string {
	return entry.quality
}

// GetSize returns the preview size in bytes
func (entry *MediaEntry) GetSize() int {
	return entry.size
}

// GetTotalSize returns the full resource size if known, -1 otherwise
func (entry *MediaEntry) GetTotalSize() int64 {
	return entry.totalSize
}

// GetCreationTime returns the entry creation time
func (entry *MediaEntry) GetCreationTime() time.Time {
	return entry.creationTime
}

// GetData reads the preview bytes from disk
func (entry *MediaEntry) GetData() ([]byte, error) {
	data, err := os.ReadFile(entry.filePath)
	if err != nil {
		return nil, commons.NewStorageError("media_cache", entry.resourceRef, err)
	}

	return data, nil
}

func (entry *MediaEntry) deleteDataFile() error {
	err := os.Remove(entry.filePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	return nil
}

// MediaCache is a capacity-capped disk cache for preloaded media previews,
// keyed by (resourceRef, quality)
type MediaCache struct {
	entryNumberCap int
	rootPath       string
	cache          *lrucache.Cache
	mutex          sync.Mutex
}

// NewMediaCache creates a new MediaCache under the root path
func NewMediaCache(entryNumberCap int, rootPath string) (*MediaCache, error) {
	err := os.MkdirAll(rootPath, 0755)
	if err != nil {
		return nil, commons.NewStorageError("media_cache", "", err)
	}

	mediaCache := &MediaCache{
		entryNumberCap: entryNumberCap,
		rootPath:       rootPath,
		cache:          nil,
	}

	lruCache, err := lrucache.NewWithEvict(entryNumberCap, mediaCache.onEvicted)
	if err != nil {
		return nil, commons.NewStorageError("media_cache", "", err)
	}

	mediaCache.cache = lruCache
	return mediaCache, nil
}

// Release deletes all entries and the cache directory
func (cache *MediaCache) Release() {
	logger := log.WithFields(log.Fields{
		"package":  "store",
		"struct":   "MediaCache",
		"function": "Release",
	})

	cache.mutex.Lock()
	defer cache.mutex.Unlock()

	logger.Info("Deleting all media preview entries")
	cache.cache.Purge()

	logger.Infof("Deleting media cache files and directory %s", cache.rootPath)
	os.RemoveAll(cache.rootPath)
}

// GetRootPath returns cache root path
func (cache *MediaCache) GetRootPath() string {
	return cache.rootPath
}

// GetTotalEntries returns the number of cached previews
func (cache *MediaCache) GetTotalEntries() int {
	cache.mutex.Lock()
	defer cache.mutex.Unlock()

	return cache.cache.Len()
}

func makeMediaKey(resourceRef string, quality string) string {
	return fmt.Sprintf("%s:%s", resourceRef, quality)
}

// CreateEntry writes a preview to disk and registers it, evicting the
// least recently used preview beyond the capacity
func (cache *MediaCache) CreateEntry(resourceRef string, quality string, data []byte, totalSize int64) (*MediaEntry, error) {
	logger := log.WithFields(log.Fields{
		"package":  "store",
		"struct":   "MediaCache",
		"function": "CreateEntry",
	})

	entry, err := newMediaEntry(cache, resourceRef, quality, data, totalSize)
	if err != nil {
		return nil, err
	}

	cache.mutex.Lock()
	defer cache.mutex.Unlock()

	logger.Debugf("putting a media preview for %q, quality %q", resourceRef, quality)
	cache.cache.Add(makeMediaKey(resourceRef, quality), entry)

	return entry, nil
}

// HasEntry checks if a preview exists for (resourceRef, quality)
func (cache *MediaCache) HasEntry(resourceRef string, quality string) bool {
	cache.mutex.Lock()
	defer cache.mutex.Unlock()

	return cache.cache.Contains(makeMediaKey(resourceRef, quality))
}

// GetEntry returns the preview for (resourceRef, quality)
func (cache *MediaCache) GetEntry(resourceRef string, quality string) *MediaEntry {
	cache.mutex.Lock()
	defer cache.mutex.Unlock()

	if entry, ok := cache.cache.Get(makeMediaKey(resourceRef, quality)); ok {
		if mediaEntry, ok := entry.(*MediaEntry); ok {
			return mediaEntry
		}
	}

	return nil
}

// DeleteEntry removes the preview for (resourceRef, quality)
func (cache *MediaCache) DeleteEntry(resourceRef string, quality string) {
	cache.mutex.Lock()
	defer cache.mutex.Unlock()

	cache.cache.Remove(makeMediaKey(resourceRef, quality))
}

// DeleteAllEntries removes all previews
func (cache *MediaCache) DeleteAllEntries() {
	cache.mutex.Lock()
	defer cache.mutex.Unlock()

	cache.cache.Purge()
}

func (cache *MediaCache) onEvicted(key interface{}, entry interface{}) {
	if mediaEntry, ok := entry.(*MediaEntry); ok {
		mediaEntry.deleteDataFile()
	}
}
