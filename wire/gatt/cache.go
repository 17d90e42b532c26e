package gatt

import (
	"os"
	"path/filepath"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/pkg/errors"

	"github.com/user/gattclient/logger"
	"github.com/user/gattclient/util"
)

// ErrCacheMiss is returned by Cache.Load when nothing is stored for a peer
var ErrCacheMiss = errors.New("gatt: profile not cached")

const cacheVersion = 1

// Cache keeps discovered profiles between sessions, keyed by peer address.
type Cache interface {
	Store(peer string, p *Profile) error
	Load(peer string) (*Profile, error)
	Clear(peer string) error
}

type cacheRecord struct {
	Version  int       `cbor:"1,keyasint"`
	Peer     string    `cbor:"2,keyasint"`
	StoredAt time.Time `cbor:"3,keyasint"`
	Profile  Profile   `cbor:"4,keyasint"`
}

// FileCache stores one CBOR file per peer under a root directory.
type FileCache struct {
	root string
	enc  cbor.EncMode
}

// NewFileCache returns a cache rooted at root, or at the data directory when
// root is empty.
func NewFileCache(root string) (*FileCache, error) {
	enc, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		return nil, errors.Wrap(err, "cbor encoder")
	}
	return &FileCache{root: root, enc: enc}, nil
}

func (c *FileCache) path(peer string) string {
	dir := util.GetDeviceCacheDir(peer)
	if c.root != "" {
		dir = filepath.Join(c.root, util.SanitizeName(peer))
	}
	return filepath.Join(dir, "profile.cbor")
}

// Store writes p for peer, replacing any earlier profile.
func (c *FileCache) Store(peer string, p *Profile) error {
	if p == nil {
		return errors.New("gatt: nil profile")
	}
	data, err := c.enc.Marshal(cacheRecord{
		Version:  cacheVersion,
		Peer:     peer,
		StoredAt: time.Now().UTC(),
		Profile:  *p,
	})
	if err != nil {
		return errors.Wrap(err, "encode profile")
	}

	path := c.path(peer)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return errors.Wrap(err, "create cache dir")
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return errors.Wrap(err, "write profile")
	}
	if err := os.Rename(tmp, path); err != nil {
		return errors.Wrap(err, "commit profile")
	}

	logger.Debug(logPrefix, "cached profile for %s (%d bytes)", peer, len(data))
	return nil
}

// Load returns the profile stored for peer, or ErrCacheMiss.
func (c *FileCache) Load(peer string) (*Profile, error) {
	data, err := os.ReadFile(c.path(peer))
	if os.IsNotExist(err) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, errors.Wrap(err, "read profile")
	}

	var rec cacheRecord
	if err := cbor.Unmarshal(data, &rec); err != nil {
		return nil, errors.Wrap(err, "decode profile")
	}
	if rec.Version != cacheVersion || rec.Peer != peer {
		logger.Debug(logPrefix, "ignoring stale cache entry for %s (version %d)", peer, rec.Version)
		return nil, ErrCacheMiss
	}
	return &rec.Profile, nil
}

// Clear removes the profile stored for peer. Clearing a missing entry is not an error.
func (c *FileCache) Clear(peer string) error {
	err := os.Remove(c.path(peer))
	if err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "remove profile")
	}
	return nil
}
