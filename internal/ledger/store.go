package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"householdledger/internal/cache"
	"householdledger/internal/core"
	"householdledger/internal/filelock"
	"householdledger/internal/jsonfile"
	"householdledger/internal/log"
)

const lockFile = ".ledger.lock"

// Store owns the shard files. A single mutex serializes every operation,
// including the multi-file relocation in Update. Mutations also hold an
// advisory lock on the data directory, so several processes can share it.
type Store struct {
	mu       sync.Mutex
	resolver Resolver
	lockPath string
	cache    *cache.LRUCache[CachedShard]
	logger   *log.Logger
	now      func() time.Time
	lastID   int64

	writeFile func(path string, data []byte) error
}

type Option func(*Store)

// CachedShard is a decoded shard and the file it was decoded from. A cached
// shard is used only while the file on disk is still that file.
type CachedShard struct {
	file os.FileInfo
	txs  []core.Transaction
}

func NewShardCache(maxSize int, ttl time.Duration) *cache.LRUCache[CachedShard] {
	return cache.NewLRUCache[CachedShard](maxSize, ttl)
}

// WithCache keeps decoded shards in memory, keyed by shard path.
func WithCache(c *cache.LRUCache[CachedShard]) Option {
	return func(s *Store) { s.cache = c }
}

func WithLogger(l *log.Logger) Option {
	return func(s *Store) { s.logger = l.WithComponent(log.ComponentLedger) }
}

// WithClock overrides the time source used for id generation.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// NewStore creates a store rooted at dataDir. The directory is created lazily
// on first write.
func NewStore(dataDir string, opts ...Option) *Store {
	s := &Store{
		resolver:  NewResolver(dataDir),
		lockPath:  filepath.Join(dataDir, lockFile),
		logger:    log.Nop(),
		now:       time.Now,
		writeFile: jsonfile.WriteFileAtomic,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) Resolver() Resolver { return s.resolver }

// lockDir takes the cross-process lock. Callers hold s.mu.
func (s *Store) lockDir(ctx context.Context) (func(), error) {
	release, err := filelock.Lock(ctx, s.lockPath)
	if err != nil {
		return nil, fmt.Errorf("lock ledger: %w", err)
	}
	return release, nil
}

// Add appends tx to the shard its date resolves to. It fails with
// core.ErrDuplicateID if any shard already holds tx.ID.
func (s *Store) Add(ctx context.Context, tx core.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	release, err := s.lockDir(ctx)
	if err != nil {
		return err
	}
	defer release()

	index, err := s.indexLocked(ctx)
	if err != nil {
		return err
	}
	if locs := index[tx.ID]; len(locs) > 0 {
		return fmt.Errorf("%w: %d already stored in shard %s", core.ErrDuplicateID, tx.ID, locs[0])
	}
	return s.appendLocked(tx)
}

// AddUnique stores tx, replacing its id with a fresh time-based one when the id
// is zero or already taken. It returns the id the record was stored under.
func (s *Store) AddUnique(ctx context.Context, tx core.Transaction) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	release, err := s.lockDir(ctx)
	if err != nil {
		return 0, err
	}
	defer release()

	index, err := s.indexLocked(ctx)
	if err != nil {
		return 0, err
	}
	if tx.ID == 0 || len(index[tx.ID]) > 0 {
		tx.ID = s.nextIDLocked(index)
	}
	if err := s.appendLocked(tx); err != nil {
		return 0, err
	}
	return tx.ID, nil
}

// NextID returns an unused id derived from the current time in milliseconds.
func (s *Store) NextID(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	index, err := s.indexLocked(ctx)
	if err != nil {
		return 0, err
	}
	return s.nextIDLocked(index), nil
}

func (s *Store) nextIDLocked(index map[int64][]ShardKey) int64 {
	id := s.now().UnixMilli()
	if id <= s.lastID {
		id = s.lastID + 1
	}
	for len(index[id]) > 0 {
		id++
	}
	s.lastID = id
	return id
}

func (s *Store) appendLocked(tx core.Transaction) error {
	key := Resolve(tx.Date)
	path := s.resolver.Path(key)

	ledger, err := s.readShard(path)
	if err != nil {
		return err
	}
	ledger = append(ledger, tx)
	if err := s.writeShard(path, ledger); err != nil {
		return err
	}

	s.logger.Debug("Transaction added",
		log.FieldTxID, tx.ID,
		log.FieldShard, key.String(),
		log.FieldAmount, tx.Amount)
	return nil
}

// Month returns the transactions of one shard. A missing shard is empty.
func (s *Store) Month(ctx context.Context, year, month int) ([]core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.readShard(s.resolver.Path(ShardKey{Year: year, Month: month}))
}

// Year concatenates every shard of year in file name order.
func (s *Store) Year(ctx context.Context, year int) ([]core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	files, err := s.listShardsLocked(ctx)
	if err != nil {
		return nil, err
	}
	all := []core.Transaction{}
	for _, f := range files {
		if f.key.Year != year {
			continue
		}
		ledger, err := s.readShard(f.path)
		if err != nil {
			return nil, err
		}
		all = append(all, ledger...)
	}
	return all, nil
}

// All returns every stored transaction, shard by shard.
func (s *Store) All(ctx context.Context) ([]core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	files, err := s.listShardsLocked(ctx)
	if err != nil {
		return nil, err
	}
	all := []core.Transaction{}
	for _, f := range files {
		ledger, err := s.readShard(f.path)
		if err != nil {
			return nil, err
		}
		all = append(all, ledger...)
	}
	return all, nil
}

// Delete removes the record with id. It reports false when no shard holds it,
// in which case nothing is written. An id held by more than one record is
// rejected with core.ErrDuplicateID and nothing is written either.
func (s *Store) Delete(ctx context.Context, id int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	release, err := s.lockDir(ctx)
	if err != nil {
		return false, err
	}
	defer release()

	key, found, err := s.locateLocked(ctx, id)
	if err != nil || !found {
		return false, err
	}

	path := s.resolver.Path(key)
	ledger, err := s.readShard(path)
	if err != nil {
		return false, err
	}
	ledger, _, _ = removeByID(ledger, id)
	if err := s.writeShard(path, ledger); err != nil {
		return false, err
	}

	s.logger.Debug("Transaction deleted", log.FieldTxID, id, log.FieldShard, key.String())
	return true, nil
}

// Update replaces the record with tx.ID. When the new date belongs to another
// shard the record is moved: the target shard is written first, then the
// source. If the source write fails the target is restored, so the record
// always lives in exactly one shard.
func (s *Store) Update(ctx context.Context, tx core.Transaction) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	release, err := s.lockDir(ctx)
	if err != nil {
		return false, err
	}
	defer release()

	sourceKey, found, err := s.locateLocked(ctx, tx.ID)
	if err != nil || !found {
		return false, err
	}
	targetKey := Resolve(tx.Date)
	sourcePath := s.resolver.Path(sourceKey)

	source, err := s.readShard(sourcePath)
	if err != nil {
		return false, err
	}

	if sourceKey == targetKey {
		for i := range source {
			if source[i].ID == tx.ID {
				source[i] = tx
				break
			}
		}
		if err := s.writeShard(sourcePath, source); err != nil {
			return false, err
		}
		return true, nil
	}

	source, _, _ = removeByID(source, tx.ID)

	targetPath := s.resolver.Path(targetKey)
	previous, existed, err := jsonfile.ReadFile(targetPath)
	if err != nil {
		return false, err
	}
	target, err := s.readShard(targetPath)
	if err != nil {
		return false, err
	}
	if err := s.writeShard(targetPath, append(target, tx)); err != nil {
		return false, fmt.Errorf("stage target shard %s: %w", targetKey, err)
	}

	if err := s.writeShard(sourcePath, source); err != nil {
		if rbErr := s.restoreShard(targetPath, previous, existed); rbErr != nil {
			s.logger.Error("Failed to roll back target shard",
				log.FieldShard, targetKey.String(),
				log.FieldError, rbErr)
			return false, errors.Join(
				fmt.Errorf("commit source shard %s: %w", sourceKey, err),
				fmt.Errorf("roll back target shard %s: %w", targetKey, rbErr),
			)
		}
		return false, fmt.Errorf("commit source shard %s: %w", sourceKey, err)
	}

	s.logger.Debug("Transaction relocated",
		log.FieldTxID, tx.ID,
		"from", sourceKey.String(),
		"to", targetKey.String())
	return true, nil
}

// FindDuplicates returns every id held by more than one record together with
// the shards holding it.
func (s *Store) FindDuplicates(ctx context.Context) (map[int64][]ShardKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	index, err := s.indexLocked(ctx)
	if err != nil {
		return nil, err
	}
	dups := make(map[int64][]ShardKey)
	for id, keys := range index {
		if len(keys) > 1 {
			dups[id] = keys
		}
	}
	return dups, nil
}

// locateLocked finds the single shard holding id.
func (s *Store) locateLocked(ctx context.Context, id int64) (ShardKey, bool, error) {
	index, err := s.indexLocked(ctx)
	if err != nil {
		return ShardKey{}, false, err
	}
	keys := index[id]
	switch len(keys) {
	case 0:
		return ShardKey{}, false, nil
	case 1:
		return keys[0], true, nil
	default:
		return ShardKey{}, false, fmt.Errorf("%w: %d held by shards %v", core.ErrDuplicateID, id, keys)
	}
}

// indexLocked maps every stored id to the shards holding it, once per record.
func (s *Store) indexLocked(ctx context.Context) (map[int64][]ShardKey, error) {
	files, err := s.listShardsLocked(ctx)
	if err != nil {
		return nil, err
	}
	index := make(map[int64][]ShardKey)
	for _, f := range files {
		ledger, err := s.readShard(f.path)
		if err != nil {
			return nil, err
		}
		for _, tx := range ledger {
			index[tx.ID] = append(index[tx.ID], f.key)
		}
	}
	return index, nil
}

type shardFile struct {
	key  ShardKey
	path string
}

// listShardsLocked enumerates shard files sorted by path. The sentinel shard
// directory sorts first.
func (s *Store) listShardsLocked(ctx context.Context) ([]shardFile, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	root := s.resolver.Root()
	dirs, err := os.ReadDir(root)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read data dir: %w", err)
	}

	var files []shardFile
	for _, dir := range dirs {
		if !dir.IsDir() {
			continue
		}
		if _, ok := parseYearDir(dir.Name()); !ok {
			continue
		}
		entries, err := os.ReadDir(filepath.Join(root, dir.Name()))
		if err != nil {
			return nil, fmt.Errorf("read year dir %s: %w", dir.Name(), err)
		}
		for _, entry := range entries {
			if !entry.Type().IsRegular() {
				continue
			}
			path := filepath.Join(root, dir.Name(), entry.Name())
			key, ok := parseShardFile(path)
			if !ok {
				continue
			}
			files = append(files, shardFile{key: key, path: path})
		}
	}
	sort.Slice(files, func(i, j int) bool { return files[i].path < files[j].path })
	return files, nil
}

// readShard decodes a shard. A missing file is an empty shard; malformed JSON
// is an error naming the file. A cached copy is used only when the file has
// not been replaced since it was read. The returned slice is never shared with
// the cache.
func (s *Store) readShard(path string) ([]core.Transaction, error) {
	file, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		if s.cache != nil {
			s.cache.Delete(path)
		}
		return []core.Transaction{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("stat shard %s: %w", path, err)
	}

	if s.cache != nil {
		if cached, ok := s.cache.Get(path); ok && unchanged(cached.file, file) {
			return append([]core.Transaction(nil), cached.txs...), nil
		}
	}

	// Stat before read: if another process replaces the file in between,
	// the cached stat is older than the data and the next read misses.
	data, existed, err := jsonfile.ReadFile(path)
	if err != nil {
		return nil, err
	}
	ledger := []core.Transaction{}
	if !existed {
		return ledger, nil
	}
	if err := json.Unmarshal(data, &ledger); err != nil {
		return nil, fmt.Errorf("decode shard %s: %w", path, err)
	}

	if s.cache != nil {
		s.cache.Set(path, CachedShard{file: file, txs: append([]core.Transaction(nil), ledger...)})
	}
	return ledger, nil
}

// unchanged reports whether b is still the file a was taken from. Every write
// renames a new file into place, so a rewrite always changes the identity.
func unchanged(a, b os.FileInfo) bool {
	return os.SameFile(a, b) && a.ModTime().Equal(b.ModTime()) && a.Size() == b.Size()
}

// writeShard replaces a shard. The cache entry is dropped rather than
// refreshed; the next read stats the file it actually finds.
func (s *Store) writeShard(path string, ledger []core.Transaction) error {
	if ledger == nil {
		ledger = []core.Transaction{}
	}
	data, err := jsonfile.Marshal(ledger)
	if err != nil {
		return fmt.Errorf("encode shard %s: %w", path, err)
	}
	if s.cache != nil {
		s.cache.Delete(path)
	}
	return s.writeFile(path, data)
}

// restoreShard puts a shard back to its previous bytes, or removes it if it
// did not exist before.
func (s *Store) restoreShard(path string, previous []byte, existed bool) error {
	if s.cache != nil {
		s.cache.Delete(path)
	}
	if !existed {
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
		return nil
	}
	return s.writeFile(path, previous)
}

func removeByID(ledger []core.Transaction, id int64) ([]core.Transaction, core.Transaction, bool) {
	for i, tx := range ledger {
		if tx.ID == id {
			out := make([]core.Transaction, 0, len(ledger)-1)
			out = append(out, ledger[:i]...)
			out = append(out, ledger[i+1:]...)
			return out, tx, true
		}
	}
	return ledger, core.Transaction{}, false
}
