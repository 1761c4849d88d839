package recurrence

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"householdledger/internal/core"
	"householdledger/internal/filelock"
	"householdledger/internal/jsonfile"
	"householdledger/internal/log"
)

const schedulesFile = "schedules.json"

// ScheduleStore keeps every schedule in a single JSON array file. One mutex
// guards all reads and writes; writers also hold a lock file so that
// processes sharing the data directory never interleave a load and a save.
type ScheduleStore struct {
	mu     sync.Mutex
	path   string
	lock   string
	logger *log.Logger
	now    func() time.Time
}

type StoreOption func(*ScheduleStore)

func WithStoreLogger(l *log.Logger) StoreOption {
	return func(s *ScheduleStore) { s.logger = l.WithComponent(log.ComponentRecurrence) }
}

// WithStoreClock overrides the time source used for schedule ids.
func WithStoreClock(now func() time.Time) StoreOption {
	return func(s *ScheduleStore) { s.now = now }
}

func NewScheduleStore(dataDir string, opts ...StoreOption) *ScheduleStore {
	s := &ScheduleStore{
		path:   filepath.Join(dataDir, schedulesFile),
		lock:   filepath.Join(dataDir, schedulesFile+".lock"),
		logger: log.Nop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *ScheduleStore) Path() string { return s.path }

// List returns every schedule. A missing file is an empty list.
func (s *ScheduleStore) List(ctx context.Context) ([]core.ScheduleItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

// Add stores item, assigning a time-based id when item.ID is zero.
func (s *ScheduleStore) Add(ctx context.Context, item core.ScheduleItem) (core.ScheduleItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	release, err := s.lockFile(ctx)
	if err != nil {
		return core.ScheduleItem{}, err
	}
	defer release()

	items, err := s.load()
	if err != nil {
		return core.ScheduleItem{}, err
	}
	if item.ID == 0 {
		item.ID = s.freeID(items)
	}
	for _, existing := range items {
		if existing.ID == item.ID {
			return core.ScheduleItem{}, fmt.Errorf("%w: schedule %d", core.ErrDuplicateID, item.ID)
		}
	}

	items = append(items, item)
	if err := s.save(items); err != nil {
		return core.ScheduleItem{}, err
	}
	s.logger.InfoContext(ctx, "Schedule added",
		log.FieldScheduleID, item.ID,
		log.FieldScheduleName, item.Name)
	return item, nil
}

// Update replaces the schedule with item.ID. It reports false when no such
// schedule exists.
func (s *ScheduleStore) Update(ctx context.Context, item core.ScheduleItem) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	release, err := s.lockFile(ctx)
	if err != nil {
		return false, err
	}
	defer release()

	items, err := s.load()
	if err != nil {
		return false, err
	}
	for i := range items {
		if items[i].ID == item.ID {
			items[i] = item
			return true, s.save(items)
		}
	}
	return false, nil
}

// Delete removes every schedule with id. It reports false when none matched.
func (s *ScheduleStore) Delete(ctx context.Context, id int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	release, err := s.lockFile(ctx)
	if err != nil {
		return false, err
	}
	defer release()

	items, err := s.load()
	if err != nil {
		return false, err
	}
	kept := items[:0]
	for _, item := range items {
		if item.ID != id {
			kept = append(kept, item)
		}
	}
	if len(kept) == len(items) {
		return false, nil
	}
	return true, s.save(kept)
}

// mutate runs fn on the loaded schedules under the store lock and the lock
// file. The list is saved when fn reports a change, even if fn also returns an
// error.
func (s *ScheduleStore) mutate(ctx context.Context, fn func(items []core.ScheduleItem) (bool, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	release, err := s.lockFile(ctx)
	if err != nil {
		return err
	}
	defer release()

	items, err := s.load()
	if err != nil {
		return err
	}
	changed, fnErr := fn(items)
	if changed {
		if err := s.save(items); err != nil {
			if fnErr != nil {
				return fmt.Errorf("%w (saving schedules: %v)", fnErr, err)
			}
			return err
		}
	}
	return fnErr
}

func (s *ScheduleStore) lockFile(ctx context.Context) (func(), error) {
	release, err := filelock.Lock(ctx, s.lock)
	if err != nil {
		return nil, fmt.Errorf("lock schedules: %w", err)
	}
	return release, nil
}

func (s *ScheduleStore) freeID(items []core.ScheduleItem) int64 {
	id := s.now().UnixMilli()
	taken := make(map[int64]bool, len(items))
	for _, item := range items {
		taken[item.ID] = true
	}
	for taken[id] {
		id++
	}
	return id
}

func (s *ScheduleStore) load() ([]core.ScheduleItem, error) {
	items := []core.ScheduleItem{}
	if _, err := jsonfile.Load(s.path, &items); err != nil {
		return nil, fmt.Errorf("load schedules: %w", err)
	}
	if items == nil {
		items = []core.ScheduleItem{}
	}
	return items, nil
}

func (s *ScheduleStore) save(items []core.ScheduleItem) error {
	if err := jsonfile.Save(s.path, items); err != nil {
		return fmt.Errorf("save schedules: %w", err)
	}
	return nil
}
