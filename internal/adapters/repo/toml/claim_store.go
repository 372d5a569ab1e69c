package toml

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/bnema/pocketfi-claimer/internal/domain"
	"github.com/bnema/pocketfi-claimer/internal/ports"
	fslock "github.com/ipfs/go-fs-lock"
	toml "github.com/pelletier/go-toml/v2"
	"github.com/spf13/viper"
)

const (
	statePathKey        = "state.path"
	stateLockTimeoutKey = "state.lock_timeout"
	claimsFile          = "claims.toml"
	defaultLockTimeout  = 5 * time.Second
	lockPollInterval    = 25 * time.Millisecond
)

// ClaimStore keeps claim windows in a TOML file. Writers in this process are
// serialized by a shared mutex, writers in other processes by a lock file
// next to the state file.
type ClaimStore struct {
	path        string
	lockName    string
	lockTimeout time.Duration
	mu          *sync.RWMutex
	clock       ports.Clock
}

var _ ports.ClaimStore = (*ClaimStore)(nil)

func NewClaimStore(cfg *viper.Viper) (*ClaimStore, error) {
	if cfg == nil {
		cfg = viper.New()
	}

	path := cfg.GetString(statePathKey)
	if path == "" {
		var err error
		if path, err = defaultPath(claimsFile); err != nil {
			return nil, err
		}
	}

	path, err := normalizePath(path)
	if err != nil {
		return nil, fmt.Errorf("claims path: %w", err)
	}

	lockTimeout := cfg.GetDuration(stateLockTimeoutKey)
	if lockTimeout <= 0 {
		lockTimeout = defaultLockTimeout
	}

	return &ClaimStore{
		path:        path,
		lockName:    strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)) + ".lock",
		lockTimeout: lockTimeout,
		mu:          lockForPath(path),
		clock:       ports.SystemClock{},
	}, nil
}

func (s *ClaimStore) Path() string {
	return s.path
}

func (s *ClaimStore) Get(ctx context.Context, id domain.AccountID) (domain.ClaimWindow, error) {
	if err := ctx.Err(); err != nil {
		return domain.ClaimWindow{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	file, err := s.readSchema()
	if err != nil {
		return domain.ClaimWindow{}, err
	}

	entry, ok := file.Claims[string(id)]
	if !ok {
		return domain.ClaimWindow{AccountID: id}, nil
	}

	return fromClaimSchema(id, entry), nil
}

func (s *ClaimStore) List(ctx context.Context) ([]domain.ClaimWindow, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	file, err := s.readSchema()
	if err != nil {
		return nil, err
	}

	windows := make([]domain.ClaimWindow, 0, len(file.Claims))
	for id, entry := range file.Claims {
		windows = append(windows, fromClaimSchema(domain.AccountID(id), entry))
	}
	sort.Slice(windows, func(i, j int) bool { return windows[i].AccountID < windows[j].AccountID })

	return windows, nil
}

func (s *ClaimStore) Set(ctx context.Context, id domain.AccountID, nextEligibleAt time.Time) error {
	return s.update(ctx, func(file *claimsFileSchema, now time.Time) error {
		entry := file.Claims[string(id)]
		next := ceilUnix(nextEligibleAt)
		if next <= entry.ClaimTime {
			return fmt.Errorf("account %s: %w (%d <= %d)", id, domain.ErrStaleWindow, next, entry.ClaimTime)
		}

		entry.ClaimTime = next
		entry.UpdatedAt = now.Unix()
		file.Claims[string(id)] = entry
		return nil
	})
}

func (s *ClaimStore) MarkHalted(ctx context.Context, id domain.AccountID, reason string) error {
	return s.update(ctx, func(file *claimsFileSchema, now time.Time) error {
		entry := file.Claims[string(id)]
		entry.Halted = true
		entry.HaltReason = reason
		entry.UpdatedAt = now.Unix()
		file.Claims[string(id)] = entry
		return nil
	})
}

func (s *ClaimStore) Reset(ctx context.Context, id domain.AccountID) error {
	return s.update(ctx, func(file *claimsFileSchema, now time.Time) error {
		entry, ok := file.Claims[string(id)]
		if !ok {
			return nil
		}

		entry.Halted = false
		entry.HaltReason = ""
		entry.UpdatedAt = now.Unix()
		file.Claims[string(id)] = entry
		return nil
	})
}

func (s *ClaimStore) update(ctx context.Context, mutate func(file *claimsFileSchema, now time.Time) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	unlock, err := s.lockFile(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = unlock.Close() }()

	file, err := s.readSchema()
	if err != nil {
		return err
	}

	if err := mutate(&file, s.clock.Now()); err != nil {
		return err
	}

	data, err := toml.Marshal(file)
	if err != nil {
		return fmt.Errorf("encode claims file: %w", err)
	}

	return writeFileAtomic(s.path, "claims", data)
}

// lockFile takes the cross-process lock, polling until lockTimeout or ctx ends.
func (s *ClaimStore) lockFile(ctx context.Context) (io.Closer, error) {
	dir := filepath.Dir(s.path)
	if err := ensureDir(dir); err != nil {
		return nil, err
	}

	deadline := time.NewTimer(s.lockTimeout)
	defer deadline.Stop()
	ticker := time.NewTicker(lockPollInterval)
	defer ticker.Stop()

	for {
		closer, err := fslock.Lock(dir, s.lockName)
		if err == nil {
			return closer, nil
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("lock claims file: %w", ctx.Err())
		case <-deadline.C:
			return nil, fmt.Errorf("lock claims file after %s: %w", s.lockTimeout, err)
		case <-ticker.C:
		}
	}
}

func (s *ClaimStore) readSchema() (claimsFileSchema, error) {
	var file claimsFileSchema

	data, err := readFile(s.path, "claims")
	if err != nil {
		return claimsFileSchema{}, err
	}
	if data != nil {
		if err := toml.Unmarshal(data, &file); err != nil {
			return claimsFileSchema{}, fmt.Errorf("decode claims file: %w", err)
		}
		if err := file.validateVersion(); err != nil {
			return claimsFileSchema{}, err
		}
	}
	file.applyDefaults()

	return file, nil
}

func fromClaimSchema(id domain.AccountID, entry claimSchema) domain.ClaimWindow {
	return domain.ClaimWindow{
		AccountID:      id,
		NextEligibleAt: unixTime(entry.ClaimTime),
		UpdatedAt:      unixTime(entry.UpdatedAt),
		Halted:         entry.Halted,
		HaltReason:     entry.HaltReason,
	}
}

// ceilUnix rounds up so a stored window never opens earlier than requested.
func ceilUnix(t time.Time) int64 {
	sec := t.Unix()
	if t.Nanosecond() > 0 {
		sec++
	}

	return sec
}

func unixTime(sec int64) time.Time {
	if sec <= 0 {
		return time.Time{}
	}

	return time.Unix(sec, 0).UTC()
}
