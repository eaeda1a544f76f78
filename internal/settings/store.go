package settings

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/qingcheng-ai/QingchengAPI/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrEmptyKey indicates a settings write without a key.
var ErrEmptyKey = errors.New("settings: empty key")

// Entry is one settings row as seen by callers.
type Entry struct {
	Key       string
	Value     string
	IsEnabled bool
	UpdatedAt time.Time
}

// PaymentConfig is the gateway configuration editable by administrators.
type PaymentConfig struct {
	AppID      string
	PrivateKey string
	PublicKey  string
	Enabled    bool
}

// Configured reports whether checkout has the credentials it needs.
func (p PaymentConfig) Configured() bool {
	return strings.TrimSpace(p.AppID) != "" && strings.TrimSpace(p.PrivateKey) != ""
}

type snapshot struct {
	loadedAt time.Time
	entries  map[string]Entry
}

// Store reads settings from the database through a short-lived cache.
// Writes through Put invalidate the cache; edits made directly in the
// database become visible after the TTL.
type Store struct {
	db  *gorm.DB
	ttl time.Duration
	now func() time.Time

	mu     sync.Mutex
	cached *snapshot
}

// NewStore constructs a Store. A non-positive ttl disables caching.
func NewStore(db *gorm.DB, ttl time.Duration) *Store {
	return &Store{db: db, ttl: ttl, now: time.Now}
}

// Invalidate drops the cached snapshot so the next read hits the database.
func (s *Store) Invalidate() {
	s.mu.Lock()
	s.cached = nil
	s.mu.Unlock()
}

// All returns every settings entry keyed by name.
func (s *Store) All(ctx context.Context) (map[string]Entry, error) {
	snap, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]Entry, len(snap.entries))
	for key, entry := range snap.entries {
		out[key] = entry
	}
	return out, nil
}

// Get returns one entry and whether it exists.
func (s *Store) Get(ctx context.Context, key string) (Entry, bool, error) {
	snap, err := s.load(ctx)
	if err != nil {
		return Entry{}, false, err
	}
	entry, ok := snap.entries[strings.TrimSpace(key)]
	return entry, ok, nil
}

// String returns the value for key or fallback when it is absent or blank.
func (s *Store) String(ctx context.Context, key, fallback string) (string, error) {
	entry, ok, err := s.Get(ctx, key)
	if err != nil {
		return "", err
	}
	if !ok || strings.TrimSpace(entry.Value) == "" {
		return fallback, nil
	}
	return entry.Value, nil
}

// Payment returns the gateway configuration.
func (s *Store) Payment(ctx context.Context) (PaymentConfig, error) {
	snap, err := s.load(ctx)
	if err != nil {
		return PaymentConfig{}, err
	}
	enabled, ok := snap.entries[AlipayEnabledKey]
	return PaymentConfig{
		AppID:      strings.TrimSpace(snap.entries[AlipayAppIDKey].Value),
		PrivateKey: strings.TrimSpace(snap.entries[AlipayPrivateKeyKey].Value),
		PublicKey:  strings.TrimSpace(snap.entries[AlipayPublicKeyKey].Value),
		Enabled:    ok && enabled.IsEnabled,
	}, nil
}

// Put upserts a setting. A nil value or enabled flag leaves that column unchanged.
func (s *Store) Put(ctx context.Context, key string, value *string, enabled *bool) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return ErrEmptyKey
	}

	row := models.Setting{Key: key, Value: json.RawMessage(`""`), IsEnabled: true, UpdatedAt: time.Now().UTC()}
	updateColumns := []string{"updated_at"}
	if value != nil {
		raw, errMarshal := json.Marshal(*value)
		if errMarshal != nil {
			return errMarshal
		}
		row.Value = raw
		updateColumns = append(updateColumns, "value")
	}
	if enabled != nil {
		row.IsEnabled = *enabled
		updateColumns = append(updateColumns, "is_enabled")
	}

	errUpsert := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns(updateColumns),
	}).Create(&row).Error
	s.Invalidate()
	return errUpsert
}

func (s *Store) load(ctx context.Context) (*snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if s.cached != nil && s.ttl > 0 && now.Sub(s.cached.loadedAt) < s.ttl {
		return s.cached, nil
	}

	var rows []models.Setting
	if errFind := s.db.WithContext(ctx).
		Select("key", "value", "is_enabled", "updated_at").
		Order("key ASC").
		Find(&rows).Error; errFind != nil {
		return nil, errFind
	}

	entries := make(map[string]Entry, len(rows))
	for _, row := range rows {
		key := strings.TrimSpace(row.Key)
		if key == "" {
			continue
		}
		entries[key] = Entry{
			Key:       key,
			Value:     decodeValue(row.Value),
			IsEnabled: row.IsEnabled,
			UpdatedAt: row.UpdatedAt,
		}
	}
	s.cached = &snapshot{loadedAt: now, entries: entries}
	return s.cached, nil
}

// decodeValue accepts a JSON string, a {"value": ...} wrapper or raw text.
func decodeValue(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var str string
	if errStr := json.Unmarshal(raw, &str); errStr == nil {
		return str
	}
	var wrapped struct {
		Value json.RawMessage `json:"value"`
	}
	if errObj := json.Unmarshal(raw, &wrapped); errObj == nil && len(wrapped.Value) > 0 {
		return decodeValue(wrapped.Value)
	}
	return strings.TrimSpace(string(raw))
}
