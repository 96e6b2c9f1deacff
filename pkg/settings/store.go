package settings

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/earlink/earlink-go/pkg/capability"
	"github.com/earlink/earlink-go/pkg/fault"
)

// StoreConfig configures a Store.
type StoreConfig struct {
	// Medium holds the records. Required.
	Medium Medium

	// Logger for corruption and migration reports. Nil disables logging.
	Logger *slog.Logger

	// Now returns the save timestamp (default: time.Now).
	Now func() time.Time
}

// Store persists DeviceSettings by device id. It caches loaded records and
// is safe for concurrent use.
type Store struct {
	medium Medium
	logger *slog.Logger
	now    func() time.Time

	mu    sync.Mutex
	cache map[string]*DeviceSettings
}

// NewStore creates a store.
func NewStore(cfg StoreConfig) *Store {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Store{
		medium: cfg.Medium,
		logger: logger,
		now:    now,
		cache:  make(map[string]*DeviceSettings),
	}
}

// Save stamps s with the current time and schema version, writes it for
// deviceID, and updates the cache.
func (st *Store) Save(s *DeviceSettings, deviceID string) error {
	if s == nil {
		return fault.New(fault.KindInvalidParameter, "settings are nil")
	}
	key := SanitizeID(deviceID)

	st.mu.Lock()
	defer st.mu.Unlock()

	s.Version = SchemaVersion
	s.DeviceID = deviceID
	s.LastModified = st.now().UTC()

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	if err := st.medium.Write(key, data); err != nil {
		return err
	}
	st.cache[key] = clone(s)
	return nil
}

// Load returns the record for deviceID, or nil when none exists. A damaged
// record is salvaged field by field; the salvaged result is returned and
// the corruption logged.
func (st *Store) Load(deviceID string) (*DeviceSettings, error) {
	key := SanitizeID(deviceID)

	st.mu.Lock()
	defer st.mu.Unlock()

	if s, ok := st.cache[key]; ok {
		return clone(s), nil
	}

	data, err := st.medium.Read(key)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	s := &DeviceSettings{}
	if err := json.Unmarshal(data, s); err != nil {
		st.logger.Warn("settings record corrupted, recovering",
			"key", key, "error", fault.Wrap(fault.KindSettingsCorrupted, err, ""))
		s = salvageRecord(data)
	}
	if s.DeviceID == "" {
		s.DeviceID = deviceID
	}
	if err := migrate(s); err != nil {
		st.logger.Warn("settings migration failed", "key", key, "version", s.Version, "error", err)
		return nil, err
	}
	st.cache[key] = clone(s)
	return s, nil
}

// Delete removes the record for deviceID.
func (st *Store) Delete(deviceID string) error {
	key := SanitizeID(deviceID)
	st.mu.Lock()
	defer st.mu.Unlock()
	delete(st.cache, key)
	return st.medium.Delete(key)
}

// Keys lists stored record keys.
func (st *Store) Keys() ([]string, error) {
	return st.medium.Keys()
}

// ClearCache drops cached records so the next Load reads the medium.
func (st *Store) ClearCache() {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.cache = make(map[string]*DeviceSettings)
}

// migrate upgrades s to SchemaVersion. Version 1 is current; records
// without a version are treated as version 1.
func migrate(s *DeviceSettings) error {
	switch {
	case s.Version == 0:
		s.Version = SchemaVersion
	case s.Version > SchemaVersion:
		return fault.Newf(fault.KindMigrationFailed, "settings version %d is newer than %d", s.Version, SchemaVersion)
	}
	return nil
}

func clone(s *DeviceSettings) *DeviceSettings {
	c := *s
	for _, f := range fields {
		if v, ok := f.get(s); ok {
			f.set(&c, v)
		}
	}
	if s.Extensions != nil {
		c.Extensions = make(map[string]string, len(s.Extensions))
		for k, v := range s.Extensions {
			c.Extensions[k] = v
		}
	}
	return &c
}

// salvageRecord salvages what it can from a damaged record. It first tries the
// record as a loose key/value object, decoding each field on its own; if
// the object itself does not parse, it scans "key": value lines.
func salvageRecord(data []byte) *DeviceSettings {
	raw := make(map[string]json.RawMessage)
	if err := json.Unmarshal(data, &raw); err != nil {
		raw = scanLines(data)
	}
	s := &DeviceSettings{}
	for k, v := range raw {
		salvage(s, k, v)
	}
	return s
}

var linePattern = regexp.MustCompile(`^\s*"([A-Za-z]+)"\s*:\s*(.*?)\s*,?\s*$`)

func scanLines(data []byte) map[string]json.RawMessage {
	raw := make(map[string]json.RawMessage)
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		m := linePattern.FindStringSubmatch(sc.Text())
		if m == nil {
			continue
		}
		raw[m[1]] = json.RawMessage(strings.TrimSuffix(m[2], ","))
	}
	return raw
}

// salvage decodes one field. Values that do not decode are dropped.
func salvage(s *DeviceSettings, key string, v json.RawMessage) {
	switch key {
	case "version":
		_ = json.Unmarshal(v, &s.Version)
		return
	case "deviceId":
		_ = json.Unmarshal(v, &s.DeviceID)
		return
	case "lastModified":
		_ = json.Unmarshal(v, &s.LastModified)
		return
	case "extensions":
		var ext map[string]string
		if json.Unmarshal(v, &ext) == nil {
			s.Extensions = ext
		}
		return
	}
	id, ok := capability.Parse(key)
	if !ok {
		return
	}
	var val any
	if err := json.Unmarshal(v, &val); err != nil {
		return
	}
	s.SetValue(id, val)
}
