package store

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	valkey "github.com/valkey-io/valkey-go"
)

const defaultKeyPrefix = "usercheck:report:"

type RedisTLSConfig struct {
	Enabled bool
	CAFile  string
}

type RedisConfig struct {
	Address   string
	Username  string
	Password  string
	DB        int
	TLS       RedisTLSConfig
	KeyPrefix string
}

type redisStore struct {
	client valkey.Client
	opts   Options
	prefix string
}

// NewRedis stores reports in Redis or Valkey. Each report is a JSON value with
// a PX expiry; an index list keeps the history order and its head is the
// latest report.
func NewRedis(cfg RedisConfig, opts Options) (ReportStore, error) {
	if cfg.Address == "" {
		return nil, errors.New("store: redis address required")
	}

	option := valkey.ClientOption{
		InitAddress:       []string{cfg.Address},
		Username:          cfg.Username,
		Password:          cfg.Password,
		SelectDB:          cfg.DB,
		AlwaysRESP2:       true,
		ForceSingleClient: true,
		DisableCache:      true,
	}

	if cfg.TLS.Enabled {
		tlsConfig := &tls.Config{MinVersion: tls.VersionTLS12}
		if cfg.TLS.CAFile != "" {
			caData, err := os.ReadFile(cfg.TLS.CAFile)
			if err != nil {
				return nil, fmt.Errorf("store: read redis ca file: %w", err)
			}
			pool := x509.NewCertPool()
			if !pool.AppendCertsFromPEM(caData) {
				return nil, errors.New("store: redis ca file contains no certificates")
			}
			tlsConfig.RootCAs = pool
		}
		option.TLSConfig = tlsConfig
	}

	client, err := valkey.NewClient(option)
	if err != nil {
		return nil, fmt.Errorf("store: redis client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Do(ctx, client.B().Ping().Build()).Error(); err != nil {
		client.Close()
		return nil, fmt.Errorf("store: redis ping: %w", err)
	}

	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = defaultKeyPrefix
	}
	return &redisStore{client: client, opts: opts, prefix: prefix}, nil
}

func (s *redisStore) entryKey(id string) string { return s.prefix + id }

func (s *redisStore) indexKey() string { return s.prefix + "index" }

func (s *redisStore) Save(ctx context.Context, entry Entry) error {
	if entry.ID == "" {
		return errors.New("store: entry id required")
	}
	entry = stamp(entry, s.opts.TTL, time.Now())
	payload, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("store: redis marshal: %w", err)
	}

	set := s.client.B().Set().Key(s.entryKey(entry.ID)).Value(string(payload))
	var setCmd valkey.Completed
	if s.opts.TTL > 0 {
		setCmd = set.Px(s.opts.TTL).Build()
	} else {
		setCmd = set.Build()
	}
	cmds := []valkey.Completed{
		setCmd,
		s.client.B().Lrem().Key(s.indexKey()).Count(0).Element(entry.ID).Build(),
		s.client.B().Lpush().Key(s.indexKey()).Element(entry.ID).Build(),
	}
	if s.opts.History > 0 {
		evicted, err := s.evicted(ctx, entry.ID)
		if err != nil {
			return err
		}
		cmds = append(cmds, s.client.B().Ltrim().Key(s.indexKey()).Start(0).Stop(int64(s.opts.History-1)).Build())
		if len(evicted) > 0 {
			cmds = append(cmds, s.client.B().Del().Key(evicted...).Build())
		}
	}
	for _, resp := range s.client.DoMulti(ctx, cmds...) {
		if err := resp.Error(); err != nil {
			return fmt.Errorf("store: redis save: %w", err)
		}
	}
	return nil
}

// evicted returns the keys of reports that fall off the index once id is
// pushed to its head.
func (s *redisStore) evicted(ctx context.Context, id string) ([]string, error) {
	ids, err := s.index(ctx)
	if err != nil {
		return nil, err
	}
	var keys []string
	kept := 1
	for _, existing := range ids {
		if existing == id {
			continue
		}
		if kept < s.opts.History {
			kept++
			continue
		}
		keys = append(keys, s.entryKey(existing))
	}
	return keys, nil
}

func (s *redisStore) Latest(ctx context.Context) (Entry, bool, error) {
	ids, err := s.index(ctx)
	if err != nil {
		return Entry{}, false, err
	}
	for _, id := range ids {
		entry, ok, err := s.Get(ctx, id)
		if err != nil {
			return Entry{}, false, err
		}
		if ok {
			return entry, true, nil
		}
	}
	return Entry{}, false, nil
}

func (s *redisStore) Get(ctx context.Context, id string) (Entry, bool, error) {
	resp := s.client.Do(ctx, s.client.B().Get().Key(s.entryKey(id)).Build())
	if err := resp.Error(); err != nil {
		if errors.Is(err, valkey.Nil) {
			return Entry{}, false, nil
		}
		return Entry{}, false, fmt.Errorf("store: redis get: %w", err)
	}
	payload, err := resp.AsBytes()
	if err != nil {
		return Entry{}, false, fmt.Errorf("store: redis get bytes: %w", err)
	}
	var entry Entry
	if err := json.Unmarshal(payload, &entry); err != nil {
		return Entry{}, false, fmt.Errorf("store: redis unmarshal: %w", err)
	}
	return entry, true, nil
}

// Size counts indexed reports whose values have not expired.
func (s *redisStore) Size(ctx context.Context) (int64, error) {
	ids, err := s.index(ctx)
	if err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.entryKey(id)
	}
	size, err := s.client.Do(ctx, s.client.B().Exists().Key(keys...).Build()).ToInt64()
	if err != nil {
		return 0, fmt.Errorf("store: redis exists: %w", err)
	}
	return size, nil
}

func (s *redisStore) Close(context.Context) error {
	s.client.Close()
	return nil
}

func (s *redisStore) index(ctx context.Context) ([]string, error) {
	ids, err := s.client.Do(ctx, s.client.B().Lrange().Key(s.indexKey()).Start(0).Stop(-1).Build()).AsStrSlice()
	if err != nil {
		if errors.Is(err, valkey.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("store: redis index: %w", err)
	}
	return ids, nil
}
