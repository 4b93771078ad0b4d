// Package badgerstore persists tracked annotations in an embedded BadgerDB, one msgpack
// encoded value per project resource.
package badgerstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/dgraph-io/badger/v4"
	"github.com/hashicorp/go-hclog"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/scan-io-git/scanio-ide/internal/findings"
	"github.com/scan-io-git/scanio-ide/internal/registry"
)

const (
	keyPrefix = "annotations/"
	// separates the project from the resource inside a key
	keySeparator = "\x00"

	// bumped whenever the encoded annotation layout changes
	formatVersion = 1
)

// Config holds the options of a Store.
type Config struct {
	// Path is the database directory, ignored when InMemory is set.
	Path       string
	InMemory   bool
	SyncWrites bool
	Logger     hclog.Logger
}

// Store is a registry.Backend on top of BadgerDB.
type Store struct {
	db     *badger.DB
	logger hclog.Logger
}

var _ registry.Backend = (*Store)(nil)

type envelope struct {
	Version     int                          `msgpack:"v"`
	Annotations []findings.TrackedAnnotation `msgpack:"a"`
}

// badgerLogger routes BadgerDB output to hclog.
type badgerLogger struct {
	logger hclog.Logger
}

func (l badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (l badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (l badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debug(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (l badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Trace(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

// Open opens or creates the database described by cfg.
func Open(cfg Config) (*Store, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("path is required for a persistent store")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0o750); err != nil {
			return nil, fmt.Errorf("create state directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites).WithNumVersionsToKeep(1)

	logger := cfg.Logger
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	logger = logger.Named("badger")
	opts = opts.WithLogger(badgerLogger{logger: logger})

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger database: %w", err)
	}
	return &Store{db: db, logger: logger}, nil
}

func projectPrefix(project string) []byte {
	return []byte(keyPrefix + project + keySeparator)
}

func key(project, resource string) []byte {
	return append(projectPrefix(project), resource...)
}

func (s *Store) Load(ctx context.Context, project, resource string) ([]findings.TrackedAnnotation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var env envelope
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key(project, resource))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return msgpack.Unmarshal(val, &env)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load %s/%s: %w", project, resource, err)
	}
	if env.Version != formatVersion {
		s.logger.Warn("discarding state in an unknown format", "project", project, "resource", resource, "version", env.Version)
		return nil, nil
	}
	return env.Annotations, nil
}

func (s *Store) Save(ctx context.Context, project, resource string, annotations []findings.TrackedAnnotation) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	val, err := msgpack.Marshal(envelope{Version: formatVersion, Annotations: annotations})
	if err != nil {
		return fmt.Errorf("encode annotations: %w", err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key(project, resource), val)
	})
}

func (s *Store) Delete(ctx context.Context, project, resource string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(key(project, resource))
	})
}

func (s *Store) Resources(ctx context.Context, project string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	prefix := projectPrefix(project)
	var out []string
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			out = append(out, string(it.Item().Key()[len(prefix):]))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list resources of %s: %w", project, err)
	}
	return out, nil
}

// Close flushes and closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
