package index

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/starford/lexicon/internal/checksum"
	"github.com/starford/lexicon/internal/storage"
	"github.com/starford/lexicon/internal/term"
)

// Sync brings the index up to date with the project in store:
//   - terms listed in terms.json whose files changed are re-read and upserted
//   - indexed terms no longer listed are deleted
func Sync(db *DB, store storage.Provider, logger *slog.Logger) error {
	return reconcile(db, store, logger, nil)
}

func reconcile(db *DB, store storage.Provider, logger *slog.Logger, cb EventCallback) error {
	names, err := projectTerms(store)
	if err != nil {
		return err
	}
	checksums, err := db.AllChecksums()
	if err != nil {
		return err
	}

	listed := make(map[string]struct{}, len(names))
	for _, name := range names {
		listed[name] = struct{}{}

		cs, err := termChecksum(store, name)
		if err != nil {
			logger.Warn("sync: read failed", slog.String("term", name), slog.String("error", err.Error()))
			continue
		}
		prev, indexed := checksums[name]
		if indexed && prev == cs {
			continue
		}
		if err := indexTerm(db, store, name, cs); err != nil {
			logger.Warn("sync: index failed", slog.String("term", name), slog.String("error", err.Error()))
			continue
		}
		logger.Debug("sync: indexed", slog.String("term", name))
		if cb != nil {
			kind := "updated"
			if !indexed {
				kind = "created"
			}
			cb(kind, name)
		}
	}

	for name := range checksums {
		if _, ok := listed[name]; ok {
			continue
		}
		if err := db.DeleteTerm(name); err != nil {
			logger.Warn("sync: delete failed", slog.String("term", name), slog.String("error", err.Error()))
			continue
		}
		logger.Debug("sync: removed stale", slog.String("term", name))
		if cb != nil {
			cb("deleted", name)
		}
	}
	return nil
}

// IndexTerm re-reads one stored term and upserts it.
func IndexTerm(db *DB, store storage.Provider, name string) error {
	cs, err := termChecksum(store, name)
	if err != nil {
		return err
	}
	return indexTerm(db, store, name, cs)
}

func indexTerm(db *DB, store storage.Provider, name, cs string) error {
	t, err := term.Load(store, name)
	if err != nil {
		return err
	}
	row := TermRow{Name: name, Checksum: cs, UpdatedAt: time.Now()}
	return db.UpsertTerm(row, t.DescriptionText(), t.RelatedTerms())
}

// projectTerms reads terms.json. A project that was never saved has none.
func projectTerms(store storage.Provider) ([]string, error) {
	data, err := store.Read(term.IndexFile)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var names []string
	if err := json.Unmarshal(data, &names); err != nil {
		return nil, fmt.Errorf("index: decode %s: %w", term.IndexFile, err)
	}
	return names, nil
}

// termChecksum digests the description and links files of a term.
func termChecksum(store storage.Provider, name string) (string, error) {
	var parts [][]byte
	for _, f := range []string{term.DescriptionFile, term.LinksFile} {
		data, err := store.Read(filepath.Join(name, f))
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return "", err
		}
		parts = append(parts, data)
	}
	return checksum.Sum(parts...), nil
}
