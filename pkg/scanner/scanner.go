// Package scanner walks the library tree, parses book metadata and
// reconciles the database with what is on disk.
package scanner

import (
	"context"
	"sync/atomic"

	"github.com/dshein-alt/ropds/pkg/authors"
	"github.com/dshein-alt/ropds/pkg/books"
	"github.com/dshein-alt/ropds/pkg/catalogs"
	"github.com/dshein-alt/ropds/pkg/config"
	"github.com/dshein-alt/ropds/pkg/counters"
	"github.com/dshein-alt/ropds/pkg/database"
	"github.com/dshein-alt/ropds/pkg/errcodes"
	"github.com/dshein-alt/ropds/pkg/genres"
	"github.com/dshein-alt/ropds/pkg/series"
	"github.com/google/uuid"
	"github.com/robinjoseph08/golib/logger"
)

// ScanStats summarises one completed scan.
type ScanStats struct {
	BooksAdded      int `json:"books_added"`
	BooksSkipped    int `json:"books_skipped"`
	BooksDeleted    int `json:"books_deleted"`
	ArchivesScanned int `json:"archives_scanned"`
	ArchivesSkipped int `json:"archives_skipped"`
	Errors          int `json:"errors"`
}

// running is the process-wide single-flight flag. A second scan started
// while one is in progress fails fast instead of queuing.
var running atomic.Bool

type Scanner struct {
	db       *database.DB
	cfg      *config.Config
	books    *books.Service
	authors  *authors.Service
	series   *series.Service
	genres   *genres.Service
	catalogs *catalogs.Service
	counters *counters.Service
}

func New(db *database.DB, cfg *config.Config) *Scanner {
	return &Scanner{
		db:       db,
		cfg:      cfg,
		books:    books.NewService(db),
		authors:  authors.NewService(db),
		series:   series.NewService(db),
		genres:   genres.NewService(db),
		catalogs: catalogs.NewService(db),
		counters: counters.NewService(db),
	}
}

// Run performs a full library scan. It returns AlreadyRunning when another
// scan holds the single-flight flag.
func (s *Scanner) Run(ctx context.Context) (*ScanStats, error) {
	if !running.CompareAndSwap(false, true) {
		return nil, errcodes.AlreadyRunning()
	}
	defer running.Store(false)

	log := logger.FromContext(ctx).Data(logger.Data{"scan_id": uuid.NewString()})
	log.Info("scan started", logger.Data{"root": s.cfg.Library.RootPath})

	stats := &ScanStats{}

	if err := s.books.SweepToUnverified(ctx); err != nil {
		return nil, err
	}

	disc, err := s.discover(ctx)
	if err != nil {
		return nil, err
	}

	for _, e := range disc.inpxFiles {
		s.processInpx(ctx, e, stats)
	}
	for _, e := range disc.files {
		s.processFile(ctx, e, stats)
	}
	for _, e := range disc.archives {
		s.processArchive(ctx, e, stats)
	}

	deleted, err := s.books.DeleteUnverified(ctx)
	if err != nil {
		return nil, err
	}
	stats.BooksDeleted = int(deleted)

	if _, err := s.authors.CleanupOrphans(ctx); err != nil {
		return nil, err
	}
	if _, err := s.series.CleanupOrphans(ctx); err != nil {
		return nil, err
	}

	if err := s.counters.Recompute(ctx); err != nil {
		return nil, err
	}

	log.Info("scan finished", logger.Data{
		"books_added":      stats.BooksAdded,
		"books_skipped":    stats.BooksSkipped,
		"books_deleted":    stats.BooksDeleted,
		"archives_scanned": stats.ArchivesScanned,
		"archives_skipped": stats.ArchivesSkipped,
		"errors":           stats.Errors,
	})
	return stats, nil
}

// IsRunning reports whether a scan currently holds the single-flight flag.
func IsRunning() bool {
	return running.Load()
}
