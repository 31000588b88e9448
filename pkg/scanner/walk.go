package scanner

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
)

// entry is one discovered filesystem object, located by its directory
// relative to the library root (empty for the root itself) and its name.
type entry struct {
	relDir string
	name   string
	size   int64
	mtime  time.Time
}

func (e entry) relPath() string {
	if e.relDir == "" {
		return e.name
	}
	return e.relDir + "/" + e.name
}

type discovery struct {
	inpxFiles []entry
	files     []entry
	archives  []entry
}

// discover walks the library root, following symlinks, and buckets entries
// into INPX indexes, plain book files and ZIP archives. A directory holding
// an INPX is represented by the index alone; its files are not walked.
func (s *Scanner) discover(ctx context.Context) (*discovery, error) {
	root := s.cfg.Library.RootPath
	if _, err := os.Stat(root); err != nil {
		return nil, errors.Wrapf(err, "library root %s", root)
	}

	disc := &discovery{}
	visited := map[string]bool{}
	extSet := s.cfg.BookExtensionSet()

	var walk func(absDir, relDir string) error
	walk = func(absDir, relDir string) error {
		resolved, err := filepath.EvalSymlinks(absDir)
		if err != nil {
			return errors.WithStack(err)
		}
		if visited[resolved] {
			// A symlink loop would otherwise walk forever.
			return nil
		}
		visited[resolved] = true

		dirEntries, err := os.ReadDir(absDir)
		if err != nil {
			return errors.WithStack(err)
		}

		hasInpx := false
		if s.cfg.Library.InpxEnable {
			for _, de := range dirEntries {
				if !de.IsDir() && strings.EqualFold(filepath.Ext(de.Name()), ".inpx") {
					hasInpx = true
					break
				}
			}
		}

		for _, de := range dirEntries {
			name := de.Name()
			absPath := filepath.Join(absDir, name)

			info, err := os.Stat(absPath)
			if err != nil {
				// Dangling symlink or a file deleted mid-walk.
				logger.FromContext(ctx).Warn("skipping unreadable entry", logger.Data{"path": absPath, "err": err.Error()})
				continue
			}

			if info.IsDir() {
				childRel := name
				if relDir != "" {
					childRel = relDir + "/" + name
				}
				if err := walk(absPath, childRel); err != nil {
					return err
				}
				continue
			}

			ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
			e := entry{relDir: relDir, name: name, size: info.Size(), mtime: info.ModTime()}

			switch {
			case ext == "inpx" && s.cfg.Library.InpxEnable:
				disc.inpxFiles = append(disc.inpxFiles, e)
			case hasInpx:
				// The index stands in for every file beside it.
			case ext == "zip":
				if s.cfg.Library.ScanZip {
					disc.archives = append(disc.archives, e)
				}
			case extSet[ext]:
				disc.files = append(disc.files, e)
			}
		}
		return nil
	}

	if err := walk(root, ""); err != nil {
		return nil, err
	}
	return disc, nil
}
