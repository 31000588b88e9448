package catalogs

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/dshein-alt/ropds/pkg/database"
	"github.com/dshein-alt/ropds/pkg/errcodes"
	"github.com/dshein-alt/ropds/pkg/models"
	"github.com/pkg/errors"
)

type RetrieveCatalogOptions struct {
	ID   *int
	Path *string
}

type ListCatalogsOptions struct {
	// ParentID selects the children of one catalog. Root selects top-level
	// catalogs (parent_id IS NULL); the two are mutually exclusive.
	ParentID *int
	Root     bool
	Limit    *int
	Offset   *int

	includeTotal bool
}

type Service struct {
	db *database.DB
}

func NewService(db *database.DB) *Service {
	return &Service{db}
}

// Ensure returns the catalog at path, creating it and any missing ancestor
// directories first. Ancestors are always Normal; only the leaf gets catType.
func (svc *Service) Ensure(ctx context.Context, path string, catType int, size int64, mtime time.Time) (*models.Catalog, error) {
	path = strings.Trim(path, "/")
	if path == "" {
		return nil, errors.New("catalog path is empty")
	}

	segments := strings.Split(path, "/")
	var parentID *int
	var catalog *models.Catalog

	for i := range segments {
		current := strings.Join(segments[:i+1], "/")
		leaf := i == len(segments)-1

		segType := models.CatTypeNormal
		var segSize int64
		var segMtime time.Time
		if leaf {
			segType = catType
			segSize = size
			segMtime = mtime
		}

		var err error
		catalog, err = svc.ensureOne(ctx, current, segments[i], parentID, segType, segSize, segMtime)
		if err != nil {
			return nil, err
		}
		parentID = &catalog.ID
	}

	return catalog, nil
}

func (svc *Service) ensureOne(ctx context.Context, path, name string, parentID *int, catType int, size int64, mtime time.Time) (*models.Catalog, error) {
	catalog := &models.Catalog{
		ParentID: parentID,
		Path:     path,
		CatName:  name,
		CatType:  catType,
		CatSize:  size,
		CatMtime: mtime,
	}

	// Concurrent scans are excluded by the single-flight guard, but an insert
	// can still race a previous partial scan; the conflict-ignoring insert
	// plus re-select keeps this idempotent.
	q := svc.db.NewInsert().Model(catalog)
	if _, err := svc.db.InsertIgnore(q, "path").Exec(ctx); err != nil {
		return nil, errors.WithStack(err)
	}

	existing := &models.Catalog{}
	err := svc.db.NewSelect().Model(existing).Where("c.path = ?", path).Scan(ctx)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return existing, nil
}

func (svc *Service) RetrieveCatalog(ctx context.Context, opts RetrieveCatalogOptions) (*models.Catalog, error) {
	catalog := &models.Catalog{}

	q := svc.db.NewSelect().Model(catalog)
	if opts.ID != nil {
		q = q.Where("c.id = ?", *opts.ID)
	}
	if opts.Path != nil {
		q = q.Where("c.path = ?", *opts.Path)
	}

	err := q.Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errcodes.NotFound("Catalog")
		}
		return nil, errors.WithStack(err)
	}
	return catalog, nil
}

func (svc *Service) ListCatalogs(ctx context.Context, opts ListCatalogsOptions) ([]*models.Catalog, error) {
	c, _, err := svc.listCatalogsWithTotal(ctx, opts)
	return c, errors.WithStack(err)
}

func (svc *Service) ListCatalogsWithTotal(ctx context.Context, opts ListCatalogsOptions) ([]*models.Catalog, int, error) {
	opts.includeTotal = true
	return svc.listCatalogsWithTotal(ctx, opts)
}

func (svc *Service) listCatalogsWithTotal(ctx context.Context, opts ListCatalogsOptions) ([]*models.Catalog, int, error) {
	catalogs := []*models.Catalog{}
	var total int
	var err error

	q := svc.db.
		NewSelect().
		Model(&catalogs).
		OrderExpr(svc.db.CaseInsensitiveOrder("c.cat_name"))

	if opts.ParentID != nil {
		q = q.Where("c.parent_id = ?", *opts.ParentID)
	} else if opts.Root {
		q = q.Where("c.parent_id IS NULL")
	}
	if opts.Limit != nil {
		q = q.Limit(*opts.Limit)
	}
	if opts.Offset != nil {
		q = q.Offset(*opts.Offset)
	}

	if opts.includeTotal {
		total, err = q.ScanAndCount(ctx)
	} else {
		err = q.Scan(ctx)
	}
	if err != nil {
		return nil, 0, errors.WithStack(err)
	}
	return catalogs, total, nil
}

// Count returns the number of catalog rows; the scan uses it for the
// allcatalogs counter.
func (svc *Service) Count(ctx context.Context) (int, error) {
	count, err := svc.db.NewSelect().Model((*models.Catalog)(nil)).Count(ctx)
	return count, errors.WithStack(err)
}
