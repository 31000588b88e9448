package browse

import (
	"context"
	"fmt"
	"strconv"

	"github.com/dshein-alt/ropds/pkg/authors"
	"github.com/dshein-alt/ropds/pkg/books"
	"github.com/dshein-alt/ropds/pkg/catalogs"
	"github.com/dshein-alt/ropds/pkg/config"
	"github.com/dshein-alt/ropds/pkg/counters"
	"github.com/dshein-alt/ropds/pkg/database"
	"github.com/dshein-alt/ropds/pkg/errcodes"
	"github.com/dshein-alt/ropds/pkg/genres"
	"github.com/dshein-alt/ropds/pkg/models"
	"github.com/dshein-alt/ropds/pkg/series"
	"github.com/dshein-alt/ropds/pkg/users"
)

// Alphabet buckets of the drill-down menus.
const (
	BucketAll      = 0
	BucketCyrillic = 1
	BucketLatin    = 2
	BucketDigits   = 3
	BucketOther    = 9
)

type Browser struct {
	cfg      *config.Config
	catalogs *catalogs.Service
	books    *books.Service
	authors  *authors.Service
	series   *series.Service
	genres   *genres.Service
	counters *counters.Service
	users    *users.Service
}

func New(db *database.DB, cfg *config.Config) *Browser {
	return &Browser{
		cfg:      cfg,
		catalogs: catalogs.NewService(db),
		books:    books.NewService(db),
		authors:  authors.NewService(db),
		series:   series.NewService(db),
		genres:   genres.NewService(db),
		counters: counters.NewService(db),
		users:    users.NewService(db),
	}
}

func (b *Browser) pageSize() int {
	return b.cfg.OPDS.MaxItems
}

func (b *Browser) listOpts(page int) (limit, offset int) {
	return b.pageSize(), page * b.pageSize()
}

// Root builds the top-level navigation feed. The bookshelf entry appears
// only for authenticated users and carries its current count.
func (b *Browser) Root(ctx context.Context, lang string, user *models.User) (*Page, error) {
	counts, err := b.counters.List(ctx)
	if err != nil {
		return nil, err
	}

	page := &Page{
		ID:    "tag:root",
		Title: b.cfg.OPDS.Title,
		Self:  "/",
		Kind:  KindNavigation,
	}

	page.Nav = append(page.Nav,
		NavEntry{
			ID:      "tag:root:catalogs",
			Title:   "By catalogs",
			Content: fmt.Sprintf("Catalogs: %d", counts[models.CounterAllCatalogs]),
			Href:    "/catalogs/",
		},
		NavEntry{
			ID:      "tag:root:authors",
			Title:   "By authors",
			Content: fmt.Sprintf("Authors: %d", counts[models.CounterAllAuthors]),
			Href:    "/authors/",
		},
		NavEntry{
			ID:      "tag:root:genres",
			Title:   "By genres",
			Content: fmt.Sprintf("Genres: %d", counts[models.CounterAllGenres]),
			Href:    "/genres/",
		},
		NavEntry{
			ID:      "tag:root:series",
			Title:   "By series",
			Content: fmt.Sprintf("Series: %d", counts[models.CounterAllSeries]),
			Href:    "/series/",
		},
		NavEntry{
			ID:      "tag:root:books",
			Title:   "By title",
			Content: fmt.Sprintf("Books: %d", counts[models.CounterAllBooks]),
			Href:    "/books/",
		},
		NavEntry{
			ID:      "tag:root:recent",
			Title:   "Recent",
			Content: "Recently added books",
			Href:    "/recent/",
		},
	)

	if user != nil {
		shelf, err := b.users.ShelfCount(ctx, user.ID)
		if err != nil {
			return nil, err
		}
		page.Nav = append(page.Nav, NavEntry{
			ID:      "tag:root:bookshelf",
			Title:   "Bookshelf",
			Content: fmt.Sprintf("Books on shelf: %d", shelf),
			Href:    "/bookshelf/",
		})
	}

	langs, err := b.books.Languages(ctx)
	if err != nil {
		return nil, err
	}
	for _, l := range langs {
		page.Facets = append(page.Facets, Facet{Title: l, Lang: l, Active: l == lang})
	}

	return page, nil
}

// Catalogs builds the catalog tree feed. Without an id it lists top-level
// catalogs; with one, child catalogs show on the first page only, followed by
// that catalog's books.
func (b *Browser) Catalogs(ctx context.Context, id *int, pageNum int, lang string) (*Page, error) {
	limit, offset := b.listOpts(pageNum)

	if id == nil {
		list, total, err := b.catalogs.ListCatalogsWithTotal(ctx, catalogs.ListCatalogsOptions{
			Root:   true,
			Limit:  &limit,
			Offset: &offset,
		})
		if err != nil {
			return nil, err
		}

		page := &Page{
			ID:    fmt.Sprintf("tag:catalogs:%d", pageNum),
			Title: "By catalogs",
			Self:  pagePath("/catalogs/", pageNum),
			Kind:  KindNavigation,
			Total: total,
		}
		for _, cat := range list {
			page.Nav = append(page.Nav, catalogNav(cat))
		}
		page.neighbors("/catalogs/", pageNum, b.pageSize())
		return page, nil
	}

	cat, err := b.catalogs.RetrieveCatalog(ctx, catalogs.RetrieveCatalogOptions{ID: id})
	if err != nil {
		return nil, err
	}

	page := &Page{
		ID:    fmt.Sprintf("tag:catalogs:%d:%d", cat.ID, pageNum),
		Title: cat.CatName,
		Self:  pagePath(fmt.Sprintf("/catalogs/%d/", cat.ID), pageNum),
		Kind:  KindAcquisition,
	}

	if pageNum == 0 {
		children, err := b.catalogs.ListCatalogs(ctx, catalogs.ListCatalogsOptions{ParentID: id})
		if err != nil {
			return nil, err
		}
		for _, child := range children {
			page.Nav = append(page.Nav, catalogNav(child))
		}
	}

	list, total, err := b.books.ListBooksWithTotal(ctx, books.ListBooksOptions{
		CatalogID:   id,
		Lang:        langFilter(lang),
		HideDoubles: b.cfg.OPDS.HideDoubles,
		Limit:       &limit,
		Offset:      &offset,
	})
	if err != nil {
		return nil, err
	}
	page.Books = list
	page.Total = total
	page.neighbors(fmt.Sprintf("/catalogs/%d/", cat.ID), pageNum, b.pageSize())
	return page, nil
}

func catalogNav(cat *models.Catalog) NavEntry {
	return NavEntry{
		ID:    fmt.Sprintf("tag:catalogs:%d", cat.ID),
		Title: cat.CatName,
		Href:  fmt.Sprintf("/catalogs/%d/", cat.ID),
	}
}

// AlphabetMenu builds the bucket selection page for authors, series or
// books.
func (b *Browser) AlphabetMenu(target string) *Page {
	buckets := []struct {
		code  int
		title string
	}{
		{BucketCyrillic, "Cyrillic"},
		{BucketLatin, "Latin"},
		{BucketDigits, "Digits"},
		{BucketOther, "Other"},
		{BucketAll, "All"},
	}

	page := &Page{
		ID:    "tag:" + target,
		Title: "By " + target,
		Self:  "/" + target + "/",
		Kind:  KindNavigation,
	}
	for _, bucket := range buckets {
		page.Nav = append(page.Nav, NavEntry{
			ID:    fmt.Sprintf("tag:%s:%d", target, bucket.code),
			Title: bucket.title,
			Href:  fmt.Sprintf("/%s/%d/", target, bucket.code),
		})
	}
	return page
}

// PrefixDrill builds one step of the alphabet drill-down: groups one
// character longer than the current prefix. Groups still wider than
// split_items link one level deeper; the rest link to the matching list.
func (b *Browser) PrefixDrill(ctx context.Context, target string, langCode int, prefix string) (*Page, error) {
	var groups []database.PrefixGroup
	var err error
	switch target {
	case "authors":
		groups, err = b.authors.PrefixGroups(ctx, langCode, prefix)
	case "series":
		groups, err = b.series.PrefixGroups(ctx, langCode, prefix)
	case "books":
		groups, err = b.books.PrefixGroups(ctx, langCode, prefix)
	default:
		return nil, errcodes.NotFound("Page")
	}
	if err != nil {
		return nil, err
	}

	page := &Page{
		ID:    fmt.Sprintf("tag:%s:%d:%s", target, langCode, prefix),
		Title: "By " + target,
		Self:  fmt.Sprintf("/%s/%d/%s", target, langCode, prefixSegment(prefix)),
		Kind:  KindNavigation,
	}

	for _, g := range groups {
		entry := NavEntry{
			ID:      fmt.Sprintf("tag:%s:%d:%s", target, langCode, g.Prefix),
			Title:   g.Prefix,
			Content: fmt.Sprintf("Items: %d", g.Count),
		}
		// A group no longer than the current prefix cannot drill deeper.
		if g.Count >= b.cfg.OPDS.SplitItems && len(g.Prefix) > len(prefix) {
			entry.Href = fmt.Sprintf("/%s/%d/%s", target, langCode, prefixSegment(g.Prefix))
		} else {
			entry.Href = fmt.Sprintf("/search/%s/b/%s/", target, escapeSegment(g.Prefix))
		}
		page.Nav = append(page.Nav, entry)
	}
	return page, nil
}

func prefixSegment(prefix string) string {
	if prefix == "" {
		return ""
	}
	return escapeSegment(prefix) + "/"
}

// GenreSections lists the translated genre sections that have available
// books.
func (b *Browser) GenreSections(ctx context.Context, lang string) (*Page, error) {
	sections, err := b.genres.ListSections(ctx, displayLang(lang, b.cfg))
	if err != nil {
		return nil, err
	}

	page := &Page{
		ID:    "tag:genres",
		Title: "By genres",
		Self:  "/genres/",
		Kind:  KindNavigation,
		Total: len(sections),
	}
	for _, s := range sections {
		page.Nav = append(page.Nav, NavEntry{
			ID:      fmt.Sprintf("tag:genres:%d", s.ID),
			Title:   s.Name,
			Content: fmt.Sprintf("Genres: %d", s.Count),
			Href:    fmt.Sprintf("/genres/%d/", s.ID),
		})
	}
	return page, nil
}

// GenreSection lists the genres of one section, each linking to its book
// search.
func (b *Browser) GenreSection(ctx context.Context, sectionID, pageNum int, lang string) (*Page, error) {
	list, err := b.genres.ListBySection(ctx, sectionID, displayLang(lang, b.cfg))
	if err != nil {
		return nil, err
	}

	page := &Page{
		ID:    fmt.Sprintf("tag:genres:%d:%d", sectionID, pageNum),
		Title: "By genres",
		Self:  pagePath(fmt.Sprintf("/genres/%d/", sectionID), pageNum),
		Kind:  KindNavigation,
		Total: len(list),
	}

	start := pageNum * b.pageSize()
	if start > len(list) {
		start = len(list)
	}
	end := start + b.pageSize()
	if end > len(list) {
		end = len(list)
	}
	for _, g := range list[start:end] {
		page.Nav = append(page.Nav, NavEntry{
			ID:      fmt.Sprintf("tag:genre:%d", g.ID),
			Title:   g.Name,
			Content: fmt.Sprintf("Books: %d", g.Count),
			Href:    fmt.Sprintf("/search/books/g/%d/", g.ID),
		})
	}
	page.neighbors(fmt.Sprintf("/genres/%d/", sectionID), pageNum, b.pageSize())
	return page, nil
}

// Recent lists available books newest-first.
func (b *Browser) Recent(ctx context.Context, pageNum int, lang string) (*Page, error) {
	limit, offset := b.listOpts(pageNum)
	list, total, err := b.books.ListBooksWithTotal(ctx, books.ListBooksOptions{
		Recent:      true,
		Lang:        langFilter(lang),
		HideDoubles: b.cfg.OPDS.HideDoubles,
		Limit:       &limit,
		Offset:      &offset,
	})
	if err != nil {
		return nil, err
	}

	page := &Page{
		ID:    fmt.Sprintf("tag:recent:%d", pageNum),
		Title: "Recent",
		Self:  pagePath("/recent/", pageNum),
		Kind:  KindAcquisition,
		Total: total,
		Books: list,
	}
	page.neighbors("/recent/", pageNum, b.pageSize())
	return page, nil
}

// Bookshelf lists the user's shelf, most recently read first.
func (b *Browser) Bookshelf(ctx context.Context, userID, pageNum int) (*Page, error) {
	limit, offset := b.listOpts(pageNum)
	list, total, err := b.books.ListBooksWithTotal(ctx, books.ListBooksOptions{
		ShelfUserID: &userID,
		Limit:       &limit,
		Offset:      &offset,
	})
	if err != nil {
		return nil, err
	}

	page := &Page{
		ID:    fmt.Sprintf("tag:bookshelf:%d", pageNum),
		Title: "Bookshelf",
		Self:  pagePath("/bookshelf/", pageNum),
		Kind:  KindAcquisition,
		Total: total,
		Books: list,
	}
	page.neighbors("/bookshelf/", pageNum, b.pageSize())
	return page, nil
}

// SearchNav offers the three search interpretations for raw terms.
func (b *Browser) SearchNav(terms string) *Page {
	escaped := escapeSegment(terms)
	return &Page{
		ID:    "tag:search:" + terms,
		Title: "Search",
		Self:  "/search/" + escaped + "/",
		Kind:  KindNavigation,
		Nav: []NavEntry{
			{
				ID:    "tag:search:books:" + terms,
				Title: "Search by title",
				Href:  "/search/books/m/" + escaped + "/",
			},
			{
				ID:    "tag:search:authors:" + terms,
				Title: "Search by author",
				Href:  "/search/authors/m/" + escaped + "/",
			},
			{
				ID:    "tag:search:series:" + terms,
				Title: "Search by series",
				Href:  "/search/series/m/" + escaped + "/",
			},
		},
	}
}

// SearchBooks resolves one book search. Types b/m/e match the title by
// prefix, substring and exact value; a/s/g/i look up by author, series,
// genre and book id.
func (b *Browser) SearchBooks(ctx context.Context, searchType, terms string, pageNum int, lang string) (*Page, error) {
	limit, offset := b.listOpts(pageNum)
	opts := books.ListBooksOptions{
		Lang:        langFilter(lang),
		HideDoubles: b.cfg.OPDS.HideDoubles,
		Limit:       &limit,
		Offset:      &offset,
	}

	switch searchType {
	case "b":
		opts.TitlePrefix = &terms
	case "m":
		opts.TitleContains = &terms
	case "e":
		opts.TitleExact = &terms
	case "a", "s", "g", "i":
		id, err := strconv.Atoi(terms)
		if err != nil {
			return nil, errcodes.ValidationError("Search term must be a numeric id.")
		}
		switch searchType {
		case "a":
			opts.AuthorID = &id
		case "s":
			opts.SeriesID = &id
		case "g":
			opts.GenreID = &id
		case "i":
			opts.ID = &id
		}
	default:
		return nil, errcodes.NotFound("Page")
	}

	list, total, err := b.books.ListBooksWithTotal(ctx, opts)
	if err != nil {
		return nil, err
	}

	base := fmt.Sprintf("/search/books/%s/%s/", searchType, escapeSegment(terms))
	page := &Page{
		ID:    fmt.Sprintf("tag:search:books:%s:%s:%d", searchType, terms, pageNum),
		Title: "Books",
		Self:  pagePath(base, pageNum),
		Kind:  KindAcquisition,
		Total: total,
		Books: list,
	}
	page.neighbors(base, pageNum, b.pageSize())
	return page, nil
}

// SearchAuthors lists matching authors, each linking to their book list.
func (b *Browser) SearchAuthors(ctx context.Context, searchType, terms string, pageNum int) (*Page, error) {
	limit, offset := b.listOpts(pageNum)
	opts := authors.ListAuthorsOptions{Limit: &limit, Offset: &offset}

	switch searchType {
	case "b":
		opts.Prefix = &terms
	case "m":
		opts.Contains = &terms
	case "e":
		opts.Exact = &terms
	default:
		return nil, errcodes.NotFound("Page")
	}

	list, total, err := b.authors.ListAuthorsWithTotal(ctx, opts)
	if err != nil {
		return nil, err
	}

	base := fmt.Sprintf("/search/authors/%s/%s/", searchType, escapeSegment(terms))
	page := &Page{
		ID:    fmt.Sprintf("tag:search:authors:%s:%s:%d", searchType, terms, pageNum),
		Title: "Authors",
		Self:  pagePath(base, pageNum),
		Kind:  KindNavigation,
		Total: total,
	}
	for _, a := range list {
		page.Nav = append(page.Nav, NavEntry{
			ID:    fmt.Sprintf("tag:author:%d", a.ID),
			Title: a.FullName,
			Href:  fmt.Sprintf("/search/books/a/%d/", a.ID),
		})
	}
	page.neighbors(base, pageNum, b.pageSize())
	return page, nil
}

// SearchSeries lists matching series, each linking to its book list.
func (b *Browser) SearchSeries(ctx context.Context, searchType, terms string, pageNum int) (*Page, error) {
	limit, offset := b.listOpts(pageNum)
	opts := series.ListSeriesOptions{Limit: &limit, Offset: &offset}

	switch searchType {
	case "b":
		opts.Prefix = &terms
	case "m":
		opts.Contains = &terms
	case "e":
		opts.Exact = &terms
	default:
		return nil, errcodes.NotFound("Page")
	}

	list, total, err := b.series.ListSeriesWithTotal(ctx, opts)
	if err != nil {
		return nil, err
	}

	base := fmt.Sprintf("/search/series/%s/%s/", searchType, escapeSegment(terms))
	page := &Page{
		ID:    fmt.Sprintf("tag:search:series:%s:%s:%d", searchType, terms, pageNum),
		Title: "Series",
		Self:  pagePath(base, pageNum),
		Kind:  KindNavigation,
		Total: total,
	}
	for _, s := range list {
		page.Nav = append(page.Nav, NavEntry{
			ID:    fmt.Sprintf("tag:series:%d", s.ID),
			Title: s.SerName,
			Href:  fmt.Sprintf("/search/books/s/%d/", s.ID),
		})
	}
	page.neighbors(base, pageNum, b.pageSize())
	return page, nil
}

// langFilter maps the facet value to the optional list filter.
func langFilter(lang string) *string {
	if lang == "" {
		return nil
	}
	return &lang
}

// displayLang picks the UI language for translated names: the facet language
// when one is active, the configured web language otherwise.
func displayLang(lang string, cfg *config.Config) string {
	if lang != "" {
		return lang
	}
	return cfg.Web.Language
}
