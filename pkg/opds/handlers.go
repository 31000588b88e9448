package opds

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/dshein-alt/ropds/pkg/auth"
	"github.com/dshein-alt/ropds/pkg/books"
	"github.com/dshein-alt/ropds/pkg/browse"
	"github.com/dshein-alt/ropds/pkg/config"
	"github.com/dshein-alt/ropds/pkg/covers"
	"github.com/dshein-alt/ropds/pkg/database"
	"github.com/dshein-alt/ropds/pkg/errcodes"
	"github.com/dshein-alt/ropds/pkg/models"
	"github.com/dshein-alt/ropds/pkg/static"
	"github.com/dshein-alt/ropds/pkg/users"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
)

type Handlers struct {
	cfg     *config.Config
	browser *browse.Browser
	books   *books.Service
	covers  *covers.Service
	users   *users.Service
}

func NewHandlers(db *database.DB, cfg *config.Config, coverSvc *covers.Service) *Handlers {
	return &Handlers{
		cfg:     cfg,
		browser: browse.New(db, cfg),
		books:   books.NewService(db),
		covers:  coverSvc,
		users:   users.NewService(db),
	}
}

// Register mounts the OPDS 1.2 routes under /opds.
func (h *Handlers) Register(e *echo.Echo) {
	guard := auth.Optional(h.users)
	if h.cfg.OPDS.AuthRequired {
		guard = auth.Required(h.users)
	}
	g := e.Group(basePath, guard)

	g.GET("/", h.root)
	g.GET("/lang/:locale/", h.root)

	g.GET("/catalogs/", h.catalogs)
	g.GET("/catalogs/:id/", h.catalogs)
	g.GET("/catalogs/:id/:page/", h.catalogs)

	for _, target := range []string{"authors", "series", "books"} {
		g.GET("/"+target+"/", h.alphabet(target))
		g.GET("/"+target+"/:lang/", h.prefixes(target))
		g.GET("/"+target+"/:lang/:prefix/", h.prefixes(target))
	}

	g.GET("/genres/", h.genreSections)
	g.GET("/genres/:section/", h.genreSection)
	g.GET("/genres/:section/:page/", h.genreSection)

	g.GET("/recent/", h.recent)
	g.GET("/recent/:page/", h.recent)

	g.GET("/bookshelf/", h.bookshelf)
	g.GET("/bookshelf/:page/", h.bookshelf)

	g.GET("/search/", h.openSearch)
	g.GET("/search/:terms/", h.searchNav)
	g.GET("/search/books/:type/:terms/", h.searchBooks)
	g.GET("/search/books/:type/:terms/:page/", h.searchBooks)
	g.GET("/search/authors/:type/:terms/", h.searchAuthors)
	g.GET("/search/authors/:type/:terms/:page/", h.searchAuthors)
	g.GET("/search/series/:type/:terms/", h.searchSeries)
	g.GET("/search/series/:type/:terms/:page/", h.searchSeries)

	g.GET("/cover/:id/", h.cover)
	g.GET("/thumb/:id/", h.thumb)
	g.GET("/download/:id/:flag/", h.download)
}

// lang resolves the active language facet from either URL form.
func lang(c echo.Context) string {
	if locale := c.Param("locale"); locale != "" {
		return locale
	}
	return c.QueryParam("lang")
}

func pageParam(c echo.Context) int {
	page, err := strconv.Atoi(c.Param("page"))
	if err != nil || page < 0 {
		return 0
	}
	return page
}

func intParam(c echo.Context, name string) (int, error) {
	v, err := strconv.Atoi(c.Param(name))
	if err != nil {
		return 0, errcodes.NotFound("Page")
	}
	return v, nil
}

func termsParam(c echo.Context) string {
	terms, err := url.PathUnescape(c.Param("terms"))
	if err != nil {
		return c.Param("terms")
	}
	return terms
}

func (h *Handlers) serve(c echo.Context, page *browse.Page) error {
	b := &builder{cfg: h.cfg, lang: lang(c)}
	feed := b.feed(page)

	data, err := xml.MarshalIndent(feed, "", "  ")
	if err != nil {
		return errors.WithStack(err)
	}
	return c.Blob(http.StatusOK, ContentType, append([]byte(xml.Header), data...))
}

func (h *Handlers) root(c echo.Context) error {
	page, err := h.browser.Root(c.Request().Context(), lang(c), auth.UserFrom(c))
	if err != nil {
		return err
	}
	return h.serve(c, page)
}

func (h *Handlers) catalogs(c echo.Context) error {
	var id *int
	if c.Param("id") != "" {
		v, err := intParam(c, "id")
		if err != nil {
			return err
		}
		id = &v
	}

	page, err := h.browser.Catalogs(c.Request().Context(), id, pageParam(c), lang(c))
	if err != nil {
		return err
	}
	return h.serve(c, page)
}

func (h *Handlers) alphabet(target string) echo.HandlerFunc {
	return func(c echo.Context) error {
		if !h.cfg.OPDS.AlphabetMenu {
			page, err := h.browser.PrefixDrill(c.Request().Context(), target, browse.BucketAll, "")
			if err != nil {
				return err
			}
			return h.serve(c, page)
		}
		return h.serve(c, h.browser.AlphabetMenu(target))
	}
}

func (h *Handlers) prefixes(target string) echo.HandlerFunc {
	return func(c echo.Context) error {
		langCode, err := intParam(c, "lang")
		if err != nil {
			return err
		}
		prefix, err := url.PathUnescape(c.Param("prefix"))
		if err != nil {
			prefix = c.Param("prefix")
		}

		page, err := h.browser.PrefixDrill(c.Request().Context(), target, langCode, prefix)
		if err != nil {
			return err
		}
		return h.serve(c, page)
	}
}

func (h *Handlers) genreSections(c echo.Context) error {
	page, err := h.browser.GenreSections(c.Request().Context(), lang(c))
	if err != nil {
		return err
	}
	return h.serve(c, page)
}

func (h *Handlers) genreSection(c echo.Context) error {
	section, err := intParam(c, "section")
	if err != nil {
		return err
	}
	page, err := h.browser.GenreSection(c.Request().Context(), section, pageParam(c), lang(c))
	if err != nil {
		return err
	}
	return h.serve(c, page)
}

func (h *Handlers) recent(c echo.Context) error {
	page, err := h.browser.Recent(c.Request().Context(), pageParam(c), lang(c))
	if err != nil {
		return err
	}
	return h.serve(c, page)
}

func (h *Handlers) bookshelf(c echo.Context) error {
	user := auth.UserFrom(c)
	if user == nil {
		c.Response().Header().Set(echo.HeaderWWWAuthenticate, `Basic realm="OPDS"`)
		return errcodes.Unauthorized("The bookshelf requires authentication.")
	}

	page, err := h.browser.Bookshelf(c.Request().Context(), user.ID, pageParam(c))
	if err != nil {
		return err
	}
	return h.serve(c, page)
}

func (h *Handlers) openSearch(c echo.Context) error {
	desc := &OpenSearchDescription{
		Xmlns:       "http://a9.com/-/spec/opensearch/1.1/",
		ShortName:   h.cfg.OPDS.Title,
		Description: "Search the book catalog",
		URLs: []OpenSearchURL{
			{Type: mimeAcquisition, Template: basePath + "/search/{searchTerms}/"},
		},
	}
	data, err := xml.MarshalIndent(desc, "", "  ")
	if err != nil {
		return errors.WithStack(err)
	}
	return c.Blob(http.StatusOK, mimeOpenSearch, append([]byte(xml.Header), data...))
}

func (h *Handlers) searchNav(c echo.Context) error {
	return h.serve(c, h.browser.SearchNav(termsParam(c)))
}

func (h *Handlers) searchBooks(c echo.Context) error {
	page, err := h.browser.SearchBooks(c.Request().Context(), c.Param("type"), termsParam(c), pageParam(c), lang(c))
	if err != nil {
		return err
	}
	return h.serve(c, page)
}

func (h *Handlers) searchAuthors(c echo.Context) error {
	page, err := h.browser.SearchAuthors(c.Request().Context(), c.Param("type"), termsParam(c), pageParam(c))
	if err != nil {
		return err
	}
	return h.serve(c, page)
}

func (h *Handlers) searchSeries(c echo.Context) error {
	page, err := h.browser.SearchSeries(c.Request().Context(), c.Param("type"), termsParam(c), pageParam(c))
	if err != nil {
		return err
	}
	return h.serve(c, page)
}

func (h *Handlers) retrieveBook(c echo.Context) (*models.Book, error) {
	id, err := intParam(c, "id")
	if err != nil {
		return nil, err
	}
	return h.books.RetrieveBook(c.Request().Context(), books.RetrieveBookOptions{ID: &id})
}

func (h *Handlers) cover(c echo.Context) error {
	book, err := h.retrieveBook(c)
	if err != nil {
		return err
	}
	data, mime, err := h.covers.Extract(c.Request().Context(), book)
	if err != nil {
		return err
	}
	return static.Serve(c, data, mime)
}

func (h *Handlers) thumb(c echo.Context) error {
	book, err := h.retrieveBook(c)
	if err != nil {
		return err
	}
	data, _, err := h.covers.Extract(c.Request().Context(), book)
	if err != nil {
		return err
	}
	thumb, err := covers.Thumbnail(data)
	if err != nil {
		return err
	}
	return static.Serve(c, thumb, "image/jpeg")
}

func (h *Handlers) download(c echo.Context) error {
	book, err := h.retrieveBook(c)
	if err != nil {
		return err
	}
	data, err := h.covers.ReadBookBytes(book)
	if err != nil {
		return err
	}

	filename := downloadName(book.Title) + "." + book.Format
	mime := models.FormatMimeType(book.Format)

	// zip_flag 1 wraps the file unless the format is already a ZIP container.
	if c.Param("flag") == "1" && !models.IsNoZipFormat(book.Format) {
		data, err = zipBytes(book.Filename, data)
		if err != nil {
			return err
		}
		filename += ".zip"
		mime = models.ZippedMimeType(book.Format)
	}

	c.Response().Header().Set(echo.HeaderContentDisposition,
		fmt.Sprintf("attachment; filename=%q", filename))
	return c.Blob(http.StatusOK, mime, data)
}

// downloadName turns a book title into a safe attachment filename.
func downloadName(title string) string {
	name := strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', '"', ':', '*', '?', '<', '>', '|':
			return '_'
		}
		return r
	}, title)
	name = strings.TrimSpace(name)
	if name == "" {
		name = "book"
	}
	return name
}

// zipBytes wraps the file into a single-entry deflate archive in memory.
func zipBytes(entryName string, data []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	w, err := zw.Create(entryName)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	if _, err := w.Write(data); err != nil {
		return nil, errors.WithStack(err)
	}
	if err := zw.Close(); err != nil {
		return nil, errors.WithStack(err)
	}
	return buf.Bytes(), nil
}
