package opds2

import (
	"net/http"
	"net/url"
	"strconv"

	"github.com/dshein-alt/ropds/pkg/auth"
	"github.com/dshein-alt/ropds/pkg/browse"
	"github.com/dshein-alt/ropds/pkg/config"
	"github.com/dshein-alt/ropds/pkg/database"
	"github.com/dshein-alt/ropds/pkg/errcodes"
	"github.com/dshein-alt/ropds/pkg/users"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/segmentio/encoding/json"
)

type Handlers struct {
	cfg     *config.Config
	browser *browse.Browser
	users   *users.Service
}

func NewHandlers(db *database.DB, cfg *config.Config) *Handlers {
	return &Handlers{
		cfg:     cfg,
		browser: browse.New(db, cfg),
		users:   users.NewService(db),
	}
}

// Register mounts the OPDS 2.0 routes under /opds/v2.
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

	g.GET("/search/:terms/", h.searchNav)
	g.GET("/search/books/:type/:terms/", h.searchBooks)
	g.GET("/search/books/:type/:terms/:page/", h.searchBooks)
	g.GET("/search/authors/:type/:terms/", h.searchAuthors)
	g.GET("/search/authors/:type/:terms/:page/", h.searchAuthors)
	g.GET("/search/series/:type/:terms/", h.searchSeries)
	g.GET("/search/series/:type/:terms/:page/", h.searchSeries)
}

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
	b := &builder{lang: lang(c)}

	data, err := json.Marshal(b.document(page))
	if err != nil {
		return errors.WithStack(err)
	}
	return c.Blob(http.StatusOK, ContentType, data)
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
