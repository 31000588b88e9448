// Package server assembles the HTTP surface: both OPDS families, covers,
// downloads and static assets.
package server

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/dshein-alt/ropds/pkg/config"
	"github.com/dshein-alt/ropds/pkg/covers"
	"github.com/dshein-alt/ropds/pkg/database"
	"github.com/dshein-alt/ropds/pkg/errcodes"
	"github.com/dshein-alt/ropds/pkg/exttools"
	"github.com/dshein-alt/ropds/pkg/opds"
	"github.com/dshein-alt/ropds/pkg/opds2"
	"github.com/dshein-alt/ropds/pkg/static"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/robinjoseph08/golib/echo/v4/health"
	"github.com/robinjoseph08/golib/echo/v4/middleware/logger"
	"github.com/robinjoseph08/golib/echo/v4/middleware/recovery"
)

const staticDir = "static"

func New(cfg *config.Config, db *database.DB, tools *exttools.Tools) *http.Server {
	e := echo.New()

	e.Use(logger.Middleware())
	e.Use(recovery.Middleware())
	e.Use(middleware.CORS())

	health.RegisterRoutes(e)

	coverSvc := covers.New(cfg, tools)
	opds.NewHandlers(db, cfg, coverSvc).Register(e)
	opds2.NewHandlers(db, cfg).Register(e)

	if info, err := os.Stat(staticDir); err == nil && info.IsDir() {
		e.GET("/static/*", static.Handler(os.DirFS(staticDir)))
	}

	e.HTTPErrorHandler = errcodes.NewHandler().Handle

	return &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           e,
		ReadHeaderTimeout: 3 * time.Second,
	}
}
