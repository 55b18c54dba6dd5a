// Package server exposes the local bento and model stores over HTTP for
// remote automation: listing, inspection, deletion, archive export and
// archive import.
package server

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	"github.com/bentoml/bento/api"
	"github.com/bentoml/bento/bento"
	"github.com/bentoml/bento/bentofile"
	"github.com/bentoml/bento/envconfig"
	"github.com/bentoml/bento/logutil"
	"github.com/bentoml/bento/manifest"
	"github.com/bentoml/bento/model"
	"github.com/bentoml/bento/store"
	"github.com/bentoml/bento/types/errtypes"
	"github.com/bentoml/bento/types/tag"
	"github.com/bentoml/bento/version"
	"github.com/bentoml/bento/vfs"
)

// Server routes API requests to a bento store and its companion model
// store.
type Server struct {
	bentos *bento.Store
	models *model.Store
}

func NewServer(bentos *bento.Store, models *model.Store) *Server {
	return &Server{bentos: bentos, models: models}
}

func (s *Server) GenerateRoutes() http.Handler {
	if !envconfig.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	config := cors.DefaultConfig()
	config.AllowWildcard = true
	config.AllowBrowserExtensions = true
	config.AllowHeaders = []string{"Authorization", "Content-Type", "User-Agent", "Accept", "X-Requested-With"}
	config.AllowOrigins = envconfig.AllowOrigins

	r := gin.New()
	r.Use(gin.Recovery(), cors.New(config))

	r.GET("/api/bentos", s.ListBentosHandler)
	r.POST("/api/bentos/import", s.ImportHandler)
	r.GET("/api/bentos/:name", s.ListBentoVersionsHandler)
	r.GET("/api/bentos/:name/:version", s.ShowHandler)
	r.DELETE("/api/bentos/:name/:version", s.DeleteHandler)
	r.GET("/api/bentos/:name/:version/export", s.ExportHandler)

	r.GET("/api/models", s.ListModelsHandler)
	r.DELETE("/api/models/:name/:version", s.DeleteModelHandler)

	for _, method := range []string{http.MethodGet, http.MethodHead} {
		r.Handle(method, "/", func(c *gin.Context) {
			c.String(http.StatusOK, "BentoML is running")
		})
		r.Handle(method, "/api/version", func(c *gin.Context) {
			c.JSON(http.StatusOK, api.VersionResponse{Version: version.Version})
		})
	}

	return r
}

// handleError translates store and codec errors into API status codes.
// Unrecognized errors stay 500 so callers cannot mistake a server fault
// for bad input.
func handleError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, errtypes.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, errtypes.ErrExists):
		status = http.StatusConflict
	case errors.Is(err, tag.ErrInvalidTag),
		errors.Is(err, manifest.ErrCorrupt),
		errors.Is(err, manifest.ErrUnsupportedSchema),
		errors.Is(err, vfs.ErrUnsupportedBackend),
		errors.Is(err, vfs.ErrCorruptArchive),
		errors.Is(err, bento.ErrInvalidDestination),
		errors.Is(err, bentofile.ErrBuild):
		status = http.StatusBadRequest
	}
	if status == http.StatusInternalServerError {
		slog.Error("request failed", "method", c.Request.Method, "path", c.Request.URL.Path, "error", err)
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func pathTag(c *gin.Context) (tag.Tag, error) {
	return tag.Parse(c.Param("name") + ":" + c.Param("version"))
}

func (s *Server) ListBentosHandler(c *gin.Context) {
	entries, err := s.bentos.List()
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, api.ListBentoResponse{Bentos: s.bentoSummaries(entries)})
}

func (s *Server) ListBentoVersionsHandler(c *gin.Context) {
	entries, err := s.bentos.ListName(c.Param("name"))
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, api.ListBentoResponse{Bentos: s.bentoSummaries(entries)})
}

func (s *Server) bentoSummaries(entries []store.Entry) []api.BentoSummary {
	summaries := make([]api.BentoSummary, 0, len(entries))
	for _, e := range entries {
		summary := api.BentoSummary{
			Tag:          e.Tag.String(),
			Size:         e.Size,
			CreationTime: e.CreatedAt,
		}
		if info, err := manifest.Load(vfs.Dir(e.Path), "/"+manifest.Filename); err == nil {
			summary.Service = info.Service
		}
		summaries = append(summaries, summary)
	}
	return summaries
}

func (s *Server) ShowHandler(c *gin.Context) {
	t, err := pathTag(c)
	if err != nil {
		handleError(c, err)
		return
	}
	b, err := s.bentos.Get(t)
	if err != nil {
		handleError(c, err)
		return
	}
	size, err := vfs.DirSize(b.Path())
	if err != nil {
		handleError(c, err)
		return
	}

	info := b.Info()
	resp := api.BentoResponse{
		Tag:            b.Tag().String(),
		Service:        info.Service,
		BentomlVersion: info.BentomlVersion,
		Size:           size,
		CreationTime:   info.CreationTime.Time,
		Labels:         info.Labels,
	}
	for _, m := range info.Models {
		resp.Models = append(resp.Models, api.BentoModel{
			Tag:          m.Tag.String(),
			Module:       m.Module,
			Alias:        m.Alias,
			CreationTime: m.CreationTime.Time,
		})
	}

	var buf bytes.Buffer
	if err := info.Encode(&buf); err != nil {
		handleError(c, err)
		return
	}
	resp.Manifest = buf.String()

	c.JSON(http.StatusOK, resp)
}

func (s *Server) DeleteHandler(c *gin.Context) {
	t, err := pathTag(c)
	if err != nil {
		handleError(c, err)
		return
	}
	if err := s.bentos.Delete(t); err != nil {
		handleError(c, err)
		return
	}
	c.Status(http.StatusOK)
}

func archiveContentType(format string) string {
	switch format {
	case vfs.FormatGzip:
		return "application/gzip"
	case vfs.FormatZip:
		return "application/zip"
	default:
		return "application/x-tar"
	}
}

func (s *Server) ExportHandler(c *gin.Context) {
	t, err := pathTag(c)
	if err != nil {
		handleError(c, err)
		return
	}
	format := c.Query("format")
	if format == "" {
		format = vfs.FormatBento
	}
	if !vfs.KnownFormat(format) {
		handleError(c, fmt.Errorf("%w: output format %q", vfs.ErrUnsupportedBackend, format))
		return
	}

	b, err := s.bentos.Get(t)
	if err != nil {
		handleError(c, err)
		return
	}

	c.Header("Content-Type", archiveContentType(format))
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", b.Tag().Name+"_"+b.Tag().Version+"."+format))
	c.Status(http.StatusOK)
	if err := b.WriteArchive(c.Writer, format, s.models); err != nil {
		// The status line is already on the wire; the truncated body is
		// all the client gets.
		slog.Error("archive streaming failed", "tag", b.Tag(), "error", err)
	}
}

func (s *Server) ImportHandler(c *gin.Context) {
	format := c.Query("format")
	if format == "" {
		format = vfs.FormatBento
	}
	if !vfs.KnownFormat(format) {
		handleError(c, fmt.Errorf("%w: input format %q", vfs.ErrUnsupportedBackend, format))
		return
	}

	tmp, err := os.CreateTemp(envconfig.TmpDir, "bento-import-")
	if err != nil {
		handleError(c, err)
		return
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, c.Request.Body); err != nil {
		tmp.Close()
		handleError(c, err)
		return
	}
	if err := tmp.Close(); err != nil {
		handleError(c, err)
		return
	}

	b, err := bento.Import(tmp.Name(), format)
	if err != nil {
		handleError(c, err)
		return
	}
	defer b.Close()

	if err := b.Save(s.bentos, s.models); err != nil {
		handleError(c, err)
		return
	}
	slog.Info("imported bento", "tag", b.Tag())
	c.JSON(http.StatusOK, api.ImportResponse{Tag: b.Tag().String()})
}

func (s *Server) ListModelsHandler(c *gin.Context) {
	entries, err := s.models.List()
	if err != nil {
		handleError(c, err)
		return
	}
	resp := api.ListModelResponse{Models: make([]api.ModelSummary, 0, len(entries))}
	for _, e := range entries {
		summary := api.ModelSummary{
			Tag:          e.Tag.String(),
			Size:         e.Size,
			CreationTime: e.CreatedAt,
		}
		if m, err := s.models.Get(e.Tag); err == nil {
			summary.Module = m.Info.Module
		}
		resp.Models = append(resp.Models, summary)
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) DeleteModelHandler(c *gin.Context) {
	t, err := pathTag(c)
	if err != nil {
		handleError(c, err)
		return
	}
	if err := s.models.Delete(t); err != nil {
		handleError(c, err)
		return
	}
	c.Status(http.StatusOK)
}

// Serve opens the stores under BENTOML_HOME and serves the API on ln until
// ctx is cancelled, then shuts down gracefully.
func Serve(ctx context.Context, ln net.Listener) error {
	level := slog.LevelInfo
	if envconfig.Debug {
		level = slog.LevelDebug
	}
	slog.SetDefault(logutil.NewLogger(os.Stderr, level))
	slog.Info("server config", "env", envconfig.Values())

	bentos, err := bento.NewStore(envconfig.BentoStoreDir())
	if err != nil {
		return err
	}
	models, err := model.NewStore(envconfig.ModelStoreDir())
	if err != nil {
		return err
	}

	srv := &http.Server{Handler: NewServer(bentos, models).GenerateRoutes()}
	slog.Info(fmt.Sprintf("Listening on %s (version %s)", ln.Addr(), version.Version))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
