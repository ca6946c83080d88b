// Package server exposes epaperify conversions, diffs and playback over
// HTTP.
package server

import (
	"bytes"
	"context"
	"errors"
	"io/ioutil"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo"
	"github.com/labstack/echo/middleware"
	"github.com/labstack/gommon/log"
	"github.com/tmpim/epaperify"
	"github.com/tmpim/epaperify/store"
	"github.com/tmpim/epaperify/stream"
	"github.com/tmpim/epaperify/task"
)

// maxUpload bounds request bodies and uploaded files.
const maxUpload = 64 << 20

var (
	upgrader = websocket.Upgrader{
		HandshakeTimeout: 5 * time.Second,
	}
)

// Config configures the HTTP API.
type Config struct {
	Manager *stream.StreamManager
	// Store serves recorded streams if set.
	Store *store.Store
	// Codec compresses diffs unless a request asks for another.
	Codec epaperify.Codec
	// Timeout bounds each conversion. Zero means no limit.
	Timeout time.Duration
	// Quiet disables request logging.
	Quiet bool
}

type handler struct {
	Config
}

// New returns an echo instance serving the API under /api.
func New(cfg Config) *echo.Echo {
	h := &handler{Config: cfg}

	e := echo.New()
	e.HideBanner = true
	e.Logger.SetPrefix("epaperify")
	e.Logger.SetLevel(log.INFO)
	e.HTTPErrorHandler = h.errorHandler(e)

	if !cfg.Quiet {
		e.Use(middleware.Logger())
	}
	e.Use(middleware.Recover())
	e.Use(middleware.BodyLimit("64M"))

	api := e.Group("/api")

	api.POST("/convert/:mode", h.convert)
	api.POST("/diff", h.diff)

	if cfg.Manager != nil {
		api.GET("/client", h.client)
		api.GET("/state", h.state)
		api.POST("/play", h.play)
		api.POST("/pause", h.control(cfg.Manager.Pause))
		api.POST("/resume", h.control(cfg.Manager.Resume))
		api.POST("/stop", h.control(cfg.Manager.Stop))
	}

	if cfg.Store != nil {
		api.GET("/streams", h.streams)
		api.GET("/streams/:id/frames", h.frames)
		api.GET("/streams/:id/frames/:seq", h.frame)
	}

	return e
}

func (h *handler) context(c echo.Context) (context.Context, context.CancelFunc) {
	ctx := c.Request().Context()
	if h.Timeout > 0 {
		return context.WithTimeout(ctx, h.Timeout)
	}
	return context.WithCancel(ctx)
}

// statusFor maps an error to the HTTP status the API reports for it.
func statusFor(err error) int {
	var he *echo.HTTPError
	switch {
	case errors.As(err, &he):
		return he.Code
	case epaperify.IsCanceled(err):
		return http.StatusServiceUnavailable
	case epaperify.IsInputError(err):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

func (h *handler) errorHandler(e *echo.Echo) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		code := statusFor(err)

		msg := err.Error()
		var he *echo.HTTPError
		if errors.As(err, &he) {
			if s, ok := he.Message.(string); ok {
				msg = s
			}
		}

		if code >= http.StatusInternalServerError {
			e.Logger.Errorf("%s %s: %v", c.Request().Method, c.Path(), err)
		}

		if c.Response().Committed {
			return
		}
		if err := c.JSON(code, map[string]string{"error": msg}); err != nil {
			e.Logger.Error(err)
		}
	}
}

func readBody(c echo.Context) ([]byte, error) {
	data, err := ioutil.ReadAll(c.Request().Body)
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "failed to read body: "+err.Error())
	}
	if len(data) == 0 {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "empty body")
	}
	return data, nil
}

func readFile(fh *multipart.FileHeader) ([]byte, error) {
	if fh.Size > maxUpload {
		return nil, echo.NewHTTPError(http.StatusRequestEntityTooLarge, fh.Filename+" is too large")
	}
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ioutil.ReadAll(f)
}

func (h *handler) convert(c echo.Context) error {
	format, err := epaperify.ParseFormat(c.QueryParam("format"))
	if err != nil {
		return err
	}

	var fn func(ctx context.Context, data []byte) ([]byte, error)
	switch strings.ToLower(c.Param("mode")) {
	case "gray4", "grey4", "4bpp":
		fn = func(ctx context.Context, data []byte) ([]byte, error) {
			return epaperify.To4bpp(ctx, data, format)
		}
	case "rgb4", "rgb4bpp":
		fn = func(ctx context.Context, data []byte) ([]byte, error) {
			return epaperify.ToRGB4bpp(ctx, data, format)
		}
	case "mono", "monochrome", "1bpp":
		threshold := uint8(epaperify.DefaultThreshold)
		if v := c.QueryParam("threshold"); v != "" {
			t, err := strconv.ParseUint(v, 10, 8)
			if err != nil {
				return echo.NewHTTPError(http.StatusBadRequest, "threshold must be between 0 and 255")
			}
			threshold = uint8(t)
		}
		fn = func(ctx context.Context, data []byte) ([]byte, error) {
			return epaperify.ToMonochrome(ctx, data, format, threshold)
		}
	case "rgb":
		fn = func(ctx context.Context, data []byte) ([]byte, error) {
			return epaperify.ToRGBImage(ctx, data, format)
		}
	case "qoi":
		channels := 3
		if v := c.QueryParam("channels"); v != "" {
			if channels, err = strconv.Atoi(v); err != nil {
				return echo.NewHTTPError(http.StatusBadRequest, "channels must be 3 or 4")
			}
		}
		format = epaperify.FormatQOI
		fn = func(ctx context.Context, data []byte) ([]byte, error) {
			return epaperify.ToQOI(ctx, data, channels)
		}
	default:
		return echo.NewHTTPError(http.StatusNotFound, "unknown mode "+c.Param("mode"))
	}

	data, err := readBody(c)
	if err != nil {
		return err
	}

	ctx, cancel := h.context(c)
	defer cancel()

	out, err := task.Wait(ctx, task.Spawn(ctx, func() ([]byte, error) {
		return fn(ctx, data)
	}))
	if err != nil {
		return err
	}

	return c.Blob(http.StatusOK, format.ContentType(), out)
}

func (h *handler) diff(c echo.Context) error {
	codec := h.Codec
	if v := c.QueryParam("codec"); v != "" {
		var err error
		if codec, err = epaperify.ParseCodec(v); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
	}

	var images [2][]byte
	for i, name := range []string{"new", "old"} {
		fh, err := c.FormFile(name)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "missing "+name+" image")
		}
		if images[i], err = readFile(fh); err != nil {
			return err
		}
	}

	ctx, cancel := h.context(c)
	defer cancel()

	out, err := task.Wait(ctx, task.Spawn(ctx, func() ([]byte, error) {
		return epaperify.DiffQOI(images[0], images[1], epaperify.DiffOptions{Codec: codec})
	}))
	if err != nil {
		return err
	}

	c.Response().Header().Set("X-Epaperify-Codec", codec.String())
	return c.Blob(http.StatusOK, echo.MIMEOctetStream, out)
}

func (h *handler) client(c echo.Context) error {
	ws, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}
	defer ws.Close()

	h.Manager.HandleConn(ws)

	return nil
}

func (h *handler) state(c echo.Context) error {
	state := h.Manager.State()
	return c.JSON(http.StatusOK, &state)
}

func (h *handler) play(c echo.Context) error {
	data, err := readBody(c)
	if err != nil {
		return err
	}

	path := strings.TrimSpace(string(data))

	c.Logger().Infof("epaperify server: playing directory: %s", path)

	if err := h.Manager.PlayDirectory(path); err != nil {
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	}

	state := h.Manager.State()
	return c.JSON(http.StatusOK, &state)
}

func (h *handler) control(fn func() (stream.State, error)) echo.HandlerFunc {
	return func(c echo.Context) error {
		state, err := fn()
		if err != nil {
			return echo.NewHTTPError(http.StatusConflict, err.Error())
		}

		return c.JSON(http.StatusOK, &state)
	}
}

func (h *handler) streams(c echo.Context) error {
	streams, err := h.Store.Streams()
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, streams)
}

func streamID(c echo.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "stream ID must be a positive integer")
	}
	return id, nil
}

func (h *handler) frames(c echo.Context) error {
	id, err := streamID(c)
	if err != nil {
		return err
	}

	if _, err := h.Store.Stream(id); err != nil {
		return err
	}

	frames, err := h.Store.Frames(id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, frames)
}

// frame renders a recorded frame as an image.
func (h *handler) frame(c echo.Context) error {
	id, err := streamID(c)
	if err != nil {
		return err
	}

	seq, err := strconv.ParseUint(c.Param("seq"), 10, 32)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "frame must be a non-negative integer")
	}

	format, err := epaperify.ParseFormat(c.QueryParam("format"))
	if err != nil {
		return err
	}

	frame, err := h.Store.Reconstruct(id, uint32(seq))
	if err != nil {
		return err
	}

	b := &epaperify.Buffer{
		Width:    frame.Header.Width,
		Height:   frame.Header.Height,
		Channels: frame.Header.Channels,
		Pix:      frame.Pix,
	}

	buf := new(bytes.Buffer)
	if err := epaperify.EncodeBuffer(buf, b, epaperify.EncodeOptions{Format: format}); err != nil {
		return err
	}

	return c.Blob(http.StatusOK, format.ContentType(), buf.Bytes())
}
