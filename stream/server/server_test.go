package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/labstack/echo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmpim/epaperify"
	"github.com/tmpim/epaperify/store"
	"github.com/tmpim/epaperify/stream"
)

func testImage(w, h int) []byte {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 255 / w), G: uint8(y * 255 / h), B: 0x80, A: 0xff})
		}
	}
	buf := new(bytes.Buffer)
	if err := epaperify.Encode(buf, img, epaperify.EncodeOptions{Format: epaperify.FormatPNG}); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

func do(e *echo.Echo, method, target string, body []byte, contentType string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	if contentType != "" {
		req.Header.Set(echo.HeaderContentType, contentType)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func errorMessage(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body["error"]
}

func TestConvert(t *testing.T) {
	e := New(Config{Quiet: true})
	src := testImage(16, 8)

	rec := do(e, http.MethodPost, "/api/convert/gray4", src, "image/png")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get(echo.HeaderContentType))

	img, _, err := epaperify.Decode(rec.Body.Bytes())
	require.NoError(t, err)
	_, ok := img.(*image.Paletted)
	assert.True(t, ok)

	rec = do(e, http.MethodPost, "/api/convert/mono?format=bmp&threshold=200", src, "image/png")
	require.Equal(t, http.StatusOK, rec.Code)
	_, name, err := epaperify.Decode(rec.Body.Bytes())
	require.NoError(t, err)
	assert.Equal(t, "bmp", name)

	rec = do(e, http.MethodPost, "/api/convert/qoi?channels=4", src, "image/png")
	require.Equal(t, http.StatusOK, rec.Code)
	frame, err := epaperify.DecodeQOI(rec.Body.Bytes())
	require.NoError(t, err)
	assert.Equal(t, 4, frame.Header.Channels)
}

func TestConvertErrors(t *testing.T) {
	e := New(Config{Quiet: true})
	src := testImage(4, 4)

	for _, c := range []struct {
		target string
		body   []byte
		code   int
	}{
		{"/api/convert/sepia", src, http.StatusNotFound},
		{"/api/convert/rgb4", []byte("garbage"), http.StatusBadRequest},
		{"/api/convert/rgb4", nil, http.StatusBadRequest},
		{"/api/convert/rgb4?format=xcf", src, http.StatusBadRequest},
		{"/api/convert/mono?threshold=300", src, http.StatusBadRequest},
		{"/api/convert/qoi?channels=2", src, http.StatusBadRequest},
	} {
		t.Run(c.target, func(t *testing.T) {
			rec := do(e, http.MethodPost, c.target, c.body, "image/png")
			assert.Equal(t, c.code, rec.Code)
			assert.NotEmpty(t, errorMessage(t, rec))
		})
	}
}

func multipartBody(t *testing.T, files map[string][]byte) ([]byte, string) {
	t.Helper()
	buf := new(bytes.Buffer)
	w := multipart.NewWriter(buf)
	for name, data := range files {
		part, err := w.CreateFormFile(name, name+".qoi")
		require.NoError(t, err)
		_, err = part.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return buf.Bytes(), w.FormDataContentType()
}

func TestDiff(t *testing.T) {
	e := New(Config{Quiet: true, Codec: epaperify.CodecZstd})

	qoiImage, err := epaperify.ToQOI(context.Background(), testImage(8, 4), 3)
	require.NoError(t, err)

	body, contentType := multipartBody(t, map[string][]byte{"new": qoiImage, "old": qoiImage})
	rec := do(e, http.MethodPost, "/api/diff", body, contentType)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "zstd", rec.Header().Get("X-Epaperify-Codec"))

	raw, err := epaperify.CodecZstd.Decompress(rec.Body.Bytes(), 8*4*3)
	require.NoError(t, err)
	assert.Equal(t, make([]byte, 8*4*3), raw)

	rec = do(e, http.MethodPost, "/api/diff?codec=s2", body, contentType)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "s2", rec.Header().Get("X-Epaperify-Codec"))

	rec = do(e, http.MethodPost, "/api/diff?codec=brotli", body, contentType)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	body, contentType = multipartBody(t, map[string][]byte{"new": qoiImage})
	rec = do(e, http.MethodPost, "/api/diff", body, contentType)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	other, err := epaperify.ToQOI(context.Background(), testImage(4, 4), 3)
	require.NoError(t, err)
	body, contentType = multipartBody(t, map[string][]byte{"new": qoiImage, "old": other})
	rec = do(e, http.MethodPost, "/api/diff", body, contentType)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, errorMessage(t, rec), "do not match")
}

func TestPlaybackControls(t *testing.T) {
	mgr := stream.NewStreamManager(stream.Options{Framerate: 10})
	e := New(Config{Quiet: true, Manager: mgr})

	rec := do(e, http.MethodGet, "/api/state", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var state struct {
		State int `json:"state"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &state))
	assert.Equal(t, stream.StateStopped, state.State)

	for _, path := range []string{"/api/pause", "/api/resume", "/api/stop"} {
		rec = do(e, http.MethodPost, path, nil, "")
		assert.Equal(t, http.StatusConflict, rec.Code, path)
	}

	rec = do(e, http.MethodPost, "/api/play", []byte(filepath.Join(t.TempDir(), "missing")), "text/plain")
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = do(e, http.MethodPost, "/api/play", nil, "text/plain")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRoutesWithoutManager(t *testing.T) {
	e := New(Config{Quiet: true})
	rec := do(e, http.MethodGet, "/api/state", nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRecordedStreams(t *testing.T) {
	db, err := store.Open(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	defer db.Close()

	b := epaperify.NewBuffer(4, 2, 1)
	for i := range b.Pix {
		b.Pix[i] = uint8(i * 0x20)
	}
	frame := epaperify.NewFrame(b)

	id, err := db.CreateStream("recorded", frame.Header, epaperify.Gray4, epaperify.CodecLZ4)
	require.NoError(t, err)
	data, err := epaperify.CodecLZ4.Compress(frame.Pix)
	require.NoError(t, err)
	require.NoError(t, db.Append(id, epaperify.Delta{Keyframe: true, Header: frame.Header, Data: data}))

	e := New(Config{Quiet: true, Store: db})

	rec := do(e, http.MethodGet, "/api/streams", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var streams []struct {
		Name string
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &streams))
	require.Len(t, streams, 1)
	assert.Equal(t, "recorded", streams[0].Name)

	rec = do(e, http.MethodGet, fmt.Sprintf("/api/streams/%d/frames", id), nil, "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(e, http.MethodGet, fmt.Sprintf("/api/streams/%d/frames/0", id), nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	img, _, err := epaperify.Decode(rec.Body.Bytes())
	require.NoError(t, err)
	assert.Equal(t, b.Pix, epaperify.GrayBuffer(img).Pix)

	rec = do(e, http.MethodGet, fmt.Sprintf("/api/streams/%d/frames/1", id), nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(e, http.MethodGet, "/api/streams/99/frames", nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(e, http.MethodGet, "/api/streams/abc/frames", nil, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusServiceUnavailable, statusFor(context.Canceled))
	assert.Equal(t, http.StatusServiceUnavailable, statusFor(fmt.Errorf("wrapped: %w", context.DeadlineExceeded)))
	assert.Equal(t, http.StatusBadRequest, statusFor(&epaperify.Error{Op: "Diff", Kind: epaperify.ErrShapeMismatch}))
	assert.Equal(t, http.StatusNotFound, statusFor(store.ErrNotFound))
	assert.Equal(t, http.StatusTeapot, statusFor(echo.NewHTTPError(http.StatusTeapot)))
	assert.Equal(t, http.StatusInternalServerError, statusFor(fmt.Errorf("disk on fire")))

	_, err := epaperify.Codec(9).Compress([]byte{1})
	require.Error(t, err)
	assert.Equal(t, http.StatusInternalServerError, statusFor(err))
}
