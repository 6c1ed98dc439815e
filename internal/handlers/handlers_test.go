package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/lehigh-university-libraries/photosheet/internal/imageio"
	"github.com/lehigh-university-libraries/photosheet/internal/layout"
	"github.com/lehigh-university-libraries/photosheet/internal/manifest"
	"github.com/lehigh-university-libraries/photosheet/internal/models"
	"github.com/lehigh-university-libraries/photosheet/internal/session"
	"github.com/lehigh-university-libraries/photosheet/internal/sheet"
	"github.com/lehigh-university-libraries/photosheet/internal/wizard"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

type client struct {
	t   *testing.T
	srv *httptest.Server
}

func newClient(t *testing.T) *client {
	t.Helper()
	h := New(session.Options{})
	srv := httptest.NewServer(h.Routes())
	t.Cleanup(func() {
		srv.Close()
		h.Close()
	})
	return &client{t: t, srv: srv}
}

func (c *client) do(method, path, contentType string, body io.Reader) *http.Response {
	c.t.Helper()
	req, err := http.NewRequest(method, c.srv.URL+path, body)
	if err != nil {
		c.t.Fatal(err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := c.srv.Client().Do(req)
	if err != nil {
		c.t.Fatal(err)
	}
	c.t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (c *client) json(method, path string, body any) *http.Response {
	c.t.Helper()
	var r io.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		r = bytes.NewReader(data)
	}
	return c.do(method, path, "application/json", r)
}

func (c *client) upload(path, field string, files map[string][]byte) *http.Response {
	c.t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for name, data := range files {
		part, err := mw.CreateFormFile(field, name)
		if err != nil {
			c.t.Fatal(err)
		}
		part.Write(data)
	}
	mw.Close()
	return c.do("POST", path, mw.FormDataContentType(), &buf)
}

func expectStatus(t *testing.T, resp *http.Response, want int) {
	t.Helper()
	if resp.StatusCode != want {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("Expected status %d, got %d: %s", want, resp.StatusCode, body)
	}
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	return v
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 90, A: 255})
		}
	}
	data, err := imageio.EncodePNG(img)
	if err != nil {
		t.Fatal(err)
	}
	return data
}

func TestFormats(t *testing.T) {
	c := newClient(t)
	resp := c.do("GET", "/api/formats", "", nil)
	expectStatus(t, resp, http.StatusOK)
	body := decode[struct {
		Formats []struct {
			ID string `json:"id"`
		} `json:"formats"`
		Sliders []struct {
			Name  string `json:"name"`
			Wired bool   `json:"wired"`
		} `json:"sliders"`
	}](t, resp)
	if len(body.Formats) != 6 || body.Formats[0].ID != "3x4" {
		t.Errorf("Expected 6 formats starting with 3x4, got %+v", body.Formats)
	}
	if len(body.Sliders) != 11 {
		t.Errorf("Expected 11 sliders, got %d", len(body.Sliders))
	}
}

func TestHealthcheck(t *testing.T) {
	c := newClient(t)
	resp := c.do("GET", "/healthcheck", "", nil)
	expectStatus(t, resp, http.StatusOK)
	body, _ := io.ReadAll(resp.Body)
	if string(body) != "OK" {
		t.Errorf("Expected OK, got %q", body)
	}
}

func TestSessionLifecycle(t *testing.T) {
	c := newClient(t)

	resp := c.json("POST", "/api/sessions", map[string]string{"format": "3x4"})
	expectStatus(t, resp, http.StatusCreated)
	snap := decode[models.Session](t, resp)
	if snap.Step != wizard.StepAdjust || snap.CanvasWidth != 354 || snap.CanvasHeight != 472 {
		t.Fatalf("Unexpected session %+v", snap)
	}
	base := "/api/sessions/" + snap.ID

	resp = c.upload(base+"/images", "files", map[string][]byte{
		"a.png":   pngBytes(t, 120, 160),
		"bad.jpg": []byte("not a jpeg"),
	})
	expectStatus(t, resp, http.StatusOK)
	up := decode[models.UploadResult](t, resp)
	if len(up.IDs) != 1 || len(up.Failures) != 1 || up.Failures[0].Name != "bad.jpg" {
		t.Fatalf("Expected one accepted and one rejected file, got %+v", up)
	}
	img := base + "/images/" + up.IDs[0]

	resp = c.json("POST", base+"/step", map[string]string{"action": "continue"})
	expectStatus(t, resp, http.StatusConflict)

	resp = c.json("POST", img+"/edit", []map[string]any{
		{"op": "rotate"},
		{"op": "slider", "name": "brightness", "value": 999},
	})
	expectStatus(t, resp, http.StatusOK)
	st := decode[struct {
		Rotation    int                `json:"rotation"`
		Adjustments map[string]float64 `json:"adjustments"`
	}](t, resp)
	if st.Rotation != 90 || st.Adjustments["brightness"] != 150 {
		t.Errorf("Unexpected state %+v", st)
	}

	resp = c.json("POST", img+"/edit", map[string]any{"ops": []map[string]any{{"op": "warp"}}})
	expectStatus(t, resp, http.StatusBadRequest)

	resp = c.do("GET", img+"/preview.png", "", nil)
	expectStatus(t, resp, http.StatusOK)
	if resp.Header.Get("Content-Type") != "image/png" {
		t.Errorf("Expected image/png, got %s", resp.Header.Get("Content-Type"))
	}

	resp = c.do("POST", img+"/finalize", "", nil)
	expectStatus(t, resp, http.StatusOK)

	resp = c.do("GET", img+"/adjusted.png", "", nil)
	expectStatus(t, resp, http.StatusOK)
	adjusted, _ := io.ReadAll(resp.Body)
	if cfg, _, err := imageio.Config(adjusted); err != nil || cfg.Width != 354 || cfg.Height != 472 {
		t.Errorf("Expected 354x472 adjusted PNG, got %+v err=%v", cfg, err)
	}

	resp = c.json("POST", base+"/step", map[string]string{"action": "continue"})
	expectStatus(t, resp, http.StatusOK)

	resp = c.upload(img+"/processed", "file", map[string][]byte{"small.png": pngBytes(t, 10, 10)})
	expectStatus(t, resp, http.StatusUnprocessableEntity)

	resp = c.json("POST", img+"/processed", map[string]bool{"auto": true})
	expectStatus(t, resp, http.StatusOK)

	resp = c.json("POST", base+"/step", map[string]string{"action": "continue"})
	expectStatus(t, resp, http.StatusOK)

	resp = c.json("PUT", img+"/quantity", map[string]int{"quantity": 999})
	expectStatus(t, resp, http.StatusOK)
	q := decode[map[string]any](t, resp)
	if q["quantity"].(float64) != 50 {
		t.Errorf("Expected quantity clamped to 50, got %v", q["quantity"])
	}

	resp = c.do("GET", base+"/sheet.pdf", "", nil)
	expectStatus(t, resp, http.StatusOK)
	if cd := resp.Header.Get("Content-Disposition"); !strings.Contains(cd, "photos-photo-3x4.pdf") {
		t.Errorf("Expected download filename, got %q", cd)
	}
	pdf, _ := io.ReadAll(resp.Body)
	n, err := api.PageCount(bytes.NewReader(pdf), model.NewDefaultConfiguration())
	if err != nil || n != 2 {
		t.Errorf("Expected 50 photos on 2 pages, got %d (err=%v)", n, err)
	}

	resp = c.do("GET", base+"/manifest?format=parquet", "", nil)
	expectStatus(t, resp, http.StatusOK)
	data, _ := io.ReadAll(resp.Body)
	rows, err := manifest.Decode(data, manifest.FormatParquet)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 50 || rows[30].Page != 2 {
		t.Errorf("Expected 50 rows with the 31st on page 2, got %d rows", len(rows))
	}

	resp = c.do("GET", base, "", nil)
	expectStatus(t, resp, http.StatusOK)
	if snap := decode[models.Session](t, resp); snap.Step != wizard.StepComplete {
		t.Errorf("Expected complete step, got %s", snap.Step)
	}

	resp = c.do("DELETE", base, "", nil)
	expectStatus(t, resp, http.StatusNoContent)
	resp = c.do("GET", base, "", nil)
	expectStatus(t, resp, http.StatusNotFound)
}

func TestURLUpload(t *testing.T) {
	photo := pngBytes(t, 40, 40)
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		w.Write(photo)
	}))
	defer origin.Close()

	c := newClient(t)
	snap := decode[models.Session](t, c.json("POST", "/api/sessions", map[string]string{"format": "2x2"}))
	resp := c.json("POST", "/api/sessions/"+snap.ID+"/images", map[string]string{"image_url": origin.URL + "/me.png"})
	expectStatus(t, resp, http.StatusOK)
	up := decode[models.UploadResult](t, resp)
	if len(up.IDs) != 1 {
		t.Errorf("Expected one image, got %+v", up)
	}

	resp = c.json("POST", "/api/sessions/"+snap.ID+"/images", map[string]string{})
	expectStatus(t, resp, http.StatusBadRequest)
}

func TestErrors(t *testing.T) {
	c := newClient(t)
	expectStatus(t, c.json("POST", "/api/sessions", map[string]string{"format": "9x9"}), http.StatusBadRequest)
	expectStatus(t, c.do("GET", "/api/sessions/nope", "", nil), http.StatusNotFound)

	snap := decode[models.Session](t, c.json("POST", "/api/sessions", nil))
	if snap.Step != wizard.StepSelectFormat {
		t.Errorf("Expected format selection, got %s", snap.Step)
	}
	base := "/api/sessions/" + snap.ID
	expectStatus(t, c.json("POST", base+"/step", map[string]string{"action": "jump"}), http.StatusBadRequest)
	expectStatus(t, c.json("POST", base+"/step", map[string]string{"action": "continue"}), http.StatusConflict)
	expectStatus(t, c.upload(base+"/images", "files", map[string][]byte{"a.png": pngBytes(t, 4, 4)}), http.StatusConflict)

	expectStatus(t, c.json("PUT", base+"/format", map[string]string{"format": "5x7"}), http.StatusOK)
	expectStatus(t, c.do("GET", base+"/images/img_1/raw.png", "", nil), http.StatusNotFound)
	expectStatus(t, c.do("GET", base+"/sheet.pdf", "", nil), http.StatusConflict)
	expectStatus(t, c.do("GET", base+"/manifest?format=csv", "", nil), http.StatusBadRequest)

	resp := c.upload(base+"/images", "files", map[string][]byte{"bad.gif": []byte("GIF89a")})
	expectStatus(t, resp, http.StatusUnprocessableEntity)

	list := decode[[]models.Session](t, c.do("GET", "/api/sessions", "", nil))
	if len(list) != 1 {
		t.Errorf("Expected 1 session, got %d", len(list))
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{&imageio.DecodeError{Name: "a", Err: io.EOF}, http.StatusUnprocessableEntity},
		{fmt.Errorf("wrapped: %w", &layout.ConfigurationError{TileWidthMm: 250, TileHeightMm: 40}), http.StatusBadRequest},
		{&sheet.GenerationError{ImageID: "img_1", Err: io.ErrUnexpectedEOF}, http.StatusInternalServerError},
		{&wizard.TransitionError{Err: wizard.ErrGuard}, http.StatusConflict},
		{session.ErrWrongStep, http.StatusConflict},
		{imageio.ErrTooLarge, http.StatusRequestEntityTooLarge},
		{io.EOF, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := statusFor(tt.err); got != tt.want {
			t.Errorf("statusFor(%v): expected %d, got %d", tt.err, tt.want, got)
		}
	}
}

func TestCloseReleasesSessions(t *testing.T) {
	h := New(session.Options{})
	for _, id := range []string{"a", "b", "c"} {
		h.sessionStore.Set(id, session.New(id, session.Options{}))
	}
	if n := len(h.sessionStore.GetAll()); n != 3 {
		t.Fatalf("Expected 3 sessions, got %d", n)
	}
	h.Close()
	if n := len(h.sessionStore.GetAll()); n != 0 {
		t.Errorf("Expected no sessions after Close, got %d", n)
	}
}
