package session

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"testing"

	"github.com/lehigh-university-libraries/photosheet/internal/collection"
	"github.com/lehigh-university-libraries/photosheet/internal/editor"
	"github.com/lehigh-university-libraries/photosheet/internal/imageio"
	"github.com/lehigh-university-libraries/photosheet/internal/storage"
	"github.com/lehigh-university-libraries/photosheet/internal/wizard"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

func photoFile(t *testing.T, name string, w, h int, c color.Color) File {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	data, err := imageio.EncodePNG(img)
	if err != nil {
		t.Fatal(err)
	}
	return File{Name: name, Data: data}
}

// cutout clears the left half of the image.
type cutout struct{}

func (cutout) Segment(_ context.Context, img image.Image) (image.Image, error) {
	b := img.Bounds()
	out := image.NewNRGBA(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X + b.Dx()/2; x < b.Max.X; x++ {
			out.Set(x, y, img.At(x, y))
		}
	}
	return out, nil
}

type brokenSegmenter struct{}

func (brokenSegmenter) Segment(context.Context, image.Image) (image.Image, error) {
	return nil, errors.New("remover offline")
}

type fixedDetector struct {
	region image.Rectangle
	err    error
}

func (d fixedDetector) Detect(context.Context, image.Image) (image.Rectangle, bool, error) {
	return d.region, d.err == nil, d.err
}

func mustStep(t *testing.T, step func() (wizard.Transition, error), want wizard.Step) {
	t.Helper()
	tr, err := step()
	if err != nil {
		t.Fatalf("Expected transition to %s, got %v", want, err)
	}
	if tr.To != want {
		t.Fatalf("Expected step %s, got %s", want, tr.To)
	}
}

func TestFullFlow(t *testing.T) {
	ctx := context.Background()
	blobs := storage.NewMemoryBlobs()
	s := New(NewID(), Options{Blobs: blobs, Segmenter: cutout{}})

	f, err := s.SelectFormat("3x4")
	if err != nil {
		t.Fatal(err)
	}
	if s.Step() != wizard.StepAdjust {
		t.Fatalf("Expected adjust step, got %s", s.Step())
	}

	res, err := s.Upload(ctx,
		photoFile(t, "a.png", 300, 400, color.RGBA{R: 200, A: 255}),
		File{Name: "notes.txt", Data: []byte("hello")},
		photoFile(t, "b.png", 400, 300, color.RGBA{B: 200, A: 255}),
	)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.IDs) != 2 || res.IDs[0] != "img_1" || res.IDs[1] != "img_2" {
		t.Errorf("Expected img_1 and img_2, got %v", res.IDs)
	}
	if len(res.Failures) != 1 || res.Failures[0].Name != "notes.txt" {
		t.Errorf("Expected one failure for notes.txt, got %+v", res.Failures)
	}

	if _, err := s.Continue(); !errors.Is(err, wizard.ErrGuard) {
		t.Errorf("Expected guard error before adjusting, got %v", err)
	}

	st, err := s.Edit(ctx, "img_2", editor.Op{Type: editor.OpRotate}, editor.Op{Type: editor.OpScroll, Delta: -1})
	if err != nil {
		t.Fatal(err)
	}
	if st.Rotation != 90 {
		t.Errorf("Expected rotation 90, got %d", st.Rotation)
	}
	preview, err := s.Preview(ctx, "img_2")
	if err != nil || !bytes.HasPrefix(preview, []byte("\x89PNG")) {
		t.Errorf("Expected PNG preview, got err=%v", err)
	}

	w, h := f.CanvasSize(300)
	for _, id := range res.IDs {
		bm, err := s.Finalize(ctx, id)
		if err != nil {
			t.Fatalf("Finalize %s failed: %v", id, err)
		}
		if bm.Width != w || bm.Height != h {
			t.Errorf("Expected %dx%d adjusted bitmap, got %dx%d", w, h, bm.Width, bm.Height)
		}
	}
	if snap := s.Snapshot(); snap.Images[0].State != nil {
		t.Error("Expected the editor state to be discarded after finalize")
	}

	mustStep(t, s.Continue, wizard.StepRemoveBackground)

	if _, err := s.SetProcessed("img_1", photoFile(t, "small.png", 10, 10, color.White)); err == nil {
		t.Error("Expected dimension mismatch for a wrong-sized upload")
	} else {
		var dm *collection.DimensionMismatchError
		if !errors.As(err, &dm) {
			t.Errorf("Expected DimensionMismatchError, got %v", err)
		}
	}
	if _, err := s.AutoRemoveBackground(ctx, "img_1"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.SetProcessed("img_2", photoFile(t, "manual.png", w, h, color.White)); err != nil {
		t.Fatal(err)
	}

	processed, err := s.Bitmap("img_1", KindProcessed)
	if err != nil {
		t.Fatal(err)
	}
	img, err := imageio.DecodeBytes("processed", processed)
	if err != nil {
		t.Fatal(err)
	}
	if r, g, b, _ := img.At(0, h/2).RGBA(); r>>8 != 255 || g>>8 != 255 || b>>8 != 255 {
		t.Errorf("Expected removed background flattened to white, got %d,%d,%d", r>>8, g>>8, b>>8)
	}

	mustStep(t, s.Continue, wizard.StepQuantities)

	if n, _ := s.SetQuantity("img_1", 3); n != 3 {
		t.Errorf("Expected quantity 3, got %d", n)
	}
	if n, _ := s.SetQuantity("img_2", 0); n != 1 {
		t.Errorf("Expected quantity clamped to 1, got %d", n)
	}

	out, err := s.Generate()
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if out.Filename != "photos-photo-3x4.pdf" {
		t.Errorf("Expected photos-photo-3x4.pdf, got %s", out.Filename)
	}
	n, err := api.PageCount(bytes.NewReader(out.PDF), model.NewDefaultConfiguration())
	if err != nil || n != 1 {
		t.Errorf("Expected 1 page, got %d (err=%v)", n, err)
	}
	if out.Layout.Grid.PerRow != 5 || out.Layout.Grid.PerCol != 6 || out.Layout.Tiles() != 4 {
		t.Errorf("Expected 5x6 grid with 4 tiles, got %+v with %d tiles", out.Layout.Grid, out.Layout.Tiles())
	}
	wantIDs := []string{"img_1", "img_1", "img_1", "img_2"}
	for i, row := range out.Manifest {
		if row.ImageID != wantIDs[i] || row.Slot != i {
			t.Errorf("Manifest row %d: expected %s at slot %d, got %s at %d", i, wantIDs[i], i, row.ImageID, row.Slot)
		}
	}
	if s.Step() != wizard.StepComplete {
		t.Errorf("Expected complete step, got %s", s.Step())
	}

	if _, err := s.Generate(); err != nil {
		t.Errorf("Expected the sheet to regenerate from complete, got %v", err)
	}

	mustStep(t, s.StartOver, wizard.StepSelectFormat)
	if blobs.Len() != 0 {
		t.Errorf("Expected all blobs released, got %d", blobs.Len())
	}
	if _, ok := s.Format(); ok {
		t.Error("Expected the format to be cleared")
	}
}

func TestSkipBackgroundFlow(t *testing.T) {
	ctx := context.Background()
	s := New(NewID(), Options{Flow: wizard.Flow{SkipBackgroundRemoval: true, DefaultQuantity: 2}})
	s.SelectFormat("2x2")
	res, _ := s.Upload(ctx, photoFile(t, "a.png", 50, 50, color.Black))
	if _, err := s.Finalize(ctx, res.IDs[0]); err != nil {
		t.Fatal(err)
	}
	mustStep(t, s.Continue, wizard.StepQuantities)

	snap := s.Snapshot()
	if snap.Images[0].Quantity != 2 || !snap.Images[0].Ready || snap.TotalCopies != 2 {
		t.Errorf("Expected one ready image with 2 copies, got %+v", snap.Images[0])
	}
	out, err := s.Generate()
	if err != nil {
		t.Fatal(err)
	}
	if out.Layout.Tiles() != 2 {
		t.Errorf("Expected 2 tiles, got %d", out.Layout.Tiles())
	}
}

func TestSelectFormatResets(t *testing.T) {
	ctx := context.Background()
	blobs := storage.NewMemoryBlobs()
	s := New(NewID(), Options{Blobs: blobs})

	if _, err := s.SelectFormat("9x9"); !errors.Is(err, ErrUnknownFormat) {
		t.Errorf("Expected ErrUnknownFormat, got %v", err)
	}
	s.SelectFormat("3x4")
	s.Upload(ctx, photoFile(t, "a.png", 20, 20, color.White))

	if _, err := s.SelectFormat("5x7"); err != nil {
		t.Fatal(err)
	}
	snap := s.Snapshot()
	if len(snap.Images) != 0 || snap.Format.ID != "5x7" || blobs.Len() != 0 {
		t.Errorf("Expected empty session on 5x7, got %+v", snap)
	}

	res, _ := s.Upload(ctx, photoFile(t, "b.png", 20, 20, color.White))
	if res.IDs[0] != "img_2" {
		t.Errorf("Expected IDs not to be reused, got %s", res.IDs[0])
	}

	tr, err := s.Back()
	if err != nil || !tr.Reset {
		t.Errorf("Expected back to format selection to reset, got %+v err=%v", tr, err)
	}
	if blobs.Len() != 0 {
		t.Errorf("Expected blobs released on back, got %d", blobs.Len())
	}
}

func TestStepRestrictions(t *testing.T) {
	ctx := context.Background()
	s := New(NewID(), Options{})
	if _, err := s.Upload(ctx, photoFile(t, "a.png", 5, 5, color.White)); !errors.Is(err, ErrWrongStep) {
		t.Errorf("Expected ErrWrongStep before choosing a format, got %v", err)
	}
	if _, err := s.Generate(); !errors.Is(err, ErrWrongStep) {
		t.Errorf("Expected ErrWrongStep for generate, got %v", err)
	}
	if _, err := s.Manifest(); !errors.Is(err, ErrWrongStep) {
		t.Errorf("Expected ErrWrongStep for manifest, got %v", err)
	}

	s.SelectFormat("3x4")
	if _, err := s.AutoRemoveBackground(ctx, "img_1"); !errors.Is(err, ErrWrongStep) {
		t.Errorf("Expected ErrWrongStep for background removal while adjusting, got %v", err)
	}
	if _, err := s.Edit(ctx, "img_9"); !errors.Is(err, collection.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
	if err := s.Remove("img_9"); !errors.Is(err, collection.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
	if _, err := s.Bitmap("img_9", KindRaw); !errors.Is(err, collection.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestSegmenterFailureKeepsAdjusted(t *testing.T) {
	ctx := context.Background()
	s := New(NewID(), Options{Segmenter: brokenSegmenter{}})
	s.SelectFormat("2x2")
	res, _ := s.Upload(ctx, photoFile(t, "a.png", 40, 40, color.RGBA{G: 180, A: 255}))
	s.Finalize(ctx, res.IDs[0])
	s.Continue()

	if _, err := s.AutoRemoveBackground(ctx, res.IDs[0]); err != nil {
		t.Fatalf("Expected fallback, got %v", err)
	}
	adjusted, _ := s.Bitmap(res.IDs[0], KindAdjusted)
	processed, _ := s.Bitmap(res.IDs[0], KindProcessed)
	a, _ := imageio.DecodeBytes("a", adjusted)
	p, _ := imageio.DecodeBytes("p", processed)
	ar, ag, ab, _ := a.At(20, 20).RGBA()
	pr, pg, pb, _ := p.At(20, 20).RGBA()
	if a.Bounds() != p.Bounds() || ar != pr || ag != pg || ab != pb {
		t.Error("Expected the adjusted photo to be kept as processed")
	}
}

func TestDetectorSeedsOffset(t *testing.T) {
	ctx := context.Background()
	s := New(NewID(), Options{Detector: fixedDetector{region: image.Rect(0, 0, 100, 100)}})
	s.SelectFormat("3x4")
	s.Upload(ctx, photoFile(t, "a.png", 400, 400, color.White))
	st, _ := s.Edit(ctx, "img_1")
	if st.Offset.X != 150 || st.Offset.Y != 150 {
		t.Errorf("Expected offset (150,150), got %+v", st.Offset)
	}

	s = New(NewID(), Options{Detector: fixedDetector{err: errors.New("timeout")}})
	s.SelectFormat("3x4")
	s.Upload(ctx, photoFile(t, "a.png", 400, 400, color.White))
	st, _ = s.Edit(ctx, "img_1")
	if st.Offset.X != 0 || st.Offset.Y != 0 {
		t.Errorf("Expected a centered image when detection fails, got %+v", st.Offset)
	}
}

func TestManifestBeforeGenerate(t *testing.T) {
	ctx := context.Background()
	s := New(NewID(), Options{})
	s.SelectFormat("3x4")
	s.Upload(ctx, photoFile(t, "a.png", 10, 10, color.White), photoFile(t, "b.png", 10, 10, color.White))
	s.SetQuantity("img_1", 2)
	rows, err := s.Manifest()
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 3 || rows[2].ImageID != "img_2" {
		t.Errorf("Expected 3 rows ending with img_2, got %+v", rows)
	}
}

func TestCloseReleasesBlobs(t *testing.T) {
	blobs := storage.NewMemoryBlobs()
	s := New(NewID(), Options{Blobs: blobs})
	s.SelectFormat("3x4")
	s.Upload(context.Background(), photoFile(t, "a.png", 10, 10, color.White))
	if blobs.Len() != 1 {
		t.Fatalf("Expected 1 blob, got %d", blobs.Len())
	}
	s.Close()
	if blobs.Len() != 0 {
		t.Errorf("Expected 0 blobs after close, got %d", blobs.Len())
	}
}
