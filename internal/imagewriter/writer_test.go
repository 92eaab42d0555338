package imagewriter_test

import (
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"domin/internal/faults"
	"domin/internal/imagewriter"
)

func solid(c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, 8, 6))
	for y := range 6 {
		for x := range 8 {
			img.SetRGBA(x, y, c)
		}
	}
	return img
}

func TestWaitDrainsEveryQueuedImage(t *testing.T) {
	dir := t.TempDir()
	w := imagewriter.New(imagewriter.Options{Shards: 2, Workers: 3})
	t.Cleanup(func() { _ = w.Close() })

	const frames = 50
	for i := range frames {
		path := filepath.Join(dir, "front", "frame_"+string(rune('a'+i%26))+string(rune('a'+i/26))+".png")
		if err := w.Save("episode", solid(color.RGBA{R: uint8(i), A: 255}), path); err != nil {
			t.Fatalf("Save: %v", err)
		}
	}
	if err := w.Wait("episode"); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if w.Written() != frames {
		t.Fatalf("written %d, want %d", w.Written(), frames)
	}
	entries, err := os.ReadDir(filepath.Join(dir, "front"))
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != frames {
		t.Fatalf("found %d files, want %d (temp files must be renamed)", len(entries), frames)
	}
}

func TestWrittenFileDecodes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "frame.png")
	w := imagewriter.New(imagewriter.Options{})
	if err := w.Save("episode", solid(color.RGBA{G: 200, A: 255}), path); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()
	img, err := png.Decode(f)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 8 || b.Dy() != 6 {
		t.Fatalf("unexpected bounds %v", b)
	}
	if _, g, _, _ := img.At(3, 3).RGBA(); g>>8 != 200 {
		t.Fatalf("unexpected green %d", g>>8)
	}
}

func TestWaitReportsWriteFailureOnce(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "blocker")
	if err := os.WriteFile(blocker, []byte("x"), 0o644); err != nil {
		t.Fatalf("write blocker: %v", err)
	}
	w := imagewriter.New(imagewriter.Options{Workers: 1})
	t.Cleanup(func() { _ = w.Close() })

	if err := w.Save("episode", solid(color.RGBA{A: 255}), filepath.Join(blocker, "frame.png")); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := w.Wait("episode"); err == nil {
		t.Fatal("expected write error")
	}
	if err := w.Wait("episode"); err != nil {
		t.Fatalf("error must be reported once, got %v", err)
	}
}

func TestWaitReportsOnlyTheOwnersFailures(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "blocker")
	if err := os.WriteFile(blocker, []byte("x"), 0o644); err != nil {
		t.Fatalf("write blocker: %v", err)
	}
	w := imagewriter.New(imagewriter.Options{Shards: 2, Workers: 2})
	t.Cleanup(func() { _ = w.Close() })

	if err := w.Save("broken", solid(color.RGBA{A: 255}), filepath.Join(blocker, "frame.png")); err != nil {
		t.Fatalf("Save: %v", err)
	}
	for i := range 4 {
		path := filepath.Join(dir, "healthy", "frame_"+string(rune('a'+i))+".png")
		if err := w.Save("healthy", solid(color.RGBA{B: 10, A: 255}), path); err != nil {
			t.Fatalf("Save: %v", err)
		}
	}
	if err := w.Wait("healthy"); err != nil {
		t.Fatalf("healthy owner must not see another owner's failure, got %v", err)
	}
	if err := w.Wait("broken"); err == nil {
		t.Fatal("broken owner must still see its own failure")
	}
}

func TestCloseReportsUnwaitedFailures(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "blocker")
	if err := os.WriteFile(blocker, []byte("x"), 0o644); err != nil {
		t.Fatalf("write blocker: %v", err)
	}
	w := imagewriter.New(imagewriter.Options{})
	if err := w.Save("episode", solid(color.RGBA{A: 255}), filepath.Join(blocker, "frame.png")); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := w.Close(); err == nil {
		t.Fatal("expected Close to report the unwaited failure")
	}
}

func TestSaveAfterCloseFails(t *testing.T) {
	w := imagewriter.New(imagewriter.Options{})
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	err := w.Save("episode", solid(color.RGBA{}), filepath.Join(t.TempDir(), "x.png"))
	if !errors.Is(err, faults.ErrContract) || !errors.Is(err, imagewriter.ErrClosed) {
		t.Fatalf("expected closed contract error, got %v", err)
	}
}
