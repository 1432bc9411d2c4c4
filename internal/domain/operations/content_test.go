package operations

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"io"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kanbang/xdesktop/internal/domain/vfs"
)

func readStream(t *testing.T, res *Result) []byte {
	t.Helper()
	require.NotNil(t, res.Stream)
	data, err := io.ReadAll(res.Stream.Reader)
	require.NoError(t, err)
	return data
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		img.Set(x, 0, color.RGBA{R: 255, A: 255})
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestPreview(t *testing.T) {
	h := newHarness(t)
	h.write("notes.txt", "hello")

	res := h.ok("preview", Query{Path: "document://notes.txt"}, nil)
	assert.Contains(t, res.Stream.ContentType, "text/plain")
	assert.Equal(t, DispositionInline, res.Stream.Disposition)
	assert.Equal(t, "notes.txt", res.Stream.Filename)
	assert.Equal(t, int64(5), res.Stream.Size)
	assert.Equal(t, "hello", string(readStream(t, res)))
}

func TestPreviewSniffsUnknownExtensions(t *testing.T) {
	h := newHarness(t)
	h.write("picture.unknownext", string(pngBytes(t, 4, 4)))

	res := h.ok("preview", Query{Path: "document://picture.unknownext"}, nil)
	assert.Equal(t, "image/png", res.Stream.ContentType)
	assert.Len(t, readStream(t, res), int(res.Stream.Size), "stream is rewound after sniffing")
}

func TestPreviewThumbnail(t *testing.T) {
	h := newHarness(t, WithThumbnailSize(64))
	h.write("big.png", string(pngBytes(t, 300, 150)))
	small := pngBytes(t, 20, 10)
	h.write("small.png", string(small))

	res := h.ok("preview", Query{Path: "document://big.png", Thumbnail: true}, nil)
	assert.Equal(t, "image/png", res.Stream.ContentType)
	data := readStream(t, res)
	assert.Equal(t, res.Stream.Size, int64(len(data)))
	cfg, err := png.DecodeConfig(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, 64, cfg.Width)
	assert.Equal(t, 32, cfg.Height)

	res = h.ok("preview", Query{Path: "document://small.png", Thumbnail: true}, nil)
	assert.Equal(t, small, readStream(t, res))

	res = h.ok("preview", Query{Path: "document://big.png"}, nil)
	cfg, err = png.DecodeConfig(bytes.NewReader(readStream(t, res)))
	require.NoError(t, err)
	assert.Equal(t, 300, cfg.Width)
}

func TestFit(t *testing.T) {
	w, h := fit(1000, 500, 256)
	assert.Equal(t, []int{256, 128}, []int{w, h})
	w, h = fit(100, 4000, 256)
	assert.Equal(t, []int{6, 256}, []int{w, h})
	w, h = fit(10000, 1, 256)
	assert.Equal(t, []int{256, 1}, []int{w, h})
}

func TestDownload(t *testing.T) {
	h := newHarness(t)
	h.write("report final.pdf", "%PDF-1.4")

	res := h.ok("download", Query{Path: "document://report final.pdf"}, nil)
	assert.Equal(t, "application/octet-stream", res.Stream.ContentType)
	assert.Equal(t, DispositionAttachment, res.Stream.Disposition)
	assert.Equal(t, "report final.pdf", res.Stream.Filename)
	assert.Equal(t, "%PDF-1.4", string(readStream(t, res)))
}

func TestPreviewAndDownloadErrors(t *testing.T) {
	h := newHarness(t)
	h.mkdir("folder")

	h.fails(vfs.KindNotFound, "preview", Query{Path: "document://ghost.txt"}, nil)
	h.fails(vfs.KindInvalidRequest, "download", Query{Path: "document://folder"}, nil)
	h.fails(vfs.KindInvalidRequest, "preview", Query{}, nil)
}

func TestSave(t *testing.T) {
	h := newHarness(t)
	h.write("docs/notes.txt", "old content")
	require.NoError(t, os.Chmod(h.disk("docs/notes.txt"), 0o600))

	res := h.ok("save", Query{Path: "document://docs/notes.txt"}, saveBody{Content: "new content"})
	assert.Equal(t, DispositionInline, res.Stream.Disposition)
	assert.Equal(t, "new content", string(readStream(t, res)))
	assert.Equal(t, "new content", h.read("docs/notes.txt"))

	info, err := os.Stat(h.disk("docs/notes.txt"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	entries, err := os.ReadDir(h.disk("docs"))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files remain")
}

func TestSaveCreatesAndRefuses(t *testing.T) {
	h := newHarness(t)
	h.mkdir("dir")

	h.ok("save", Query{Path: "document://fresh.md"}, saveBody{Content: "# new"})
	assert.Equal(t, "# new", h.read("fresh.md"))

	h.ok("save", Query{Path: "document://fresh.md"}, saveBody{})
	assert.Equal(t, "", h.read("fresh.md"))

	h.fails(vfs.KindAlreadyExists, "save", Query{Path: "document://dir"}, saveBody{Content: "x"})
	h.fails(vfs.KindInvalidRequest, "save", Query{}, saveBody{Content: "x"})
	h.fails(vfs.KindNotFound, "save", Query{Path: "document://missing/x.txt"}, saveBody{Content: "x"})
}

func TestPreviewSanitizesMarkup(t *testing.T) {
	h := newHarness(t)
	h.write("page.html", `<p onclick="steal()">hi</p><script>alert(1)</script><a href="javascript:x()">link</a>`)

	res := h.ok("preview", Query{Path: "document://page.html"}, nil)
	assert.Equal(t, "text/html; charset=utf-8", res.Stream.ContentType)
	body := string(readStream(t, res))
	assert.Equal(t, int64(len(body)), res.Stream.Size)
	assert.Contains(t, body, "<p>hi</p>")
	assert.NotContains(t, body, "script")
	assert.NotContains(t, body, "onclick")
	assert.NotContains(t, body, "javascript:")

	res = h.ok("download", Query{Path: "document://page.html"}, nil)
	assert.Contains(t, string(readStream(t, res)), "<script>", "downloads are byte exact")
}

func TestPreviewTranscodesLegacyMarkup(t *testing.T) {
	h := newHarness(t)
	latin1 := strings.Repeat("<p>Le caf\xe9 est tr\xe8s chaud et la cr\xe8me br\xfbl\xe9e est d\xe9licieuse.</p>\n", 20)
	h.write("old.html", latin1)

	res := h.ok("preview", Query{Path: "document://old.html"}, nil)
	assert.Equal(t, "text/html; charset=utf-8", res.Stream.ContentType)
	assert.Contains(t, string(readStream(t, res)), "café")
}

func TestPreviewLabelsTextCharset(t *testing.T) {
	h := newHarness(t)
	h.write("utf8.txt", "naïve café")
	h.write("legacy.txt", strings.Repeat("Le caf\xe9 est tr\xe8s chaud et la cr\xe8me br\xfbl\xe9e est d\xe9licieuse. ", 20))

	res := h.ok("preview", Query{Path: "document://utf8.txt"}, nil)
	assert.Contains(t, res.Stream.ContentType, "charset=utf-8")

	res = h.ok("preview", Query{Path: "document://legacy.txt"}, nil)
	assert.Contains(t, res.Stream.ContentType, "text/plain")
	assert.NotContains(t, res.Stream.ContentType, "utf-8")
	assert.Len(t, readStream(t, res), int(res.Stream.Size), "stream is rewound after probing")
}

func TestValidUTF8Prefix(t *testing.T) {
	assert.True(t, validUTF8Prefix([]byte("plain")))
	assert.True(t, validUTF8Prefix([]byte("caf\xc3")), "truncated rune at the end")
	assert.False(t, validUTF8Prefix([]byte("caf\xe9 au lait")))
}

func TestIsMarkup(t *testing.T) {
	assert.True(t, isMarkup("text/html; charset=utf-8"))
	assert.True(t, isMarkup("application/xhtml+xml"))
	assert.False(t, isMarkup("text/plain"))
	assert.False(t, isMarkup("image/png"))
}
