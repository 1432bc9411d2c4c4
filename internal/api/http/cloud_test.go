package http

import (
	"bytes"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kanbang/xdesktop/internal/auth"
	"github.com/kanbang/xdesktop/internal/domain/archive"
	"github.com/kanbang/xdesktop/internal/domain/operations"
	"github.com/kanbang/xdesktop/internal/domain/vfs"
	"github.com/kanbang/xdesktop/internal/infrastructure/monitoring"
)

const aliceToken = "alice-secret"

type server struct {
	t      *testing.T
	router *gin.Engine
	cloud  *CloudHandler
	root   string
}

func newServer(t *testing.T, maxBody int64) *server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	root := t.TempDir()
	reg, err := vfs.NewRegistry(vfs.RegistryConfig{
		StorageRoot: root,
		Adapters:    []vfs.AdapterSpec{{Key: "document"}, {Key: "release"}},
	})
	require.NoError(t, err)

	metrics := monitoring.NewMetrics()
	dispatcher := operations.NewDispatcher(reg, archive.NewEngine(archive.DefaultOptions(), nil),
		operations.WithMetrics(metrics))
	authn, err := auth.NewStaticTokens(map[string]vfs.Principal{aliceToken: "alice"})
	require.NoError(t, err)

	cloud := NewCloudHandler(dispatcher, authn, maxBody, nil)
	status := NewStatusHandlers(reg, metrics)

	router := gin.New()
	cloud.Register(router)
	router.GET("/", status.Root)
	router.GET("/health", status.Health)

	return &server{t: t, router: router, cloud: cloud, root: root}
}

func (s *server) do(method, target, token string, body []byte, contentType string) *httptest.ResponseRecorder {
	s.t.Helper()
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *server) write(rel, content string) {
	s.t.Helper()
	p := filepath.Join(s.root, "alice", "document", filepath.FromSlash(rel))
	require.NoError(s.t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(s.t, os.WriteFile(p, []byte(content), 0o644))
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, sonic.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func TestIndexWithToken(t *testing.T) {
	s := newServer(t, 0)
	s.write("a.txt", "a")

	w := s.do(http.MethodGet, "/cloud/alice?q=index&adapter=document&path=document://", aliceToken, nil, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Header().Get("Content-Type"), "application/json")

	l := decode[operations.Listing](t, w)
	assert.Equal(t, "document", l.Adapter)
	assert.Equal(t, []string{"document", "release"}, l.Storages)
	assert.Equal(t, "document://", l.Dirname)
	require.Len(t, l.Files, 1)
	assert.Equal(t, "document://a.txt", l.Files[0].Path)
}

func TestMutatingOperationsRequireCaller(t *testing.T) {
	s := newServer(t, 0)

	for _, token := range []string{"", "wrong"} {
		w := s.do(http.MethodGet, "/cloud/alice?q=index", token, nil, "")
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		env := decode[operations.Envelope](t, w)
		assert.False(t, env.Status)
		assert.NotEmpty(t, env.Message)
	}

	w := s.do(http.MethodGet, "/cloud/bob?q=index", aliceToken, nil, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code, "alice may not list bob's storage")
}

func TestPreviewIsPublic(t *testing.T) {
	s := newServer(t, 0)
	s.write("notes.txt", "hello")

	w := s.do(http.MethodGet, "/cloud/alice?q=preview&path=document://notes.txt", "", nil, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "hello", w.Body.String())
	assert.Equal(t, "5", w.Header().Get("Content-Length"))
	assert.Contains(t, w.Header().Get("Content-Type"), "text/plain")
	assert.Equal(t, `inline; filename="notes.txt"; filename*=UTF-8''notes.txt`, w.Header().Get("Content-Disposition"))

	w = s.do(http.MethodGet, "/cloud/alice?q=preview&path=document://notes.txt", "wrong", nil, "")
	assert.Equal(t, http.StatusOK, w.Code, "a rejected token still permits public operations")
}

func TestDownloadEncodesFilename(t *testing.T) {
	s := newServer(t, 0)
	s.write("report final.pdf", "%PDF")

	w := s.do(http.MethodGet, "/cloud/alice?q=download&path=document://report%20final.pdf", "", nil, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "application/octet-stream", w.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename="report%20final.pdf"; filename*=UTF-8''report%20final.pdf`,
		w.Header().Get("Content-Disposition"))
}

func TestJSONBodyOperation(t *testing.T) {
	s := newServer(t, 0)

	body := []byte(`{"name":"projects"}`)
	w := s.do(http.MethodPost, "/cloud/alice?q=newfolder&path=document://", aliceToken, body, "application/json")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	l := decode[operations.Listing](t, w)
	require.Len(t, l.Files, 1)
	assert.Equal(t, vfs.TypeDir, l.Files[0].Type)

	w = s.do(http.MethodPost, "/cloud/alice?q=newfolder&path=document://", aliceToken, body, "application/json")
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestUnknownOperation(t *testing.T) {
	s := newServer(t, 0)

	w := s.do(http.MethodGet, "/cloud/alice?q=format_disk", aliceToken, nil, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, decode[operations.Envelope](t, w).Message, "format_disk")

	w = s.do(http.MethodGet, "/cloud/alice", aliceToken, nil, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func multipartBody(t *testing.T, files map[string]string) ([]byte, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for name, content := range files {
		fw, err := mw.CreateFormFile("file", name)
		require.NoError(t, err)
		_, err = fw.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return buf.Bytes(), mw.FormDataContentType()
}

func TestUpload(t *testing.T) {
	s := newServer(t, 0)

	body, ct := multipartBody(t, map[string]string{"photo.jpg": "jpeg", "doc.txt": "text"})
	w := s.do(http.MethodPost, "/cloud/alice?q=upload&path=document://", aliceToken, body, ct)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, `"ok"`, w.Body.String())

	data, err := os.ReadFile(filepath.Join(s.root, "alice", "document", "photo.jpg"))
	require.NoError(t, err)
	assert.Equal(t, "jpeg", string(data))
}

func TestBodyLimit(t *testing.T) {
	s := newServer(t, 1024)

	body, ct := multipartBody(t, map[string]string{"big.bin": strings.Repeat("x", 4096)})
	w := s.do(http.MethodPost, "/cloud/alice?q=upload&path=document://", aliceToken, body, ct)
	assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
	assert.False(t, decode[operations.Envelope](t, w).Status)

	big := []byte(`{"name":"` + strings.Repeat("a", 2048) + `"}`)
	w = s.do(http.MethodPost, "/cloud/alice?q=newfile", aliceToken, big, "application/json")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, decode[operations.Envelope](t, w).Message, strconv.Itoa(1024))
}

func TestOptions(t *testing.T) {
	s := newServer(t, 0)

	w := s.do(http.MethodOptions, "/cloud/alice?q=index", "", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{}`, w.Body.String())
}

func TestRegisterServesEveryMethod(t *testing.T) {
	s := newServer(t, 0)

	router := gin.New()
	assert.NotPanics(t, func() { s.cloud.Register(router) })

	for _, method := range cloudMethods {
		req := httptest.NewRequest(method, "/cloud/alice?q=index", nil)
		req.Header.Set("Authorization", "Bearer "+aliceToken)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code, method)
	}

	req := httptest.NewRequest(http.MethodOptions, "/cloud/alice", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{}`, w.Body.String())
}

func TestHealth(t *testing.T) {
	s := newServer(t, 0)
	s.do(http.MethodGet, "/cloud/alice?q=index", aliceToken, nil, "")

	w := s.do(http.MethodGet, "/health", "", nil, "")
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Status           string   `json:"status"`
		Adapters         []string `json:"adapters"`
		PrincipalsCached int      `json:"principals_cached"`
		Metrics          struct {
			TotalRequests int64 `json:"total_requests"`
		} `json:"metrics"`
	}
	require.NoError(t, sonic.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body.Status)
	assert.Equal(t, []string{"document", "release"}, body.Adapters)
	assert.Equal(t, 1, body.PrincipalsCached)

	w = s.do(http.MethodGet, "/", "", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestQueryBool(t *testing.T) {
	gin.SetMode(gin.TestMode)
	for raw, want := range map[string]bool{"true": true, "1": true, "on": true, "false": false, "": false, "yes": false} {
		c, _ := gin.CreateTestContext(httptest.NewRecorder())
		c.Request = httptest.NewRequest(http.MethodGet, "/?deep="+raw, nil)
		assert.Equal(t, want, queryBool(c, "deep"), raw)
	}
}

func TestContentDisposition(t *testing.T) {
	tests := []struct {
		disposition, name, want string
	}{
		{"inline", "a.txt", `inline; filename="a.txt"; filename*=UTF-8''a.txt`},
		{"attachment", `q"uote;.zip`, `attachment; filename="q%22uote%3B.zip"; filename*=UTF-8''q%22uote%3B.zip`},
		{"attachment", "résumé.pdf", `attachment; filename="r%C3%A9sum%C3%A9.pdf"; filename*=UTF-8''r%C3%A9sum%C3%A9.pdf`},
		{"", "", "attachment"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ContentDisposition(tt.disposition, tt.name))
	}
}
