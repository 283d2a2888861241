package routes

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"onlinelibrary_go/config"
	"onlinelibrary_go/models"
	"onlinelibrary_go/utils"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

var coverPNG = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x02\x00\x00\x00")

// uploadCover 以multipart方式上传封面
func (a *testAPI) uploadCover(token string) (int, utils.UploadResult) {
	a.t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", "cover.png")
	if err != nil {
		a.t.Fatalf("create form file: %v", err)
	}
	if _, err := fw.Write(coverPNG); err != nil {
		a.t.Fatalf("write form file: %v", err)
	}
	if err := mw.Close(); err != nil {
		a.t.Fatalf("close multipart writer: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/books/cover", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)

	var resp struct {
		Data utils.UploadResult `json:"data"`
	}
	if w.Code == http.StatusOK {
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			a.t.Fatalf("decode upload response: %v", err)
		}
	}
	return w.Code, resp.Data
}

func TestCoverUploadAndDelete(t *testing.T) {
	root := t.TempDir()
	uploader := utils.NewFileUploader(utils.NewLocalStore(root, "http://localhost:8080"))
	api := newTestAPIWithUploader(t, uploader)

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	config.RedisClient = client
	t.Cleanup(func() {
		config.RedisClient = nil
		_ = client.Close()
	})

	pubToken := api.register("coverpub")
	otherToken := api.register("otherpub")
	readerToken := api.register("reader")
	if err := config.DB.Model(&models.User{}).
		Where("username IN ?", []string{"coverpub", "otherpub"}).
		Update("authorization_level", models.LevelPublisher).Error; err != nil {
		t.Fatalf("promote publishers: %v", err)
	}

	// 普通用户不能上传
	if status, _ := api.uploadCover(readerToken); status != http.StatusForbidden {
		t.Fatalf("expected 403 for basic user upload, got %d", status)
	}

	status, result := api.uploadCover(pubToken)
	if status != http.StatusOK {
		t.Fatalf("expected upload to succeed, got %d", status)
	}
	stored := filepath.Join(root, filepath.FromSlash(result.FileName))
	if _, err := os.Stat(stored); err != nil {
		t.Fatalf("expected stored cover at %s: %v", stored, err)
	}

	path := "/api/books/cover?key=" + result.FileName
	api.expect(http.StatusBadRequest, http.MethodDelete, "/api/books/cover", pubToken, nil)
	api.expect(http.StatusForbidden, http.MethodDelete, path, otherToken, nil)
	api.expect(http.StatusNotFound, http.MethodDelete, "/api/books/cover?key=covers/unknown.png", pubToken, nil)

	api.expect(http.StatusOK, http.MethodDelete, path, pubToken, nil)
	if _, err := os.Stat(stored); !os.IsNotExist(err) {
		t.Fatalf("expected cover removed, stat err = %v", err)
	}
	api.expect(http.StatusNotFound, http.MethodDelete, path, pubToken, nil)
}
