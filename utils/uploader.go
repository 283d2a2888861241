package utils

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"onlinelibrary_go/config"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// UploadConfig 上传配置
type UploadConfig struct {
	MaxFileSize    int64    // 最大文件大小（字节）
	AllowedFormats []string // 允许的文件格式
	Prefix         string   // 对象key前缀
	UseRedisCache  bool     // 是否使用Redis缓存元数据
}

// DefaultUploadConfig 封面上传默认配置（书籍封面只接受jpg/jpeg/png）
var DefaultUploadConfig = &UploadConfig{
	MaxFileSize:    5 * 1024 * 1024, // 5MB
	AllowedFormats: []string{".jpg", ".jpeg", ".png"},
	Prefix:         "covers",
	UseRedisCache:  true,
}

// ErrFileNotTracked 文件没有上传记录（未启用Redis或已过期）
var ErrFileNotTracked = errors.New("file is not tracked")

// UploadResult 上传结果
type UploadResult struct {
	URL      string `json:"url"`       // 可直接作为 image_url 使用的地址
	FileName string `json:"file_name"` // 存储key
	FileSize int64  `json:"file_size"` // 文件大小
}

// ObjectStore 文件存储后端
type ObjectStore interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) (string, error)
	Delete(ctx context.Context, key string) error
}

// ==================== 本地存储 ====================

// LocalStore 本地磁盘存储，文件通过 /uploads 静态路由访问
type LocalStore struct {
	root    string
	baseURL string
}

// NewLocalStore 创建本地存储
func NewLocalStore(root, baseURL string) *LocalStore {
	return &LocalStore{root: root, baseURL: strings.TrimRight(baseURL, "/")}
}

// Root 本地存储根目录
func (s *LocalStore) Root() string {
	return s.root
}

// Put 保存文件
func (s *LocalStore) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) (string, error) {
	filePath := filepath.Join(s.root, filepath.FromSlash(key))

	// 创建目录
	if err := os.MkdirAll(filepath.Dir(filePath), 0755); err != nil {
		return "", fmt.Errorf("failed to create upload directory: %w", err)
	}

	// 保存文件
	dst, err := os.Create(filePath)
	if err != nil {
		return "", fmt.Errorf("failed to create file: %w", err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, r); err != nil {
		return "", fmt.Errorf("failed to save file: %w", err)
	}

	return fmt.Sprintf("%s/uploads/%s", s.baseURL, key), nil
}

// Delete 删除文件
func (s *LocalStore) Delete(ctx context.Context, key string) error {
	filePath := filepath.Join(s.root, filepath.FromSlash(key))
	if err := os.Remove(filePath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	return nil
}

// ==================== MinIO存储 ====================

// MinioStore MinIO/S3 兼容的对象存储
type MinioStore struct {
	client    *minio.Client
	bucket    string
	publicURL string
}

// NewMinioStore 连接MinIO并确保bucket存在
func NewMinioStore(endpoint, accessKey, secretKey, bucket, publicURL string, useSSL bool) (*MinioStore, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("init minio client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket: %w", err)
		}
	}

	if publicURL == "" {
		scheme := "http"
		if useSSL {
			scheme = "https"
		}
		publicURL = fmt.Sprintf("%s://%s", scheme, endpoint)
	}
	return &MinioStore{client: client, bucket: bucket, publicURL: strings.TrimRight(publicURL, "/")}, nil
}

// Put 上传对象，返回公开访问地址
func (m *MinioStore) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) (string, error) {
	_, err := m.client.PutObject(ctx, m.bucket, key, r, size, minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return "", fmt.Errorf("put object: %w", err)
	}
	return fmt.Sprintf("%s/%s/%s", m.publicURL, m.bucket, key), nil
}

// Delete 删除对象
func (m *MinioStore) Delete(ctx context.Context, key string) error {
	if err := m.client.RemoveObject(ctx, m.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("delete object: %w", err)
	}
	return nil
}

// NewObjectStoreFromEnv 根据 UPLOAD_BACKEND 选择存储后端
func NewObjectStoreFromEnv() (ObjectStore, error) {
	switch config.GetEnv("UPLOAD_BACKEND", "local") {
	case "minio":
		return NewMinioStore(
			config.GetEnv("MINIO_ENDPOINT", "localhost:9000"),
			config.GetEnv("MINIO_ACCESS_KEY", "minioadmin"),
			config.GetEnv("MINIO_SECRET_KEY", "minioadmin"),
			config.GetEnv("MINIO_BUCKET", "onlinelibrary"),
			config.GetEnv("MINIO_PUBLIC_URL", ""),
			config.GetEnvBool("MINIO_USE_SSL", false),
		)
	case "local":
		return NewLocalStore(
			config.GetEnv("UPLOAD_PATH", "./uploads"),
			config.GetEnv("PUBLIC_BASE_URL", "http://localhost:"+config.GetEnv("SERVER_PORT", "8080")),
		), nil
	}
	return nil, fmt.Errorf("unsupported upload backend: %s", config.GetEnv("UPLOAD_BACKEND", ""))
}

// ==================== 上传器 ====================

// FileUploader 文件上传器
type FileUploader struct {
	config *UploadConfig
	store  ObjectStore
}

// NewFileUploader 创建文件上传器实例
func NewFileUploader(store ObjectStore, cfgs ...*UploadConfig) *FileUploader {
	cfg := DefaultUploadConfig
	if len(cfgs) > 0 && cfgs[0] != nil {
		cfg = cfgs[0]
	}
	return &FileUploader{config: cfg, store: store}
}

// Store 当前存储后端
func (fu *FileUploader) Store() ObjectStore {
	return fu.store
}

// UploadFile 上传单个文件，ownerID 记录在元数据中用于之后的删除校验
func (fu *FileUploader) UploadFile(c *gin.Context, fieldName, ownerID string) (*UploadResult, error) {
	file, err := c.FormFile(fieldName)
	if err != nil {
		return nil, fmt.Errorf("failed to get file: %w", err)
	}

	// 验证文件大小
	if file.Size > fu.config.MaxFileSize {
		return nil, fmt.Errorf("file size exceeds maximum allowed size of %d bytes", fu.config.MaxFileSize)
	}

	// 验证文件格式
	ext := strings.ToLower(filepath.Ext(file.Filename))
	if !fu.isAllowedFormat(ext) {
		return nil, fmt.Errorf("file format %s is not allowed", ext)
	}

	// 打开文件
	src, err := file.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer src.Close()

	// 校验文件内容类型
	head := make([]byte, 512)
	n, _ := io.ReadFull(src, head)
	contentType := http.DetectContentType(head[:n])
	if contentType != "image/jpeg" && contentType != "image/png" {
		return nil, fmt.Errorf("file content %s is not a jpeg or png image", contentType)
	}
	if _, err := src.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("failed to rewind file: %w", err)
	}

	// 保存文件
	key := path.Join(fu.config.Prefix, generateFileName(ext))
	url, err := fu.store.Put(c.Request.Context(), key, src, file.Size, contentType)
	if err != nil {
		return nil, err
	}

	result := &UploadResult{URL: url, FileName: key, FileSize: file.Size}

	// 缓存文件信息到Redis
	if fu.config.UseRedisCache && config.RedisClient != nil {
		fu.cacheFileMetadata(key, ownerID, result)
	}

	return result, nil
}

// DeleteFile 删除文件
func (fu *FileUploader) DeleteFile(ctx context.Context, key string) error {
	if err := fu.store.Delete(ctx, key); err != nil {
		return err
	}

	// 删除Redis缓存
	if fu.config.UseRedisCache && config.RedisClient != nil {
		config.RedisClient.Del(ctx, metadataKey(key))
	}
	return nil
}

// cacheFileMetadata 缓存文件元数据到Redis
func (fu *FileUploader) cacheFileMetadata(key, ownerID string, result *UploadResult) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	metadata := map[string]interface{}{
		"url":       result.URL,
		"file_size": result.FileSize,
		"file_name": result.FileName,
		"owner":     ownerID,
		"cached_at": time.Now().Unix(),
	}

	// 设置过期时间（24小时）
	config.RedisClient.HSet(ctx, metadataKey(key), metadata)
	config.RedisClient.Expire(ctx, metadataKey(key), 24*time.Hour)
}

// GetFileMetadata 从Redis获取文件元数据，未记录时返回 ErrFileNotTracked
func (fu *FileUploader) GetFileMetadata(ctx context.Context, key string) (map[string]string, error) {
	if config.RedisClient == nil {
		return nil, ErrFileNotTracked
	}
	meta, err := config.RedisClient.HGetAll(ctx, metadataKey(key)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load file metadata: %w", err)
	}
	if len(meta) == 0 {
		return nil, ErrFileNotTracked
	}
	return meta, nil
}

// isAllowedFormat 检查文件格式是否允许
func (fu *FileUploader) isAllowedFormat(ext string) bool {
	for _, allowed := range fu.config.AllowedFormats {
		if strings.EqualFold(ext, allowed) {
			return true
		}
	}
	return false
}

// generateFileName 生成唯一文件名
func generateFileName(ext string) string {
	return fmt.Sprintf("%s_%s%s", time.Now().Format("20060102150405"), uuid.New().String()[:8], ext)
}

func metadataKey(key string) string {
	return fmt.Sprintf("file:metadata:%s", key)
}
