package api

import (
	"context"
	"errors"
	"fmt"
	"mime/multipart"
	"path/filepath"
	"strings"
	"time"

	"github.com/dutchcoders/go-clamd"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"jobboard/internal/storage"
)

var errMaliciousFile = errors.New("malicious file detected")

// Bucket 为私有，响应里的图片统一换成限时链接。
const imageURLTTL = 15 * time.Minute

// ImageUploader 负责表单图片的病毒扫描与对象存储上传。
type ImageUploader struct {
	Storage   *storage.Client
	ClamdAddr string
}

// Upload 扫描并上传图片，返回对象 Key。
// prefix 形如 "posting-images/3"，扩展名取自原文件名。
func (u *ImageUploader) Upload(c *gin.Context, file *multipart.FileHeader, prefix string) (string, error) {
	clamdClient := clamd.NewClamd(u.ClamdAddr)

	fileReader, err := file.Open()
	if err != nil {
		return "", fmt.Errorf("open upload: %w", err)
	}

	abortChan := make(chan bool)
	scanChan, err := clamdClient.ScanStream(fileReader, abortChan)
	fileReader.Close()
	if err != nil {
		return "", fmt.Errorf("scan upload: %w", err)
	}
	defer close(abortChan)

	for result := range scanChan {
		if result.Status != clamd.RES_OK {
			return "", errMaliciousFile
		}
	}

	fileReader, err = file.Open()
	if err != nil {
		return "", fmt.Errorf("reopen upload: %w", err)
	}
	defer fileReader.Close()

	ext := strings.ToLower(filepath.Ext(file.Filename))
	if ext == "" {
		ext = ".png"
	}
	objectKey := fmt.Sprintf("%s/%s%s", strings.TrimSuffix(prefix, "/"), uuid.NewString(), ext)

	contentType := file.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	if _, err := u.Storage.UploadFile(c.Request.Context(), objectKey, fileReader, file.Size, contentType); err != nil {
		return "", fmt.Errorf("upload object: %w", err)
	}

	return objectKey, nil
}

// ResolveURL 将对象 Key 换成限时下载链接。
// Key 为空或存储未配置时原样返回。
func (u *ImageUploader) ResolveURL(ctx context.Context, objectKey string) (string, error) {
	if objectKey == "" || u.Storage == nil {
		return objectKey, nil
	}
	return u.Storage.GeneratePresignedURL(ctx, objectKey, imageURLTTL)
}

// Remove 删除对象。Key 为空或存储未配置时直接返回。
func (u *ImageUploader) Remove(ctx context.Context, objectKey string) error {
	if objectKey == "" || u.Storage == nil {
		return nil
	}
	return u.Storage.DeleteObject(ctx, objectKey)
}
