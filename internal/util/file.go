package util

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"
)

// UploadRule 某类上传文件的大小和类型限制
type UploadRule struct {
	Dir          string
	MaxSize      int64
	Extensions   []string
	AllowedTypes []string
}

var (
	// 作文附件：PDF / Word，最大 5MB
	WritingUploadRule = UploadRule{
		Dir:          "writings",
		MaxSize:      5 * MB,
		Extensions:   []string{".pdf", ".doc", ".docx"},
		AllowedTypes: []string{MimePDF, MimeZip, MimeOctetStream},
	}
	// 头像：JPEG / PNG，最大 2MB
	AvatarUploadRule = UploadRule{
		Dir:          "avatars",
		MaxSize:      2 * MB,
		Extensions:   []string{".jpg", ".jpeg", ".png"},
		AllowedTypes: []string{MimeJPEG, MimePNG},
	}
	LessonVideoUploadRule = UploadRule{
		Dir:          "videos",
		MaxSize:      500 * MB,
		Extensions:   AllowedVideoExtensions,
		AllowedTypes: []string{MimeVideo, MimeOctetStream},
	}
)

// ValidateMimeType 深度校验文件 MIME 类型
// allowedTypes: 允许的 MIME 前缀或完整类型，如 "image/", "video/", "application/pdf"
func ValidateMimeType(reader io.Reader, allowedTypes []string) (string, error) {
	buffer := make([]byte, 512)
	n, err := reader.Read(buffer)
	if err != nil && err != io.EOF {
		return "", err
	}

	mimeType := http.DetectContentType(buffer[:n])

	for _, allowed := range allowedTypes {
		if strings.HasPrefix(mimeType, allowed) {
			return mimeType, nil
		}
	}

	return mimeType, errors.New("invalid file type: " + mimeType)
}

// ValidateUpload 按规则校验上传文件的扩展名、大小和内容类型
func ValidateUpload(file *multipart.FileHeader, rule UploadRule) error {
	if file.Size > rule.MaxSize {
		return NewValidationError(fmt.Sprintf("File too large (max %d MB)", rule.MaxSize/MB))
	}

	ext := strings.ToLower(filepath.Ext(file.Filename))
	if !contains(rule.Extensions, ext) {
		return NewValidationError("Unsupported file extension: " + ext)
	}

	src, err := file.Open()
	if err != nil {
		return NewInternalError("could not read upload", err)
	}
	defer src.Close()

	if _, err := ValidateMimeType(src, rule.AllowedTypes); err != nil {
		return NewValidationError(err.Error())
	}
	return nil
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
