package middleware

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"slices"
	"strings"
)

// multipartMemory is how much of a multipart body is kept in memory; the rest spills to disk
const multipartMemory = 32 << 20

// FileValidationConfig defines file validation rules
type FileValidationConfig struct {
	MaxSize      int64    // Maximum file size in bytes
	AllowedTypes []string // Allowed sniffed MIME types (e.g., "video/mp4", "audio/*")
	AllowedExts  []string // Allowed file extensions (e.g., ".mp4", ".mp3")
}

// ValidateUploads parses multipart bodies up to maxBody bytes and checks every
// file of the configured form fields. Fields without a rule are rejected.
func ValidateUploads(maxBody int64, fields map[string]FileValidationConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
				writeError(w, http.StatusBadRequest, "INVALID_INPUT", "expected a multipart/form-data body")
				return
			}

			if maxBody > 0 {
				if r.ContentLength > maxBody {
					writeError(w, http.StatusRequestEntityTooLarge, "INVALID_INPUT",
						fmt.Sprintf("request body exceeds %d bytes", maxBody))
					return
				}
				r.Body = http.MaxBytesReader(w, r.Body, maxBody)
			}
			if err := r.ParseMultipartForm(multipartMemory); err != nil {
				var tooLarge *http.MaxBytesError
				if errors.As(err, &tooLarge) {
					writeError(w, http.StatusRequestEntityTooLarge, "INVALID_INPUT",
						fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit))
					return
				}
				writeError(w, http.StatusBadRequest, "INVALID_INPUT", "failed to parse form")
				return
			}

			for field, headers := range r.MultipartForm.File {
				config, ok := fields[field]
				if !ok {
					writeError(w, http.StatusBadRequest, "INVALID_INPUT", fmt.Sprintf("unexpected file field %q", field))
					return
				}
				for _, fh := range headers {
					if err := validateFile(fh, config); err != nil {
						writeError(w, http.StatusBadRequest, "INVALID_INPUT", fmt.Sprintf("%s: %v", field, err))
						return
					}
				}
			}

			next.ServeHTTP(w, r)
		})
	}
}

// validateFile validates a single file
func validateFile(fileHeader *multipart.FileHeader, config FileValidationConfig) error {
	if config.MaxSize > 0 && fileHeader.Size > config.MaxSize {
		return fmt.Errorf("file size %d exceeds maximum allowed size %d", fileHeader.Size, config.MaxSize)
	}

	if len(config.AllowedExts) > 0 {
		ext := strings.ToLower(filepath.Ext(fileHeader.Filename))
		if !slices.Contains(config.AllowedExts, ext) {
			return fmt.Errorf("file extension %q is not allowed", ext)
		}
	}

	if len(config.AllowedTypes) == 0 {
		return nil
	}

	file, err := fileHeader.Open()
	if err != nil {
		return fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	// Read first 512 bytes for MIME type detection
	buffer := make([]byte, 512)
	n, err := io.ReadFull(file, buffer)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return fmt.Errorf("failed to read file: %w", err)
	}
	if n == 0 {
		return errors.New("file is empty")
	}

	// Containers the sniffer does not know (QuickTime, AVI, FLAC) report as
	// octet-stream; the extension check and the probe decide those.
	contentType := http.DetectContentType(buffer[:n])
	if contentType == "application/octet-stream" {
		return nil
	}
	for _, allowedType := range config.AllowedTypes {
		if matchMIMEType(contentType, allowedType) {
			return nil
		}
	}
	return fmt.Errorf("file type %s is not allowed", contentType)
}

// matchMIMEType checks if a MIME type matches a pattern (supports wildcards)
func matchMIMEType(contentType, pattern string) bool {
	contentType, _, _ = strings.Cut(contentType, ";")
	if contentType == pattern {
		return true
	}

	// Wildcard match (e.g., "audio/*" matches "audio/mpeg")
	if prefix, ok := strings.CutSuffix(pattern, "/*"); ok {
		return strings.HasPrefix(contentType, prefix+"/")
	}

	return false
}

// Media file validation configs

// VideoFileValidation validates source videos
var VideoFileValidation = FileValidationConfig{
	MaxSize: 2 * 1024 * 1024 * 1024, // 2 GB
	AllowedTypes: []string{
		"video/*",
	},
	AllowedExts: []string{
		".mp4", ".mpeg", ".mpg", ".mov", ".avi", ".webm", ".mkv", ".m4v",
	},
}

// AudioFileValidation validates replacement audio tracks. MP4 audio sniffs as video/mp4.
var AudioFileValidation = FileValidationConfig{
	MaxSize: 500 * 1024 * 1024, // 500 MB
	AllowedTypes: []string{
		"audio/*",
		"video/mp4",
	},
	AllowedExts: []string{
		".mp3", ".wav", ".ogg", ".m4a", ".aac", ".flac",
	},
}

// ClipUploads are the file fields accepted by render and run endpoints
var ClipUploads = map[string]FileValidationConfig{
	"video": VideoFileValidation,
	"audio": AudioFileValidation,
}
