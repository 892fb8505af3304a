package validator

import (
	"fmt"
	"mime/multipart"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-playground/validator/v10"
)

// Validator wraps go-playground/validator with custom validation rules
// for OCR job uploads.
type Validator struct {
	validate *validator.Validate
}

// Config holds upload validation configuration
type Config struct {
	MaxFileSize        int64    `json:"max_file_size"`
	MinFileSize        int64    `json:"min_file_size"`
	AllowedMimeTypes   []string `json:"allowed_mime_types"`
	AllowedExtensions  []string `json:"allowed_extensions"`
	RequireContentType bool     `json:"require_content_type"`
}

// DefaultConfig returns the default upload validation configuration:
// PDF and the common raster image formats, up to 50MB.
func DefaultConfig() *Config {
	return &Config{
		MaxFileSize:        50 * 1024 * 1024,
		MinFileSize:        1,
		RequireContentType: true,
		AllowedMimeTypes: []string{
			"application/pdf",
			"image/png", "image/jpeg", "image/tiff", "image/bmp", "image/webp",
		},
		AllowedExtensions: []string{
			".pdf", ".png", ".jpg", ".jpeg", ".tiff", ".bmp", ".webp",
		},
	}
}

// New creates a new validator instance
func New(config *Config) *Validator {
	if config == nil {
		config = DefaultConfig()
	}

	validate := validator.New()
	validate.RegisterValidation("file_size", validateFileSize(config.MinFileSize, config.MaxFileSize))
	validate.RegisterValidation("mime_type", validateMimeType(config.AllowedMimeTypes))
	validate.RegisterValidation("file_extension", validateFileExtension(config.AllowedExtensions))

	return &Validator{validate: validate}
}

// ValidationError represents a single field validation failure
type ValidationError struct {
	Field   string `json:"field"`
	Tag     string `json:"tag"`
	Value   string `json:"value"`
	Message string `json:"message"`
}

// ValidationErrors represents multiple validation errors
type ValidationErrors []ValidationError

func (v ValidationErrors) Error() string {
	var messages []string
	for _, err := range v {
		messages = append(messages, err.Message)
	}
	return strings.Join(messages, "; ")
}

// FileSizeExceededError is returned by ValidateFile whenever the upload is
// over the configured ceiling, before and instead of any other check's
// ValidationErrors. Callers map it to 413 instead of 400.
type FileSizeExceededError struct {
	Size    int64
	MaxSize int64
}

func (e *FileSizeExceededError) Error() string {
	return fmt.Sprintf("file size %d bytes exceeds maximum allowed size of %d bytes", e.Size, e.MaxSize)
}

// ValidateStruct validates a struct using its `validate` tags
func (v *Validator) ValidateStruct(s interface{}) error {
	err := v.validate.Struct(s)
	if err != nil {
		var validationErrors ValidationErrors
		for _, err := range err.(validator.ValidationErrors) {
			validationErrors = append(validationErrors, ValidationError{
				Field:   err.Field(),
				Tag:     err.Tag(),
				Value:   fmt.Sprintf("%v", err.Value()),
				Message: getErrorMessage(err),
			})
		}
		return validationErrors
	}
	return nil
}

// ValidateFile validates an uploaded file's size, extension and declared
// MIME type. It does not sniff content; see ValidateFileContent for that.
func (v *Validator) ValidateFile(file *multipart.FileHeader, config *Config) error {
	if config == nil {
		config = DefaultConfig()
	}

	// Oversize is reported on its own, ahead of the other checks, because it
	// maps to a different HTTP status (413) than every other validation
	// failure here (400) and the two must never be merged into one error.
	if file.Size > config.MaxFileSize {
		return &FileSizeExceededError{Size: file.Size, MaxSize: config.MaxFileSize}
	}

	var errs ValidationErrors

	if file.Size < config.MinFileSize {
		errs = append(errs, ValidationError{
			Field:   "file_size",
			Tag:     "min_size",
			Value:   fmt.Sprintf("%d", file.Size),
			Message: fmt.Sprintf("file size %d bytes is below minimum required size of %d bytes", file.Size, config.MinFileSize),
		})
	}

	ext := strings.ToLower(filepath.Ext(file.Filename))
	if !contains(config.AllowedExtensions, ext) {
		errs = append(errs, ValidationError{
			Field:   "file_extension",
			Tag:     "allowed_extension",
			Value:   ext,
			Message: fmt.Sprintf("file extension '%s' is not allowed, allowed extensions: %v", ext, config.AllowedExtensions),
		})
	}

	if config.RequireContentType && file.Header != nil {
		contentType := file.Header.Get("Content-Type")
		if contentType == "" {
			errs = append(errs, ValidationError{
				Field:   "content_type",
				Tag:     "required",
				Message: "Content-Type header is required",
			})
		} else if !contains(config.AllowedMimeTypes, stripParams(contentType)) {
			errs = append(errs, ValidationError{
				Field:   "content_type",
				Tag:     "allowed_mime_type",
				Value:   contentType,
				Message: fmt.Sprintf("MIME type '%s' is not allowed, allowed types: %v", contentType, config.AllowedMimeTypes),
			})
		}
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// ValidateFileContent sniffs the actual file bytes and rejects uploads
// whose content doesn't match their declared extension — a mislabeled
// .pdf that is actually a PNG, or vice versa.
func (v *Validator) ValidateFileContent(filename string, content []byte, config *Config) error {
	if config == nil {
		config = DefaultConfig()
	}

	extTypes := map[string]string{
		".pdf": "application/pdf", ".png": "image/png", ".jpg": "image/jpeg", ".jpeg": "image/jpeg",
		".tiff": "image/tiff", ".bmp": "image/bmp", ".webp": "image/webp",
	}
	expected := extTypes[strings.ToLower(filepath.Ext(filename))]

	detected := mimetype.Detect(content)
	for m := detected; m != nil; m = m.Parent() {
		if contains(config.AllowedMimeTypes, m.String()) && (expected == "" || m.String() == expected) {
			return nil
		}
	}

	return ValidationErrors{{
		Field:   "content",
		Tag:     "sniffed_mime_type",
		Value:   detected.String(),
		Message: fmt.Sprintf("file content does not match an allowed type for %q (sniffed as %s)", filename, detected.String()),
	}}
}

// IsSuspiciousFile checks for obviously malicious filenames or content.
func (v *Validator) IsSuspiciousFile(filename string, content []byte) (bool, string) {
	suspiciousPatterns := []string{
		"../", "..\\",
		"<script", "javascript:",
		"<?php", "<%",
		"cmd.exe", "powershell",
	}

	lower := strings.ToLower(filename)
	for _, pattern := range suspiciousPatterns {
		if strings.Contains(lower, pattern) {
			return true, fmt.Sprintf("suspicious filename pattern detected: %s", pattern)
		}
	}

	if len(content) > 0 {
		contentStr := strings.ToLower(string(content[:min(len(content), 1024)]))
		for _, pattern := range suspiciousPatterns {
			if strings.Contains(contentStr, pattern) {
				return true, fmt.Sprintf("suspicious content pattern detected: %s", pattern)
			}
		}
	}

	return false, ""
}

func validateFileSize(minSize, maxSize int64) validator.Func {
	return func(fl validator.FieldLevel) bool {
		size := fl.Field().Int()
		return size >= minSize && size <= maxSize
	}
}

func validateMimeType(allowedTypes []string) validator.Func {
	return func(fl validator.FieldLevel) bool {
		return contains(allowedTypes, fl.Field().String())
	}
}

func validateFileExtension(allowedExtensions []string) validator.Func {
	return func(fl validator.FieldLevel) bool {
		return contains(allowedExtensions, strings.ToLower(fl.Field().String()))
	}
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}

func stripParams(contentType string) string {
	if idx := strings.IndexByte(contentType, ';'); idx >= 0 {
		return strings.TrimSpace(contentType[:idx])
	}
	return contentType
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func getErrorMessage(err validator.FieldError) string {
	switch err.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", err.Field())
	case "min":
		return fmt.Sprintf("%s must be at least %s", err.Field(), err.Param())
	case "max":
		return fmt.Sprintf("%s must not exceed %s", err.Field(), err.Param())
	case "file_size":
		return fmt.Sprintf("%s has invalid file size", err.Field())
	case "mime_type":
		return fmt.Sprintf("%s has unsupported MIME type", err.Field())
	case "file_extension":
		return fmt.Sprintf("%s has unsupported file extension", err.Field())
	default:
		return fmt.Sprintf("%s is invalid", err.Field())
	}
}

// Global validator instance, initialized once at startup.
var globalValidator *Validator

func Init(config *Config) {
	globalValidator = New(config)
}

func Get() *Validator {
	if globalValidator == nil {
		globalValidator = New(DefaultConfig())
	}
	return globalValidator
}
