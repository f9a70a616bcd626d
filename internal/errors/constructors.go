package errors

// Convenience functions for common error patterns

// Config errors

func ConfigNotFound(path string) *PrestoError {
	return New(CategoryConfig, SeverityFatal, "configuration file not found").
		WithContext("path", path)
}

func ConfigSectionMissing(path, section string) *PrestoError {
	return New(CategoryConfig, SeverityFatal, "required configuration section missing").
		WithContext("path", path).
		WithContext("section", section)
}

func ConfigRequired(field string) *PrestoError {
	return New(CategoryConfig, SeverityFatal, "no value for required configuration variable").
		WithContext("field", field)
}

func ValidationFailed(field, reason string) *PrestoError {
	return New(CategoryValidation, SeverityFatal, "validation failed").
		WithContext("field", field).
		WithContext("reason", reason)
}

// Cache errors are never fatal: the run proceeds with an empty cache or
// without persisting it.

func CacheIOError(operation, path string, cause error) *PrestoError {
	return Wrap(cause, CategoryCache, SeverityWarning, "cache "+operation+" failed").
		WithContext("path", path)
}

// Per-document and per-item errors

func DocumentError(relPath, message string, cause error) *PrestoError {
	return Wrap(cause, CategoryDocument, SeverityError, message).
		WithContext("path", relPath)
}

func FilesystemError(operation, path string, cause error) *PrestoError {
	return Wrap(cause, CategoryFileSystem, SeverityError, operation+" failed").
		WithContext("path", path)
}

// Internal errors

func InternalError(message string, cause error) *PrestoError {
	return Wrap(cause, CategoryInternal, SeverityFatal, message)
}
