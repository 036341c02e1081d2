package config

import "strings"

// AppVersion is the version of the service.
var AppVersion = "0.9.1"

// AppName is the name of the service.
const AppName = "jacket"

// LogSubDir is the sub directory for the log files.
var LogSubDir = "." + strings.ToLower(AppName)

// LogExt is the extension for the log files.
var LogExt = ".log"

// Defaults for the cover cache.
const (
	DefaultCacheDir         = "/tmp/book-covers"
	DefaultMaxAgeDays       = 30
	DefaultMaxFileSizeBytes = 5 * 1024 * 1024
)

// Environment variable names used to override secrets from the file.
const (
	EnvObjectStoreAccessKeyID     = "JACKET_OBJECT_STORE_ACCESS_KEY_ID"
	EnvObjectStoreSecretAccessKey = "JACKET_OBJECT_STORE_SECRET_ACCESS_KEY"
	EnvGoogleAPIKey               = "JACKET_GOOGLE_API_KEY"
)
