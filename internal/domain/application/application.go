package application

import (
	"maps"
)

// Metadata keys read from an application's Info.plist.
const (
	MetaBundleID      = "CFBundleIdentifier"
	MetaBundleName    = "CFBundleName"
	MetaBundleVersion = "CFBundleVersion"
)

// Application is an installed application under test.
//
// Applications held by the Catalog are shared between sessions and never
// modified; a session wanting another UI language takes a copy through
// WithLanguage.
type Application struct {
	path     string
	metadata map[string]string
	locales  []string
	language string
}

// New creates an Application rooted at path with the given Info.plist
// metadata.
func New(path string, metadata map[string]string, locales ...string) *Application {
	return &Application{
		path:     path,
		metadata: maps.Clone(metadata),
		locales:  locales,
	}
}

// Path returns the application bundle path handed to instruments.
func (a *Application) Path() string {
	return a.path
}

// Metadata returns the value of a metadata key, or "" when absent.
func (a *Application) Metadata(key string) string {
	return a.metadata[key]
}

// BundleID returns the CFBundleIdentifier.
func (a *Application) BundleID() string {
	return a.metadata[MetaBundleID]
}

// Name returns the CFBundleName.
func (a *Application) Name() string {
	return a.metadata[MetaBundleName]
}

// Locales lists the localizations shipped with the bundle.
func (a *Application) Locales() []string {
	return append([]string(nil), a.locales...)
}

// WithLanguage returns a copy of the application configured to start in
// language. The receiver is left untouched.
func (a *Application) WithLanguage(language string) *Application {
	return &Application{
		path:     a.path,
		metadata: a.metadata,
		locales:  a.locales,
		language: language,
	}
}

// Language returns the configured UI language.
func (a *Application) Language() string {
	return a.language
}
