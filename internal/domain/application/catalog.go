package application

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/GriffinCanCode/iosdriver/internal/domain/capabilities"
)

// ErrNoMatchingApplication is returned when no installed application
// satisfies the requested capabilities.
var ErrNoMatchingApplication = errors.New("no matching application")

// Catalog is the set of applications available for automation. It is safe
// for concurrent use and acts as the session matcher.
type Catalog struct {
	mu   sync.RWMutex
	apps []*Application
}

// NewCatalog creates a catalog holding apps.
func NewCatalog(apps ...*Application) *Catalog {
	return &Catalog{apps: apps}
}

// Add registers applications.
func (c *Catalog) Add(apps ...*Application) {
	c.mu.Lock()
	c.apps = append(c.apps, apps...)
	c.mu.Unlock()
}

// Len returns the number of applications.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.apps)
}

// Applications returns a snapshot of the catalog.
func (c *Catalog) Applications() []*Application {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.apps)
}

// FindMatchingApplication returns the first application matching every
// selector present in caps (bundle identifier, name, version, path) and,
// when the app declares localizations, the requested language.
func (c *Catalog) FindMatchingApplication(caps capabilities.Capabilities) (*Application, error) {
	if caps.BundleID == "" && caps.BundleName == "" && caps.App == "" {
		return nil, fmt.Errorf("%w: capabilities name no application", ErrNoMatchingApplication)
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	for _, app := range c.apps {
		if matches(app, caps) {
			return app, nil
		}
	}

	return nil, fmt.Errorf("%w: %s", ErrNoMatchingApplication, describe(caps))
}

func matches(app *Application, caps capabilities.Capabilities) bool {
	if caps.BundleID != "" && app.BundleID() != caps.BundleID {
		return false
	}
	if caps.BundleName != "" && app.Name() != caps.BundleName {
		return false
	}
	if caps.BundleVersion != "" && app.Metadata(MetaBundleVersion) != caps.BundleVersion {
		return false
	}
	if caps.App != "" && app.Path() != caps.App {
		return false
	}
	if caps.Language != "" && len(app.locales) > 0 && !slices.Contains(app.locales, caps.Language) {
		return false
	}
	return true
}

func describe(caps capabilities.Capabilities) string {
	var parts []string
	add := func(key, value string) {
		if value != "" {
			parts = append(parts, key+"="+value)
		}
	}
	add(capabilities.KeyBundleID, caps.BundleID)
	add(capabilities.KeyBundleName, caps.BundleName)
	add(capabilities.KeyBundleVersion, caps.BundleVersion)
	add(capabilities.KeyApp, caps.App)
	add(capabilities.KeyLanguage, caps.Language)
	return strings.Join(parts, ", ")
}
