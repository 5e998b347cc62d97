// Package application models the applications under test and matches them
// against requested capabilities.
//
// Installed applications are declared in manifest files (YAML or TOML):
//
//	applications:
//	  - path: Calc.app
//	    bundle_id: com.example.Calc
//	    name: Calc
//	    version: "1.0"
//	    locales: [en, fr]
//
// Example Usage:
//
//	catalog, err := application.LoadCatalog("apps/**/*.{yaml,toml}", logger)
//	app, err := catalog.FindMatchingApplication(caps)
package application
