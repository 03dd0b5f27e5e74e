// Package configcache provides a process-local, read-through cache for JSON
// (and YAML) application configuration files.
//
// A Cache loads a configuration file on first request, serves later requests
// from memory and re-reads the file only once its modification time advances
// past the last successful read. Staleness is detected lazily on access; there
// is no background watcher.
//
// Every returned Document carries two injected entries: "lastreadAt", the time
// of the last successful load, and "configfile", the resolved filename. Checked
// access validates that a document (or a named subkey of it) holds no keys
// outside a caller-declared Shape, and marks the validated document with
// "configchecked" so the check runs at most once per load.
//
// Basic usage:
//
//	cache := configcache.New(configcache.WithLogger(logger))
//	doc, err := cache.Instance("app.json")
//	if err != nil {
//		return err
//	}
//	name, _ := doc.Get("name")
//
// When the environment variable named by WithEnvVar (APP_ENV by default) is
// set, an environment-specific variant such as "app_test.json" is preferred
// over the base file if it exists.
package configcache
