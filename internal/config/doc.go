// Package config loads the pulseboard server configuration from a YAML file.
//
// Load(path) applies defaults before unmarshalling, then validates. The
// escalation section is hot-reloadable: Watch(ctx, path, onChange) re-loads
// the file on every write and hands the new Config to onChange; the server
// pushes the escalation tunables into the running detector.
//
// Secrets (the SMS gateway URL) are never stored in the file itself — the
// file names an environment variable and the value is resolved at use time.
package config
