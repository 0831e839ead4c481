// Package logging sets up slog for the cinesphere CLI. By default only
// warnings reach stderr; --debug adds JSON logs at debug level in a
// size-rotated file under ~/.cinesphere/logs/, which `cinesphere logs`
// can tail and filter.
package logging
