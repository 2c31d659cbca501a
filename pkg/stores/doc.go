// Package stores persists fragment catalogs in SQLite so rule definitions
// can be evaluated without the original catalog file. Schema changes are
// applied with embedded golang-migrate migrations.
package stores
