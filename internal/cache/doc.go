// Package cache owns everything that touches the image tree on disk: mapping
// untrusted request paths under the configured image root, probing originals
// and derivatives (regular files only), writing derivatives with temp file +
// rename semantics, tracking in-flight builds per cache key and computing the
// ETag/Last-Modified validators used for conditional GETs. Existence on disk is
// the cache index; there is no separate metadata file.
package cache
