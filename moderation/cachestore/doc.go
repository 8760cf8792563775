// Remembers the labels already extracted for an artifact URL, for a bounded time.
//
// Artifact URLs point into content-addressed directories, so a URL's labels never change; the TTL only bounds memory and lets classifier upgrades take effect.
package cachestore
