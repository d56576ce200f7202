package grow

import (
	"path"
	"strings"
)

const (
	contentDir = "/content"
	staticDir  = "/static"
)

// ServingURL returns the URL a file is served at, or "" for files that are
// not served. Documents map to pretty URLs: /content/pages/about.md is served
// at /pages/about/ and an index document at its directory.
func ServingURL(p string) string {
	switch {
	case strings.HasPrefix(p, staticDir+"/"):
		return p
	case strings.HasPrefix(p, contentDir+"/"):
	default:
		return ""
	}

	rel := strings.TrimPrefix(p, contentDir)
	dir, base := path.Split(rel)
	base = strings.TrimSuffix(base, path.Ext(base))
	if strings.HasPrefix(base, "_") {
		return ""
	}
	if base == "index" {
		return dir
	}
	return dir + base + "/"
}
