package usecase

import "strings"

// upstreamMediaPath is the path segment under which the upstream media
// server exposes manifests and segments. Everything after it (past the item
// id) is addressable through the proxy unchanged.
const upstreamMediaPath = "/Videos/"

// RewritePlaylist rewrites every URL line of an adaptive-bitrate playlist to
// a proxy-relative path under proxyBase (e.g. "/stream/movie-42"). Comment
// and blank lines pass through verbatim, query strings survive
// byte-identical, and unclassifiable lines are left untouched: a line the
// proxy cannot rewrite must not abort an otherwise playable manifest.
// Rewriting an already-rewritten playlist is a no-op.
func RewritePlaylist(manifest, proxyBase string) string {
	proxyBase = strings.TrimSuffix(proxyBase, "/")
	lines := strings.Split(manifest, "\n")
	for i, line := range lines {
		lines[i] = rewriteLine(line, proxyBase)
	}
	return strings.Join(lines, "\n")
}

func rewriteLine(line, proxyBase string) string {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" || strings.HasPrefix(trimmed, "#") {
		return line
	}

	path, query := splitQuery(trimmed)
	rewritten, ok := classifyURLLine(path, proxyBase)
	if !ok {
		return line
	}
	if query != "" {
		return rewritten + "?" + query
	}
	return rewritten
}

// classifyURLLine applies the rewrite rules in priority order and reports
// whether the line matched any of them.
func classifyURLLine(path, proxyBase string) (string, bool) {
	// (a) already proxy-relative.
	if path == proxyBase || strings.HasPrefix(path, proxyBase+"/") {
		return path, true
	}

	// (b, c) absolute URLs.
	if rest, absolute := stripSchemeHost(path); absolute {
		if rest == proxyBase || strings.HasPrefix(rest, proxyBase+"/") {
			return rest, true
		}
		if suffix, ok := mediaPathSuffix(rest); ok {
			return proxyBase + "/" + suffix, true
		}
		// Unrewritable foreign URL: leave it alone.
		return "", false
	}

	// (d) upstream media path without a scheme.
	if suffix, ok := mediaPathSuffix(path); ok {
		return proxyBase + "/" + suffix, true
	}

	// (e) bare relative filename.
	if !strings.HasPrefix(path, "/") {
		return proxyBase + "/" + path, true
	}

	// (f) other absolute path: flatten to the final component.
	if idx := strings.LastIndexByte(path, '/'); idx >= 0 && idx < len(path)-1 {
		return proxyBase + "/" + path[idx+1:], true
	}

	// (g) unmatched.
	return "", false
}

// mediaPathSuffix extracts the part of path after the upstream media path
// segment and its item id, i.e. "/Videos/{id}/rest" yields "rest". The item
// id is dropped because the proxy base already names the requested item.
func mediaPathSuffix(path string) (string, bool) {
	idx := strings.Index(path, upstreamMediaPath)
	if idx < 0 {
		return "", false
	}
	rest := path[idx+len(upstreamMediaPath):]
	slash := strings.IndexByte(rest, '/')
	if slash < 0 || slash == len(rest)-1 {
		return "", false
	}
	return rest[slash+1:], true
}

// PlaylistItemIDs collects every upstream item id embedded in URL lines of a
// raw (unrewritten) playlist. Used by the proxy to detect manifests that
// reference a different item than the one requested.
func PlaylistItemIDs(manifest string) []string {
	var ids []string
	seen := make(map[string]struct{})
	for _, line := range strings.Split(manifest, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		path, _ := splitQuery(trimmed)
		if rest, absolute := stripSchemeHost(path); absolute {
			path = rest
		}
		idx := strings.Index(path, upstreamMediaPath)
		if idx < 0 {
			continue
		}
		rest := path[idx+len(upstreamMediaPath):]
		slash := strings.IndexByte(rest, '/')
		if slash <= 0 {
			continue
		}
		id := rest[:slash]
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids
}

func splitQuery(s string) (path, query string) {
	if i := strings.IndexByte(s, '?'); i >= 0 {
		return s[:i], s[i+1:]
	}
	return s, ""
}

// stripSchemeHost returns the path (with leading slash) of an absolute URL,
// and reports whether s was absolute at all.
func stripSchemeHost(s string) (string, bool) {
	idx := strings.Index(s, "://")
	if idx <= 0 {
		return "", false
	}
	rest := s[idx+len("://"):]
	slash := strings.IndexByte(rest, '/')
	if slash < 0 {
		return "/", true
	}
	return rest[slash:], true
}
