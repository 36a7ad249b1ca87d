package lua

import "strings"

// ShortSource formats a Proto's Source string the way luaO_chunkid does,
// truncating to at most bufflen bytes:
//   - "=name"   -> name verbatim, truncated to bufflen-1
//   - "@path"   -> path, prefixed with "..." and trimmed to its tail if
//     the full path would overflow bufflen
//   - otherwise -> treated as inline source text, rendered as
//     `[string "first line of source..."]`, truncating at the first
//     newline and appending "..." whenever the text was cut short
func ShortSource(source string, bufflen int) string {
	switch {
	case strings.HasPrefix(source, "="):
		name := source[1:]
		if len(name) >= bufflen {
			name = name[:bufflen-1]
		}
		return name
	case strings.HasPrefix(source, "@"):
		path := source[1:]
		if len(path) < bufflen {
			return path
		}
		const prefix = "..."
		keep := bufflen - len(prefix)
		if keep < 0 {
			keep = 0
		}
		if keep > len(path) {
			keep = len(path)
		}
		return prefix + path[len(path)-keep:]
	default:
		firstLine := source
		truncated := false
		if idx := strings.IndexByte(source, '\n'); idx >= 0 {
			firstLine = source[:idx]
			truncated = true
		}
		const wrapPrefix = `[string "`
		const wrapSuffix = `"]`
		const ellipsis = "..."

		// Budget matches luaO_chunkid: reserve room for the prefix, the
		// suffix, a possible "..." and the terminating NUL before
		// deciding whether the first line fits untruncated.
		avail := bufflen - len(wrapPrefix) - len(wrapSuffix) - len(ellipsis) - 1
		if avail < 0 {
			avail = 0
		}
		if len(firstLine) > avail {
			firstLine = firstLine[:avail]
			truncated = true
		}
		if truncated {
			return wrapPrefix + firstLine + ellipsis + wrapSuffix
		}
		return wrapPrefix + firstLine + wrapSuffix
	}
}
