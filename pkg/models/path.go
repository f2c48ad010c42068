package models

import "strings"

// NormalizePath validates and canonicalizes a decoded file or folder
// path. The result starts with "/", has no trailing slash (except the
// root itself), and contains no "..", "." or empty segments and no null
// bytes. Traversal attempts surface as ErrInvalidPath; callers must not
// echo the offending path back to clients.
func NormalizePath(p string) (string, error) {
	if strings.ContainsRune(p, 0) {
		return "", ErrInvalidPath
	}
	if p == "" || p == "/" {
		return "/", nil
	}
	trimmed := strings.Trim(p, "/")
	segments := strings.Split(trimmed, "/")
	for _, seg := range segments {
		if seg == "" || seg == "." || seg == ".." {
			return "", ErrInvalidPath
		}
	}
	return "/" + strings.Join(segments, "/"), nil
}

// ParentPath returns the folder containing the given normalized path.
// The parent of a top-level entry is "/".
func ParentPath(p string) string {
	if p == "/" || p == "" {
		return "/"
	}
	idx := strings.LastIndex(p, "/")
	if idx <= 0 {
		return "/"
	}
	return p[:idx]
}

// BaseName returns the last segment of a normalized path.
func BaseName(p string) string {
	if p == "/" || p == "" {
		return "/"
	}
	idx := strings.LastIndex(p, "/")
	return p[idx+1:]
}

// IsDirectChild reports whether child sits immediately under parent.
func IsDirectChild(parent, child string) bool {
	return ParentPath(child) == parent
}

// IsUnder reports whether path sits anywhere below the folder, not
// counting the folder itself.
func IsUnder(folder, path string) bool {
	if folder == "/" {
		return path != "/"
	}
	return strings.HasPrefix(path, folder+"/")
}
