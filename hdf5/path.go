package hdf5

import (
	"fmt"
	"strings"
)

// ParseAttrPath splits an attribute path of the form /object@name, as
// printed by WalkAttrs, into the object path and attribute name. "@name"
// and "/@name" address the root group.
func ParseAttrPath(p string) (objectPath, attrName string, err error) {
	at := strings.LastIndex(p, "@")
	switch {
	case p == "":
		return "", "", fmt.Errorf("%w: empty attribute path", ErrInvalidPath)
	case at < 0:
		return "", "", fmt.Errorf("%w: no '@' in attribute path %q", ErrInvalidPath, p)
	case at == len(p)-1:
		return "", "", fmt.Errorf("%w: empty attribute name in %q", ErrInvalidPath, p)
	}
	objectPath, attrName = p[:at], p[at+1:]
	if !strings.HasPrefix(objectPath, "/") {
		objectPath = "/" + objectPath
	}
	return objectPath, attrName, nil
}

// JoinAttrPath is the inverse of ParseAttrPath.
func JoinAttrPath(objectPath, attrName string) string {
	if objectPath == "/" {
		return "/@" + attrName
	}
	return objectPath + "@" + attrName
}

// SplitPath returns the non-empty components of an object path, so "/"
// yields none and "/a//b/" yields a and b.
func SplitPath(p string) []string {
	return strings.FieldsFunc(p, func(r rune) bool { return r == '/' })
}
