package service

import (
	"errors"
	"path/filepath"
	"strings"
)

var errUnsafePath = errors.New("path escapes the upload directory")

// validSegment accepts a single path element: no separators, no dot-only names.
func validSegment(s string) bool {
	if s == "" || s == "." || s == ".." {
		return false
	}
	return !strings.ContainsAny(s, `/\`) && !strings.Contains(s, "\x00")
}

// sessionDir is uploads/{session}.
func sessionDir(uploadDir, sessionID string) (string, error) {
	if !validSegment(sessionID) {
		return "", errUnsafePath
	}
	return filepath.Join(uploadDir, sessionID), nil
}

// withinDir reports whether path resolves to a location inside dir.
func withinDir(dir, path string) bool {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return false
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	rel, err := filepath.Rel(absDir, absPath)
	if err != nil {
		return false
	}
	return rel != "." && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
