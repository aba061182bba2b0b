package crawler

import (
	"bytes"
	"regexp"
)

// Class is the cheap content-based priority of a candidate file.
type Class int

const (
	ClassNone Class = iota
	// ClassMentionsContainer files reference a container or registry but no
	// bind call was seen.
	ClassMentionsContainer
	// ClassHasBindings files contain something shaped like bind( or rebind(.
	ClassHasBindings
)

func (c Class) String() string {
	switch c {
	case ClassHasBindings:
		return "has-bindings"
	case ClassMentionsContainer:
		return "mentions-container"
	}
	return "none"
}

var (
	bindCallRe       = regexp.MustCompile(`\b(?:re)?bind\s*[<(]`)
	containerMarkers = [][]byte{
		[]byte("Container"),
		[]byte("container"),
		[]byte("Registry"),
		[]byte("registry"),
		[]byte("TYPES"),
		[]byte("inversify"),
	}
	// "class " is enough to make a file worth the service/injection pass
	classMarker = []byte("class ")
)

// Classify inspects content with substring and single-regexp checks only.
func Classify(content []byte) Class {
	if bindCallRe.Match(content) {
		return ClassHasBindings
	}
	for _, m := range containerMarkers {
		if bytes.Contains(content, m) {
			return ClassMentionsContainer
		}
	}
	return ClassNone
}

// DeclaresClasses reports whether content may hold class declarations.
func DeclaresClasses(content []byte) bool {
	return bytes.Contains(content, classMarker)
}
