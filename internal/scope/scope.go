// internal/scope/scope.go
package scope

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidPath is returned when a request path does not decompose into
// /version/account[/container[/object]].
var ErrInvalidPath = errors.New("scope: invalid path")

// Level is the depth of a storage resource in the account hierarchy.
type Level string

const (
	LevelAccount   Level = "account"
	LevelContainer Level = "container"
	LevelObject    Level = "object"
)

// Scope addresses a storage resource. Object is only ever set together with
// Container.
type Scope struct {
	Version   string
	Account   string
	Container string
	Object    string
}

// Parse splits a request path into its scope. Between two and four segments
// are accepted; the fourth segment keeps any remaining slashes, so
// "/v1/a/c/photos/2024/cat.jpg" has object "photos/2024/cat.jpg".
func Parse(path string) (Scope, error) {
	if !strings.HasPrefix(path, "/") {
		return Scope{}, fmt.Errorf("%w: %q", ErrInvalidPath, path)
	}

	segs := strings.SplitN(path[1:], "/", 4)
	if len(segs) < 2 || segs[0] == "" || segs[1] == "" {
		return Scope{}, fmt.Errorf("%w: %q", ErrInvalidPath, path)
	}

	s := Scope{Version: segs[0], Account: segs[1]}
	if len(segs) > 2 {
		s.Container = segs[2]
	}
	if len(segs) > 3 {
		s.Object = segs[3]
	}

	// "/v1/a//o" would name an object with no container
	if s.Object != "" && s.Container == "" {
		return Scope{}, fmt.Errorf("%w: object without container in %q", ErrInvalidPath, path)
	}

	return s, nil
}

// Level reports the deepest populated segment.
func (s Scope) Level() Level {
	switch {
	case s.Object != "":
		return LevelObject
	case s.Container != "":
		return LevelContainer
	default:
		return LevelAccount
	}
}

// HasContainer reports whether the scope reaches container depth.
func (s Scope) HasContainer() bool {
	return s.Container != ""
}

// HasObject reports whether the scope reaches object depth.
func (s Scope) HasObject() bool {
	return s.Object != ""
}

func (s Scope) String() string {
	var sb strings.Builder
	sb.WriteString("/")
	sb.WriteString(s.Version)
	sb.WriteString("/")
	sb.WriteString(s.Account)
	if s.HasContainer() {
		sb.WriteString("/")
		sb.WriteString(s.Container)
	}
	if s.HasObject() {
		sb.WriteString("/")
		sb.WriteString(s.Object)
	}
	return sb.String()
}
