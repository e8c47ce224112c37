package session

import "sync/atomic"

// Location reports the full URL of the page the user is currently on.
type Location interface {
	Current() string
}

// StaticLocation is a Location that never changes.
type StaticLocation string

func (l StaticLocation) Current() string { return string(l) }

// MutableLocation tracks navigation. It is safe for concurrent use.
type MutableLocation struct {
	current atomic.Pointer[string]
}

func NewMutableLocation(initial string) *MutableLocation {
	l := &MutableLocation{}
	l.Set(initial)
	return l
}

// Set records a navigation to rawURL.
func (l *MutableLocation) Set(rawURL string) {
	l.current.Store(&rawURL)
}

func (l *MutableLocation) Current() string {
	if p := l.current.Load(); p != nil {
		return *p
	}
	return ""
}
