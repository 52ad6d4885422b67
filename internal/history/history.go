// Package history models append-only versioned records such as price rows
// and rewards settings. A History never exposes an update; new versions are
// appended and readers pick the latest one.
package history

import (
	"slices"
	"time"
)

// Version is implemented by rows that belong to an append-only history.
type Version interface {
	VersionID() int64
	EffectiveAt() time.Time
}

type History[T Version] struct {
	versions []T
}

func New[T Version](versions []T) History[T] {
	cp := make([]T, len(versions))
	copy(cp, versions)
	return History[T]{versions: cp}
}

func (h History[T]) Len() int {
	return len(h.versions)
}

// Versions returns a copy of the rows in insertion order.
func (h History[T]) Versions() []T {
	cp := make([]T, len(h.versions))
	copy(cp, h.versions)
	return cp
}

// Sorted returns a copy of the rows ordered oldest first, ties by id.
func (h History[T]) Sorted() []T {
	cp := h.Versions()
	slices.SortStableFunc(cp, func(a, b T) int {
		switch {
		case newer(a, b):
			return 1
		case newer(b, a):
			return -1
		}
		return 0
	})
	return cp
}

// Latest returns the version with the greatest effective time. Ties go to
// the highest id, i.e. the row appended last.
func (h History[T]) Latest() (T, bool) {
	var (
		best  T
		found bool
	)
	for _, v := range h.versions {
		if !found || newer(v, best) {
			best = v
			found = true
		}
	}
	return best, found
}

// AsOf returns the latest version effective at or before t. A version
// applies from its own effective instant onward.
func (h History[T]) AsOf(t time.Time) (T, bool) {
	var (
		best  T
		found bool
	)
	for _, v := range h.versions {
		if v.EffectiveAt().After(t) {
			continue
		}
		if !found || newer(v, best) {
			best = v
			found = true
		}
	}
	return best, found
}

func newer[T Version](a, b T) bool {
	if a.EffectiveAt().Equal(b.EffectiveAt()) {
		return a.VersionID() > b.VersionID()
	}
	return a.EffectiveAt().After(b.EffectiveAt())
}
