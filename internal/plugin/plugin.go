// Package plugin implements the registries that map a type tag to the
// component implementing it.
//
// Each contract family (descriptor, fitting, backend) owns one Registry.
// Concrete implementations register themselves from init, and the family's
// New and Deserialize functions look the tag up at runtime.
package plugin

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

var (
	// ErrPluginNotFound is returned when no plugin is registered under a tag.
	ErrPluginNotFound = errors.New("plugin not found")

	// ErrAlreadyRegistered is returned when a tag is registered twice.
	ErrAlreadyRegistered = errors.New("plugin already registered")

	// ErrMissingType is returned when a configuration has no "type" key.
	ErrMissingType = errors.New("missing type")
)

// NotFoundError reports a lookup miss together with the tags that are known.
type NotFoundError struct {
	Family string
	Tag    string
	Known  []string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("unknown %s type %q, registered: [%s]", e.Family, e.Tag, strings.Join(e.Known, ", "))
}

// Unwrap allows errors.Is(err, ErrPluginNotFound).
func (e *NotFoundError) Unwrap() error {
	return ErrPluginNotFound
}

// Registry maps tags to plugins of type T.
type Registry[T any] struct {
	family string

	mu      sync.RWMutex
	plugins map[string]T
}

// NewRegistry creates an empty registry for family.
func NewRegistry[T any](family string) *Registry[T] {
	return &Registry[T]{
		family:  family,
		plugins: make(map[string]T),
	}
}

// Family returns the name of the contract family.
func (r *Registry[T]) Family() string {
	return r.family
}

// Register records p under tag.
func (r *Registry[T]) Register(tag string, p T) error {
	if tag == "" {
		return fmt.Errorf("%s: empty tag", r.family)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.plugins[tag]; ok {
		return fmt.Errorf("%w: %s type %q", ErrAlreadyRegistered, r.family, tag)
	}
	r.plugins[tag] = p
	return nil
}

// MustRegister is Register that panics on error. Intended for init.
func (r *Registry[T]) MustRegister(tag string, p T, aliases ...string) {
	for _, t := range append([]string{tag}, aliases...) {
		if err := r.Register(t, p); err != nil {
			panic(err)
		}
	}
}

// Get returns the plugin registered under tag.
func (r *Registry[T]) Get(tag string) (T, error) {
	r.mu.RLock()
	p, ok := r.plugins[tag]
	r.mu.RUnlock()
	if !ok {
		var zero T
		return zero, &NotFoundError{Family: r.family, Tag: tag, Known: r.Tags()}
	}
	return p, nil
}

// Has reports whether tag is registered.
func (r *Registry[T]) Has(tag string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.plugins[tag]
	return ok
}

// Tags returns the registered tags in sorted order.
func (r *Registry[T]) Tags() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tags := make([]string, 0, len(r.plugins))
	for t := range r.plugins {
		tags = append(tags, t)
	}
	sort.Strings(tags)
	return tags
}

// JGetType returns the "type" entry of a component configuration.
func JGetType(cfg map[string]any, className string) (string, error) {
	v, ok := cfg["type"]
	if !ok {
		return "", fmt.Errorf("%w: the type of the %s should be set by `type`", ErrMissingType, className)
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return "", fmt.Errorf("%w: the type of the %s should be a non-empty string, got %v", ErrMissingType, className, v)
	}
	return s, nil
}
