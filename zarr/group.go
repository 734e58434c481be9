package zarr

import (
	"context"
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"
)

// Group is a path-addressable node in a Zarr hierarchy. It owns no state
// beyond its store handle and path: attribute documents and child listings
// are read from the store on every call.
type Group struct {
	store Store
	path  string // slash-separated, "" for the root group
}

// groupMeta is the ".zgroup" document.
type groupMeta struct {
	ZarrFormat int `json:"zarr_format"`
}

// RootExists reports whether the store already contains a dataset: either a
// root ".zgroup" document or any object at all.
func RootExists(ctx context.Context, store Store) (bool, error) {
	ok, err := store.Exists(ctx, groupMetaKey)
	if err != nil || ok {
		return ok, err
	}
	keys, err := store.List(ctx, "")
	if err != nil {
		return false, err
	}
	return len(keys) > 0, nil
}

// OpenRoot opens the root group of an existing hierarchy.
// Fails with ErrNotFound when no root group document is present.
func OpenRoot(ctx context.Context, store Store) (*Group, error) {
	ok, err := store.Exists(ctx, groupMetaKey)
	if err != nil {
		return nil, fmt.Errorf("zarr: checking root group: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("zarr: root group: %w", ErrNotFound)
	}
	return &Group{store: store}, nil
}

// CreateRoot writes a root group document and returns the root group.
func CreateRoot(ctx context.Context, store Store) (*Group, error) {
	root := &Group{store: store}
	if err := root.writeGroupMeta(ctx); err != nil {
		return nil, err
	}
	return root, nil
}

// WipeRoot removes every object in the store. Used by destructive
// create-overwrite opens.
func WipeRoot(ctx context.Context, store Store) error {
	keys, err := store.List(ctx, "")
	if err != nil {
		return err
	}
	for _, key := range keys {
		if err := store.Delete(ctx, key); err != nil {
			return fmt.Errorf("zarr: wiping %s: %w", key, err)
		}
	}
	return nil
}

// Path returns the slash-separated group path ("" for the root).
func (g *Group) Path() string { return g.path }

// Name returns the last path component, or "/" for the root.
func (g *Group) Name() string {
	if g.path == "" {
		return "/"
	}
	return path.Base(g.path)
}

// Store returns the backing object store.
func (g *Group) Store() Store { return g.store }

func (g *Group) key(parts ...string) string {
	elems := append([]string{g.path}, parts...)
	return path.Join(elems...)
}

func (g *Group) writeGroupMeta(ctx context.Context) error {
	return putJSON(ctx, g.store, g.key(groupMetaKey), groupMeta{ZarrFormat: zarrFormat})
}

// -----------------------------------------------------------------------------
// Attributes
// -----------------------------------------------------------------------------

// Attrs reads the group's ".zattrs" document. A missing document yields an
// empty map, not an error.
func (g *Group) Attrs(ctx context.Context) (map[string]any, error) {
	attrs := map[string]any{}
	err := getJSON(ctx, g.store, g.key(attrsKey), &attrs)
	if errors.Is(err, ErrNotFound) {
		return map[string]any{}, nil
	}
	if err != nil {
		return nil, err
	}
	return attrs, nil
}

// UpdateAttrs merges the given top-level keys into the group's ".zattrs"
// document and writes it back in one flush.
func (g *Group) UpdateAttrs(ctx context.Context, patch map[string]any) error {
	attrs, err := g.Attrs(ctx)
	if err != nil {
		return err
	}
	for k, v := range patch {
		attrs[k] = v
	}
	return putJSON(ctx, g.store, g.key(attrsKey), attrs)
}

// -----------------------------------------------------------------------------
// Child groups and arrays
// -----------------------------------------------------------------------------

// CreateGroup creates a child group. An existing child of the same name
// fails with ErrExists unless overwrite is set, in which case its whole
// subtree is destroyed first.
func (g *Group) CreateGroup(ctx context.Context, name string, overwrite bool) (*Group, error) {
	name, err := normalizeNodeName(name)
	if err != nil {
		return nil, err
	}
	childKey := g.key(name, groupMetaKey)
	exists, err := g.store.Exists(ctx, childKey)
	if err != nil {
		return nil, err
	}
	if exists {
		if !overwrite {
			return nil, fmt.Errorf("zarr: group %s: %w", g.key(name), ErrExists)
		}
		if err := g.deleteTree(ctx, name); err != nil {
			return nil, err
		}
	}
	child := &Group{store: g.store, path: g.key(name)}
	if err := child.writeGroupMeta(ctx); err != nil {
		return nil, err
	}
	return child, nil
}

// Group opens a child group by name or slash-separated relative path.
func (g *Group) Group(ctx context.Context, name string) (*Group, error) {
	name, err := normalizeNodeName(name)
	if err != nil {
		return nil, err
	}
	exists, err := g.store.Exists(ctx, g.key(name, groupMetaKey))
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("zarr: group %s: %w", g.key(name), ErrNotFound)
	}
	return &Group{store: g.store, path: g.key(name)}, nil
}

// GroupKeys returns the sorted names of all direct child groups.
func (g *Group) GroupKeys(ctx context.Context) ([]string, error) {
	return g.childKeys(ctx, groupMetaKey)
}

// ArrayKeys returns the sorted names of all direct child arrays.
func (g *Group) ArrayKeys(ctx context.Context) ([]string, error) {
	return g.childKeys(ctx, arrayMetaKey)
}

func (g *Group) childKeys(ctx context.Context, metaKey string) ([]string, error) {
	prefix := ""
	if g.path != "" {
		prefix = g.path + "/"
	}
	keys, err := g.store.List(ctx, g.path)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool)
	var names []string
	for _, key := range keys {
		rel := strings.TrimPrefix(key, prefix)
		parts := strings.Split(rel, "/")
		if len(parts) != 2 || parts[1] != metaKey {
			continue
		}
		if !seen[parts[0]] {
			seen[parts[0]] = true
			names = append(names, parts[0])
		}
	}
	sort.Strings(names)
	return names, nil
}

// deleteTree removes a child node and everything under it.
func (g *Group) deleteTree(ctx context.Context, name string) error {
	keys, err := g.store.List(ctx, g.key(name))
	if err != nil {
		return err
	}
	for _, key := range keys {
		if err := g.store.Delete(ctx, key); err != nil {
			return err
		}
	}
	return nil
}

// normalizeNodeName validates a child name or relative path. Empty
// components and path escapes are rejected.
func normalizeNodeName(name string) (string, error) {
	name = strings.Trim(strings.TrimSpace(name), "/")
	if name == "" {
		return "", fmt.Errorf("zarr: empty node name: %w", ErrInvalidKey)
	}
	for _, part := range strings.Split(name, "/") {
		if part == "" || part == "." || part == ".." {
			return "", fmt.Errorf("zarr: node name %q: %w", name, ErrInvalidKey)
		}
	}
	return name, nil
}
