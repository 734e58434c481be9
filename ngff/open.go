package ngff

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/openmicrodata/ngff/zarr"
)

// OpenOption configures Open.
type OpenOption func(*openConfig)

type openConfig struct {
	mode         Mode
	layout       Layout
	channelNames []string
	axes         []AxisMeta
	version      string
	logger       *slog.Logger
	plateName    string
	acquisitions []AcquisitionMeta
}

// WithMode sets the persistence mode. The default is ReadOnly.
func WithMode(mode Mode) OpenOption {
	return func(c *openConfig) { c.mode = mode }
}

// WithLayout sets the dataset layout. The default, LayoutAuto, infers the
// layout from existing root metadata and is only legal for existing stores.
func WithLayout(layout Layout) OpenOption {
	return func(c *openConfig) { c.layout = layout }
}

// WithChannelNames sets the ordered channel list for a new dataset.
// Required by every mode that may create a store.
func WithChannelNames(names ...string) OpenOption {
	return func(c *openConfig) { c.channelNames = names }
}

// WithAxes overrides the default TCZYX axis metadata for a new dataset.
func WithAxes(axes []AxisMeta) OpenOption {
	return func(c *openConfig) { c.axes = axes }
}

// WithVersion overrides the metadata version written to new documents.
func WithVersion(version string) OpenOption {
	return func(c *openConfig) { c.version = version }
}

// WithLogger sets the logger used for recovered-metadata and overwrite
// warnings. The default is slog.Default.
func WithLogger(logger *slog.Logger) OpenOption {
	return func(c *openConfig) { c.logger = logger }
}

// WithPlateName sets the display name recorded in a new plate document.
func WithPlateName(name string) OpenOption {
	return func(c *openConfig) { c.plateName = name }
}

// WithAcquisitions sets the acquisition list recorded in a new plate
// document. The default is a single unnamed acquisition with id 0.
func WithAcquisitions(acqs []AcquisitionMeta) OpenOption {
	return func(c *openConfig) { c.acquisitions = acqs }
}

// Open resolves the persistence mode and layout against the store and
// returns the root node: a *Plate for the HCS layout, a *Position for the
// single-FOV layout.
//
// Mode resolution is settled before any node is built. The read modes fail
// with ErrNotFound on an absent store. CreateExclusive fails with
// ErrAlreadyExists when the store holds any data. CreateOverwrite logs a
// warning and destroys existing content. AppendCreate resolves to
// CreateExclusive on an absent store and to ReadWrite otherwise.
//
// LayoutAuto inspects the root attributes of an existing store: a "plate"
// key selects the HCS layout, a "multiscales" key the FOV layout, and
// neither fails with ErrAmbiguousLayout. An explicit layout that
// contradicts the keys present fails with ErrLayoutMismatch. Creating a
// new store always requires an explicit layout.
func Open(ctx context.Context, store zarr.Store, opts ...OpenOption) (Node, error) {
	cfg := &openConfig{mode: ReadOnly, layout: LayoutAuto, logger: slog.Default()}
	for _, opt := range opts {
		opt(cfg)
	}

	exists, err := zarr.RootExists(ctx, store)
	if err != nil {
		return nil, fmt.Errorf("ngff: probing store: %w", err)
	}

	mode := cfg.mode
	if mode == AppendCreate {
		if exists {
			mode = ReadWrite
		} else {
			mode = CreateExclusive
		}
	}

	switch mode {
	case ReadOnly, ReadWrite:
		if !exists {
			return nil, fmt.Errorf("ngff: open %s: %w", mode, ErrNotFound)
		}
	case CreateExclusive:
		if exists {
			return nil, fmt.Errorf("ngff: open %s: %w", mode, ErrAlreadyExists)
		}
	case CreateOverwrite:
		if exists {
			cfg.logger.Warn("overwriting existing dataset", "mode", mode.String())
			if err := zarr.WipeRoot(ctx, store); err != nil {
				return nil, fmt.Errorf("ngff: wiping store: %w", err)
			}
			exists = false
		}
	default:
		return nil, fmt.Errorf("ngff: unknown mode %s", mode)
	}

	if mode == ReadOnly {
		store = readOnlyStore{store}
	}

	layout, err := resolveLayout(ctx, store, cfg.layout, exists, mode)
	if err != nil {
		return nil, err
	}

	if mode.creates() && len(cfg.channelNames) == 0 {
		return nil, fmt.Errorf("ngff: channel names are required to create a dataset")
	}

	var root *zarr.Group
	if mode.creates() {
		root, err = zarr.CreateRoot(ctx, store)
	} else {
		root, err = zarr.OpenRoot(ctx, store)
	}
	if err != nil {
		if errors.Is(err, zarr.ErrNotFound) {
			return nil, fmt.Errorf("ngff: open root: %w", ErrNotFound)
		}
		return nil, err
	}

	nodeCfg := nodeConfig{
		group:        root,
		parseMeta:    !mode.creates(),
		channelNames: cfg.channelNames,
		axes:         cfg.axes,
		version:      cfg.version,
		overwrite:    mode == CreateOverwrite,
		logger:       cfg.logger,
	}
	switch layout {
	case LayoutHCS:
		return newPlate(ctx, nodeCfg, cfg.plateName, cfg.acquisitions)
	case LayoutFOV:
		return newPosition(ctx, nodeCfg)
	default:
		return nil, fmt.Errorf("ngff: unresolved layout %s", layout)
	}
}

// OpenPlate opens a dataset that must resolve to the HCS layout.
func OpenPlate(ctx context.Context, store zarr.Store, opts ...OpenOption) (*Plate, error) {
	node, err := Open(ctx, store, append(opts, WithLayout(LayoutHCS))...)
	if err != nil {
		return nil, err
	}
	return node.(*Plate), nil
}

// OpenPosition opens a dataset that must resolve to the single-FOV layout.
func OpenPosition(ctx context.Context, store zarr.Store, opts ...OpenOption) (*Position, error) {
	node, err := Open(ctx, store, append(opts, WithLayout(LayoutFOV))...)
	if err != nil {
		return nil, err
	}
	return node.(*Position), nil
}

// resolveLayout settles the dataset layout. Existing stores are probed by
// their root attribute keys; new stores require an explicit choice.
func resolveLayout(ctx context.Context, store zarr.Store, layout Layout, exists bool, mode Mode) (Layout, error) {
	if !exists || mode.creates() {
		if layout == LayoutAuto {
			return LayoutAuto, fmt.Errorf("ngff: creating a dataset requires an explicit layout: %w", ErrAmbiguousLayout)
		}
		return layout, nil
	}
	root, err := zarr.OpenRoot(ctx, store)
	if err != nil {
		if errors.Is(err, zarr.ErrNotFound) {
			return LayoutAuto, fmt.Errorf("ngff: open root: %w", ErrNotFound)
		}
		return LayoutAuto, err
	}
	attrs, err := root.Attrs(ctx)
	if err != nil {
		return LayoutAuto, err
	}
	_, hasPlate := attrs[plateAttrKey]
	_, hasMultiscales := attrs[multiscalesAttrKey]

	switch layout {
	case LayoutAuto:
		switch {
		case hasPlate:
			return LayoutHCS, nil
		case hasMultiscales:
			return LayoutFOV, nil
		default:
			return LayoutAuto, fmt.Errorf("ngff: root has neither plate nor multiscales metadata: %w", ErrAmbiguousLayout)
		}
	case LayoutHCS:
		if !hasPlate && hasMultiscales {
			return LayoutAuto, fmt.Errorf("ngff: store holds a single-position dataset: %w", ErrLayoutMismatch)
		}
		return LayoutHCS, nil
	case LayoutFOV:
		if hasPlate {
			return LayoutAuto, fmt.Errorf("ngff: store holds a plate dataset: %w", ErrLayoutMismatch)
		}
		return LayoutFOV, nil
	default:
		return LayoutAuto, fmt.Errorf("ngff: unknown layout %s", layout)
	}
}

// readOnlyStore rejects every mutation on a dataset opened read-only.
type readOnlyStore struct {
	zarr.Store
}

func (readOnlyStore) Put(context.Context, string, io.Reader) error {
	return ErrReadOnly
}

func (readOnlyStore) Delete(context.Context, string) error {
	return ErrReadOnly
}
