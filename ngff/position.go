package ngff

import (
	"context"
	"fmt"

	"github.com/openmicrodata/ngff/zarr"
)

// Position is the group level directly containing multiscale image arrays
// (one field of view). Its metadata document pairs the multiscale
// descriptions with an OMERO display block; both are flushed together.
type Position struct {
	node
	meta *ImagesMeta // nil until parsed or the first image is written
}

func newPosition(ctx context.Context, cfg nodeConfig) (*Position, error) {
	p := &Position{node: newNodeState(cfg)}
	if cfg.parseMeta {
		p.parseMeta(ctx)
	}
	return p, nil
}

// parseMeta loads the multiscales and OMERO documents. A malformed or
// missing document degrades to a warning: the arrays stay readable.
func (p *Position) parseMeta(ctx context.Context) {
	attrs, err := p.group.Attrs(ctx)
	if err == nil {
		var meta *ImagesMeta
		meta, err = ParseImagesMeta(attrs)
		if err == nil {
			p.meta = meta
			if meta.Omero != nil {
				names := make([]string, len(meta.Omero.Channels))
				for i, ch := range meta.Omero.Channels {
					names[i] = ch.Label
				}
				p.channelNames = names
			}
			p.axes = append([]AxisMeta(nil), meta.Multiscales[0].Axes...)
			return
		}
	}
	p.warnInvalidMeta(KindPosition, err)
}

// Kind returns KindPosition.
func (p *Position) Kind() NodeKind { return KindPosition }

// Metadata returns the current in-memory document, or nil for a position
// that has no image yet.
func (p *Position) Metadata() *ImagesMeta { return p.meta }

// Images returns the sorted names of all image arrays in the position.
func (p *Position) Images(ctx context.Context) ([]string, error) {
	return p.group.ArrayKeys(ctx)
}

// Image opens an image array by name.
func (p *Position) Image(ctx context.Context, name string) (*zarr.Array, error) {
	arr, err := zarr.OpenArray(ctx, p.group.Store(), imagePath(p.group, name))
	if err != nil {
		return nil, err
	}
	return arr, nil
}

func imagePath(group *zarr.Group, name string) string {
	if group.Path() == "" {
		return name
	}
	return group.Path() + "/" + name
}

// ImageOption configures CreateImage.
type ImageOption func(*imageConfig)

type imageConfig struct {
	chunks     []int
	transforms []TransformationMeta
	compressor *zarr.CompressorMeta
	skipCheck  bool
}

// WithChunks sets the chunk shape. Default: the trailing ZYX extent, padded
// with singleton leading dimensions.
func WithChunks(chunks []int) ImageOption {
	return func(c *imageConfig) { c.chunks = append([]int(nil), chunks...) }
}

// WithTransforms sets the coordinate transformations for the new image.
// Should be specified for non-native resolution levels; default identity.
func WithTransforms(transforms []TransformationMeta) ImageOption {
	return func(c *imageConfig) { c.transforms = append([]TransformationMeta(nil), transforms...) }
}

// WithCompressor overrides the default zstd level 1 chunk compressor.
func WithCompressor(compressor *zarr.CompressorMeta) ImageOption {
	return func(c *imageConfig) { c.compressor = compressor }
}

// WithoutShapeCheck disables rank and channel-count validation against the
// declared axes.
func WithoutShapeCheck() ImageOption {
	return func(c *imageConfig) { c.skipCheck = true }
}

// CreateImage writes a new image array and records it in the position
// document in one step. data is a dense C-order buffer; shape is the array
// extent, up to 5D.
func (p *Position) CreateImage(ctx context.Context, name string, data []byte, shape []int, dtype zarr.Dtype, opts ...ImageOption) (*zarr.Array, error) {
	cfg := &imageConfig{}
	for _, opt := range opts {
		opt(cfg)
	}
	if !cfg.skipCheck {
		if err := p.checkShape(shape); err != nil {
			return nil, err
		}
	}
	chunks := cfg.chunks
	if chunks == nil {
		zyx := shape[len(shape)-min(3, len(shape)):]
		chunks = padShape(zyx, len(shape))
	}
	compressor := cfg.compressor
	if compressor == nil {
		compressor = zarr.ZstdCompressor(1)
	}
	arr, err := zarr.CreateArray(ctx, p.group.Store(), imagePath(p.group, name), zarr.ArrayDef{
		Shape:      shape,
		Chunks:     chunks,
		Dtype:      dtype,
		Compressor: compressor,
	}, data, p.overwrite)
	if err != nil {
		return nil, err
	}
	if err := p.recordImage(ctx, name, cfg.transforms); err != nil {
		return nil, err
	}
	return arr, nil
}

// checkShape validates an image shape against the declared axes: the rank
// must match, and a declared channel axis must not exceed the channel-name
// count. Fewer channels than names is legal (channels may be appended
// later) and only logs a warning.
func (p *Position) checkShape(shape []int) error {
	if len(shape) != len(p.axes) {
		return fmt.Errorf("ngff: image has %d dimensions while the dataset has %d axes", len(shape), len(p.axes))
	}
	chAxis := findAxis(p.axes, "channel")
	if chAxis < 0 {
		p.logger.Info("dataset has no channel axis, skipping channel shape check", "path", p.group.Path())
		return nil
	}
	numCh := len(p.channelNames)
	if shape[chAxis] > numCh {
		return fmt.Errorf("ngff: image has %d channels while the dataset has %d", shape[chAxis], numCh)
	}
	if shape[chAxis] < numCh {
		p.logger.Warn("image has fewer channels than the dataset",
			"path", p.group.Path(), "image_channels", shape[chAxis], "dataset_channels", numCh)
	}
	return nil
}

// recordImage appends a dataset entry for the named image to the position
// document (building the document on the first image) and flushes it.
func (p *Position) recordImage(ctx context.Context, name string, transforms []TransformationMeta) error {
	if len(transforms) == 0 {
		transforms = []TransformationMeta{{Type: "identity"}}
	}
	entry := DatasetMeta{Path: name, CoordinateTransformations: transforms}
	if p.meta == nil {
		p.meta = &ImagesMeta{
			Multiscales: []MultiScaleMeta{{
				Version:  p.version,
				Name:     name,
				Axes:     append([]AxisMeta(nil), p.axes...),
				Datasets: []DatasetMeta{entry},
			}},
			Omero: p.omeroMeta(),
		}
		return p.DumpMeta(ctx)
	}
	for _, d := range p.meta.Multiscales[0].Datasets {
		if d.Path == name {
			return p.DumpMeta(ctx)
		}
	}
	p.meta.Multiscales[0].Datasets = append(p.meta.Multiscales[0].Datasets, entry)
	return p.DumpMeta(ctx)
}

func (p *Position) omeroMeta() *OMEROMeta {
	channels := make([]ChannelMeta, len(p.channelNames))
	for i, name := range p.channelNames {
		channels[i] = ChannelDisplay(name, nil, i == 0)
	}
	return &OMEROMeta{
		ID:       0,
		Name:     p.group.Name(),
		Version:  p.version,
		Channels: channels,
		RDefs:    &RDefsMeta{DefaultT: 0, DefaultZ: 0, Model: "color"},
	}
}

// DumpMeta flushes the in-memory document to the group attributes. Calling
// it twice without intervening mutation writes byte-identical documents.
func (p *Position) DumpMeta(ctx context.Context) error {
	if p.meta == nil {
		return fmt.Errorf("ngff: position %s has no metadata to dump", p.group.Path())
	}
	patch := map[string]any{multiscalesAttrKey: p.meta.Multiscales}
	if p.meta.Omero != nil {
		patch[omeroAttrKey] = p.meta.Omero
	}
	return p.group.UpdateAttrs(ctx, patch)
}

// AppendChannel appends a channel name to the end of the channel list,
// extending the OMERO display channels in the same flush. When resizeArrays
// is set, every image array grows one slot along its channel axis.
//
// The channel axis of each array is resolved against the right-aligned
// declared axes, matching the left-padding rule for arrays below the
// declared rank. An array created without a materialized channel axis is
// left-padded with a singleton channel dimension instead.
func (p *Position) AppendChannel(ctx context.Context, name string, resizeArrays bool) error {
	for _, existing := range p.channelNames {
		if existing == name {
			return fmt.Errorf("ngff: channel name %q %w", name, ErrAlreadyExists)
		}
	}
	chAxis := findAxis(p.axes, "channel")
	if resizeArrays {
		if chAxis < 0 {
			return fmt.Errorf("ngff: %w: no channel axis declared", ErrAxisInference)
		}
		names, err := p.Images(ctx)
		if err != nil {
			return err
		}
		for _, imgName := range names {
			if err := p.growChannelAxis(ctx, imgName, chAxis); err != nil {
				return err
			}
		}
	}
	p.channelNames = append(p.channelNames, name)
	if p.meta != nil && p.meta.Omero != nil {
		p.meta.Omero.Channels = append(p.meta.Omero.Channels, ChannelDisplay(name, nil, false))
		return p.DumpMeta(ctx)
	}
	return nil
}

// growChannelAxis grows one image array's channel axis by a single slot.
func (p *Position) growChannelAxis(ctx context.Context, imgName string, chAxis int) error {
	arr, err := p.Image(ctx, imgName)
	if err != nil {
		return err
	}
	shape := arr.Shape()
	effAxis := chAxis - (len(p.axes) - len(shape))
	switch {
	case effAxis >= 0 && effAxis < len(shape):
		shape[effAxis]++
		return arr.Resize(ctx, shape)
	case effAxis == -1:
		// Channel axis not materialized: left-pad with a singleton
		// channel dimension. Rank changes, so the array is rebuilt.
		return p.repadArray(ctx, arr, padShape(shape, len(shape)+1))
	default:
		return fmt.Errorf("ngff: %w for image %q with shape %v", ErrAxisInference, imgName, shape)
	}
}

// repadArray rewrites an array under a higher-rank shape with the same
// element content.
func (p *Position) repadArray(ctx context.Context, arr *zarr.Array, shape []int) error {
	data, err := arr.Read(ctx)
	if err != nil {
		return err
	}
	_, err = zarr.CreateArray(ctx, p.group.Store(), arr.Path(), zarr.ArrayDef{
		Shape:      shape,
		Chunks:     padShape(arr.Chunks(), len(shape)),
		Dtype:      arr.Dtype(),
		Compressor: zarr.ZstdCompressor(1),
	}, data, true)
	return err
}
