package convert

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/openmicrodata/ngff/mmtiff"
	"github.com/openmicrodata/ngff/ngff"
	"github.com/openmicrodata/ngff/zarr"
)

// Converter drives one legacy-to-NGFF conversion run.
type Converter struct {
	cfg    *Config
	parser mmtiff.PageParser
	logger *slog.Logger
}

// Option configures a Converter.
type Option func(*Converter)

// WithParser overrides the container page parser. The default decodes
// Micro-Manager OME-TIFF.
func WithParser(parser mmtiff.PageParser) Option {
	return func(c *Converter) { c.parser = parser }
}

// WithLogger sets the run logger. The default is slog.Default.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Converter) { c.logger = logger }
}

// New returns a Converter for the given configuration.
func New(cfg *Config, opts ...Option) *Converter {
	c := &Converter{
		cfg:    cfg,
		parser: mmtiff.MicroManagerParser{},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Report summarizes one conversion run.
type Report struct {
	JobID     string
	Positions int
	Planes    int
	Skipped   []int // positions with no indexed planes
}

// provenance is the record stamped into the dataset's root attributes.
type provenance struct {
	JobID     string   `json:"jobId"`
	Tool      string   `json:"tool"`
	StartedAt string   `json:"startedAt"`
	Sources   []string `json:"sources"`
}

// Run indexes the input containers, assembles every position, and writes
// the dataset: one plate with a single row, one well per position, each
// holding one dense (T, C, Z, Y, X) image array.
func (c *Converter) Run(ctx context.Context) (*Report, error) {
	files, err := c.cfg.resolveFiles()
	if err != nil {
		return nil, err
	}
	idx, err := c.buildIndex(ctx, files)
	if err != nil {
		return nil, err
	}
	ext := idx.Extent()

	channelNames := c.cfg.Output.ChannelNames
	if len(channelNames) == 0 {
		channelNames = make([]string, ext.Channels)
		for i := range channelNames {
			channelNames[i] = "channel_" + strconv.Itoa(i)
		}
	}
	if len(channelNames) < ext.Channels {
		return nil, fmt.Errorf("convert: %d channel names configured for %d indexed channels",
			len(channelNames), ext.Channels)
	}

	store, err := zarr.NewFS(c.cfg.Output.Path)
	if err != nil {
		return nil, fmt.Errorf("convert: opening output store: %w", err)
	}
	mode := ngff.CreateExclusive
	if c.cfg.Output.Overwrite {
		mode = ngff.CreateOverwrite
	}
	plate, err := ngff.OpenPlate(ctx, store,
		ngff.WithMode(mode),
		ngff.WithChannelNames(channelNames...),
		ngff.WithLogger(c.logger),
	)
	if err != nil {
		return nil, err
	}

	report := &Report{JobID: uuid.NewString()}
	assembler := c.assembler(idx)
	for p := 0; p < ext.Positions; p++ {
		stack, err := assembler.Assemble(ctx, p)
		if errors.Is(err, mmtiff.ErrCoordinateNotFound) {
			c.logger.Warn("skipping position with no indexed planes", "position", p)
			report.Skipped = append(report.Skipped, p)
			continue
		}
		if err != nil {
			return nil, err
		}
		if err := c.writePosition(ctx, plate, stack); err != nil {
			return nil, err
		}
		report.Positions++
		report.Planes += stack.Extent.Times * stack.Extent.Channels * stack.Extent.Slices
	}

	record := provenance{
		JobID:     report.JobID,
		Tool:      "ngff-convert",
		StartedAt: time.Now().UTC().Format(time.RFC3339),
		Sources:   files,
	}
	if err := plate.Group().UpdateAttrs(ctx, map[string]any{"provenance": record}); err != nil {
		return nil, fmt.Errorf("convert: recording provenance: %w", err)
	}
	return report, nil
}

// buildIndex loads the index from the configured cache when present,
// otherwise scans the containers and fills the cache.
func (c *Converter) buildIndex(ctx context.Context, files []string) (*mmtiff.Index, error) {
	cachePath := c.cfg.Input.CachePath
	if cachePath != "" {
		if _, err := os.Stat(cachePath); err == nil {
			c.logger.Info("loading index cache", "path", cachePath)
			return mmtiff.LoadCache(cachePath, mmtiff.WithLogger(c.logger))
		}
	}
	idx, err := mmtiff.BuildIndex(ctx, c.parser, files, mmtiff.WithLogger(c.logger))
	if err != nil {
		return nil, err
	}
	if cachePath != "" {
		if err := mmtiff.SaveCache(cachePath, idx); err != nil {
			return nil, err
		}
	}
	return idx, nil
}

func (c *Converter) assembler(idx *mmtiff.Index) *mmtiff.Assembler {
	var opts []mmtiff.AssemblerOption
	if c.cfg.FillMissing {
		opts = append(opts, mmtiff.WithFillMissing())
	}
	return mmtiff.NewAssembler(idx, opts...)
}

// writePosition writes one assembled stack as well "0/<position>" holding a
// single position group with one image array named "0".
func (c *Converter) writePosition(ctx context.Context, plate *ngff.Plate, stack *mmtiff.PositionStack) error {
	pos, err := plate.CreatePosition(ctx, "0", strconv.Itoa(stack.Position), "0")
	if err != nil {
		return err
	}
	var opts []ngff.ImageOption
	if len(c.cfg.Output.Chunks) > 0 {
		opts = append(opts, ngff.WithChunks(c.cfg.Output.Chunks))
	}
	if c.cfg.Output.ZstdLevel > 0 {
		opts = append(opts, ngff.WithCompressor(zarr.ZstdCompressor(c.cfg.Output.ZstdLevel)))
	}
	_, err = pos.CreateImage(ctx, "0", stack.Data, stack.Shape(), stack.Dtype(), opts...)
	if err != nil {
		return fmt.Errorf("convert: writing position %d: %w", stack.Position, err)
	}
	return nil
}
