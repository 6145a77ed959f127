// Package snapshot reads and writes the binary world description format used
// for scene files and prefabs.
//
// Loading happens in two steps. ReadWorldDescription parses a stream into a
// Description without touching any world; Instantiate then creates the
// entities and components in a world, as many times as needed.
package snapshot

import (
	"context"
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/zeusync/worldcore/internal/core/models"
	"github.com/zeusync/worldcore/internal/core/observability/log"
	"github.com/zeusync/worldcore/internal/core/observability/metrics"
	"github.com/zeusync/worldcore/internal/core/world"
	"github.com/zeusync/worldcore/pkg/encoding"
)

// preallocation cap for counts read from the stream
const maxPrealloc = 1024

// Options carries the process-scoped registries a load resolves against.
type Options struct {
	Types   *world.TypeRegistry
	Tags    *world.TagRegistry
	Logger  log.Log
	Metrics *metrics.Metrics
	// Source names the file or asset in errors and logs.
	Source string
}

// EntityRecord is one serialized entity. ParentIndex refers to the position
// in instantiation order (roots first, then children), starting at 1.
type EntityRecord struct {
	ParentIndex uint32
	Desc        models.EntityDesc
}

// TypeEntry is one row of the type table. Type is nil when the name did not
// resolve; its blob is then skipped.
type TypeEntry struct {
	Name    string
	Version uint32
	Type    *world.ComponentType

	offset, length int
}

// Description is a parsed snapshot, independent of any world.
type Description struct {
	Version           uint32
	Source            string
	Roots             []EntityRecord
	Children          []EntityRecord
	Types             []TypeEntry
	MaxComponentIndex uint32

	blob    []byte
	loadID  string
	logger  log.Log
	metrics *metrics.Metrics
}

// EntityCount returns the number of entities one instantiation creates.
func (d *Description) EntityCount() int {
	return len(d.Roots) + len(d.Children)
}

// Unknown lists the type names that did not resolve.
func (d *Description) Unknown() []string {
	var out []string
	for _, t := range d.Types {
		if t.Type == nil {
			out = append(out, t.Name)
		}
	}
	return out
}

type reader struct {
	r       *encoding.Reader
	version uint32
	tags    []models.TagID
}

// ReadWorldDescription parses a snapshot from r. Tag names are merged into
// opts.Tags; type names are resolved against opts.Types.
func ReadWorldDescription(ctx context.Context, r io.Reader, opts Options) (*Description, error) {
	start := time.Now()
	d := &Description{
		Source:  opts.Source,
		loadID:  uuid.NewString(),
		metrics: opts.Metrics,
		logger:  opts.Logger,
	}
	if d.logger == nil {
		d.logger = log.NewNop()
	}
	ctx = log.WithLoadID(ctx, d.loadID)
	d.logger = d.logger.Named("snapshot").WithContext(ctx).With(log.String("source", opts.Source))

	stage, err := d.read(&reader{r: encoding.NewReader(r)}, opts)
	if err != nil {
		de := newDecodeError(stage, opts.Source, err)
		d.logger.Error("snapshot decode failed", log.String("stage", string(de.Stage)), log.Error(de.Cause))
		d.metrics.ObserveLoad(string(de.Stage), metrics.ResultFailed)
		return nil, de
	}

	d.metrics.ObserveLoad("read", metrics.ResultOK)
	d.logger.Debug("snapshot read",
		log.Uint32("version", d.Version),
		log.Int("entities", d.EntityCount()),
		log.Int("types", len(d.Types)),
		log.Duration("elapsed", time.Since(start)),
	)
	return d, nil
}

func (d *Description) read(rd *reader, opts Options) (Stage, error) {
	version, err := rd.r.U32()
	if err != nil {
		return StageHeader, err
	}
	if version == 0 || version > MaxVersion {
		return StageHeader, ErrUnsupportedVersion
	}
	d.Version, rd.version = version, version

	if version >= VersionTags {
		if err = rd.readTags(opts.Tags); err != nil {
			return StageTags, err
		}
	}

	var counts [4]uint32
	for i := range counts {
		if counts[i], err = rd.r.U32(); err != nil {
			return StageHeader, err
		}
	}
	rootCount, childCount, typeCount := counts[0], counts[1], counts[2]
	d.MaxComponentIndex = counts[3]

	if d.Roots, err = rd.readEntities(rootCount, false, 0); err != nil {
		return StageEntities, err
	}
	if d.Children, err = rd.readEntities(childCount, true, rootCount); err != nil {
		return StageEntities, err
	}

	if d.Types, err = rd.readTypes(typeCount, opts.Types); err != nil {
		return StageTypes, err
	}
	for _, t := range d.Types {
		if t.Type == nil {
			d.logger.Warn("skipping component type",
				log.String("type", t.Name),
				log.Uint32("type_version", t.Version),
				log.Error(ErrUnknownComponentType),
			)
			d.metrics.UnknownType(t.Name)
		}
	}

	if err = d.readBlob(rd); err != nil {
		return StageBlob, err
	}
	return "", nil
}

func (rd *reader) readTags(registry *world.TagRegistry) error {
	n, err := rd.r.U32()
	if err != nil {
		return err
	}
	rd.tags = make([]models.TagID, 0, min(n, maxPrealloc))
	for range n {
		name, err := rd.r.Text()
		if err != nil {
			return err
		}
		rd.tags = append(rd.tags, registry.Intern(name))
	}
	return nil
}

// readEntities reads n records. base is the number of entities preceding
// them in instantiation order.
func (rd *reader) readEntities(n uint32, children bool, base uint32) ([]EntityRecord, error) {
	out := make([]EntityRecord, 0, min(n, maxPrealloc))
	for i := range n {
		rec, err := rd.readEntity()
		if err != nil {
			return nil, err
		}
		if children {
			// a child may only refer to a root or an earlier child
			self := base + 1 + i
			if rec.ParentIndex == 0 || rec.ParentIndex >= self {
				return nil, corrupt("child %d has parent index %d", self, rec.ParentIndex)
			}
		}
		out = append(out, rec)
	}
	return out, nil
}

func (rd *reader) readEntity() (rec EntityRecord, err error) {
	r := rd.r
	if rec.ParentIndex, err = r.U32(); err != nil {
		return rec, err
	}
	desc := &rec.Desc
	if desc.Name, err = r.Text(); err != nil {
		return rec, err
	}
	if rd.version >= VersionGlobalKey {
		if desc.GlobalKey, err = r.Text(); err != nil {
			return rec, err
		}
	}
	if desc.Local, err = readTransform(r); err != nil {
		return rec, err
	}
	if desc.Active, err = r.Bool(); err != nil {
		return rec, err
	}
	if desc.Dynamic, err = r.Bool(); err != nil {
		return rec, err
	}
	if rd.version >= VersionTags {
		n, err := r.U32()
		if err != nil {
			return rec, err
		}
		for range n {
			idx, err := r.U32()
			if err != nil {
				return rec, err
			}
			if int64(idx) >= int64(len(rd.tags)) {
				return rec, corrupt("tag index %d out of %d", idx, len(rd.tags))
			}
			desc.Tags = append(desc.Tags, rd.tags[idx])
		}
	}
	if rd.version >= VersionTeam {
		team, err := r.U16()
		if err != nil {
			return rec, err
		}
		desc.Team = models.TeamID(team)
	}
	return rec, nil
}

func readTransform(r *encoding.Reader) (models.Transform, error) {
	var f [11]float32
	for i := range f {
		v, err := r.F32()
		if err != nil {
			return models.Transform{}, err
		}
		f[i] = v
	}
	return models.Transform{
		Position:     models.Vec3{X: f[0], Y: f[1], Z: f[2]},
		Rotation:     models.Quat{X: f[3], Y: f[4], Z: f[5], W: f[6]},
		Scale:        models.Vec3{X: f[7], Y: f[8], Z: f[9]},
		UniformScale: f[10],
	}, nil
}

func (rd *reader) readTypes(n uint32, registry *world.TypeRegistry) ([]TypeEntry, error) {
	out := make([]TypeEntry, 0, min(n, maxPrealloc))
	seen := make(map[string]bool)
	for range n {
		name, err := rd.r.Text()
		if err != nil {
			return nil, err
		}
		version, err := rd.r.U32()
		if err != nil {
			return nil, err
		}
		if seen[name] {
			return nil, corrupt("type %q listed twice", name)
		}
		seen[name] = true

		entry := TypeEntry{Name: name, Version: version}
		if ct, ok := registry.Lookup(name); ok {
			entry.Type = ct
		}
		out = append(out, entry)
	}
	return out, nil
}

// readBlob copies the blobs of known types into one buffer and skips the
// rest by their declared length.
func (d *Description) readBlob(rd *reader) error {
	var blob []byte
	var declared uint64
	for i := range d.Types {
		t := &d.Types[i]
		n, err := rd.r.U32()
		if err != nil {
			return err
		}
		declared += uint64(n)
		if t.Type == nil {
			if err := rd.r.Skip(n); err != nil {
				return err
			}
			continue
		}
		data, err := rd.r.Bytes(n)
		if err != nil {
			return err
		}
		t.offset, t.length = len(blob), len(data)
		blob = append(blob, data...)
	}
	// every record takes at least nine bytes, so a larger index cannot be dense
	if uint64(d.MaxComponentIndex) > declared {
		return corrupt("max component index %d exceeds blob size %d", d.MaxComponentIndex, declared)
	}
	d.blob = blob
	return nil
}
