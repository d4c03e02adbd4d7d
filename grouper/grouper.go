package grouper

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"github.com/disiqueira/gotree/v3"
	"github.com/pkg/errors"

	"github.com/liquidgecka/seriespack/internal/sloghelper"
	"github.com/liquidgecka/seriespack/manifest"
)

// Returned when the instances do not form a strict case/study/series tree:
// a series (or study) appears under two different parents.
type ErrTreeViolation struct {
	Level  string
	ID     string
	First  string
	Second string
}

func (e ErrTreeViolation) Error() string {
	return fmt.Sprintf(
		"%s %s appears under both %s and %s.",
		e.Level,
		e.ID,
		e.First,
		e.Second)
}

// Options control how Group writes its output.
type Options struct {
	// Append adds rows to series manifests that already exist instead of
	// rebuilding the cases tree. Running twice against the same output
	// directory then duplicates every row, so this should only be used
	// when the caller clears the output itself.
	Append bool

	// Logging output. May be nil.
	Logger *slog.Logger
}

// The instances of a submission partitioned by series.
type Partition struct {
	// Series in the order each was first seen.
	Series []manifest.Series

	// Instances per series, in input order.
	Instances map[manifest.Series][]manifest.Instance
}

// Splits instances by series, checking that every id is usable as a path
// component and that the ids form a strict tree.
func Split(instances []manifest.Instance) (*Partition, error) {
	p := &Partition{
		Instances: make(map[manifest.Series][]manifest.Instance),
	}
	seriesParent := make(map[string]manifest.Series)
	studyParent := make(map[string]string)
	for _, inst := range instances {
		s := inst.Series()
		if _, ok := p.Instances[s]; !ok {
			if err := s.Validate(); err != nil {
				return nil, err
			}
			if prev, ok := seriesParent[s.SeriesID]; ok {
				return nil, ErrTreeViolation{
					Level:  "Series",
					ID:     s.SeriesID,
					First:  prev.CaseID + "/" + prev.StudyID,
					Second: s.CaseID + "/" + s.StudyID,
				}
			}
			if prev, ok := studyParent[s.StudyID]; ok && prev != s.CaseID {
				return nil, ErrTreeViolation{
					Level:  "Study",
					ID:     s.StudyID,
					First:  prev,
					Second: s.CaseID,
				}
			}
			seriesParent[s.SeriesID] = s
			studyParent[s.StudyID] = s.CaseID
			p.Series = append(p.Series, s)
		}
		p.Instances[s] = append(p.Instances[s], inst)
	}
	return p, nil
}

// The manifest paths, relative to the batch directory, in series order.
func (p *Partition) Paths() []string {
	paths := make([]string, len(p.Series))
	for i, s := range p.Series {
		paths[i] = s.ManifestPath()
	}
	return paths
}

// Renders the case/study/series tree with instance counts.
func (p *Partition) Tree(root string) string {
	tree := gotree.New(root)
	cases := make(map[string]gotree.Tree)
	studies := make(map[string]gotree.Tree)
	for _, s := range p.Series {
		c, ok := cases[s.CaseID]
		if !ok {
			c = tree.Add(s.CaseID)
			cases[s.CaseID] = c
		}
		st, ok := studies[s.StudyID]
		if !ok {
			st = c.Add(s.StudyID)
			studies[s.StudyID] = st
		}
		st.Add(s.SeriesID + " (" + strconv.Itoa(len(p.Instances[s])) + " files)")
	}
	return tree.Print()
}

// Partitions instances by series and writes one manifest per series to
// {batchDir}/cases/{case}/{study}/{series}.tsv followed by
// {batchDir}/packages.txt. Unless opts.Append is set any previous cases
// tree is removed first so that running twice produces the same output.
func Group(
	ctx context.Context,
	instances []manifest.Instance,
	batchDir string,
	opts Options,
) (*Partition, error) {
	l := sloghelper.OrDiscard(opts.Logger)
	p, err := Split(instances)
	if err != nil {
		return nil, err
	}
	casesDir := filepath.Join(batchDir, "cases")
	if !opts.Append {
		if err := os.RemoveAll(casesDir); err != nil {
			return nil, errors.Wrap(err, "clearing previous output")
		}
	}
	if err := os.MkdirAll(batchDir, 0o755); err != nil {
		return nil, err
	}
	for _, s := range p.Series {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := writeSeries(batchDir, s, p.Instances[s]); err != nil {
			return nil, err
		}
	}
	if err := writeList(batchDir, p.Paths()); err != nil {
		return nil, err
	}
	l.LogAttrs(
		ctx,
		slog.LevelInfo,
		"Wrote series manifests.",
		sloghelper.String("batch_dir", batchDir),
		sloghelper.Int("series", len(p.Series)),
		sloghelper.Int("instances", len(instances)))
	return p, nil
}

func writeSeries(
	batchDir string,
	s manifest.Series,
	instances []manifest.Instance,
) error {
	p := filepath.Join(batchDir, filepath.FromSlash(s.ManifestPath()))
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}
	fd, err := os.OpenFile(p, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	st, err := fd.Stat()
	if err != nil {
		fd.Close()
		return err
	}
	if st.Size() == 0 {
		err = manifest.WriteInstances(fd, instances)
	} else {
		err = manifest.AppendInstances(fd, instances)
	}
	if err != nil {
		fd.Close()
		return errors.Wrapf(err, "writing %s", p)
	}
	return fd.Close()
}

func writeList(batchDir string, paths []string) error {
	p := filepath.Join(batchDir, manifest.SeriesListName)
	fd, err := os.Create(p)
	if err != nil {
		return err
	}
	if err := manifest.WriteSeriesList(fd, paths); err != nil {
		fd.Close()
		return errors.Wrapf(err, "writing %s", p)
	}
	return fd.Close()
}
