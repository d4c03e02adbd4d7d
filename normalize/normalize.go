package normalize

import (
	"context"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"

	"github.com/liquidgecka/seriespack/internal/sloghelper"
	"github.com/liquidgecka/seriespack/manifest"
)

// Settings for a Normalizer.
type Settings struct {
	// The organization table. Nil uses DefaultOrganizations().
	Organizations *Organizations

	// Logging output. May be nil.
	Logger *slog.Logger
}

// Turns a submission directory into one canonical instance table.
type Normalizer struct {
	orgs *Organizations
	log  *slog.Logger
}

// The outcome of normalizing one submission.
type Result struct {
	Submission   string
	Organization *Organization

	// The instance manifests that were read, in the order concatenated.
	Manifests []string

	// Canonical instances in manifest order, exact duplicates removed.
	Instances []manifest.Instance

	// Rows removed as exact duplicates of an earlier row.
	Duplicates int

	// Rows dropped because no series side table supplied their study.
	Unmatched int
}

func New(settings *Settings) *Normalizer {
	if settings == nil {
		panic("settings is required.")
	}
	orgs := settings.Organizations
	if orgs == nil {
		orgs = DefaultOrganizations()
	}
	return &Normalizer{
		orgs: orgs,
		log:  sloghelper.OrDiscard(settings.Logger),
	}
}

// Returns the organization that a submission belongs to.
func (n *Normalizer) Organization(submission string) *Organization {
	return n.orgs.Lookup(submission)
}

// Normalizes the submission stored in dir. Every file matching the
// organization's manifest patterns is read, unless the organization is
// limited to a single manifest.
func (n *Normalizer) Normalize(
	ctx context.Context,
	submission string,
	dir string,
) (*Result, error) {
	org := n.orgs.Lookup(submission)
	l := n.log.With(
		sloghelper.String("submission", submission),
		sloghelper.String("organization", org.Name))
	if st, err := os.Stat(dir); err != nil {
		return nil, errors.Wrap(err, "submission directory")
	} else if !st.IsDir() {
		return nil, errors.Errorf("%s is not a directory.", dir)
	}

	// Find the instance manifests.
	paths, err := n.findManifests(org, dir)
	if err != nil {
		return nil, err
	}
	tables := make([]*manifest.Table, 0, len(paths))
	for _, p := range paths {
		l.LogAttrs(
			ctx,
			slog.LevelInfo,
			"Reading instance manifest.",
			sloghelper.String("manifest", p))
		t, err := readTable(p)
		if err != nil {
			return nil, err
		}
		t.Rename(org.Renames)
		tables = append(tables, t)
	}
	table := tables[0]
	if len(tables) > 1 {
		table = manifest.Concat(dir, tables...)
	}

	result := &Result{
		Submission:   submission,
		Organization: org,
		Manifests:    paths,
	}

	// Older submissions carry the study in separate series tables.
	if !table.Has("study_id") && len(org.SeriesPatterns) > 0 {
		if err := n.joinSeries(ctx, l, org, dir, table, result); err != nil {
			return nil, err
		}
	}

	if err := n.convert(table, result); err != nil {
		return nil, err
	}
	l.LogAttrs(
		ctx,
		slog.LevelInfo,
		"Normalized submission.",
		sloghelper.Int("instances", len(result.Instances)),
		sloghelper.Int("duplicates", result.Duplicates),
		sloghelper.Int("unmatched", result.Unmatched))
	return result, nil
}

// Returns the instance manifests in dir, sorted. Organizations that
// submit a single manifest fail with ErrAmbiguousInput when more than one
// file matches.
func (n *Normalizer) findManifests(org *Organization, dir string) ([]string, error) {
	matches, err := glob(dir, org.ManifestPatterns)
	if err != nil {
		return nil, errors.Wrapf(err, "searching %s", dir)
	}
	if len(org.SeriesPatterns) > 0 {
		series, err := glob(dir, org.SeriesPatterns)
		if err != nil {
			return nil, errors.Wrapf(err, "searching %s", dir)
		}
		matches = subtract(matches, series)
	}
	if len(matches) == 0 {
		return nil, ErrNoManifest(dir)
	} else if org.SingleManifest && len(matches) > 1 {
		return nil, ErrAmbiguousInput{Dir: dir, Matches: matches}
	}
	return matches, nil
}

func subtract(a, b []string) []string {
	drop := make(map[string]struct{}, len(b))
	for _, s := range b {
		drop[s] = struct{}{}
	}
	out := a[:0:0]
	for _, s := range a {
		if _, ok := drop[s]; !ok {
			out = append(out, s)
		}
	}
	return out
}

func readTable(p string) (*manifest.Table, error) {
	fd, err := os.Open(p)
	if err != nil {
		return nil, err
	}
	defer fd.Close()
	return manifest.ReadTable(p, fd)
}

type seriesKey struct {
	caseID   string
	seriesID string
}

// Adds a study_id column to table by inner joining every series side
// table on (case_id, series_id). Instance rows without a match are
// dropped; a series listed under several studies yields one row per study.
func (n *Normalizer) joinSeries(
	ctx context.Context,
	l *slog.Logger,
	org *Organization,
	dir string,
	table *manifest.Table,
	result *Result,
) error {
	files, err := glob(dir, org.SeriesPatterns)
	if err != nil {
		return errors.Wrapf(err, "searching %s", dir)
	}
	studies := make(map[seriesKey][]string)
	for _, f := range files {
		st, err := readTable(f)
		if err != nil {
			return err
		}
		st.Rename(org.SeriesRenames)
		if err := st.Require("case_id", "study_id", "series_id"); err != nil {
			return err
		}
		for _, row := range st.Rows {
			key := seriesKey{
				caseID:   st.Get(row, "case_id"),
				seriesID: st.Get(row, "series_id"),
			}
			study := st.Get(row, "study_id")
			if !contains(studies[key], study) {
				studies[key] = append(studies[key], study)
			}
		}
		l.LogAttrs(
			ctx,
			slog.LevelDebug,
			"Read series table.",
			sloghelper.String("file", f),
			sloghelper.Int("rows", len(st.Rows)))
	}
	if err := table.Require("case_id", "series_id"); err != nil {
		return err
	}

	caseIdx := table.Column("case_id")
	seriesIdx := table.Column("series_id")
	rows := make([][]string, 0, len(table.Rows))
	joined := make([]string, 0, len(table.Rows))
	for _, row := range table.Rows {
		matches := studies[seriesKey{caseID: row[caseIdx], seriesID: row[seriesIdx]}]
		if len(matches) == 0 {
			result.Unmatched += 1
			continue
		}
		for _, study := range matches {
			dup := make([]string, len(row), len(row)+1)
			copy(dup, row)
			rows = append(rows, dup)
			joined = append(joined, study)
		}
	}
	table.Rows = rows
	table.AddColumn("study_id", joined)
	if result.Unmatched > 0 {
		l.LogAttrs(
			ctx,
			slog.LevelWarn,
			"Instances without a matching series were dropped.",
			sloghelper.Int("dropped", result.Unmatched))
	}
	return nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// Converts the renamed table into canonical instances, removing exact
// duplicates.
func (n *Normalizer) convert(table *manifest.Table, result *Result) error {
	// Submissions that omit instance ids name each file after it.
	if !table.Has("instance_id") && table.Has("file_name") {
		fi := table.Column("file_name")
		ids := make([]string, len(table.Rows))
		for i, row := range table.Rows {
			ids[i] = strings.TrimSuffix(baseName(row[fi]), ".dcm")
		}
		table.AddColumn("instance_id", ids)
	}
	instances, err := manifest.InstancesFromTable(table)
	if err != nil {
		return err
	}
	seen := make(map[manifest.Instance]struct{}, len(instances))
	out := instances[:0]
	for _, inst := range instances {
		inst.FileName = baseName(inst.FileName)
		if _, ok := seen[inst]; ok {
			result.Duplicates += 1
			continue
		}
		seen[inst] = struct{}{}
		out = append(out, inst)
	}
	result.Instances = out
	return nil
}

// file_name values sometimes carry the submitter's directory layout; only
// the last path element names the file inside the archive.
func baseName(name string) string {
	return path.Base(filepath.ToSlash(name))
}

// Writes the canonical instance table to a file.
func (r *Result) WriteFile(p string) error {
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}
	fd, err := os.Create(p)
	if err != nil {
		return err
	}
	if err := manifest.WriteInstances(fd, r.Instances); err != nil {
		fd.Close()
		return errors.Wrapf(err, "writing %s", p)
	}
	return fd.Close()
}
