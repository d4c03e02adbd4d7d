package sequester

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"

	"github.com/liquidgecka/seriespack/internal/sloghelper"
	"github.com/liquidgecka/seriespack/manifest"
	"github.com/liquidgecka/seriespack/normalize"
	"github.com/liquidgecka/seriespack/report"
)

const (
	DefaultOpenBucket = "s3://open-data-midrc/"
	DefaultSeqBucket  = "s3://sequestered-data-midrc/"
)

// The authz given to packages of cases classified Ignore.
var DefaultIgnoreAuthz = []string{"/programs/TCIA"}

// The output set a package record is routed to.
type Class int

const (
	ClassOpen Class = iota
	ClassSeq
	ClassRemove
	ClassMissing
)

// Every class in output order.
var Classes = []Class{ClassOpen, ClassSeq, ClassRemove, ClassMissing}

func (c Class) String() string {
	switch c {
	case ClassOpen:
		return "open"
	case ClassSeq:
		return "seq"
	case ClassRemove:
		return "remove"
	case ClassMissing:
		return "missing"
	default:
		return "unknown"
	}
}

// Settings for a Splitter.
type Settings struct {
	// The master case classification. Required.
	Classification Classification

	// Studies and cases routed to the remove output. May be nil.
	ExcludeStudies Set
	ExcludeCases   Set

	// Organizations supply the authz scopes. The organization of a batch
	// is named by the batch directory. Nil uses the built in table.
	Organizations *normalize.Organizations

	// Bucket URIs prepended to the url of open and sequestered packages.
	// Defaults are DefaultOpenBucket and DefaultSeqBucket.
	OpenBucket string
	SeqBucket  string

	// The authz of Ignore packages. Defaults to DefaultIgnoreAuthz.
	IgnoreAuthz []string

	// Prefix of every GUID. Defaults to DefaultGUIDPrefix.
	GUIDPrefix string

	// Logging output. May be nil.
	Logger *slog.Logger
}

// Routes package records into the open, seq, remove and missing outputs.
type Splitter struct {
	classification Classification
	excludeStudies Set
	excludeCases   Set
	orgs           *normalize.Organizations
	openBucket     string
	seqBucket      string
	ignoreAuthz    string
	guidPrefix     string
	log            *slog.Logger
}

func New(settings *Settings) *Splitter {
	if settings.Classification == nil {
		panic("settings.Classification is required.")
	}
	s := &Splitter{
		classification: settings.Classification,
		excludeStudies: settings.ExcludeStudies,
		excludeCases:   settings.ExcludeCases,
		orgs:           settings.Organizations,
		openBucket:     settings.OpenBucket,
		seqBucket:      settings.SeqBucket,
		guidPrefix:     settings.GUIDPrefix,
		log:            sloghelper.OrDiscard(settings.Logger),
	}
	if s.orgs == nil {
		s.orgs = normalize.DefaultOrganizations()
	}
	if s.openBucket == "" {
		s.openBucket = DefaultOpenBucket
	}
	if s.seqBucket == "" {
		s.seqBucket = DefaultSeqBucket
	}
	if s.guidPrefix == "" {
		s.guidPrefix = DefaultGUIDPrefix
	}
	if settings.IgnoreAuthz != nil {
		s.ignoreAuthz = normalize.FormatAuthz(settings.IgnoreAuthz)
	} else {
		s.ignoreAuthz = normalize.FormatAuthz(DefaultIgnoreAuthz)
	}
	return s
}

// Returns the organization whose scopes apply to a batch.
func (s *Splitter) Organization(batch string) *normalize.Organization {
	return s.orgs.Lookup(batch)
}

// Assigns authz, url and guid to a record and returns the class it
// belongs to. Exclusions take precedence over classification. Records
// that are excluded or unclassified get no guid.
func (s *Splitter) Route(
	org *normalize.Organization,
	record *manifest.PackageRecord,
) (Class, error) {
	series, err := record.Series()
	if err != nil {
		return 0, err
	}

	// Study ids may carry a submitter prefix ("prefix_1.2.840...").
	studyID := series.StudyID
	if i := strings.LastIndexByte(studyID, '_'); i >= 0 {
		studyID = studyID[i+1:]
	}

	dataset := s.classification.Lookup(series.CaseID)
	excluded := s.excludeStudies.Contains(studyID) || s.excludeCases.Contains(series.CaseID)
	bucket := ""
	switch dataset {
	case Open, Seq:
		// Excluded records are removed before any scope is needed.
		if !org.HasScopes() && !excluded {
			return 0, ErrMissingScope{Organization: org.Name, Dataset: dataset}
		}
		scopes := org.SeqAuthz
		bucket = s.seqBucket
		if dataset == Open {
			scopes = org.OpenAuthz
			bucket = s.openBucket
		}
		record.Authz = ""
		if len(scopes) > 0 {
			record.Authz = normalize.FormatAuthz(scopes)
		}
	case Ignore:
		bucket = s.openBucket
		record.Authz = s.ignoreAuthz
	default:
		record.Authz = ""
	}
	record.URL = bucket + record.URL

	if excluded {
		return ClassRemove, nil
	}
	switch dataset {
	case Open, Ignore:
		record.GUID = GUID(s.guidPrefix, record.MD5, record.Size)
		return ClassOpen, nil
	case Seq:
		record.GUID = GUID(s.guidPrefix, record.MD5, record.Size)
		return ClassSeq, nil
	default:
		return ClassMissing, nil
	}
}

// The records routed to each class, in the order they were routed.
type Outputs struct {
	Batch   string
	Records [ClassMissing + 1][]manifest.PackageRecord
}

func (o *Outputs) Add(c Class, record manifest.PackageRecord) {
	o.Records[c] = append(o.Records[c], record)
}

// Returns the number of records in each class.
func (o *Outputs) Len(c Class) int {
	return len(o.Records[c])
}

// Returns the file name a class is written to.
func OutputName(c Class, batch string) string {
	return fmt.Sprintf("packages_%s_%s.tsv", c, batch)
}

// Writes one file per non-empty class into dir and removes files left by
// earlier runs for classes that are now empty. Returns the written paths.
func (o *Outputs) Write(dir string) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	var written []string
	for _, c := range Classes {
		p := filepath.Join(dir, OutputName(c, o.Batch))
		if len(o.Records[c]) == 0 {
			if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
				return written, err
			}
			continue
		}
		fd, err := os.Create(p)
		if err != nil {
			return written, err
		}
		if err := manifest.WritePackages(fd, o.Records[c]); err != nil {
			fd.Close()
			return written, errors.Wrapf(err, "writing %s", p)
		}
		if err := fd.Close(); err != nil {
			return written, err
		}
		written = append(written, p)
	}
	return written, nil
}

// Returns the batch name of a batch directory, its last path element.
func BatchName(batchDir string) string {
	return filepath.Base(filepath.Clean(batchDir))
}

// Routes every record in one package record file. A file that can not be
// read or holds an unparsable record contributes nothing to outputs.
func (s *Splitter) splitFile(
	ctx context.Context,
	org *normalize.Organization,
	p string,
	outputs *Outputs,
) report.Result {
	result := report.Result{Unit: filepath.Base(p)}
	fd, err := os.Open(p)
	if err != nil {
		result.Status = report.Failed
		result.Err = err
		return result
	}
	records, err := manifest.ReadPackages(p, fd)
	fd.Close()
	if err != nil {
		result.Status = report.Failed
		result.Err = err
		result.Reason = "reading package records"
		return result
	}
	classes := make([]Class, len(records))
	for i := range records {
		c, err := s.Route(org, &records[i])
		if err != nil {
			result.Err = errors.Wrap(err, records[i].FileName)
			if _, ok := err.(ErrMissingScope); ok {
				result.Status = report.Fatal
				result.Reason = "missing authz scope"
			} else {
				result.Status = report.Failed
				result.Reason = "bad package record"
			}
			return result
		}
		classes[i] = c
	}
	for i := range records {
		outputs.Add(classes[i], records[i])
		s.log.LogAttrs(
			ctx,
			slog.LevelDebug,
			"Routed package.",
			sloghelper.String("file_name", records[i].FileName),
			sloghelper.String("class", classes[i].String()))
	}
	result.Status = report.Success
	result.Files = len(records)
	return result
}

// Routes every package record under {batchDir}/packages and writes the
// outputs to {batchDir}/to_index. Unreadable record files are reported in
// the summary. A missing scope is fatal: nothing is written and an error
// is returned.
func (s *Splitter) Run(ctx context.Context, batchDir string) (*report.Summary, *Outputs, error) {
	packageDir := filepath.Join(batchDir, "packages")
	if st, err := os.Stat(packageDir); err != nil || !st.IsDir() {
		return nil, nil, errors.Errorf("Packages dir does not exist: %s", packageDir)
	}
	files, err := filepath.Glob(filepath.Join(packageDir, "*.txt"))
	if err != nil {
		return nil, nil, err
	}
	batch := BatchName(batchDir)
	org := s.Organization(batch)
	s.log.LogAttrs(
		ctx,
		slog.LevelInfo,
		"Splitting batch.",
		sloghelper.String("batch", batch),
		sloghelper.String("organization", org.Name),
		sloghelper.Int("files", len(files)))

	summary := report.NewSummary("split")
	outputs := &Outputs{Batch: batch}
	for _, p := range files {
		if err := ctx.Err(); err != nil {
			return summary, nil, err
		}
		result := s.splitFile(ctx, org, p, outputs)
		summary.Add(result)
		if result.Status == report.Fatal {
			summary.Log(ctx, s.log)
			return summary, nil, result.Err
		}
	}

	written, err := outputs.Write(filepath.Join(batchDir, "to_index"))
	if err != nil {
		return summary, outputs, err
	}
	s.log.LogAttrs(
		ctx,
		slog.LevelInfo,
		"Split complete.",
		sloghelper.Int("open", outputs.Len(ClassOpen)),
		sloghelper.Int("seq", outputs.Len(ClassSeq)),
		sloghelper.Int("remove", outputs.Len(ClassRemove)),
		sloghelper.Int("missing", outputs.Len(ClassMissing)),
		sloghelper.Int("outputs", len(written)))
	summary.Log(ctx, s.log)
	return summary, outputs, nil
}
