package archiver

import (
	"archive/zip"
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"

	"github.com/liquidgecka/seriespack/internal/backoff"
	"github.com/liquidgecka/seriespack/internal/journal"
	"github.com/liquidgecka/seriespack/internal/sloghelper"
	"github.com/liquidgecka/seriespack/internal/tracing"
	"github.com/liquidgecka/seriespack/internal/workqueue"
	"github.com/liquidgecka/seriespack/manifest"
	"github.com/liquidgecka/seriespack/normalize"
	"github.com/liquidgecka/seriespack/report"
	"github.com/liquidgecka/seriespack/storage"
	"github.com/liquidgecka/seriespack/storage/hasher"
)

// The number of series archived in parallel when Settings.Workers is not
// set.
const DefaultWorkers = 6

// Settings for an Archiver.
type Settings struct {
	// The stores objects are read from and archives are written to. These
	// may be the same store.
	Source      storage.Store
	Destination storage.Store

	// The bucket archives are uploaded to.
	DestinationBucket string

	// Determines how storage_urls are turned into source keys and which
	// bucket they are read from.
	Organization *normalize.Organization

	// Overrides Organization.SourceBucket when set.
	SourceBucket string

	// The number of series archived in parallel. Zero uses
	// DefaultWorkers, a negative value sizes the pool from the machine's
	// memory and CPU count.
	Workers int

	// The largest archive that will be built, in bytes. Zero is no limit.
	MaxArchiveSize int64

	// How every object fetch and archive upload is retried.
	Retry backoff.Retry

	// Records archived series so interrupted runs can resume. May be nil.
	Journal *journal.Journal

	// Archive every series even if it was archived before.
	Force bool

	// Logging output. May be nil.
	Logger *slog.Logger
}

// Builds one zip archive per series manifest and uploads it.
type Archiver struct {
	source       storage.Store
	dest         storage.Store
	destBucket   string
	sourceBucket string
	org          *normalize.Organization
	workers      int
	maxSize      int64
	retry        backoff.Retry
	journal      *journal.Journal
	force        bool
	log          *slog.Logger
}

func New(settings *Settings) *Archiver {
	if settings.Source == nil {
		panic("settings.Source is required.")
	} else if settings.Destination == nil {
		panic("settings.Destination is required.")
	} else if settings.DestinationBucket == "" {
		panic("settings.DestinationBucket is required.")
	} else if settings.Organization == nil {
		panic("settings.Organization is required.")
	}
	a := &Archiver{
		source:       settings.Source,
		dest:         settings.Destination,
		destBucket:   settings.DestinationBucket,
		sourceBucket: settings.SourceBucket,
		org:          settings.Organization,
		workers:      settings.Workers,
		maxSize:      settings.MaxArchiveSize,
		retry:        settings.Retry,
		journal:      settings.Journal,
		force:        settings.Force,
		log:          sloghelper.OrDiscard(settings.Logger),
	}
	if a.sourceBucket == "" {
		a.sourceBucket = a.org.SourceBucket
	}
	if a.workers == 0 {
		a.workers = DefaultWorkers
	} else if a.workers < 0 {
		a.workers = autoWorkers(a.maxSize)
	}
	if a.retry.Shared == nil {
		a.retry.Shared = &backoff.BackOff{
			Period: 30 * time.Second,
			X:      100 * time.Millisecond,
			Max:    10 * time.Second,
		}
	}
	return a
}

// Returns the number of series archived in parallel.
func (a *Archiver) Workers() int {
	return a.workers
}

// Rejects writes that would push the archive past limit.
type limitWriter struct {
	buf    *bytes.Buffer
	limit  int64
	series string
}

func (l *limitWriter) Write(data []byte) (int, error) {
	if l.limit > 0 && int64(l.buf.Len()+len(data)) > l.limit {
		return 0, ErrArchiveTooLarge{Series: l.series, Limit: l.limit}
	}
	return l.buf.Write(data)
}

// Builds and uploads the archive for one series. Objects that can not be
// fetched are left out of the archive and returned as missing; the
// returned record only lists the files that were written.
func (a *Archiver) Archive(
	ctx context.Context,
	s manifest.Series,
	instances []manifest.Instance,
) (*manifest.PackageRecord, []string, error) {
	l := a.log.With(sloghelper.Series(s.CaseID, s.StudyID, s.SeriesID))
	trace := tracing.New("series " + s.String())
	defer func() {
		trace.End()
		l.LogAttrs(
			ctx,
			slog.LevelDebug,
			"Series timing.",
			sloghelper.Duration("fetch", trace.Total("fetch")),
			sloghelper.Duration("upload", trace.Total("upload")),
			sloghelper.String("trace", trace.String()))
	}()

	buffer := &bytes.Buffer{}
	zw := zip.NewWriter(&limitWriter{
		buf:    buffer,
		limit:  a.maxSize,
		series: s.String(),
	})
	var missing []string
	contents := make([]manifest.Content, 0, len(instances))
	for _, inst := range instances {
		key := a.org.SourceKey(inst.StorageURL)
		fetch := trace.NewChild("fetch")
		var obj *storage.Object
		err := a.retry.Do(ctx, storage.IsPermanent, func(ctx context.Context) (err error) {
			obj, err = a.source.GetObject(ctx, a.sourceBucket, key)
			return err
		})
		fetch.End()
		if err != nil {
			if ctx.Err() != nil {
				return nil, missing, ctx.Err()
			}
			l.LogAttrs(
				ctx,
				slog.LevelWarn,
				"Object failed to download.",
				sloghelper.String("file_name", inst.FileName),
				sloghelper.String("bucket", a.sourceBucket),
				sloghelper.String("key", key),
				sloghelper.Error("error", err))
			missing = append(missing, inst.FileName)
			continue
		}

		name := s.SeriesID + "/" + inst.FileName
		w, err := zw.CreateHeader(&zip.FileHeader{
			Name:     name,
			Method:   zip.Store,
			Modified: obj.LastModified.UTC(),
		})
		if err != nil {
			return nil, missing, errors.Wrapf(err, "adding %s", name)
		}
		if _, err := w.Write(obj.Body); err != nil {
			return nil, missing, errors.Wrapf(err, "adding %s", name)
		}
		contents = append(contents, manifest.Content{
			Hashes:   manifest.Hashes{MD5Sum: inst.MD5Sum},
			FileName: name,
			Size:     inst.FileSize,
		})
	}
	if len(contents) == 0 {
		return nil, missing, ErrEmptyArchive(s.String())
	}
	if err := zw.Close(); err != nil {
		return nil, missing, errors.Wrap(err, "finishing archive")
	}

	// The recorded hash covers the complete archive.
	body := buffer.Bytes()
	h, _ := hasher.New(hasher.MD5, nil)
	h.Write(body)
	record := &manifest.PackageRecord{
		RecordType: manifest.PackageRecordType,
		MD5:        h.Hex(),
		Size:       h.Size(),
		URL:        s.ArchiveKey(),
		FileName:   s.ArchiveName(),
		Contents:   contents,
	}

	upload := trace.NewChild("upload")
	err := a.retry.Do(ctx, storage.IsPermanent, func(ctx context.Context) error {
		return a.dest.PutObject(ctx, a.destBucket, record.URL, body)
	})
	upload.End()
	if err != nil {
		return nil, missing, errors.Wrapf(err, "uploading %s", record.URL)
	}
	l.LogAttrs(
		ctx,
		slog.LevelInfo,
		"Uploaded series archive.",
		sloghelper.String("key", record.URL),
		sloghelper.Bytes("size", record.Size),
		sloghelper.Int("files", len(contents)),
		sloghelper.Int("missing", len(missing)))
	return record, missing, nil
}

// Archives the series named by one packages.txt entry and writes its
// package record to {batchDir}/packages/{series_id}.txt. A series whose
// record already exists, or that the journal shows was archived from an
// identical manifest, is skipped unless Force is set.
func (a *Archiver) Package(ctx context.Context, batchDir, entry string) report.Result {
	result := report.Result{Unit: entry}
	fail := func(err error, reason string) report.Result {
		result.Status = report.Failed
		result.Err = err
		result.Reason = reason
		return result
	}

	p := manifest.ResolveSeriesPath(batchDir, entry)
	s, err := manifest.ParseSeriesPath(p)
	if err != nil {
		return fail(err, "bad series path")
	}
	result.Unit = s.String()
	recordPath := filepath.Join(batchDir, filepath.FromSlash(s.RecordPath()))
	data, err := os.ReadFile(p)
	if err != nil {
		return fail(err, "reading series manifest")
	}
	fingerprint, err := hasher.Fingerprint(hasher.HighwayHash, data)
	if err != nil {
		return fail(err, "fingerprinting series manifest")
	}

	if !a.force {
		if _, err := os.Stat(recordPath); err == nil {
			result.Status = report.Skipped
			result.Reason = "package record exists"
			return result
		}
	}
	if done, err := a.archivedBefore(s, fingerprint); err != nil {
		return fail(err, "reading journal")
	} else if done != nil {
		if err := writeRecord(recordPath, done); err != nil {
			return fail(err, "writing package record")
		}
		result.Status = report.Skipped
		result.Reason = ReasonJournaled
		return result
	}

	instances, err := manifest.ReadInstances(p, bytes.NewReader(data))
	if err != nil {
		return fail(err, "reading series manifest")
	}
	record, missing, err := a.Archive(ctx, s, instances)
	result.Missing = missing
	if err != nil {
		a.log.LogAttrs(
			ctx,
			slog.LevelError,
			"Archive creation failed.",
			sloghelper.Series(s.CaseID, s.StudyID, s.SeriesID),
			sloghelper.Error("error", err))
		return fail(err, "archive creation failed")
	}
	if err := writeRecord(recordPath, record); err != nil {
		return fail(err, "writing package record")
	}
	a.remember(ctx, s, fingerprint, record)
	result.Status = report.Success
	result.Files = len(record.Contents)
	return result
}

// The reason given for a series skipped because the journal already
// holds its record.
const ReasonJournaled = "archived by an earlier run"

// Returns the journaled record for a series archived from a manifest with
// the given fingerprint, or nil when it must be archived.
func (a *Archiver) archivedBefore(s manifest.Series, fingerprint string) (*manifest.PackageRecord, error) {
	if a.force || a.journal == nil {
		return nil, nil
	}
	done, err := a.journal.Done(s.ManifestPath(), fingerprint)
	if err != nil || done == nil {
		return nil, err
	}
	return &done.Record, nil
}

// Journals an archived series. Failures are logged, not returned.
func (a *Archiver) remember(
	ctx context.Context,
	s manifest.Series,
	fingerprint string,
	record *manifest.PackageRecord,
) {
	if a.journal == nil {
		return
	}
	if err := a.journal.Record(s.ManifestPath(), fingerprint, record); err != nil {
		a.log.LogAttrs(
			ctx,
			slog.LevelWarn,
			"Unable to update the journal.",
			sloghelper.Series(s.CaseID, s.StudyID, s.SeriesID),
			sloghelper.Error("error", err))
	}
}

// Archives one series unless the journal shows it was archived from the
// same instances, in which case the journaled record is returned and
// skipped is true. The fingerprint covers the series manifest as the
// grouper writes it, matching the fingerprint Package computes.
func (a *Archiver) ArchiveOnce(
	ctx context.Context,
	s manifest.Series,
	instances []manifest.Instance,
) (record *manifest.PackageRecord, missing []string, skipped bool, err error) {
	buffer := bytes.Buffer{}
	if err := manifest.WriteInstances(&buffer, instances); err != nil {
		return nil, nil, false, err
	}
	fingerprint, err := hasher.Fingerprint(hasher.HighwayHash, buffer.Bytes())
	if err != nil {
		return nil, nil, false, err
	}
	if done, err := a.archivedBefore(s, fingerprint); err != nil {
		return nil, nil, false, err
	} else if done != nil {
		return done, nil, true, nil
	}
	record, missing, err = a.Archive(ctx, s, instances)
	if err != nil {
		return nil, missing, false, err
	}
	a.remember(ctx, s, fingerprint, record)
	return record, missing, false, nil
}

// Logs how many series the journal holds.
func (a *Archiver) LogJournal(ctx context.Context) {
	if a.journal == nil {
		return
	}
	n, err := a.journal.Len()
	if err != nil {
		a.log.LogAttrs(
			ctx,
			slog.LevelWarn,
			"Unable to read the journal.",
			sloghelper.Error("error", err))
		return
	}
	a.log.LogAttrs(
		ctx,
		slog.LevelInfo,
		"Journal opened.",
		sloghelper.Int("series", n))
}

// Writes a package record file via a temporary file in the same
// directory so that a crash never leaves a partial record behind.
func writeRecord(p string, record *manifest.PackageRecord) error {
	dir := filepath.Dir(p)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	fd, err := os.CreateTemp(dir, ".record-*")
	if err != nil {
		return err
	}
	tmp := fd.Name()
	if err := manifest.WritePackages(fd, []manifest.PackageRecord{*record}); err != nil {
		fd.Close()
		os.Remove(tmp)
		return errors.Wrapf(err, "writing %s", p)
	}
	if err := fd.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Chmod(tmp, 0o644); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, p); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}

// Archives every series listed in {batchDir}/packages.txt using the
// worker pool. Per series failures are recorded in the summary; the
// returned error is only set when the batch could not be read or ctx was
// canceled.
func (a *Archiver) Run(ctx context.Context, batchDir string) (*report.Summary, error) {
	listPath := filepath.Join(batchDir, manifest.SeriesListName)
	fd, err := os.Open(listPath)
	if err != nil {
		return nil, errors.Wrap(err, "reading series list")
	}
	entries, err := manifest.ReadSeriesList(fd)
	fd.Close()
	if err != nil {
		return nil, errors.Wrapf(err, "reading %s", listPath)
	}
	if err := os.MkdirAll(filepath.Join(batchDir, "packages"), 0o755); err != nil {
		return nil, err
	}
	a.log.LogAttrs(
		ctx,
		slog.LevelInfo,
		"Packaging batch.",
		sloghelper.String("batch_dir", batchDir),
		sloghelper.Int("series", len(entries)),
		sloghelper.Int("workers", a.workers))

	a.LogJournal(ctx)

	summary := report.NewSummary("package")
	wq := workqueue.New(ctx, a.workers)
	for _, entry := range entries {
		entry := entry
		wq.Insert(func(ctx context.Context) {
			if ctx.Err() != nil {
				summary.Add(report.Result{
					Unit:   entry,
					Status: report.Skipped,
					Reason: "canceled",
				})
				return
			}
			summary.Add(a.Package(ctx, batchDir, entry))
		})
	}
	wq.Wait()
	summary.Log(ctx, a.log)
	return summary, ctx.Err()
}
