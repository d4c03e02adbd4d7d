// Package pipeline runs every stage of packaging a submission in one
// process. Stages hand typed records to each other over channels; the only
// files written are the split outputs.
package pipeline

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"

	"github.com/liquidgecka/seriespack/archiver"
	"github.com/liquidgecka/seriespack/grouper"
	"github.com/liquidgecka/seriespack/internal/sloghelper"
	"github.com/liquidgecka/seriespack/manifest"
	"github.com/liquidgecka/seriespack/normalize"
	"github.com/liquidgecka/seriespack/report"
	"github.com/liquidgecka/seriespack/sequester"
)

// Settings for a pipeline run.
type Settings struct {
	// The stages. All are required.
	Normalizer *normalize.Normalizer
	Archiver   *archiver.Archiver
	Splitter   *sequester.Splitter

	// The submission name ("ACR_20220107") and the directory holding it.
	Submission string
	InputDir   string

	// Split outputs are written to {BatchDir}/to_index.
	BatchDir string

	// Logging output. May be nil.
	Logger *slog.Logger
}

// The outcome of a pipeline run.
type Result struct {
	Normalized *normalize.Result
	Partition  *grouper.Partition

	// One result per series archived.
	Archive *report.Summary

	// Records routed to each output and the files written.
	Outputs *sequester.Outputs
	Written []string
}

// One series handed to the archive workers.
type job struct {
	index  int
	series manifest.Series
}

// One archived series handed back to the router.
type archived struct {
	index  int
	record *manifest.PackageRecord
	result report.Result
}

// Runs normalize, group, archive and split for one submission. Series the
// archiver's journal already holds are not uploaded again; their journaled
// records are routed like fresh ones. Series that fail to archive are reported in Result.Archive and are absent from
// the outputs. Any other failure, including a missing authz scope, stops
// the run and returns an error.
func Run(ctx context.Context, settings *Settings) (*Result, error) {
	if settings.Normalizer == nil {
		panic("settings.Normalizer is required.")
	} else if settings.Archiver == nil {
		panic("settings.Archiver is required.")
	} else if settings.Splitter == nil {
		panic("settings.Splitter is required.")
	}
	l := sloghelper.OrDiscard(settings.Logger).With(
		sloghelper.String("submission", settings.Submission))

	normalized, err := settings.Normalizer.Normalize(ctx, settings.Submission, settings.InputDir)
	if err != nil {
		return nil, errors.Wrap(err, "normalizing")
	}
	partition, err := grouper.Split(normalized.Instances)
	if err != nil {
		return nil, errors.Wrap(err, "grouping")
	}
	result := &Result{
		Normalized: normalized,
		Partition:  partition,
		Archive:    report.NewSummary("package"),
	}
	settings.Archiver.LogJournal(ctx)
	l.LogAttrs(
		ctx,
		slog.LevelInfo,
		"Archiving series.",
		sloghelper.Int("series", len(partition.Series)),
		sloghelper.Int("workers", settings.Archiver.Workers()))

	jobs := make(chan job)
	done := make(chan archived)
	wg := sync.WaitGroup{}

	// Feed every series to the workers in first seen order.
	go func() {
		defer close(jobs)
		for i, s := range partition.Series {
			select {
			case jobs <- job{index: i, series: s}:
			case <-ctx.Done():
				return
			}
		}
	}()

	for i := 0; i < settings.Archiver.Workers(); i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobs {
				done <- archiveOne(ctx, settings.Archiver, partition, j)
			}
		}()
	}
	go func() {
		wg.Wait()
		close(done)
	}()

	// Records are collected by series index so outputs do not depend on
	// which worker finished first.
	records := make([]*manifest.PackageRecord, len(partition.Series))
	for a := range done {
		result.Archive.Add(a.result)
		records[a.index] = a.record
	}
	if err := ctx.Err(); err != nil {
		return result, err
	}
	result.Archive.Log(ctx, l)

	org := settings.Splitter.Organization(settings.Submission)
	result.Outputs = &sequester.Outputs{Batch: settings.Submission}
	for _, record := range records {
		if record == nil {
			continue
		}
		class, err := settings.Splitter.Route(org, record)
		if err != nil {
			return result, errors.Wrap(err, record.FileName)
		}
		result.Outputs.Add(class, *record)
	}
	result.Written, err = result.Outputs.Write(filepath.Join(settings.BatchDir, "to_index"))
	if err != nil {
		return result, err
	}
	l.LogAttrs(
		ctx,
		slog.LevelInfo,
		"Pipeline complete.",
		sloghelper.Int("open", result.Outputs.Len(sequester.ClassOpen)),
		sloghelper.Int("seq", result.Outputs.Len(sequester.ClassSeq)),
		sloghelper.Int("remove", result.Outputs.Len(sequester.ClassRemove)),
		sloghelper.Int("missing", result.Outputs.Len(sequester.ClassMissing)),
		sloghelper.Int("failed", result.Archive.Count(report.Failed)))
	return result, nil
}

func archiveOne(
	ctx context.Context,
	a *archiver.Archiver,
	partition *grouper.Partition,
	j job,
) archived {
	out := archived{
		index:  j.index,
		result: report.Result{Unit: j.series.String()},
	}
	record, missing, skipped, err := a.ArchiveOnce(ctx, j.series, partition.Instances[j.series])
	out.result.Missing = missing
	if err != nil {
		out.result.Status = report.Failed
		out.result.Err = err
		out.result.Reason = "archive creation failed"
		return out
	}
	out.record = record
	out.result.Status = report.Success
	if skipped {
		out.result.Status = report.Skipped
		out.result.Reason = archiver.ReasonJournaled
	}
	out.result.Files = len(record.Contents)
	return out
}
