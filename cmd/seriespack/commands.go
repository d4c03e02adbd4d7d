package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/subcommands"

	"github.com/liquidgecka/seriespack/archiver"
	"github.com/liquidgecka/seriespack/config"
	"github.com/liquidgecka/seriespack/grouper"
	"github.com/liquidgecka/seriespack/internal/sloghelper"
	"github.com/liquidgecka/seriespack/normalize"
	"github.com/liquidgecka/seriespack/pipeline"
	"github.com/liquidgecka/seriespack/report"
	"github.com/liquidgecka/seriespack/sequester"
)

// Logs a stage summary and converts it into an exit status.
func finish(ctx context.Context, l *slog.Logger, s *report.Summary) subcommands.ExitStatus {
	s.Log(ctx, l)
	if s.Err() != nil {
		return exitStage
	}
	return exitSuccess
}

// Logs an error that stopped a stage.
func fail(ctx context.Context, l *slog.Logger, msg string, err error) subcommands.ExitStatus {
	l.LogAttrs(ctx, slog.LevelError, msg, sloghelper.Error("error", err))
	return exitStage
}

// Builds an Archiver for the organization that owns dir. The journal is
// closed by the returned function.
func newArchiver(cnf *config.Config, dir string, force bool) (*archiver.Archiver, func(), error) {
	org := cnf.GetOrganizations().Lookup(sequester.BatchName(dir))
	settings, err := cnf.ArchiverSettings(org)
	if err != nil {
		return nil, nil, err
	}
	settings.Force = force
	closer := func() {
		if settings.Journal != nil {
			settings.Journal.Close()
		}
	}
	return archiver.New(settings), closer, nil
}

// Loads the classification table and the optional exclusion lists.
func newSplitter(cnf *config.Config, seqFile, cases, studies string) (*sequester.Splitter, error) {
	classification, err := sequester.LoadClassification(seqFile)
	if err != nil {
		return nil, err
	}
	excludeCases, err := sequester.LoadCaseExclusions(cases)
	if err != nil {
		return nil, err
	}
	excludeStudies, err := sequester.LoadStudyExclusions(studies)
	if err != nil {
		return nil, err
	}
	return sequester.New(cnf.SplitterSettings(classification, excludeStudies, excludeCases)), nil
}

// process: normalize a submission and group it into series manifests.
type processCmd struct {
	submission string
	inputPath  string
	outputPath string
	append     bool
	tree       bool
}

func (*processCmd) Name() string     { return "process" }
func (*processCmd) Synopsis() string { return "Normalize a submission and write series manifests" }
func (*processCmd) Usage() string {
	return "seriespack process -submission NAME -input_path DIR -output_path DIR [-append] [-tree]\n"
}
func (p *processCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&p.submission, "submission", "", "Submission name, for example ACR_20220107.")
	f.StringVar(&p.inputPath, "input_path", "", "Directory holding one directory per submission.")
	f.StringVar(&p.outputPath, "output_path", "", "Directory the batch directory is created in.")
	f.BoolVar(&p.append, "append", false, "Append to existing series manifests instead of rebuilding them.")
	f.BoolVar(&p.tree, "tree", false, "Print the case/study/series tree after grouping.")
}

func (p *processCmd) Execute(ctx context.Context, f *flag.FlagSet, args ...interface{}) subcommands.ExitStatus {
	if missing(f, "submission", "input_path", "output_path") {
		return exitConfig
	}
	cnf := configFrom(args)
	l := cnf.GetLogger()

	normalized, err := normalize.New(cnf.NormalizerSettings()).Normalize(
		ctx,
		p.submission,
		filepath.Join(p.inputPath, p.submission))
	if err != nil {
		return fail(ctx, l, "Normalizing failed.", err)
	}
	dir := batchDir(p.outputPath, p.submission)
	partition, err := grouper.Group(ctx, normalized.Instances, dir, grouper.Options{
		Append: p.append,
		Logger: l,
	})
	if err != nil {
		return fail(ctx, l, "Grouping failed.", err)
	}
	if p.tree {
		fmt.Print(partition.Tree(p.submission))
	}
	return exitSuccess
}

// package: archive every series listed in a batch directory.
type packageCmd struct {
	batchDir string
	force    bool
}

func (*packageCmd) Name() string     { return "package" }
func (*packageCmd) Synopsis() string { return "Build and upload one archive per series" }
func (*packageCmd) Usage() string {
	return "seriespack package -batch_dir DIR [-force]\n"
}
func (p *packageCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&p.batchDir, "batch_dir", "", "Batch directory written by process.")
	f.BoolVar(&p.force, "force", false, "Archive series that were already archived.")
}

func (p *packageCmd) Execute(ctx context.Context, f *flag.FlagSet, args ...interface{}) subcommands.ExitStatus {
	if missing(f, "batch_dir") {
		return exitConfig
	}
	cnf := configFrom(args)
	l := cnf.GetLogger()

	a, closer, err := newArchiver(cnf, p.batchDir, p.force)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err.Error())
		return exitConfig
	}
	defer closer()
	summary, err := a.Run(ctx, p.batchDir)
	if err != nil {
		return fail(ctx, l, "Packaging failed.", err)
	}
	return finish(ctx, l, summary)
}

// split: route package records into the to_index outputs.
type splitCmd struct {
	batchDir       string
	seqFile        string
	excludeCases   string
	excludeStudies string
}

func (*splitCmd) Name() string     { return "split" }
func (*splitCmd) Synopsis() string { return "Split package records into open, seq, remove and missing" }
func (*splitCmd) Usage() string {
	return "seriespack split -batch_dir DIR -master_seq_file FILE [-exclude_cases FILE] [-exclude_studies FILE]\n"
}
func (p *splitCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&p.batchDir, "batch_dir", "", "Batch directory written by package.")
	f.StringVar(&p.seqFile, "master_seq_file", "", "Classification table with case_ids and dataset columns.")
	f.StringVar(&p.excludeCases, "exclude_cases", "", "Optional table of case ids to remove.")
	f.StringVar(&p.excludeStudies, "exclude_studies", "", "Optional table of study ids to remove.")
}

func (p *splitCmd) Execute(ctx context.Context, f *flag.FlagSet, args ...interface{}) subcommands.ExitStatus {
	if missing(f, "batch_dir", "master_seq_file") {
		return exitConfig
	}
	cnf := configFrom(args)
	l := cnf.GetLogger()

	s, err := newSplitter(cnf, p.seqFile, p.excludeCases, p.excludeStudies)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err.Error())
		return exitConfig
	}
	summary, outputs, err := s.Run(ctx, p.batchDir)
	if err != nil {
		return fail(ctx, l, "Splitting failed.", err)
	}
	for _, c := range sequester.Classes {
		l.LogAttrs(
			ctx,
			slog.LevelInfo,
			"Records routed.",
			sloghelper.String("class", c.String()),
			sloghelper.Int("records", outputs.Len(c)))
	}
	return finish(ctx, l, summary)
}

// run: every stage in one process.
type runCmd struct {
	submission     string
	inputPath      string
	outputPath     string
	seqFile        string
	excludeCases   string
	excludeStudies string
	force          bool
}

func (*runCmd) Name() string     { return "run" }
func (*runCmd) Synopsis() string { return "Run every stage for one submission in process" }
func (*runCmd) Usage() string {
	return "seriespack run -submission NAME -input_path DIR -output_path DIR -master_seq_file FILE [-force]\n"
}
func (p *runCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&p.submission, "submission", "", "Submission name, for example ACR_20220107.")
	f.StringVar(&p.inputPath, "input_path", "", "Directory holding one directory per submission.")
	f.StringVar(&p.outputPath, "output_path", "", "Directory the batch directory is created in.")
	f.StringVar(&p.seqFile, "master_seq_file", "", "Classification table with case_ids and dataset columns.")
	f.StringVar(&p.excludeCases, "exclude_cases", "", "Optional table of case ids to remove.")
	f.StringVar(&p.excludeStudies, "exclude_studies", "", "Optional table of study ids to remove.")
	f.BoolVar(&p.force, "force", false, "Archive series that were already archived.")
}

func (p *runCmd) Execute(ctx context.Context, f *flag.FlagSet, args ...interface{}) subcommands.ExitStatus {
	if missing(f, "submission", "input_path", "output_path", "master_seq_file") {
		return exitConfig
	}
	cnf := configFrom(args)
	l := cnf.GetLogger()

	dir := batchDir(p.outputPath, p.submission)
	a, closer, err := newArchiver(cnf, dir, p.force)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err.Error())
		return exitConfig
	}
	defer closer()
	s, err := newSplitter(cnf, p.seqFile, p.excludeCases, p.excludeStudies)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err.Error())
		return exitConfig
	}
	result, err := pipeline.Run(ctx, &pipeline.Settings{
		Normalizer: normalize.New(cnf.NormalizerSettings()),
		Archiver:   a,
		Splitter:   s,
		Submission: p.submission,
		InputDir:   filepath.Join(p.inputPath, p.submission),
		BatchDir:   dir,
		Logger:     l,
	})
	if err != nil {
		return fail(ctx, l, "Pipeline failed.", err)
	}
	for _, w := range result.Written {
		l.LogAttrs(
			ctx,
			slog.LevelInfo,
			"Output written.",
			sloghelper.String("file", filepath.Base(w)))
	}
	return finish(ctx, l, result.Archive)
}

// verify: recheck uploaded archives against their package records.
type verifyCmd struct {
	batchDir string
}

func (*verifyCmd) Name() string     { return "verify" }
func (*verifyCmd) Synopsis() string { return "Download archives and check their size and md5" }
func (*verifyCmd) Usage() string {
	return "seriespack verify -batch_dir DIR\n"
}
func (p *verifyCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&p.batchDir, "batch_dir", "", "Batch directory written by package.")
}

func (p *verifyCmd) Execute(ctx context.Context, f *flag.FlagSet, args ...interface{}) subcommands.ExitStatus {
	if missing(f, "batch_dir") {
		return exitConfig
	}
	cnf := configFrom(args)
	l := cnf.GetLogger()

	a, closer, err := newArchiver(cnf, p.batchDir, false)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err.Error())
		return exitConfig
	}
	defer closer()
	summary, err := a.Verify(ctx, p.batchDir)
	if err != nil {
		return fail(ctx, l, "Verification failed.", err)
	}
	return finish(ctx, l, summary)
}
