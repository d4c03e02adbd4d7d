package archiver

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/base64"
	"encoding/hex"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/liquidgecka/seriespack/internal/sloghelper"
	"github.com/liquidgecka/seriespack/internal/workqueue"
	"github.com/liquidgecka/seriespack/manifest"
	"github.com/liquidgecka/seriespack/report"
	"github.com/liquidgecka/seriespack/storage"
	"github.com/liquidgecka/seriespack/storage/hasher"
)

// Splits a record url into bucket and key. Records that have not been
// through the splitter carry a bare key in the destination bucket.
func (a *Archiver) locate(url string) (string, string) {
	if rest, ok := strings.CutPrefix(url, "s3://"); ok {
		if i := strings.IndexByte(rest, '/'); i > 0 {
			return rest[:i], rest[i+1:]
		}
	}
	return a.destBucket, url
}

// Downloads the archive named by a package record and checks that its size
// and MD5 match the record and that it holds exactly the listed files.
func (a *Archiver) VerifyRecord(ctx context.Context, record *manifest.PackageRecord) error {
	bucket, key := a.locate(record.URL)
	var obj *storage.Object
	err := a.retry.Do(ctx, storage.IsPermanent, func(ctx context.Context) (err error) {
		obj, err = a.dest.GetObject(ctx, bucket, key)
		return err
	})
	if err != nil {
		return err
	}
	sum, err := hex.DecodeString(record.MD5)
	if err != nil {
		return errors.Wrapf(err, "record md5 for %s", key)
	}
	h, err := hasher.Validator(hasher.MD5+"="+base64.RawURLEncoding.EncodeToString(sum), nil)
	if err != nil {
		return err
	}
	h.Write(obj.Body)
	if h.Size() != record.Size {
		return ErrMismatch{
			Key:      key,
			Field:    "size",
			Expected: strconv.FormatInt(record.Size, 10),
			Got:      strconv.FormatInt(h.Size(), 10),
		}
	} else if !h.Check() {
		return ErrMismatch{
			Key:      key,
			Field:    "md5",
			Expected: record.MD5,
			Got:      h.Hex(),
		}
	}

	zr, err := zip.NewReader(bytes.NewReader(obj.Body), int64(len(obj.Body)))
	if err != nil {
		return errors.Wrapf(err, "opening %s", key)
	}
	got := make([]string, 0, len(zr.File))
	for _, f := range zr.File {
		got = append(got, f.Name)
	}
	want := make([]string, 0, len(record.Contents))
	for _, c := range record.Contents {
		want = append(want, c.FileName)
	}
	sort.Strings(got)
	sort.Strings(want)
	if g, w := strings.Join(got, ","), strings.Join(want, ","); g != w {
		return ErrMismatch{
			Key:      key,
			Field:    "contents",
			Expected: w,
			Got:      g,
		}
	}
	return nil
}

// Verifies every package record under {batchDir}/packages.
func (a *Archiver) Verify(ctx context.Context, batchDir string) (*report.Summary, error) {
	files, err := filepath.Glob(filepath.Join(batchDir, "packages", "*.txt"))
	if err != nil {
		return nil, err
	} else if len(files) == 0 {
		return nil, errors.Errorf("No package records found in %s.", batchDir)
	}
	summary := report.NewSummary("verify")
	wq := workqueue.New(ctx, a.workers)
	for _, f := range files {
		f := f
		wq.Insert(func(ctx context.Context) {
			summary.Add(a.verifyFile(ctx, f))
		})
	}
	wq.Wait()
	summary.Log(ctx, a.log)
	return summary, ctx.Err()
}

func (a *Archiver) verifyFile(ctx context.Context, p string) report.Result {
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
		return result
	}
	for i := range records {
		if err := a.VerifyRecord(ctx, &records[i]); err != nil {
			a.log.LogAttrs(
				ctx,
				slog.LevelError,
				"Archive verification failed.",
				sloghelper.String("url", records[i].URL),
				sloghelper.Error("error", err))
			result.Status = report.Failed
			result.Err = err
			result.Reason = "verification failed"
			if storage.IsNotFound(err) {
				result.Reason = "archive missing"
			}
			return result
		}
		result.Files += len(records[i].Contents)
	}
	result.Status = report.Success
	return result
}
