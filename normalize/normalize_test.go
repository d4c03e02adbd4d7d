package normalize

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/liquidgecka/testlib"

	"github.com/liquidgecka/seriespack/manifest"
)

func writeFile(T *testlib.T, p string, lines ...string) {
	T.ExpectSuccess(os.MkdirAll(filepath.Dir(p), 0o755))
	T.ExpectSuccess(os.WriteFile(p, []byte(strings.Join(lines, "\n")+"\n"), 0o644))
}

func TestNormalizer_NewStyle(t *testing.T) {
	T := testlib.NewT(t)
	defer T.Finish()

	dir := T.TempDir()
	writeFile(T,
		filepath.Join(dir, "image_manifest_ACR_20220107.tsv"),
		"case_ids\tstudy_uid\tseries_uid\tinstance_uid\tfile_name\tfile_size\tmd5sum\tstorage_urls\tmodality",
		"c1\tst1\tse1\ti1\tACR/c1/i1.dcm\t\"1,234\"\taa\t//ACR/c1/i1.dcm\tCT",
		"c1\tst1\tse1\ti2\tACR/c1/i2.dcm\t10\tbb\t//ACR/c1/i2.dcm\tCT",
		"c1\tst1\tse1\ti1\tACR/c1/i1.dcm\t1234\taa\t//ACR/c1/i1.dcm\tMR")

	n := New(&Settings{})
	result, err := n.Normalize(context.Background(), "ACR_20220107", dir)
	T.ExpectSuccess(err)
	T.Equal(result.Organization.Name, "ACR")
	T.Equal(result.Manifests, []string{filepath.Join(dir, "image_manifest_ACR_20220107.tsv")})
	T.Equal(result.Duplicates, 1)
	T.Equal(result.Instances, []manifest.Instance{
		{
			FileName:   "i1.dcm",
			FileSize:   1234,
			MD5Sum:     "aa",
			CaseID:     "c1",
			StudyID:    "st1",
			SeriesID:   "se1",
			InstanceID: "i1",
			StorageURL: "//ACR/c1/i1.dcm",
		},
		{
			FileName:   "i2.dcm",
			FileSize:   10,
			MD5Sum:     "bb",
			CaseID:     "c1",
			StudyID:    "st1",
			SeriesID:   "se1",
			InstanceID: "i2",
			StorageURL: "//ACR/c1/i2.dcm",
		},
	})

	// The canonical table can be written back out.
	out := filepath.Join(T.TempDir(), "sub", "instances.tsv")
	T.ExpectSuccess(result.WriteFile(out))
	fd, err := os.Open(out)
	T.ExpectSuccess(err)
	defer fd.Close()
	read, err := manifest.ReadInstances(out, fd)
	T.ExpectSuccess(err)
	T.Equal(read, result.Instances)
}

func TestNormalizer_DerivedInstanceID(t *testing.T) {
	T := testlib.NewT(t)
	defer T.Finish()

	dir := T.TempDir()
	writeFile(T,
		filepath.Join(dir, "image_manifest_RSNA_1.tsv"),
		"case_ids\tstudy_uid\tseries_uid\tfile_name\tfile_size\tmd5sum\tstorage_urls",
		"c1\tst1\tse1\tx/1.2.3.dcm\t10\taa\ts3://storage.ir.rsna.ai/x/1.2.3.dcm")
	result, err := New(&Settings{}).Normalize(context.Background(), "RSNA_1", dir)
	T.ExpectSuccess(err)
	T.Equal(len(result.Instances), 1)
	T.Equal(result.Instances[0].InstanceID, "1.2.3")
	T.Equal(result.Instances[0].FileName, "1.2.3.dcm")
}

func TestNormalizer_Ambiguous(t *testing.T) {
	T := testlib.NewT(t)
	defer T.Finish()

	dir := T.TempDir()
	header := "case_ids\tstudy_uid\tseries_uid\tinstance_uid\tfile_name\tfile_size\tmd5sum\tstorage_urls"
	writeFile(T, filepath.Join(dir, "a_manifest_1.tsv"), header)
	writeFile(T, filepath.Join(dir, "b_manifest_2.tsv"), header)
	_, err := New(&Settings{}).Normalize(context.Background(), "ACR_1", dir)
	T.Equal(err, ErrAmbiguousInput{
		Dir: dir,
		Matches: []string{
			filepath.Join(dir, "a_manifest_1.tsv"),
			filepath.Join(dir, "b_manifest_2.tsv"),
		},
	})
	T.ExpectErrorMessage(err, "Only one manifest may exist")
}

func TestNormalizer_Concatenated(t *testing.T) {
	T := testlib.NewT(t)
	defer T.Finish()

	dir := T.TempDir()
	writeFile(T,
		filepath.Join(dir, "image_a.tsv"),
		"case_ids\tstudy_uid\tseries_uid\tinstance_uid\tfile_name\tfile_size\tmd5sum\tstorage_urls",
		"c1\tst1\tse1\ti1\t1.dcm\t10\taa\tu1")
	// Same columns in another order, repeating the first row once.
	writeFile(T,
		filepath.Join(dir, "image_b.tsv"),
		"instance_uid\tcase_ids\tstudy_uid\tseries_uid\tfile_name\tfile_size\tmd5sum\tstorage_urls",
		"i2\tc1\tst1\tse1\t2.dcm\t20\tbb\tu2",
		"i1\tc1\tst1\tse1\t1.dcm\t10\taa\tu1")

	result, err := New(&Settings{}).Normalize(context.Background(), "TCIA_1", dir)
	T.ExpectSuccess(err)
	T.Equal(result.Organization.Name, DefaultOrganization)
	T.Equal(result.Manifests, []string{
		filepath.Join(dir, "image_a.tsv"),
		filepath.Join(dir, "image_b.tsv"),
	})
	T.Equal(result.Duplicates, 1)
	T.Equal(len(result.Instances), 2)
	T.Equal(result.Instances[0].InstanceID, "i1")
	T.Equal(result.Instances[1].InstanceID, "i2")
	T.Equal(result.Instances[1].FileSize, int64(20))
}

func TestNormalizer_NoManifest(t *testing.T) {
	T := testlib.NewT(t)
	defer T.Finish()

	dir := T.TempDir()
	writeFile(T, filepath.Join(dir, "notes.txt"), "nothing")
	_, err := New(&Settings{}).Normalize(context.Background(), "ACR_1", dir)
	T.Equal(err, ErrNoManifest(dir))

	_, err = New(&Settings{}).Normalize(
		context.Background(), "ACR_1", filepath.Join(dir, "missing"))
	T.ExpectErrorMessage(err, "submission directory")
}

func TestNormalizer_MissingColumn(t *testing.T) {
	T := testlib.NewT(t)
	defer T.Finish()

	dir := T.TempDir()
	p := filepath.Join(dir, "manifest.tsv")
	writeFile(T, p,
		"case_ids\tstudy_uid\tseries_uid\tinstance_uid\tfile_name\tfile_size\tstorage_urls",
		"c1\tst1\tse1\ti1\t1.dcm\t10\tu")
	_, err := New(&Settings{}).Normalize(context.Background(), "ACR_1", dir)
	T.Equal(err, manifest.ErrMissingColumn{Source: p, Column: "md5sum"})
}

func TestNormalizer_SeriesJoin(t *testing.T) {
	T := testlib.NewT(t)
	defer T.Finish()

	dir := T.TempDir()
	writeFile(T,
		filepath.Join(dir, "image_TCIA_1.tsv"),
		"Subject_ID\tseries_uid\tobject_id\t*file_name\t*file_size\t*md5sum\tstorage_urls",
		"c1\tse1\to1\t1.dcm\t100\taa\t['s3://midrcprod-default-813684607867-upload/c1/1.dcm']",
		"c1\tse1\to2\t2.dcm\t200\tbb\t['s3://midrcprod-default-813684607867-upload/c1/2.dcm']",
		"c2\tse9\to3\t3.dcm\t300\tcc\t['s3://midrcprod-default-813684607867-upload/c2/3.dcm']")
	// Matches both image_*.tsv and *_series_*.tsv; only a series table.
	writeFile(T,
		filepath.Join(dir, "image_series_TCIA_1.tsv"),
		"case_ids\tseries_uid\timaging_studies.submitter_id\tmodality",
		"c1\tse1\tst1\tCT",
		"c1\tse1\tst1\tCT")

	result, err := New(&Settings{}).Normalize(context.Background(), "TCIA_1", dir)
	T.ExpectSuccess(err)
	T.Equal(result.Organization.Name, DefaultOrganization)
	T.Equal(result.Unmatched, 1)
	T.Equal(len(result.Instances), 2)
	T.Equal(result.Instances[0], manifest.Instance{
		FileName:   "1.dcm",
		FileSize:   100,
		MD5Sum:     "aa",
		CaseID:     "c1",
		StudyID:    "st1",
		SeriesID:   "se1",
		InstanceID: "o1",
		StorageURL: "['s3://midrcprod-default-813684607867-upload/c1/1.dcm']",
	})
	T.Equal(
		result.Organization.SourceKey(result.Instances[0].StorageURL),
		"c1/1.dcm")
}
