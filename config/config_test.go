package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/liquidgecka/testlib"

	"github.com/liquidgecka/seriespack/sequester"
	"github.com/liquidgecka/seriespack/storage"
)

func parseString(T *testlib.T, data string) (*Config, error) {
	p := filepath.Join(T.TempDir(), "config.toml")
	T.ExpectSuccess(os.WriteFile(p, []byte(data), 0o644))
	return Parse(p)
}

func TestParse_Defaults(t *testing.T) {
	T := testlib.NewT(t)
	defer T.Finish()

	c, err := Parse("")
	T.ExpectSuccess(err)
	T.Equal(*c.top.Archive.Workers, 6)
	T.Equal(*c.top.Archive.Attempts, 5)
	T.Equal(c.top.Archive.timeout, 5*time.Minute)
	T.Equal(c.top.Archive.retryDelay, time.Second)
	T.Equal(*c.top.Split.OpenBucket, sequester.DefaultOpenBucket)
	T.Equal(*c.top.Split.GUIDPrefix, "dg.MD1R/")
	T.Equal(*c.top.Log.Format, "plain")
	T.Equal(c.GetOrganizations().Names(), []string{"ACR", "RSNA", "default"})

	// Archives can not be built without a destination.
	_, err = c.ArchiverSettings(c.GetOrganizations().Lookup("ACR_1"))
	T.ExpectErrorMessage(err, "destination.bucket is required")

	_, err = Parse(filepath.Join(T.TempDir(), "missing.toml"))
	T.NotEqual(err, nil)
}

func TestParse_Full(t *testing.T) {
	T := testlib.NewT(t)
	defer T.Finish()

	dir := T.TempDir()
	orgs := filepath.Join(dir, "orgs.yaml")
	T.ExpectSuccess(os.WriteFile(orgs, []byte(strings.Join([]string{
		"organizations:",
		"  - name: MIDRC",
		"    manifest_patterns: [\"*.tsv\"]",
		"    source_bucket: midrc-src",
		"    open_authz: [\"/programs/Open/projects/M1\"]",
		"    seq_authz: [\"/programs/SEQ_Open/projects/M3\"]",
	}, "\n")), 0o644))

	c, err := parseString(T, `
organizations_file = "`+orgs+`"

[log]
file = "`+filepath.Join(dir, "seriespack.log")+`"
format = "json"
debug = true

[aws.main]
key_id = "AKIAEXAMPLE"
secret_key = "secret"
region = "us-east-1"
endpoint = "http://localhost:9000"
s3_force_path_style = true

[source]
bucket = "override-src"
aws_profile = "main"

[destination]
bucket = "packages"
aws_profile = "main"
skip_etag_check = true

[archive]
workers = 0
max_archive_size = "2gib"
attempts = 3
timeout = "90s"
retry_delay = "250ms"
max_retry_delay = "10s"
journal = "`+filepath.Join(dir, "journal.db")+`"

[split]
open_bucket = "s3://open"
seq_bucket = "s3://seq/"
ignore_authz = ["/programs/Other"]
guid_prefix = "dg.TEST/"
`)
	T.ExpectSuccess(err)
	T.ExpectSuccess(c.InitializeLogging())
	T.Equal(len(c.GetRotators()), 1)
	c.GetLogger().Debug("Debug is enabled.")
	T.ExpectSuccess(c.GetRotators()[0].Close())
	data, err := os.ReadFile(filepath.Join(dir, "seriespack.log"))
	T.ExpectSuccess(err)
	T.Equal(strings.Contains(string(data), `"msg":"Debug is enabled."`), true)

	org := c.GetOrganizations().Lookup("MIDRC_20240101")
	T.Equal(org.Name, "MIDRC")

	settings, err := c.ArchiverSettings(org)
	T.ExpectSuccess(err)
	defer settings.Journal.Close()
	T.Equal(settings.DestinationBucket, "packages")
	T.Equal(settings.SourceBucket, "override-src")
	T.Equal(settings.Workers, -1)
	T.Equal(settings.MaxArchiveSize, int64(2*1024*1024*1024))
	T.Equal(settings.Retry.Attempts, 3)
	T.Equal(settings.Retry.Timeout, 90*time.Second)
	T.Equal(settings.Retry.Delay, 250*time.Millisecond)
	T.Equal(settings.Retry.MaxDelay, 10*time.Second)
	T.NotEqual(settings.Journal, nil)
	dest, ok := settings.Destination.(*storage.S3Store)
	T.Equal(ok, true)
	T.Equal(dest.SkipETagCheck, true)
	sess := c.top.AWSProfiles["main"].session
	T.Equal(*sess.Config.Endpoint, "http://localhost:9000")
	T.Equal(*sess.Config.S3ForcePathStyle, true)

	split := c.SplitterSettings(sequester.Classification{}, nil, nil)
	T.Equal(split.OpenBucket, "s3://open/")
	T.Equal(split.SeqBucket, "s3://seq/")
	T.Equal(split.IgnoreAuthz, []string{"/programs/Other"})
	T.Equal(split.GUIDPrefix, "dg.TEST/")
	T.Equal(split.Organizations, c.GetOrganizations())
	T.Equal(c.NormalizerSettings().Organizations, c.GetOrganizations())
}

func TestParse_Invalid(t *testing.T) {
	T := testlib.NewT(t)
	defer T.Finish()

	_, err := parseString(T, `
organizations_file = ""

[log]
format = "xml"

[aws.main]
key_id = "AKIAEXAMPLE"
endpoint = "ftp://minio"

[source]
bucket = ""
aws_profile = "other"

[archive]
workers = -2
max_archive_size = "12 parsecs"
attempts = 0
timeout = "soon"
retry_delay = "1m"
max_retry_delay = "1s"

[split]
open_bucket = "open"
ignore_authz = ["", "/a", "/a"]
guid_prefix = "dg.TEST"
`)
	T.NotEqual(err, nil)
	for _, msg := range []string{
		"aws.main.key_id and aws.main.secret_key must be used together.",
		"aws.main.endpoint must use http or https.",
		"source.bucket can not be an empty string.",
		"source.aws_profile references an unknown profile: other",
		"archive.workers can not be negative.",
		"archive.max_archive_size is invalid: unknown byte suffix (parsecs)",
		"archive.attempts can not be less than 1.",
		"archive.timeout is invalid",
		"archive.retry_delay can not exceed archive.max_retry_delay.",
		"split.open_bucket must start with s3://",
		"split.ignore_authz: List contains an empty string at index 0",
		"split.ignore_authz: Duplicate item in the list at index 2: /a",
		"split.guid_prefix must end with a /.",
		"organizations_file can not be an empty string.",
		"log.format must be 'plain' or 'json'.",
	} {
		T.ExpectErrorMessage(err, msg)
	}

	// Unknown keys are rejected by the strict decoder.
	_, err = parseString(T, "[archive]\nthreads = 4\n")
	T.NotEqual(err, nil)

	// A broken organizations file.
	p := filepath.Join(T.TempDir(), "orgs.yaml")
	T.ExpectSuccess(os.WriteFile(p, []byte("organizations:\n  - name: A_B\n"), 0o644))
	_, err = parseString(T, `organizations_file = "`+p+`"`)
	T.ExpectErrorMessage(err, "organizations_file: ")
}

func TestParse_OrganizationsFlag(t *testing.T) {
	T := testlib.NewT(t)
	defer T.Finish()

	p := filepath.Join(T.TempDir(), "orgs.yaml")
	T.ExpectSuccess(os.WriteFile(p, []byte(strings.Join([]string{
		"organizations:",
		"  - name: MIDRC",
		"    manifest_patterns: [\"*.tsv\"]",
	}, "\n")), 0o644))
	old := organizations
	organizations = &p
	defer func() { organizations = old }()

	// The flag wins over the file named in the config.
	c, err := parseString(T, `organizations_file = "`+filepath.Join(T.TempDir(), "missing.yaml")+`"`)
	T.ExpectSuccess(err)
	T.Equal(c.GetOrganizations().Lookup("MIDRC_1").Name, "MIDRC")
}

func TestLog_Console(t *testing.T) {
	T := testlib.NewT(t)
	defer T.Finish()

	buf := &bytes.Buffer{}
	old := stderr
	stderr = buf
	defer func() { stderr = old }()

	on := true
	console = &on
	defer func() { console = nil }()

	dir := T.TempDir()
	c, err := parseString(T, `
[log]
file = "`+filepath.Join(dir, "out.log")+`"
`)
	T.ExpectSuccess(err)
	l := c.GetLogger()
	l.Info("Both outputs.")
	l.Debug("Neither output.")
	T.ExpectSuccess(c.GetRotators()[0].Close())
	data, err := os.ReadFile(filepath.Join(dir, "out.log"))
	T.ExpectSuccess(err)
	T.Equal(strings.Contains(string(data), "msg=\"Both outputs.\""), true)
	T.Equal(strings.Contains(buf.String(), "msg=\"Both outputs.\""), true)
	T.Equal(strings.Contains(buf.String(), "Neither"), false)
}

func TestValue(t *testing.T) {
	T := testlib.NewT(t)
	defer T.Finish()

	v := &value{}
	T.ExpectSuccess(v.UnmarshalText([]byte("1,024kib")))
	n, err := v.Bytes()
	T.ExpectSuccess(err)
	T.Equal(n, int64(1024*1024))

	T.ExpectSuccess(v.UnmarshalText([]byte("30")))
	d, err := v.Duration()
	T.ExpectSuccess(err)
	T.Equal(d, 30*time.Second)

	T.ExpectSuccess(v.UnmarshalText([]byte("1m30s")))
	d, err = v.Duration()
	T.ExpectSuccess(err)
	T.Equal(d, 90*time.Second)

	T.ExpectSuccess(v.UnmarshalText([]byte("-1")))
	_, err = v.Bytes()
	T.NotEqual(err, nil)
}
