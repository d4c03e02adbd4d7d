package normalize

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"

	"github.com/liquidgecka/seriespack/manifest"
)

// The organization used for submissions whose prefix is not in the table.
const DefaultOrganization = "default"

// A prefix rewrite applied to storage_urls to turn them into source bucket
// keys.
type Rewrite struct {
	From string `yaml:"from"`
	To   string `yaml:"to"`
}

// Everything that differs between submitting organizations.
type Organization struct {
	// Matched against the submission name up to its first underscore.
	Name string `yaml:"name"`

	// Glob patterns, relative to the submission directory, that find the
	// instance manifest. A leading "**/" matches in any subdirectory.
	ManifestPatterns []string `yaml:"manifest_patterns"`

	// When set exactly one file may match ManifestPatterns. Otherwise
	// every match is read and the tables are concatenated.
	SingleManifest bool `yaml:"single_manifest"`

	// Glob patterns for series side tables. These are only consulted when
	// the instance manifest has no study_id column.
	SeriesPatterns []string `yaml:"series_patterns"`

	// Column renames onto the canonical schema for the instance manifest
	// and for series side tables.
	Renames       map[string]string `yaml:"renames"`
	SeriesRenames map[string]string `yaml:"series_renames"`

	// Characters removed from storage_urls, followed by prefix rewrites
	// applied in order.
	URLStrip    string    `yaml:"url_strip"`
	URLRewrites []Rewrite `yaml:"url_rewrites"`

	// The bucket the submission's objects are read from.
	SourceBucket string `yaml:"source_bucket"`

	// The authz scopes assigned to open and sequestered packages. These
	// are either both set or both empty.
	OpenAuthz []string `yaml:"open_authz"`
	SeqAuthz  []string `yaml:"seq_authz"`
}

var newStyleRenames = map[string]string{
	"case_ids":     "case_id",
	"study_uid":    "study_id",
	"series_uid":   "series_id",
	"instance_uid": "instance_id",
}

// The built in organizations.
func builtins() []*Organization {
	return []*Organization{
		{
			Name:             "ACR",
			ManifestPatterns: []string{"*manifest*.tsv"},
			SingleManifest:   true,
			Renames:          newStyleRenames,
			URLRewrites: []Rewrite{
				{From: "//", To: "replicated-data-acr/"},
			},
			SourceBucket: "external-data-midrc-replication",
			OpenAuthz:    []string{"/programs/Open/projects/A1"},
			SeqAuthz:     []string{"/programs/SEQ_Open/projects/A3"},
		},
		{
			Name:             "RSNA",
			ManifestPatterns: []string{"imag*manifest*.tsv"},
			SingleManifest:   true,
			Renames:          newStyleRenames,
			URLRewrites: []Rewrite{
				{From: "s3://storage.ir.rsna.ai/", To: ""},
			},
			SourceBucket: "external-data-midrc-replication",
			OpenAuthz:    []string{"/programs/Open/projects/R1"},
			SeqAuthz:     []string{"/programs/SEQ_Open/projects/R3"},
		},
		{
			Name: DefaultOrganization,
			ManifestPatterns: []string{
				"**/CIRR*.txt",
				"**/*image_manifest*.txt",
				"**/image_*.txt",
				"image_*.tsv",
				"*_instance_*.tsv",
			},
			SeriesPatterns: []string{
				"**/*_series_*.txt",
				"*_series_*.tsv",
			},
			Renames: map[string]string{
				"case_ids":                       "case_id",
				"Subject_ID":                     "case_id",
				"study_uid":                      "study_id",
				"ct_scans.submitter_id":          "study_id",
				"radiography_exam.submitter_id":  "study_id",
				"series_uid":                     "series_id",
				"series.submitter_id":            "series_id",
				"cr_series.submitter_id":         "series_id",
				"ct_series.submitter_id":         "series_id",
				"dx_series.submitter_id":         "series_id",
				"*md5sum":                        "md5sum",
				"mdsum":                          "md5sum",
				"*file_name":                     "file_name",
				"*file_size":                     "file_size",
				"submitter_id":                   "instance_id",
				"object_id":                      "instance_id",
				"instance_uid":                   "instance_id",
				"storage_url":                    "storage_urls",
				"imaging_studies.submitter_id":   "study_id",
				"radiography_exams.submitter_id": "study_id",
			},
			SeriesRenames: map[string]string{
				"case_ids":                       "case_id",
				"Subject_ID":                     "case_id",
				"series_uid":                     "series_id",
				"dr_exams.submitter_id":          "study_id",
				"radiography_exam.submitter_id":  "study_id",
				"radiography_exams.submitter_id": "study_id",
				"ct_scan.submitter_id":           "study_id",
				"ct_scans.submitter_id":          "study_id",
				"mr_exams.submitter_id":          "study_id",
				"nm_exams.submitter_id":          "study_id",
				"pt_scans.submitter_id":          "study_id",
				"pr_exams.submitter_id":          "study_id",
				"rf_exams.submitter_id":          "study_id",
				"imaging_studies.submitter_id":   "study_id",
			},
			URLStrip: "[]'",
			URLRewrites: []Rewrite{
				{From: "s3://midrcprod-default-813684607867-upload/", To: ""},
			},
			SourceBucket: "midrcprod-default-813684607867-upload",
		},
	}
}

// Converts a storage_urls value into a key in SourceBucket.
func (o *Organization) SourceKey(url string) string {
	if o.URLStrip != "" {
		url = strings.Map(func(r rune) rune {
			if strings.ContainsRune(o.URLStrip, r) {
				return -1
			}
			return r
		}, url)
	}
	url = strings.TrimSpace(url)
	for _, rw := range o.URLRewrites {
		if strings.HasPrefix(url, rw.From) {
			url = rw.To + url[len(rw.From):]
		}
	}
	return url
}

// Returns true if the organization has authz scopes for packages.
func (o *Organization) HasScopes() bool {
	return len(o.OpenAuthz) > 0 && len(o.SeqAuthz) > 0
}

// Renders an authz list the way the index stores it, for example
// ["/programs/Open/projects/A1"].
func FormatAuthz(scopes []string) string {
	b := bytes.Buffer{}
	b.WriteByte('[')
	for i, s := range scopes {
		if i > 0 {
			b.WriteString(", ")
		}
		q, _ := json.Marshal(s)
		b.Write(q)
	}
	b.WriteByte(']')
	return b.String()
}

func validColumn(name string, allowed []string) bool {
	for _, a := range allowed {
		if a == name {
			return true
		}
	}
	return false
}

func validatePatterns(field string, patterns []string) (errs []string) {
	for _, p := range patterns {
		if _, err := filepath.Match(strings.TrimPrefix(p, "**/"), ""); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %q is not a valid pattern.", field, p))
		}
	}
	return
}

// Returns every problem with the organization definition.
func (o *Organization) validate() (errs []string) {
	name := o.Name
	if name == "" {
		name = "<unnamed>"
		errs = append(errs, "organization name is required.")
	} else if strings.Contains(name, "_") {
		errs = append(errs, name+": name can not contain an underscore.")
	}
	if len(o.ManifestPatterns) == 0 {
		errs = append(errs, name+": at least one manifest pattern is required.")
	}
	for _, e := range validatePatterns("manifest_patterns", o.ManifestPatterns) {
		errs = append(errs, name+": "+e)
	}
	for _, e := range validatePatterns("series_patterns", o.SeriesPatterns) {
		errs = append(errs, name+": "+e)
	}
	for _, from := range sortedKeys(o.Renames) {
		if to := o.Renames[from]; !validColumn(to, manifest.InstanceColumns) {
			errs = append(errs, fmt.Sprintf(
				"%s: rename %s -> %s is not a canonical column.", name, from, to))
		}
	}
	seriesColumns := []string{"case_id", "study_id", "series_id"}
	for _, from := range sortedKeys(o.SeriesRenames) {
		if to := o.SeriesRenames[from]; !validColumn(to, seriesColumns) {
			errs = append(errs, fmt.Sprintf(
				"%s: series rename %s -> %s is not a series column.", name, from, to))
		}
	}
	for _, rw := range o.URLRewrites {
		if rw.From == "" {
			errs = append(errs, name+": url rewrites need a from prefix.")
		}
	}
	if o.SourceBucket == "" {
		errs = append(errs, name+": source_bucket is required.")
	}
	if (len(o.OpenAuthz) == 0) != (len(o.SeqAuthz) == 0) {
		errs = append(errs, name+": open_authz and seq_authz must be set together.")
	}
	return errs
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// The set of known organizations, keyed by name.
type Organizations struct {
	byName map[string]*Organization
}

// Returns the built in organization table.
func DefaultOrganizations() *Organizations {
	o := &Organizations{byName: make(map[string]*Organization)}
	for _, org := range builtins() {
		o.byName[org.Name] = org
	}
	return o
}

// The on disk format of an organizations file.
type organizationsFile struct {
	Organizations []*Organization `yaml:"organizations"`
}

// Parses a YAML organizations file. Entries replace built in
// organizations with the same name and add new ones otherwise. Every
// entry is validated and all problems are reported together.
func ParseOrganizations(data []byte) (*Organizations, error) {
	var f organizationsFile
	if err := yaml.UnmarshalStrict(data, &f); err != nil {
		return nil, errors.Wrap(err, "parsing organizations")
	}
	o := DefaultOrganizations()
	var errs []string
	seen := make(map[string]bool, len(f.Organizations))
	for _, org := range f.Organizations {
		if org == nil {
			continue
		}
		errs = append(errs, org.validate()...)
		if seen[org.Name] {
			errs = append(errs, org.Name+": defined more than once.")
		}
		seen[org.Name] = true
		o.byName[org.Name] = org
	}
	if len(errs) > 0 {
		return nil, errors.New(
			"Invalid organizations:\n  " + strings.Join(errs, "\n  "))
	}
	return o, nil
}

// Reads and parses an organizations file.
func LoadOrganizations(path string) (*Organizations, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading %s", path)
	}
	o, err := ParseOrganizations(data)
	if err != nil {
		return nil, errors.Wrap(err, path)
	}
	return o, nil
}

// Returns the organization named by a submission ("ACR_20220107" -> ACR),
// or the default organization when the prefix is not known.
func (o *Organizations) Lookup(submission string) *Organization {
	name := strings.SplitN(submission, "_", 2)[0]
	if org, ok := o.byName[name]; ok {
		return org
	}
	return o.byName[DefaultOrganization]
}

// Returns every organization name, sorted.
func (o *Organizations) Names() []string {
	names := make([]string, 0, len(o.byName))
	for name := range o.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
