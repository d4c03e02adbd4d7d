package normalize

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/liquidgecka/testlib"
)

func TestBuiltinsAreValid(t *testing.T) {
	T := testlib.NewT(t)
	defer T.Finish()

	for _, org := range builtins() {
		T.Equal(org.validate(), []string(nil))
	}
	T.Equal(DefaultOrganizations().Names(), []string{"ACR", "RSNA", "default"})
}

func TestOrganizations_Lookup(t *testing.T) {
	T := testlib.NewT(t)
	defer T.Finish()

	orgs := DefaultOrganizations()
	T.Equal(orgs.Lookup("ACR_20220107").Name, "ACR")
	T.Equal(orgs.Lookup("RSNA_20220427").Name, "RSNA")
	T.Equal(orgs.Lookup("RSNA").Name, "RSNA")
	T.Equal(orgs.Lookup("TCIA_batch_1").Name, DefaultOrganization)
	T.Equal(orgs.Lookup("").Name, DefaultOrganization)
}

func TestOrganization_SourceKey(t *testing.T) {
	T := testlib.NewT(t)
	defer T.Finish()

	orgs := DefaultOrganizations()
	T.Equal(
		orgs.Lookup("ACR_1").SourceKey("//ACR_1/c1/1.dcm"),
		"replicated-data-acr/ACR_1/c1/1.dcm")
	T.Equal(
		orgs.Lookup("RSNA_1").SourceKey("s3://storage.ir.rsna.ai/x/1.dcm"),
		"x/1.dcm")
	T.Equal(
		orgs.Lookup("TCIA_1").SourceKey("['s3://midrcprod-default-813684607867-upload/a/b.dcm']"),
		"a/b.dcm")
	T.Equal(orgs.Lookup("RSNA_1").SourceKey("already/a/key"), "already/a/key")
}

func TestFormatAuthz(t *testing.T) {
	T := testlib.NewT(t)
	defer T.Finish()

	T.Equal(FormatAuthz([]string{"/programs/Open/projects/A1"}), `["/programs/Open/projects/A1"]`)
	T.Equal(FormatAuthz([]string{"/a", "/b"}), `["/a", "/b"]`)
	T.Equal(FormatAuthz(nil), `[]`)
}

func TestParseOrganizations(t *testing.T) {
	T := testlib.NewT(t)
	defer T.Finish()

	data := []byte(`
organizations:
  - name: MIDRC
    manifest_patterns: ["*manifest*.tsv"]
    single_manifest: true
    renames:
      case_ids: case_id
    url_rewrites:
      - from: "s3://midrc-upload/"
        to: ""
    source_bucket: midrc-upload
    open_authz: ["/programs/Open/projects/M1"]
    seq_authz: ["/programs/SEQ_Open/projects/M3"]
  - name: ACR
    manifest_patterns: ["acr*.tsv"]
    source_bucket: other
`)
	orgs, err := ParseOrganizations(data)
	T.ExpectSuccess(err)
	T.Equal(orgs.Names(), []string{"ACR", "MIDRC", "RSNA", "default"})
	m := orgs.Lookup("MIDRC_2023")
	T.Equal(m.SourceBucket, "midrc-upload")
	T.Equal(m.SourceKey("s3://midrc-upload/k"), "k")
	T.Equal(m.HasScopes(), true)
	T.Equal(m.SingleManifest, true)
	T.Equal(orgs.Lookup("ACR_1").SourceBucket, "other")
	T.Equal(orgs.Lookup("ACR_1").SingleManifest, false)
	T.Equal(orgs.Lookup("RSNA_1").SingleManifest, true)
	T.Equal(orgs.Lookup("TCIA_1").SingleManifest, false)
	T.Equal(orgs.Lookup("ACR_1").HasScopes(), false)

	// Every problem is reported.
	data = []byte(`
organizations:
  - name: BAD_NAME
    renames:
      x: nope
    open_authz: ["/a"]
  - name: TWICE
    manifest_patterns: ["["]
    source_bucket: b
  - name: TWICE
    manifest_patterns: ["*.tsv"]
    source_bucket: b
`)
	_, err = ParseOrganizations(data)
	T.ExpectErrorMessage(err, "BAD_NAME: name can not contain an underscore.")
	T.ExpectErrorMessage(err, "BAD_NAME: at least one manifest pattern is required.")
	T.ExpectErrorMessage(err, "BAD_NAME: rename x -> nope is not a canonical column.")
	T.ExpectErrorMessage(err, "BAD_NAME: source_bucket is required.")
	T.ExpectErrorMessage(err, "BAD_NAME: open_authz and seq_authz must be set together.")
	T.ExpectErrorMessage(err, `TWICE: manifest_patterns: "[" is not a valid pattern.`)
	T.ExpectErrorMessage(err, "TWICE: defined more than once.")

	// Unknown keys are rejected.
	_, err = ParseOrganizations([]byte("organizations:\n  - name: X\n    bogus: 1\n"))
	T.ExpectErrorMessage(err, "parsing organizations")
}

func TestLoadOrganizations(t *testing.T) {
	T := testlib.NewT(t)
	defer T.Finish()

	p := filepath.Join(T.TempDir(), "orgs.yaml")
	T.ExpectSuccess(os.WriteFile(p, []byte("organizations: []\n"), 0o644))
	orgs, err := LoadOrganizations(p)
	T.ExpectSuccess(err)
	T.Equal(orgs.Names(), []string{"ACR", "RSNA", "default"})

	_, err = LoadOrganizations(p + ".missing")
	T.ExpectErrorMessage(err, "reading")
}
