package config

import (
	"fmt"
	"strings"

	"github.com/liquidgecka/seriespack/sequester"
)

type split struct {
	// Bucket URIs prepended to the url of open and sequestered packages.
	OpenBucket *string `toml:"open_bucket"`
	SeqBucket  *string `toml:"seq_bucket"`

	// The authz list given to packages of cases classified Ignore.
	IgnoreAuthz []string `toml:"ignore_authz"`

	// The prefix of every package GUID.
	GUIDPrefix *string `toml:"guid_prefix"`
}

func bucketURI(name string, v *string, def string) (string, []string) {
	if v == nil {
		return def, nil
	}
	if !strings.HasPrefix(*v, "s3://") {
		return "", []string{name + " must start with s3://"}
	}
	uri := *v
	if !strings.HasSuffix(uri, "/") {
		uri += "/"
	}
	return uri, nil
}

// Checks an authz scope list. Every scope must be non-empty and appear
// once; each repeated scope is reported at its first repeat.
func checkScopes(name string, scopes []string) []string {
	var errors []string
	reported := make(map[string]bool, len(scopes))
	for i, scope := range scopes {
		if scope == "" {
			errors = append(errors, fmt.Sprintf(
				"%s: List contains an empty string at index %d",
				name,
				i))
		}
		if done, seen := reported[scope]; seen && !done {
			errors = append(errors, fmt.Sprintf(
				"%s: Duplicate item in the list at index %d: %s",
				name,
				i,
				scope))
			reported[scope] = true
		} else if !seen {
			reported[scope] = false
		}
	}
	return errors
}

func (s *split) validate(name string) []string {
	var errors []string

	// OpenBucket, SeqBucket
	open, errs := bucketURI(name+".open_bucket", s.OpenBucket, sequester.DefaultOpenBucket)
	errors = append(errors, errs...)
	s.OpenBucket = &open
	seq, errs := bucketURI(name+".seq_bucket", s.SeqBucket, sequester.DefaultSeqBucket)
	errors = append(errors, errs...)
	s.SeqBucket = &seq

	// IgnoreAuthz
	if s.IgnoreAuthz == nil {
		s.IgnoreAuthz = sequester.DefaultIgnoreAuthz
	} else {
		errors = append(errors, checkScopes(name+".ignore_authz", s.IgnoreAuthz)...)
	}

	// GUIDPrefix
	if s.GUIDPrefix == nil {
		prefix := sequester.DefaultGUIDPrefix
		s.GUIDPrefix = &prefix
	} else if !strings.HasSuffix(*s.GUIDPrefix, "/") {
		errors = append(errors, name+".guid_prefix must end with a /.")
	}

	return errors
}
