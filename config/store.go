package config

import (
	"log/slog"

	"github.com/aws/aws-sdk-go/service/s3"

	"github.com/liquidgecka/seriespack/storage"
)

// Describes one side of the archiver: the bucket submissions are read
// from or the bucket archives are written to.
type store struct {
	// The bucket name. Optional for the source, where it overrides the
	// organization's source_bucket.
	Bucket *string `toml:"bucket"`

	// The aws profile used to reach the bucket. When unset the default
	// AWS credential chain is used.
	AWSProfile *string `toml:"aws_profile"`

	// Skip comparing the ETag returned by uploads with the archive md5.
	// Needed for buckets encrypted with SSE-KMS.
	SkipETagCheck *bool `toml:"skip_etag_check"`

	top  *top
	name string
}

func (s *store) bucket() string {
	if s.Bucket == nil {
		return ""
	}
	return *s.Bucket
}

// Builds the S3 backed store for this section.
func (s *store) Store(l *slog.Logger) (storage.Store, error) {
	profile := ""
	if s.AWSProfile != nil {
		profile = *s.AWSProfile
	}
	sess, err := s.top.getAWSSession(profile)
	if err != nil {
		return nil, err
	}
	return &storage.S3Store{
		Client:        s3.New(sess),
		Logger:        l,
		SkipETagCheck: s.SkipETagCheck != nil && *s.SkipETagCheck,
	}, nil
}

func (s *store) validate(t *top, name string) []string {
	var errors []string
	s.top = t
	s.name = name

	// Bucket
	if s.Bucket != nil && *s.Bucket == "" {
		errors = append(errors, name+".bucket can not be an empty string.")
	}

	// AWSProfile
	if s.AWSProfile != nil {
		if _, ok := t.AWSProfiles[*s.AWSProfile]; !ok {
			errors = append(
				errors,
				name+".aws_profile references an unknown profile: "+
					*s.AWSProfile)
		}
	}

	return errors
}
