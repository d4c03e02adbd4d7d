package config

import (
	"fmt"
	"net/url"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/arn"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/credentials/ec2rolecreds"
	"github.com/aws/aws-sdk-go/aws/credentials/stscreds"
	"github.com/aws/aws-sdk-go/aws/session"
)

// One named set of AWS credentials, configured as [aws.<name>] and
// referenced by the aws_profile key of [source] and [destination].
type awsProfile struct {
	KeyID           *string `toml:"key_id"`
	SecretKey       *string `toml:"secret_key"`
	Region          *string `toml:"region"`
	AssumeRoleARN   *string `toml:"assume_role_arn"`
	Profile         *string `toml:"profile"`
	FromEnvironment *bool   `toml:"from_environment"`
	FromEC2Role     *bool   `toml:"from_ec2_role"`

	// An S3 compatible service to talk to instead of AWS.
	Endpoint *string `toml:"endpoint"`

	// Address buckets in the request path rather than the host name.
	// Most S3 compatible services need this along with Endpoint.
	ForcePathStyle *bool `toml:"s3_force_path_style"`

	// Created once validation succeeds.
	session *session.Session
}

func isSet(b *bool) bool {
	return b != nil && *b
}

// Returns the names of every credential source that was configured.
func (a *awsProfile) authMethods() []string {
	methods := make([]string, 0, 4)
	if a.KeyID != nil {
		methods = append(methods, "provided key")
	}
	if isSet(a.FromEnvironment) {
		methods = append(methods, "from environment")
	}
	if isSet(a.FromEC2Role) {
		methods = append(methods, "from ec2 role")
	}
	if a.Profile != nil {
		methods = append(methods, "from profile")
	}
	return methods
}

func (a *awsProfile) validate(name string) []string {
	var errors []string
	prefix := "aws." + name

	if (a.KeyID == nil) != (a.SecretKey == nil) {
		errors = append(errors, fmt.Sprintf(
			"%s.key_id and %s.secret_key must be used together.",
			prefix,
			prefix))
	}
	for key, v := range map[string]*string{
		"key_id":     a.KeyID,
		"secret_key": a.SecretKey,
		"region":     a.Region,
		"profile":    a.Profile,
	} {
		if v != nil && *v == "" {
			errors = append(errors, fmt.Sprintf(
				"%s.%s can not be an empty string.",
				prefix,
				key))
		}
	}

	// AssumeRoleARN
	if a.AssumeRoleARN != nil {
		if parsed, err := arn.Parse(*a.AssumeRoleARN); err != nil {
			errors = append(errors, fmt.Sprintf(
				"%s.assume_role_arn is not a valid arn: %s",
				prefix,
				err.Error()))
		} else if parsed.Service != "iam" {
			errors = append(errors, fmt.Sprintf(
				"%s.assume_role_arn is not an iam ARN (it is %s instead)",
				prefix,
				parsed.Service))
		}
	}

	// Endpoint
	if a.Endpoint != nil {
		if u, err := url.Parse(*a.Endpoint); err != nil || u.Host == "" {
			errors = append(errors, prefix+".endpoint must be a URL with a host.")
		} else if u.Scheme != "http" && u.Scheme != "https" {
			errors = append(errors, prefix+".endpoint must use http or https.")
		}
	}

	if len(a.authMethods()) > 1 {
		errors = append(errors, fmt.Sprintf(
			"%s: More than one AWS authentication method selected.",
			prefix))
	}

	// Only build the session for a profile that is otherwise valid.
	if errors == nil {
		if err := a.connect(); err != nil {
			errors = append(errors, fmt.Sprintf("%s: %s", prefix, err.Error()))
		}
	}
	return errors
}

// The client configuration shared by the base session and the assumed
// role session.
func (a *awsProfile) awsConfig() aws.Config {
	cfg := aws.Config{Region: a.Region}
	if a.Endpoint != nil {
		cfg.Endpoint = a.Endpoint
	}
	if isSet(a.ForcePathStyle) {
		cfg.S3ForcePathStyle = aws.Bool(true)
	}
	return cfg
}

// Creates the session used by every store that names this profile.
func (a *awsProfile) connect() error {
	opts := session.Options{Config: a.awsConfig()}
	switch {
	case a.KeyID != nil:
		opts.Config.Credentials = credentials.NewStaticCredentials(
			*a.KeyID,
			*a.SecretKey,
			"")
	case isSet(a.FromEnvironment):
		opts.Config.Credentials = credentials.NewEnvCredentials()
	case a.Profile != nil:
		opts.Profile = *a.Profile
		opts.SharedConfigState = session.SharedConfigEnable
	case isSet(a.FromEC2Role):
		opts.Config.Credentials = ec2rolecreds.NewCredentials(
			session.Must(session.NewSession()))
	}
	sess, err := session.NewSessionWithOptions(opts)
	if err != nil {
		return fmt.Errorf("Error initializing the AWS session: %s", err.Error())
	}

	// A role is assumed with the credentials configured above.
	if a.AssumeRoleARN != nil {
		cfg := a.awsConfig()
		cfg.Credentials = stscreds.NewCredentials(sess, *a.AssumeRoleARN)
		if sess, err = session.NewSession(&cfg); err != nil {
			return fmt.Errorf(
				"Error assuming role %q: %s",
				*a.AssumeRoleARN,
				err.Error())
		}
	}
	a.session = sess
	return nil
}
