package config

import (
	"fmt"

	"github.com/aws/aws-sdk-go/aws/session"

	"github.com/liquidgecka/seriespack/normalize"
)

type top struct {
	// A mapping of AWS profile configurations by profile name.
	AWSProfiles map[string]*awsProfile `toml:"aws"`

	// Log configuration for the process.
	Log log `toml:"log"`

	// Where submission objects are read from and archives are written to.
	Source      store `toml:"source"`
	Destination store `toml:"destination"`

	// Archiver tuning.
	Archive archive `toml:"archive"`

	// Splitter buckets and scopes.
	Split split `toml:"split"`

	// A YAML file that overrides or extends the built in organization
	// table.
	OrganizationsFile *string `toml:"organizations_file"`

	// The organization table, built during validation.
	organizations *normalize.Organizations

	// The session used by stores that do not name a profile. Created on
	// first use.
	defaultSession *session.Session
}

func (t *top) getAWSSession(name string) (*session.Session, error) {
	if name == "" {
		if t.defaultSession == nil {
			sess, err := session.NewSessionWithOptions(session.Options{
				SharedConfigState: session.SharedConfigEnable,
			})
			if err != nil {
				return nil, err
			}
			t.defaultSession = sess
		}
		return t.defaultSession, nil
	}
	if a, ok := t.AWSProfiles[name]; !ok {
		return nil, fmt.Errorf("AWS profile %s does not exist.", name)
	} else if sess := a.session; sess == nil {
		return nil, fmt.Errorf("AWS profile %s is not initialized.", name)
	} else {
		return sess, nil
	}
}

func (t *top) validate() []string {
	var errors []string

	// AWSProfiles
	for name, profile := range t.AWSProfiles {
		if profile == nil {
			errors = append(errors, "aws."+name+" can not be empty.")
			continue
		}
		errors = append(errors, profile.validate(name)...)
	}

	// Source and Destination
	errors = append(errors, t.Source.validate(t, "source")...)
	errors = append(errors, t.Destination.validate(t, "destination")...)

	// Archive
	errors = append(errors, t.Archive.validate("archive")...)

	// Split
	errors = append(errors, t.Split.validate("split")...)

	// OrganizationsFile, which the -organizations flag replaces.
	if organizations != nil && *organizations != "" {
		t.OrganizationsFile = organizations
	}
	if t.OrganizationsFile == nil {
		t.organizations = normalize.DefaultOrganizations()
	} else if *t.OrganizationsFile == "" {
		errors = append(errors, "organizations_file can not be an empty string.")
	} else if orgs, err := normalize.LoadOrganizations(*t.OrganizationsFile); err != nil {
		errors = append(errors, "organizations_file: "+err.Error())
	} else {
		t.organizations = orgs
	}

	// Log
	errors = append(errors, t.Log.validate(t, "log")...)

	// Return any errors found.
	return errors
}
