package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	toml "github.com/pelletier/go-toml"
	"github.com/pkg/errors"

	"github.com/liquidgecka/seriespack/archiver"
	"github.com/liquidgecka/seriespack/internal/backoff"
	"github.com/liquidgecka/seriespack/internal/journal"
	"github.com/liquidgecka/seriespack/internal/sloghelper"
	"github.com/liquidgecka/seriespack/normalize"
	"github.com/liquidgecka/seriespack/sequester"
)

type Config struct {
	top *top

	// Ensures that logging is only initialized once.
	initializeOnce sync.Once
	initializeErr  error
}

// Parses a file and validates its contents, returning the objects that can
// be used for configuration later. An empty filename yields the defaults.
func Parse(filename string) (*Config, error) {
	if filename == "" {
		return parse(strings.NewReader(""))
	}

	// Open the file.
	fd, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer fd.Close()
	return parse(fd)
}

func parse(r io.Reader) (*Config, error) {
	// Read the contents of the file into a toml parser.
	top := &top{}
	decoder := toml.NewDecoder(r).Strict(true)
	if err := decoder.Decode(top); err != nil {
		return nil, err
	}

	// Success.. The toml was read, now we need to validate that it is
	// correct and that all of the values are valid.
	if errs := top.validate(); errs != nil {
		return nil, fmt.Errorf("%s\n", strings.Join(errs, "\n"))
	}

	// Success!
	return &Config{top: top}, nil
}

// Initializes the logging system.
func (c *Config) InitializeLogging() error {
	c.initializeOnce.Do(func() {
		c.initializeErr = c.top.Log.initLogging()
	})
	return c.initializeErr
}

// Returns the top level logger that was generated during initialization.
func (c *Config) GetLogger() *slog.Logger {
	if err := c.InitializeLogging(); err != nil {
		panic(err)
	}
	return c.top.Log.logger
}

// Returns the log rotator if logs are written to a file.
func (c *Config) GetRotators() []*sloghelper.Rotator {
	if err := c.InitializeLogging(); err != nil {
		panic(err)
	}
	if c.top.Log.rotator == nil {
		return nil
	}
	return []*sloghelper.Rotator{c.top.Log.rotator}
}

// Returns the organization table.
func (c *Config) GetOrganizations() *normalize.Organizations {
	return c.top.organizations
}

func (c *Config) NormalizerSettings() *normalize.Settings {
	return &normalize.Settings{
		Organizations: c.top.organizations,
		Logger:        c.GetLogger(),
	}
}

// Builds the Archiver settings for an organization. The S3 clients are
// created here, and the journal is opened when one is configured; the
// caller closes it.
func (c *Config) ArchiverSettings(org *normalize.Organization) (*archiver.Settings, error) {
	l := c.GetLogger()
	a := &c.top.Archive
	if c.top.Destination.Bucket == nil {
		return nil, errors.New("destination.bucket is required to build archives.")
	}
	source, err := c.top.Source.Store(l)
	if err != nil {
		return nil, errors.Wrap(err, "source")
	}
	dest, err := c.top.Destination.Store(l)
	if err != nil {
		return nil, errors.Wrap(err, "destination")
	}
	settings := &archiver.Settings{
		Source:            source,
		Destination:       dest,
		DestinationBucket: c.top.Destination.bucket(),
		Organization:      org,
		SourceBucket:      c.top.Source.bucket(),
		Workers:           *a.Workers,
		MaxArchiveSize:    a.maxArchiveSize,
		Retry: backoff.Retry{
			Attempts: *a.Attempts,
			Delay:    a.retryDelay,
			MaxDelay: a.maxRetryDelay,
			Timeout:  a.timeout,
		},
		Logger: l,
	}

	// Zero in the file asks for a machine sized pool.
	if settings.Workers == 0 {
		settings.Workers = -1
	}
	if a.Journal != nil {
		if settings.Journal, err = journal.Open(*a.Journal); err != nil {
			return nil, errors.Wrap(err, "opening journal")
		}
	}
	return settings, nil
}

// Builds the Splitter settings around a loaded classification and
// exclusion sets.
func (c *Config) SplitterSettings(
	classification sequester.Classification,
	excludeStudies, excludeCases sequester.Set,
) *sequester.Settings {
	s := &c.top.Split
	return &sequester.Settings{
		Classification: classification,
		ExcludeStudies: excludeStudies,
		ExcludeCases:   excludeCases,
		Organizations:  c.top.organizations,
		OpenBucket:     *s.OpenBucket,
		SeqBucket:      *s.SeqBucket,
		IgnoreAuthz:    s.IgnoreAuthz,
		GUIDPrefix:     *s.GUIDPrefix,
		Logger:         c.GetLogger(),
	}
}
