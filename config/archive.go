package config

import (
	"fmt"
	"time"
)

var (
	defaultArchiveWorkers    = int(6)
	defaultArchiveAttempts   = int(5)
	defaultArchiveTimeout    = 5 * time.Minute
	defaultArchiveRetryDelay = time.Second
	defaultArchiveMaxDelay   = 30 * time.Second
)

type archive struct {
	// The number of series archived in parallel. Zero sizes the pool from
	// the machine's memory.
	Workers *int `toml:"workers"`

	// The largest archive that will be built. Accepts byte suffixes
	// ("4gib").
	MaxArchiveSize *value `toml:"max_archive_size"`

	// Attempts per object fetch or archive upload, and the timeout given
	// to each attempt.
	Attempts *int   `toml:"attempts"`
	Timeout  *value `toml:"timeout"`

	// Delay before the first retry, doubling up to max_retry_delay.
	RetryDelay    *value `toml:"retry_delay"`
	MaxRetryDelay *value `toml:"max_retry_delay"`

	// A sqlite database recording archived series so that interrupted
	// runs resume where they stopped.
	Journal *string `toml:"journal"`

	maxArchiveSize int64
	timeout        time.Duration
	retryDelay     time.Duration
	maxRetryDelay  time.Duration
}

// Parses a duration value into out, or assigns def when v is unset.
func parseDuration(
	name string,
	v *value,
	def time.Duration,
	out *time.Duration,
) []string {
	if v == nil {
		*out = def
		return nil
	}
	d, err := v.Duration()
	if err != nil {
		return []string{fmt.Sprintf("%s is invalid: %s", name, err.Error())}
	} else if d <= 0 {
		return []string{name + " must be positive."}
	}
	*out = d
	return nil
}

func (a *archive) validate(name string) []string {
	var errors []string

	// Workers
	if a.Workers == nil {
		a.Workers = &defaultArchiveWorkers
	} else if *a.Workers < 0 {
		errors = append(errors, name+".workers can not be negative.")
	}

	// MaxArchiveSize
	if a.MaxArchiveSize != nil {
		if size, err := a.MaxArchiveSize.Bytes(); err != nil {
			errors = append(errors, fmt.Sprintf(
				"%s.max_archive_size is invalid: %s",
				name,
				err.Error()))
		} else {
			a.maxArchiveSize = size
		}
	}

	// Attempts
	if a.Attempts == nil {
		a.Attempts = &defaultArchiveAttempts
	} else if *a.Attempts < 1 {
		errors = append(errors, name+".attempts can not be less than 1.")
	}

	// Timeout, RetryDelay, MaxRetryDelay
	errors = append(errors, parseDuration(
		name+".timeout", a.Timeout, defaultArchiveTimeout, &a.timeout)...)
	errors = append(errors, parseDuration(
		name+".retry_delay", a.RetryDelay, defaultArchiveRetryDelay, &a.retryDelay)...)
	errors = append(errors, parseDuration(
		name+".max_retry_delay", a.MaxRetryDelay, defaultArchiveMaxDelay, &a.maxRetryDelay)...)
	if a.maxRetryDelay > 0 && a.retryDelay > a.maxRetryDelay {
		errors = append(
			errors,
			name+".retry_delay can not exceed "+name+".max_retry_delay.")
	}

	// Journal
	if a.Journal != nil && *a.Journal == "" {
		errors = append(errors, name+".journal can not be an empty string.")
	}

	return errors
}
