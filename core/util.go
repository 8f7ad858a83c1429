package core

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/pkg/errors"
)

var errRootNotFound = errors.New("project root not found")

// findRoot walks up from the working directory until it finds the module's go.mod.
// go-test changes the working directory to the package being tested, so config files
// cannot be looked up relative to it.
func findRoot() (string, error) {
	wd, err := os.Getwd()
	if err != nil {
		return "", errors.Wrap(err, "getting working directory")
	}
	currDir := wd
	for {
		if fi, err := os.Stat(filepath.Join(currDir, "go.mod")); err == nil && !fi.IsDir() {
			return currDir, nil
		}
		newDir := filepath.Dir(currDir)
		if newDir == currDir {
			return "", errRootNotFound
		}
		currDir = newDir
	}
}

// WaitReady retries op with exponential backoff until it succeeds, maxWait elapsed or ctx is done.
// It is used to wait for backing services (database, redis, broker) at startup.
func WaitReady(ctx context.Context, maxWait time.Duration, op func() error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 100 * time.Millisecond
	b.MaxElapsedTime = maxWait
	return backoff.Retry(op, backoff.WithContext(b, ctx))
}
