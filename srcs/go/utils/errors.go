package utils

import (
	"fmt"
	"os"
	"path"
	"runtime"
	"strings"

	"github.com/pkg/errors"
)

// ExitErr prints err with the location of the caller and exits with status 1.
func ExitErr(err error) {
	_, file, line, _ := runtime.Caller(1)
	fmt.Fprintf(os.Stderr, "%s: exit on error at %s:%d: %v\n", ProgName(), path.Base(file), line, err)
	os.Exit(1)
}

// MergeErrors folds the non-nil errors of errs into one, or returns nil.
func MergeErrors(errs []error, hint string) error {
	var msgs []string
	for _, e := range errs {
		if e != nil {
			msgs = append(msgs, e.Error())
		}
	}
	if len(msgs) == 0 {
		return nil
	}
	return errors.Errorf("%s failed with %s: %s", hint, Pluralize(len(msgs), "error", "errors"), strings.Join(msgs, "; "))
}
