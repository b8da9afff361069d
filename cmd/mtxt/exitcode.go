package main

import (
	"errors"
	"io/fs"

	"github.com/supersational/mtxt/internal/mtxterr"
)

// stage tags which half of the pipeline produced a diagnostics bag, since
// spec §6 maps parse failures and conversion failures to different exit
// codes.
type stage int

const (
	stageParse stage = iota
	stageConversion
)

// bagErr adapts a Bag carrying at least one error-severity diagnostic into
// a Go error, so run can return it through the normal error path instead
// of a second out-of-band channel.
type bagErr struct {
	stage stage
	bag   *mtxterr.Bag
}

func (e *bagErr) Error() string {
	errs := e.bag.Errors()
	if len(errs) == 0 {
		return "unknown error"
	}
	msg := errs[0].String()
	for _, d := range errs[1:] {
		msg += "; " + d.String()
	}
	return msg
}

// usageErr marks a malformed invocation (bad flag value) distinctly from a
// parse or conversion failure, even though both print a plain message.
type usageErr struct {
	msg string
}

func (e *usageErr) Error() string { return e.msg }

// exitCode maps a run error to the process exit status spec §6 names: 1
// for a text-parse failure, 2 for an I/O failure, 3 for a MIDI conversion
// failure, 64 for anything else (bad flags, bad arguments, cobra's own
// usage errors).
func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var be *bagErr
	if errors.As(err, &be) {
		if be.stage == stageParse {
			return 1
		}
		return 3
	}
	var convErr *mtxterr.ConversionError
	if errors.As(err, &convErr) {
		return 3
	}
	var parseErr *mtxterr.ParseError
	if errors.As(err, &parseErr) {
		return 1
	}
	var pathErr *fs.PathError
	if errors.As(err, &pathErr) {
		return 2
	}
	return 64
}
