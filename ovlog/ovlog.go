// Copyright 2019 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package ovlog centralizes diagnostics for the overlay tool on top of glog,
// gating parser tracing (-t) and warnings (-w) behind package-level switches
// that cmd/ovmerge flips from its own flags instead of glog's own -v.
package ovlog

import (
	log "github.com/golang/glog"
)

var (
	traceEnabled bool
	warnEnabled  bool
)

// SetTrace turns parser tracing (-t) on or off.
func SetTrace(on bool) { traceEnabled = on }

// SetWarnings turns warning emission (-w) on or off.
func SetWarnings(on bool) { warnEnabled = on }

// Tracef logs a parser trace line if tracing is enabled.
func Tracef(format string, args ...interface{}) {
	if traceEnabled {
		log.Infof(format, args...)
	}
}

// Warningf logs a warning if -w was requested; otherwise it is silently
// dropped, per spec.md §7 ("Warnings (only with -w)").
func Warningf(format string, args ...interface{}) {
	if warnEnabled {
		log.Warningf("warning: "+format, args...)
	}
}

// Exitf logs a fatal diagnostic and terminates the process with a non-zero
// exit status, matching spec.md §7's "process aborts with a stderr
// diagnostic and non-zero exit".
func Exitf(format string, args ...interface{}) {
	log.Exitf(format, args...)
}

// Flush flushes any buffered log entries; call before os.Exit.
func Flush() {
	log.Flush()
}
