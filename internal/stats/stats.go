// Package stats provides cheap debug counters, gated at run time by
// Enabled, used to instrument the scheduler and page-frame cache with
// next to no overhead when disabled — the same pattern the teacher kernel
// uses for its own debug counters.
package stats

import (
	"reflect"
	"strconv"
	"strings"
	"sync/atomic"
)

// Enabled gates whether Counter and Dump do any work at all. It is a
// variable, not a build tag, so tests can flip it on to assert behavior.
var Enabled = false

// Counter is an atomically updated event counter.
type Counter int64

// Inc increments the counter by one when stats are enabled.
func (c *Counter) Inc() {
	if Enabled {
		atomic.AddInt64((*int64)(c), 1)
	}
}

// Add increments the counter by n when stats are enabled.
func (c *Counter) Add(n int64) {
	if Enabled {
		atomic.AddInt64((*int64)(c), n)
	}
}

// Load returns the counter's current value.
func (c *Counter) Load() int64 {
	return atomic.LoadInt64((*int64)(c))
}

// Dump renders every Counter field of st (a struct value) as a
// human-readable report. Used by kernel diagnostics commands, not by any
// hot path.
func Dump(st interface{}) string {
	if !Enabled {
		return ""
	}
	v := reflect.ValueOf(st)
	var b strings.Builder
	t := v.Type()
	for i := 0; i < v.NumField(); i++ {
		if !strings.HasSuffix(t.Field(i).Type.String(), "Counter") {
			continue
		}
		n := v.Field(i).Interface().(Counter)
		b.WriteString("\n\t#")
		b.WriteString(t.Field(i).Name)
		b.WriteString(": ")
		b.WriteString(strconv.FormatInt(int64(n), 10))
	}
	b.WriteString("\n")
	return b.String()
}
