// Package profiling starts and stops the runtime profilers of a node.
package profiling

import (
	"os"
	"runtime"
	"runtime/pprof"
	"runtime/trace"

	"github.com/felixge/fgprof"
	"go.uber.org/multierr"
)

// Config holds the paths of the profiles to write. An empty path disables the profile.
type Config struct {
	CPUProfile string
	MemProfile string
	Trace      string
	FgProf     string
}

// Enabled returns true if any profile is requested.
func (c Config) Enabled() bool {
	return c.CPUProfile != "" || c.MemProfile != "" || c.Trace != "" || c.FgProf != ""
}

// StartProfilers starts the requested profilers. The returned function stops them and writes the memory profile.
// If a profiler fails to start, the ones already started are stopped.
func StartProfilers(cfg Config) (stopProfile func() error, err error) {
	var stops []func() error
	stopAll := func() (err error) {
		// stop in reverse order of starting
		for i := len(stops) - 1; i >= 0; i-- {
			err = multierr.Append(err, stops[i]())
		}
		return err
	}

	if cfg.CPUProfile != "" {
		cpuProfile, err := os.Create(cfg.CPUProfile)
		if err != nil {
			return nil, err
		}
		if err := pprof.StartCPUProfile(cpuProfile); err != nil {
			return nil, multierr.Combine(err, cpuProfile.Close())
		}
		stops = append(stops, func() error {
			pprof.StopCPUProfile()
			return cpuProfile.Close()
		})
	}

	if cfg.FgProf != "" {
		fgprofProfile, err := os.Create(cfg.FgProf)
		if err != nil {
			return nil, multierr.Append(err, stopAll())
		}
		fgprofStop := fgprof.Start(fgprofProfile, fgprof.FormatPprof)
		stops = append(stops, func() error {
			return multierr.Append(fgprofStop(), fgprofProfile.Close())
		})
	}

	if cfg.Trace != "" {
		traceFile, err := os.Create(cfg.Trace)
		if err != nil {
			return nil, multierr.Append(err, stopAll())
		}
		if err := trace.Start(traceFile); err != nil {
			return nil, multierr.Combine(err, traceFile.Close(), stopAll())
		}
		stops = append(stops, func() error {
			trace.Stop()
			return traceFile.Close()
		})
	}

	if cfg.MemProfile != "" {
		// the heap profile is written last, when the profilers are stopped
		stops = append([]func() error{func() error { return writeHeapProfile(cfg.MemProfile) }}, stops...)
	}

	return stopAll, nil
}

func writeHeapProfile(path string) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, f.Close()) }()
	runtime.GC() // get up-to-date statistics
	return pprof.WriteHeapProfile(f)
}
