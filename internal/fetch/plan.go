// Package fetch downloads the upstream grid files of one model run.
package fetch

import (
	"fmt"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/couchcryptid/nwp-forecast-service/internal/domain"
)

// Task is one variable/step download.
type Task struct {
	Variable string
	Step     int
	URL      string
	Dest     string
}

// LatestRun returns the newest run expected to be published at now: now minus
// the publication delay, floored to the closest cycle hour at or before it.
func LatestRun(now time.Time, cycleHours []int, delay time.Duration) domain.Run {
	t := now.UTC().Add(-delay)
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)

	cycles := sortedCycles(cycleHours)
	for i := len(cycles) - 1; i >= 0; i-- {
		if cycles[i] <= t.Hour() {
			return domain.Run{Date: day, Cycle: cycles[i]}
		}
	}
	return domain.Run{Date: day.AddDate(0, 0, -1), Cycle: cycles[len(cycles)-1]}
}

// PreviousRun returns the cycle issued before run.
func PreviousRun(run domain.Run, cycleHours []int) domain.Run {
	return LatestRun(run.Time().Add(-time.Hour), cycleHours, 0)
}

func sortedCycles(cycleHours []int) []int {
	if len(cycleHours) == 0 {
		return []int{0}
	}
	cycles := slices.Clone(cycleHours)
	slices.Sort(cycles)
	return cycles
}

// Steps lists forecast steps: hourly through hourlyUntil, then every
// coarseHours up to maxStep.
func Steps(hourlyUntil, coarseHours, maxStep int) []int {
	if coarseHours <= 0 {
		coarseHours = 1
	}
	var steps []int
	for s := 0; s <= hourlyUntil && s <= maxStep; s++ {
		steps = append(steps, s)
	}
	for s := hourlyUntil + coarseHours; s <= maxStep; s += coarseHours {
		steps = append(steps, s)
	}
	return steps
}

// FileName is the local name of a decompressed grid file.
func FileName(variable string, step int) string {
	return fmt.Sprintf("%s_%03d.grib2", variable, step)
}

// RunDir is the directory holding the files of one run.
func RunDir(dataDir string, run domain.Run) string {
	return filepath.Join(dataDir, run.String())
}

// RemoteName is the published file name of a variable/step in the index.
func RemoteName(run domain.Run, variable string, step int) string {
	return fmt.Sprintf("icon-eu_europe_regular-lat-lon_single-level_%s_%03d_%s.grib2.bz2",
		run.String(), step, strings.ToUpper(variable))
}

// VariableURL is the index directory of a variable for the run's cycle.
func VariableURL(baseURL string, run domain.Run, variable string) string {
	return fmt.Sprintf("%s/%02d/%s/", strings.TrimRight(baseURL, "/"), run.Cycle, strings.ToLower(variable))
}

// Plan builds the deterministic task list of a run, variables first.
func Plan(baseURL, dataDir string, run domain.Run, variables []string, steps []int) []Task {
	dir := RunDir(dataDir, run)
	tasks := make([]Task, 0, len(variables)*len(steps))
	for _, v := range variables {
		for _, s := range steps {
			tasks = append(tasks, Task{
				Variable: v,
				Step:     s,
				URL:      VariableURL(baseURL, run, v) + RemoteName(run, v, s),
				Dest:     filepath.Join(dir, FileName(v, s)),
			})
		}
	}
	return tasks
}
