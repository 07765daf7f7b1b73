package replay

import (
	"errors"

	"backend-slopetrack/internal/location"
	"backend-slopetrack/internal/pipeline"
	"backend-slopetrack/internal/runs"
)

// Result summarizes one offline pass.
type Result struct {
	Accepted   int
	Rejected   int
	Rejections map[location.Reason]int
	Runs       []runs.Run
	Discarded  []*runs.ValidationError
}

// Run feeds readings to tr using each reading's own timestamp as the clock,
// then stops tracking at the last reading so a run still in progress is
// validated too.
func Run(tr *pipeline.Tracker, readings []location.RawReading) Result {
	res := Result{Rejections: map[location.Reason]int{}}
	for _, raw := range readings {
		up := tr.Process(raw, raw.Timestamp)
		if up.Accepted {
			res.Accepted++
		} else {
			res.Rejected++
			if up.Rejection != nil {
				res.Rejections[up.Rejection.Reason]++
			}
		}
		if up.Finalized != nil {
			res.Runs = append(res.Runs, *up.Finalized)
		}
		if up.Discarded != nil {
			res.Discarded = append(res.Discarded, up.Discarded)
		}
	}
	if len(readings) == 0 {
		return res
	}

	run, err := tr.Stop(readings[len(readings)-1].Timestamp)
	var verr *runs.ValidationError
	if errors.As(err, &verr) {
		res.Discarded = append(res.Discarded, verr)
	}
	if run != nil {
		res.Runs = append(res.Runs, *run)
	}
	return res
}
