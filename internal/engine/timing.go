package engine

import "time"

// EstimateSplit apportions a measured total into prompt evaluation and token
// generation. The backend does not report these separately, so the split is a
// fixed 10/90 estimate, not a measurement.
func EstimateSplit(total time.Duration) (promptEval, eval time.Duration) {
	if total <= 0 {
		return 0, 0
	}
	promptEval = total / 10
	return promptEval, total - promptEval
}
