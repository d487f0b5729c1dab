package dispatch

import "github.com/rs/zerolog/log"

// reportRunFailure is the fire-and-forget sink for kRunFailure: the core
// does not wrap or retry a pip's error, it only logs it so the failure is
// not silently lost on the launch goroutine.
func (q *DispatcherQueue) reportRunFailure(pip RunnablePip, err error) {
	log.Error().
		Err(err).
		Int32("priority", pip.Priority()).
		Int32("weight", pip.Weight()).
		Msg("pip run failed")
}

// reportShutdownSubmit logs the one kInvalidOperation ChooseWorkerQueue is
// documented to swallow: submitting to a dedicated pool that is already
// disposed, which only happens while the outer scheduler is shutting down.
func reportShutdownSubmit(pip RunnablePip) {
	log.Debug().
		Int32("priority", pip.Priority()).
		Msg("choose-worker pool disposed before pip could be scheduled, dropping during shutdown")
}
