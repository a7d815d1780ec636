package metrics

import (
	"fmt"
	"net/http"
	"sync/atomic"
)

var (
	runsStarted       atomic.Int64
	runsSucceeded     atomic.Int64
	runsFailed        atomic.Int64
	runsCancelled     atomic.Int64
	recordsFetched    atomic.Int64
	candidatesStaged  atomic.Int64
	candidatesUpdated atomic.Int64
	promotions        atomic.Int64
	refreshMutations  atomic.Int64
	recordErrors      atomic.Int64
)

func RunStarted() { runsStarted.Add(1) }

func RunSucceeded() { runsSucceeded.Add(1) }

func RunFailed() { runsFailed.Add(1) }

func RunCancelled() { runsCancelled.Add(1) }

func RecordFetched() { recordsFetched.Add(1) }

func CandidateStaged() { candidatesStaged.Add(1) }

func CandidateUpdated() { candidatesUpdated.Add(1) }

func Promotion() { promotions.Add(1) }

func RefreshMutation() { refreshMutations.Add(1) }

func RecordError() { recordErrors.Add(1) }

func WritePrometheus(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")

	writeCounter(w, "sneakly_pipeline_runs_started_total", "Scraper runs started.", runsStarted.Load())
	writeCounter(w, "sneakly_pipeline_runs_succeeded_total", "Scraper runs finished in succeeded state.", runsSucceeded.Load())
	writeCounter(w, "sneakly_pipeline_runs_failed_total", "Scraper runs finished in failed state.", runsFailed.Load())
	writeCounter(w, "sneakly_pipeline_runs_cancelled_total", "Scraper runs finished in cancelled state.", runsCancelled.Load())
	writeCounter(w, "sneakly_pipeline_records_fetched_total", "Raw records received from source adapters.", recordsFetched.Load())
	writeCounter(w, "sneakly_pipeline_candidates_staged_total", "New candidate products inserted into staging.", candidatesStaged.Load())
	writeCounter(w, "sneakly_pipeline_candidates_updated_total", "Existing candidate products refreshed in place.", candidatesUpdated.Load())
	writeCounter(w, "sneakly_pipeline_promotions_total", "Candidates promoted into the canonical catalog.", promotions.Load())
	writeCounter(w, "sneakly_pipeline_refresh_mutations_total", "Price/stock fields written by targeted refresh.", refreshMutations.Load())
	writeCounter(w, "sneakly_pipeline_record_errors_total", "Per-record errors counted against runs.", recordErrors.Load())
}

func writeCounter(w http.ResponseWriter, name, help string, value int64) {
	fmt.Fprintf(w, "# HELP %s %s\n", name, help)
	fmt.Fprintf(w, "# TYPE %s counter\n", name)
	fmt.Fprintf(w, "%s %d\n", name, value)
}
