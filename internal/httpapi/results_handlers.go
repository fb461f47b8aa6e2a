package httpapi

import (
	"net/http"
	"time"
)

func (a *API) handleResults(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	electionID, err := queryInt(r, "electionId")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	res, err := a.results.Results(r.Context(), electionID)
	if err != nil {
		handleBallotError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, res)
}

func (a *API) handleResultsSSE(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	electionID, err := queryInt(r, "electionId")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, r, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	ch, err := a.feed.Subscribe(r.Context(), electionID)
	if err != nil {
		handleBallotError(w, r, err)
		return
	}

	// The stream runs until the client disconnects, so the server's
	// per-response write timeout must not apply here.
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	_, _ = w.Write([]byte(": stream started\n\n"))
	flusher.Flush()

	for frame := range ch {
		_, _ = w.Write([]byte("data: "))
		_, _ = w.Write(frame)
		_, _ = w.Write([]byte("\n\n"))
		flusher.Flush()
	}
}
