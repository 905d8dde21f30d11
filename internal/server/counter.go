package server

import (
	"net/http"

	"github.com/colonyops/filesession/internal/httpsession"
	"github.com/colonyops/filesession/pkg/iojson"
)

const visitsKey = "visits"

type counterResponse struct {
	Visits  int  `json:"visits"`
	NewSess bool `json:"new_session"`
}

// CounterApp is the demo application behind the session middleware. GET /
// counts visits in the session; POST /logout invalidates it.
func CounterApp() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", handleCount)
	mux.HandleFunc("POST /logout", handleLogout)
	return mux
}

func handleCount(w http.ResponseWriter, r *http.Request) {
	s := httpsession.FromContext(r.Context())
	if s == nil {
		http.Error(w, "session middleware not installed", http.StatusInternalServerError)
		return
	}

	isNew := s.IsNew()
	visits := visitCount(s) + 1
	s.Set(visitsKey, visits)

	w.Header().Set("Content-Type", "application/json")
	_ = iojson.WriteLine(w, counterResponse{Visits: visits, NewSess: isNew})
}

func handleLogout(w http.ResponseWriter, r *http.Request) {
	s := httpsession.FromContext(r.Context())
	if s == nil {
		http.Error(w, "session middleware not installed", http.StatusInternalServerError)
		return
	}

	s.Invalidate()
	w.WriteHeader(http.StatusNoContent)
}

// visitCount reads the counter. Stored numbers come back from disk as
// float64.
func visitCount(s *httpsession.Session) int {
	v, _ := s.Get(visitsKey)
	switch n := v.(type) {
	case int:
		return n
	case float64:
		return int(n)
	default:
		return 0
	}
}
