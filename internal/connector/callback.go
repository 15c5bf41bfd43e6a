package connector

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"
)

// authTimeout bounds how long an interactive flow waits for the provider to
// redirect back.
const authTimeout = 5 * time.Minute

type callbackResult struct {
	code  string
	state string
	err   error
}

// callbackServer is the loopback HTTP listener that receives the OAuth
// redirect. It serves exactly one callback, hands the code and state to the
// waiting flow, and is then closed.
type callbackServer struct {
	ln      net.Listener
	srv     *http.Server
	results chan callbackResult
}

func startCallbackServer(port int) (*callbackServer, error) {
	ln, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
	if err != nil {
		return nil, fmt.Errorf("connector: bind callback port %d: %w", port, err)
	}

	cs := &callbackServer{
		ln:      ln,
		results: make(chan callbackResult, 1),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/callback", cs.handle)
	cs.srv = &http.Server{Handler: mux}

	go cs.srv.Serve(ln)
	return cs, nil
}

func (cs *callbackServer) handle(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var res callbackResult
	switch {
	case q.Get("error") != "":
		reason := q.Get("error")
		if desc := q.Get("error_description"); desc != "" {
			reason += ": " + desc
		}
		res = callbackResult{err: &ExchangeError{Reason: reason}}
	case q.Get("code") == "" || q.Get("state") == "":
		res = callbackResult{err: &ExchangeError{Reason: "missing code or state in callback"}}
	default:
		res = callbackResult{code: q.Get("code"), state: q.Get("state")}
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if res.err != nil {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, callbackPage("Authorization failed", "You can close this window and retry from the app."))
	} else {
		fmt.Fprint(w, callbackPage("Authorization complete", "You can close this window and return to the app."))
	}

	select {
	case cs.results <- res:
	default:
		// A second hit on the callback URL after the flow finished.
	}
}

// Wait blocks until the callback arrives, the context is cancelled (user
// closed the flow), or the auth timeout elapses.
func (cs *callbackServer) Wait(ctx context.Context) (code, state string, err error) {
	select {
	case res := <-cs.results:
		return res.code, res.state, res.err
	case <-ctx.Done():
		return "", "", ctx.Err()
	case <-time.After(authTimeout):
		return "", "", errors.New("connector: timed out waiting for authorization callback")
	}
}

// Close shuts the listener down.
func (cs *callbackServer) Close() {
	cs.srv.Close()
}

func callbackPage(title, detail string) string {
	return fmt.Sprintf(`<!DOCTYPE html>
<html><head><meta charset="utf-8"><title>%s</title></head>
<body style="font-family:-apple-system,BlinkMacSystemFont,'Segoe UI',sans-serif;text-align:center;padding:50px">
<h1>%s</h1><p>%s</p>
</body></html>`, title, title, detail)
}
