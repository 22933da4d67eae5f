package handler

import (
	"errors"
	"io"
	"net/http"
)

var errGone = errors.New("short code has expired")

func writeTextError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	io.WriteString(w, msg+"\n")
}

func handleRedirect(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == "/" {
		http.Error(w, "code is required", http.StatusBadRequest) // want "http.Error is forbidden in handlers, use writeError or writeTextError"
		return
	}
	if r.URL.Path == "/old" {
		writeTextError(w, http.StatusGone, errGone.Error())
		return
	}
	http.Redirect(w, r, "https://example.com", http.StatusTemporaryRedirect)
}
