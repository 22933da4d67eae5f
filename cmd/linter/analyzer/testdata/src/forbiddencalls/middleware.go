package forbiddencalls

import (
	"log"
	"net/http"
)

func RejectLarge(next http.Handler) http.Handler {
	logger := log.Default()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.ContentLength > 1<<16 {
			http.Error(w, "request body too large", http.StatusRequestEntityTooLarge)
			logger.Fatal("methods named Fatal are not the log package function")
			return
		}
		next.ServeHTTP(w, r)
	})
}
