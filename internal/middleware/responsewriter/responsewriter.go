// Package responsewriter injects the response writer of the original
// *http.Request into the context so that code wrapping a handler, such as
// request metrics, can see how it was answered.
package responsewriter

import (
	"context"
	"errors"
	"net/http"
)

// Using an unexported type prevents key collisions from other packages.
type responseWriterKey string

// ResponseWriterKey is the context key for the response writer.
const ResponseWriterKey responseWriterKey = "response-writer"

// Writer remembers the status it was answered with.
type Writer struct {
	http.ResponseWriter

	status  int
	written bool
}

func (w *Writer) WriteHeader(status int) {
	if !w.written {
		w.status = status
		w.written = true
	}
	w.ResponseWriter.WriteHeader(status)
}

func (w *Writer) Write(b []byte) (int, error) {
	if !w.written {
		w.status = http.StatusOK
		w.written = true
	}

	return w.ResponseWriter.Write(b)
}

// Written reports whether a response has been started.
func (w *Writer) Written() bool {
	return w.written
}

// Status returns the response status, 0 until a response has been started.
func (w *Writer) Status() int {
	return w.status
}

// ResponseWriterMiddleware is an http.Handler middleware that wraps the
// response writer into a *Writer and injects it into the context.
func ResponseWriterMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rw, ok := w.(*Writer)
		if !ok {
			rw = &Writer{ResponseWriter: w}
		}
		ctx := context.WithValue(r.Context(), ResponseWriterKey, rw)
		next.ServeHTTP(rw, r.WithContext(ctx))
	})
}

// ResponseWriterFromContext is a helper function that retrieves the response
// writer from the context.
func ResponseWriterFromContext(ctx context.Context) (*Writer, error) {
	w, ok := ctx.Value(ResponseWriterKey).(*Writer)
	if !ok {
		return nil, errors.New("response writer not found in context")
	}
	return w, nil
}
