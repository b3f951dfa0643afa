// Package server contains the JSON payloads shared by HTTP handlers and a
// helper to run an http.Server until its context ends.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"go/types"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"
)

// FloatT is a struct with a single float64 field, F64 ("f64" in json)
type FloatT struct {
	F64 float64 `json:"f64"`
}

// IntT is a struct with a single int64 field, Int ("int" in json)
type IntT struct {
	Int int64 `json:"int"`
}

// StrT is a struct with a single string field, Str ("str" in json)
type StrT struct {
	Str string `json:"str"`
}

// BoolT is a struct with a single bool field, Bool ("bool" in json)
type BoolT struct {
	Bool bool `json:"bool"`
}

// HumanPayload is a struct which holds one of several types and encodes
// itself as the matching single-field JSON object
type HumanPayload struct {
	// T is the type of the payload; only the matching field is sent
	T types.BasicKind

	Float  float64
	Int    int64
	String string
	Bool   bool
}

// EncodeAndRespond writes the payload to w as JSON
func (hp HumanPayload) EncodeAndRespond(w http.ResponseWriter, r *http.Request) {
	var v interface{}
	switch hp.T {
	case types.Float64:
		v = FloatT{hp.Float}
	case types.Int, types.Int64:
		v = IntT{hp.Int}
	case types.String:
		v = StrT{hp.String}
	case types.Bool:
		v = BoolT{hp.Bool}
	default:
		http.Error(w, fmt.Sprintf("payload of kind %d cannot be encoded", hp.T), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.WithError(err).Error("encoding payload")
	}
}

// ReplyJSON encodes v as the response body
func ReplyJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.WithError(err).Error("encoding response")
	}
}

// Run serves srv until ctx is done, then shuts it down, allowing in-flight
// requests up to grace to finish
func Run(ctx context.Context, srv *http.Server, grace time.Duration) error {
	errs := make(chan error, 1)
	go func() {
		errs <- srv.ListenAndServe()
	}()
	select {
	case err := <-errs:
		return err
	case <-ctx.Done():
	}
	sctx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		return err
	}
	if err := <-errs; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
