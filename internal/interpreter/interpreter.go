// Package interpreter turns a captured card image into contact fields by way
// of the remote interpretation service.
package interpreter

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/example/card-scanner/internal/capture"
)

// Client exposes the interpretation call used by the screen.
type Client interface {
	Interpret(ctx context.Context, image capture.CapturedImage) (Result, error)
}

// Field is one extracted contact field with its values in service order.
type Field struct {
	Key    string   `json:"key"`
	Values []string `json:"values"`
}

// Result holds the fields extracted from a card. No fields means no card was
// detected.
type Result struct {
	Fields []Field `json:"fields"`
}

// Empty reports whether no card was detected.
func (r Result) Empty() bool {
	return len(r.Fields) == 0
}

// Keys returns the field names in order.
func (r Result) Keys() []string {
	keys := make([]string, 0, len(r.Fields))
	for _, f := range r.Fields {
		keys = append(keys, f.Key)
	}
	return keys
}

// Get returns the values stored under key.
func (r Result) Get(key string) ([]string, bool) {
	for _, f := range r.Fields {
		if f.Key == key {
			return f.Values, true
		}
	}
	return nil, false
}

// Map returns the fields as a plain mapping.
func (r Result) Map() map[string][]string {
	m := make(map[string][]string, len(r.Fields))
	for _, f := range r.Fields {
		m[f.Key] = f.Values
	}
	return m
}

func (r *Result) set(key string, values []string) {
	for i := range r.Fields {
		if r.Fields[i].Key == key {
			r.Fields[i].Values = values
			return
		}
	}
	r.Fields = append(r.Fields, Field{Key: key, Values: values})
}

// Kind classifies why an interpretation failed.
type Kind int

const (
	KindUnreadableImage Kind = iota + 1
	KindTransport
	KindServer
	KindMalformed
)

func (k Kind) String() string {
	switch k {
	case KindUnreadableImage:
		return "unreadable_image"
	case KindTransport:
		return "transport"
	case KindServer:
		return "server"
	case KindMalformed:
		return "malformed"
	default:
		return "unknown"
	}
}

// Failure is the only error type Interpret returns.
type Failure struct {
	Kind Kind
	// StatusCode is set for KindServer.
	StatusCode int
	Err        error
}

func (f *Failure) Error() string {
	if f == nil {
		return ""
	}
	if f.StatusCode != 0 {
		return fmt.Sprintf("interpret %s (status %d): %v", f.Kind, f.StatusCode, f.Err)
	}
	return fmt.Sprintf("interpret %s: %v", f.Kind, f.Err)
}

func (f *Failure) Unwrap() error {
	if f == nil {
		return nil
	}
	return f.Err
}

// KindOf returns the failure kind of err, or 0 when err is not a Failure.
func KindOf(err error) Kind {
	var failure *Failure
	if errors.As(err, &failure) {
		return failure.Kind
	}
	return 0
}

// Unreachable reports whether err means the service could not produce an answer.
func Unreachable(err error) bool {
	switch KindOf(err) {
	case KindTransport, KindServer:
		return true
	}
	return false
}

// Fingerprint returns the hex SHA-1 of the image content.
func Fingerprint(image capture.CapturedImage) (string, error) {
	f, err := os.Open(image.LocalPath())
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha1.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
