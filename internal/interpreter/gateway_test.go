package interpreter

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/example/card-scanner/internal/capture"
	"github.com/example/card-scanner/internal/httpclient"
)

var fixedNow = time.UnixMilli(1700000000123)

func newTestGateway(t *testing.T, handler http.HandlerFunc, timeout time.Duration) *Gateway {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client, err := httpclient.New(srv.URL, timeout)
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}
	g := NewGateway(client, zap.NewNop())
	g.now = func() time.Time { return fixedNow }
	return g
}

func writeImage(t *testing.T, data string) capture.CapturedImage {
	t.Helper()
	path := filepath.Join(t.TempDir(), "a.png")
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatalf("failed to write image: %v", err)
	}
	return capture.CapturedImage{Path: path, MimeType: "image/png"}
}

func TestInterpretSendsMultipartUpload(t *testing.T) {
	var (
		gotMethod, gotPath, gotFilename, gotPartType, gotBody string
		gotParts                                              int
	)
	g := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		gotMethod, gotPath = r.Method, r.URL.Path
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		gotParts = len(r.MultipartForm.File) + len(r.MultipartForm.Value)
		file, header, err := r.FormFile(FormField)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		defer file.Close()
		gotFilename = header.Filename
		gotPartType = header.Header.Get("Content-Type")
		b, _ := io.ReadAll(file)
		gotBody = string(b)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"phones":["555-1111"]}`))
	}, time.Second)

	result, err := g.Interpret(context.Background(), writeImage(t, "png-bytes"))
	if err != nil {
		t.Fatalf("expected success, got error: %v", err)
	}

	if gotMethod != http.MethodPost || gotPath != "/interpret" {
		t.Fatalf("unexpected request %s %s", gotMethod, gotPath)
	}
	if gotParts != 1 {
		t.Fatalf("expected a single form field, got %d", gotParts)
	}
	if gotFilename != "card-1700000000123.png" {
		t.Fatalf("unexpected filename: %s", gotFilename)
	}
	if gotPartType != "image/png" {
		t.Fatalf("unexpected part content type: %s", gotPartType)
	}
	if gotBody != "png-bytes" {
		t.Fatalf("unexpected part body: %s", gotBody)
	}
	phones, ok := result.Get("phones")
	if !ok || len(phones) != 1 || phones[0] != "555-1111" {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestInterpretEmptyObject(t *testing.T) {
	g := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}, time.Second)

	result, err := g.Interpret(context.Background(), writeImage(t, "x"))
	if err != nil {
		t.Fatalf("expected success, got error: %v", err)
	}
	if !result.Empty() {
		t.Fatalf("expected empty result, got %+v", result)
	}
}

func TestInterpretStripsFileScheme(t *testing.T) {
	g := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"name":["Ada"]}`))
	}, time.Second)

	img := writeImage(t, "x")
	img.Path = "file://" + img.Path
	if _, err := g.Interpret(context.Background(), img); err != nil {
		t.Fatalf("expected success, got error: %v", err)
	}
}

func TestInterpretFailureKinds(t *testing.T) {
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })

	cases := []struct {
		name    string
		handler http.HandlerFunc
		image   func(t *testing.T) capture.CapturedImage
		kind    Kind
		status  int
	}{
		{
			name:    "missing file",
			handler: func(w http.ResponseWriter, r *http.Request) {},
			image: func(t *testing.T) capture.CapturedImage {
				return capture.CapturedImage{Path: filepath.Join(t.TempDir(), "nope.png")}
			},
			kind: KindUnreadableImage,
		},
		{
			name: "server error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "model crashed", http.StatusInternalServerError)
			},
			kind:   KindServer,
			status: http.StatusInternalServerError,
		},
		{
			name: "not an object",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`["labels"]`))
			},
			kind: KindMalformed,
		},
		{
			name: "not json",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`<html>`))
			},
			kind: KindMalformed,
		},
		{
			name: "timeout",
			handler: func(w http.ResponseWriter, r *http.Request) {
				select {
				case <-release:
				case <-r.Context().Done():
				}
			},
			kind: KindTransport,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			g := newTestGateway(t, tc.handler, 50*time.Millisecond)
			img := writeImage(t, "x")
			if tc.image != nil {
				img = tc.image(t)
			}

			result, err := g.Interpret(context.Background(), img)
			if err == nil {
				t.Fatalf("expected error, got result %+v", result)
			}
			var failure *Failure
			if !errors.As(err, &failure) {
				t.Fatalf("expected *Failure, got %T", err)
			}
			if failure.Kind != tc.kind {
				t.Fatalf("expected kind %s, got %s", tc.kind, failure.Kind)
			}
			if failure.StatusCode != tc.status {
				t.Fatalf("expected status %d, got %d", tc.status, failure.StatusCode)
			}
			if !result.Empty() {
				t.Fatalf("expected empty result on failure, got %+v", result)
			}
		})
	}
}

func TestUnreachable(t *testing.T) {
	if !Unreachable(&Failure{Kind: KindTransport}) || !Unreachable(&Failure{Kind: KindServer}) {
		t.Fatal("transport and server failures are unreachable")
	}
	if Unreachable(&Failure{Kind: KindMalformed}) || Unreachable(errors.New("other")) {
		t.Fatal("malformed and foreign errors are not unreachable")
	}
}
