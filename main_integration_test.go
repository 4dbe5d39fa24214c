package main

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"os"
	"syscall"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/example/card-scanner/internal/capture"
	"github.com/example/card-scanner/internal/handlers"
	"github.com/example/card-scanner/internal/interpreter"
	"github.com/example/card-scanner/internal/live"
	"github.com/example/card-scanner/internal/screen"
)

type blockingInterpreter struct {
	started chan struct{}
	release chan struct{}
}

func (b *blockingInterpreter) Interpret(ctx context.Context, image capture.CapturedImage) (interpreter.Result, error) {
	close(b.started)
	<-b.release
	return interpreter.Result{Fields: []interpreter.Field{{Key: "emails", Values: []string{"ada@example.com"}}}}, nil
}

type fixedCamera struct{}

func (fixedCamera) Probe(context.Context) (capture.Availability, *capture.Device) {
	return capture.Available, &capture.Device{Name: "video0", Position: capture.PositionBack}
}

func (fixedCamera) TakePhoto(context.Context) (capture.CapturedImage, error) {
	return capture.CapturedImage{Path: "/tmp/card.png", MimeType: "image/png"}, nil
}

func newScannerRouter(t *testing.T, interp interpreter.Client) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger := zap.NewNop()

	alerts := screen.NewAlertBoard()
	ctrl := screen.NewController(screen.NewStore(screen.InitialState()), interp, fixedCamera{}, alerts, nil, logger)
	ctrl.RefreshCamera(context.Background())

	router := gin.New()
	handlers.RegisterRoutes(router, handlers.Deps{
		Controller: ctrl,
		Alerts:     alerts,
		Hub:        live.NewHub(logger),
		Logger:     logger,
	}, nil)
	return router
}

func TestServerDrainsInFlightScanOnShutdown(t *testing.T) {
	logger := zap.NewNop()

	interp := &blockingInterpreter{started: make(chan struct{}), release: make(chan struct{})}
	var released bool
	defer func() {
		if !released {
			close(interp.release)
		}
	}()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to create listener: %v", err)
	}
	server := &http.Server{Handler: newScannerRouter(t, interp)}

	signalCh := make(chan os.Signal, 1)
	done := make(chan error, 1)
	go func() {
		done <- serveHTTPServerWithOptions(server, 2*time.Second, logger, listener, signalCh)
	}()

	addr := listener.Addr().String()
	waitForServer(t, addr)

	client := &http.Client{Timeout: 2 * time.Second}
	respCh := make(chan *http.Response, 1)
	errCh := make(chan error, 1)
	go func() {
		resp, err := client.Post("http://"+addr+"/capture", "application/json", nil)
		if err != nil {
			errCh <- err
			return
		}
		respCh <- resp
	}()

	select {
	case <-interp.started:
	case <-time.After(2 * time.Second):
		t.Fatal("scan did not reach the interpreter in time")
	}

	signalCh <- syscall.SIGTERM
	time.Sleep(50 * time.Millisecond)
	close(interp.release)
	released = true

	select {
	case resp := <-respCh:
		t.Cleanup(func() { resp.Body.Close() })
		body, _ := io.ReadAll(resp.Body)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("unexpected status: %d body: %s", resp.StatusCode, string(body))
		}
		var got struct {
			View screen.View `json:"view"`
		}
		if err := json.Unmarshal(body, &got); err != nil {
			t.Fatalf("failed to decode screen: %v", err)
		}
		if got.View.Body != screen.BodyContactInfo || len(got.View.Rows) != 1 || got.View.Rows[0].Key != "emails" {
			t.Fatalf("expected drained scan to render contact info, got %+v", got.View)
		}
	case err := <-errCh:
		t.Fatalf("request failed: %v", err)
	case <-time.After(2 * time.Second):
		t.Fatal("request did not complete")
	}

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("server did not shutdown cleanly: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("server did not exit after shutdown")
	}
}

func TestServerReturnsServeError(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to create listener: %v", err)
	}
	listener.Close()

	err = serveHTTPServerWithOptions(&http.Server{Handler: http.NewServeMux()}, time.Second, zap.NewNop(), listener, make(chan os.Signal))
	if err == nil {
		t.Fatal("expected error from a closed listener")
	}
}

func waitForServer(t *testing.T, addr string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		conn, err := net.DialTimeout("tcp", addr, 50*time.Millisecond)
		if err == nil {
			conn.Close()
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("server %s did not become ready", addr)
}
