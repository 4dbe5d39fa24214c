package interpreter

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/textproto"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/example/card-scanner/internal/capture"
	"github.com/example/card-scanner/internal/httpclient"
	"github.com/example/card-scanner/internal/logging"
)

const (
	// InterpretPath is the service endpoint images are posted to.
	InterpretPath = "/interpret"
	// FormField is the multipart field carrying the image.
	FormField = "image"

	maxResponseBytes = 1 << 20
	maxErrorBody     = 256
)

// Gateway posts images to the interpretation service over HTTP.
type Gateway struct {
	client *httpclient.Client
	logger *zap.Logger
	now    func() time.Time
}

// NewGateway builds a gateway on top of a preconfigured client.
func NewGateway(client *httpclient.Client, logger *zap.Logger) *Gateway {
	return &Gateway{
		client: client,
		logger: logger.Named("interpreter"),
		now:    time.Now,
	}
}

// Interpret uploads image and decodes the extracted fields. It makes exactly
// one request; every error is a *Failure and is logged here before returning.
func (g *Gateway) Interpret(ctx context.Context, image capture.CapturedImage) (Result, error) {
	opLogger := logging.WithOperation(g.logger, "interpreter.interpret", logging.ScanIDFrom(ctx))

	body, contentType, err := g.buildBody(image)
	if err != nil {
		failure := &Failure{Kind: KindUnreadableImage, Err: err}
		opLogger.Error("failed to read image", zap.Error(failure), zap.String("path", image.Path))
		return Result{}, failure
	}

	started := g.now()
	resp, err := g.client.Post(ctx, InterpretPath, contentType, body)
	if err != nil {
		failure := &Failure{Kind: KindTransport, Err: err}
		opLogger.Error("interpret request failed", zap.Error(failure), zap.Duration("elapsed", g.now().Sub(started)))
		return Result{}, failure
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		failure := &Failure{Kind: KindTransport, Err: fmt.Errorf("read response: %w", err)}
		opLogger.Error("interpret response unreadable", zap.Error(failure))
		return Result{}, failure
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet := payload
		if len(snippet) > maxErrorBody {
			snippet = snippet[:maxErrorBody]
		}
		failure := &Failure{
			Kind:       KindServer,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("server response body: %s", snippet),
		}
		opLogger.Error("interpret service returned an error", zap.Error(failure), zap.Int("status", resp.StatusCode))
		return Result{}, failure
	}

	result, err := decodeResult(payload)
	if err != nil {
		failure := &Failure{Kind: KindMalformed, Err: err}
		opLogger.Warn("interpret response malformed", zap.Error(failure))
		return Result{}, failure
	}

	opLogger.Info("image interpreted",
		zap.Int("fields", len(result.Fields)),
		zap.Duration("elapsed", g.now().Sub(started)),
	)
	return result, nil
}

// FileName is the upload name synthesized for an image sent at t.
func FileName(t time.Time) string {
	return fmt.Sprintf("card-%d.png", t.UnixMilli())
}

func (g *Gateway) buildBody(image capture.CapturedImage) (*bytes.Buffer, string, error) {
	if image.Path == "" {
		return nil, "", fmt.Errorf("image has no path")
	}
	file, err := os.Open(image.LocalPath())
	if err != nil {
		return nil, "", fmt.Errorf("open image: %w", err)
	}
	defer file.Close()

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, FormField, FileName(g.now())))
	header.Set("Content-Type", "image/png")

	part, err := writer.CreatePart(header)
	if err != nil {
		return nil, "", fmt.Errorf("create form part: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return nil, "", fmt.Errorf("copy image: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("close multipart writer: %w", err)
	}
	return body, writer.FormDataContentType(), nil
}
