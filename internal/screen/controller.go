package screen

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/card-scanner/internal/capture"
	"github.com/example/card-scanner/internal/interpreter"
	"github.com/example/card-scanner/internal/logging"
	"github.com/example/card-scanner/internal/repository"
)

// PickAlertTitle titles the alert raised when the picker fails.
const PickAlertTitle = "Alert Title"

// History records scan outcomes. It is optional.
type History interface {
	SaveScan(ctx context.Context, record *repository.ScanRecord) error
}

// Controller wires user actions to the interpretation gateway and the store.
type Controller struct {
	store       *Store
	interpreter interpreter.Client
	camera      capture.Camera
	alerter     Alerter
	history     History
	logger      *zap.Logger
	now         func() time.Time
}

// NewController builds a controller. history may be nil.
func NewController(store *Store, client interpreter.Client, camera capture.Camera, alerter Alerter, history History, logger *zap.Logger) *Controller {
	if camera == nil {
		camera = capture.NoCamera{}
	}
	return &Controller{
		store:       store,
		interpreter: client,
		camera:      camera,
		alerter:     alerter,
		history:     history,
		logger:      logger.Named("screen"),
		now:         time.Now,
	}
}

// View derives the current view.
func (c *Controller) View() View {
	return Derive(c.store.State())
}

// State returns the current state.
func (c *Controller) State() State {
	return c.store.State()
}

// RefreshCamera reads device availability and permission from the camera
// provider.
func (c *Controller) RefreshCamera(ctx context.Context) View {
	availability, device := c.camera.Probe(ctx)
	if availability == capture.Unavailable {
		device = nil
	}
	state := c.store.Dispatch(CameraChanged{Device: device, HasPermission: availability == capture.Available})
	c.logger.Info("camera refreshed",
		zap.Stringer("availability", availability),
		zap.Bool("live", state.Camera.IsBack() && state.HasPermission),
	)
	return Derive(state)
}

// scan tracks one pick or capture from trigger to resolution.
type scan struct {
	id       string
	source   string
	operator string
	started  time.Time
	logger   *zap.Logger
	settled  bool
}

func (c *Controller) begin(ctx context.Context, source string) (context.Context, *scan) {
	id := uuid.NewString()
	s := &scan{
		id:       id,
		source:   source,
		operator: logging.OperatorFrom(ctx),
		started:  c.now(),
		logger:   logging.WithOperation(c.logger, "screen."+source, id),
	}
	if s.operator != "" {
		s.logger = s.logger.With(zap.String("operator", s.operator))
	}
	return logging.ContextWithScanID(ctx, id), s
}

// settle runs deferred on every action. It leaves Processing if no transition
// did, including when a collaborator panics.
func (c *Controller) settle(s *scan) {
	if r := recover(); r != nil {
		s.logger.Error("scan panicked", zap.Any("panic", r))
	}
	if !s.settled {
		c.store.Dispatch(EndProcessing{})
	}
}

func (c *Controller) dispatchFinal(s *scan, a Action) {
	s.settled = true
	c.store.Dispatch(a)
}

// Pick interprets an image chosen through picker. A picker failure raises an
// alert; a service failure is reported as NotFound with its own message.
func (c *Controller) Pick(ctx context.Context, picker capture.Picker) (view View) {
	ctx, s := c.begin(ctx, repository.SourcePick)
	defer func() { view = c.View() }()
	defer c.settle(s)

	image, err := picker.Pick(ctx)
	if err != nil {
		s.logger.Warn("picker failed", zap.Error(err))
		if c.alerter != nil {
			c.alerter.Alert(ctx, NewAlert(PickAlertTitle, err.Error()))
		}
		c.record(ctx, s, "", repository.OutcomeFailed, interpreter.Result{}, err)
		return
	}
	defer c.discard(s, image)

	c.store.Dispatch(BeginProcessing{})
	result, err := c.interpreter.Interpret(ctx, image)
	hash := c.fingerprint(s, image)

	switch {
	case err == nil && !result.Empty():
		c.dispatchFinal(s, CardFound{Result: result})
		c.record(ctx, s, hash, repository.OutcomeFound, result, nil)
	case interpreter.Unreachable(err):
		c.dispatchFinal(s, NotFound{Message: UnreachableMessage})
		c.record(ctx, s, hash, repository.OutcomeUnreachable, result, err)
	default:
		c.dispatchFinal(s, NotFound{Message: NotFoundMessage})
		c.record(ctx, s, hash, repository.OutcomeNotFound, result, err)
	}
	return
}

// Capture takes a photo and interprets it. Camera and service failures are
// logged only and leave the previous result on screen.
func (c *Controller) Capture(ctx context.Context) (view View) {
	ctx, s := c.begin(ctx, repository.SourceCapture)
	defer func() { view = c.View() }()
	defer c.settle(s)

	state := c.store.Dispatch(BeginProcessing{})
	if !state.Camera.IsBack() || !state.HasPermission {
		s.logger.Warn("capture without a usable camera",
			zap.Bool("has_device", state.Camera != nil),
			zap.Bool("has_permission", state.HasPermission),
		)
		return
	}

	image, err := c.camera.TakePhoto(ctx)
	if err != nil {
		s.logger.Error("capture failed", zap.Error(err))
		c.record(ctx, s, "", repository.OutcomeFailed, interpreter.Result{}, err)
		return
	}
	defer c.discard(s, image)

	result, err := c.interpreter.Interpret(ctx, image)
	hash := c.fingerprint(s, image)

	switch {
	case err == nil && !result.Empty():
		c.dispatchFinal(s, CardFound{Result: result})
		c.record(ctx, s, hash, repository.OutcomeFound, result, nil)
	case err == nil || interpreter.KindOf(err) == interpreter.KindMalformed:
		c.dispatchFinal(s, NotFound{Message: NotFoundMessage})
		c.record(ctx, s, hash, repository.OutcomeNotFound, result, err)
	default:
		s.logger.Error("interpretation failed after capture", zap.Error(err))
		outcome := repository.OutcomeFailed
		if interpreter.Unreachable(err) {
			outcome = repository.OutcomeUnreachable
		}
		c.record(ctx, s, hash, outcome, result, err)
	}
	return
}

func (c *Controller) fingerprint(s *scan, image capture.CapturedImage) string {
	if c.history == nil {
		return ""
	}
	hash, err := interpreter.Fingerprint(image)
	if err != nil {
		s.logger.Debug("image fingerprint unavailable", zap.Error(err))
		return ""
	}
	return hash
}

func (c *Controller) discard(s *scan, image capture.CapturedImage) {
	if err := image.Discard(); err != nil {
		s.logger.Warn("failed to remove captured image", zap.Error(err), zap.String("path", image.Path))
	}
}

func (c *Controller) record(ctx context.Context, s *scan, hash, outcome string, result interpreter.Result, cause error) {
	if c.history == nil {
		return
	}
	fields, err := json.Marshal(result.Map())
	if err != nil {
		fields = []byte("{}")
	}
	rec := &repository.ScanRecord{
		ScanID:     s.id,
		Source:     s.source,
		Operator:   s.operator,
		Outcome:    outcome,
		FieldCount: len(result.Fields),
		Fields:     string(fields),
		ImageSHA1:  hash,
		LatencyMs:  c.now().Sub(s.started).Milliseconds(),
		CreatedAt:  c.now().UTC(),
	}
	if cause != nil {
		rec.Detail = fmt.Sprint(cause)
	}
	// History must outlive a cancelled request.
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := c.history.SaveScan(saveCtx, rec); err != nil {
		s.logger.Warn("failed to record scan", zap.Error(err))
	}
}
