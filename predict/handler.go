package predict

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"auditrisk/logging"
	"auditrisk/ml"
	"auditrisk/monitoring"
	"auditrisk/predlog"

	"go.uber.org/zap"
)

// Messages shown in place of a risk label when no prediction was made.
const (
	MsgModelNotLoaded = "Error: Model not loaded."
	MsgInvalidInput   = "Invalid input: Please ensure all fields are numbers."
)

// ErrInvalidInput wraps every field parsing failure.
var ErrInvalidInput = errors.New("invalid input")

// Status classifies the outcome of one Handle call.
type Status int

const (
	StatusOK Status = iota
	StatusModelUnavailable
	StatusInvalidInput
	StatusInferenceFailure
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusModelUnavailable:
		return "model_unavailable"
	case StatusInvalidInput:
		return "invalid_input"
	case StatusInferenceFailure:
		return "inference_failure"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// DisplayBag is the set of form values echoed back to the page, keyed by field name.
// It is deliberately a different type from predlog.Record.
type DisplayBag map[string]string

// Result is the outcome of one prediction request.
type Result struct {
	Status Status
	// Message is the risk label on success, otherwise the user-facing error text.
	Message    string
	Label      Label
	Confidence float64
	// Features is nil unless Status is StatusOK.
	Features *ml.AuditFeatures
	// Err is the cause of a non-OK status.
	Err error
	// LogErr is set when the prediction succeeded but could not be logged.
	LogErr error
}

func (r Result) OK() bool {
	return r.Status == StatusOK
}

// Display returns the echoed inputs, or an empty bag on any error outcome.
func (r Result) Display() DisplayBag {
	bag := DisplayBag{}
	if r.Features == nil {
		return bag
	}
	for i, v := range ml.FeatureVector(*r.Features) {
		bag[ml.FeatureNames()[i]] = strconv.FormatFloat(v, 'f', -1, 64)
	}
	return bag
}

// Publisher receives every record that was successfully logged.
type Publisher interface {
	Publish(rec predlog.Record)
}

// Handler owns the lifecycle of a single prediction: parse, classify, log.
type Handler struct {
	model  *Model
	store  predlog.Store
	logger *zap.Logger
	feed   Publisher
}

type Option func(*Handler)

func WithLogger(logger *zap.Logger) Option {
	return func(h *Handler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

func WithPublisher(p Publisher) Option {
	return func(h *Handler) {
		h.feed = p
	}
}

func NewHandler(model *Model, store predlog.Store, opts ...Option) *Handler {
	h := &Handler{
		model:  model,
		store:  store,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Model returns the classifier state the handler was built with.
func (h *Handler) Model() *Model {
	return h.model
}

// Handle runs one prediction. It never panics and appends at most one record,
// and only when a label was produced.
func (h *Handler) Handle(ctx context.Context, raw map[string]string) Result {
	logger := logging.With(ctx, h.logger)
	res := h.handle(ctx, raw, logger)
	monitoring.PredictionsTotal.WithLabelValues(res.Status.String()).Inc()
	if res.OK() {
		monitoring.PredictedRiskTotal.WithLabelValues(res.Message).Inc()
	}
	return res
}

func (h *Handler) handle(ctx context.Context, raw map[string]string, logger *zap.Logger) Result {
	if !h.model.Available() {
		return Result{Status: StatusModelUnavailable, Message: MsgModelNotLoaded, Err: h.model.Err()}
	}

	features, err := ParseFeatures(raw)
	if err != nil {
		logger.Debug("rejected prediction input", zap.Error(err))
		return Result{Status: StatusInvalidInput, Message: MsgInvalidInput, Err: err}
	}

	label, confidence, err := h.infer(features)
	if err != nil {
		logger.Error("inference failed", zap.Error(err))
		return Result{
			Status:  StatusInferenceFailure,
			Message: fmt.Sprintf("An unexpected error occurred during prediction: %v", err),
			Err:     err,
		}
	}

	res := Result{
		Status:     StatusOK,
		Message:    label.Risk(),
		Label:      label,
		Confidence: confidence,
		Features:   &features,
	}
	rec := predlog.Record{Features: features, PredictedRisk: label.Risk()}
	if err := h.appendRecord(ctx, rec); err != nil {
		// the user still gets the label; the operator gets the failure
		monitoring.LogAppendFailuresTotal.Inc()
		logger.Error("prediction log append failed",
			zap.Error(err),
			zap.String("predicted_risk", rec.PredictedRisk))
		res.LogErr = err
		return res
	}
	logger.Info("prediction logged",
		zap.String("predicted_risk", rec.PredictedRisk),
		zap.Float64("confidence", confidence))
	if h.feed != nil {
		h.feed.Publish(rec)
	}
	return res
}

func (h *Handler) infer(features ml.AuditFeatures) (label Label, confidence float64, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("classifier panic: %v", r)
		}
	}()
	return h.model.Predict(features)
}

func (h *Handler) appendRecord(ctx context.Context, rec predlog.Record) (err error) {
	if h.store == nil {
		return errors.New("no prediction log configured")
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("prediction log panic: %v", r)
		}
	}()
	start := time.Now()
	defer func() { monitoring.LogAppendDuration.Observe(time.Since(start).Seconds()) }()
	// a client that goes away after inference still gets its row logged
	return h.store.Append(context.WithoutCancel(ctx), rec)
}

// ParseFeatures reads the five required fields in trained order. Either every
// field parses or an ErrInvalidInput is returned and nothing is used.
func ParseFeatures(raw map[string]string) (ml.AuditFeatures, error) {
	names := ml.FeatureNames()
	values := make([]float64, len(names))
	for i, name := range names {
		text, ok := raw[name]
		if !ok {
			return ml.AuditFeatures{}, fmt.Errorf("%w: missing field %s", ErrInvalidInput, name)
		}
		value, err := strconv.ParseFloat(strings.TrimSpace(text), 64)
		if err != nil && !errors.Is(err, strconv.ErrRange) {
			return ml.AuditFeatures{}, fmt.Errorf("%w: field %s: %q is not a number", ErrInvalidInput, name, text)
		}
		values[i] = value
	}
	return ml.FeaturesFromVector(values)
}
