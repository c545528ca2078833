package predict

import (
	"context"
	"errors"
	"io"
	"math"
	"path/filepath"
	"testing"

	"auditrisk/ml"
	"auditrisk/predlog"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type fakeModel struct {
	label      int
	confidence float64
	err        error
	panics     bool
	calls      int
	lastInput  []float64
}

func (f *fakeModel) Predict(features []float64) (int, float64, error) {
	f.calls++
	f.lastInput = append([]float64(nil), features...)
	if f.panics {
		panic("boom")
	}
	return f.label, f.confidence, f.err
}

type failingStore struct {
	predlog.Store
	err     error
	appends int
}

func (s *failingStore) Append(context.Context, predlog.Record) error {
	s.appends++
	return s.err
}

type recordingPublisher struct {
	records []predlog.Record
}

func (p *recordingPublisher) Publish(rec predlog.Record) {
	p.records = append(p.records, rec)
}

func validInput() map[string]string {
	return map[string]string{
		"Audit_Risk":    "2.4",
		"Inherent_Risk": "3.0",
		"Score":         "0.6",
		"TOTAL":         "15.2",
		"Money_Value":   "1200.0",
	}
}

func newStore(t *testing.T) *predlog.XLSXStore {
	t.Helper()
	return predlog.NewXLSXStore(filepath.Join(t.TempDir(), "outputs", predlog.DefaultFileName))
}

func countRecords(t *testing.T, store predlog.Store) int {
	t.Helper()
	records, err := store.ReadAll(context.Background())
	require.NoError(t, err)
	return len(records)
}

func TestHandleHighRiskLogsRecord(t *testing.T) {
	store := newStore(t)
	model := &fakeModel{label: 1, confidence: 0.9}
	feed := &recordingPublisher{}
	h := NewHandler(NewModel(model), store, WithPublisher(feed))

	res := h.Handle(context.Background(), validInput())

	require.True(t, res.OK())
	assert.Equal(t, HighRisk, res.Message)
	assert.Equal(t, Label(1), res.Label)
	assert.NoError(t, res.LogErr)
	assert.Equal(t, []float64{2.4, 3.0, 0.6, 15.2, 1200.0}, model.lastInput)

	want := ml.AuditFeatures{AuditRisk: 2.4, InherentRisk: 3.0, Score: 0.6, Total: 15.2, MoneyValue: 1200.0}
	require.NotNil(t, res.Features)
	assert.Equal(t, want, *res.Features)
	assert.Equal(t, DisplayBag{
		"Audit_Risk":    "2.4",
		"Inherent_Risk": "3",
		"Score":         "0.6",
		"TOTAL":         "15.2",
		"Money_Value":   "1200",
	}, res.Display())

	records, err := store.ReadAll(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, predlog.Record{Features: want, PredictedRisk: HighRisk}, records[0])
	assert.Equal(t, records, feed.records)
}

func TestHandleLabelMapping(t *testing.T) {
	tests := []struct {
		name  string
		label int
		want  string
	}{
		{name: "one is high", label: 1, want: HighRisk},
		{name: "zero is low", label: 0, want: LowRisk},
		{name: "other class is low", label: 2, want: LowRisk},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newStore(t)
			h := NewHandler(NewModel(&fakeModel{label: tt.label}), store)

			res := h.Handle(context.Background(), validInput())
			require.True(t, res.OK())
			assert.Equal(t, tt.want, res.Message)

			records, err := store.ReadAll(context.Background())
			require.NoError(t, err)
			require.Len(t, records, 1)
			assert.Equal(t, tt.want, records[0].PredictedRisk)
		})
	}
}

func TestHandleInvalidInput(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(map[string]string)
	}{
		{name: "non numeric score", mutate: func(m map[string]string) { m["Score"] = "abc" }},
		{name: "empty value", mutate: func(m map[string]string) { m["TOTAL"] = "" }},
		{name: "missing field", mutate: func(m map[string]string) { delete(m, "Money_Value") }},
		{name: "missing first field", mutate: func(m map[string]string) { delete(m, "Audit_Risk") }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newStore(t)
			model := &fakeModel{label: 1}
			h := NewHandler(NewModel(model), store)
			require.True(t, h.Handle(context.Background(), validInput()).OK())
			before := countRecords(t, store)

			input := validInput()
			tt.mutate(input)
			res := h.Handle(context.Background(), input)

			assert.Equal(t, StatusInvalidInput, res.Status)
			assert.Equal(t, MsgInvalidInput, res.Message)
			assert.Contains(t, res.Message, "Invalid input")
			assert.ErrorIs(t, res.Err, ErrInvalidInput)
			assert.Nil(t, res.Features)
			assert.Empty(t, res.Display())
			assert.Equal(t, 1, model.calls)
			assert.Equal(t, before, countRecords(t, store))
		})
	}
}

func TestHandleModelUnavailable(t *testing.T) {
	store := newStore(t)
	h := NewHandler(LoadModel(ml.ModelTypeRandomForest, filepath.Join(t.TempDir(), "missing.json")), store)

	inputs := []map[string]string{validInput(), {"Score": "abc"}, {}}
	for _, input := range inputs {
		res := h.Handle(context.Background(), input)
		assert.Equal(t, StatusModelUnavailable, res.Status)
		assert.Equal(t, MsgModelNotLoaded, res.Message)
		assert.Contains(t, res.Message, "Model not loaded")
		assert.Error(t, res.Err)
		assert.Empty(t, res.Display())
	}
	assert.False(t, store.Exists())
}

func TestHandleInferenceFailure(t *testing.T) {
	tests := []struct {
		name  string
		model *fakeModel
	}{
		{name: "error", model: &fakeModel{err: errors.New("bad tree")}},
		{name: "panic", model: &fakeModel{panics: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newStore(t)
			h := NewHandler(NewModel(tt.model), store)

			res := h.Handle(context.Background(), validInput())
			assert.Equal(t, StatusInferenceFailure, res.Status)
			assert.Contains(t, res.Message, "An unexpected error occurred during prediction")
			assert.Nil(t, res.Features)
			assert.False(t, store.Exists())
		})
	}
}

func TestHandleLogWriteFailureStillReturnsLabel(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	store := &failingStore{err: io.ErrShortWrite}
	feed := &recordingPublisher{}
	h := NewHandler(NewModel(&fakeModel{label: 1}), store, WithLogger(zap.New(core)), WithPublisher(feed))

	res := h.Handle(context.Background(), validInput())

	require.True(t, res.OK())
	assert.Equal(t, HighRisk, res.Message)
	assert.NotNil(t, res.Features)
	assert.ErrorIs(t, res.LogErr, io.ErrShortWrite)
	assert.Equal(t, 1, store.appends)
	assert.Empty(t, feed.records)
	assert.Equal(t, 1, logs.FilterMessage("prediction log append failed").Len())
}

func TestHandleAppendsOncePerSuccess(t *testing.T) {
	store := newStore(t)
	h := NewHandler(NewModel(&fakeModel{label: 0}), store)

	for i := 0; i < 3; i++ {
		require.True(t, h.Handle(context.Background(), validInput()).OK())
	}
	h.Handle(context.Background(), map[string]string{"Score": "x"})
	assert.Equal(t, 3, countRecords(t, store))
}

func TestParseFeatures(t *testing.T) {
	input := validInput()
	input["Money_Value"] = "  1e3 "
	f, err := ParseFeatures(input)
	require.NoError(t, err)
	assert.Equal(t, 1000.0, f.MoneyValue)

	input["Score"] = "1,5"
	_, err = ParseFeatures(input)
	assert.ErrorIs(t, err, ErrInvalidInput)
	assert.ErrorContains(t, err, "Score")
}

func TestStatusString(t *testing.T) {
	assert.Equal(t, "ok", StatusOK.String())
	assert.Equal(t, "invalid_input", StatusInvalidInput.String())
	assert.Equal(t, "status(42)", Status(42).String())
}

func validFeatures() ml.AuditFeatures {
	f, err := ParseFeatures(validInput())
	if err != nil {
		panic(err)
	}
	return f
}

func TestHandleLogsDespiteCancelledRequest(t *testing.T) {
	store := newStore(t)
	h := NewHandler(NewModel(&fakeModel{label: 1}), store)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res := h.Handle(ctx, validInput())

	require.True(t, res.OK())
	assert.NoError(t, res.LogErr)
	assert.True(t, store.Exists())
	assert.Equal(t, 1, countRecords(t, store))
}

func TestHandleNonFiniteInputStaysReadable(t *testing.T) {
	store := newStore(t)
	h := NewHandler(NewModel(&fakeModel{label: 0}), store)

	for _, score := range []string{"nan", "inf", "1e400", "-inf"} {
		input := validInput()
		input["Score"] = score
		res := h.Handle(context.Background(), input)
		require.True(t, res.OK(), score)
		require.NoError(t, res.LogErr, score)
	}

	records, err := store.ReadAll(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 4)
	assert.True(t, math.IsNaN(records[0].Features.Score))
	assert.True(t, math.IsInf(records[1].Features.Score, 1))
	assert.True(t, math.IsInf(records[2].Features.Score, 1))
	assert.True(t, math.IsInf(records[3].Features.Score, -1))
}
