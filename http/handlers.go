package http

import (
	"bytes"
	"embed"
	"encoding/json"
	"errors"
	"html/template"
	"io"
	"net/http"
	"strconv"

	"auditrisk/logging"
	"auditrisk/ml"
	"auditrisk/monitoring"
	"auditrisk/pipeline"
	"auditrisk/predict"
	"auditrisk/predlog"

	"go.uber.org/zap"
)

const (
	xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	msgFileNotFound = "File not found."
)

//go:embed templates/*.html
var templateFS embed.FS

var pages = template.Must(template.ParseFS(templateFS, "templates/*.html"))

// Handlers 页面与API处理器及其依赖
type Handlers struct {
	predictor   *predict.Handler
	store       predlog.Store
	feed        http.Handler
	datasetPath string
	reportPath  string
	logger      *zap.Logger
}

// Deps 处理器依赖
type Deps struct {
	Predictor *predict.Handler
	Store     predlog.Store
	// Feed 为 nil 时不注册 /ws/predictions
	Feed        http.Handler
	DatasetPath string
	ReportPath  string
	Logger      *zap.Logger
}

// NewHandlers 创建处理器集合
func NewHandlers(deps Deps) *Handlers {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handlers{
		predictor:   deps.Predictor,
		store:       deps.Store,
		feed:        deps.Feed,
		datasetPath: deps.DatasetPath,
		reportPath:  deps.ReportPath,
		logger:      logger,
	}
}

// Register 注册所有路由
func (h *Handlers) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /{$}", h.handleLanding)
	mux.HandleFunc("GET /input", h.handleInput)
	mux.HandleFunc("POST /predict", h.handlePredict)
	mux.HandleFunc("GET /download_predictions_log", h.handleDownload)
	mux.HandleFunc("GET /api/health", h.handleHealth)
	mux.Handle("GET /metrics", monitoring.Handler())
	if h.feed != nil {
		mux.Handle("GET /ws/predictions", h.feed)
	}
}

type inputPage struct {
	Fields []string
}

type field struct {
	Name  string
	Value string
}

type resultPage struct {
	Prediction string
	Inputs     []field
}

func (h *Handlers) handleLanding(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, "landing.html", nil)
}

func (h *Handlers) handleInput(w http.ResponseWriter, r *http.Request) {
	logger := logging.With(r.Context(), h.logger)
	err := pipeline.RunEDA(h.datasetPath, h.reportPath)
	switch {
	case errors.Is(err, pipeline.ErrDatasetNotFound):
		logger.Warn("dataset not found, skipping EDA", zap.String("dataset", h.datasetPath))
	case err != nil:
		logger.Error("EDA failed", zap.Error(err))
	default:
		logger.Info("EDA report saved", zap.String("report", h.reportPath))
	}
	h.render(w, r, "input.html", inputPage{Fields: ml.FeatureNames()})
}

func (h *Handlers) handlePredict(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}

	raw := make(map[string]string, len(ml.FeatureNames()))
	for _, name := range ml.FeatureNames() {
		if r.PostForm.Has(name) {
			raw[name] = r.PostForm.Get(name)
		}
	}

	res := h.predictor.Handle(r.Context(), raw)

	page := resultPage{Prediction: res.Message}
	display := res.Display()
	for _, name := range ml.FeatureNames() {
		if v, ok := display[name]; ok {
			page.Inputs = append(page.Inputs, field{Name: name, Value: v})
		}
	}
	h.render(w, r, "result.html", page)
}

func (h *Handlers) handleDownload(w http.ResponseWriter, r *http.Request) {
	if h.store == nil || !h.store.Exists() {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusNotFound)
		io.WriteString(w, msgFileNotFound)
		return
	}

	// 先完整导出再写响应，导出失败时仍可返回500
	var buf bytes.Buffer
	if err := h.store.Export(r.Context(), &buf); err != nil {
		logging.With(r.Context(), h.logger).Error("export prediction log", zap.Error(err))
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+predlog.DefaultFileName+`"`)
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.Write(buf.Bytes())
}

func (h *Handlers) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":       "ok",
		"model_loaded": h.predictor != nil && h.predictor.Model().Available(),
	})
}

func (h *Handlers) render(w http.ResponseWriter, r *http.Request, name string, data interface{}) {
	var buf bytes.Buffer
	if err := pages.ExecuteTemplate(&buf, name, data); err != nil {
		logging.With(r.Context(), h.logger).Error("render template", zap.String("template", name), zap.Error(err))
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(buf.Bytes())
}
