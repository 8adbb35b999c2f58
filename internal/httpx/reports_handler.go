package httpx

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/ariefcatur/go-shop-checkout/internal/logging"
	"github.com/ariefcatur/go-shop-checkout/internal/reports"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

type ReportRepo interface {
	Summary(ctx context.Context, f reports.Filter) (reports.Summary, error)
	Revenue(ctx context.Context, f reports.Filter, groupBy string) ([]reports.Point, error)
	TopProducts(ctx context.Context, f reports.Filter, limit int) ([]reports.ProductSales, error)
	ExportOrders(ctx context.Context, f reports.Filter, w io.Writer) error
}

type ReportsHandler struct {
	Repo ReportRepo
	Log  *logging.Logger
	Now  func() time.Time
}

func (h *ReportsHandler) Register(r chi.Router) {
	r.Get("/reports/summary", h.summary)
	r.Get("/reports/revenue", h.revenue)
	r.Get("/reports/top-products", h.topProducts)
	r.Get("/reports/export", h.export)
}

func (h *ReportsHandler) filter(w http.ResponseWriter, r *http.Request) (reports.Filter, bool) {
	now := time.Now
	if h.Now != nil {
		now = h.Now
	}
	f, err := reports.ParseFilter(r.URL.Query(), now())
	if err != nil {
		fail(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		return reports.Filter{}, false
	}
	return f, true
}

func (h *ReportsHandler) summary(w http.ResponseWriter, r *http.Request) {
	f, valid := h.filter(w, r)
	if !valid {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	s, err := h.Repo.Summary(ctx, f)
	if err != nil {
		writeError(w, r, err)
		return
	}
	ok(w, http.StatusOK, s)
}

func (h *ReportsHandler) revenue(w http.ResponseWriter, r *http.Request) {
	f, valid := h.filter(w, r)
	if !valid {
		return
	}
	groupBy := r.URL.Query().Get("groupBy")
	if groupBy == "" {
		groupBy = "day"
	}
	if !reports.GroupValid(groupBy) {
		fail(w, http.StatusBadRequest, "VALIDATION_ERROR", "groupBy must be day, week or month")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	pts, err := h.Repo.Revenue(ctx, f, groupBy)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if pts == nil {
		pts = []reports.Point{}
	}
	ok(w, http.StatusOK, pts)
}

func (h *ReportsHandler) topProducts(w http.ResponseWriter, r *http.Request) {
	f, valid := h.filter(w, r)
	if !valid {
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	ps, err := h.Repo.TopProducts(ctx, f, limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if ps == nil {
		ps = []reports.ProductSales{}
	}
	ok(w, http.StatusOK, ps)
}

func (h *ReportsHandler) export(w http.ResponseWriter, r *http.Request) {
	f, valid := h.filter(w, r)
	if !valid {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 60*time.Second)
	defer cancel()

	name := fmt.Sprintf("orders_%s_%s.csv", f.From.Format("20060102"), f.To.Format("20060102"))
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
	out := &bodyWriter{w: w}
	if err := h.Repo.ExportOrders(ctx, f, out); err != nil {
		if !out.started {
			w.Header().Del("Content-Disposition")
			writeError(w, r, err)
			return
		}
		// the status line is already sent; the client sees a truncated file
		h.Log.Log(logging.Fields{RequestID: middleware.GetReqID(r.Context()), Step: "reports_export", Status: "error", Error: err.Error()})
	}
}

// bodyWriter notes whether any of the response body has been written.
type bodyWriter struct {
	w       io.Writer
	started bool
}

func (b *bodyWriter) Write(p []byte) (int, error) {
	if len(p) > 0 {
		b.started = true
	}
	return b.w.Write(p)
}
