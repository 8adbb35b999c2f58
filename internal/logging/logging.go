package logging

import (
	"encoding/json"
	"io"
	"log"
	"os"
	"time"
)

type Fields struct {
	Service        string `json:"service"`
	RequestID      string `json:"request_id,omitempty"`
	UserID         string `json:"user_id,omitempty"`
	OrderID        string `json:"order_id,omitempty"`
	EventID        string `json:"event_id,omitempty"`
	IdempotencyKey string `json:"idempotency_key,omitempty"`
	Step           string `json:"step,omitempty"`
	Status         string `json:"status,omitempty"`
	DurationMS     int64  `json:"duration_ms,omitempty"`
	Message        string `json:"message,omitempty"`
	Error          string `json:"error,omitempty"`
}

// Logger writes one JSON object per line.
type Logger struct {
	out     *log.Logger
	service string
	now     func() time.Time
}

func New(service string, w io.Writer) *Logger {
	if w == nil {
		w = os.Stdout
	}
	return &Logger{out: log.New(w, "", 0), service: service, now: time.Now}
}

type line struct {
	Fields
	Timestamp string `json:"timestamp"`
}

func (l *Logger) Log(f Fields) {
	if l == nil {
		return
	}
	if f.Service == "" {
		f.Service = l.service
	}
	data, err := json.Marshal(line{Fields: f, Timestamp: l.now().UTC().Format(time.RFC3339Nano)})
	if err != nil {
		l.out.Printf(`{"service":%q,"status":"log_error","error":%q}`, f.Service, err.Error())
		return
	}
	l.out.Print(string(data))
}
