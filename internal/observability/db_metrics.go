package observability

import (
	"strings"
	"time"

	"github.com/geocoder89/labshare/internal/pgerr"
)

func (p *Prom) ObserveDB(op string, fn func() error) error {
	if p == nil {
		return fn()
	}
	start := time.Now()
	err := fn()

	status := "ok"

	if err != nil {
		status = "error"
		p.DbErrorsTotal.WithLabelValues(op, classifyDBErr(err)).Inc()
	}
	p.DbQueryDuration.WithLabelValues(op, status).Observe(time.Since(start).Seconds())
	return err
}

func classifyDBErr(err error) string {
	if e := pgerr.Classify(err); e.Code != "" {
		switch e.Kind {
		case pgerr.KindDuplicateKey:
			return "unique_violation"
		case pgerr.KindUnknownColumn:
			return "undefined_column"
		case pgerr.KindForeignKey:
			return "foreign_key_violation"
		}
		switch e.Code {
		case "40001":
			return "serialization_failure"
		case "40P01":
			return "deadlock"
		case "57014":
			return "query_canceled"
		default:
			return "pg_" + e.Code
		}
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "timeout") || strings.Contains(msg, "deadline"):
		return "timeout"
	case strings.Contains(msg, "connection"):
		return "connection"
	default:
		return "unknown"
	}
}
