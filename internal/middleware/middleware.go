package middleware

import (
	"net/http"
	"strconv"

	"github.com/hqlin/tcm-assistant/internal/handlers"
	"github.com/hqlin/tcm-assistant/internal/metrics"
	"github.com/hqlin/tcm-assistant/pkg/logx"
)

type requestResponseStruct struct {
	writer     http.ResponseWriter
	req        *http.Request
	badRequest failureStruct
	logger     *logx.Logger
}

type failureStruct struct {
	isBadRequest bool
	httpCode     int
	errorMessage string
	id           string
}

var RootHandler = Wrap(handlers.RootHandler)
var HealthHandler = Wrap(handlers.HealthHandler)
var ChatHandler = Wrap(handlers.ChatHandler)
var GetStatusHandler = Wrap(handlers.GetStatusHandler)

// ingestion is an operator action and additionally requires the bearer token
var PostIngestHandler = WrapAdmin(handlers.PostIngestHandler)

func Wrap(next http.HandlerFunc) http.HandlerFunc {
	return wrap(next, false)
}

func WrapAdmin(next http.HandlerFunc) http.HandlerFunc {
	return wrap(next, true)
}

func wrap(next http.HandlerFunc, admin bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rec := &metrics.HttpStatusRecorder{ResponseWriter: w, Status: 200} //metrics
		re := processRequest(requestResponseStruct{req: r, writer: rec}, admin)

		if re.badRequest.isBadRequest {
			handleBadRequest(re)
			return
		}
		next(rec, re.req)

		metrics.HttpRequestsTotal.WithLabelValues(r.URL.Path, strconv.Itoa(rec.Status)).Inc() //metrics
	}
}

func processRequest(re requestResponseStruct, admin bool) requestResponseStruct {
	re.logger = logx.NewLogger("middleware")

	re = injectTrace(re)
	re = rateLimiter(re)
	if re.badRequest.isBadRequest {
		return re
	}
	if admin {
		re = authenticate(re)
	}
	return re
}
