package main

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/yndnr/servus-go/internal/server/httpserver"
	"github.com/yndnr/servus-go/internal/server/httpserver/handler"
	"github.com/yndnr/servus-go/internal/storage"
	"github.com/yndnr/servus-go/internal/telemetry/logger"
)

// state is shared read-only by every request.
type state struct {
	book     *storage.Guestbook
	response string
}

type messagesResponse struct {
	Messages []storage.Message `json:"messages"`
}

func routes() *httpserver.RouteTable {
	return httpserver.NewRouteTable().
		Post("/message", postMessage).
		Get("/message/all", listMessages).
		Get("/{status}", replyStatus)
}

func stateOf(w http.ResponseWriter, r *http.Request) (*state, bool) {
	st, ok := httpserver.State[*state](r)
	if !ok {
		logger.L(r.Context()).Error("demo state missing from request")
		handler.WriteError(w, r, http.StatusInternalServerError, "internal error")
	}
	return st, ok
}

func postMessage(w http.ResponseWriter, r *http.Request) {
	st, ok := stateOf(w, r)
	if !ok {
		return
	}

	var m storage.Message
	if err := handler.DecodeJSON(w, r, &m); err != nil {
		handler.WriteError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	log := logger.L(r.Context())
	log.Info("got post message request", "author", m.Author, "message", m.Message)

	if err := st.book.Insert(r.Context(), m); err != nil {
		if errors.Is(err, storage.ErrEmptyMessage) {
			handler.WriteError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		log.Error("error inserting message", "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
}

func listMessages(w http.ResponseWriter, r *http.Request) {
	st, ok := stateOf(w, r)
	if !ok {
		return
	}

	log := logger.L(r.Context())
	log.Info("got get messages request")

	messages, err := st.book.All(r.Context())
	if err != nil {
		log.Error("error getting messages", "error", err)
		handler.WriteError(w, r, http.StatusInternalServerError, "db error")
		return
	}

	handler.WriteJSON(w, r, http.StatusOK, messagesResponse{Messages: messages})
}

// replyStatus answers with the status named in the path. Only final
// status codes are accepted.
func replyStatus(w http.ResponseWriter, r *http.Request) {
	st, ok := stateOf(w, r)
	if !ok {
		return
	}

	code, err := strconv.Atoi(httpserver.PathParam(r, "status"))
	if err != nil || code < 200 || code > 599 {
		http.Error(w, "invalid status code", http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(code)
	_, _ = io.WriteString(w, st.response)
}
