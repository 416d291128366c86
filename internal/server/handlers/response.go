package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/iudanet/affilink/pkg/api"
)

// maxBodyBytes ограничивает размер JSON тела запроса
const maxBodyBytes = 1 << 20

// responder содержит общие методы отправки ответов
type responder struct {
	logger *slog.Logger
}

// sendJSON отправляет JSON ответ
func (h responder) sendJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode JSON response", slog.Any("error", err))
	}
}

// sendError отправляет JSON ответ с ошибкой
func (h responder) sendError(w http.ResponseWriter, message string, statusCode int) {
	h.sendErrorTitle(w, http.StatusText(statusCode), message, statusCode)
}

// sendErrorTitle отправляет ошибку с собственным заголовком вместо status text
func (h responder) sendErrorTitle(w http.ResponseWriter, title, message string, statusCode int) {
	resp := api.ErrorResponse{
		Error:   title,
		Message: message,
	}
	h.sendJSON(w, resp, statusCode)
}

// decodeJSON читает JSON тело запроса с ограничением размера
func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	return json.NewDecoder(r.Body).Decode(dst)
}
