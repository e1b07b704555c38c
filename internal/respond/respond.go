// Package respond writes JSON bodies for handlers.
package respond

import (
	"encoding/json"
	"net/http"

	"github.com/antonminaichev/agroconnect/internal/logger"
	"go.uber.org/zap"
)

func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Log.Warn("encode response", zap.Error(err))
	}
}

func Error(w http.ResponseWriter, status int, msg string) {
	JSON(w, status, map[string]string{"error": msg})
}
