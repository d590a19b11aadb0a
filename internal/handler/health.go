package handler

import (
	"net/http"
	"time"

	"github.com/BuzzLyutic/todo-api/pkg/respond"
)

const Version = "2.0"

type healthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Version   string    `json:"version"`
}

// Health needs no authentication and never touches storage.
func Health(w http.ResponseWriter, r *http.Request) {
	respond.JSON(w, r, http.StatusOK, healthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC(),
		Version:   Version,
	})
}

func Root(w http.ResponseWriter, r *http.Request) {
	respond.JSON(w, r, http.StatusOK, map[string]string{
		"message": "Todo API",
		"health":  "/health",
	})
}
