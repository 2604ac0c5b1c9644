package server

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"math"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/neuroscan/tumor-detection-service/internal/detect"
	"github.com/neuroscan/tumor-detection-service/internal/preprocess"
)

var allowedExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".bmp":  true,
	".gif":  true,
	".tiff": true,
	".tif":  true,
}

type PredictResponse struct {
	Status           string             `json:"status"`
	Found            bool               `json:"found"`
	Confidence       float64            `json:"confidence"`
	Box              []int              `json:"box"`
	Count            int                `json:"count"`
	All              []detect.Detection `json:"all"`
	Simulated        bool               `json:"simulated,omitempty"`
	ProcessingTimeMS float64            `json:"processing_time_ms"`
	AnnotatedImage   string             `json:"annotated_image,omitempty"`
	Timestamp        string             `json:"timestamp"`
}

type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (s *Server) handlePredict(w http.ResponseWriter, r *http.Request) {
	imgBytes, filename, err := extractImage(r)
	if err != nil {
		sendErrorResponse(w, "invalid_request", err.Error(), http.StatusBadRequest)
		return
	}

	if len(imgBytes) == 0 {
		sendErrorResponse(w, "empty_image", "Empty file received.", http.StatusBadRequest)
		return
	}
	if int64(len(imgBytes)) > s.cfg.MaxImageSize {
		sendErrorResponse(w, "payload_too_large", "Image exceeds the maximum allowed size.", http.StatusRequestEntityTooLarge)
		return
	}
	if filename != "" && !allowedExtensions[strings.ToLower(filepath.Ext(filename))] {
		sendErrorResponse(w, "invalid_file_type", "Unsupported file type. Allowed: jpg, jpeg, png, bmp, gif, tiff.", http.StatusBadRequest)
		return
	}

	outcome, err := s.pipeline.Run(r.Context(), imgBytes)
	if err != nil {
		var decodeErr *preprocess.DecodeError
		var preErr *preprocess.PreprocessError
		switch {
		case errors.As(err, &decodeErr), errors.As(err, &preErr):
			sendErrorResponse(w, "invalid_image", "Failed to preprocess image. Invalid image format.", http.StatusBadRequest)
		default:
			s.log.Error("pipeline failure", "error", err)
			sendErrorResponse(w, "internal_error", "Internal server error.", http.StatusInternalServerError)
		}
		return
	}

	if outcome.Result.Error != "" {
		// Fault detail stays in the logs; the client gets a generic
		// failure.
		sendErrorResponse(w, "inference_error", "Model inference failed.", http.StatusInternalServerError)
		return
	}

	res := outcome.Result
	writeJSON(w, http.StatusOK, PredictResponse{
		Status:           "success",
		Found:            res.Found,
		Confidence:       res.Confidence,
		Box:              res.Box,
		Count:            res.Count,
		All:              res.All,
		Simulated:        res.Simulated,
		ProcessingTimeMS: math.Round(outcome.ElapsedMS*100) / 100,
		AnnotatedImage:   outcome.AnnotatedImage,
		Timestamp:        time.Now().Format(time.RFC3339),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":       "healthy",
		"engine":       s.pipeline.EngineName(),
		"model_loaded": s.pool != nil,
		"timestamp":    time.Now().Format(time.RFC3339),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"system":               SystemName,
		"version":              Version,
		"engine":               s.pipeline.EngineName(),
		"model_path":           s.cfg.ModelPath,
		"model_loaded":         s.pool != nil,
		"confidence_threshold": s.cfg.ConfidenceThreshold,
		"iou_threshold":        s.cfg.IoUThreshold,
		"input_size":           s.cfg.InputSize,
		"timestamp":            time.Now().Format(time.RFC3339),
	})
}

func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	if s.pool == nil {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"engine": s.pipeline.EngineName(),
		})
		return
	}
	writeJSON(w, http.StatusOK, s.pool.Metrics())
}

// extractImage pulls the image bytes out of the request body. Multipart
// uploads use form field "image"; JSON bodies carry base64 in an "image"
// field; anything else is treated as raw image bytes.
func extractImage(r *http.Request) ([]byte, string, error) {
	contentType := r.Header.Get("Content-Type")

	switch {
	case strings.HasPrefix(contentType, "application/json"):
		var req struct {
			Image string `json:"image"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return nil, "", err
		}
		data, err := base64.StdEncoding.DecodeString(req.Image)
		return data, "", err

	case strings.HasPrefix(contentType, "multipart/form-data"):
		if err := r.ParseMultipartForm(10 << 20); err != nil {
			return nil, "", err
		}
		file, header, err := r.FormFile("image")
		if err != nil {
			return nil, "", err
		}
		defer file.Close()
		data, err := io.ReadAll(file)
		return data, header.Filename, err

	default:
		data, err := io.ReadAll(r.Body)
		return data, "", err
	}
}

func sendErrorResponse(w http.ResponseWriter, code, message string, status int) {
	writeJSON(w, status, ErrorResponse{Code: code, Message: message})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
