package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/donagest/donation-tracker/internal/core/domain"
	"github.com/donagest/donation-tracker/internal/core/service"
)

// HTTPHandler is the thin JSON surface over the core operations. Request
// parsing and error mapping only; auth and rendering live elsewhere.
type HTTPHandler struct {
	contributions *service.ContributionService
	distributions *service.DistributionService
	logger        *zap.Logger
}

func NewHTTPHandler(contributions *service.ContributionService, distributions *service.DistributionService, logger *zap.Logger) *HTTPHandler {
	return &HTTPHandler{
		contributions: contributions,
		distributions: distributions,
		logger:        logger,
	}
}

type donorPayload struct {
	TaxID       string `json:"tax_id"`
	Name        string `json:"name"`
	ContactName string `json:"contact_name"`
	Class       string `json:"class"`
	Email       string `json:"email"`
	Phone       string `json:"phone"`
}

type contributionLinePayload struct {
	ItemName    string      `json:"item_name"`
	Description string      `json:"description"`
	Category    string      `json:"category"`
	Unit        string      `json:"unit"`
	Quantity    json.Number `json:"quantity"`
	ExpiresAt   *time.Time  `json:"expires_at"`
}

type createContributionRequest struct {
	Donor donorPayload              `json:"donor"`
	Notes string                    `json:"notes"`
	Lines []contributionLinePayload `json:"lines"`
}

type createContributionResponse struct {
	ContributionID int64  `json:"contribution_id"`
	TrackingID     string `json:"tracking_id"`
	Status         string `json:"status"`
	Lines          int    `json:"lines"`
}

func (h *HTTPHandler) CreateContribution(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req createContributionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	lines := make([]service.ContributionLineInput, 0, len(req.Lines))
	for _, l := range req.Lines {
		// A non-numeric quantity parses to zero and the line is skipped,
		// matching the lenient intake contract.
		qty, err := l.Quantity.Int64()
		if err != nil {
			qty = 0
		}
		lines = append(lines, service.ContributionLineInput{
			ItemName:    l.ItemName,
			Description: l.Description,
			Category:    l.Category,
			Unit:        l.Unit,
			Quantity:    int(qty),
			ExpiresAt:   l.ExpiresAt,
		})
	}

	c, err := h.contributions.CreateContribution(r.Context(), service.DonorInput{
		TaxID:       req.Donor.TaxID,
		Name:        req.Donor.Name,
		ContactName: req.Donor.ContactName,
		Class:       req.Donor.Class,
		Email:       req.Donor.Email,
		Phone:       req.Donor.Phone,
	}, req.Notes, lines)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, createContributionResponse{
		ContributionID: c.ID,
		TrackingID:     c.TrackingID,
		Status:         string(c.Status),
		Lines:          len(c.Lines),
	})
}

type beneficiaryPayload struct {
	TaxID   string `json:"tax_id"`
	Name    string `json:"name"`
	Address string `json:"address"`
	Phone   string `json:"phone"`
	Email   string `json:"email"`
}

type distributionLinePayload struct {
	ItemID             int64  `json:"item_id"`
	Quantity           int    `json:"quantity"`
	ContributionLineID *int64 `json:"contribution_line_id"`
}

type createDistributionRequest struct {
	Beneficiary     beneficiaryPayload        `json:"beneficiary"`
	ResponsibleName string                    `json:"responsible_name"`
	Notes           string                    `json:"notes"`
	Lines           []distributionLinePayload `json:"lines"`
}

type createDistributionResponse struct {
	DistributionID int64  `json:"distribution_id"`
	TrackingID     string `json:"tracking_id"`
	Status         string `json:"status"`
	Lines          int    `json:"lines"`
}

func (h *HTTPHandler) CreateDistribution(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req createDistributionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	lines := make([]service.DistributionLineInput, 0, len(req.Lines))
	for _, l := range req.Lines {
		lines = append(lines, service.DistributionLineInput{
			ItemID:             l.ItemID,
			Quantity:           l.Quantity,
			ContributionLineID: l.ContributionLineID,
		})
	}

	d, err := h.distributions.CreateDistribution(r.Context(), service.BeneficiaryInput{
		TaxID:   req.Beneficiary.TaxID,
		Name:    req.Beneficiary.Name,
		Address: req.Beneficiary.Address,
		Phone:   req.Beneficiary.Phone,
		Email:   req.Beneficiary.Email,
	}, req.ResponsibleName, req.Notes, lines)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, createDistributionResponse{
		DistributionID: d.ID,
		TrackingID:     d.TrackingID,
		Status:         string(d.Status),
		Lines:          len(d.Lines),
	})
}

type advanceStatusRequest struct {
	ContributionID int64  `json:"contribution_id"`
	Status         string `json:"status"`
	Description    string `json:"description"`
	Actor          string `json:"actor"`
}

func (h *HTTPHandler) AdvanceStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req advanceStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ContributionID == 0 || req.Status == "" {
		writeError(w, http.StatusBadRequest, "contribution_id and status are required")
		return
	}

	ev, err := h.contributions.AdvanceStatus(r.Context(), req.ContributionID, req.Status, req.Description, req.Actor)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"event_id":    ev.ID,
		"status":      string(ev.Status),
		"description": ev.Description,
		"created_at":  ev.CreatedAt,
	})
}

// Track serves the public read-only tracking lookup by code.
func (h *HTTPHandler) Track(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	code := r.URL.Query().Get("code")
	if code == "" {
		writeError(w, http.StatusBadRequest, "code is required")
		return
	}

	snap, err := h.contributions.Track(r.Context(), code)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

type itemResponse struct {
	ID         int64      `json:"id"`
	Name       string     `json:"name"`
	Category   string     `json:"category"`
	Unit       string     `json:"unit"`
	Stock      int        `json:"stock"`
	StockLevel string     `json:"stock_level"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
}

func (h *HTTPHandler) ListItems(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	items, err := h.distributions.ListItems(r.Context())
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	out := make([]itemResponse, 0, len(items))
	for _, it := range items {
		out = append(out, itemResponse{
			ID:         it.ID,
			Name:       it.Name,
			Category:   string(it.Category),
			Unit:       string(it.Unit),
			Stock:      it.Stock,
			StockLevel: domain.StockLevel(it.Stock),
			ExpiresAt:  it.ExpiresAt,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *HTTPHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *HTTPHandler) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrMissingTaxID),
		errors.Is(err, service.ErrInvalidQuantity),
		errors.Is(err, service.ErrUnknownStatus):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrEmptyContribution),
		errors.Is(err, service.ErrEmptyDistribution):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrInsufficientStock):
		writeError(w, http.StatusConflict, err.Error())
	default:
		h.logger.Error("request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
