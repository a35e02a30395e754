package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/dukerupert/billingd/internal/model"
	"github.com/dukerupert/billingd/internal/store"
)

type SubscriptionHandler struct {
	subscriptions *store.SubscriptionStore
	logger        *slog.Logger
}

func NewSubscriptionHandler(subscriptions *store.SubscriptionStore, logger *slog.Logger) *SubscriptionHandler {
	return &SubscriptionHandler{subscriptions: subscriptions, logger: logger}
}

func (h *SubscriptionHandler) List(w http.ResponseWriter, r *http.Request) {
	subs, err := h.subscriptions.List()
	if err != nil {
		h.logger.Error("list subscriptions", "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if subs == nil {
		subs = []*model.Subscription{}
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(subs)
}

func (h *SubscriptionHandler) Get(w http.ResponseWriter, r *http.Request) {
	sub, err := h.subscriptions.GetByID(r.PathValue("id"))
	if err != nil {
		h.logger.Error("get subscription", "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if sub == nil {
		http.Error(w, "subscription not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(sub)
}

func (h *SubscriptionHandler) Create(w http.ResponseWriter, r *http.Request) {
	var sub model.Subscription
	if err := json.NewDecoder(r.Body).Decode(&sub); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if !sub.CurrentPeriodEnd.After(sub.CurrentPeriodStart) {
		http.Error(w, "current_period_end must be after current_period_start", http.StatusBadRequest)
		return
	}
	if sub.Status == "" {
		sub.Status = model.SubscriptionStatusActive
	}

	created, err := h.subscriptions.Create(&sub)
	if err != nil {
		h.logger.Error("create subscription", "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(created)
}

func (h *SubscriptionHandler) Patch(w http.ResponseWriter, r *http.Request) {
	var patch store.SubscriptionPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	updated, err := h.subscriptions.Patch(r.PathValue("id"), patch)
	if errors.Is(err, store.ErrNotFound) {
		http.Error(w, "subscription not found", http.StatusNotFound)
		return
	}
	if err != nil {
		h.logger.Error("patch subscription", "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(updated)
}

func (h *SubscriptionHandler) Delete(w http.ResponseWriter, r *http.Request) {
	err := h.subscriptions.Delete(r.PathValue("id"))
	if errors.Is(err, store.ErrNotFound) {
		http.Error(w, "subscription not found", http.StatusNotFound)
		return
	}
	if err != nil {
		h.logger.Error("delete subscription", "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
