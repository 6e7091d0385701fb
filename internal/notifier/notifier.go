// Package notifier delivers document alerts through the external
// messaging gateway. Delivery is resolved through the user's contact
// profile first; every resolution step short-circuits to a distinct
// terminal status so the audit trail shows why a message was or wasn't
// sent.
package notifier

import (
	"context"
	"fmt"

	"github.com/lexwatch/tribsync/internal/domain"
	"github.com/lexwatch/tribsync/internal/logger"
)

// PreferenceStore resolves a user's contact profile. A nil profile
// with nil error means the user never configured one.
type PreferenceStore interface {
	GetByUserID(ctx context.Context, userID string) (*domain.NotificationPreference, error)
}

// Message is the templated alert payload: positional variables the
// gateway substitutes into the registered template.
type Message struct {
	CaseRef     string
	SourceLabel string
	Location    string
	Body        string
}

// Gateway sends a templated message to one recipient.
type Gateway interface {
	Send(ctx context.Context, to string, msg Message) error
}

// Result is the delivery outcome recorded on the document row.
type Result struct {
	Status string // sent, failed, skipped
	Detail string // skip reason or delivery error
}

const sourceLabel = "Tribunal Electrónico"

// Service resolves contact preferences and delivers alerts.
type Service struct {
	prefs   PreferenceStore
	gateway Gateway
	log     logger.Interface
}

// New creates a notifier service.
func New(prefs PreferenceStore, gateway Gateway, log logger.Interface) *Service {
	return &Service{prefs: prefs, gateway: gateway, log: log}
}

// Notify attempts delivery for one document. It never returns an
// error: every failure mode resolves to a Result the orchestrator
// records on the document. Gateway failure must not roll back the
// document insert or abort the run.
func (s *Service) Notify(ctx context.Context, userID string, doc *domain.PersistedDocument) Result {
	pref, err := s.prefs.GetByUserID(ctx, userID)
	if err != nil {
		s.log.Error("preference lookup failed", "user_id", userID, "error", err)
		return Result{Status: domain.DeliveryStatusFailed, Detail: fmt.Sprintf("preference lookup: %v", err)}
	}

	switch {
	case pref == nil:
		return Result{Status: domain.DeliveryStatusSkipped, Detail: domain.SkipReasonNoProfile}
	case !pref.WhatsAppEnabled:
		return Result{Status: domain.DeliveryStatusSkipped, Detail: domain.SkipReasonDisabled}
	case pref.PhoneNumber == nil || *pref.PhoneNumber == "":
		return Result{Status: domain.DeliveryStatusSkipped, Detail: domain.SkipReasonNoAddress}
	}

	msg := Message{
		CaseRef:     doc.Expediente,
		SourceLabel: sourceLabel,
		Location:    Location(doc.Juzgado),
		Body:        messageBody(doc),
	}

	if err := s.gateway.Send(ctx, *pref.PhoneNumber, msg); err != nil {
		s.log.Error("notification delivery failed",
			"user_id", userID, "expediente", doc.Expediente, "error", err)
		return Result{Status: domain.DeliveryStatusFailed, Detail: err.Error()}
	}

	return Result{Status: domain.DeliveryStatusSent}
}

// messageBody prefers the AI summary and falls back to the raw scraped
// description. The fallback is unconditional: delivery never blocks on
// summarizer success.
func messageBody(doc *domain.PersistedDocument) string {
	if doc.Summary != nil && *doc.Summary != "" {
		return *doc.Summary
	}
	if doc.Description != "" {
		return doc.Description
	}
	return fmt.Sprintf("Nueva notificación en el expediente %s", doc.Expediente)
}
