package rpc

import (
	"encoding/json"

	"github.com/dkeye/VoiceAgent/internal/app/contact"
	"github.com/dkeye/VoiceAgent/internal/domain"
	"github.com/rs/zerolog/log"
)

const (
	RespInitData             = "Success: Initial data received"
	RespContactFormDisplayed = "Success: Contact form displayed"
	RespContactInfoSubmitted = "Success: Contact info submitted"
	RespSubmissionProcessed  = "Success: Contact form submission processed"
	RespNoContactInfo        = "No contact info available"

	invalidInitData    = "Invalid data format"
	invalidContactForm = "Invalid contact form data"
	invalidContactInfo = "Invalid contact info data"
)

type contactFormPayload struct {
	ShowContactForm bool   `json:"showContactForm"`
	Message         string `json:"message"`
}

type contactInfoPayload struct {
	ShowContactForm  bool   `json:"showContactForm"`
	ContactSubmitted bool   `json:"contactSubmitted"`
	Email            string `json:"email"`
	Phone            string `json:"phone"`
	Message          string `json:"message"`
}

type contactInfoResponse struct {
	Email string `json:"email"`
	Phone string `json:"phone"`
}

func errorResponse(err error) string { return "Error: " + err.Error() }

// decode parses payload into dst. Invalid JSON is reported with the parser's
// message; well-formed but falsy or mis-shaped payloads get the invalid reason.
func decode(m Method, payload, invalid string, dst any) error {
	var probe any
	if err := json.Unmarshal([]byte(payload), &probe); err != nil {
		return &domain.RPCPayloadError{Method: string(m), Err: err}
	}
	if falsy(probe) {
		return &domain.RPCPayloadError{Method: string(m), Reason: invalid}
	}
	if err := json.Unmarshal([]byte(payload), dst); err != nil {
		log.Warn().Err(err).Str("module", "app.rpc").Str("method", string(m)).Msg("payload shape mismatch")
		return &domain.RPCPayloadError{Method: string(m), Reason: invalid}
	}
	return nil
}

func falsy(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case bool:
		return !x
	case float64:
		return x == 0
	case string:
		return x == ""
	}
	return false
}

func (t *Table) initData(payload string) string {
	var records []domain.Property
	if err := decode(MethodInitData, payload, invalidInitData, &records); err != nil {
		return errorResponse(err)
	}
	t.Results.Replace(records)
	return RespInitData
}

func (t *Table) showContactForm(payload string) string {
	var p contactFormPayload
	if err := decode(MethodShowContactForm, payload, invalidContactForm, &p); err != nil {
		return errorResponse(err)
	}
	t.Contact.ShowForm(p.ShowContactForm, p.Message)
	return RespContactFormDisplayed
}

func (t *Table) submitContactInfo(payload string) string {
	var p contactInfoPayload
	if err := decode(MethodSubmitContactInfo, payload, invalidContactInfo, &p); err != nil {
		return errorResponse(err)
	}
	ok := t.Contact.Apply(contact.State{
		FormVisible: p.ShowContactForm,
		Submitted:   p.ContactSubmitted,
		Email:       p.Email,
		Phone:       p.Phone,
		Message:     p.Message,
	})
	if !ok {
		return errorResponse(&domain.RPCPayloadError{Method: string(MethodSubmitContactInfo), Reason: invalidContactInfo})
	}
	return RespContactInfoSubmitted
}

// contactFormSubmitted is an acknowledgment only; the agent drives the rest
// through its own conversation logic.
func (t *Table) contactFormSubmitted() string {
	return RespSubmissionProcessed
}

func (t *Table) getContactInfo() string {
	email, phone, ok := t.Contact.ContactInfo()
	if !ok {
		return RespNoContactInfo
	}
	b, err := json.Marshal(contactInfoResponse{Email: email, Phone: phone})
	if err != nil {
		return errorResponse(err)
	}
	return string(b)
}
