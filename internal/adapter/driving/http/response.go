package httphandler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/ericfisherdev/keyledger/internal/domain/model"
)

// writeJSON marshals v to JSON and writes it to the response with the given
// status code. If marshaling fails, a 500 error is written instead.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"success":false,"message":"internal server error"}`))
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

// writeError writes a JSON error response with the given status code and message.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Success: false, Message: message})
}

// errorResponse is the standard error response body.
type errorResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// IssueRequest is the JSON body for the generate-key endpoint. Username is
// the legacy name for Owner.
type IssueRequest struct {
	Owner    string `json:"owner"`
	Username string `json:"username"`
	Label    string `json:"label"`
}

func (r IssueRequest) owner() string {
	if r.Owner != "" {
		return r.Owner
	}
	return r.Username
}

// KeyRequest is the JSON body for endpoints that take a presented key. APIKey
// is the legacy name for Key.
type KeyRequest struct {
	Key    string `json:"key"`
	APIKey string `json:"apiKey"`
	Reason string `json:"reason,omitempty"`
}

func (r KeyRequest) key() string {
	if r.Key != "" {
		return r.Key
	}
	return r.APIKey
}

// IssueResponse discloses a new key and secondary secret. It is returned once.
type IssueResponse struct {
	Success   bool   `json:"success"`
	ID        string `json:"id"`
	Key       string `json:"key"`
	Secret    string `json:"secret"`
	KeyPrefix string `json:"keyPrefix"`
	Owner     string `json:"owner"`
	Label     string `json:"label"`
	CreatedAt string `json:"createdAt"`
	Notice    string `json:"notice"`
}

// RotateResponse discloses the replacement key and secondary secret.
type RotateResponse struct {
	Success      bool   `json:"success"`
	OldKey       string `json:"oldKey"`
	OldKeyPrefix string `json:"oldKeyPrefix"`
	ID           string `json:"id"`
	Key          string `json:"key"`
	Secret       string `json:"secret"`
	KeyPrefix    string `json:"keyPrefix"`
	Owner        string `json:"owner"`
	Label        string `json:"label"`
	CreatedAt    string `json:"createdAt"`
	Notice       string `json:"notice"`
}

// ValidateResponse is the non-secret view of a validated credential.
type ValidateResponse struct {
	Success    bool    `json:"success"`
	Valid      bool    `json:"valid"`
	ID         string  `json:"id"`
	Owner      string  `json:"owner"`
	Label      string  `json:"label"`
	CreatedAt  string  `json:"createdAt"`
	LastUsedAt *string `json:"lastUsedAt"`
}

// ProtectedResponse is the payload behind the protected-data endpoint.
type ProtectedResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Owner   string `json:"owner"`
	Label   string `json:"label"`
	Data    string `json:"data"`
}

// MessageResponse is a bare confirmation.
type MessageResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// CredentialResponse is one entry in the key listing. It carries the key
// digest and display prefix, never a key or secret.
type CredentialResponse struct {
	ID         string  `json:"id"`
	Owner      string  `json:"owner"`
	Label      string  `json:"label"`
	KeyPrefix  string  `json:"keyPrefix"`
	KeyHash    string  `json:"keyHash"`
	Active     bool    `json:"active"`
	CreatedAt  string  `json:"createdAt"`
	LastUsedAt *string `json:"lastUsedAt"`
}

// ListResponse is the key listing.
type ListResponse struct {
	Success bool                 `json:"success"`
	Count   int                  `json:"count"`
	Keys    []CredentialResponse `json:"keys"`
}

// AuditEntryResponse is the JSON representation of one audit entry.
type AuditEntryResponse struct {
	ID        string  `json:"id"`
	SubjectID *string `json:"subjectId"`
	EventType string  `json:"eventType"`
	Source    string  `json:"source"`
	RequestID string  `json:"requestId,omitempty"`
	Endpoint  string  `json:"endpoint"`
	Outcome   string  `json:"outcome"`
	Detail    string  `json:"detail"`
	At        string  `json:"at"`
}

// AuditListResponse is the audit inspection payload.
type AuditListResponse struct {
	Success bool                 `json:"success"`
	Count   int                  `json:"count"`
	Entries []AuditEntryResponse `json:"entries"`
}

// RotationResponse is the JSON representation of one rotation edge.
type RotationResponse struct {
	ID               int64  `json:"id"`
	RetiredID        string `json:"retiredId"`
	RetiredKeyPrefix string `json:"retiredKeyPrefix"`
	ReplacementID    string `json:"replacementId"`
	Owner            string `json:"owner"`
	Label            string `json:"label"`
	Reason           string `json:"reason"`
	At               string `json:"at"`
}

// RotationListResponse is the rotation inspection payload.
type RotationListResponse struct {
	Success   bool               `json:"success"`
	Count     int                `json:"count"`
	Rotations []RotationResponse `json:"rotations"`
}

// HealthResponse is the JSON representation of the health check endpoint.
type HealthResponse struct {
	Success bool   `json:"success"`
	Status  string `json:"status"`
	Time    string `json:"time"`
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func formatOptionalTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := formatTime(*t)
	return &s
}

func toIssueResponse(issued model.IssuedCredential) IssueResponse {
	c := issued.Credential
	return IssueResponse{
		Success:   true,
		ID:        c.ID,
		Key:       issued.Key,
		Secret:    issued.SecondarySecret,
		KeyPrefix: c.KeyPrefix,
		Owner:     c.Owner,
		Label:     c.Label,
		CreatedAt: formatTime(c.CreatedAt),
		Notice:    issued.Notice,
	}
}

// toRotateResponse echoes the key the caller just presented; it is already
// retired and the caller sent it in the request.
func toRotateResponse(oldKey string, rotated model.RotatedCredential) RotateResponse {
	c := rotated.Issued.Credential
	return RotateResponse{
		Success:      true,
		OldKey:       oldKey,
		OldKeyPrefix: rotated.RetiredKeyPrefix,
		ID:           c.ID,
		Key:          rotated.Issued.Key,
		Secret:       rotated.Issued.SecondarySecret,
		KeyPrefix:    c.KeyPrefix,
		Owner:        c.Owner,
		Label:        c.Label,
		CreatedAt:    formatTime(c.CreatedAt),
		Notice:       rotated.Issued.Notice,
	}
}

func toValidateResponse(info model.CredentialInfo) ValidateResponse {
	return ValidateResponse{
		Success:    true,
		Valid:      true,
		ID:         info.ID,
		Owner:      info.Owner,
		Label:      info.Label,
		CreatedAt:  formatTime(info.CreatedAt),
		LastUsedAt: formatOptionalTime(info.LastUsedAt),
	}
}

func toCredentialResponse(c model.Credential) CredentialResponse {
	return CredentialResponse{
		ID:         c.ID,
		Owner:      c.Owner,
		Label:      c.Label,
		KeyPrefix:  c.KeyPrefix,
		KeyHash:    c.KeyHash,
		Active:     c.Active,
		CreatedAt:  formatTime(c.CreatedAt),
		LastUsedAt: formatOptionalTime(c.LastUsedAt),
	}
}

func toAuditEntryResponse(e model.AuditEntry) AuditEntryResponse {
	return AuditEntryResponse{
		ID:        e.ID,
		SubjectID: e.SubjectID,
		EventType: string(e.EventType),
		Source:    e.Source,
		RequestID: e.RequestID,
		Endpoint:  e.Endpoint,
		Outcome:   string(e.Outcome),
		Detail:    e.Detail,
		At:        formatTime(e.At),
	}
}

func toRotationResponse(e model.RotationEdge) RotationResponse {
	return RotationResponse{
		ID:               e.ID,
		RetiredID:        e.RetiredID,
		RetiredKeyPrefix: e.RetiredKeyPrefix,
		ReplacementID:    e.ReplacementID,
		Owner:            e.Owner,
		Label:            e.Label,
		Reason:           e.Reason,
		At:               formatTime(e.At),
	}
}
