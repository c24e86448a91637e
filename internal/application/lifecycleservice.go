package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ericfisherdev/keyledger/internal/domain/model"
	"github.com/ericfisherdev/keyledger/internal/domain/port/driven"
	"github.com/ericfisherdev/keyledger/internal/keygen"
	"github.com/ericfisherdev/keyledger/internal/metrics"
)

const (
	// DefaultListLimit caps List when no limit is configured.
	DefaultListLimit = 1000

	// DefaultRotationReason is recorded on rotation edges when the caller gives none.
	DefaultRotationReason = "rotated"

	// DefaultProtectedResource names the resource when AccessProtectedResource
	// is called without one.
	DefaultProtectedResource = "protected-data"
)

// Logical endpoint names written to audit entries. They double as operation
// names in metrics.
const (
	EndpointIssue    = "issue"
	EndpointValidate = "validate"
	EndpointRotate   = "rotate"
	EndpointRevoke   = "revoke"
	EndpointList     = "list"
)

// LifecycleService issues, validates, rotates, and revokes credentials. Every
// call writes exactly one audit entry through the AuditRecorder. It depends
// only on port interfaces and holds no per-credential state.
type LifecycleService struct {
	creds      driven.CredentialStore
	transactor driven.Transactor
	audit      AuditRecorder
	hasher     *keygen.Hasher
	listLimit  int
	logger     *slog.Logger
	locks      *keyLocker

	now        func() time.Time
	newKey     func() (string, error)
	newSecret  func() (string, error)
	newID      func() string
	newAuditID func() string
}

// NewLifecycleService creates a new LifecycleService with the required dependencies.
func NewLifecycleService(
	creds driven.CredentialStore,
	transactor driven.Transactor,
	audit AuditRecorder,
	hasher *keygen.Hasher,
	listLimit int,
	logger *slog.Logger,
) *LifecycleService {
	if listLimit <= 0 {
		listLimit = DefaultListLimit
	}
	return &LifecycleService{
		creds:      creds,
		transactor: transactor,
		audit:      audit,
		hasher:     hasher,
		listLimit:  listLimit,
		logger:     logger,
		locks:      newKeyLocker(),
		now:        func() time.Time { return time.Now().UTC() },
		newKey:     keygen.GenerateKey,
		newSecret:  keygen.GenerateSecondarySecret,
		newID:      keygen.GenerateID,
		newAuditID: keygen.GenerateID,
	}
}

// auditEvent is the per-call audit payload assembled by each operation.
type auditEvent struct {
	event    model.EventType
	endpoint string
	subject  string
	outcome  model.Outcome
	detail   string
}

// finish writes the single audit entry for a call and counts its outcome.
func (s *LifecycleService) finish(ctx context.Context, caller model.Caller, op string, ev auditEvent) {
	var subject *string
	if ev.subject != "" {
		id := ev.subject
		subject = &id
	}

	s.audit.Record(ctx, model.AuditEntry{
		ID:        s.newAuditID(),
		SubjectID: subject,
		EventType: ev.event,
		Source:    caller.Source(),
		RequestID: caller.RequestID,
		Endpoint:  ev.endpoint,
		Outcome:   ev.outcome,
		Detail:    ev.detail,
		At:        s.now(),
	})

	metrics.RecordOperation(op, string(ev.outcome))
}

// reject audits a call refused for malformed input and returns err.
func (s *LifecycleService) reject(ctx context.Context, caller model.Caller, op, endpoint string, err *model.ValidationError) error {
	s.finish(ctx, caller, op, auditEvent{
		event:    model.EventRejected,
		endpoint: endpoint,
		outcome:  model.OutcomeFailure,
		detail:   err.Message,
	})
	return err
}

// RejectRequest records a call refused before it reached an operation, such
// as one whose request could not be decoded, and returns the ValidationError
// to report. endpoint is one of the Endpoint constants.
func (s *LifecycleService) RejectRequest(ctx context.Context, caller model.Caller, endpoint, message string) error {
	return s.reject(ctx, caller, endpoint, endpoint, model.ErrValidation("%s", message))
}

// storageFailure logs and wraps an unexpected port error.
func (s *LifecycleService) storageFailure(op string, err error, attrs ...any) error {
	if errors.Is(err, driven.ErrCredentialConflict) {
		s.logger.Error("credential conflict", append([]any{"op", op, "error", err}, attrs...)...)
		return model.ErrConflict("%s: credential id or key already in use", op)
	}
	s.logger.Error("storage failure", append([]any{"op", op, "error", err}, attrs...)...)
	return model.ErrStorage(op, err)
}

// mint generates fresh key material for a credential owned by owner/label.
func (s *LifecycleService) mint(owner, label string) (model.IssuedCredential, error) {
	key, err := s.newKey()
	if err != nil {
		return model.IssuedCredential{}, fmt.Errorf("generate key: %w", err)
	}
	secret, err := s.newSecret()
	if err != nil {
		return model.IssuedCredential{}, fmt.Errorf("generate secondary secret: %w", err)
	}

	return model.IssuedCredential{
		Credential: model.Credential{
			ID:        s.newID(),
			Owner:     owner,
			Label:     label,
			KeyPrefix: keygen.Prefix(key),
			KeyHash:   s.hasher.Hash(key),
			CreatedAt: s.now(),
			Active:    true,
		},
		Key:             key,
		SecondarySecret: secret,
		Notice:          model.SecondarySecretNotice,
	}, nil
}

// Issue mints and stores a new active credential for owner and label. The
// returned value is the only time the plaintext key and secondary secret are
// ever disclosed.
func (s *LifecycleService) Issue(ctx context.Context, caller model.Caller, owner, label string) (*model.IssuedCredential, error) {
	const op = "issue"

	owner, ownerOK := cleanText(owner)
	label, labelOK := cleanText(label)
	if owner == "" || label == "" {
		return nil, s.reject(ctx, caller, op, EndpointIssue, model.ErrValidation("owner and label are required"))
	}
	if !ownerOK || !labelOK {
		return nil, s.reject(ctx, caller, op, EndpointIssue,
			model.ErrValidation("owner and label must be plain text without HTML markup"))
	}
	if tooLong(owner) || tooLong(label) {
		return nil, s.reject(ctx, caller, op, EndpointIssue,
			model.ErrValidation("owner and label must be at most %d characters", maxTextLen))
	}

	issued, err := s.mint(owner, label)
	if err != nil {
		s.finish(ctx, caller, op, auditEvent{
			event: model.EventCreated, endpoint: EndpointIssue,
			outcome: model.OutcomeFailure, detail: "key generation failed",
		})
		s.logger.Error("key generation failed", "error", err)
		return nil, model.ErrStorage(op, err)
	}

	stored, err := s.creds.Insert(ctx, issued.Credential)
	if err != nil {
		s.finish(ctx, caller, op, auditEvent{
			event: model.EventCreated, endpoint: EndpointIssue,
			outcome: model.OutcomeFailure, detail: "insert failed",
		})
		return nil, s.storageFailure(op, err, "credential_id", issued.Credential.ID)
	}
	issued.Credential = stored

	s.finish(ctx, caller, op, auditEvent{
		event: model.EventCreated, endpoint: EndpointIssue, subject: stored.ID,
		outcome: model.OutcomeSuccess, detail: fmt.Sprintf("issued %s... for %s/%s", stored.KeyPrefix, owner, label),
	})
	s.logger.Info("credential issued", "credential_id", stored.ID, "owner", owner, "label", label)

	return &issued, nil
}

// Validate checks a presented key against the active credentials and records
// its use. Unknown or inactive keys fail with InvalidCredentialError.
func (s *LifecycleService) Validate(ctx context.Context, caller model.Caller, key string) (*model.CredentialInfo, error) {
	return s.verify(ctx, caller, "validate", model.EventValidated, EndpointValidate, key)
}

// AccessProtectedResource gates resource behind the presented key. It behaves
// like Validate but audits a used event naming the resource.
func (s *LifecycleService) AccessProtectedResource(ctx context.Context, caller model.Caller, key, resource string) (*model.CredentialInfo, error) {
	resource = strings.TrimSpace(resource)
	if resource == "" {
		resource = DefaultProtectedResource
	}
	return s.verify(ctx, caller, "access", model.EventUsed, resource, key)
}

func (s *LifecycleService) verify(ctx context.Context, caller model.Caller, op string, event model.EventType, endpoint, key string) (*model.CredentialInfo, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, s.reject(ctx, caller, op, endpoint, model.ErrValidation("api key is required"))
	}

	fail := func(subject, detail string) {
		s.finish(ctx, caller, op, auditEvent{
			event: event, endpoint: endpoint, subject: subject,
			outcome: model.OutcomeFailure, detail: detail,
		})
	}

	hash := s.hasher.Hash(key)
	cred, err := s.creds.FindActiveByKeyHash(ctx, hash)
	if err != nil {
		fail("", "lookup failed")
		return nil, s.storageFailure(op, err)
	}
	if cred == nil {
		fail("", "unknown or inactive key")
		return nil, model.ErrInvalidCredential("invalid or inactive api key")
	}
	if !s.hasher.Verify(key, cred.KeyHash) {
		s.logger.Warn("stored key hash mismatch", "credential_id", cred.ID)
		fail(cred.ID, "key hash mismatch")
		return nil, model.ErrInvalidCredential("invalid or inactive api key")
	}

	now := s.now()
	if err := s.creds.MarkUsed(ctx, cred.ID, now); err != nil {
		if errors.Is(err, driven.ErrCredentialNotFound) {
			fail(cred.ID, "credential removed during validation")
			return nil, model.ErrInvalidCredential("invalid or inactive api key")
		}
		fail(cred.ID, "mark used failed")
		return nil, s.storageFailure(op, err, "credential_id", cred.ID)
	}
	cred.LastUsedAt = &now

	s.finish(ctx, caller, op, auditEvent{
		event: event, endpoint: endpoint, subject: cred.ID,
		outcome: model.OutcomeSuccess, detail: "key " + cred.KeyPrefix + "... accepted",
	})

	info := cred.Info()
	return &info, nil
}

// Rotate replaces the credential holding oldKey with a new one carrying the
// same owner and label. The old record is deleted and a rotation edge links
// the two, all in one transaction. The old key stops working immediately.
func (s *LifecycleService) Rotate(ctx context.Context, caller model.Caller, oldKey, reason string) (*model.RotatedCredential, error) {
	const op = "rotate"

	oldKey = strings.TrimSpace(oldKey)
	if oldKey == "" {
		return nil, s.reject(ctx, caller, op, EndpointRotate, model.ErrValidation("api key is required"))
	}
	reason, reasonOK := cleanText(reason)
	if !reasonOK {
		return nil, s.reject(ctx, caller, op, EndpointRotate,
			model.ErrValidation("reason must be plain text without HTML markup"))
	}
	if reason == "" {
		reason = DefaultRotationReason
	}
	if tooLong(reason) {
		return nil, s.reject(ctx, caller, op, EndpointRotate,
			model.ErrValidation("reason must be at most %d characters", maxTextLen))
	}

	oldHash := s.hasher.Hash(oldKey)
	unlock := s.locks.Lock(oldHash)
	defer unlock()

	fail := func(subject, detail string) {
		s.finish(ctx, caller, op, auditEvent{
			event: model.EventRegenerated, endpoint: EndpointRotate, subject: subject,
			outcome: model.OutcomeFailure, detail: detail,
		})
	}

	old, err := s.creds.FindByKeyHash(ctx, oldHash)
	if err != nil {
		fail("", "lookup failed")
		return nil, s.storageFailure(op, err)
	}
	if old == nil {
		fail("", "unknown key")
		return nil, model.ErrNotFound("api key not found")
	}

	issued, err := s.mint(old.Owner, old.Label)
	if err != nil {
		fail(old.ID, "key generation failed")
		s.logger.Error("key generation failed", "error", err, "credential_id", old.ID)
		return nil, model.ErrStorage(op, err)
	}

	var stored model.Credential
	err = s.transactor.WithinTx(ctx, func(ctx context.Context, tx driven.TxStores) error {
		var txErr error
		stored, txErr = tx.Credentials().Insert(ctx, issued.Credential)
		if txErr != nil {
			return txErr
		}

		edge := model.RotationEdge{
			RetiredID:        old.ID,
			RetiredKeyHash:   old.KeyHash,
			RetiredKeyPrefix: old.KeyPrefix,
			ReplacementID:    stored.ID,
			Owner:            old.Owner,
			Label:            old.Label,
			Reason:           reason,
			At:               stored.CreatedAt,
		}
		if txErr = tx.Rotations().Record(ctx, edge); txErr != nil {
			return txErr
		}

		return tx.Credentials().Delete(ctx, old.ID)
	})
	if err != nil {
		if errors.Is(err, driven.ErrCredentialNotFound) {
			fail(old.ID, "credential removed during rotation")
			return nil, model.ErrNotFound("api key not found")
		}
		fail(old.ID, "rotation transaction failed")
		return nil, s.storageFailure(op, err, "credential_id", old.ID)
	}
	issued.Credential = stored

	s.finish(ctx, caller, op, auditEvent{
		event: model.EventRegenerated, endpoint: EndpointRotate, subject: stored.ID,
		outcome: model.OutcomeSuccess,
		detail:  fmt.Sprintf("replaced %s (%s...): %s", old.ID, old.KeyPrefix, reason),
	})
	s.logger.Info("credential rotated", "retired_id", old.ID, "credential_id", stored.ID, "reason", reason)

	return &model.RotatedCredential{
		RetiredKeyPrefix: old.KeyPrefix,
		Issued:           issued,
	}, nil
}

// Revoke deletes the credential holding key. Its key can never be reissued.
func (s *LifecycleService) Revoke(ctx context.Context, caller model.Caller, key string) error {
	const op = "revoke"

	key = strings.TrimSpace(key)
	if key == "" {
		return s.reject(ctx, caller, op, EndpointRevoke, model.ErrValidation("api key is required"))
	}

	hash := s.hasher.Hash(key)
	unlock := s.locks.Lock(hash)
	defer unlock()

	fail := func(subject, detail string) {
		s.finish(ctx, caller, op, auditEvent{
			event: model.EventDeleted, endpoint: EndpointRevoke, subject: subject,
			outcome: model.OutcomeFailure, detail: detail,
		})
	}

	cred, err := s.creds.FindByKeyHash(ctx, hash)
	if err != nil {
		fail("", "lookup failed")
		return s.storageFailure(op, err)
	}
	if cred == nil {
		fail("", "unknown key")
		return model.ErrNotFound("api key not found")
	}

	// Audited after Delete so the entry records whether removal happened.
	// The subject is captured first because the record is gone afterwards.
	subject := cred.ID
	if err := s.creds.Delete(ctx, subject); err != nil {
		if errors.Is(err, driven.ErrCredentialNotFound) {
			fail(subject, "credential already removed")
			return model.ErrNotFound("api key not found")
		}
		fail(subject, "delete failed")
		return s.storageFailure(op, err, "credential_id", subject)
	}

	s.finish(ctx, caller, op, auditEvent{
		event: model.EventDeleted, endpoint: EndpointRevoke, subject: subject,
		outcome: model.OutcomeSuccess, detail: "revoked " + cred.KeyPrefix + "...",
	})
	s.logger.Info("credential revoked", "credential_id", subject)

	return nil
}

// List returns stored credentials, newest first, capped at the configured
// limit. Records carry the key digest and prefix, never a plaintext key.
func (s *LifecycleService) List(ctx context.Context, caller model.Caller) ([]model.Credential, error) {
	const op = "list"

	creds, err := s.creds.ListAll(ctx, s.listLimit)
	if err != nil {
		s.finish(ctx, caller, op, auditEvent{
			event: model.EventListed, endpoint: EndpointList,
			outcome: model.OutcomeFailure, detail: "list failed",
		})
		return nil, s.storageFailure(op, err)
	}

	s.finish(ctx, caller, op, auditEvent{
		event: model.EventListed, endpoint: EndpointList,
		outcome: model.OutcomeSuccess, detail: fmt.Sprintf("%d credentials", len(creds)),
	})

	return creds, nil
}
