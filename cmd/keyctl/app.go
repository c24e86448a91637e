package main

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"time"

	"github.com/google/uuid"

	sqliteadapter "github.com/ericfisherdev/keyledger/internal/adapter/driven/sqlite"
	"github.com/ericfisherdev/keyledger/internal/application"
	"github.com/ericfisherdev/keyledger/internal/config"
	"github.com/ericfisherdev/keyledger/internal/domain/model"
	"github.com/ericfisherdev/keyledger/internal/keygen"
)

// services is what a command needs once storage is open.
type services struct {
	lifecycle *application.LifecycleService
	audit     *application.AuditService
	close     func() error
}

// app carries state shared by every command.
type app struct {
	out    io.Writer
	dbPath string
	open   func(ctx context.Context, dbPath string) (*services, error)
	svc    *services
}

func newApp(out io.Writer) *app {
	return &app{out: out, open: openServices}
}

// openServices loads configuration, opens the SQLite database, and wires the
// services with a synchronous auditor so every entry is written before exit.
func openServices(ctx context.Context, dbPath string) (*services, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if dbPath == "" {
		dbPath = cfg.DBPath
	}
	logger := cfg.NewLogger(os.Stderr)

	hasher, err := keygen.NewHasherFromSecret(cfg.HashSecret)
	if err != nil {
		return nil, err
	}

	db, err := sqliteadapter.NewDB(ctx, dbPath)
	if err != nil {
		return nil, err
	}
	if err := sqliteadapter.RunMigrations(db.Writer); err != nil {
		_ = db.Close()
		return nil, err
	}

	auditLog := sqliteadapter.NewAuditRepo(db)
	auditor := application.NewSyncAuditor(auditLog, cfg.AuditTimeout, logger)

	return &services{
		lifecycle: application.NewLifecycleService(
			sqliteadapter.NewCredentialRepo(db),
			sqliteadapter.NewTransactor(db),
			auditor,
			hasher,
			cfg.ListLimit,
			logger,
		),
		audit: application.NewAuditService(auditLog, sqliteadapter.NewRotationRepo(db)),
		close: db.Close,
	}, nil
}

// closeServices releases storage opened by the last command, if any.
func (a *app) closeServices() error {
	svc := a.svc
	a.svc = nil
	if svc == nil || svc.close == nil {
		return nil
	}
	return svc.close()
}

// caller identifies the operator running the command.
func (a *app) caller() model.Caller {
	client := "keyctl"
	if user := os.Getenv("USER"); user != "" {
		client += " (" + user + ")"
	}
	return model.Caller{Origin: "cli", ClientID: client, RequestID: uuid.NewString()}
}

func (a *app) printJSON(v any) error {
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// Output views. Field names follow the HTTP API.

type issuedView struct {
	ID           string `json:"id"`
	Key          string `json:"key"`
	Secret       string `json:"secret"`
	KeyPrefix    string `json:"keyPrefix"`
	OldKeyPrefix string `json:"oldKeyPrefix,omitempty"`
	Owner        string `json:"owner"`
	Label        string `json:"label"`
	CreatedAt    string `json:"createdAt"`
	Notice       string `json:"notice"`
}

type credentialView struct {
	ID         string  `json:"id"`
	Owner      string  `json:"owner"`
	Label      string  `json:"label"`
	KeyPrefix  string  `json:"keyPrefix,omitempty"`
	KeyHash    string  `json:"keyHash,omitempty"`
	Active     *bool   `json:"active,omitempty"`
	CreatedAt  string  `json:"createdAt"`
	LastUsedAt *string `json:"lastUsedAt"`
}

type auditView struct {
	ID        string  `json:"id"`
	SubjectID *string `json:"subjectId"`
	EventType string  `json:"eventType"`
	Source    string  `json:"source"`
	Endpoint  string  `json:"endpoint"`
	Outcome   string  `json:"outcome"`
	Detail    string  `json:"detail"`
	At        string  `json:"at"`
}

type rotationView struct {
	RetiredID        string `json:"retiredId"`
	RetiredKeyPrefix string `json:"retiredKeyPrefix"`
	ReplacementID    string `json:"replacementId"`
	Owner            string `json:"owner"`
	Label            string `json:"label"`
	Reason           string `json:"reason"`
	At               string `json:"at"`
}

func stamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func optionalStamp(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := stamp(*t)
	return &s
}

func toIssuedView(issued model.IssuedCredential, oldPrefix string) issuedView {
	c := issued.Credential
	return issuedView{
		ID:           c.ID,
		Key:          issued.Key,
		Secret:       issued.SecondarySecret,
		KeyPrefix:    c.KeyPrefix,
		OldKeyPrefix: oldPrefix,
		Owner:        c.Owner,
		Label:        c.Label,
		CreatedAt:    stamp(c.CreatedAt),
		Notice:       issued.Notice,
	}
}

func toCredentialView(c model.Credential) credentialView {
	active := c.Active
	return credentialView{
		ID:         c.ID,
		Owner:      c.Owner,
		Label:      c.Label,
		KeyPrefix:  c.KeyPrefix,
		KeyHash:    c.KeyHash,
		Active:     &active,
		CreatedAt:  stamp(c.CreatedAt),
		LastUsedAt: optionalStamp(c.LastUsedAt),
	}
}

func toInfoView(info model.CredentialInfo) credentialView {
	return credentialView{
		ID:         info.ID,
		Owner:      info.Owner,
		Label:      info.Label,
		CreatedAt:  stamp(info.CreatedAt),
		LastUsedAt: optionalStamp(info.LastUsedAt),
	}
}

func toAuditView(e model.AuditEntry) auditView {
	return auditView{
		ID:        e.ID,
		SubjectID: e.SubjectID,
		EventType: string(e.EventType),
		Source:    e.Source,
		Endpoint:  e.Endpoint,
		Outcome:   string(e.Outcome),
		Detail:    e.Detail,
		At:        stamp(e.At),
	}
}

func toRotationView(e model.RotationEdge) rotationView {
	return rotationView{
		RetiredID:        e.RetiredID,
		RetiredKeyPrefix: e.RetiredKeyPrefix,
		ReplacementID:    e.ReplacementID,
		Owner:            e.Owner,
		Label:            e.Label,
		Reason:           e.Reason,
		At:               stamp(e.At),
	}
}
