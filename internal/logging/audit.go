package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// AuditEventType names one kind of rewrite decision recorded in the audit
// trail. The trail is a JSON-lines file meant for tooling that wants to
// know exactly which decorators a build lowered.
type AuditEventType string

const (
	AuditFileRewritten    AuditEventType = "file_rewritten"
	AuditFileUnchanged    AuditEventType = "file_unchanged"
	AuditFileError        AuditEventType = "file_error"
	AuditDecoratorLowered AuditEventType = "decorator_lowered"
	AuditDiagnostic       AuditEventType = "diagnostic"
)

// AuditEvent is a single audit record.
type AuditEvent struct {
	EventType AuditEventType
	File      string
	Line      int
	Column    int
	Target    string // class, parameter, method, property, accessor
	Name      string // decorator or member name
	Message   string
	Bytes     int
}

var (
	auditMu     sync.Mutex
	auditFile   *os.File
	auditLogger *zap.Logger
)

// InitAudit opens the audit trail in dir. It is a no-op when logging is
// disabled.
func InitAudit(dir string) error {
	if !IsDebugMode() || dir == "" {
		return nil
	}

	auditMu.Lock()
	defer auditMu.Unlock()
	if auditFile != nil {
		return nil
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create audit dir: %w", err)
	}

	date := time.Now().Format("2006-01-02")
	path := filepath.Join(dir, fmt.Sprintf("%s_audit.log", date))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to create audit log: %w", err)
	}
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "ts"
	encCfg.EncodeTime = zapcore.EpochMillisTimeEncoder
	auditFile = f
	auditLogger = zap.New(zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), zapcore.AddSync(f), zapcore.InfoLevel))
	return nil
}

// CloseAudit flushes and closes the audit trail.
func CloseAudit() {
	auditMu.Lock()
	defer auditMu.Unlock()
	if auditLogger != nil {
		_ = auditLogger.Sync()
		auditLogger = nil
	}
	if auditFile != nil {
		_ = auditFile.Close()
		auditFile = nil
	}
}

// Audit writes an event to the trail if one is open.
func Audit(e AuditEvent) {
	auditMu.Lock()
	defer auditMu.Unlock()
	if auditLogger == nil {
		return
	}
	fields := []zap.Field{zap.String("file", e.File)}
	if e.Line > 0 {
		fields = append(fields, zap.Int("line", e.Line), zap.Int("col", e.Column))
	}
	if e.Target != "" {
		fields = append(fields, zap.String("target", e.Target))
	}
	if e.Name != "" {
		fields = append(fields, zap.String("name", e.Name))
	}
	if e.Bytes > 0 {
		fields = append(fields, zap.Int("bytes", e.Bytes))
	}
	if e.Message != "" {
		fields = append(fields, zap.String("detail", e.Message))
	}
	auditLogger.Info(string(e.EventType), fields...)
}
