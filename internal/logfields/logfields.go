package logfields

import "log/slog"

// Canonical log field name constants to avoid drift across packages.
const (
	KeyProjectID   = "project_id"
	KeyProjectName = "project"
	KeyBuildSeq    = "build_seq"
	KeyBuildStatus = "build_status"
	KeyCommit      = "commit"
	KeyRef         = "ref"
	KeyTool        = "tool"
	KeyStage       = "stage"
	KeyDurationMS  = "duration_ms"
	KeyExitCode    = "exit_code"
	KeyAttempt     = "attempt"
	KeyPath        = "path"
	KeyURL         = "url"
	KeyName        = "name"
	KeyError       = "error"

	KeyMethod     = "method"
	KeyStatus     = "status"
	KeyUserAgent  = "user_agent"
	KeyRemoteAddr = "remote_addr"
	KeyEvent      = "event"
)

// Simple helpers returning slog.Attr. Keeping each granular means callers can compose.
func ProjectID(id string) slog.Attr    { return slog.String(KeyProjectID, id) }
func ProjectName(n string) slog.Attr   { return slog.String(KeyProjectName, n) }
func BuildSeq(seq int64) slog.Attr     { return slog.Int64(KeyBuildSeq, seq) }
func BuildStatus(s string) slog.Attr   { return slog.String(KeyBuildStatus, s) }
func Ref(r string) slog.Attr           { return slog.String(KeyRef, r) }
func Tool(kind string) slog.Attr       { return slog.String(KeyTool, kind) }
func Stage(name string) slog.Attr      { return slog.String(KeyStage, name) }
func DurationMS(ms float64) slog.Attr  { return slog.Float64(KeyDurationMS, ms) }
func ExitCode(code int) slog.Attr      { return slog.Int(KeyExitCode, code) }
func Attempt(n int) slog.Attr          { return slog.Int(KeyAttempt, n) }
func Path(p string) slog.Attr          { return slog.String(KeyPath, p) }
func URL(u string) slog.Attr           { return slog.String(KeyURL, u) }
func Name(n string) slog.Attr          { return slog.String(KeyName, n) }
func Method(m string) slog.Attr        { return slog.String(KeyMethod, m) }
func Status(code int) slog.Attr        { return slog.Int(KeyStatus, code) }
func UserAgent(ua string) slog.Attr    { return slog.String(KeyUserAgent, ua) }
func RemoteAddr(addr string) slog.Attr { return slog.String(KeyRemoteAddr, addr) }
func Event(eventType string) slog.Attr { return slog.String(KeyEvent, eventType) }

// Commit logs the abbreviated hash; full hashes stay in BuildRun records.
func Commit(hash string) slog.Attr {
	if len(hash) > 8 {
		hash = hash[:8]
	}
	return slog.String(KeyCommit, hash)
}

func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(KeyError, "")
	}
	return slog.String(KeyError, err.Error())
}
