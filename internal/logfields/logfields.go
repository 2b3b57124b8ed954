// Package logfields defines canonical slog attribute helpers for osforge.
package logfields

import "log/slog"

// Canonical log field name constants to avoid drift across packages.
const (
	KeyBuildID    = "build_id"
	KeyStage      = "stage"
	KeyStatus     = "build_status"
	KeyBase       = "base"
	KeyArch       = "architecture"
	KeyDurationMS = "duration_ms"
	KeyArtifact   = "artifact_type"
	KeyPath       = "path"
	KeyMethod     = "method"
	KeyHTTPStatus = "status"
	KeyUserAgent  = "user_agent"
	KeyRemoteAddr = "remote_addr"
	KeyError      = "error"
)

// Simple helpers returning slog.Attr. Keeping each granular means callers can compose.
func BuildID(id string) slog.Attr      { return slog.String(KeyBuildID, id) }
func Stage(name string) slog.Attr      { return slog.String(KeyStage, name) }
func Status(s string) slog.Attr        { return slog.String(KeyStatus, s) }
func Base(b string) slog.Attr          { return slog.String(KeyBase, b) }
func Architecture(a string) slog.Attr  { return slog.String(KeyArch, a) }
func DurationMS(ms float64) slog.Attr  { return slog.Float64(KeyDurationMS, ms) }
func ArtifactType(t string) slog.Attr  { return slog.String(KeyArtifact, t) }
func Path(p string) slog.Attr          { return slog.String(KeyPath, p) }
func Method(m string) slog.Attr        { return slog.String(KeyMethod, m) }
func HTTPStatus(code int) slog.Attr    { return slog.Int(KeyHTTPStatus, code) }
func UserAgent(ua string) slog.Attr    { return slog.String(KeyUserAgent, ua) }
func RemoteAddr(addr string) slog.Attr { return slog.String(KeyRemoteAddr, addr) }
func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(KeyError, "")
	}
	return slog.String(KeyError, err.Error())
}
