// Package audit provides a structured audit logger for CLI command invocations.
// It logs command name, resolved configuration, and sanitised environment state
// so operators can trace what happened without exposing secret values.
//
// Secrets are logged as presence/absence only; URLs have their password and
// query string stripped.
package audit

import (
	"context"
	"log/slog"
	"net/url"
	"os"
	"strings"
	"time"
)

// redaction says how an env var's value is written to the audit log.
type redaction int

const (
	// plain values are logged as-is.
	plain redaction = iota
	// secret values are logged as "set" or "unset".
	secret
	// endpoint values are URLs that may embed credentials.
	endpoint
)

// auditKeys is the ordered list of env vars included in every command-start
// entry, grouped by the stage they configure.
var auditKeys = []struct {
	key string
	how redaction
}{
	// chat model
	{"MODEL_PROVIDER", plain},
	{"OLLAMA_HOST", endpoint},
	{"OLLAMA_MODEL", plain},
	{"OPENAI_API_KEY", secret},
	{"OPENAI_MODEL", plain},
	{"OPENAI_BASE_URL", endpoint},
	{"AZURE_OPENAI_API_KEY", secret},
	{"AZURE_OPENAI_ENDPOINT", endpoint},
	{"AZURE_OPENAI_DEPLOYMENT", plain},
	{"ARK_API_KEY", secret},
	{"ARK_MODEL", plain},
	{"GOOGLE_API_KEY", secret},
	{"GEMINI_MODEL", plain},
	// semantic retrieval
	{"EMBEDDING_PROVIDER", plain},
	{"EMBEDDING_MODEL", plain},
	{"EMBEDDING_API_KEY", secret},
	{"VECTOR_STORE", plain},
	{"QDRANT_HOST", plain},
	{"QDRANT_PORT", plain},
	{"QDRANT_COLLECTION", plain},
	{"QDRANT_API_KEY", secret},
	{"PGVECTOR_DSN", endpoint},
	{"PGVECTOR_TABLE", plain},
	// lexical retrieval
	{"CATALOG_URL", endpoint},
	{"CATALOG_CACHE_TTL", plain},
	// generation and orchestration
	{"GENERATION_BACKEND", plain},
	{"GENERATION_MODEL", plain},
	{"GENERATION_ENDPOINT", endpoint},
	{"GENERATION_API_KEY", secret},
	{"PIPELINE_STAGE_TIMEOUT", plain},
	{"PIPELINE_CONTEXT_ITEMS", plain},
	// service
	{"CINERAG_API_KEY", secret},
	{"CINERAG_RUNS_DB", plain},
	{"LOG_LEVEL", plain},
	{"LOG_FORMAT", plain},
	{"LANGFUSE_HOST", endpoint},
	{"LANGFUSE_PUBLIC_KEY", secret},
	{"LANGFUSE_SECRET_KEY", secret},
}

// LogCommandStart emits a structured audit log entry when a CLI command begins.
// It records the command name, config file source, and sanitised environment.
func LogCommandStart(log *slog.Logger, command string, configPath string) {
	attrs := make([]slog.Attr, 0, len(auditKeys)+2)
	attrs = append(attrs,
		slog.String("command", command),
		slog.String("config_file", sanitiseConfigPath(configPath)),
	)
	for _, e := range auditKeys {
		attrs = append(attrs, slog.String(e.key, sanitise(e.how, os.Getenv(e.key))))
	}
	log.LogAttrs(context.Background(), slog.LevelInfo, "audit: command start", attrs...)
}

// LogCommandEnd records the outcome and duration of a CLI command.
func LogCommandEnd(log *slog.Logger, command string, elapsed time.Duration, err error) {
	attrs := []slog.Attr{
		slog.String("command", command),
		slog.Duration("duration", elapsed),
		slog.Bool("ok", err == nil),
	}
	level := slog.LevelInfo
	if err != nil {
		level = slog.LevelWarn
		attrs = append(attrs, slog.String("error", err.Error()))
	}
	log.LogAttrs(context.Background(), level, "audit: command end", attrs...)
}

// SanitiseKey returns the loggable form of an env var value. Unknown keys
// are treated as plain.
func SanitiseKey(key, value string) string {
	for _, e := range auditKeys {
		if e.key == key {
			return sanitise(e.how, value)
		}
	}
	return sanitise(plain, value)
}

func sanitise(how redaction, v string) string {
	if v == "" {
		return "unset"
	}
	switch how {
	case secret:
		return "set"
	case endpoint:
		return redactURL(v)
	default:
		return v
	}
}

// redactURL masks the password and drops the query of a URL. Values that
// are not URLs (libpq key=value DSNs, bare hosts with credentials) fall back
// to presence only.
func redactURL(v string) string {
	u, err := url.Parse(v)
	if err != nil || u.Scheme == "" || u.Host == "" {
		if strings.ContainsAny(v, "=@") {
			return "set"
		}
		return v
	}
	u.RawQuery = ""
	u.Fragment = ""
	return u.Redacted()
}

// sanitiseConfigPath returns the config path or "none" if empty.
func sanitiseConfigPath(p string) string {
	if p == "" {
		return "none"
	}
	// Redact home directory for privacy in logs.
	home, err := os.UserHomeDir()
	if err == nil && strings.HasPrefix(p, home) {
		return "~" + p[len(home):]
	}
	return p
}
