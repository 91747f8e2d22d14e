package config

const redactedValue = "***"

// RedactedConfig returns a copy of cfg safe for logging: credentials and
// webhook endpoints are masked, and shared slices are copied so the caller
// cannot mutate the original through the copy.
func RedactedConfig(cfg *Config) Config {
	out := *cfg

	out.Database.DSN = redact(cfg.Database.DSN)
	out.Database.Password = redact(cfg.Database.Password)
	out.Redis.Password = redact(cfg.Redis.Password)
	out.Notify.WebhookURL = redact(cfg.Notify.WebhookURL)

	out.Server.CORSOrigins = append([]string(nil), cfg.Server.CORSOrigins...)
	out.Notify.Events = append([]string(nil), cfg.Notify.Events...)

	return out
}

// redact masks non-empty values; empty strings stay empty so a redacted dump
// still shows which credentials are unset.
func redact(v string) string {
	if v == "" {
		return ""
	}
	return redactedValue
}
