package config

// ConfigDiff describes what changed between two configs.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// WebhookSecretsChanged is true if the verify token or app secret changed.
	// Both are applied without a restart.
	WebhookSecretsChanged bool

	// RestartRequired lists the top-level sections that changed but only take
	// effect after a restart.
	RestartRequired []string
}

// Changed reports whether anything differs.
func (d ConfigDiff) Changed() bool {
	return d.LogLevelChanged || d.WebhookSecretsChanged || len(d.RestartRequired) > 0
}

// Diff compares old and new.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}
	if old.Webhook.VerifyToken != new.Webhook.VerifyToken || old.Webhook.AppSecret != new.Webhook.AppSecret {
		d.WebhookSecretsChanged = true
	}

	if old.Profile != new.Profile {
		d.RestartRequired = append(d.RestartRequired, "profile")
	}
	if old.Session != new.Session {
		d.RestartRequired = append(d.RestartRequired, "session")
	}
	if old.Audio != new.Audio {
		d.RestartRequired = append(d.RestartRequired, "audio")
	}
	if old.Store != new.Store {
		d.RestartRequired = append(d.RestartRequired, "store")
	}
	if old.Weather != new.Weather {
		d.RestartRequired = append(d.RestartRequired, "weather")
	}
	if old.Webhook.ListenAddr != new.Webhook.ListenAddr {
		d.RestartRequired = append(d.RestartRequired, "webhook.listen_addr")
	}
	return d
}
