package config

import (
	"fmt"
	"net"
	"net/url"
	"path"
	"strings"

	"reportgen/internal/export"
	"reportgen/internal/naming"
	"reportgen/internal/permission"
	"reportgen/internal/schema"
)

// ValidationError represents a configuration validation error with context.
type ValidationError struct {
	Field   string
	Message string
	Hint    string
}

func (e ValidationError) Error() string {
	if e.Hint != "" {
		return fmt.Sprintf("%s: %s (hint: %s)", e.Field, e.Message, e.Hint)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationWarning represents a non-fatal configuration issue.
type ValidationWarning struct {
	Field   string
	Message string
	Hint    string
}

// ValidationResult contains the results of configuration validation.
type ValidationResult struct {
	Errors   []ValidationError
	Warnings []ValidationWarning
}

// HasErrors returns true if there are any validation errors.
func (r *ValidationResult) HasErrors() bool {
	return len(r.Errors) > 0
}

// Error returns a combined error message if there are validation errors.
func (r *ValidationResult) Error() string {
	if !r.HasErrors() {
		return ""
	}
	var msgs []string
	for _, e := range r.Errors {
		msgs = append(msgs, e.Error())
	}
	return strings.Join(msgs, "; ")
}

func (r *ValidationResult) addError(field, message, hint string) {
	r.Errors = append(r.Errors, ValidationError{Field: field, Message: message, Hint: hint})
}

func (r *ValidationResult) addWarning(field, message, hint string) {
	r.Warnings = append(r.Warnings, ValidationWarning{Field: field, Message: message, Hint: hint})
}

// Validate checks the configuration and returns fatal errors and non-fatal
// warnings. It also resolves Database.Database from the DSN when unset.
func (c *Config) Validate() *ValidationResult {
	result := &ValidationResult{}

	c.Database.validate(result)
	c.Server.validate(result)
	c.Observability.validate(result)
	c.Permissions.validate(result, c.Server.Auth)
	c.Schema.validate(result)
	c.Reports.validate(result)
	validateNamingConfig(result, c.Naming)

	return result
}

func (p *PermissionsConfig) validate(result *ValidationResult, auth AuthConfig) {
	mode, err := permission.ParseMode(p.Mode)
	if err != nil {
		result.addError("permissions.mode", err.Error(), "valid values are: allow, static, melange")
		return
	}

	switch mode {
	case permission.ModeAllow:
		if len(p.Grants) > 0 {
			result.addWarning("permissions.grants", "grants are ignored when mode is allow", "set permissions.mode=static to apply them")
		}
	case permission.ModeStatic:
		if len(p.Grants) == 0 {
			result.addWarning("permissions.grants", "static mode without grants denies every model", "")
		}
		if _, err := permission.NewStatic(p.Grants); err != nil {
			result.addError("permissions.grants", err.Error(), "subjects look like user:<id> or role:<name>")
		}
	case permission.ModeMelange:
		if strings.TrimSpace(p.MelangeDSN) == "" {
			result.addError("permissions.melange_dsn", "melange_dsn is required when mode is melange", "set permissions.melange_dsn or permissions.melange_dsn_file")
		}
		if p.CacheTTL < 0 {
			result.addError("permissions.cache_ttl", "cache_ttl cannot be negative", "")
		}
	}

	if mode != permission.ModeAllow && !auth.OIDCEnabled {
		result.addWarning("permissions.mode", "permission checks run without authentication", "HTTP requests carry no user; enable server.auth.oidc_enabled")
	}
}

func (s *SchemaConfig) validate(result *ValidationResult) {
	validateGlobList(result, "schema.exclude_tables", s.ExcludeTables)

	switch {
	case s.RefreshMinInterval < 0:
		result.addError("schema.refresh_min_interval", "refresh interval cannot be negative", "use 0 to disable polling")
	case s.RefreshMinInterval > 0 && s.RefreshMaxInterval < s.RefreshMinInterval:
		result.addWarning("schema.refresh_max_interval", "refresh_max_interval is below refresh_min_interval; polling uses the minimum", "")
	}

	if s.CustomFieldsEnabled {
		if strings.TrimSpace(s.CustomFields.Fields) == "" {
			result.addError("schema.custom_fields.fields_table", "fields_table is required when custom fields are enabled", "")
		}
		if strings.TrimSpace(s.CustomFields.Values) == "" {
			result.addError("schema.custom_fields.values_table", "values_table is required when custom fields are enabled", "")
		}
	}

	seen := make(map[string]bool, len(s.Properties))
	for _, def := range s.Properties {
		key := def.Model + "." + def.Name
		switch {
		case strings.TrimSpace(def.Model) == "" || strings.TrimSpace(def.Name) == "":
			result.addError("schema.properties", "property model and name cannot be empty", "")
			continue
		case seen[key]:
			result.addError("schema.properties", fmt.Sprintf("property %q is declared twice", key), "")
			continue
		}
		seen[key] = true
		if _, err := schema.TemplateProperty(def.Name, def.Label, def.Template); err != nil {
			result.addError("schema.properties", fmt.Sprintf("property %q: %v", key, err), "templates use text/template syntax, e.g. {{.first_name}}")
		}
	}
}

func (r *ReportsConfig) validate(result *ValidationResult) {
	if strings.TrimSpace(r.Dir) == "" {
		result.addError("reports.dir", "reports directory cannot be empty", "")
	}
	if _, err := export.ParseFormat(r.Format); err != nil {
		result.addError("reports.format", err.Error(), "valid values are: csv, json")
	}
}

func validateNamingConfig(result *ValidationResult, cfg naming.Config) {
	for field, label := range cfg.LabelOverrides {
		if strings.TrimSpace(field) == "" {
			result.addError("naming.label_overrides", "field name cannot be empty", "")
			continue
		}
		if strings.TrimSpace(label) == "" {
			result.addError("naming.label_overrides", fmt.Sprintf("label for field %q cannot be empty", field), "")
		}
	}
	for from, to := range cfg.PluralOverrides {
		if strings.TrimSpace(from) == "" || strings.TrimSpace(to) == "" {
			result.addError("naming.plural_overrides", "plural overrides cannot contain empty names", "")
		}
	}
	for from, to := range cfg.SingularOverrides {
		if strings.TrimSpace(from) == "" || strings.TrimSpace(to) == "" {
			result.addError("naming.singular_overrides", "singular overrides cannot contain empty names", "")
		}
	}
}

func (d *DatabaseConfig) validate(result *ValidationResult) {
	if d.ConnectionString == "" && (d.Port < 1 || d.Port > 65535) {
		result.addError("database.port", fmt.Sprintf("port %d is out of valid range (1-65535)", d.Port), "")
	}

	d.TLS.validate(result)

	if d.Pool.MaxOpen < 0 {
		result.addError("database.pool.max_open", "max_open cannot be negative", "")
	}
	if d.Pool.MaxIdle < 0 {
		result.addError("database.pool.max_idle", "max_idle cannot be negative", "")
	}
	if d.Pool.MaxIdle > d.Pool.MaxOpen && d.Pool.MaxOpen > 0 {
		result.addWarning("database.pool.max_idle", "max_idle is greater than max_open", "idle connections will be limited to max_open")
	}

	if d.ConnectionTimeout > 0 && d.ConnectionRetryInterval > d.ConnectionTimeout {
		result.addWarning("database.connection_retry_interval", "connection_retry_interval is greater than connection_timeout", "only one connection attempt will be made")
	}
	if d.ConnectionRetryInterval < 0 {
		result.addError("database.connection_retry_interval", "connection_retry_interval cannot be negative", "")
	}
	if d.ConnectionTimeout > 0 && d.ConnectionRetryInterval == 0 {
		result.addError("database.connection_retry_interval",
			"connection_retry_interval must be greater than 0 when connection_timeout is set",
			"set a retry interval such as 2s, or set connection_timeout to 0 to disable retries")
	}
	if d.ConnectionTimeout < 0 {
		result.addError("database.connection_timeout", "connection_timeout cannot be negative", "")
	}

	effective, err := d.EffectiveDatabaseName()
	if err != nil {
		switch {
		case strings.HasPrefix(err.Error(), "database.dsn"):
			result.addError("database.dsn", err.Error(), "set a valid MySQL DSN in database.dsn/database.dsn_file")
		case strings.Contains(err.Error(), "mismatch"):
			result.addError("database.database", err.Error(), "either remove database.database or set it to match the DSN database")
		default:
			result.addError("database.database", err.Error(), "set database.database or include a /database in database.dsn")
		}
		return
	}
	d.Database = effective
}

func (t *DatabaseTLSConfig) validate(result *ValidationResult) {
	validModes := map[string]bool{"": true, "off": true, "skip-verify": true, "verify-ca": true, "verify-full": true}
	if !validModes[t.Mode] {
		result.addError("database.tls.mode", fmt.Sprintf("invalid TLS mode %q", t.Mode), "valid values are: off, skip-verify, verify-ca, verify-full")
	}
	if (t.Mode == "verify-ca" || t.Mode == "verify-full") && t.CAFile == "" {
		result.addError("database.tls.ca_file", "CA file is required for verify-ca and verify-full modes", "set ca_file to the CA certificate")
	}
	if (t.CertFile != "") != (t.KeyFile != "") {
		result.addError("database.tls.cert_file",
			"both cert_file and key_file must be specified for client certificate authentication",
			"provide both cert_file and key_file, or neither")
	}
	if t.Mode == "skip-verify" {
		result.addWarning("database.tls.mode", "skip-verify mode does not verify server certificates", "use verify-ca or verify-full in production")
	}
}

func (s *ServerConfig) validate(result *ValidationResult) {
	if s.Port < 1 || s.Port > 65535 {
		result.addError("server.port", fmt.Sprintf("port %d is out of valid range (1-65535)", s.Port), "")
	}

	if s.RateLimitEnabled {
		if s.RateLimitRPS <= 0 {
			result.addError("server.rate_limit_rps", "rate_limit_rps must be greater than 0 when rate limiting is enabled", "")
		}
		if s.RateLimitBurst <= 0 {
			result.addError("server.rate_limit_burst", "rate_limit_burst must be greater than 0 when rate limiting is enabled", "")
		}
	} else if s.RateLimitRPS > 0 || s.RateLimitBurst > 0 {
		result.addWarning("server.rate_limit_enabled", "rate limit values are set but rate limiting is disabled", "enable server.rate_limit_enabled to apply rate limits")
	}

	if s.ReportTimeout < 0 {
		result.addError("server.report_timeout", "report_timeout cannot be negative", "")
	}
	if s.WriteTimeout > 0 && s.ReportTimeout > s.WriteTimeout {
		result.addWarning("server.report_timeout", "report_timeout exceeds write_timeout", "slow reports are cut off by the HTTP server before they finish")
	}

	s.validateCORS(result)

	if s.Auth.DBRoleEnabled && !s.Auth.OIDCEnabled {
		result.addError("server.auth.db_role_enabled", "db_role_enabled requires OIDC to be enabled", "set server.auth.oidc_enabled=true or disable db_role_enabled")
	}
	if s.Auth.OIDCEnabled {
		if s.Auth.OIDCIssuerURL == "" {
			result.addError("server.auth.oidc_issuer_url", "issuer URL is required when OIDC is enabled", "")
		}
		if s.Auth.OIDCAudience == "" {
			result.addError("server.auth.oidc_audience", "audience is required when OIDC is enabled", "")
		}
	}

	if s.Admin.ReloadEnabled && strings.TrimSpace(s.Admin.AuthToken) == "" && !s.Auth.OIDCEnabled {
		result.addError("server.admin.auth_token",
			"admin reload needs an auth token or OIDC",
			"set server.admin.auth_token or server.admin.auth_token_file")
	}

	validTLSModes := map[string]bool{"": true, "off": true, "auto": true, "file": true}
	if !validTLSModes[s.TLSMode] {
		result.addError("server.tls_mode", fmt.Sprintf("invalid TLS mode %q", s.TLSMode), "valid values are: off, auto, file")
	}
	if s.TLSMode == "file" {
		if s.TLSCertFile == "" {
			result.addError("server.tls_cert_file", "TLS cert file required when tls_mode is 'file'", "")
		}
		if s.TLSKeyFile == "" {
			result.addError("server.tls_key_file", "TLS key file required when tls_mode is 'file'", "")
		}
	}
}

func (s *ServerConfig) validateCORS(result *ValidationResult) {
	if !s.CORSEnabled {
		return
	}
	if len(s.CORSAllowedOrigins) == 0 {
		result.addError("server.cors_allowed_origins", "CORS enabled but no allowed origins configured", "set cors_allowed_origins or disable CORS")
	}

	hasWildcard := false
	onlyHTTP := len(s.CORSAllowedOrigins) > 0
	for _, origin := range s.CORSAllowedOrigins {
		origin = strings.TrimSpace(origin)
		if origin == "*" {
			hasWildcard = true
		}
		if !strings.HasPrefix(origin, "http://") {
			onlyHTTP = false
		}
	}
	if hasWildcard && s.CORSAllowCredentials {
		result.addError("server.cors_allowed_origins", "wildcard origin (*) cannot be used with credentials", "use specific origins with credentials, or wildcard without credentials")
	}
	if hasWildcard {
		result.addWarning("server.cors_allowed_origins", "CORS wildcard origin enabled", "use specific origins in production for better security")
	}

	tlsEnabled := s.TLSMode != "" && s.TLSMode != "off"
	if tlsEnabled && onlyHTTP {
		result.addWarning("server.cors_allowed_origins", "CORS allowed origins are http:// only while TLS is enabled", "use https:// origins when serving over TLS")
	}
}

func validateGlobList(result *ValidationResult, field string, patterns []string) {
	for _, pattern := range patterns {
		if strings.TrimSpace(pattern) == "" {
			result.addError(field, "glob pattern cannot be empty", "")
			continue
		}
		if _, err := path.Match(strings.ToLower(pattern), "table"); err != nil {
			result.addError(field, fmt.Sprintf("invalid glob pattern %q: %v", pattern, err), "")
		}
	}
}

func (o *ObservabilityConfig) validate(result *ValidationResult) {
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[o.Logging.Level] {
		result.addError("observability.logging.level", fmt.Sprintf("invalid log level %q", o.Logging.Level), "valid values are: debug, info, warn, error")
	}
	validLogFormats := map[string]bool{"json": true, "text": true}
	if !validLogFormats[o.Logging.Format] {
		result.addError("observability.logging.format", fmt.Sprintf("invalid log format %q", o.Logging.Format), "valid values are: json, text")
	}
	if o.TraceSampleRatio < 0 || o.TraceSampleRatio > 1 {
		result.addError("observability.trace_sample_ratio", fmt.Sprintf("trace_sample_ratio %v is outside 0.0-1.0", o.TraceSampleRatio), "")
	}

	o.OTLP.validate("observability.otlp", result)
	if o.Traces != nil {
		o.Traces.validate("observability.traces", result)
	}
	if o.Logs != nil {
		o.Logs.validate("observability.logs", result)
	}
	if o.Metrics != nil {
		o.Metrics.validate("observability.metrics", result)
	}
}

func (o *OTLPConfig) validate(prefix string, result *ValidationResult) {
	validProtocols := map[string]bool{"": true, "grpc": true, "http/protobuf": true}
	if !validProtocols[o.Protocol] {
		result.addError(prefix+".protocol", fmt.Sprintf("invalid OTLP protocol %q", o.Protocol), "valid values are: grpc, http/protobuf")
	}
	if o.Protocol == "http/protobuf" && !validOTLPEndpoint(o.Endpoint) {
		result.addError(prefix+".endpoint", fmt.Sprintf("invalid OTLP endpoint %q for http/protobuf", o.Endpoint), "use host:port or a full URL")
	}
	validCompressions := map[string]bool{"": true, "none": true, "gzip": true}
	if !validCompressions[o.Compression] {
		result.addError(prefix+".compression", fmt.Sprintf("invalid OTLP compression %q", o.Compression), "valid values are: none, gzip")
	}
	if o.RetryMaxAttempts < 0 {
		result.addError(prefix+".retry_max_attempts", "retry_max_attempts cannot be negative", "")
	}
}

func validOTLPEndpoint(endpoint string) bool {
	if endpoint == "" {
		return false
	}
	if strings.Contains(endpoint, "://") {
		parsed, err := url.Parse(endpoint)
		if err != nil {
			return false
		}
		return parsed.Host != ""
	}
	_, _, err := net.SplitHostPort(endpoint)
	return err == nil
}
