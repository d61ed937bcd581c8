package models

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"golang.org/x/crypto/hkdf"
)

// SettingDefinition describes a configurable application setting.
type SettingDefinition struct {
	Key         string   // DB key, e.g. "llm.provider"
	EnvVar      string   // Override env var, e.g. "FITCOACH_LLM_PROVIDER"
	Default     string   // Built-in default value
	Label       string   // Human-readable label
	Description string   // Help text
	FieldType   string   // "text", "password", "select", "number", "textarea"
	Options     []string // Valid values for "select" type
	Category    string   // Grouping key
	Sensitive   bool     // If true, value is encrypted in DB and masked in listings
}

// SettingValue represents a resolved setting with its source.
type SettingValue struct {
	Key      string
	Value    string
	Source   string // "env", "db", "default"
	Masked   string // Display value (masked for sensitive settings)
	ReadOnly bool   // True if set via env var (not editable via the API)
}

// CategoryOrder defines the display order for setting categories.
var CategoryOrder = []string{"General", "Plan Generation", "Notifications", "Maintenance"}

// SettingsRegistry defines all known runtime settings.
var SettingsRegistry = []SettingDefinition{
	// --- General ---
	{
		Key: "app.name", EnvVar: "FITCOACH_APP_NAME", Default: "FitCoach",
		Label: "Application Name", Description: "Name used in notifications and API responses",
		FieldType: "text", Category: "General",
	},
	{
		Key: "generate.rate_limit", EnvVar: "FITCOACH_GENERATE_RATE_LIMIT", Default: "10",
		Label: "Generations per Hour", Description: "Maximum plan generations per user per hour (1–100)",
		FieldType: "number", Category: "General",
	},
	// --- Plan Generation ---
	{
		Key: "llm.provider", EnvVar: "FITCOACH_LLM_PROVIDER", Default: "",
		Label: "Provider", Description: "Completion backend for plan generation",
		FieldType: "select", Options: []string{"", "openai", "anthropic", "ollama", "function", "mock"},
		Category: "Plan Generation",
	},
	{
		Key: "llm.model", EnvVar: "FITCOACH_LLM_MODEL", Default: "",
		Label: "Model", Description: "Model name (e.g. gpt-4o, claude-sonnet-4-20250514, llama3)",
		FieldType: "text", Category: "Plan Generation",
	},
	{
		Key: "llm.api_key", EnvVar: "FITCOACH_LLM_API_KEY", Default: "",
		Label: "API Key", Description: "Provider API key (not needed for Ollama)",
		FieldType: "password", Category: "Plan Generation", Sensitive: true,
	},
	{
		Key: "llm.base_url", EnvVar: "FITCOACH_LLM_BASE_URL", Default: "",
		Label: "Base URL", Description: "Custom API endpoint (required for Ollama, optional for others)",
		FieldType: "text", Category: "Plan Generation",
	},
	{
		Key: "llm.function_url", EnvVar: "FITCOACH_LLM_FUNCTION_URL", Default: "",
		Label: "Function URL", Description: "Remote generate-plan function endpoint (provider \"function\")",
		FieldType: "text", Category: "Plan Generation",
	},
	{
		Key: "function.token", EnvVar: "FITCOACH_FUNCTION_TOKEN", Default: "",
		Label: "Function Token", Description: "Bearer token for the generate-plan function, sent by the client and required by the hosted endpoint when set",
		FieldType: "password", Category: "Plan Generation", Sensitive: true,
	},
	{
		Key: "llm.temperature", EnvVar: "FITCOACH_LLM_TEMPERATURE", Default: "0.7",
		Label: "Temperature", Description: "Creativity level (0.0 = deterministic, 2.0 = very creative)",
		FieldType: "number", Category: "Plan Generation",
	},
	{
		Key: "llm.max_tokens", EnvVar: "FITCOACH_LLM_MAX_TOKENS", Default: "8192",
		Label: "Max Tokens", Description: "Maximum output tokens per plan (1024–65536)",
		FieldType: "number", Category: "Plan Generation",
	},
	{
		Key: "llm.system_prompt_override", EnvVar: "", Default: "",
		Label: "System Prompt Override", Description: "Replace the default system prompt (leave empty to use built-in prompt)",
		FieldType: "textarea", Category: "Plan Generation",
	},
	// --- Notifications ---
	{
		Key: "notify.urls", EnvVar: "FITCOACH_NOTIFY_URLS", Default: "",
		Label: "Broadcast URLs", Description: "Shoutrrr URLs notified when a plan is generated (ntfy, Discord, etc). One per line.",
		FieldType: "textarea", Category: "Notifications",
	},
	// --- Maintenance ---
	{
		Key: "maintenance.interval_hours", EnvVar: "FITCOACH_MAINTENANCE_INTERVAL_HOURS", Default: "24",
		Label: "Maintenance Interval (hours)", Description: "How often background maintenance runs (1-168)",
		FieldType: "number", Category: "Maintenance",
	},
	{
		Key: "maintenance.log_retention_days", EnvVar: "FITCOACH_LOG_RETENTION_DAYS", Default: "0",
		Label: "Daily Log Retention (days)", Description: "Delete daily logs older than this many days. 0 keeps them forever.",
		FieldType: "number", Category: "Maintenance",
	},
}

// GetSetting returns a configuration value using the resolution chain:
// env var → app_settings row → built-in default.
func GetSetting(db *sql.DB, key string) string {
	def := findDefinition(key)
	if def == nil {
		return ""
	}

	// 1. Environment variable always wins.
	if def.EnvVar != "" {
		if v := os.Getenv(def.EnvVar); v != "" {
			return v
		}
	}

	// 2. Database setting.
	var raw string
	err := db.QueryRow(`SELECT value FROM app_settings WHERE key = ?`, key).Scan(&raw)
	if err == nil {
		if def.Sensitive && strings.HasPrefix(raw, "enc:") {
			decrypted, err := decryptValue(raw[4:])
			if err == nil {
				return decrypted
			}
			// Fall through to default if decryption fails.
		} else {
			return raw
		}
	}

	// 3. Built-in default.
	return def.Default
}

// SetSetting stores a configuration value in the database.
// Sensitive values are encrypted if FITCOACH_SECRET_KEY is set.
func SetSetting(db *sql.DB, key, value string) error {
	def := findDefinition(key)
	if def == nil {
		return fmt.Errorf("models: unknown setting key %q", key)
	}

	storeValue := value
	if def.Sensitive && value != "" {
		encrypted, err := encryptValue(value)
		if err != nil {
			return fmt.Errorf("models: encrypt setting %q: %w", key, err)
		}
		storeValue = "enc:" + encrypted
	}

	_, err := db.Exec(
		`INSERT INTO app_settings (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, storeValue,
	)
	if err != nil {
		return fmt.Errorf("models: set setting %q: %w", key, err)
	}
	return nil
}

// DeleteSetting removes a setting from the database (reverts to env var or default).
func DeleteSetting(db *sql.DB, key string) error {
	_, err := db.Exec(`DELETE FROM app_settings WHERE key = ?`, key)
	if err != nil {
		return fmt.Errorf("models: delete setting %q: %w", key, err)
	}
	return nil
}

// ListSettings returns all known settings with their resolved values and sources.
func ListSettings(db *sql.DB) []SettingValue {
	var results []SettingValue
	for _, def := range SettingsRegistry {
		sv := resolveSettingValue(db, def)
		results = append(results, sv)
	}
	return results
}

// ListSettingsByCategory returns settings grouped by category.
func ListSettingsByCategory(db *sql.DB) map[string][]SettingValue {
	groups := make(map[string][]SettingValue)
	for _, def := range SettingsRegistry {
		sv := resolveSettingValue(db, def)
		groups[def.Category] = append(groups[def.Category], sv)
	}
	return groups
}

// GetSettingDefinition returns the definition for a known setting key.
func GetSettingDefinition(key string) *SettingDefinition {
	return findDefinition(key)
}

// GetSettingValue returns the full SettingValue (with source, mask, etc.) for a key.
func GetSettingValue(db *sql.DB, key string) SettingValue {
	def := findDefinition(key)
	if def == nil {
		return SettingValue{Key: key}
	}
	return resolveSettingValue(db, *def)
}

// IsGenerationConfigured returns true if a completion backend is configured.
func IsGenerationConfigured(db *sql.DB) bool {
	return GetSetting(db, "llm.provider") != ""
}

// GetAppName returns the configured application name from app settings.
func GetAppName(db *sql.DB) string {
	if v := GetSetting(db, "app.name"); v != "" {
		return v
	}
	return "FitCoach"
}

// GetGenerateRateLimit returns the per-user hourly generation limit.
func GetGenerateRateLimit(db *sql.DB) int {
	if v := GetSetting(db, "generate.rate_limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 1 && n <= 100 {
			return n
		}
	}
	return 10
}

// GetNotifyURLs returns the configured broadcast URLs, split on newlines
// or commas.
func GetNotifyURLs(db *sql.DB) []string {
	raw := strings.ReplaceAll(GetSetting(db, "notify.urls"), "\n", ",")
	var urls []string
	for _, p := range strings.Split(raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			urls = append(urls, p)
		}
	}
	return urls
}

// GetMaintenanceIntervalHours returns the maintenance interval, 1-168 hours.
func GetMaintenanceIntervalHours(db *sql.DB) int {
	if n, err := strconv.Atoi(GetSetting(db, "maintenance.interval_hours")); err == nil && n >= 1 && n <= 168 {
		return n
	}
	return 24
}

// GetLogRetentionDays returns how many days of daily logs to keep; 0 means
// keep everything.
func GetLogRetentionDays(db *sql.DB) int {
	if n, err := strconv.Atoi(GetSetting(db, "maintenance.log_retention_days")); err == nil && n >= 0 && n <= 3650 {
		return n
	}
	return 0
}

// GetOrCreateSecretKey ensures a secret key exists for encrypting sensitive settings.
// Resolution: FITCOACH_SECRET_KEY env var → _internal.secret_key DB row → auto-generate.
// The key is stored in plaintext in app_settings (since it IS the encryption key).
// Returns the key and sets it as an env var so the rest of the code can use it.
func GetOrCreateSecretKey(db *sql.DB) (key, source string, err error) {
	// 1. Check env var. If provided, persist to DB so the key survives
	//    even if the env var is later removed.
	if key = os.Getenv("FITCOACH_SECRET_KEY"); key != "" {
		_, _ = db.Exec(
			`INSERT INTO app_settings (key, value) VALUES ('_internal.secret_key', ?)
			 ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key,
		)
		return key, "env", nil
	}

	// 2. Check DB for previously generated key.
	err = db.QueryRow(`SELECT value FROM app_settings WHERE key = '_internal.secret_key'`).Scan(&key)
	if err == nil && key != "" {
		os.Setenv("FITCOACH_SECRET_KEY", key)
		return key, "database", nil
	}

	// 3. Generate a new key.
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", "", fmt.Errorf("models: generate secret key: %w", err)
	}
	key = base64.StdEncoding.EncodeToString(buf)

	_, err = db.Exec(
		`INSERT INTO app_settings (key, value) VALUES ('_internal.secret_key', ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key,
	)
	if err != nil {
		return "", "", fmt.Errorf("models: store secret key: %w", err)
	}

	os.Setenv("FITCOACH_SECRET_KEY", key)
	return key, "generated", nil
}

// ListSettingsByCategoryOrdered returns settings grouped by category in the
// order defined by CategoryOrder.
func ListSettingsByCategoryOrdered(db *sql.DB) []CategoryGroup {
	groups := ListSettingsByCategory(db)
	var ordered []CategoryGroup
	seen := make(map[string]bool)
	for _, cat := range CategoryOrder {
		if settings, ok := groups[cat]; ok {
			ordered = append(ordered, CategoryGroup{Name: cat, Settings: settings})
			seen[cat] = true
		}
	}
	// Append any categories not in CategoryOrder (future-proofing).
	for cat, settings := range groups {
		if !seen[cat] {
			ordered = append(ordered, CategoryGroup{Name: cat, Settings: settings})
		}
	}
	return ordered
}

// CategoryGroup holds settings for a single category, for ordered rendering.
type CategoryGroup struct {
	Name     string
	Settings []SettingValue
}

// --- Internal helpers ---

func findDefinition(key string) *SettingDefinition {
	for i := range SettingsRegistry {
		if SettingsRegistry[i].Key == key {
			return &SettingsRegistry[i]
		}
	}
	return nil
}

func resolveSettingValue(db *sql.DB, def SettingDefinition) SettingValue {
	sv := SettingValue{Key: def.Key}

	// Check env var first.
	if def.EnvVar != "" {
		if v := os.Getenv(def.EnvVar); v != "" {
			sv.Value = v
			sv.Source = "env"
			sv.ReadOnly = true
			sv.Masked = maskValue(v, def.Sensitive)
			return sv
		}
	}

	// Check database.
	var raw string
	err := db.QueryRow(`SELECT value FROM app_settings WHERE key = ?`, def.Key).Scan(&raw)
	if err == nil {
		sv.Source = "db"
		if def.Sensitive && strings.HasPrefix(raw, "enc:") {
			decrypted, err := decryptValue(raw[4:])
			if err == nil {
				sv.Value = decrypted
				sv.Masked = maskValue(decrypted, true)
			} else {
				sv.Value = ""
				sv.Masked = "(decryption failed)"
			}
		} else {
			sv.Value = raw
			sv.Masked = maskValue(raw, def.Sensitive)
		}
		return sv
	}

	// Default.
	sv.Value = def.Default
	sv.Source = "default"
	sv.Masked = maskValue(def.Default, def.Sensitive)
	return sv
}

func maskValue(value string, sensitive bool) string {
	if !sensitive || value == "" {
		return value
	}
	if len(value) <= 8 {
		return "••••••••"
	}
	return value[:4] + "••••" + value[len(value)-4:]
}

// --- Encryption helpers ---

// secretKey returns the 32-byte encryption key derived from FITCOACH_SECRET_KEY
// using HKDF (RFC 5869). Returns nil if the env var is not set.
func secretKey() []byte {
	key := os.Getenv("FITCOACH_SECRET_KEY")
	if key == "" {
		return nil
	}
	// Derive a proper 32-byte AES-256 key using HKDF with a fixed salt and info.
	h := hkdf.New(sha256.New, []byte(key), []byte("fitcoach-settings-v1"), []byte("aes-256-gcm"))
	derived := make([]byte, 32)
	if _, err := io.ReadFull(h, derived); err != nil {
		return nil
	}
	return derived
}

func encryptValue(plaintext string) (string, error) {
	key := secretKey()
	if key == nil {
		return "", fmt.Errorf("FITCOACH_SECRET_KEY not set: cannot encrypt sensitive settings")
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return "", err
	}

	aesGCM, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, aesGCM.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}

	ciphertext := aesGCM.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

func decryptValue(encoded string) (string, error) {
	key := secretKey()
	if key == nil {
		return "", fmt.Errorf("FITCOACH_SECRET_KEY not set: cannot decrypt")
	}

	ciphertext, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", err
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return "", err
	}

	aesGCM, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}

	nonceSize := aesGCM.NonceSize()
	if len(ciphertext) < nonceSize {
		return "", fmt.Errorf("ciphertext too short")
	}

	nonce, ciphertext := ciphertext[:nonceSize], ciphertext[nonceSize:]
	plaintext, err := aesGCM.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", err
	}

	return string(plaintext), nil
}
