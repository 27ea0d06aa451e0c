/*
Copyright 2024 Blnk Finance Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package config

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/kelseyhightower/envconfig"

	"github.com/sirupsen/logrus"
)

const (
	DEFAULT_PORT             = "5011"
	DEFAULT_INTERVAL_MINUTES = 10
	DEFAULT_OTEL_ENDPOINT    = "http://localhost:4318"
	LedgerDriverFile         = "file"
	LedgerDriverSQLite       = "sqlite"
)

// ConfigStore holds the current *Configuration snapshot. Snapshots are never
// mutated once stored; Reset stores a modified copy under a new version.
var ConfigStore atomic.Value

var configVersion atomic.Uint64

type ERPConfig struct {
	URL        string `json:"url" envconfig:"INSPECTSYNC_ERP_URL"`
	APIKey     string `json:"api_key" envconfig:"INSPECTSYNC_ERP_API_KEY"`
	APISecret  string `json:"api_secret" envconfig:"INSPECTSYNC_ERP_API_SECRET"`
	TimeoutSec int    `json:"timeout_sec" envconfig:"INSPECTSYNC_ERP_TIMEOUT_SEC"`
}

type FolderConfig struct {
	Scan    string `json:"scan" envconfig:"INSPECTSYNC_SCAN_FOLDER"`
	Pending string `json:"pending" envconfig:"INSPECTSYNC_PENDING_FOLDER"`
	Backup  string `json:"backup" envconfig:"INSPECTSYNC_BACKUP_FOLDER"`
	Done    string `json:"done" envconfig:"INSPECTSYNC_DONE_FOLDER"`
	Logs    string `json:"logs" envconfig:"INSPECTSYNC_LOGS_FOLDER"`
}

type LedgerConfig struct {
	Driver string `json:"driver" envconfig:"INSPECTSYNC_LEDGER_DRIVER"`
	Dns    string `json:"dns" envconfig:"INSPECTSYNC_LEDGER_DNS"`
}

type RetryConfig struct {
	ProbeAttempts  int `json:"probe_attempts" envconfig:"INSPECTSYNC_PROBE_ATTEMPTS"`
	ProbeDelaySec  int `json:"probe_delay_sec" envconfig:"INSPECTSYNC_PROBE_DELAY_SEC"`
	RecordAttempts int `json:"record_attempts" envconfig:"INSPECTSYNC_RECORD_ATTEMPTS"`
	RecordDelaySec int `json:"record_delay_sec" envconfig:"INSPECTSYNC_RECORD_DELAY_SEC"`
}

type ScheduleConfig struct {
	IntervalMinutes int `json:"interval_minutes" envconfig:"INSPECTSYNC_INTERVAL_MINUTES"`
}

type ServerConfig struct {
	Enabled   bool   `json:"enabled" envconfig:"INSPECTSYNC_SERVER_ENABLED"`
	SecretKey string `json:"secret_key" envconfig:"INSPECTSYNC_SERVER_SECRET_KEY"`
	Port      string `json:"port" envconfig:"INSPECTSYNC_SERVER_PORT"`
}

type RateLimitConfig struct {
	RequestsPerSecond  *float64 `json:"requests_per_second" envconfig:"INSPECTSYNC_RATE_LIMIT_RPS"`
	Burst              *int     `json:"burst" envconfig:"INSPECTSYNC_RATE_LIMIT_BURST"`
	CleanupIntervalSec *int     `json:"cleanup_interval_sec" envconfig:"INSPECTSYNC_RATE_LIMIT_CLEANUP_INTERVAL_SEC"`
}

type TelemetryConfig struct {
	Enabled  bool   `json:"enabled" envconfig:"INSPECTSYNC_TELEMETRY_ENABLED"`
	Endpoint string `json:"endpoint" envconfig:"INSPECTSYNC_OTEL_ENDPOINT"`
	Insecure bool   `json:"insecure" envconfig:"INSPECTSYNC_OTEL_INSECURE"`
}

type SlackWebhook struct {
	WebhookUrl string `json:"webhook_url" envconfig:"INSPECTSYNC_SLACK_WEBHOOK_URL"`
}

type Notification struct {
	Slack SlackWebhook `json:"slack"`
}

type Configuration struct {
	// Version increases every time a snapshot is stored.
	Version uint64 `json:"-" ignored:"true"`

	ProjectName       string   `json:"project_name" envconfig:"INSPECTSYNC_PROJECT_NAME"`
	BaseDir           string   `json:"base_dir" envconfig:"INSPECTSYNC_BASE_DIR"`
	LogFile           string   `json:"log_file" envconfig:"INSPECTSYNC_LOG_FILE"`
	MachineDataFolder string   `json:"machine_data_folder" envconfig:"INSPECTSYNC_MACHINE_DATA_FOLDER"`
	RegistryFolders   []string `json:"registry_folders" envconfig:"INSPECTSYNC_REGISTRY_FOLDERS"`

	// Older config files name the two laser-marking folders separately.
	LegacyRegistryFolder       string `json:"LM_JSON_FOLDER,omitempty" ignored:"true"`
	LegacyRegistryBackupFolder string `json:"LM_BKP_JSON_FOLDER,omitempty" ignored:"true"`

	ERP          ERPConfig       `json:"erp"`
	Folders      FolderConfig    `json:"folders"`
	Ledger       LedgerConfig    `json:"ledger"`
	Retry        RetryConfig     `json:"retry"`
	Schedule     ScheduleConfig  `json:"schedule"`
	Server       ServerConfig    `json:"server"`
	RateLimit    RateLimitConfig `json:"rate_limit"`
	Notification Notification    `json:"notification"`
	Telemetry    TelemetryConfig `json:"telemetry"`
}

// ResetInput carries the operator-supplied values a reset may change.
type ResetInput struct {
	APIKey            string
	APISecret         string
	ERPURL            string
	MachineDataFolder string
	RegistryFolders   []string
}

func loadConfigFromFile(file string) error {
	var cnf Configuration
	_, err := os.Stat(file)
	if err == nil {
		f, err := os.Open(file)
		if err != nil {
			return err
		}
		defer f.Close()
		err = json.NewDecoder(f).Decode(&cnf)
		if err != nil {
			return fmt.Errorf("decoding %s: %w", file, err)
		}
	} else if errors.Is(err, os.ErrNotExist) {
		log.Println("config json not passed, will use env variables")
	}

	// override config from environment variables
	err = envconfig.Process("inspectsync", &cnf)
	if err != nil {
		return err
	}

	err = cnf.validateAndAddDefaults()
	if err != nil {
		return err
	}

	store(&cnf)
	return nil
}

func InitConfig(configFile string) error {
	logger()
	return loadConfigFromFile(configFile)
}

// Fetch returns the current snapshot. Callers must treat it as read-only; a
// pipeline cycle fetches once and keeps that snapshot until it finishes.
func Fetch() (*Configuration, error) {
	config := ConfigStore.Load()
	c, ok := config.(*Configuration)
	if !ok {
		return nil, errors.New("config not loaded from file. Create a json file called inspectsync.json with your config")
	}
	return c, nil
}

// Exists reports whether a config file is present at path.
func Exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// Save validates cnf, writes it to path wholesale and makes it the current snapshot.
func Save(path string, cnf *Configuration) error {
	if err := cnf.validateAndAddDefaults(); err != nil {
		return err
	}
	if err := writeConfigFile(path, cnf); err != nil {
		return err
	}
	store(cnf)
	logrus.WithField("config_file", path).Info("Configuration file created.")
	return nil
}

// Reset applies input to a copy of the current snapshot, rewrites the config
// file and publishes the copy. In-flight cycles keep the snapshot they took.
func Reset(path string, input ResetInput) (*Configuration, error) {
	current, err := Fetch()
	if err != nil {
		return nil, err
	}
	if !Exists(path) {
		return nil, fmt.Errorf("config file %s not found, unable to reset", path)
	}

	next := current.Clone()
	next.ERP.APIKey = strings.TrimSpace(input.APIKey)
	next.ERP.APISecret = strings.TrimSpace(input.APISecret)
	next.ERP.URL = strings.TrimSpace(input.ERPURL)
	next.MachineDataFolder = strings.TrimSpace(input.MachineDataFolder)
	next.RegistryFolders = trimAll(input.RegistryFolders)
	next.LegacyRegistryFolder = ""
	next.LegacyRegistryBackupFolder = ""

	if err := next.validateAndAddDefaults(); err != nil {
		return nil, err
	}
	if err := writeConfigFile(path, next); err != nil {
		return nil, err
	}

	store(next)
	logrus.WithFields(logrus.Fields{
		"config_file": path,
		"version":     next.Version,
	}).Info("Configuration reset.")
	return next, nil
}

// VerifyResetPassword compares input with INSPECTSYNC_RESET_PASSWORD. Reset
// is refused outright when the variable is not set.
func VerifyResetPassword(input string) bool {
	expected := os.Getenv("INSPECTSYNC_RESET_PASSWORD")
	if expected == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(expected), []byte(input)) == 1
}

// EnsureFolders creates every working folder the pipeline writes to.
func EnsureFolders(cnf *Configuration) error {
	for _, dir := range []string{cnf.Folders.Scan, cnf.Folders.Pending, cnf.Folders.Backup, cnf.Folders.Done, cnf.Folders.Logs} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("error creating folder %s: %w", dir, err)
		}
	}
	logrus.Info("Folders created successfully.")
	return nil
}

// Clone returns a deep enough copy of cnf for Reset to modify.
func (cnf *Configuration) Clone() *Configuration {
	next := *cnf
	next.RegistryFolders = append([]string(nil), cnf.RegistryFolders...)
	return &next
}

func (cnf *Configuration) validateAndAddDefaults() error {
	if cnf.ProjectName == "" {
		cnf.ProjectName = "Inspectsync"
	}

	cnf.ERP.URL = strings.TrimRight(strings.TrimSpace(cnf.ERP.URL), "/")
	cnf.MachineDataFolder = strings.TrimSpace(cnf.MachineDataFolder)
	cnf.RegistryFolders = trimAll(cnf.RegistryFolders)
	for _, legacy := range []string{cnf.LegacyRegistryFolder, cnf.LegacyRegistryBackupFolder} {
		legacy = strings.TrimSpace(legacy)
		if legacy != "" && !contains(cnf.RegistryFolders, legacy) {
			cnf.RegistryFolders = append(cnf.RegistryFolders, legacy)
		}
	}

	if cnf.ERP.URL == "" {
		log.Println("Error: ERP URL is empty. It's a required field.")
		return errors.New("erp url is required")
	}

	if cnf.MachineDataFolder == "" {
		log.Println("Error: Machine data folder is empty. It's a required field.")
		return errors.New("machine data folder is required")
	}

	if len(cnf.RegistryFolders) == 0 {
		log.Println("Error: No registry folders configured. At least one is required.")
		return errors.New("at least one registry folder is required")
	}

	if cnf.BaseDir == "" {
		cnf.BaseDir = "."
	}
	setDefault(&cnf.Folders.Scan, filepath.Join(cnf.BaseDir, "Scan_Folder"))
	setDefault(&cnf.Folders.Pending, filepath.Join(cnf.BaseDir, "JSON_Data_Folder"))
	setDefault(&cnf.Folders.Backup, filepath.Join(cnf.BaseDir, "Backup_Folder"))
	setDefault(&cnf.Folders.Done, filepath.Join(cnf.BaseDir, "Done_Folder"))
	setDefault(&cnf.Folders.Logs, filepath.Join(cnf.BaseDir, "Logs_Folder"))
	setDefault(&cnf.LogFile, filepath.Join(cnf.BaseDir, "inspectsync.log"))

	switch cnf.Ledger.Driver {
	case "":
		cnf.Ledger.Driver = LedgerDriverFile
	case LedgerDriverFile, LedgerDriverSQLite:
	default:
		return fmt.Errorf("unsupported ledger driver %q", cnf.Ledger.Driver)
	}
	if cnf.Ledger.Driver == LedgerDriverSQLite {
		setDefault(&cnf.Ledger.Dns, filepath.Join(cnf.Folders.Logs, "ledger.db"))
	}

	if cnf.ERP.TimeoutSec <= 0 {
		cnf.ERP.TimeoutSec = 10
	}
	if cnf.Retry.ProbeAttempts <= 0 {
		cnf.Retry.ProbeAttempts = 3
	}
	if cnf.Retry.ProbeDelaySec <= 0 {
		cnf.Retry.ProbeDelaySec = 5
	}
	if cnf.Retry.RecordAttempts <= 0 {
		cnf.Retry.RecordAttempts = 3
	}
	if cnf.Retry.RecordDelaySec <= 0 {
		cnf.Retry.RecordDelaySec = 15
	}

	if cnf.Schedule.IntervalMinutes <= 0 {
		log.Printf("Warning: Scheduling frequency not specified. Setting default: %d minutes", DEFAULT_INTERVAL_MINUTES)
		cnf.Schedule.IntervalMinutes = DEFAULT_INTERVAL_MINUTES
	}

	if cnf.Telemetry.Enabled {
		setDefault(&cnf.Telemetry.Endpoint, DEFAULT_OTEL_ENDPOINT)
	}

	cnf.Server.Port = strings.TrimSpace(cnf.Server.Port)
	if cnf.Server.Port == "" {
		cnf.Server.Port = DEFAULT_PORT
	}

	// Rate limiting is disabled by default (when both RPS and Burst are nil)
	if cnf.RateLimit.RequestsPerSecond != nil && cnf.RateLimit.Burst == nil {
		defaultBurst := 2 * int(*cnf.RateLimit.RequestsPerSecond)
		cnf.RateLimit.Burst = &defaultBurst
	}
	if cnf.RateLimit.RequestsPerSecond == nil && cnf.RateLimit.Burst != nil {
		defaultRPS := float64(*cnf.RateLimit.Burst) / 2
		cnf.RateLimit.RequestsPerSecond = &defaultRPS
	}
	if cnf.RateLimit.CleanupIntervalSec == nil {
		defaultCleanup := 10800
		cnf.RateLimit.CleanupIntervalSec = &defaultCleanup
	}

	return nil
}

// MockConfig sets a mock configuration for testing purposes.
func MockConfig(mockConfig *Configuration) {
	store(mockConfig)
}

func store(cnf *Configuration) {
	cnf.Version = configVersion.Add(1)
	ConfigStore.Store(cnf)
}

func writeConfigFile(path string, cnf *Configuration) error {
	data, err := json.MarshalIndent(cnf, "", "    ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("failed to write configuration file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to write configuration file: %w", err)
	}
	return nil
}

func setDefault(field *string, value string) {
	*field = strings.TrimSpace(*field)
	if *field == "" {
		*field = value
	}
}

func trimAll(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func contains(values []string, item string) bool {
	for _, v := range values {
		if v == item {
			return true
		}
	}
	return false
}

// logger routes the standard library logger through logrus so both end up
// in the same sink.
func logger() {
	log.SetOutput(logrus.StandardLogger().Writer())
}
