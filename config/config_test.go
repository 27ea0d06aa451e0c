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
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func validConfig() Configuration {
	return Configuration{
		ERP:               ERPConfig{URL: "http://erp.local/api/resource/Pre AOI/"},
		MachineDataFolder: "/data/machine",
		RegistryFolders:   []string{"/data/lm"},
	}
}

func TestValidateAndAddDefaults(t *testing.T) {
	cnf := Configuration{MachineDataFolder: "/data", RegistryFolders: []string{"/lm"}}
	err := cnf.validateAndAddDefaults()
	if err == nil || err.Error() != "erp url is required" {
		t.Errorf("Expected erp url required error, got %v", err)
	}

	cnf = Configuration{ERP: ERPConfig{URL: "http://erp"}, RegistryFolders: []string{"/lm"}}
	err = cnf.validateAndAddDefaults()
	if err == nil || err.Error() != "machine data folder is required" {
		t.Errorf("Expected machine data folder required error, got %v", err)
	}

	cnf = Configuration{ERP: ERPConfig{URL: "http://erp"}, MachineDataFolder: "/data"}
	err = cnf.validateAndAddDefaults()
	if err == nil || err.Error() != "at least one registry folder is required" {
		t.Errorf("Expected registry folder required error, got %v", err)
	}

	cnf = validConfig()
	cnf.BaseDir = "/srv/aoi"
	if err := cnf.validateAndAddDefaults(); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if cnf.ERP.URL != "http://erp.local/api/resource/Pre AOI" {
		t.Errorf("Expected trailing slash to be trimmed, got %s", cnf.ERP.URL)
	}
	if cnf.Folders.Pending != filepath.Join("/srv/aoi", "JSON_Data_Folder") {
		t.Errorf("Unexpected pending folder %s", cnf.Folders.Pending)
	}
	if cnf.Ledger.Driver != LedgerDriverFile {
		t.Errorf("Expected default ledger driver %s, got %s", LedgerDriverFile, cnf.Ledger.Driver)
	}
	if cnf.Retry.ProbeAttempts != 3 || cnf.Retry.ProbeDelaySec != 5 || cnf.Retry.RecordAttempts != 3 || cnf.Retry.RecordDelaySec != 15 {
		t.Errorf("Unexpected retry defaults %+v", cnf.Retry)
	}
	if cnf.ERP.TimeoutSec != 10 {
		t.Errorf("Expected default timeout 10, got %d", cnf.ERP.TimeoutSec)
	}
	if cnf.Schedule.IntervalMinutes != DEFAULT_INTERVAL_MINUTES {
		t.Errorf("Expected default interval, got %d", cnf.Schedule.IntervalMinutes)
	}
	if cnf.Server.Port != DEFAULT_PORT {
		t.Errorf("Expected default port %s, got %s", DEFAULT_PORT, cnf.Server.Port)
	}
}

func TestValidateAndAddDefaults_SQLiteLedger(t *testing.T) {
	cnf := validConfig()
	cnf.Ledger.Driver = LedgerDriverSQLite
	if err := cnf.validateAndAddDefaults(); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if cnf.Ledger.Dns != filepath.Join(cnf.Folders.Logs, "ledger.db") {
		t.Errorf("Unexpected ledger dns %s", cnf.Ledger.Dns)
	}

	cnf = validConfig()
	cnf.Ledger.Driver = "postgres"
	if err := cnf.validateAndAddDefaults(); err == nil {
		t.Error("Expected unsupported driver error")
	}
}

func TestValidateAndAddDefaults_Telemetry(t *testing.T) {
	cnf := validConfig()
	if err := cnf.validateAndAddDefaults(); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if cnf.Telemetry.Endpoint != "" {
		t.Errorf("Expected no endpoint while telemetry is off, got %s", cnf.Telemetry.Endpoint)
	}

	cnf = validConfig()
	cnf.Telemetry.Enabled = true
	if err := cnf.validateAndAddDefaults(); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if cnf.Telemetry.Endpoint != DEFAULT_OTEL_ENDPOINT {
		t.Errorf("Expected default endpoint, got %s", cnf.Telemetry.Endpoint)
	}
}

func TestValidateAndAddDefaults_LegacyRegistryFolders(t *testing.T) {
	cnf := Configuration{
		ERP:                        ERPConfig{URL: "http://erp"},
		MachineDataFolder:          "/data",
		LegacyRegistryFolder:       "/lm",
		LegacyRegistryBackupFolder: "/lm-backup",
	}
	if err := cnf.validateAndAddDefaults(); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if len(cnf.RegistryFolders) != 2 || cnf.RegistryFolders[0] != "/lm" || cnf.RegistryFolders[1] != "/lm-backup" {
		t.Errorf("Unexpected registry folders %v", cnf.RegistryFolders)
	}
}

func TestLoadConfigFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "inspectsync.json")
	sample := validConfig()
	sample.ProjectName = "Line 3"
	data, err := json.Marshal(sample)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("Unable to write config: %v", err)
	}

	t.Setenv("INSPECTSYNC_ERP_API_KEY", "env-key")

	if err := loadConfigFromFile(path); err != nil {
		t.Fatalf("loadConfigFromFile failed: %v", err)
	}

	loaded, err := Fetch()
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if loaded.ERP.APIKey != "env-key" {
		t.Errorf("Expected api key from env, got '%s'", loaded.ERP.APIKey)
	}
	if loaded.ProjectName != "Line 3" {
		t.Errorf("Expected ProjectName from file, got '%s'", loaded.ProjectName)
	}
}

func TestLoadConfigFromFile_Malformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "inspectsync.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := loadConfigFromFile(path); err == nil {
		t.Error("Expected decode error")
	}
}

func TestReset(t *testing.T) {
	path := filepath.Join(t.TempDir(), "inspectsync.json")
	original := validConfig()
	if err := Save(path, &original); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	before, err := Fetch()
	if err != nil {
		t.Fatal(err)
	}

	after, err := Reset(path, ResetInput{
		APIKey:            "new-key",
		APISecret:         "new-secret",
		ERPURL:            "http://erp2.local/api/resource/Pre AOI",
		MachineDataFolder: "/data/machine2",
		RegistryFolders:   []string{"/lm2", " ", "/lm2-backup"},
	})
	if err != nil {
		t.Fatalf("Reset failed: %v", err)
	}

	if after.Version <= before.Version {
		t.Errorf("Expected version to increase, got %d -> %d", before.Version, after.Version)
	}
	if before.ERP.APIKey != "" || before.MachineDataFolder != "/data/machine" {
		t.Errorf("Earlier snapshot was modified: %+v", before)
	}
	if len(after.RegistryFolders) != 2 {
		t.Errorf("Expected blank folder to be dropped, got %v", after.RegistryFolders)
	}

	current, _ := Fetch()
	if current != after {
		t.Error("Expected reset snapshot to be current")
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var onDisk Configuration
	if err := json.Unmarshal(raw, &onDisk); err != nil {
		t.Fatal(err)
	}
	if onDisk.ERP.APIKey != "new-key" || onDisk.MachineDataFolder != "/data/machine2" {
		t.Errorf("Config file was not rewritten: %+v", onDisk)
	}
}

func TestReset_MissingFile(t *testing.T) {
	cnf := validConfig()
	MockConfig(&cnf)
	_, err := Reset(filepath.Join(t.TempDir(), "missing.json"), ResetInput{ERPURL: "http://x", MachineDataFolder: "/d", RegistryFolders: []string{"/lm"}})
	if err == nil {
		t.Error("Expected error for missing config file")
	}
}

func TestVerifyResetPassword(t *testing.T) {
	t.Setenv("INSPECTSYNC_RESET_PASSWORD", "")
	if VerifyResetPassword("") {
		t.Error("Expected reset to be refused without a configured password")
	}

	t.Setenv("INSPECTSYNC_RESET_PASSWORD", "s3cret")
	if !VerifyResetPassword("s3cret") {
		t.Error("Expected password to match")
	}
	if VerifyResetPassword("wrong") {
		t.Error("Expected password mismatch")
	}
}

func TestEnsureFolders(t *testing.T) {
	cnf := validConfig()
	cnf.BaseDir = t.TempDir()
	if err := cnf.validateAndAddDefaults(); err != nil {
		t.Fatal(err)
	}
	if err := EnsureFolders(&cnf); err != nil {
		t.Fatalf("EnsureFolders failed: %v", err)
	}
	for _, dir := range []string{cnf.Folders.Scan, cnf.Folders.Pending, cnf.Folders.Backup, cnf.Folders.Done, cnf.Folders.Logs} {
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			t.Errorf("Expected folder %s to exist", dir)
		}
	}
}
