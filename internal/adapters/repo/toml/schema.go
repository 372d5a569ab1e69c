package toml

import "fmt"

const currentSchemaVersion = 1

type fileSchema struct {
	Version  int             `toml:"version"`
	Accounts []accountSchema `toml:"accounts"`
}

func (s *fileSchema) applyDefaults() {
	if s.Version == 0 {
		s.Version = currentSchemaVersion
	}
}

func (s fileSchema) validateVersion() error {
	return checkVersion("accounts", s.Version)
}

type accountSchema struct {
	ID         string `toml:"id"`
	Name       string `toml:"name"`
	Proxy      string `toml:"proxy,omitempty"`
	UserAgent  string `toml:"user_agent,omitempty"`
	SessionRef string `toml:"session_ref,omitempty"`
}

// claimsFileSchema is the claim-window state file. Times are unix seconds.
type claimsFileSchema struct {
	Version int                    `toml:"version"`
	Claims  map[string]claimSchema `toml:"claims"`
}

func (s *claimsFileSchema) applyDefaults() {
	if s.Version == 0 {
		s.Version = currentSchemaVersion
	}
	if s.Claims == nil {
		s.Claims = map[string]claimSchema{}
	}
}

func (s claimsFileSchema) validateVersion() error {
	return checkVersion("claims", s.Version)
}

type claimSchema struct {
	ClaimTime  int64  `toml:"claim_time"`
	UpdatedAt  int64  `toml:"updated_at"`
	Halted     bool   `toml:"halted"`
	HaltReason string `toml:"halt_reason"`
}

func checkVersion(what string, version int) error {
	if version > currentSchemaVersion {
		return fmt.Errorf("unsupported %s schema version %d (current %d)", what, version, currentSchemaVersion)
	}

	return nil
}
