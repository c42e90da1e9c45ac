package config

import (
	"encoding/json"
	"fmt"
	"time"
)

func parseDuration(field, value string) (time.Duration, error) {
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("parsing %s: %w", field, err)
	}
	return d, nil
}

func parseValue(field string, raw json.RawMessage) (string, error) {
	if raw == nil {
		return "", nil
	}
	value, err := ParseConfigValue(raw)
	if err != nil {
		return "", fmt.Errorf("parsing %s: %w", field, err)
	}
	return value, nil
}

// UnmarshalJSON implements custom unmarshaling for FrontConfig
func (f *FrontConfig) UnmarshalJSON(data []byte) error {
	var raw struct {
		BaseURL json.RawMessage `json:"baseURL"`
		Addr    json.RawMessage `json:"addr"`
		Name    string          `json:"name"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	var err error
	if f.BaseURL, err = parseValue("baseURL", raw.BaseURL); err != nil {
		return err
	}
	if f.Addr, err = parseValue("addr", raw.Addr); err != nil {
		return err
	}
	f.Name = raw.Name
	return nil
}

// UnmarshalJSON implements custom unmarshaling for APIConfig
func (a *APIConfig) UnmarshalJSON(data []byte) error {
	var raw struct {
		BaseURL json.RawMessage `json:"baseURL"`
		Timeout string          `json:"timeout"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	var err error
	if a.BaseURL, err = parseValue("baseURL", raw.BaseURL); err != nil {
		return err
	}
	if raw.Timeout != "" {
		if a.Timeout, err = parseDuration("timeout", raw.Timeout); err != nil {
			return err
		}
	}
	return nil
}

// UnmarshalJSON implements custom unmarshaling for AuthConfig
func (a *AuthConfig) UnmarshalJSON(data []byte) error {
	var raw struct {
		LoginURL          json.RawMessage `json:"loginURL"`
		LandingPath       string          `json:"landingPath"`
		PublicPath        string          `json:"publicPath"`
		AuthenticatedPath string          `json:"authenticatedPath"`
		SettleTimeout     string          `json:"settleTimeout"`
		CookieSecret      json.RawMessage `json:"cookieSecret"`
		AllowedOrigins    []string        `json:"allowedOrigins"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	a.LandingPath = raw.LandingPath
	a.PublicPath = raw.PublicPath
	a.AuthenticatedPath = raw.AuthenticatedPath
	a.AllowedOrigins = raw.AllowedOrigins

	var err error
	if a.LoginURL, err = parseValue("loginURL", raw.LoginURL); err != nil {
		return err
	}
	if raw.SettleTimeout != "" {
		if a.SettleTimeout, err = parseDuration("settleTimeout", raw.SettleTimeout); err != nil {
			return err
		}
	}

	secret, err := parseValue("cookieSecret", raw.CookieSecret)
	if err != nil {
		return err
	}
	a.CookieSecret = Secret(secret)
	return nil
}

// UnmarshalJSON implements custom unmarshaling for PagesConfig
func (p *PagesConfig) UnmarshalJSON(data []byte) error {
	var raw struct {
		Timeout         string `json:"timeout"`
		BrowserTimeout  string `json:"browserTimeout"`
		CleanupInterval string `json:"cleanupInterval"`
		MaxPerBrowser   *int   `json:"maxPerBrowser"` // Pointer to detect explicit 0
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	var err error
	if raw.Timeout != "" {
		if p.Timeout, err = parseDuration("timeout", raw.Timeout); err != nil {
			return err
		}
	}
	if raw.BrowserTimeout != "" {
		if p.BrowserTimeout, err = parseDuration("browserTimeout", raw.BrowserTimeout); err != nil {
			return err
		}
	}
	if raw.CleanupInterval != "" {
		if p.CleanupInterval, err = parseDuration("cleanupInterval", raw.CleanupInterval); err != nil {
			return err
		}
	}

	// 0 is a valid value, means no upper bound
	if raw.MaxPerBrowser != nil {
		p.MaxPerBrowser = *raw.MaxPerBrowser
	}
	return nil
}

// UnmarshalJSON implements custom unmarshaling for UserCacheConfig
func (u *UserCacheConfig) UnmarshalJSON(data []byte) error {
	var raw struct {
		Kind                UserCacheKind   `json:"kind"`
		TTL                 string          `json:"ttl"`
		RedisAddr           json.RawMessage `json:"redisAddr"`
		RedisPassword       json.RawMessage `json:"redisPassword"`
		RedisDB             int             `json:"redisDB"`
		GCPProject          json.RawMessage `json:"gcpProject"`
		FirestoreDatabase   string          `json:"firestoreDatabase"`
		FirestoreCollection string          `json:"firestoreCollection"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	u.Kind = raw.Kind
	u.RedisDB = raw.RedisDB
	u.FirestoreDatabase = raw.FirestoreDatabase
	u.FirestoreCollection = raw.FirestoreCollection

	var err error
	if raw.TTL != "" {
		if u.TTL, err = parseDuration("ttl", raw.TTL); err != nil {
			return err
		}
	}
	if u.RedisAddr, err = parseValue("redisAddr", raw.RedisAddr); err != nil {
		return err
	}
	password, err := parseValue("redisPassword", raw.RedisPassword)
	if err != nil {
		return err
	}
	u.RedisPassword = Secret(password)
	if u.GCPProject, err = parseValue("gcpProject", raw.GCPProject); err != nil {
		return err
	}
	return nil
}
