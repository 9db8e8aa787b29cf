package config

import (
	"testing"
	"time"
)

type mapSettings map[string]string

func (m mapSettings) GetSetting(key string) (string, error) {
	return m[key], nil
}

func TestLoaderDefaults(t *testing.T) {
	l := NewLoader(mapSettings{
		KeyExternMaxConns:     "8",
		KeyExternQueryTimeout: "5s",
		KeyLogCompress:        "false",
		"bad.int":             "eight",
		"bad.duration":        "-3s",
	})

	if got := l.Int(KeyExternMaxConns, 4); got != 8 {
		t.Fatalf("Int = %d, want 8", got)
	}
	if got := l.Int("bad.int", 4); got != 4 {
		t.Fatalf("Int on invalid value = %d, want default 4", got)
	}
	if got := l.Duration(KeyExternQueryTimeout, time.Minute); got != 5*time.Second {
		t.Fatalf("Duration = %s, want 5s", got)
	}
	if got := l.Duration("bad.duration", time.Minute); got != time.Minute {
		t.Fatalf("Duration on negative value = %s, want default", got)
	}
	if l.Bool(KeyLogCompress, true) {
		t.Fatal("Bool = true, want false")
	}
	if got := l.String(KeyMaintenanceSchedule, "@every 1h"); got != "@every 1h" {
		t.Fatalf("String = %q, want default", got)
	}
}

func TestNilLoaderUsesDefaults(t *testing.T) {
	var l *Loader
	if got := l.Int(KeyExternMaxConns, 4); got != 4 {
		t.Fatalf("Int = %d, want 4", got)
	}
}

func TestValidateValue(t *testing.T) {
	tests := []struct {
		key   string
		value string
		want  bool
	}{
		{KeyExternMaxConns, "10", true},
		{KeyExternMaxConns, "ten", false},
		{KeyExternQueryTimeout, "45s", true},
		{KeyExternQueryTimeout, "0s", false},
		{KeyLogCompress, "true", true},
		{KeyLogCompress, "yes", false},
		{KeyMaintenanceSchedule, "@daily", true},
		{KeyMaintenanceSchedule, "", false},
		{"unknown.key", "1", false},
	}

	for _, tt := range tests {
		if got := ValidateValue(tt.key, tt.value); got != tt.want {
			t.Errorf("ValidateValue(%q, %q) = %v, want %v", tt.key, tt.value, got, tt.want)
		}
	}
}
