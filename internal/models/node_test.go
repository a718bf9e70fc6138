package models

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestValidateName(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"simple", "Reports", false},
		{"with spaces inside", "Q1 Report", false},
		{"empty", "", true},
		{"blank", "   ", true},
		{"leading space", " Reports", true},
		{"slash", "a/b", true},
		{"dot", ".", true},
		{"dotdot", "..", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateName(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ValidateName(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidName) {
				t.Errorf("ValidateName(%q) error should wrap ErrInvalidName, got %v", tt.input, err)
			}
		})
	}
}

func TestDraftValidate(t *testing.T) {
	if err := (Draft{Name: "Sales", Kind: KindFolder}).Validate(); err != nil {
		t.Errorf("valid folder draft rejected: %v", err)
	}
	if err := (Draft{Name: "q1.sql", Kind: KindFile, SQL: "SELECT 1"}).Validate(); err != nil {
		t.Errorf("valid file draft rejected: %v", err)
	}

	err := (Draft{Name: "x", Kind: "link"}).Validate()
	if !errors.Is(err, ErrInvalidDraft) {
		t.Errorf("unknown kind: got %v, want ErrInvalidDraft", err)
	}

	err = (Draft{Name: "x", Kind: KindFolder, SQL: "SELECT 1"}).Validate()
	if !errors.Is(err, ErrInvalidDraft) {
		t.Errorf("folder with sql: got %v, want ErrInvalidDraft", err)
	}
}

func TestNodeJSONOmitsCacheMetadata(t *testing.T) {
	n := Node{ID: "a", Name: "A", Kind: KindFolder, IsLoaded: true, IsLoading: true}
	data, err := json.Marshal(n)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	s := string(data)
	if strings.Contains(s, "IsLoaded") || strings.Contains(s, "isLoaded") {
		t.Errorf("cache metadata leaked into JSON: %s", s)
	}
	if strings.Contains(s, "updatedAt") {
		t.Errorf("zero updatedAt should be omitted: %s", s)
	}
	if !strings.Contains(s, `"type":"folder"`) {
		t.Errorf("kind should be serialized as type: %s", s)
	}
}

func TestFormatPath(t *testing.T) {
	got := FormatPath([]Crumb{{ID: RootID, Name: "Root"}, {ID: "a", Name: "Reports"}})
	if got != "Root > Reports" {
		t.Errorf("FormatPath = %q", got)
	}
}
