package doctor

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func validEnviron() []string {
	return []string{
		"PATH=/usr/bin",
		"PORT=8080",
		"SECRET=0123456789abcdef0123",
		"DEPLOY_COMMAND=make deploy SITE",
		"MOUNT_PATH=/hooks",
		"ENDPOINTS=siteA,siteB",
		"BRANCH_SITEA=prod",
		"BRANCH_SITEB=main",
	}
}

func hasIssue(issues []Issue, category, field string) bool {
	for _, i := range issues {
		if i.Category == category && i.Field == field {
			return true
		}
	}
	return false
}

func TestValidateClean(t *testing.T) {
	r := New(validEnviron()).Validate()

	if !r.Valid {
		t.Fatalf("expected valid, got errors: %+v", r.Errors)
	}
	if len(r.Warnings) != 0 {
		t.Errorf("expected no warnings, got %+v", r.Warnings)
	}
	if len(r.Fingerprint) != 64 {
		t.Errorf("fingerprint length = %d, want 64", len(r.Fingerprint))
	}
}

func TestValidateReportsEveryMissingKey(t *testing.T) {
	r := New([]string{"ENDPOINTS=siteA"}).Validate()

	if r.Valid {
		t.Fatal("expected invalid result")
	}
	for _, key := range []string{"PORT", "SECRET", "DEPLOY_COMMAND", "MOUNT_PATH", "BRANCH_SITEA"} {
		if !hasIssue(r.Errors, "missing", key) {
			t.Errorf("missing key %s not reported; errors: %+v", key, r.Errors)
		}
	}
	if r.Fingerprint != "" {
		t.Error("invalid config should not have a fingerprint")
	}
}

func TestValidateInvalidValues(t *testing.T) {
	env := append(validEnviron(), "DEPLOY_MODE=eventually", "PORT=99999")
	r := New(env).Validate()

	if r.Valid {
		t.Fatal("expected invalid result")
	}
	invalid := 0
	for _, e := range r.Errors {
		if e.Category == "invalid" {
			invalid++
		}
	}
	if invalid != 2 {
		t.Errorf("invalid errors = %d, want 2: %+v", invalid, r.Errors)
	}
}

func TestLaterEnvironEntriesWin(t *testing.T) {
	base := New(validEnviron()).Validate()
	r := New(append(validEnviron(), "PORT=9090")).Validate()
	if !r.Valid {
		t.Fatalf("expected valid, got %+v", r.Errors)
	}
	if r.Fingerprint == base.Fingerprint {
		t.Error("fingerprint should reflect the later PORT entry")
	}

	r = New(append(validEnviron(), "PORT=0")).Validate()
	if r.Valid {
		t.Error("later invalid PORT should override the valid one")
	}
}

func TestWarnWeakSecret(t *testing.T) {
	env := append(validEnviron(), "SECRET=short")
	r := New(env).Validate()

	if !r.Valid {
		t.Fatalf("weak secret should only warn, got %+v", r.Errors)
	}
	if !hasIssue(r.Warnings, "security", "SECRET") {
		t.Errorf("expected security warning, got %+v", r.Warnings)
	}
}

func TestWarnUnusedBranchKeys(t *testing.T) {
	env := append(validEnviron(), "BRANCH_SITEC=prod")
	r := New(env).Validate()

	if !hasIssue(r.Warnings, "endpoints", "BRANCH_SITEC") {
		t.Errorf("expected unused branch warning, got %+v", r.Warnings)
	}
}

func TestWarnMissingScripts(t *testing.T) {
	dir := t.TempDir()
	tmpl := filepath.Join(dir, "deploy")

	if err := os.WriteFile(tmpl+"-siteA", []byte("#!/bin/sh\n"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(tmpl+"-siteB", []byte("#!/bin/sh\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	env := append(validEnviron(), "DEPLOY_COMMAND="+tmpl, "ENDPOINTS=siteA,siteB,siteC", "BRANCH_SITEC=main")
	r := New(env).Validate()

	var msgs []string
	for _, w := range r.Warnings {
		if w.Category == "deploy" {
			msgs = append(msgs, w.Message)
		}
	}
	if len(msgs) != 2 {
		t.Fatalf("deploy warnings = %v, want 2", msgs)
	}
	joined := strings.Join(msgs, "\n")
	if !strings.Contains(joined, "not executable") || !strings.Contains(joined, "not found") {
		t.Errorf("unexpected deploy warnings: %v", msgs)
	}
}

func TestFormatHuman(t *testing.T) {
	r := &Result{
		Valid: false,
		Errors: []Issue{
			{Category: "missing", Field: "PORT", Message: "required setting is not set"},
		},
		Warnings: []Issue{
			{Category: "security", Message: "weak"},
		},
	}

	out := FormatHuman(r)
	for _, want := range []string{"Configuration invalid", "1 error(s), 1 warning(s)", "ERROR", "[missing] PORT: required setting is not set", "[security] weak"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}

	out = FormatHuman(&Result{Valid: true})
	if !strings.Contains(out, "Configuration valid.") {
		t.Errorf("unexpected output: %s", out)
	}
}

func TestFormatJSON(t *testing.T) {
	out, err := FormatJSON(New(validEnviron()).Validate())
	if err != nil {
		t.Fatal(err)
	}

	var decoded Result
	if err := json.Unmarshal([]byte(out), &decoded); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if !decoded.Valid {
		t.Error("decoded result should be valid")
	}
}
