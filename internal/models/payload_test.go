package models

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestStreamPayloadMarshalTagging(t *testing.T) {
	user := User{UUID: "u1", Username: "alice", Password: "pw", AccessLevel: AccessUser}
	payload := ReadyPayload(user.Public(), nil, nil)

	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded struct {
		Type    string `json:"type"`
		Payload struct {
			User      PublicUser        `json:"user"`
			Reports   []Report          `json:"reports"`
			Nicknames map[string]string `json:"nicknames"`
		} `json:"payload"`
	}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded.Type != "Ready" {
		t.Fatalf("expected type Ready, got %s", decoded.Type)
	}
	if decoded.Payload.User.UUID != "u1" {
		t.Fatalf("expected the public user, got %+v", decoded.Payload.User)
	}
	if decoded.Payload.Reports == nil || decoded.Payload.Nicknames == nil {
		t.Fatal("expected nil collections to encode as empty, not null")
	}
	if strings.Contains(string(data), "password") {
		t.Fatalf("payload leaked the password field: %s", data)
	}
}

func TestReadyAdminPayloadMarshal(t *testing.T) {
	payload := ReadyAdminPayload("a1", nil, []Report{{UUID: "r1", Priority: PriorityMajor}})
	if !payload.IsAdmin() {
		t.Fatal("expected the admin variant")
	}

	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded struct {
		Type    string `json:"type"`
		Payload struct {
			ID      string       `json:"id"`
			Users   []PublicUser `json:"users"`
			Reports []Report     `json:"reports"`
		} `json:"payload"`
	}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded.Type != "ReadyAdmin" {
		t.Fatalf("expected type ReadyAdmin, got %s", decoded.Type)
	}
	if decoded.Payload.ID != "a1" {
		t.Fatalf("expected the admin id, got %s", decoded.Payload.ID)
	}
	if decoded.Payload.Users == nil {
		t.Fatal("expected nil users to encode as empty, not null")
	}
	if len(decoded.Payload.Reports) != 1 || decoded.Payload.Reports[0].UUID != "r1" {
		t.Fatalf("unexpected reports: %+v", decoded.Payload.Reports)
	}
}

func TestParsePriority(t *testing.T) {
	if p, ok := ParsePriority(" critical "); !ok || p != PriorityCritical {
		t.Fatalf("expected Critical, got %q ok=%v", p, ok)
	}
	if p, ok := ParsePriority("MAJOR"); !ok || p != PriorityMajor {
		t.Fatalf("expected Major, got %q ok=%v", p, ok)
	}
	if _, ok := ParsePriority("urgent"); ok {
		t.Fatal("expected urgent to be rejected")
	}
}

func TestAccessLevel(t *testing.T) {
	if !AccessAdmin.Valid() || !AccessEmployee.Valid() || !AccessUser.Valid() {
		t.Fatal("expected known variants to be valid")
	}
	if AccessLevel("Root").Valid() {
		t.Fatal("expected unknown variants to be invalid")
	}
	if AccessUser.CanModerate() {
		t.Fatal("ordinary users must not moderate")
	}
	if !AccessEmployee.CanModerate() || !AccessAdmin.CanModerate() {
		t.Fatal("employees and admins moderate")
	}
}

func TestUserJSONUsesSnakeCase(t *testing.T) {
	report := Report{UUID: "r1", CreateAt: 42, UserUUID: "u1", EmployeeUUID: "e1", Priority: PriorityMinor}
	data, err := json.Marshal(report)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	for _, key := range []string{`"create_at"`, `"user_uuid"`, `"employee_uuid"`, `"is_resolved"`} {
		if !strings.Contains(string(data), key) {
			t.Fatalf("expected %s in %s", key, data)
		}
	}
}
