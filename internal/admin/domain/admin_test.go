package domain

import "testing"

func TestAdministrator_Validate(t *testing.T) {
	tests := []struct {
		name    string
		admin   Administrator
		wantErr bool
	}{
		{"ok", Administrator{AdminID: "admin1", Credentials: []Credential{{ID: []byte{1}, PublicKey: []byte{2}}}}, false},
		{"missing id", Administrator{Credentials: []Credential{{ID: []byte{1}, PublicKey: []byte{2}}}}, true},
		{"no credentials", Administrator{AdminID: "admin1"}, true},
		{"credential without key", Administrator{AdminID: "admin1", Credentials: []Credential{{ID: []byte{1}}}}, true},
		{"duplicate ids", Administrator{AdminID: "admin1", Credentials: []Credential{
			{ID: []byte{1}, PublicKey: []byte{2}},
			{ID: []byte{1}, PublicKey: []byte{3}},
		}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.admin.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() err = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestAdministrator_CredentialLookup(t *testing.T) {
	a := &Administrator{AdminID: "admin1", Credentials: []Credential{
		{ID: []byte("one"), PublicKey: []byte{1}},
		{ID: []byte("two"), PublicKey: []byte{2}},
	}}
	c, ok := a.Credential([]byte("two"))
	if !ok || c.PublicKey[0] != 2 {
		t.Errorf("Credential(two) = %+v, %v", c, ok)
	}
	if _, ok := a.Credential([]byte("three")); ok {
		t.Error("Credential(three) should not be found")
	}
	ids := a.CredentialIDs()
	if len(ids) != 2 || string(ids[0]) != "one" || string(ids[1]) != "two" {
		t.Errorf("CredentialIDs = %q", ids)
	}
	var nilAdmin *Administrator
	if len(nilAdmin.CredentialIDs()) != 0 {
		t.Error("nil administrator has no credentials")
	}
}

func TestCounterAdvanced(t *testing.T) {
	tests := []struct {
		stored, next uint32
		want         bool
	}{
		{0, 0, true},
		{0, 1, true},
		{5, 6, true},
		{5, 5, false},
		{5, 4, false},
		{5, 0, false},
	}
	for _, tt := range tests {
		if got := CounterAdvanced(tt.stored, tt.next); got != tt.want {
			t.Errorf("CounterAdvanced(%d, %d) = %v, want %v", tt.stored, tt.next, got, tt.want)
		}
	}
}
