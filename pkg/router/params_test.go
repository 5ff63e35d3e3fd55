package router

import "testing"

func TestBind(t *testing.T) {
	nav := &Context{Params: map[string]string{
		"id":     "42",
		"slug":   "launch",
		"rest":   "a/b/c",
		"public": "true",
		"count":  "7",
	}}

	var target struct {
		ID     int      `param:"id"`
		Slug   string   `param:"slug"`
		Rest   []string `param:"rest"`
		Public bool     `param:"public"`
		Count  uint8    `param:"count"`
		Other  string
	}
	if err := nav.Bind(&target); err != nil {
		t.Fatalf("Bind() error = %v", err)
	}

	if target.ID != 42 || target.Slug != "launch" || !target.Public || target.Count != 7 {
		t.Errorf("Bind() = %+v", target)
	}
	if len(target.Rest) != 3 || target.Rest[2] != "c" {
		t.Errorf("Rest = %v", target.Rest)
	}
}

func TestBindErrors(t *testing.T) {
	nav := &Context{Params: map[string]string{"id": "abc"}}

	var notPtr struct{}
	if err := nav.Bind(notPtr); err == nil {
		t.Error("expected error for non-pointer target")
	}

	n := 0
	if err := nav.Bind(&n); err == nil {
		t.Error("expected error for pointer to non-struct")
	}

	var target struct {
		ID int `param:"id"`
	}
	if err := nav.Bind(&target); err == nil {
		t.Error("expected error for invalid integer")
	}
}

func TestValidateParam(t *testing.T) {
	tests := []struct {
		value   string
		typ     string
		wantErr bool
	}{
		{"42", "int", false},
		{"-1", "int", false},
		{"x", "int", true},
		{"-1", "uint", true},
		{"550e8400-e29b-41d4-a716-446655440000", "uuid", false},
		{"not-a-uuid", "uuid", true},
		{"anything", "string", false},
	}
	for _, tt := range tests {
		err := ValidateParam(tt.value, tt.typ)
		if (err != nil) != tt.wantErr {
			t.Errorf("ValidateParam(%q, %q) error = %v, wantErr %v", tt.value, tt.typ, err, tt.wantErr)
		}
	}
}
