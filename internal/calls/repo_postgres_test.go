package calls

import (
	"strings"
	"testing"
)

func TestUpsertCallSQL_UsageParamsAreFloat(t *testing.T) {
	for _, want := range []string{
		"COALESCE($14::double precision, 0)",
		"COALESCE($15::double precision, 0)",
	} {
		if !strings.Contains(upsertCallSQL, want) {
			t.Fatalf("upsert must cast usage parameter: missing %q", want)
		}
	}
	if strings.Contains(upsertCallSQL, "COALESCE($14, 0)") || strings.Contains(upsertCallSQL, "COALESCE($15, 0)") {
		t.Fatalf("untyped usage parameter would be inferred as int4")
	}
}

func TestUpsertCallSQL_GuardsTenantOwnership(t *testing.T) {
	want := "WHERE calls.tenant_id IS NULL OR EXCLUDED.tenant_id IS NULL OR calls.tenant_id = EXCLUDED.tenant_id"
	if !strings.Contains(upsertCallSQL, want) {
		t.Fatalf("upsert must not update a call owned by another tenant")
	}
}
