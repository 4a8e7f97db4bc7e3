package appointments

import (
	"context"
	"errors"
	"testing"
)

func TestCreate_OnePerCall(t *testing.T) {
	repo := NewMemoryRepo()
	svc := NewService(repo)
	ctx := context.Background()

	first, created, err := svc.Create(ctx, Appointment{TenantID: "t1", CallID: "c1", LeadID: "l1", Date: "2026-10-20", Type: "demo"})
	if err != nil || !created {
		t.Fatalf("expected created, got %v %v", created, err)
	}
	if first.Status != StatusProposed {
		t.Fatalf("expected proposed status, got %q", first.Status)
	}

	again, created, err := svc.Create(ctx, Appointment{TenantID: "t1", CallID: "c1", Date: "2026-10-21"})
	if err != nil {
		t.Fatalf("replay create: %v", err)
	}
	if created || again.ID != first.ID || again.Date != "2026-10-20" {
		t.Fatalf("expected existing appointment back, got %+v created=%v", again, created)
	}
	if repo.Count() != 1 {
		t.Fatalf("expected one appointment, got %d", repo.Count())
	}
}

func TestCreate_Validation(t *testing.T) {
	svc := NewService(NewMemoryRepo())
	if _, _, err := svc.Create(context.Background(), Appointment{CallID: "c1"}); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest, got %v", err)
	}
	if _, _, err := svc.Create(context.Background(), Appointment{TenantID: "t1"}); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest, got %v", err)
	}
}
