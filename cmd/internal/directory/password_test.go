package directory

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestHashAndVerifyPassword(t *testing.T) {
	hash, err := HashPassword("correct horse battery staple")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if !strings.HasPrefix(hash, "$argon2id$v=19$") {
		t.Fatalf("unexpected hash format: %q", hash)
	}

	ok, err := VerifyPassword("correct horse battery staple", hash)
	if err != nil {
		t.Fatalf("VerifyPassword: %v", err)
	}
	if !ok {
		t.Fatalf("correct password rejected")
	}

	ok, err = VerifyPassword("wrong password", hash)
	if err != nil {
		t.Fatalf("VerifyPassword wrong: %v", err)
	}
	if ok {
		t.Fatalf("wrong password accepted")
	}
}

func TestVerifyPassword_MalformedHash(t *testing.T) {
	t.Parallel()

	for _, encoded := range []string{
		"",
		"not-a-hash",
		"$argon2i$v=19$m=65536,t=1,p=4$c2FsdA$aGFzaA",
	} {
		if _, err := VerifyPassword("whatever", encoded); !errors.Is(err, ErrInvalidHash) {
			t.Fatalf("VerifyPassword(%q) err=%v, want ErrInvalidHash", encoded, err)
		}
	}
}

func TestRoleAndSupervision(t *testing.T) {
	t.Parallel()

	if !RoleAgent.Valid() || !RoleSupervisor.Valid() {
		t.Fatalf("defined roles must be valid")
	}
	if Role("MANAGER").Valid() {
		t.Fatalf("unknown role must be invalid")
	}

	supID := "sup-1"
	agent := User{ID: "agent-a", Role: RoleAgent, SupervisorID: &supID}
	if !agent.SupervisedBy("sup-1") {
		t.Fatalf("agent should be supervised by sup-1")
	}
	if agent.SupervisedBy("sup-2") {
		t.Fatalf("agent is not supervised by sup-2")
	}

	sup := User{ID: "sup-1", Role: RoleSupervisor}
	if sup.SupervisedBy("sup-1") {
		t.Fatalf("supervisors are not supervised")
	}
}

func TestMemoryStore_Lookups(t *testing.T) {
	t.Parallel()

	st := NewMemoryStore()
	hash, err := HashPassword("agent-password")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	st.Seed(User{ID: "agent-a", Username: "ada", Role: RoleAgent}, hash)

	u, err := st.GetUser(context.Background(), "agent-a")
	if err != nil {
		t.Fatalf("GetUser: %v", err)
	}
	if u.Username != "ada" {
		t.Fatalf("GetUser username=%q", u.Username)
	}

	u, gotHash, err := st.GetByUsername(context.Background(), "ada")
	if err != nil {
		t.Fatalf("GetByUsername: %v", err)
	}
	if u.ID != "agent-a" || gotHash != hash {
		t.Fatalf("GetByUsername returned id=%q", u.ID)
	}

	if _, err := st.GetUser(context.Background(), "ghost"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("GetUser missing err=%v, want ErrUserNotFound", err)
	}
	if _, _, err := st.GetByUsername(context.Background(), "ghost"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("GetByUsername missing err=%v, want ErrUserNotFound", err)
	}
}
