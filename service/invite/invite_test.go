package invite

import (
	"strings"
	"testing"
	"time"

	"github.com/tapglue/nexus/platform/generate"
)

func TestGenerateCode(t *testing.T) {
	seen := map[string]struct{}{}

	for i := 0; i < 1000; i++ {
		code := GenerateCode()

		if have, want := strings.HasPrefix(code, CodePrefix), true; have != want {
			t.Fatalf("have %v, want %v", have, want)
		}

		token := strings.TrimPrefix(code, CodePrefix)

		if have, want := len(token), codeTokenLength; have != want {
			t.Fatalf("have %v, want %v", have, want)
		}

		for _, r := range token {
			if !strings.ContainsRune(generate.CharsetCode, r) {
				t.Fatalf("unexpected rune %q in %s", r, code)
			}
		}

		if _, ok := seen[code]; ok {
			t.Fatalf("duplicate code %s", code)
		}

		seen[code] = struct{}{}
	}
}

func TestNormalizeCode(t *testing.T) {
	cases := map[string]string{
		"  nexus-a1b2c3  ": "NEXUS-A1B2C3",
		"NEXUS-A1B2C3":     "NEXUS-A1B2C3",
		"nexus-zz99xx":     "NEXUS-ZZ99XX",
		"\tNEXUS-000000\n": "NEXUS-000000",
	}

	for input, want := range cases {
		if have := NormalizeCode(input); have != want {
			t.Errorf("have %v, want %v", have, want)
		}
	}
}

func TestInviteState(t *testing.T) {
	i := &Invite{
		Code:      GenerateCode(),
		CreatedAt: time.Now(),
		ExpiresAt: time.Now().Add(DefaultLifetime),
	}

	if have, want := i.State(), StateActive; have != want {
		t.Errorf("have %v, want %v", have, want)
	}

	i.RedeemedAt = time.Now()
	i.RedeemedBy = 123

	if have, want := i.State(), StateUsed; have != want {
		t.Errorf("have %v, want %v", have, want)
	}
}

func TestInviteExpired(t *testing.T) {
	now := time.Now()

	i := &Invite{
		ExpiresAt: now.Add(time.Hour),
	}

	if have, want := i.ExpiredAt(now), false; have != want {
		t.Errorf("have %v, want %v", have, want)
	}

	if have, want := i.ExpiredAt(now.Add(2*time.Hour)), true; have != want {
		t.Errorf("have %v, want %v", have, want)
	}

	// Redemption outranks expiry, a used invite never reads as expired.
	i.RedeemedAt = now
	i.RedeemedBy = 123

	if have, want := i.State(), StateUsed; have != want {
		t.Errorf("have %v, want %v", have, want)
	}
}

func TestIssuanceValidate(t *testing.T) {
	for _, issuance := range []*Issuance{
		{},
		{IssuerID: 123, Lifetime: -time.Minute},
	} {
		if have, want := IsInvalidIssuance(issuance.Validate()), true; have != want {
			t.Errorf("have %v, want %v for %v", have, want, issuance)
		}
	}

	for _, issuance := range []*Issuance{
		{IssuerID: 123},
		{IssuerID: 123, Lifetime: time.Hour},
		{IssuerID: 123, Privileged: true},
	} {
		if err := issuance.Validate(); err != nil {
			t.Errorf("unexpected err %v for %v", err, issuance)
		}
	}
}
