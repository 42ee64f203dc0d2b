package invite

import (
	"math/rand"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/tapglue/nexus/service/issuer"
)

type prepareFunc func(t *testing.T, namespace string, mode ConsumeMode) (Service, issuer.Service)

func testServiceIssueQuota(t *testing.T, p prepareFunc) {
	var (
		namespace       = "service_issue_quota"
		service, ledger = p(t, namespace, ConsumeAll)
		origin          = testOrdinary(t, ledger, namespace, 1)
	)

	created, err := service.Issue(namespace, &Issuance{
		IssuerID: origin.ID,
	})
	if err != nil {
		t.Fatal(err)
	}

	if have, want := strings.HasPrefix(created.Code, CodePrefix), true; have != want {
		t.Errorf("have %v, want %v", have, want)
	}
	if have, want := created.State(), StateActive; have != want {
		t.Errorf("have %v, want %v", have, want)
	}
	if have, want := created.IssuerID, origin.ID; have != want {
		t.Errorf("have %v, want %v", have, want)
	}
	if created.ExpiresAt.IsZero() {
		t.Error("want expiry horizon to be set")
	}

	quota, err := ledger.Quota(namespace, origin.ID)
	if err != nil {
		t.Fatal(err)
	}

	if have, want := quota, 0; have != want {
		t.Errorf("have %v, want %v", have, want)
	}

	_, err = service.Issue(namespace, &Issuance{
		IssuerID: origin.ID,
	})
	if have, want := IsQuotaExhausted(err), true; have != want {
		t.Errorf("have %v, want %v", have, want)
	}

	// Replenished externally the issuer can hand out invites again.
	if err := ledger.SetQuota(namespace, origin.ID, 1); err != nil {
		t.Fatal(err)
	}

	_, err = service.Issue(namespace, &Issuance{
		IssuerID: origin.ID,
	})
	if err != nil {
		t.Fatal(err)
	}
}

func testServiceIssueConsumeSingle(t *testing.T, p prepareFunc) {
	var (
		namespace       = "service_issue_consume_single"
		service, ledger = p(t, namespace, ConsumeSingle)
		origin          = testOrdinary(t, ledger, namespace, 3)
	)

	for want := 2; want >= 0; want-- {
		_, err := service.Issue(namespace, &Issuance{
			IssuerID: origin.ID,
		})
		if err != nil {
			t.Fatal(err)
		}

		quota, err := ledger.Quota(namespace, origin.ID)
		if err != nil {
			t.Fatal(err)
		}

		if have := quota; have != want {
			t.Errorf("have %v, want %v", have, want)
		}
	}

	_, err := service.Issue(namespace, &Issuance{
		IssuerID: origin.ID,
	})
	if have, want := IsQuotaExhausted(err), true; have != want {
		t.Errorf("have %v, want %v", have, want)
	}
}

func testServiceIssueConcurrent(t *testing.T, p prepareFunc) {
	var (
		namespace       = "service_issue_concurrent"
		service, ledger = p(t, namespace, ConsumeAll)
		origin          = testOrdinary(t, ledger, namespace, 1)

		errs = make(chan error, 16)
		wg   sync.WaitGroup
	)

	for i := 0; i < cap(errs); i++ {
		wg.Add(1)

		go func() {
			defer wg.Done()

			_, err := service.Issue(namespace, &Issuance{
				IssuerID: origin.ID,
			})

			errs <- err
		}()
	}

	wg.Wait()
	close(errs)

	won := 0

	for err := range errs {
		if err == nil {
			won++
			continue
		}

		if !IsQuotaExhausted(err) && !IsContention(err) {
			t.Errorf("unexpected err %v", err)
		}
	}

	if have, want := won, 1; have != want {
		t.Errorf("have %v, want %v", have, want)
	}
}

func testServiceIssuePrivileged(t *testing.T, p prepareFunc) {
	var (
		namespace  = "service_issue_privileged"
		service, _ = p(t, namespace, ConsumeAll)
		issuerID   = uint64(rand.Int63())
	)

	for i := 0; i < 1000; i++ {
		_, err := service.Issue(namespace, &Issuance{
			IssuerID:   issuerID,
			Privileged: true,
		})
		if err != nil {
			t.Fatal(err)
		}
	}

	count, err := service.Count(namespace, QueryOptions{
		IssuerIDs: []uint64{
			issuerID,
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	if have, want := count, 1000; have != want {
		t.Errorf("have %v, want %v", have, want)
	}
}

func testServiceIssueInvalid(t *testing.T, p prepareFunc) {
	var (
		namespace  = "service_issue_invalid"
		service, _ = p(t, namespace, ConsumeAll)
	)

	_, err := service.Issue(namespace, &Issuance{})
	if have, want := IsInvalidIssuance(err), true; have != want {
		t.Errorf("have %v, want %v", have, want)
	}

	_, err = service.Issue(namespace, &Issuance{
		IssuerID: uint64(rand.Int63()),
		Lifetime: -time.Hour,
	})
	if have, want := IsInvalidIssuance(err), true; have != want {
		t.Errorf("have %v, want %v", have, want)
	}

	// Ordinary issuance needs a quota record to settle against.
	_, err = service.Issue(namespace, &Issuance{
		IssuerID: uint64(rand.Int63()),
	})
	if have, want := IsInvalidIssuance(err), true; have != want {
		t.Errorf("have %v, want %v", have, want)
	}
}

func testServiceRedeem(t *testing.T, p prepareFunc) {
	var (
		accountID       = uint64(rand.Int63())
		namespace       = "service_redeem"
		service, ledger = p(t, namespace, ConsumeAll)
		origin          = testOrdinary(t, ledger, namespace, 1)
	)

	created, err := service.Issue(namespace, &Issuance{
		IssuerID: origin.ID,
	})
	if err != nil {
		t.Fatal(err)
	}

	// The fresh invite is visible to its issuer right away.
	list, err := service.Query(namespace, QueryOptions{
		Codes: []string{
			created.Code,
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	if have, want := len(list), 1; have != want {
		t.Fatalf("have %v, want %v", have, want)
	}
	if have, want := list[0].State(), StateActive; have != want {
		t.Errorf("have %v, want %v", have, want)
	}

	redeemed, err := service.Redeem(namespace, created.Code, accountID)
	if err != nil {
		t.Fatal(err)
	}

	if have, want := redeemed.State(), StateUsed; have != want {
		t.Errorf("have %v, want %v", have, want)
	}
	if have, want := redeemed.RedeemedBy, accountID; have != want {
		t.Errorf("have %v, want %v", have, want)
	}
	if redeemed.RedeemedAt.IsZero() {
		t.Error("want redeemed at to be set")
	}
	if have, want := redeemed.IssuerID, origin.ID; have != want {
		t.Errorf("have %v, want %v", have, want)
	}

	// The listing reflects the transition.
	list, err = service.Query(namespace, QueryOptions{
		Codes: []string{
			created.Code,
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	if have, want := len(list), 1; have != want {
		t.Fatalf("have %v, want %v", have, want)
	}
	if have, want := list[0].State(), StateUsed; have != want {
		t.Errorf("have %v, want %v", have, want)
	}
	if have, want := list[0].RedeemedAt.Unix(), redeemed.RedeemedAt.Unix(); have != want {
		t.Errorf("have %v, want %v", have, want)
	}
	if have, want := list[0].RedeemedBy, accountID; have != want {
		t.Errorf("have %v, want %v", have, want)
	}

	// Repeated redemption is terminal and distinguishable from an unknown
	// code.
	_, err = service.Redeem(namespace, created.Code, uint64(rand.Int63()))
	if have, want := IsAlreadyUsed(err), true; have != want {
		t.Errorf("have %v, want %v", have, want)
	}

	_, err = service.Redeem(namespace, GenerateCode(), accountID)
	if have, want := IsNotFound(err), true; have != want {
		t.Errorf("have %v, want %v", have, want)
	}

	_, err = service.Redeem(namespace, created.Code, 0)
	if have, want := IsInvalidRedemption(err), true; have != want {
		t.Errorf("have %v, want %v", have, want)
	}
}

func testServiceRedeemConcurrent(t *testing.T, p prepareFunc) {
	var (
		namespace       = "service_redeem_concurrent"
		service, ledger = p(t, namespace, ConsumeAll)
		origin          = testOrdinary(t, ledger, namespace, 1)
	)

	created, err := service.Issue(namespace, &Issuance{
		IssuerID: origin.ID,
	})
	if err != nil {
		t.Fatal(err)
	}

	var (
		errs = make(chan error, 16)
		wg   sync.WaitGroup
	)

	for i := 0; i < cap(errs); i++ {
		wg.Add(1)

		go func(accountID uint64) {
			defer wg.Done()

			_, err := service.Redeem(namespace, created.Code, accountID)

			errs <- err
		}(uint64(i + 1))
	}

	wg.Wait()
	close(errs)

	won := 0

	for err := range errs {
		if err == nil {
			won++
			continue
		}

		if !IsAlreadyUsed(err) && !IsContention(err) {
			t.Errorf("unexpected err %v", err)
		}
	}

	if have, want := won, 1; have != want {
		t.Errorf("have %v, want %v", have, want)
	}
}

func testServiceRedeemExpired(t *testing.T, p prepareFunc) {
	var (
		namespace       = "service_redeem_expired"
		service, ledger = p(t, namespace, ConsumeAll)
		origin          = testOrdinary(t, ledger, namespace, 1)
	)

	created, err := service.Issue(namespace, &Issuance{
		IssuerID: origin.ID,
		Lifetime: time.Millisecond,
	})
	if err != nil {
		t.Fatal(err)
	}

	time.Sleep(10 * time.Millisecond)

	_, err = service.Redeem(namespace, created.Code, uint64(rand.Int63()))
	if have, want := IsExpired(err), true; have != want {
		t.Errorf("have %v, want %v", have, want)
	}
}

func testServiceQuery(t *testing.T, p prepareFunc) {
	var (
		accountID  = uint64(rand.Int63())
		namespace  = "service_query"
		service, _ = p(t, namespace, ConsumeAll)
		issuerID   = uint64(rand.Int63())
		otherID    = uint64(rand.Int63())
	)

	is := List{}

	for i := 0; i < 5; i++ {
		created, err := service.Issue(namespace, &Issuance{
			IssuerID:   issuerID,
			Privileged: true,
		})
		if err != nil {
			t.Fatal(err)
		}

		is = append(is, created)

		time.Sleep(time.Millisecond)
	}

	for i := 0; i < 3; i++ {
		_, err := service.Issue(namespace, &Issuance{
			IssuerID:   otherID,
			Privileged: true,
		})
		if err != nil {
			t.Fatal(err)
		}
	}

	if _, err := service.Redeem(namespace, is[0].Code, accountID); err != nil {
		t.Fatal(err)
	}

	var (
		used   = true
		unused = false
	)

	cases := map[*QueryOptions]uint{
		{}:                              8,
		{Codes: []string{is[1].Code}}:   1,
		{IDs: []uint64{is[2].ID}}:       1,
		{IssuerIDs: []uint64{issuerID}}: 5,
		{IssuerIDs: []uint64{otherID}}:  3,
		{Limit: 4}:                      4,
		{IssuerIDs: []uint64{issuerID}, Used: &used}:             1,
		{IssuerIDs: []uint64{issuerID}, Used: &unused}:           4,
		{Before: is[4].CreatedAt, IssuerIDs: []uint64{issuerID}}: 4,
	}

	for opts, want := range cases {
		list, err := service.Query(namespace, *opts)
		if err != nil {
			t.Fatal(err)
		}

		if have := uint(len(list)); have != want {
			t.Errorf("have %v, want %v for %v", have, want, opts)
		}
	}

	list, err := service.Query(namespace, QueryOptions{
		IssuerIDs: []uint64{
			issuerID,
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	for i := 1; i < len(list); i++ {
		if list[i].CreatedAt.After(list[i-1].CreatedAt) {
			t.Errorf("want newest first ordering, have %v before %v", list[i-1].CreatedAt, list[i].CreatedAt)
		}
	}
}

func testServiceCount(t *testing.T, p prepareFunc) {
	var (
		namespace  = "service_count"
		service, _ = p(t, namespace, ConsumeAll)
		issuerID   = uint64(rand.Int63())
	)

	for i := 0; i < 4; i++ {
		_, err := service.Issue(namespace, &Issuance{
			IssuerID:   issuerID,
			Privileged: true,
		})
		if err != nil {
			t.Fatal(err)
		}
	}

	count, err := service.Count(namespace, QueryOptions{
		IssuerIDs: []uint64{
			issuerID,
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	if have, want := count, 4; have != want {
		t.Errorf("have %v, want %v", have, want)
	}
}

func testOrdinary(
	t *testing.T,
	ledger issuer.Service,
	ns string,
	quota int,
) *issuer.Issuer {
	i, err := ledger.Put(ns, &issuer.Issuer{
		InvitesAvailable: quota,
		Role:             issuer.RoleOrdinary,
	})
	if err != nil {
		t.Fatal(err)
	}

	return i
}
