package invite

import (
	"errors"
	"testing"

	"github.com/tapglue/nexus/service/issuer"
)

func TestMemCount(t *testing.T) {
	testServiceCount(t, prepareMem)
}

func TestMemIssueConcurrent(t *testing.T) {
	testServiceIssueConcurrent(t, prepareMem)
}

func TestMemIssueConsumeSingle(t *testing.T) {
	testServiceIssueConsumeSingle(t, prepareMem)
}

func TestMemIssueInvalid(t *testing.T) {
	testServiceIssueInvalid(t, prepareMem)
}

func TestMemIssuePrivileged(t *testing.T) {
	testServiceIssuePrivileged(t, prepareMem)
}

func TestMemIssueLedgerFailure(t *testing.T) {
	var (
		errLedger = errors.New("ledger gone")
		service   = MemService(&faultyLedger{err: errLedger}, ConsumeAll)
	)

	_, err := service.Issue("namespace_mem_ledger", &Issuance{IssuerID: 123})
	if err == nil {
		t.Fatal("want issue to fail")
	}

	// A ledger failure is not a caller mistake and passes through unchanged.
	if have, want := IsInvalidIssuance(err), false; have != want {
		t.Errorf("have %v, want %v", have, want)
	}

	if have, want := err, errLedger; have != want {
		t.Errorf("have %v, want %v", have, want)
	}
}

func TestMemIssueQuota(t *testing.T) {
	testServiceIssueQuota(t, prepareMem)
}

func TestMemQuery(t *testing.T) {
	testServiceQuery(t, prepareMem)
}

func TestMemRedeem(t *testing.T) {
	testServiceRedeem(t, prepareMem)
}

func TestMemRedeemConcurrent(t *testing.T) {
	testServiceRedeemConcurrent(t, prepareMem)
}

func TestMemRedeemExpired(t *testing.T) {
	testServiceRedeemExpired(t, prepareMem)
}

type faultyLedger struct {
	err error
}

func (l *faultyLedger) Quota(ns string, id uint64) (int, error) {
	return 0, l.err
}

func (l *faultyLedger) SetQuota(ns string, id uint64, quota int) error {
	return l.err
}

func prepareMem(t *testing.T, namespace string, mode ConsumeMode) (Service, issuer.Service) {
	ledger := issuer.MemService()

	if err := ledger.Setup(namespace); err != nil {
		t.Fatal(err)
	}

	s := MemService(ledger, mode)

	if err := s.Setup(namespace); err != nil {
		t.Fatal(err)
	}

	return s, ledger
}
