package issuer

import (
	"math/rand"
	"reflect"
	"testing"
)

type prepareFunc func(t *testing.T, namespace string) Service

func testServicePut(t *testing.T, p prepareFunc) {
	var (
		namespace = "service_put"
		service   = p(t, namespace)
	)

	created, err := service.Put(namespace, testIssuer())
	if err != nil {
		t.Fatal(err)
	}

	list, err := service.Query(namespace, QueryOptions{
		IDs: []uint64{
			created.ID,
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	if have, want := len(list), 1; have != want {
		t.Fatalf("have %v, want %v", have, want)
	}
	if have, want := list[0], created; !reflect.DeepEqual(have, want) {
		t.Errorf("have %v, want %v", have, want)
	}

	created.Role = RolePrivileged

	updated, err := service.Put(namespace, created)
	if err != nil {
		t.Fatal(err)
	}

	list, err = service.Query(namespace, QueryOptions{
		IDs: []uint64{
			updated.ID,
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	if have, want := list[0].Role, RolePrivileged; have != want {
		t.Errorf("have %v, want %v", have, want)
	}
	if have, want := list[0].CreatedAt, created.CreatedAt; !have.Equal(want) {
		t.Errorf("have %v, want %v", have, want)
	}
}

func testServicePutInvalid(t *testing.T, p prepareFunc) {
	var (
		namespace = "service_put_invalid"
		service   = p(t, namespace)
	)

	i := testIssuer()
	i.Role = Role("root")

	_, err := service.Put(namespace, i)
	if have, want := IsInvalidIssuer(err), true; have != want {
		t.Errorf("have %v, want %v", have, want)
	}

	i = testIssuer()
	i.InvitesAvailable = -1

	_, err = service.Put(namespace, i)
	if have, want := IsInvalidIssuer(err), true; have != want {
		t.Errorf("have %v, want %v", have, want)
	}
}

func testServiceQuery(t *testing.T, p prepareFunc) {
	var (
		namespace = "service_query"
		service   = p(t, namespace)
	)

	for i := 0; i < 5; i++ {
		_, err := service.Put(namespace, testIssuer())
		if err != nil {
			t.Fatal(err)
		}
	}

	for i := 0; i < 3; i++ {
		issuer := testIssuer()
		issuer.Role = RolePrivileged

		_, err := service.Put(namespace, issuer)
		if err != nil {
			t.Fatal(err)
		}
	}

	created, err := service.Put(namespace, testIssuer())
	if err != nil {
		t.Fatal(err)
	}

	cases := map[*QueryOptions]uint{
		{}:                                   9,
		{IDs: []uint64{created.ID}}:          1,
		{Limit: 4}:                           4,
		{Roles: []Role{RolePrivileged}}:      3,
		{Roles: []Role{RoleOrdinary}}:        6,
	}

	for opts, want := range cases {
		list, err := service.Query(namespace, *opts)
		if err != nil {
			t.Fatal(err)
		}

		if have := uint(len(list)); have != want {
			t.Errorf("have %v, want %v", have, want)
		}
	}
}

func testServiceQuota(t *testing.T, p prepareFunc) {
	var (
		namespace = "service_quota"
		service   = p(t, namespace)
	)

	created, err := service.Put(namespace, testIssuer())
	if err != nil {
		t.Fatal(err)
	}

	quota, err := service.Quota(namespace, created.ID)
	if err != nil {
		t.Fatal(err)
	}

	if have, want := quota, 1; have != want {
		t.Errorf("have %v, want %v", have, want)
	}

	err = service.SetQuota(namespace, created.ID, 0)
	if err != nil {
		t.Fatal(err)
	}

	quota, err = service.Quota(namespace, created.ID)
	if err != nil {
		t.Fatal(err)
	}

	if have, want := quota, 0; have != want {
		t.Errorf("have %v, want %v", have, want)
	}

	err = service.SetQuota(namespace, created.ID, -1)
	if have, want := IsInvalidIssuer(err), true; have != want {
		t.Errorf("have %v, want %v", have, want)
	}

	_, err = service.Quota(namespace, uint64(rand.Int63()))
	if have, want := IsNotFound(err), true; have != want {
		t.Errorf("have %v, want %v", have, want)
	}

	err = service.SetQuota(namespace, uint64(rand.Int63()), 3)
	if have, want := IsNotFound(err), true; have != want {
		t.Errorf("have %v, want %v", have, want)
	}
}

func testIssuer() *Issuer {
	return &Issuer{
		InvitesAvailable: 1,
		Role:             RoleOrdinary,
	}
}
