package security

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"emxloader/pkg/domain"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEnforcer(t *testing.T, path string) *Enforcer {
	t.Helper()
	logger, _ := test.NewNullLogger()
	enf, err := NewEnforcer(path, logrus.NewEntry(logger))
	require.NoError(t, err)
	return enf
}

func TestGrantGivesEntityPermissions(t *testing.T) {
	enf := newTestEnforcer(t, "")
	alice := domain.Principal{Username: "alice"}
	require.NoError(t, enf.Grant(context.Background(), alice, []string{"lab_sample", "lab_donor"}))

	for _, act := range GrantedActions {
		ok, err := enf.Allowed(alice, "lab_sample", act)
		require.NoError(t, err)
		assert.True(t, ok, act)
	}
	ok, err := enf.Allowed(alice, "lab_other", ActionRead)
	require.NoError(t, err)
	assert.False(t, ok)
	ok, err = enf.Allowed(domain.Principal{Username: "bob"}, "lab_sample", ActionRead)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestGrantIsIdempotentAndRequiresUser(t *testing.T) {
	enf := newTestEnforcer(t, "")
	alice := domain.Principal{Username: "alice"}
	require.NoError(t, enf.Grant(context.Background(), alice, []string{"gene"}))
	require.NoError(t, enf.Grant(context.Background(), alice, []string{"gene"}))
	require.NoError(t, enf.Grant(context.Background(), alice, nil))
	assert.Error(t, enf.Grant(context.Background(), domain.Principal{}, []string{"gene"}))
}

func TestPolicyFileRolesAndWildcards(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.csv")
	require.NoError(t, os.WriteFile(path, []byte("p, curators, lab_*, writemeta\ng, carol, curators\n"), 0o600))
	enf := newTestEnforcer(t, path)
	carol := domain.Principal{Username: "carol"}
	assert.NoError(t, enf.Authorize(carol, "lab_sample", ActionWriteMeta))

	err := enf.Authorize(carol, "clinic_patient", ActionWriteMeta)
	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.KindPermissionFailure))

	root := domain.Principal{Username: "admin", Superuser: true}
	assert.NoError(t, enf.Authorize(root, "anything", ActionWrite))
}

func TestPolicyFilePersistsGrants(t *testing.T) {
	path := filepath.Join(t.TempDir(), "authz", "policy.csv")
	enf := newTestEnforcer(t, path)
	require.NoError(t, enf.Grant(context.Background(), domain.Principal{Username: "dave"}, []string{"gene"}))

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(b), "dave, gene, writemeta"), string(b))

	reopened := newTestEnforcer(t, path)
	ok, err := reopened.Allowed(domain.Principal{Username: "dave"}, "gene", ActionWrite)
	require.NoError(t, err)
	assert.True(t, ok)
}
