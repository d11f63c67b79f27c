package importer_test

import (
	"testing"

	"emxloader/testutil"
)

func TestImporterOnlyUsesDomainInterfaces(t *testing.T) {
	testutil.AssertNoDirectImports(t, ".",
		testutil.AnyOf(testutil.InfraImportForbidden, testutil.PathSuffixForbidden("/internal/service", "/internal/security")),
		"the importer writes through domain.DataService and domain.PermissionHook")
}
