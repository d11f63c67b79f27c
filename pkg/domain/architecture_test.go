package domain_test

import (
	"testing"

	"emxloader/testutil"
)

func TestDomainDoesNotImportInternal(t *testing.T) {
	testutil.AssertNoDirectImports(t, ".", testutil.InternalImportForbidden,
		"pkg/domain holds the model and collaborator interfaces only")
}
