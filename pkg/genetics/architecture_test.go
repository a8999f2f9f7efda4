package genetics

import (
	"testing"

	"crosslab/testutil"
)

func TestGeneticsImportsNoUpperLayers(t *testing.T) {
	testutil.AssertNoDirectImports(t, ".", testutil.AnyOf(
		testutil.DomainImport,
		testutil.InternalImport,
		func(path string) bool { return path == "crosslab/pkg/stats" },
	), "genetics sits below stats and domain")
}

func TestGeneticsHasNoInfrastructureDependencies(t *testing.T) {
	testutil.AssertNoTransitiveDependency(t, ".", testutil.AnyOf(
		testutil.InternalImport,
		testutil.InfrastructureImport,
	), "genetics must stay pure computation")
}
