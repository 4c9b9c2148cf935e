// ABOUTME: Tests for version constants
// ABOUTME: Ensures version information is properly defined
package version

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIdentityDefined(t *testing.T) {
	for name, value := range map[string]string{
		"Version":      Version,
		"Product":      Product,
		"Manufacturer": Manufacturer,
	} {
		assert.NotEmpty(t, value, name)
		assert.Less(t, len(value), 100, name)
	}
}

func TestVersionNotPlaceholder(t *testing.T) {
	for _, placeholder := range []string{"TODO", "FIXME", "XXX", "placeholder"} {
		assert.NotEqual(t, placeholder, Version)
		assert.NotEqual(t, placeholder, Product)
		assert.NotEqual(t, placeholder, Manufacturer)
	}
}

func TestString(t *testing.T) {
	assert.Equal(t, "resonate-media "+Version, String())
}
