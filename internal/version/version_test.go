// ABOUTME: Tests for version identification
// ABOUTME: Checks the product names and the user agent built from them
package version

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVersionIsSemver(t *testing.T) {
	assert.Regexp(t, regexp.MustCompile(`^\d+\.\d+\.\d+`), Version)
}

func TestProductNames(t *testing.T) {
	assert.Equal(t, "roomcast", Product)
	assert.Equal(t, "roomcast-go", Manufacturer)
}

func TestUserAgent(t *testing.T) {
	assert.Equal(t, Product+"/"+Version, UserAgent())

	saved := Version
	t.Cleanup(func() { Version = saved })
	Version = "1.2.3-dev"
	assert.Equal(t, "roomcast/1.2.3-dev", UserAgent())
}
