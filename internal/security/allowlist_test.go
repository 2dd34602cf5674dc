package security

import (
	"testing"

	apperrors "github.com/Perkybeet/wasm/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInstallerAllowlist(t *testing.T) {
	a := InstallerAllowlist()

	for _, u := range DefaultInstallerURLs {
		assert.NoError(t, a.Check(u), u)
		assert.Contains(t, u, "https://")
	}

	for _, u := range []string{
		"https://malicious.com/install.sh",
		"http://bun.sh/install",
		"https://example.com/install",
		"https://raw.githubusercontent.com/user/repo/script.sh",
		"https://pastebin.com/raw/abc123",
		"file:///etc/passwd",
		"https://bun.sh/install?x=1",
	} {
		err := a.Check(u)
		require.Error(t, err, u)
		assert.True(t, apperrors.IsSecurity(err))
		assert.Contains(t, apperrors.GetDiagnostic(err), "Only the following URLs are allowed")
	}
}

func TestAllowlist_Hosts(t *testing.T) {
	a := NewAllowlist(nil, []string{"Codeload.GitHub.com"})
	assert.NoError(t, a.Check("https://codeload.github.com/acme/shop/tar.gz/main"))
	assert.Error(t, a.Check("https://user:pw@codeload.github.com/acme/shop.zip"))
	assert.Error(t, a.Check("https://github.com/acme/shop.zip"))

	var none *Allowlist
	assert.Error(t, none.Check("https://codeload.github.com/x"))
}
